package htlc

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

// FinalizedPacket wraps a signed single-input transaction in a finalized
// BIP174 packet, so it can be handed to wallets and signers that exchange
// PSBTs. prevOut is the output the input spends.
func FinalizedPacket(tx *wire.MsgTx, prevOut *wire.TxOut) (*psbt.Packet, error) {
	if tx == nil || prevOut == nil {
		return nil, fmt.Errorf("%w: nil transaction or previous output", ErrEncoding)
	}
	if len(tx.TxIn) != 1 {
		return nil, fmt.Errorf("%w: expected 1 input, got %d", ErrEncoding, len(tx.TxIn))
	}
	if len(tx.TxIn[0].Witness) == 0 {
		return nil, fmt.Errorf("%w: input is not signed", ErrEncoding)
	}

	unsigned := tx.Copy()
	for _, in := range unsigned.TxIn {
		in.SignatureScript = nil
		in.Witness = nil
	}

	packet, err := psbt.NewFromUnsignedTx(unsigned)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	finalWitness, err := SerializeWitness(tx.TxIn[0].Witness)
	if err != nil {
		return nil, err
	}
	packet.Inputs[0].WitnessUtxo = wire.NewTxOut(prevOut.Value, prevOut.PkScript)
	packet.Inputs[0].FinalScriptWitness = finalWitness

	extracted, err := psbt.Extract(packet)
	if err != nil {
		return nil, fmt.Errorf("%w: extract: %v", ErrEncoding, err)
	}
	if extracted.WitnessHash() != tx.WitnessHash() {
		return nil, fmt.Errorf("%w: packet does not reproduce transaction", ErrEncoding)
	}
	return packet, nil
}

// EncodePSBT returns the base64 encoding of a finalized packet for tx.
func EncodePSBT(tx *wire.MsgTx, prevOut *wire.TxOut) (string, error) {
	packet, err := FinalizedPacket(tx, prevOut)
	if err != nil {
		return "", err
	}
	b64, err := packet.B64Encode()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return b64, nil
}

// ExtractPSBT decodes a base64 packet and returns the final transaction.
// The packet must be complete.
func ExtractPSBT(b64 string) (*wire.MsgTx, error) {
	packet, err := psbt.NewFromRawBytes(bytes.NewReader([]byte(strings.TrimSpace(b64))), true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if !packet.IsComplete() {
		return nil, fmt.Errorf("%w: packet is not finalized", ErrEncoding)
	}
	tx, err := psbt.Extract(packet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return tx, nil
}
