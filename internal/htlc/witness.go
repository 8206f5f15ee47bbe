package htlc

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/klingon-exchange/klingon-htlc/pkg/helpers"
)

// maxWitnessItemSize bounds a single stack item when parsing a serialized
// witness. It matches the block weight limit.
const maxWitnessItemSize = 4_000_000

// ClaimWitness builds the stack that spends through the OP_IF branch.
//
//	<signature>
//	<secret>
//	<0x01>      selects OP_IF
//	<script>
func ClaimWitness(sig, secret []byte, script LockingScript) wire.TxWitness {
	return wire.TxWitness{
		helpers.CloneBytes(sig),
		helpers.CloneBytes(secret),
		{0x01},
		script.Bytes(),
	}
}

// RefundWitness builds the stack that spends through the OP_ELSE branch.
// The selector is the empty item, serialized as the single length byte
// 0x00; MINIMALIF policy rejects any other false value.
//
//	<signature>
//	<>          selects OP_ELSE
//	<script>
func RefundWitness(sig []byte, script LockingScript) wire.TxWitness {
	return wire.TxWitness{
		helpers.CloneBytes(sig),
		{},
		script.Bytes(),
	}
}

// IsClaimWitness reports whether w has the claim layout.
func IsClaimWitness(w wire.TxWitness) bool {
	return len(w) == 4 && bytes.Equal(w[2], []byte{0x01})
}

// IsRefundWitness reports whether w has the refund layout.
func IsRefundWitness(w wire.TxWitness) bool {
	return len(w) == 3 && len(w[1]) == 0
}

// SerializeWitness encodes a witness stack as a compact-size item count
// followed by compact-size length-prefixed items. This is the per-input
// witness encoding of BIP144 and the PSBT final script witness field.
func SerializeWitness(w wire.TxWitness) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, 0, uint64(len(w))); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	for _, item := range w {
		if err := wire.WriteVarBytes(&buf, 0, item); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
		}
	}
	return buf.Bytes(), nil
}

// ParseWitness decodes the output of SerializeWitness.
func ParseWitness(b []byte) (wire.TxWitness, error) {
	r := bytes.NewReader(b)

	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: witness count: %v", ErrEncoding, err)
	}
	// Every item needs at least its length byte.
	if count > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: witness count %d exceeds remaining %d bytes",
			ErrEncoding, count, r.Len())
	}

	w := make(wire.TxWitness, count)
	for i := range w {
		item, err := wire.ReadVarBytes(r, 0, maxWitnessItemSize, "witness item")
		if err != nil {
			return nil, fmt.Errorf("%w: witness item %d: %v", ErrEncoding, i, err)
		}
		w[i] = item
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after witness", ErrEncoding, r.Len())
	}
	return w, nil
}
