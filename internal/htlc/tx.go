package htlc

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"

	"github.com/klingon-exchange/klingon-htlc/pkg/helpers"
	"github.com/klingon-exchange/klingon-htlc/pkg/logging"
)

const (
	// TxVersion is the version of every transaction the builders emit.
	TxVersion = 2

	// DefaultClaimFee is the claim fee in satoshis used when none is given.
	DefaultClaimFee = 1000

	// DefaultRefundFee is the refund fee in satoshis used when none is given.
	DefaultRefundFee = 3600

	// RefundSequence is the input sequence of refund transactions. It is
	// not final, so the transaction lock time is enforced.
	RefundSequence = wire.MaxTxInSequenceNum - 1
)

// UTXO is a pay-to-witness-public-key-hash output used to fund an HTLC.
type UTXO struct {
	TxID  string // display (big-endian) hex
	Vout  uint32
	Value uint64 // satoshis

	// PkScript is the output's locking script. When empty it is derived
	// from the signer's public key.
	PkScript []byte
}

// FundingTxParams contains parameters for creating a funding transaction.
type FundingTxParams struct {
	// P2WSH address returned by DeriveAddress.
	HTLCAddress string

	// Satoshis locked in the HTLC. The difference to UTXO.Value is the
	// miner fee; no change output is created.
	Amount uint64

	UTXO        UTXO
	Signer      Signer
	ChainParams *chaincfg.Params
	Logger      *logging.Logger
}

// BuildFundingTx spends a single P2WPKH output into the HTLC address.
//
// Witness structure: [signature, pubkey]
func BuildFundingTx(params *FundingTxParams) (*wire.MsgTx, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: nil params", ErrInvalidUTXO)
	}
	log := loggerOrDefault(params.Logger)

	pubKey, _, err := signerPubKey(params.Signer)
	if err != nil {
		return nil, err
	}

	pkScript := P2WPKHPkScript(pubKey)
	if len(params.UTXO.PkScript) != 0 && !bytes.Equal(params.UTXO.PkScript, pkScript) {
		return nil, fmt.Errorf("%w: output script %x is not P2WPKH for the signer key",
			ErrInvalidUTXO, params.UTXO.PkScript)
	}
	if params.UTXO.Value == 0 || params.UTXO.Value > btcutil.MaxSatoshi {
		return nil, fmt.Errorf("%w: value %d out of range", ErrInvalidUTXO, params.UTXO.Value)
	}
	if params.Amount == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInsufficientFunds)
	}
	if params.Amount > params.UTXO.Value {
		return nil, fmt.Errorf("%w: amount %d exceeds UTXO value %d",
			ErrInsufficientFunds, params.Amount, params.UTXO.Value)
	}

	if _, err := DecodeWitnessProgram(params.HTLCAddress, params.ChainParams); err != nil {
		return nil, err
	}
	htlcPkScript, err := AddressToPkScript(params.HTLCAddress, params.ChainParams)
	if err != nil {
		return nil, err
	}

	outpoint, err := newOutPoint(params.UTXO.TxID, params.UTXO.Vout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUTXO, err)
	}

	tx := wire.NewMsgTx(TxVersion)
	tx.AddTxIn(wire.NewTxIn(outpoint, nil, nil))
	tx.AddTxOut(wire.NewTxOut(int64(params.Amount), htlcPkScript))

	value := int64(params.UTXO.Value)
	sig, err := signWitnessInput(tx, pkScript, pkScript, value, params.Signer)
	if err != nil {
		return nil, err
	}
	tx.TxIn[0].Witness = wire.TxWitness{sig, pubKey}

	if err := VerifyInput(tx, 0, wire.NewTxOut(value, pkScript)); err != nil {
		return nil, err
	}

	log.Debug("Built HTLC funding transaction",
		"txid", tx.TxHash(),
		"address", params.HTLCAddress,
		"amount", params.Amount,
		"fee", params.UTXO.Value-params.Amount)

	return tx, nil
}

// ClaimTxParams contains parameters for creating a claim transaction.
type ClaimTxParams struct {
	// HTLC witness script.
	Script LockingScript

	// Input (the P2WSH HTLC output to spend)
	FundingTxID string
	FundingVout uint32
	Amount      uint64

	// Output address for claimed funds
	DestAddress string

	// Preimage of the script's secret hash.
	Secret []byte

	// Signer for the script's recipient key.
	Signer Signer

	// Absolute fee in satoshis. Zero selects DefaultClaimFee.
	Fee uint64

	ChainParams *chaincfg.Params
	Logger      *logging.Logger
}

// BuildClaimTx spends an HTLC output through the secret branch.
//
// Witness structure: [signature, secret, 0x01, script]
func BuildClaimTx(params *ClaimTxParams) (*wire.MsgTx, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: nil params", ErrInvalidScript)
	}
	log := loggerOrDefault(params.Logger)

	details, err := ParseScript(params.Script)
	if err != nil {
		return nil, err
	}
	if !VerifySecret(params.Secret, details.SecretHash) {
		return nil, ErrSecretMismatch
	}
	pubKey, _, err := signerPubKey(params.Signer)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(pubKey, details.RecipientPubKey) {
		return nil, fmt.Errorf("%w: signer is not the recipient", ErrKeyMismatch)
	}

	fee := params.Fee
	if fee == 0 {
		fee = DefaultClaimFee
	}

	tx, err := buildSpend(&spendParams{
		script:      params.Script,
		fundingTxID: params.FundingTxID,
		fundingVout: params.FundingVout,
		amount:      params.Amount,
		fee:         fee,
		destAddress: params.DestAddress,
		sequence:    wire.MaxTxInSequenceNum,
		lockTime:    0,
		chainParams: params.ChainParams,
		signer:      params.Signer,
		witness: func(sig []byte) wire.TxWitness {
			return ClaimWitness(sig, params.Secret, params.Script)
		},
		log: log,
	})
	if err != nil {
		return nil, err
	}

	log.Debug("Built HTLC claim transaction",
		"txid", tx.TxHash(),
		"funding", fmt.Sprintf("%s:%d", params.FundingTxID, params.FundingVout),
		"amount", params.Amount-fee,
		"fee", fee)

	return tx, nil
}

// RefundTxParams contains parameters for creating a refund transaction.
type RefundTxParams struct {
	// HTLC witness script.
	Script LockingScript

	// Input (the P2WSH HTLC output to spend)
	FundingTxID string
	FundingVout uint32
	Amount      uint64

	// Output address for refunded funds
	RefundAddress string

	// Signer for the script's refund key.
	Signer Signer

	// Absolute fee in satoshis. Zero selects DefaultRefundFee.
	Fee uint64

	// Transaction lock time. Zero selects the script's timelock; any
	// other value must be at least the timelock and of the same kind.
	LockTime uint32

	ChainParams *chaincfg.Params
	Logger      *logging.Logger
}

// BuildRefundTx spends an HTLC output through the timelock branch. The
// transaction is only valid in a block once the chain has reached its lock
// time; that is not checked here.
//
// Witness structure: [signature, <empty>, script]
func BuildRefundTx(params *RefundTxParams) (*wire.MsgTx, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: nil params", ErrInvalidScript)
	}
	log := loggerOrDefault(params.Logger)

	details, err := ParseScript(params.Script)
	if err != nil {
		return nil, err
	}
	pubKey, _, err := signerPubKey(params.Signer)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(pubKey, details.RefundPubKey) {
		return nil, fmt.Errorf("%w: signer is not the refund key", ErrKeyMismatch)
	}

	lockTime := params.LockTime
	if lockTime == 0 {
		lockTime = details.Timelock
	}
	if KindOf(lockTime) != details.Kind() {
		return nil, fmt.Errorf("%w: lock time %d is a %s but the script timelock %d is a %s",
			ErrLockTime, lockTime, KindOf(lockTime), details.Timelock, details.Kind())
	}
	if lockTime < details.Timelock {
		return nil, fmt.Errorf("%w: lock time %d is before script timelock %d",
			ErrLockTime, lockTime, details.Timelock)
	}

	fee := params.Fee
	if fee == 0 {
		fee = DefaultRefundFee
	}

	tx, err := buildSpend(&spendParams{
		script:      params.Script,
		fundingTxID: params.FundingTxID,
		fundingVout: params.FundingVout,
		amount:      params.Amount,
		fee:         fee,
		destAddress: params.RefundAddress,
		sequence:    RefundSequence,
		lockTime:    lockTime,
		chainParams: params.ChainParams,
		signer:      params.Signer,
		witness: func(sig []byte) wire.TxWitness {
			return RefundWitness(sig, params.Script)
		},
		log: log,
	})
	if err != nil {
		return nil, err
	}

	log.Debug("Built HTLC refund transaction",
		"txid", tx.TxHash(),
		"funding", fmt.Sprintf("%s:%d", params.FundingTxID, params.FundingVout),
		"amount", params.Amount-fee,
		"fee", fee,
		"locktime", lockTime)

	return tx, nil
}

// spendParams is the branch-independent part of a claim or refund.
type spendParams struct {
	script      LockingScript
	fundingTxID string
	fundingVout uint32
	amount      uint64
	fee         uint64
	destAddress string
	sequence    uint32
	lockTime    uint32
	chainParams *chaincfg.Params
	signer      Signer
	witness     func(sig []byte) wire.TxWitness
	log         *logging.Logger
}

// buildSpend assembles a one-input one-output transaction spending the
// P2WSH output of p.script, signs it and verifies the result.
func buildSpend(p *spendParams) (*wire.MsgTx, error) {
	if p.amount > btcutil.MaxSatoshi {
		return nil, fmt.Errorf("%w: amount %d out of range", ErrInsufficientFunds, p.amount)
	}
	if p.fee >= p.amount {
		return nil, fmt.Errorf("%w: amount %d <= fee %d", ErrInsufficientFunds, p.amount, p.fee)
	}

	destScript, err := AddressToPkScript(p.destAddress, p.chainParams)
	if err != nil {
		return nil, fmt.Errorf("invalid destination address: %w", err)
	}

	outpoint, err := newOutPoint(p.fundingTxID, p.fundingVout)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(TxVersion)
	tx.LockTime = p.lockTime

	txIn := wire.NewTxIn(outpoint, nil, nil)
	txIn.Sequence = p.sequence
	tx.AddTxIn(txIn)

	out := wire.NewTxOut(int64(p.amount-p.fee), destScript)
	if txrules.IsDustOutput(out, txrules.DefaultRelayFeePerKb) {
		p.log.Warn("HTLC spend output is dust and will not relay",
			"value", out.Value, "fee", p.fee)
	}
	tx.AddTxOut(out)

	witnessScript := p.script.Bytes()
	pkScript := P2WSHPkScript(p.script)
	value := int64(p.amount)

	sig, err := signWitnessInput(tx, witnessScript, pkScript, value, p.signer)
	if err != nil {
		return nil, err
	}
	tx.TxIn[0].Witness = p.witness(sig)

	if err := VerifyInput(tx, 0, wire.NewTxOut(value, pkScript)); err != nil {
		return nil, err
	}
	return tx, nil
}

// signWitnessInput computes the BIP143 SIGHASH_ALL digest of input 0 and
// returns the signature with the sighash byte appended. scriptCode is the
// witness script for P2WSH and the output script for P2WPKH.
func signWitnessInput(tx *wire.MsgTx, scriptCode, pkScript []byte, value int64, signer Signer) ([]byte, error) {
	fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, value)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	digest, err := txscript.CalcWitnessSigHash(scriptCode, sigHashes, txscript.SigHashAll, tx, 0, value)
	if err != nil {
		return nil, fmt.Errorf("%w: sighash: %v", ErrSigning, err)
	}
	return signDigest(signer, digest)
}

func newOutPoint(txid string, vout uint32) (*wire.OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil || len(txid) != chainhash.MaxHashStringSize {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTxID, txid)
	}
	return wire.NewOutPoint(hash, vout), nil
}

func loggerOrDefault(l *logging.Logger) *logging.Logger {
	if l != nil {
		return l
	}
	return logging.GetDefault().Component("htlc")
}

// SerializeTx serializes a transaction to lowercase hex.
func SerializeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// DeserializeTx deserializes a transaction from hex.
func DeserializeTx(hexStr string) (*wire.MsgTx, error) {
	data, err := helpers.DecodeHex(hexStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex: %v", ErrEncoding, err)
	}

	tx := wire.NewMsgTx(TxVersion)
	if err := tx.Deserialize(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return tx, nil
}
