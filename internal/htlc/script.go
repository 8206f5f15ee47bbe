// Package htlc compiles hash time locked contracts into P2WSH witness
// scripts and builds the funding, claim and refund transactions around them.
package htlc

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/txscript"

	"github.com/klingon-exchange/klingon-htlc/pkg/helpers"
)

// LockingScript is a compiled HTLC witness script. It is immutable: the
// underlying bytes are copied in and out.
type LockingScript struct {
	script []byte
}

// NewLockingScript wraps raw script bytes without validating them. Use
// ParseScript to check that they form an HTLC.
func NewLockingScript(b []byte) LockingScript {
	return LockingScript{script: helpers.CloneBytes(b)}
}

// ParseLockingScriptHex decodes a hex script.
func ParseLockingScriptHex(s string) (LockingScript, error) {
	b, err := helpers.DecodeHex(s)
	if err != nil {
		return LockingScript{}, fmt.Errorf("%w: invalid script hex: %v", ErrInvalidScript, err)
	}
	return LockingScript{script: b}, nil
}

// Bytes returns a copy of the script.
func (s LockingScript) Bytes() []byte { return helpers.CloneBytes(s.script) }

// Len returns the script length in bytes.
func (s LockingScript) Len() int { return len(s.script) }

// IsEmpty reports whether the script has no bytes.
func (s LockingScript) IsEmpty() bool { return len(s.script) == 0 }

// Hash returns sha256(script), the P2WSH witness program.
func (s LockingScript) Hash() [32]byte { return sha256.Sum256(s.script) }

// Hex returns the lowercase hex encoding of the script.
func (s LockingScript) Hex() string { return hex.EncodeToString(s.script) }

// Equal reports whether two scripts have identical bytes.
func (s LockingScript) Equal(o LockingScript) bool { return bytes.Equal(s.script, o.script) }

// String returns the script disassembly.
func (s LockingScript) String() string {
	dis, err := txscript.DisasmString(s.script)
	if err != nil {
		return s.Hex()
	}
	return dis
}

// Compile builds the HTLC witness script:
//
//	OP_IF
//	    OP_SHA256 <secret_hash> OP_EQUALVERIFY
//	    <recipient_pubkey> OP_CHECKSIG
//	OP_ELSE
//	    <timelock> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	    <refund_pubkey> OP_CHECKSIG
//	OP_ENDIF
//
// The timelock is pushed as a minimally encoded script number. Compile is
// deterministic: equal Details always yield byte-identical scripts.
func Compile(d *Details) (LockingScript, error) {
	if err := d.Validate(); err != nil {
		return LockingScript{}, err
	}

	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(d.SecretHash)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddData(d.RecipientPubKey)
	builder.AddOp(txscript.OP_CHECKSIG)

	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(int64(d.Timelock))
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(d.RefundPubKey)
	builder.AddOp(txscript.OP_CHECKSIG)

	builder.AddOp(txscript.OP_ENDIF)

	script, err := builder.Script()
	if err != nil {
		return LockingScript{}, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return LockingScript{script: script}, nil
}

// ParseScript recovers the Details a script was compiled from. Only the
// exact byte sequence Compile would produce is accepted, so non-minimal
// pushes or number encodings are rejected.
func ParseScript(s LockingScript) (*Details, error) {
	tok := txscript.MakeScriptTokenizer(0, s.script)

	expectOp := func(op byte) error {
		if !tok.Next() || tok.Opcode() != op {
			return fmt.Errorf("%w: expected %s at offset %d",
				ErrInvalidScript, opName(op), tok.ByteIndex())
		}
		return nil
	}
	expectPush := func(what string, size int) ([]byte, error) {
		if !tok.Next() || len(tok.Data()) != size {
			return nil, fmt.Errorf("%w: expected %d-byte %s", ErrInvalidScript, size, what)
		}
		return helpers.CloneBytes(tok.Data()), nil
	}

	d := &Details{}
	var err error

	if err = expectOp(txscript.OP_IF); err != nil {
		return nil, err
	}
	if err = expectOp(txscript.OP_SHA256); err != nil {
		return nil, err
	}
	if d.SecretHash, err = expectPush("secret hash", SecretHashSize); err != nil {
		return nil, err
	}
	if err = expectOp(txscript.OP_EQUALVERIFY); err != nil {
		return nil, err
	}
	if d.RecipientPubKey, err = expectPush("recipient pubkey", PubKeySize); err != nil {
		return nil, err
	}
	if err = expectOp(txscript.OP_CHECKSIG); err != nil {
		return nil, err
	}
	if err = expectOp(txscript.OP_ELSE); err != nil {
		return nil, err
	}

	if !tok.Next() {
		return nil, fmt.Errorf("%w: expected timelock", ErrInvalidScript)
	}
	if op := tok.Opcode(); txscript.IsSmallInt(op) {
		d.Timelock = uint32(txscript.AsSmallInt(op))
	} else {
		lockTime, err := decodeScriptNum(tok.Data(), 4)
		if err != nil {
			return nil, err
		}
		d.Timelock = uint32(lockTime)
	}

	if err = expectOp(txscript.OP_CHECKLOCKTIMEVERIFY); err != nil {
		return nil, err
	}
	if err = expectOp(txscript.OP_DROP); err != nil {
		return nil, err
	}
	if d.RefundPubKey, err = expectPush("refund pubkey", PubKeySize); err != nil {
		return nil, err
	}
	if err = expectOp(txscript.OP_CHECKSIG); err != nil {
		return nil, err
	}
	if err = expectOp(txscript.OP_ENDIF); err != nil {
		return nil, err
	}
	if tok.Next() || tok.Err() != nil {
		return nil, fmt.Errorf("%w: trailing data after OP_ENDIF", ErrInvalidScript)
	}

	canonical, err := Compile(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	if !canonical.Equal(s) {
		return nil, fmt.Errorf("%w: non-minimal encoding", ErrInvalidScript)
	}
	return d, nil
}

// decodeScriptNum decodes a little-endian sign-magnitude script number of
// at most maxLen bytes. Negative values are rejected.
func decodeScriptNum(data []byte, maxLen int) (int64, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: expected timelock push", ErrInvalidScript)
	}
	if len(data) > maxLen {
		return 0, fmt.Errorf("%w: timelock push of %d bytes exceeds %d",
			ErrInvalidScript, len(data), maxLen)
	}

	var v int64
	for i, b := range data {
		v |= int64(b) << (8 * i)
	}
	if data[len(data)-1]&0x80 != 0 {
		return 0, fmt.Errorf("%w: negative timelock", ErrInvalidScript)
	}
	return v, nil
}

func opName(op byte) string {
	switch op {
	case txscript.OP_IF:
		return "OP_IF"
	case txscript.OP_SHA256:
		return "OP_SHA256"
	case txscript.OP_EQUALVERIFY:
		return "OP_EQUALVERIFY"
	case txscript.OP_CHECKSIG:
		return "OP_CHECKSIG"
	case txscript.OP_ELSE:
		return "OP_ELSE"
	case txscript.OP_CHECKLOCKTIMEVERIFY:
		return "OP_CHECKLOCKTIMEVERIFY"
	case txscript.OP_DROP:
		return "OP_DROP"
	case txscript.OP_ENDIF:
		return "OP_ENDIF"
	}
	return fmt.Sprintf("0x%02x", op)
}
