package htlc

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Signer is the signing capability the builders depend on. Private key
// material stays inside the implementation.
type Signer interface {
	// PubKey returns the 33-byte compressed public key.
	PubKey() []byte

	// Sign signs a 32-byte digest and returns a DER encoded ECDSA
	// signature without a sighash type byte.
	Sign(digest []byte) ([]byte, error)

	// Verify checks a DER signature over digest against PubKey.
	Verify(digest, sig []byte) bool
}

// signerPubKey returns the signer's key after checking its encoding.
func signerPubKey(s Signer) ([]byte, *secp256k1.PublicKey, error) {
	if s == nil {
		return nil, nil, fmt.Errorf("%w: signer required", ErrSigning)
	}
	raw := s.PubKey()
	if err := validatePubKey("signer", raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return raw, pub, nil
}

// signDigest asks the signer for a signature over digest, checks it is a
// strict DER encoding that verifies, and appends SIGHASH_ALL.
func signDigest(s Signer, digest []byte) ([]byte, error) {
	_, pub, err := signerPubKey(s)
	if err != nil {
		return nil, err
	}

	der, err := s.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed signature: %v", ErrSigning, err)
	}
	if !bytes.Equal(sig.Serialize(), der) {
		return nil, fmt.Errorf("%w: non-canonical signature encoding", ErrSigning)
	}
	if !sig.Verify(digest, pub) || !s.Verify(digest, der) {
		return nil, fmt.Errorf("%w: signature does not verify", ErrSigning)
	}

	out := make([]byte, 0, len(der)+1)
	out = append(out, der...)
	return append(out, byte(txscript.SigHashAll)), nil
}
