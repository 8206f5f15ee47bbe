package htlc

import (
	"crypto/sha256"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"

	"github.com/klingon-exchange/klingon-htlc/pkg/helpers"
)

const (
	// SecretHashSize is the length of the SHA-256 secret hash.
	SecretHashSize = sha256.Size

	// PubKeySize is the length of a compressed secp256k1 public key.
	PubKeySize = btcec.PubKeyBytesLenCompressed

	// MaxTimelock is the largest timelock whose minimal script number
	// encoding fits in the four bytes CHECKLOCKTIMEVERIFY operands use
	// without a sign extension byte.
	MaxTimelock = math.MaxInt32

	// SecretSize is the length of secrets produced by GenerateSecret.
	SecretSize = 32
)

// Details holds the parameters an HTLC is compiled from.
type Details struct {
	// SHA-256 hash of the secret that unlocks the claim branch.
	SecretHash []byte

	// Compressed key of the party that can claim with the secret.
	RecipientPubKey []byte

	// Compressed key of the funder, who can refund after Timelock.
	RefundPubKey []byte

	// Absolute lock time: a block height below 500,000,000, a Unix
	// timestamp otherwise.
	Timelock uint32
}

// Validate checks field lengths, key encodings and the timelock range.
func (d *Details) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil details", ErrInvalidDetails)
	}
	if len(d.SecretHash) != SecretHashSize {
		return fmt.Errorf("%w: secret hash must be %d bytes, got %d",
			ErrInvalidDetails, SecretHashSize, len(d.SecretHash))
	}
	if err := validatePubKey("recipient", d.RecipientPubKey); err != nil {
		return err
	}
	if err := validatePubKey("refund", d.RefundPubKey); err != nil {
		return err
	}
	if d.Timelock > MaxTimelock {
		return fmt.Errorf("%w: timelock %d exceeds %d", ErrEncoding, d.Timelock, MaxTimelock)
	}
	return nil
}

// Kind reports whether the timelock is a block height or a timestamp.
func (d *Details) Kind() LockTimeKind {
	return KindOf(d.Timelock)
}

func validatePubKey(role string, key []byte) error {
	if len(key) != PubKeySize {
		return fmt.Errorf("%w: %s pubkey must be %d bytes (compressed), got %d",
			ErrInvalidDetails, role, PubKeySize, len(key))
	}
	if key[0] != 0x02 && key[0] != 0x03 {
		return fmt.Errorf("%w: %s pubkey is not compressed", ErrInvalidDetails, role)
	}
	if _, err := btcec.ParsePubKey(key); err != nil {
		return fmt.Errorf("%w: %s pubkey: %v", ErrInvalidDetails, role, err)
	}
	return nil
}

// LockTimeKind distinguishes the two interpretations of an absolute lock time.
type LockTimeKind int

const (
	LockTimeBlockHeight LockTimeKind = iota
	LockTimeTimestamp
)

// KindOf classifies a lock time using the consensus threshold.
func KindOf(lockTime uint32) LockTimeKind {
	if lockTime < txscript.LockTimeThreshold {
		return LockTimeBlockHeight
	}
	return LockTimeTimestamp
}

func (k LockTimeKind) String() string {
	if k == LockTimeTimestamp {
		return "timestamp"
	}
	return "block height"
}

// GenerateSecret returns a random 32-byte secret and its SHA-256 hash.
func GenerateSecret() (secret, hash []byte, err error) {
	secret, err = helpers.GenerateSecureRandom(SecretSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate secret: %w", err)
	}

	h := sha256.Sum256(secret)
	return secret, h[:], nil
}

// VerifySecret reports whether sha256(secret) equals expectedHash.
func VerifySecret(secret, expectedHash []byte) bool {
	if len(secret) == 0 || len(expectedHash) != SecretHashSize {
		return false
	}
	h := sha256.Sum256(secret)
	return helpers.ConstantTimeCompare(h[:], expectedHash)
}
