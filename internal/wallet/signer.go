package wallet

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/klingon-exchange/klingon-htlc/internal/chain"
	"github.com/klingon-exchange/klingon-htlc/internal/htlc"
)

var _ htlc.Signer = (*PrivKeySigner)(nil)

// PrivKeySigner signs with an in-memory secp256k1 key. Signatures are
// deterministic (RFC6979) and low-S.
type PrivKeySigner struct {
	mu      sync.RWMutex
	privKey *btcec.PrivateKey
	pubKey  []byte
}

// NewPrivKeySigner wraps a private key.
func NewPrivKeySigner(privKey *btcec.PrivateKey) *PrivKeySigner {
	return &PrivKeySigner{
		privKey: privKey,
		pubKey:  privKey.PubKey().SerializeCompressed(),
	}
}

// SignerFromWIF decodes a WIF private key for the given chain.
func SignerFromWIF(wif string, params *chain.Params) (*PrivKeySigner, error) {
	privKey, err := WIFToPrivateKey(wif, params)
	if err != nil {
		return nil, err
	}
	return NewPrivKeySigner(privKey), nil
}

// PubKey returns the 33-byte compressed public key.
func (s *PrivKeySigner) PubKey() []byte {
	out := make([]byte, len(s.pubKey))
	copy(out, s.pubKey)
	return out
}

// Sign returns a DER signature over a 32-byte digest.
func (s *PrivKeySigner) Sign(digest []byte) ([]byte, error) {
	if len(digest) != chainhash.HashSize {
		return nil, fmt.Errorf("digest must be %d bytes, got %d", chainhash.HashSize, len(digest))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.privKey == nil {
		return nil, fmt.Errorf("signer has been zeroed")
	}
	return ecdsa.Sign(s.privKey, digest).Serialize(), nil
}

// Verify checks a DER signature over digest against the signer's key.
func (s *PrivKeySigner) Verify(digest, sig []byte) bool {
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	pub, err := btcec.ParsePubKey(s.pubKey)
	if err != nil {
		return false
	}
	return parsed.Verify(digest, pub)
}

// Zero wipes the private key. Later Sign calls fail.
func (s *PrivKeySigner) Zero() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.privKey != nil {
		s.privKey.Zero()
		s.privKey = nil
	}
}
