// Package wallet provides BIP39/BIP84 key management and the signers the
// HTLC transaction builders use. Seeds are stored encrypted with Argon2id.
package wallet

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/tyler-smith/go-bip39"

	"github.com/klingon-exchange/klingon-htlc/internal/chain"
)

// keyPath identifies a leaf key m/purpose'/coin'/account'/change/index.
type keyPath struct {
	purpose, coinType, account, change, index uint32
}

// Wallet manages HD keys derived from a BIP39 seed.
type Wallet struct {
	masterKey *hdkeychain.ExtendedKey
	network   chain.Network
	mu        sync.Mutex

	cache map[keyPath]*hdkeychain.ExtendedKey
}

// GenerateMnemonic generates a new 24-word BIP39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256) // 256 bits = 24 words
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate mnemonic: %w", err)
	}

	return mnemonic, nil
}

// ValidateMnemonic checks if a mnemonic is valid.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// NewFromMnemonic creates a wallet from a BIP39 mnemonic.
// The passphrase is optional (can be empty string).
func NewFromMnemonic(mnemonic, passphrase string, network chain.Network) (*Wallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}

	seed := bip39.NewSeed(mnemonic, passphrase)
	defer SecureClear(seed)

	return NewFromSeed(seed, network)
}

// NewFromSeed creates a wallet from a raw BIP32 seed.
func NewFromSeed(seed []byte, network chain.Network) (*Wallet, error) {
	// The master key version bytes never reach an address; BTC params of
	// the same network are enough.
	params, ok := chain.Get("BTC", network)
	if !ok {
		return nil, fmt.Errorf("unsupported network: %s", network)
	}

	masterKey, err := hdkeychain.NewMaster(seed, params.ChainCfg())
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	return &Wallet{
		masterKey: masterKey,
		network:   network,
		cache:     make(map[keyPath]*hdkeychain.ExtendedKey),
	}, nil
}

// Network returns the wallet's network.
func (w *Wallet) Network() chain.Network {
	return w.network
}

// DeriveKey derives the key at m/purpose'/coin'/account'/change/index.
func (w *Wallet) DeriveKey(purpose, coinType, account, change, index uint32) (*hdkeychain.ExtendedKey, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	path := keyPath{purpose, coinType, account, change, index}
	if key, ok := w.cache[path]; ok {
		return key, nil
	}

	key := w.masterKey
	steps := []struct {
		name  string
		child uint32
	}{
		{"purpose", hdkeychain.HardenedKeyStart + purpose},
		{"coin", hdkeychain.HardenedKeyStart + coinType},
		{"account", hdkeychain.HardenedKeyStart + account},
		{"change", change},
		{"address", index},
	}
	for _, step := range steps {
		next, err := key.Derive(step.child)
		if err != nil {
			return nil, fmt.Errorf("failed to derive %s: %w", step.name, err)
		}
		key = next
	}

	w.cache[path] = key
	return key, nil
}

// DeriveKeyForChain derives a key using the chain's default purpose and
// coin type.
func (w *Wallet) DeriveKeyForChain(symbol string, account, change, index uint32) (*hdkeychain.ExtendedKey, error) {
	params, err := w.chainParams(symbol)
	if err != nil {
		return nil, err
	}
	if err := ValidateAccountIndex(account); err != nil {
		return nil, err
	}

	return w.DeriveKey(params.DefaultPurpose, params.CoinType, account, change, index)
}

// DerivePrivateKey derives a private key for a chain.
func (w *Wallet) DerivePrivateKey(symbol string, account, change, index uint32) (*btcec.PrivateKey, error) {
	key, err := w.DeriveKeyForChain(symbol, account, change, index)
	if err != nil {
		return nil, err
	}

	privKey, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get private key: %w", err)
	}

	return privKey, nil
}

// DerivePublicKey derives a public key for a chain.
func (w *Wallet) DerivePublicKey(symbol string, account, change, index uint32) (*btcec.PublicKey, error) {
	key, err := w.DeriveKeyForChain(symbol, account, change, index)
	if err != nil {
		return nil, err
	}

	pubKey, err := key.ECPubKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}

	return pubKey, nil
}

// DeriveAddress derives the P2WPKH address for a chain key.
func (w *Wallet) DeriveAddress(symbol string, account, change, index uint32) (string, error) {
	params, err := w.chainParams(symbol)
	if err != nil {
		return "", err
	}

	pubKey, err := w.DerivePublicKey(symbol, account, change, index)
	if err != nil {
		return "", err
	}

	return P2WPKHAddress(pubKey.SerializeCompressed(), params)
}

// Signer returns a signer for the key at the given position.
func (w *Wallet) Signer(symbol string, account, change, index uint32) (*PrivKeySigner, error) {
	privKey, err := w.DerivePrivateKey(symbol, account, change, index)
	if err != nil {
		return nil, err
	}
	return NewPrivKeySigner(privKey), nil
}

// GetDerivationPath returns the derivation path string for a chain.
func (w *Wallet) GetDerivationPath(symbol string, account, change, index uint32) (string, error) {
	params, err := w.chainParams(symbol)
	if err != nil {
		return "", err
	}

	return params.DerivationPathString(account, change, index), nil
}

// ClearCache drops all cached derived keys.
func (w *Wallet) ClearCache() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cache = make(map[keyPath]*hdkeychain.ExtendedKey)
}

func (w *Wallet) chainParams(symbol string) (*chain.Params, error) {
	params, ok := chain.Get(symbol, w.network)
	if !ok {
		return nil, fmt.Errorf("unsupported chain: %s/%s", symbol, w.network)
	}
	return params, nil
}
