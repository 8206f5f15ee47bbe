package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"

	"github.com/klingon-exchange/klingon-htlc/internal/backend"
	"github.com/klingon-exchange/klingon-htlc/internal/chain"
	"github.com/klingon-exchange/klingon-htlc/internal/htlc"
)

// SeedFileName is the encrypted keystore written to the data directory.
const SeedFileName = "wallet.seed"

// ErrWalletLocked is returned when a key is requested before LoadWallet.
var ErrWalletLocked = errors.New("wallet not loaded")

// Service manages wallet operations and lifecycle.
type Service struct {
	wallet  *Wallet
	dataDir string
	network chain.Network

	// Optional, needed only for funding lookups
	backend backend.Backend

	mu sync.RWMutex
}

// ServiceConfig holds configuration for the wallet service.
type ServiceConfig struct {
	DataDir string
	Network chain.Network
	Backend backend.Backend
}

// NewService creates a new wallet service.
func NewService(cfg *ServiceConfig) *Service {
	if cfg == nil {
		cfg = &ServiceConfig{}
	}

	network := cfg.Network
	if network == "" {
		network = chain.Mainnet
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "."
	}

	return &Service{
		dataDir: dataDir,
		network: network,
		backend: cfg.Backend,
	}
}

func (s *Service) seedPath() string {
	return filepath.Join(s.dataDir, SeedFileName)
}

// CreateWallet creates a wallet from a mnemonic and writes it encrypted to
// the data directory.
func (s *Service) CreateWallet(mnemonic, passphrase, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !ValidateMnemonic(mnemonic) {
		return fmt.Errorf("invalid mnemonic")
	}
	if err := ValidatePassword(password); err != nil {
		return fmt.Errorf("weak password: %w", err)
	}

	wallet, err := NewFromMnemonic(mnemonic, passphrase, s.network)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}

	encrypted, err := EncryptMnemonic(mnemonic, password)
	if err != nil {
		return fmt.Errorf("failed to encrypt seed: %w", err)
	}
	if err := SaveEncryptedSecret(encrypted, s.seedPath()); err != nil {
		return fmt.Errorf("failed to save seed: %w", err)
	}

	s.wallet = wallet
	return nil
}

// LoadWallet decrypts the keystore and unlocks the wallet.
func (s *Service) LoadWallet(password, passphrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encrypted, err := LoadEncryptedSecret(s.seedPath())
	if err != nil {
		return fmt.Errorf("failed to load encrypted seed: %w", err)
	}
	if encrypted.Kind != SecretMnemonic {
		return fmt.Errorf("keystore holds a %s, not a mnemonic", encrypted.Kind)
	}

	mnemonic, err := encrypted.Decrypt(password)
	if err != nil {
		return fmt.Errorf("failed to decrypt seed: %w", err)
	}

	wallet, err := NewFromMnemonic(mnemonic, passphrase, s.network)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}

	s.wallet = wallet
	return nil
}

// IsUnlocked returns true if the wallet is loaded.
func (s *Service) IsUnlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wallet != nil
}

// HasWallet returns true if a keystore exists in the data directory.
func (s *Service) HasWallet() bool {
	_, err := os.Stat(s.seedPath())
	return err == nil
}

// Lock drops the wallet from memory.
func (s *Service) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wallet != nil {
		s.wallet.ClearCache()
		s.wallet = nil
	}
}

// Network returns the wallet network.
func (s *Service) Network() chain.Network {
	return s.network
}

func (s *Service) unlocked() (*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.wallet == nil {
		return nil, ErrWalletLocked
	}
	return s.wallet, nil
}

// GetAddress returns the P2WPKH address at the given position.
func (s *Service) GetAddress(symbol string, account, change, index uint32) (string, error) {
	w, err := s.unlocked()
	if err != nil {
		return "", err
	}
	return w.DeriveAddress(symbol, account, change, index)
}

// GetPublicKey returns the compressed public key at the given position.
func (s *Service) GetPublicKey(symbol string, account, change, index uint32) ([]byte, error) {
	w, err := s.unlocked()
	if err != nil {
		return nil, err
	}
	pubKey, err := w.DerivePublicKey(symbol, account, change, index)
	if err != nil {
		return nil, err
	}
	return pubKey.SerializeCompressed(), nil
}

// GetDerivationPath returns the derivation path for a chain.
func (s *Service) GetDerivationPath(symbol string, account, change, index uint32) (string, error) {
	w, err := s.unlocked()
	if err != nil {
		return "", err
	}
	return w.GetDerivationPath(symbol, account, change, index)
}

// Signer returns a signer for the key at the given position. Callers
// should Zero it when done.
func (s *Service) Signer(symbol string, account, change, index uint32) (*PrivKeySigner, error) {
	w, err := s.unlocked()
	if err != nil {
		return nil, err
	}
	return w.Signer(symbol, account, change, index)
}

// FundingUTXO looks up an output and checks that it pays to the signer's
// P2WPKH script, so it can be spent by htlc.BuildFundingTx.
func (s *Service) FundingUTXO(ctx context.Context, txID string, vout uint32, signer htlc.Signer) (htlc.UTXO, error) {
	if s.backend == nil {
		return htlc.UTXO{}, fmt.Errorf("no backend configured")
	}

	out, err := s.backend.GetOutput(ctx, txID, vout)
	if err != nil {
		return htlc.UTXO{}, fmt.Errorf("failed to get output %s:%d: %w", txID, vout, err)
	}

	pkScript, err := hex.DecodeString(out.ScriptPubKey)
	if err != nil {
		return htlc.UTXO{}, fmt.Errorf("invalid output script: %w", err)
	}

	wantScript, err := p2wpkhScript(signer.PubKey())
	if err != nil {
		return htlc.UTXO{}, err
	}
	if !bytes.Equal(pkScript, wantScript) {
		return htlc.UTXO{}, fmt.Errorf("%w: output %s:%d does not pay to this key", htlc.ErrInvalidUTXO, txID, vout)
	}

	return htlc.UTXO{
		TxID:     txID,
		Vout:     vout,
		Value:    out.Value,
		PkScript: pkScript,
	}, nil
}

// SelectFundingUTXO picks an output of the signer's P2WPKH address that
// covers amount. Confirmed outputs are preferred, then the smallest value.
func (s *Service) SelectFundingUTXO(ctx context.Context, symbol string, signer htlc.Signer, amount uint64) (htlc.UTXO, error) {
	if s.backend == nil {
		return htlc.UTXO{}, fmt.Errorf("no backend configured")
	}
	params, ok := chain.Get(symbol, s.network)
	if !ok {
		return htlc.UTXO{}, fmt.Errorf("unsupported chain: %s on %s", symbol, s.network)
	}

	address, err := P2WPKHAddress(signer.PubKey(), params)
	if err != nil {
		return htlc.UTXO{}, err
	}
	utxos, err := s.backend.GetAddressUTXOs(ctx, address)
	if err != nil {
		return htlc.UTXO{}, fmt.Errorf("failed to list outputs of %s: %w", address, err)
	}

	var best *backend.UTXO
	for i := range utxos {
		u := &utxos[i]
		if u.Amount < amount {
			continue
		}
		if best == nil || betterFundingUTXO(u, best) {
			best = u
		}
	}
	if best == nil {
		return htlc.UTXO{}, fmt.Errorf("%w: no output of %s covers %d", htlc.ErrInsufficientFunds, address, amount)
	}

	pkScript, err := p2wpkhScript(signer.PubKey())
	if err != nil {
		return htlc.UTXO{}, err
	}
	return htlc.UTXO{
		TxID:     best.TxID,
		Vout:     best.Vout,
		Value:    best.Amount,
		PkScript: pkScript,
	}, nil
}

func betterFundingUTXO(a, b *backend.UTXO) bool {
	aConf, bConf := a.Confirmations > 0, b.Confirmations > 0
	if aConf != bConf {
		return aConf
	}
	return a.Amount < b.Amount
}

func p2wpkhScript(pubKey []byte) ([]byte, error) {
	if len(pubKey) != 33 {
		return nil, fmt.Errorf("invalid compressed public key")
	}
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(btcutil.Hash160(pubKey)).
		Script()
}
