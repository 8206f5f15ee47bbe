// Package backend looks up chain data over block explorer REST APIs. It is
// read-only: it never sees private keys and never broadcasts.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klingon-exchange/klingon-htlc/internal/chain"
)

// Common errors
var (
	ErrNotConnected       = errors.New("backend not connected")
	ErrTxNotFound         = errors.New("transaction not found")
	ErrOutputNotFound     = errors.New("output not found")
	ErrAddressNotFound    = errors.New("address not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnsupportedBackend = errors.New("unsupported backend type")
)

// Type represents the backend type.
type Type string

const (
	TypeMempool Type = "mempool" // mempool.space API
	TypeEsplora Type = "esplora" // blockstream.info API
)

// UTXO represents an unspent transaction output.
type UTXO struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	Amount        uint64 `json:"value"`        // satoshis
	ScriptPubKey  string `json:"scriptpubkey"` // hex encoded
	Confirmations int64  `json:"confirmations"`
	BlockHeight   int64  `json:"block_height,omitempty"`
}

// TxOutput represents a transaction output.
type TxOutput struct {
	ScriptPubKey     string `json:"scriptpubkey"`
	ScriptPubKeyType string `json:"scriptpubkey_type,omitempty"`
	ScriptPubKeyAddr string `json:"scriptpubkey_address,omitempty"`
	Value            uint64 `json:"value"`
}

// Outspend reports whether an output has been spent and by which input.
type Outspend struct {
	Spent bool   `json:"spent"`
	TxID  string `json:"txid,omitempty"`
	Vin   uint32 `json:"vin,omitempty"`
}

// Backend defines the chain queries the HTLC tooling needs.
type Backend interface {
	// Type returns the backend type (mempool, esplora)
	Type() Type

	// Ping checks the API is reachable.
	Ping(ctx context.Context) error

	// GetOutput returns output vout of txID. Its script and value are what
	// a spending input commits to.
	GetOutput(ctx context.Context, txID string, vout uint32) (*TxOutput, error)

	// GetOutspend reports which transaction, if any, spent an output.
	GetOutspend(ctx context.Context, txID string, vout uint32) (*Outspend, error)

	GetAddressUTXOs(ctx context.Context, address string) ([]UTXO, error)
	GetRawTransaction(ctx context.Context, txID string) ([]byte, error)
	GetBlockHeight(ctx context.Context) (int64, error)
}

// Config contains backend configuration.
type Config struct {
	Type       Type   `yaml:"type"`
	MainnetURL string `yaml:"mainnet"`
	TestnetURL string `yaml:"testnet"`
	RegtestURL string `yaml:"regtest,omitempty"`

	// Optional settings
	Timeout int `yaml:"timeout,omitempty"` // seconds, default 30
}

// URL returns the endpoint for a network.
func (c *Config) URL(network chain.Network) string {
	switch network {
	case chain.Testnet:
		return c.TestnetURL
	case chain.Regtest:
		return c.RegtestURL
	default:
		return c.MainnetURL
	}
}

// DefaultConfigs returns default backend configurations for all supported chains.
func DefaultConfigs() map[string]*Config {
	return map[string]*Config{
		"BTC": {
			Type:       TypeMempool,
			MainnetURL: "https://mempool.space/api",
			TestnetURL: "https://mempool.space/testnet/api",
			RegtestURL: "http://127.0.0.1:3002",
		},
		"LTC": {
			Type:       TypeMempool,
			MainnetURL: "https://litecoinspace.org/api",
			TestnetURL: "https://litecoinspace.org/testnet/api",
		},
	}
}

// New creates the backend described by cfg for a network.
func New(cfg *Config, network chain.Network) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrUnsupportedBackend)
	}
	url := cfg.URL(network)
	if url == "" {
		return nil, fmt.Errorf("no %s backend URL configured", network)
	}

	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	switch cfg.Type {
	case TypeMempool, "":
		return NewMempoolBackend(url, timeout), nil
	case TypeEsplora:
		return NewEsploraBackend(url, timeout), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, cfg.Type)
	}
}
