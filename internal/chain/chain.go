// Package chain defines network parameters and derivation paths for the
// Bitcoin-family chains an HTLC can be deployed on.
package chain

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network identifies mainnet, testnet or a local regression network.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Regtest Network = "regtest"
)

// ParseNetwork converts a configuration string into a Network.
func ParseNetwork(s string) (Network, error) {
	switch Network(s) {
	case Mainnet, Testnet, Regtest:
		return Network(s), nil
	default:
		return "", fmt.Errorf("unknown network: %q", s)
	}
}

// Params contains the address and key encoding parameters of a chain.
type Params struct {
	// Identity
	Symbol   string  // BTC, LTC
	Name     string  // Bitcoin, Litecoin Testnet, ...
	Network  Network // mainnet, testnet, regtest
	Decimals uint8

	// BIP44 derivation
	CoinType       uint32 // 0=BTC, 2=LTC, 1 for every test network
	DefaultPurpose uint32 // 84 (native SegWit)

	// Address encoding
	PubKeyHashAddrID byte
	ScriptHashAddrID byte
	Bech32HRP        string
	WIF              byte

	// BIP32 extended key magic
	HDPrivateKeyID [4]byte
	HDPublicKeyID  [4]byte

	// base is the btcd parameter set the chain is derived from. Chains
	// btcd does not ship (Litecoin) clone it and override the encodings.
	base *chaincfg.Params
}

// ChainCfg returns btcd network parameters carrying this chain's address,
// WIF and extended key encodings.
func (p *Params) ChainCfg() *chaincfg.Params {
	base := p.base
	if base == nil {
		base = &chaincfg.MainNetParams
	}
	if p.Symbol == "BTC" {
		return base
	}

	cfg := *base
	cfg.Name = p.Name
	cfg.Bech32HRPSegwit = p.Bech32HRP
	cfg.PubKeyHashAddrID = p.PubKeyHashAddrID
	cfg.ScriptHashAddrID = p.ScriptHashAddrID
	cfg.PrivateKeyID = p.WIF
	cfg.HDPrivateKeyID = p.HDPrivateKeyID
	cfg.HDPublicKeyID = p.HDPublicKeyID
	return &cfg
}

// DerivationPath returns the BIP84 path m/purpose'/coin'/account'/change/index.
func (p *Params) DerivationPath(account, change, index uint32) []uint32 {
	return []uint32{
		p.DefaultPurpose + 0x80000000,
		p.CoinType + 0x80000000,
		account + 0x80000000,
		change,
		index,
	}
}

// DerivationPathString returns the derivation path in its textual form.
func (p *Params) DerivationPathString(account, change, index uint32) string {
	return "m/" +
		strconv.FormatUint(uint64(p.DefaultPurpose), 10) + "'/" +
		strconv.FormatUint(uint64(p.CoinType), 10) + "'/" +
		strconv.FormatUint(uint64(account), 10) + "'/" +
		strconv.FormatUint(uint64(change), 10) + "/" +
		strconv.FormatUint(uint64(index), 10)
}

var registry = make(map[string]map[Network]*Params)

// Register adds chain params to the registry.
func Register(symbol string, network Network, params *Params) {
	if registry[symbol] == nil {
		registry[symbol] = make(map[Network]*Params)
	}
	params.Network = network
	registry[symbol][network] = params
}

// Get returns chain params for a symbol and network.
func Get(symbol string, network Network) (*Params, bool) {
	nets, ok := registry[symbol]
	if !ok {
		return nil, false
	}
	params, ok := nets[network]
	return params, ok
}

// MustGet is Get for symbol/network pairs known to be registered.
func MustGet(symbol string, network Network) *Params {
	params, ok := Get(symbol, network)
	if !ok {
		panic(fmt.Sprintf("chain %s/%s not registered", symbol, network))
	}
	return params
}

// List returns all registered chain symbols in sorted order.
func List() []string {
	symbols := make([]string, 0, len(registry))
	for symbol := range registry {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// IsSupported returns true if the chain is registered.
func IsSupported(symbol string) bool {
	_, ok := registry[symbol]
	return ok
}
