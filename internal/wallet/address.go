package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/klingon-exchange/klingon-htlc/internal/chain"
)

// AddressType names the output type an address pays to.
type AddressType string

const (
	AddressP2PKH   AddressType = "p2pkh"
	AddressP2SH    AddressType = "p2sh"
	AddressP2WPKH  AddressType = "p2wpkh"
	AddressP2WSH   AddressType = "p2wsh"
	AddressP2TR    AddressType = "p2tr"
	AddressUnknown AddressType = "unknown"
)

// P2WPKHAddress returns the native SegWit address (bc1q..., ltc1q...) of a
// compressed public key.
func P2WPKHAddress(pubKey []byte, params *chain.Params) (string, error) {
	if _, err := btcec.ParsePubKey(pubKey); err != nil || len(pubKey) != btcec.PubKeyBytesLenCompressed {
		return "", fmt.Errorf("invalid compressed public key")
	}

	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pubKey), params.ChainCfg())
	if err != nil {
		return "", fmt.Errorf("failed to create P2WPKH address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

// ValidateAddress checks if an address is valid for a chain/network.
func ValidateAddress(address string, params *chain.Params) bool {
	_, _, err := ParseAddress(address, params)
	return err == nil
}

// ParseAddress decodes a Bitcoin-family address and reports its type.
func ParseAddress(address string, params *chain.Params) (btcutil.Address, AddressType, error) {
	cfg := params.ChainCfg()

	decoded, err := btcutil.DecodeAddress(address, cfg)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode address: %w", err)
	}
	if !decoded.IsForNet(cfg) {
		return nil, "", fmt.Errorf("address %s is not for %s", address, params.Name)
	}

	var addrType AddressType
	switch decoded.(type) {
	case *btcutil.AddressPubKeyHash:
		addrType = AddressP2PKH
	case *btcutil.AddressScriptHash:
		addrType = AddressP2SH
	case *btcutil.AddressWitnessPubKeyHash:
		addrType = AddressP2WPKH
	case *btcutil.AddressWitnessScriptHash:
		addrType = AddressP2WSH
	case *btcutil.AddressTaproot:
		addrType = AddressP2TR
	default:
		addrType = AddressUnknown
	}

	return decoded, addrType, nil
}

// PrivateKeyToWIF converts a private key to Wallet Import Format.
func PrivateKeyToWIF(privKey *btcec.PrivateKey, params *chain.Params) (string, error) {
	wif, err := btcutil.NewWIF(privKey, params.ChainCfg(), true)
	if err != nil {
		return "", fmt.Errorf("failed to create WIF: %w", err)
	}
	return wif.String(), nil
}

// WIFToPrivateKey converts a WIF string to a private key. Only compressed
// keys are accepted since witness outputs require them.
func WIFToPrivateKey(wifStr string, params *chain.Params) (*btcec.PrivateKey, error) {
	wif, err := btcutil.DecodeWIF(wifStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode WIF: %w", err)
	}

	if !wif.IsForNet(params.ChainCfg()) {
		return nil, fmt.Errorf("WIF is for different network")
	}
	if !wif.CompressPubKey {
		return nil, fmt.Errorf("WIF encodes an uncompressed key")
	}

	return wif.PrivKey, nil
}
