package htlc

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// WitnessAddress returns the P2WSH address committing to script.
func WitnessAddress(script LockingScript, params *chaincfg.Params) (*btcutil.AddressWitnessScriptHash, error) {
	if script.IsEmpty() {
		return nil, fmt.Errorf("%w: empty script", ErrAddressDerivation)
	}
	if params == nil {
		return nil, fmt.Errorf("%w: nil network parameters", ErrAddressDerivation)
	}

	program := script.Hash()
	addr, err := btcutil.NewAddressWitnessScriptHash(program[:], params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAddressDerivation, err)
	}
	return addr, nil
}

// DeriveAddress returns the bech32 P2WSH address for script on the given
// network. The same script and network always produce the same address.
func DeriveAddress(script LockingScript, params *chaincfg.Params) (string, error) {
	addr, err := WitnessAddress(script, params)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// DecodeWitnessProgram decodes a P2WSH address and returns its 32-byte
// witness program, which equals sha256 of the script it was derived from.
func DecodeWitnessProgram(address string, params *chaincfg.Params) ([]byte, error) {
	addr, err := decodeAddress(address, params)
	if err != nil {
		return nil, err
	}
	wsh, ok := addr.(*btcutil.AddressWitnessScriptHash)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a P2WSH address", ErrAddressDerivation, address)
	}
	return wsh.ScriptAddress(), nil
}

// P2WSHPkScript returns the output script OP_0 <sha256(script)>.
func P2WSHPkScript(script LockingScript) []byte {
	program := script.Hash()
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	builder.AddData(program[:])
	pkScript, _ := builder.Script()
	return pkScript
}

// P2WPKHPkScript returns OP_0 <hash160(pubKey)> for a compressed key.
func P2WPKHPkScript(pubKey []byte) []byte {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	builder.AddData(btcutil.Hash160(pubKey))
	pkScript, _ := builder.Script()
	return pkScript
}

// AddressToPkScript decodes an address for the given network and returns
// the output script paying to it.
func AddressToPkScript(address string, params *chaincfg.Params) ([]byte, error) {
	addr, err := decodeAddress(address, params)
	if err != nil {
		return nil, err
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAddressDerivation, err)
	}
	return pkScript, nil
}

func decodeAddress(address string, params *chaincfg.Params) (btcutil.Address, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: nil network parameters", ErrAddressDerivation)
	}
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %q: %v", ErrAddressDerivation, address, err)
	}
	if !addr.IsForNet(params) {
		return nil, fmt.Errorf("%w: %s is not for network %s", ErrAddressDerivation, address, params.Name)
	}
	return addr, nil
}
