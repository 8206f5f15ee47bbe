package htlc

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// VerifyInput executes the script of input idx against prevOut with the
// standard policy flags. A transaction that passes is accepted by a node
// validating the same rules, lock time maturity aside.
func VerifyInput(tx *wire.MsgTx, idx int, prevOut *wire.TxOut) error {
	if tx == nil || prevOut == nil {
		return fmt.Errorf("%w: nil transaction or previous output", ErrScriptExecution)
	}
	if idx < 0 || idx >= len(tx.TxIn) {
		return fmt.Errorf("%w: input %d out of range", ErrScriptExecution, idx)
	}

	fetcher := txscript.NewCannedPrevOutputFetcher(prevOut.PkScript, prevOut.Value)
	engine, err := txscript.NewEngine(
		prevOut.PkScript, tx, idx, txscript.StandardVerifyFlags,
		txscript.NewSigCache(10), txscript.NewTxSigHashes(tx, fetcher),
		prevOut.Value, fetcher,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrScriptExecution, err)
	}
	if err := engine.Execute(); err != nil {
		return fmt.Errorf("%w: %v", ErrScriptExecution, err)
	}
	return nil
}
