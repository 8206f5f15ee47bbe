package htlc

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/klingon-exchange/klingon-htlc/pkg/helpers"
)

// ExtractSecret scans the inputs of a spending transaction for a preimage
// of secretHash. Both witness items and signature script pushes are
// searched, so legacy P2SH spends are covered as well.
func ExtractSecret(tx *wire.MsgTx, secretHash []byte) ([]byte, error) {
	if tx == nil || len(secretHash) != SecretHashSize {
		return nil, ErrSecretNotFound
	}

	for _, in := range tx.TxIn {
		for _, item := range in.Witness {
			if matchesHash(item, secretHash) {
				return helpers.CloneBytes(item), nil
			}
		}

		if len(in.SignatureScript) == 0 {
			continue
		}
		pushes, err := txscript.PushedData(in.SignatureScript)
		if err != nil {
			continue
		}
		for _, item := range pushes {
			if matchesHash(item, secretHash) {
				return helpers.CloneBytes(item), nil
			}
		}
	}
	return nil, ErrSecretNotFound
}

func matchesHash(item, hash []byte) bool {
	if len(item) == 0 {
		return false
	}
	sum := sha256.Sum256(item)
	return helpers.ConstantTimeCompare(sum[:], hash)
}
