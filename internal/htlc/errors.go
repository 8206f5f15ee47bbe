package htlc

import "errors"

// HTLC errors. Builders wrap these with context; match with errors.Is.
var (
	ErrInvalidDetails    = errors.New("invalid HTLC details")
	ErrEncoding          = errors.New("encoding error")
	ErrInvalidScript     = errors.New("not a canonical HTLC script")
	ErrAddressDerivation = errors.New("address derivation failed")
	ErrInvalidUTXO       = errors.New("invalid UTXO")
	ErrInvalidTxID       = errors.New("invalid transaction ID")
	ErrSigning           = errors.New("signing failed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSecretMismatch    = errors.New("secret does not match secret hash")
	ErrKeyMismatch       = errors.New("signer key does not match script")
	ErrLockTime          = errors.New("invalid lock time")
	ErrScriptExecution   = errors.New("script execution failed")
	ErrSecretNotFound    = errors.New("secret not found in transaction")
)
