package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/btcsuite/btcd/wire"

	"github.com/klingon-exchange/klingon-htlc/internal/config"
	"github.com/klingon-exchange/klingon-htlc/internal/htlc"
	"github.com/klingon-exchange/klingon-htlc/internal/storage"
	"github.com/klingon-exchange/klingon-htlc/internal/wallet"
	"github.com/klingon-exchange/klingon-htlc/pkg/helpers"
)

// passwordEnv is read when -password is not given.
const passwordEnv = "HTLCSWAP_PASSWORD"

// keyFlags select the signing key: a WIF, or a wallet key position.
type keyFlags struct {
	wif      *string
	password *string
	account  *uint
	change   *uint
	index    *uint
}

func registerKeyFlags(fs *flag.FlagSet) *keyFlags {
	return &keyFlags{
		wif:      fs.String("wif", "", "Sign with this WIF key instead of the wallet"),
		password: fs.String("password", "", "Wallet password (default: $"+passwordEnv+")"),
		account:  fs.Uint("account", 0, "Wallet account"),
		change:   fs.Uint("change", 0, "Wallet change branch (0 external, 1 internal)"),
		index:    fs.Uint("index", 0, "Wallet address index"),
	}
}

func (k *keyFlags) passwordValue() string {
	if *k.password != "" {
		return *k.password
	}
	return os.Getenv(passwordEnv)
}

// signer returns the selected key. Callers Zero it when done.
func (k *keyFlags) signer(e *env) (*wallet.PrivKeySigner, error) {
	if *k.wif != "" {
		return wallet.SignerFromWIF(*k.wif, e.params)
	}

	password := k.passwordValue()
	if password == "" {
		return nil, fmt.Errorf("either -wif or a wallet password is required")
	}

	svc := e.WalletService()
	if err := svc.LoadWallet(password, ""); err != nil {
		return nil, err
	}
	defer svc.Lock()

	return svc.Signer(e.cfg.Symbol, uint32(*k.account), uint32(*k.change), uint32(*k.index))
}

// scriptFlags select an HTLC: a stored contract, or a raw script.
type scriptFlags struct {
	contract *string
	script   *string
}

func registerScriptFlags(fs *flag.FlagSet) *scriptFlags {
	return &scriptFlags{
		contract: fs.String("contract", "", "Stored contract ID or address"),
		script:   fs.String("script", "", "HTLC script (hex)"),
	}
}

// resolve returns the script and, when it came from storage, its contract.
func (s *scriptFlags) resolve(e *env) (htlc.LockingScript, *storage.Contract, error) {
	if *s.contract != "" {
		c, err := e.findContract(*s.contract)
		if err != nil {
			return htlc.LockingScript{}, nil, err
		}
		script, err := htlc.ParseLockingScriptHex(c.Script)
		if err != nil {
			return htlc.LockingScript{}, nil, err
		}
		return script, c, nil
	}

	if *s.script == "" {
		return htlc.LockingScript{}, nil, fmt.Errorf("-contract or -script is required")
	}
	script, err := htlc.ParseLockingScriptHex(*s.script)
	if err != nil {
		return htlc.LockingScript{}, nil, err
	}

	// A script compiled earlier may already be in the book
	if store, err := e.Store(); err == nil {
		if address, err := htlc.DeriveAddress(script, e.params.ChainCfg()); err == nil {
			if c, err := store.GetContractByAddress(address); err == nil {
				return script, c, nil
			}
		}
	}
	return script, nil, nil
}

func (e *env) findContract(ref string) (*storage.Contract, error) {
	store, err := e.Store()
	if err != nil {
		return nil, err
	}
	c, err := store.GetContract(ref)
	if errors.Is(err, storage.ErrContractNotFound) {
		c, err = store.GetContractByAddress(ref)
	}
	return c, err
}

// fundingFlags locate the HTLC output.
type fundingFlags struct {
	outpoint *string
	amount   *uint64
}

func registerFundingFlags(fs *flag.FlagSet) *fundingFlags {
	return &fundingFlags{
		outpoint: fs.String("funding", "", "HTLC output as txid:vout (default: from contract)"),
		amount:   fs.Uint64("amount", 0, "HTLC output value in satoshis (default: from contract)"),
	}
}

func (f *fundingFlags) resolve(c *storage.Contract) (string, uint32, uint64, error) {
	if *f.outpoint != "" {
		txid, vout, err := parseOutpoint(*f.outpoint)
		if err != nil {
			return "", 0, 0, err
		}
		amount := *f.amount
		if amount == 0 && c != nil && c.FundingTxID == txid && c.FundingVout == vout {
			amount = c.Amount
		}
		if amount == 0 {
			return "", 0, 0, fmt.Errorf("-amount is required")
		}
		return txid, vout, amount, nil
	}

	if c == nil || c.FundingTxID == "" {
		return "", 0, 0, fmt.Errorf("-funding is required")
	}
	amount := c.Amount
	if *f.amount != 0 {
		amount = *f.amount
	}
	return c.FundingTxID, c.FundingVout, amount, nil
}

func parseOutpoint(s string) (string, uint32, error) {
	txid, voutStr, ok := strings.Cut(s, ":")
	if !ok {
		return "", 0, fmt.Errorf("outpoint %q must be txid:vout", s)
	}
	vout, err := strconv.ParseUint(voutStr, 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("invalid vout in %q: %w", s, err)
	}
	return txid, uint32(vout), nil
}

func decodeHexFlag(name, value string) ([]byte, error) {
	b, err := helpers.DecodeHex(value)
	if err != nil {
		return nil, fmt.Errorf("invalid -%s: %w", name, err)
	}
	return b, nil
}

// printTx writes a signed transaction, and its PSBT when -psbt is set.
func (e *env) printTx(tx *wire.MsgTx, prevOut *wire.TxOut) error {
	txHex, err := htlc.SerializeTx(tx)
	if err != nil {
		return err
	}
	fmt.Printf("txid: %s\n", tx.TxHash())
	fmt.Printf("tx:   %s\n", txHex)

	if e.psbt {
		packet, err := htlc.EncodePSBT(tx, prevOut)
		if err != nil {
			return err
		}
		fmt.Printf("psbt: %s\n", packet)
	}
	return nil
}

// saveTx records a built transaction for a stored contract.
func (e *env) saveTx(c *storage.Contract, kind storage.TxKind, tx *wire.MsgTx, fee uint64) {
	if c == nil {
		return
	}
	store, err := e.Store()
	if err != nil {
		e.log.Warn("Transaction not stored", "error", err)
		return
	}
	txHex, err := htlc.SerializeTx(tx)
	if err != nil {
		return
	}
	err = store.SaveContractTx(&storage.ContractTx{
		TxID:       tx.TxHash().String(),
		ContractID: c.ID,
		Kind:       kind,
		RawTx:      txHex,
		Fee:        fee,
	})
	if err != nil {
		e.log.Warn("Transaction not stored", "contract", c.ID, "error", err)
	}
}

func keygenCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	keys := registerKeyFlags(fs)
	mnemonic := fs.String("mnemonic", "", "Restore the wallet from this mnemonic instead of generating one")

	return func(ctx context.Context, e *env) error {
		if *keys.wif != "" {
			signer, err := wallet.SignerFromWIF(*keys.wif, e.params)
			if err != nil {
				return err
			}
			defer signer.Zero()
			address, err := wallet.P2WPKHAddress(signer.PubKey(), e.params)
			if err != nil {
				return err
			}
			fmt.Printf("pubkey:  %x\n", signer.PubKey())
			fmt.Printf("address: %s\n", address)
			return nil
		}

		password := keys.passwordValue()
		if password == "" {
			return fmt.Errorf("a wallet password is required")
		}

		svc := e.WalletService()
		if svc.HasWallet() {
			if *mnemonic != "" {
				return fmt.Errorf("a wallet already exists in %s", e.dataDir)
			}
			if err := svc.LoadWallet(password, ""); err != nil {
				return err
			}
		} else {
			words := *mnemonic
			if words == "" {
				generated, err := wallet.GenerateMnemonic()
				if err != nil {
					return err
				}
				words = generated
				fmt.Printf("mnemonic: %s\n", words)
				fmt.Println("Write the mnemonic down. It is the only backup of this wallet.")
			}
			if err := svc.CreateWallet(words, "", password); err != nil {
				return err
			}
			e.log.Info("Wallet created", "path", e.dataDir)
		}
		defer svc.Lock()

		account, change, index := uint32(*keys.account), uint32(*keys.change), uint32(*keys.index)
		pubKey, err := svc.GetPublicKey(e.cfg.Symbol, account, change, index)
		if err != nil {
			return err
		}
		address, err := svc.GetAddress(e.cfg.Symbol, account, change, index)
		if err != nil {
			return err
		}
		path, err := svc.GetDerivationPath(e.cfg.Symbol, account, change, index)
		if err != nil {
			return err
		}

		fmt.Printf("path:    %s\n", path)
		fmt.Printf("pubkey:  %x\n", pubKey)
		fmt.Printf("address: %s\n", address)
		return nil
	}
}

func compileCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	recipient := fs.String("recipient", "", "Recipient public key (hex, 33 bytes)")
	refund := fs.String("refund", "", "Refund public key (hex, 33 bytes)")
	timelock := fs.String("timelock", "", "Absolute lock time, or +N blocks from the chain tip (default: +initiator timeout)")
	secretHashFlag := fs.String("secret-hash", "", "SHA-256 of the secret (hex)")
	secretFlag := fs.String("secret", "", "Secret (hex); generated when neither -secret nor -secret-hash is set")

	return func(ctx context.Context, e *env) error {
		recipientKey, err := decodeHexFlag("recipient", *recipient)
		if err != nil {
			return err
		}
		refundKey, err := decodeHexFlag("refund", *refund)
		if err != nil {
			return err
		}

		var secret, secretHash []byte
		switch {
		case *secretFlag != "":
			if secret, err = decodeHexFlag("secret", *secretFlag); err != nil {
				return err
			}
			sum := sha256.Sum256(secret)
			secretHash = sum[:]
			if *secretHashFlag != "" && *secretHashFlag != hex.EncodeToString(secretHash) {
				return htlc.ErrSecretMismatch
			}
		case *secretHashFlag != "":
			if secretHash, err = decodeHexFlag("secret-hash", *secretHashFlag); err != nil {
				return err
			}
		default:
			if secret, secretHash, err = htlc.GenerateSecret(); err != nil {
				return err
			}
		}

		lockTime, err := e.resolveTimelock(ctx, *timelock)
		if err != nil {
			return err
		}

		details := &htlc.Details{
			SecretHash:      secretHash,
			RecipientPubKey: recipientKey,
			RefundPubKey:    refundKey,
			Timelock:        lockTime,
		}
		script, err := htlc.Compile(details)
		if err != nil {
			return err
		}
		address, err := htlc.DeriveAddress(script, e.params.ChainCfg())
		if err != nil {
			return err
		}

		contract := &storage.Contract{
			Symbol:          e.cfg.Symbol,
			Network:         string(e.cfg.Network),
			Script:          script.Hex(),
			Address:         address,
			SecretHash:      hex.EncodeToString(secretHash),
			RecipientPubKey: hex.EncodeToString(recipientKey),
			RefundPubKey:    hex.EncodeToString(refundKey),
			Timelock:        lockTime,
			Secret:          hex.EncodeToString(secret),
		}
		store, err := e.Store()
		if err != nil {
			return err
		}
		err = store.CreateContract(contract)
		if errors.Is(err, storage.ErrContractAlreadyExists) {
			existing, getErr := store.GetContractByAddress(address)
			if getErr != nil {
				return getErr
			}
			contract = existing
		} else if err != nil {
			return err
		}

		fmt.Printf("contract:    %s\n", contract.ID)
		fmt.Printf("script:      %s\n", script.Hex())
		fmt.Printf("address:     %s\n", address)
		fmt.Printf("secret hash: %x\n", secretHash)
		fmt.Printf("timelock:    %d (%s)\n", lockTime, details.Kind())
		if secret != nil {
			fmt.Printf("secret:      %x\n", secret)
		}
		return nil
	}
}

// resolveTimelock parses an absolute lock time or a +N block offset from
// the chain tip.
func (e *env) resolveTimelock(ctx context.Context, value string) (uint32, error) {
	if value != "" && !strings.HasPrefix(value, "+") {
		lockTime, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid -timelock: %w", err)
		}
		return uint32(lockTime), nil
	}

	var offset uint64
	if value == "" {
		timeouts, ok := config.GetChainTimeout(e.cfg.Symbol, e.cfg.Network)
		if !ok {
			return 0, fmt.Errorf("no default timelock for %s", e.cfg.Symbol)
		}
		offset = uint64(timeouts.InitiatorBlocks)
	} else {
		var err error
		if offset, err = strconv.ParseUint(value[1:], 10, 32); err != nil {
			return 0, fmt.Errorf("invalid -timelock: %w", err)
		}
	}

	b, err := e.Backend()
	if err != nil {
		return 0, err
	}
	height, err := b.GetBlockHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get chain tip: %w", err)
	}

	lockTime := uint64(height) + offset
	if lockTime > htlc.MaxTimelock || lockTime >= uint64(500_000_000) {
		return 0, fmt.Errorf("timelock %d out of block height range", lockTime)
	}
	e.log.Debug("Resolved relative timelock", "height", height, "offset", offset, "timelock", lockTime)
	return uint32(lockTime), nil
}

func addressCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	scripts := registerScriptFlags(fs)

	return func(ctx context.Context, e *env) error {
		if *scripts.script == "" && *scripts.contract == "" && fs.NArg() > 0 {
			*scripts.script = fs.Arg(0)
		}
		script, _, err := scripts.resolve(e)
		if err != nil {
			return err
		}
		address, err := htlc.DeriveAddress(script, e.params.ChainCfg())
		if err != nil {
			return err
		}
		fmt.Println(address)
		return nil
	}
}

func fundCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	scripts := registerScriptFlags(fs)
	keys := registerKeyFlags(fs)
	utxoFlag := fs.String("utxo", "", "Wallet output to spend as txid:vout (default: selected from the backend)")
	value := fs.Uint64("value", 0, "Value of -utxo in satoshis; skips the backend lookup")
	amount := fs.Uint64("amount", 0, "Satoshis to lock; the rest of the UTXO is the miner fee")
	maxFee := fs.Uint64("max-fee", 50000, "Refuse to build when the UTXO leaves more than this as fee")

	return func(ctx context.Context, e *env) error {
		script, contract, err := scripts.resolve(e)
		if err != nil {
			return err
		}
		address, err := htlc.DeriveAddress(script, e.params.ChainCfg())
		if err != nil {
			return err
		}

		signer, err := keys.signer(e)
		if err != nil {
			return err
		}
		defer signer.Zero()

		var utxo htlc.UTXO
		switch {
		case *utxoFlag == "":
			utxo, err = e.WalletService().SelectFundingUTXO(ctx, e.cfg.Symbol, signer, *amount)
		case *value != 0:
			txid, vout, perr := parseOutpoint(*utxoFlag)
			if perr != nil {
				return perr
			}
			utxo = htlc.UTXO{TxID: txid, Vout: vout, Value: *value}
		default:
			txid, vout, perr := parseOutpoint(*utxoFlag)
			if perr != nil {
				return perr
			}
			utxo, err = e.WalletService().FundingUTXO(ctx, txid, vout, signer)
		}
		if err != nil {
			return err
		}
		e.log.Debug("Funding from", "outpoint", fmt.Sprintf("%s:%d", utxo.TxID, utxo.Vout), "value", utxo.Value)
		if utxo.Value > *amount && utxo.Value-*amount > *maxFee {
			return fmt.Errorf("funding %s:%d would pay %d sats in fees, above -max-fee %d",
				utxo.TxID, utxo.Vout, utxo.Value-*amount, *maxFee)
		}

		tx, err := htlc.BuildFundingTx(&htlc.FundingTxParams{
			HTLCAddress: address,
			Amount:      *amount,
			UTXO:        utxo,
			Signer:      signer,
			ChainParams: e.params.ChainCfg(),
			Logger:      e.log.Component("htlc"),
		})
		if err != nil {
			return err
		}

		if contract != nil {
			store, _ := e.Store()
			if err := store.SetContractFunding(contract.ID, tx.TxHash().String(), 0, *amount); err != nil {
				e.log.Warn("Funding not recorded", "contract", contract.ID, "error", err)
			}
			e.saveTx(contract, storage.TxFunding, tx, utxo.Value-*amount)
		}

		prevOut := wire.NewTxOut(int64(utxo.Value), htlc.P2WPKHPkScript(signer.PubKey()))
		return e.printTx(tx, prevOut)
	}
}

func claimCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	scripts := registerScriptFlags(fs)
	keys := registerKeyFlags(fs)
	funding := registerFundingFlags(fs)
	secretFlag := fs.String("secret", "", "Secret (hex) (default: from contract)")
	dest := fs.String("dest", "", "Address receiving the claimed funds")
	fee := fs.Uint64("fee", 0, "Miner fee in satoshis (default: fees.claim)")

	return func(ctx context.Context, e *env) error {
		script, contract, err := scripts.resolve(e)
		if err != nil {
			return err
		}
		txid, vout, amount, err := funding.resolve(contract)
		if err != nil {
			return err
		}

		secretHex := *secretFlag
		if secretHex == "" && contract != nil {
			secretHex = contract.Secret
		}
		if secretHex == "" {
			return fmt.Errorf("-secret is required")
		}
		secret, err := decodeHexFlag("secret", secretHex)
		if err != nil {
			return err
		}
		if *dest == "" {
			return fmt.Errorf("-dest is required")
		}

		details, err := htlc.ParseScript(script)
		if err != nil {
			return err
		}
		e.warnIfLate(ctx, details)

		signer, err := keys.signer(e)
		if err != nil {
			return err
		}
		defer signer.Zero()

		claimFee := *fee
		if claimFee == 0 {
			claimFee = e.cfg.Fees.Claim
		}

		tx, err := htlc.BuildClaimTx(&htlc.ClaimTxParams{
			Script:      script,
			FundingTxID: txid,
			FundingVout: vout,
			Amount:      amount,
			DestAddress: *dest,
			Secret:      secret,
			Signer:      signer,
			Fee:         claimFee,
			ChainParams: e.params.ChainCfg(),
			Logger:      e.log.Component("htlc"),
		})
		if err != nil {
			return err
		}

		if contract != nil && contract.Secret == "" {
			store, _ := e.Store()
			if err := store.SetContractSecret(contract.ID, hex.EncodeToString(secret)); err != nil {
				e.log.Warn("Secret not recorded", "contract", contract.ID, "error", err)
			}
		}
		e.saveTx(contract, storage.TxClaim, tx, claimFee)

		return e.printTx(tx, wire.NewTxOut(int64(amount), htlc.P2WSHPkScript(script)))
	}
}

// warnIfLate logs a warning when a claim is built close to a block height
// timelock, where the refund path may win. Backend errors are ignored.
func (e *env) warnIfLate(ctx context.Context, details *htlc.Details) {
	if details.Kind() != htlc.LockTimeBlockHeight {
		return
	}
	timeouts, ok := config.GetChainTimeout(e.cfg.Symbol, e.cfg.Network)
	if !ok {
		return
	}
	b, err := e.Backend()
	if err != nil {
		return
	}
	height, err := b.GetBlockHeight(ctx)
	if err != nil {
		e.log.Debug("Chain tip unavailable", "error", err)
		return
	}
	if !config.IsSafeToComplete(uint32(height), details.Timelock, timeouts.SafetyMarginBlocks) {
		e.log.Warn("Claim is close to the refund timelock",
			"height", height,
			"timelock", details.Timelock,
			"blocks_left", config.BlocksUntilTimeout(uint32(height), details.Timelock))
	}
}

func refundCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	scripts := registerScriptFlags(fs)
	keys := registerKeyFlags(fs)
	funding := registerFundingFlags(fs)
	dest := fs.String("dest", "", "Address receiving the refunded funds")
	fee := fs.Uint64("fee", 0, "Miner fee in satoshis (default: fees.refund)")
	lockTime := fs.Uint("locktime", 0, "Transaction lock time (default: the script timelock)")

	return func(ctx context.Context, e *env) error {
		script, contract, err := scripts.resolve(e)
		if err != nil {
			return err
		}
		txid, vout, amount, err := funding.resolve(contract)
		if err != nil {
			return err
		}
		if *dest == "" {
			return fmt.Errorf("-dest is required")
		}

		signer, err := keys.signer(e)
		if err != nil {
			return err
		}
		defer signer.Zero()

		refundFee := *fee
		if refundFee == 0 {
			refundFee = e.cfg.Fees.Refund
		}

		tx, err := htlc.BuildRefundTx(&htlc.RefundTxParams{
			Script:        script,
			FundingTxID:   txid,
			FundingVout:   vout,
			Amount:        amount,
			RefundAddress: *dest,
			Signer:        signer,
			Fee:           refundFee,
			LockTime:      uint32(*lockTime),
			ChainParams:   e.params.ChainCfg(),
			Logger:        e.log.Component("htlc"),
		})
		if err != nil {
			return err
		}
		e.saveTx(contract, storage.TxRefund, tx, refundFee)

		fmt.Printf("locktime: %d\n", tx.LockTime)
		return e.printTx(tx, wire.NewTxOut(int64(amount), htlc.P2WSHPkScript(script)))
	}
}

func auditCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	scripts := registerScriptFlags(fs)
	outpoint := fs.String("funding", "", "HTLC output as txid:vout (default: from contract)")

	return func(ctx context.Context, e *env) error {
		script, contract, err := scripts.resolve(e)
		if err != nil {
			return err
		}
		details, err := htlc.ParseScript(script)
		if err != nil {
			return err
		}
		address, err := htlc.DeriveAddress(script, e.params.ChainCfg())
		if err != nil {
			return err
		}

		fmt.Printf("address:    %s\n", address)
		fmt.Printf("secret hash: %x\n", details.SecretHash)
		fmt.Printf("recipient:  %x\n", details.RecipientPubKey)
		fmt.Printf("refund:     %x\n", details.RefundPubKey)
		fmt.Printf("timelock:   %d (%s)\n", details.Timelock, details.Kind())

		txid, vout := "", uint32(0)
		switch {
		case *outpoint != "":
			if txid, vout, err = parseOutpoint(*outpoint); err != nil {
				return err
			}
		case contract != nil && contract.FundingTxID != "":
			txid, vout = contract.FundingTxID, contract.FundingVout
		default:
			return nil
		}

		b, err := e.Backend()
		if err != nil {
			return err
		}

		out, err := b.GetOutput(ctx, txid, vout)
		if err != nil {
			return err
		}
		pkScript, err := hex.DecodeString(out.ScriptPubKey)
		if err != nil || !bytes.Equal(pkScript, htlc.P2WSHPkScript(script)) {
			return fmt.Errorf("%w: output %s:%d does not pay to %s", htlc.ErrInvalidUTXO, txid, vout, address)
		}
		fmt.Printf("funding:    %s:%d\n", txid, vout)
		fmt.Printf("value:      %s %s\n", helpers.FormatAmount(out.Value, e.params.Decimals), e.cfg.Symbol)

		if err := e.reportTimelock(ctx, details); err != nil {
			e.log.Debug("Chain tip unavailable", "error", err)
		}

		spend, err := b.GetOutspend(ctx, txid, vout)
		if err != nil {
			return err
		}
		if !spend.Spent {
			fmt.Println("status:     unspent")
			if contract != nil && contract.FundingTxID == "" {
				store, _ := e.Store()
				if err := store.SetContractFunding(contract.ID, txid, vout, out.Value); err != nil {
					e.log.Warn("Funding not recorded", "contract", contract.ID, "error", err)
				}
			}
			return nil
		}

		raw, err := b.GetRawTransaction(ctx, spend.TxID)
		if err != nil {
			return err
		}
		spendTx, err := htlc.DeserializeTx(hex.EncodeToString(raw))
		if err != nil {
			return err
		}

		state := storage.ContractRefunded
		secret, err := htlc.ExtractSecret(spendTx, details.SecretHash)
		if err == nil {
			state = storage.ContractClaimed
			fmt.Printf("status:     claimed by %s\n", spend.TxID)
			fmt.Printf("secret:     %x\n", secret)
		} else {
			fmt.Printf("status:     refunded by %s\n", spend.TxID)
		}

		if contract != nil {
			store, _ := e.Store()
			if secret != nil {
				if err := store.SetContractSecret(contract.ID, hex.EncodeToString(secret)); err != nil {
					e.log.Warn("Secret not recorded", "contract", contract.ID, "error", err)
				}
			}
			if err := store.UpdateContractState(contract.ID, state); err != nil {
				e.log.Warn("State not recorded", "contract", contract.ID, "error", err)
			}
		}
		return nil
	}
}

// reportTimelock prints how far the chain is from the refund timelock.
func (e *env) reportTimelock(ctx context.Context, details *htlc.Details) error {
	if details.Kind() == htlc.LockTimeTimestamp {
		remaining := time.Until(time.Unix(int64(details.Timelock), 0))
		if remaining <= 0 {
			fmt.Println("refund:     available")
		} else {
			fmt.Printf("refund:     in %s\n", remaining.Round(time.Minute))
		}
		return nil
	}

	b, err := e.Backend()
	if err != nil {
		return err
	}
	height, err := b.GetBlockHeight(ctx)
	if err != nil {
		return err
	}

	blocks := config.BlocksUntilTimeout(uint32(height), details.Timelock)
	if blocks == 0 {
		fmt.Println("refund:     available")
		return nil
	}
	if timeouts, ok := config.GetChainTimeout(e.cfg.Symbol, e.cfg.Network); ok {
		eta := config.EstimateTimeUntilTimeout(uint32(height), details.Timelock, timeouts.AvgBlockTimeSeconds)
		fmt.Printf("refund:     in %d blocks (~%s)\n", blocks, eta)
		return nil
	}
	fmt.Printf("refund:     in %d blocks\n", blocks)
	return nil
}

func extractSecretCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	txHex := fs.String("tx", "", "Spending transaction (hex)")
	txid := fs.String("txid", "", "Spending transaction ID, fetched from the backend")
	secretHashFlag := fs.String("secret-hash", "", "SHA-256 of the secret (hex) (default: from contract)")
	contractRef := fs.String("contract", "", "Stored contract ID or address")

	return func(ctx context.Context, e *env) error {
		var contract *storage.Contract
		if *contractRef != "" {
			c, err := e.findContract(*contractRef)
			if err != nil {
				return err
			}
			contract = c
		}

		hashHex := *secretHashFlag
		if hashHex == "" && contract != nil {
			hashHex = contract.SecretHash
		}
		secretHash, err := helpers.DecodeHexLen(hashHex, htlc.SecretHashSize)
		if err != nil {
			return fmt.Errorf("invalid secret hash: %w", err)
		}

		rawHex := *txHex
		if rawHex == "" {
			if *txid == "" {
				return fmt.Errorf("-tx or -txid is required")
			}
			b, err := e.Backend()
			if err != nil {
				return err
			}
			raw, err := b.GetRawTransaction(ctx, *txid)
			if err != nil {
				return err
			}
			rawHex = hex.EncodeToString(raw)
		}
		tx, err := htlc.DeserializeTx(rawHex)
		if err != nil {
			return err
		}

		secret, err := htlc.ExtractSecret(tx, secretHash)
		if err != nil {
			return err
		}

		if contract != nil {
			store, _ := e.Store()
			if err := store.SetContractSecret(contract.ID, hex.EncodeToString(secret)); err != nil {
				e.log.Warn("Secret not recorded", "contract", contract.ID, "error", err)
			}
		}

		fmt.Printf("%x\n", secret)
		return nil
	}
}

func contractsCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	state := fs.String("state", "", "Only list contracts in this state (created, funded, claimed, refunded)")
	limit := fs.Int("limit", 50, "Maximum number of contracts")
	showTxs := fs.Bool("txs", false, "Also list the transactions built for each contract")

	return func(ctx context.Context, e *env) error {
		store, err := e.Store()
		if err != nil {
			return err
		}
		contracts, err := store.ListContracts(storage.ContractState(*state), *limit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATE\tADDRESS\tTIMELOCK\tAMOUNT\tCREATED")
		for _, c := range contracts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				c.ID, c.State, c.Address, c.Timelock,
				helpers.FormatAmount(c.Amount, e.params.Decimals),
				c.CreatedAt.Format(time.DateTime))

			if !*showTxs {
				continue
			}
			txs, err := store.ListContractTxs(c.ID)
			if err != nil {
				return err
			}
			for _, tx := range txs {
				fmt.Fprintf(w, "\t  %s\t%s\t\tfee %d\t\n", tx.Kind, tx.TxID, tx.Fee)
			}
		}
		return w.Flush()
	}
}
