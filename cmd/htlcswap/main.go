// Package main provides htlcswap, a command-line tool that compiles Bitcoin
// HTLC scripts and builds their funding, claim and refund transactions.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/klingon-exchange/klingon-htlc/internal/backend"
	"github.com/klingon-exchange/klingon-htlc/internal/chain"
	"github.com/klingon-exchange/klingon-htlc/internal/config"
	"github.com/klingon-exchange/klingon-htlc/internal/storage"
	"github.com/klingon-exchange/klingon-htlc/internal/wallet"
	"github.com/klingon-exchange/klingon-htlc/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

// command is a subcommand. setup registers its flags and returns the
// function run after parsing.
type command struct {
	usage string
	setup func(fs *flag.FlagSet) func(ctx context.Context, e *env) error
}

var commands = map[string]command{
	"keygen":        {"create or unlock the wallet keystore and print a key", keygenCmd},
	"compile":       {"compile an HTLC script and store the contract", compileCmd},
	"address":       {"print the P2WSH address of a script", addressCmd},
	"fund":          {"build a transaction paying a wallet UTXO into an HTLC", fundCmd},
	"claim":         {"build a transaction spending an HTLC with the secret", claimCmd},
	"refund":        {"build a transaction spending an HTLC after its timelock", refundCmd},
	"audit":         {"check an HTLC output on chain", auditCmd},
	"extractsecret": {"recover the secret from a claim transaction", extractSecretCmd},
	"contracts":     {"list stored contracts", contractsCmd},
	"watch":         {"wait for funded contracts to be claimed or refunded", watchCmd},
}

// globalFlags are accepted by every subcommand.
type globalFlags struct {
	configFile *string
	dataDir    *string
	network    *string
	symbol     *string
	logLevel   *string
	psbt       *bool
}

func registerGlobalFlags(fs *flag.FlagSet) *globalFlags {
	return &globalFlags{
		configFile: fs.String("config", "", "Config file path (default: <data-dir>/config.yaml)"),
		dataDir:    fs.String("data-dir", config.DefaultDataDir, "Data directory"),
		network:    fs.String("network", "", "Network (mainnet, testnet, regtest), overrides config"),
		symbol:     fs.String("symbol", "", "Chain symbol (BTC, LTC), overrides config"),
		logLevel:   fs.String("log-level", "", "Log level (debug, info, warn, error), overrides config"),
		psbt:       fs.Bool("psbt", false, "Print transactions as base64 PSBT as well as hex"),
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	name := os.Args[1]
	switch name {
	case "-h", "-help", "--help", "help":
		usage()
		return
	case "version", "-version", "--version":
		fmt.Printf("htlcswap %s (commit: %s)\n", version, commit)
		return
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		usage()
		os.Exit(2)
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	globals := registerGlobalFlags(fs)
	run := cmd.setup(fs)
	fs.Parse(os.Args[2:])

	e, err := newEnv(globals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "htlcswap: %v\n", err)
		os.Exit(1)
	}
	defer e.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, e); err != nil {
		e.log.Error("Command failed", "command", name, "error", err)
		e.Close()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: htlcswap <command> [flags]\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-14s %s\n", name, commands[name].usage)
	}
	fmt.Fprintf(os.Stderr, "\nRun 'htlcswap <command> -h' for command flags.\n")
}

// env is the state shared by subcommands. Storage and backend are opened
// on first use.
type env struct {
	cfg    *config.Config
	params *chain.Params
	log    *logging.Logger
	psbt   bool

	dataDir string
	store   *storage.Storage
	backend backend.Backend
}

func newEnv(g *globalFlags) (*env, error) {
	var (
		cfg *config.Config
		err error
	)
	if *g.configFile != "" {
		cfg, err = config.LoadFile(*g.configFile)
	} else {
		cfg, err = config.LoadConfig(*g.dataDir)
	}
	if err != nil {
		return nil, err
	}

	// CLI flags take precedence over the config file
	if *g.network != "" {
		network, err := chain.ParseNetwork(*g.network)
		if err != nil {
			return nil, err
		}
		cfg.Network = network
	}
	if *g.symbol != "" {
		cfg.Symbol = *g.symbol
	}
	if *g.logLevel != "" {
		cfg.Logging.Level = *g.logLevel
	}
	if *g.configFile == "" {
		cfg.Storage.DataDir = *g.dataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := logging.New(cfg.LogConfig())
	logging.SetDefault(log)

	params, err := cfg.ChainParams()
	if err != nil {
		return nil, err
	}

	// Networks other than mainnet keep their files apart
	dataDir := config.ExpandPath(cfg.Storage.DataDir)
	if cfg.Network != chain.Mainnet {
		dataDir = filepath.Join(dataDir, string(cfg.Network))
	}

	log.Debug("Config loaded", "network", cfg.Network, "symbol", cfg.Symbol, "data_dir", dataDir)

	return &env{
		cfg:     cfg,
		params:  params,
		log:     log,
		psbt:    *g.psbt,
		dataDir: dataDir,
	}, nil
}

// Store opens the contract database.
func (e *env) Store() (*storage.Storage, error) {
	if e.store != nil {
		return e.store, nil
	}
	store, err := storage.New(&storage.Config{DataDir: e.dataDir})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	e.store = store
	return store, nil
}

// Backend creates the block explorer client for the configured chain.
func (e *env) Backend() (backend.Backend, error) {
	if e.backend != nil {
		return e.backend, nil
	}
	b, err := e.cfg.NewBackend()
	if err != nil {
		return nil, err
	}
	e.backend = b
	return b, nil
}

// WalletService returns a wallet service bound to the data directory. The
// backend is attached when one can be created.
func (e *env) WalletService() *wallet.Service {
	b, err := e.Backend()
	if err != nil {
		e.log.Debug("No backend for wallet service", "error", err)
	}
	return wallet.NewService(&wallet.ServiceConfig{
		DataDir: e.dataDir,
		Network: e.cfg.Network,
		Backend: b,
	})
}

func (e *env) Close() {
	if e.store != nil {
		e.store.Close()
		e.store = nil
	}
}
