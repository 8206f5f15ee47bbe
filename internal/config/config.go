// Package config holds the YAML configuration of the htlcswap tool.
// Command-line flags override values loaded from the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/klingon-exchange/klingon-htlc/internal/backend"
	"github.com/klingon-exchange/klingon-htlc/internal/chain"
	"github.com/klingon-exchange/klingon-htlc/internal/htlc"
	"github.com/klingon-exchange/klingon-htlc/pkg/logging"
)

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// DefaultDataDir is where keystore, database and config live by default.
const DefaultDataDir = "~/.klingon-htlc"

// Config holds all configuration for the tool.
type Config struct {
	// Network is mainnet, testnet or regtest.
	Network chain.Network `yaml:"network"`

	// Symbol is the default chain (BTC, LTC).
	Symbol string `yaml:"symbol"`

	// Fees
	Fees FeeConfig `yaml:"fees"`

	// Storage
	Storage StorageConfig `yaml:"storage"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Backends holds block explorer API configurations per chain symbol.
	// If not specified, defaults to public APIs (mempool.space, etc.)
	Backends map[string]*backend.Config `yaml:"backends,omitempty"`
}

// FeeConfig holds the absolute miner fees, in satoshis, deducted from HTLC
// spends.
type FeeConfig struct {
	Claim  uint64 `yaml:"claim"`
	Refund uint64 `yaml:"refund"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory for all data files.
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Network: chain.Mainnet,
		Symbol:  "BTC",
		Fees: FeeConfig{
			Claim:  htlc.DefaultClaimFee,
			Refund: htlc.DefaultRefundFee,
		},
		Storage: StorageConfig{
			DataDir: DefaultDataDir,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks that the configured chain exists and fees are set.
func (c *Config) Validate() error {
	if _, err := chain.ParseNetwork(string(c.Network)); err != nil {
		return err
	}
	if _, ok := chain.Get(c.Symbol, c.Network); !ok {
		return fmt.Errorf("unsupported chain %s on %s", c.Symbol, c.Network)
	}
	if c.Fees.Claim == 0 || c.Fees.Refund == 0 {
		return fmt.Errorf("claim and refund fees must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage data_dir is empty")
	}
	return nil
}

// ChainParams returns the params of the configured chain and network.
func (c *Config) ChainParams() (*chain.Params, error) {
	params, ok := chain.Get(c.Symbol, c.Network)
	if !ok {
		return nil, fmt.Errorf("unsupported chain %s on %s", c.Symbol, c.Network)
	}
	return params, nil
}

// GetBackendConfig returns the backend config for a chain symbol.
// Returns default config if not explicitly configured.
func (c *Config) GetBackendConfig(symbol string) *backend.Config {
	if c.Backends != nil {
		if cfg, ok := c.Backends[symbol]; ok {
			return cfg
		}
	}
	return backend.DefaultConfigs()[symbol]
}

// NewBackend creates the backend for the configured chain and network.
func (c *Config) NewBackend() (backend.Backend, error) {
	cfg := c.GetBackendConfig(c.Symbol)
	if cfg == nil {
		return nil, fmt.Errorf("no backend configured for %s", c.Symbol)
	}
	return backend.New(cfg, c.Network)
}

// LogConfig returns the logger configuration.
func (c *Config) LogConfig() *logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logging.Level
	return cfg
}

// LoadConfig loads configuration from config.yaml in dataDir.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(dataDir string) (*Config, error) {
	configPath := ConfigPath(dataDir)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}

		return cfg, nil
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from an existing YAML file. Missing keys
// keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	path = expandPath(path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Klingon HTLC Configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for the given data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// ExpandPath expands a leading ~ to the home directory.
func ExpandPath(path string) string {
	return expandPath(path)
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
