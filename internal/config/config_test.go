package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klingon-exchange/klingon-htlc/internal/backend"
	"github.com/klingon-exchange/klingon-htlc/internal/chain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Network != chain.Mainnet {
		t.Errorf("expected mainnet, got %s", cfg.Network)
	}
	if cfg.Symbol != "BTC" {
		t.Errorf("expected BTC, got %s", cfg.Symbol)
	}
	if cfg.Fees.Claim != 1000 {
		t.Errorf("expected claim fee 1000, got %d", cfg.Fees.Claim)
	}
	if cfg.Fees.Refund != 3600 {
		t.Errorf("expected refund fee 3600, got %d", cfg.Fees.Refund)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level info, got %s", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown network", func(c *Config) { c.Network = "signet" }},
		{"unknown symbol", func(c *Config) { c.Symbol = "DOGE" }},
		{"LTC has no regtest", func(c *Config) { c.Symbol = "LTC"; c.Network = chain.Regtest }},
		{"zero claim fee", func(c *Config) { c.Fees.Claim = 0 }},
		{"zero refund fee", func(c *Config) { c.Fees.Refund = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"empty data dir", func(c *Config) { c.Storage.DataDir = "" }},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.modify(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Storage.DataDir != tmpDir {
		t.Errorf("DataDir = %s, want %s", cfg.Storage.DataDir, tmpDir)
	}

	info, err := os.Stat(ConfigPath(tmpDir))
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("permissions = %o, want 600", info.Mode().Perm())
	}

	data, _ := os.ReadFile(ConfigPath(tmpDir))
	if !strings.HasPrefix(string(data), "# Klingon HTLC Configuration") {
		t.Error("config file should start with a header comment")
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Network = chain.Regtest
	cfg.Fees.Claim = 1500
	cfg.Storage.DataDir = tmpDir
	cfg.Backends = map[string]*backend.Config{
		"BTC": {Type: backend.TypeEsplora, RegtestURL: "http://localhost:3000", Timeout: 5},
	}

	if err := cfg.Save(ConfigPath(tmpDir)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.Network != chain.Regtest {
		t.Errorf("Network = %s, want regtest", loaded.Network)
	}
	if loaded.Fees.Claim != 1500 || loaded.Fees.Refund != 3600 {
		t.Errorf("Fees = %+v", loaded.Fees)
	}

	bcfg := loaded.GetBackendConfig("BTC")
	if bcfg == nil || bcfg.Type != backend.TypeEsplora || bcfg.RegtestURL != "http://localhost:3000" {
		t.Errorf("GetBackendConfig(BTC) = %+v", bcfg)
	}

	b, err := loaded.NewBackend()
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	if b.Type() != backend.TypeEsplora {
		t.Errorf("backend type = %s", b.Type())
	}
}

func TestLoadFilePartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("network: testnet\nsymbol: LTC\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Network != chain.Testnet || cfg.Symbol != "LTC" {
		t.Errorf("got %s/%s", cfg.Symbol, cfg.Network)
	}
	if cfg.Fees.Refund != 3600 {
		t.Error("missing keys should keep defaults")
	}

	params, err := cfg.ChainParams()
	if err != nil {
		t.Fatal(err)
	}
	if params.Bech32HRP != "tltc" {
		t.Errorf("HRP = %s, want tltc", params.Bech32HRP)
	}

	if err := os.WriteFile(path, []byte("network: [\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("expected parse error")
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestGetBackendConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()

	bcfg := cfg.GetBackendConfig("LTC")
	if bcfg == nil || bcfg.MainnetURL == "" {
		t.Errorf("expected default LTC backend, got %+v", bcfg)
	}
	if cfg.GetBackendConfig("XMR") != nil {
		t.Error("expected nil for unknown chain")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	if got := ExpandPath("~/.klingon-htlc"); got != filepath.Join(home, ".klingon-htlc") {
		t.Errorf("ExpandPath() = %s", got)
	}
	if got := ExpandPath("/var/lib/htlc"); got != "/var/lib/htlc" {
		t.Errorf("absolute path changed to %s", got)
	}
}

func TestChainTimeouts(t *testing.T) {
	for _, network := range []chain.Network{chain.Mainnet, chain.Testnet, chain.Regtest} {
		for _, symbol := range []string{"BTC", "LTC"} {
			cfg, ok := GetChainTimeout(symbol, network)
			if !ok {
				t.Errorf("missing timeout config for %s/%s", symbol, network)
				continue
			}
			if cfg.ParticipantBlocks >= cfg.InitiatorBlocks {
				t.Errorf("%s/%s: participant timelock must be shorter", symbol, network)
			}
			if cfg.SafetyMarginBlocks >= cfg.ParticipantBlocks {
				t.Errorf("%s/%s: safety margin too large", symbol, network)
			}
		}
	}

	if _, ok := GetChainTimeout("DOGE", chain.Mainnet); ok {
		t.Error("DOGE should not have a timeout config")
	}
}

func TestTimeoutHelpers(t *testing.T) {
	tests := []struct {
		current, timeout, margin uint32
		safe                     bool
		blocks                   uint32
	}{
		{100, 200, 6, true, 100},
		{194, 200, 6, false, 6},
		{193, 200, 6, true, 7},
		{200, 200, 6, false, 0},
		{250, 200, 6, false, 0},
	}

	for _, tt := range tests {
		if got := IsSafeToComplete(tt.current, tt.timeout, tt.margin); got != tt.safe {
			t.Errorf("IsSafeToComplete(%d, %d, %d) = %v, want %v", tt.current, tt.timeout, tt.margin, got, tt.safe)
		}
		if got := BlocksUntilTimeout(tt.current, tt.timeout); got != tt.blocks {
			t.Errorf("BlocksUntilTimeout(%d, %d) = %d, want %d", tt.current, tt.timeout, got, tt.blocks)
		}
	}

	if d := EstimateTimeUntilTimeout(100, 106, 600); d != time.Hour {
		t.Errorf("EstimateTimeUntilTimeout() = %s, want 1h", d)
	}
}
