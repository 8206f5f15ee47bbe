// Package storage keeps a local book of compiled HTLC contracts and the
// transactions built against them in SQLite. Private keys are never stored.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
)

// DBFileName is the database file created in the data directory.
const DBFileName = "htlc.db"

// Storage provides persistent storage for contracts.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New creates a new Storage instance.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.dbPath
}

// initSchema creates all database tables.
func (s *Storage) initSchema() error {
	schema := `
	-- Compiled contracts. The script is the source of truth; the other
	-- columns are decoded from it for lookup.
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		network TEXT NOT NULL,

		script TEXT NOT NULL,
		address TEXT NOT NULL UNIQUE,
		secret_hash TEXT NOT NULL,
		recipient_pubkey TEXT NOT NULL,
		refund_pubkey TEXT NOT NULL,
		timelock INTEGER NOT NULL,

		-- Preimage, once we generated or learned it
		secret TEXT,

		-- Funding outpoint, once known
		funding_txid TEXT,
		funding_vout INTEGER,
		amount INTEGER,

		-- created, funded, claimed, refunded
		state TEXT NOT NULL DEFAULT 'created',

		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contracts_secret_hash ON contracts(secret_hash);
	CREATE INDEX IF NOT EXISTS idx_contracts_state ON contracts(state);

	-- Transactions built for a contract
	CREATE TABLE IF NOT EXISTS contract_txs (
		txid TEXT NOT NULL,
		contract_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		raw_tx TEXT NOT NULL,
		fee INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,

		PRIMARY KEY (contract_id, txid),
		FOREIGN KEY (contract_id) REFERENCES contracts(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_contract_txs_kind ON contract_txs(contract_id, kind);
	`

	_, err := s.db.Exec(schema)
	return err
}

// isUniqueConstraintError reports whether err is a SQLite unique or
// primary key violation.
func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
