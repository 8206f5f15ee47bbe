package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Contract errors
var (
	ErrContractNotFound      = errors.New("contract not found")
	ErrContractAlreadyExists = errors.New("contract already exists for this address")
	ErrInvalidStateChange    = errors.New("invalid contract state change")
)

// ContractState tracks where a contract is in its life cycle.
type ContractState string

const (
	ContractCreated  ContractState = "created"
	ContractFunded   ContractState = "funded"
	ContractClaimed  ContractState = "claimed"
	ContractRefunded ContractState = "refunded"
)

// IsFinal reports whether the HTLC output has been spent.
func (s ContractState) IsFinal() bool {
	return s == ContractClaimed || s == ContractRefunded
}

// Contract is a compiled HTLC and what is known about its funding.
type Contract struct {
	ID      string
	Symbol  string
	Network string

	Script          string // hex
	Address         string // P2WSH
	SecretHash      string // hex
	RecipientPubKey string // hex
	RefundPubKey    string // hex
	Timelock        uint32

	// Preimage (hex), empty until generated or revealed
	Secret string

	// Funding outpoint, empty until funded
	FundingTxID string
	FundingVout uint32
	Amount      uint64

	State     ContractState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateContract stores a new contract. An empty ID is filled with a
// random UUID.
func (s *Storage) CreateContract(c *Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.State == "" {
		c.State = ContractCreated
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO contracts (
			id, symbol, network, script, address, secret_hash,
			recipient_pubkey, refund_pubkey, timelock, secret,
			funding_txid, funding_vout, amount, state,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.Symbol, c.Network, c.Script, c.Address, c.SecretHash,
		c.RecipientPubKey, c.RefundPubKey, c.Timelock, nullString(c.Secret),
		nullString(c.FundingTxID), nullFunding(c.FundingTxID, int64(c.FundingVout)),
		nullFunding(c.FundingTxID, int64(c.Amount)), c.State,
		c.CreatedAt.Unix(), c.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrContractAlreadyExists
		}
		return fmt.Errorf("failed to create contract: %w", err)
	}

	return nil
}

const contractColumns = `
	id, symbol, network, script, address, secret_hash,
	recipient_pubkey, refund_pubkey, timelock, secret,
	funding_txid, funding_vout, amount, state,
	created_at, updated_at`

// GetContract retrieves a contract by ID.
func (s *Storage) GetContract(id string) (*Contract, error) {
	return s.getContractWhere("id = ?", id)
}

// GetContractByAddress retrieves a contract by its P2WSH address.
func (s *Storage) GetContractByAddress(address string) (*Contract, error) {
	return s.getContractWhere("address = ?", address)
}

// GetContractBySecretHash retrieves the most recent contract locked to a
// secret hash.
func (s *Storage) GetContractBySecretHash(secretHash string) (*Contract, error) {
	return s.getContractWhere("secret_hash = ? ORDER BY created_at DESC LIMIT 1", secretHash)
}

func (s *Storage) getContractWhere(where string, arg interface{}) (*Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow("SELECT "+contractColumns+" FROM contracts WHERE "+where, arg)
	c, err := scanContract(row)
	if err == sql.ErrNoRows {
		return nil, ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return c, nil
}

// ListContracts returns contracts newest first. An empty state lists all.
func (s *Storage) ListContracts(state ContractState, limit int) ([]*Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	query := "SELECT " + contractColumns + " FROM contracts"
	args := []interface{}{}
	if state != "" {
		query += " WHERE state = ?"
		args = append(args, state)
	}
	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		contracts = append(contracts, c)
	}

	return contracts, rows.Err()
}

// SetContractFunding records the funding outpoint and moves a created
// contract to funded.
func (s *Storage) SetContractFunding(id, txid string, vout uint32, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE contracts
		SET funding_txid = ?, funding_vout = ?, amount = ?,
			state = CASE WHEN state = ? THEN ? ELSE state END,
			updated_at = ?
		WHERE id = ?
	`, txid, vout, amount, ContractCreated, ContractFunded, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to set contract funding: %w", err)
	}

	return checkRowsAffected(result)
}

// SetContractSecret stores the preimage once it is known.
func (s *Storage) SetContractSecret(id, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE contracts SET secret = ?, updated_at = ? WHERE id = ?
	`, secret, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to set contract secret: %w", err)
	}

	return checkRowsAffected(result)
}

// UpdateContractState moves a contract to a new state. Final states
// cannot be left.
func (s *Storage) UpdateContractState(id string, state ContractState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current ContractState
	err := s.db.QueryRow("SELECT state FROM contracts WHERE id = ?", id).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrContractNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get contract state: %w", err)
	}
	if current.IsFinal() && current != state {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateChange, current, state)
	}

	_, err = s.db.Exec(`
		UPDATE contracts SET state = ?, updated_at = ? WHERE id = ?
	`, state, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update contract state: %w", err)
	}
	return nil
}

// DeleteContract removes a contract and its transactions.
func (s *Storage) DeleteContract(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("DELETE FROM contracts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete contract: %w", err)
	}

	return checkRowsAffected(result)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContract(row rowScanner) (*Contract, error) {
	var c Contract
	var secret, fundingTxID sql.NullString
	var fundingVout, amount sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&c.ID, &c.Symbol, &c.Network, &c.Script, &c.Address, &c.SecretHash,
		&c.RecipientPubKey, &c.RefundPubKey, &c.Timelock, &secret,
		&fundingTxID, &fundingVout, &amount, &c.State,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if secret.Valid {
		c.Secret = secret.String
	}
	if fundingTxID.Valid {
		c.FundingTxID = fundingTxID.String
	}
	if fundingVout.Valid {
		c.FundingVout = uint32(fundingVout.Int64)
	}
	if amount.Valid {
		c.Amount = uint64(amount.Int64)
	}
	c.CreatedAt = time.Unix(createdAt, 0)
	c.UpdatedAt = time.Unix(updatedAt, 0)

	return &c, nil
}

func checkRowsAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrContractNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullFunding stores v only when a funding txid is present.
func nullFunding(txid string, v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: txid != ""}
}
