package storage

import (
	"fmt"
	"time"
)

// TxKind says which path a stored transaction takes.
type TxKind string

const (
	TxFunding TxKind = "funding"
	TxClaim   TxKind = "claim"
	TxRefund  TxKind = "refund"
)

// ContractTx is a signed transaction built for a contract. Storing it does
// not mean it was broadcast.
type ContractTx struct {
	TxID       string
	ContractID string
	Kind       TxKind
	RawTx      string // hex
	Fee        uint64
	CreatedAt  time.Time
}

// SaveContractTx stores a transaction. Saving the same txid twice for a
// contract replaces the earlier row.
func (s *Storage) SaveContractTx(tx *ContractTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO contract_txs (txid, contract_id, kind, raw_tx, fee, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(contract_id, txid) DO UPDATE SET
			kind = excluded.kind,
			raw_tx = excluded.raw_tx,
			fee = excluded.fee
	`, tx.TxID, tx.ContractID, tx.Kind, tx.RawTx, tx.Fee, tx.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save contract tx: %w", err)
	}
	return nil
}

// ListContractTxs returns the transactions of a contract, oldest first.
func (s *Storage) ListContractTxs(contractID string) ([]*ContractTx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT txid, contract_id, kind, raw_tx, fee, created_at
		FROM contract_txs WHERE contract_id = ?
		ORDER BY created_at, rowid
	`, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contract txs: %w", err)
	}
	defer rows.Close()

	var txs []*ContractTx
	for rows.Next() {
		var tx ContractTx
		var createdAt int64
		if err := rows.Scan(&tx.TxID, &tx.ContractID, &tx.Kind, &tx.RawTx, &tx.Fee, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan contract tx: %w", err)
		}
		tx.CreatedAt = time.Unix(createdAt, 0)
		txs = append(txs, &tx)
	}

	return txs, rows.Err()
}
