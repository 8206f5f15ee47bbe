// Package monitor watches funded HTLC outputs until they are spent and
// reports whether the spend was a claim, which reveals the secret, or a
// refund.
package monitor

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/klingon-exchange/klingon-htlc/internal/backend"
	"github.com/klingon-exchange/klingon-htlc/internal/htlc"
	"github.com/klingon-exchange/klingon-htlc/internal/storage"
	"github.com/klingon-exchange/klingon-htlc/pkg/logging"
)

// DefaultPollInterval is how often a watched output is checked.
const DefaultPollInterval = 30 * time.Second

// Outcome says which script branch spent an HTLC.
type Outcome string

const (
	OutcomeClaimed  Outcome = "claimed"
	OutcomeRefunded Outcome = "refunded"
)

// SpendEvent is emitted once per watched contract when its output is spent.
type SpendEvent struct {
	ContractID  string
	FundingTxID string
	FundingVout uint32
	SpendTxID   string
	Outcome     Outcome
	Secret      []byte // set for claims
	Timestamp   time.Time
}

// Config holds monitor dependencies.
type Config struct {
	Backend backend.Backend

	// Store, when set, records revealed secrets and final states.
	Store *storage.Storage

	PollInterval time.Duration
	Logger       *logging.Logger
}

// Monitor polls the backend for spends of watched contracts.
type Monitor struct {
	mu sync.Mutex

	backend  backend.Backend
	store    *storage.Storage
	interval time.Duration
	log      *logging.Logger

	// Active watches
	watches map[string]context.CancelFunc // contractID -> cancel func
	wg      sync.WaitGroup

	events chan SpendEvent

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a monitor. Stop must be called to release it.
func New(cfg *Config) *Monitor {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	log := cfg.Logger
	if log == nil {
		log = logging.GetDefault()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		backend:  cfg.Backend,
		store:    cfg.Store,
		interval: interval,
		log:      log.Component("monitor"),
		watches:  make(map[string]context.CancelFunc),
		events:   make(chan SpendEvent, 100),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Events returns the channel spend events are delivered on. It is closed
// by Stop.
func (m *Monitor) Events() <-chan SpendEvent {
	return m.events
}

// Watch starts polling the funding output of a contract. Watching a
// contract twice is a no-op.
func (m *Monitor) Watch(c *storage.Contract) error {
	if c.FundingTxID == "" {
		return fmt.Errorf("contract %s has no funding output", c.ID)
	}
	secretHash, err := hex.DecodeString(c.SecretHash)
	if err != nil || len(secretHash) != htlc.SecretHashSize {
		return fmt.Errorf("contract %s has an invalid secret hash", c.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return fmt.Errorf("monitor stopped")
	}
	if _, exists := m.watches[c.ID]; exists {
		return nil
	}

	ctx, cancel := context.WithCancel(m.ctx)
	m.watches[c.ID] = cancel

	m.wg.Add(1)
	go m.watch(ctx, c, secretHash)

	m.log.Info("Watching HTLC output",
		"contract", c.ID,
		"outpoint", fmt.Sprintf("%s:%d", c.FundingTxID, c.FundingVout))
	return nil
}

// Unwatch stops polling a contract.
func (m *Monitor) Unwatch(contractID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cancel, exists := m.watches[contractID]; exists {
		cancel()
		delete(m.watches, contractID)
		m.log.Debug("Stopped watching", "contract", contractID)
	}
}

// Watching returns the number of active watches.
func (m *Monitor) Watching() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watches)
}

// Stop cancels all watches, waits for them to exit and closes Events.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.cancel()
	for id, cancel := range m.watches {
		cancel()
		delete(m.watches, id)
	}
	m.mu.Unlock()

	m.wg.Wait()
	close(m.events)
}

func (m *Monitor) watch(ctx context.Context, c *storage.Contract, secretHash []byte) {
	defer m.wg.Done()
	defer m.Unwatch(c.ID)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		event, err := m.Check(ctx, c, secretHash)
		switch {
		case err != nil:
			m.log.Debug("Spend check failed", "contract", c.ID, "error", err)
		case event != nil:
			m.record(event)
			select {
			case m.events <- *event:
			case <-ctx.Done():
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Check looks up the contract's funding output once. It returns nil when
// the output is still unspent.
func (m *Monitor) Check(ctx context.Context, c *storage.Contract, secretHash []byte) (*SpendEvent, error) {
	spend, err := m.backend.GetOutspend(ctx, c.FundingTxID, c.FundingVout)
	if err != nil {
		return nil, err
	}
	if !spend.Spent {
		return nil, nil
	}

	raw, err := m.backend.GetRawTransaction(ctx, spend.TxID)
	if err != nil {
		return nil, fmt.Errorf("failed to get spending tx %s: %w", spend.TxID, err)
	}
	tx, err := htlc.DeserializeTx(hex.EncodeToString(raw))
	if err != nil {
		return nil, err
	}

	event := &SpendEvent{
		ContractID:  c.ID,
		FundingTxID: c.FundingTxID,
		FundingVout: c.FundingVout,
		SpendTxID:   spend.TxID,
		Outcome:     OutcomeRefunded,
		Timestamp:   time.Now(),
	}

	secret, err := htlc.ExtractSecret(tx, secretHash)
	switch {
	case err == nil:
		event.Outcome = OutcomeClaimed
		event.Secret = secret
	case !errors.Is(err, htlc.ErrSecretNotFound):
		return nil, err
	}

	return event, nil
}

// record persists what a spend revealed. Failures are logged only.
func (m *Monitor) record(event *SpendEvent) {
	m.log.Info("HTLC output spent",
		"contract", event.ContractID,
		"outcome", event.Outcome,
		"txid", event.SpendTxID)

	if m.store == nil {
		return
	}
	if event.Secret != nil {
		if err := m.store.SetContractSecret(event.ContractID, hex.EncodeToString(event.Secret)); err != nil {
			m.log.Warn("Failed to store secret", "contract", event.ContractID, "error", err)
		}
	}

	state := storage.ContractRefunded
	if event.Outcome == OutcomeClaimed {
		state = storage.ContractClaimed
	}
	if err := m.store.UpdateContractState(event.ContractID, state); err != nil {
		m.log.Warn("Failed to update contract state", "contract", event.ContractID, "error", err)
	}
}
