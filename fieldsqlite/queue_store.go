// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/VuDube/suitewasteos-18dec/fieldsync"
	"github.com/google/uuid"
)

// Slot names of the persisted queues
const (
	slotLedger       = "pending_ledger"
	slotTransactions = "pending_transactions"
)

var (
	ErrMissingLedgerRef = errors.New("transaction must reference a ledger entry")
	ErrInvalidDraft     = errors.New("invalid draft")
	ErrUnknownKind      = errors.New("unknown record kind")
)

// LedgerDraft is a weight capture before the queue assigns its identity.
// ID may be supplied to cross-link a transaction created in the same action.
type LedgerDraft struct {
	ID                 string
	SupplierID         string
	MaterialType       string
	WeightKg           float64
	OperatorID         string
	DeviceID           string
	PhotoAttachmentKey string
	Notes              string
}

// TransactionDraft is a payment before the queue assigns its identity.
// EPRFee is computed by the caller.
type TransactionDraft struct {
	ID            string
	LedgerEntryID string
	Amount        float64
	Currency      string
	PaymentMethod string
	EPRFee        float64
	ReceiptKey    string
}

// QueueStore holds the two ordered queues of records the server has not confirmed.
// Every mutation writes the whole affected queue to SQLite before it becomes
// visible in memory.
type QueueStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu     sync.Mutex
	ledger []fieldsync.PendingLedgerRecord
	txs    []fieldsync.PendingTransactionRecord
}

// QueueOption customizes a QueueStore
type QueueOption func(*QueueStore)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) QueueOption {
	return func(q *QueueStore) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithClock overrides the capture timestamp source
func WithClock(now func() time.Time) QueueOption {
	return func(q *QueueStore) { q.now = now }
}

// WithIDGenerator overrides identifier assignment
func WithIDGenerator(gen func() string) QueueOption {
	return func(q *QueueStore) { q.newID = gen }
}

// OpenQueueStore loads both queues from db exactly as they were last written
func OpenQueueStore(ctx context.Context, db *sql.DB, opts ...QueueOption) (*QueueStore, error) {
	if err := initializeDatabase(db); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	q := &QueueStore{
		db:     db,
		logger: slog.Default(),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(q)
	}

	if err := loadSlot(ctx, db, slotLedger, &q.ledger); err != nil {
		return nil, err
	}
	if err := loadSlot(ctx, db, slotTransactions, &q.txs); err != nil {
		return nil, err
	}
	q.logger.Debug("Queue store loaded", "ledger", len(q.ledger), "transactions", len(q.txs))
	return q, nil
}

func loadSlot[T any](ctx context.Context, db *sql.DB, slot string, into *[]T) error {
	var raw string
	err := db.QueryRowContext(ctx, `SELECT value FROM _fieldsync_slots WHERE slot = ?`, slot).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		*into = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read slot %s: %w", slot, err)
	}
	if err := json.Unmarshal([]byte(raw), into); err != nil {
		return fmt.Errorf("failed to decode slot %s: %w", slot, err)
	}
	return nil
}

// writeSlot replaces a slot's value inside one transaction
func (q *QueueStore) writeSlot(ctx context.Context, slot string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode slot %s: %w", slot, err)
	}
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO _fieldsync_slots (slot, value, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		ON CONFLICT(slot) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		slot, string(data)); err != nil {
		return fmt.Errorf("failed to write slot %s: %w", slot, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit slot %s: %w", slot, err)
	}
	return nil
}

// EnqueueLedgerRecord appends a new ledger record and returns its identifier
func (q *QueueStore) EnqueueLedgerRecord(ctx context.Context, draft LedgerDraft) (string, error) {
	if draft.WeightKg < 0 || math.IsNaN(draft.WeightKg) || math.IsInf(draft.WeightKg, 0) {
		return "", fmt.Errorf("%w: weight must be a non-negative number", ErrInvalidDraft)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UnixMilli()
	rec := fieldsync.PendingLedgerRecord{
		ID:                 draft.ID,
		SupplierID:         draft.SupplierID,
		MaterialType:       draft.MaterialType,
		WeightKg:           draft.WeightKg,
		CaptureTimestamp:   now,
		OperatorID:         draft.OperatorID,
		DeviceID:           draft.DeviceID,
		PhotoAttachmentKey: draft.PhotoAttachmentKey,
		Notes:              draft.Notes,
		IsSynced:           false,
		CreatedAt:          now,
	}
	if rec.ID == "" {
		rec.ID = q.newID()
	}

	next := append(slices.Clip(q.ledger), rec)
	if err := q.writeSlot(ctx, slotLedger, next); err != nil {
		return "", err
	}
	q.ledger = next
	q.logger.Debug("Ledger record queued", "id", rec.ID, "pending", len(q.ledger)+len(q.txs))
	return rec.ID, nil
}

// EnqueueTransactionRecord appends a new transaction and returns its identifier
func (q *QueueStore) EnqueueTransactionRecord(ctx context.Context, draft TransactionDraft) (string, error) {
	if draft.LedgerEntryID == "" {
		return "", ErrMissingLedgerRef
	}
	if draft.Amount < 0 || math.IsNaN(draft.Amount) || math.IsInf(draft.Amount, 0) {
		return "", fmt.Errorf("%w: amount must be a non-negative number", ErrInvalidDraft)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UnixMilli()
	currency := draft.Currency
	if currency == "" {
		currency = fieldsync.DefaultCurrency
	}
	rec := fieldsync.PendingTransactionRecord{
		ID:                   draft.ID,
		LedgerEntryID:        draft.LedgerEntryID,
		Amount:               draft.Amount,
		Currency:             currency,
		PaymentMethod:        draft.PaymentMethod,
		EPRFee:               draft.EPRFee,
		TransactionTimestamp: now,
		ReceiptKey:           draft.ReceiptKey,
		IsSynced:             false,
		CreatedAt:            now,
	}
	if rec.ID == "" {
		rec.ID = q.newID()
	}

	next := append(slices.Clip(q.txs), rec)
	if err := q.writeSlot(ctx, slotTransactions, next); err != nil {
		return "", err
	}
	q.txs = next
	q.logger.Debug("Transaction queued", "id", rec.ID, "ledger_entry_id", rec.LedgerEntryID, "pending", len(q.ledger)+len(q.txs))
	return rec.ID, nil
}

// PendingCount returns the number of records in both queues
func (q *QueueStore) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ledger) + len(q.txs)
}

// PendingLedger returns a snapshot of the ledger queue in insertion order
func (q *QueueStore) PendingLedger() []fieldsync.PendingLedgerRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.ledger)
}

// PendingTransactions returns a snapshot of the transaction queue in insertion order
func (q *QueueStore) PendingTransactions() []fieldsync.PendingTransactionRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.txs)
}

// PruneConfirmed removes the records of kind whose identifiers are in ids.
// Identifiers not in the queue are ignored. Returns the number removed.
func (q *QueueStore) PruneConfirmed(ctx context.Context, kind fieldsync.RecordKind, ids []string) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	confirmed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		confirmed[id] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	switch kind {
	case fieldsync.KindLedger:
		kept := slices.DeleteFunc(slices.Clone(q.ledger), func(r fieldsync.PendingLedgerRecord) bool {
			_, ok := confirmed[r.ID]
			return ok
		})
		removed := len(q.ledger) - len(kept)
		if removed == 0 {
			return 0, nil
		}
		if err := q.writeSlot(ctx, slotLedger, kept); err != nil {
			return 0, err
		}
		q.ledger = kept
		return removed, nil
	default:
		kept := slices.DeleteFunc(slices.Clone(q.txs), func(r fieldsync.PendingTransactionRecord) bool {
			_, ok := confirmed[r.ID]
			return ok
		})
		removed := len(q.txs) - len(kept)
		if removed == 0 {
			return 0, nil
		}
		if err := q.writeSlot(ctx, slotTransactions, kept); err != nil {
			return 0, err
		}
		q.txs = kept
		return removed, nil
	}
}
