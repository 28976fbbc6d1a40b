// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements EntityStore on PostgreSQL.
// Every create runs as its own statement so one failing record cannot abort another.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore creates the record tables (if missing) and returns a store.
// The caller owns the pool lifecycle.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return initializeSchemaInTx(ctx, tx)
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize record schema: %w", err)
	}
	logger.Debug("Record schema initialized")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Pool returns the underlying connection pool
func (p *PostgresStore) Pool() *pgxpool.Pool {
	return p.pool
}

// CreateLedgerEntry inserts rec unless its id already exists
func (p *PostgresStore) CreateLedgerEntry(ctx context.Context, rec PendingLedgerRecord) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO fieldsync.ledger_entries
			(id, supplier_id, material_type, weight_kg, capture_timestamp,
			 operator_id, device_id, photo_attachment_key, notes, is_synced, created_at)
		VALUES (@id, @supplier_id, @material_type, @weight_kg, @capture_timestamp,
			NULLIF(@operator_id, ''), NULLIF(@device_id, ''), NULLIF(@photo_attachment_key, ''),
			NULLIF(@notes, ''), TRUE, @created_at)
		ON CONFLICT (id) DO NOTHING`,
		pgx.NamedArgs{
			"id":                   rec.ID,
			"supplier_id":          rec.SupplierID,
			"material_type":        rec.MaterialType,
			"weight_kg":            rec.WeightKg,
			"capture_timestamp":    rec.CaptureTimestamp,
			"operator_id":          rec.OperatorID,
			"device_id":            rec.DeviceID,
			"photo_attachment_key": rec.PhotoAttachmentKey,
			"notes":                rec.Notes,
			"created_at":           rec.CreatedAt,
		})
	if err != nil {
		return false, fmt.Errorf("insert ledger entry %s: %w", rec.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// CreateTransaction inserts rec unless its id already exists
func (p *PostgresStore) CreateTransaction(ctx context.Context, rec PendingTransactionRecord) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO fieldsync.transactions
			(id, ledger_entry_id, amount, currency, payment_method, epr_fee,
			 transaction_timestamp, receipt_key, is_synced, created_at)
		VALUES (@id, @ledger_entry_id, @amount, @currency, NULLIF(@payment_method, ''), @epr_fee,
			@transaction_timestamp, NULLIF(@receipt_key, ''), TRUE, @created_at)
		ON CONFLICT (id) DO NOTHING`,
		pgx.NamedArgs{
			"id":                    rec.ID,
			"ledger_entry_id":       rec.LedgerEntryID,
			"amount":                rec.Amount,
			"currency":              rec.Currency,
			"payment_method":        rec.PaymentMethod,
			"epr_fee":               rec.EPRFee,
			"transaction_timestamp": rec.TransactionTimestamp,
			"receipt_key":           rec.ReceiptKey,
			"created_at":            rec.CreatedAt,
		})
	if err != nil {
		return false, fmt.Errorf("insert transaction %s: %w", rec.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListLedgerEntries returns the newest ledger entries first
func (p *PostgresStore) ListLedgerEntries(ctx context.Context, limit int) ([]PendingLedgerRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, supplier_id, material_type, weight_kg, capture_timestamp,
			COALESCE(operator_id, ''), COALESCE(device_id, ''), COALESCE(photo_attachment_key, ''),
			COALESCE(notes, ''), is_synced, created_at
		FROM fieldsync.ledger_entries
		ORDER BY capture_timestamp DESC, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	out := []PendingLedgerRecord{}
	for rows.Next() {
		var r PendingLedgerRecord
		if err := rows.Scan(&r.ID, &r.SupplierID, &r.MaterialType, &r.WeightKg, &r.CaptureTimestamp,
			&r.OperatorID, &r.DeviceID, &r.PhotoAttachmentKey, &r.Notes, &r.IsSynced, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return out, nil
}

// ListTransactions returns the newest transactions first
func (p *PostgresStore) ListTransactions(ctx context.Context, limit int) ([]PendingTransactionRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, ledger_entry_id, amount, currency, COALESCE(payment_method, ''), epr_fee,
			transaction_timestamp, COALESCE(receipt_key, ''), is_synced, created_at
		FROM fieldsync.transactions
		ORDER BY transaction_timestamp DESC, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := []PendingTransactionRecord{}
	for rows.Next() {
		var r PendingTransactionRecord
		if err := rows.Scan(&r.ID, &r.LedgerEntryID, &r.Amount, &r.Currency, &r.PaymentMethod, &r.EPRFee,
			&r.TransactionTimestamp, &r.ReceiptKey, &r.IsSynced, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}
