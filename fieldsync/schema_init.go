// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// schemaMigrations creates the record tables. Statements are idempotent.
var schemaMigrations = []string{
	/*language=postgresql*/ `CREATE SCHEMA IF NOT EXISTS fieldsync`,

	// Weight captures, keyed by the client-generated identifier
	/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS fieldsync.ledger_entries (
		id                   TEXT PRIMARY KEY,
		supplier_id          TEXT NOT NULL,
		material_type        TEXT NOT NULL,
		weight_kg            DOUBLE PRECISION NOT NULL CHECK (weight_kg >= 0),
		capture_timestamp    BIGINT NOT NULL,
		operator_id          TEXT,
		device_id            TEXT,
		photo_attachment_key TEXT,
		notes                TEXT,
		is_synced            BOOLEAN NOT NULL DEFAULT TRUE,
		created_at           BIGINT NOT NULL,
		received_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// Payments. ledger_entry_id is deliberately not a foreign key: a transaction
	// may arrive before the ledger entry it settles.
	/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS fieldsync.transactions (
		id                    TEXT PRIMARY KEY,
		ledger_entry_id       TEXT NOT NULL,
		amount                DOUBLE PRECISION NOT NULL CHECK (amount >= 0),
		currency              TEXT NOT NULL,
		payment_method        TEXT,
		epr_fee               DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (epr_fee >= 0),
		transaction_timestamp BIGINT NOT NULL,
		receipt_key           TEXT,
		is_synced             BOOLEAN NOT NULL DEFAULT TRUE,
		created_at            BIGINT NOT NULL,
		received_at           TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS ledger_capture_ts_idx ON fieldsync.ledger_entries(capture_timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS tx_ledger_entry_idx ON fieldsync.transactions(ledger_entry_id)`,
	`CREATE INDEX IF NOT EXISTS tx_ts_idx ON fieldsync.transactions(transaction_timestamp DESC)`,
}

// initializeSchemaInTx creates the record tables within an existing transaction
func initializeSchemaInTx(ctx context.Context, tx pgx.Tx) error {
	for i, stmt := range schemaMigrations {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration %d: %w", i, err)
		}
	}
	return nil
}
