// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import "context"

// EntityStore is the create/list contract of the central record store.
//
// Create methods must be idempotent by record ID: writing an ID that already
// exists leaves the stored row untouched and reports created=false with a nil
// error. There is no referential check between transactions and ledger entries.
type EntityStore interface {
	CreateLedgerEntry(ctx context.Context, rec PendingLedgerRecord) (created bool, err error)
	CreateTransaction(ctx context.Context, rec PendingTransactionRecord) (created bool, err error)

	// List methods return the newest records first, at most limit rows
	ListLedgerEntries(ctx context.Context, limit int) ([]PendingLedgerRecord, error)
	ListTransactions(ctx context.Context, limit int) ([]PendingTransactionRecord, error)
}
