// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsync

// REST/JSON models for the reconciliation API

// SyncLedgerRequest is the body of POST /api/sync/ledger.
// A nil slice means the field was missing; both nil and empty are rejected.
type SyncLedgerRequest struct {
	PendingEntries []PendingLedgerRecord `json:"pendingEntries"`
}

// SyncTransactionsRequest is the body of POST /api/sync/transactions
type SyncTransactionsRequest struct {
	PendingTransactions []PendingTransactionRecord `json:"pendingTransactions"`
}

// SyncResponse reports which submitted identifiers are now persisted.
// It doubles as the client's per-attempt SyncOutcome.
type SyncResponse struct {
	SyncedIDs []string      `json:"syncedIds"`
	Errors    []RecordError `json:"errors"`
}

// RecordError describes a single record the endpoint could not persist
type RecordError struct {
	ID      string `json:"id"`
	Success bool   `json:"success"` // always false; kept for wire compatibility
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
}

// IsConfirmed reports whether id is in the synced set
func (r *SyncResponse) IsConfirmed(id string) bool {
	for _, s := range r.SyncedIDs {
		if s == id {
			return true
		}
	}
	return false
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// EPRStreamData aggregates one compliance stream
type EPRStreamData struct {
	Weight float64 `json:"weight"`
	Fees   float64 `json:"fees"`
}

// EPRReport summarizes compliance fees grouped by material stream
type EPRReport struct {
	TotalFees float64                  `json:"total_fees"`
	Streams   map[string]EPRStreamData `json:"streams"`
}
