// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsync

// Record models shared by the on-device queue and the reconciliation endpoint.
// The JSON shape is the wire format for both directions.

// PendingLedgerRecord is a weight capture made by a field operator.
// ID is assigned once on the device and is the idempotency key for reconciliation.
type PendingLedgerRecord struct {
	ID                 string  `json:"id"`
	SupplierID         string  `json:"supplier_id"`
	MaterialType       string  `json:"material_type"`
	WeightKg           float64 `json:"weight_kg"`
	CaptureTimestamp   int64   `json:"capture_timestamp"` // epoch millis
	OperatorID         string  `json:"operator_id,omitempty"`
	DeviceID           string  `json:"device_id,omitempty"`
	PhotoAttachmentKey string  `json:"photo_attachment_key,omitempty"`
	Notes              string  `json:"notes,omitempty"`
	IsSynced           bool    `json:"is_synced"`
	CreatedAt          int64   `json:"created_at"` // epoch millis
}

// PendingTransactionRecord settles exactly one ledger record.
// The referenced ledger record does not need to exist remotely at sync time.
type PendingTransactionRecord struct {
	ID                   string  `json:"id"`
	LedgerEntryID        string  `json:"ledger_entry_id"`
	Amount               float64 `json:"amount"`
	Currency             string  `json:"currency"`
	PaymentMethod        string  `json:"payment_method,omitempty"`
	EPRFee               float64 `json:"epr_fee"` // compliance fee, derived from weight at capture
	TransactionTimestamp int64   `json:"transaction_timestamp"` // epoch millis
	ReceiptKey           string  `json:"receipt_key,omitempty"`
	IsSynced             bool    `json:"is_synced"`
	CreatedAt            int64   `json:"created_at"` // epoch millis
}

// RecordKind names one of the two independently reconciled queues
type RecordKind string

const (
	KindLedger       RecordKind = "ledger"
	KindTransactions RecordKind = "transactions"
)

// Valid reports whether k is a known record kind
func (k RecordKind) Valid() bool {
	return k == KindLedger || k == KindTransactions
}

// SyncPath returns the reconciliation endpoint path for the kind
func (k RecordKind) SyncPath() string {
	switch k {
	case KindLedger:
		return PathSyncLedger
	case KindTransactions:
		return PathSyncTransactions
	default:
		return ""
	}
}
