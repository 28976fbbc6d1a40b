// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"
)

// Validation error sentinels for better error mapping
var (
	ErrEmptyBatch    = errors.New("batch must be a non-empty array")
	ErrBatchTooLarge = errors.New("batch too large")
	ErrBadRecord     = errors.New("bad_record")
)

const maxIDLength = 128

// validateID checks a client-generated identifier
func validateID(field, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s is required", ErrBadRecord, field)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: %s longer than %d bytes", ErrBadRecord, field, maxIDLength)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: %s contains whitespace or control characters", ErrBadRecord, field)
		}
	}
	return nil
}

// validateAmount checks a non-negative finite decimal
func validateAmount(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must be finite", ErrBadRecord, field)
	}
	if v < 0 {
		return fmt.Errorf("%w: %s must be >= 0", ErrBadRecord, field)
	}
	return nil
}

// normalizeLedgerRecord validates rec and returns the copy that will be persisted
func normalizeLedgerRecord(rec PendingLedgerRecord) (PendingLedgerRecord, error) {
	if err := validateID("id", rec.ID); err != nil {
		return rec, err
	}
	rec.SupplierID = strings.TrimSpace(rec.SupplierID)
	if err := validateID("supplier_id", rec.SupplierID); err != nil {
		return rec, err
	}
	rec.MaterialType = strings.TrimSpace(rec.MaterialType)
	if rec.MaterialType == "" {
		return rec, fmt.Errorf("%w: material_type is required", ErrBadRecord)
	}
	if err := validateAmount("weight_kg", rec.WeightKg); err != nil {
		return rec, err
	}
	if rec.CaptureTimestamp <= 0 {
		return rec, fmt.Errorf("%w: capture_timestamp is required", ErrBadRecord)
	}
	if rec.CreatedAt <= 0 {
		rec.CreatedAt = rec.CaptureTimestamp
	}
	rec.IsSynced = true
	return rec, nil
}

// normalizeTransactionRecord validates rec and returns the copy that will be persisted.
// The ledger reference is checked for shape only, never for existence.
func normalizeTransactionRecord(rec PendingTransactionRecord) (PendingTransactionRecord, error) {
	if err := validateID("id", rec.ID); err != nil {
		return rec, err
	}
	if err := validateID("ledger_entry_id", rec.LedgerEntryID); err != nil {
		return rec, err
	}
	if err := validateAmount("amount", rec.Amount); err != nil {
		return rec, err
	}
	if err := validateAmount("epr_fee", rec.EPRFee); err != nil {
		return rec, err
	}
	rec.Currency = strings.ToUpper(strings.TrimSpace(rec.Currency))
	if rec.Currency == "" {
		rec.Currency = DefaultCurrency
	}
	if !isValidCurrencyCode(rec.Currency) {
		return rec, fmt.Errorf("%w: invalid currency %q", ErrBadRecord, rec.Currency)
	}
	if rec.TransactionTimestamp <= 0 {
		return rec, fmt.Errorf("%w: transaction_timestamp is required", ErrBadRecord)
	}
	if rec.CreatedAt <= 0 {
		rec.CreatedAt = rec.TransactionTimestamp
	}
	rec.IsSynced = true
	return rec, nil
}

// isValidCurrencyCode checks an ISO 4217 style code (^[A-Z]{3}$)
func isValidCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
