// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateID(t *testing.T) {
	require.NoError(t, validateID("id", "0b6f3c1e-9f7a-4c1b-8d55-3f2d1f0f9a11"))
	require.ErrorIs(t, validateID("id", ""), ErrBadRecord)
	require.ErrorIs(t, validateID("id", "has space"), ErrBadRecord)
	require.ErrorIs(t, validateID("id", "tab\there"), ErrBadRecord)
	require.ErrorIs(t, validateID("id", strings.Repeat("x", maxIDLength+1)), ErrBadRecord)
}

func TestNormalizeLedgerRecord(t *testing.T) {
	rec := ledgerRec("L1", "  Copper ", 12.5)
	rec.SupplierID = " S1 "
	out, err := normalizeLedgerRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, "Copper", out.MaterialType)
	assert.Equal(t, "S1", out.SupplierID)
	assert.True(t, out.IsSynced)
	assert.Equal(t, rec.CaptureTimestamp, out.CreatedAt)

	rec.CreatedAt = 5
	out, err = normalizeLedgerRecord(rec)
	require.NoError(t, err)
	assert.EqualValues(t, 5, out.CreatedAt)

	for name, mutate := range map[string]func(*PendingLedgerRecord){
		"missing supplier":  func(r *PendingLedgerRecord) { r.SupplierID = "" },
		"missing material":  func(r *PendingLedgerRecord) { r.MaterialType = " " },
		"negative weight":   func(r *PendingLedgerRecord) { r.WeightKg = -1 },
		"infinite weight":   func(r *PendingLedgerRecord) { r.WeightKg = math.Inf(1) },
		"missing timestamp": func(r *PendingLedgerRecord) { r.CaptureTimestamp = 0 },
	} {
		r := ledgerRec("L1", "Copper", 1)
		mutate(&r)
		_, err := normalizeLedgerRecord(r)
		assert.ErrorIs(t, err, ErrBadRecord, name)
	}
}

func TestNormalizeTransactionRecord(t *testing.T) {
	out, err := normalizeTransactionRecord(txRec("T1", "L9", 100, 1.25))
	require.NoError(t, err)
	assert.Equal(t, "ZAR", out.Currency)
	assert.True(t, out.IsSynced)

	rec := txRec("T1", "L9", 100, 1.25)
	rec.Currency = " eur "
	out, err = normalizeTransactionRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, "EUR", out.Currency)

	for name, mutate := range map[string]func(*PendingTransactionRecord){
		"missing ledger ref": func(r *PendingTransactionRecord) { r.LedgerEntryID = "" },
		"negative amount":    func(r *PendingTransactionRecord) { r.Amount = -0.01 },
		"nan fee":            func(r *PendingTransactionRecord) { r.EPRFee = math.NaN() },
		"bad currency":       func(r *PendingTransactionRecord) { r.Currency = "R$" },
		"missing timestamp":  func(r *PendingTransactionRecord) { r.TransactionTimestamp = -1 },
	} {
		r := txRec("T1", "L1", 1, 0)
		mutate(&r)
		_, err := normalizeTransactionRecord(r)
		assert.ErrorIs(t, err, ErrBadRecord, name)
	}
}

func TestBuildSyncResponse_KeepsOrder(t *testing.T) {
	resp := buildSyncResponse([]recordResult{
		resultSynced("a"),
		resultBadRecord("b", ErrBadRecord),
		resultSynced("c"),
	})
	assert.Equal(t, []string{"a", "c"}, resp.SyncedIDs)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "b", resp.Errors[0].ID)
	assert.False(t, resp.IsConfirmed("b"))
	assert.True(t, resp.IsConfirmed("c"))
}

func TestRecordKind(t *testing.T) {
	assert.True(t, KindLedger.Valid())
	assert.False(t, RecordKind("suppliers").Valid())
	assert.Equal(t, "/api/sync/ledger", KindLedger.SyncPath())
	assert.Equal(t, "/api/sync/transactions", KindTransactions.SyncPath())
	assert.Empty(t, RecordKind("x").SyncPath())
}
