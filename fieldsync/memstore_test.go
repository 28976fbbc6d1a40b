// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"sort"
	"sync"
)

// memStore is an in-memory EntityStore for service and handler tests
type memStore struct {
	mu      sync.Mutex
	ledger  map[string]PendingLedgerRecord
	txs     map[string]PendingTransactionRecord
	calls   map[string]int
	failFor map[string]error // id -> error returned by create
	failN   map[string]int   // id -> remaining failures before success
}

func newMemStore() *memStore {
	return &memStore{
		ledger:  make(map[string]PendingLedgerRecord),
		txs:     make(map[string]PendingTransactionRecord),
		calls:   make(map[string]int),
		failFor: make(map[string]error),
		failN:   make(map[string]int),
	}
}

func (m *memStore) fail(id string, err error, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[id] = err
	m.failN[id] = times
}

func (m *memStore) injected(id string) error {
	err, ok := m.failFor[id]
	if !ok {
		return nil
	}
	if m.failN[id] > 0 {
		m.failN[id]--
		return err
	}
	if m.failN[id] < 0 {
		return err
	}
	return nil
}

func (m *memStore) CreateLedgerEntry(_ context.Context, rec PendingLedgerRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[rec.ID]++
	if err := m.injected(rec.ID); err != nil {
		return false, err
	}
	if _, ok := m.ledger[rec.ID]; ok {
		return false, nil
	}
	m.ledger[rec.ID] = rec
	return true, nil
}

func (m *memStore) CreateTransaction(_ context.Context, rec PendingTransactionRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[rec.ID]++
	if err := m.injected(rec.ID); err != nil {
		return false, err
	}
	if _, ok := m.txs[rec.ID]; ok {
		return false, nil
	}
	m.txs[rec.ID] = rec
	return true, nil
}

func (m *memStore) ListLedgerEntries(_ context.Context, limit int) ([]PendingLedgerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PendingLedgerRecord, 0, len(m.ledger))
	for _, r := range m.ledger {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CaptureTimestamp > out[j].CaptureTimestamp })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ListTransactions(_ context.Context, limit int) ([]PendingTransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PendingTransactionRecord, 0, len(m.txs))
	for _, r := range m.txs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionTimestamp > out[j].TransactionTimestamp })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) callCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[id]
}

func ledgerRec(id, material string, weight float64) PendingLedgerRecord {
	return PendingLedgerRecord{
		ID:               id,
		SupplierID:       "S1",
		MaterialType:     material,
		WeightKg:         weight,
		CaptureTimestamp: 1_700_000_000_000,
	}
}

func txRec(id, ledgerID string, amount, fee float64) PendingTransactionRecord {
	return PendingTransactionRecord{
		ID:                   id,
		LedgerEntryID:        ledgerID,
		Amount:               amount,
		EPRFee:               fee,
		TransactionTimestamp: 1_700_000_000_000,
	}
}
