// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/VuDube/suitewasteos-18dec/fieldsync"
	"github.com/stretchr/testify/require"
)

func newTestDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "field.db")
}

func openTestDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := OpenDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestQueue(t *testing.T) *QueueStore {
	t.Helper()
	db := openTestDB(t, newTestDBPath(t))
	q, err := OpenQueueStore(context.Background(), db, WithClock(fixedClock))
	require.NoError(t, err)
	return q
}

func fixedClock() time.Time {
	return time.UnixMilli(1_700_000_000_000)
}

// fakeTransport scripts server behaviour for coordinator tests
type fakeTransport struct {
	mu            sync.Mutex
	err           error             // returned for every submit when set
	reject        map[string]string // id -> error message
	ledgerBatches [][]string        // ids submitted per ledger call
	txBatches     [][]string        // ids submitted per transaction call
	block         chan struct{}     // when set, submits wait for it to close
	entered       chan struct{}     // signalled when a submit starts
	calls         atomic.Int32
	onSubmit      func(kind fieldsync.RecordKind)
}

func (f *fakeTransport) respond(ids []string) *fieldsync.SyncResponse {
	resp := &fieldsync.SyncResponse{SyncedIDs: []string{}, Errors: []fieldsync.RecordError{}}
	for _, id := range ids {
		if msg, ok := f.reject[id]; ok {
			resp.Errors = append(resp.Errors, fieldsync.RecordError{ID: id, Error: msg})
			continue
		}
		resp.SyncedIDs = append(resp.SyncedIDs, id)
	}
	return resp
}

func (f *fakeTransport) wait(kind fieldsync.RecordKind) {
	f.calls.Add(1)
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	if f.onSubmit != nil {
		f.onSubmit(kind)
	}
}

func (f *fakeTransport) SubmitLedger(_ context.Context, recs []fieldsync.PendingLedgerRecord) (*fieldsync.SyncResponse, error) {
	f.wait(fieldsync.KindLedger)
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	f.ledgerBatches = append(f.ledgerBatches, ids)
	if f.err != nil {
		return nil, f.err
	}
	return f.respond(ids), nil
}

func (f *fakeTransport) SubmitTransactions(_ context.Context, recs []fieldsync.PendingTransactionRecord) (*fieldsync.SyncResponse, error) {
	f.wait(fieldsync.KindTransactions)
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	f.txBatches = append(f.txBatches, ids)
	if f.err != nil {
		return nil, f.err
	}
	return f.respond(ids), nil
}

// recordingInvalidator counts Invalidate calls
type recordingInvalidator struct {
	mu    sync.Mutex
	calls [][]View
}

func (r *recordingInvalidator) Invalidate(_ context.Context, views []View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, views)
}

func (r *recordingInvalidator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// memEntityStore is a minimal idempotent store behind the real HTTP handlers
type memEntityStore struct {
	mu     sync.Mutex
	ledger map[string]fieldsync.PendingLedgerRecord
	txs    map[string]fieldsync.PendingTransactionRecord
}

func newMemEntityStore() *memEntityStore {
	return &memEntityStore{
		ledger: make(map[string]fieldsync.PendingLedgerRecord),
		txs:    make(map[string]fieldsync.PendingTransactionRecord),
	}
}

func (m *memEntityStore) CreateLedgerEntry(_ context.Context, rec fieldsync.PendingLedgerRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.MaterialType == "poison" {
		return false, fmt.Errorf("constraint violation")
	}
	if _, ok := m.ledger[rec.ID]; ok {
		return false, nil
	}
	m.ledger[rec.ID] = rec
	return true, nil
}

func (m *memEntityStore) CreateTransaction(_ context.Context, rec fieldsync.PendingTransactionRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txs[rec.ID]; ok {
		return false, nil
	}
	m.txs[rec.ID] = rec
	return true, nil
}

func (m *memEntityStore) ListLedgerEntries(context.Context, int) ([]fieldsync.PendingLedgerRecord, error) {
	return nil, nil
}

func (m *memEntityStore) ListTransactions(context.Context, int) ([]fieldsync.PendingTransactionRecord, error) {
	return nil, nil
}
