// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsqlite

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"
	"time"

	"github.com/VuDube/suitewasteos-18dec/fieldsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enqueueLedger(t *testing.T, q *QueueStore, id, material string, weight float64) {
	t.Helper()
	_, err := q.EnqueueLedgerRecord(context.Background(), LedgerDraft{ID: id, SupplierID: "S1", MaterialType: material, WeightKg: weight})
	require.NoError(t, err)
}

func TestSyncAll_OfflineThenOnline(t *testing.T) {
	q := newTestQueue(t)
	transport := &fakeTransport{}
	inv := &recordingInvalidator{}
	c := NewSyncCoordinator(q, transport, inv, nil)
	ctx := context.Background()

	enqueueLedger(t, q, "L1", "Copper", 12.5)
	require.Equal(t, 1, c.PendingCount())

	c.SetOnline(false)
	report, err := c.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, SkipOffline, report.Skipped)
	assert.Equal(t, 1, c.PendingCount())
	assert.Zero(t, transport.calls.Load())

	c.SetOnline(true)
	report, err = c.SyncAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Skipped)
	assert.Zero(t, c.PendingCount())
	require.NotNil(t, report.Ledger)
	assert.Equal(t, 1, report.Ledger.Pruned)
	assert.Nil(t, report.Transactions)
	assert.True(t, report.Invalidated)

	require.Equal(t, 1, inv.count())
	assert.Equal(t, []View{ViewLedger, ViewTransactions, ViewSuppliers, ViewDashboard}, inv.calls[0])
}

func TestSyncAll_PartialConfirmationKeepsRejected(t *testing.T) {
	q := newTestQueue(t)
	transport := &fakeTransport{reject: map[string]string{"L2": "bad weight"}}
	inv := &recordingInvalidator{}
	c := NewSyncCoordinator(q, transport, inv, nil)

	enqueueLedger(t, q, "L1", "Copper", 1)
	enqueueLedger(t, q, "L2", "Copper", 2)

	report, err := c.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ledger.Confirmed)
	require.Len(t, report.Ledger.Rejected, 1)
	assert.Equal(t, "L2", report.Ledger.Rejected[0].ID)

	pending := q.PendingLedger()
	require.Len(t, pending, 1)
	assert.Equal(t, "L2", pending[0].ID)
	assert.InDelta(t, 2.0, pending[0].WeightKg, 1e-9, "rejected record is left untouched")
	assert.Equal(t, 1, inv.count())
}

func TestSyncAll_TransportFailureLeavesQueue(t *testing.T) {
	q := newTestQueue(t)
	netErr := &TransportError{URL: "http://server/api/sync/ledger", Err: syscall.ECONNREFUSED}
	transport := &fakeTransport{err: netErr}
	inv := &recordingInvalidator{}
	c := NewSyncCoordinator(q, transport, inv, nil)

	enqueueLedger(t, q, "L1", "Copper", 1)
	_, err := q.EnqueueTransactionRecord(context.Background(), TransactionDraft{ID: "T1", LedgerEntryID: "L1", Amount: 3})
	require.NoError(t, err)

	report, err := c.SyncAll(context.Background())
	require.Error(t, err)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Error(t, report.Ledger.Err)
	assert.Error(t, report.Transactions.Err)

	assert.Equal(t, 2, c.PendingCount())
	assert.Zero(t, inv.count())
}

func TestSyncAll_IdleWhenNothingPending(t *testing.T) {
	transport := &fakeTransport{}
	c := NewSyncCoordinator(newTestQueue(t), transport, nil, nil)

	report, err := c.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SkipIdle, report.Skipped)
	assert.Zero(t, transport.calls.Load())
}

func TestSyncAll_NoInvalidationWithoutPrune(t *testing.T) {
	q := newTestQueue(t)
	inv := &recordingInvalidator{}
	c := NewSyncCoordinator(q, &fakeTransport{reject: map[string]string{"L1": "nope"}}, inv, nil)
	enqueueLedger(t, q, "L1", "Copper", 1)

	report, err := c.SyncAll(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Invalidated)
	assert.Zero(t, inv.count())
	assert.Equal(t, 1, c.PendingCount())
}

func TestSyncAll_DropsOverlappingTrigger(t *testing.T) {
	q := newTestQueue(t)
	transport := &fakeTransport{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := NewSyncCoordinator(q, transport, nil, nil)
	enqueueLedger(t, q, "L1", "Copper", 1)

	done := make(chan *SyncReport, 1)
	go func() {
		r, _ := c.SyncAll(context.Background())
		done <- r
	}()
	<-transport.entered

	report, err := c.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SkipInFlight, report.Skipped)

	close(transport.block)
	first := <-done
	assert.Equal(t, 1, first.Pruned())
	assert.EqualValues(t, 1, transport.calls.Load())
	assert.Zero(t, c.PendingCount())
}

func TestSyncAll_RecordsQueuedDuringPassWaitForNextPass(t *testing.T) {
	q := newTestQueue(t)
	transport := &fakeTransport{}
	transport.onSubmit = func(kind fieldsync.RecordKind) {
		if kind == fieldsync.KindLedger && transport.calls.Load() == 1 {
			enqueueLedger(t, q, "L2", "Glass", 1)
		}
	}
	c := NewSyncCoordinator(q, transport, nil, nil)
	enqueueLedger(t, q, "L1", "Copper", 1)

	_, err := c.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"L1"}}, transport.ledgerBatches)
	require.Equal(t, 1, c.PendingCount())
	assert.Equal(t, "L2", q.PendingLedger()[0].ID)

	_, err = c.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, c.PendingCount())
}

func TestSyncAll_NoRecordLost(t *testing.T) {
	q := newTestQueue(t)
	transport := &fakeTransport{reject: map[string]string{"L3": "flaky"}}
	c := NewSyncCoordinator(q, transport, nil, nil)
	ctx := context.Background()

	enqueued := map[string]bool{}
	confirmed := map[string]bool{}
	for round := 0; round < 4; round++ {
		for _, id := range []string{"L1", "L2", "L3", "L4", "L5"}[round : round+2] {
			if !enqueued[id] {
				enqueueLedger(t, q, id, "PET", 1)
				enqueued[id] = true
			}
		}
		if round == 2 {
			transport.err = errors.New("network down")
		} else {
			transport.err = nil
		}
		report, _ := c.SyncAll(ctx)
		if report.Ledger != nil && report.Ledger.Err == nil {
			for _, id := range transport.ledgerBatches[len(transport.ledgerBatches)-1] {
				if id != "L3" {
					confirmed[id] = true
				}
			}
		}
	}

	resident := map[string]bool{}
	for _, r := range q.PendingLedger() {
		resident[r.ID] = true
	}
	for id := range enqueued {
		assert.True(t, confirmed[id] || resident[id], "record %s lost", id)
	}
	assert.True(t, resident["L3"])
}

func TestSyncAll_AgainstEndpoint(t *testing.T) {
	store := newMemEntityStore()
	jwtAuth := fieldsync.NewJWTAuth("e2e-secret", nil)
	handlers := fieldsync.NewHTTPSyncHandlers(fieldsync.NewReconcileService(store, nil, nil), jwtAuth, nil)
	mux := http.NewServeMux()
	handlers.Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	token, err := jwtAuth.GenerateToken("op-1", "tablet-1", time.Hour)
	require.NoError(t, err)

	q := newTestQueue(t)
	inv := &recordingInvalidator{}
	c := NewSyncCoordinator(q, NewHTTPTransport(srv.URL, StaticToken(token), nil, nil), inv, nil)
	ctx := context.Background()

	// transaction settling a ledger entry the server has never seen
	_, err = q.EnqueueTransactionRecord(ctx, TransactionDraft{ID: "T1", LedgerEntryID: "L9", Amount: 100, EPRFee: 1.25})
	require.NoError(t, err)
	enqueueLedger(t, q, "L1", "Copper", 12.5)
	enqueueLedger(t, q, "L2", "poison", 1)

	report, err := c.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Transactions.Pruned)
	assert.Equal(t, 1, report.Ledger.Pruned)
	require.Len(t, report.Ledger.Rejected, 1)
	assert.Equal(t, "L2", report.Ledger.Rejected[0].ID)
	assert.Equal(t, 1, inv.count())

	assert.Equal(t, 1, c.PendingCount())
	assert.Contains(t, store.txs, "T1")
	assert.Equal(t, "op-1", store.ledger["L1"].OperatorID)

	// server already holds L1; a replayed duplicate is still confirmed
	resp, err := NewHTTPTransport(srv.URL, StaticToken(token), nil, nil).SubmitLedger(ctx, []fieldsync.PendingLedgerRecord{store.ledger["L1"]})
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, resp.SyncedIDs)
}
