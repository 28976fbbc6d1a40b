// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"net/http"
	"sync"

	"github.com/VuDube/suitewasteos-18dec/fieldsync"
)

type stubStore struct {
	mu  sync.Mutex
	ids map[string]bool
}

func newStubStore() *stubStore {
	return &stubStore{ids: map[string]bool{}}
}

func (s *stubStore) create(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids[id] {
		return false, nil
	}
	s.ids[id] = true
	return true, nil
}

func (s *stubStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

func (s *stubStore) CreateLedgerEntry(_ context.Context, rec fieldsync.PendingLedgerRecord) (bool, error) {
	return s.create("L:" + rec.ID)
}

func (s *stubStore) CreateTransaction(_ context.Context, rec fieldsync.PendingTransactionRecord) (bool, error) {
	return s.create("T:" + rec.ID)
}

func (s *stubStore) ListLedgerEntries(context.Context, int) ([]fieldsync.PendingLedgerRecord, error) {
	return []fieldsync.PendingLedgerRecord{}, nil
}

func (s *stubStore) ListTransactions(context.Context, int) ([]fieldsync.PendingTransactionRecord, error) {
	return []fieldsync.PendingTransactionRecord{}, nil
}

func httptestMux(h *fieldsync.HTTPSyncHandlers) *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}
