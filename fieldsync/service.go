// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/VuDube/suitewasteos-18dec/internal/compliance"
	"golang.org/x/sync/errgroup"
)

// ErrServiceClosed is returned by every operation after Close
var ErrServiceClosed = errors.New("reconcile service has been closed")

// ServiceConfig holds configuration for the reconcile service
type ServiceConfig struct {
	MaxBatchSize      int           // Maximum records per sync request (0 = unlimited)
	Concurrency       int           // Records persisted in parallel per request
	PersistAttempts   int           // Attempts per record on retryable Postgres errors
	PersistRetryDelay time.Duration // Initial backoff between attempts, doubled each retry
	ReportWindow      int           // Rows scanned per table by list views and the EPR report

	StageMetrics    StageMetricsRecorder // Optional per-stage timing sink
	LogStageTimings bool                 // Log stage timings at debug level
}

// DefaultServiceConfig returns the settings used when no config is supplied
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		MaxBatchSize:      500,
		Concurrency:       8,
		PersistAttempts:   3,
		PersistRetryDelay: 50 * time.Millisecond,
		ReportWindow:      1000,
	}
}

// ReconcileService applies batches of offline-captured records to the central store.
// Every record is validated and persisted on its own; one failure never affects another.
type ReconcileService struct {
	store  EntityStore
	logger *slog.Logger
	config *ServiceConfig

	mu     sync.RWMutex
	closed bool
}

// NewReconcileService creates a service persisting into store
func NewReconcileService(store EntityStore, config *ServiceConfig, logger *slog.Logger) *ReconcileService {
	defaults := DefaultServiceConfig()
	if config == nil {
		config = defaults
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.PersistAttempts <= 0 {
		config.PersistAttempts = defaults.PersistAttempts
	}
	if config.ReportWindow <= 0 {
		config.ReportWindow = defaults.ReportWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileService{
		store:  store,
		logger: logger,
		config: config,
	}
}

// Close marks the service as closed. It does not close the underlying store.
func (s *ReconcileService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Debug("Reconcile service shutdown complete")
	return nil
}

func (s *ReconcileService) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrServiceClosed
	}
	return nil
}

func (s *ReconcileService) checkBatch(n int) error {
	if n == 0 {
		return ErrEmptyBatch
	}
	if s.config.MaxBatchSize > 0 && n > s.config.MaxBatchSize {
		return fmt.Errorf("%w: %d records exceeds limit of %d", ErrBatchTooLarge, n, s.config.MaxBatchSize)
	}
	return nil
}

// SyncLedger persists a batch of ledger records submitted by operatorID.
// Records without an operator are stamped with operatorID.
func (s *ReconcileService) SyncLedger(ctx context.Context, operatorID string, recs []PendingLedgerRecord) (*SyncResponse, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := s.checkBatch(len(recs)); err != nil {
		return nil, err
	}
	totalStart := s.stageStart()
	recs = slices.Clone(recs)

	validateStart := s.stageStart()
	results := make([]recordResult, len(recs))
	valid := make([]int, 0, len(recs))
	for i := range recs {
		rec, err := normalizeLedgerRecord(recs[i])
		if err != nil {
			results[i] = resultBadRecord(recs[i].ID, err)
			continue
		}
		if rec.OperatorID == "" {
			rec.OperatorID = operatorID
		}
		recs[i] = rec
		valid = append(valid, i)
	}
	s.observeStage(ctx, MetricsOpSyncLedger, MetricsStageValidate, validateStart, len(recs), len(recs)-len(valid))

	persistStart := s.stageStart()
	s.fanOut(valid, func(i int) {
		results[i] = s.persist(ctx, recs[i].ID, func() (bool, error) {
			return s.store.CreateLedgerEntry(ctx, recs[i])
		})
	})
	resp := buildSyncResponse(results)
	s.observeStage(ctx, MetricsOpSyncLedger, MetricsStagePersist, persistStart, len(valid), len(valid)-len(resp.SyncedIDs))
	s.observeStage(ctx, MetricsOpSyncLedger, MetricsStageTotal, totalStart, len(recs), len(resp.Errors))

	s.logger.Info("Ledger batch reconciled",
		"operator_id", operatorID,
		"submitted", len(recs),
		"synced", len(resp.SyncedIDs),
		"rejected", len(resp.Errors))
	return resp, nil
}

// SyncTransactions persists a batch of transaction records.
// The referenced ledger entry is not required to exist.
func (s *ReconcileService) SyncTransactions(ctx context.Context, operatorID string, recs []PendingTransactionRecord) (*SyncResponse, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := s.checkBatch(len(recs)); err != nil {
		return nil, err
	}
	totalStart := s.stageStart()
	recs = slices.Clone(recs)

	validateStart := s.stageStart()
	results := make([]recordResult, len(recs))
	valid := make([]int, 0, len(recs))
	for i := range recs {
		rec, err := normalizeTransactionRecord(recs[i])
		if err != nil {
			results[i] = resultBadRecord(recs[i].ID, err)
			continue
		}
		recs[i] = rec
		valid = append(valid, i)
	}
	s.observeStage(ctx, MetricsOpSyncTransactions, MetricsStageValidate, validateStart, len(recs), len(recs)-len(valid))

	persistStart := s.stageStart()
	s.fanOut(valid, func(i int) {
		results[i] = s.persist(ctx, recs[i].ID, func() (bool, error) {
			return s.store.CreateTransaction(ctx, recs[i])
		})
	})
	resp := buildSyncResponse(results)
	s.observeStage(ctx, MetricsOpSyncTransactions, MetricsStagePersist, persistStart, len(valid), len(valid)-len(resp.SyncedIDs))
	s.observeStage(ctx, MetricsOpSyncTransactions, MetricsStageTotal, totalStart, len(recs), len(resp.Errors))

	s.logger.Info("Transaction batch reconciled",
		"operator_id", operatorID,
		"submitted", len(recs),
		"synced", len(resp.SyncedIDs),
		"rejected", len(resp.Errors))
	return resp, nil
}

// fanOut runs fn for each index with bounded concurrency.
// fn never fails, so no sibling is ever cancelled.
func (s *ReconcileService) fanOut(indexes []int, fn func(i int)) {
	var g errgroup.Group
	g.SetLimit(s.config.Concurrency)
	for _, i := range indexes {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}

// persist runs an idempotent create, retrying transient Postgres failures
func (s *ReconcileService) persist(ctx context.Context, id string, create func() (bool, error)) recordResult {
	var created bool
	err := withRetry(ctx, s.config.PersistAttempts, s.config.PersistRetryDelay, func(attempt int) error {
		var err error
		created, err = create()
		if err != nil && attempt < s.config.PersistAttempts {
			s.logger.Debug("Retrying record persist", "id", id, "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		s.logger.Warn("Failed to persist record", "id", id, "error", err)
		return resultPersistFailed(id, err)
	}
	if !created {
		s.logger.Debug("Record already persisted", "id", id)
	}
	return resultSynced(id)
}

// ListLedger returns the newest ledger entries first
func (s *ReconcileService) ListLedger(ctx context.Context, limit int) ([]PendingLedgerRecord, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	return s.store.ListLedgerEntries(ctx, s.clampLimit(limit))
}

// ListTransactions returns the newest transactions first
func (s *ReconcileService) ListTransactions(ctx context.Context, limit int) ([]PendingTransactionRecord, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, s.clampLimit(limit))
}

func (s *ReconcileService) clampLimit(limit int) int {
	if limit <= 0 || limit > s.config.ReportWindow {
		return s.config.ReportWindow
	}
	return limit
}

// EPRReport aggregates compliance fees by material stream.
// Total fees cover every transaction in the window; streams only count
// transactions whose ledger entry has already arrived.
func (s *ReconcileService) EPRReport(ctx context.Context) (*EPRReport, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	ledger, err := s.store.ListLedgerEntries(ctx, s.config.ReportWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	txs, err := s.store.ListTransactions(ctx, s.config.ReportWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	byID := make(map[string]PendingLedgerRecord, len(ledger))
	for _, l := range ledger {
		byID[l.ID] = l
	}

	report := &EPRReport{Streams: make(map[string]EPRStreamData)}
	for _, t := range txs {
		report.TotalFees += t.EPRFee
		l, ok := byID[t.LedgerEntryID]
		if !ok {
			continue
		}
		name := compliance.Stream(l.MaterialType)
		d := report.Streams[name]
		d.Weight += l.WeightKg
		d.Fees += t.EPRFee
		report.Streams[name] = d
	}
	return report, nil
}
