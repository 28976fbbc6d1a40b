// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/VuDube/suitewasteos-18dec/fieldsync"
)

// SkipReason explains why SyncAll did nothing
type SkipReason string

const (
	SkipOffline  SkipReason = "offline"
	SkipIdle     SkipReason = "idle"
	SkipInFlight SkipReason = "in_flight"
)

// KindOutcome is the result of reconciling one queue snapshot
type KindOutcome struct {
	Kind      fieldsync.RecordKind
	Submitted int
	Confirmed int // identifiers reported persisted by the server
	Pruned    int // records actually removed from the queue
	Rejected  []fieldsync.RecordError
	Err       error
}

// SyncReport summarizes one SyncAll call
type SyncReport struct {
	Skipped      SkipReason
	Ledger       *KindOutcome
	Transactions *KindOutcome
	Invalidated  bool
}

// Pruned returns the number of records removed across both queues
func (r *SyncReport) Pruned() int {
	n := 0
	for _, o := range []*KindOutcome{r.Ledger, r.Transactions} {
		if o != nil {
			n += o.Pruned
		}
	}
	return n
}

// SyncCoordinator runs sync passes: snapshot each queue, submit it as one
// batch, and prune exactly the identifiers the server confirmed.
// At most one pass runs at a time; overlapping triggers are dropped.
type SyncCoordinator struct {
	queue       *QueueStore
	transport   Transport
	invalidator Invalidator
	logger      *slog.Logger

	online  atomic.Bool
	running atomic.Bool
}

// NewSyncCoordinator creates a coordinator that starts in the online state
func NewSyncCoordinator(queue *QueueStore, transport Transport, invalidator Invalidator, logger *slog.Logger) *SyncCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if invalidator == nil {
		invalidator = InvalidatorFunc(func(context.Context, []View) {})
	}
	c := &SyncCoordinator{
		queue:       queue,
		transport:   transport,
		invalidator: invalidator,
		logger:      logger,
	}
	c.online.Store(true)
	return c
}

// SetOnline records the current connectivity state
func (c *SyncCoordinator) SetOnline(online bool) { c.online.Store(online) }

// Online reports the last recorded connectivity state
func (c *SyncCoordinator) Online() bool { return c.online.Load() }

// PendingCount returns the number of unconfirmed records
func (c *SyncCoordinator) PendingCount() int { return c.queue.PendingCount() }

// SyncAll reconciles both queues once. Errors from each queue are joined;
// a failed queue keeps every record it held before the pass.
func (c *SyncCoordinator) SyncAll(ctx context.Context) (*SyncReport, error) {
	if !c.Online() {
		return &SyncReport{Skipped: SkipOffline}, nil
	}
	if c.queue.PendingCount() == 0 {
		return &SyncReport{Skipped: SkipIdle}, nil
	}
	if !c.running.CompareAndSwap(false, true) {
		c.logger.Debug("Sync pass already in flight, trigger dropped")
		return &SyncReport{Skipped: SkipInFlight}, nil
	}
	defer c.running.Store(false)

	report := &SyncReport{}
	var errs []error

	if snap := c.queue.PendingLedger(); len(snap) > 0 {
		report.Ledger = c.reconcile(ctx, fieldsync.KindLedger, len(snap), func() (*fieldsync.SyncResponse, error) {
			return c.transport.SubmitLedger(ctx, snap)
		})
		if report.Ledger.Err != nil {
			errs = append(errs, report.Ledger.Err)
		}
	}

	if snap := c.queue.PendingTransactions(); len(snap) > 0 {
		report.Transactions = c.reconcile(ctx, fieldsync.KindTransactions, len(snap), func() (*fieldsync.SyncResponse, error) {
			return c.transport.SubmitTransactions(ctx, snap)
		})
		if report.Transactions.Err != nil {
			errs = append(errs, report.Transactions.Err)
		}
	}

	if report.Pruned() > 0 {
		c.invalidator.Invalidate(ctx, slices.Clone(confirmedViews))
		report.Invalidated = true
	}

	c.logger.Info("Sync pass finished",
		"pruned", report.Pruned(),
		"pending", c.queue.PendingCount(),
		"failed", len(errs))
	return report, errors.Join(errs...)
}

func (c *SyncCoordinator) reconcile(ctx context.Context, kind fieldsync.RecordKind, submitted int, submit func() (*fieldsync.SyncResponse, error)) *KindOutcome {
	out := &KindOutcome{Kind: kind, Submitted: submitted}

	resp, err := submit()
	if err != nil {
		c.logger.Warn("Sync batch failed, records stay queued", "kind", kind, "records", submitted, "error", err)
		out.Err = fmt.Errorf("sync %s: %w", kind, err)
		return out
	}

	out.Confirmed = len(resp.SyncedIDs)
	out.Rejected = resp.Errors
	for _, re := range resp.Errors {
		c.logger.Warn("Record rejected by server", "kind", kind, "id", re.ID, "error", re.Error)
	}

	pruned, err := c.queue.PruneConfirmed(ctx, kind, resp.SyncedIDs)
	if err != nil {
		out.Err = fmt.Errorf("failed to prune confirmed %s records: %w", kind, err)
		return out
	}
	out.Pruned = pruned
	return out
}
