// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/VuDube/suitewasteos-18dec/fieldsync"
)

// RetryConfig holds configuration for the retry agent
type RetryConfig struct {
	Retention time.Duration // stored requests older than this are dropped
	Interval  time.Duration // replay cadence of Run
}

// DefaultRetryConfig returns a 24h retention with a 5 minute replay interval
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		Retention: 24 * time.Hour,
		Interval:  5 * time.Minute,
	}
}

// ReplayResult counts what one Replay call did
type ReplayResult struct {
	Delivered int // got an HTTP response and were removed
	Rejected  int // subset of Delivered answered with a non-2xx status
	Failed    int // transport error, kept for the next replay
	Expired   int // dropped for exceeding retention
	Remaining int
}

// RetryAgent is an http.RoundTripper that stores sync submissions failing at
// the transport layer and replays them later. Submissions that reached the
// server are never stored, whatever the status code.
type RetryAgent struct {
	db     *sql.DB
	next   http.RoundTripper
	config *RetryConfig
	logger *slog.Logger
	now    func() time.Time

	notify   chan struct{}
	replayMu sync.Mutex
}

// NewRetryAgent wraps next (http.DefaultTransport when nil)
func NewRetryAgent(db *sql.DB, next http.RoundTripper, config *RetryConfig, logger *slog.Logger) (*RetryAgent, error) {
	if err := initializeDatabase(db); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	defaults := DefaultRetryConfig()
	if config == nil {
		config = defaults
	}
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if next == nil {
		next = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryAgent{
		db:     db,
		next:   next,
		config: config,
		logger: logger,
		now:    time.Now,
		notify: make(chan struct{}, 1),
	}, nil
}

func eligibleForRetry(req *http.Request) bool {
	return req.Method == http.MethodPost && strings.HasPrefix(req.URL.Path, fieldsync.SyncPathPrefix)
}

// RoundTrip forwards req. An eligible request that fails without a response
// is stored for replay and the original error is returned unchanged.
func (a *RetryAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if !eligibleForRetry(req) {
		return a.next.RoundTrip(req)
	}

	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		b, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		body = b
	}
	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
	out.ContentLength = int64(len(body))

	resp, err := a.next.RoundTrip(out)
	if err == nil {
		return resp, nil
	}
	if errors.Is(req.Context().Err(), context.Canceled) {
		return nil, err
	}

	// the caller's context may already be done; storing must still succeed
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(req.Context()), 5*time.Second)
	defer cancel()
	if serr := a.store(storeCtx, out, body); serr != nil {
		a.logger.Error("Failed to store request for retry", "url", out.URL.String(), "error", serr)
	} else {
		a.logger.Info("Sync request stored for background retry", "url", out.URL.String(), "error", err)
	}
	return nil, err
}

func (a *RetryAgent) store(ctx context.Context, req *http.Request, body []byte) error {
	headers, err := json.Marshal(req.Header)
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO _fieldsync_retry (method, url, headers, body, queued_at)
		VALUES (?, ?, ?, ?, ?)`,
		req.Method, req.URL.String(), string(headers), body, a.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert retry entry: %w", err)
	}
	return nil
}

// Notify requests an immediate replay from Run
func (a *RetryAgent) Notify() {
	select {
	case a.notify <- struct{}{}:
	default:
	}
}

// Pending returns the number of stored requests
func (a *RetryAgent) Pending(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM _fieldsync_retry`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count retry entries: %w", err)
	}
	return n, nil
}

type retryEntry struct {
	seq      int64
	method   string
	url      string
	headers  http.Header
	body     []byte
	queuedAt int64
}

// Replay resends stored requests oldest first. It stops at the first
// transport error, keeping that request and every later one.
func (a *RetryAgent) Replay(ctx context.Context) (ReplayResult, error) {
	a.replayMu.Lock()
	defer a.replayMu.Unlock()

	var res ReplayResult
	cutoff := a.now().Add(-a.config.Retention).UnixMilli()
	r, err := a.db.ExecContext(ctx, `DELETE FROM _fieldsync_retry WHERE queued_at < ?`, cutoff)
	if err != nil {
		return res, fmt.Errorf("failed to expire retry entries: %w", err)
	}
	if n, err := r.RowsAffected(); err == nil && n > 0 {
		res.Expired = int(n)
		a.logger.Info("Expired retry entries", "count", n)
	}

	entries, err := a.load(ctx)
	if err != nil {
		return res, err
	}

	for i, e := range entries {
		req, err := http.NewRequestWithContext(ctx, e.method, e.url, bytes.NewReader(e.body))
		if err != nil {
			a.logger.Error("Dropping unreplayable retry entry", "seq", e.seq, "error", err)
			if err := a.delete(ctx, e.seq); err != nil {
				return res, err
			}
			continue
		}
		req.Header = e.headers

		resp, err := a.next.RoundTrip(req)
		if err != nil {
			if _, uerr := a.db.ExecContext(ctx, `UPDATE _fieldsync_retry SET attempts = attempts + 1 WHERE seq = ?`, e.seq); uerr != nil {
				return res, fmt.Errorf("failed to update retry entry: %w", uerr)
			}
			res.Failed = 1
			res.Remaining = len(entries) - i
			a.logger.Debug("Replay still failing", "url", e.url, "error", err)
			return res, nil
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if err := a.delete(ctx, e.seq); err != nil {
			return res, err
		}
		res.Delivered++
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			res.Rejected++
			a.logger.Warn("Replayed request rejected by server", "url", e.url, "status", resp.StatusCode)
		}
	}
	return res, nil
}

func (a *RetryAgent) load(ctx context.Context) ([]retryEntry, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT seq, method, url, headers, body, queued_at
		FROM _fieldsync_retry ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query retry entries: %w", err)
	}
	defer rows.Close()

	var entries []retryEntry
	for rows.Next() {
		var e retryEntry
		var headers string
		if err := rows.Scan(&e.seq, &e.method, &e.url, &headers, &e.body, &e.queuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan retry entry: %w", err)
		}
		if err := json.Unmarshal([]byte(headers), &e.headers); err != nil {
			return nil, fmt.Errorf("failed to decode headers of retry entry %d: %w", e.seq, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (a *RetryAgent) delete(ctx context.Context, seq int64) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM _fieldsync_retry WHERE seq = ?`, seq); err != nil {
		return fmt.Errorf("failed to delete retry entry %d: %w", seq, err)
	}
	return nil
}

// Run replays on a fixed interval and whenever Notify is called, until ctx ends
func (a *RetryAgent) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-a.notify:
		}
		res, err := a.Replay(ctx)
		if err != nil {
			a.logger.Error("Replay failed", "error", err)
			continue
		}
		if res.Delivered > 0 || res.Expired > 0 {
			a.logger.Info("Replay finished",
				"delivered", res.Delivered,
				"rejected", res.Rejected,
				"expired", res.Expired,
				"remaining", res.Remaining)
		}
	}
}
