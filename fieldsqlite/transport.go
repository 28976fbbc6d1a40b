// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsqlite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/VuDube/suitewasteos-18dec/fieldsync"
)

// Transport submits one batch of one record kind to the reconciliation endpoint
type Transport interface {
	SubmitLedger(ctx context.Context, recs []fieldsync.PendingLedgerRecord) (*fieldsync.SyncResponse, error)
	SubmitTransactions(ctx context.Context, recs []fieldsync.PendingTransactionRecord) (*fieldsync.SyncResponse, error)
}

// TransportError means the batch never produced a usable response.
// Nothing about the batch is known to have been persisted.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sync request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectedError means the server refused the whole batch
type RejectedError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RejectedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server rejected batch with status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("server rejected batch with status %d: %s", e.StatusCode, e.Message)
}

// HTTPTransport talks to the reconciliation endpoint over HTTP
type HTTPTransport struct {
	BaseURL string
	Token   func(context.Context) (string, error) // returns JWT
	HTTP    *http.Client
	logger  *slog.Logger
}

// NewHTTPTransport creates a transport. A nil client gets a 60s timeout default.
func NewHTTPTransport(baseURL string, tok func(context.Context) (string, error), client *http.Client, logger *slog.Logger) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   tok,
		HTTP:    client,
		logger:  logger,
	}
}

// StaticToken returns a token func that always yields token
func StaticToken(token string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return token, nil }
}

// SubmitLedger posts a ledger batch
func (t *HTTPTransport) SubmitLedger(ctx context.Context, recs []fieldsync.PendingLedgerRecord) (*fieldsync.SyncResponse, error) {
	if len(recs) == 0 {
		return nil, fieldsync.ErrEmptyBatch
	}
	return t.post(ctx, fieldsync.PathSyncLedger, fieldsync.SyncLedgerRequest{PendingEntries: recs})
}

// SubmitTransactions posts a transaction batch
func (t *HTTPTransport) SubmitTransactions(ctx context.Context, recs []fieldsync.PendingTransactionRecord) (*fieldsync.SyncResponse, error) {
	if len(recs) == 0 {
		return nil, fieldsync.ErrEmptyBatch
	}
	return t.post(ctx, fieldsync.PathSyncTransactions, fieldsync.SyncTransactionsRequest{PendingTransactions: recs})
}

func (t *HTTPTransport) post(ctx context.Context, path string, payload any) (*fieldsync.SyncResponse, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := t.BaseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.Token != nil {
		token, err := t.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get token: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.HTTP.Do(httpReq)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		rejected := &RejectedError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var er fieldsync.ErrorResponse
		if json.Unmarshal(body, &er) == nil && er.Error != "" {
			rejected.Code = er.Error
			rejected.Message = er.Message
		}
		return nil, rejected
	}

	var out fieldsync.SyncResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	t.logger.Debug("Sync batch submitted", "path", path, "synced", len(out.SyncedIDs), "errors", len(out.Errors))
	return &out, nil
}
