// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/VuDube/suitewasteos-18dec/internal/auth"
)

// maxRequestBytes caps a sync request body
const maxRequestBytes = 8 << 20

// ClientAuthenticator extracts the operator and device behind an HTTP request
type ClientAuthenticator interface {
	Identify(r *http.Request) (auth.Identity, error)
}

// HTTPSyncHandlers provides HTTP handlers for the reconciliation API
type HTTPSyncHandlers struct {
	service       *ReconcileService
	authenticator ClientAuthenticator
	logger        *slog.Logger
}

// NewHTTPSyncHandlers creates a new instance of sync handlers
func NewHTTPSyncHandlers(service *ReconcileService, authenticator ClientAuthenticator, logger *slog.Logger) *HTTPSyncHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSyncHandlers{
		service:       service,
		authenticator: authenticator,
		logger:        logger,
	}
}

// Register mounts every handler on mux
func (h *HTTPSyncHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST "+PathSyncLedger, h.HandleSyncLedger)
	mux.HandleFunc("POST "+PathSyncTransactions, h.HandleSyncTransactions)
	mux.HandleFunc("GET "+PathLedger, h.HandleListLedger)
	mux.HandleFunc("GET "+PathTransactions, h.HandleListTransactions)
	mux.HandleFunc("GET "+PathEPRReport, h.HandleEPRReport)
}

// HandleSyncLedger reconciles a batch of pending ledger entries
func (h *HTTPSyncHandlers) HandleSyncLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := h.begin(w, r, http.MethodPost)
	if !ok {
		return
	}

	var req SyncLedgerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Failed to parse sync request")
		return
	}
	if len(req.PendingEntries) == 0 {
		h.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "pendingEntries must be a non-empty array")
		return
	}

	response, err := h.service.SyncLedger(r.Context(), id.OperatorID, req.PendingEntries)
	if err != nil {
		h.writeSyncError(w, err, "pendingEntries", id)
		return
	}
	h.writeJSON(w, response)
}

// HandleSyncTransactions reconciles a batch of pending transactions
func (h *HTTPSyncHandlers) HandleSyncTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.begin(w, r, http.MethodPost)
	if !ok {
		return
	}

	var req SyncTransactionsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Failed to parse sync request")
		return
	}
	if len(req.PendingTransactions) == 0 {
		h.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "pendingTransactions must be a non-empty array")
		return
	}

	response, err := h.service.SyncTransactions(r.Context(), id.OperatorID, req.PendingTransactions)
	if err != nil {
		h.writeSyncError(w, err, "pendingTransactions", id)
		return
	}
	h.writeJSON(w, response)
}

// HandleListLedger returns recent ledger entries, newest first
func (h *HTTPSyncHandlers) HandleListLedger(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.begin(w, r, http.MethodGet); !ok {
		return
	}
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}
	rows, err := h.service.ListLedger(r.Context(), limit)
	if err != nil {
		h.logger.Error("List ledger error", "error", err)
		h.writeError(w, http.StatusInternalServerError, CodeListFailed, "Failed to list ledger entries")
		return
	}
	h.writeJSON(w, rows)
}

// HandleListTransactions returns recent transactions, newest first
func (h *HTTPSyncHandlers) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.begin(w, r, http.MethodGet); !ok {
		return
	}
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}
	rows, err := h.service.ListTransactions(r.Context(), limit)
	if err != nil {
		h.logger.Error("List transactions error", "error", err)
		h.writeError(w, http.StatusInternalServerError, CodeListFailed, "Failed to list transactions")
		return
	}
	h.writeJSON(w, rows)
}

// HandleEPRReport returns compliance fees grouped by material stream
func (h *HTTPSyncHandlers) HandleEPRReport(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.begin(w, r, http.MethodGet); !ok {
		return
	}
	report, err := h.service.EPRReport(r.Context())
	if err != nil {
		h.logger.Error("EPR report error", "error", err)
		h.writeError(w, http.StatusInternalServerError, CodeReportFailed, "Failed to build EPR report")
		return
	}
	h.writeJSON(w, report)
}

// begin checks the method and authenticates the caller
func (h *HTTPSyncHandlers) begin(w http.ResponseWriter, r *http.Request, method string) (auth.Identity, bool) {
	if r.Method != method {
		h.writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Only "+method+" method is allowed")
		return auth.Identity{}, false
	}
	if id, ok := auth.FromContext(r.Context()); ok {
		return id, true
	}
	id, err := h.authenticator.Identify(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, CodeAuthFailed, err.Error())
		return auth.Identity{}, false
	}
	return id, true
}

func (h *HTTPSyncHandlers) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	ls := r.URL.Query().Get("limit")
	if ls == "" {
		return 0, true
	}
	v, err := strconv.Atoi(ls)
	if err != nil || v < 1 || v > 1000 {
		h.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "limit must be between 1 and 1000")
		return 0, false
	}
	return v, true
}

func (h *HTTPSyncHandlers) writeSyncError(w http.ResponseWriter, err error, field string, id auth.Identity) {
	switch {
	case errors.Is(err, ErrEmptyBatch):
		h.writeError(w, http.StatusBadRequest, CodeInvalidRequest, field+" must be a non-empty array")
	case errors.Is(err, ErrBatchTooLarge):
		h.writeError(w, http.StatusRequestEntityTooLarge, CodeBatchTooLarge, err.Error())
	default:
		h.logger.Error("Failed to process sync", "error", err, "operator_id", id.OperatorID, "device_id", id.DeviceID)
		h.writeError(w, http.StatusInternalServerError, CodeSyncFailed, "Failed to process sync")
	}
}

func (h *HTTPSyncHandlers) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// writeError writes a standardized error response
func (h *HTTPSyncHandlers) writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	writeJSONError(w, statusCode, errorCode, message)
	h.logger.Debug("HTTP error response",
		"status_code", statusCode,
		"error_code", errorCode,
		"message", message)
}

func writeJSONError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
