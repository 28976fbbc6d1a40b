// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsync

// HTTP paths of the reconciliation API
const (
	// SyncPathPrefix is the reserved namespace eligible for background retry
	SyncPathPrefix = "/api/sync/"

	PathSyncLedger       = SyncPathPrefix + "ledger"
	PathSyncTransactions = SyncPathPrefix + "transactions"

	PathLedger       = "/api/ledger"
	PathTransactions = "/api/transactions"
	PathEPRReport    = "/api/epr-report"
)

// DefaultCurrency is applied to transactions submitted without a currency code
const DefaultCurrency = "ZAR"

// Per-record rejection reasons
const (
	ReasonBadRecord     = "bad_record"
	ReasonPersistFailed = "persist_failed"
	ReasonInternalError = "internal_error"
)

// Error codes written in ErrorResponse.Error
const (
	CodeMethodNotAllowed = "method_not_allowed"
	CodeAuthFailed       = "authentication_failed"
	CodeInvalidRequest   = "invalid_request"
	CodeBatchTooLarge    = "batch_too_large"
	CodeSyncFailed       = "sync_failed"
	CodeListFailed       = "list_failed"
	CodeReportFailed     = "report_failed"
)
