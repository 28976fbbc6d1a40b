// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsqlite

import (
	"context"
	"log/slog"
)

// View names a cached read model owned by the host application
type View string

const (
	ViewLedger       View = "ledger"
	ViewTransactions View = "transactions"
	ViewSuppliers    View = "suppliers"
	ViewDashboard    View = "dashboard"
)

// confirmedViews are refreshed after any pass that pruned a record
var confirmedViews = []View{ViewLedger, ViewTransactions, ViewSuppliers, ViewDashboard}

// Invalidator tells the host application which cached views are stale
type Invalidator interface {
	Invalidate(ctx context.Context, views []View)
}

// InvalidatorFunc adapts a function to Invalidator
type InvalidatorFunc func(ctx context.Context, views []View)

func (f InvalidatorFunc) Invalidate(ctx context.Context, views []View) {
	f(ctx, views)
}

// LogInvalidator logs invalidations; used by headless hosts with no view cache
type LogInvalidator struct {
	Logger *slog.Logger
}

func (l LogInvalidator) Invalidate(_ context.Context, views []View) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Views invalidated", "views", views)
}
