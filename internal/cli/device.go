// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/VuDube/suitewasteos-18dec/fieldsqlite"
	"github.com/VuDube/suitewasteos-18dec/internal/config"
	"github.com/spf13/cobra"
)

// DeviceOptions are the flags shared by commands that touch the local queue.
type DeviceOptions struct {
	*RootOptions
	QueueDB   string
	ServerURL string
	Token     string
	Retention time.Duration
}

// bindDeviceFlags registers the queue and server flags with defaults from cfg
func bindDeviceFlags(cmd *cobra.Command, opts *DeviceOptions, cfg *config.Config) {
	cmd.Flags().StringVar(&opts.QueueDB, "queue", cfg.QueueDB, "path to the local SQLite queue")
	cmd.Flags().StringVar(&opts.ServerURL, "server", cfg.ServerURL, "base URL of the reconciliation server")
	cmd.Flags().StringVar(&opts.Token, "token", cfg.Token, "bearer token for the reconciliation server")
	cmd.Flags().DurationVar(&opts.Retention, "retention", cfg.RetryRetention, "how long failed submissions are kept for replay")
}

// device bundles the local queue with the network stack that drains it
type device struct {
	db          *sql.DB
	queue       *fieldsqlite.QueueStore
	agent       *fieldsqlite.RetryAgent
	coordinator *fieldsqlite.SyncCoordinator
	logger      *slog.Logger
}

// openDevice opens the queue and wires coordinator -> transport -> retry agent
func openDevice(ctx context.Context, opts *DeviceOptions, logger *slog.Logger) (*device, error) {
	db, err := fieldsqlite.OpenDB(opts.QueueDB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open queue database", err)
	}

	queue, err := fieldsqlite.OpenQueueStore(ctx, db, fieldsqlite.WithLogger(logger))
	if err != nil {
		_ = db.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load pending queue", err)
	}

	agent, err := fieldsqlite.NewRetryAgent(db, http.DefaultTransport, &fieldsqlite.RetryConfig{Retention: opts.Retention}, logger)
	if err != nil {
		_ = db.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open retry store", err)
	}

	client := &http.Client{Transport: agent, Timeout: 60 * time.Second}
	transport := fieldsqlite.NewHTTPTransport(opts.ServerURL, fieldsqlite.StaticToken(opts.Token), client, logger)
	coordinator := fieldsqlite.NewSyncCoordinator(queue, transport, fieldsqlite.LogInvalidator{Logger: logger}, logger)

	return &device{
		db:          db,
		queue:       queue,
		agent:       agent,
		coordinator: coordinator,
		logger:      logger,
	}, nil
}

func (d *device) Close() error {
	return d.db.Close()
}

// envConfig loads the environment configuration; on error it returns the
// defaults for flag registration together with the error for RunE to report
func envConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Default(), WrapExitError(ExitCommandError, "invalid environment", err)
	}
	return cfg, nil
}
