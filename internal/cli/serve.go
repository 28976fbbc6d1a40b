// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VuDube/suitewasteos-18dec/fieldsync"
	"github.com/VuDube/suitewasteos-18dec/internal/server"
	"github.com/spf13/cobra"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr        string
	DatabaseURL string
	JWTSecret   string
	MaxBatch    int
	LogRequests bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cfg, cfgErr := envConfig()
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reconciliation server",
		Long: `Run the HTTP server that accepts device sync batches and writes them to
PostgreSQL. Settings default to the DATABASE_URL, JWT_SECRET,
FIELDSYNC_ADDR and FIELDSYNC_MAX_BATCH environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgErr != nil {
				return cfgErr
			}
			return runServe(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", cfg.Addr, "listen address")
	cmd.Flags().StringVar(&opts.DatabaseURL, "db-url", cfg.DatabaseURL, "PostgreSQL connection string")
	cmd.Flags().StringVar(&opts.JWTSecret, "jwt-secret", cfg.JWTSecret, "HMAC secret for bearer tokens")
	cmd.Flags().IntVar(&opts.MaxBatch, "max-batch", cfg.MaxBatch, "maximum records per sync request")
	cmd.Flags().BoolVar(&opts.LogRequests, "log-requests", false, "log every HTTP request")

	return cmd
}

func runServe(opts *ServeOptions) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if opts.Verbose {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	components, err := server.SetupServer(&server.ServerConfig{
		DatabaseURL:     opts.DatabaseURL,
		JWTSecret:       opts.JWTSecret,
		MaxBatchSize:    opts.MaxBatch,
		LogRequests:     opts.LogRequests || opts.Verbose,
		LogStageTimings: opts.Verbose,
		Logger:          logger,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up server", err)
	}
	defer components.Close()

	// timeouts sized for full batches from a device that was offline for a day
	httpServer := &http.Server{
		Addr:         opts.Addr,
		Handler:      components.Handler,
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting reconciliation server", "addr", httpServer.Addr)
		logger.Info("  POST " + fieldsync.PathSyncLedger + "       - Reconcile pending ledger entries")
		logger.Info("  POST " + fieldsync.PathSyncTransactions + " - Reconcile pending transactions")
		logger.Info("  GET  " + fieldsync.PathLedger + "            - Latest ledger entries")
		logger.Info("  GET  " + fieldsync.PathTransactions + "      - Latest transactions")
		logger.Info("  GET  " + fieldsync.PathEPRReport + "        - Compliance fee report")
		logger.Info("  POST /dev/signin             - Development token")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-serveErr:
		if ok {
			return WrapExitError(ExitCommandError, "server failed", err)
		}
		return nil
	case <-quit:
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "server forced to shutdown", err)
	}
	logger.Info("Server exited")
	return nil
}
