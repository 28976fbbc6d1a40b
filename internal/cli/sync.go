// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/VuDube/suitewasteos-18dec/fieldsqlite"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	DeviceOptions
	Watch         bool
	ProbeInterval time.Duration
}

// SyncResult summarizes one sync pass.
type SyncResult struct {
	Skipped     string `json:"skipped,omitempty"`
	Submitted   int    `json:"submitted"`
	Confirmed   int    `json:"confirmed"`
	Rejected    int    `json:"rejected"`
	Pruned      int    `json:"pruned"`
	Pending     int    `json:"pending"`
	Invalidated bool   `json:"invalidated"`
}

func newSyncResult(report *fieldsqlite.SyncReport, pending int) SyncResult {
	res := SyncResult{Skipped: string(report.Skipped), Pending: pending, Invalidated: report.Invalidated}
	for _, o := range []*fieldsqlite.KindOutcome{report.Ledger, report.Transactions} {
		if o == nil {
			continue
		}
		res.Submitted += o.Submitted
		res.Confirmed += o.Confirmed
		res.Rejected += len(o.Rejected)
		res.Pruned += o.Pruned
	}
	return res
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cfg, cfgErr := envConfig()
	opts := &SyncOptions{DeviceOptions: DeviceOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile pending records with the server",
		Long: `Submit every pending ledger entry, then every pending transaction, and
drop the records the server confirms. Rejected records stay queued.

With --watch the command keeps running: it probes the server's health
endpoint, syncs whenever connectivity returns, and replays submissions
that failed in transit.

Examples:
  fieldsync sync
  fieldsync sync --watch --probe-interval 30s`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgErr != nil {
				return cfgErr
			}
			if opts.Watch {
				return runWatch(cmd.Context(), opts, cmd)
			}
			return runSync(cmd.Context(), opts, cmd)
		},
	}

	bindDeviceFlags(cmd, &opts.DeviceOptions, cfg)
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "keep syncing as connectivity changes")
	cmd.Flags().DurationVar(&opts.ProbeInterval, "probe-interval", 15*time.Second, "connectivity probe interval for --watch")

	return cmd
}

func runSync(ctx context.Context, opts *SyncOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := printer{format: opts.Format, w: cmd.OutOrStdout()}

	dev, err := openDevice(ctx, &opts.DeviceOptions, opts.logger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer dev.Close()

	report, syncErr := dev.coordinator.SyncAll(ctx)
	res := newSyncResult(report, dev.queue.PendingCount())
	if syncErr != nil {
		return out.failure(res, WrapExitError(ExitFailure, "sync pass incomplete", syncErr))
	}
	return out.result(res, func(w io.Writer) {
		if res.Skipped != "" {
			fmt.Fprintf(w, "Nothing to sync (%s)\n", res.Skipped)
			return
		}
		fmt.Fprintf(w, "Submitted %d, confirmed %d, rejected %d, pending %d\n",
			res.Submitted, res.Confirmed, res.Rejected, res.Pending)
	})
}

// runWatch drives the monitor and retry agent until interrupted
func runWatch(ctx context.Context, opts *SyncOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := opts.logger(cmd.ErrOrStderr())
	dev, err := openDevice(ctx, &opts.DeviceOptions, logger)
	if err != nil {
		return err
	}
	defer dev.Close()

	// the probe reports the first state; stay offline until it does
	dev.coordinator.SetOnline(false)
	monitor := fieldsqlite.NewConnectivityMonitor(dev.coordinator, dev.agent, logger)
	probe := fieldsqlite.NewProbeSource(strings.TrimRight(opts.ServerURL, "/")+"/health", opts.ProbeInterval, logger)
	probe.Start(ctx)

	logger.Info("Watching connectivity", "server", opts.ServerURL, "pending", dev.queue.PendingCount())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return monitor.Run(gctx, probe) })
	g.Go(func() error { return dev.agent.Run(gctx) })
	err = g.Wait()
	monitor.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "watch stopped", err)
	}
	logger.Info("Watch stopped", "pending", dev.queue.PendingCount())
	return nil
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	cfg, cfgErr := envConfig()
	opts := &DeviceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "pending",
		Short:         "Show queued records and stored submissions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgErr != nil {
				return cfgErr
			}
			return runPending(cmd.Context(), opts, cmd)
		},
	}

	bindDeviceFlags(cmd, opts, cfg)
	return cmd
}

// PendingResult lists what is waiting on this device.
type PendingResult struct {
	Ledger       []string `json:"ledger"`
	Transactions []string `json:"transactions"`
	Replayable   int      `json:"replayable"`
}

func runPending(ctx context.Context, opts *DeviceOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := printer{format: opts.Format, w: cmd.OutOrStdout()}

	dev, err := openDevice(ctx, opts, opts.logger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer dev.Close()

	res := PendingResult{Ledger: []string{}, Transactions: []string{}}
	for _, r := range dev.queue.PendingLedger() {
		res.Ledger = append(res.Ledger, r.ID)
	}
	for _, r := range dev.queue.PendingTransactions() {
		res.Transactions = append(res.Transactions, r.ID)
	}
	if res.Replayable, err = dev.agent.Pending(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to read retry store", err)
	}

	return out.result(res, func(w io.Writer) {
		fmt.Fprintf(w, "Ledger entries: %d\n", len(res.Ledger))
		for _, id := range res.Ledger {
			fmt.Fprintf(w, "  %s\n", id)
		}
		fmt.Fprintf(w, "Transactions: %d\n", len(res.Transactions))
		for _, id := range res.Transactions {
			fmt.Fprintf(w, "  %s\n", id)
		}
		fmt.Fprintf(w, "Stored submissions: %d\n", res.Replayable)
	})
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cfg, cfgErr := envConfig()
	opts := &DeviceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Resend submissions that failed in transit",
		Long: `Resend stored sync submissions in the order they failed. Submissions
older than the retention window are dropped first. Replay stops at the
first submission that still cannot reach the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgErr != nil {
				return cfgErr
			}
			return runReplay(cmd.Context(), opts, cmd)
		},
	}

	bindDeviceFlags(cmd, opts, cfg)
	return cmd
}

func runReplay(ctx context.Context, opts *DeviceOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := printer{format: opts.Format, w: cmd.OutOrStdout()}

	dev, err := openDevice(ctx, opts, opts.logger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer dev.Close()

	res, err := dev.agent.Replay(ctx)
	if err != nil {
		return out.failure(res, WrapExitError(ExitCommandError, "replay failed", err))
	}
	if res.Failed > 0 {
		return out.failure(res, NewExitError(ExitFailure, fmt.Sprintf("server unreachable, %d submissions kept", res.Remaining)))
	}
	return out.result(res, func(w io.Writer) {
		fmt.Fprintf(w, "Delivered %d (rejected %d), expired %d, remaining %d\n",
			res.Delivered, res.Rejected, res.Expired, res.Remaining)
	})
}
