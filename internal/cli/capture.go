// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/VuDube/suitewasteos-18dec/fieldsqlite"
	"github.com/VuDube/suitewasteos-18dec/internal/compliance"
	"github.com/spf13/cobra"
)

// CaptureOptions holds flags for the capture command.
type CaptureOptions struct {
	DeviceOptions
	Supplier      string
	Material      string
	WeightKg      float64
	Operator      string
	Device        string
	Photo         string
	Notes         string
	Amount        float64
	Currency      string
	PaymentMethod string
	Receipt       string
	FeeRate       float64
	SyncNow       bool
}

// CaptureResult is printed after a capture is queued.
type CaptureResult struct {
	LedgerID      string  `json:"ledger_id"`
	TransactionID string  `json:"transaction_id,omitempty"`
	Stream        string  `json:"stream"`
	EPRFee        float64 `json:"epr_fee"`
	Pending       int     `json:"pending"`
}

// NewCaptureCommand creates the capture command.
func NewCaptureCommand(rootOpts *RootOptions) *cobra.Command {
	cfg, cfgErr := envConfig()
	opts := &CaptureOptions{DeviceOptions: DeviceOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Queue a weight capture, optionally with its payment",
		Long: `Queue a ledger entry in the local pending queue. When --amount is set a
payment settling the entry is queued too, with its compliance fee computed
from the material and weight.

Nothing is sent unless --sync is given.

Examples:
  fieldsync capture --supplier S-12 --material "PET bottles" --weight 41.5
  fieldsync capture --supplier S-12 --material copper --weight 3.2 --amount 480 --sync`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgErr != nil {
				return cfgErr
			}
			return runCapture(cmd.Context(), opts, cmd)
		},
	}

	bindDeviceFlags(cmd, &opts.DeviceOptions, cfg)
	cmd.Flags().StringVar(&opts.Supplier, "supplier", "", "supplier identifier (required)")
	_ = cmd.MarkFlagRequired("supplier")
	cmd.Flags().StringVar(&opts.Material, "material", "", "material description (required)")
	_ = cmd.MarkFlagRequired("material")
	cmd.Flags().Float64Var(&opts.WeightKg, "weight", 0, "weight in kilograms (required)")
	_ = cmd.MarkFlagRequired("weight")
	cmd.Flags().StringVar(&opts.Operator, "operator", "", "operator capturing the weight")
	cmd.Flags().StringVar(&opts.Device, "device", "", "device identifier")
	cmd.Flags().StringVar(&opts.Photo, "photo", "", "photo attachment key")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "free-form notes")
	cmd.Flags().Float64Var(&opts.Amount, "amount", 0, "payment amount; queues a transaction when positive")
	cmd.Flags().StringVar(&opts.Currency, "currency", "", "payment currency (default ZAR)")
	cmd.Flags().StringVar(&opts.PaymentMethod, "payment-method", "", "payment method")
	cmd.Flags().StringVar(&opts.Receipt, "receipt", "", "receipt attachment key")
	cmd.Flags().Float64Var(&opts.FeeRate, "epr-rate", cfg.FeeRate, "compliance fee per kg")
	cmd.Flags().BoolVar(&opts.SyncNow, "sync", false, "attempt a sync pass after queueing")

	return cmd
}

func runCapture(ctx context.Context, opts *CaptureOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := printer{format: opts.Format, w: cmd.OutOrStdout()}
	logger := opts.logger(cmd.ErrOrStderr())

	schedule := compliance.FeeSchedule{DefaultRate: opts.FeeRate}
	if err := schedule.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid --epr-rate", err)
	}
	if opts.WeightKg < 0 {
		return NewExitError(ExitCommandError, "--weight must not be negative")
	}

	dev, err := openDevice(ctx, &opts.DeviceOptions, logger)
	if err != nil {
		return err
	}
	defer dev.Close()

	ledgerID, err := dev.queue.EnqueueLedgerRecord(ctx, fieldsqlite.LedgerDraft{
		SupplierID:         opts.Supplier,
		MaterialType:       opts.Material,
		WeightKg:           opts.WeightKg,
		OperatorID:         opts.Operator,
		DeviceID:           opts.Device,
		PhotoAttachmentKey: opts.Photo,
		Notes:              opts.Notes,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to queue ledger entry", err)
	}

	res := CaptureResult{
		LedgerID: ledgerID,
		Stream:   compliance.Stream(opts.Material),
		EPRFee:   schedule.Fee(opts.Material, opts.WeightKg),
	}

	if opts.Amount > 0 {
		res.TransactionID, err = dev.queue.EnqueueTransactionRecord(ctx, fieldsqlite.TransactionDraft{
			LedgerEntryID: ledgerID,
			Amount:        opts.Amount,
			Currency:      opts.Currency,
			PaymentMethod: opts.PaymentMethod,
			EPRFee:        res.EPRFee,
			ReceiptKey:    opts.Receipt,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to queue transaction", err)
		}
	}

	if opts.SyncNow {
		// the capture stays queued whatever the outcome
		if _, err := dev.coordinator.SyncAll(ctx); err != nil {
			logger.Warn("Sync after capture failed", "error", err)
		}
	}
	res.Pending = dev.queue.PendingCount()

	return out.result(res, func(w io.Writer) {
		fmt.Fprintf(w, "Queued ledger entry %s (%s, fee %.2f)\n", res.LedgerID, res.Stream, res.EPRFee)
		if res.TransactionID != "" {
			fmt.Fprintf(w, "Queued transaction %s\n", res.TransactionID)
		}
		fmt.Fprintf(w, "Pending records: %d\n", res.Pending)
	})
}

// SettleOptions holds flags for the settle command.
type SettleOptions struct {
	DeviceOptions
	LedgerID      string
	Amount        float64
	Currency      string
	PaymentMethod string
	EPRFee        float64
	Receipt       string
}

// NewSettleCommand creates the settle command.
func NewSettleCommand(rootOpts *RootOptions) *cobra.Command {
	cfg, cfgErr := envConfig()
	opts := &SettleOptions{DeviceOptions: DeviceOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Queue a payment for an existing ledger entry",
		Long: `Queue a payment that settles a ledger entry captured earlier. The ledger
entry may already be synced or still pending.

Examples:
  fieldsync settle --ledger 8d1c... --amount 250 --payment-method cash`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgErr != nil {
				return cfgErr
			}
			return runSettle(cmd.Context(), opts, cmd)
		},
	}

	bindDeviceFlags(cmd, &opts.DeviceOptions, cfg)
	cmd.Flags().StringVar(&opts.LedgerID, "ledger", "", "ledger entry id (required)")
	_ = cmd.MarkFlagRequired("ledger")
	cmd.Flags().Float64Var(&opts.Amount, "amount", 0, "payment amount (required)")
	_ = cmd.MarkFlagRequired("amount")
	cmd.Flags().StringVar(&opts.Currency, "currency", "", "payment currency (default ZAR)")
	cmd.Flags().StringVar(&opts.PaymentMethod, "payment-method", "", "payment method")
	cmd.Flags().Float64Var(&opts.EPRFee, "epr-fee", 0, "compliance fee charged with the payment")
	cmd.Flags().StringVar(&opts.Receipt, "receipt", "", "receipt attachment key")

	return cmd
}

func runSettle(ctx context.Context, opts *SettleOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := printer{format: opts.Format, w: cmd.OutOrStdout()}

	dev, err := openDevice(ctx, &opts.DeviceOptions, opts.logger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer dev.Close()

	id, err := dev.queue.EnqueueTransactionRecord(ctx, fieldsqlite.TransactionDraft{
		LedgerEntryID: opts.LedgerID,
		Amount:        opts.Amount,
		Currency:      opts.Currency,
		PaymentMethod: opts.PaymentMethod,
		EPRFee:        opts.EPRFee,
		ReceiptKey:    opts.Receipt,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to queue transaction", err)
	}

	data := map[string]any{"transaction_id": id, "pending": dev.queue.PendingCount()}
	return out.result(data, func(w io.Writer) {
		fmt.Fprintf(w, "Queued transaction %s for ledger entry %s\n", id, opts.LedgerID)
	})
}
