package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taxprep/internal/amqp"
	"taxprep/internal/store"
	"taxprep/internal/tax"
)

// SnapshotWorker calculates completed returns and persists the results
// snapshot. It is driven by AMQP messages, with startup and periodic sweeps
// as a backup in case messages are lost.
type SnapshotWorker struct {
	store     store.Store
	batchSize int
}

func NewSnapshotWorker(st store.Store, batchSize int) *SnapshotWorker {
	return &SnapshotWorker{
		store:     st,
		batchSize: batchSize,
	}
}

// HandleCompletedMessage processes a single completed-return message.
func (w *SnapshotWorker) HandleCompletedMessage(ctx context.Context, msg *amqp.ReturnCompletedMessage) error {
	slog.InfoContext(ctx, "Processing completed return",
		"id", msg.ID,
		"version", msg.Version)

	rec, err := w.store.GetReturn(ctx, msg.ID)
	if errors.Is(err, store.ErrNotFound) {
		// Deleted after completion. Nothing to snapshot, and requeueing
		// would spin forever.
		slog.WarnContext(ctx, "Completed return no longer exists, dropping message", "id", msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get return from store: %w", err)
	}

	if rec.Version != msg.Version {
		slog.WarnContext(ctx, "Message version is stale, snapshotting current record",
			"id", msg.ID,
			"message_version", msg.Version,
			"current_version", rec.Version)
	}

	if err := w.snapshot(ctx, rec.ID, rec.Version); err != nil {
		var cerr *tax.CalculationError
		if errors.As(err, &cerr) {
			// The engine rejects this record deterministically; a requeue
			// would redeliver it forever. The sweep keeps listing it, so the
			// failure stays visible in the logs.
			slog.ErrorContext(ctx, "Completed return is uncalculable, dropping message",
				"id", rec.ID,
				"stage", cerr.Stage,
				"error", err)
			return nil
		}
		return err
	}
	return nil
}

// snapshot runs the engine against the stored record and saves the results
// keyed by the record version the calculation saw.
func (w *SnapshotWorker) snapshot(ctx context.Context, id, version int64) error {
	rec, err := w.store.GetReturn(ctx, id)
	if err != nil {
		return fmt.Errorf("get return: %w", err)
	}

	results, err := tax.Calculate(rec)
	if err != nil {
		return fmt.Errorf("calculate return %d: %w", id, err)
	}

	if err := w.store.SaveResults(ctx, id, version, results); err != nil {
		return fmt.Errorf("save results: %w", err)
	}

	slog.InfoContext(ctx, "Results snapshot persisted",
		"id", id,
		"version", version,
		"tax_due_cents", results.TaxDue.Cents,
		"refund_cents", results.RefundAmount.Cents,
		"owed_cents", results.AmountOwed.Cents)

	return nil
}

// ProcessPendingReturns snapshots completed returns whose current version has
// no saved results. This is the backup path for lost AMQP messages.
func (w *SnapshotWorker) ProcessPendingReturns(ctx context.Context) error {
	pending, err := w.store.ListCompletedWithoutResults(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list pending returns: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending returns", "count", len(pending))

	for _, rec := range pending {
		if err := w.snapshot(ctx, rec.ID, rec.Version); err != nil {
			slog.ErrorContext(ctx, "Failed to snapshot pending return",
				"id", rec.ID, "error", err)
			continue
		}
	}

	return nil
}

// StartupSweep snapshots any backlog at worker startup. It uses a larger
// batch than the periodic sweep to recover from extended downtime.
func (w *SnapshotWorker) StartupSweep(ctx context.Context) error {
	pending, err := w.store.ListCompletedWithoutResults(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list pending returns for startup sweep: %w", err)
	}

	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending returns found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending returns on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0

	for _, rec := range pending {
		if err := w.snapshot(ctx, rec.ID, rec.Version); err != nil {
			slog.ErrorContext(ctx, "Failed to snapshot return during startup",
				"id", rec.ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup sweep completed",
		"total", len(pending),
		"snapshotted", successCount,
		"errors", errorCount)

	return nil
}

// RunPeriodicSweep runs ProcessPendingReturns on every tick until the
// context ends.
func (w *SnapshotWorker) RunPeriodicSweep(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessPendingReturns(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic sweep failed", "error", err)
			}
		}
	}
}
