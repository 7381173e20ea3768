package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kylielacour/plantbot/internal/checkpoint"
	"github.com/kylielacour/plantbot/internal/identity"
)

// RunReverse reconciles completed Tracker tasks back into the Ledger. For
// each unreconciled completion carrying a page reference, the completion's
// local calendar date is written as the page's last-watered date and the
// entry is marked reconciled per the active scheme. The write and the mark
// are not atomic; a crash between them costs one redundant, idempotent
// re-write on the next run.
func (r *Runner) RunReverse(ctx context.Context) (Stats, error) {
	start := r.now()
	var stats Stats

	cp, err := r.checkpoints.Load()
	if err != nil {
		return stats, fmt.Errorf("loading checkpoint: %w", err)
	}

	items, err := r.tracker.ListCompleted(ctx, r.logbookLimit)
	if err != nil {
		return stats, fmt.Errorf("reverse sync: %w", err)
	}
	stats.Found = len(items)

	// The watermark only advances over entries this pass actually wrote, so
	// a crash mid-pass cannot move it past unprocessed work.
	maxCompletion := cp.LastSync

	for _, item := range items {
		if r.reconciled(&cp, item.ID, item.Notes) {
			stats.Skipped++
			continue
		}

		pageID, ok := identity.ExtractID(item.Notes)
		if !ok {
			// A completion with no page linkage is not ours to handle.
			stats.Skipped++
			continue
		}

		if item.CompletedAt.IsZero() {
			slog.Debug("completion date unparsable, skipping", "task_id", item.ID)
			stats.Skipped++
			continue
		}

		// Watering is a day-granularity event: local calendar date,
		// time-of-day discarded.
		date := item.CompletedAt.Format("2006-01-02")

		if err := r.ledger.SetLastWatered(ctx, pageID, date); err != nil {
			slog.Error("ledger write failed",
				"page_id", pageID, "task_id", item.ID, "error", err)
			stats.Failed++
			continue
		}
		stats.Updated++
		slog.Info("last watered updated", "page_id", pageID, "task_id", item.ID, "date", date)

		switch r.scheme {
		case SchemeSet:
			cp.MarkProcessed(item.ID)
		default:
			if err := r.tracker.UpdateNotes(ctx, item.ID, identity.MarkReconciled(item.Notes)); err != nil {
				// The ledger write stuck; the next run re-writes the same
				// date and retries the marker.
				slog.Warn("reconciliation marker write failed",
					"page_id", pageID, "task_id", item.ID, "error", err)
			}
		}

		if item.CompletedAt.After(maxCompletion) {
			maxCompletion = item.CompletedAt
		}
	}

	cp.LastSync = maxCompletion
	if err := r.checkpoints.Save(cp); err != nil {
		return stats, fmt.Errorf("saving checkpoint: %w", err)
	}

	stats.Duration = r.now().Sub(start)
	r.finishRun(ctx, "reverse", stats, start)
	slog.Info("reverse sync complete",
		"found", stats.Found,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"duration", stats.Duration)
	return stats, nil
}

// reconciled reports whether a completed entry has already been written to
// the Ledger, per the active checkpoint scheme.
func (r *Runner) reconciled(cp *checkpoint.Checkpoint, taskID, notes string) bool {
	if r.scheme == SchemeSet {
		return cp.Contains(taskID)
	}
	return identity.IsReconciled(notes)
}
