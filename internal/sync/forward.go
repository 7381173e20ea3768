package sync

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/kylielacour/plantbot/internal/cups"
	"github.com/kylielacour/plantbot/internal/identity"
	"github.com/kylielacour/plantbot/internal/ledger"
	"github.com/kylielacour/plantbot/internal/tracker"
)

// RunForward reconciles due Ledger pages into open Tracker tasks. Task
// existence is the dedup oracle: a page that already has an open task with
// its reference token is skipped, so a second run over the same due-set
// creates nothing. Returns an error only when the due query itself fails or
// the checkpoint cannot be saved.
func (r *Runner) RunForward(ctx context.Context) (Stats, error) {
	start := r.now()
	var stats Stats

	cp, err := r.checkpoints.Load()
	if err != nil {
		return stats, fmt.Errorf("loading checkpoint: %w", err)
	}

	pages, err := r.ledger.QueryDue(ctx, start)
	if err != nil {
		return stats, fmt.Errorf("forward sync: %w", err)
	}
	stats.Found = len(pages)

	for _, page := range pages {
		token := identity.TokenPrefix + " " + page.ID

		exists, err := r.tracker.FindOpenTask(ctx, token)
		if err != nil {
			slog.Error("existence check failed", "page_id", page.ID, "error", err)
			stats.Failed++
			continue
		}
		if exists {
			stats.Skipped++
			continue
		}

		task := buildTask(page)
		if err := r.tracker.Create(ctx, task); err != nil {
			slog.Error("task creation failed", "page_id", page.ID, "plant", page.Name, "error", err)
			stats.Failed++
			continue
		}
		slog.Info("task created", "page_id", page.ID, "plant", page.Name, "title", task.Title)
		stats.Created++
	}

	// Forward sync does not advance reconciliation state; saving the loaded
	// checkpoint keeps the driver contract uniform across passes.
	if err := r.checkpoints.Save(cp); err != nil {
		return stats, fmt.Errorf("saving checkpoint: %w", err)
	}

	stats.Duration = r.now().Sub(start)
	r.finishRun(ctx, "forward", stats, start)
	slog.Info("forward sync complete",
		"found", stats.Found,
		"created", stats.Created,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"duration", stats.Duration)
	return stats, nil
}

// buildTask renders the Tracker task for a due page: a title carrying the
// plant name and a cup-denominated amount, and notes carrying the raw
// amount, a deep link, and the back-reference token. A missing amount
// renders explicit placeholders rather than a guess.
func buildTask(page ledger.Page) tracker.Task {
	amountStr := "ml?"
	titleAmount := "amount?"
	if page.RecommendedML != nil {
		ml := int(math.Round(*page.RecommendedML))
		amountStr = fmt.Sprintf("%d ml", ml)
		titleAmount = cups.FromML(float64(ml))
	}

	notes := fmt.Sprintf("Amount: %s\nNotion: https://www.notion.so/%s\n%s %s",
		amountStr,
		strings.ReplaceAll(page.ID, "-", ""),
		identity.TokenPrefix,
		page.ID)

	return tracker.Task{
		Title: fmt.Sprintf("Water %s — %s", page.Name, titleAmount),
		Notes: notes,
	}
}

// finishRun records the pass in run history and backs up the checkpoint.
// Both are best-effort.
func (r *Runner) finishRun(ctx context.Context, direction string, stats Stats, startedAt time.Time) {
	if r.history != nil {
		if err := r.history.Record(ctx, direction, stats, startedAt); err != nil {
			slog.Warn("run history write failed", "error", err)
		}
	}
	if r.backup != nil && r.checkpointPath != "" {
		if err := r.backup.Upload(ctx, r.checkpointPath); err != nil {
			slog.Warn("checkpoint backup failed", "error", err)
		}
	}
}
