// Package sync implements the two reconciliation passes between the plant
// Ledger and the task Tracker: forward (due plants become open tasks) and
// reverse (task completions become last-watered dates). Each pass is a
// single-threaded, run-to-completion batch; per-record failures are logged
// and counted but never abort the pass.
package sync

import (
	"context"
	"time"

	"github.com/kylielacour/plantbot/internal/checkpoint"
	"github.com/kylielacour/plantbot/internal/ledger"
	"github.com/kylielacour/plantbot/internal/tracker"
)

// Ledger is the plant-database surface the passes consume.
type Ledger interface {
	QueryDue(ctx context.Context, onOrBefore time.Time) ([]ledger.Page, error)
	SetLastWatered(ctx context.Context, pageID, date string) error
}

// Compile-time interface check
var _ Ledger = (*ledger.Client)(nil)

// Scheme selects how reverse sync remembers that a completion has been
// reconciled. Exactly one scheme is active per deployment.
type Scheme string

const (
	// SchemeMarker appends a literal marker to the task's notes, with the
	// checkpoint watermark as a secondary bound. Reconciliation state
	// travels with the data, so it survives checkpoint loss.
	SchemeMarker Scheme = "marker"

	// SchemeSet tracks reconciled task IDs in the checkpoint's bounded
	// processed set.
	SchemeSet Scheme = "set"
)

// DefaultLogbookLimit bounds how many completed entries reverse sync
// examines per run. Older completions are assumed already reconciled.
const DefaultLogbookLimit = 400

// Stats summarizes one pass.
type Stats struct {
	Found    int
	Created  int
	Updated  int
	Skipped  int
	Failed   int
	Duration time.Duration
}

// Recorder persists a per-run summary for auditing. Recording failures are
// observability problems, never reconciliation problems.
type Recorder interface {
	Record(ctx context.Context, direction string, stats Stats, startedAt time.Time) error
}

// Uploader pushes the checkpoint file to off-host backup storage after a
// successful save.
type Uploader interface {
	Upload(ctx context.Context, filePath string) error
}

// Runner orchestrates one reconciliation pass: load checkpoint, run the
// pass, save checkpoint, report. It is not reentrant-safe; the deployment
// relies on an external serialized trigger.
type Runner struct {
	ledger      Ledger
	tracker     tracker.Tracker
	checkpoints checkpoint.Store

	scheme         Scheme
	logbookLimit   int
	checkpointPath string

	history Recorder // optional
	backup  Uploader // optional

	now func() time.Time
}

// Config wires a Runner. Ledger, Tracker, and Checkpoints are required;
// History and Backup are optional observability collaborators.
type Config struct {
	Ledger      Ledger
	Tracker     tracker.Tracker
	Checkpoints checkpoint.Store

	Scheme         Scheme
	LogbookLimit   int
	CheckpointPath string

	History Recorder
	Backup  Uploader

	Now func() time.Time
}

// NewRunner creates a Runner from cfg, applying defaults for the scheme,
// logbook limit, and clock.
func NewRunner(cfg Config) *Runner {
	r := &Runner{
		ledger:         cfg.Ledger,
		tracker:        cfg.Tracker,
		checkpoints:    cfg.Checkpoints,
		scheme:         cfg.Scheme,
		logbookLimit:   cfg.LogbookLimit,
		checkpointPath: cfg.CheckpointPath,
		history:        cfg.History,
		backup:         cfg.Backup,
		now:            cfg.Now,
	}
	if r.scheme == "" {
		r.scheme = SchemeMarker
	}
	if r.logbookLimit <= 0 {
		r.logbookLimit = DefaultLogbookLimit
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}
