package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kylielacour/plantbot/internal/checkpoint"
	"github.com/kylielacour/plantbot/internal/ledger"
	"github.com/kylielacour/plantbot/internal/tracker"
)

const (
	pageA = "26ab1f77-c4e2-4d0f-a14d-9a3e5b7c8d90"
	pageB = "36ab1f77-c4e2-4d0f-a14d-9a3e5b7c8d91"
)

// fakeLedger implements Ledger in memory with injectable failures.
type fakeLedger struct {
	due      []ledger.Page
	queryErr error
	patchErr error
	patches  []string
}

func (f *fakeLedger) QueryDue(_ context.Context, _ time.Time) ([]ledger.Page, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.due, nil
}

func (f *fakeLedger) SetLastWatered(_ context.Context, pageID, date string) error {
	if f.patchErr != nil {
		return f.patchErr
	}
	f.patches = append(f.patches, pageID+"="+date)
	return nil
}

func ml(v float64) *float64 { return &v }

func newTestCheckpoints(t *testing.T) *checkpoint.FileStore {
	t.Helper()
	s, err := checkpoint.NewFileStore(filepath.Join(t.TempDir(), "sync_state.json"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newRunner(t *testing.T, lg Ledger, tr tracker.Tracker, opts ...func(*Config)) (*Runner, *checkpoint.FileStore) {
	t.Helper()
	cps := newTestCheckpoints(t)
	cfg := Config{
		Ledger:      lg,
		Tracker:     tr,
		Checkpoints: cps,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewRunner(cfg), cps
}

func TestForward_CreatesTaskForDuePage(t *testing.T) {
	lg := &fakeLedger{due: []ledger.Page{{ID: pageA, Name: "Monstera", RecommendedML: ml(500)}}}
	tr := tracker.NewMemory()
	r, _ := newRunner(t, lg, tr)

	stats, err := r.RunForward(context.Background())
	if err != nil {
		t.Fatalf("RunForward: %v", err)
	}
	if stats.Found != 1 || stats.Created != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}

	tasks := tr.OpenTasks()
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}
	task := tasks[0]
	if task.Title != "Water Monstera — 2 cups" {
		t.Errorf("title = %q", task.Title)
	}
	if !strings.Contains(task.Notes, "Amount: 500 ml") {
		t.Errorf("notes missing amount: %q", task.Notes)
	}
	if !strings.Contains(task.Notes, "notion_id: "+pageA) {
		t.Errorf("notes missing back-reference token: %q", task.Notes)
	}
	undashed := strings.ReplaceAll(pageA, "-", "")
	if !strings.Contains(task.Notes, "https://www.notion.so/"+undashed) {
		t.Errorf("notes missing deep link: %q", task.Notes)
	}
}

func TestForward_Idempotent(t *testing.T) {
	lg := &fakeLedger{due: []ledger.Page{
		{ID: pageA, Name: "Monstera", RecommendedML: ml(500)},
		{ID: pageB, Name: "Fern", RecommendedML: ml(120)},
	}}
	tr := tracker.NewMemory()
	r, _ := newRunner(t, lg, tr)

	if _, err := r.RunForward(context.Background()); err != nil {
		t.Fatalf("first RunForward: %v", err)
	}
	stats, err := r.RunForward(context.Background())
	if err != nil {
		t.Fatalf("second RunForward: %v", err)
	}
	if stats.Created != 0 || stats.Skipped != 2 {
		t.Errorf("second run stats = %+v, want 0 created / 2 skipped", stats)
	}
	if got := len(tr.OpenTasks()); got != 2 {
		t.Errorf("open tasks after two runs = %d, want 2", got)
	}
}

func TestForward_MissingAmountRendersPlaceholders(t *testing.T) {
	lg := &fakeLedger{due: []ledger.Page{{ID: pageA, Name: "Cactus"}}}
	tr := tracker.NewMemory()
	r, _ := newRunner(t, lg, tr)

	if _, err := r.RunForward(context.Background()); err != nil {
		t.Fatal(err)
	}
	task := tr.OpenTasks()[0]
	if task.Title != "Water Cactus — amount?" {
		t.Errorf("title = %q", task.Title)
	}
	if !strings.Contains(task.Notes, "Amount: ml?") {
		t.Errorf("notes = %q", task.Notes)
	}
}

// failCreate wraps a Tracker and fails Create for titles containing match.
type failCreate struct {
	tracker.Tracker
	match string
}

func (f *failCreate) Create(ctx context.Context, task tracker.Task) error {
	if strings.Contains(task.Title, f.match) {
		return errors.New("execution error")
	}
	return f.Tracker.Create(ctx, task)
}

func TestForward_SingleRecordFailureDoesNotAbort(t *testing.T) {
	lg := &fakeLedger{due: []ledger.Page{
		{ID: pageA, Name: "Monstera", RecommendedML: ml(500)},
		{ID: pageB, Name: "Fern", RecommendedML: ml(120)},
	}}
	mem := tracker.NewMemory()
	r, _ := newRunner(t, lg, &failCreate{Tracker: mem, match: "Monstera"})

	stats, err := r.RunForward(context.Background())
	if err != nil {
		t.Fatalf("RunForward should not fail on a per-record error: %v", err)
	}
	if stats.Created != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want 1 created / 1 failed", stats)
	}
}

func TestForward_QueryFailureIsFatal(t *testing.T) {
	lg := &fakeLedger{queryErr: errors.New("connection refused")}
	r, _ := newRunner(t, lg, tracker.NewMemory())

	if _, err := r.RunForward(context.Background()); err == nil {
		t.Fatal("expected error when the due query fails")
	}
}

func completedTask(id, pageID string, at time.Time) tracker.CompletedTask {
	return tracker.CompletedTask{
		ID:          id,
		Notes:       fmt.Sprintf("Amount: 500 ml\nnotion_id: %s", pageID),
		CompletedAt: at,
	}
}

func TestReverse_WritesLocalDateAndMarks(t *testing.T) {
	// Recent enough to sit past the default watermark.
	completedAt := time.Now().Add(-2 * time.Hour).Truncate(time.Second)
	lg := &fakeLedger{}
	tr := tracker.NewMemory(completedTask("task-1", pageA, completedAt))
	r, cps := newRunner(t, lg, tr)

	stats, err := r.RunReverse(context.Background())
	if err != nil {
		t.Fatalf("RunReverse: %v", err)
	}
	if stats.Found != 1 || stats.Updated != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	wantDate := completedAt.Format("2006-01-02")
	if len(lg.patches) != 1 || lg.patches[0] != pageA+"="+wantDate {
		t.Errorf("patches = %v, want %s written", lg.patches, wantDate)
	}
	if notes := tr.CompletedTasks()[0].Notes; !strings.Contains(strings.ToLower(notes), "synced: yes") {
		t.Errorf("entry not marked reconciled: %q", notes)
	}

	cp, err := cps.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !cp.LastSync.Equal(completedAt) {
		t.Errorf("watermark = %v, want %v", cp.LastSync, completedAt)
	}
}

func TestReverse_SecondPassIsNoOp(t *testing.T) {
	lg := &fakeLedger{}
	tr := tracker.NewMemory(completedTask("task-1", pageA, time.Now()))
	r, _ := newRunner(t, lg, tr)

	if _, err := r.RunReverse(context.Background()); err != nil {
		t.Fatal(err)
	}
	stats, err := r.RunReverse(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Updated != 0 || stats.Skipped != 1 {
		t.Errorf("second pass stats = %+v, want 0 updated / 1 skipped", stats)
	}
	if len(lg.patches) != 1 {
		t.Errorf("ledger written %d times across two passes, want 1", len(lg.patches))
	}
}

func TestReverse_IgnoresEntriesWithoutToken(t *testing.T) {
	lg := &fakeLedger{}
	tr := tracker.NewMemory(tracker.CompletedTask{
		ID:          "task-1",
		Notes:       "buy soil",
		CompletedAt: time.Now(),
	})
	r, _ := newRunner(t, lg, tr)

	for i := 0; i < 2; i++ {
		stats, err := r.RunReverse(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if stats.Updated != 0 || stats.Failed != 0 || stats.Skipped != 1 {
			t.Errorf("pass %d stats = %+v", i+1, stats)
		}
	}
	if len(lg.patches) != 0 {
		t.Errorf("patches = %v, want none", lg.patches)
	}
}

func TestReverse_SkipsUnparsableCompletionTime(t *testing.T) {
	lg := &fakeLedger{}
	tr := tracker.NewMemory(tracker.CompletedTask{
		ID:    "task-1",
		Notes: "notion_id: " + pageA,
		// CompletedAt zero: the host reported a date we could not parse.
	})
	r, _ := newRunner(t, lg, tr)

	stats, err := r.RunReverse(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Skipped != 1 || stats.Updated != 0 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestReverse_WriteFailureRetriesNextRun(t *testing.T) {
	lg := &fakeLedger{patchErr: errors.New("503 service unavailable")}
	tr := tracker.NewMemory(completedTask("task-1", pageA, time.Now()))
	r, _ := newRunner(t, lg, tr)

	stats, err := r.RunReverse(context.Background())
	if err != nil {
		t.Fatalf("per-record write failure must not fail the pass: %v", err)
	}
	if stats.Failed != 1 || stats.Updated != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if notes := tr.CompletedTasks()[0].Notes; strings.Contains(notes, "synced") {
		t.Errorf("failed entry must not be marked reconciled: %q", notes)
	}

	// Ledger recovers; the entry is retried and reconciled.
	lg.patchErr = nil
	stats, err = r.RunReverse(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Updated != 1 {
		t.Errorf("retry stats = %+v", stats)
	}
	if len(lg.patches) != 1 {
		t.Errorf("patches = %v", lg.patches)
	}
}

func TestReverse_CrashBetweenWriteAndMarkIsSafe(t *testing.T) {
	lg := &fakeLedger{}
	tr := tracker.NewMemory(completedTask("task-1", pageA, time.Date(2026, 1, 4, 10, 51, 10, 0, time.Local)))
	tr.UpdateErr = errors.New("execution error")
	r, _ := newRunner(t, lg, tr)

	// First pass: ledger write lands, marker write fails.
	stats, err := r.RunReverse(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Updated != 1 {
		t.Errorf("stats = %+v", stats)
	}

	// Next pass re-writes the same date (an observable no-op) and marks.
	tr.UpdateErr = nil
	if _, err := r.RunReverse(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(lg.patches) != 2 || lg.patches[0] != lg.patches[1] {
		t.Errorf("patches = %v, want the same write twice", lg.patches)
	}
	if notes := tr.CompletedTasks()[0].Notes; !strings.Contains(notes, "synced: yes") {
		t.Errorf("entry not marked after recovery: %q", notes)
	}

	// Third pass performs no further writes.
	if _, err := r.RunReverse(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(lg.patches) != 2 {
		t.Errorf("patches after third pass = %v", lg.patches)
	}
}

func TestReverse_SetScheme(t *testing.T) {
	lg := &fakeLedger{}
	tr := tracker.NewMemory(completedTask("task-1", pageA, time.Now()))
	r, cps := newRunner(t, lg, tr, func(c *Config) { c.Scheme = SchemeSet })

	if _, err := r.RunReverse(context.Background()); err != nil {
		t.Fatal(err)
	}
	cp, err := cps.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !cp.Contains("task-1") {
		t.Error("task ID not recorded in processed set")
	}
	// Notes untouched under the set scheme.
	if notes := tr.CompletedTasks()[0].Notes; strings.Contains(notes, "synced") {
		t.Errorf("set scheme must not write markers: %q", notes)
	}

	stats, err := r.RunReverse(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Updated != 0 || stats.Skipped != 1 {
		t.Errorf("second pass stats = %+v", stats)
	}
	if len(lg.patches) != 1 {
		t.Errorf("patches = %v", lg.patches)
	}
}

func TestReverse_CorruptCheckpointStillCompletes(t *testing.T) {
	lg := &fakeLedger{}
	tr := tracker.NewMemory(completedTask("task-1", pageA, time.Now()))
	cps := newTestCheckpoints(t)
	if err := os.WriteFile(cps.Path(), []byte("!!not json!!"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewRunner(Config{Ledger: lg, Tracker: tr, Checkpoints: cps})

	stats, err := r.RunReverse(context.Background())
	if err != nil {
		t.Fatalf("corrupt checkpoint must not abort the run: %v", err)
	}
	if stats.Updated != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

// recordedRun captures Recorder calls.
type recordedRun struct {
	direction string
	stats     Stats
}

type fakeRecorder struct {
	runs []recordedRun
	err  error
}

func (f *fakeRecorder) Record(_ context.Context, direction string, stats Stats, _ time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.runs = append(f.runs, recordedRun{direction, stats})
	return nil
}

type fakeUploader struct {
	paths []string
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, path string) error {
	if f.err != nil {
		return f.err
	}
	f.paths = append(f.paths, path)
	return nil
}

func TestRunner_RecordsHistoryAndBacksUp(t *testing.T) {
	lg := &fakeLedger{due: []ledger.Page{{ID: pageA, Name: "Monstera", RecommendedML: ml(500)}}}
	rec := &fakeRecorder{}
	up := &fakeUploader{}
	cps := newTestCheckpoints(t)
	r := NewRunner(Config{
		Ledger:         lg,
		Tracker:        tracker.NewMemory(),
		Checkpoints:    cps,
		History:        rec,
		Backup:         up,
		CheckpointPath: cps.Path(),
	})

	if _, err := r.RunForward(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(rec.runs) != 1 || rec.runs[0].direction != "forward" || rec.runs[0].stats.Created != 1 {
		t.Errorf("recorded runs = %+v", rec.runs)
	}
	if len(up.paths) != 1 || up.paths[0] != cps.Path() {
		t.Errorf("uploaded paths = %v", up.paths)
	}
}

func TestRunner_HistoryFailureIsNotFatal(t *testing.T) {
	lg := &fakeLedger{}
	rec := &fakeRecorder{err: errors.New("disk full")}
	up := &fakeUploader{err: errors.New("bucket gone")}
	cps := newTestCheckpoints(t)
	r := NewRunner(Config{
		Ledger:         lg,
		Tracker:        tracker.NewMemory(),
		Checkpoints:    cps,
		History:        rec,
		Backup:         up,
		CheckpointPath: cps.Path(),
	})

	if _, err := r.RunReverse(context.Background()); err != nil {
		t.Fatalf("observability failures must not fail the pass: %v", err)
	}
}
