// Package history keeps a local audit log of reconciliation passes so a
// human can answer "what did the last runs do" without digging through
// scheduler logs. Reconciliation logic never reads it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/kylielacour/plantbot/internal/sync"
)

// Run is one recorded pass.
type Run struct {
	ID        string
	Direction string
	Found     int
	Created   int
	Updated   int
	Skipped   int
	Failed    int
	Duration  time.Duration
	StartedAt time.Time
}

// Compile-time interface check
var _ sync.Recorder = (*Store)(nil)

// Store persists run summaries in a local sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		direction TEXT NOT NULL,
		found INTEGER NOT NULL,
		created INTEGER NOT NULL,
		updated INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		started_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrating history schema: %w", err)
	}
	return nil
}

// Record satisfies sync.Recorder, inserting one row per pass.
func (s *Store) Record(ctx context.Context, direction string, stats sync.Stats, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, direction, found, created, updated, skipped, failed, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ulid.Make().String(),
		direction,
		stats.Found,
		stats.Created,
		stats.Updated,
		stats.Skipped,
		stats.Failed,
		stats.Duration.Milliseconds(),
		startedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// Recent returns up to n runs, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, direction, found, created, updated, skipped, failed, duration_ms, started_at
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var durationMS int64
		var startedAt string
		if err := rows.Scan(&r.ID, &r.Direction, &r.Found, &r.Created, &r.Updated, &r.Skipped, &r.Failed, &durationMS, &startedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		if ts, err := time.Parse(time.RFC3339, startedAt); err == nil {
			r.StartedAt = ts
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
