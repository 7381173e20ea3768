// Package tracker reads and mutates the task manager (Things 3). The real
// implementation shells out to the host automation interface (osascript);
// Memory is an in-process double with the same surface so the
// reconciliation core can be tested without the host app.
package tracker

import (
	"context"
	"time"
)

// Task is a new open to-do. The due date is always "today" at creation
// time, set by the host script.
type Task struct {
	Title string
	Notes string
}

// CompletedTask is one entry from the completed-items log. CompletedAt is
// zero when the host reported a completion timestamp we could not parse;
// such entries are left for the caller to skip.
type CompletedTask struct {
	ID          string
	Notes       string
	CompletedAt time.Time
}

// Tracker is the narrow capability surface the reconciliation core uses.
// Implementations must treat any unconfirmed host result as an error.
type Tracker interface {
	// FindOpenTask reports whether an open task in the project carries the
	// given substring in its notes.
	FindOpenTask(ctx context.Context, token string) (bool, error)

	// Create adds a new open task to the project, due today.
	Create(ctx context.Context, task Task) error

	// ListCompleted returns up to limit entries from the completed-items
	// log, most recent first.
	ListCompleted(ctx context.Context, limit int) ([]CompletedTask, error)

	// UpdateNotes replaces the notes of the task with the given ID.
	UpdateNotes(ctx context.Context, taskID, notes string) error
}
