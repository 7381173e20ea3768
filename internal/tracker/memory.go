package tracker

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrTaskNotFound is returned by Memory.UpdateNotes for an unknown task ID.
var ErrTaskNotFound = errors.New("task not found")

// Compile-time interface check
var _ Tracker = (*Memory)(nil)

// Memory is an in-process Tracker double. Error fields inject failures for
// exercising per-record error handling.
type Memory struct {
	mu        sync.Mutex
	open      []Task
	completed []CompletedTask

	FindErr   error
	CreateErr error
	ListErr   error
	UpdateErr error
}

// NewMemory creates a Memory tracker seeded with the given completed tasks.
func NewMemory(completed ...CompletedTask) *Memory {
	return &Memory{completed: completed}
}

func (m *Memory) FindOpenTask(_ context.Context, token string) (bool, error) {
	if m.FindErr != nil {
		return false, m.FindErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.open {
		if strings.Contains(t.Notes, token) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Create(_ context.Context, task Task) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = append(m.open, task)
	return nil
}

func (m *Memory) ListCompleted(_ context.Context, limit int) ([]CompletedTask, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.completed)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]CompletedTask, n)
	copy(out, m.completed[:n])
	return out, nil
}

func (m *Memory) UpdateNotes(_ context.Context, taskID, notes string) error {
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.completed {
		if m.completed[i].ID == taskID {
			m.completed[i].Notes = notes
			return nil
		}
	}
	return ErrTaskNotFound
}

// OpenTasks returns a copy of the open tasks created so far.
func (m *Memory) OpenTasks() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, len(m.open))
	copy(out, m.open)
	return out
}

// CompletedTasks returns a copy of the completed-items log.
func (m *Memory) CompletedTasks() []CompletedTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletedTask, len(m.completed))
	copy(out, m.completed)
	return out
}
