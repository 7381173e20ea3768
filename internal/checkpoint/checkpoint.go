// Package checkpoint persists reconciliation progress between runs.
//
// The checkpoint is a small JSON document at a fixed path, read and written
// whole by a single writer. It carries both checkpoint shapes (the bounded
// processed-ID set and the watermark timestamp); which one a deployment
// consults is decided by the sync layer, and unknown keys in the file are
// ignored so the two shapes stay forward and backward compatible.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MaxProcessedIDs bounds the processed set persisted by Save. The bound
// protects storage, not correctness: reconciled tasks are also marked in
// their own notes, so dropping old IDs only risks safe re-processing.
const MaxProcessedIDs = 2000

// DefaultLookback is how far back the watermark is set when no usable
// checkpoint exists. Re-processing that window is safe because Ledger
// writes are idempotent.
const DefaultLookback = 7 * 24 * time.Hour

// Checkpoint records how far reconciliation has progressed.
type Checkpoint struct {
	ProcessedIDs []string
	LastSync     time.Time
}

// Contains reports whether a task ID is in the processed set.
func (c *Checkpoint) Contains(taskID string) bool {
	for _, id := range c.ProcessedIDs {
		if id == taskID {
			return true
		}
	}
	return false
}

// MarkProcessed appends a task ID to the processed set, most recent last.
// Duplicate IDs are not appended twice.
func (c *Checkpoint) MarkProcessed(taskID string) {
	if c.Contains(taskID) {
		return
	}
	c.ProcessedIDs = append(c.ProcessedIDs, taskID)
}

// Store is the load/save contract the reconciliation driver depends on.
// In the absence of concurrent runs, Save followed by Load returns an equal
// Checkpoint, modulo the MaxProcessedIDs truncation.
type Store interface {
	Load() (Checkpoint, error)
	Save(Checkpoint) error
}

// fileState is the on-disk schema. Unknown keys are ignored on read.
type fileState struct {
	ProcessedIDs []string `json:"processedIds,omitempty"`
	LastSyncISO  string   `json:"lastSyncISO,omitempty"`
}

// Compile-time interface check
var _ Store = (*FileStore)(nil)

// FileStore persists the checkpoint as JSON at a fixed path.
type FileStore struct {
	path string
	now  func() time.Time
}

// NewFileStore creates a FileStore at path, creating the parent directory if
// needed. A directory that cannot be created means the checkpoint is
// unwritable, which is a fatal startup condition for the caller.
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating checkpoint directory: %w", err)
		}
	}
	return &FileStore{path: path, now: time.Now}, nil
}

// Path returns the location of the checkpoint file.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the persisted checkpoint. A missing, unreadable, or corrupt
// file yields the default checkpoint (empty set, watermark one lookback
// window in the past) rather than an error: corruption resets progress
// conservatively backward, it never aborts a run.
func (s *FileStore) Load() (Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return s.defaultCheckpoint(), nil
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return s.defaultCheckpoint(), nil
	}

	cp := Checkpoint{ProcessedIDs: state.ProcessedIDs}
	if state.LastSyncISO != "" {
		ts, err := time.Parse(time.RFC3339, state.LastSyncISO)
		if err != nil {
			return s.defaultCheckpoint(), nil
		}
		cp.LastSync = ts
	} else {
		cp.LastSync = s.now().Add(-DefaultLookback)
	}
	return cp, nil
}

// Save atomically overwrites the persisted checkpoint, truncating the
// processed set to the most recent MaxProcessedIDs entries first.
func (s *FileStore) Save(cp Checkpoint) error {
	ids := cp.ProcessedIDs
	if len(ids) > MaxProcessedIDs {
		ids = ids[len(ids)-MaxProcessedIDs:]
	}

	state := fileState{ProcessedIDs: ids}
	if !cp.LastSync.IsZero() {
		state.LastSyncISO = cp.LastSync.Format(time.RFC3339)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("creating checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing checkpoint: %w", err)
	}
	return nil
}

func (s *FileStore) defaultCheckpoint() Checkpoint {
	return Checkpoint{LastSync: s.now().Add(-DefaultLookback)}
}
