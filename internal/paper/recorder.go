// Package paper keeps a record of the decisions a run produced.
package paper

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"crossbot-go/internal/signal"
)

// Recorder captures decisions for later inspection.
type Recorder interface {
	Record(signal.Decision) error
}

// Entry is one JSONL line.
type Entry struct {
	RunID      string          `json:"run_id"`
	RecordedAt time.Time       `json:"recorded_at"`
	Decision   signal.Decision `json:"decision"`
}

// JSONLRecorder appends decisions as JSON lines tagged with the run id.
type JSONLRecorder struct {
	mu    sync.Mutex
	runID string
	file  *os.File
	enc   *json.Encoder
	now   func() time.Time
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
func NewJSONLRecorder(path, runID string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &JSONLRecorder{
		runID: runID,
		file:  file,
		enc:   json.NewEncoder(file),
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// RunID returns the identifier stamped on every entry.
func (r *JSONLRecorder) RunID() string { return r.runID }

// Record writes a single decision to the underlying file.
func (r *JSONLRecorder) Record(d signal.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return fmt.Errorf("journal closed")
	}
	if err := r.enc.Encode(Entry{RunID: r.runID, RecordedAt: r.now(), Decision: d}); err != nil {
		return fmt.Errorf("encode decision: %w", err)
	}
	return nil
}

// Close closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
