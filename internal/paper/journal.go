package paper

import (
	"sync"

	"crossbot-go/internal/signal"
)

// Journal stores decisions in memory; backtests use it to summarize a run.
type Journal struct {
	mu        sync.Mutex
	decisions []signal.Decision
}

// NewJournal creates an empty journal optionally pre-sizing storage.
func NewJournal(capacity int) *Journal {
	if capacity < 0 {
		capacity = 0
	}
	return &Journal{decisions: make([]signal.Decision, 0, capacity)}
}

// Record appends a decision.
func (j *Journal) Record(d signal.Decision) error {
	j.mu.Lock()
	j.decisions = append(j.decisions, d)
	j.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the recorded decisions.
func (j *Journal) Snapshot() []signal.Decision {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]signal.Decision, len(j.decisions))
	copy(out, j.decisions)
	return out
}

// Counts tallies decisions by kind.
func (j *Journal) Counts() map[signal.Kind]int {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[signal.Kind]int)
	for _, d := range j.decisions {
		out[d.Kind]++
	}
	return out
}

// Reset clears all stored decisions.
func (j *Journal) Reset() {
	j.mu.Lock()
	j.decisions = j.decisions[:0]
	j.mu.Unlock()
}

// Tee fans a decision out to several recorders, returning the first error.
type Tee []Recorder

// Record implements Recorder.
func (t Tee) Record(d signal.Decision) error {
	var first error
	for _, r := range t {
		if r == nil {
			continue
		}
		if err := r.Record(d); err != nil && first == nil {
			first = err
		}
	}
	return first
}
