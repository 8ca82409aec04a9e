package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nvandessel/plantsim/internal/signals"
)

// InMemoryHistoryStore implements HistoryStore for testing and for runs with the
// database disabled.
type InMemoryHistoryStore struct {
	mu      sync.RWMutex
	runs    map[string]Run
	samples []Sample
	events  []EventRecord
}

// NewInMemoryHistoryStore creates an empty in-memory store.
func NewInMemoryHistoryStore() *InMemoryHistoryStore {
	return &InMemoryHistoryStore{runs: make(map[string]Run)}
}

// BeginRun records a new run.
func (s *InMemoryHistoryStore) BeginRun(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

// GetRun returns a run by id, or ErrRunNotFound.
func (s *InMemoryHistoryStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return &run, nil
}

// Runs lists runs, newest first.
func (s *InMemoryHistoryStore) Runs(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecordTick appends one sample per signal.
func (s *InMemoryHistoryStore) RecordTick(ctx context.Context, runID string, snap *signals.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	s.samples = append(s.samples, samplesFromSnapshot(runID, snap)...)
	return nil
}

// RecordEvent appends one event.
func (s *InMemoryHistoryStore) RecordEvent(ctx context.Context, ev EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[ev.RunID]; !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, ev.RunID)
	}
	s.events = append(s.events, ev)
	return nil
}

// History returns samples of one signal, newest first.
func (s *InMemoryHistoryStore) History(ctx context.Context, q HistoryQuery) ([]Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if q.Signal == "" {
		return nil, fmt.Errorf("signal is required")
	}

	var out []Sample
	for i := len(s.samples) - 1; i >= 0 && len(out) < q.limit(); i-- {
		sm := s.samples[i]
		if sm.Signal != q.Signal {
			continue
		}
		if q.RunID != "" && sm.RunID != q.RunID {
			continue
		}
		if !q.Since.IsZero() && sm.Time.Before(q.Since) {
			continue
		}
		out = append(out, sm)
	}
	return out, nil
}

// Events returns a run's events, newest first.
func (s *InMemoryHistoryStore) Events(ctx context.Context, runID string, limit int) ([]EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var out []EventRecord
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if s.events[i].RunID == runID {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

// Prune deletes samples and events older than before.
func (s *InMemoryHistoryStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.samples[:0]
	for _, sm := range s.samples {
		if !sm.Time.Before(before) {
			kept = append(kept, sm)
		}
	}
	pruned := int64(len(s.samples) - len(kept))
	s.samples = kept

	keptEvents := s.events[:0]
	for _, ev := range s.events {
		if !ev.Time.Before(before) {
			keptEvents = append(keptEvents, ev)
		}
	}
	s.events = keptEvents
	return pruned, nil
}

// Close is a no-op.
func (s *InMemoryHistoryStore) Close() error {
	return nil
}
