// Package store records the simulated plant's telemetry history: one row per signal
// per committed tick, plus the advisory events the engine emits.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nvandessel/plantsim/internal/signals"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("store: run not found")

// Run describes one process lifetime of the simulator.
type Run struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	TickPeriod time.Duration `json:"tick_period"`
	Seed       uint64        `json:"seed"`
	Scenario   bool          `json:"scenario"`
}

// Sample is one signal value at one committed tick.
type Sample struct {
	RunID  string    `json:"run_id"`
	Tick   uint64    `json:"tick"`
	Time   time.Time `json:"time"`
	Signal string    `json:"signal"`
	Value  float64   `json:"value"`

	// DataSource is "ai_control" or "human_control", from operator_mode at the tick.
	DataSource string `json:"data_source"`

	// ProcessEfficiency is the derived quality/energy score at the tick.
	ProcessEfficiency float64 `json:"process_efficiency"`
}

// EventRecord is a persisted advisory event.
type EventRecord struct {
	RunID         string    `json:"run_id"`
	Time          time.Time `json:"time"`
	Kind          string    `json:"kind"`
	Signal        string    `json:"signal,omitempty"`
	Step          string    `json:"step,omitempty"`
	Old           float64   `json:"old,omitempty"`
	New           float64   `json:"new,omitempty"`
	ChangePercent float64   `json:"change_percent,omitempty"`
}

// HistoryQuery selects samples. Signal is required; the rest narrow the result.
type HistoryQuery struct {
	Signal string
	RunID  string
	Since  time.Time
	Limit  int
}

// DefaultHistoryLimit caps a query without an explicit limit.
const DefaultHistoryLimit = 100

func (q HistoryQuery) limit() int {
	if q.Limit <= 0 {
		return DefaultHistoryLimit
	}
	return q.Limit
}

// HistoryStore persists runs, samples and events.
type HistoryStore interface {
	BeginRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (*Run, error)

	// Runs lists runs, newest first.
	Runs(ctx context.Context, limit int) ([]Run, error)

	// RecordTick writes one sample per signal in snap.
	RecordTick(ctx context.Context, runID string, snap *signals.Snapshot) error
	RecordEvent(ctx context.Context, ev EventRecord) error

	// History returns samples newest first.
	History(ctx context.Context, q HistoryQuery) ([]Sample, error)

	// Events returns a run's events newest first.
	Events(ctx context.Context, runID string, limit int) ([]EventRecord, error)

	// Prune deletes samples and events older than before and reports how many
	// samples were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)

	Close() error
}

// samplesFromSnapshot expands a snapshot into per-signal rows.
func samplesFromSnapshot(runID string, snap *signals.Snapshot) []Sample {
	source := snap.Mode().DataSource()
	efficiency := snap.ProcessEfficiency()
	out := make([]Sample, 0, len(snap.Signals))
	for _, sig := range snap.Signals {
		out = append(out, Sample{
			RunID:             runID,
			Tick:              snap.Tick,
			Time:              snap.Taken,
			Signal:            sig.Name,
			Value:             sig.Value,
			DataSource:        source,
			ProcessEfficiency: efficiency,
		})
	}
	return out
}
