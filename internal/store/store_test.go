package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvandessel/plantsim/internal/constants"
	"github.com/nvandessel/plantsim/internal/signals"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSQLiteStore(t *testing.T) HistoryStore {
	t.Helper()
	s, err := NewSQLiteHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteHistoryStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newMemoryStore(t *testing.T) HistoryStore {
	return NewInMemoryHistoryStore()
}

var implementations = []struct {
	name string
	open func(t *testing.T) HistoryStore
}{
	{"sqlite", newSQLiteStore},
	{"memory", newMemoryStore},
}

func snapshotAt(tick uint64, at time.Time, mutate func(*signals.Registry)) *signals.Snapshot {
	reg := signals.NewRegistry()
	if mutate != nil {
		mutate(reg)
	}
	return reg.Snapshot(tick, at)
}

func beginRun(t *testing.T, s HistoryStore, id string, at time.Time) {
	t.Helper()
	err := s.BeginRun(context.Background(), Run{ID: id, StartedAt: at, TickPeriod: 3 * time.Second, Seed: 42, Scenario: true})
	if err != nil {
		t.Fatalf("BeginRun(%s) error = %v", id, err)
	}
}

func TestHistoryStore_Runs(t *testing.T) {
	for _, impl := range implementations {
		t.Run(impl.name, func(t *testing.T) {
			s := impl.open(t)
			ctx := context.Background()

			beginRun(t, s, "run-a", baseTime)
			beginRun(t, s, "run-b", baseTime.Add(time.Hour))

			if err := s.BeginRun(ctx, Run{}); err == nil {
				t.Error("expected error for empty run ID")
			}
			if err := s.BeginRun(ctx, Run{ID: "run-a", StartedAt: baseTime}); err == nil {
				t.Error("expected error for duplicate run ID")
			}

			run, err := s.GetRun(ctx, "run-a")
			if err != nil {
				t.Fatalf("GetRun() error = %v", err)
			}
			if !run.StartedAt.Equal(baseTime) || run.TickPeriod != 3*time.Second || run.Seed != 42 || !run.Scenario {
				t.Errorf("GetRun() = %+v", run)
			}

			if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("GetRun(missing) error = %v, want ErrRunNotFound", err)
			}

			runs, err := s.Runs(ctx, 10)
			if err != nil {
				t.Fatalf("Runs() error = %v", err)
			}
			if len(runs) != 2 || runs[0].ID != "run-b" {
				t.Errorf("Runs() = %+v, want run-b first", runs)
			}
		})
	}
}

func TestHistoryStore_RecordTickAndHistory(t *testing.T) {
	for _, impl := range implementations {
		t.Run(impl.name, func(t *testing.T) {
			s := impl.open(t)
			ctx := context.Background()
			beginRun(t, s, "run-1", baseTime)

			for i := uint64(1); i <= 5; i++ {
				snap := snapshotAt(i, baseTime.Add(time.Duration(i)*3*time.Second), func(r *signals.Registry) {
					r.Set(signals.QualityKPI, 45+float64(i))
					if i >= 4 {
						r.Set(signals.OperatorMode, constants.ModeAutomated.Value())
					}
				})
				if err := s.RecordTick(ctx, "run-1", snap); err != nil {
					t.Fatalf("RecordTick(%d) error = %v", i, err)
				}
			}

			got, err := s.History(ctx, HistoryQuery{Signal: signals.QualityKPI, Limit: 3})
			if err != nil {
				t.Fatalf("History() error = %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("len(History()) = %d, want 3", len(got))
			}
			if got[0].Tick != 5 || got[0].Value != 50 || got[2].Tick != 3 {
				t.Errorf("History() not newest first: %+v", got)
			}
			if got[0].DataSource != "ai_control" || got[2].DataSource != "human_control" {
				t.Errorf("data sources = %s, %s", got[0].DataSource, got[2].DataSource)
			}
			if got[0].ProcessEfficiency <= 0 || got[0].ProcessEfficiency > 100 {
				t.Errorf("process efficiency = %v, want (0, 100]", got[0].ProcessEfficiency)
			}
			if !got[0].Time.Equal(baseTime.Add(15 * time.Second)) {
				t.Errorf("time = %v, want %v", got[0].Time, baseTime.Add(15*time.Second))
			}

			since, err := s.History(ctx, HistoryQuery{Signal: signals.QualityKPI, Since: baseTime.Add(12 * time.Second)})
			if err != nil {
				t.Fatalf("History(since) error = %v", err)
			}
			if len(since) != 2 {
				t.Errorf("len(History(since)) = %d, want 2", len(since))
			}

			other, err := s.History(ctx, HistoryQuery{Signal: signals.QualityKPI, RunID: "other"})
			if err != nil {
				t.Fatalf("History(other run) error = %v", err)
			}
			if len(other) != 0 {
				t.Errorf("expected no samples for another run, got %d", len(other))
			}

			if _, err := s.History(ctx, HistoryQuery{}); err == nil {
				t.Error("expected error for missing signal")
			}
		})
	}
}

func TestHistoryStore_Events(t *testing.T) {
	for _, impl := range implementations {
		t.Run(impl.name, func(t *testing.T) {
			s := impl.open(t)
			ctx := context.Background()
			beginRun(t, s, "run-1", baseTime)

			evs := []EventRecord{
				{RunID: "run-1", Time: baseTime.Add(time.Second), Kind: "value_changed", Signal: signals.CrudeFlow, Old: 127.3, New: 131.5, ChangePercent: 3.3},
				{RunID: "run-1", Time: baseTime.Add(2 * time.Second), Kind: "scenario_step", Step: "kpi-fault"},
			}
			for _, ev := range evs {
				if err := s.RecordEvent(ctx, ev); err != nil {
					t.Fatalf("RecordEvent() error = %v", err)
				}
			}

			got, err := s.Events(ctx, "run-1", 10)
			if err != nil {
				t.Fatalf("Events() error = %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("len(Events()) = %d, want 2", len(got))
			}
			if got[0].Step != "kpi-fault" || got[0].Signal != "" {
				t.Errorf("newest event = %+v", got[0])
			}
			if got[1].Signal != signals.CrudeFlow || got[1].New != 131.5 || got[1].ChangePercent != 3.3 {
				t.Errorf("oldest event = %+v", got[1])
			}
		})
	}
}

func TestHistoryStore_Prune(t *testing.T) {
	for _, impl := range implementations {
		t.Run(impl.name, func(t *testing.T) {
			s := impl.open(t)
			ctx := context.Background()
			beginRun(t, s, "run-1", baseTime)

			for i := uint64(0); i < 4; i++ {
				at := baseTime.Add(time.Duration(i) * time.Hour)
				if err := s.RecordTick(ctx, "run-1", snapshotAt(i, at, nil)); err != nil {
					t.Fatalf("RecordTick() error = %v", err)
				}
				if err := s.RecordEvent(ctx, EventRecord{RunID: "run-1", Time: at, Kind: "tick_marker"}); err != nil {
					t.Fatalf("RecordEvent() error = %v", err)
				}
			}

			n, err := s.Prune(ctx, baseTime.Add(2*time.Hour))
			if err != nil {
				t.Fatalf("Prune() error = %v", err)
			}
			perTick := int64(len(signals.Seeds()))
			if n != 2*perTick {
				t.Errorf("Prune() = %d, want %d", n, 2*perTick)
			}

			left, _ := s.History(ctx, HistoryQuery{Signal: signals.CrudeFlow})
			if len(left) != 2 {
				t.Errorf("samples left = %d, want 2", len(left))
			}
			events, _ := s.Events(ctx, "run-1", 0)
			if len(events) != 2 {
				t.Errorf("events left = %d, want 2", len(events))
			}
		})
	}
}

func TestSQLiteHistoryStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	ctx := context.Background()

	s, err := NewSQLiteHistoryStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteHistoryStore() error = %v", err)
	}
	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}
	beginRun(t, s, "run-1", baseTime)
	if err := s.RecordTick(ctx, "run-1", snapshotAt(1, baseTime, nil)); err != nil {
		t.Fatalf("RecordTick() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = NewSQLiteHistoryStore(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	got, err := s.History(ctx, HistoryQuery{Signal: signals.CrudeFlow})
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 1 || got[0].Value != 127.3 {
		t.Errorf("History() after reopen = %+v", got)
	}
}

func TestSQLiteHistoryStore_ForeignKeys(t *testing.T) {
	s := newSQLiteStore(t)
	err := s.RecordTick(context.Background(), "no-such-run", snapshotAt(1, baseTime, nil))
	if err == nil {
		t.Error("expected foreign key error for unknown run")
	}
}

func TestSQLiteHistoryStore_LargeSeed(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	seed := uint64(1<<63 + 12345)
	if err := s.BeginRun(ctx, Run{ID: "big", StartedAt: baseTime, Seed: seed}); err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}
	run, err := s.GetRun(ctx, "big")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Seed != seed {
		t.Errorf("Seed = %d, want %d", run.Seed, seed)
	}
}
