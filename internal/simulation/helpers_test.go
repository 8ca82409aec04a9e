package simulation

import (
	"sync"
	"testing"
	"time"

	"github.com/nvandessel/plantsim/internal/signals"
)

// fixedSource always returns the same draw. 0.5 maps to zero noise.
type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

// sequenceSource cycles through draws.
type sequenceSource struct {
	draws []float64
	i     int
}

func (s *sequenceSource) Float64() float64 {
	v := s.draws[s.i%len(s.draws)]
	s.i++
	return v
}

const quiet = fixedSource(0.5)

// recorder collects events from the engine goroutine.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// newTestEngine builds an engine that never ticks on its own during a test.
func newTestEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TickPeriod = time.Hour
	cfg.Script = nil
	cfg.Source = quiet
	if mutate != nil {
		mutate(&cfg)
	}
	e := New(cfg)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func approxEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}

func assertInvariants(t *testing.T, snap *signals.Snapshot) {
	t.Helper()
	for _, s := range snap.Signals {
		if !s.InBounds() {
			t.Errorf("tick %d: %s = %v outside [%v, %v]", snap.Tick, s.Name, s.Value, s.Min, s.Max)
		}
		if s.Category == signals.CategoryStatus && s.Value != float64(int(s.Value)) {
			t.Errorf("tick %d: status signal %s = %v is not integral", snap.Tick, s.Name, s.Value)
		}
	}
}
