package simulation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nvandessel/plantsim/internal/constants"
	"github.com/nvandessel/plantsim/internal/signals"
)

func TestNewPublishesSeeds(t *testing.T) {
	e := New(Config{})
	snap := e.Snapshot()
	if snap.Tick != 0 {
		t.Errorf("Tick = %d, want 0", snap.Tick)
	}
	for _, s := range signals.Seeds() {
		if got := snap.Value(s.Name); got != s.Value {
			t.Errorf("%s = %v, want seed %v", s.Name, got, s.Value)
		}
	}
	if e.TickPeriod() != constants.DefaultTickPeriod {
		t.Errorf("TickPeriod() = %v, want %v", e.TickPeriod(), constants.DefaultTickPeriod)
	}
}

func TestSignalsEnumeration(t *testing.T) {
	e := New(Config{})
	descs := e.Signals()
	if len(descs) != len(signals.Seeds()) {
		t.Fatalf("len(Signals()) = %d, want %d", len(descs), len(signals.Seeds()))
	}
	for i, d := range descs {
		if d.Type != signals.TypeTag {
			t.Errorf("%s type = %q, want %q", d.Name, d.Type, signals.TypeTag)
		}
		if d.Name != signals.Seeds()[i].Name {
			t.Errorf("descriptor %d = %s, want %s", i, d.Name, signals.Seeds()[i].Name)
		}
	}

	descs[0].Name = "mutated"
	if e.Signals()[0].Name == "mutated" {
		t.Error("Signals() exposes internal state")
	}
}

func TestReadUnknownSignal(t *testing.T) {
	e := New(Config{})
	if _, err := e.Read("nope"); !errors.Is(err, ErrUnknownSignal) {
		t.Errorf("Read() error = %v, want ErrUnknownSignal", err)
	}
}

func TestStepInvariantsOverManyTicks(t *testing.T) {
	for _, mode := range []constants.OperatorMode{constants.ModeHuman, constants.ModeAutomated} {
		t.Run(mode.String(), func(t *testing.T) {
			e := New(Config{Seed: 1234})
			e.reg.Set(signals.OperatorMode, mode.Value())
			for i := 0; i < 2000; i++ {
				e.step()
				assertInvariants(t, e.Snapshot())
				if t.Failed() {
					return
				}
			}
			if got := e.Snapshot().Tick; got != 2000 {
				t.Errorf("Tick = %d, want 2000", got)
			}
		})
	}
}

func TestStepAfterExtremeOverwrite(t *testing.T) {
	e := New(Config{Seed: 99})
	// external writes are committed raw; the next tick pulls them back in bounds
	e.reg.Set(signals.CrudeFlow, 500)
	e.reg.Set(signals.Recirculation, -20)
	e.step()
	assertInvariants(t, e.Snapshot())
}

func TestEngineTicksAndPublishes(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(t, func(c *Config) {
		c.TickPeriod = 5 * time.Millisecond
		c.Source = NewSource(3)
		c.Observer = rec
	})
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return e.Snapshot().Tick >= 5 }) {
		t.Fatalf("Tick = %d after 2s, want >= 5", e.Snapshot().Tick)
	}
	assertInvariants(t, e.Snapshot())

	for _, ev := range rec.kinds(EventTick) {
		if ev.Snapshot == nil {
			t.Fatal("tick event without snapshot")
		}
	}
}

func TestConcurrentReadsSeeCommittedState(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.TickPeriod = time.Millisecond
		c.Source = NewSource(5)
		c.Heuristic.DecisionDelay = time.Millisecond
	})
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := e.Snapshot()
				for _, s := range snap.Signals {
					if s.Category == signals.CategoryStatus && s.Value != float64(int(s.Value)) {
						t.Errorf("status %s = %v", s.Name, s.Value)
						return
					}
				}
			}
		}()
	}

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		if _, err := e.Write(ctx, signals.SystemStatus, float64(i%4)); err != nil {
			t.Errorf("Write() error = %v", err)
		}
		if _, err := e.Write(ctx, signals.CrudeFlow, 120+float64(i%20)); err != nil {
			t.Errorf("Write() error = %v", err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestCloseIdempotent(t *testing.T) {
	e := New(Config{TickPeriod: time.Millisecond})
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := e.Close(); err != nil {
			t.Fatalf("Close() #%d error = %v", i+1, err)
		}
	}
	select {
	case <-e.Done():
	default:
		t.Fatal("Done() not closed after Close")
	}
	if err := e.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close error = %v, want ErrClosed", err)
	}
}

func TestCloseWithoutStart(t *testing.T) {
	e := New(Config{})
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	select {
	case <-e.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() not closed")
	}
}

func TestNoMutationAfterClose(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.TickPeriod = 2 * time.Millisecond
		c.Source = NewSource(11)
		c.Heuristic.DecisionDelay = 30 * time.Millisecond
		c.Script = []Step{{
			Name: "late",
			At:   30 * time.Millisecond,
			Set:  []Assignment{{signals.SystemStatus, 3}},
		}}
	})
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	res, err := e.Write(context.Background(), signals.CrudeFlow, 139)
	if err != nil || !res.DecisionScheduled {
		t.Fatalf("Write() = %+v, %v; want scheduled decision", res, err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	frozen := e.Snapshot()
	time.Sleep(80 * time.Millisecond)
	after := e.Snapshot()

	if after != frozen {
		t.Fatal("snapshot replaced after Close")
	}
	if got := after.Value(signals.SystemStatus); got != 1 {
		t.Errorf("system_status = %v, want 1 (scenario step must not fire after Close)", got)
	}
	if got := after.Value(signals.LastAIDecision); got != 0 {
		t.Errorf("last_ai_decision = %v, want 0 (decision must not fire after Close)", got)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	e := New(Config{TickPeriod: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()

	waitFor(t, time.Second, func() bool { return e.Snapshot().Tick > 0 })
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestSummaryThrottle(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	th := summaryThrottle{interval: 30 * time.Second}

	tests := []struct {
		offset time.Duration
		want   bool
	}{
		{0, true},
		{3 * time.Second, false},
		{30 * time.Second, false},
		{31 * time.Second, true},
		{40 * time.Second, false},
		{62 * time.Second, true},
	}
	for _, tt := range tests {
		if got := th.due(base.Add(tt.offset)); got != tt.want {
			t.Errorf("due(+%v) = %v, want %v", tt.offset, got, tt.want)
		}
	}
}

func TestAutomatedSummaryEmittedOncePerInterval(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &recorder{}
	e := New(Config{
		Source:          quiet,
		SummaryInterval: 30 * time.Second,
		Observer:        rec,
		Now:             func() time.Time { return now },
	})

	e.step()
	if n := len(rec.kinds(EventStatusSummary)); n != 0 {
		t.Fatalf("human mode summaries = %d, want 0", n)
	}

	e.reg.Set(signals.OperatorMode, constants.ModeAutomated.Value())
	for i := 0; i < 20; i++ {
		now = now.Add(3 * time.Second)
		e.step()
	}
	// ticks at +3s..+60s: summaries at +3s and +36s
	if n := len(rec.kinds(EventStatusSummary)); n != 2 {
		t.Errorf("automated summaries = %d, want 2", n)
	}
}

func TestObserversSkipsNil(t *testing.T) {
	var a, b int
	obs := Observers(nil, ObserverFunc(func(Event) { a++ }), nil, ObserverFunc(func(Event) { b++ }))
	obs.Observe(Event{Kind: EventTick})
	if a != 1 || b != 1 {
		t.Errorf("calls = (%d, %d), want (1, 1)", a, b)
	}
}

func TestNewDefaultsZeroConfig(t *testing.T) {
	e := New(Config{Seed: 7})
	if e.cfg.Coefficients != DefaultCoefficients() {
		t.Errorf("Coefficients = %+v, want defaults", e.cfg.Coefficients)
	}
	if e.cfg.Heuristic != DefaultHeuristic() {
		t.Errorf("Heuristic = %+v, want defaults", e.cfg.Heuristic)
	}

	e.reg.Set(signals.OperatorMode, constants.ModeAutomated.Value())
	for i := 0; i < 50; i++ {
		e.step()
		assertInvariants(t, e.Snapshot())
		if t.Failed() {
			return
		}
	}
}

func TestNewKeepsExplicitHeuristic(t *testing.T) {
	h := Heuristic{ObservationThreshold: 5, DecisionThreshold: 10, DecisionDelay: time.Second}
	e := New(Config{Heuristic: h})
	if e.cfg.Heuristic != h {
		t.Errorf("Heuristic = %+v, want %+v", e.cfg.Heuristic, h)
	}
}
