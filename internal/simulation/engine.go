package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nvandessel/plantsim/internal/constants"
	"github.com/nvandessel/plantsim/internal/signals"
)

var (
	// ErrClosed is returned for operations attempted after Close.
	ErrClosed = errors.New("simulation: engine closed")

	// ErrNotRunning is returned for writes before Start.
	ErrNotRunning = errors.New("simulation: engine not running")

	// ErrUnknownSignal is returned for names outside the fixed signal set.
	ErrUnknownSignal = errors.New("simulation: unknown signal")
)

// Config configures an Engine. The tick period is fixed once the engine is built.
// Zero-valued Coefficients or Heuristic fall back to the refinery defaults.
type Config struct {
	TickPeriod      time.Duration
	SummaryInterval time.Duration
	Coefficients    Coefficients
	Heuristic       Heuristic

	// Script is the one-shot scenario. Nil runs the simulation free.
	Script []Step

	// Seed feeds the default PCG source; ignored when Source is set.
	Seed   uint64
	Source Source

	Logger   *slog.Logger
	Observer Observer

	// Now defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the refinery defaults with the demo script enabled.
func DefaultConfig() Config {
	return Config{
		TickPeriod:      constants.DefaultTickPeriod,
		SummaryInterval: constants.DefaultSummaryInterval,
		Coefficients:    DefaultCoefficients(),
		Heuristic:       DefaultHeuristic(),
		Script:          DefaultScript(),
	}
}

// Engine owns the signal registry and evolves it. All mutations (ticks, scenario
// steps, external writes, delayed decision confirmations) are applied one at a time
// on a single goroutine; readers see the snapshot published after each commit.
type Engine struct {
	cfg    Config
	logger *slog.Logger
	obs    Observer
	src    Source
	now    func() time.Time

	// owned by the run goroutine once started
	reg     *signals.Registry
	tick    uint64
	summary summaryThrottle

	descriptors map[string]signals.Descriptor
	order       []signals.Descriptor
	snap        atomic.Pointer[signals.Snapshot]

	cmds    chan command
	quit    chan struct{}
	done    chan struct{}
	running atomic.Bool

	mu      sync.Mutex // guards timers, started, closed
	timers  map[*time.Timer]struct{}
	started bool
	closed  bool
}

type command struct {
	fn    func()
	reply chan error
}

// New creates an engine seeded with the literal start values. It does not start
// ticking until Start.
func New(cfg Config) *Engine {
	if cfg.TickPeriod <= 0 {
		cfg.TickPeriod = constants.DefaultTickPeriod
	}
	if cfg.SummaryInterval <= 0 {
		cfg.SummaryInterval = constants.DefaultSummaryInterval
	}
	if cfg.Coefficients == (Coefficients{}) {
		cfg.Coefficients = DefaultCoefficients()
	}
	if cfg.Heuristic == (Heuristic{}) {
		cfg.Heuristic = DefaultHeuristic()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	src := cfg.Source
	if src == nil {
		src = NewSource(cfg.Seed)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	reg := signals.NewRegistry()
	e := &Engine{
		cfg:         cfg,
		logger:      logger,
		obs:         cfg.Observer,
		src:         src,
		now:         cfg.Now,
		reg:         reg,
		summary:     summaryThrottle{interval: cfg.SummaryInterval},
		descriptors: make(map[string]signals.Descriptor, reg.Len()),
		order:       reg.Describe(),
		cmds:        make(chan command),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		timers:      make(map[*time.Timer]struct{}),
	}
	for _, d := range e.order {
		e.descriptors[d.Name] = d
	}
	e.publish()
	return e
}

// Start begins ticking and arms the scenario script. It returns ErrClosed after Close
// and is a no-op when already started.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.started {
		return nil
	}
	e.started = true

	ticker := time.NewTicker(e.cfg.TickPeriod)
	e.running.Store(true)
	go e.run(ticker)

	for _, step := range e.cfg.Script {
		e.scheduleLocked(step)
	}

	e.logger.Info("simulation started",
		"tick", e.cfg.TickPeriod,
		"signals", len(e.order),
		"scenario_steps", len(e.cfg.Script))
	return nil
}

// Run starts the engine and blocks until ctx is done, then closes it.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return e.Close()
}

// Close stops the ticker and every pending timer and waits for the engine goroutine
// to exit. No mutation is applied after Close returns. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for t := range e.timers {
		t.Stop()
	}
	e.timers = nil
	started := e.started
	e.mu.Unlock()

	close(e.quit)
	if started {
		<-e.done
	} else {
		close(e.done)
	}
	e.running.Store(false)
	e.logger.Info("simulation stopped", "ticks", e.snap.Load().Tick)
	return nil
}

// Done is closed when the engine goroutine has exited.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Running reports whether the engine has started and not yet closed.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Snapshot returns the latest committed state.
func (e *Engine) Snapshot() *signals.Snapshot {
	return e.snap.Load()
}

// Read returns the latest committed value of name.
func (e *Engine) Read(name string) (float64, error) {
	sig, ok := e.snap.Load().Get(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSignal, name)
	}
	return sig.Value, nil
}

// Signals returns the fixed signal set with wire type tags, in registry order.
func (e *Engine) Signals() []signals.Descriptor {
	out := make([]signals.Descriptor, len(e.order))
	copy(out, e.order)
	return out
}

// TickPeriod returns the fixed tick period.
func (e *Engine) TickPeriod() time.Duration {
	return e.cfg.TickPeriod
}

func (e *Engine) run(ticker *time.Ticker) {
	defer close(e.done)
	defer ticker.Stop()

	for {
		select {
		case <-e.quit:
			return
		case <-ticker.C:
			if e.closing() {
				return
			}
			e.step()
		case cmd := <-e.cmds:
			if e.closing() {
				cmd.reply <- ErrClosed
				return
			}
			cmd.fn()
			e.publish()
			cmd.reply <- nil
		}
	}
}

// closing reports whether Close has begun.
func (e *Engine) closing() bool {
	select {
	case <-e.quit:
		return true
	default:
		return false
	}
}

// submit runs fn on the engine goroutine and waits for it to be committed.
func (e *Engine) submit(ctx context.Context, fn func()) error {
	if !e.running.Load() {
		select {
		case <-e.quit:
			return ErrClosed
		default:
			return ErrNotRunning
		}
	}

	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case e.cmds <- cmd:
	case <-e.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-cmd.reply
}

// step is one tick: noise over every non-status signal, then correlation, then a
// single commit.
func (e *Engine) step() {
	applyNoise(e.reg, e.src)
	Correlate(e.reg, e.cfg.Coefficients, e.src)
	e.tick++
	snap := e.publish()

	e.emit(Event{Kind: EventTick, Snapshot: snap})

	if snap.Mode() == constants.ModeAutomated && e.summary.due(snap.Taken) {
		e.logger.Info("automated mode active",
			"bit_tq", snap.Value(signals.QualityKPI),
			"energy_mwh", snap.Value(signals.EnergyConsumption),
			"co2_t_h", snap.Value(signals.CO2Emissions))
		e.emit(Event{Kind: EventStatusSummary, Snapshot: snap})
	}
}

// publish makes the current registry state visible to readers.
func (e *Engine) publish() *signals.Snapshot {
	snap := e.reg.Snapshot(e.tick, e.now())
	e.snap.Store(snap)
	return snap
}

func (e *Engine) emit(ev Event) {
	if e.obs == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = e.now()
	}
	e.obs.Observe(ev)
}

// after runs fn on the engine goroutine once d has elapsed, unless the engine is
// closed first.
func (e *Engine) after(d time.Duration, fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.afterLocked(d, fn)
}

func (e *Engine) afterLocked(d time.Duration, fn func()) {
	if e.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		e.mu.Lock()
		delete(e.timers, t)
		e.mu.Unlock()
		_ = e.submit(context.Background(), fn)
	})
	e.timers[t] = struct{}{}
}

func (e *Engine) scheduleLocked(step Step) {
	e.afterLocked(step.At, func() { e.applyStep(step) })
}

// applyStep runs on the engine goroutine.
func (e *Engine) applyStep(step Step) {
	step.Apply(e.reg)
	e.logger.Info("scenario step applied", "step", step.Name)
	e.emit(Event{Kind: EventScenarioStep, Step: step.Name})
	if step.Then != nil {
		next := *step.Then
		e.after(next.At, func() { e.applyStep(next) })
	}
}
