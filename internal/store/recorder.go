package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/plantsim/internal/constants"
	"github.com/nvandessel/plantsim/internal/simulation"
)

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// Buffer is the queue capacity. Events beyond it are dropped.
	Buffer int

	// Retention prunes samples older than this. 0 keeps everything.
	Retention time.Duration

	// PruneEvery is how often retention is applied. Defaults to Retention/10.
	PruneEvery time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// Recorder persists engine events to a HistoryStore. It implements
// simulation.Observer: Observe never blocks the engine, and events that do not fit
// in the queue are counted and dropped.
type Recorder struct {
	store  HistoryStore
	runID  string
	logger *slog.Logger
	now    func() time.Time

	retention  time.Duration
	pruneEvery time.Duration
	lastPrune  time.Time

	queue   chan simulation.Event
	done    chan struct{}
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewRecorder starts a recorder for run, which must already be registered with
// BeginRun.
func NewRecorder(hs HistoryStore, runID string, opts RecorderOptions) *Recorder {
	if opts.Buffer <= 0 {
		opts.Buffer = constants.DefaultRecorderBuffer
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PruneEvery <= 0 {
		opts.PruneEvery = opts.Retention / 10
	}

	r := &Recorder{
		store:      hs,
		runID:      runID,
		logger:     opts.Logger,
		now:        opts.Now,
		retention:  opts.Retention,
		pruneEvery: opts.PruneEvery,
		lastPrune:  opts.Now(),
		queue:      make(chan simulation.Event, opts.Buffer),
		done:       make(chan struct{}),
	}
	go r.run()
	return r
}

// RunID returns the run this recorder writes to.
func (r *Recorder) RunID() string {
	return r.runID
}

// Dropped returns how many events were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Observe queues ev for persistence without blocking.
func (r *Recorder) Observe(ev simulation.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return
	}
	select {
	case r.queue <- ev:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			r.logger.Warn("history recorder queue full, dropping events", "dropped", n)
		}
	}
}

// Close drains the queue and stops the writer. It does not close the store.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	if n := r.dropped.Load(); n > 0 {
		r.logger.Warn("history recorder dropped events", "dropped", n)
	}
	return nil
}

func (r *Recorder) run() {
	defer close(r.done)
	ctx := context.Background()

	for ev := range r.queue {
		if err := r.write(ctx, ev); err != nil {
			r.logger.Error("failed to record history", "kind", ev.Kind, "error", err)
		}
		r.maybePrune(ctx)
	}
}

func (r *Recorder) write(ctx context.Context, ev simulation.Event) error {
	if ev.Kind == simulation.EventTick {
		if ev.Snapshot == nil {
			return nil
		}
		return r.store.RecordTick(ctx, r.runID, ev.Snapshot)
	}

	at := ev.Time
	if at.IsZero() {
		at = r.now()
	}
	return r.store.RecordEvent(ctx, EventRecord{
		RunID:         r.runID,
		Time:          at,
		Kind:          string(ev.Kind),
		Signal:        ev.Signal,
		Step:          ev.Step,
		Old:           ev.Old,
		New:           ev.New,
		ChangePercent: ev.ChangePercent,
	})
}

func (r *Recorder) maybePrune(ctx context.Context) {
	if r.retention <= 0 {
		return
	}
	now := r.now()
	if now.Sub(r.lastPrune) < r.pruneEvery {
		return
	}
	r.lastPrune = now

	n, err := r.store.Prune(ctx, now.Add(-r.retention))
	if err != nil {
		r.logger.Error("failed to prune history", "error", err)
		return
	}
	if n > 0 {
		r.logger.Debug("pruned history", "samples", n, "retention", r.retention)
	}
}
