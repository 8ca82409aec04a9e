package simulation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nvandessel/plantsim/internal/constants"
	"github.com/nvandessel/plantsim/internal/signals"
)

// Heuristic decides whether an external write looks like an automated controller
// action. There is no authenticated writer identity, so a large write to a primary
// input is the only available evidence.
type Heuristic struct {
	// ObservationThreshold is the change percent above which a write is reported.
	ObservationThreshold float64 `json:"observation_threshold" yaml:"observation_threshold"`

	// DecisionThreshold is the change percent above which a primary-input write
	// raises last_ai_decision.
	DecisionThreshold float64 `json:"decision_threshold" yaml:"decision_threshold"`

	// DecisionDelay is how long after the write the flag is raised.
	DecisionDelay time.Duration `json:"decision_delay" yaml:"decision_delay"`
}

// DefaultHeuristic returns the 2% / 3% / 1s heuristic.
func DefaultHeuristic() Heuristic {
	return Heuristic{
		ObservationThreshold: constants.ObservationThresholdPercent,
		DecisionThreshold:    constants.DecisionThresholdPercent,
		DecisionDelay:        constants.DecisionConfirmDelay,
	}
}

// ChangePercent returns |new-old| / |old| * 100. A zero old value yields 0, so a write
// to a zeroed signal never looks like a controller action.
func ChangePercent(oldValue, newValue float64) float64 {
	if oldValue == 0 {
		return 0
	}
	return math.Abs((newValue-oldValue)/oldValue) * 100
}

// WriteResult reports how an external write was classified.
type WriteResult struct {
	Signal            string  `json:"signal"`
	Old               float64 `json:"old"`
	New               float64 `json:"new"`
	ChangePercent     float64 `json:"change_percent"`
	Observed          bool    `json:"observed"`
	DecisionScheduled bool    `json:"decision_scheduled"`
}

// Write commits an externally originated value and evaluates the automated-decision
// heuristic. The write always succeeds for a known signal; it returns once the engine
// has committed it.
func (e *Engine) Write(ctx context.Context, name string, value float64) (WriteResult, error) {
	if _, ok := e.descriptors[name]; !ok {
		return WriteResult{}, fmt.Errorf("%w: %s", ErrUnknownSignal, name)
	}

	var res WriteResult
	err := e.submit(ctx, func() {
		res = e.applyWrite(name, value)
	})
	return res, err
}

// applyWrite runs on the engine goroutine.
func (e *Engine) applyWrite(name string, value float64) WriteResult {
	sig, _ := e.reg.Lookup(name)
	h := e.cfg.Heuristic

	oldValue := sig.Value
	newValue := sig.Normalize(value)
	res := WriteResult{
		Signal:        name,
		Old:           oldValue,
		New:           newValue,
		ChangePercent: ChangePercent(oldValue, newValue),
	}

	sig.Value = newValue

	if res.ChangePercent <= h.ObservationThreshold || name == signals.QualityKPI {
		return res
	}

	res.Observed = true
	e.logger.Info("signal changed externally",
		"signal", name,
		"old", oldValue,
		"new", newValue,
		"change_percent", res.ChangePercent)
	e.emit(Event{Kind: EventValueChanged, Signal: name, Old: oldValue, New: newValue, ChangePercent: res.ChangePercent})

	if sig.Category != signals.CategoryPrimary || res.ChangePercent <= h.DecisionThreshold {
		return res
	}

	res.DecisionScheduled = true
	e.logger.Info("possible automated decision detected", "signal", name)
	e.emit(Event{Kind: EventDecisionDetected, Signal: name, Old: oldValue, New: newValue, ChangePercent: res.ChangePercent})

	e.after(h.DecisionDelay, func() {
		e.reg.Set(signals.LastAIDecision, 1)
		e.logger.Info("automated decision flag set", "signal", name)
		e.emit(Event{Kind: EventDecisionApplied, Signal: name})
	})
	return res
}
