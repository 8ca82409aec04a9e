package simulation

import (
	"time"

	"github.com/nvandessel/plantsim/internal/signals"
)

// EventKind names an advisory event.
type EventKind string

const (
	EventTick             EventKind = "tick"
	EventValueChanged     EventKind = "value_changed"
	EventDecisionDetected EventKind = "decision_detected"
	EventDecisionApplied  EventKind = "decision_applied"
	EventScenarioStep     EventKind = "scenario_step"
	EventStatusSummary    EventKind = "status_summary"
)

// Event is an advisory notification from the engine. Events carry no delivery
// guarantee and are not part of the signal data contract.
type Event struct {
	Kind EventKind `json:"kind"`
	Time time.Time `json:"time"`

	// Signal, Old, New and ChangePercent describe external writes.
	Signal        string  `json:"signal,omitempty"`
	Old           float64 `json:"old,omitempty"`
	New           float64 `json:"new,omitempty"`
	ChangePercent float64 `json:"change_percent,omitempty"`

	// Step names the scenario step that fired.
	Step string `json:"step,omitempty"`

	// Snapshot is the committed state the event refers to (ticks, summaries).
	Snapshot *signals.Snapshot `json:"-"`
}

// Observer receives advisory events on the engine goroutine. Implementations must
// return quickly and must not call back into the engine synchronously.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(ev).
func (f ObserverFunc) Observe(ev Event) { f(ev) }

type multiObserver []Observer

func (m multiObserver) Observe(ev Event) {
	for _, o := range m {
		o.Observe(ev)
	}
}

// Observers fans events out to every non-nil observer.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

// summaryThrottle limits automated-mode status summaries to one per interval.
type summaryThrottle struct {
	interval      time.Duration
	lastEmittedAt time.Time
}

// due reports whether a summary may be emitted at now, and records it if so.
func (t *summaryThrottle) due(now time.Time) bool {
	if !t.lastEmittedAt.IsZero() && now.Sub(t.lastEmittedAt) <= t.interval {
		return false
	}
	t.lastEmittedAt = now
	return true
}
