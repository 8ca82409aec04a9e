package signals

import (
	"time"

	"github.com/nvandessel/plantsim/internal/constants"
)

// Registry maps signal names to their live state. It is not safe for concurrent use;
// exactly one goroutine owns it and others read published Snapshots.
type Registry struct {
	order  []*Signal
	byName map[string]*Signal
}

// NewRegistry creates a registry seeded with the literal start values.
func NewRegistry() *Registry {
	seeds := Seeds()
	r := &Registry{
		order:  make([]*Signal, 0, len(seeds)),
		byName: make(map[string]*Signal, len(seeds)),
	}
	for i := range seeds {
		sig := seeds[i]
		sig.Seed = sig.Value
		r.order = append(r.order, &sig)
		r.byName[sig.Name] = &sig
	}
	return r
}

// Len returns the number of signals.
func (r *Registry) Len() int {
	return len(r.order)
}

// Names returns the signal names in registry order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	for i, s := range r.order {
		names[i] = s.Name
	}
	return names
}

// Lookup returns the live signal for name.
func (r *Registry) Lookup(name string) (*Signal, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Value returns the current value of name, or 0 for an unknown name.
func (r *Registry) Value(name string) float64 {
	if s, ok := r.byName[name]; ok {
		return s.Value
	}
	return 0
}

// Baseline returns the seed value of name.
func (r *Registry) Baseline(name string) float64 {
	if s, ok := r.byName[name]; ok {
		return s.Seed
	}
	return 0
}

// Set overwrites the value of name. It returns false for an unknown name.
func (r *Registry) Set(name string, v float64) bool {
	s, ok := r.byName[name]
	if !ok {
		return false
	}
	s.Value = v
	return true
}

// Each calls fn for every signal in registry order.
func (r *Registry) Each(fn func(s *Signal)) {
	for _, s := range r.order {
		fn(s)
	}
}

// Mode returns the current operator mode.
func (r *Registry) Mode() constants.OperatorMode {
	return constants.OperatorMode(int(r.Value(OperatorMode)))
}

// Automated reports whether the optimisation controller is in control.
func (r *Registry) Automated() bool {
	return r.Mode() == constants.ModeAutomated
}

// Describe returns the static descriptors in registry order.
func (r *Registry) Describe() []Descriptor {
	out := make([]Descriptor, len(r.order))
	for i, s := range r.order {
		out[i] = s.Describe()
	}
	return out
}

// Snapshot copies the current state. The result shares nothing with r.
func (r *Registry) Snapshot(tick uint64, at time.Time) *Snapshot {
	snap := &Snapshot{
		Tick:    tick,
		Taken:   at,
		Signals: make([]Signal, len(r.order)),
		index:   make(map[string]int, len(r.order)),
	}
	for i, s := range r.order {
		snap.Signals[i] = *s
		snap.index[s.Name] = i
	}
	return snap
}
