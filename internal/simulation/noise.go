package simulation

import (
	"math/rand/v2"
	"time"

	"github.com/nvandessel/plantsim/internal/signals"
)

// Source supplies uniform draws in [0, 1). *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// NewSource returns a PCG-backed source. A zero seed picks one from the clock.
func NewSource(seed uint64) Source {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// symmetric maps a draw from src onto [-1, 1).
func symmetric(src Source) float64 {
	return src.Float64()*2 - 1
}

// Perturb returns the unclamped next value of sig: value * (1 + u*variance) for a
// uniform u in [-1, 1).
func Perturb(sig signals.Signal, src Source) float64 {
	delta := symmetric(src) * sig.Variance
	return sig.Value * (1 + delta)
}

// NextValue returns the next value of sig before correlation: the perturbed value
// clamped into the signal's bounds.
func NextValue(sig signals.Signal, src Source) float64 {
	return sig.Clamp(Perturb(sig, src))
}

// applyNoise steps every non-status signal in place.
func applyNoise(reg *signals.Registry, src Source) {
	reg.Each(func(s *signals.Signal) {
		if s.Category == signals.CategoryStatus {
			return
		}
		s.Value = NextValue(*s, src)
	})
}
