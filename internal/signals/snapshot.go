package signals

import (
	"math"
	"time"

	"github.com/nvandessel/plantsim/internal/constants"
)

// Snapshot is an immutable copy of the registry taken after a committed mutation.
type Snapshot struct {
	Tick    uint64    `json:"tick"`
	Taken   time.Time `json:"taken"`
	Signals []Signal  `json:"signals"`

	index map[string]int
}

// Get returns the signal named name.
func (s *Snapshot) Get(name string) (Signal, bool) {
	i, ok := s.index[name]
	if !ok {
		return Signal{}, false
	}
	return s.Signals[i], true
}

// Value returns the value of name, or 0 for an unknown name.
func (s *Snapshot) Value(name string) float64 {
	sig, _ := s.Get(name)
	return sig.Value
}

// Values returns the snapshot as a name to value map.
func (s *Snapshot) Values() map[string]float64 {
	out := make(map[string]float64, len(s.Signals))
	for _, sig := range s.Signals {
		out[sig.Name] = sig.Value
	}
	return out
}

// Mode returns the operator mode at the time of the snapshot.
func (s *Snapshot) Mode() constants.OperatorMode {
	return constants.OperatorMode(int(s.Value(OperatorMode)))
}

// Status returns the system status at the time of the snapshot.
func (s *Snapshot) Status() constants.SystemStatus {
	return constants.SystemStatus(int(s.Value(SystemStatus)))
}

// ProcessEfficiency scores the snapshot from the quality KPI and energy consumption:
// the mean of a KPI score (100% at bit_tq 50, capped) and an energy score (100% at
// 1200, one point lost per 10 units above, more than 100 below).
func (s *Snapshot) ProcessEfficiency() float64 {
	kpi := s.Value(QualityKPI)
	energy := s.Value(EnergyConsumption)

	var kpiScore, energyScore float64
	if kpi > 0 {
		kpiScore = math.Min(100, kpi/constants.EfficiencyKPIReference*100)
	}
	if energy > 0 {
		energyScore = math.Max(0, 100-(energy-constants.EfficiencyEnergyReference)/constants.EfficiencyEnergyScale)
	}
	return (kpiScore + energyScore) / 2
}
