// Package signals holds the canonical set of simulated refinery signals: their current
// values, static bounds and noise profiles. It is pure data plus accessors; the
// simulation package owns the only mutable Registry and evolves it.
package signals

import (
	"math"

	"github.com/nvandessel/plantsim/internal/constants"
)

// Signal names. The set is fixed for the lifetime of the process.
const (
	CrudeFlow             = "fc1065"
	StorageLevel          = "li40054"
	HVGOFlowControl       = "fc31007"
	FractionationPressure = "pi18213"

	QualityKPI        = "bit_tq"
	EnergyConsumption = "energy_consumption"
	CO2Emissions      = "co2_emissions"
	Recirculation     = "hvbgo_flow"

	FlashTemperature = "temperature_flash"

	SystemStatus   = "system_status"
	OperatorMode   = "operator_mode"
	LastAIDecision = "last_ai_decision"
)

// TypeTag is the wire type of every signal, including the integral status signals.
const TypeTag = "Double"

// Category groups signals by lifecycle role.
type Category int

const (
	// CategoryPrimary signals are independently controllable process inputs.
	CategoryPrimary Category = iota
	// CategoryDerived signals are recomputed from other signals every tick.
	CategoryDerived
	// CategoryProcess signals only follow the noise model.
	CategoryProcess
	// CategoryStatus signals are integral enumerations outside the noise pass.
	CategoryStatus
)

// String returns the category name used in listings.
func (c Category) String() string {
	switch c {
	case CategoryPrimary:
		return "primary"
	case CategoryDerived:
		return "derived"
	case CategoryProcess:
		return "process"
	case CategoryStatus:
		return "status"
	}
	return "unknown"
}

// Signal is one simulated quantity.
type Signal struct {
	Name     string   `json:"name"`
	Category Category `json:"-"`
	Value    float64  `json:"value"`
	Seed     float64  `json:"seed"`
	Min      float64  `json:"min"`
	Max      float64  `json:"max"`

	// Variance is the noise amplitude as a fraction of the value (0 for status signals).
	Variance float64 `json:"variance"`
}

// Clamp limits v to the signal's inclusive bounds.
func (s Signal) Clamp(v float64) float64 {
	return math.Max(s.Min, math.Min(s.Max, v))
}

// Normalize prepares an externally supplied value for commit. A NaN or infinite value
// keeps the current one. Status signals are rounded to the nearest member of their
// enumeration; other finite values pass through.
func (s Signal) Normalize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return s.Value
	}
	if s.Category != CategoryStatus {
		return v
	}
	return s.Clamp(math.Round(v))
}

// InBounds reports whether the current value lies within [Min, Max].
func (s Signal) InBounds() bool {
	return s.Value >= s.Min && s.Value <= s.Max
}

// Descriptor is the static, wire-facing description of a signal.
type Descriptor struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Category string  `json:"category"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Variance float64 `json:"variance"`
}

// Describe returns the descriptor for s.
func (s Signal) Describe() Descriptor {
	return Descriptor{
		Name:     s.Name,
		Type:     TypeTag,
		Category: s.Category.String(),
		Min:      s.Min,
		Max:      s.Max,
		Variance: s.Variance,
	}
}

// Seeds returns the literal start-of-process definition of every signal, in
// registry order.
func Seeds() []Signal {
	return []Signal{
		{Name: CrudeFlow, Category: CategoryPrimary, Value: 127.3, Min: 120, Max: 140, Variance: 0.02},
		{Name: StorageLevel, Category: CategoryPrimary, Value: 68.2, Min: 60, Max: 80, Variance: 0.03},
		{Name: HVGOFlowControl, Category: CategoryPrimary, Value: 89.1, Min: 80, Max: 100, Variance: 0.025},
		{Name: FractionationPressure, Category: CategoryPrimary, Value: 2.14, Min: 2.0, Max: 2.5, Variance: 0.01},

		{Name: QualityKPI, Category: CategoryDerived, Value: 45.2, Min: 35, Max: 65, Variance: 0.04},
		{Name: EnergyConsumption, Category: CategoryDerived, Value: 1250.0, Min: 1000, Max: 1500, Variance: 0.05},
		{Name: CO2Emissions, Category: CategoryDerived, Value: 34.5, Min: 25, Max: 45, Variance: 0.04},
		{Name: Recirculation, Category: CategoryDerived, Value: 156.8, Min: 140, Max: 180, Variance: 0.03},

		{Name: FlashTemperature, Category: CategoryProcess, Value: 420.0, Min: 400, Max: 450, Variance: 0.02},

		{Name: SystemStatus, Category: CategoryStatus, Value: constants.StatusNormal.Value(), Min: 0, Max: 3},
		{Name: OperatorMode, Category: CategoryStatus, Value: constants.ModeHuman.Value(), Min: 0, Max: 1},
		{Name: LastAIDecision, Category: CategoryStatus, Value: 0, Min: 0, Max: 1},
	}
}
