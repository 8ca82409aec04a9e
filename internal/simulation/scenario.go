package simulation

import (
	"time"

	"github.com/nvandessel/plantsim/internal/constants"
	"github.com/nvandessel/plantsim/internal/signals"
)

// Assignment overwrites one signal.
type Assignment struct {
	Signal string
	Value  float64
}

// Step is a one-shot scripted mutation fired At after engine start. Then, if set,
// fires Then.At after this step.
type Step struct {
	Name string
	At   time.Duration
	Set  []Assignment
	Then *Step
}

// Apply writes every assignment into reg, in order.
func (s Step) Apply(reg *signals.Registry) {
	for _, a := range s.Set {
		reg.Set(a.Signal, a.Value)
	}
}

// DefaultScript returns the refinery storyline: a quality fault, a partial manual fix,
// a full automated optimisation, then an anomaly the controller recovers from.
func DefaultScript() []Step {
	return []Step{
		{
			Name: "kpi-fault",
			At:   10 * time.Second,
			Set: []Assignment{
				{signals.QualityKPI, 44.5},
				{signals.EnergyConsumption, 1320},
				{signals.SystemStatus, constants.StatusWarning.Value()},
			},
		},
		{
			Name: "manual-adjustment",
			At:   30 * time.Second,
			Set: []Assignment{
				{signals.FlashTemperature, 410},
				{signals.QualityKPI, 48.1},
				{signals.EnergyConsumption, 1380},
				{signals.OperatorMode, constants.ModeHuman.Value()},
			},
		},
		{
			Name: "automated-optimization",
			At:   60 * time.Second,
			Set: []Assignment{
				{signals.CrudeFlow, 132.8},
				{signals.StorageLevel, 71.5},
				{signals.HVGOFlowControl, 86.7},
				{signals.FractionationPressure, 2.22},
				{signals.QualityKPI, 52.1},
				{signals.EnergyConsumption, 1188},
				{signals.CO2Emissions, 30.4},
				{signals.Recirculation, 148.5},
				{signals.OperatorMode, constants.ModeAutomated.Value()},
				{signals.LastAIDecision, 1},
				{signals.SystemStatus, constants.StatusNormal.Value()},
			},
		},
		{
			Name: "kpi-anomaly",
			At:   120 * time.Second,
			Set: []Assignment{
				{signals.QualityKPI, 38.2},
				{signals.SystemStatus, constants.StatusCritical.Value()},
			},
			Then: &Step{
				Name: "kpi-recovery",
				At:   5 * time.Second,
				Set: []Assignment{
					{signals.QualityKPI, 51.5},
					{signals.SystemStatus, constants.StatusNormal.Value()},
				},
			},
		},
	}
}
