package simulation

import (
	"github.com/nvandessel/plantsim/internal/constants"
	"github.com/nvandessel/plantsim/internal/signals"
)

// Coefficients are the correlation weights and automated-mode factors.
type Coefficients struct {
	CrudeFlowWeight             float64 `json:"crude_flow_weight" yaml:"crude_flow_weight"`
	StorageLevelWeight          float64 `json:"storage_level_weight" yaml:"storage_level_weight"`
	HVGOFlowWeight              float64 `json:"hvgo_flow_weight" yaml:"hvgo_flow_weight"`
	FractionationPressureWeight float64 `json:"fractionation_pressure_weight" yaml:"fractionation_pressure_weight"`

	KPITarget   float64 `json:"kpi_target" yaml:"kpi_target"`
	KPIPullRate float64 `json:"kpi_pull_rate" yaml:"kpi_pull_rate"`

	RecirculationWeight    float64 `json:"recirculation_weight" yaml:"recirculation_weight"`
	EnergyEfficiencyFactor float64 `json:"energy_efficiency_factor" yaml:"energy_efficiency_factor"`

	BaselineEmissions       float64 `json:"baseline_emissions" yaml:"baseline_emissions"`
	BaselineEnergy          float64 `json:"baseline_energy" yaml:"baseline_energy"`
	EmissionNoiseAmplitude  float64 `json:"emission_noise_amplitude" yaml:"emission_noise_amplitude"`
	EmissionReductionFactor float64 `json:"emission_reduction_factor" yaml:"emission_reduction_factor"`

	RecirculationTarget   float64 `json:"recirculation_target" yaml:"recirculation_target"`
	RecirculationPullRate float64 `json:"recirculation_pull_rate" yaml:"recirculation_pull_rate"`
}

// DefaultCoefficients returns the tuned refinery coefficients.
func DefaultCoefficients() Coefficients {
	return Coefficients{
		CrudeFlowWeight:             constants.CrudeFlowWeight,
		StorageLevelWeight:          constants.StorageLevelWeight,
		HVGOFlowWeight:              constants.HVGOFlowWeight,
		FractionationPressureWeight: constants.FractionationPressureWeight,
		KPITarget:                   constants.KPITarget,
		KPIPullRate:                 constants.KPIPullRate,
		RecirculationWeight:         constants.RecirculationWeight,
		EnergyEfficiencyFactor:      constants.EnergyEfficiencyFactor,
		BaselineEmissions:           constants.BaselineEmissions,
		BaselineEnergy:              constants.BaselineEnergy,
		EmissionNoiseAmplitude:      constants.EmissionNoiseAmplitude,
		EmissionReductionFactor:     constants.EmissionReductionFactor,
		RecirculationTarget:         constants.RecirculationTarget,
		RecirculationPullRate:       constants.RecirculationPullRate,
	}
}

// pull moves v the fraction rate of the way toward target.
func pull(v, target, rate float64) float64 {
	return v + (target-v)*rate
}

// deviation returns how far name sits from its seed value.
func deviation(reg *signals.Registry, name string) float64 {
	return reg.Value(name) - reg.Baseline(name)
}

// Correlate applies the cross-signal adjustments to the derived signals. It runs once
// per tick after the noise pass. The order matters: emissions read the energy value
// computed earlier in the same call.
func Correlate(reg *signals.Registry, c Coefficients, src Source) {
	automated := reg.Automated()

	kpi, _ := reg.Lookup(signals.QualityKPI)
	energy, _ := reg.Lookup(signals.EnergyConsumption)
	co2, _ := reg.Lookup(signals.CO2Emissions)
	recirc, _ := reg.Lookup(signals.Recirculation)

	// 1. primary inputs drive the quality KPI
	influence := deviation(reg, signals.CrudeFlow)*c.CrudeFlowWeight +
		deviation(reg, signals.StorageLevel)*c.StorageLevelWeight +
		deviation(reg, signals.HVGOFlowControl)*c.HVGOFlowWeight +
		deviation(reg, signals.FractionationPressure)*c.FractionationPressureWeight
	kpi.Value = kpi.Clamp(kpi.Value + influence)

	// 2. controller convergence on the KPI target
	if automated {
		kpi.Value = kpi.Clamp(pull(kpi.Value, c.KPITarget, c.KPIPullRate))
	}

	// 3. energy follows recirculation
	e := energy.Value + deviation(reg, signals.Recirculation)*c.RecirculationWeight
	if automated {
		e *= c.EnergyEfficiencyFactor
	}
	energy.Value = energy.Clamp(e)

	// 4. emissions are recomputed from this tick's energy
	baseEnergy := c.BaselineEnergy
	if baseEnergy <= 0 {
		baseEnergy = constants.BaselineEnergy
	}
	em := c.BaselineEmissions*(energy.Value/baseEnergy) + symmetric(src)*c.EmissionNoiseAmplitude
	if automated {
		em *= c.EmissionReductionFactor
	}
	co2.Value = co2.Clamp(em)

	// 5. controller convergence on the recirculation target
	if automated {
		recirc.Value = recirc.Clamp(pull(recirc.Value, c.RecirculationTarget, c.RecirculationPullRate))
	}
}
