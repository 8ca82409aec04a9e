// Package constants provides the tuned numbers used throughout the plant simulator.
// The correlation weights are demo-tuned values from the refinery scenario and are
// kept bit-for-bit; they are illustrative, not derived from process physics.
package constants

import "time"

// Simulation cadence
const (
	// DefaultTickPeriod is how often every signal is pulled through noise and correlation.
	DefaultTickPeriod = 3 * time.Second

	// DefaultSummaryInterval is the minimum gap between two automated-mode status summaries.
	DefaultSummaryInterval = 30 * time.Second
)

// Automated-decision heuristic for external writes.
// A write to a primary input that moves it more than DecisionThresholdPercent is taken
// as a controller action and confirmed after DecisionConfirmDelay.
const (
	// ObservationThresholdPercent is the change above which a write is reported.
	ObservationThresholdPercent = 2.0

	// DecisionThresholdPercent is the change above which a primary-input write
	// raises last_ai_decision.
	DecisionThresholdPercent = 3.0

	// DecisionConfirmDelay is the delay before last_ai_decision is raised.
	DecisionConfirmDelay = 1 * time.Second
)

// KPI (bit_tq) correlation weights, applied to each primary input's deviation
// from its seed value.
const (
	CrudeFlowWeight    = 0.15
	StorageLevelWeight = 0.12
	HVGOFlowWeight     = -0.08

	// FractionationPressureWeight is deliberately large: pressure moves in hundredths.
	FractionationPressureWeight = 8.0
)

// Automated-mode behaviour.
const (
	// KPITarget is where automated mode pulls bit_tq.
	KPITarget = 52.0

	// KPIPullRate is the fraction of the remaining distance closed per tick.
	KPIPullRate = 0.3

	// RecirculationWeight scales hvbgo_flow's deviation into energy consumption.
	RecirculationWeight = 2.5

	// EnergyEfficiencyFactor is applied to energy consumption in automated mode (8% saving).
	EnergyEfficiencyFactor = 0.92

	// EmissionReductionFactor is applied to CO2 in automated mode (12% reduction).
	EmissionReductionFactor = 0.88

	// EmissionNoiseAmplitude bounds the symmetric noise added to recomputed emissions.
	EmissionNoiseAmplitude = 1.0

	// RecirculationTarget is the optimal hvbgo_flow in automated mode.
	RecirculationTarget = 148.5

	// RecirculationPullRate is the fraction of the remaining distance closed per tick.
	RecirculationPullRate = 0.2
)

// Baselines used by the emissions recomputation.
const (
	BaselineEmissions = 34.5
	BaselineEnergy    = 1250.0
)

// Process efficiency, reported with every recorded sample.
const (
	// EfficiencyKPIReference is the bit_tq that scores 100% quality efficiency.
	EfficiencyKPIReference = 50.0

	// EfficiencyEnergyReference is the energy at which energy efficiency is 100%.
	EfficiencyEnergyReference = 1200.0

	// EfficiencyEnergyScale is the energy units per percentage point lost.
	EfficiencyEnergyScale = 10.0
)

// Protocol binding defaults.
const (
	// DefaultMCPAddr is the listen address for the streamable HTTP transport.
	DefaultMCPAddr = ":4840"

	// DefaultMCPPath is the HTTP endpoint path of the refinery server.
	DefaultMCPPath = "/refinery"

	// DefaultWriteRate is the sustained plant_write rate per minute.
	DefaultWriteRate = 60.0

	// DefaultWriteBurst is how many plant_write calls may arrive back to back.
	DefaultWriteBurst = 10
)

// History store defaults.
const (
	// DefaultHistoryFile is the SQLite file name inside the data directory.
	DefaultHistoryFile = "history.db"

	// DefaultRetention is how long samples are kept before pruning.
	DefaultRetention = 24 * time.Hour

	// DefaultRecorderBuffer is the capacity of the recorder's event queue.
	DefaultRecorderBuffer = 256
)

// Metrics exporter defaults.
const (
	// DefaultMetricsAddr is the listen address of the Prometheus endpoint.
	DefaultMetricsAddr = ":9840"

	// MetricsPath serves the Prometheus exposition format.
	MetricsPath = "/metrics"

	// HealthPath reports whether the simulation is running.
	HealthPath = "/health"

	// ProcessAPIPath prefixes the read-only JSON process endpoints.
	ProcessAPIPath = "/api/process"
)
