package mcp

// PlantSignalsInput defines the input for the plant_signals tool.
type PlantSignalsInput struct{}

// SignalInfo describes one signal and its current value.
type SignalInfo struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Category string  `json:"category"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Variance float64 `json:"variance"`
	Value    float64 `json:"value"`
}

// PlantSignalsOutput defines the output for the plant_signals tool.
type PlantSignalsOutput struct {
	Signals    []SignalInfo `json:"signals" jsonschema:"Every signal in registry order"`
	Count      int          `json:"count" jsonschema:"Number of signals"`
	TickPeriod string       `json:"tick_period" jsonschema:"Interval between simulation ticks"`
}

// PlantReadInput defines the input for the plant_read tool.
type PlantReadInput struct {
	Signal string `json:"signal,omitempty" jsonschema:"Signal to read; all signals when empty"`
}

// SignalValue is a single named reading.
type SignalValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// PlantReadOutput defines the output for the plant_read tool.
type PlantReadOutput struct {
	Tick              uint64        `json:"tick" jsonschema:"Number of committed ticks"`
	Time              string        `json:"time" jsonschema:"Commit time of the snapshot (RFC 3339)"`
	Mode              string        `json:"mode" jsonschema:"Operator mode: human or automated"`
	Status            string        `json:"status" jsonschema:"System status: off, normal, warning or critical"`
	ProcessEfficiency float64       `json:"process_efficiency" jsonschema:"Derived efficiency score: mean of a KPI score capped at 100 and an energy score that exceeds 100 below 1200 energy units (up to 110)"`
	Values            []SignalValue `json:"values" jsonschema:"Requested readings"`
}

// PlantWriteInput defines the input for the plant_write tool.
type PlantWriteInput struct {
	Signal string  `json:"signal" jsonschema:"Signal to overwrite"`
	Value  float64 `json:"value" jsonschema:"New value"`
}

// PlantWriteOutput defines the output for the plant_write tool.
type PlantWriteOutput struct {
	Signal            string  `json:"signal" jsonschema:"Signal written"`
	Old               float64 `json:"old" jsonschema:"Value before the write"`
	New               float64 `json:"new" jsonschema:"Committed value"`
	ChangePercent     float64 `json:"change_percent" jsonschema:"Relative change in percent"`
	Observed          bool    `json:"observed" jsonschema:"Whether the change crossed the observation threshold"`
	DecisionScheduled bool    `json:"decision_scheduled" jsonschema:"Whether an automated decision was scheduled"`
	Message           string  `json:"message" jsonschema:"Human-readable result message"`
}

// PlantHistoryInput defines the input for the plant_history tool.
type PlantHistoryInput struct {
	Signal string `json:"signal" jsonschema:"Signal to query"`
	RunID  string `json:"run_id,omitempty" jsonschema:"Restrict to one run; the current run when empty"`
	Since  string `json:"since,omitempty" jsonschema:"Only samples newer than this duration ago (e.g. 5m)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum samples to return (default 100)"`
}

// HistorySample is one recorded reading.
type HistorySample struct {
	RunID      string  `json:"run_id"`
	Tick       uint64  `json:"tick"`
	Time       string  `json:"time"`
	Value      float64 `json:"value"`
	DataSource string  `json:"data_source"`
}

// PlantHistoryOutput defines the output for the plant_history tool.
type PlantHistoryOutput struct {
	Signal  string          `json:"signal" jsonschema:"Signal queried"`
	Samples []HistorySample `json:"samples" jsonschema:"Samples, newest first"`
	Count   int             `json:"count" jsonschema:"Number of samples returned"`
}
