package constants

// SystemStatus is the plant-wide status enumeration carried by system_status.
type SystemStatus int

const (
	StatusOff      SystemStatus = 0
	StatusNormal   SystemStatus = 1
	StatusWarning  SystemStatus = 2
	StatusCritical SystemStatus = 3
)

// Valid returns true if the status is a recognized value.
func (s SystemStatus) Valid() bool {
	return s >= StatusOff && s <= StatusCritical
}

// String returns the lower-case name of the status.
func (s SystemStatus) String() string {
	switch s {
	case StatusOff:
		return "off"
	case StatusNormal:
		return "normal"
	case StatusWarning:
		return "warning"
	case StatusCritical:
		return "critical"
	}
	return "unknown"
}

// Value returns the status as carried on the wire.
func (s SystemStatus) Value() float64 {
	return float64(s)
}

// OperatorMode says who is driving the plant, carried by operator_mode.
type OperatorMode int

const (
	// ModeHuman indicates a human operator is in control
	ModeHuman OperatorMode = 0

	// ModeAutomated indicates the optimisation controller is in control
	ModeAutomated OperatorMode = 1
)

// Valid returns true if the mode is a recognized value.
func (m OperatorMode) Valid() bool {
	switch m {
	case ModeHuman, ModeAutomated:
		return true
	}
	return false
}

// String returns the string representation of the mode.
func (m OperatorMode) String() string {
	if m == ModeAutomated {
		return "automated"
	}
	return "human"
}

// DataSource returns the history label for samples taken in this mode.
func (m OperatorMode) DataSource() string {
	if m == ModeAutomated {
		return "ai_control"
	}
	return "human_control"
}

// Value returns the mode as carried on the wire.
func (m OperatorMode) Value() float64 {
	return float64(m)
}
