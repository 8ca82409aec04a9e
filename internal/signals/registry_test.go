package signals

import (
	"math"
	"testing"
	"time"

	"github.com/nvandessel/plantsim/internal/constants"
)

func TestNewRegistry_FixedSet(t *testing.T) {
	r := NewRegistry()

	want := []string{
		CrudeFlow, StorageLevel, HVGOFlowControl, FractionationPressure,
		QualityKPI, EnergyConsumption, CO2Emissions, Recirculation,
		FlashTemperature,
		SystemStatus, OperatorMode, LastAIDecision,
	}
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() returned %d signals, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNewRegistry_SeedsWithinBounds(t *testing.T) {
	r := NewRegistry()
	r.Each(func(s *Signal) {
		if !s.InBounds() {
			t.Errorf("%s seed %v outside [%v, %v]", s.Name, s.Value, s.Min, s.Max)
		}
		if s.Seed != s.Value {
			t.Errorf("%s Seed = %v, want %v", s.Name, s.Seed, s.Value)
		}
		if s.Category == CategoryStatus && s.Variance != 0 {
			t.Errorf("%s is a status signal with variance %v", s.Name, s.Variance)
		}
	})
}

func TestRegistry_SetAndBaseline(t *testing.T) {
	r := NewRegistry()

	if !r.Set(QualityKPI, 50) {
		t.Fatal("Set(bit_tq) returned false")
	}
	if got := r.Value(QualityKPI); got != 50 {
		t.Errorf("Value(bit_tq) = %v, want 50", got)
	}
	if got := r.Baseline(QualityKPI); got != 45.2 {
		t.Errorf("Baseline(bit_tq) = %v, want 45.2", got)
	}
	if r.Set("nope", 1) {
		t.Error("Set on unknown name returned true")
	}
}

func TestRegistry_Mode(t *testing.T) {
	r := NewRegistry()
	if r.Automated() {
		t.Fatal("registry starts in automated mode")
	}
	r.Set(OperatorMode, constants.ModeAutomated.Value())
	if !r.Automated() {
		t.Error("Automated() = false after setting operator_mode = 1")
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	r := NewRegistry()
	snap := r.Snapshot(7, time.Unix(0, 0))

	r.Set(CrudeFlow, 130)

	if got := snap.Value(CrudeFlow); got != 127.3 {
		t.Errorf("snapshot value changed with registry: got %v", got)
	}
	if snap.Tick != 7 {
		t.Errorf("Tick = %d, want 7", snap.Tick)
	}
	if _, ok := snap.Get("nope"); ok {
		t.Error("Get on unknown name returned ok")
	}
	if got := len(snap.Values()); got != r.Len() {
		t.Errorf("Values() has %d entries, want %d", got, r.Len())
	}
}

func TestSignal_Normalize(t *testing.T) {
	r := NewRegistry()
	status, _ := r.Lookup(SystemStatus)
	flow, _ := r.Lookup(CrudeFlow)

	tests := []struct {
		name string
		sig  *Signal
		in   float64
		want float64
	}{
		{"status rounds", status, 2.4, 2},
		{"status rounds up", status, 2.6, 3},
		{"status clamps high", status, 9, 3},
		{"status clamps low", status, -1, 0},
		{"status ignores NaN", status, math.NaN(), 1},
		{"status ignores +Inf", status, math.Inf(1), 1},
		{"primary passes through", flow, 500, 500},
		{"primary ignores NaN", flow, math.NaN(), 127.3},
		{"primary ignores -Inf", flow, math.Inf(-1), 127.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sig.Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSnapshot_ProcessEfficiency(t *testing.T) {
	r := NewRegistry()
	r.Set(QualityKPI, 50)
	r.Set(EnergyConsumption, 1200)

	if got := r.Snapshot(0, time.Now()).ProcessEfficiency(); got != 100 {
		t.Errorf("ProcessEfficiency() = %v, want 100", got)
	}

	r.Set(QualityKPI, 45)
	r.Set(EnergyConsumption, 1300)
	// (90 + 90) / 2
	if got := r.Snapshot(0, time.Now()).ProcessEfficiency(); math.Abs(got-90) > 1e-9 {
		t.Errorf("ProcessEfficiency() = %v, want 90", got)
	}

	// low energy scores above 100: (100 + 101.2) / 2
	r.Set(QualityKPI, 52.1)
	r.Set(EnergyConsumption, 1188)
	if got := r.Snapshot(0, time.Now()).ProcessEfficiency(); math.Abs(got-100.6) > 1e-9 {
		t.Errorf("ProcessEfficiency() = %v, want 100.6", got)
	}
}

func TestDescribe(t *testing.T) {
	for _, d := range NewRegistry().Describe() {
		if d.Type != TypeTag {
			t.Errorf("%s type = %q, want %q", d.Name, d.Type, TypeTag)
		}
		if d.Category == "unknown" {
			t.Errorf("%s has unknown category", d.Name)
		}
	}
}
