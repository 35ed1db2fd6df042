package planner

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestOneWayEfficiency(t *testing.T) {
	b := BatteryParams{RoundTripEfficiency: 0.95}
	got := b.OneWayEfficiency()
	if !almostEqual(got*got, 0.95, 1e-12) {
		t.Errorf("one-way efficiency squared = %f, want 0.95", got*got)
	}
}

func TestChargeAveragesCost(t *testing.T) {
	b := DefaultConfig().Battery
	eta := b.OneWayEfficiency()
	s := NewBatteryState(b, 15.0, 0)

	// 2 kWh grid at 0.50, then 2 kWh grid at 1.00. Average cost is
	// total SEK paid over total stored energy.
	s.Charge(b, 2.0, 0.50)
	s.Charge(b, 2.0, 1.00)

	wantStored := b.StoredKWhAtSOC(15.0) + 4.0*eta
	if !almostEqual(s.TotalStoredKWh, wantStored, 1e-9) {
		t.Errorf("stored = %f, want %f", s.TotalStoredKWh, wantStored)
	}
	wantCost := 2.0*0.50 + 2.0*1.00
	if !almostEqual(s.TotalCost, wantCost, 1e-9) {
		t.Errorf("total cost = %f, want %f", s.TotalCost, wantCost)
	}
	if !almostEqual(s.AvgCostPerKWh, wantCost/wantStored, 1e-9) {
		t.Errorf("avg cost = %f, want %f", s.AvgCostPerKWh, wantCost/wantStored)
	}
}

func TestDischargeKeepsAvgCost(t *testing.T) {
	b := DefaultConfig().Battery
	s := NewBatteryState(b, 50.0, 0.80)
	avgBefore := s.AvgCostPerKWh

	s.Discharge(b, 1.5)

	if !almostEqual(s.AvgCostPerKWh, avgBefore, 1e-9) {
		t.Errorf("avg cost changed on discharge: %f -> %f", avgBefore, s.AvgCostPerKWh)
	}
	consumed := 1.5 / b.OneWayEfficiency()
	wantStored := b.StoredKWhAtSOC(50.0) - consumed
	if !almostEqual(s.TotalStoredKWh, wantStored, 1e-9) {
		t.Errorf("stored = %f, want %f", s.TotalStoredKWh, wantStored)
	}
}

func TestMarginalDischargeCost(t *testing.T) {
	b := DefaultConfig().Battery
	s := NewBatteryState(b, 50.0, 0.60)
	want := 0.60/b.OneWayEfficiency() + b.WearCostPerKWh
	if got := s.MarginalDischargeCost(b); !almostEqual(got, want, 1e-9) {
		t.Errorf("marginal discharge cost = %f, want %f", got, want)
	}
}

func TestMaxChargeKWhPerSlot(t *testing.T) {
	tests := []struct {
		name    string
		battery BatteryParams
		loadKW  float64
		waterKW float64
		wantKWh float64
	}{
		{
			name:    "device cap binds",
			battery: BatteryParams{MaxChargeKW: 5, GridImportLimitKW: 11, InverterLimitKW: 8},
			loadKW:  1, waterKW: 0,
			wantKWh: 5 * 0.25,
		},
		{
			name:    "grid connection minus load and water binds",
			battery: BatteryParams{MaxChargeKW: 5, GridImportLimitKW: 6, InverterLimitKW: 8},
			loadKW:  2, waterKW: 3,
			wantKWh: 1 * 0.25,
		},
		{
			name:    "inverter binds",
			battery: BatteryParams{MaxChargeKW: 5, GridImportLimitKW: 11, InverterLimitKW: 3},
			loadKW:  0, waterKW: 0,
			wantKWh: 3 * 0.25,
		},
		{
			name:    "fully loaded grid gives zero",
			battery: BatteryParams{MaxChargeKW: 5, GridImportLimitKW: 4, InverterLimitKW: 8},
			loadKW:  2, waterKW: 3,
			wantKWh: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.battery.MaxChargeKWhPerSlot(0.25, tt.loadKW, tt.waterKW)
			if !almostEqual(got, tt.wantKWh, 1e-9) {
				t.Errorf("MaxChargeKWhPerSlot = %f, want %f", got, tt.wantKWh)
			}
		})
	}
}

func TestDischargeEmptiesCleanly(t *testing.T) {
	b := DefaultConfig().Battery
	s := NewBatteryState(b, 20.0, 1.0)
	s.Discharge(b, 100.0) // far more than stored
	if s.TotalStoredKWh != 0 || s.TotalCost != 0 || s.AvgCostPerKWh != 0 {
		t.Errorf("state not zeroed after over-discharge: %+v", s)
	}
}
