package planner

import (
	"math"
)

// OneWayEfficiency splits the round-trip efficiency symmetrically between
// charge and discharge: eta_c = eta_d = sqrt(eta_rt).
func (b BatteryParams) OneWayEfficiency() float64 {
	return math.Sqrt(b.RoundTripEfficiency)
}

// StoredKWhAtSOC converts a SoC percentage to stored energy.
func (b BatteryParams) StoredKWhAtSOC(socPercent float64) float64 {
	return socPercent / 100.0 * b.CapacityKWh
}

// SOCAtStoredKWh converts stored energy to a SoC percentage.
func (b BatteryParams) SOCAtStoredKWh(kwh float64) float64 {
	if b.CapacityKWh <= 0 {
		return 0
	}
	return kwh / b.CapacityKWh * 100.0
}

// MaxChargeKWhPerSlot returns the grid-side energy that can be pushed into
// the battery during one slot, limited by the device cap, the grid
// connection (minus concurrent load and water heating) and the inverter.
func (b BatteryParams) MaxChargeKWhPerSlot(slotHours, concurrentLoadKW, waterKW float64) float64 {
	kw := b.MaxChargeKW
	if grid := b.GridImportLimitKW - concurrentLoadKW - waterKW; grid < kw {
		kw = grid
	}
	if b.InverterLimitKW > 0 && b.InverterLimitKW < kw {
		kw = b.InverterLimitKW
	}
	if kw < 0 {
		kw = 0
	}
	return kw * slotHours
}

// MaxDischargeKWhPerSlot returns the output-side energy the battery can
// deliver during one slot.
func (b BatteryParams) MaxDischargeKWhPerSlot(slotHours float64) float64 {
	kw := b.MaxDischargeKW
	if b.InverterLimitKW > 0 && b.InverterLimitKW < kw {
		kw = b.InverterLimitKW
	}
	if kw < 0 {
		kw = 0
	}
	return kw * slotHours
}

// Charge books gridKWh of grid energy into the state at the given price.
// Stored energy grows by eta*gridKWh; the average cost is the kWh-weighted
// average of all charge prices.
func (s *BatteryState) Charge(b BatteryParams, gridKWh, price float64) {
	if gridKWh <= 0 {
		return
	}
	stored := gridKWh * b.OneWayEfficiency()
	s.TotalStoredKWh += stored
	s.TotalCost += gridKWh * price
	s.SOCPercent = b.SOCAtStoredKWh(s.TotalStoredKWh)
	s.refreshAvgCost()
}

// Discharge books outKWh of delivered energy. Stored energy shrinks by
// outKWh/eta; the average cost per stored kWh is unchanged while the total
// cost shrinks proportionally.
func (s *BatteryState) Discharge(b BatteryParams, outKWh float64) {
	if outKWh <= 0 {
		return
	}
	consumed := outKWh / b.OneWayEfficiency()
	if consumed > s.TotalStoredKWh {
		consumed = s.TotalStoredKWh
	}
	s.TotalCost -= consumed * s.AvgCostPerKWh
	s.TotalStoredKWh -= consumed
	if s.TotalStoredKWh < 1e-9 {
		s.TotalStoredKWh = 0
		s.TotalCost = 0
	}
	s.SOCPercent = b.SOCAtStoredKWh(s.TotalStoredKWh)
	s.refreshAvgCost()
}

// MarginalDischargeCost is the SEK/kWh cost used in discharge economics:
// the average stored cost inflated by the discharge loss, plus wear. Wear
// participates in comparisons only; it is never added to the stored cost.
func (s BatteryState) MarginalDischargeCost(b BatteryParams) float64 {
	return s.AvgCostPerKWh/b.OneWayEfficiency() + b.WearCostPerKWh
}

func (s *BatteryState) refreshAvgCost() {
	if s.TotalStoredKWh > 0 {
		s.AvgCostPerKWh = s.TotalCost / s.TotalStoredKWh
	} else {
		s.AvgCostPerKWh = 0
	}
}

// NewBatteryState derives a state from a measured SoC and a known average
// cost of the stored energy (0 when the history is unknown).
func NewBatteryState(b BatteryParams, socPercent, avgCostPerKWh float64) BatteryState {
	stored := b.StoredKWhAtSOC(socPercent)
	return BatteryState{
		SOCPercent:     socPercent,
		TotalStoredKWh: stored,
		TotalCost:      stored * avgCostPerKWh,
		AvgCostPerKWh:  avgCostPerKWh,
	}
}
