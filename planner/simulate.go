package planner

import (
	"fmt"
)

// SlotFlows reports the realised per-slot energy flows of a simulation.
type SlotFlows struct {
	ImportKWh    float64
	ExportKWh    float64
	PVKWh        float64
	LoadKWh      float64 // household load excluding water heating
	WaterKWh     float64
	ChargeKWh    float64 // grid-side energy into the battery
	DischargeKWh float64 // output-side energy out of the battery
	CostSEK      float64 // import cost minus export revenue for this slot
}

// SimulationResult is the outcome of one deterministic simulation run.
type SimulationResult struct {
	// SOCTrajectory holds the SoC percentage at the end of each slot.
	SOCTrajectory []float64
	Flows         []SlotFlows
	RealisedCost  float64
	ClampEvents   []ClampEvent
	FinalState    BatteryState
}

// Clamped reports whether any scheduled action had to be cut.
func (r *SimulationResult) Clamped() bool {
	return len(r.ClampEvents) > 0
}

// Simulate runs the schedule against the inputs from the initial battery
// state and returns the SoC trajectory, per-slot flows and realised cost.
// It is a pure function: the planner uses it for projected SoC, the
// learning loops use it as an oracle, and externally proposed manual
// schedules are validated through it.
//
// Structurally malformed input (mismatched lengths, negative powers)
// returns an InvalidScheduleError. SoC and power cap violations are not
// errors: the offending action is clamped and a ClampEvent recorded.
func Simulate(schedule []ScheduleSlot, inputs []InputSlot, initial BatteryState, cfg Config) (*SimulationResult, error) {
	if len(schedule) != len(inputs) {
		return nil, &InvalidScheduleError{
			Reason: fmt.Sprintf("schedule has %d slots, inputs have %d", len(schedule), len(inputs)),
		}
	}
	if len(schedule) == 0 {
		return nil, &InvalidScheduleError{Reason: "empty schedule"}
	}

	b := cfg.Battery
	hours := cfg.SlotDuration.Hours()
	eta := b.OneWayEfficiency()

	state := initial
	result := &SimulationResult{
		SOCTrajectory: make([]float64, len(schedule)),
		Flows:         make([]SlotFlows, len(schedule)),
	}

	for i := range schedule {
		s := &schedule[i]
		if s.BatteryChargeKW < 0 || s.BatteryDischargeKW < 0 || s.ExportKWh < 0 || s.WaterHeatingKW < 0 {
			return nil, &InvalidScheduleError{
				Reason: fmt.Sprintf("negative action in slot %s", s.Start.Format("2006-01-02 15:04")),
			}
		}
		in := inputs[i]
		flows := SlotFlows{
			PVKWh:    in.PVForecastKWh,
			LoadKWh:  in.LoadForecastKWh,
			WaterKWh: s.WaterHeatingKW * hours,
		}

		// Charge: limited by the per-slot caps and the SoC ceiling.
		chargeKWh := s.BatteryChargeKW * hours
		if chargeKWh > 0 {
			capKWh := b.MaxChargeKWhPerSlot(hours, in.LoadForecastKWh/hours, s.WaterHeatingKW)
			if chargeKWh > capKWh+1e-9 {
				result.ClampEvents = append(result.ClampEvents, ClampEvent{
					SlotStart: in.Start, Kind: "charge_cap", RequestedKWh: chargeKWh, AppliedKWh: capKWh,
				})
				chargeKWh = capKWh
			}
			headroom := (b.StoredKWhAtSOC(b.MaxSOCPercent) - state.TotalStoredKWh) / eta
			if headroom < 0 {
				headroom = 0
			}
			if chargeKWh > headroom+1e-9 {
				result.ClampEvents = append(result.ClampEvents, ClampEvent{
					SlotStart: in.Start, Kind: "soc_ceiling", RequestedKWh: chargeKWh, AppliedKWh: headroom,
				})
				chargeKWh = headroom
			}
		}

		// Discharge: limited by the device cap and the SoC floor.
		dischargeKWh := s.BatteryDischargeKW*hours + s.ExportKWh
		if dischargeKWh > 0 {
			capKWh := b.MaxDischargeKWhPerSlot(hours)
			if dischargeKWh > capKWh+1e-9 {
				result.ClampEvents = append(result.ClampEvents, ClampEvent{
					SlotStart: in.Start, Kind: "discharge_cap", RequestedKWh: dischargeKWh, AppliedKWh: capKWh,
				})
				dischargeKWh = capKWh
			}
			available := (state.TotalStoredKWh - b.StoredKWhAtSOC(b.MinSOCPercent)) * eta
			if available < 0 {
				available = 0
			}
			if dischargeKWh > available+1e-9 {
				result.ClampEvents = append(result.ClampEvents, ClampEvent{
					SlotStart: in.Start, Kind: "soc_floor", RequestedKWh: dischargeKWh, AppliedKWh: available,
				})
				dischargeKWh = available
			}
		}

		// Split discharge between load coverage and export; export is cut
		// first when a clamp reduced the total.
		loadDischargeKWh := s.BatteryDischargeKW * hours
		if loadDischargeKWh > dischargeKWh {
			loadDischargeKWh = dischargeKWh
		}
		exportKWh := dischargeKWh - loadDischargeKWh

		price := 0.0
		if in.PriceKnown {
			price = in.ImportPrice
		}
		state.Charge(b, chargeKWh, price)
		state.Discharge(b, dischargeKWh)

		// Grid balance. PV covers household load and water first, then
		// charging; the remainder imports from or exports to the grid.
		demand := in.LoadForecastKWh + flows.WaterKWh + chargeKWh
		supply := in.PVForecastKWh + loadDischargeKWh
		if demand > supply {
			flows.ImportKWh = demand - supply
		} else {
			flows.ExportKWh = supply - demand
		}
		flows.ExportKWh += exportKWh
		flows.ChargeKWh = chargeKWh
		flows.DischargeKWh = dischargeKWh
		// Import settles at the all-in price, export at the feed-in price.
		if in.PriceKnown {
			flows.CostSEK = flows.ImportKWh*price - flows.ExportKWh*in.ExportPrice
		}

		result.Flows[i] = flows
		result.SOCTrajectory[i] = state.SOCPercent
		result.RealisedCost += flows.CostSEK

		if state.SOCPercent < -1e-6 || state.SOCPercent > 100+1e-6 {
			return nil, &InternalError{
				Reason:    fmt.Sprintf("SoC %.3f%% out of [0, 100] after slot %s", state.SOCPercent, in.Start.Format("15:04")),
				InputHash: hashInputs(inputs),
			}
		}
		if state.TotalStoredKWh < -1e-6 {
			return nil, &InternalError{
				Reason:    "negative stored energy",
				InputHash: hashInputs(inputs),
			}
		}
	}

	result.FinalState = state
	return result, nil
}
