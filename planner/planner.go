package planner

import (
	"context"
	"fmt"
	"time"
)

// Request bundles everything one planning run reads. The planner never
// reaches outside of it, so two identical requests yield byte-identical
// schedules.
type Request struct {
	Config   Config
	Inputs   []InputSlot
	Battery  BatteryState
	Now      time.Time
	Existing []ScheduleSlot // previous plan, for executed water carry-over
	SIndex   SIndexInputs
}

// Result is the outcome of one planning run.
type Result struct {
	Slots           []ScheduleSlot
	SIndex          float64
	Shortfalls      []DeficitShortfall
	ClampEvents     []ClampEvent
	ExpectedCostSEK float64
	FinalSOCPercent float64
	InputHash       string
	GeneratedAt     time.Time
}

// Plan runs the full multi-pass pipeline and returns the schedule. The
// passes run in a fixed order on immutable snapshots, so the run is
// deterministic; ctx cancellation between passes surfaces as ErrTimeout.
func Plan(ctx context.Context, req Request) (*Result, error) {
	if len(req.Inputs) == 0 {
		return nil, fmt.Errorf("planning run: %w", ErrMissingInput)
	}
	if err := req.Config.Validate(); err != nil {
		return nil, fmt.Errorf("planning run: %w", err)
	}

	sIndex := ComputeSIndex(req.Config.SIndex, req.SIndex)
	d := newDraft(req.Config, req.Inputs, req.Battery, sIndex)

	passes := []func(draft) draft{
		passPriceWindows,
		passNetLoad,
		passResponsibilities,
		passChargePlan,
		func(d draft) draft { return passWater(d, req.Now, req.Existing) },
		passDispatch,
		passSmoothing,
	}
	for _, pass := range passes {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("planning run: %w", ErrTimeout)
		}
		d = pass(d)
		if len(d.slots) != len(req.Inputs) {
			return nil, &InternalError{
				Reason:    fmt.Sprintf("pass changed slot count from %d to %d", len(req.Inputs), len(d.slots)),
				InputHash: hashInputs(req.Inputs),
			}
		}
	}
	return d.finalize(req)
}

// buildSchedule converts the draft's slot overlay into schedule slots
// without projections or classifications.
func (d *draft) buildSchedule() []ScheduleSlot {
	out := make([]ScheduleSlot, len(d.slots))
	for i := range d.slots {
		s := &d.slots[i]
		out[i] = ScheduleSlot{
			Start:              s.in.Start,
			SlotNumber:         s.in.SlotNumber,
			BatteryChargeKW:    s.chargeKW,
			BatteryDischargeKW: s.dischargeKW,
			ExportKWh:          s.exportKWh,
			WaterHeatingKW:     s.waterKW,
			ImportPrice:        s.in.ImportPrice,
			PVForecastKWh:      s.in.PVForecastKWh,
			LoadForecastKWh:    s.in.LoadForecastKWh,
		}
	}
	return out
}

// finalize (Pass 8) runs the final simulation, fills projections, SoC
// targets and classifications, and assembles the result.
func (d *draft) finalize(req Request) (*Result, error) {
	// Unknown-price slots carry no battery actions; whatever earlier
	// passes left there is scrubbed and the slot marked.
	for i := range d.slots {
		s := &d.slots[i]
		if !s.in.PriceKnown {
			s.chargeKW = 0
			s.dischargeKW = 0
			s.exportKWh = 0
			s.warn("unknown_price")
		}
	}

	schedule := d.buildSchedule()
	sim, err := Simulate(schedule, d.inputs(), d.initial, d.cfg)
	if err != nil {
		return nil, err
	}

	for i := range schedule {
		slot := &schedule[i]
		slot.ProjectedSOCPercent = sim.SOCTrajectory[i]
		slot.Classification = d.classify(i)
		if len(d.slots[i].warnings) > 0 {
			slot.Warnings = append([]string(nil), d.slots[i].warnings...)
		}
	}
	fillSOCTargets(schedule, d.initial.SOCPercent)

	return &Result{
		Slots:           schedule,
		SIndex:          d.sIndex,
		Shortfalls:      d.shortfalls,
		ClampEvents:     sim.ClampEvents,
		ExpectedCostSEK: sim.RealisedCost,
		FinalSOCPercent: sim.FinalState.SOCPercent,
		InputHash:       hashInputs(d.inputs()),
		GeneratedAt:     req.Now,
	}, nil
}

// classify names the dominant action of slot i. Charging dominates, then
// export, then discharge, then water heating.
func (d *draft) classify(i int) Classification {
	s := &d.slots[i]
	switch {
	case s.chargeKW > 0:
		return ClassCharge
	case s.exportKWh > 0:
		return ClassExport
	case s.dischargeKW > 0:
		return ClassDischarge
	case s.waterKW > 0:
		return ClassWater
	default:
		return ClassHold
	}
}

// fillSOCTargets writes the step-wise SoC intent: each battery-action run
// targets its end-of-run projection, hold stretches keep the previous
// target.
func fillSOCTargets(schedule []ScheduleSlot, initialSOC float64) {
	target := initialSOC
	for i := 0; i < len(schedule); {
		s := &schedule[i]
		if s.BatteryChargeKW <= 0 && s.BatteryDischargeKW <= 0 && s.ExportKWh <= 0 {
			s.SOCTargetPercent = target
			i++
			continue
		}
		j := i
		for j < len(schedule) &&
			(schedule[j].BatteryChargeKW > 0 || schedule[j].BatteryDischargeKW > 0 || schedule[j].ExportKWh > 0) {
			j++
		}
		target = schedule[j-1].ProjectedSOCPercent
		for k := i; k < j; k++ {
			schedule[k].SOCTargetPercent = target
		}
		i = j
	}
}
