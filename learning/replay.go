package learning

import (
	"context"
	"fmt"

	"github.com/devskill-org/home-mpc/planner"
)

// replayDay re-plans one historical day on the forecasts that were active
// at the time, then simulates the resulting schedule against what actually
// happened. The realised cost is the oracle the tuning loops compare
// candidate configurations with.
func replayDay(ctx context.Context, day []SlotRecord, cfg planner.Config) (float64, error) {
	if len(day) == 0 {
		return 0, fmt.Errorf("replay: empty day")
	}

	forecastIn := make([]planner.InputSlot, len(day))
	observedIn := make([]planner.InputSlot, len(day))
	for i, r := range day {
		forecastIn[i] = planner.InputSlot{
			Start:           r.SlotStart,
			SlotNumber:      i,
			ImportPrice:     r.ImportPrice,
			ExportPrice:     r.ExportPrice,
			PriceKnown:      r.PriceKnown,
			PVForecastKWh:   r.ForecastPVKWh,
			LoadForecastKWh: r.ForecastLoadKWh,
			TempC:           r.TempC,
		}
		observedIn[i] = planner.InputSlot{
			Start:           r.SlotStart,
			SlotNumber:      i,
			ImportPrice:     r.ImportPrice,
			ExportPrice:     r.ExportPrice,
			PriceKnown:      r.PriceKnown,
			PVForecastKWh:   r.ObservedPVKWh,
			LoadForecastKWh: r.ObservedLoadKWh,
			TempC:           r.TempC,
		}
	}

	// The battery starts where it actually started that day. The average
	// cost is unknown in hindsight; zero is used for every candidate so
	// the comparison stays fair.
	initial := planner.NewBatteryState(cfg.Battery, day[0].SOCStartPercent, 0)

	res, err := planner.Plan(ctx, planner.Request{
		Config:  cfg,
		Inputs:  forecastIn,
		Battery: initial,
		Now:     day[0].SlotStart,
	})
	if err != nil {
		return 0, fmt.Errorf("replay plan: %w", err)
	}

	sim, err := planner.Simulate(res.Slots, observedIn, initial, cfg)
	if err != nil {
		return 0, fmt.Errorf("replay simulate: %w", err)
	}
	return sim.RealisedCost, nil
}

// replayCost sums replayDay over all days, returning the total realised
// cost and the per-day costs in day order. Days that cannot be replayed
// (e.g. no published prices at all) are skipped consistently for every
// candidate since skipping depends only on the data.
func replayCost(ctx context.Context, days [][]SlotRecord, cfg planner.Config) (float64, []float64, error) {
	total := 0.0
	var daily []float64
	for _, day := range days {
		known := false
		for _, r := range day {
			if r.PriceKnown {
				known = true
				break
			}
		}
		if !known {
			continue
		}
		cost, err := replayDay(ctx, day, cfg)
		if err != nil {
			return 0, nil, err
		}
		total += cost
		daily = append(daily, cost)
	}
	return total, daily, nil
}
