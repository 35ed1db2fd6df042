package learning

import (
	"context"
	"fmt"
	"math"

	"github.com/devskill-org/home-mpc/planner"
)

// Proposal is one parameter change suggested by a loop, before bounds.
type Proposal struct {
	ParamPath string
	NewValue  float64
	Reason    string
}

// LoopResult is what one loop reports back: zero or more proposals, the
// reason when there are none, and metrics worth persisting either way.
type LoopResult struct {
	Loop      string
	Proposals []Proposal
	Reason    string
	Metrics   map[string]float64
	Series    map[string][]float64 // per-day series, e.g. replay cost
}

// loopContext is the shared read-only material every loop works from.
type loopContext struct {
	records []SlotRecord
	days    [][]SlotRecord
	params  map[string]float64
	cfg     planner.Config

	minImprovementSEK float64 // per day, for replay-based tuners
	minBiasPercent    float64 // for the forecast calibrator
	minSamples        int
}

// Loop is one independent learning procedure.
type Loop interface {
	Name() string
	Run(ctx context.Context, lc *loopContext) (LoopResult, error)
}

// defaultLoops is the fixed nightly set, run in this order.
func defaultLoops() []Loop {
	return []Loop{
		forecastCalibrator{},
		thresholdTuner{},
		sIndexTuner{},
		exportGuardTuner{},
	}
}

// forecastCalibrator measures per-hour-of-day bias of the PV and load
// forecasts against observations. Load bias feeds the safety margin; PV
// bias is recorded as a metric only, pv_confidence_percent stays
// user-controlled.
type forecastCalibrator struct{}

func (forecastCalibrator) Name() string { return "forecast_calibrator" }

func (forecastCalibrator) Run(_ context.Context, lc *loopContext) (LoopResult, error) {
	res := LoopResult{Loop: "forecast_calibrator", Metrics: map[string]float64{}}

	loadBias, loadN := hourlyBias(lc.records, func(r SlotRecord) (obs, fcst float64) {
		return r.ObservedLoadKWh, r.ForecastLoadKWh
	})
	pvBias, pvN := hourlyBias(lc.records, func(r SlotRecord) (obs, fcst float64) {
		return r.ObservedPVKWh, r.ForecastPVKWh
	})
	res.Metrics["load_forecast_bias_percent"] = loadBias * 100
	res.Metrics["pv_forecast_bias_percent"] = pvBias * 100
	res.Metrics["load_forecast_samples"] = float64(loadN)
	res.Metrics["pv_forecast_samples"] = float64(pvN)

	if loadN < lc.minSamples {
		res.Reason = "insufficient_data"
		return res, nil
	}
	if math.Abs(loadBias)*100 < lc.minBiasPercent {
		res.Reason = "below_improvement_threshold"
		return res, nil
	}

	// Observed load ran bias above forecast; move the safety margin so
	// the hedge matches what the last two weeks actually delivered.
	old := lc.params[ParamLoadSafetyMargin]
	res.Proposals = append(res.Proposals, Proposal{
		ParamPath: ParamLoadSafetyMargin,
		NewValue:  old + loadBias*100,
		Reason:    fmt.Sprintf("load bias %+.1f%% over %d samples", loadBias*100, loadN),
	})
	return res, nil
}

// hourlyBias averages the relative forecast error per hour of day, then
// averages the hours. The two-level average keeps one over-represented
// hour from dominating.
func hourlyBias(records []SlotRecord, pick func(SlotRecord) (obs, fcst float64)) (float64, int) {
	const minForecastKWh = 0.05
	sums := make(map[int]float64)
	counts := make(map[int]int)
	n := 0
	for _, r := range records {
		if !r.HasForecast {
			continue
		}
		obs, fcst := pick(r)
		if fcst < minForecastKWh {
			continue
		}
		h := r.SlotStart.Hour()
		sums[h] += (obs - fcst) / fcst
		counts[h]++
		n++
	}
	if n == 0 {
		return 0, 0
	}
	total := 0.0
	hours := 0
	for h, s := range sums {
		total += s / float64(counts[h])
		hours++
	}
	return total / float64(hours), n
}

// tuneByReplay evaluates single-parameter perturbations against the
// replay oracle and keeps the best candidate that beats the baseline by
// the improvement threshold per day.
func tuneByReplay(ctx context.Context, lc *loopContext, loopName string, candidates []Proposal) (LoopResult, error) {
	res := LoopResult{Loop: loopName, Metrics: map[string]float64{}}

	baseline, daily, err := replayCost(ctx, lc.days, lc.cfg)
	if err != nil {
		return res, fmt.Errorf("%s baseline: %w", loopName, err)
	}
	daysN := len(daily)
	if daysN == 0 {
		res.Reason = "insufficient_data"
		return res, nil
	}
	res.Metrics["baseline_cost_sek"] = baseline
	res.Metrics["replay_days"] = float64(daysN)
	res.Series = map[string][]float64{"daily_cost_sek": daily}

	bestImprovement := 0.0
	var best *Proposal
	for i := range candidates {
		c := candidates[i]
		candCfg, err := ApplyParams(lc.cfg, map[string]float64{c.ParamPath: c.NewValue})
		if err != nil {
			return res, fmt.Errorf("%s candidate: %w", loopName, err)
		}
		cost, _, err := replayCost(ctx, lc.days, candCfg)
		if err != nil {
			return res, fmt.Errorf("%s candidate: %w", loopName, err)
		}
		improvement := (baseline - cost) / float64(daysN)
		if improvement > bestImprovement {
			bestImprovement = improvement
			best = &candidates[i]
		}
	}

	res.Metrics["best_improvement_sek_day"] = bestImprovement
	if best == nil || bestImprovement < lc.minImprovementSEK {
		res.Reason = "below_improvement_threshold"
		return res, nil
	}
	best.Reason = fmt.Sprintf("replay improvement %.2f SEK/day over %d days", bestImprovement, daysN)
	res.Proposals = append(res.Proposals, *best)
	return res, nil
}

// perturbations builds +step/-step candidates around the current value.
func perturbations(lc *loopContext, path string, step float64) []Proposal {
	old := lc.params[path]
	return []Proposal{
		{ParamPath: path, NewValue: old + step},
		{ParamPath: path, NewValue: old - step},
	}
}

// thresholdTuner perturbs the battery-use and export-profit margins.
type thresholdTuner struct{}

func (thresholdTuner) Name() string { return "threshold_tuner" }

func (thresholdTuner) Run(ctx context.Context, lc *loopContext) (LoopResult, error) {
	candidates := append(
		perturbations(lc, ParamBatteryUseMargin, 0.02),
		perturbations(lc, ParamExportProfit, 0.02)...,
	)
	return tuneByReplay(ctx, lc, "threshold_tuner", candidates)
}

// sIndexTuner perturbs the S-index base factor.
type sIndexTuner struct{}

func (sIndexTuner) Name() string { return "s_index_tuner" }

func (sIndexTuner) Run(ctx context.Context, lc *loopContext) (LoopResult, error) {
	return tuneByReplay(ctx, lc, "s_index_tuner", perturbations(lc, ParamSIndexBase, 0.02))
}

// exportGuardTuner perturbs the future-price guard buffer.
type exportGuardTuner struct{}

func (exportGuardTuner) Name() string { return "export_guard_tuner" }

func (exportGuardTuner) Run(ctx context.Context, lc *loopContext) (LoopResult, error) {
	return tuneByReplay(ctx, lc, "export_guard_tuner", perturbations(lc, ParamFutureGuard, 0.02))
}
