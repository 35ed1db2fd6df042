package learning

import (
	"github.com/devskill-org/home-mpc/planner"
)

// Bound caps one tunable parameter: the hard range it may ever take and
// the largest step a single nightly run may move it.
type Bound struct {
	Min         float64
	Max         float64
	MaxDeltaDay float64
}

// paramBounds is the bounds table of the tunable subset. pv_confidence is
// absent: it is read-only for learning and only ever changed by the user.
var paramBounds = map[string]Bound{
	ParamLoadSafetyMargin: {Min: 0, Max: 50, MaxDeltaDay: 2.0},
	ParamBatteryUseMargin: {Min: 0, Max: 1.0, MaxDeltaDay: 0.02},
	ParamExportProfit:     {Min: 0, Max: 1.0, MaxDeltaDay: 0.02},
	ParamFutureGuard:      {Min: 0, Max: 1.0, MaxDeltaDay: 0.02},
	ParamSIndexBase:       {Min: 1.0, Max: 1.5, MaxDeltaDay: 0.02},
}

// Tunable reports whether learning may write the parameter at all.
func Tunable(path string) bool {
	_, ok := paramBounds[path]
	return ok
}

// clampChange bounds a proposed parameter move: the per-day delta cap
// first, then the hard range. Exceeding either clamps silently, matching
// the commit semantics; the bool is false when the parameter is not
// tunable. The base factor's ceiling is the configured s_index max_factor
// rather than the table value, so a persisted base factor never exceeds
// what the planner would clamp it to.
func clampChange(path string, old, proposed float64, cfg planner.Config) (float64, bool) {
	b, ok := paramBounds[path]
	if !ok {
		return old, false
	}
	if path == ParamSIndexBase && cfg.SIndex.MaxFactor > 0 && cfg.SIndex.MaxFactor < b.Max {
		b.Max = cfg.SIndex.MaxFactor
	}
	v := proposed
	if v > old+b.MaxDeltaDay {
		v = old + b.MaxDeltaDay
	}
	if v < old-b.MaxDeltaDay {
		v = old - b.MaxDeltaDay
	}
	if v > b.Max {
		v = b.Max
	}
	if v < b.Min {
		v = b.Min
	}
	return v, true
}
