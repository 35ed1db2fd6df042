// Package learning implements the nightly learning orchestrator: it reads
// observed and forecast slot data, runs a fixed set of tuning loops through
// the planner's simulator, and commits bounded parameter changes
// atomically. Planner runs pick up the new values on their next snapshot.
package learning

import (
	"fmt"

	"github.com/devskill-org/home-mpc/planner"
)

// Parameter paths of the tunable subset. Anything outside this set is
// rejected at load time; learning never invents new keys.
const (
	ParamLoadSafetyMargin = "forecasting.load_safety_margin_percent"
	ParamPVConfidence     = "forecasting.pv_confidence_percent"
	ParamBatteryUseMargin = "economics.battery_use_margin_sek"
	ParamExportProfit     = "economics.export_profit_margin_sek"
	ParamFutureGuard      = "economics.future_price_guard_buffer_sek"
	ParamSIndexBase       = "s_index.base_factor"
)

// KnownParams lists every tunable parameter path.
var KnownParams = []string{
	ParamLoadSafetyMargin,
	ParamPVConfidence,
	ParamBatteryUseMargin,
	ParamExportProfit,
	ParamFutureGuard,
	ParamSIndexBase,
}

// IsKnownParam reports whether path belongs to the tunable subset.
func IsKnownParam(path string) bool {
	for _, p := range KnownParams {
		if p == path {
			return true
		}
	}
	return false
}

// ApplyParams overlays a parameter snapshot onto a planner configuration.
// Unknown keys are an error so a corrupted store cannot silently plan with
// defaults.
func ApplyParams(cfg planner.Config, params map[string]float64) (planner.Config, error) {
	for path, v := range params {
		switch path {
		case ParamLoadSafetyMargin:
			cfg.LoadSafetyMarginPercent = v
		case ParamPVConfidence:
			cfg.PVConfidencePercent = v
		case ParamBatteryUseMargin:
			cfg.BatteryUseMarginSEK = v
		case ParamExportProfit:
			cfg.ExportProfitMarginSEK = v
		case ParamFutureGuard:
			cfg.FuturePriceGuardBufferSEK = v
		case ParamSIndexBase:
			cfg.SIndex.BaseFactor = v
		default:
			return cfg, fmt.Errorf("unknown tunable parameter %q", path)
		}
	}
	return cfg, nil
}

// ExtractParams reads the tunable subset out of a planner configuration.
func ExtractParams(cfg planner.Config) map[string]float64 {
	return map[string]float64{
		ParamLoadSafetyMargin: cfg.LoadSafetyMarginPercent,
		ParamPVConfidence:     cfg.PVConfidencePercent,
		ParamBatteryUseMargin: cfg.BatteryUseMarginSEK,
		ParamExportProfit:     cfg.ExportProfitMarginSEK,
		ParamFutureGuard:      cfg.FuturePriceGuardBufferSEK,
		ParamSIndexBase:       cfg.SIndex.BaseFactor,
	}
}
