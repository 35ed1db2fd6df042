package planner

// SIndexInputs carries the observations the dynamic S-index draws on.
// Nil fields mean the signal is unavailable and contributes nothing.
type SIndexInputs struct {
	// RecentPVRatio is realised PV divided by forecast PV over the recent
	// lookback (typically the last few days).
	RecentPVRatio *float64
	// MinForecastTempC is the coldest forecast temperature in the horizon.
	MinForecastTempC *float64
}

// ComputeSIndex produces the per-day safety multiplier applied to
// cascading responsibilities in Pass 3. It hedges against optimistic PV
// forecasts and cold snaps; it never touches real-time discharge
// decisions.
func ComputeSIndex(p SIndexParams, in SIndexInputs) float64 {
	var s float64
	switch p.Mode {
	case "static":
		s = p.StaticFactor
	default:
		s = p.BaseFactor
		if in.RecentPVRatio != nil {
			deficit := 1.0 - *in.RecentPVRatio
			if deficit > 0 {
				s += p.PVDeficitWeight * deficit
			}
		}
		if in.MinForecastTempC != nil && p.TempBaselineC > p.TempColdC {
			cold := (p.TempBaselineC - *in.MinForecastTempC) / (p.TempBaselineC - p.TempColdC)
			if cold > 0 {
				s += p.TempWeight * cold
			}
		}
	}
	if s < 1.0 {
		s = 1.0
	}
	if s > p.MaxFactor {
		s = p.MaxFactor
	}
	return s
}
