package scheduler

import (
	"math"
	"time"

	"github.com/devskill-org/home-mpc/learning"
	"github.com/devskill-org/home-mpc/meteo"
	"github.com/devskill-org/home-mpc/planner"
	"github.com/sixdouglas/suncalc"
)

// estimatePVPowerKW estimates PV output at a point in time from the sun
// position and the cloud forecast. Snow in the forecast zeroes the
// estimate: covered panels produce nothing regardless of irradiance.
func estimatePVPowerKW(forecast *meteo.METJSONForecast, at time.Time, lat, lon, peakKW float64) float64 {
	if peakKW <= 0 {
		return 0
	}

	sunTimes := suncalc.GetTimes(at, lat, lon)
	sunrise := sunTimes["sunrise"].Value
	sunset := sunTimes["sunset"].Value
	if at.Before(sunrise) || at.After(sunset) {
		return 0
	}

	pos := suncalc.GetPosition(at, lat, lon)
	altitudeFactor := math.Sin(pos.Altitude)
	if altitudeFactor <= 0 {
		return 0
	}

	cloudFactor := 1.0
	if step := forecast.GetWeatherAtTime(at); step != nil {
		if symbol := step.GetSymbolCode(); symbol != nil && symbol.HasSnow() {
			return 0
		}
		if cloud := step.GetCloudCoverage(); cloud != nil {
			// Full overcast cuts output by 90 %, not 100: diffuse light
			// still produces.
			cloudFactor = 1.0 - (*cloud/100.0)*0.90
		}
	}

	return peakKW * altitudeFactor * cloudFactor
}

// buildPVSeries produces the per-slot PV energy forecast over [start, end).
// The power estimate is sampled at the slot midpoint.
func buildPVSeries(forecast *meteo.METJSONForecast, start, end time.Time, slotLen time.Duration, lat, lon, peakKW float64) planner.Series {
	out := planner.Series{}
	hours := slotLen.Hours()
	for t := start; t.Before(end); t = t.Add(slotLen) {
		mid := t.Add(slotLen / 2)
		out.Set(t, estimatePVPowerKW(forecast, mid, lat, lon, peakKW)*hours)
	}
	return out
}

// buildTempSeries produces the per-slot air temperature forecast over
// [start, end). Slots beyond the weather horizon are left absent.
func buildTempSeries(forecast *meteo.METJSONForecast, start, end time.Time, slotLen time.Duration) planner.Series {
	out := planner.Series{}
	for t := start; t.Before(end); t = t.Add(slotLen) {
		step := forecast.GetWeatherAtTime(t.Add(slotLen / 2))
		if temp := step.GetTemperature(); temp != nil {
			out.Set(t, *temp)
		}
	}
	return out
}

// loadProfile averages observed load by slot of local day. The key is
// minutes past local midnight.
func loadProfile(records []learning.SlotRecord, loc *time.Location) map[int]float64 {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, r := range records {
		local := r.SlotStart.In(loc)
		key := local.Hour()*60 + local.Minute()
		sums[key] += r.ObservedLoadKWh
		counts[key]++
	}

	profile := make(map[int]float64, len(sums))
	for key, sum := range sums {
		profile[key] = sum / float64(counts[key])
	}
	return profile
}

// buildLoadSeries maps the slot-of-day profile onto [start, end). Slots
// without history fall back to the profile's overall mean, so a fresh
// install plans with a flat baseline instead of zero load.
func buildLoadSeries(profile map[int]float64, start, end time.Time, slotLen time.Duration, loc *time.Location) planner.Series {
	mean := 0.0
	if len(profile) > 0 {
		for _, v := range profile {
			mean += v
		}
		mean /= float64(len(profile))
	}

	out := planner.Series{}
	for t := start; t.Before(end); t = t.Add(slotLen) {
		local := t.In(loc)
		key := local.Hour()*60 + local.Minute()
		if v, ok := profile[key]; ok {
			out.Set(t, v)
		} else {
			out.Set(t, mean)
		}
	}
	return out
}

// recentPVRatio compares observed and forecast PV over the records to
// feed the dynamic S-index. Returns 1.0 when there is no usable data.
func recentPVRatio(records []learning.SlotRecord) float64 {
	var observed, forecast float64
	for _, r := range records {
		if !r.HasForecast {
			continue
		}
		observed += r.ObservedPVKWh
		forecast += r.ForecastPVKWh
	}
	if forecast <= 0 {
		return 1.0
	}
	ratio := observed / forecast
	if ratio > 1.0 {
		return 1.0
	}
	return ratio
}

// minForecastTempC finds the coldest forecast temperature on the horizon.
func minForecastTempC(temp planner.Series, start, end time.Time, slotLen time.Duration) *float64 {
	var coldest *float64
	for t := start; t.Before(end); t = t.Add(slotLen) {
		if v, ok := temp.At(t); ok {
			if coldest == nil || v < *coldest {
				vc := v
				coldest = &vc
			}
		}
	}
	return coldest
}
