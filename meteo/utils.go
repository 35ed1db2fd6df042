package meteo

import (
	"strings"
	"time"
)

// GetWeatherAtTime returns the forecast step closest to the specified time.
func (f *METJSONForecast) GetWeatherAtTime(targetTime time.Time) *ForecastTimeStep {
	if f == nil || f.Properties == nil || len(f.Properties.Timeseries) == 0 {
		return nil
	}

	var closest *ForecastTimeStep
	minDiff := time.Duration(1<<63 - 1) // Max duration

	for i := range f.Properties.Timeseries {
		step := &f.Properties.Timeseries[i]
		diff := step.Time.Sub(targetTime)
		if diff < 0 {
			diff = -diff
		}
		if diff < minDiff {
			minDiff = diff
			closest = step
		}
	}

	return closest
}

// GetCurrentWeather returns the forecast step closest to now.
func (f *METJSONForecast) GetCurrentWeather() *ForecastTimeStep {
	return f.GetWeatherAtTime(time.Now())
}

// GetTemperature returns the air temperature if available.
func (ts *ForecastTimeStep) GetTemperature() *float64 {
	if ts == nil || ts.Data == nil || ts.Data.Instant == nil || ts.Data.Instant.Details == nil {
		return nil
	}
	return ts.Data.Instant.Details.AirTemperature
}

// GetCloudCoverage returns the cloud area fraction if available.
func (ts *ForecastTimeStep) GetCloudCoverage() *float64 {
	if ts == nil || ts.Data == nil || ts.Data.Instant == nil || ts.Data.Instant.Details == nil {
		return nil
	}
	return ts.Data.Instant.Details.CloudAreaFraction
}

// GetSymbolCode returns the weather symbol for the shortest period that
// carries one: next hour first, then 6 and 12 hours.
func (ts *ForecastTimeStep) GetSymbolCode() *WeatherSymbol {
	if ts == nil || ts.Data == nil {
		return nil
	}

	if ts.Data.Next1Hours != nil && ts.Data.Next1Hours.Summary != nil {
		return &ts.Data.Next1Hours.Summary.SymbolCode
	}
	if ts.Data.Next6Hours != nil && ts.Data.Next6Hours.Summary != nil {
		return &ts.Data.Next6Hours.Summary.SymbolCode
	}
	if ts.Data.Next12Hours != nil && ts.Data.Next12Hours.Summary != nil {
		return &ts.Data.Next12Hours.Summary.SymbolCode
	}

	return nil
}

// IsDay checks if the weather symbol indicates daytime conditions.
func (ws WeatherSymbol) IsDay() bool {
	return strings.HasSuffix(string(ws), "_day")
}

// IsNight checks if the weather symbol indicates nighttime conditions.
func (ws WeatherSymbol) IsNight() bool {
	return strings.HasSuffix(string(ws), "_night")
}

// HasSnow checks if the weather symbol indicates snow or sleet. Snow on
// the panels means zero PV output regardless of irradiance.
func (ws WeatherSymbol) HasSnow() bool {
	s := string(ws)
	return strings.Contains(s, "snow") || strings.Contains(s, "sleet")
}

// HasThunder checks if the weather symbol indicates thunder.
func (ws WeatherSymbol) HasThunder() bool {
	return strings.Contains(string(ws), "thunder")
}

// Float64Ptr is a helper function to get a pointer to a float64 value.
func Float64Ptr(f float64) *float64 {
	return &f
}

// IntPtr is a helper function to get a pointer to an int value.
func IntPtr(i int) *int {
	return &i
}
