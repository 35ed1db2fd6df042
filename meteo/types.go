package meteo

import "time"

// WeatherSymbol is a MET Norway symbol_code value. The API enumerates
// around ninety of them; the predicates in this package classify by
// substring, so only the codes referenced by name are declared.
type WeatherSymbol string

const (
	ClearSkyDay          WeatherSymbol = "clearsky_day"
	ClearSkyNight        WeatherSymbol = "clearsky_night"
	PartlyCloudyDay      WeatherSymbol = "partlycloudy_day"
	PartlyCloudyNight    WeatherSymbol = "partlycloudy_night"
	Cloudy               WeatherSymbol = "cloudy"
	Fog                  WeatherSymbol = "fog"
	Rain                 WeatherSymbol = "rain"
	RainAndThunder       WeatherSymbol = "rainandthunder"
	Snow                 WeatherSymbol = "snow"
	HeavySnow            WeatherSymbol = "heavysnow"
	HeavySnowAndThunder  WeatherSymbol = "heavysnowandthunder"
	Sleet                WeatherSymbol = "sleet"
	LightSleetShowersDay WeatherSymbol = "lightsleetshowers_day"
)

// ForecastTimeInstant carries the instant parameters this system reads.
// The API sends many more; they are ignored on decode.
type ForecastTimeInstant struct {
	AirTemperature    *float64 `json:"air_temperature,omitempty"`
	CloudAreaFraction *float64 `json:"cloud_area_fraction,omitempty"`
}

// ForecastSummary contains a summary of weather conditions
type ForecastSummary struct {
	SymbolCode WeatherSymbol `json:"symbol_code"`
}

// ForecastPeriodData contains forecast data for a specific period
type ForecastPeriodData struct {
	Summary *ForecastSummary `json:"summary,omitempty"`
}

// ForecastInstantData contains instant forecast data
type ForecastInstantData struct {
	Details *ForecastTimeInstant `json:"details,omitempty"`
}

// ForecastTimeStepData contains forecast data for a specific time step
type ForecastTimeStepData struct {
	Instant     *ForecastInstantData `json:"instant,omitempty"`
	Next1Hours  *ForecastPeriodData  `json:"next_1_hours,omitempty"`
	Next6Hours  *ForecastPeriodData  `json:"next_6_hours,omitempty"`
	Next12Hours *ForecastPeriodData  `json:"next_12_hours,omitempty"`
}

// ForecastTimeStep represents a forecast for a specific time step
type ForecastTimeStep struct {
	Time time.Time             `json:"time"`
	Data *ForecastTimeStepData `json:"data,omitempty"`
}

// Forecast contains the main forecast data
type Forecast struct {
	Timeseries []ForecastTimeStep `json:"timeseries"`
}

// METJSONForecast represents the root forecast response
type METJSONForecast struct {
	Type       string    `json:"type"` // Should be "Feature"
	Properties *Forecast `json:"properties,omitempty"`
}

// Location represents coordinates for a forecast request
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Altitude  *int    `json:"altitude,omitempty"`
}

// QueryParams represents query parameters for forecast requests
type QueryParams struct {
	Location Location `json:"location"`
}
