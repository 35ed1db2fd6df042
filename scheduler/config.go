package scheduler

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/devskill-org/home-mpc/learning"
	"github.com/devskill-org/home-mpc/planner"
	"github.com/devskill-org/home-mpc/spot"
)

// Config holds the complete application configuration.
type Config struct {
	// Site location, used for sun position, weather and the local time
	// grid. TimeZone must be an IANA zone name.
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	TimeZone  string  `json:"time_zone"`

	// Day-ahead price source (ENTSO-E). URLFormat carries the period
	// placeholders; the token is the personal API key.
	SecurityToken string      `json:"security_token"`
	URLFormat     string      `json:"url_format"`
	Tariff        spot.Tariff `json:"tariff"`

	// Inverter Modbus TCP endpoint (host:port). Empty disables telemetry.
	PlantModbusAddress string `json:"plant_modbus_address"`

	// PV array peak power for the clear-sky estimate.
	PVPeakKW float64 `json:"pv_peak_kw"`

	// PostgreSQL connection string. Empty disables persistence, which
	// also disables learning.
	PostgresConnString string `json:"postgres_conn_string"`

	// Web server port. Zero or negative disables the server.
	WebPort int `json:"web_port"`

	// Task cadence. SlotLength is the planning resolution and the
	// observation cadence; PlanInterval is how often the plan is
	// recomputed within the horizon.
	SlotLength             time.Duration `json:"slot_length"`
	PlanInterval           time.Duration `json:"plan_interval"`
	PriceRefreshInterval   time.Duration `json:"price_refresh_interval"`
	WeatherRefreshInterval time.Duration `json:"weather_refresh_interval"`

	// Wall-clock budget for a single planning run. A run that exceeds it
	// is abandoned with a timeout error; the previous plan stays active.
	PlanBudget time.Duration `json:"plan_budget"`

	// Local hour at which the nightly learning run fires.
	LearningHour int `json:"learning_hour"`

	// Days of history used for the slot-of-day load profile.
	LoadProfileDays int `json:"load_profile_days"`

	UserAgent string `json:"user_agent"`
	DryRun    bool   `json:"dry_run"`

	Planner  planner.Config  `json:"planner"`
	Learning learning.Config `json:"learning"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Latitude:  59.3293,
		Longitude: 18.0686,
		TimeZone:  "Europe/Stockholm",

		URLFormat: "https://web-api.tp.entsoe.eu/api?documentType=A44&out_Domain=10Y1001A1001A46L&in_Domain=10Y1001A1001A46L&periodStart=%s&periodEnd=%s&securityToken=%s",
		Tariff:    spot.DefaultTariff(),

		PVPeakKW: 10,

		SlotLength:             15 * time.Minute,
		PlanInterval:           15 * time.Minute,
		PriceRefreshInterval:   time.Hour,
		WeatherRefreshInterval: 2 * time.Hour,
		PlanBudget:             10 * time.Second,

		LearningHour:    3,
		LoadProfileDays: 14,

		UserAgent: "home-mpc/1.0",

		Planner:  planner.DefaultConfig(),
		Learning: learning.DefaultConfig(),
	}
}

// LoadConfig loads configuration from a JSON file, applying defaults for
// missing fields.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	config := DefaultConfig()

	decoder := json.NewDecoder(r)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to a JSON file.
func SaveConfig(config *Config, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(config)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got %f", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got %f", c.Longitude)
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("invalid time zone %q: %w", c.TimeZone, err)
	}
	if c.SlotLength <= 0 {
		return fmt.Errorf("slot_length must be positive, got %v", c.SlotLength)
	}
	if c.PlanInterval <= 0 {
		return fmt.Errorf("plan_interval must be positive, got %v", c.PlanInterval)
	}
	if c.PriceRefreshInterval <= 0 {
		return fmt.Errorf("price_refresh_interval must be positive, got %v", c.PriceRefreshInterval)
	}
	if c.WeatherRefreshInterval <= 0 {
		return fmt.Errorf("weather_refresh_interval must be positive, got %v", c.WeatherRefreshInterval)
	}
	if c.PlanBudget <= 0 {
		return fmt.Errorf("plan_budget must be positive, got %v", c.PlanBudget)
	}
	if c.LearningHour < 0 || c.LearningHour > 23 {
		return fmt.Errorf("learning_hour must be between 0 and 23, got %d", c.LearningHour)
	}
	if c.LoadProfileDays <= 0 {
		return fmt.Errorf("load_profile_days must be positive, got %d", c.LoadProfileDays)
	}
	if c.PVPeakKW < 0 {
		return fmt.Errorf("pv_peak_kw must be non-negative, got %f", c.PVPeakKW)
	}
	if err := c.Planner.Validate(); err != nil {
		return fmt.Errorf("planner: %w", err)
	}
	return nil
}

// Location resolves the configured time zone. Validate catches bad zone
// names, so a fallback to time.Local only happens on an unvalidated config.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

// MarshalJSON implements custom JSON marshaling to handle time.Duration
// fields as human-readable strings.
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		SlotLength             string `json:"slot_length"`
		PlanInterval           string `json:"plan_interval"`
		PriceRefreshInterval   string `json:"price_refresh_interval"`
		WeatherRefreshInterval string `json:"weather_refresh_interval"`
		PlanBudget             string `json:"plan_budget"`
		*Alias
	}{
		SlotLength:             c.SlotLength.String(),
		PlanInterval:           c.PlanInterval.String(),
		PriceRefreshInterval:   c.PriceRefreshInterval.String(),
		WeatherRefreshInterval: c.WeatherRefreshInterval.String(),
		PlanBudget:             c.PlanBudget.String(),
		Alias:                  (*Alias)(c),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling to handle
// time.Duration fields given as strings.
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		SlotLength             string `json:"slot_length"`
		PlanInterval           string `json:"plan_interval"`
		PriceRefreshInterval   string `json:"price_refresh_interval"`
		WeatherRefreshInterval string `json:"weather_refresh_interval"`
		PlanBudget             string `json:"plan_budget"`
		*Alias
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	var err error
	if aux.SlotLength != "" {
		if c.SlotLength, err = time.ParseDuration(aux.SlotLength); err != nil {
			return fmt.Errorf("invalid slot_length: %w", err)
		}
	}
	if aux.PlanInterval != "" {
		if c.PlanInterval, err = time.ParseDuration(aux.PlanInterval); err != nil {
			return fmt.Errorf("invalid plan_interval: %w", err)
		}
	}
	if aux.PriceRefreshInterval != "" {
		if c.PriceRefreshInterval, err = time.ParseDuration(aux.PriceRefreshInterval); err != nil {
			return fmt.Errorf("invalid price_refresh_interval: %w", err)
		}
	}
	if aux.WeatherRefreshInterval != "" {
		if c.WeatherRefreshInterval, err = time.ParseDuration(aux.WeatherRefreshInterval); err != nil {
			return fmt.Errorf("invalid weather_refresh_interval: %w", err)
		}
	}
	if aux.PlanBudget != "" {
		if c.PlanBudget, err = time.ParseDuration(aux.PlanBudget); err != nil {
			return fmt.Errorf("invalid plan_budget: %w", err)
		}
	}
	return nil
}

// String returns a pretty-printed JSON representation of the config.
func (c *Config) String() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
