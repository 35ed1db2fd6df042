package scheduler

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	config := DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Errorf("DefaultConfig should be valid: %v", err)
	}
}

func TestLoadConfigFromReaderAppliesDefaults(t *testing.T) {
	jsonData := `{
		"latitude": 57.7089,
		"longitude": 11.9746,
		"slot_length": "30m",
		"web_port": 8080
	}`

	config, err := LoadConfigFromReader(strings.NewReader(jsonData))
	if err != nil {
		t.Fatalf("LoadConfigFromReader failed: %v", err)
	}

	if config.Latitude != 57.7089 {
		t.Errorf("latitude = %f, want 57.7089", config.Latitude)
	}
	if config.SlotLength != 30*time.Minute {
		t.Errorf("slot_length = %v, want 30m", config.SlotLength)
	}
	if config.WebPort != 8080 {
		t.Errorf("web_port = %d, want 8080", config.WebPort)
	}

	// Untouched fields keep their defaults.
	if config.TimeZone != "Europe/Stockholm" {
		t.Errorf("time_zone = %q, want default", config.TimeZone)
	}
	if config.PlanInterval != 15*time.Minute {
		t.Errorf("plan_interval = %v, want default 15m", config.PlanInterval)
	}
	if config.PlanBudget != 10*time.Second {
		t.Errorf("plan_budget = %v, want default 10s", config.PlanBudget)
	}
	if config.LoadProfileDays != 14 {
		t.Errorf("load_profile_days = %d, want default 14", config.LoadProfileDays)
	}
}

func TestConfigJSONRoundTrip(t *testing.T) {
	original := DefaultConfig()
	original.SlotLength = 10 * time.Minute
	original.PriceRefreshInterval = 45 * time.Minute
	original.PlanBudget = 30 * time.Second
	original.PlantModbusAddress = "192.168.1.50:502"

	data, err := original.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}

	restored := &Config{}
	if err := restored.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON failed: %v", err)
	}

	if restored.SlotLength != original.SlotLength {
		t.Errorf("slot_length = %v, want %v", restored.SlotLength, original.SlotLength)
	}
	if restored.PriceRefreshInterval != original.PriceRefreshInterval {
		t.Errorf("price_refresh_interval = %v, want %v", restored.PriceRefreshInterval, original.PriceRefreshInterval)
	}
	if restored.PlanBudget != original.PlanBudget {
		t.Errorf("plan_budget = %v, want %v", restored.PlanBudget, original.PlanBudget)
	}
	if restored.PlantModbusAddress != original.PlantModbusAddress {
		t.Errorf("plant_modbus_address = %q, want %q", restored.PlantModbusAddress, original.PlantModbusAddress)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad latitude", func(c *Config) { c.Latitude = 91 }},
		{"bad longitude", func(c *Config) { c.Longitude = -181 }},
		{"bad time zone", func(c *Config) { c.TimeZone = "Mars/Olympus" }},
		{"zero slot length", func(c *Config) { c.SlotLength = 0 }},
		{"negative plan interval", func(c *Config) { c.PlanInterval = -time.Minute }},
		{"zero plan budget", func(c *Config) { c.PlanBudget = 0 }},
		{"learning hour out of range", func(c *Config) { c.LearningHour = 24 }},
		{"zero profile days", func(c *Config) { c.LoadProfileDays = 0 }},
		{"negative pv peak", func(c *Config) { c.PVPeakKW = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadConfigFromReaderRejectsBadDuration(t *testing.T) {
	_, err := LoadConfigFromReader(strings.NewReader(`{"slot_length": "often"}`))
	if err == nil {
		t.Error("expected error for unparseable duration")
	}
}

func TestConfigLocation(t *testing.T) {
	config := DefaultConfig()
	loc := config.Location()
	if loc.String() != "Europe/Stockholm" {
		t.Errorf("Location() = %v, want Europe/Stockholm", loc)
	}
}
