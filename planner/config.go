package planner

import (
	"fmt"
	"time"
)

// BatteryParams describes the physical battery and the grid connection.
type BatteryParams struct {
	CapacityKWh         float64 `json:"capacity_kwh"`
	MaxChargeKW         float64 `json:"max_charge_kw"`
	MaxDischargeKW      float64 `json:"max_discharge_kw"`
	MinSOCPercent       float64 `json:"min_soc_percent"`
	MaxSOCPercent       float64 `json:"max_soc_percent"`
	RoundTripEfficiency float64 `json:"round_trip_efficiency"`
	WearCostPerKWh      float64 `json:"wear_cost_sek_kwh"`
	GridImportLimitKW   float64 `json:"grid_import_limit_kw"`
	GridExportLimitKW   float64 `json:"grid_export_limit_kw"`
	InverterLimitKW     float64 `json:"inverter_limit_kw"`
}

// WaterParams describes the water heater and its daily demand.
type WaterParams struct {
	PowerKW            float64 `json:"power_kw"`
	MinKWhPerDay       float64 `json:"min_kwh_per_day"`
	MinHoursPerDay     float64 `json:"min_hours_per_day"`
	MaxBlocksPerDay    int     `json:"max_blocks_per_day"`
	ScheduleFutureOnly bool    `json:"schedule_future_only"`
}

// SIndexParams configures the per-day safety multiplier applied to
// cascading responsibilities in Pass 3.
type SIndexParams struct {
	Mode            string  `json:"mode"` // "static" or "dynamic"
	StaticFactor    float64 `json:"static_factor"`
	BaseFactor      float64 `json:"base_factor"`
	PVDeficitWeight float64 `json:"pv_deficit_weight"`
	TempWeight      float64 `json:"temp_weight"`
	MaxFactor       float64 `json:"max_factor"`
	TempBaselineC   float64 `json:"temp_baseline_c"`
	TempColdC       float64 `json:"temp_cold_c"`
}

// ProtectiveSOCStrategy selects how Pass 6 derives the export floor.
type ProtectiveSOCStrategy string

const (
	ProtectiveGapBased ProtectiveSOCStrategy = "gap_based"
	ProtectiveFixed    ProtectiveSOCStrategy = "fixed"
)

// Config is the full planner configuration snapshot. A run reads exactly
// one snapshot; the learning orchestrator mutates the tunable subset
// between runs, never during one.
type Config struct {
	Battery BatteryParams `json:"battery"`
	Water   WaterParams   `json:"water"`
	SIndex  SIndexParams  `json:"s_index"`

	SlotDuration time.Duration `json:"-"` // set from the scheduler config

	// Price windowing
	CheapPercentile       float64 `json:"cheap_percentile"`        // default 30
	PeakPercentile        float64 `json:"peak_percentile"`         // default 80
	MinWindowSlots        int     `json:"min_window_slots"`        // shorter windows need the absolute thresholds
	AbsoluteCheapPrice    float64 `json:"absolute_cheap_price"`    // SEK/kWh
	AbsolutePeakPrice     float64 `json:"absolute_peak_price"`     // SEK/kWh
	PriceSmoothingPerKWh  float64 `json:"price_smoothing_sek_kwh"` // window-edge jitter tolerance

	// Economics margins (tunable by learning)
	BatteryUseMarginSEK       float64 `json:"battery_use_margin_sek"`
	ExportProfitMarginSEK     float64 `json:"export_profit_margin_sek"`
	FuturePriceGuardBufferSEK float64 `json:"future_price_guard_buffer_sek"`

	// Forecast hedging (tunable by learning)
	LoadSafetyMarginPercent float64 `json:"load_safety_margin_percent"`
	PVConfidencePercent     float64 `json:"pv_confidence_percent"`

	// Smoothing and hysteresis
	MinOnSlots  int `json:"min_on_slots"`
	MinOffSlots int `json:"min_off_slots"`

	ProtectiveSOC      ProtectiveSOCStrategy `json:"protective_soc_strategy"`
	FixedProtectiveSOC float64               `json:"fixed_protective_soc_percent"`
}

// DefaultConfig returns a planner configuration with default values.
func DefaultConfig() Config {
	return Config{
		Battery: BatteryParams{
			CapacityKWh:         10.0,
			MaxChargeKW:         5.0,
			MaxDischargeKW:      5.0,
			MinSOCPercent:       15.0,
			MaxSOCPercent:       95.0,
			RoundTripEfficiency: 0.95,
			WearCostPerKWh:      0.20,
			GridImportLimitKW:   11.0,
			GridExportLimitKW:   11.0,
			InverterLimitKW:     8.0,
		},
		Water: WaterParams{
			PowerKW:            3.0,
			MinKWhPerDay:       2.0,
			MinHoursPerDay:     0.5,
			MaxBlocksPerDay:    2,
			ScheduleFutureOnly: true,
		},
		SIndex: SIndexParams{
			Mode:            "dynamic",
			StaticFactor:    1.10,
			BaseFactor:      1.05,
			PVDeficitWeight: 0.15,
			TempWeight:      0.10,
			MaxFactor:       1.25,
			TempBaselineC:   10.0,
			TempColdC:       -15.0,
		},
		SlotDuration:              15 * time.Minute,
		CheapPercentile:           30.0,
		PeakPercentile:            80.0,
		MinWindowSlots:            2,
		AbsoluteCheapPrice:        0.35,
		AbsolutePeakPrice:         2.50,
		PriceSmoothingPerKWh:      0.05,
		BatteryUseMarginSEK:       0.15,
		ExportProfitMarginSEK:     0.05,
		FuturePriceGuardBufferSEK: 0.10,
		LoadSafetyMarginPercent:   10.0,
		PVConfidencePercent:       90.0,
		MinOnSlots:                2,
		MinOffSlots:               1,
		ProtectiveSOC:             ProtectiveGapBased,
		FixedProtectiveSOC:        40.0,
	}
}

// Validate checks the configuration for values the planner cannot work with.
func (c Config) Validate() error {
	b := c.Battery
	if b.CapacityKWh <= 0 {
		return fmt.Errorf("battery capacity_kwh must be positive, got: %f", b.CapacityKWh)
	}
	if b.MinSOCPercent < 0 || b.MaxSOCPercent > 100 || b.MinSOCPercent >= b.MaxSOCPercent {
		return fmt.Errorf("battery SoC bounds invalid: min=%f max=%f", b.MinSOCPercent, b.MaxSOCPercent)
	}
	if b.RoundTripEfficiency <= 0 || b.RoundTripEfficiency > 1 {
		return fmt.Errorf("round_trip_efficiency must be in (0, 1], got: %f", b.RoundTripEfficiency)
	}
	if b.MaxChargeKW < 0 || b.MaxDischargeKW < 0 {
		return fmt.Errorf("battery power caps must be non-negative")
	}
	if c.SlotDuration <= 0 {
		return fmt.Errorf("slot duration must be positive, got: %s", c.SlotDuration)
	}
	if c.CheapPercentile < 0 || c.CheapPercentile > 100 {
		return fmt.Errorf("cheap_percentile must be within [0, 100], got: %f", c.CheapPercentile)
	}
	if c.PeakPercentile < 0 || c.PeakPercentile > 100 {
		return fmt.Errorf("peak_percentile must be within [0, 100], got: %f", c.PeakPercentile)
	}
	if c.SIndex.Mode != "static" && c.SIndex.Mode != "dynamic" {
		return fmt.Errorf("s_index mode must be static or dynamic, got: %s", c.SIndex.Mode)
	}
	if c.SIndex.MaxFactor < 1.0 {
		return fmt.Errorf("s_index max_factor must be >= 1.0, got: %f", c.SIndex.MaxFactor)
	}
	if c.ProtectiveSOC != ProtectiveGapBased && c.ProtectiveSOC != ProtectiveFixed {
		return fmt.Errorf("protective_soc_strategy must be gap_based or fixed, got: %s", c.ProtectiveSOC)
	}
	if c.Water.PowerKW < 0 || c.Water.MinKWhPerDay < 0 {
		return fmt.Errorf("water heater parameters must be non-negative")
	}
	if c.Water.MaxBlocksPerDay <= 0 {
		return fmt.Errorf("water max_blocks_per_day must be positive, got: %d", c.Water.MaxBlocksPerDay)
	}
	return nil
}
