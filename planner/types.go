// Package planner implements the multi-pass MPC planner for a household
// with a grid-tied battery, PV generation and a water heater. The planner
// is a pure computation: given a 48-hour grid of inputs, the current
// battery state and a configuration snapshot, it emits a per-slot schedule.
package planner

import (
	"time"
)

// Series maps slot start instants (Unix seconds) to a per-slot value.
// Heterogeneous input sources are aligned to the time grid through it.
type Series map[int64]float64

// At returns the value for the slot starting at t, if present.
func (s Series) At(t time.Time) (float64, bool) {
	v, ok := s[t.Unix()]
	return v, ok
}

// Set stores the value for the slot starting at t.
func (s Series) Set(t time.Time, v float64) {
	s[t.Unix()] = v
}

// InputSlot is one slot of planner input. Prices may be unknown for
// tomorrow until publication; PriceKnown distinguishes "unknown" from zero.
type InputSlot struct {
	Start           time.Time
	SlotNumber      int
	ImportPrice     float64 // SEK/kWh, VAT and fees included; valid only when PriceKnown
	ExportPrice     float64 // SEK/kWh feed-in settlement, raw spot; valid only when PriceKnown
	PriceKnown      bool
	PVForecastKWh   float64
	LoadForecastKWh float64
	TempC           *float64
}

// Classification describes the dominant action of a schedule slot.
type Classification string

const (
	ClassCharge    Classification = "charge"
	ClassDischarge Classification = "discharge"
	ClassExport    Classification = "export"
	ClassWater     Classification = "water"
	ClassHold      Classification = "hold"
)

// ScheduleSlot is one slot of planner output. Field names are stable; the
// executor and the web UI both consume this JSON shape.
type ScheduleSlot struct {
	Start               time.Time      `json:"start_time"`
	SlotNumber          int            `json:"slot_number"`
	BatteryChargeKW     float64        `json:"battery_charge_kw"`
	BatteryDischargeKW  float64        `json:"battery_discharge_kw"`
	ExportKWh           float64        `json:"export_kwh"`
	WaterHeatingKW      float64        `json:"water_heating_kw"`
	SOCTargetPercent    float64        `json:"soc_target_percent"`
	ProjectedSOCPercent float64        `json:"projected_soc_percent"`
	Classification      Classification `json:"classification"`
	ImportPrice         float64        `json:"import_price_sek_kwh"`
	PVForecastKWh       float64        `json:"pv_forecast_kwh"`
	LoadForecastKWh     float64        `json:"load_forecast_kwh"`
	Warnings            []string       `json:"planner_warnings"`
}

// BatteryState is the battery bookkeeping carried between runs: measured
// SoC plus the rolling weighted-average cost of the stored energy.
type BatteryState struct {
	SOCPercent     float64
	TotalStoredKWh float64
	TotalCost      float64 // SEK paid for the energy currently stored
	AvgCostPerKWh  float64 // TotalCost / TotalStoredKWh, 0 when empty
}

// DeficitShortfall records deficit energy that no charge window could
// economically or physically cover. The planner reports it; it never fails
// on an unsatisfiable deficit.
type DeficitShortfall struct {
	RunStart     time.Time
	RunEnd       time.Time
	MissingKWh   float64 // stored kWh that could not be pre-charged
	Reason       string
}

// ClampEvent records a silent local recovery: an action that had to be cut
// to respect a SoC bound or a power cap.
type ClampEvent struct {
	SlotStart    time.Time
	Kind         string // "soc_floor", "soc_ceiling", "charge_cap", "discharge_cap"
	RequestedKWh float64
	AppliedKWh   float64
}
