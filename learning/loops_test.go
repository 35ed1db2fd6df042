package learning

import (
	"math"
	"testing"
	"time"
)

func TestSplitDays(t *testing.T) {
	loc, _ := time.LoadLocation("Europe/Stockholm")

	var records []SlotRecord
	for day := 1; day <= 3; day++ {
		for slot := 0; slot < 4; slot++ {
			records = append(records, SlotRecord{
				SlotStart: time.Date(2026, 3, day, 6, slot*15, 0, 0, loc),
			})
		}
	}

	days := splitDays(records)
	if len(days) != 3 {
		t.Fatalf("got %d days, want 3", len(days))
	}
	for i, day := range days {
		if len(day) != 4 {
			t.Errorf("day %d has %d slots, want 4", i, len(day))
		}
	}
	if days[1][0].SlotStart.Day() != 2 {
		t.Errorf("second day starts on day %d, want 2", days[1][0].SlotStart.Day())
	}
}

func TestSplitDaysEmpty(t *testing.T) {
	if days := splitDays(nil); days != nil {
		t.Errorf("expected nil for no records, got %v", days)
	}
}

func TestHourlyBias(t *testing.T) {
	loc, _ := time.LoadLocation("Europe/Stockholm")

	// Observed load runs 10% above forecast at 07:00 and 20% above at
	// 18:00: per-hour averages 0.10 and 0.20, overall bias 0.15.
	var records []SlotRecord
	for day := 1; day <= 2; day++ {
		records = append(records, SlotRecord{
			SlotStart:       time.Date(2026, 3, day, 7, 0, 0, 0, loc),
			ObservedLoadKWh: 1.10,
			ForecastLoadKWh: 1.00,
			HasForecast:     true,
		})
		records = append(records, SlotRecord{
			SlotStart:       time.Date(2026, 3, day, 18, 0, 0, 0, loc),
			ObservedLoadKWh: 1.20,
			ForecastLoadKWh: 1.00,
			HasForecast:     true,
		})
	}

	bias, n := hourlyBias(records, func(r SlotRecord) (float64, float64) {
		return r.ObservedLoadKWh, r.ForecastLoadKWh
	})
	if n != 4 {
		t.Errorf("sample count = %d, want 4", n)
	}
	if math.Abs(bias-0.15) > 1e-9 {
		t.Errorf("bias = %f, want 0.15", bias)
	}
}

func TestHourlyBiasIgnoresTinyForecasts(t *testing.T) {
	loc, _ := time.LoadLocation("Europe/Stockholm")

	records := []SlotRecord{
		// Near-zero forecast would blow up the relative error; skipped.
		{
			SlotStart:     time.Date(2026, 3, 1, 12, 0, 0, 0, loc),
			ObservedPVKWh: 0.5,
			ForecastPVKWh: 0.01,
			HasForecast:   true,
		},
		{
			SlotStart:     time.Date(2026, 3, 1, 13, 0, 0, 0, loc),
			ObservedPVKWh: 0.9,
			ForecastPVKWh: 1.0,
			HasForecast:   true,
		},
	}

	bias, n := hourlyBias(records, func(r SlotRecord) (float64, float64) {
		return r.ObservedPVKWh, r.ForecastPVKWh
	})
	if n != 1 {
		t.Errorf("sample count = %d, want 1", n)
	}
	if math.Abs(bias-(-0.10)) > 1e-9 {
		t.Errorf("bias = %f, want -0.10", bias)
	}
}

func TestHourlyBiasNoUsableData(t *testing.T) {
	bias, n := hourlyBias([]SlotRecord{{HasForecast: false}}, func(r SlotRecord) (float64, float64) {
		return r.ObservedLoadKWh, r.ForecastLoadKWh
	})
	if bias != 0 || n != 0 {
		t.Errorf("got bias=%f n=%d, want zeros", bias, n)
	}
}

func TestPerturbations(t *testing.T) {
	lc := &loopContext{params: map[string]float64{ParamBatteryUseMargin: 0.10}}

	cands := perturbations(lc, ParamBatteryUseMargin, 0.02)
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2", len(cands))
	}
	if math.Abs(cands[0].NewValue-0.12) > 1e-9 || math.Abs(cands[1].NewValue-0.08) > 1e-9 {
		t.Errorf("candidates = %f, %f, want 0.12, 0.08", cands[0].NewValue, cands[1].NewValue)
	}
}
