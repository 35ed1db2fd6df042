package planner

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// planFixture builds a 48 h request: cheap night (slots 0-23), mid-price
// day with household load, an expensive evening, and a second day with no
// published prices yet.
func planFixture() Request {
	cfg := DefaultConfig()
	start := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	inputs := make([]InputSlot, 192)
	for i := range inputs {
		in := InputSlot{
			Start:      start.Add(time.Duration(i) * 15 * time.Minute),
			SlotNumber: i,
		}
		switch {
		case i < 24: // cheap night, no load
			in.ImportPrice = 0.20
			in.PriceKnown = true
		case i < 68:
			in.ImportPrice = 1.50
			in.PriceKnown = true
			in.LoadForecastKWh = 0.3
		case i < 80: // evening peak
			in.ImportPrice = 2.50
			in.PriceKnown = true
			in.LoadForecastKWh = 0.3
		case i < 96:
			in.ImportPrice = 1.50
			in.PriceKnown = true
			in.LoadForecastKWh = 0.3
		default: // tomorrow, prices not yet published
			in.LoadForecastKWh = 0.3
		}
		inputs[i] = in
	}

	return Request{
		Config:  cfg,
		Inputs:  inputs,
		Battery: NewBatteryState(cfg.Battery, 20, 0),
		Now:     start,
	}
}

func TestPlanEndToEnd(t *testing.T) {
	req := planFixture()
	res, err := Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(res.Slots) != len(req.Inputs) {
		t.Fatalf("schedule has %d slots, want %d", len(res.Slots), len(req.Inputs))
	}

	// The cheap night gets the charging.
	nightCharge := 0.0
	for i := 0; i < 24; i++ {
		nightCharge += res.Slots[i].BatteryChargeKW
	}
	if nightCharge <= 0 {
		t.Error("no charging planned in the cheap night window")
	}

	// The stored energy comes back out during the expensive day.
	dayDischarge := 0.0
	for i := 24; i < 96; i++ {
		dayDischarge += res.Slots[i].BatteryDischargeKW + res.Slots[i].ExportKWh
	}
	if dayDischarge <= 0 {
		t.Error("no discharge or export planned against the expensive day")
	}

	// Projected SoC honours the configured bounds.
	b := req.Config.Battery
	for i, s := range res.Slots {
		if s.ProjectedSOCPercent < b.MinSOCPercent-1e-6 || s.ProjectedSOCPercent > b.MaxSOCPercent+1e-6 {
			t.Fatalf("slot %d projected SoC %f outside [%f, %f]",
				i, s.ProjectedSOCPercent, b.MinSOCPercent, b.MaxSOCPercent)
		}
	}

	if res.SIndex < 1.0 {
		t.Errorf("S-index = %f, must never drop below 1.0", res.SIndex)
	}
	if res.InputHash == "" {
		t.Error("result carries no input hash")
	}
}

func TestPlanUnknownPricesHold(t *testing.T) {
	req := planFixture()
	res, err := Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	for i := 96; i < len(res.Slots); i++ {
		s := res.Slots[i]
		if s.BatteryChargeKW != 0 || s.BatteryDischargeKW != 0 || s.ExportKWh != 0 {
			t.Fatalf("slot %d has battery actions despite unknown price: %+v", i, s)
		}
		if s.Classification != ClassHold && s.Classification != ClassWater {
			t.Errorf("slot %d classified %s, want hold", i, s.Classification)
		}
		found := false
		for _, w := range s.Warnings {
			if w == "unknown_price" {
				found = true
			}
		}
		if !found {
			t.Fatalf("slot %d missing the unknown_price warning: %v", i, s.Warnings)
		}
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	req := planFixture()

	a, err := Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("first plan: %v", err)
	}
	b, err := Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("second plan: %v", err)
	}

	ja, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	jb, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(ja) != string(jb) {
		t.Error("identical requests produced different schedules")
	}
}

func TestPlanRefusesEmptyInput(t *testing.T) {
	req := planFixture()
	req.Inputs = nil
	_, err := Plan(context.Background(), req)
	if !errors.Is(err, ErrMissingInput) {
		t.Errorf("got %v, want ErrMissingInput", err)
	}
}

func TestPlanHonoursContext(t *testing.T) {
	req := planFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Plan(ctx, req)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("got %v, want ErrTimeout", err)
	}
}

func TestPlanRejectsInvalidConfig(t *testing.T) {
	req := planFixture()
	req.Config.Battery.CapacityKWh = -1
	if _, err := Plan(context.Background(), req); err == nil {
		t.Error("negative capacity accepted")
	}
}

func TestPlanClassifications(t *testing.T) {
	req := planFixture()
	res, err := Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	for i, s := range res.Slots {
		var want Classification
		switch {
		case s.BatteryChargeKW > 0:
			want = ClassCharge
		case s.ExportKWh > 0:
			want = ClassExport
		case s.BatteryDischargeKW > 0:
			want = ClassDischarge
		case s.WaterHeatingKW > 0:
			want = ClassWater
		default:
			want = ClassHold
		}
		if s.Classification != want {
			t.Fatalf("slot %d classified %s, want %s", i, s.Classification, want)
		}
	}
}

// A flat 1.00 day with a cheap night block and a four-slot evening peak.
// Load runs all day, so the deficit is one horizon-spanning run; charging
// must still concentrate in the cheap block and the stored energy must
// come back out during the peak instead of dribbling into the flat middle.
func TestPlanArbitragesCheapNightIntoEveningPeak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Water.MinKWhPerDay = 0 // keep the battery flows isolated

	start := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	inputs := make([]InputSlot, 96)
	for i := range inputs {
		in := InputSlot{
			Start:           start.Add(time.Duration(i) * 15 * time.Minute),
			SlotNumber:      i,
			PriceKnown:      true,
			ImportPrice:     1.00,
			LoadForecastKWh: 0.5,
		}
		switch {
		case i < 4:
			in.ImportPrice = 0.50
		case i >= 72 && i < 76:
			in.ImportPrice = 2.00
			in.LoadForecastKWh = 1.0
		}
		inputs[i] = in
	}

	res, err := Plan(context.Background(), Request{
		Config:  cfg,
		Inputs:  inputs,
		Battery: NewBatteryState(cfg.Battery, 20, 1.0),
		Now:     start,
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	chargeIn, chargeOut := 0.0, 0.0 // grid kWh inside and outside the cheap block
	for i, s := range res.Slots {
		kwh := s.BatteryChargeKW * 0.25
		if i < 4 {
			chargeIn += kwh
		} else {
			chargeOut += kwh
		}
	}
	if chargeIn < 4.5 {
		t.Errorf("cheap block charged %f kWh, want close to the full window capacity", chargeIn)
	}
	if chargeOut > 1e-6 {
		t.Errorf("%f kWh charged outside the cheap block", chargeOut)
	}

	peakOut, elseOut := 0.0, 0.0 // delivered kWh
	for i, s := range res.Slots {
		kwh := s.BatteryDischargeKW*0.25 + s.ExportKWh
		if i >= 72 && i < 76 {
			peakOut += kwh
		} else {
			elseOut += kwh
		}
	}
	if peakOut < 4.0 {
		t.Errorf("peak received %f kWh from the battery, want the hedged peak load", peakOut)
	}
	if elseOut > 1e-6 {
		t.Errorf("%f kWh discharged outside the peak", elseOut)
	}
	for _, s := range res.Slots {
		if s.ExportKWh > 0 {
			t.Errorf("slot %d exports with a zero feed-in price", s.SlotNumber)
			break
		}
	}
	if res.FinalSOCPercent < cfg.Battery.MinSOCPercent-1e-6 || res.FinalSOCPercent > 30 {
		t.Errorf("final SoC = %f, want the battery close to empty but above the floor", res.FinalSOCPercent)
	}
}

// A day with a very cheap night and a four-slot block where the feed-in
// price clears the stored cost: the surplus charge is exported there and
// only there. The flat middle has a positive feed-in price too, but the
// future-price guard and the value ordering must hold the energy back.
func TestPlanExportsOnlyInTheProfitableWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Water.MinKWhPerDay = 0

	feedIn := func(importPrice float64) float64 {
		// Back out the raw spot from the all-in price: 25 % VAT on spot
		// plus 0.689 SEK/kWh of tax and grid fee.
		raw := importPrice/1.25 - 0.689
		if raw < 0 {
			return 0
		}
		return raw
	}

	start := time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)
	inputs := make([]InputSlot, 96)
	for i := range inputs {
		in := InputSlot{
			Start:           start.Add(time.Duration(i) * 15 * time.Minute),
			SlotNumber:      i,
			PriceKnown:      true,
			ImportPrice:     1.00,
			LoadForecastKWh: 0.3,
		}
		switch {
		case i < 4:
			in.ImportPrice = 0.30
		case i >= 70 && i < 74:
			in.ImportPrice = 3.00
		}
		in.ExportPrice = feedIn(in.ImportPrice)
		inputs[i] = in
	}

	res, err := Plan(context.Background(), Request{
		Config:  cfg,
		Inputs:  inputs,
		Battery: NewBatteryState(cfg.Battery, 20, 2.0),
		Now:     start,
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	chargeIn, chargeOut := 0.0, 0.0
	for i, s := range res.Slots {
		kwh := s.BatteryChargeKW * 0.25
		if i < 4 {
			chargeIn += kwh
		} else {
			chargeOut += kwh
		}
	}
	if chargeIn < 4.5 {
		t.Errorf("cheap block charged %f kWh, want close to the full window capacity", chargeIn)
	}
	if chargeOut > 1e-6 {
		t.Errorf("%f kWh charged outside the cheap block", chargeOut)
	}

	exportIn, exportOut := 0.0, 0.0
	for i, s := range res.Slots {
		if i >= 70 && i < 74 {
			exportIn += s.ExportKWh
		} else {
			exportOut += s.ExportKWh
		}
	}
	if exportIn < 3.0 {
		t.Errorf("profitable window exported %f kWh, want the bulk of the surplus", exportIn)
	}
	if exportOut > 1e-6 {
		t.Errorf("%f kWh exported outside the profitable window", exportOut)
	}
	for i := 70; i < 74; i++ {
		if res.Slots[i].BatteryDischargeKW <= 0 {
			t.Errorf("slot %d covers no load from the battery during the peak", i)
		}
	}
	if res.FinalSOCPercent < cfg.Battery.MinSOCPercent-1e-6 || res.FinalSOCPercent > 25 {
		t.Errorf("final SoC = %f, want the surplus sold off down to the floor", res.FinalSOCPercent)
	}
}

func TestPlanSOCTargetsStepwise(t *testing.T) {
	req := planFixture()
	res, err := Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	for i := 1; i < len(res.Slots); i++ {
		s := res.Slots[i]
		hold := s.BatteryChargeKW == 0 && s.BatteryDischargeKW == 0 && s.ExportKWh == 0
		if hold && s.SOCTargetPercent != res.Slots[i-1].SOCTargetPercent {
			t.Fatalf("hold slot %d changed the SoC target %f -> %f",
				i, res.Slots[i-1].SOCTargetPercent, s.SOCTargetPercent)
		}
	}
}
