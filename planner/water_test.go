package planner

import (
	"testing"
	"time"
)

// waterFixture builds one local day of slots at a flat 1.0 price.
func waterFixture(cfg Config, n int) draft {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = 1.0
	}
	return draftWithPrices(cfg, prices)
}

func TestPassWaterPrefersPVSurplus(t *testing.T) {
	cfg := DefaultConfig() // 3 kW heater, 2 kWh/day minimum -> 3 slots
	d := waterFixture(cfg, 12)
	// Slots 4-7 carry enough PV surplus to run the heater for free.
	for i := 4; i < 8; i++ {
		d.slots[i].in.PVForecastKWh = 1.0
	}
	now := d.slots[0].in.Start

	d = passWater(d, now, nil)

	var on []int
	for i := range d.slots {
		if d.slots[i].waterKW > 0 {
			on = append(on, i)
		}
	}
	if len(on) != 3 {
		t.Fatalf("water slots = %v, want 3 slots for the 2 kWh minimum", on)
	}
	for _, i := range on {
		if i < 4 || i >= 8 {
			t.Errorf("water in slot %d, want placement inside the PV surplus 4-7", i)
		}
		if d.slots[i].waterKW != cfg.Water.PowerKW {
			t.Errorf("slot %d water = %f, want heater power %f", i, d.slots[i].waterKW, cfg.Water.PowerKW)
		}
	}
	// Contiguous single block.
	for k := 1; k < len(on); k++ {
		if on[k] != on[k-1]+1 {
			t.Errorf("water slots %v not contiguous", on)
		}
	}
}

func TestPassWaterKeepsExecutedBlocks(t *testing.T) {
	cfg := DefaultConfig()
	d := waterFixture(cfg, 12)
	now := d.slots[4].in.Start

	// One slot already executed earlier today: 0.75 kWh of the daily 2 kWh.
	existing := []ScheduleSlot{
		{Start: d.slots[1].in.Start, WaterHeatingKW: cfg.Water.PowerKW},
	}

	d = passWater(d, now, existing)

	if d.slots[1].waterKW != cfg.Water.PowerKW {
		t.Error("executed water slot was dropped on re-plan")
	}
	newSlots := 0
	for i := 2; i < len(d.slots); i++ {
		if d.slots[i].waterKW > 0 {
			newSlots++
		}
	}
	// Remaining demand 1.25 kWh needs 2 more slots, not 3.
	if newSlots != 2 {
		t.Errorf("new water slots = %d, want 2 after the executed carry-over", newSlots)
	}
}

func TestPassWaterFutureOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Water.ScheduleFutureOnly = true
	d := waterFixture(cfg, 12)
	// Make the past half of the day strictly cheaper.
	for i := 0; i < 6; i++ {
		d.slots[i].in.ImportPrice = 0.1
	}
	now := d.slots[6].in.Start

	d = passWater(d, now, nil)

	for i := 0; i < 6; i++ {
		if d.slots[i].waterKW > 0 {
			t.Errorf("water planned in past slot %d despite schedule_future_only", i)
		}
	}
	on := 0
	for i := 6; i < len(d.slots); i++ {
		if d.slots[i].waterKW > 0 {
			on++
		}
	}
	if on != 3 {
		t.Errorf("future water slots = %d, want 3", on)
	}
}

func TestPassWaterRespectsMaxBlocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Water.MaxBlocksPerDay = 2
	d := waterFixture(cfg, 12)
	now := d.slots[0].in.Start

	d = passWater(d, now, nil)

	blocks := 0
	prevOn := false
	for i := range d.slots {
		on := d.slots[i].waterKW > 0
		if on && !prevOn {
			blocks++
		}
		prevOn = on
	}
	if blocks > cfg.Water.MaxBlocksPerDay {
		t.Errorf("water blocks = %d, exceeds the maximum %d", blocks, cfg.Water.MaxBlocksPerDay)
	}
}

func TestPassWaterSkipsUnknownPriceWithoutPV(t *testing.T) {
	cfg := DefaultConfig()
	d := waterFixture(cfg, 12)
	for i := range d.slots {
		d.slots[i].in.PriceKnown = false
	}
	now := d.slots[0].in.Start

	d = passWater(d, now, nil)

	for i := range d.slots {
		if d.slots[i].waterKW > 0 {
			t.Errorf("water planned in unknown-price slot %d with no PV surplus", i)
		}
	}
}

func TestPassWaterCoversEveryHorizonDay(t *testing.T) {
	cfg := DefaultConfig()
	d := waterFixture(cfg, 192) // two full days
	now := d.slots[0].in.Start

	d = passWater(d, now, nil)

	day2 := LocalMidnight(d.slots[0].in.Start.Add(24 * time.Hour))
	day1KWh, day2KWh := 0.0, 0.0
	for i := range d.slots {
		kwh := d.slots[i].waterKW * d.hours
		if LocalMidnight(d.slots[i].in.Start).Equal(day2) {
			day2KWh += kwh
		} else {
			day1KWh += kwh
		}
	}
	if day1KWh < cfg.Water.MinKWhPerDay {
		t.Errorf("day 1 water = %f kWh, below the %f minimum", day1KWh, cfg.Water.MinKWhPerDay)
	}
	if day2KWh < cfg.Water.MinKWhPerDay {
		t.Errorf("day 2 water = %f kWh, below the %f minimum", day2KWh, cfg.Water.MinKWhPerDay)
	}
}
