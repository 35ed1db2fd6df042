package planner

import (
	"testing"
	"time"
)

func draftWithPrices(cfg Config, prices []float64) draft {
	start := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	inputs := make([]InputSlot, len(prices))
	for i, p := range prices {
		inputs[i] = InputSlot{
			Start:       start.Add(time.Duration(i) * 15 * time.Minute),
			SlotNumber:  i,
			ImportPrice: p,
			PriceKnown:  p >= 0, // negative marks unknown in these tests
		}
	}
	state := NewBatteryState(cfg.Battery, 50, 0.5)
	return newDraft(cfg, inputs, state, 1.0)
}

func TestPassPriceWindowsPercentiles(t *testing.T) {
	cfg := DefaultConfig()
	prices := []float64{0.2, 0.2, 0.2, 0.2, 1.0, 1.0, 1.0, 1.0, 3.0, 3.0}

	d := passPriceWindows(draftWithPrices(cfg, prices))

	if len(d.cheapWindows) != 1 {
		t.Fatalf("cheap windows = %d, want 1", len(d.cheapWindows))
	}
	w := d.cheapWindows[0]
	if w.startIdx != 0 || w.endIdx != 3 {
		t.Errorf("cheap window [%d, %d], want [0, 3]", w.startIdx, w.endIdx)
	}
	if !almostEqual(w.avgPrice, 0.2, 1e-9) {
		t.Errorf("cheap window avg = %f, want 0.2", w.avgPrice)
	}

	if len(d.peakWindows) != 1 {
		t.Fatalf("peak windows = %d, want 1", len(d.peakWindows))
	}
	p := d.peakWindows[0]
	if p.startIdx != 4 || p.endIdx != 9 {
		t.Errorf("peak window [%d, %d], want [4, 9]", p.startIdx, p.endIdx)
	}
}

func TestPassPriceWindowsSmoothingTolerance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CheapPercentile = 20
	cfg.PriceSmoothingPerKWh = 0.05
	// Threshold lands on 0.20; the 0.23 neighbour is within tolerance and
	// joins the window instead of splitting it.
	prices := []float64{0.2, 0.2, 0.23, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0}

	d := passPriceWindows(draftWithPrices(cfg, prices))

	if len(d.cheapWindows) != 1 {
		t.Fatalf("cheap windows = %d, want 1", len(d.cheapWindows))
	}
	if w := d.cheapWindows[0]; w.endIdx != 2 {
		t.Errorf("window ends at %d, want the tolerance slot 2 included", w.endIdx)
	}
}

func TestPassPriceWindowsShortWindowNeedsAbsoluteThreshold(t *testing.T) {
	prices := []float64{1.0, 0.2, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0}

	cfg := DefaultConfig()
	cfg.CheapPercentile = 10
	cfg.PriceSmoothingPerKWh = 0
	cfg.MinWindowSlots = 2

	// 0.2 clears the default 0.35 absolute threshold: the single slot stays.
	d := passPriceWindows(draftWithPrices(cfg, prices))
	if len(d.cheapWindows) != 1 {
		t.Fatalf("cheap windows = %d, want the short window kept", len(d.cheapWindows))
	}

	// With a stricter absolute threshold the lone slot is discarded.
	cfg.AbsoluteCheapPrice = 0.1
	d = passPriceWindows(draftWithPrices(cfg, prices))
	if len(d.cheapWindows) != 0 {
		t.Fatalf("cheap windows = %d, want the short window dropped", len(d.cheapWindows))
	}
}

func TestPassPriceWindowsIgnoresUnknownPrices(t *testing.T) {
	cfg := DefaultConfig()
	prices := []float64{0.2, 0.2, -1, -1, 1.0, 1.0, 1.0, 1.0, 3.0, 3.0}

	d := passPriceWindows(draftWithPrices(cfg, prices))

	for _, w := range d.cheapWindows {
		for i := w.startIdx; i <= w.endIdx; i++ {
			if !d.slots[i].in.PriceKnown {
				t.Errorf("unknown-price slot %d inside a cheap window", i)
			}
		}
	}
	for _, w := range d.peakWindows {
		for i := w.startIdx; i <= w.endIdx; i++ {
			if !d.slots[i].in.PriceKnown {
				t.Errorf("unknown-price slot %d inside a peak window", i)
			}
		}
	}
}

func TestPassNetLoadFindsDeficitRuns(t *testing.T) {
	cfg := DefaultConfig()
	d := draftWithPrices(cfg, []float64{1, 1, 1, 1, 1, 1, 1, 1})
	// PV covers slots 2-3, load runs 0-1 and 4-6.
	for _, i := range []int{0, 1, 4, 5, 6} {
		d.slots[i].in.LoadForecastKWh = 0.5
	}
	d.slots[2].in.PVForecastKWh = 1.0
	d.slots[3].in.PVForecastKWh = 1.0

	d = passNetLoad(d)

	if len(d.deficits) != 2 {
		t.Fatalf("deficit runs = %d, want 2", len(d.deficits))
	}
	r0, r1 := d.deficits[0], d.deficits[1]
	if r0.startIdx != 0 || r0.endIdx != 1 {
		t.Errorf("run 0 = [%d, %d], want [0, 1]", r0.startIdx, r0.endIdx)
	}
	if r1.startIdx != 4 || r1.endIdx != 6 {
		t.Errorf("run 1 = [%d, %d], want [4, 6]", r1.startIdx, r1.endIdx)
	}
	// Hedged: 0.5 kWh load inflated by the 10 % safety margin, two slots.
	if want := 2 * 0.5 * 1.1; !almostEqual(r0.deficitKWh, want, 1e-9) {
		t.Errorf("run 0 deficit = %f, want %f", r0.deficitKWh, want)
	}
	if !r0.priceKnown || !almostEqual(r0.avgPrice, 1.0, 1e-9) {
		t.Errorf("run 0 price = %f known=%v, want 1.0 known", r0.avgPrice, r0.priceKnown)
	}
}
