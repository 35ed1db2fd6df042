package scheduler

import (
	"math"
	"testing"

	"github.com/devskill-org/home-mpc/inverter"
)

func TestCounterTrackerPrimesOnFirstReading(t *testing.T) {
	var tracker CounterTracker

	first := inverter.Counters{
		PVGeneratedKWh:  1000,
		GridImportedKWh: 2000,
	}

	delta := tracker.Delta(first)
	if delta != (CounterDelta{FirstSample: true}) {
		t.Errorf("first reading should prime with zero deltas, got %+v", delta)
	}
	if flags := delta.QualityFlags(); len(flags) != 1 || flags[0] != "first_sample" {
		t.Errorf("quality flags = %v, want [first_sample]", flags)
	}

	last, primed := tracker.Last()
	if !primed {
		t.Fatal("tracker should be primed after first reading")
	}
	if last != first {
		t.Errorf("baseline = %+v, want %+v", last, first)
	}
}

func TestCounterTrackerDeltas(t *testing.T) {
	var tracker CounterTracker
	tracker.Seed(inverter.Counters{
		PVGeneratedKWh:       1000.00,
		GridImportedKWh:      2000.00,
		GridExportedKWh:      500.00,
		BatteryChargedKWh:    300.00,
		BatteryDischargedKWh: 250.00,
	})

	delta := tracker.Delta(inverter.Counters{
		PVGeneratedKWh:       1001.50,
		GridImportedKWh:      2000.25,
		GridExportedKWh:      500.75,
		BatteryChargedKWh:    300.50,
		BatteryDischargedKWh: 250.00,
	})

	if math.Abs(delta.PVKWh-1.50) > 1e-9 {
		t.Errorf("PV delta = %f, want 1.50", delta.PVKWh)
	}
	if math.Abs(delta.ImportKWh-0.25) > 1e-9 {
		t.Errorf("import delta = %f, want 0.25", delta.ImportKWh)
	}
	if math.Abs(delta.ExportKWh-0.75) > 1e-9 {
		t.Errorf("export delta = %f, want 0.75", delta.ExportKWh)
	}
	if math.Abs(delta.ChargeKWh-0.50) > 1e-9 {
		t.Errorf("charge delta = %f, want 0.50", delta.ChargeKWh)
	}
	if delta.DischargeKWh != 0 {
		t.Errorf("discharge delta = %f, want 0", delta.DischargeKWh)
	}
}

func TestCounterTrackerClampsCounterReset(t *testing.T) {
	var tracker CounterTracker
	tracker.Seed(inverter.Counters{PVGeneratedKWh: 5000})

	// Counter went backwards: meter reset. The slot clamps to zero and
	// the new reading becomes the baseline.
	delta := tracker.Delta(inverter.Counters{PVGeneratedKWh: 10})
	if delta.PVKWh != 0 {
		t.Errorf("reset slot PV delta = %f, want 0", delta.PVKWh)
	}
	if !delta.CounterReset {
		t.Error("reset slot should carry the counter_reset flag")
	}

	delta = tracker.Delta(inverter.Counters{PVGeneratedKWh: 12})
	if math.Abs(delta.PVKWh-2) > 1e-9 {
		t.Errorf("post-reset PV delta = %f, want 2", delta.PVKWh)
	}
}

func TestCounterDeltaLoadKWh(t *testing.T) {
	tests := []struct {
		name  string
		delta CounterDelta
		want  float64
	}{
		{
			name:  "typical evening slot",
			delta: CounterDelta{PVKWh: 0, ImportKWh: 0.5, DischargeKWh: 0.3, ExportKWh: 0, ChargeKWh: 0},
			want:  0.8,
		},
		{
			name:  "sunny midday with export and charge",
			delta: CounterDelta{PVKWh: 2.0, ImportKWh: 0, DischargeKWh: 0, ExportKWh: 1.0, ChargeKWh: 0.6},
			want:  0.4,
		},
		{
			name:  "inconsistent readings clamp to zero",
			delta: CounterDelta{PVKWh: 0.1, ExportKWh: 0.5},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.delta.LoadKWh(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("LoadKWh() = %f, want %f", got, tt.want)
			}
		})
	}
}
