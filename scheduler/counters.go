package scheduler

import (
	"sync"

	"github.com/devskill-org/home-mpc/inverter"
)

// CounterDelta is the energy moved during one observation slot, derived
// from the plant's lifetime counters.
type CounterDelta struct {
	PVKWh        float64
	ImportKWh    float64
	ExportKWh    float64
	ChargeKWh    float64
	DischargeKWh float64

	// FirstSample marks the priming read after a cold start; all deltas
	// are zero. CounterReset marks a reading below the previous one.
	FirstSample  bool
	CounterReset bool
}

// QualityFlags returns the observation quality markers for this delta.
func (d CounterDelta) QualityFlags() []string {
	var flags []string
	if d.FirstSample {
		flags = append(flags, "first_sample")
	}
	if d.CounterReset {
		flags = append(flags, "counter_reset")
	}
	return flags
}

// LoadKWh derives household consumption from the grid balance:
// load = PV + import + discharge - export - charge.
func (d CounterDelta) LoadKWh() float64 {
	load := d.PVKWh + d.ImportKWh + d.DischargeKWh - d.ExportKWh - d.ChargeKWh
	if load < 0 {
		return 0
	}
	return load
}

// CounterTracker differences cumulative counter readings. Counters only
// grow; a reading below the previous one means the counter was reset or
// the meter replaced, and that slot's delta clamps to zero.
type CounterTracker struct {
	mu     sync.Mutex
	last   inverter.Counters
	primed bool
}

// Seed initialises the tracker from persisted totals so a restart does
// not count the downtime as one giant slot.
func (t *CounterTracker) Seed(c inverter.Counters) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = c
	t.primed = true
}

// Delta returns the per-counter increase since the previous reading and
// advances the baseline. The first reading after a cold start primes the
// baseline and reports zero deltas.
func (t *CounterTracker) Delta(current inverter.Counters) CounterDelta {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.primed {
		t.last = current
		t.primed = true
		return CounterDelta{FirstSample: true}
	}

	reset := false
	diff := func(prev, cur float64) float64 {
		if cur < prev {
			reset = true
			return 0
		}
		return cur - prev
	}

	d := CounterDelta{
		PVKWh:        diff(t.last.PVGeneratedKWh, current.PVGeneratedKWh),
		ImportKWh:    diff(t.last.GridImportedKWh, current.GridImportedKWh),
		ExportKWh:    diff(t.last.GridExportedKWh, current.GridExportedKWh),
		ChargeKWh:    diff(t.last.BatteryChargedKWh, current.BatteryChargedKWh),
		DischargeKWh: diff(t.last.BatteryDischargedKWh, current.BatteryDischargedKWh),
	}
	d.CounterReset = reset
	t.last = current
	return d
}

// Last returns the current baseline for persistence.
func (t *CounterTracker) Last() (inverter.Counters, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.primed
}
