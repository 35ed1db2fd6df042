package planner

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// draft is the schedule under construction. Each pass consumes a draft and
// returns a new one; slot state is cloned on entry so passes never alias
// each other's data.
type draft struct {
	cfg     Config
	hours   float64
	initial BatteryState
	sIndex  float64

	slots        []slotState
	cheapWindows []window
	peakWindows  []window
	deficits     []deficitRun
	shortfalls   []DeficitShortfall
}

// slotState is the mutable per-slot overlay on top of the read-only input.
type slotState struct {
	in          InputSlot
	chargeKW    float64
	dischargeKW float64
	exportKWh   float64
	waterKW     float64

	// reservedKWh is stored energy earmarked by Pass 3 for withdrawal at
	// this slot. Pass 4 uses it to project the stored trajectory; Pass 6
	// replaces it with real discharge decisions.
	reservedKWh float64

	warnings []string
}

// adjustedNetLoadKWh is the hedged net load of the slot: forecast load
// inflated by the safety margin minus forecast PV scaled by the confidence.
func (s *slotState) adjustedNetLoadKWh(cfg Config) float64 {
	load := s.in.LoadForecastKWh * (1 + cfg.LoadSafetyMarginPercent/100.0)
	pv := s.in.PVForecastKWh * cfg.PVConfidencePercent / 100.0
	return load - pv
}

func (s *slotState) warn(msg string) {
	for _, w := range s.warnings {
		if w == msg {
			return
		}
	}
	s.warnings = append(s.warnings, msg)
}

// window is a maximal contiguous run of cheap (or peak) price slots.
// Indices are inclusive.
type window struct {
	startIdx int
	endIdx   int
	avgPrice float64

	// responsibilityKWh is stored energy this charge window has committed
	// to pre-charge for downstream deficit runs (Pass 3).
	responsibilityKWh float64
}

func (w window) length() int {
	return w.endIdx - w.startIdx + 1
}

// deficitRun is a contiguous stretch of slots where hedged load exceeds PV
// with no battery action.
type deficitRun struct {
	startIdx int
	endIdx   int

	deficitKWh float64 // delivered energy missing over the run
	avgPrice   float64 // mean known import price over the run
	priceKnown bool

	// assignedKWh is the stored energy charge windows have inherited for
	// this run, after the S-index inflation and capacity caps.
	assignedKWh  float64
	requiredKWh  float64 // deficit/eta * S-index, in stored kWh
	deliveredKWh float64 // stored energy already consumed for this run (Pass 6)
}

func newDraft(cfg Config, inputs []InputSlot, initial BatteryState, sIndex float64) draft {
	slots := make([]slotState, len(inputs))
	for i := range inputs {
		slots[i] = slotState{in: inputs[i]}
	}
	return draft{
		cfg:     cfg,
		hours:   cfg.SlotDuration.Hours(),
		initial: initial,
		sIndex:  sIndex,
		slots:   slots,
	}
}

// clone deep-copies the mutable parts of the draft.
func (d draft) clone() draft {
	out := d
	out.slots = make([]slotState, len(d.slots))
	copy(out.slots, d.slots)
	for i := range out.slots {
		if len(d.slots[i].warnings) > 0 {
			out.slots[i].warnings = append([]string(nil), d.slots[i].warnings...)
		}
	}
	out.cheapWindows = append([]window(nil), d.cheapWindows...)
	out.peakWindows = append([]window(nil), d.peakWindows...)
	out.deficits = append([]deficitRun(nil), d.deficits...)
	out.shortfalls = append([]DeficitShortfall(nil), d.shortfalls...)
	return out
}

// percentile returns the nearest-rank percentile of values. Values are not
// modified.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	rank := int(math.Ceil(p / 100.0 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// hashInputs produces a short stable digest of the input series, attached
// to fatal planner errors so a failing run can be reproduced.
func hashInputs(inputs []InputSlot) string {
	h := sha256.New()
	var buf [8]byte
	for i := range inputs {
		binary.BigEndian.PutUint64(buf[:], uint64(inputs[i].Start.Unix()))
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(inputs[i].ImportPrice))
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(inputs[i].ExportPrice))
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(inputs[i].PVForecastKWh))
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(inputs[i].LoadForecastKWh))
		h.Write(buf[:])
	}
	return fmt.Sprintf("%x", h.Sum(nil)[:8])
}
