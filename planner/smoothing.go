package planner

// action accessors used by the smoothing pass.
type actionKind struct {
	name string
	get  func(*slotState) float64
	set  func(*slotState, float64)
}

var smoothedActions = []actionKind{
	{
		name: "charge",
		get:  func(s *slotState) float64 { return s.chargeKW },
		set:  func(s *slotState, v float64) { s.chargeKW = v },
	},
	{
		name: "discharge",
		get:  func(s *slotState) float64 { return s.dischargeKW },
		set:  func(s *slotState, v float64) { s.dischargeKW = v },
	},
	{
		name: "water",
		get:  func(s *slotState) float64 { return s.waterKW },
		set:  func(s *slotState, v float64) { s.waterKW = v },
	},
}

// passSmoothing (Pass 7) enforces minimum consecutive-on and -off slot
// counts per action so the executor never sees single-slot toggles. A run
// shorter than the minimum is extended into a neighbouring slot when SoC
// bounds and caps permit, otherwise dropped; sub-minimum gaps between two
// runs of the same action are merged. Every candidate edit is verified
// against the simulator and reverted if it would introduce clamping, which
// keeps zero-capacity regions (SoC pinned at a bound) out of merged
// blocks.
func passSmoothing(d draft) draft {
	d = d.clone()
	baseline := d.clampCount()

	for _, act := range smoothedActions {
		d = d.smoothMinOn(act, baseline)
		d = d.smoothMinOff(act, baseline)
	}
	return d
}

// clampCount simulates the draft as-is and counts SoC clamp events; edits
// made by smoothing must not raise it.
func (d *draft) clampCount() int {
	res, err := Simulate(d.buildSchedule(), d.inputs(), d.initial, d.cfg)
	if err != nil {
		return 0
	}
	n := 0
	for _, c := range res.ClampEvents {
		if c.Kind == "soc_floor" || c.Kind == "soc_ceiling" {
			n++
		}
	}
	return n
}

func (d *draft) inputs() []InputSlot {
	out := make([]InputSlot, len(d.slots))
	for i := range d.slots {
		out[i] = d.slots[i].in
	}
	return out
}

// actionRuns returns the maximal runs of slots where the action is on.
func (d *draft) actionRuns(act actionKind) [][2]int {
	var runs [][2]int
	i := 0
	for i < len(d.slots) {
		if act.get(&d.slots[i]) <= 0 {
			i++
			continue
		}
		j := i
		for j < len(d.slots) && act.get(&d.slots[j]) > 0 {
			j++
		}
		runs = append(runs, [2]int{i, j - 1})
		i = j
	}
	return runs
}

func (d draft) smoothMinOn(act actionKind, baseline int) draft {
	minOn := d.cfg.MinOnSlots
	if minOn <= 1 {
		return d
	}
	for {
		extended := false
		for _, run := range d.actionRuns(act) {
			length := run[1] - run[0] + 1
			if length >= minOn {
				continue
			}
			if d.extendRun(act, run, baseline) {
				extended = true
				break // runs shifted, rescan
			}
			// Cannot extend: a sub-minimum run is dropped rather than
			// emitted as a toggle.
			for i := run[0]; i <= run[1]; i++ {
				act.set(&d.slots[i], 0)
				d.slots[i].warn("smoothing_dropped_" + act.name)
			}
		}
		if !extended {
			return d
		}
	}
}

// extendRun grows a short run by one slot into the cheaper viable
// neighbour. Returns false when neither neighbour works.
func (d *draft) extendRun(act actionKind, run [2]int, baseline int) bool {
	value := act.get(&d.slots[run[0]])
	candidates := []int{}
	if i := run[0] - 1; i >= 0 && act.get(&d.slots[i]) <= 0 {
		candidates = append(candidates, i)
	}
	if i := run[1] + 1; i < len(d.slots) && act.get(&d.slots[i]) <= 0 {
		candidates = append(candidates, i)
	}
	if len(candidates) == 2 {
		a, b := &d.slots[candidates[0]].in, &d.slots[candidates[1]].in
		if a.PriceKnown && b.PriceKnown && b.ImportPrice < a.ImportPrice {
			candidates[0], candidates[1] = candidates[1], candidates[0]
		}
	}
	for _, i := range candidates {
		if act.name != "water" && !d.slots[i].in.PriceKnown {
			continue
		}
		act.set(&d.slots[i], value)
		if d.clampCount() <= baseline {
			return true
		}
		act.set(&d.slots[i], 0)
	}
	return false
}

func (d draft) smoothMinOff(act actionKind, baseline int) draft {
	minOff := d.cfg.MinOffSlots
	if minOff <= 0 {
		return d
	}
	runs := d.actionRuns(act)
	for k := 0; k+1 < len(runs); k++ {
		gapStart := runs[k][1] + 1
		gapEnd := runs[k+1][0] - 1
		gapLen := gapEnd - gapStart + 1
		if gapLen <= 0 || gapLen >= minOff {
			continue
		}
		value := act.get(&d.slots[runs[k][1]])
		if v := act.get(&d.slots[runs[k+1][0]]); v < value {
			value = v
		}
		filled := []int{}
		ok := true
		for i := gapStart; i <= gapEnd; i++ {
			if act.name != "water" && !d.slots[i].in.PriceKnown {
				ok = false
				break
			}
			act.set(&d.slots[i], value)
			filled = append(filled, i)
		}
		if ok && d.clampCount() <= baseline {
			continue
		}
		for _, i := range filled {
			act.set(&d.slots[i], 0)
		}
	}
	return d
}
