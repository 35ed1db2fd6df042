package planner

import (
	"sort"
)

// workingStoredTrajectory projects stored energy across the horizon from
// the charge decisions made so far, with each deficit run's assigned energy
// earmarked for withdrawal where the deficit occurs. Pass 4 uses it to
// honour the SoC ceiling; Pass 6 replaces the earmarks with real discharge
// decisions.
func (d *draft) workingStoredTrajectory() []float64 {
	b := d.cfg.Battery
	eta := b.OneWayEfficiency()
	minStored := b.StoredKWhAtSOC(b.MinSOCPercent)

	stored := d.initial.TotalStoredKWh
	out := make([]float64, len(d.slots))
	for i := range d.slots {
		stored += d.slots[i].chargeKW * d.hours * eta
		if e := d.earmarkAt(i); e > 0 {
			avail := stored - minStored
			if e > avail {
				e = avail
			}
			if e > 0 {
				stored -= e
			}
		}
		out[i] = stored
	}
	return out
}

// earmarkAt returns the stored energy reserved for withdrawal at slot i,
// as recorded by the per-slot responsibility assignment.
func (d *draft) earmarkAt(i int) float64 {
	return d.slots[i].reservedKWh
}

// maxExtraStoredFrom returns how much additional stored energy a charge at
// slot i may add without pushing any later point of the projection above
// the SoC ceiling.
func (d *draft) maxExtraStoredFrom(i int) float64 {
	maxStored := d.cfg.Battery.StoredKWhAtSOC(d.cfg.Battery.MaxSOCPercent)
	traj := d.workingStoredTrajectory()
	peak := 0.0
	for j := i; j < len(traj); j++ {
		if traj[j] > peak {
			peak = traj[j]
		}
	}
	allow := maxStored - peak
	if allow < 0 {
		return 0
	}
	return allow
}

// distributeWindow spreads needKWh of stored energy across the window's
// slots proportionally to their remaining grid headroom, honouring the SoC
// ceiling. Returns the stored energy actually placed.
func (d *draft) distributeWindow(wi int, needKWh float64) float64 {
	const eps = 1e-9
	w := d.cheapWindows[wi]
	b := d.cfg.Battery
	eta := b.OneWayEfficiency()

	achieved := 0.0
	remaining := needKWh
	for iter := 0; iter < 4 && remaining > eps; iter++ {
		head := make([]float64, w.length())
		total := 0.0
		for k := 0; k < w.length(); k++ {
			i := w.startIdx + k
			loadKW := d.slots[i].in.LoadForecastKWh / d.hours
			capKWh := b.MaxChargeKWhPerSlot(d.hours, loadKW, d.slots[i].waterKW)
			h := capKWh - d.slots[i].chargeKW*d.hours
			if h < 0 {
				h = 0
			}
			head[k] = h
			total += h
		}
		if total*eta <= eps {
			break
		}

		wantGrid := remaining / eta
		scale := wantGrid / total
		if scale > 1 {
			scale = 1
		}

		applied := 0.0
		for k := 0; k < w.length(); k++ {
			if head[k] <= eps {
				continue
			}
			i := w.startIdx + k
			addGrid := head[k] * scale
			if allow := d.maxExtraStoredFrom(i); addGrid*eta > allow {
				addGrid = allow / eta
			}
			if addGrid <= eps {
				continue
			}
			d.slots[i].chargeKW += addGrid / d.hours
			applied += addGrid * eta
		}
		if applied <= eps {
			break
		}
		achieved += applied
		remaining -= applied
	}
	return achieved
}

// passChargePlan (Pass 4) turns window responsibilities into per-slot
// charge power. A window that cannot place its full assignment because of
// caps or the SoC ceiling propagates the shortfall backward to earlier,
// cheaper windows; whatever still remains is recorded as unsatisfiable.
func passChargePlan(d draft) draft {
	d = d.clone()
	const eps = 1e-9

	order := make([]int, len(d.cheapWindows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return d.cheapWindows[order[a]].startIdx < d.cheapWindows[order[b]].startIdx
	})

	for _, wi := range order {
		need := d.cheapWindows[wi].responsibilityKWh
		if need <= eps {
			continue
		}
		short := need - d.distributeWindow(wi, need)
		if short <= eps {
			continue
		}

		// Earlier windows sorted cheapest first, later-first on ties.
		var earlier []int
		for ei := range d.cheapWindows {
			if d.cheapWindows[ei].startIdx < d.cheapWindows[wi].startIdx {
				earlier = append(earlier, ei)
			}
		}
		sort.SliceStable(earlier, func(a, b int) bool {
			wa, wb := d.cheapWindows[earlier[a]], d.cheapWindows[earlier[b]]
			if wa.avgPrice != wb.avgPrice {
				return wa.avgPrice < wb.avgPrice
			}
			return wa.startIdx > wb.startIdx
		})
		for _, ei := range earlier {
			if short <= eps {
				break
			}
			short -= d.distributeWindow(ei, short)
		}

		if short > eps {
			w := d.cheapWindows[wi]
			d.shortfalls = append(d.shortfalls, DeficitShortfall{
				RunStart:   d.slots[w.startIdx].in.Start,
				RunEnd:     d.slots[w.endIdx].in.Start,
				MissingKWh: short,
				Reason:     "charge_capacity_exhausted",
			})
			for i := w.startIdx; i <= w.endIdx; i++ {
				d.slots[i].warn("charge_shortfall")
			}
		}
	}
	return d
}
