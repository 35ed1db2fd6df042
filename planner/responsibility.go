package planner

import (
	"sort"
)

// windowCapacityKWh returns the stored energy a charge window can take in,
// capped per slot by the device, grid and inverter limits.
func (d *draft) windowCapacityKWh(w window) float64 {
	eta := d.cfg.Battery.OneWayEfficiency()
	total := 0.0
	for i := w.startIdx; i <= w.endIdx; i++ {
		loadKW := d.slots[i].in.LoadForecastKWh / d.hours
		total += d.cfg.Battery.MaxChargeKWhPerSlot(d.hours, loadKW, d.slots[i].waterKW) * eta
	}
	return total
}

// passResponsibilities (Pass 3) assigns each deficit run's energy to the
// preceding charge windows, slot by slot. A window inherits only what is
// economical to pre-store, judged against the import price of the slot it
// would actually cover: window price plus wear plus the battery-use margin
// must undercut that slot's price. A run spanning mixed prices therefore
// pre-charges for its expensive slots even when its cheap slots drag the
// run average down. The S-index inflates the inherited energy to hedge
// forecast error.
//
// Runs are processed earlier-in-time first, larger deficit first on equal
// start. Within a run, the most expensive slots claim window capacity
// first, earlier slot on equal price. Between windows serving the same
// slot, cheaper wins; on equal price the later window (closer to the
// deficit) wins, minimising the time energy sits in the battery.
func passResponsibilities(d draft) draft {
	d = d.clone()
	const eps = 1e-9

	eta := d.cfg.Battery.OneWayEfficiency()
	wear := d.cfg.Battery.WearCostPerKWh
	dischCap := d.cfg.Battery.MaxDischargeKWhPerSlot(d.hours)

	order := make([]int, len(d.deficits))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := d.deficits[order[a]], d.deficits[order[b]]
		if ra.startIdx != rb.startIdx {
			return ra.startIdx < rb.startIdx
		}
		return ra.deficitKWh > rb.deficitKWh
	})

	for _, ri := range order {
		run := &d.deficits[ri]
		if !run.priceKnown {
			run.requiredKWh = run.deficitKWh / eta * d.sIndex
			d.shortfalls = append(d.shortfalls, DeficitShortfall{
				RunStart:   d.slots[run.startIdx].in.Start,
				RunEnd:     d.slots[run.endIdx].in.Start,
				MissingKWh: run.requiredKWh,
				Reason:     "unknown_price",
			})
			continue
		}

		// Most expensive slots first, earlier slot on equal price.
		// Unknown-price slots inside a partially known run are skipped:
		// they are unplannable for price-sensitive decisions.
		var slotOrder []int
		for i := run.startIdx; i <= run.endIdx; i++ {
			if d.slots[i].in.PriceKnown {
				slotOrder = append(slotOrder, i)
			}
		}
		sort.SliceStable(slotOrder, func(a, b int) bool {
			return d.slots[slotOrder[a]].in.ImportPrice > d.slots[slotOrder[b]].in.ImportPrice
		})

		anyEconomical := false
		for _, i := range slotOrder {
			s := &d.slots[i]
			out := s.adjustedNetLoadKWh(d.cfg)
			if out > dischCap {
				out = dischCap
			}
			if out <= eps {
				continue
			}
			need := out / eta * d.sIndex
			run.requiredKWh += need

			// Candidate windows: fully before this slot, economical to
			// pre-store for it, cheapest first, later-first on ties.
			var candidates []int
			for wi := range d.cheapWindows {
				w := d.cheapWindows[wi]
				if w.endIdx >= i {
					continue
				}
				if w.avgPrice+wear+d.cfg.BatteryUseMarginSEK < s.in.ImportPrice {
					candidates = append(candidates, wi)
				}
			}
			if len(candidates) > 0 {
				anyEconomical = true
			}
			sort.SliceStable(candidates, func(a, b int) bool {
				wa, wb := d.cheapWindows[candidates[a]], d.cheapWindows[candidates[b]]
				if wa.avgPrice != wb.avgPrice {
					return wa.avgPrice < wb.avgPrice
				}
				return wa.startIdx > wb.startIdx
			})

			remaining := need
			for _, wi := range candidates {
				if remaining <= eps {
					break
				}
				w := &d.cheapWindows[wi]
				free := d.windowCapacityKWh(*w) - w.responsibilityKWh
				if free <= eps {
					continue
				}
				take := remaining
				if take > free {
					take = free
				}
				w.responsibilityKWh += take
				run.assignedKWh += take
				s.reservedKWh += take
				remaining -= take
			}
		}

		if missing := run.requiredKWh - run.assignedKWh; missing > eps {
			reason := "insufficient_window_capacity"
			if !anyEconomical {
				reason = "no_economical_window"
			}
			d.shortfalls = append(d.shortfalls, DeficitShortfall{
				RunStart:   d.slots[run.startIdx].in.Start,
				RunEnd:     d.slots[run.endIdx].in.Start,
				MissingKWh: missing,
				Reason:     reason,
			})
		}
	}
	return d
}
