package planner

import (
	"math"
	"time"
)

// passWater (Pass 5) schedules the daily minimum of water heating for each
// local day in the horizon. Placement prefers PV-surplus slots regardless
// of spot price, then cheap known-price slots; a single contiguous block is
// preferred, splitting into at most MaxBlocksPerDay blocks when no single
// block fits. Executed blocks from the previous plan are never removed.
func passWater(d draft, now time.Time, existing []ScheduleSlot) draft {
	d = d.clone()
	w := d.cfg.Water
	if w.PowerKW <= 0 || w.MinKWhPerDay <= 0 {
		return d
	}
	slotKWh := w.PowerKW * d.hours

	// Carry over executed water slots so re-planning mid-day neither
	// deletes them nor double-books the energy they already delivered.
	executedKWh := make(map[int64]float64) // local midnight -> kWh already heated
	for _, prev := range existing {
		if prev.WaterHeatingKW <= 0 || !prev.Start.Before(now) {
			continue
		}
		if i := d.slotIndexAt(prev.Start); i >= 0 {
			d.slots[i].waterKW = prev.WaterHeatingKW
			day := LocalMidnight(prev.Start).Unix()
			executedKWh[day] += prev.WaterHeatingKW * d.hours
		}
	}

	for _, day := range d.horizonDays() {
		demand := w.MinKWhPerDay - executedKWh[day.Unix()]
		if demand <= 1e-9 {
			continue
		}
		needSlots := int(math.Ceil(demand / slotKWh))
		if minSlots := int(math.Ceil(w.MinHoursPerDay / d.hours)); minSlots > needSlots {
			needSlots = minSlots
		}

		eligible := d.eligibleWaterSlots(day, now)
		if len(eligible) == 0 {
			continue
		}
		d.placeWaterBlocks(eligible, needSlots, slotKWh)
	}
	return d
}

func (d *draft) slotIndexAt(t time.Time) int {
	for i := range d.slots {
		if d.slots[i].in.Start.Equal(t) {
			return i
		}
	}
	return -1
}

// horizonDays lists the local midnights covered by the grid.
func (d *draft) horizonDays() []time.Time {
	var days []time.Time
	var last time.Time
	for i := range d.slots {
		day := LocalMidnight(d.slots[i].in.Start)
		if last.IsZero() || !day.Equal(last) {
			days = append(days, day)
			last = day
		}
	}
	return days
}

// eligibleWaterSlots returns the indices of the day's slots water heating
// may be placed in, respecting schedule_future_only.
func (d *draft) eligibleWaterSlots(day time.Time, now time.Time) []int {
	var out []int
	started := false
	for i := range d.slots {
		s := &d.slots[i]
		if !LocalMidnight(s.in.Start).Equal(day) {
			if started {
				break // days are contiguous; past the day means done
			}
			continue
		}
		started = true
		if s.waterKW > 0 {
			continue
		}
		if d.cfg.Water.ScheduleFutureOnly && s.in.Start.Before(now) {
			continue
		}
		out = append(out, i)
	}
	return out
}

// waterSlotCost scores a slot for water placement: the grid energy the
// water heater would draw there times the import price. PV surplus is free
// energy, so fully PV-covered slots cost zero; unknown-price slots are
// usable only through PV surplus.
func (d *draft) waterSlotCost(i int, slotKWh float64) float64 {
	surplus := -d.slots[i].adjustedNetLoadKWh(d.cfg)
	if surplus < 0 {
		surplus = 0
	}
	gridKWh := slotKWh - surplus
	if gridKWh <= 0 {
		return 0
	}
	if !d.slots[i].in.PriceKnown {
		return math.Inf(1)
	}
	price := d.slots[i].in.ImportPrice
	// Battery coverage is cheaper than the grid when economical; Pass 6
	// makes the actual call, this only affects placement.
	if m := d.initial.MarginalDischargeCost(d.cfg.Battery) + d.cfg.BatteryUseMarginSEK; m < price && d.initial.AvgCostPerKWh > 0 {
		price = m
	}
	return gridKWh * price
}

// placeWaterBlocks places needSlots slots of water heating over the
// eligible indices, preferring one contiguous block, then splitting.
func (d *draft) placeWaterBlocks(eligible []int, needSlots int, slotKWh float64) {
	blocks := 1
	remaining := needSlots
	used := make(map[int]bool)

	for remaining > 0 && blocks <= d.cfg.Water.MaxBlocksPerDay {
		blockLen := remaining
		if blocks < d.cfg.Water.MaxBlocksPerDay {
			// Try the whole remainder first; shorter pieces only if it
			// cannot be placed contiguously.
			if bestStart, ok := d.bestBlock(eligible, blockLen, used, slotKWh); ok {
				d.applyWaterBlock(eligible, bestStart, blockLen, used)
				remaining = 0
				break
			}
			blockLen = (remaining + 1) / 2
		}
		bestStart, ok := d.bestBlock(eligible, blockLen, used, slotKWh)
		if !ok {
			// Fall back to single slots, cheapest first.
			blockLen = 1
			bestStart, ok = d.bestBlock(eligible, blockLen, used, slotKWh)
			if !ok {
				break
			}
		}
		d.applyWaterBlock(eligible, bestStart, blockLen, used)
		remaining -= blockLen
		blocks++
	}
}

// bestBlock finds the cheapest run of blockLen consecutive eligible slots
// not already used. Consecutive means adjacent slot indices, so a gap in
// eligibility breaks contiguity. Ties go to the earlier block.
func (d *draft) bestBlock(eligible []int, blockLen int, used map[int]bool, slotKWh float64) (int, bool) {
	bestCost := math.Inf(1)
	bestStart := -1
	for s := 0; s+blockLen <= len(eligible); s++ {
		contiguous := true
		cost := 0.0
		for k := 0; k < blockLen; k++ {
			idx := eligible[s+k]
			if used[idx] || (k > 0 && idx != eligible[s+k-1]+1) {
				contiguous = false
				break
			}
			cost += d.waterSlotCost(idx, slotKWh)
		}
		if contiguous && cost < bestCost {
			bestCost = cost
			bestStart = s
		}
	}
	if bestStart < 0 || math.IsInf(bestCost, 1) {
		return 0, false
	}
	return bestStart, true
}

func (d *draft) applyWaterBlock(eligible []int, start, blockLen int, used map[int]bool) {
	for k := 0; k < blockLen; k++ {
		idx := eligible[start+k]
		d.slots[idx].waterKW = d.cfg.Water.PowerKW
		used[idx] = true
	}
}
