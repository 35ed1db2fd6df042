package planner

import (
	"time"
)

// LocalMidnight returns midnight of t's calendar day in t's location.
func LocalMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// BuildGrid builds the canonical planning grid: slots of slotLen from the
// local midnight of anchor through 48 calendar hours ahead, and aligns the
// input series to it. Missing prices stay marked unknown; missing PV or
// load forecasts default to zero production / zero load.
//
// The horizon end is computed with calendar arithmetic, so on DST
// transition days the grid has the actual number of local slots (23 h or
// 25 h worth), not a fixed count.
func BuildGrid(anchor time.Time, slotLen time.Duration, prices, exportPrices, pv, load, temp Series) []InputSlot {
	start := LocalMidnight(anchor)
	end := start.AddDate(0, 0, 2)

	var slots []InputSlot
	n := 0
	for t := start; t.Before(end); t = t.Add(slotLen) {
		slot := InputSlot{
			Start:      t,
			SlotNumber: n,
		}
		if prices != nil {
			if p, ok := prices.At(t); ok {
				slot.ImportPrice = p
				slot.PriceKnown = true
			}
		}
		if exportPrices != nil && slot.PriceKnown {
			if p, ok := exportPrices.At(t); ok {
				slot.ExportPrice = p
			}
		}
		if pv != nil {
			if v, ok := pv.At(t); ok {
				slot.PVForecastKWh = v
			}
		}
		if load != nil {
			if v, ok := load.At(t); ok {
				slot.LoadForecastKWh = v
			}
		}
		if temp != nil {
			if v, ok := temp.At(t); ok {
				tc := v
				slot.TempC = &tc
			}
		}
		slots = append(slots, slot)
		n++
	}
	return slots
}

// SlotIndex returns the index of the slot whose start equals t, or -1.
// The executor matches slots by start instant, never by slot number.
func SlotIndex(slots []InputSlot, t time.Time) int {
	for i := range slots {
		if slots[i].Start.Equal(t) {
			return i
		}
	}
	return -1
}
