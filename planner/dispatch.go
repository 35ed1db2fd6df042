package planner

import (
	"sort"
)

// storedClaim is one prospective use of stored energy: covering a deficit
// slot or exporting during a peak window. Claims compete for the same
// energy on value per delivered kWh.
type storedClaim struct {
	idx    int
	export bool
	amount float64 // delivered kWh wanted
	value  float64 // SEK per delivered kWh
}

// passDispatch (Pass 6) books the planned charges into a running battery
// state and spends the stored energy where it is worth most. Deficit slots
// and exportable peak slots bid for the energy, highest value first; a
// claim is granted only what it can take without dropping any later point
// of the stored-energy projection below the SoC floor, which reserves
// energy for higher-priced slots further ahead instead of draining the
// battery into the first acceptable slot. A forward walk then applies the
// grants subject to the live cost economics and the protective floor.
func passDispatch(d draft) draft {
	d = d.clone()
	const eps = 1e-9

	b := d.cfg.Battery
	eta := b.OneWayEfficiency()
	minStored := b.StoredKWhAtSOC(b.MinSOCPercent)
	dischCap := b.MaxDischargeKWhPerSlot(d.hours)

	exportable := d.exportableSlots()

	// Stored energy after each slot's charge, before any withdrawal.
	bal := make([]float64, len(d.slots))
	stored := d.initial.TotalStoredKWh
	for i := range d.slots {
		stored += d.slots[i].chargeKW * d.hours * eta
		bal[i] = stored
	}

	var claims []storedClaim
	for i := range d.slots {
		s := &d.slots[i]
		if !s.in.PriceKnown {
			continue
		}
		if d.runAt(i) != nil {
			net := s.adjustedNetLoadKWh(d.cfg) + s.waterKW*d.hours
			if net > eps {
				amount := net
				if amount > dischCap {
					amount = dischCap
				}
				claims = append(claims, storedClaim{
					idx:    i,
					amount: amount,
					value:  s.in.ImportPrice - d.cfg.BatteryUseMarginSEK,
				})
			}
		}
		if exportable[i] {
			amount := dischCap
			if gridCap := b.GridExportLimitKW * d.hours; amount > gridCap {
				amount = gridCap
			}
			if amount > eps {
				claims = append(claims, storedClaim{
					idx:    i,
					export: true,
					amount: amount,
					value:  s.in.ExportPrice - d.cfg.ExportProfitMarginSEK,
				})
			}
		}
	}
	sort.SliceStable(claims, func(a, b int) bool {
		if claims[a].value != claims[b].value {
			return claims[a].value > claims[b].value
		}
		if claims[a].idx != claims[b].idx {
			return claims[a].idx < claims[b].idx
		}
		return !claims[a].export && claims[b].export
	})

	dischargeGrant := make([]float64, len(d.slots))
	exportGrant := make([]float64, len(d.slots))
	for _, c := range claims {
		if c.value <= eps {
			continue
		}
		low := bal[c.idx]
		for t := c.idx + 1; t < len(bal); t++ {
			if bal[t] < low {
				low = bal[t]
			}
		}
		take := c.amount
		if room := dischCap - dischargeGrant[c.idx] - exportGrant[c.idx]; take > room {
			take = room
		}
		if avail := (low - minStored) * eta; take > avail {
			take = avail
		}
		if take <= eps {
			continue
		}
		if c.export {
			exportGrant[c.idx] += take
		} else {
			dischargeGrant[c.idx] += take
		}
		for t := c.idx; t < len(bal); t++ {
			bal[t] -= take / eta
		}
	}

	state := d.initial
	for i := range d.slots {
		s := &d.slots[i]
		price := s.in.ImportPrice

		state.Charge(b, s.chargeKW*d.hours, price)

		// Self-consumption: cover the slot's deficit from the battery
		// when stored energy plus wear undercuts the import price.
		if grant := dischargeGrant[i]; grant > eps {
			run := d.runAt(i)
			if run != nil && state.MarginalDischargeCost(b)+d.cfg.BatteryUseMarginSEK < price {
				out := grant
				if avail := (state.TotalStoredKWh - minStored) * eta; out > avail {
					out = avail
				}
				if out > eps {
					s.dischargeKW = out / d.hours
					state.Discharge(b, out)
					run.deliveredKWh += out / eta
				}
			}
		}

		// Export: only above the protective floor, and only when the
		// feed-in revenue clears the stored cost, the wear and the
		// export margin.
		if grant := exportGrant[i]; grant > eps {
			floorStored := d.protectiveFloorStored(i, dischargeGrant)
			avail := (state.TotalStoredKWh - floorStored) * eta
			if avail > eps && s.in.ExportPrice > state.AvgCostPerKWh/eta+b.WearCostPerKWh+d.cfg.ExportProfitMarginSEK {
				out := grant
				if out > avail {
					out = avail
				}
				if room := dischCap - s.dischargeKW*d.hours; out > room {
					out = room
				}
				if out > eps {
					s.exportKWh = out
					state.Discharge(b, out)
				}
			}
		}
	}
	return d
}

// runAt returns the deficit run containing slot i, or nil.
func (d *draft) runAt(i int) *deficitRun {
	for ri := range d.deficits {
		if i >= d.deficits[ri].startIdx && i <= d.deficits[ri].endIdx {
			return &d.deficits[ri]
		}
	}
	return nil
}

// exportableSlots marks the peak-window slots that pass the future-price
// guard: a slot is held back when a later peak slot pays more than this
// slot's feed-in price plus the guard buffer, since the same stored energy
// will earn more there.
func (d *draft) exportableSlots() []bool {
	inPeak := make([]bool, len(d.slots))
	for _, w := range d.peakWindows {
		for i := w.startIdx; i <= w.endIdx; i++ {
			if d.slots[i].in.PriceKnown {
				inPeak[i] = true
			}
		}
	}

	out := make([]bool, len(d.slots))
	maxFuture := 0.0
	for i := len(d.slots) - 1; i >= 0; i-- {
		if !inPeak[i] {
			continue
		}
		p := d.slots[i].in.ExportPrice
		if maxFuture <= p+d.cfg.FuturePriceGuardBufferSEK {
			out[i] = true
		}
		if p > maxFuture {
			maxFuture = p
		}
	}
	return out
}

// protectiveFloorStored returns the stored-energy floor below which slot i
// must not export. Gap-based: the SoC floor plus everything still granted
// to deficit slots that come later. Fixed: the configured floor.
func (d *draft) protectiveFloorStored(i int, dischargeGrant []float64) float64 {
	b := d.cfg.Battery
	if d.cfg.ProtectiveSOC == ProtectiveFixed {
		return b.StoredKWhAtSOC(d.cfg.FixedProtectiveSOC)
	}
	eta := b.OneWayEfficiency()
	reserved := 0.0
	for t := i + 1; t < len(dischargeGrant); t++ {
		reserved += dischargeGrant[t] / eta
	}
	return b.StoredKWhAtSOC(b.MinSOCPercent) + reserved
}
