package planner

// passPriceWindows (Pass 1) classifies slots into cheap charge windows and
// peak export-candidate windows using price percentiles over the slots with
// known prices. Unknown-price slots never join a window.
func passPriceWindows(d draft) draft {
	d = d.clone()

	var known []float64
	for i := range d.slots {
		if d.slots[i].in.PriceKnown {
			known = append(known, d.slots[i].in.ImportPrice)
		}
	}
	if len(known) == 0 {
		return d
	}

	cheapThr := percentile(known, d.cfg.CheapPercentile)
	peakThr := percentile(known, d.cfg.PeakPercentile)

	cheap := d.groupWindows(func(price float64) bool { return price <= cheapThr }, cheapThr, true)
	peak := d.groupWindows(func(price float64) bool { return price >= peakThr }, peakThr, false)

	// Windows shorter than the configured minimum survive only when their
	// average price clears the absolute threshold.
	d.cheapWindows = d.cheapWindows[:0]
	for _, w := range cheap {
		if w.length() >= d.cfg.MinWindowSlots || w.avgPrice < d.cfg.AbsoluteCheapPrice {
			d.cheapWindows = append(d.cheapWindows, w)
		}
	}
	d.peakWindows = d.peakWindows[:0]
	for _, w := range peak {
		if w.length() >= d.cfg.MinWindowSlots || w.avgPrice > d.cfg.AbsolutePeakPrice {
			d.peakWindows = append(d.peakWindows, w)
		}
	}
	return d
}

// groupWindows groups contiguous slots that match the predicate. At the
// edges, a neighbouring slot whose price is within the smoothing tolerance
// of the threshold is admitted too, which keeps windows stable when
// neighbouring slots jitter around the cut-off.
//
// Cheap windows additionally break where the price steps by more than the
// tolerance: charge economics keys on the window average, and a 0.50 block
// must not be diluted into the flat 1.00 stretch next to it. Peak windows
// stay merged; export decisions are taken per slot.
func (d *draft) groupWindows(match func(float64) bool, threshold float64, cheap bool) []window {
	inWindow := make([]bool, len(d.slots))
	for i := range d.slots {
		if d.slots[i].in.PriceKnown && match(d.slots[i].in.ImportPrice) {
			inWindow[i] = true
		}
	}

	// Smoothing: admit edge neighbours within tolerance of the threshold.
	tol := d.cfg.PriceSmoothingPerKWh
	if tol > 0 {
		withinTol := func(price float64) bool {
			if cheap {
				return price <= threshold+tol
			}
			return price >= threshold-tol
		}
		for i := range d.slots {
			if inWindow[i] || !d.slots[i].in.PriceKnown {
				continue
			}
			prevIn := i > 0 && inWindow[i-1]
			nextIn := i+1 < len(d.slots) && inWindow[i+1]
			if (prevIn || nextIn) && withinTol(d.slots[i].in.ImportPrice) {
				inWindow[i] = true
			}
		}
	}

	var windows []window
	i := 0
	for i < len(d.slots) {
		if !inWindow[i] {
			i++
			continue
		}
		j := i
		sum := 0.0
		for j < len(d.slots) && inWindow[j] {
			if cheap && j > i {
				step := d.slots[j].in.ImportPrice - d.slots[j-1].in.ImportPrice
				if step > tol || step < -tol {
					break
				}
			}
			sum += d.slots[j].in.ImportPrice
			j++
		}
		windows = append(windows, window{
			startIdx: i,
			endIdx:   j - 1,
			avgPrice: sum / float64(j-i),
		})
		i = j
	}
	return windows
}

// passNetLoad (Pass 2) computes the hedged per-slot net load with no
// battery action and identifies the deficit runs that PV cannot cover.
func passNetLoad(d draft) draft {
	d = d.clone()
	d.deficits = d.deficits[:0]

	const eps = 1e-9
	i := 0
	for i < len(d.slots) {
		if d.slots[i].adjustedNetLoadKWh(d.cfg) <= eps {
			i++
			continue
		}
		j := i
		total := 0.0
		priceSum := 0.0
		priceCount := 0
		for j < len(d.slots) && d.slots[j].adjustedNetLoadKWh(d.cfg) > eps {
			total += d.slots[j].adjustedNetLoadKWh(d.cfg)
			if d.slots[j].in.PriceKnown {
				priceSum += d.slots[j].in.ImportPrice
				priceCount++
			}
			j++
		}
		run := deficitRun{
			startIdx:   i,
			endIdx:     j - 1,
			deficitKWh: total,
		}
		if priceCount > 0 {
			run.avgPrice = priceSum / float64(priceCount)
			run.priceKnown = true
		}
		d.deficits = append(d.deficits, run)
		i = j
	}
	return d
}
