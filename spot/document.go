// Package spot downloads and decodes ENTSO-E day-ahead publication
// documents and expands them into per-slot import prices for the planner.
package spot

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/devskill-org/home-mpc/planner"
)

// Document represents the root Publication_MarketDocument element of a
// day-ahead price publication.
type Document struct {
	XMLName            xml.Name     `xml:"Publication_MarketDocument"`
	MRID               string       `xml:"mRID"`
	RevisionNumber     int          `xml:"revisionNumber"`
	Type               string       `xml:"type"`
	CreatedDateTime    string       `xml:"createdDateTime"`
	PeriodTimeInterval TimeInterval `xml:"period.timeInterval"`
	TimeSeries         []TimeSeries `xml:"TimeSeries"`
}

// TimeSeries is one price curve within the document, typically one
// bidding-zone day.
type TimeSeries struct {
	MRID                 string `xml:"mRID"`
	BusinessType         string `xml:"businessType"`
	CurrencyUnitName     string `xml:"currency_Unit.name"`
	PriceMeasureUnitName string `xml:"price_Measure_Unit.name"`
	CurveType            string `xml:"curveType"`
	Period               Period `xml:"Period"`
}

// TimeInterval represents a start/end pair in the document.
type TimeInterval struct {
	Start time.Time `xml:"start"`
	End   time.Time `xml:"end"`
}

// UnmarshalXML parses the interval bounds, which the API emits in several
// timestamp shapes.
func (ti *TimeInterval) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var aux struct {
		Start string `xml:"start"`
		End   string `xml:"end"`
	}
	if err := d.DecodeElement(&aux, &start); err != nil {
		return err
	}

	var err error
	if ti.Start, err = parseTimestamp(aux.Start); err != nil {
		return fmt.Errorf("interval start: %w", err)
	}
	if ti.End, err = parseTimestamp(aux.End); err != nil {
		return fmt.Errorf("interval end: %w", err)
	}
	return nil
}

// parseTimestamp accepts the timestamp shapes observed in publication
// documents: full RFC 3339, and minute precision with Z or an offset.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04Z",
		"2006-01-02T15:04Z07:00",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Period carries the resolution and the price points of one time series.
type Period struct {
	TimeInterval TimeInterval  `xml:"timeInterval"`
	Resolution   time.Duration `xml:"resolution"`
	Points       []Point       `xml:"Point"`
}

// UnmarshalXML decodes the period and converts the ISO 8601 resolution
// into a time.Duration.
func (p *Period) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var aux struct {
		TimeInterval TimeInterval `xml:"timeInterval"`
		Resolution   string       `xml:"resolution"`
		Points       []Point      `xml:"Point"`
	}
	if err := d.DecodeElement(&aux, &start); err != nil {
		return err
	}

	p.TimeInterval = aux.TimeInterval
	p.Points = aux.Points

	var err error
	p.Resolution, err = parseISO8601Duration(aux.Resolution)
	if err != nil {
		return fmt.Errorf("period resolution: %w", err)
	}
	return nil
}

// parseISO8601Duration handles the duration forms the API actually uses:
// PT15M, PT30M, PT60M, PT1H and P1D.
func parseISO8601Duration(s string) (time.Duration, error) {
	if len(s) < 3 || s[0] != 'P' {
		return 0, fmt.Errorf("invalid ISO 8601 duration %q", s)
	}

	body := s[1:]
	inTime := false
	if body[0] == 'T' {
		inTime = true
		body = body[1:]
	}

	var total time.Duration
	num := ""
	for _, c := range body {
		switch {
		case c >= '0' && c <= '9':
			num += string(c)
			continue
		case c == 'T':
			inTime = true
			continue
		}
		if num == "" {
			return 0, fmt.Errorf("invalid ISO 8601 duration %q", s)
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return 0, fmt.Errorf("invalid ISO 8601 duration %q: %w", s, err)
		}
		num = ""
		switch c {
		case 'D':
			total += time.Duration(n) * 24 * time.Hour
		case 'H':
			total += time.Duration(n) * time.Hour
		case 'M':
			if inTime {
				total += time.Duration(n) * time.Minute
			} else {
				return 0, fmt.Errorf("month durations not supported: %q", s)
			}
		case 'S':
			total += time.Duration(n) * time.Second
		default:
			return 0, fmt.Errorf("unknown duration unit %q in %q", c, s)
		}
	}
	if num != "" {
		return 0, fmt.Errorf("trailing number in duration %q", s)
	}
	return total, nil
}

// Point is one price observation. Positions are 1-based; with curve type
// A03 a position is omitted when its price repeats the previous one.
type Point struct {
	Position    int     `xml:"position"`
	PriceAmount float64 `xml:"price.amount"`
}

// Decode parses a publication document from r.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding publication document: %w", err)
	}
	return &doc, nil
}

// denseValues materialises one price per position, filling A03 gaps with
// the last explicit point. The trailing gap up to the period end is filled
// the same way.
func (p *Period) denseValues() []float64 {
	if p.Resolution <= 0 {
		return nil
	}
	n := int(p.TimeInterval.End.Sub(p.TimeInterval.Start) / p.Resolution)
	if n <= 0 {
		return nil
	}

	values := make([]float64, n)
	last := 0.0
	next := 0 // next position index to fill, 0-based
	for _, pt := range p.Points {
		idx := pt.Position - 1
		if idx < 0 || idx >= n {
			continue
		}
		for ; next < idx; next++ {
			values[next] = last
		}
		values[idx] = pt.PriceAmount
		last = pt.PriceAmount
		next = idx + 1
	}
	for ; next < n; next++ {
		values[next] = last
	}
	return values
}

// RawPrices expands every time series into a per-slot series of raw
// document prices (EUR/MWh as published). Source intervals coarser than
// slotLen fan out over all slots they cover; an hourly curve yields four
// identical 15-minute slots.
func (d *Document) RawPrices(slotLen time.Duration) planner.Series {
	out := planner.Series{}
	for i := range d.TimeSeries {
		p := &d.TimeSeries[i].Period
		values := p.denseValues()
		for idx, v := range values {
			start := p.TimeInterval.Start.Add(time.Duration(idx) * p.Resolution)
			end := start.Add(p.Resolution)
			for t := start; t.Before(end); t = t.Add(slotLen) {
				out.Set(t, v)
			}
		}
	}
	return out
}

// PriceAt returns the raw document price covering t, searching every time
// series. Used for spot-cost bookkeeping on observations.
func (d *Document) PriceAt(t time.Time) (float64, bool) {
	for i := range d.TimeSeries {
		p := &d.TimeSeries[i].Period
		if t.Before(p.TimeInterval.Start) || !t.Before(p.TimeInterval.End) {
			continue
		}
		values := p.denseValues()
		idx := int(t.Sub(p.TimeInterval.Start) / p.Resolution)
		if idx >= 0 && idx < len(values) {
			return values[idx], true
		}
	}
	return 0, false
}

// Merge combines two documents by concatenating their time series. Used
// when today's and tomorrow's publications are fetched separately.
func Merge(first, second *Document) *Document {
	if first == nil {
		return second
	}
	if second == nil {
		return first
	}

	merged := *first
	merged.TimeSeries = append(append([]TimeSeries{}, first.TimeSeries...), second.TimeSeries...)
	if second.PeriodTimeInterval.End.After(merged.PeriodTimeInterval.End) {
		merged.PeriodTimeInterval.End = second.PeriodTimeInterval.End
	}
	return &merged
}
