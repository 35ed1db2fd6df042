package spot

import (
	"time"

	"github.com/devskill-org/home-mpc/planner"
)

// Tariff converts raw day-ahead prices (EUR/MWh as published) into the
// all-in prices the household settles at, in SEK/kWh.
type Tariff struct {
	EURToSEK        float64 `json:"eur_to_sek"`
	EnergyTaxSEKKWh float64 `json:"energy_tax_sek_kwh"`
	GridFeeSEKKWh   float64 `json:"grid_fee_sek_kwh"`
	VATPercent      float64 `json:"vat_percent"`
}

// DefaultTariff returns a typical Swedish residential tariff. The
// exchange rate is a placeholder the operator is expected to override.
func DefaultTariff() Tariff {
	return Tariff{
		EURToSEK:        11.3,
		EnergyTaxSEKKWh: 0.439,
		GridFeeSEKKWh:   0.25,
		VATPercent:      25,
	}
}

// ImportSEKPerKWh is the full import price: spot converted to SEK/kWh,
// plus energy tax and grid transfer fee, with VAT on the whole sum.
func (tf Tariff) ImportSEKPerKWh(eurPerMWh float64) float64 {
	spotSEK := eurPerMWh / 1000.0 * tf.EURToSEK
	return (spotSEK + tf.EnergyTaxSEKKWh + tf.GridFeeSEKKWh) * (1 + tf.VATPercent/100)
}

// ExportSEKPerKWh is the feed-in settlement price. Export settles at raw
// spot; tax, grid fee and VAT do not apply.
func (tf Tariff) ExportSEKPerKWh(eurPerMWh float64) float64 {
	return eurPerMWh / 1000.0 * tf.EURToSEK
}

// ImportPrices expands the document into a per-slot import price series
// in SEK/kWh. Slots the document does not cover are simply absent, which
// the planner treats as price-unknown.
func (tf Tariff) ImportPrices(doc *Document, slotLen time.Duration) planner.Series {
	raw := doc.RawPrices(slotLen)
	out := make(planner.Series, len(raw))
	for k, v := range raw {
		out[k] = tf.ImportSEKPerKWh(v)
	}
	return out
}

// ExportPrices expands the document into the per-slot feed-in settlement
// series in SEK/kWh.
func (tf Tariff) ExportPrices(doc *Document, slotLen time.Duration) planner.Series {
	raw := doc.RawPrices(slotLen)
	out := make(planner.Series, len(raw))
	for k, v := range raw {
		out[k] = tf.ExportSEKPerKWh(v)
	}
	return out
}
