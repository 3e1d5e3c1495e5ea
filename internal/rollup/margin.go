package rollup

import "math"

// Kind labels a priceable product line.
type Kind string

const (
	// KindFinal is a sellable product composed of ingredients and/or bases.
	KindFinal Kind = "final"
	// KindBase is an intermediate recipe that is itself priceable as a
	// simpler product line (a plain cake sold as-is).
	KindBase Kind = "base"
)

// Margin classification bands. Part of the observable contract, not a
// display nicety.
const (
	BandExcellent  = "excellent"
	BandReasonable = "reasonable"
	BandLow        = "low"
)

// Product is one row of the unified catalog table produced by a run.
type Product struct {
	Name       string             `json:"name"`
	Kind       Kind               `json:"kind"`
	Cost       float64            `json:"cost"`
	Price      float64            `json:"price"`
	Profit     float64            `json:"profit"`
	MarginPct  float64            `json:"margin_pct"`
	Multiplier float64            `json:"multiplier"`
	MarginBand string             `json:"margin_band"`
	Nutrients  map[string]float64 `json:"nutrients,omitempty"`
}

// PriceEntry is one raw row of the market price table. The price column is
// positional in the workbook, so the source layer hands over the raw cell.
type PriceEntry struct {
	Product string
	Value   string
}

// ParsePrices builds the market price lookup from raw price rows. Prices are
// currency cells and go through the same sanitizer as package costs.
func ParsePrices(entries []PriceEntry) map[string]float64 {
	prices := make(map[string]float64, len(entries))
	for _, e := range entries {
		name := NormalizeName(e.Product)
		if name == "" {
			continue
		}
		prices[name] = SanitizeCurrency(e.Value)
	}
	return prices
}

// ComputeMargins joins products against market prices by name (left join:
// missing prices are 0) and fills profit, margin and multiplier. Divisions
// are guarded before they happen and every output is scrubbed finite; a run
// never emits NaN or Inf regardless of input.
func ComputeMargins(products []Product, prices map[string]float64) {
	for i := range products {
		p := &products[i]
		p.Price = finite(prices[p.Name])
		p.Cost = finite(p.Cost)

		if p.Price > 0 {
			p.Profit = p.Price - p.Cost
			p.MarginPct = p.Profit / p.Price * 100
		} else {
			p.Profit = 0
			p.MarginPct = 0
		}
		if p.Cost > 0 {
			p.Multiplier = p.Price / p.Cost
		} else {
			p.Multiplier = 0
		}

		p.Profit = finite(p.Profit)
		p.MarginPct = finite(p.MarginPct)
		p.Multiplier = finite(p.Multiplier)
		p.MarginBand = ClassifyMargin(p.MarginPct)
	}
}

// ClassifyMargin maps a margin percentage to its band.
func ClassifyMargin(marginPct float64) string {
	switch {
	case marginPct >= 40:
		return BandExcellent
	case marginPct >= 20:
		return BandReasonable
	default:
		return BandLow
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
