// Package types holds the wire shapes returned by the MCP tools. Rounding
// happens here, at the display boundary; the engine itself never rounds.
package types

import (
	"math"
	"sort"

	"github.com/padoca-app/bakery-costing-mcp-server/internal/rollup"
)

// ProductSummary is one row of the unified catalog table.
type ProductSummary struct {
	Name       string             `json:"name"`
	Kind       string             `json:"kind"`
	Cost       float64            `json:"cost"`
	Price      float64            `json:"price"`
	Profit     float64            `json:"profit"`
	MarginPct  float64            `json:"margin_pct"`
	Multiplier float64            `json:"multiplier"`
	MarginBand string             `json:"margin_band"`
	Nutrients  map[string]float64 `json:"nutrients,omitempty"`
}

// RecipeLine is one line of a recipe's composition, with the unit value that
// was used and the contribution it produced.
type RecipeLine struct {
	Component    string  `json:"component"`
	Kind         string  `json:"kind"` // "base" or "ingredient"
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit,omitempty"`
	UnitCost     float64 `json:"unit_cost"`
	Contribution float64 `json:"contribution"`
}

// BaseComposition explains one base used by a product, traced down to its
// master ingredients.
type BaseComposition struct {
	Name        string       `json:"name"`
	Yield       float64      `json:"yield"`
	BatchCost   float64      `json:"batch_cost"`
	PerUnitCost float64      `json:"per_unit_cost"`
	Lines       []RecipeLine `json:"lines"`
}

// ProductBreakdown is the full drill-down for one product: its summary row,
// its direct recipe lines, and the composition of every base it uses.
type ProductBreakdown struct {
	Product ProductSummary    `json:"product"`
	Lines   []RecipeLine      `json:"lines"`
	Bases   []BaseComposition `json:"bases,omitempty"`
}

// IngredientCost is one master ingredient's normalized unit cost.
type IngredientCost struct {
	Name     string  `json:"name"`
	Unit     string  `json:"unit"`
	UnitCost float64 `json:"unit_cost"`
}

// FromProduct converts an engine product row into its wire shape. Money
// fields are rounded to centavos; the margin and multiplier keep more
// precision for display.
func FromProduct(p rollup.Product) ProductSummary {
	summary := ProductSummary{
		Name:       p.Name,
		Kind:       string(p.Kind),
		Cost:       round(p.Cost, 2),
		Price:      round(p.Price, 2),
		Profit:     round(p.Profit, 2),
		MarginPct:  round(p.MarginPct, 1),
		Multiplier: round(p.Multiplier, 2),
		MarginBand: p.MarginBand,
	}
	if len(p.Nutrients) > 0 {
		summary.Nutrients = make(map[string]float64, len(p.Nutrients))
		for name, v := range p.Nutrients {
			summary.Nutrients[name] = round(v, 2)
		}
	}
	return summary
}

// BuildBreakdown assembles the drill-down for one product from a rollup
// result. The second return value is false when the product does not exist.
func BuildBreakdown(res *rollup.Result, name string) (*ProductBreakdown, bool) {
	name = rollup.NormalizeName(name)

	var product *rollup.Product
	for i := range res.Products {
		if res.Products[i].Name == name {
			product = &res.Products[i]
			break
		}
	}
	if product == nil {
		return nil, false
	}

	breakdown := &ProductBreakdown{Product: FromProduct(*product)}

	costDetail := res.Details[rollup.CostAttribute.Name]
	var lines []rollup.LineDetail
	if product.Kind == rollup.KindFinal {
		lines = costDetail.FinalLines
	} else {
		lines = costDetail.BaseLines
	}

	var basesUsed []string
	for _, d := range lines {
		if d.Recipe != name {
			continue
		}
		line := RecipeLine{
			Component:    d.Component,
			Kind:         "ingredient",
			Quantity:     d.Quantity,
			Unit:         res.Units[d.Component],
			UnitCost:     round(d.UnitValue, 4),
			Contribution: round(d.Contribution, 4),
		}
		if _, isBase := res.Yields[d.Component]; isBase && product.Kind == rollup.KindFinal {
			line.Kind = "base"
			basesUsed = append(basesUsed, d.Component)
		}
		breakdown.Lines = append(breakdown.Lines, line)
	}

	for _, base := range basesUsed {
		breakdown.Bases = append(breakdown.Bases, buildBaseComposition(res, base))
	}
	// A base sold as a product is its own composition.
	if product.Kind == rollup.KindBase {
		breakdown.Bases = append(breakdown.Bases, buildBaseComposition(res, name))
		breakdown.Lines = nil
	}

	return breakdown, true
}

func buildBaseComposition(res *rollup.Result, base string) BaseComposition {
	comp := BaseComposition{Name: base, Yield: res.Yields[base]}
	if comp.Yield <= 0 {
		comp.Yield = 1
	}

	var batch float64
	for _, d := range res.Details[rollup.CostAttribute.Name].BaseLines {
		if d.Recipe != base {
			continue
		}
		batch += d.Contribution
		comp.Lines = append(comp.Lines, RecipeLine{
			Component:    d.Component,
			Kind:         "ingredient",
			Quantity:     d.Quantity,
			Unit:         res.Units[d.Component],
			UnitCost:     round(d.UnitValue, 4),
			Contribution: round(d.Contribution, 4),
		})
	}

	comp.BatchCost = round(batch, 2)
	comp.PerUnitCost = round(batch/comp.Yield, 4)
	return comp
}

// IngredientCosts extracts the normalized per-unit cost table from a rollup
// result, sorted by name. Bases are excluded; this is the master ingredient
// view.
func IngredientCosts(res *rollup.Result) []IngredientCost {
	costs := make([]IngredientCost, 0, len(res.UnitCosts))
	for name, cost := range res.UnitCosts {
		costs = append(costs, IngredientCost{
			Name:     name,
			Unit:     res.Units[name],
			UnitCost: round(cost, 4),
		})
	}
	sort.Slice(costs, func(i, j int) bool { return costs[i].Name < costs[j].Name })
	return costs
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	r := math.Round(v*scale) / scale
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}
