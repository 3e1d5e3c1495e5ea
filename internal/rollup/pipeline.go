package rollup

import "sort"

// Logical table names used in StageError reporting.
const (
	TableIngredients = "ingredients"
	TableBaseLines   = "base_lines"
	TableFinalLines  = "final_lines"
	TablePrices      = "market_prices"
)

// Input carries the raw worksheet tables for one run. NutrientColumns lists
// candidate nutrient columns to roll up; columns absent from the ingredient
// table are skipped silently (feature detection, not an error).
type Input struct {
	Ingredients     []Row
	BaseLines       []Row
	FinalLines      []Row
	Prices          []PriceEntry
	NutrientColumns []string
}

// Detail holds the line-level traces of one attribute's rollup.
type Detail struct {
	BaseLines  []LineDetail `json:"base_lines"`
	FinalLines []LineDetail `json:"final_lines"`
}

// Result is the complete, immutable output of one run.
type Result struct {
	// Products is the unified catalog table (finals and bases), sorted by
	// cost descending, then name.
	Products []Product
	// Details maps attribute name to its line-level rollup trace.
	Details map[string]Detail
	// Units maps ingredient name to its declared base unit (G/ML/UN).
	Units map[string]string
	// UnitCosts maps ingredient name to its normalized per-base-unit cost.
	UnitCosts map[string]float64
	// Yields maps base name to its declared production yield.
	Yields map[string]float64
	// Attributes lists the attributes actually rolled up, cost first.
	Attributes []string
}

// Run executes the full multi-attribute rollup: for each attribute it
// normalizes ingredient values, aggregates base recipes, rescales by yield,
// compiles the unified lookup and aggregates final recipes against it, then
// merges the per-attribute product values into one table and joins market
// prices. The whole pipeline is stateless; running it twice on the same
// input yields identical output.
func Run(in Input) (*Result, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	attrs := []Attribute{CostAttribute}
	for _, col := range in.NutrientColumns {
		a := NutrientAttribute(col)
		if a.Column != "" && columnPresent(in.Ingredients, a.Column) {
			attrs = append(attrs, a)
		}
	}

	yields := ExtractYields(in.BaseLines)

	res := &Result{
		Details: make(map[string]Detail, len(attrs)),
		Yields:  yields,
	}
	index := make(map[string]*Product)

	for _, attr := range attrs {
		values, units := NormalizeAttribute(in.Ingredients, attr)
		if attr.Name == CostAttribute.Name {
			res.Units = units
			res.UnitCosts = values
		}

		baseTotals, baseDetail := AggregateLines(in.BaseLines, values, ColBaseName)
		basePerUnit := NormalizeYield(baseTotals, yields)
		unified := CompileValues(values, basePerUnit)
		finalTotals, finalDetail := AggregateLines(in.FinalLines, unified, ColFinalName)

		res.Details[attr.Name] = Detail{BaseLines: baseDetail, FinalLines: finalDetail}
		res.Attributes = append(res.Attributes, attr.Name)

		mergeValues(index, finalTotals, KindFinal, attr)
		mergeValues(index, basePerUnit, KindBase, attr)
	}

	res.Products = make([]Product, 0, len(index))
	for _, p := range index {
		res.Products = append(res.Products, *p)
	}
	ComputeMargins(res.Products, ParsePrices(in.Prices))

	sort.Slice(res.Products, func(i, j int) bool {
		if res.Products[i].Cost != res.Products[j].Cost {
			return res.Products[i].Cost > res.Products[j].Cost
		}
		return res.Products[i].Name < res.Products[j].Name
	})

	return res, nil
}

// mergeValues folds one attribute's per-product values into the product
// index. The merge is an outer join: a product missing a value for some
// attribute still appears, with that attribute absent (nutrients) or zero
// (cost).
func mergeValues(index map[string]*Product, values map[string]float64, kind Kind, attr Attribute) {
	for name, v := range values {
		p, ok := index[name]
		if !ok {
			p = &Product{Name: name, Kind: kind, Nutrients: make(map[string]float64)}
			index[name] = p
		}
		if attr.Name == CostAttribute.Name {
			p.Cost = v
		} else {
			p.Nutrients[attr.Name] = v
		}
	}
}

func validate(in Input) error {
	if len(in.Ingredients) == 0 {
		return &StageError{Stage: "normalize", Table: TableIngredients, Msg: "table is empty"}
	}
	if !columnPresent(in.Ingredients, ColItemName) {
		return &StageError{Stage: "normalize", Table: TableIngredients, Msg: "missing column " + ColItemName}
	}
	if len(in.BaseLines) > 0 {
		if !columnPresent(in.BaseLines, ColBaseName) {
			return &StageError{Stage: "aggregate", Table: TableBaseLines, Msg: "missing column " + ColBaseName}
		}
		if !columnPresent(in.BaseLines, ColComponent) {
			return &StageError{Stage: "aggregate", Table: TableBaseLines, Msg: "missing column " + ColComponent}
		}
	}
	if len(in.FinalLines) > 0 {
		if !columnPresent(in.FinalLines, ColFinalName) {
			return &StageError{Stage: "aggregate", Table: TableFinalLines, Msg: "missing column " + ColFinalName}
		}
		if !columnPresent(in.FinalLines, ColComponent) {
			return &StageError{Stage: "aggregate", Table: TableFinalLines, Msg: "missing column " + ColComponent}
		}
	}
	return nil
}

// columnPresent reports whether any row of the table carries the column.
// Sparse rows are normal in spreadsheet exports, so the whole table is
// scanned rather than just the first row.
func columnPresent(rows []Row, column string) bool {
	for _, row := range rows {
		if _, ok := row[column]; ok {
			return true
		}
	}
	return false
}
