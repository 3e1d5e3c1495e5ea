package rollup

// LineDetail is the per-line trace of an aggregation pass. The sum of
// Contribution over all lines of a recipe equals that recipe's entry in the
// totals map exactly; no rounding happens inside the engine.
type LineDetail struct {
	Recipe       string  `json:"recipe"`
	Component    string  `json:"component"`
	Quantity     float64 `json:"quantity"`
	UnitValue    float64 `json:"unit_value"`
	Contribution float64 `json:"contribution"`
}

// AggregateLines computes per-recipe attribute totals from recipe lines and a
// per-unit value map. groupColumn names the column holding the recipe name
// (NOME_BASE for bases, NOME_BOLO for finals).
//
// A line referencing a component absent from the value map contributes 0 but
// is still emitted in the detail so callers can surface unknown ingredients;
// an unknown reference is never an error.
func AggregateLines(lines []Row, values map[string]float64, groupColumn string) (map[string]float64, []LineDetail) {
	totals := make(map[string]float64)
	detail := make([]LineDetail, 0, len(lines))

	for _, row := range lines {
		recipe := NormalizeName(row[groupColumn])
		if recipe == "" {
			continue
		}
		component := NormalizeName(row[ColComponent])
		quantity := ParseNumber(row[ColLineQty])
		unitValue := values[component]
		contribution := quantity * unitValue

		totals[recipe] += contribution
		detail = append(detail, LineDetail{
			Recipe:       recipe,
			Component:    component,
			Quantity:     quantity,
			UnitValue:    unitValue,
			Contribution: contribution,
		})
	}

	return totals, detail
}
