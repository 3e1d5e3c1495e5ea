package rollup

// ExtractYields reads each base's declared production yield from its recipe
// lines (the yield column repeats on every line of a base; the first
// occurrence wins). Yields are coerced to 1 when zero, negative or
// unparsable, so division by yield is always safe.
func ExtractYields(baseLines []Row) map[string]float64 {
	yields := make(map[string]float64)
	for _, row := range baseLines {
		base := NormalizeName(row[ColBaseName])
		if base == "" {
			continue
		}
		if _, seen := yields[base]; seen {
			continue
		}
		yields[base] = parsePositive(row[ColYield])
	}
	return yields
}

// NormalizeYield rescales per-batch recipe totals into per-produced-unit
// values. A base batch produces multiple discrete units (a batter may yield
// three cake layers); downstream consumers must see the attribute value per
// produced unit, not per batch. Recipes missing from the yield map divide
// by 1.
func NormalizeYield(totals, yields map[string]float64) map[string]float64 {
	perUnit := make(map[string]float64, len(totals))
	for recipe, total := range totals {
		y, ok := yields[recipe]
		if !ok || y <= 0 {
			y = 1
		}
		perUnit[recipe] = total / y
	}
	return perUnit
}

// CompileValues merges the ingredient-level and yield-normalized base-level
// value maps into one lookup, so final-product aggregation can reference a
// raw ingredient or a base interchangeably. On a name collision the base
// value silently overrides the ingredient value; the workbook does not guard
// against shared names and this preserves its precedence.
func CompileValues(ingredientValues, baseValues map[string]float64) map[string]float64 {
	unified := make(map[string]float64, len(ingredientValues)+len(baseValues))
	for name, v := range ingredientValues {
		unified[name] = v
	}
	for name, v := range baseValues {
		unified[name] = v
	}
	return unified
}
