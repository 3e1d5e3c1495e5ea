package rollup

// NormalizeAttribute converts the master ingredient table into a per-base-unit
// value map for one attribute. For per-package attributes (cost) the raw value
// is divided by the package quantity, with the quantity coerced to 1 when zero
// or unparsable. Per-base-unit attributes (nutrients) are coerced as-is.
//
// The returned unit map carries each ingredient's declared base unit
// (G/ML/UN) for display and unit-mismatch detection downstream; no unit
// conversion happens anywhere in the engine.
func NormalizeAttribute(ingredients []Row, attr Attribute) (map[string]float64, map[string]string) {
	values := make(map[string]float64, len(ingredients))
	units := make(map[string]string, len(ingredients))

	for _, row := range ingredients {
		name := NormalizeName(row[ColItemName])
		if name == "" {
			continue
		}

		var v float64
		if attr.Currency {
			v = SanitizeCurrency(row[attr.Column])
		} else {
			v = ParseNumber(row[attr.Column])
		}
		if attr.PerPackage {
			v /= parsePositive(row[ColPackageQty])
		}

		values[name] = v
		units[name] = NormalizeName(row[ColPackageUnit])
	}

	return values, units
}
