package rollup

import (
	"strconv"
	"strings"
)

// ParseNumber coerces a raw cell to a float64, returning 0 for blank or
// non-numeric input. Missing data is never an error in the engine.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// SanitizeCurrency coerces a currency-formatted cell to a float64. The
// workbook uses Brazilian formatting ("R$ 1.234,56"): the currency marker is
// stripped, and when a comma decimal is present the dots are treated as
// thousands separators. Plain dot-decimal numbers pass through unchanged.
// Anything unparsable coerces to 0.
func SanitizeCurrency(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return ParseNumber(s)
}

// parsePositive coerces a raw cell to a float64 and substitutes 1 when the
// result is zero, negative or unparsable, so it is always safe to divide by.
func parsePositive(s string) float64 {
	v := ParseNumber(s)
	if v <= 0 {
		return 1
	}
	return v
}
