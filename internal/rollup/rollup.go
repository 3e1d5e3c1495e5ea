// Package rollup implements the bill-of-materials costing and nutrition
// engine for the bakery catalog. It rolls raw per-package ingredient values
// up through intermediate recipes (bases) into final products, adjusts for
// production yield, and reconciles the result against market prices.
//
// The package is pure: it performs no I/O, keeps no state between runs, and
// every exported function is deterministic over its inputs. The dependency
// graph is fixed at two tiers (ingredients -> bases -> finals); bases never
// reference other bases.
package rollup

import (
	"fmt"
	"strings"
)

// Row is one worksheet record: column name -> raw cell value. Column names
// are upper-cased and trimmed by the source layer before reaching the engine.
type Row map[string]string

// Worksheet column names as they appear in the bakery's workbook.
const (
	ColItemName    = "NOME_ITEM"
	ColPackageUnit = "UNIDADE_PACOTE"
	ColPackageQty  = "QUANT_PACOTE"
	ColPackageCost = "VALOR_PACOTE"
	ColBaseName    = "NOME_BASE"
	ColFinalName   = "NOME_BOLO"
	ColComponent   = "NOME_INGREDIENTE"
	ColLineQty     = "QUANT_RECEITA"
	ColYield       = "RENDIMENTO_FINAL_UNIDADES"
)

// Attribute describes one numeric column of the master ingredient table that
// can be rolled up through the recipe tiers. Cost is just one attribute among
// potentially several nutrient attributes.
type Attribute struct {
	// Name keys the attribute in results (e.g. "cost", "calorias_kcal").
	Name string
	// Column is the source column in the ingredient table.
	Column string
	// PerPackage marks values expressed per whole package; they are divided
	// by QUANT_PACOTE to obtain a per-base-unit value. Nutrient columns are
	// already per base unit and are used as-is.
	PerPackage bool
	// Currency marks values that may carry currency formatting
	// (e.g. "R$ 1.234,56") which must be stripped before coercion.
	Currency bool
}

// CostAttribute is the package-price attribute every run rolls up.
var CostAttribute = Attribute{
	Name:       "cost",
	Column:     ColPackageCost,
	PerPackage: true,
	Currency:   true,
}

// NutrientAttribute builds the attribute descriptor for a per-base-unit
// nutrient column.
func NutrientAttribute(column string) Attribute {
	return Attribute{
		Name:   strings.ToLower(strings.TrimSpace(column)),
		Column: strings.ToUpper(strings.TrimSpace(column)),
	}
}

// NormalizeName canonicalizes a component name. Component identity across
// the whole engine is the trimmed, case-folded name.
func NormalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// StageError reports a fatal pipeline failure with enough structure for the
// caller to render an operator-facing message. Tolerable noise (blank cells,
// unknown component references) never produces a StageError; only a table
// that is structurally unusable does.
type StageError struct {
	Stage string // pipeline stage, e.g. "normalize", "aggregate"
	Table string // logical table name, e.g. "ingredients"
	Msg   string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("rollup %s: table %s: %s", e.Stage, e.Table, e.Msg)
}
