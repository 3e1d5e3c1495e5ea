package types

import (
	"testing"

	"github.com/padoca-app/bakery-costing-mcp-server/internal/rollup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtureResult runs the engine over a small two-tier catalog so breakdown
// assembly is tested against real rollup output.
func fixtureResult(t *testing.T) *rollup.Result {
	t.Helper()
	res, err := rollup.Run(rollup.Input{
		Ingredients: []rollup.Row{
			{rollup.ColItemName: "FARINHA", rollup.ColPackageUnit: "G", rollup.ColPackageQty: "1000", rollup.ColPackageCost: "10,00"},
			{rollup.ColItemName: "ACUCAR", rollup.ColPackageUnit: "G", rollup.ColPackageQty: "1000", rollup.ColPackageCost: "20,00"},
		},
		BaseLines: []rollup.Row{
			{rollup.ColBaseName: "MASSA", rollup.ColComponent: "FARINHA", rollup.ColLineQty: "500", rollup.ColYield: "2"},
		},
		FinalLines: []rollup.Row{
			{rollup.ColFinalName: "BOLO", rollup.ColComponent: "MASSA", rollup.ColLineQty: "1"},
			{rollup.ColFinalName: "BOLO", rollup.ColComponent: "ACUCAR", rollup.ColLineQty: "100"},
		},
		Prices: []rollup.PriceEntry{{Product: "BOLO", Value: "9,00"}},
	})
	require.NoError(t, err)
	return res
}

func TestFromProduct(t *testing.T) {
	p := rollup.Product{
		Name:       "BOLO",
		Kind:       rollup.KindFinal,
		Cost:       4.50129,
		Price:      9.0,
		Profit:     4.49871,
		MarginPct:  49.9857,
		Multiplier: 1.99971,
		MarginBand: rollup.BandExcellent,
		Nutrients:  map[string]float64{"calorias_kcal": 1274.996},
	}

	s := FromProduct(p)

	assert.Equal(t, "BOLO", s.Name)
	assert.Equal(t, "final", s.Kind)
	assert.Equal(t, 4.5, s.Cost, "money rounds to centavos at the boundary")
	assert.Equal(t, 50.0, s.MarginPct)
	assert.Equal(t, 2.0, s.Multiplier)
	assert.Equal(t, 1275.0, s.Nutrients["calorias_kcal"])
}

func TestFromProduct_EmptyNutrientsOmitted(t *testing.T) {
	s := FromProduct(rollup.Product{Name: "X", Nutrients: map[string]float64{}})
	assert.Nil(t, s.Nutrients)
}

func TestBuildBreakdown_FinalProduct(t *testing.T) {
	res := fixtureResult(t)

	b, ok := BuildBreakdown(res, "bolo")
	require.True(t, ok, "lookup is case-insensitive")

	assert.Equal(t, "BOLO", b.Product.Name)
	require.Len(t, b.Lines, 2)

	var massaLine, acucarLine *RecipeLine
	for i := range b.Lines {
		switch b.Lines[i].Component {
		case "MASSA":
			massaLine = &b.Lines[i]
		case "ACUCAR":
			acucarLine = &b.Lines[i]
		}
	}
	require.NotNil(t, massaLine)
	require.NotNil(t, acucarLine)

	assert.Equal(t, "base", massaLine.Kind)
	assert.Equal(t, 2.5, massaLine.UnitCost)
	assert.Equal(t, "ingredient", acucarLine.Kind)
	assert.Equal(t, "G", acucarLine.Unit)

	require.Len(t, b.Bases, 1, "each base used is traced to its ingredients")
	massa := b.Bases[0]
	assert.Equal(t, "MASSA", massa.Name)
	assert.Equal(t, 2.0, massa.Yield)
	assert.Equal(t, 5.0, massa.BatchCost)
	assert.Equal(t, 2.5, massa.PerUnitCost)
	require.Len(t, massa.Lines, 1)
	assert.Equal(t, "FARINHA", massa.Lines[0].Component)
}

func TestBuildBreakdown_BaseProduct(t *testing.T) {
	res := fixtureResult(t)

	b, ok := BuildBreakdown(res, "MASSA")
	require.True(t, ok)

	assert.Equal(t, "base", b.Product.Kind)
	assert.Empty(t, b.Lines, "a base's composition lives in Bases")
	require.Len(t, b.Bases, 1)
	assert.Equal(t, "MASSA", b.Bases[0].Name)
	assert.Equal(t, 2.5, b.Bases[0].PerUnitCost)
}

func TestBuildBreakdown_UnknownProduct(t *testing.T) {
	res := fixtureResult(t)

	_, ok := BuildBreakdown(res, "BOLO INEXISTENTE")
	assert.False(t, ok)
}

func TestIngredientCosts(t *testing.T) {
	res := fixtureResult(t)

	costs := IngredientCosts(res)
	require.Len(t, costs, 2)
	assert.Equal(t, "ACUCAR", costs[0].Name, "sorted by name")
	assert.Equal(t, 0.02, costs[0].UnitCost)
	assert.Equal(t, "FARINHA", costs[1].Name)
	assert.Equal(t, 0.01, costs[1].UnitCost)
	assert.Equal(t, "G", costs[1].Unit)
}
