package catalog

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/padoca-app/bakery-costing-mcp-server/internal/config"
	"github.com/padoca-app/bakery-costing-mcp-server/internal/rollup"
	"github.com/padoca-app/bakery-costing-mcp-server/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshotter struct {
	ensures int
	forces  int
	err     error
}

func (f *fakeSnapshotter) EnsureSnapshot(ctx context.Context) error {
	f.ensures++
	return f.err
}

func (f *fakeSnapshotter) ForceRefresh(ctx context.Context) error {
	f.forces++
	return f.err
}

func testConfig() *config.Config {
	return &config.Config{
		RefreshIntervalMinutes: 10,
		NutrientColumns:        config.DefaultNutrientColumns,
	}
}

func newTestService(t *testing.T) (*Service, *source.Mock, *fakeSnapshotter) {
	t.Helper()
	logger := config.NewTestLogger(io.Discard, "debug")
	mock := source.NewMock(logger)
	snaps := &fakeSnapshotter{}
	return New(mock, snaps, testConfig(), logger), mock, snaps
}

func TestService_Rollup(t *testing.T) {
	svc, _, snaps := newTestService(t)
	ctx := context.Background()

	res, err := svc.Rollup(ctx)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 1, snaps.ensures)

	// The mock workbook: FARINHA 0.01/g, OVO 0.80/un; MASSA BRANCA
	// (500g farinha + 4 ovos) / yield 2 = 4.10; BOLO FESTA = 4.10 +
	// 100g acucar at 0.02 = 6.10, priced at 18.00.
	var bolo, massa *rollup.Product
	for i := range res.Products {
		switch res.Products[i].Name {
		case "BOLO FESTA":
			bolo = &res.Products[i]
		case "MASSA BRANCA":
			massa = &res.Products[i]
		}
	}
	require.NotNil(t, bolo)
	require.NotNil(t, massa)

	assert.Equal(t, rollup.KindFinal, bolo.Kind)
	assert.InDelta(t, 6.10, bolo.Cost, 1e-9)
	assert.InDelta(t, 18.0, bolo.Price, 1e-9)
	assert.Equal(t, rollup.BandExcellent, bolo.MarginBand)

	assert.Equal(t, rollup.KindBase, massa.Kind)
	assert.InDelta(t, 4.10, massa.Cost, 1e-9)

	assert.Contains(t, res.Attributes, "cost")
	assert.Contains(t, res.Attributes, "calorias_kcal")
}

func TestService_Rollup_CachesResult(t *testing.T) {
	svc, _, snaps := newTestService(t)
	ctx := context.Background()

	first, err := svc.Rollup(ctx)
	require.NoError(t, err)

	second, err := svc.Rollup(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second, "second call within the TTL must serve the memoized result")
	assert.Equal(t, 1, snaps.ensures, "cached calls never touch the snapshotter")
}

func TestService_ForceRefresh(t *testing.T) {
	svc, _, snaps := newTestService(t)
	ctx := context.Background()

	first, err := svc.Rollup(ctx)
	require.NoError(t, err)

	refreshed, err := svc.ForceRefresh(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, snaps.forces)
	assert.NotSame(t, first, refreshed, "force refresh recomputes")
	assert.Equal(t, first, refreshed, "identical input yields an identical result")
}

func TestService_Rollup_MissingRequiredTableFails(t *testing.T) {
	svc, mock, _ := newTestService(t)
	mock.RemoveTable(source.TabIngredients)

	_, err := svc.Rollup(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrTableNotFound)
	assert.Contains(t, err.Error(), source.TabIngredients)
}

func TestService_Rollup_MissingPriceTableTolerated(t *testing.T) {
	svc, mock, _ := newTestService(t)
	mock.RemoveTable(source.TabPrices)

	res, err := svc.Rollup(context.Background())
	require.NoError(t, err)

	for _, p := range res.Products {
		assert.Equal(t, 0.0, p.Price, "product %s", p.Name)
		assert.Equal(t, 0.0, p.Multiplier, "product %s", p.Name)
	}
}

func TestService_Rollup_NarrowPriceTableFails(t *testing.T) {
	svc, mock, _ := newTestService(t)
	mock.SetTable(source.TabPrices, &source.Table{
		Name:    source.TabPrices,
		Columns: []string{"PRODUTO"},
		Rows:    []source.Row{{"PRODUTO": "BOLO FESTA"}},
	})

	_, err := svc.Rollup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 2 columns")
}

func TestService_Rollup_SnapshotterFailureIsFatal(t *testing.T) {
	svc, _, snaps := newTestService(t)
	snaps.err = errors.New("network down")

	_, err := svc.Rollup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network down")
}

func TestService_HealthCheck(t *testing.T) {
	svc, mock, _ := newTestService(t)
	assert.NoError(t, svc.HealthCheck(context.Background()))

	mock.SetError(errors.New("unreadable"))
	assert.Error(t, svc.HealthCheck(context.Background()))
}
