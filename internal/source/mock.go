package source

import (
	"context"
	"fmt"
	"log/slog"
)

// Mock is an in-memory Source for tests, pre-seeded with a small but
// representative slice of the bakery workbook.
type Mock struct {
	tables map[string]*Table
	err    error
	log    *slog.Logger
}

// Ensure Mock implements the Source interface
var _ Source = (*Mock)(nil)

// NewMock creates a mock source seeded with fixture worksheets.
func NewMock(logger *slog.Logger) *Mock {
	return &Mock{
		log: logger,
		tables: map[string]*Table{
			TabIngredients: {
				Name:    TabIngredients,
				Columns: []string{"NOME_ITEM", "UNIDADE_PACOTE", "QUANT_PACOTE", "VALOR_PACOTE", "CALORIAS_KCAL"},
				Rows: []Row{
					{"NOME_ITEM": "FARINHA DE TRIGO", "UNIDADE_PACOTE": "G", "QUANT_PACOTE": "1000", "VALOR_PACOTE": "R$ 10,00", "CALORIAS_KCAL": "3.64"},
					{"NOME_ITEM": "ACUCAR", "UNIDADE_PACOTE": "G", "QUANT_PACOTE": "1000", "VALOR_PACOTE": "R$ 20,00", "CALORIAS_KCAL": "3.87"},
					{"NOME_ITEM": "OVO", "UNIDADE_PACOTE": "UN", "QUANT_PACOTE": "30", "VALOR_PACOTE": "R$ 24,00", "CALORIAS_KCAL": "70"},
				},
			},
			TabBases: {
				Name:    TabBases,
				Columns: []string{"NOME_BASE", "NOME_INGREDIENTE", "QUANT_RECEITA", "RENDIMENTO_FINAL_UNIDADES"},
				Rows: []Row{
					{"NOME_BASE": "MASSA BRANCA", "NOME_INGREDIENTE": "FARINHA DE TRIGO", "QUANT_RECEITA": "500", "RENDIMENTO_FINAL_UNIDADES": "2"},
					{"NOME_BASE": "MASSA BRANCA", "NOME_INGREDIENTE": "OVO", "QUANT_RECEITA": "4", "RENDIMENTO_FINAL_UNIDADES": "2"},
				},
			},
			TabFinals: {
				Name:    TabFinals,
				Columns: []string{"NOME_BOLO", "NOME_INGREDIENTE", "QUANT_RECEITA"},
				Rows: []Row{
					{"NOME_BOLO": "BOLO FESTA", "NOME_INGREDIENTE": "MASSA BRANCA", "QUANT_RECEITA": "1"},
					{"NOME_BOLO": "BOLO FESTA", "NOME_INGREDIENTE": "ACUCAR", "QUANT_RECEITA": "100"},
				},
			},
			TabPrices: {
				Name:    TabPrices,
				Columns: []string{"PRODUTO", "PRECO_VENDA"},
				Rows: []Row{
					{"PRODUTO": "BOLO FESTA", "PRECO_VENDA": "R$ 18,00"},
				},
			},
		},
	}
}

// FetchTable returns the seeded worksheet, or ErrTableNotFound when a tab
// has been removed (to exercise optional-table handling).
func (m *Mock) FetchTable(ctx context.Context, tab string) (*Table, error) {
	if m.err != nil {
		return nil, m.err
	}
	table, ok := m.tables[tab]
	if !ok {
		return nil, fmt.Errorf("tab %s: %w", tab, ErrTableNotFound)
	}
	return table, nil
}

// HealthCheck reports the configured error, if any.
func (m *Mock) HealthCheck(ctx context.Context) error {
	return m.err
}

// Close is a no-op.
func (m *Mock) Close() error {
	return nil
}

// SetError sets an error to be returned by every call.
func (m *Mock) SetError(err error) {
	m.err = err
}

// SetTable replaces one worksheet fixture.
func (m *Mock) SetTable(tab string, table *Table) {
	m.tables[tab] = table
}

// RemoveTable drops a worksheet fixture.
func (m *Mock) RemoveTable(tab string) {
	delete(m.tables, tab)
}
