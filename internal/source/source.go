// Package source reads worksheet snapshots into generic record tables. The
// real engine queries the CSV snapshots written by the workbook manager
// through DuckDB; a mock implementation backs tests.
package source

import (
	"context"
	"errors"
	"log/slog"
	"os"
)

// Worksheet tab names in the bakery's workbook. The first three are
// required; the market price tab is optional and its absence merely means no
// pricing data.
const (
	TabIngredients = "ingredientes_mestres"
	TabBases       = "receitas_bases"
	TabFinals      = "receitas_finais"
	TabPrices      = "precos_mercado"
)

// RequiredTabs lists the worksheets a run cannot proceed without.
func RequiredTabs() []string {
	return []string{TabIngredients, TabBases, TabFinals}
}

// ErrTableNotFound is returned when no snapshot exists for a worksheet.
// Callers distinguish it from hard failures because some worksheets (the
// market price tab) are optional.
var ErrTableNotFound = errors.New("worksheet snapshot not found")

// Row is one worksheet record: upper-cased, trimmed column name -> raw cell.
type Row map[string]string

// Table is one worksheet loaded into memory. Columns preserves the
// worksheet's column order, which matters for positionally-interpreted
// tables like the market price tab.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

// Source is the tabular data source the catalog service reads from.
type Source interface {
	// FetchTable loads one worksheet by its tab name.
	FetchTable(ctx context.Context, tab string) (*Table, error)
	// HealthCheck verifies the source is readable.
	HealthCheck(ctx context.Context) error
	Close() error
}

// NewSource creates the worksheet source for the given snapshot directory.
// Uses the mock source if the WORKBOOK_SOURCE_MOCK environment variable is
// set.
func NewSource(dataDir string, logger *slog.Logger) (Source, error) {
	if os.Getenv("WORKBOOK_SOURCE_MOCK") == "true" {
		return NewMock(logger), nil
	}
	return NewEngine(dataDir, logger)
}
