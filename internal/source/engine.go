package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
)

// Engine reads worksheet snapshots with DuckDB. Keeping the reads in SQL
// means header handling, quoting and ragged rows are all dealt with by
// DuckDB's CSV reader instead of hand-rolled parsing.
type Engine struct {
	db      *sql.DB
	dataDir string
	log     *slog.Logger
}

// Ensure Engine implements the Source interface
var _ Source = (*Engine)(nil)

// NewEngine creates a DuckDB-backed source over the snapshot directory.
func NewEngine(dataDir string, logger *slog.Logger) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	return &Engine{
		db:      db,
		dataDir: dataDir,
		log:     logger,
	}, nil
}

// Close closes the database connection.
func (e *Engine) Close() error {
	return e.db.Close()
}

// SnapshotPath returns the snapshot file path for a worksheet tab.
func SnapshotPath(dataDir, tab string) string {
	return filepath.Join(dataDir, tab+".csv")
}

// FetchTable loads one worksheet snapshot. Every cell comes back as a raw
// string; numeric coercion is the rollup engine's job, not the source's.
func (e *Engine) FetchTable(ctx context.Context, tab string) (*Table, error) {
	start := time.Now()
	path := SnapshotPath(e.dataDir, tab)
	e.log.Debug("FetchTable starting", "tab", tab, "path", path)

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("tab %s: %w", tab, ErrTableNotFound)
	}

	query := `SELECT * FROM read_csv(?, header=true, all_varchar=true, null_padding=true)`
	rows, err := e.db.QueryContext(ctx, query, path)
	if err != nil {
		e.log.Error("DuckDB snapshot query failed", "tab", tab, "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("read worksheet %s: %w", tab, err)
	}
	defer rows.Close()

	rawColumns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read worksheet %s columns: %w", tab, err)
	}

	// Headers are normalized the way the workbook owners expect them:
	// upper-cased and trimmed.
	columns := make([]string, len(rawColumns))
	for i, c := range rawColumns {
		columns[i] = strings.ToUpper(strings.TrimSpace(c))
	}

	table := &Table{Name: tab, Columns: columns}
	for rows.Next() {
		cells := make([]sql.NullString, len(columns))
		dest := make([]interface{}, len(columns))
		for i := range cells {
			dest[i] = &cells[i]
		}
		if err := rows.Scan(dest...); err != nil {
			e.log.Error("Row scan failed", "tab", tab, "error", err)
			continue
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			if cells[i].Valid {
				row[col] = cells[i].String
			} else {
				row[col] = ""
			}
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		e.log.Error("Rows iteration failed", "tab", tab, "error", err)
		return nil, fmt.Errorf("read worksheet %s rows: %w", tab, err)
	}

	e.log.Info("FetchTable completed", "tab", tab, "rows", len(table.Rows), "duration", time.Since(start))
	return table, nil
}

// HealthCheck verifies DuckDB can read the ingredient snapshot.
func (e *Engine) HealthCheck(ctx context.Context) error {
	start := time.Now()
	path := SnapshotPath(e.dataDir, TabIngredients)

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("health check: %w", ErrTableNotFound)
	}

	var count int64
	query := `SELECT COUNT(*) FROM read_csv(?, header=true, all_varchar=true)`
	if err := e.db.QueryRowContext(ctx, query, path).Scan(&count); err != nil {
		e.log.Error("Health check failed", "error", err, "duration", time.Since(start))
		return fmt.Errorf("health check failed: %w", err)
	}

	e.log.Debug("Health check successful", "ingredient_rows", count, "duration", time.Since(start))
	return nil
}
