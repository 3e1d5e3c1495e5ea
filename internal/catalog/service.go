// Package catalog ties the worksheet source to the rollup engine and
// memoizes the computed result. The engine itself is pure; this layer owns
// the only process-wide mutable state, a time-bounded cache of the last run.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/padoca-app/bakery-costing-mcp-server/internal/config"
	"github.com/padoca-app/bakery-costing-mcp-server/internal/rollup"
	"github.com/padoca-app/bakery-costing-mcp-server/internal/source"
)

// rollupKey is the single cache entry: the rollup takes no parameters, so
// the whole result set is memoized as one value.
const rollupKey = "rollup"

// Snapshotter keeps the worksheet snapshots fresh. Nil is valid and means
// snapshots are managed elsewhere (tests, offline runs).
type Snapshotter interface {
	EnsureSnapshot(ctx context.Context) error
	ForceRefresh(ctx context.Context) error
}

// Service computes and caches the catalog rollup.
type Service struct {
	src       source.Source
	snapshots Snapshotter
	cache     *gocache.Cache
	nutrients []string
	log       *slog.Logger
}

// New creates the catalog service. The cache TTL is the configured refresh
// interval; serving a result up to that old is acceptable by contract.
func New(src source.Source, snapshots Snapshotter, cfg *config.Config, logger *slog.Logger) *Service {
	ttl := cfg.RefreshInterval()
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &Service{
		src:       src,
		snapshots: snapshots,
		cache:     gocache.New(ttl, 2*ttl),
		nutrients: cfg.NutrientColumns,
		log:       logger,
	}
}

// Rollup returns the current catalog rollup, serving the memoized result
// when one is still within its TTL.
func (s *Service) Rollup(ctx context.Context) (*rollup.Result, error) {
	if cached, ok := s.cache.Get(rollupKey); ok {
		s.log.Debug("Serving cached rollup")
		return cached.(*rollup.Result), nil
	}
	return s.Refresh(ctx)
}

// Refresh recomputes the rollup from the source, bypassing and repopulating
// the cache. When a snapshotter is wired it re-downloads the worksheets
// first.
func (s *Service) Refresh(ctx context.Context) (*rollup.Result, error) {
	start := time.Now()

	if s.snapshots != nil {
		if err := s.snapshots.EnsureSnapshot(ctx); err != nil {
			return nil, fmt.Errorf("refresh snapshots: %w", err)
		}
	}

	in, err := s.buildInput(ctx)
	if err != nil {
		return nil, err
	}

	res, err := rollup.Run(in)
	if err != nil {
		return nil, err
	}

	s.cache.Set(rollupKey, res, gocache.DefaultExpiration)
	s.log.Info("Rollup computed",
		"products", len(res.Products),
		"attributes", res.Attributes,
		"duration", time.Since(start))
	return res, nil
}

// ForceRefresh forces a snapshot re-download and a full recompute.
func (s *Service) ForceRefresh(ctx context.Context) (*rollup.Result, error) {
	if s.snapshots != nil {
		if err := s.snapshots.ForceRefresh(ctx); err != nil {
			return nil, fmt.Errorf("force refresh snapshots: %w", err)
		}
	}
	s.cache.Delete(rollupKey)
	return s.Refresh(ctx)
}

// HealthCheck verifies the underlying source is readable.
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.src.HealthCheck(ctx)
}

// Close releases the underlying source.
func (s *Service) Close() error {
	return s.src.Close()
}

// buildInput fetches the worksheet tables and assembles the engine input.
// Required tables are fatal when unavailable; the price table degrades to an
// uncosted-price run.
func (s *Service) buildInput(ctx context.Context) (rollup.Input, error) {
	var in rollup.Input

	ingredients, err := s.fetchRows(ctx, source.TabIngredients)
	if err != nil {
		return in, err
	}
	baseLines, err := s.fetchRows(ctx, source.TabBases)
	if err != nil {
		return in, err
	}
	finalLines, err := s.fetchRows(ctx, source.TabFinals)
	if err != nil {
		return in, err
	}

	prices, err := s.fetchPrices(ctx)
	if err != nil {
		return in, err
	}

	in.Ingredients = ingredients
	in.BaseLines = baseLines
	in.FinalLines = finalLines
	in.Prices = prices
	in.NutrientColumns = s.nutrients
	return in, nil
}

func (s *Service) fetchRows(ctx context.Context, tab string) ([]rollup.Row, error) {
	table, err := s.src.FetchTable(ctx, tab)
	if err != nil {
		return nil, fmt.Errorf("load worksheet %s: %w", tab, err)
	}
	rows := make([]rollup.Row, len(table.Rows))
	for i, r := range table.Rows {
		rows[i] = rollup.Row(r)
	}
	return rows, nil
}

// fetchPrices loads the market price table. Whatever the second column is
// named, it is treated positionally as the price.
func (s *Service) fetchPrices(ctx context.Context) ([]rollup.PriceEntry, error) {
	table, err := s.src.FetchTable(ctx, source.TabPrices)
	if err != nil {
		if errors.Is(err, source.ErrTableNotFound) {
			s.log.Warn("No market price worksheet, products will carry zero prices")
			return nil, nil
		}
		return nil, fmt.Errorf("load worksheet %s: %w", source.TabPrices, err)
	}

	if len(table.Rows) > 0 && len(table.Columns) < 2 {
		return nil, fmt.Errorf("load worksheet %s: expected at least 2 columns, got %d",
			source.TabPrices, len(table.Columns))
	}

	entries := make([]rollup.PriceEntry, 0, len(table.Rows))
	for _, row := range table.Rows {
		entries = append(entries, rollup.PriceEntry{
			Product: row[table.Columns[0]],
			Value:   row[table.Columns[1]],
		})
	}
	return entries, nil
}
