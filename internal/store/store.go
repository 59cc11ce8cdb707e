// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"backtester/internal/models"
)

// DataStore defines the interface for market data persistence.
type DataStore interface {
	// Bars
	SaveBars(ctx context.Context, symbol string, bars []models.Bar) error
	GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error)
	GetBarsFreshness(ctx context.Context, symbol string) (time.Time, error)
	ListSymbols(ctx context.Context) ([]string, error)

	// Benchmark series
	SaveBenchmark(ctx context.Context, symbol string, points []models.BenchmarkPoint) error
	GetBenchmark(ctx context.Context, symbol string, from, to time.Time) ([]models.BenchmarkPoint, error)

	// Lifecycle
	Close() error
}
