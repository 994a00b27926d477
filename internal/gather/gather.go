// Package gather defines the market-data provider boundary and the daily
// extraction pipeline built on it.
package gather

import (
	"context"
	"time"

	"dailybar/internal/domain"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass and returns when it is done or ctx is
	// cancelled.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// BarProvider fetches daily bars for a symbol. Implementations return a
// *domain.NoDataError when the range holds no bars and a
// *domain.ProviderError for any transport, auth or rate-limit failure.
type BarProvider interface {
	Name() string
	FetchDailyBars(ctx context.Context, symbol string, r DateRange) ([]domain.RawBar, error)
}

// MetadataProvider fetches optional ticker metadata.
type MetadataProvider interface {
	Name() string
	FetchMetadata(ctx context.Context, symbol string) (domain.Enrichment, error)
}
