// Package store defines the history store contract and its CSV, Parquet and
// SQLite implementations, plus the JSON snapshot writers.
package store

import (
	"context"

	"dailybar/internal/domain"
)

// HistoryStore is a keyed, append-only log of daily bars for one symbol.
// At most one record exists per date; the first write for a date wins.
type HistoryStore interface {
	// Load returns every record sorted by date ascending. A missing or empty
	// store loads as an empty slice.
	Load(ctx context.Context) ([]domain.DailyBar, error)

	// Append adds bar unless its date is already present. It reports whether
	// the record was inserted.
	Append(ctx context.Context, bar domain.DailyBar) (bool, error)
}

// RunRecorder persists one row per pipeline run.
type RunRecorder interface {
	RecordRun(ctx context.Context, run domain.RunRecord) error
	Close() error
}

// NoopRecorder is used when no run log is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (NoopRecorder) RecordRun(context.Context, domain.RunRecord) error { return nil }
func (NoopRecorder) Close() error                                      { return nil }
