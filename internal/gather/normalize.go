package gather

import (
	"log/slog"
	"time"

	"dailybar/internal/domain"
)

// Normalize converts the most recent raw bar into a DailyBar. The bar's date
// is its session day in loc. Enrichment is copied as given; absent fields
// stay absent.
func Normalize(symbol string, raw []domain.RawBar, meta domain.Enrichment, loc *time.Location, at time.Time) (domain.DailyBar, error) {
	if len(raw) == 0 {
		return domain.DailyBar{}, &domain.NoDataError{Symbol: symbol}
	}
	last := raw[len(raw)-1]
	if last.Timestamp.IsZero() {
		return domain.DailyBar{}, &domain.MalformedBarError{Field: "timestamp"}
	}

	prices := []struct {
		name string
		v    float64
		ok   bool
	}{
		{"open", last.Open.Float64, last.Open.Valid},
		{"high", last.High.Float64, last.High.Valid},
		{"low", last.Low.Float64, last.Low.Valid},
		{"close", last.Close.Float64, last.Close.Valid},
	}
	for _, p := range prices {
		if !p.ok {
			return domain.DailyBar{}, &domain.MalformedBarError{Field: p.name}
		}
		if p.v < 0 {
			return domain.DailyBar{}, &domain.MalformedBarError{Field: p.name, Reason: "is negative"}
		}
	}
	if !last.Volume.Valid {
		return domain.DailyBar{}, &domain.MalformedBarError{Field: "volume"}
	}
	if last.Volume.Int64 < 0 {
		return domain.DailyBar{}, &domain.MalformedBarError{Field: "volume", Reason: "is negative"}
	}

	bar := domain.DailyBar{
		Date:                domain.DateIn(last.Timestamp, loc),
		Symbol:              symbol,
		Open:                last.Open.Float64,
		High:                last.High.Float64,
		Low:                 last.Low.Float64,
		Close:               last.Close.Float64,
		Volume:              last.Volume.Int64,
		Enrichment:          meta,
		ExtractionTimestamp: at,
	}
	if bar.High < max(bar.Open, bar.Close) || bar.Low > min(bar.Open, bar.Close) {
		slog.Warn("bar range inconsistent",
			"symbol", symbol, "date", bar.Date,
			"open", bar.Open, "high", bar.High, "low", bar.Low, "close", bar.Close)
	}
	return bar, nil
}
