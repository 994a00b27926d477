// Package us holds the Alpaca market-data adapter for US equities.
package us

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/guregu/null/v6"

	"dailybar/internal/domain"
	"dailybar/internal/gather"
)

var _ gather.BarProvider = (*AlpacaProvider)(nil)

// barSource is the part of the Alpaca market-data client used here.
type barSource interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaProvider fetches daily bars from the Alpaca market-data API. When a
// trading calendar is available the requested range is clamped to the last
// finished session so an in-progress bar is never returned.
type AlpacaProvider struct {
	bars     barSource
	calendar calendarSource
	feed     marketdata.Feed
	et       *time.Location
	now      func() time.Time
	log      *slog.Logger
}

// NewAlpacaProvider creates an AlpacaProvider with the given credentials. An
// empty dataURL or baseURL selects the SDK default; an empty feed means
// "sip".
func NewAlpacaProvider(apiKey, apiSecret, dataURL, baseURL, feed string) (*AlpacaProvider, error) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("loading ET timezone: %w", err)
	}
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	trading := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
	return newAlpacaProvider(marketdata.NewClient(opts), trading, feed, et), nil
}

func newAlpacaProvider(bars barSource, cal calendarSource, feed string, et *time.Location) *AlpacaProvider {
	if feed == "" {
		feed = "sip"
	}
	return &AlpacaProvider{
		bars:     bars,
		calendar: cal,
		feed:     marketdata.Feed(feed),
		et:       et,
		now:      time.Now,
		log:      slog.Default().With("provider", "alpaca"),
	}
}

// Name returns the provider identifier.
func (p *AlpacaProvider) Name() string { return "alpaca" }

// FetchDailyBars returns the daily bars for symbol within r.
func (p *AlpacaProvider) FetchDailyBars(ctx context.Context, symbol string, r gather.DateRange) ([]domain.RawBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.ProviderError{Provider: p.Name(), Err: err}
	}

	end := r.End
	if p.calendar != nil {
		finished, err := latestFinishedTradingDay(p.calendar, p.now(), p.et)
		if err != nil {
			return nil, &domain.ProviderError{Provider: p.Name(), Err: err}
		}
		if limit := finished.AddDate(0, 0, 1).Add(-time.Second); end.IsZero() || end.After(limit) {
			end = limit
		}
	}
	if !r.Start.IsZero() && end.Before(r.Start) {
		return nil, &domain.NoDataError{Symbol: symbol}
	}

	bars, err := p.bars.GetBars(strings.ToUpper(symbol), marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     r.Start,
		End:       end,
		Feed:      p.feed,
	})
	if err != nil {
		return nil, &domain.ProviderError{Provider: p.Name(), Err: fmt.Errorf("GetBars: %w", err)}
	}
	if len(bars) == 0 {
		return nil, &domain.NoDataError{Symbol: symbol}
	}
	p.log.Debug("bars fetched", "symbol", symbol, "count", len(bars), "end", end.Format(time.DateOnly))
	return mapBars(bars), nil
}

// mapBars converts Alpaca bars to provider-neutral raw bars. Alpaca always
// sends every OHLCV field.
func mapBars(in []marketdata.Bar) []domain.RawBar {
	out := make([]domain.RawBar, 0, len(in))
	for _, ab := range in {
		out = append(out, domain.RawBar{
			Timestamp: ab.Timestamp,
			Open:      null.FloatFrom(ab.Open),
			High:      null.FloatFrom(ab.High),
			Low:       null.FloatFrom(ab.Low),
			Close:     null.FloatFrom(ab.Close),
			Volume:    null.IntFrom(int64(ab.Volume)),
		})
	}
	return out
}
