// Package yahoo adapts Yahoo Finance charts and quotes to the gather
// provider interfaces.
package yahoo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/guregu/null/v6"
	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"
	"github.com/shopspring/decimal"

	"dailybar/internal/domain"
	"dailybar/internal/gather"
	"dailybar/internal/util"
)

var (
	_ gather.BarProvider      = (*Provider)(nil)
	_ gather.MetadataProvider = (*Provider)(nil)
)

// barIter is satisfied by *chart.Iter.
type barIter interface {
	Next() bool
	Bar() *finance.ChartBar
	Err() error
}

// Provider serves daily bars from the chart endpoint and enrichment from
// the quote endpoint.
type Provider struct {
	chart    func(*chart.Params) barIter
	quote    func(symbol string) (*finance.Equity, error)
	calendar *util.TradingCalendar
	now      func() time.Time
	log      *slog.Logger
}

// NewProvider creates a Provider. The calendar bounds requests to finished
// sessions; nil disables the bound.
func NewProvider(cal *util.TradingCalendar) *Provider {
	return &Provider{
		chart:    func(p *chart.Params) barIter { return chart.Get(p) },
		quote:    equity.Get,
		calendar: cal,
		now:      time.Now,
		log:      slog.Default().With("provider", "yahoo"),
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "yahoo" }

// FetchDailyBars returns daily bars for symbol within r. Rows Yahoo sends
// without any prices are dropped.
func (p *Provider) FetchDailyBars(ctx context.Context, symbol string, r gather.DateRange) ([]domain.RawBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.ProviderError{Provider: p.Name(), Err: err}
	}

	start, end := r.Start, p.requestEnd(r.End)
	if !start.IsZero() && !end.After(start) {
		return nil, &domain.NoDataError{Symbol: symbol}
	}

	params := &chart.Params{
		Symbol:   strings.ToUpper(symbol),
		Interval: datetime.OneDay,
		End:      datetime.New(&end),
	}
	if !start.IsZero() {
		params.Start = datetime.New(&start)
	}

	iter := p.chart(params)
	var bars []domain.RawBar
	for iter.Next() {
		b := mapChartBar(iter.Bar())
		if !b.Open.Valid && !b.High.Valid && !b.Low.Valid && !b.Close.Valid {
			continue
		}
		bars = append(bars, b)
	}
	if err := iter.Err(); err != nil {
		return nil, &domain.ProviderError{Provider: p.Name(), Err: fmt.Errorf("chart %s: %w", symbol, err)}
	}
	if len(bars) == 0 {
		return nil, &domain.NoDataError{Symbol: symbol}
	}
	p.log.Debug("bars fetched", "symbol", symbol, "count", len(bars))
	return bars, nil
}

// requestEnd bounds end to midnight after the last finished session so an
// in-progress bar is not requested.
func (p *Provider) requestEnd(end time.Time) time.Time {
	if p.calendar == nil {
		return end
	}
	limit := p.calendar.LastSession(p.now()).AddDate(0, 0, 1)
	if end.IsZero() || end.After(limit) {
		return limit
	}
	return end
}

// FetchMetadata returns the quote-derived enrichment for symbol. Beta is not
// offered by the quote endpoint and stays absent.
func (p *Provider) FetchMetadata(ctx context.Context, symbol string) (domain.Enrichment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Enrichment{}, &domain.ProviderError{Provider: p.Name(), Err: err}
	}
	q, err := p.quote(strings.ToUpper(symbol))
	if err != nil {
		return domain.Enrichment{}, &domain.ProviderError{Provider: p.Name(), Err: fmt.Errorf("quote %s: %w", symbol, err)}
	}
	if q == nil {
		return domain.Enrichment{}, &domain.NoDataError{Symbol: symbol}
	}
	return mapEquity(q), nil
}

// ---------------------------------------------------------------------------
// Mapping
// ---------------------------------------------------------------------------

// The library decodes missing JSON numbers as zero, so zero means absent.

func decimalField(d decimal.Decimal) null.Float {
	if d.IsZero() {
		return null.Float{}
	}
	f, _ := d.Float64()
	return null.FloatFrom(f)
}

func floatField(v float64) null.Float {
	return null.NewFloat(v, v != 0)
}

func intField(v int64) null.Int {
	return null.NewInt(v, v != 0)
}

func mapChartBar(b *finance.ChartBar) domain.RawBar {
	if b == nil {
		return domain.RawBar{}
	}
	return domain.RawBar{
		Timestamp: time.Unix(int64(b.Timestamp), 0).UTC(),
		Open:      decimalField(b.Open),
		High:      decimalField(b.High),
		Low:       decimalField(b.Low),
		Close:     decimalField(b.Close),
		Volume:    null.IntFrom(int64(b.Volume)),
	}
}

func mapEquity(q *finance.Equity) domain.Enrichment {
	return domain.Enrichment{
		MarketCap:        floatField(float64(q.MarketCap)),
		PERatio:          floatField(float64(q.TrailingPE)),
		DividendYield:    floatField(float64(q.TrailingAnnualDividendYield)),
		FiftyTwoWeekHigh: floatField(float64(q.FiftyTwoWeekHigh)),
		FiftyTwoWeekLow:  floatField(float64(q.FiftyTwoWeekLow)),
		AvgVolume:        intField(int64(q.AverageDailyVolume3Month)),
	}
}
