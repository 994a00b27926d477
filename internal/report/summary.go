// Package report computes trailing-window statistics over a bar history.
package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"dailybar/internal/domain"
)

// DefaultWindow is the trailing window used when none is configured.
const DefaultWindow = 30

// Summarize computes the report over the most recent window records of bars.
// The input need not be sorted and is not modified. A non-positive window
// falls back to DefaultWindow.
func Summarize(bars []domain.DailyBar, window int, now time.Time) (domain.SummaryReport, error) {
	if len(bars) == 0 {
		return domain.SummaryReport{}, domain.ErrEmptyStore
	}
	if window <= 0 {
		window = DefaultWindow
	}

	sorted := make([]domain.DailyBar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	tail := sorted
	if len(tail) > window {
		tail = tail[len(tail)-window:]
	}

	sum := decimal.Zero
	hi, lo := tail[0].Close, tail[0].Close
	for _, b := range tail {
		sum = sum.Add(decimal.NewFromFloat(b.Close))
		hi = max(hi, b.Close)
		lo = min(lo, b.Close)
	}
	avg, _ := sum.Div(decimal.NewFromInt(int64(len(tail)))).Float64()

	latest := sorted[len(sorted)-1]
	return domain.SummaryReport{
		ReportDate:     now,
		Symbol:         latest.Symbol,
		LatestDate:     latest.Date,
		LatestClose:    latest.Close,
		AvgCloseWindow: avg,
		MaxCloseWindow: hi,
		MinCloseWindow: lo,
		WindowSize:     len(tail),
		TotalRecords:   len(sorted),
	}, nil
}
