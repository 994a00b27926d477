// Package domain defines the core record types shared by the provider
// adapters, the history stores and the reporting layer.
package domain

import (
	"time"

	"github.com/guregu/null/v6"
)

// DateLayout is the canonical calendar-date format used as the history key.
const DateLayout = "2006-01-02"

// ---------------------------------------------------------------------------
// Daily bars
// ---------------------------------------------------------------------------

// Enrichment holds optional ticker metadata. Every field is independently
// present or absent; an absent field is never written as zero.
type Enrichment struct {
	MarketCap        null.Float `json:"market_cap,omitzero"`
	PERatio          null.Float `json:"pe_ratio,omitzero"`
	DividendYield    null.Float `json:"dividend_yield,omitzero"`
	Beta             null.Float `json:"beta,omitzero"`
	FiftyTwoWeekHigh null.Float `json:"52_week_high,omitzero"`
	FiftyTwoWeekLow  null.Float `json:"52_week_low,omitzero"`
	AvgVolume        null.Int   `json:"avg_volume,omitzero"`
}

// Empty reports whether no enrichment field is present.
func (e Enrichment) Empty() bool {
	return !e.MarketCap.Valid && !e.PERatio.Valid && !e.DividendYield.Valid &&
		!e.Beta.Valid && !e.FiftyTwoWeekHigh.Valid && !e.FiftyTwoWeekLow.Valid &&
		!e.AvgVolume.Valid
}

// DailyBar is one trading day of OHLCV data for one symbol. Date is the
// history key and is always formatted with DateLayout.
type DailyBar struct {
	Date   string  `json:"date"`
	Symbol string  `json:"symbol"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`

	Enrichment

	// ExtractionTimestamp is audit data and not part of the key.
	ExtractionTimestamp time.Time `json:"extraction_timestamp,omitzero"`
}

// RawBar is a bar as delivered by a market-data provider. Price and volume
// fields are invalid when the provider omitted them.
type RawBar struct {
	Timestamp time.Time
	Open      null.Float
	High      null.Float
	Low       null.Float
	Close     null.Float
	Volume    null.Int
}

// SentinelRecord is written in place of a DailyBar when a run could not
// produce real data. Numeric fields stay zero.
type SentinelRecord struct {
	DailyBar
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// NewSentinel builds the fallback record for symbol on the given date.
func NewSentinel(symbol, date string, at time.Time, err error) SentinelRecord {
	rec := SentinelRecord{
		DailyBar: DailyBar{
			Date:                date,
			Symbol:              symbol,
			ExtractionTimestamp: at,
		},
		ErrorKind: Kind(err),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}

// ---------------------------------------------------------------------------
// Reports and runs
// ---------------------------------------------------------------------------

// SummaryReport holds trailing-window statistics over a symbol's history.
type SummaryReport struct {
	ReportDate     time.Time `json:"report_date"`
	Symbol         string    `json:"symbol"`
	LatestDate     string    `json:"latest_date"`
	LatestClose    float64   `json:"latest_close"`
	AvgCloseWindow float64   `json:"avg_close_window"`
	MaxCloseWindow float64   `json:"max_close_window"`
	MinCloseWindow float64   `json:"min_close_window"`
	WindowSize     int       `json:"window_size"`
	TotalRecords   int       `json:"total_records"`
}

// RunOutcome classifies how a pipeline run ended.
type RunOutcome string

const (
	RunStored    RunOutcome = "stored"
	RunDuplicate RunOutcome = "duplicate"
	RunFallback  RunOutcome = "fallback"
	RunFailed    RunOutcome = "failed"
)

// RunRecord is one row of the run log.
type RunRecord struct {
	Symbol     string     `json:"symbol"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Outcome    RunOutcome `json:"outcome"`
	Date       string     `json:"date,omitempty"`
	Inserted   bool       `json:"inserted"`
	Error      string     `json:"error,omitempty"`
}
