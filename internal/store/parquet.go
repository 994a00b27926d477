package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/guregu/null/v6"
	"github.com/parquet-go/parquet-go"

	"dailybar/internal/domain"
)

// Compile-time interface check.
var _ HistoryStore = (*ParquetStore)(nil)

// ParquetStore implements HistoryStore for one symbol using yearly Parquet
// files on disk.
type ParquetStore struct {
	DataDir string
	Market  string
	Symbol  string
}

// NewParquetStore creates a ParquetStore for symbol rooted at dataDir. The
// market segment defaults to "us".
func NewParquetStore(dataDir, market, symbol string) *ParquetStore {
	if market == "" {
		market = "us"
	}
	return &ParquetStore{DataDir: dataDir, Market: market, Symbol: strings.ToUpper(symbol)}
}

// ---------------------------------------------------------------------------
// Parquet record type (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data. Enrichment columns are
// optional so absence survives a round trip.
type BarRecord struct {
	Symbol      string   `parquet:"symbol"`
	Date        string   `parquet:"date"`
	Timestamp   int64    `parquet:"timestamp,timestamp(millisecond)"` // session date, UTC midnight
	Open        float64  `parquet:"open"`
	High        float64  `parquet:"high"`
	Low         float64  `parquet:"low"`
	Close       float64  `parquet:"close"`
	Volume      int64    `parquet:"volume"`
	MarketCap   *float64 `parquet:"market_cap,optional"`
	PERatio     *float64 `parquet:"pe_ratio,optional"`
	DivYield    *float64 `parquet:"dividend_yield,optional"`
	Beta        *float64 `parquet:"beta,optional"`
	High52W     *float64 `parquet:"high_52w,optional"`
	Low52W      *float64 `parquet:"low_52w,optional"`
	AvgVolume   *int64   `parquet:"avg_volume,optional"`
	ExtractedAt int64    `parquet:"extracted_at"` // Unix ms, 0 when unknown
}

func toBarRecord(b domain.DailyBar) (BarRecord, error) {
	day, err := time.Parse(domain.DateLayout, b.Date)
	if err != nil {
		return BarRecord{}, err
	}
	rec := BarRecord{
		Symbol:    b.Symbol,
		Date:      b.Date,
		Timestamp: day.UnixMilli(),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
		MarketCap: b.MarketCap.Ptr(),
		PERatio:   b.PERatio.Ptr(),
		DivYield:  b.DividendYield.Ptr(),
		Beta:      b.Beta.Ptr(),
		High52W:   b.FiftyTwoWeekHigh.Ptr(),
		Low52W:    b.FiftyTwoWeekLow.Ptr(),
		AvgVolume: b.AvgVolume.Ptr(),
	}
	if !b.ExtractionTimestamp.IsZero() {
		rec.ExtractedAt = b.ExtractionTimestamp.UnixMilli()
	}
	return rec, nil
}

func (r BarRecord) toDailyBar() domain.DailyBar {
	b := domain.DailyBar{
		Date:   r.Date,
		Symbol: r.Symbol,
		Open:   r.Open,
		High:   r.High,
		Low:    r.Low,
		Close:  r.Close,
		Volume: r.Volume,
		Enrichment: domain.Enrichment{
			MarketCap:        null.FloatFromPtr(r.MarketCap),
			PERatio:          null.FloatFromPtr(r.PERatio),
			DividendYield:    null.FloatFromPtr(r.DivYield),
			Beta:             null.FloatFromPtr(r.Beta),
			FiftyTwoWeekHigh: null.FloatFromPtr(r.High52W),
			FiftyTwoWeekLow:  null.FloatFromPtr(r.Low52W),
			AvgVolume:        null.IntFromPtr(r.AvgVolume),
		},
	}
	if b.Date == "" {
		b.Date = time.UnixMilli(r.Timestamp).UTC().Format(domain.DateLayout)
	}
	if r.ExtractedAt != 0 {
		b.ExtractionTimestamp = time.UnixMilli(r.ExtractedAt).UTC()
	}
	return b
}

// ---------------------------------------------------------------------------
// HistoryStore implementation
// ---------------------------------------------------------------------------

// Load reads every year file for the symbol.
func (s *ParquetStore) Load(ctx context.Context) ([]domain.DailyBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	files, err := filepath.Glob(filepath.Join(s.symbolDir(), "*.parquet"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	seen := make(map[string]struct{})
	var bars []domain.DailyBar
	for _, path := range files {
		records, err := readParquetFile[BarRecord](path)
		if err != nil {
			return nil, &domain.CorruptStoreError{Path: path, Reason: err.Error()}
		}
		for _, r := range records {
			b := r.toDailyBar()
			if _, dup := seen[b.Date]; dup {
				continue
			}
			seen[b.Date] = struct{}{}
			bars = append(bars, b)
		}
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
	return bars, nil
}

// Append merges bar into the year file for its date. Existing dates are left
// untouched.
func (s *ParquetStore) Append(ctx context.Context, bar domain.DailyBar) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key, err := domain.NormalizeDate(bar.Date)
	if err != nil {
		return false, fmt.Errorf("record key: %w", err)
	}
	bar.Date = key
	if bar.Symbol == "" {
		bar.Symbol = s.Symbol
	}

	rec, err := toBarRecord(bar)
	if err != nil {
		return false, err
	}
	path := s.barPath(time.UnixMilli(rec.Timestamp).UTC())

	existing, err := readParquetFile[BarRecord](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, &domain.CorruptStoreError{Path: path, Reason: err.Error()}
	}

	merged, inserted := mergeBarRecords(existing, rec)
	if !inserted {
		return false, nil
	}
	if err := writeParquetFile(path, merged); err != nil {
		return false, fmt.Errorf("writing bars for %s/%s: %w", s.Symbol, key, err)
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

func (s *ParquetStore) symbolDir() string {
	return filepath.Join(s.DataDir, s.Market, "daily", s.Symbol)
}

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(t time.Time) string {
	return filepath.Join(s.symbolDir(), fmt.Sprintf("%d.parquet", t.Year()))
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	return writeAtomic(path, func(w io.Writer) error {
		pw := parquet.NewGenericWriter[T](w)
		if _, err := pw.Write(records); err != nil {
			pw.Close()
			return err
		}
		return pw.Close()
	})
}

// readParquetFile returns an error wrapping os.ErrNotExist when path is
// missing.
func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeBarRecords adds incoming unless a record for its date exists. Results
// are sorted by timestamp.
func mergeBarRecords(existing []BarRecord, incoming BarRecord) ([]BarRecord, bool) {
	for _, r := range existing {
		if r.Timestamp == incoming.Timestamp {
			return existing, false
		}
	}
	merged := append(existing[:len(existing):len(existing)], incoming)
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged, true
}
