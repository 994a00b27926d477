package store

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/guregu/null/v6"

	"dailybar/internal/domain"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCSVStoreLoadMissingFile(t *testing.T) {
	s := NewCSVStore(filepath.Join(t.TempDir(), "amd_history.csv"))
	bars, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(bars) != 0 {
		t.Errorf("Load returned %d bars, want 0", len(bars))
	}
}

func TestCSVStoreAppendIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amd_history.csv")
	s := NewCSVStore(path)
	ctx := context.Background()

	bar := domain.DailyBar{Date: "2025-06-02", Symbol: "AMD", Open: 100, High: 105, Low: 99, Close: 104, Volume: 1000000}

	inserted, err := s.Append(ctx, bar)
	if err != nil || !inserted {
		t.Fatalf("first Append = %v, %v; want true, nil", inserted, err)
	}
	inserted, err = s.Append(ctx, bar)
	if err != nil || inserted {
		t.Fatalf("second Append = %v, %v; want false, nil", inserted, err)
	}

	rows := readCSV(t, path)
	if len(rows) != 2 {
		t.Fatalf("file has %d rows, want 2", len(rows))
	}
	wantHeader := []string{"Date", "Symbol", "Open", "High", "Low", "Close", "Volume"}
	if !reflect.DeepEqual(rows[0], wantHeader) {
		t.Errorf("header = %v, want %v", rows[0], wantHeader)
	}
	wantRow := []string{"2025-06-02", "AMD", "100", "105", "99", "104", "1000000"}
	if !reflect.DeepEqual(rows[1], wantRow) {
		t.Errorf("row = %v, want %v", rows[1], wantRow)
	}
}

func TestCSVStoreNormalizesDateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amd_history.csv")
	writeFile(t, path, "Date,Symbol,Open,High,Low,Close,Volume\n03/10/2025,AMD,1,2,0.5,1.5,10\n")
	s := NewCSVStore(path)
	ctx := context.Background()

	for _, date := range []string{"2025-03-10", "2025-03-10T00:00:00-04:00"} {
		inserted, err := s.Append(ctx, domain.DailyBar{Date: date, Symbol: "AMD", Open: 9, High: 9, Low: 9, Close: 9, Volume: 9})
		if err != nil {
			t.Fatalf("Append(%s): %v", date, err)
		}
		if inserted {
			t.Errorf("Append(%s) inserted a duplicate of 03/10/2025", date)
		}
	}

	bars, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("Load returned %d bars, want 1", len(bars))
	}
	if bars[0].Date != "2025-03-10" {
		t.Errorf("Date = %q, want 2025-03-10", bars[0].Date)
	}
	if bars[0].Close != 1.5 {
		t.Errorf("Close = %v, want 1.5 (first write wins)", bars[0].Close)
	}
}

func TestCSVStoreSchemaEvolution(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amd_history.csv")
	writeFile(t, path, "Date,Symbol,Open,High,Low,Close,Volume,Notes\n2025-05-30,AMD,1,2,0.5,1.5,10,hand edited\n")
	s := NewCSVStore(path)
	ctx := context.Background()

	bar := domain.DailyBar{Date: "2025-06-02", Symbol: "AMD", Open: 100, High: 105, Low: 99, Close: 104, Volume: 1000000}
	bar.MarketCap = null.FloatFrom(1.6e11)
	bar.AvgVolume = null.IntFrom(45000000)

	if inserted, err := s.Append(ctx, bar); err != nil || !inserted {
		t.Fatalf("Append = %v, %v; want true, nil", inserted, err)
	}

	rows := readCSV(t, path)
	want := [][]string{
		{"Date", "Symbol", "Open", "High", "Low", "Close", "Volume", "Notes", "MarketCap", "AvgVolume"},
		{"2025-05-30", "AMD", "1", "2", "0.5", "1.5", "10", "hand edited", "", ""},
		{"2025-06-02", "AMD", "100", "105", "99", "104", "1000000", "", "160000000000", "45000000"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v\nwant %v", rows, want)
	}

	bars, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("Load returned %d bars, want 2", len(bars))
	}
	if bars[0].MarketCap.Valid || bars[0].AvgVolume.Valid {
		t.Errorf("older row gained enrichment: %+v", bars[0].Enrichment)
	}
	if bars[1].MarketCap != null.FloatFrom(1.6e11) {
		t.Errorf("MarketCap = %v, want 1.6e11", bars[1].MarketCap)
	}
	if bars[1].Beta.Valid {
		t.Error("Beta should stay absent")
	}
}

func TestCSVStoreLegacyHeaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amd_history.csv")
	writeFile(t, path, "date,symbol,open,high,low,close,volume,market_cap,pe_ratio,52_week_high,extraction_timestamp\n"+
		"2025-05-29,AMD,1,2,0.5,1.5,10.0,,31.2,187.28,2025-05-29T16:05:00.123456\n")
	s := NewCSVStore(path)
	ctx := context.Background()

	bars, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("Load returned %d bars, want 1", len(bars))
	}
	b := bars[0]
	if b.Volume != 10 {
		t.Errorf("Volume = %d, want 10", b.Volume)
	}
	if b.MarketCap.Valid {
		t.Error("MarketCap should be absent")
	}
	if b.PERatio.Float64 != 31.2 {
		t.Errorf("PERatio = %v, want 31.2", b.PERatio.Float64)
	}
	if b.FiftyTwoWeekHigh.Float64 != 187.28 {
		t.Errorf("FiftyTwoWeekHigh = %v, want 187.28", b.FiftyTwoWeekHigh.Float64)
	}
	if b.ExtractionTimestamp.Year() != 2025 {
		t.Errorf("ExtractionTimestamp = %v", b.ExtractionTimestamp)
	}

	bar := domain.DailyBar{Date: "2025-06-02", Symbol: "AMD", Open: 100, High: 105, Low: 99, Close: 104, Volume: 1000000}
	bar.PERatio = null.FloatFrom(40)
	if _, err := s.Append(ctx, bar); err != nil {
		t.Fatalf("Append: %v", err)
	}

	rows := readCSV(t, path)
	if len(rows[0]) != 11 {
		t.Errorf("header has %d columns, want 11 (aliases reused)", len(rows[0]))
	}
	if rows[2][8] != "40" {
		t.Errorf("pe_ratio cell = %q, want 40", rows[2][8])
	}
}

func TestCSVStoreLoadSortsAndKeepsFirstDuplicate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amd_history.csv")
	writeFile(t, path, "Date,Symbol,Open,High,Low,Close,Volume\n"+
		"2025-06-03,AMD,1,1,1,3,1\n"+
		"2025-06-01,AMD,1,1,1,1,1\n"+
		"06/03/2025,AMD,1,1,1,99,1\n")
	s := NewCSVStore(path)
	ctx := context.Background()

	bars, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("Load returned %d bars, want 2", len(bars))
	}
	if bars[0].Date != "2025-06-01" {
		t.Errorf("bars[0].Date = %q, want 2025-06-01", bars[0].Date)
	}
	if bars[1].Close != 3 {
		t.Errorf("bars[1].Close = %v, want 3", bars[1].Close)
	}

	if _, err := s.Append(ctx, domain.DailyBar{Date: "2025-06-04", Symbol: "AMD", Open: 1, High: 1, Low: 1, Close: 4, Volume: 1}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	rows := readCSV(t, path)
	if len(rows) != 5 {
		t.Fatalf("file has %d rows, want 5 (legacy rows kept)", len(rows))
	}
	if rows[1][0] != "2025-06-03" || rows[4][0] != "2025-06-04" {
		t.Errorf("row order = %q .. %q", rows[1][0], rows[4][0])
	}
}

func TestCSVStoreCorrupt(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantLine int
	}{
		{"missing close column", "Date,Open,High,Low,Volume\n2025-06-02,1,1,1,1\n", 1},
		{"bad number", "Date,Open,High,Low,Close,Volume\n2025-06-02,1,1,1,1,1\n2025-06-03,1,1,1,abc,1\n", 3},
		{"bad date", "Date,Open,High,Low,Close,Volume\nyesterday,1,1,1,1,1\n", 2},
		{"empty close", "Date,Open,High,Low,Close,Volume\n2025-06-02,1,1,1,,1\n", 2},
		{"ragged row", "Date,Open,High,Low,Close,Volume\n2025-06-02,1,1\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "amd_history.csv")
			writeFile(t, path, tt.content)
			s := NewCSVStore(path)

			_, err := s.Load(context.Background())
			var ce *domain.CorruptStoreError
			if !errors.As(err, &ce) {
				t.Fatalf("Load error = %v, want CorruptStoreError", err)
			}
			if ce.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d", ce.Line, tt.wantLine)
			}

			_, err = s.Append(context.Background(), domain.DailyBar{Date: "2025-06-05", Open: 1, High: 1, Low: 1, Close: 1, Volume: 1})
			if !errors.As(err, &ce) {
				t.Errorf("Append error = %v, want CorruptStoreError", err)
			}

			after, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if string(after) != tt.content {
				t.Error("corrupt store was rewritten")
			}
		})
	}
}

func TestCSVStoreEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amd_history.csv")
	writeFile(t, path, "")
	s := NewCSVStore(path)

	bars, err := s.Load(context.Background())
	if err != nil || len(bars) != 0 {
		t.Fatalf("Load = %d bars, %v; want 0, nil", len(bars), err)
	}
	inserted, err := s.Append(context.Background(), domain.DailyBar{Date: "2025-06-02", Symbol: "AMD", Open: 1, High: 1, Low: 1, Close: 1, Volume: 1})
	if err != nil || !inserted {
		t.Errorf("Append = %v, %v; want true, nil", inserted, err)
	}
}
