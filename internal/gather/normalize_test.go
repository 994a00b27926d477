package gather

import (
	"errors"
	"testing"
	"time"

	"github.com/guregu/null/v6"

	"dailybar/internal/domain"
)

func rawBar(ts time.Time, o, h, l, c float64, v int64) domain.RawBar {
	return domain.RawBar{
		Timestamp: ts,
		Open:      null.FloatFrom(o),
		High:      null.FloatFrom(h),
		Low:       null.FloatFrom(l),
		Close:     null.FloatFrom(c),
		Volume:    null.IntFrom(v),
	}
}

func TestNormalizeSelectsLastBar(t *testing.T) {
	raw := []domain.RawBar{
		rawBar(time.Date(2025, 5, 30, 4, 0, 0, 0, time.UTC), 1, 2, 0.5, 1.5, 10),
		rawBar(time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC), 100, 105, 99, 104, 1000000),
	}
	meta := domain.Enrichment{MarketCap: null.FloatFrom(1.6e11)}
	at := time.Date(2025, 6, 3, 1, 0, 0, 0, time.UTC)

	bar, err := Normalize("AMD", raw, meta, time.UTC, at)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if bar.Date != "2025-06-02" {
		t.Errorf("Date = %q, want 2025-06-02", bar.Date)
	}
	if bar.Open != 100 || bar.High != 105 || bar.Low != 99 || bar.Close != 104 || bar.Volume != 1000000 {
		t.Errorf("OHLCV = %v/%v/%v/%v/%v, want 100/105/99/104/1000000", bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
	}
	if bar.MarketCap.Float64 != 1.6e11 {
		t.Errorf("MarketCap = %v, want 1.6e11", bar.MarketCap)
	}
	if bar.PERatio.Valid {
		t.Errorf("PERatio = %v, want absent", bar.PERatio)
	}
	if !bar.ExtractionTimestamp.Equal(at) {
		t.Errorf("ExtractionTimestamp = %v, want %v", bar.ExtractionTimestamp, at)
	}
}

func TestNormalizeUsesMarketZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// A bar stamped 01:00 UTC belongs to the previous New York day.
	raw := []domain.RawBar{rawBar(time.Date(2025, 6, 3, 1, 0, 0, 0, time.UTC), 1, 1, 1, 1, 1)}
	bar, err := Normalize("AMD", raw, domain.Enrichment{}, ny, time.Now())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if bar.Date != "2025-06-02" {
		t.Errorf("Date = %q, want 2025-06-02", bar.Date)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	_, err := Normalize("AMD", nil, domain.Enrichment{}, time.UTC, time.Now())
	var nd *domain.NoDataError
	if !errors.As(err, &nd) {
		t.Fatalf("Normalize(nil) error = %v, want NoDataError", err)
	}
}

func TestNormalizeMalformed(t *testing.T) {
	ts := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		mut   func(*domain.RawBar)
		field string
	}{
		{"missing open", func(b *domain.RawBar) { b.Open = null.Float{} }, "open"},
		{"missing close", func(b *domain.RawBar) { b.Close = null.Float{} }, "close"},
		{"missing volume", func(b *domain.RawBar) { b.Volume = null.Int{} }, "volume"},
		{"negative low", func(b *domain.RawBar) { b.Low = null.FloatFrom(-1) }, "low"},
		{"negative volume", func(b *domain.RawBar) { b.Volume = null.IntFrom(-5) }, "volume"},
		{"zero timestamp", func(b *domain.RawBar) { b.Timestamp = time.Time{} }, "timestamp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := rawBar(ts, 100, 105, 99, 104, 1000)
			tt.mut(&b)
			_, err := Normalize("AMD", []domain.RawBar{b}, domain.Enrichment{}, time.UTC, time.Now())
			var me *domain.MalformedBarError
			if !errors.As(err, &me) {
				t.Fatalf("error = %v, want MalformedBarError", err)
			}
			if me.Field != tt.field {
				t.Errorf("Field = %q, want %q", me.Field, tt.field)
			}
		})
	}
}
