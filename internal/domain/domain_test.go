package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/guregu/null/v6"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2025-03-10", "2025-03-10"},
		{" 2025-03-10 ", "2025-03-10"},
		{"03/10/2025", "2025-03-10"},
		{"3/10/2025", "2025-03-10"},
		{"2025/03/10", "2025-03-10"},
		{"20250310", "2025-03-10"},
		{"2025-03-10T00:00:00-04:00", "2025-03-10"},
		{"2025-03-10 00:00:00-04:00", "2025-03-10"},
		{"2025-03-10 15:30:00", "2025-03-10"},
		{"Mar 10, 2025", "2025-03-10"},
		{"10-Mar-2025", "2025-03-10"},
	}
	for _, tt := range tests {
		got, err := NormalizeDate(tt.in)
		if err != nil {
			t.Errorf("NormalizeDate(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeDateInvalid(t *testing.T) {
	for _, in := range []string{"", "not a date", "2025-13-40"} {
		if _, err := NormalizeDate(in); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("NormalizeDate(%q) error = %v, want ErrInvalidDate", in, err)
		}
	}
}

func TestDateIn(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 02:00 UTC on June 3 is still June 2 in New York.
	ts := time.Date(2025, 6, 3, 2, 0, 0, 0, time.UTC)
	if got := DateIn(ts, ny); got != "2025-06-02" {
		t.Errorf("DateIn(ny) = %q, want 2025-06-02", got)
	}
	if got := DateIn(ts, nil); got != "2025-06-03" {
		t.Errorf("DateIn(nil) = %q, want 2025-06-03", got)
	}
}

func TestDailyBarJSONOmitsAbsentEnrichment(t *testing.T) {
	bar := DailyBar{
		Date: "2025-06-02", Symbol: "AMD",
		Open: 100, High: 105, Low: 99, Close: 104, Volume: 1000000,
	}
	bar.PERatio = null.FloatFrom(0)

	data, err := json.Marshal(bar)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)
	if strings.Contains(s, "market_cap") {
		t.Errorf("absent market_cap should be omitted: %s", s)
	}
	if !strings.Contains(s, `"pe_ratio":0`) {
		t.Errorf("present zero pe_ratio should be kept: %s", s)
	}
	if strings.Contains(s, "extraction_timestamp") {
		t.Errorf("zero extraction_timestamp should be omitted: %s", s)
	}
}

func TestNewSentinel(t *testing.T) {
	at := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)
	rec := NewSentinel("AMD", "2025-06-03", at, &ProviderError{Provider: "yahoo", Err: errors.New("timeout")})

	if rec.Open != 0 || rec.High != 0 || rec.Low != 0 || rec.Close != 0 || rec.Volume != 0 {
		t.Errorf("sentinel numeric fields should be zero: %+v", rec.DailyBar)
	}
	if rec.Error == "" {
		t.Error("sentinel error should be populated")
	}
	if rec.ErrorKind != "provider" {
		t.Errorf("ErrorKind = %q, want provider", rec.ErrorKind)
	}
	if !rec.Enrichment.Empty() {
		t.Error("sentinel enrichment should be absent")
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&NoDataError{Symbol: "AMD"}, "no_data"},
		{fmt.Errorf("fetch: %w", &ProviderError{Provider: "alpaca", Err: errors.New("401")}), "provider"},
		{&MalformedBarError{Field: "close"}, "malformed"},
		{&CorruptStoreError{Path: "x.csv", Line: 3, Reason: "bad"}, "corrupt_store"},
		{&PersistenceError{Op: "rename", Path: "x", Err: errors.New("eperm")}, "persistence"},
		{ErrEmptyStore, "empty_store"},
		{errors.New("other"), "unknown"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
