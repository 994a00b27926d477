package util

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", "json", &buf)

	logger.Info("hidden")
	logger.Warn("shown", "symbol", "AMD")

	out := strings.TrimSpace(buf.String())
	if strings.Contains(out, "hidden") {
		t.Errorf("info record should be filtered at warn level: %s", out)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, out)
	}
	if rec["symbol"] != "AMD" {
		t.Errorf("symbol = %v, want AMD", rec["symbol"])
	}
}

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	NewLogger("info", "text", &buf).Info("hello", "k", "v")
	if !strings.Contains(buf.String(), "k=v") {
		t.Errorf("text output missing k=v: %s", buf.String())
	}
}

func TestOpenLogOutput(t *testing.T) {
	w, c, err := OpenLogOutput("")
	if err != nil {
		t.Fatalf("OpenLogOutput(\"\"): %v", err)
	}
	if w != os.Stderr {
		t.Errorf("default log output = %v, want os.Stderr", w)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}

	path := filepath.Join(t.TempDir(), "dailybar.log")
	w, c, err = OpenLogOutput(path)
	if err != nil {
		t.Fatalf("OpenLogOutput(%s): %v", path, err)
	}
	NewLogger("info", "text", w).Info("to file", "k", "v")
	c.Close()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "k=v") {
		t.Errorf("log file missing record: %s", data)
	}

	if _, _, err := OpenLogOutput(filepath.Join(t.TempDir(), "missing", "dailybar.log")); err == nil {
		t.Error("OpenLogOutput in a missing directory returned nil error")
	}
}

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func TestTradingCalendarLastSession(t *testing.T) {
	loc := newYork(t)
	cal := NewTradingCalendar(loc)

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"tuesday after close", time.Date(2025, 6, 3, 17, 0, 0, 0, loc), "2025-06-03"},
		{"tuesday midday", time.Date(2025, 6, 3, 11, 0, 0, 0, loc), "2025-06-02"},
		{"monday morning", time.Date(2025, 6, 2, 9, 0, 0, 0, loc), "2025-05-30"},
		{"saturday", time.Date(2025, 6, 7, 12, 0, 0, 0, loc), "2025-06-06"},
		{"sunday night", time.Date(2025, 6, 8, 23, 0, 0, 0, loc), "2025-06-06"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cal.LastSession(tt.now).Format("2006-01-02")
			if got != tt.want {
				t.Errorf("LastSession(%v) = %s, want %s", tt.now, got, tt.want)
			}
		})
	}
}

func TestTradingCalendarSettle(t *testing.T) {
	loc := newYork(t)
	cal := NewTradingCalendar(loc).WithSettle(4*time.Hour + 5*time.Minute)

	at := time.Date(2025, 6, 3, 20, 0, 0, 0, loc)
	if got := cal.LastSession(at).Format("2006-01-02"); got != "2025-06-02" {
		t.Errorf("LastSession before settle = %s, want 2025-06-02", got)
	}
	at = time.Date(2025, 6, 3, 20, 10, 0, 0, loc)
	if got := cal.LastSession(at).Format("2006-01-02"); got != "2025-06-03" {
		t.Errorf("LastSession after settle = %s, want 2025-06-03", got)
	}
}

func TestTradingCalendarLookbackRange(t *testing.T) {
	cal := NewTradingCalendar(nil)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	start, end := cal.LookbackRange(now, 7)
	if !end.Equal(now) {
		t.Errorf("end = %v, want %v", end, now)
	}
	if want := now.AddDate(0, 0, -7); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
	if cal.IsTradingDay(time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC)) {
		t.Error("Sunday reported as trading day")
	}
}
