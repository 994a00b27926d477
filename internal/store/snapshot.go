package store

import (
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"dailybar/internal/domain"
)

// Paths locates the per-symbol artifacts under a data directory.
type Paths struct {
	History string // <dir>/<symbol>_history.csv
	Latest  string // <dir>/<symbol>_latest.json
	Report  string // <dir>/<symbol>_report.json
}

// PathsFor returns the artifact paths for symbol. File names use the
// lower-cased symbol.
func PathsFor(dataDir, symbol string) Paths {
	base := strings.ToLower(symbol)
	return Paths{
		History: filepath.Join(dataDir, base+"_history.csv"),
		Latest:  filepath.Join(dataDir, base+"_latest.json"),
		Report:  filepath.Join(dataDir, base+"_report.json"),
	}
}

// WriteLatest replaces the latest-bar snapshot.
func WriteLatest(path string, bar domain.DailyBar) error {
	return writeJSON(path, bar)
}

// WriteSentinel writes the fallback record at the latest-bar path.
func WriteSentinel(path string, rec domain.SentinelRecord) error {
	return writeJSON(path, rec)
}

// WriteReport replaces the summary report.
func WriteReport(path string, report domain.SummaryReport) error {
	return writeJSON(path, report)
}

func writeJSON(path string, v any) error {
	return writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}
