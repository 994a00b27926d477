package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"

	"dailybar/internal/domain"
)

// Compile-time interface check.
var _ HistoryStore = (*CSVStore)(nil)

// CSVStore implements HistoryStore as a single CSV file that is rewritten in
// full on every insert. Columns are located by header name so files written
// by older tools, or with extra columns, round-trip intact.
type CSVStore struct {
	Path string
}

// NewCSVStore creates a CSVStore backed by the file at path.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{Path: path}
}

// ---------------------------------------------------------------------------
// Column schema
// ---------------------------------------------------------------------------

type csvField int

const (
	fieldUnknown csvField = iota
	fieldDate
	fieldSymbol
	fieldOpen
	fieldHigh
	fieldLow
	fieldClose
	fieldVolume
	fieldMarketCap
	fieldPERatio
	fieldDividendYield
	fieldBeta
	fieldFiftyTwoWeekHigh
	fieldFiftyTwoWeekLow
	fieldAvgVolume
	fieldExtractionTimestamp
)

// canonicalColumns lists known fields in the order new columns are written.
var canonicalColumns = []struct {
	field csvField
	name  string
}{
	{fieldDate, "Date"},
	{fieldSymbol, "Symbol"},
	{fieldOpen, "Open"},
	{fieldHigh, "High"},
	{fieldLow, "Low"},
	{fieldClose, "Close"},
	{fieldVolume, "Volume"},
	{fieldMarketCap, "MarketCap"},
	{fieldPERatio, "PERatio"},
	{fieldDividendYield, "DividendYield"},
	{fieldBeta, "Beta"},
	{fieldFiftyTwoWeekHigh, "FiftyTwoWeekHigh"},
	{fieldFiftyTwoWeekLow, "FiftyTwoWeekLow"},
	{fieldAvgVolume, "AvgVolume"},
	{fieldExtractionTimestamp, "ExtractionTimestamp"},
}

// columnAliases maps folded header names to fields.
var columnAliases = map[string]csvField{
	"date":                fieldDate,
	"symbol":              fieldSymbol,
	"ticker":              fieldSymbol,
	"open":                fieldOpen,
	"high":                fieldHigh,
	"low":                 fieldLow,
	"close":               fieldClose,
	"volume":              fieldVolume,
	"marketcap":           fieldMarketCap,
	"peratio":             fieldPERatio,
	"trailingpe":          fieldPERatio,
	"dividendyield":       fieldDividendYield,
	"beta":                fieldBeta,
	"fiftytwoweekhigh":    fieldFiftyTwoWeekHigh,
	"52weekhigh":          fieldFiftyTwoWeekHigh,
	"fiftytwoweeklow":     fieldFiftyTwoWeekLow,
	"52weeklow":           fieldFiftyTwoWeekLow,
	"avgvolume":           fieldAvgVolume,
	"averagevolume":       fieldAvgVolume,
	"extractiontimestamp": fieldExtractionTimestamp,
}

var requiredFields = []csvField{fieldDate, fieldOpen, fieldHigh, fieldLow, fieldClose, fieldVolume}

// foldColumn lower-cases name and drops separators so "52_week_high",
// "FiftyTwoWeekHigh" and "market cap" compare by meaning.
func foldColumn(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch r {
		case '_', '-', ' ', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func lookupField(name string) csvField {
	return columnAliases[foldColumn(name)]
}

func canonicalName(f csvField) string {
	for _, c := range canonicalColumns {
		if c.field == f {
			return c.name
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// In-memory table
// ---------------------------------------------------------------------------

// csvTable is the raw file content. Unknown columns are carried as opaque
// cells; known columns are decoded on demand.
type csvTable struct {
	header []string
	fields []csvField
	index  map[csvField]int // first column for each known field
	rows   [][]string
}

func newTable(header []string) *csvTable {
	t := &csvTable{index: make(map[csvField]int)}
	for _, h := range header {
		t.addColumn(h, lookupField(h))
	}
	return t
}

func (t *csvTable) addColumn(name string, f csvField) {
	t.header = append(t.header, name)
	t.fields = append(t.fields, f)
	if f != fieldUnknown {
		if _, dup := t.index[f]; !dup {
			t.index[f] = len(t.header) - 1
		}
	}
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], "")
	}
}

func (t *csvTable) has(f csvField) bool {
	_, ok := t.index[f]
	return ok
}

func (t *csvTable) cell(row []string, f csvField) string {
	i, ok := t.index[f]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// readTable loads the CSV at path. A missing or empty file yields an empty
// table with no header.
func (s *CSVStore) readTable() (*csvTable, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newTable(nil), nil
		}
		return nil, fmt.Errorf("opening %s: %w", s.Path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err == io.EOF {
		return newTable(nil), nil
	}
	if err != nil {
		return nil, corruptFromCSV(s.Path, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	t := newTable(header)
	for _, rf := range requiredFields {
		if !t.has(rf) {
			return nil, &domain.CorruptStoreError{
				Path:   s.Path,
				Line:   1,
				Reason: fmt.Sprintf("missing required column %s", canonicalName(rf)),
			}
		}
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, corruptFromCSV(s.Path, err)
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func corruptFromCSV(path string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &domain.CorruptStoreError{Path: path, Line: pe.Line, Reason: pe.Err.Error()}
	}
	return &domain.CorruptStoreError{Path: path, Reason: err.Error()}
}

// decode parses every row. Records keep file order.
func (s *CSVStore) decode(t *csvTable) ([]domain.DailyBar, error) {
	bars := make([]domain.DailyBar, 0, len(t.rows))
	for i, row := range t.rows {
		bar, err := t.decodeRow(row)
		if err != nil {
			return nil, &domain.CorruptStoreError{Path: s.Path, Line: i + 2, Reason: err.Error()}
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func (t *csvTable) decodeRow(row []string) (domain.DailyBar, error) {
	var (
		bar domain.DailyBar
		err error
	)
	if bar.Date, err = domain.NormalizeDate(t.cell(row, fieldDate)); err != nil {
		return bar, err
	}
	bar.Symbol = t.cell(row, fieldSymbol)

	prices := []struct {
		f   csvField
		dst *float64
	}{
		{fieldOpen, &bar.Open},
		{fieldHigh, &bar.High},
		{fieldLow, &bar.Low},
		{fieldClose, &bar.Close},
	}
	for _, p := range prices {
		v, err := parseOptionalFloat(t.cell(row, p.f))
		if err != nil {
			return bar, fmt.Errorf("column %s: %w", canonicalName(p.f), err)
		}
		if !v.Valid {
			return bar, fmt.Errorf("column %s: empty", canonicalName(p.f))
		}
		*p.dst = v.Float64
	}
	vol, err := parseOptionalInt(t.cell(row, fieldVolume))
	if err != nil {
		return bar, fmt.Errorf("column Volume: %w", err)
	}
	if !vol.Valid {
		return bar, errors.New("column Volume: empty")
	}
	bar.Volume = vol.Int64

	optional := []struct {
		f   csvField
		dst *null.Float
	}{
		{fieldMarketCap, &bar.MarketCap},
		{fieldPERatio, &bar.PERatio},
		{fieldDividendYield, &bar.DividendYield},
		{fieldBeta, &bar.Beta},
		{fieldFiftyTwoWeekHigh, &bar.FiftyTwoWeekHigh},
		{fieldFiftyTwoWeekLow, &bar.FiftyTwoWeekLow},
	}
	for _, o := range optional {
		v, err := parseOptionalFloat(t.cell(row, o.f))
		if err != nil {
			return bar, fmt.Errorf("column %s: %w", canonicalName(o.f), err)
		}
		*o.dst = v
	}
	if bar.AvgVolume, err = parseOptionalInt(t.cell(row, fieldAvgVolume)); err != nil {
		return bar, fmt.Errorf("column AvgVolume: %w", err)
	}

	if ts := t.cell(row, fieldExtractionTimestamp); !isAbsent(ts) {
		if bar.ExtractionTimestamp, err = parseTimestamp(ts); err != nil {
			return bar, fmt.Errorf("column ExtractionTimestamp: %w", err)
		}
	}
	return bar, nil
}

// ---------------------------------------------------------------------------
// Cell codecs
// ---------------------------------------------------------------------------

func isAbsent(s string) bool {
	switch strings.ToLower(s) {
	case "", "nan", "none", "null", "na", "n/a":
		return true
	}
	return false
}

func parseOptionalFloat(s string) (null.Float, error) {
	if isAbsent(s) {
		return null.Float{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return null.Float{}, fmt.Errorf("invalid number %q", s)
	}
	return null.FloatFrom(v), nil
}

// parseOptionalInt accepts integral floats such as "1000000.0".
func parseOptionalInt(s string) (null.Int, error) {
	if isAbsent(s) {
		return null.Int{}, nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return null.IntFrom(v), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return null.Int{}, fmt.Errorf("invalid integer %q", s)
	}
	return null.IntFrom(int64(f)), nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatNullFloat(v null.Float) string {
	if !v.Valid {
		return ""
	}
	return formatFloat(v.Float64)
}

// fieldValue returns the encoded cell for f and whether the record carries
// a value for it.
func fieldValue(bar domain.DailyBar, f csvField) (string, bool) {
	switch f {
	case fieldDate:
		return bar.Date, true
	case fieldSymbol:
		return bar.Symbol, true
	case fieldOpen:
		return formatFloat(bar.Open), true
	case fieldHigh:
		return formatFloat(bar.High), true
	case fieldLow:
		return formatFloat(bar.Low), true
	case fieldClose:
		return formatFloat(bar.Close), true
	case fieldVolume:
		return strconv.FormatInt(bar.Volume, 10), true
	case fieldMarketCap:
		return formatNullFloat(bar.MarketCap), bar.MarketCap.Valid
	case fieldPERatio:
		return formatNullFloat(bar.PERatio), bar.PERatio.Valid
	case fieldDividendYield:
		return formatNullFloat(bar.DividendYield), bar.DividendYield.Valid
	case fieldBeta:
		return formatNullFloat(bar.Beta), bar.Beta.Valid
	case fieldFiftyTwoWeekHigh:
		return formatNullFloat(bar.FiftyTwoWeekHigh), bar.FiftyTwoWeekHigh.Valid
	case fieldFiftyTwoWeekLow:
		return formatNullFloat(bar.FiftyTwoWeekLow), bar.FiftyTwoWeekLow.Valid
	case fieldAvgVolume:
		if !bar.AvgVolume.Valid {
			return "", false
		}
		return strconv.FormatInt(bar.AvgVolume.Int64, 10), true
	case fieldExtractionTimestamp:
		if bar.ExtractionTimestamp.IsZero() {
			return "", false
		}
		return bar.ExtractionTimestamp.Format(time.RFC3339Nano), true
	}
	return "", false
}

// ---------------------------------------------------------------------------
// HistoryStore implementation
// ---------------------------------------------------------------------------

// Load reads the store and returns one record per date sorted by date. When
// a legacy file holds the same date twice the first row wins.
func (s *CSVStore) Load(ctx context.Context) ([]domain.DailyBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := s.readTable()
	if err != nil {
		return nil, err
	}
	rows, err := s.decode(t)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(rows))
	bars := make([]domain.DailyBar, 0, len(rows))
	for _, b := range rows {
		if _, dup := seen[b.Date]; dup {
			continue
		}
		seen[b.Date] = struct{}{}
		bars = append(bars, b)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
	return bars, nil
}

// Append inserts bar when its date is new and rewrites the file atomically.
// Existing rows, including unknown columns, are written back unchanged.
func (s *CSVStore) Append(ctx context.Context, bar domain.DailyBar) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key, err := domain.NormalizeDate(bar.Date)
	if err != nil {
		return false, fmt.Errorf("record key: %w", err)
	}
	bar.Date = key

	t, err := s.readTable()
	if err != nil {
		return false, err
	}
	existing, err := s.decode(t)
	if err != nil {
		return false, err
	}
	for _, b := range existing {
		if b.Date == key {
			return false, nil
		}
	}

	for _, c := range canonicalColumns {
		if t.has(c.field) {
			continue
		}
		if _, present := fieldValue(bar, c.field); present {
			t.addColumn(c.name, c.field)
		}
	}

	row := make([]string, len(t.header))
	for i, f := range t.fields {
		if f == fieldUnknown || t.index[f] != i {
			continue
		}
		row[i], _ = fieldValue(bar, f)
	}
	t.rows = append(t.rows, row)

	err = writeAtomic(s.Path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(t.header); err != nil {
			return err
		}
		if err := cw.WriteAll(t.rows); err != nil {
			return err
		}
		return cw.Error()
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
