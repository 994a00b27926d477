package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/guregu/null/v6"

	"dailybar/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ HistoryStore = (*SQLiteStore)(nil)
var _ RunRecorder = (*SQLiteStore)(nil)

// SQLiteStore implements HistoryStore and RunRecorder backed by a SQLite
// database. Uniqueness of (symbol, date) is enforced by the primary key.
type SQLiteStore struct {
	db     *sql.DB
	symbol string
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs
// migrations and returns a store scoped to symbol.
func NewSQLiteStore(dbPath, symbol string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, symbol: strings.ToUpper(symbol)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS daily_bars (
			symbol               TEXT NOT NULL,
			date                 TEXT NOT NULL,
			open                 REAL NOT NULL,
			high                 REAL NOT NULL,
			low                  REAL NOT NULL,
			close                REAL NOT NULL,
			volume               INTEGER NOT NULL,
			market_cap           REAL,
			pe_ratio             REAL,
			dividend_yield       REAL,
			beta                 REAL,
			high_52w             REAL,
			low_52w              REAL,
			avg_volume           INTEGER,
			extraction_timestamp TEXT,
			PRIMARY KEY (symbol, date)
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol      TEXT NOT NULL,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			outcome     TEXT NOT NULL,
			date        TEXT,
			inserted    INTEGER NOT NULL,
			error       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_symbol_started ON runs(symbol, started_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// HistoryStore implementation
// ---------------------------------------------------------------------------

// Load returns all rows for the store's symbol ordered by date.
func (s *SQLiteStore) Load(ctx context.Context) ([]domain.DailyBar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, symbol, open, high, low, close, volume,
		       market_cap, pe_ratio, dividend_yield, beta, high_52w, low_52w,
		       avg_volume, extraction_timestamp
		FROM daily_bars WHERE symbol = ? ORDER BY date`, s.symbol)
	if err != nil {
		return nil, fmt.Errorf("query daily_bars: %w", err)
	}
	defer rows.Close()

	var bars []domain.DailyBar
	for rows.Next() {
		var (
			b  domain.DailyBar
			ts null.String
		)
		if err := rows.Scan(
			&b.Date, &b.Symbol, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume,
			&b.MarketCap, &b.PERatio, &b.DividendYield, &b.Beta,
			&b.FiftyTwoWeekHigh, &b.FiftyTwoWeekLow, &b.AvgVolume, &ts,
		); err != nil {
			return nil, fmt.Errorf("scan daily_bars: %w", err)
		}
		if ts.Valid {
			if t, err := time.Parse(time.RFC3339Nano, ts.String); err == nil {
				b.ExtractionTimestamp = t
			}
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Append inserts bar unless (symbol, date) already exists.
func (s *SQLiteStore) Append(ctx context.Context, bar domain.DailyBar) (bool, error) {
	key, err := domain.NormalizeDate(bar.Date)
	if err != nil {
		return false, fmt.Errorf("record key: %w", err)
	}
	symbol := strings.ToUpper(bar.Symbol)
	if symbol == "" {
		symbol = s.symbol
	}
	var ts null.String
	if !bar.ExtractionTimestamp.IsZero() {
		ts = null.StringFrom(bar.ExtractionTimestamp.Format(time.RFC3339Nano))
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO daily_bars (
			symbol, date, open, high, low, close, volume,
			market_cap, pe_ratio, dividend_yield, beta, high_52w, low_52w,
			avg_volume, extraction_timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		symbol, key, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume,
		bar.MarketCap, bar.PERatio, bar.DividendYield, bar.Beta,
		bar.FiftyTwoWeekHigh, bar.FiftyTwoWeekLow, bar.AvgVolume, ts,
	)
	if err != nil {
		return false, &domain.PersistenceError{Op: "insert daily_bars", Path: symbol, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ---------------------------------------------------------------------------
// RunRecorder implementation
// ---------------------------------------------------------------------------

// RecordRun appends one row to the run log.
func (s *SQLiteStore) RecordRun(ctx context.Context, run domain.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (symbol, started_at, finished_at, outcome, date, inserted, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		strings.ToUpper(run.Symbol),
		run.StartedAt.UnixMilli(),
		run.FinishedAt.UnixMilli(),
		string(run.Outcome),
		null.NewString(run.Date, run.Date != ""),
		run.Inserted,
		null.NewString(run.Error, run.Error != ""),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs for the store's symbol, newest first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, started_at, finished_at, outcome, date, inserted, error
		FROM runs WHERE symbol = ? ORDER BY started_at DESC, id DESC LIMIT ?`, s.symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		var (
			r                 domain.RunRecord
			started, finished int64
			outcome           string
			date, errText     null.String
		)
		if err := rows.Scan(&r.Symbol, &started, &finished, &outcome, &date, &r.Inserted, &errText); err != nil {
			return nil, fmt.Errorf("scan runs: %w", err)
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		r.FinishedAt = time.UnixMilli(finished).UTC()
		r.Outcome = domain.RunOutcome(outcome)
		r.Date = date.ValueOrZero()
		r.Error = errText.ValueOrZero()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
