package commands

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"dailybar/internal/config"
	"dailybar/internal/gather"
	"dailybar/internal/gather/us"
	"dailybar/internal/gather/yahoo"
	"dailybar/internal/store"
	"dailybar/internal/util"
)

// settleAfterClose matches the Alpaca adapter's 20:05 ET cutoff.
const settleAfterClose = 4*time.Hour + 5*time.Minute

// app holds everything one command invocation needs.
type app struct {
	cfg      *config.Config
	gatherer *gather.DailyGatherer
	runs     *store.SQLiteStore // nil unless storage.sqlite_path is set
	closers  []io.Closer
}

// newApp loads the configuration, installs the default logger and wires the
// pipeline.
func newApp(cfgPath, symbol string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if symbol != "" {
		cfg.Extract.Symbol = strings.ToUpper(strings.TrimSpace(symbol))
	}

	a := &app{cfg: cfg}
	out, closer, logErr := util.OpenLogOutput(cfg.Logging.File)
	if logErr != nil {
		out = nil
	} else {
		a.closers = append(a.closers, closer)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, out))
	if logErr != nil {
		slog.Warn("log file unavailable, logging to stderr only", "path", cfg.Logging.File, "error", logErr)
	}

	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	cfg := a.cfg
	loc, err := cfg.Extract.Location()
	if err != nil {
		return err
	}
	cal := util.NewTradingCalendar(loc).WithSettle(settleAfterClose)

	bars, meta, err := buildProviders(cfg, cal)
	if err != nil {
		return err
	}
	throttled := gather.NewThrottled(bars, meta, cfg.Extract.RateLimitPerMin)

	symbol := cfg.Extract.Symbol
	paths := store.PathsFor(cfg.Storage.DataDir, symbol)
	g := gather.NewDailyGatherer(throttled.Bars(), throttled.Metadata(), store.NewCSVStore(paths.History), gather.Options{
		Symbol:       symbol,
		LookbackDays: cfg.Extract.LookbackDays,
		Window:       cfg.Extract.WindowSize,
		Calendar:     cal,
		Paths:        paths,
	})

	var mirrors []store.HistoryStore
	if cfg.Storage.ParquetMirror {
		mirrors = append(mirrors, store.NewParquetStore(cfg.Storage.DataDir, "us", symbol))
	}
	if cfg.Storage.SQLitePath != "" {
		db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath, symbol)
		if err != nil {
			slog.Warn("sqlite mirror unavailable, continuing without run log",
				"path", cfg.Storage.SQLitePath, "error", err)
		} else {
			a.runs = db
			a.closers = append(a.closers, db)
			mirrors = append(mirrors, db)
			g.SetRecorder(db)
		}
	}
	g.SetMirrors(mirrors...)

	a.gatherer = g
	slog.Info("pipeline ready",
		"symbol", symbol, "provider", bars.Name(), "enrich", meta != nil,
		"dataDir", cfg.Storage.DataDir, "mirrors", len(mirrors))
	return nil
}

// buildProviders is replaced in tests.
var buildProviders = providers

// providers builds the bar and metadata providers named by the config.
// Enrichment always comes from Yahoo; it needs no credentials.
func providers(cfg *config.Config, cal *util.TradingCalendar) (gather.BarProvider, gather.MetadataProvider, error) {
	yp := yahoo.NewProvider(cal)

	var meta gather.MetadataProvider
	if cfg.Extract.EnrichEnabled() {
		meta = yp
	}

	switch cfg.ResolvedProvider() {
	case config.ProviderAlpaca:
		ap, err := us.NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.BaseURL, cfg.Alpaca.Feed)
		if err != nil {
			return nil, nil, fmt.Errorf("creating alpaca provider: %w", err)
		}
		return ap, meta, nil
	case config.ProviderYahoo:
		return yp, meta, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.Extract.Provider)
	}
}

// Close releases the database and log file.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
