package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dailybar/internal/domain"
	"dailybar/internal/report"
	"dailybar/internal/store"
	"dailybar/internal/util"
)

var _ Gatherer = (*DailyGatherer)(nil)

// ---------------------------------------------------------------------------
// Fetch results
// ---------------------------------------------------------------------------

// FetchKind discriminates the outcome of fetching and normalizing a bar.
type FetchKind int

const (
	FetchOK FetchKind = iota
	FetchNoData
	FetchProviderFailure
	FetchMalformed
)

func (k FetchKind) String() string {
	switch k {
	case FetchOK:
		return "ok"
	case FetchNoData:
		return "no_data"
	case FetchProviderFailure:
		return "provider_failure"
	case FetchMalformed:
		return "malformed"
	}
	return fmt.Sprintf("FetchKind(%d)", int(k))
}

// FetchResult carries either a normalized bar (Kind == FetchOK) or the error
// that prevented one.
type FetchResult struct {
	Kind FetchKind
	Bar  domain.DailyBar
	Err  error
}

// classify maps a fetch or normalize error to its FetchKind. Errors that are
// not typed by the provider are treated as provider failures.
func classify(provider string, err error) FetchResult {
	var (
		noData    *domain.NoDataError
		malformed *domain.MalformedBarError
		perr      *domain.ProviderError
	)
	switch {
	case errors.As(err, &noData):
		return FetchResult{Kind: FetchNoData, Err: err}
	case errors.As(err, &malformed):
		return FetchResult{Kind: FetchMalformed, Err: err}
	case errors.As(err, &perr):
		return FetchResult{Kind: FetchProviderFailure, Err: err}
	default:
		return FetchResult{Kind: FetchProviderFailure, Err: &domain.ProviderError{Provider: provider, Err: err}}
	}
}

// ---------------------------------------------------------------------------
// DailyGatherer
// ---------------------------------------------------------------------------

// Options configures a DailyGatherer.
type Options struct {
	Symbol       string
	LookbackDays int
	Window       int
	Calendar     *util.TradingCalendar
	Paths        store.Paths
}

// Outcome summarises one Extract call.
type Outcome struct {
	Result   FetchResult
	Run      domain.RunOutcome
	Inserted bool
	Report   *domain.SummaryReport
	Sentinel *domain.SentinelRecord
}

// DailyGatherer runs the single-pass pipeline: fetch, normalize, snapshot,
// append, summarize. When no real bar can be produced it writes a sentinel
// at the latest-snapshot path instead.
type DailyGatherer struct {
	bars     BarProvider
	meta     MetadataProvider
	history  store.HistoryStore
	mirrors  []store.HistoryStore
	recorder store.RunRecorder
	opts     Options
	now      func() time.Time
	log      *slog.Logger
}

// NewDailyGatherer creates a DailyGatherer. meta may be nil to skip
// enrichment.
func NewDailyGatherer(bars BarProvider, meta MetadataProvider, history store.HistoryStore, opts Options) *DailyGatherer {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 7
	}
	if opts.Window <= 0 {
		opts.Window = report.DefaultWindow
	}
	if opts.Calendar == nil {
		opts.Calendar = util.NewTradingCalendar(nil)
	}
	return &DailyGatherer{
		bars:     bars,
		meta:     meta,
		history:  history,
		recorder: store.NewNoopRecorder(),
		opts:     opts,
		now:      time.Now,
		log:      slog.Default().With("gatherer", "daily", "symbol", opts.Symbol),
	}
}

// SetMirrors sets stores that receive every new bar on a best-effort basis.
func (g *DailyGatherer) SetMirrors(mirrors ...store.HistoryStore) { g.mirrors = mirrors }

// SetRecorder sets the run log.
func (g *DailyGatherer) SetRecorder(r store.RunRecorder) { g.recorder = r }

// SetClock overrides the time source.
func (g *DailyGatherer) SetClock(now func() time.Time) { g.now = now }

// Name returns the gatherer identifier.
func (g *DailyGatherer) Name() string { return "daily" }

// Run performs one Extract pass.
func (g *DailyGatherer) Run(ctx context.Context) error {
	_, err := g.Extract(ctx)
	return err
}

// Extract runs the pipeline once. The returned error is non-nil only when
// nothing durable could be written (the sentinel write failed) or when the
// history store is corrupt or could not be rewritten.
func (g *DailyGatherer) Extract(ctx context.Context) (*Outcome, error) {
	started := g.now()
	res := g.fetch(ctx)
	if res.Kind != FetchOK {
		return g.fallback(ctx, started, res)
	}
	bar := res.Bar
	out := &Outcome{Result: res}

	if err := store.WriteLatest(g.opts.Paths.Latest, bar); err != nil {
		return g.fallback(ctx, started, FetchResult{Kind: FetchOK, Bar: bar, Err: err})
	}

	inserted, err := g.history.Append(ctx, bar)
	if err != nil {
		out.Run = domain.RunFailed
		g.record(ctx, started, out, bar.Date, err)
		return out, fmt.Errorf("appending to history: %w", err)
	}
	out.Inserted = inserted
	if inserted {
		out.Run = domain.RunStored
		g.log.Info("bar stored", "date", bar.Date, "close", bar.Close, "volume", bar.Volume)
	} else {
		out.Run = domain.RunDuplicate
		g.log.Info("bar already present, skipped", "date", bar.Date)
	}

	for _, m := range g.mirrors {
		if _, err := m.Append(ctx, bar); err != nil {
			g.log.Warn("mirror append failed", "mirror", fmt.Sprintf("%T", m), "date", bar.Date, "error", err)
		}
	}

	if expected := g.opts.Calendar.LastSession(started).Format(domain.DateLayout); bar.Date < expected {
		g.log.Warn("latest bar is older than the last expected session",
			"date", bar.Date, "expected", expected)
	}

	rep, err := g.Report(ctx)
	switch {
	case errors.Is(err, domain.ErrEmptyStore):
		g.log.Info("no report available: history is empty")
	case err != nil:
		g.log.Error("report generation failed", "error", err)
	default:
		out.Report = &rep
	}

	g.record(ctx, started, out, bar.Date, nil)
	return out, nil
}

// Report loads the history, summarizes the trailing window and writes the
// report file.
func (g *DailyGatherer) Report(ctx context.Context) (domain.SummaryReport, error) {
	bars, err := g.history.Load(ctx)
	if err != nil {
		return domain.SummaryReport{}, fmt.Errorf("loading history: %w", err)
	}
	rep, err := report.Summarize(bars, g.opts.Window, g.now())
	if err != nil {
		return domain.SummaryReport{}, err
	}
	if rep.Symbol == "" {
		rep.Symbol = g.opts.Symbol
	}
	if err := store.WriteReport(g.opts.Paths.Report, rep); err != nil {
		return domain.SummaryReport{}, err
	}
	g.log.Info("report written",
		"latestDate", rep.LatestDate, "latestClose", rep.LatestClose,
		"avgClose", rep.AvgCloseWindow, "window", rep.WindowSize, "total", rep.TotalRecords)
	return rep, nil
}

// fetch retrieves and normalizes the most recent bar. Metadata failures only
// drop enrichment.
func (g *DailyGatherer) fetch(ctx context.Context) FetchResult {
	now := g.now()
	start, end := g.opts.Calendar.LookbackRange(now, g.opts.LookbackDays)

	raw, err := g.bars.FetchDailyBars(ctx, g.opts.Symbol, DateRange{Start: start, End: end})
	if err != nil {
		return classify(g.bars.Name(), err)
	}

	var meta domain.Enrichment
	if g.meta != nil {
		m, err := g.meta.FetchMetadata(ctx, g.opts.Symbol)
		if err != nil {
			g.log.Warn("metadata unavailable, storing bar without enrichment",
				"provider", g.meta.Name(), "error", err)
		} else {
			if m.Empty() {
				g.log.Info("metadata provider returned no fields", "provider", g.meta.Name())
			}
			meta = m
		}
	}

	bar, err := Normalize(g.opts.Symbol, raw, meta, g.opts.Calendar.Location(), now)
	if err != nil {
		return classify(g.bars.Name(), err)
	}
	return FetchResult{Kind: FetchOK, Bar: bar}
}

// fallback writes the sentinel record. Its error is returned only when the
// sentinel itself could not be written.
func (g *DailyGatherer) fallback(ctx context.Context, started time.Time, res FetchResult) (*Outcome, error) {
	switch res.Kind {
	case FetchOK:
		g.log.Error("writing latest snapshot failed, writing sentinel", "date", res.Bar.Date, "error", res.Err)
	case FetchNoData:
		g.log.Warn("provider returned no data, writing sentinel", "error", res.Err)
	case FetchMalformed:
		g.log.Error("provider returned a malformed bar, writing sentinel", "error", res.Err)
	default:
		g.log.Error("fetch failed, writing sentinel", "kind", res.Kind.String(), "error", res.Err)
	}

	now := g.now()
	date := domain.DateIn(now, g.opts.Calendar.Location())
	rec := domain.NewSentinel(g.opts.Symbol, date, now, res.Err)
	out := &Outcome{Result: res, Run: domain.RunFallback, Sentinel: &rec}

	if err := store.WriteSentinel(g.opts.Paths.Latest, rec); err != nil {
		out.Run = domain.RunFailed
		g.log.Error("writing sentinel failed", "path", g.opts.Paths.Latest, "error", err)
		g.record(ctx, started, out, "", err)
		return out, err
	}
	g.log.Info("sentinel written", "path", g.opts.Paths.Latest, "date", date)
	g.record(ctx, started, out, "", res.Err)
	return out, nil
}

func (g *DailyGatherer) record(ctx context.Context, started time.Time, out *Outcome, date string, cause error) {
	run := domain.RunRecord{
		Symbol:     g.opts.Symbol,
		StartedAt:  started,
		FinishedAt: g.now(),
		Outcome:    out.Run,
		Date:       date,
		Inserted:   out.Inserted,
	}
	if cause != nil {
		run.Error = cause.Error()
	}
	if err := g.recorder.RecordRun(ctx, run); err != nil {
		g.log.Warn("recording run failed", "error", err)
	}
}
