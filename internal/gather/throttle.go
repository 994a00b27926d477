package gather

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"dailybar/internal/domain"
)

// Throttled wraps a provider so every call waits on a shared limiter.
type Throttled struct {
	bars    BarProvider
	meta    MetadataProvider
	limiter *rate.Limiter
}

// NewThrottled limits calls to perMinute per minute. A non-positive value
// disables limiting.
func NewThrottled(bars BarProvider, meta MetadataProvider, perMinute int) *Throttled {
	lim := rate.NewLimiter(rate.Inf, 1)
	if perMinute > 0 {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return &Throttled{bars: bars, meta: meta, limiter: lim}
}

// Bars returns the throttled bar provider, or nil when none was wrapped.
func (t *Throttled) Bars() BarProvider {
	if t.bars == nil {
		return nil
	}
	return throttledBars{t}
}

// Metadata returns the throttled metadata provider, or nil when none was
// wrapped.
func (t *Throttled) Metadata() MetadataProvider {
	if t.meta == nil {
		return nil
	}
	return throttledMeta{t}
}

func (t *Throttled) wait(ctx context.Context, provider string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return &domain.ProviderError{Provider: provider, Err: err}
	}
	return nil
}

type throttledBars struct{ t *Throttled }

func (p throttledBars) Name() string { return p.t.bars.Name() }

func (p throttledBars) FetchDailyBars(ctx context.Context, symbol string, r DateRange) ([]domain.RawBar, error) {
	if err := p.t.wait(ctx, p.Name()); err != nil {
		return nil, err
	}
	return p.t.bars.FetchDailyBars(ctx, symbol, r)
}

type throttledMeta struct{ t *Throttled }

func (p throttledMeta) Name() string { return p.t.meta.Name() }

func (p throttledMeta) FetchMetadata(ctx context.Context, symbol string) (domain.Enrichment, error) {
	if err := p.t.wait(ctx, p.Name()); err != nil {
		return domain.Enrichment{}, err
	}
	return p.t.meta.FetchMetadata(ctx, symbol)
}
