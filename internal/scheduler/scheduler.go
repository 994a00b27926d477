// Package scheduler runs gatherers on a cron schedule for daemon mode.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"dailybar/internal/gather"
)

// Scheduler manages the cron entries for a set of gatherers.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	log  *slog.Logger
}

// New creates a Scheduler whose specs are evaluated in loc. Specs carry a
// leading seconds field. A run that is still in progress when its next tick
// fires causes that tick to be skipped.
func New(ctx context.Context, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	log := slog.Default().With("component", "scheduler")
	cl := cronLogger{log}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx: ctx,
		log: log,
	}
}

// Register schedules g under spec.
func (s *Scheduler) Register(spec string, g gather.Gatherer) error {
	if _, err := s.cron.AddFunc(spec, func() { s.RunNow(g) }); err != nil {
		return fmt.Errorf("register %s task: %w", g.Name(), err)
	}
	s.log.Info("task registered", "gatherer", g.Name(), "spec", spec)
	return nil
}

// Start starts the cron scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "entries", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for running tasks to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Next returns the next activation time across all entries, or the zero
// time when nothing is scheduled or the scheduler is not running.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if e.Next.IsZero() {
			continue
		}
		if next.IsZero() || e.Next.Before(next) {
			next = e.Next
		}
	}
	return next
}

// RunNow executes g once in the caller's goroutine.
func (s *Scheduler) RunNow(g gather.Gatherer) {
	if err := s.ctx.Err(); err != nil {
		s.log.Info("context done, skipping run", "gatherer", g.Name())
		return
	}
	start := time.Now()
	s.log.Info("running task", "gatherer", g.Name())
	if err := g.Run(s.ctx); err != nil {
		s.log.Error("task failed", "gatherer", g.Name(), "elapsed", time.Since(start), "error", err)
		return
	}
	s.log.Info("task finished", "gatherer", g.Name(), "elapsed", time.Since(start))
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ log *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
