// Package scheduler drives the recurring ingestion and watchlist jobs. Both
// jobs are fire-and-forget: a failed run is logged and the next trigger
// fires as scheduled.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rfellner/marketdash/internal/handlers"
)

const (
	businessHoursStart = 9
	businessHoursEnd   = 17
)

// Scheduler manages the cron triggers.
type Scheduler struct {
	cron       *cron.Cron
	pipeline   handlers.PipelineRunner
	screener   handlers.WatchlistScreener
	maintainer handlers.WatchlistMaintainer
	location   *time.Location
	log        *slog.Logger
	ctx        context.Context

	now func() time.Time
}

// New creates a scheduler running in the given timezone.
func New(ctx context.Context, pipeline handlers.PipelineRunner, screener handlers.WatchlistScreener, maintainer handlers.WatchlistMaintainer, location *time.Location, log *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(location)),
		pipeline:   pipeline,
		screener:   screener,
		maintainer: maintainer,
		location:   location,
		log:        log,
		ctx:        ctx,
		now:        time.Now,
	}
}

// Register adds the two recurring jobs: hourly ingestion gated to weekday
// business hours, and the daily post-close watchlist chain.
func (s *Scheduler) Register(ingestCron, watchlistCron string) error {
	if _, err := s.cron.AddFunc(ingestCron, s.ingestJob); err != nil {
		return fmt.Errorf("register ingest job: %w", err)
	}
	if _, err := s.cron.AddFunc(watchlistCron, s.watchlistJob); err != nil {
		return fmt.Errorf("register watchlist job: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops the cron scheduler, waiting for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) ingestJob() {
	if !withinBusinessHours(s.now().In(s.location)) {
		s.log.Debug("skipping ingestion outside business hours")
		return
	}

	s.log.Info("running scheduled ingestion")
	summary, err := s.pipeline.Run(s.ctx)
	if err != nil {
		s.log.Error("scheduled ingestion failed", "error", err)
		return
	}
	s.log.Info("scheduled ingestion complete",
		"updated", summary.UpdatedCount,
		"errors", summary.ErrorCount,
		"total", summary.TotalProcessed)
}

// watchlistJob refreshes prices before screening, and only evicts after
// screening, so the admission check sees current data and never races the
// entries it just added.
func (s *Scheduler) watchlistJob() {
	s.log.Info("running scheduled watchlist maintenance")

	if _, err := s.maintainer.RefreshPrices(s.ctx); err != nil {
		s.log.Error("watchlist price refresh failed", "error", err)
		return
	}
	if _, err := s.maintainer.RecomputeChange(s.ctx); err != nil {
		s.log.Error("watchlist change recompute failed", "error", err)
		return
	}
	added, err := s.screener.Refresh(s.ctx)
	if err != nil {
		s.log.Error("watchlist screen failed", "error", err)
		return
	}
	removed, err := s.maintainer.Cleanup(s.ctx)
	if err != nil {
		s.log.Error("watchlist cleanup failed", "error", err)
		return
	}

	s.log.Info("watchlist maintenance complete", "added", added, "removed", removed)
}

// withinBusinessHours reports whether t falls on a weekday between 9:00 and
// 17:59 local time.
func withinBusinessHours(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return t.Hour() >= businessHoursStart && t.Hour() <= businessHoursEnd
}
