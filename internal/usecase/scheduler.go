package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ElectionWatch/internal/domain"
	"ElectionWatch/internal/ports"
)

// Scheduler wires the cron-like driver with the pipeline use case.
type Scheduler struct {
	driver     ports.Scheduler
	pipeline   *Pipeline
	repository ports.Repository
	logger     *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, repository ports.Repository, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, repository: repository, logger: logger}
}

// Start registers the due-config sweep with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.RunDue(ctx, trigger)
	}

	return s.driver.Start(ctx, job)
}

// RunDue runs every active config that is due at now, concurrently. Each run
// is still gated by the pipeline, so a tick that races a manual run skips.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) []domain.RunSummary {
	configs, err := s.repository.GetConfigs(ctx, "")
	if err != nil {
		s.logger.Error("load monitoring configs", "error", err)
		return nil
	}

	var (
		mu        sync.Mutex
		summaries []domain.RunSummary
	)
	var g errgroup.Group
	for _, cfg := range configs {
		if !cfg.IsActive || !cfg.Due(now) {
			continue
		}
		g.Go(func() error {
			summary, err := s.pipeline.RunOnce(ctx, cfg.ID)
			if err != nil {
				s.logger.Error("monitoring run failed to start", "config", cfg.ID, "error", err)
			}
			mu.Lock()
			summaries = append(summaries, summary)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return summaries
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
