package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"ElectionWatch/internal/ports"
)

// CronScheduler fires the job on a cron expression. A tick that arrives while
// the previous job is still running is skipped.
type CronScheduler struct {
	spec     string
	location *time.Location
	logger   *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler configured via cron expression string.
// Descriptors such as "@every 1m" are accepted.
func NewCronScheduler(spec string, location *time.Location, logger *slog.Logger) *CronScheduler {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CronScheduler{spec: spec, location: location, logger: logger.With("component", "cron")}
}

// Start registers the job and starts ticking. The job also runs once
// immediately so a fresh process does not wait a full period.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	cr := cron.New(
		cron.WithLocation(c.location),
		cron.WithChain(cron.Recover(cronLogger{c.logger}), cron.SkipIfStillRunning(cronLogger{c.logger})),
	)
	wrapped := cron.FuncJob(func() { job(time.Now().In(c.location)) })
	if _, err := cr.AddJob(c.spec, wrapped); err != nil {
		return fmt.Errorf("parse cron expression %q: %w", c.spec, err)
	}
	// The same chain guards the startup run against overlapping the first tick.
	first := cr.Entries()[0].WrappedJob

	c.cron = cr
	cr.Start()
	go first.Run()

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()

	c.logger.Info("scheduler started", "spec", c.spec, "timezone", c.location.String())
	return nil
}

// Stop halts ticking and waits for a running job until ctx ends.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	cr := c.cron
	c.cron = nil
	c.mu.Unlock()

	if cr == nil {
		return nil
	}

	done := cr.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.l.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.l.Error(msg, append(keysAndValues, "error", err)...)
}
