// Package scheduler runs periodic background jobs.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/opensource-finance/screener/internal/domain"
	"github.com/opensource-finance/screener/internal/metrics"
	"github.com/robfig/cron/v3"
)

// Job is a named unit of periodic work.
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler manages background jobs.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
}

// New creates a scheduler. Jobs receive ctx when they run.
func New(ctx context.Context) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		ctx:  ctx,
	}
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

// AddJob registers job on a cron schedule such as "@every 5m" or "*/5 * * * *".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunNow(job); err != nil {
			slog.Error("job failed", "job", job.Name(), "error", err)
		}
	})
	if err != nil {
		return err
	}

	slog.Info("job registered", "job", job.Name(), "schedule", schedule)
	return nil
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	slog.Debug("running job", "job", job.Name())
	return job.Run(s.ctx)
}

// CachePurgeJob drops expired cache entries.
type CachePurgeJob struct {
	Cache domain.Cache
}

// Name returns the job name.
func (j *CachePurgeJob) Name() string { return "cache-purge" }

// Run purges the cache.
func (j *CachePurgeJob) Run(ctx context.Context) error {
	n := j.Cache.Purge(ctx)
	metrics.CachePurged.Add(float64(n))
	if n > 0 {
		slog.Debug("purged expired cache entries", "count", n)
	}
	return nil
}
