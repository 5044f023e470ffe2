package cron

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/angelmondragon/lensdist-backend/pkg/clock"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
	"github.com/angelmondragon/lensdist-backend/pkg/metrics"
)

const defaultInterval = 15 * time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Clock    clock.Clock
	Interval time.Duration
}

// Service wakes every Interval and, while holding the cluster lock, runs the
// jobs that are due. A job is due when it has no Every, when it has never
// succeeded, or when Every has elapsed since its last success. A failed job
// is therefore retried on the next tick.
type Service struct {
	logg      *logger.Logger
	registry  *Registry
	lock      Lock
	metrics   *metrics.CronJobMetrics
	clock     clock.Clock
	interval  time.Duration
	succeeded map[string]time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Lock == nil:
		return nil, fmt.Errorf("lock required")
	}
	s := &Service{
		logg:      params.Logger,
		registry:  params.Registry,
		lock:      params.Lock,
		metrics:   params.Metrics,
		clock:     params.Clock,
		interval:  params.Interval,
		succeeded: map[string]time.Time{},
	}
	if s.registry == nil {
		s.registry = &Registry{}
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	return s, nil
}

// Run performs one cycle immediately, then one per tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	due := s.dueJobs()
	if len(due) == 0 {
		return nil
	}

	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "cron lock held elsewhere, skipping cycle")
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "cron lock release failed", err)
		}
	}()

	for _, job := range due {
		if ctx.Err() != nil {
			break
		}
		s.runJob(ctx, job)
	}
	return nil
}

func (s *Service) dueJobs() []Job {
	now := s.clock.Now()
	var due []Job
	for _, job := range s.registry.Jobs() {
		if last, ok := s.succeeded[job.Name()]; ok && now.Sub(last) < everyOf(job) {
			continue
		}
		due = append(due, job)
	}
	return due
}

func (s *Service) runJob(ctx context.Context, job Job) {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})
	s.logg.Info(jobCtx, "job start")

	start := s.clock.Now()
	err := safeRun(jobCtx, job)
	end := s.clock.Now()
	s.metrics.ObserveRun(name, end.Sub(start), end, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", end.Sub(start).Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return
	}
	s.succeeded[name] = start
	s.logg.Info(jobCtx, "job completed")
}

// safeRun turns a panicking job into an error so later jobs still run.
func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v\n%s", job.Name(), r, debug.Stack())
		}
	}()
	return job.Run(ctx)
}
