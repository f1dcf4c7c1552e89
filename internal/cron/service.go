package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/hilife/servicereport-backend/pkg/logger"
	"github.com/hilife/servicereport-backend/pkg/metrics"
)

const defaultSweepInterval = 15 * time.Minute

// SweepParams configure the maintenance sweeper.
type SweepParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.MaintenanceMetrics
	Interval time.Duration
}

// Sweeper runs the access reconciliation and outbox retention jobs on a
// fixed cadence. Only the replica holding the sweep lock does any work.
type Sweeper struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.MaintenanceMetrics
	interval time.Duration
}

// SweepReport summarises one sweep.
type SweepReport struct {
	Skipped bool
	Holder  string
	Tallies map[string]Tally
	Failed  []string
}

func NewSweeper(params SweepParams) (*Sweeper, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("sweep lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run sweeps immediately and then on every tick until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.sweepAndLog(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.logg.Error(ctx, "maintenance.sweep_failed", err)
	}
}

// Sweep runs every registered job once. A failing job is logged and counted
// but does not stop the jobs after it.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	report := SweepReport{Tallies: map[string]Tally{}}
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return report, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !locked {
		report.Skipped = true
		holder, herr := s.lock.Holder(ctx)
		if herr != nil {
			s.logg.Warn(ctx, "maintenance.lock_holder_unknown")
		}
		report.Holder = holder
		s.metrics.IncLockSkipped()
		s.logg.Info(s.logg.WithField(ctx, "lock_holder", holder), "maintenance.sweep_skipped")
		return report, nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "maintenance.lock_release_failed", err)
		}
	}()

	for _, job := range s.registry.Jobs() {
		tally, err := s.runJob(ctx, job)
		report.Tallies[job.Name()] = tally
		if err != nil {
			report.Failed = append(report.Failed, job.Name())
		}
	}
	return report, nil
}

func (s *Sweeper) runJob(ctx context.Context, job Job) (Tally, error) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	start := time.Now()
	tally, err := job.Run(jobCtx)
	took := time.Since(start)

	s.metrics.ObserveRun(job.Name(), took, err)
	s.metrics.AddItems(job.Name(), tally)

	fields := map[string]any{"duration_ms": took.Milliseconds()}
	for outcome, n := range tally {
		fields[outcome] = n
	}
	jobCtx = s.logg.WithFields(jobCtx, fields)
	if err != nil {
		s.logg.Error(jobCtx, "maintenance.job_failed", err)
		return tally, err
	}
	s.logg.Info(jobCtx, "maintenance.job_done")
	return tally, nil
}
