package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"paytx/infrastructure/lock"
	"paytx/pkg/logger"
)

// Runner is the part of the Orchestrator the scheduler needs.
type Runner interface {
	RunJob(ctx context.Context, name string) (*Report, error)
}

// Schedule runs one job every Interval.
type Schedule struct {
	Job      string
	Interval time.Duration
}

// Scheduler ticks every scheduled job on its own loop until the context ends.
type Scheduler struct {
	runner    Runner
	schedules []Schedule
	log       *zap.Logger
}

func NewScheduler(runner Runner, schedules ...Schedule) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("scheduler: runner is required")
	}
	for _, s := range schedules {
		if s.Interval <= 0 {
			return nil, fmt.Errorf("scheduler: interval of %s must be positive", s.Job)
		}
	}
	return &Scheduler{runner: runner, schedules: schedules, log: logger.Named("scheduler")}, nil
}

// Run blocks until ctx is done and returns ctx's error.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, sc := range s.schedules {
		g.Go(func() error { return s.loop(ctx, sc) })
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, sc Schedule) error {
	ticker := time.NewTicker(sc.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx, sc.Job)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, job string) {
	report, err := s.runner.RunJob(ctx, job)
	switch {
	case err == nil && report.Skipped:
		s.log.Debug("tick skipped, lease held elsewhere", zap.String("job", job))
	case err == nil:
	case errors.Is(err, lock.ErrInterrupted):
		s.log.Debug("tick interrupted", zap.String("job", job))
	default:
		s.log.Error("Batch job failed", zap.String("job", job), zap.Error(err))
	}
}
