// Package batch drives backlog jobs: one non-blocking outer lease per job
// name, keyset pages of pending work, and a bounded fan-out/fan-in of
// pipeline invocations per page.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"paytx/application/txn"
	"paytx/domain/payment"
	"paytx/infrastructure/lock"
	"paytx/pkg/logger"
	"paytx/pkg/workerpool"
)

// Task runs one backlog entry, normally through a txn.Handler.
type Task func(ctx context.Context, e payment.BacklogEntry) (*txn.Model, error)

// Job describes one backlog drain.
type Job struct {
	Name          string
	Count         func(ctx context.Context, now time.Time) (int64, error)
	Fetch         func(ctx context.Context, now time.Time, afterID string, limit int) ([]payment.BacklogEntry, error)
	Task          Task
	Workers       int
	QueueCapacity int
	// Throughput is the expected tasks per second of one worker; it sizes the outer lease.
	Throughput float64
}

// Report is the outcome of one RunJob. Success, Failure and Idempotent
// partition the submitted items.
type Report struct {
	Job        string
	Skipped    bool
	Backlog    int64
	LeaseTTL   time.Duration
	Pages      int
	Submitted  int
	Success    int
	Failure    int
	Idempotent int
	Elapsed    time.Duration
}

type registered struct {
	job  Job
	pool *workerpool.Pool
}

// Orchestrator runs registered jobs.
type Orchestrator struct {
	locks     *lock.Service
	estimator lock.Estimator
	chunkSize int
	drainWait time.Duration
	now       func() time.Time
	log       *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*registered
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source used for backlog due dates.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithDrainWait bounds how long an interrupted page waits for tasks that
// already started before the job lease is released.
func WithDrainWait(d time.Duration) Option {
	return func(o *Orchestrator) { o.drainWait = d }
}

func NewOrchestrator(locks *lock.Service, estimator lock.Estimator, chunkSize int, opts ...Option) *Orchestrator {
	if chunkSize < 1 {
		chunkSize = 1
	}
	o := &Orchestrator{
		locks:     locks,
		estimator: estimator,
		chunkSize: chunkSize,
		drainWait: 5 * time.Second,
		now:       time.Now,
		log:       logger.Named("batch"),
		jobs:      make(map[string]*registered),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Register adds a job and starts its worker pool.
func (o *Orchestrator) Register(job Job) error {
	if job.Name == "" || job.Count == nil || job.Fetch == nil || job.Task == nil {
		return errors.New("batch: job needs a name, count, fetch and task")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.jobs[job.Name]; ok {
		return fmt.Errorf("batch: job %s already registered", job.Name)
	}
	o.jobs[job.Name] = &registered{
		job:  job,
		pool: workerpool.New(job.Name, job.Workers, job.QueueCapacity),
	}
	return nil
}

// Jobs lists registered job names in sorted order.
func (o *Orchestrator) Jobs() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.jobs))
	for name := range o.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close stops every job's pool after queued tasks finish.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var errs []error
	for _, r := range o.jobs {
		errs = append(errs, r.pool.Close())
	}
	return errors.Join(errs...)
}

// RunJob drains the named backlog once. A job already running elsewhere is
// skipped without fetching anything. Task failures are collected and
// returned as one *BatchError after every page is drained. Cancellation
// stops further fetches and returns the counts collected so far with an
// error wrapping lock.ErrInterrupted and, when any task failed, the
// *BatchError as well.
func (o *Orchestrator) RunJob(ctx context.Context, name string) (*Report, error) {
	o.mu.RLock()
	r, ok := o.jobs[name]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	job := r.job
	start := time.Now()
	report := &Report{Job: name}

	backlog, err := job.Count(ctx, o.now())
	if err != nil {
		return nil, fmt.Errorf("batch %s: count backlog: %w", name, err)
	}
	report.Backlog = backlog
	report.LeaseTTL = o.estimator.EstimateTTL(job.Workers, backlog, job.Throughput)

	log := o.log.With(zap.String("job", name))
	var taskErrs []error
	acquired := false

	err = o.locks.TryLock(ctx, name, report.LeaseTTL,
		func(ctx context.Context) error {
			acquired = true
			var runErr error
			taskErrs, runErr = o.drain(ctx, r, report)
			return runErr
		},
		func(context.Context) error {
			report.Skipped = true
			return nil
		},
	)
	report.Elapsed = time.Since(start)

	if report.Skipped {
		log.Debug("job already running elsewhere, skipped")
		return report, nil
	}
	if acquired {
		log.Info("job finished",
			zap.Int64("backlog", report.Backlog),
			zap.Duration("lease_ttl", report.LeaseTTL),
			zap.Int("pages", report.Pages),
			zap.Int("submitted", report.Submitted),
			zap.Int("success", report.Success),
			zap.Int("failure", report.Failure),
			zap.Int("idempotent", report.Idempotent),
			zap.Duration("elapsed", report.Elapsed),
			zap.Error(err),
		)
	}
	if err != nil {
		if len(taskErrs) > 0 {
			err = errors.Join(err, &BatchError{Job: name, Errs: taskErrs})
		}
		return report, err
	}
	if len(taskErrs) > 0 {
		return report, &BatchError{Job: name, Errs: taskErrs}
	}
	return report, nil
}

// drain fetches pages until an empty one and fans each page out.
func (o *Orchestrator) drain(ctx context.Context, r *registered, report *Report) ([]error, error) {
	var (
		taskErrs []error
		afterID  string
	)
	for {
		if ctx.Err() != nil {
			return taskErrs, interrupted(ctx)
		}
		page, err := r.job.Fetch(ctx, o.now(), afterID, o.chunkSize)
		if err != nil {
			if ctx.Err() != nil {
				return taskErrs, interrupted(ctx)
			}
			return taskErrs, fmt.Errorf("batch %s: fetch page: %w", r.job.Name, err)
		}
		if len(page) == 0 {
			return taskErrs, nil
		}
		report.Pages++
		afterID = page[len(page)-1].ID

		errs, err := o.fanOut(ctx, r, page, report)
		taskErrs = append(taskErrs, errs...)
		if err != nil {
			return taskErrs, err
		}
	}
}

// fanOut submits every entry of a page and waits for all of them.
func (o *Orchestrator) fanOut(ctx context.Context, r *registered, page []payment.BacklogEntry, report *Report) ([]error, error) {
	futures := make([]*workerpool.Future[*txn.Model], len(page))
	for i, entry := range page {
		futures[i] = workerpool.Submit(ctx, r.pool, func(ctx context.Context) (*txn.Model, error) {
			return r.job.Task(ctx, entry)
		})
	}
	report.Submitted += len(page)

	var errs []error
	tally := func(i int, m *txn.Model, err error) {
		switch {
		case err != nil:
			report.Failure++
			errs = append(errs, &ItemError{ID: page[i].ID, OrderNo: page[i].OrderNo, Err: err})
		case m == nil || !m.Success:
			report.Failure++
		case m.Idempotent:
			report.Idempotent++
		default:
			report.Success++
		}
	}
	for i, f := range futures {
		m, err := f.Wait(ctx)
		if ctx.Err() != nil {
			o.settle(ctx, futures, i, tally)
			return errs, interrupted(ctx)
		}
		tally(i, m, err)
	}
	return errs, nil
}

// settle cancels the futures of an interrupted page from index from on,
// waits up to drainWait for the ones already running, and tallies every one
// of them. Tasks still running after drainWait count as failures.
func (o *Orchestrator) settle(ctx context.Context, futures []*workerpool.Future[*txn.Model], from int, tally func(int, *txn.Model, error)) {
	for _, f := range futures[from:] {
		f.Cancel()
	}
	timer := time.NewTimer(o.drainWait)
	defer timer.Stop()
	expired := false
	for i := from; i < len(futures); i++ {
		f := futures[i]
		if !expired {
			select {
			case <-f.Done():
			case <-timer.C:
				expired = true
			}
		}
		select {
		case <-f.Done():
			m, err := f.Wait(context.WithoutCancel(ctx))
			tally(i, m, err)
		default:
			tally(i, nil, fmt.Errorf("still running after interruption: %w", context.Cause(ctx)))
		}
	}
}

func interrupted(ctx context.Context) error {
	return fmt.Errorf("%w: %w", lock.ErrInterrupted, context.Cause(ctx))
}
