// Package workerpool runs tasks on a fixed number of goroutines behind a
// bounded queue and hands results back through futures.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrRejected is the result of a task submitted while the queue is full.
	ErrRejected = errors.New("workerpool: queue full, task rejected")
	// ErrClosed is the result of a task submitted after Close.
	ErrClosed = errors.New("workerpool: pool closed")
	// ErrCancelled is the result of a task cancelled before it started.
	ErrCancelled = errors.New("workerpool: task cancelled")
)

// Pool is a fixed set of workers draining a bounded task queue.
type Pool struct {
	name  string
	tasks chan func()
	group errgroup.Group

	mu     sync.RWMutex
	closed bool
}

// New starts workers goroutines over a queue holding at most capacity
// pending tasks. Both are clamped to at least one.
func New(name string, workers, capacity int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if capacity < 1 {
		capacity = 1
	}
	p := &Pool{name: name, tasks: make(chan func(), capacity)}
	for i := 0; i < workers; i++ {
		p.group.Go(func() error {
			for task := range p.tasks {
				task()
			}
			return nil
		})
	}
	return p
}

func (p *Pool) Name() string { return p.name }

// Queued returns the number of tasks waiting for a worker.
func (p *Pool) Queued() int { return len(p.tasks) }

// Close stops accepting tasks and waits for queued ones to finish.
func (p *Pool) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	return p.group.Wait()
}

// Submit queues fn without blocking. When the queue is full the returned
// future is already completed with ErrRejected.
func Submit[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) *Future[T] {
	fctx, cancel := context.WithCancel(ctx)
	f := &Future[T]{done: make(chan struct{}), cancel: cancel}

	task := func() {
		if !f.start() {
			return
		}
		defer cancel()
		var (
			v   T
			err error
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("workerpool %s: task panicked: %v", p.name, r)
				}
			}()
			v, err = fn(fctx)
		}()
		f.finish(v, err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		f.reject(ErrClosed)
		return f
	}
	select {
	case p.tasks <- task:
	default:
		f.reject(ErrRejected)
	}
	return f
}
