package workerpool

import (
	"context"
	"sync"
)

type futureState int

const (
	statePending futureState = iota
	stateRunning
	stateDone
)

// Future is the eventual result of a submitted task.
type Future[T any] struct {
	mu     sync.Mutex
	state  futureState
	done   chan struct{}
	cancel context.CancelFunc

	value T
	err   error
}

func (f *Future[T]) start() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != statePending {
		return false
	}
	f.state = stateRunning
	return true
}

func (f *Future[T]) finish(v T, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value, f.err = v, err
	f.state = stateDone
	close(f.done)
}

// reject completes a task that never started.
func (f *Future[T]) reject(err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != statePending {
		return false
	}
	f.err = err
	f.state = stateDone
	f.cancel()
	close(f.done)
	return true
}

// Cancel completes a task that has not started yet with ErrCancelled and
// signals cancellation to a running one through its context. It reports
// whether the task was prevented from starting.
func (f *Future[T]) Cancel() bool {
	if f.reject(ErrCancelled) {
		return true
	}
	f.cancel()
	return false
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the result is available or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
