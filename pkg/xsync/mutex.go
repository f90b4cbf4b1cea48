// Package xsync provides an owner-checked exclusive lock with FIFO hand-off
// and an interruptible condition variable bound to it.
//
// Unlike sync.Mutex, every operation names its Owner: Unlock by anyone but
// the holder fails, and a blocked Lock can be abandoned through a context.
package xsync

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrIllegalMonitorState is returned when the caller does not hold the lock.
var ErrIllegalMonitorState = errors.New("xsync: caller does not hold the lock")

// Owner identifies the holder of a Mutex. The zero value is never a valid owner.
type Owner string

// NewOwner mints a process-unique owner token.
func NewOwner() Owner {
	return Owner(uuid.NewString())
}

type waiter struct {
	owner Owner
	ready chan struct{}
	elem  *list.Element // nil once dequeued
}

func newWaiter(owner Owner) *waiter {
	return &waiter{owner: owner, ready: make(chan struct{}, 1)}
}

// Mutex is a non-reentrant exclusive lock.
//
// state is 0 when free and 1 when held. Release hands the lock directly to the
// head of the wait queue without passing through 0, so a queue is only ever
// non-empty while state is 1 and waiters are served in arrival order.
type Mutex struct {
	state atomic.Int32

	mu      sync.Mutex // guards owner and waiters
	owner   Owner
	waiters list.List
}

// Lock blocks until owner holds the lock.
func (m *Mutex) Lock(owner Owner) {
	_ = m.LockContext(context.Background(), owner)
}

// TryLock acquires the lock only if it is free right now.
func (m *Mutex) TryLock(owner Owner) bool {
	if owner == "" {
		return false
	}
	if m.state.CompareAndSwap(0, 1) {
		m.mu.Lock()
		m.owner = owner
		m.mu.Unlock()
		return true
	}
	return false
}

// TryLockTimeout waits at most d for the lock.
func (m *Mutex) TryLockTimeout(owner Owner, d time.Duration) bool {
	if m.TryLock(owner) {
		return true
	}
	if d <= 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return m.LockContext(ctx, owner) == nil
}

// LockContext blocks until owner holds the lock or ctx is done. On
// cancellation the caller is removed from the queue and ctx.Err() is returned.
func (m *Mutex) LockContext(ctx context.Context, owner Owner) error {
	if owner == "" {
		return ErrIllegalMonitorState
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.TryLock(owner) {
		return nil
	}

	w := newWaiter(owner)
	m.mu.Lock()
	if m.state.CompareAndSwap(0, 1) {
		m.owner = owner
		m.mu.Unlock()
		return nil
	}
	w.elem = m.waiters.PushBack(w)
	m.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
	}

	m.mu.Lock()
	if w.elem != nil {
		m.waiters.Remove(w.elem)
		w.elem = nil
		m.mu.Unlock()
		return ctx.Err()
	}
	m.mu.Unlock()

	// The lock was handed to us while we were giving up: pass it on.
	<-w.ready
	_ = m.Unlock(owner)
	return ctx.Err()
}

// Unlock releases the lock. It fails with ErrIllegalMonitorState when the lock
// is free or held by another owner.
func (m *Mutex) Unlock(owner Owner) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Load() == 0 || owner == "" || m.owner != owner {
		return ErrIllegalMonitorState
	}
	m.releaseLocked()
	return nil
}

// releaseLocked requires m.mu.
func (m *Mutex) releaseLocked() {
	if front := m.waiters.Front(); front != nil {
		next := m.waiters.Remove(front).(*waiter)
		next.elem = nil
		m.owner = next.owner
		next.ready <- struct{}{}
		return
	}
	m.owner = ""
	m.state.Store(0)
}

// HeldBy reports whether owner currently holds the lock.
func (m *Mutex) HeldBy(owner Owner) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Load() == 1 && owner != "" && m.owner == owner
}

// Locked reports whether anyone holds the lock.
func (m *Mutex) Locked() bool {
	return m.state.Load() == 1
}

// QueueLength returns the number of goroutines parked in Lock.
func (m *Mutex) QueueLength() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiters.Len()
}

// NewCond returns a condition variable bound to m.
func (m *Mutex) NewCond() *Cond {
	return &Cond{m: m}
}
