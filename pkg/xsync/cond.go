package xsync

import (
	"container/list"
	"context"
)

// Cond is a condition variable whose waiters must hold the bound Mutex.
type Cond struct {
	m       *Mutex
	waiters list.List // guarded by m.mu
}

// Wait atomically releases the lock, parks until signalled, then re-acquires.
func (c *Cond) Wait(owner Owner) error {
	return c.WaitContext(context.Background(), owner)
}

// WaitContext is Wait that also returns when ctx is done. The lock is always
// re-acquired before returning, even on cancellation. A signal that races with
// cancellation wins and nil is returned.
func (c *Cond) WaitContext(ctx context.Context, owner Owner) error {
	c.m.mu.Lock()
	if c.m.state.Load() == 0 || owner == "" || c.m.owner != owner {
		c.m.mu.Unlock()
		return ErrIllegalMonitorState
	}
	w := newWaiter(owner)
	w.elem = c.waiters.PushBack(w)
	c.m.releaseLocked()
	c.m.mu.Unlock()

	var err error
	select {
	case <-w.ready:
	case <-ctx.Done():
		c.m.mu.Lock()
		if w.elem != nil {
			c.waiters.Remove(w.elem)
			w.elem = nil
			err = ctx.Err()
		}
		c.m.mu.Unlock()
	}

	c.m.Lock(owner)
	return err
}

// Signal wakes the longest-waiting goroutine, if any.
func (c *Cond) Signal(owner Owner) error {
	return c.notify(owner, false)
}

// Broadcast wakes every waiting goroutine.
func (c *Cond) Broadcast(owner Owner) error {
	return c.notify(owner, true)
}

func (c *Cond) notify(owner Owner, all bool) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()

	if c.m.state.Load() == 0 || owner == "" || c.m.owner != owner {
		return ErrIllegalMonitorState
	}
	for front := c.waiters.Front(); front != nil; front = c.waiters.Front() {
		w := c.waiters.Remove(front).(*waiter)
		w.elem = nil
		w.ready <- struct{}{}
		if !all {
			break
		}
	}
	return nil
}

// waiting returns the number of parked waiters.
func (c *Cond) waiting() int {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	return c.waiters.Len()
}
