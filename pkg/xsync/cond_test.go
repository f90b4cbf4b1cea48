package xsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCondRequiresHolder(t *testing.T) {
	var m Mutex
	c := m.NewCond()
	a, b := NewOwner(), NewOwner()

	assert.ErrorIs(t, c.Wait(a), ErrIllegalMonitorState)
	assert.ErrorIs(t, c.Signal(a), ErrIllegalMonitorState)

	m.Lock(a)
	assert.ErrorIs(t, c.Broadcast(b), ErrIllegalMonitorState)
	assert.NoError(t, c.Signal(a), "signal with no waiters is a no-op")
	require.NoError(t, m.Unlock(a))
}

func TestCondSignalReacquires(t *testing.T) {
	var m Mutex
	c := m.NewCond()
	waiterOwner, signaller := NewOwner(), NewOwner()
	ready := false

	done := make(chan error, 1)
	go func() {
		m.Lock(waiterOwner)
		for !ready {
			if err := c.Wait(waiterOwner); err != nil {
				done <- err
				return
			}
		}
		held := m.HeldBy(waiterOwner)
		_ = m.Unlock(waiterOwner)
		if !held {
			done <- ErrIllegalMonitorState
			return
		}
		done <- nil
	}()

	require.Eventually(t, func() bool {
		m.Lock(signaller)
		defer func() { _ = m.Unlock(signaller) }()
		return c.waiting() == 1
	}, time.Second, time.Millisecond)

	m.Lock(signaller)
	ready = true
	require.NoError(t, c.Signal(signaller))
	require.NoError(t, m.Unlock(signaller))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by signal")
	}
}

func TestCondBroadcastWakesAll(t *testing.T) {
	var m Mutex
	c := m.NewCond()
	const n = 4
	woken := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		go func() {
			me := NewOwner()
			m.Lock(me)
			_ = c.Wait(me)
			_ = m.Unlock(me)
			woken <- struct{}{}
		}()
	}

	caller := NewOwner()
	require.Eventually(t, func() bool {
		m.Lock(caller)
		defer func() { _ = m.Unlock(caller) }()
		return c.waiting() == n
	}, time.Second, time.Millisecond)

	m.Lock(caller)
	require.NoError(t, c.Broadcast(caller))
	require.NoError(t, m.Unlock(caller))

	for i := 0; i < n; i++ {
		select {
		case <-woken:
		case <-time.After(time.Second):
			t.Fatalf("only %d of %d waiters woken", i, n)
		}
	}
}

func TestCondWaitContextTimeout(t *testing.T) {
	var m Mutex
	c := m.NewCond()
	me := NewOwner()

	m.Lock(me)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.WaitContext(ctx, me)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, m.HeldBy(me), "lock is re-acquired after an interrupted wait")
	assert.Equal(t, 0, c.waiting())
	require.NoError(t, m.Unlock(me))
}
