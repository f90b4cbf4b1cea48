package lock

import (
	"context"
	"time"

	"paytx/pkg/xsync"
)

type lease struct {
	token     string
	expiresAt time.Time
}

// LocalBackend keeps leases in process memory. Waiters park on a condition
// variable and are woken by releases or, at the latest, when the blocking
// lease expires.
type LocalBackend struct {
	mu     xsync.Mutex
	cond   *xsync.Cond
	leases map[string]lease
	now    func() time.Time
}

func NewLocalBackend() *LocalBackend {
	b := &LocalBackend{leases: make(map[string]lease), now: time.Now}
	b.cond = b.mu.NewCond()
	return b
}

func (b *LocalBackend) TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	me := xsync.NewOwner()
	if err := b.mu.LockContext(ctx, me); err != nil {
		return false, err
	}
	defer b.unlock(me)

	return b.grantLocked(key, token, ttl), nil
}

func (b *LocalBackend) Acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	me := xsync.NewOwner()
	if err := b.mu.LockContext(ctx, me); err != nil {
		return err
	}
	defer b.unlock(me)

	for !b.grantLocked(key, token, ttl) {
		wait := b.leases[key].expiresAt.Sub(b.now())
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		_ = b.cond.WaitContext(waitCtx, me)
		cancel()
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (b *LocalBackend) Release(ctx context.Context, key, token string) error {
	me := xsync.NewOwner()
	b.mu.Lock(me)
	defer b.unlock(me)

	l, ok := b.leases[key]
	if !ok || l.token != token {
		return ErrLeaseLost
	}
	delete(b.leases, key)
	_ = b.cond.Broadcast(me)
	if !b.now().Before(l.expiresAt) {
		return ErrLeaseLost
	}
	return nil
}

// grantLocked requires b.mu.
func (b *LocalBackend) grantLocked(key, token string, ttl time.Duration) bool {
	now := b.now()
	if l, ok := b.leases[key]; ok && now.Before(l.expiresAt) {
		return false
	}
	b.leases[key] = lease{token: token, expiresAt: now.Add(ttl)}
	return true
}

func (b *LocalBackend) unlock(me xsync.Owner) {
	_ = b.mu.Unlock(me)
}

var _ Backend = (*LocalBackend)(nil)
