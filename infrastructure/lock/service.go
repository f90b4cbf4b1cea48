package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paytx/pkg/logger"
)

// Service hands out named leases. Names share one namespace: a job name and
// a command idempotency key never collide unless they are equal strings.
type Service struct {
	backend Backend
	log     *zap.Logger
}

func NewService(backend Backend) *Service {
	return &Service{backend: backend, log: logger.Named("lock")}
}

// GetLock returns a handle for name with a lease of ttl, truncated to whole
// seconds and never shorter than one second.
func (s *Service) GetLock(name string, ttl time.Duration) (*Lock, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	if name == "" {
		return nil, acquisitionError(name, errors.New("empty lock name"))
	}
	ttl = ttl.Truncate(time.Second)
	if ttl < time.Second {
		ttl = time.Second
	}
	return &Lock{svc: s, name: name, ttl: ttl}, nil
}

// LockAndRun waits for the lease without interruption, runs body, and
// releases on every exit path including panics.
func (s *Service) LockAndRun(ctx context.Context, name string, ttl time.Duration, body func(ctx context.Context) error) error {
	_, err := LockAndCall(ctx, s, name, ttl, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, body(ctx)
	})
	return err
}

// LockAndCall is LockAndRun for a body producing a value.
func LockAndCall[T any](ctx context.Context, s *Service, name string, ttl time.Duration, body func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	l, err := s.GetLock(name, ttl)
	if err != nil {
		return zero, err
	}
	if err := l.Lock(ctx); err != nil {
		return zero, err
	}
	defer s.release(ctx, l)

	return body(ctx)
}

// TryLock runs onAcquired if the lease is free right now, otherwise onSkipped
// (which may be nil).
func (s *Service) TryLock(ctx context.Context, name string, ttl time.Duration, onAcquired, onSkipped func(ctx context.Context) error) error {
	return s.TryLockTimeout(ctx, name, ttl, 0, onAcquired, onSkipped)
}

// TryLockTimeout is TryLock waiting at most timeout for the lease.
func (s *Service) TryLockTimeout(ctx context.Context, name string, ttl, timeout time.Duration, onAcquired, onSkipped func(ctx context.Context) error) error {
	l, err := s.GetLock(name, ttl)
	if err != nil {
		return err
	}
	ok, err := l.TryLockTimeout(ctx, timeout)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Debug("lock busy, skipping", zap.String("lock", name))
		if onSkipped == nil {
			return nil
		}
		return onSkipped(ctx)
	}
	defer s.release(ctx, l)

	return onAcquired(ctx)
}

// LockInterruptibly waits for the lease until ctx is done. On cancellation
// body does not run and the error wraps both ErrInterrupted and ctx's error.
func (s *Service) LockInterruptibly(ctx context.Context, name string, ttl time.Duration, body func(ctx context.Context) error) error {
	_, err := CallInterruptibly(ctx, s, name, ttl, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, body(ctx)
	})
	return err
}

// CallInterruptibly is LockInterruptibly for a body producing a value.
func CallInterruptibly[T any](ctx context.Context, s *Service, name string, ttl time.Duration, body func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	l, err := s.GetLock(name, ttl)
	if err != nil {
		return zero, err
	}
	if err := l.LockInterruptibly(ctx); err != nil {
		return zero, err
	}
	defer s.release(ctx, l)

	return body(ctx)
}

// release never masks the body's outcome; a lost lease is only logged.
func (s *Service) release(ctx context.Context, l *Lock) {
	if err := l.Unlock(context.WithoutCancel(ctx)); err != nil {
		s.log.Warn("lease release failed",
			zap.String("lock", l.name),
			zap.Duration("ttl", l.ttl),
			zap.Error(err),
		)
	}
}

// Lock is a handle on one named lease. A handle may be re-acquired after
// Unlock; each acquisition carries a fresh owner token.
type Lock struct {
	svc  *Service
	name string
	ttl  time.Duration

	mu    sync.Mutex
	token string
}

func (l *Lock) Name() string { return l.name }

func (l *Lock) TTL() time.Duration { return l.ttl }

// Lock blocks until the lease is held. Cancellation of ctx does not abort
// the wait; backend failures are returned.
func (l *Lock) Lock(ctx context.Context) error {
	token := uuid.NewString()
	if err := l.svc.backend.Acquire(context.WithoutCancel(ctx), l.name, token, l.ttl); err != nil {
		return acquisitionError(l.name, err)
	}
	l.hold(token)
	return nil
}

// TryLock takes the lease only if it is free now.
func (l *Lock) TryLock(ctx context.Context) (bool, error) {
	return l.TryLockTimeout(ctx, 0)
}

// TryLockTimeout waits at most timeout for the lease.
func (l *Lock) TryLockTimeout(ctx context.Context, timeout time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, interrupted(ctx)
	}
	token := uuid.NewString()
	ok, err := l.svc.backend.TryAcquire(ctx, l.name, token, l.ttl)
	if err != nil {
		return false, acquisitionError(l.name, err)
	}
	if !ok && timeout > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		err = l.svc.backend.Acquire(waitCtx, l.name, token, l.ttl)
		cancel()
		switch {
		case err == nil:
			ok = true
		case ctx.Err() != nil:
			return false, interrupted(ctx)
		case errors.Is(err, context.DeadlineExceeded):
			return false, nil
		default:
			return false, acquisitionError(l.name, err)
		}
	}
	if ok {
		l.hold(token)
	}
	return ok, nil
}

// LockInterruptibly waits for the lease until ctx is done.
func (l *Lock) LockInterruptibly(ctx context.Context) error {
	if ctx.Err() != nil {
		return interrupted(ctx)
	}
	token := uuid.NewString()
	if err := l.svc.backend.Acquire(ctx, l.name, token, l.ttl); err != nil {
		if ctx.Err() != nil {
			return interrupted(ctx)
		}
		return acquisitionError(l.name, err)
	}
	l.hold(token)
	return nil
}

// Unlock releases the lease. ErrLeaseLost means the lease had already
// expired or been taken over.
func (l *Lock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()

	if token == "" {
		return ErrNotHeld
	}
	return l.svc.backend.Release(ctx, l.name, token)
}

func (l *Lock) hold(token string) {
	l.mu.Lock()
	l.token = token
	l.mu.Unlock()
}
