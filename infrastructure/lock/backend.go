// Package lock implements named, TTL-bound leases shared by every command
// handler and batch job, and the estimator sizing batch job leases.
package lock

import (
	"context"
	"time"
)

// Backend stores leases. A lease is identified by key and held by token
// until Release or until ttl elapses, whichever comes first.
type Backend interface {
	// TryAcquire takes the lease if it is free and reports whether it did.
	TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Acquire blocks until the lease is taken or ctx is done.
	Acquire(ctx context.Context, key, token string, ttl time.Duration) error
	// Release drops the lease if token still holds it, otherwise ErrLeaseLost.
	Release(ctx context.Context, key, token string) error
}
