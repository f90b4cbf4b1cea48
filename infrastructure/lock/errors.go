package lock

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAcquisition is the parent of every failure to obtain a lease.
	ErrAcquisition = errors.New("lock acquisition failed")

	// ErrInvalidTTL is returned for a non-positive lease TTL.
	ErrInvalidTTL = fmt.Errorf("%w: ttl must be positive", ErrAcquisition)

	// ErrInterrupted is returned when an interruptible wait is cancelled.
	// The returned error also wraps the context's error.
	ErrInterrupted = errors.New("lock wait interrupted")

	// ErrLeaseLost means the lease expired or was taken over before release.
	ErrLeaseLost = errors.New("lease no longer held")

	// ErrNotHeld is returned by Unlock on a handle that holds nothing.
	ErrNotHeld = errors.New("lock not held by this handle")
)

func interrupted(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
}

func acquisitionError(name string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrAcquisition, name, err)
}
