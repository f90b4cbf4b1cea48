package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerLifecycle(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, time.Minute, 2)
	cb.now = func() time.Time { return now }

	assert.True(t, cb.Allow())
	cb.OnFailure()
	assert.Equal(t, StateClosed, cb.State())
	cb.OnFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	now = now.Add(time.Minute)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	// a failed trial reopens
	cb.OnFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	now = now.Add(time.Minute)
	assert.True(t, cb.Allow())
	cb.OnSuccess()
	assert.Equal(t, StateHalfOpen, cb.State())
	cb.OnSuccess()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute, 1)
	cb.OnFailure()
	cb.OnSuccess()
	cb.OnFailure()
	assert.Equal(t, StateClosed, cb.State())
}
