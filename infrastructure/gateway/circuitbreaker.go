package gateway

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the channel while the breaker is open.
var ErrCircuitOpen = errors.New("gateway: circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreaker opens after maxFailures consecutive failures, lets trial
// calls through once timeout has passed, and closes again after
// resetThreshold successful trials. A failed trial reopens it.
type CircuitBreaker struct {
	mu              sync.Mutex
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	state           State
	maxFailures     int
	timeout         time.Duration
	resetThreshold  int
	now             func() time.Time
}

func NewCircuitBreaker(maxFailures int, timeout time.Duration, resetThreshold int) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	if resetThreshold < 1 {
		resetThreshold = 1
	}
	return &CircuitBreaker{
		maxFailures:    maxFailures,
		timeout:        timeout,
		resetThreshold: resetThreshold,
		state:          StateClosed,
		now:            time.Now,
	}
}

// Allow reports whether a call may proceed, moving an expired open breaker to half-open.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) < cb.timeout {
			return false
		}
		cb.state = StateHalfOpen
		cb.successCount = 0
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) OnSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.resetThreshold {
			cb.reset()
		}
	case StateClosed:
		cb.failureCount = 0
	}
}

func (cb *CircuitBreaker) OnFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.failureCount >= cb.maxFailures {
			cb.state = StateOpen
		}
	case StateHalfOpen:
		cb.state = StateOpen
		cb.successCount = 0
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) reset() {
	cb.failureCount = 0
	cb.successCount = 0
	cb.state = StateClosed
}
