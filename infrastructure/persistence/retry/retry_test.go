package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"

	"paytx/domain/shared"
)

func TestExponentialBackoff(t *testing.T) {
	cfg := Config{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}

	assert.Equal(t, time.Duration(0), ExponentialBackoffWithJitter(0, cfg))
	assert.Equal(t, 100*time.Millisecond, ExponentialBackoffWithJitter(1, cfg))
	assert.Equal(t, 400*time.Millisecond, ExponentialBackoffWithJitter(3, cfg))
	assert.Equal(t, time.Second, ExponentialBackoffWithJitter(10, cfg))

	cfg.JitterEnabled = true
	for i := 0; i < 50; i++ {
		d := ExponentialBackoffWithJitter(2, cfg)
		assert.GreaterOrEqual(t, d, 160*time.Millisecond)
		assert.Less(t, d, 240*time.Millisecond)
	}
}

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadlock", &mysqlDriver.MySQLError{Number: 1213, Message: "Deadlock found"}, true},
		{"lock wait timeout", &mysqlDriver.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}, true},
		{"duplicate entry", &mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry"}, false},
		{"version conflict", shared.NewConcurrencyConflictError("payment_order", "O1", 3), false},
		{"sqlite busy", errors.New("database is locked"), true},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryableError(tc.err, DefaultConfig))
		})
	}
}

func TestExecuteWithRetry(t *testing.T) {
	cfg := DefaultConfig
	cfg.InitialDelay = time.Millisecond
	cfg.JitterEnabled = false

	calls := 0
	err := ExecuteWithRetry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &mysqlDriver.MySQLError{Number: 1213}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	conflict := shared.NewConcurrencyConflictError("payment_order", "O1", 1)
	err = ExecuteWithRetry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return conflict
	})
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.Equal(t, 1, calls, "conflicts are surfaced, not retried")
}

func TestBackoffSchedule(t *testing.T) {
	b := Backoff(Config{InitialDelay: time.Second, MaxDelay: time.Minute, BackoffFactor: 3})
	assert.Equal(t, time.Second, b(1))
	assert.Equal(t, 9*time.Second, b(3))
	assert.Equal(t, time.Minute, b(8))
}
