package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"paytx/config"
	"paytx/domain/shared"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

type Config struct {
	Enabled            bool
	MaxAttempts        int
	InitialDelay       time.Duration
	MaxDelay           time.Duration
	BackoffFactor      float64
	JitterEnabled      bool
	RetryOnDeadlock    bool
	RetryOnLockTimeout bool
	RetryPredicate     func(error) bool
}

var DefaultConfig = Config{
	Enabled:            true,
	MaxAttempts:        3,
	InitialDelay:       100 * time.Millisecond,
	MaxDelay:           2 * time.Second,
	BackoffFactor:      2.0,
	JitterEnabled:      true,
	RetryOnDeadlock:    true,
	RetryOnLockTimeout: true,
}

// DefaultRedrive spaces channel request re-drives.
var DefaultRedrive = Config{
	Enabled:       true,
	InitialDelay:  10 * time.Second,
	MaxDelay:      10 * time.Minute,
	BackoffFactor: 2.0,
	JitterEnabled: true,
}

func FromRetryConfig(c config.RetryConfig) Config {
	return Config{
		Enabled:            c.Enabled,
		MaxAttempts:        c.MaxAttempts,
		InitialDelay:       c.InitialDelay,
		MaxDelay:           c.MaxDelay,
		BackoffFactor:      c.BackoffFactor,
		JitterEnabled:      c.JitterEnabled,
		RetryOnDeadlock:    c.RetryOnDeadlock,
		RetryOnLockTimeout: c.RetryOnLockTimeout,
	}
}

func FromAppConfig(appConfig *config.Config) Config {
	return FromRetryConfig(appConfig.Database.Retry)
}

// ExponentialBackoffWithJitter returns InitialDelay * Factor^(attempt-1),
// capped at MaxDelay, scaled by a random factor in [0.8, 1.2) when jitter is on.
func ExponentialBackoffWithJitter(attempt int, config Config) time.Duration {
	if attempt <= 0 {
		return 0
	}
	factor := config.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := float64(config.InitialDelay) * math.Pow(factor, float64(attempt-1))
	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	if config.JitterEnabled {
		delay *= 0.8 + rand.Float64()*0.4
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Backoff binds a config into a schedule usable by callers that only know
// the attempt number.
func Backoff(config Config) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		return ExponentialBackoffWithJitter(attempt, config)
	}
}

// IsRetryableError reports transient storage failures. Optimistic version
// conflicts are never retried here: the caller must reload and decide.
func IsRetryableError(err error, config Config) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, shared.ErrConcurrencyConflict) || errors.Is(err, shared.ErrDuplicate) ||
		errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, context.Canceled) {
		return false
	}
	if config.RetryPredicate != nil && config.RetryPredicate(err) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1213:
			return config.RetryOnDeadlock
		case 1205:
			return config.RetryOnLockTimeout
		}
	}
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "deadlock") {
		return config.RetryOnDeadlock
	}
	if strings.Contains(errStr, "lock wait timeout") || strings.Contains(errStr, "database is locked") {
		return config.RetryOnLockTimeout
	}
	if errors.Is(err, gorm.ErrInvalidTransaction) ||
		(strings.Contains(errStr, "connection") && strings.Contains(errStr, "lost")) {
		return true
	}
	return false
}

func ExecuteWithRetry(ctx context.Context, config Config, fn func(ctx context.Context) error) error {
	if !config.Enabled || config.MaxAttempts <= 1 {
		return fn(ctx)
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err
		if !IsRetryableError(err, config) || attempt == config.MaxAttempts {
			break
		}

		if delay := ExponentialBackoffWithJitter(attempt, config); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}

	return lastErr
}
