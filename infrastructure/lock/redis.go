package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"paytx/config"
)

// releaseScript deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisBackend stores leases as expiring keys shared by every process
// pointing at the same Redis.
type RedisBackend struct {
	client        redis.UniversalClient
	prefix        string
	retryInterval time.Duration
}

func NewRedisBackend(client redis.UniversalClient, prefix string, retryInterval time.Duration) *RedisBackend {
	if retryInterval <= 0 {
		retryInterval = 50 * time.Millisecond
	}
	return &RedisBackend{client: client, prefix: prefix, retryInterval: retryInterval}
}

// NewRedisClient builds a client from configuration and verifies connectivity.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func (b *RedisBackend) TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := b.client.SetNX(ctx, b.prefix+key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

func (b *RedisBackend) Acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	ticker := time.NewTicker(b.retryInterval)
	defer ticker.Stop()

	for {
		ok, err := b.TryAcquire(ctx, key, token, ttl)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *RedisBackend) Release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, b.client, []string{b.prefix + key}, token).Int64()
	if err != nil {
		return fmt.Errorf("redis release %s: %w", key, err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

var _ Backend = (*RedisBackend)(nil)
