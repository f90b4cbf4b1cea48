package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisBackend(client, "paytx:lock:", 5*time.Millisecond), mr
}

func TestRedisBackendTryAcquireRelease(t *testing.T) {
	b, mr := newRedisBackend(t)
	ctx := context.Background()

	ok, err := b.TryAcquire(ctx, "batchPay", "t1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := mr.Get("paytx:lock:batchPay")
	require.NoError(t, err)
	assert.Equal(t, "t1", got)
	assert.Equal(t, time.Minute, mr.TTL("paytx:lock:batchPay"))

	ok, err = b.TryAcquire(ctx, "batchPay", "t2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, b.Release(ctx, "batchPay", "t2"), ErrLeaseLost)
	assert.True(t, mr.Exists("paytx:lock:batchPay"), "foreign token must not delete the lease")

	require.NoError(t, b.Release(ctx, "batchPay", "t1"))
	assert.False(t, mr.Exists("paytx:lock:batchPay"))
}

func TestRedisBackendExpiry(t *testing.T) {
	b, mr := newRedisBackend(t)
	ctx := context.Background()

	ok, _ := b.TryAcquire(ctx, "k", "t1", 2*time.Second)
	require.True(t, ok)
	mr.FastForward(3 * time.Second)

	ok, err := b.TryAcquire(ctx, "k", "t2", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.ErrorIs(t, b.Release(ctx, "k", "t1"), ErrLeaseLost)
}

func TestRedisBackendAcquireWaits(t *testing.T) {
	b, _ := newRedisBackend(t)
	ctx := context.Background()
	ok, _ := b.TryAcquire(ctx, "k", "t1", time.Minute)
	require.True(t, ok)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = b.Release(context.Background(), "k", "t1")
	}()
	require.NoError(t, b.Acquire(ctx, "k", "t2", time.Minute))

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Acquire(cctx, "k", "t3", time.Minute), context.DeadlineExceeded)
}

func TestServiceOverRedis(t *testing.T) {
	b, _ := newRedisBackend(t)
	svc := NewService(b)

	holder, _ := svc.GetLock("batchNotify", time.Minute)
	ok, err := holder.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	skipped := false
	require.NoError(t, svc.TryLock(context.Background(), "batchNotify", time.Minute,
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { skipped = true; return nil }))
	assert.True(t, skipped)
	require.NoError(t, holder.Unlock(context.Background()))
}
