package lock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	corel "github.com/flowforge/flowforge/internal/lock"
	"github.com/flowforge/flowforge/internal/testutil"
)

func newTestRedisLocker(t *testing.T) *RedisLocker {
	t.Helper()
	addr := testutil.GetRedisAddress(t)
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())
	require.NoError(t, client.FlushDB(ctx).Err())

	return NewRedisLocker(client)
}

func TestRedisLocker_AcquireRenewRelease(t *testing.T) {
	l := newTestRedisLocker(t)
	ctx := context.Background()

	h1, err := l.Acquire(ctx, "instance:1", time.Second, 200*time.Millisecond)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "instance:1", 30*time.Millisecond, 200*time.Millisecond)
	require.ErrorIs(t, err, corel.ErrLockFailed)

	require.NoError(t, h1.Renew(ctx, 200*time.Millisecond))
	require.NoError(t, h1.Release(ctx))

	_, err = l.Acquire(ctx, "instance:1", time.Second, 200*time.Millisecond)
	require.NoError(t, err)
}

func TestRedisLocker_LeaseExpires(t *testing.T) {
	l := newTestRedisLocker(t)
	ctx := context.Background()

	_, err := l.Acquire(ctx, "instance:1", time.Second, 30*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	_, err = l.Acquire(ctx, "instance:1", time.Second, time.Second)
	require.NoError(t, err)
}

func TestRedisLocker_RenewFailsAfterRelease(t *testing.T) {
	l := newTestRedisLocker(t)
	ctx := context.Background()

	h, err := l.Acquire(ctx, "instance:1", time.Second, time.Second)
	require.NoError(t, err)
	require.NoError(t, h.Release(ctx))

	err = h.Renew(ctx, time.Second)
	require.ErrorIs(t, err, corel.ErrLockFailed)
}

func TestRedisLocker_IsLocked(t *testing.T) {
	l := newTestRedisLocker(t)
	ctx := context.Background()

	locked, err := l.IsLocked(ctx, "instance:1")
	require.NoError(t, err)
	require.False(t, locked)

	_, err = l.Acquire(ctx, "instance:1", time.Second, time.Second)
	require.NoError(t, err)

	locked, err = l.IsLocked(ctx, "instance:1")
	require.NoError(t, err)
	require.True(t, locked)
}
