package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_AcquireReleaseAcquire(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	h, err := l.Acquire(ctx, "instance:1", time.Second, 100*time.Millisecond)
	require.NoError(t, err)

	locked, err := l.IsLocked(ctx, "instance:1")
	require.NoError(t, err)
	require.True(t, locked)

	require.NoError(t, h.Release(ctx))

	locked, err = l.IsLocked(ctx, "instance:1")
	require.NoError(t, err)
	require.False(t, locked)

	_, err = l.Acquire(ctx, "instance:1", time.Second, 100*time.Millisecond)
	require.NoError(t, err)
}

func TestMemoryLocker_SecondAcquireBlocksUntilTimeout(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	_, err := l.Acquire(ctx, "instance:1", time.Second, time.Second)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "instance:1", 60*time.Millisecond, time.Second)
	require.ErrorIs(t, err, ErrLockFailed)
}

func TestMemoryLocker_ExpiredLeaseIsAcquirable(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	_, err := l.Acquire(ctx, "instance:1", time.Second, 20*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, err = l.Acquire(ctx, "instance:1", time.Second, time.Second)
	require.NoError(t, err)
}

func TestMemoryLocker_RenewExtendsLease(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	h, err := l.Acquire(ctx, "instance:1", time.Second, 30*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, h.Renew(ctx, 200*time.Millisecond))

	time.Sleep(50 * time.Millisecond)

	locked, err := l.IsLocked(ctx, "instance:1")
	require.NoError(t, err)
	require.True(t, locked)
}

func TestMemoryLocker_RenewFailsAfterLeaseStolen(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	h, err := l.Acquire(ctx, "instance:1", time.Second, 20*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, err = l.Acquire(ctx, "instance:1", time.Second, time.Second)
	require.NoError(t, err)

	require.ErrorIs(t, h.Renew(ctx, time.Second), ErrLockFailed)
}

func TestMemoryLocker_ConcurrentAcquireOnlyOneWins(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	const n = 8
	results := make(chan bool, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := l.Acquire(ctx, "instance:1", 30*time.Millisecond, 250*time.Millisecond)
			results <- err == nil
		}()
	}

	wins := 0
	for i := 0; i < n; i++ {
		if <-results {
			wins++
		}
	}
	require.Equal(t, 1, wins)
}
