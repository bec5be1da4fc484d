package lock

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"
)

func newTestSQLiteLocker(t *testing.T) *SQLiteLocker {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	l, err := NewSQLiteLocker(db)
	require.NoError(t, err)
	return l
}

func TestSQLiteLocker_AcquireRenewRelease(t *testing.T) {
	l := newTestSQLiteLocker(t)
	ctx := context.Background()

	h1, err := l.Acquire(ctx, "instance:1", time.Second, 100*time.Millisecond)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "instance:1", 30*time.Millisecond, 100*time.Millisecond)
	require.ErrorIs(t, err, ErrLockFailed)

	require.NoError(t, h1.Renew(ctx, 100*time.Millisecond))

	require.NoError(t, h1.Release(ctx))

	_, err = l.Acquire(ctx, "instance:1", time.Second, 100*time.Millisecond)
	require.NoError(t, err)
}

func TestSQLiteLocker_LeaseExpires(t *testing.T) {
	l := newTestSQLiteLocker(t)
	ctx := context.Background()

	_, err := l.Acquire(ctx, "instance:1", time.Second, 20*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, err = l.Acquire(ctx, "instance:1", time.Second, time.Second)
	require.NoError(t, err)
}

func TestSQLiteLocker_ConcurrentAcquireOnlyOneWins(t *testing.T) {
	l := newTestSQLiteLocker(t)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		acquired int
	)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Acquire(ctx, "instance:1", 30*time.Millisecond, 250*time.Millisecond)
			if err == nil {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, acquired)
}

func TestSQLiteLocker_IsLocked(t *testing.T) {
	l := newTestSQLiteLocker(t)
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
