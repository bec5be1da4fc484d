package lock

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/stretchr/testify/require"

	corel "github.com/flowforge/flowforge/internal/lock"
	"github.com/flowforge/flowforge/internal/testutil"
)

func newTestPostgresLocker(t *testing.T) *PostgresLocker {
	t.Helper()
	dsn := testutil.GetPostgresEndpoint(t)
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Ping())

	l, err := NewPostgresLocker(db)
	require.NoError(t, err)
	return l
}

func TestPostgresLocker_AcquireRenewRelease(t *testing.T) {
	l := newTestPostgresLocker(t)
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

func TestPostgresLocker_LeaseExpires(t *testing.T) {
	l := newTestPostgresLocker(t)
	ctx := context.Background()

	_, err := l.Acquire(ctx, "instance:1", time.Second, 30*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	_, err = l.Acquire(ctx, "instance:1", time.Second, time.Second)
	require.NoError(t, err)
}

func TestPostgresLocker_RenewFailsAfterRelease(t *testing.T) {
	l := newTestPostgresLocker(t)
	ctx := context.Background()

	h, err := l.Acquire(ctx, "instance:1", time.Second, time.Second)
	require.NoError(t, err)
	require.NoError(t, h.Release(ctx))

	err = h.Renew(ctx, time.Second)
	require.ErrorIs(t, err, corel.ErrLockFailed)
}

func TestPostgresLocker_IsLocked(t *testing.T) {
	l := newTestPostgresLocker(t)
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
