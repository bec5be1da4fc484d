// Package lock implements lock.Locker backed by a single PostgreSQL table,
// using an INSERT ... ON CONFLICT upsert as the compare-and-swap primitive.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	corel "github.com/flowforge/flowforge/internal/lock"
)

// PostgresLocker is a corel.Locker backed by PostgreSQL.
//
// It expects an *sql.DB opened against a PostgreSQL driver (for example
// "github.com/jackc/pgx/v5/stdlib").
type PostgresLocker struct {
	db *sql.DB
}

var _ corel.Locker = (*PostgresLocker)(nil)

// NewPostgresLocker initializes the required schema and returns a new
// PostgresLocker.
func NewPostgresLocker(db *sql.DB) (*PostgresLocker, error) {
	l := &PostgresLocker{db: db}
	if err := l.initSchema(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *PostgresLocker) initSchema() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS locks (
			key TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			expires_at BIGINT NOT NULL
		);`,
	)
	return err
}

func (l *PostgresLocker) Acquire(ctx context.Context, key string, wait, lease time.Duration) (*corel.Handle, error) {
	owner := uuid.NewString()
	err := corel.AcquireLoop(ctx, wait, func() (bool, error) {
		return l.tryAcquire(ctx, key, owner, lease)
	})
	if err != nil {
		return nil, err
	}
	return corel.NewHandle(key, owner, l), nil
}

// tryAcquire is a CAS-if-absent-or-expired upsert: insert if the key is
// unheld, or steal it if the existing lease has expired, in one statement;
// then confirm we are the current owner.
func (l *PostgresLocker) tryAcquire(ctx context.Context, key, owner string, lease time.Duration) (bool, error) {
	now := time.Now().UnixNano()
	expiresAt := time.Now().Add(lease).UnixNano()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO locks (key, owner, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			owner = excluded.owner,
			expires_at = excluded.expires_at
		WHERE locks.expires_at <= $4 OR locks.owner = $5`,
		key, owner, expiresAt, now, owner,
	)
	if err != nil {
		return false, err
	}

	var curOwner string
	row := l.db.QueryRowContext(ctx, `SELECT owner FROM locks WHERE key = $1`, key)
	if err := row.Scan(&curOwner); err != nil {
		return false, err
	}
	return curOwner == owner, nil
}

func (l *PostgresLocker) IsLocked(ctx context.Context, key string) (bool, error) {
	var expiresAt int64
	row := l.db.QueryRowContext(ctx, `SELECT expires_at FROM locks WHERE key = $1`, key)
	if err := row.Scan(&expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return expiresAt > time.Now().UnixNano(), nil
}

func (l *PostgresLocker) ReleaseLock(ctx context.Context, key, owner string) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM locks WHERE key = $1 AND owner = $2`, key, owner)
	return err
}

func (l *PostgresLocker) RenewLock(ctx context.Context, key, owner string, lease time.Duration) error {
	expiresAt := time.Now().Add(lease).UnixNano()
	res, err := l.db.ExecContext(ctx, `
		UPDATE locks SET expires_at = $1 WHERE key = $2 AND owner = $3 AND expires_at > $4`,
		expiresAt, key, owner, time.Now().UnixNano(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return corel.ErrLockFailed
	}
	return nil
}
