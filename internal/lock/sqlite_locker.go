package lock

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// SQLiteLocker is a Locker backed by a single "locks" table.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteLocker struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Locker = (*SQLiteLocker)(nil)

// NewSQLiteLocker initializes the required schema in db and returns a new
// SQLiteLocker.
func NewSQLiteLocker(db *sql.DB) (*SQLiteLocker, error) {
	l := &SQLiteLocker{db: db, logger: slog.Default()}
	if err := l.initSchema(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLocker) initSchema() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS locks (
			key TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		);`,
	)
	return err
}

func (l *SQLiteLocker) Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Handle, error) {
	owner := uuid.NewString()
	err := AcquireLoop(ctx, wait, func() (bool, error) {
		return l.tryAcquire(ctx, key, owner, lease)
	})
	if err != nil {
		return nil, err
	}
	return &Handle{Key: key, Owner: owner, backend: l}, nil
}

// tryAcquire is a CAS-if-absent-or-expired upsert: insert if the key is
// unheld, or steal it if the existing lease has expired, in one statement;
// then confirm we are the current owner.
func (l *SQLiteLocker) tryAcquire(ctx context.Context, key, owner string, lease time.Duration) (bool, error) {
	now := time.Now().UnixNano()
	expiresAt := time.Now().Add(lease).UnixNano()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO locks (key, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			owner = excluded.owner,
			expires_at = excluded.expires_at
		WHERE locks.expires_at <= ? OR locks.owner = ?`,
		key, owner, expiresAt, now, owner,
	)
	if err != nil {
		return false, err
	}

	var curOwner string
	row := l.db.QueryRowContext(ctx, `SELECT owner FROM locks WHERE key = ?`, key)
	if err := row.Scan(&curOwner); err != nil {
		return false, err
	}
	return curOwner == owner, nil
}

func (l *SQLiteLocker) IsLocked(ctx context.Context, key string) (bool, error) {
	var expiresAt int64
	row := l.db.QueryRowContext(ctx, `SELECT expires_at FROM locks WHERE key = ?`, key)
	if err := row.Scan(&expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return expiresAt > time.Now().UnixNano(), nil
}

func (l *SQLiteLocker) ReleaseLock(ctx context.Context, key, owner string) error {
	res, err := l.db.ExecContext(ctx, `DELETE FROM locks WHERE key = ? AND owner = ?`, key, owner)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// The lease already expired or was stolen by another owner; releasing
		// it now is a no-op, not an error, but worth a log line since it means
		// the caller held the lock for longer than its lease.
		l.logger.WarnContext(ctx, "lock: release on expired or foreign-owned key ignored",
			slog.String("key", key), slog.String("owner", owner))
	}
	return nil
}

func (l *SQLiteLocker) RenewLock(ctx context.Context, key, owner string, lease time.Duration) error {
	expiresAt := time.Now().Add(lease).UnixNano()
	res, err := l.db.ExecContext(ctx, `
		UPDATE locks SET expires_at = ? WHERE key = ? AND owner = ? AND expires_at > ?`,
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
		return ErrLockFailed
	}
	return nil
}
