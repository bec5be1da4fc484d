// Package lock implements a keyed, leased mutual-exclusion primitive the
// execution engine uses to ensure only one worker advances a given
// instance at a time, and the scheduler uses to ensure only one process
// fires a given cron trigger.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLockFailed is returned by Acquire when wait elapses without acquiring
// the lock.
var ErrLockFailed = errors.New("lock: failed to acquire")

// Locker is a keyed, leased distributed mutex.
type Locker interface {
	// Acquire blocks, retrying with backoff, until key is acquired or wait
	// elapses (ErrLockFailed), whichever comes first. The lock is held for
	// lease before it expires and becomes acquirable by another owner;
	// Handle.Renew extends it and Handle.Release gives it up early.
	Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Handle, error)

	// IsLocked reports whether key is currently held by an unexpired owner.
	IsLocked(ctx context.Context, key string) (bool, error)
}

// Backend releases and renews a lock a Locker has already acquired. It is
// exported so a Locker implementation outside this package (a storage
// backend living in its own submodule) can construct its own Handles via
// NewHandle instead of being confined to this package.
type Backend interface {
	ReleaseLock(ctx context.Context, key, owner string) error
	RenewLock(ctx context.Context, key, owner string, lease time.Duration) error
}

// Handle represents a held lock. It is only valid for the Locker that
// produced it.
type Handle struct {
	Key     string
	Owner   string
	backend Backend
}

// NewHandle constructs a Handle backed by an arbitrary Backend. Locker
// implementations use this (rather than a bare struct literal) when they
// live outside this package.
func NewHandle(key, owner string, backend Backend) *Handle {
	return &Handle{Key: key, Owner: owner, backend: backend}
}

// Release gives up the lock. Releasing an already-expired or
// already-released handle is a no-op.
func (h *Handle) Release(ctx context.Context) error {
	return h.backend.ReleaseLock(ctx, h.Key, h.Owner)
}

// Renew extends the lock's lease by lease from now, failing if the handle's
// owner no longer holds the lock (e.g. the lease already expired and was
// taken by someone else).
func (h *Handle) Renew(ctx context.Context, lease time.Duration) error {
	return h.backend.RenewLock(ctx, h.Key, h.Owner, lease)
}

// Backoff schedule for contended Acquire calls: 50ms initial, x1.5
// multiplier, capped at 500ms.
const (
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = 500 * time.Millisecond
	backoffFactor  = 1.5
)

// AcquireLoop retries tryAcquire on the backoff schedule above until it
// succeeds, wait elapses, or ctx is cancelled. Exported so Locker
// implementations outside this package (a storage backend living in its
// own submodule) can reuse the same retry/backoff shape.
func AcquireLoop(ctx context.Context, wait time.Duration, tryAcquire func() (bool, error)) error {
	deadline := time.Now().Add(wait)
	backoff := initialBackoff

	for {
		ok, err := tryAcquire()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockFailed
		}

		sleep := backoff
		if remaining := time.Until(deadline); remaining < sleep {
			sleep = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
