package lock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	owner     string
	expiresAt time.Time
}

// MemoryLocker is a sync.Mutex-guarded map of {owner, expiresAt}, suitable
// for single-process use (tests, local_runner.go).
type MemoryLocker struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryLocker constructs an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{logger: slog.Default(), entries: make(map[string]memoryEntry)}
}

func (m *MemoryLocker) Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Handle, error) {
	owner := uuid.NewString()
	err := AcquireLoop(ctx, wait, func() (bool, error) {
		return m.tryAcquire(key, owner, lease), nil
	})
	if err != nil {
		return nil, err
	}
	return &Handle{Key: key, Owner: owner, backend: m}, nil
}

func (m *MemoryLocker) tryAcquire(key, owner string, lease time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if e, ok := m.entries[key]; ok && e.owner != owner && e.expiresAt.After(now) {
		return false
	}
	m.entries[key] = memoryEntry{owner: owner, expiresAt: now.Add(lease)}
	return true
}

func (m *MemoryLocker) IsLocked(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	return ok && e.expiresAt.After(time.Now()), nil
}

func (m *MemoryLocker) ReleaseLock(ctx context.Context, key, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if ok && e.owner == owner {
		delete(m.entries, key)
		return nil
	}

	// The lease already expired or was stolen by another owner; releasing
	// it now is a no-op, not an error, but worth a log line since it means
	// the caller held the lock for longer than its lease.
	m.logger.WarnContext(ctx, "lock: release on expired or foreign-owned key ignored",
		slog.String("key", key), slog.String("owner", owner))
	return nil
}

func (m *MemoryLocker) RenewLock(ctx context.Context, key, owner string, lease time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || e.owner != owner || e.expiresAt.Before(time.Now()) {
		return ErrLockFailed
	}
	m.entries[key] = memoryEntry{owner: owner, expiresAt: time.Now().Add(lease)}
	return nil
}
