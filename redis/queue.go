// Package redis wires the core engine/worker/scheduler packages to Redis
// implementations of the lock, queue, and persistence ports.
package redis

import (
	"github.com/redis/go-redis/v9"

	corelock "github.com/flowforge/flowforge/internal/lock"
	coreq "github.com/flowforge/flowforge/internal/queue"

	rlock "github.com/flowforge/flowforge/redis/internal/lock"
	rqueue "github.com/flowforge/flowforge/redis/internal/queue"
)

// NewQueue returns a coreq.Queue backed by Redis sorted sets, namespaced
// under prefix.
func NewQueue(client *redis.Client, prefix string, opts rqueue.Options) coreq.Queue {
	return rqueue.NewRedisQueue(client, prefix, opts)
}

// NewLocker returns a corelock.Locker backed by Redis SET NX PX.
func NewLocker(client *redis.Client) corelock.Locker {
	return rlock.NewRedisLocker(client)
}
