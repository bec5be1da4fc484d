package redis

import (
	"github.com/redis/go-redis/v9"

	coreengine "github.com/flowforge/flowforge/internal/engine"
	"github.com/flowforge/flowforge/internal/registry"
	"github.com/flowforge/flowforge/pkg/api"

	rpersistence "github.com/flowforge/flowforge/redis/internal/persistence"
)

// Stores bundles the three Redis-backed persistence repositories, mirroring
// internal/persistence.MemoryStore.
type Stores struct {
	Definitions *rpersistence.RedisDefinitionStore
	Instances   *rpersistence.RedisInstanceStore
	Executions  *rpersistence.RedisExecutionStore
}

// NewStores constructs a Stores namespaced under prefix (default
// "flowforge:").
func NewStores(client *redis.Client, prefix string) *Stores {
	return &Stores{
		Definitions: rpersistence.NewRedisDefinitionStore(client, prefix),
		Instances:   rpersistence.NewRedisInstanceStore(client, prefix),
		Executions:  rpersistence.NewRedisExecutionStore(client, prefix),
	}
}

// NewEngine returns an api.Engine whose definitions, instances, and
// execution history live in Redis, and whose per-instance locking is a
// Redis-backed distributed lock rather than an in-process mutex.
func NewEngine(client *redis.Client, prefix string, reg *registry.Registry, obs api.Observer) api.Engine {
	stores := NewStores(client, prefix)
	cfg := api.DefaultConfig()
	if prefix != "" {
		cfg.Prefix = prefix
	}
	return coreengine.New(coreengine.Deps{
		Definitions: stores.Definitions,
		Instances:   stores.Instances,
		Executions:  stores.Executions,
		Locker:      NewLocker(client),
		Registry:    reg,
		Observer:    obs,
		Config:      cfg,
	})
}
