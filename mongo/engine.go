package mongo

import (
	"go.mongodb.org/mongo-driver/mongo"

	coreengine "github.com/flowforge/flowforge/internal/engine"
	"github.com/flowforge/flowforge/internal/registry"
	"github.com/flowforge/flowforge/pkg/api"

	mpersistence "github.com/flowforge/flowforge/mongo/internal/persistence"
)

// Stores bundles the three MongoDB-backed persistence repositories,
// mirroring internal/persistence.MemoryStore.
type Stores struct {
	Definitions *mpersistence.MongoDefinitionStore
	Instances   *mpersistence.MongoInstanceStore
	Executions  *mpersistence.MongoExecutionStore
}

// NewStores constructs a Stores namespaced under dbName (defaults to
// "flowforge" when empty).
func NewStores(client *mongo.Client, dbName string) *Stores {
	return &Stores{
		Definitions: mpersistence.NewMongoDefinitionStore(client, dbName, ""),
		Instances:   mpersistence.NewMongoInstanceStore(client, dbName, ""),
		Executions:  mpersistence.NewMongoExecutionStore(client, dbName, ""),
	}
}

// NewEngine returns an api.Engine whose definitions, instances, and
// execution history live in MongoDB, and whose per-instance locking is a
// MongoDB-backed distributed lock rather than an in-process mutex.
func NewEngine(client *mongo.Client, dbName string, reg *registry.Registry, obs api.Observer) api.Engine {
	stores := NewStores(client, dbName)
	return coreengine.New(coreengine.Deps{
		Definitions: stores.Definitions,
		Instances:   stores.Instances,
		Executions:  stores.Executions,
		Locker:      NewLocker(client, dbName, ""),
		Registry:    reg,
		Observer:    obs,
		Config:      api.DefaultConfig(),
	})
}
