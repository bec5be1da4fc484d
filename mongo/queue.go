package mongo

import (
	"go.mongodb.org/mongo-driver/mongo"

	corelock "github.com/flowforge/flowforge/internal/lock"
	coreq "github.com/flowforge/flowforge/internal/queue"

	mlock "github.com/flowforge/flowforge/mongo/internal/lock"
	mqueue "github.com/flowforge/flowforge/mongo/internal/queue"
)

// NewQueue returns a coreq.Queue backed by a MongoDB collection, namespaced
// under dbName/collName (both default when empty).
func NewQueue(client *mongo.Client, dbName, collName string, opts mqueue.Options) coreq.Queue {
	return mqueue.NewMongoQueue(client, dbName, collName, opts)
}

// NewLocker returns a corelock.Locker backed by a MongoDB collection.
func NewLocker(client *mongo.Client, dbName, collName string) corelock.Locker {
	return mlock.NewMongoLocker(client, dbName, collName)
}
