// Package lock implements lock.Locker backed by a single MongoDB
// collection, using a filtered upsert as the compare-and-swap primitive:
// the update only matches a document that is absent, expired, or already
// owned by the caller.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	corel "github.com/flowforge/flowforge/internal/lock"
)

// MongoLocker is a corel.Locker backed by MongoDB.
type MongoLocker struct {
	coll *mongo.Collection
}

var _ corel.Locker = (*MongoLocker)(nil)

type mongoLockDoc struct {
	Key       string `bson:"_id"`
	Owner     string `bson:"owner"`
	ExpiresAt int64  `bson:"expires_at"`
}

// NewMongoLocker creates a Mongo-backed locker. dbName defaults to
// "flowforge", collName to "locks".
func NewMongoLocker(client *mongo.Client, dbName, collName string) *MongoLocker {
	if dbName == "" {
		dbName = "flowforge"
	}
	if collName == "" {
		collName = "locks"
	}
	return &MongoLocker{coll: client.Database(dbName).Collection(collName)}
}

func (l *MongoLocker) Acquire(ctx context.Context, key string, wait, lease time.Duration) (*corel.Handle, error) {
	owner := uuid.NewString()
	err := corel.AcquireLoop(ctx, wait, func() (bool, error) {
		return l.tryAcquire(ctx, key, owner, lease)
	})
	if err != nil {
		return nil, err
	}
	return corel.NewHandle(key, owner, l), nil
}

// tryAcquire matches a document that is absent, expired, or already owned
// by owner, and upserts it to owner with a fresh lease.
func (l *MongoLocker) tryAcquire(ctx context.Context, key, owner string, lease time.Duration) (bool, error) {
	now := time.Now().UnixNano()
	filter := bson.M{
		"_id": key,
		"$or": []bson.M{
			{"expires_at": bson.M{"$lte": now}},
			{"owner": owner},
		},
	}
	update := bson.M{"$set": bson.M{"owner": owner, "expires_at": time.Now().Add(lease).UnixNano()}}

	_, err := l.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err == nil {
		return true, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		// Lost the upsert race against a concurrent acquirer for an absent
		// key; the loser retries on the next backoff tick.
		return false, nil
	}
	return false, err
}

func (l *MongoLocker) IsLocked(ctx context.Context, key string) (bool, error) {
	var doc mongoLockDoc
	err := l.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return doc.ExpiresAt > time.Now().UnixNano(), nil
}

func (l *MongoLocker) ReleaseLock(ctx context.Context, key, owner string) error {
	_, err := l.coll.DeleteOne(ctx, bson.M{"_id": key, "owner": owner})
	return err
}

func (l *MongoLocker) RenewLock(ctx context.Context, key, owner string, lease time.Duration) error {
	res, err := l.coll.UpdateOne(ctx,
		bson.M{"_id": key, "owner": owner, "expires_at": bson.M{"$gt": time.Now().UnixNano()}},
		bson.M{"$set": bson.M{"expires_at": time.Now().Add(lease).UnixNano()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return corel.ErrLockFailed
	}
	return nil
}
