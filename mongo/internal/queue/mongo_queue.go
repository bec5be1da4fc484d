// Package queue implements queue.Queue backed by a MongoDB collection,
// claiming documents with a FindOneAndUpdate that atomically sets an
// invisible-until deadline.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	coreq "github.com/flowforge/flowforge/internal/queue"
	"github.com/flowforge/flowforge/pkg/api"
)

// MongoQueue is a coreq.Queue backed by MongoDB.
type MongoQueue struct {
	jobs              *mongo.Collection
	dead              *mongo.Collection
	pollInterval      time.Duration
	visibilityTimeout time.Duration
	maxAttempts       int
}

var _ coreq.Queue = (*MongoQueue)(nil)
var _ coreq.DeadLetterReader = (*MongoQueue)(nil)

// Options configures a MongoQueue. Zero values use defaults.
type Options struct {
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
	MaxAttempts       int
}

// NewMongoQueue creates a Mongo-backed queue. dbName defaults to
// "flowforge", collName to "queue_jobs".
func NewMongoQueue(client *mongo.Client, dbName, collName string, opts Options) *MongoQueue {
	if dbName == "" {
		dbName = "flowforge"
	}
	if collName == "" {
		collName = "queue_jobs"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 20 * time.Millisecond
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = coreq.MaxAttempts
	}

	db := client.Database(dbName)
	return &MongoQueue{
		jobs:              db.Collection(collName),
		dead:              db.Collection(collName + "_dead"),
		pollInterval:      opts.PollInterval,
		visibilityTimeout: opts.VisibilityTimeout,
		maxAttempts:       opts.MaxAttempts,
	}
}

type mongoJobDoc struct {
	ID              string `bson:"_id"`
	InstanceID      string `bson:"instance_id"`
	ActivityID      string `bson:"activity_id,omitempty"`
	Type            int    `bson:"type"`
	QueuedAt        int64  `bson:"queued_at"`
	Priority        int    `bson:"priority"`
	Attempt         int    `bson:"attempt"`
	InvisibleUntil  int64  `bson:"invisible_until"`
}

func toJob(doc mongoJobDoc) api.Job {
	return api.Job{
		MessageID:  doc.ID,
		InstanceID: doc.InstanceID,
		ActivityID: doc.ActivityID,
		Type:       api.JobType(doc.Type),
		QueuedAt:   time.Unix(0, doc.QueuedAt),
		Priority:   doc.Priority,
		Attempt:    doc.Attempt,
	}
}

func (q *MongoQueue) Publish(ctx context.Context, job api.Job) (api.Job, error) {
	if job.MessageID == "" {
		job.MessageID = uuid.NewString()
	}
	if job.QueuedAt.IsZero() {
		job.QueuedAt = time.Now()
	}

	doc := mongoJobDoc{
		ID:         job.MessageID,
		InstanceID: job.InstanceID,
		ActivityID: job.ActivityID,
		Type:       int(job.Type),
		QueuedAt:   job.QueuedAt.UnixNano(),
		Priority:   job.Priority,
		Attempt:    job.Attempt,
	}
	if _, err := q.jobs.InsertOne(ctx, doc); err != nil {
		return api.Job{}, err
	}
	return job, nil
}

func (q *MongoQueue) Pop(ctx context.Context) (*api.Job, error) {
	for {
		job, err := q.tryClaim(ctx)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *MongoQueue) tryClaim(ctx context.Context) (*api.Job, error) {
	now := time.Now()
	filter := bson.M{"invisible_until": bson.M{"$lte": now.UnixNano()}}
	update := bson.M{"$set": bson.M{"invisible_until": now.Add(q.visibilityTimeout).UnixNano()}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "priority", Value: 1}, {Key: "queued_at", Value: 1}}).
		SetReturnDocument(options.After)

	var doc mongoJobDoc
	err := q.jobs.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	job := toJob(doc)
	return &job, nil
}

func (q *MongoQueue) Ack(ctx context.Context, messageID string) error {
	_, err := q.jobs.DeleteOne(ctx, bson.M{"_id": messageID})
	return err
}

func (q *MongoQueue) Nack(ctx context.Context, messageID string, requeue bool) error {
	if !requeue {
		_, err := q.jobs.DeleteOne(ctx, bson.M{"_id": messageID})
		return err
	}

	var doc mongoJobDoc
	if err := q.jobs.FindOne(ctx, bson.M{"_id": messageID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil
		}
		return err
	}
	doc.Attempt++

	if doc.Attempt >= q.maxAttempts {
		payload, err := json.Marshal(toJob(doc))
		if err != nil {
			return err
		}
		if _, err := q.dead.UpdateOne(ctx,
			bson.M{"_id": messageID},
			bson.M{"$set": bson.M{"payload": payload}},
			options.Update().SetUpsert(true),
		); err != nil {
			return err
		}
		_, err = q.jobs.DeleteOne(ctx, bson.M{"_id": messageID})
		return err
	}

	_, err := q.jobs.UpdateOne(ctx,
		bson.M{"_id": messageID},
		bson.M{"$set": bson.M{"attempt": doc.Attempt, "invisible_until": int64(0)}},
	)
	return err
}

func (q *MongoQueue) DeadLetters(ctx context.Context) ([]api.Job, error) {
	cur, err := q.dead.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []api.Job
	for cur.Next(ctx) {
		var doc struct {
			Payload []byte `bson:"payload"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		var job api.Job
		if err := json.Unmarshal(doc.Payload, &job); err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, cur.Err()
}
