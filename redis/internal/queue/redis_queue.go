// Package queue implements queue.Queue backed by Redis: a sorted set of
// ready jobs ordered by a composite (priority, queued_at) score, a sorted
// set of in-flight jobs ordered by their visibility deadline, and a hash
// per job holding its encoded payload.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	coreq "github.com/flowforge/flowforge/internal/queue"
	"github.com/flowforge/flowforge/pkg/api"
)

// claimScript reaps expired in-flight jobs back onto the ready set, then
// claims the highest-priority, earliest-queued ready job by moving it onto
// the in-flight set with a fresh visibility deadline. It returns the
// claimed job's message id, or nil if none is ready.
var claimScript = redis.NewScript(`
local readyKey = KEYS[1]
local inflightKey = KEYS[2]
local jobPrefix = KEYS[3]
local now = tonumber(ARGV[1])
local invisibleUntil = tonumber(ARGV[2])

local expired = redis.call("ZRANGEBYSCORE", inflightKey, "-inf", now)
for _, id in ipairs(expired) do
	local score = redis.call("HGET", jobPrefix .. id, "ready_score")
	redis.call("ZREM", inflightKey, id)
	redis.call("ZADD", readyKey, score, id)
end

local claimed = redis.call("ZRANGE", readyKey, 0, 0)
if #claimed == 0 then
	return nil
end
local id = claimed[1]
redis.call("ZREM", readyKey, id)
redis.call("ZADD", inflightKey, invisibleUntil, id)
return id
`)

// RedisQueue is a coreq.Queue backed by Redis.
type RedisQueue struct {
	client            *redis.Client
	readyKey          string
	inflightKey       string
	jobPrefix         string
	deadKey           string
	pollInterval      time.Duration
	visibilityTimeout time.Duration
	maxAttempts       int
}

var _ coreq.Queue = (*RedisQueue)(nil)
var _ coreq.DeadLetterReader = (*RedisQueue)(nil)

// Options configures a RedisQueue. Zero values use defaults.
type Options struct {
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
	MaxAttempts       int
}

// NewRedisQueue constructs a RedisQueue namespaced under prefix (default
// "flowforge:").
func NewRedisQueue(client *redis.Client, prefix string, opts Options) *RedisQueue {
	if prefix == "" {
		prefix = "flowforge:"
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
	return &RedisQueue{
		client:            client,
		readyKey:          prefix + "queue:ready",
		inflightKey:       prefix + "queue:inflight",
		jobPrefix:         prefix + "queue:job:",
		deadKey:           prefix + "queue:dead",
		pollInterval:      opts.PollInterval,
		visibilityTimeout: opts.VisibilityTimeout,
		maxAttempts:       opts.MaxAttempts,
	}
}

func readyScore(job api.Job) float64 {
	return float64(job.Priority)*1e15 + float64(job.QueuedAt.UnixMilli())
}

func (q *RedisQueue) jobKey(messageID string) string { return q.jobPrefix + messageID }

func (q *RedisQueue) Publish(ctx context.Context, job api.Job) (api.Job, error) {
	if job.MessageID == "" {
		job.MessageID = uuid.NewString()
	}
	if job.QueuedAt.IsZero() {
		job.QueuedAt = time.Now()
	}

	if err := q.client.HSet(ctx, q.jobKey(job.MessageID),
		"instance_id", job.InstanceID,
		"activity_id", job.ActivityID,
		"type", int(job.Type),
		"queued_at", job.QueuedAt.UnixNano(),
		"priority", job.Priority,
		"attempt", job.Attempt,
		"ready_score", readyScore(job),
	).Err(); err != nil {
		return api.Job{}, err
	}
	if err := q.client.ZAdd(ctx, q.readyKey, redis.Z{Score: readyScore(job), Member: job.MessageID}).Err(); err != nil {
		return api.Job{}, err
	}
	return job, nil
}

func (q *RedisQueue) Pop(ctx context.Context) (*api.Job, error) {
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

func (q *RedisQueue) tryClaim(ctx context.Context) (*api.Job, error) {
	now := time.Now()
	invisibleUntil := now.Add(q.visibilityTimeout).UnixMilli()

	res, err := claimScript.Run(ctx, q.client, []string{q.readyKey, q.inflightKey, q.jobPrefix}, now.UnixMilli(), invisibleUntil).Result()
	if errors.Is(err, redis.Nil) || res == nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	messageID, _ := res.(string)
	return q.loadJob(ctx, messageID)
}

func (q *RedisQueue) loadJob(ctx context.Context, messageID string) (*api.Job, error) {
	vals, err := q.client.HGetAll(ctx, q.jobKey(messageID)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	job := &api.Job{MessageID: messageID}
	if err := decodeJobFields(job, vals); err != nil {
		return nil, err
	}
	return job, nil
}

// decodeJobFields populates job from the hash fields written by Publish.
func decodeJobFields(job *api.Job, vals map[string]string) error {
	job.InstanceID = vals["instance_id"]
	job.ActivityID = vals["activity_id"]

	jobType, err := strconv.Atoi(vals["type"])
	if err != nil {
		return err
	}
	job.Type = api.JobType(jobType)

	queuedAtNano, err := strconv.ParseInt(vals["queued_at"], 10, 64)
	if err != nil {
		return err
	}
	job.QueuedAt = time.Unix(0, queuedAtNano)

	if job.Priority, err = strconv.Atoi(vals["priority"]); err != nil {
		return err
	}
	if job.Attempt, err = strconv.Atoi(vals["attempt"]); err != nil {
		return err
	}
	return nil
}

func (q *RedisQueue) Ack(ctx context.Context, messageID string) error {
	pipe := q.client.Pipeline()
	pipe.ZRem(ctx, q.inflightKey, messageID)
	pipe.ZRem(ctx, q.readyKey, messageID)
	pipe.Del(ctx, q.jobKey(messageID))
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) Nack(ctx context.Context, messageID string, requeue bool) error {
	job, err := q.loadJob(ctx, messageID)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}

	if !requeue {
		return q.Ack(ctx, messageID)
	}

	job.Attempt++
	if job.Attempt >= q.maxAttempts {
		payload, err := json.Marshal(job)
		if err != nil {
			return err
		}
		pipe := q.client.Pipeline()
		pipe.RPush(ctx, q.deadKey, payload)
		pipe.ZRem(ctx, q.inflightKey, messageID)
		pipe.Del(ctx, q.jobKey(messageID))
		_, err = pipe.Exec(ctx)
		return err
	}

	if err := q.client.HSet(ctx, q.jobKey(messageID), "attempt", job.Attempt).Err(); err != nil {
		return err
	}
	pipe := q.client.Pipeline()
	pipe.ZRem(ctx, q.inflightKey, messageID)
	pipe.ZAdd(ctx, q.readyKey, redis.Z{Score: readyScore(*job), Member: messageID})
	_, err = pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) DeadLetters(ctx context.Context) ([]api.Job, error) {
	raw, err := q.client.LRange(ctx, q.deadKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]api.Job, 0, len(raw))
	for _, r := range raw {
		var job api.Job
		if err := json.Unmarshal([]byte(r), &job); err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}
