package queue

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/flowforge/internal/testutil"
	"github.com/flowforge/flowforge/pkg/api"
)

func newTestRedisQueue(t *testing.T, opts Options) *RedisQueue {
	t.Helper()
	addr := testutil.GetRedisAddress(t)
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())
	require.NoError(t, client.FlushDB(ctx).Err())

	return NewRedisQueue(client, "flowforge:test:", opts)
}

func TestRedisQueue_PublishPopAck(t *testing.T) {
	q := newTestRedisQueue(t, Options{})
	ctx := context.Background()

	published, err := q.Publish(ctx, api.Job{InstanceID: "inst-1", Type: api.JobStart})
	require.NoError(t, err)
	require.NotEmpty(t, published.MessageID)

	popped, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, published.MessageID, popped.MessageID)

	require.NoError(t, q.Ack(ctx, popped.MessageID))

	ctx2, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	_, err = q.Pop(ctx2)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisQueue_PriorityAndQueuedAtOrdering(t *testing.T) {
	q := newTestRedisQueue(t, Options{})
	ctx := context.Background()

	_, err := q.Publish(ctx, api.Job{InstanceID: "a", Priority: 10})
	require.NoError(t, err)

	high, err := q.Publish(ctx, api.Job{InstanceID: "b", Priority: 1})
	require.NoError(t, err)

	first, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, high.MessageID, first.MessageID)
}

func TestRedisQueue_NackRequeueIncrementsAttempt(t *testing.T) {
	q := newTestRedisQueue(t, Options{MaxAttempts: 5})
	ctx := context.Background()

	_, err := q.Publish(ctx, api.Job{InstanceID: "a"})
	require.NoError(t, err)

	popped, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, popped.Attempt)

	require.NoError(t, q.Nack(ctx, popped.MessageID, true))

	requeued, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, requeued.Attempt)
}

func TestRedisQueue_NackRoutesToDeadLetterAfterMaxAttempts(t *testing.T) {
	q := newTestRedisQueue(t, Options{MaxAttempts: 2})
	ctx := context.Background()

	_, err := q.Publish(ctx, api.Job{InstanceID: "a"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		popped, err := q.Pop(ctx)
		require.NoError(t, err)
		require.NoError(t, q.Nack(ctx, popped.MessageID, true))
	}

	dead, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	require.Equal(t, "a", dead[0].InstanceID)

	ctx2, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	_, err = q.Pop(ctx2)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisQueue_ExpiredInFlightJobIsReclaimed(t *testing.T) {
	q := newTestRedisQueue(t, Options{VisibilityTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	published, err := q.Publish(ctx, api.Job{InstanceID: "a"})
	require.NoError(t, err)

	popped, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, published.MessageID, popped.MessageID)

	time.Sleep(40 * time.Millisecond)

	reclaimed, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, published.MessageID, reclaimed.MessageID)
}
