package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/flowforge/pkg/api"
)

// MemoryQueue is a container/heap priority queue ordered by (priority,
// queuedAt) plus an in-flight map. Pop polls at pollInterval while empty.
type MemoryQueue struct {
	mu          sync.Mutex
	ready       jobHeap
	inFlight    map[string]api.Job
	deadLetters []api.Job
	maxAttempts int
	closed      bool

	pollInterval time.Duration
}

// NewMemoryQueue constructs an empty MemoryQueue. maxAttempts <= 0 uses
// MaxAttempts.
func NewMemoryQueue(maxAttempts int) *MemoryQueue {
	if maxAttempts <= 0 {
		maxAttempts = MaxAttempts
	}
	return &MemoryQueue{
		inFlight:     make(map[string]api.Job),
		maxAttempts:  maxAttempts,
		pollInterval: 10 * time.Millisecond,
	}
}

var _ Queue = (*MemoryQueue)(nil)

func (q *MemoryQueue) Publish(ctx context.Context, job api.Job) (api.Job, error) {
	job = prepare(job, uuid.NewString, time.Now)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return api.Job{}, ErrClosed
	}
	heap.Push(&q.ready, job)
	return job, nil
}

func (q *MemoryQueue) Pop(ctx context.Context) (*api.Job, error) {
	for {
		job, ok, closed := q.tryPop()
		if ok {
			return job, nil
		}
		if closed {
			return nil, ErrClosed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *MemoryQueue) tryPop() (*api.Job, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ready) == 0 {
		return nil, false, q.closed
	}
	job := heap.Pop(&q.ready).(api.Job)
	q.inFlight[job.MessageID] = job
	return &job, true, false
}

func (q *MemoryQueue) Ack(ctx context.Context, messageID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, messageID)
	return nil
}

func (q *MemoryQueue) Nack(ctx context.Context, messageID string, requeue bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.inFlight[messageID]
	if !ok {
		return nil
	}
	delete(q.inFlight, messageID)

	if !requeue {
		return nil
	}

	job.Attempt++
	if job.Attempt >= q.maxAttempts {
		q.deadLetters = append(q.deadLetters, job)
		return nil
	}
	heap.Push(&q.ready, job)
	return nil
}

// DeadLetters returns jobs that exhausted their attempts.
func (q *MemoryQueue) DeadLetters(ctx context.Context) ([]api.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]api.Job, len(q.deadLetters))
	copy(out, q.deadLetters)
	return out, nil
}

// Close marks the queue closed: pending Pop calls with an empty queue
// return ErrClosed instead of blocking forever.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// jobHeap orders by (Priority ascending, QueuedAt ascending).
type jobHeap []api.Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].QueuedAt.Before(h[j].QueuedAt)
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(api.Job)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
