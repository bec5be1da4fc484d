// Package queue implements a durable priority job queue: the transport the
// execution engine uses to hand work (start/continue/resume/retry/cancel)
// to the worker pool.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/flowforge/flowforge/pkg/api"
)

// ErrClosed is returned by Pop once a queue has been closed and drained.
var ErrClosed = errors.New("queue: closed")

// Queue is a durable, priority-ordered job queue. Lower Job.Priority pops
// first; QueuedAt tiebreaks earliest-first for equal priority.
type Queue interface {
	// Publish assigns a MessageID and QueuedAt if unset and makes job
	// visible to Pop. It returns the job as actually stored.
	Publish(ctx context.Context, job api.Job) (api.Job, error)

	// Pop blocks (polling internally) until a job is available, ctx is
	// cancelled, or the queue is closed (ErrClosed). The popped job becomes
	// invisible to other Pop callers until Ack/Nack, or until its
	// visibility timeout elapses and it is treated as abandoned.
	Pop(ctx context.Context) (*api.Job, error)

	// Ack permanently removes a popped job.
	Ack(ctx context.Context, messageID string) error

	// Nack returns a popped job to pending state (requeue=true) or drops it
	// (requeue=false). If requeue is true and the job has exhausted its
	// attempts, it is routed to the dead-letter sink instead of being made
	// visible again.
	Nack(ctx context.Context, messageID string, requeue bool) error
}

// DeadLetterReader is implemented by queues that expose jobs routed to the
// dead-letter sink after exhausting MaxAttempts.
type DeadLetterReader interface {
	DeadLetters(ctx context.Context) ([]api.Job, error)
}

// MaxAttempts is the default cap on Nack-and-requeue cycles before a job is
// routed to the dead-letter sink.
const MaxAttempts = 5

// Subscribe runs a long-running consumer loop built once atop Pop/Ack/Nack
// so every Queue implementation gets it for free: pop a job, hand it to
// handler, Ack on success or Nack(requeue=true) on failure. It returns when
// ctx is cancelled or the queue is closed.
func Subscribe(ctx context.Context, q Queue, handler func(context.Context, api.Job) error) error {
	for {
		job, err := q.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		if job == nil {
			continue
		}

		if err := handler(ctx, *job); err != nil {
			_ = q.Nack(ctx, job.MessageID, true)
			continue
		}
		if err := q.Ack(ctx, job.MessageID); err != nil {
			return err
		}
	}
}

// prepare fills in MessageID and QueuedAt on a fresh job if the caller left
// them unset, using genID for the id and now for the clock so implementations
// stay deterministic-testable.
func prepare(job api.Job, genID func() string, now func() time.Time) api.Job {
	if job.MessageID == "" {
		job.MessageID = genID()
	}
	if job.QueuedAt.IsZero() {
		job.QueuedAt = now()
	}
	return job
}
