// Package worker implements the worker pool: the process that pops jobs off
// the queue and drives the engine to act on them.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/flowforge/internal/lock"
	"github.com/flowforge/flowforge/internal/queue"
	"github.com/flowforge/flowforge/pkg/api"
)

const heartbeatKeyPrefix = "worker:"

// Worker pops jobs off a Queue and dispatches them to an Engine, bounded to
// config.Worker.MaxConcurrency concurrent jobs. While running, it holds a
// renewing heartbeat lock so an observer (or a future leader-election
// mechanism) can tell it is alive.
type Worker struct {
	id       string
	engine   api.Engine
	queue    queue.Queue
	locker   lock.Locker
	observer api.Observer
	config   api.Config
	logger   *slog.Logger

	sem chan struct{}
	wg  sync.WaitGroup

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// Deps bundles the dependencies a Worker needs.
type Deps struct {
	Engine   api.Engine
	Queue    queue.Queue
	Locker   lock.Locker
	Observer api.Observer
	Config   api.Config
	Logger   *slog.Logger
}

// New constructs a Worker identified by a fresh random id. Use NewNamed to
// supply a stable id, e.g. if a process restarts and wants to resume its own
// heartbeat key.
func New(d Deps) *Worker {
	return NewNamed(uuid.NewString(), d)
}

// NewNamed constructs a Worker with an explicit id, filling in defaults for
// any unset optional field.
func NewNamed(id string, d Deps) *Worker {
	if d.Observer == nil {
		d.Observer = api.NoopObserver{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	d.Config = d.Config.WithDefaults()
	return &Worker{
		id:       id,
		engine:   d.Engine,
		queue:    d.Queue,
		locker:   d.Locker,
		observer: d.Observer,
		config:   d.Config,
		logger:   d.Logger,
		sem:      make(chan struct{}, d.Config.Worker.MaxConcurrency),
	}
}

// ID returns the worker's identity, used as the suffix of its heartbeat key.
func (w *Worker) ID() string { return w.id }

func (w *Worker) heartbeatKey() string {
	return w.config.Prefix + heartbeatKeyPrefix + w.id
}

// Run pops jobs from the queue and dispatches each to a goroutine, blocking
// until ctx is cancelled or the queue closes. At most
// config.Worker.MaxConcurrency jobs run at once; Run blocks waiting for a
// free slot rather than dropping or buffering jobs itself. A heartbeat
// goroutine renews w's lock-backed liveness key every HeartbeatInterval for
// as long as Run is active.
//
// Run returns an error if called while already running.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("worker: already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.cancel = nil
		w.mu.Unlock()
	}()

	if w.locker != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.heartbeatLoop(ctx)
		}()
	}

	for {
		job, err := w.queue.Pop(ctx)
		if err != nil {
			w.wg.Wait()
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) {
				return nil
			}
			return err
		}
		if job == nil {
			continue
		}

		w.observer.OnJobPopped(ctx, job)

		select {
		case w.sem <- struct{}{}:
		case <-ctx.Done():
			w.wg.Wait()
			return nil
		}

		w.wg.Add(1)
		go func(job api.Job) {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			w.process(ctx, job)
		}(*job)
	}
}

// Stop cancels the running Run loop and waits for in-flight jobs to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

// process dispatches a single job by its JobType and Acks or Nacks it based
// on the outcome: Start/Continue/Resume/Retry all drive Engine.Execute (the
// instance already carries its next activity on CurrentActivityID); Cancel
// calls Engine.Cancel directly without running the advancement loop.
func (w *Worker) process(ctx context.Context, job api.Job) {
	var err error
	switch job.Type {
	case api.JobStart, api.JobContinue, api.JobResume, api.JobRetry:
		_, err = w.engine.Execute(ctx, job.InstanceID)
	case api.JobCancel:
		_, err = w.engine.Cancel(ctx, job.InstanceID)
	default:
		w.logger.WarnContext(ctx, "worker: unknown job type", slog.String("type", job.Type.String()))
	}

	if err != nil {
		if ee, ok := api.AsEngineError(err); ok && ee.Code == api.CodeLockFailed {
			w.nack(ctx, job, true)
			return
		}
		w.logger.ErrorContext(ctx, "worker: job failed",
			slog.String("instance_id", job.InstanceID),
			slog.String("type", job.Type.String()),
			slog.Any("error", err),
		)
		w.nack(ctx, job, true)
		return
	}

	if err := w.queue.Ack(ctx, job.MessageID); err != nil {
		w.logger.ErrorContext(ctx, "worker: ack failed", slog.String("message_id", job.MessageID), slog.Any("error", err))
	}
}

func (w *Worker) nack(ctx context.Context, job api.Job, requeue bool) {
	if err := w.queue.Nack(ctx, job.MessageID, requeue); err != nil {
		w.logger.ErrorContext(ctx, "worker: nack failed", slog.String("message_id", job.MessageID), slog.Any("error", err))
		return
	}
	w.observer.OnJobNacked(ctx, &job, requeue)
}

// heartbeatLoop acquires w's liveness key with a lease of 3x
// HeartbeatInterval and renews it on every tick until ctx is done, logging
// (rather than failing Run) if another owner has stolen the key out from
// under it.
func (w *Worker) heartbeatLoop(ctx context.Context) {
	lease := 3 * w.config.Worker.HeartbeatInterval
	handle, err := w.locker.Acquire(ctx, w.heartbeatKey(), w.config.Lock.AcquireTimeout, lease)
	if err != nil {
		w.logger.ErrorContext(ctx, "worker: failed to acquire heartbeat key", slog.Any("error", err))
		return
	}
	defer handle.Release(ctx)

	ticker := time.NewTicker(w.config.Worker.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := handle.Renew(ctx, lease); err != nil {
				w.logger.ErrorContext(ctx, "worker: heartbeat renewal failed", slog.Any("error", err))
			}
		}
	}
}
