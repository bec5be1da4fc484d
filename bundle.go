package flowforge

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"

	"github.com/flowforge/flowforge/internal/cron"
	"github.com/flowforge/flowforge/internal/lock"
	"github.com/flowforge/flowforge/internal/queue"
	"github.com/flowforge/flowforge/pkg/worker"
)

// Bundle wires together an Engine, a durable job queue, a Worker that
// consumes jobs from that queue, and a cron Scheduler that fires scheduled
// workflows onto the same queue. All four share one SQLite database.
type Bundle struct {
	Engine Engine
	Stores *Stores
	Queue  queue.Queue
	Worker *worker.Worker

	scheduler *cron.Scheduler

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewSQLiteBundle constructs a durable Engine + Queue + Worker + Scheduler
// combo sharing the same SQLite database. Workflow definitions, instances,
// queued jobs, and the distributed lock table all live in db.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:flowforge.db?_journal=WAL")
//	bundle, err := flowforge.NewSQLiteBundle(db, flowforge.NewBuiltinRegistry(nil), nil, flowforge.DefaultConfig())
//	// register workflows via flowforge.RegisterWorkflow(ctx, bundle.Stores.Definitions, builder)
//	bundle.Start(ctx)
//	defer bundle.Stop()
func NewSQLiteBundle(db *sql.DB, reg *Registry, obs Observer, cfg Config) (*Bundle, error) {
	eng, stores, err := NewSQLiteEngine(db, reg, obs)
	if err != nil {
		return nil, err
	}

	q, err := queue.NewSQLiteQueue(db, queue.SQLiteQueueOptions{
		PollInterval:      cfg.Worker.PollInterval,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		MaxAttempts:       cfg.Queue.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	locker, err := lock.NewSQLiteLocker(db)
	if err != nil {
		return nil, err
	}

	w := worker.New(worker.Deps{
		Engine:   eng,
		Queue:    q,
		Locker:   locker,
		Observer: obs,
		Config:   cfg,
	})

	sched := cron.New(cron.Deps{
		Definitions: stores.Definitions,
		Queue:       q,
		Engine:      eng,
		Locker:      locker,
		Observer:    obs,
		Config:      cfg,
	})

	return &Bundle{
		Engine:    eng,
		Stores:    stores,
		Queue:     q,
		Worker:    w,
		scheduler: sched,
	}, nil
}

// Start launches the Bundle's Worker and Scheduler loops in background
// goroutines. Calling Start twice without Stop returns without launching a
// second pair.
func (b *Bundle) Start(ctx context.Context) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.running = true
	b.mu.Unlock()

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		if err := b.Worker.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "flowforge: worker loop exited", "error", err)
		}
	}()
	go func() {
		defer b.wg.Done()
		if err := b.scheduler.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "flowforge: scheduler loop exited", "error", err)
		}
	}()
}

// Stop cancels the Worker and Scheduler loops started by Start and waits
// for them to exit.
func (b *Bundle) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	cancel := b.cancel
	b.running = false
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.Worker.Stop()
	b.wg.Wait()
}
