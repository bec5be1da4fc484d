package flowforge

import (
	"context"
	"sync"

	"github.com/flowforge/flowforge/internal/lock"
	"github.com/flowforge/flowforge/internal/queue"
	"github.com/flowforge/flowforge/pkg/api"
	"github.com/flowforge/flowforge/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory job queue, and a
// Worker to provide a simple local runner for development and debugging.
//
// Typical usage:
//
//	runner := flowforge.NewLocalRunner(flowforge.NewBuiltinRegistry(nil))
//	flow := flowforge.New("my-flow").Activity("step1", "log")
//	def, _ := flowforge.RegisterWorkflow(ctx, runner.Stores.Definitions, flow)
//
//	// Synchronous run (no queue/worker involved):
//	inst, err := flowforge.Run(ctx, runner.Engine, def.Name, input)
//
//	// Asynchronous run:
//	runner.Start(ctx)
//	_, _ = runner.StartWorkflowAsync(ctx, def.Name, input)
//	...
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory workflow engine used by this runner.
	Engine Engine

	// Stores exposes the in-memory persistence repositories backing Engine,
	// so callers can register workflow definitions directly.
	Stores *Stores

	// Queue is the in-memory job queue used by Worker.
	Queue queue.Queue

	// Worker processes jobs from Queue using Engine.
	Worker *worker.Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory engine, an
// in-memory job queue, and a Worker with default config.
//
// This is intended for local development, tests, and simple single-process
// deployments.
func NewLocalRunner(reg *Registry) *LocalRunner {
	eng, stores := NewInMemoryEngine(reg, api.NoopObserver{})
	q := queue.NewMemoryQueue(api.DefaultConfig().Queue.MaxAttempts)
	w := worker.New(worker.Deps{
		Engine: eng,
		Queue:  q,
		Locker: lock.NewMemoryLocker(),
	})

	return &LocalRunner{
		Engine: eng,
		Stores: stores,
		Queue:  q,
		Worker: w,
	}
}

// Start runs the Worker loop in a background goroutine until Stop is
// called. Calling Start more than once without Stop is a no-op.
func (r *LocalRunner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.Worker.Run(ctx)
	}()
}

// Stop cancels the worker goroutine started by Start and waits for it to
// exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.Worker.Stop()
	r.wg.Wait()
}

// StartWorkflowAsync starts workflowName synchronously (creating its
// instance) and publishes a job so the worker loop drives it to completion
// asynchronously. workflowName must already be registered on
// r.Stores.Definitions.
func (r *LocalRunner) StartWorkflowAsync(ctx context.Context, workflowName string, input map[string]any) (*WorkflowInstance, error) {
	inst, err := r.Engine.Start(ctx, workflowName, input, "", "")
	if err != nil {
		return nil, err
	}
	if _, err := r.Queue.Publish(ctx, api.Job{InstanceID: inst.ID, Type: api.JobStart}); err != nil {
		return nil, err
	}
	return inst, nil
}

// SignalAsync delivers a signal to a suspended instance directly (signal
// delivery is synchronous in the Engine interface) and publishes a
// Continue job so any pending transition work after the resume also runs
// on the worker loop.
func (r *LocalRunner) SignalAsync(ctx context.Context, instanceID, name string, data map[string]any) error {
	if _, err := r.Engine.ResumeWithSignal(ctx, instanceID, name, data); err != nil {
		return err
	}
	_, err := r.Queue.Publish(ctx, api.Job{InstanceID: instanceID, Type: api.JobContinue})
	return err
}
