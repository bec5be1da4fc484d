package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/flowforge/internal/engine"
	"github.com/flowforge/flowforge/internal/lock"
	"github.com/flowforge/flowforge/internal/persistence"
	"github.com/flowforge/flowforge/internal/queue"
	"github.com/flowforge/flowforge/internal/registry"
	"github.com/flowforge/flowforge/pkg/api"
)

func echoDefinition() api.WorkflowDefinition {
	return api.WorkflowDefinition{
		Name:            "echo-flow",
		StartActivityID: "echo",
		IsActive:        true,
		Activities: []api.ActivityDefinition{
			{ID: "echo", Type: "echo"},
		},
	}
}

func echoRegistry() *registry.Registry {
	r := registry.New()
	r.Register("echo", func(ctx context.Context, ac *api.ActivityContext) api.ActivityResult {
		return api.Ok(ac.Input)
	})
	return r
}

func newTestHarness(t *testing.T) (api.Engine, queue.Queue, *persistence.MemoryInstanceStore) {
	t.Helper()
	defs := persistence.NewMemoryDefinitionStore()
	insts := persistence.NewMemoryInstanceStore()
	execs := persistence.NewMemoryExecutionStore()

	ctx := context.Background()
	_, err := defs.Save(ctx, echoDefinition())
	require.NoError(t, err)

	e := engine.New(engine.Deps{
		Definitions: defs,
		Instances:   insts,
		Executions:  execs,
		Locker:      lock.NewMemoryLocker(),
		Registry:    echoRegistry(),
		Config:      api.DefaultConfig(),
	})
	q := queue.NewMemoryQueue(5)
	return e, q, insts
}

func TestWorker_RunProcessesStartJobToCompletion(t *testing.T) {
	e, q, insts := newTestHarness(t)
	ctx := context.Background()

	inst, err := e.Start(ctx, "echo-flow", map[string]any{"x": 1}, "", "")
	require.NoError(t, err)

	_, err = q.Publish(ctx, api.Job{InstanceID: inst.ID, Type: api.JobStart})
	require.NoError(t, err)

	cfg := api.DefaultConfig()
	cfg.Worker.MaxConcurrency = 2
	w := New(Deps{Engine: e, Queue: q, Locker: lock.NewMemoryLocker(), Config: cfg})

	runCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	require.Eventually(t, func() bool {
		got, err := insts.Get(ctx, inst.ID)
		return err == nil && got.Status == api.StatusCompleted
	}, 500*time.Millisecond, 5*time.Millisecond)

	w.Stop()
	cancel()
	<-done
}

func TestWorker_RunRespectsMaxConcurrency(t *testing.T) {
	defs := persistence.NewMemoryDefinitionStore()
	insts := persistence.NewMemoryInstanceStore()
	execs := persistence.NewMemoryExecutionStore()
	ctx := context.Background()

	var inFlight atomic.Int32
	var maxSeen atomic.Int32
	r := registry.New()
	r.Register("slow", func(ctx context.Context, ac *api.ActivityContext) api.ActivityResult {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			cur := maxSeen.Load()
			if n <= cur || maxSeen.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		return api.Ok(nil)
	})

	def := api.WorkflowDefinition{
		Name:            "slow-flow",
		StartActivityID: "slow",
		IsActive:        true,
		Activities:      []api.ActivityDefinition{{ID: "slow", Type: "slow"}},
	}
	_, err := defs.Save(ctx, def)
	require.NoError(t, err)

	e := engine.New(engine.Deps{
		Definitions: defs,
		Instances:   insts,
		Executions:  execs,
		Locker:      lock.NewMemoryLocker(),
		Registry:    r,
		Config:      api.DefaultConfig(),
	})
	q := queue.NewMemoryQueue(5)

	const n = 8
	for i := 0; i < n; i++ {
		inst, err := e.Start(ctx, "slow-flow", nil, "", "")
		require.NoError(t, err)
		_, err = q.Publish(ctx, api.Job{InstanceID: inst.ID, Type: api.JobStart})
		require.NoError(t, err)
	}

	cfg := api.DefaultConfig()
	cfg.Worker.MaxConcurrency = 2
	w := New(Deps{Engine: e, Queue: q, Config: cfg})

	runCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	require.Eventually(t, func() bool {
		list, err := insts.List(ctx, persistence.InstanceFilter{})
		if err != nil {
			return false
		}
		for _, i := range list {
			if i.Status != api.StatusCompleted {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	w.Stop()
	cancel()
	<-done

	require.LessOrEqual(t, int(maxSeen.Load()), 2)
}

func TestWorker_HeartbeatRenewsLockWhileRunning(t *testing.T) {
	e, q, _ := newTestHarness(t)
	ctx := context.Background()

	locker := lock.NewMemoryLocker()
	cfg := api.DefaultConfig()
	cfg.Worker.HeartbeatInterval = 10 * time.Millisecond
	w := NewNamed("worker-1", Deps{Engine: e, Queue: q, Locker: locker, Config: cfg})

	runCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	require.Eventually(t, func() bool {
		locked, err := locker.IsLocked(ctx, w.heartbeatKey())
		return err == nil && locked
	}, 200*time.Millisecond, 5*time.Millisecond)

	// The lease is 3 x 10ms; the key is still held well past one lease only
	// if the heartbeat renewed it.
	time.Sleep(50 * time.Millisecond)
	locked, err := locker.IsLocked(ctx, w.heartbeatKey())
	require.NoError(t, err)
	require.True(t, locked)

	w.Stop()
	cancel()
	<-done
}

func TestWorker_CancelJobCallsEngineCancel(t *testing.T) {
	e, q, insts := newTestHarness(t)
	ctx := context.Background()

	inst, err := e.Start(ctx, "echo-flow", nil, "", "")
	require.NoError(t, err)

	_, err = q.Publish(ctx, api.Job{InstanceID: inst.ID, Type: api.JobCancel})
	require.NoError(t, err)

	w := New(Deps{Engine: e, Queue: q, Config: api.DefaultConfig()})
	runCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	require.Eventually(t, func() bool {
		got, err := insts.Get(ctx, inst.ID)
		return err == nil && got.Status == api.StatusCancelled
	}, 500*time.Millisecond, 5*time.Millisecond)

	w.Stop()
	cancel()
	<-done
}
