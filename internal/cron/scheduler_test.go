package cron

import (
	"context"
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

func scheduledDefinition(name, cronExpr string) api.WorkflowDefinition {
	return api.WorkflowDefinition{
		Name:            name,
		StartActivityID: "noop",
		IsActive:        true,
		Activities:      []api.ActivityDefinition{{ID: "noop", Type: "noop"}},
		Trigger:         &api.Trigger{Type: api.TriggerScheduled, CronExpression: cronExpr},
	}
}

func newSchedulerHarness(t *testing.T) (*Scheduler, persistence.DefinitionStore, queue.Queue) {
	t.Helper()
	defs := persistence.NewMemoryDefinitionStore()
	insts := persistence.NewMemoryInstanceStore()
	execs := persistence.NewMemoryExecutionStore()

	r := registry.New()
	r.Register("noop", func(ctx context.Context, ac *api.ActivityContext) api.ActivityResult {
		return api.Ok(nil)
	})

	e := engine.New(engine.Deps{
		Definitions: defs,
		Instances:   insts,
		Executions:  execs,
		Locker:      lock.NewMemoryLocker(),
		Registry:    r,
		Config:      api.DefaultConfig(),
	})
	q := queue.NewMemoryQueue(5)

	cfg := api.DefaultConfig()
	cfg.Scheduler.CheckInterval = 10 * time.Millisecond
	s := New(Deps{Definitions: defs, Queue: q, Engine: e, Config: cfg})
	return s, defs, q
}

func TestScheduler_RefreshBuildsEntryFromActiveDefinition(t *testing.T) {
	s, defs, _ := newSchedulerHarness(t)
	ctx := context.Background()

	_, err := defs.Save(ctx, scheduledDefinition("nightly-report", "0 0 2 * * *"))
	require.NoError(t, err)

	s.refresh(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Contains(t, s.entries, "nightly-report")
	require.False(t, s.entries["nightly-report"].nextRun.IsZero())
}

func TestScheduler_RefreshSkipsInvalidCronWithoutFailing(t *testing.T) {
	s, defs, _ := newSchedulerHarness(t)
	ctx := context.Background()

	_, err := defs.Save(ctx, scheduledDefinition("broken", "not a cron"))
	require.NoError(t, err)

	s.refresh(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotContains(t, s.entries, "broken")
}

func TestScheduler_RefreshIgnoresManualTriggerDefinitions(t *testing.T) {
	s, defs, _ := newSchedulerHarness(t)
	ctx := context.Background()

	def := scheduledDefinition("manual", "0 0 2 * * *")
	def.Trigger = &api.Trigger{Type: api.TriggerManual}
	_, err := defs.Save(ctx, def)
	require.NoError(t, err)

	s.refresh(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotContains(t, s.entries, "manual")
}

func TestScheduler_FireDuePublishesStartJobAtScheduledPriority(t *testing.T) {
	s, defs, q := newSchedulerHarness(t)
	ctx := context.Background()

	_, err := defs.Save(ctx, scheduledDefinition("every-second", "* * * * * *"))
	require.NoError(t, err)

	s.mu.Lock()
	s.entries["every-second"] = &entry{
		name:    "every-second",
		sched:   mustSchedule(t, "* * * * * *"),
		nextRun: time.Now().Add(-time.Second),
	}
	s.mu.Unlock()

	s.fireDue(ctx, time.Now())

	job, err := q.Pop(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, scheduledFirePriority, job.Priority)
	require.Equal(t, api.JobStart, job.Type)
}

func TestScheduler_TriggerNowPublishesAtHigherPriority(t *testing.T) {
	s, defs, q := newSchedulerHarness(t)
	ctx := context.Background()

	_, err := defs.Save(ctx, scheduledDefinition("on-demand", "0 0 2 * * *"))
	require.NoError(t, err)

	inst, err := s.TriggerNow(ctx, "on-demand")
	require.NoError(t, err)

	job, err := q.Pop(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, triggerNowPriority, job.Priority)
	require.Equal(t, inst.ID, job.InstanceID)
}

func mustSchedule(t *testing.T, expr string) *Schedule {
	t.Helper()
	sched, err := NewParser().Parse(expr)
	require.NoError(t, err)
	return sched
}
