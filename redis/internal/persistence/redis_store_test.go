package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	corep "github.com/flowforge/flowforge/internal/persistence"
	"github.com/flowforge/flowforge/internal/testutil"
	"github.com/flowforge/flowforge/pkg/api"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := testutil.GetRedisAddress(t)
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())
	require.NoError(t, client.FlushDB(ctx).Err())
	return client
}

func TestRedisDefinitionStore_SaveAssignsIncrementingVersionAndDeactivatesPriors(t *testing.T) {
	s := NewRedisDefinitionStore(newTestRedisClient(t), "flowforge:test:")
	ctx := context.Background()

	v1, err := s.Save(ctx, api.WorkflowDefinition{Name: "order", StartActivityID: "a1", Activities: []api.ActivityDefinition{{ID: "a1", Type: "log"}}})
	require.NoError(t, err)
	require.Equal(t, 1, v1.Version)

	v2, err := s.Save(ctx, api.WorkflowDefinition{Name: "order", StartActivityID: "a1", Activities: []api.ActivityDefinition{{ID: "a1", Type: "log"}}})
	require.NoError(t, err)
	require.Equal(t, 2, v2.Version)

	stored1, err := s.Get(ctx, "order", 1)
	require.NoError(t, err)
	require.False(t, stored1.IsActive)

	active, err := s.GetActive(ctx, "order")
	require.NoError(t, err)
	require.Equal(t, 2, active.Version)
}

func TestRedisDefinitionStore_GetMissing(t *testing.T) {
	s := NewRedisDefinitionStore(newTestRedisClient(t), "flowforge:test:")
	_, err := s.Get(context.Background(), "missing", 1)
	require.ErrorIs(t, err, corep.ErrDefinitionNotFound)
}

func TestRedisDefinitionStore_ListVersionsAndDeactivate(t *testing.T) {
	s := NewRedisDefinitionStore(newTestRedisClient(t), "flowforge:test:")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Save(ctx, api.WorkflowDefinition{Name: "order", StartActivityID: "a1", Activities: []api.ActivityDefinition{{ID: "a1"}}})
		require.NoError(t, err)
	}

	versions, err := s.ListVersions(ctx, "order")
	require.NoError(t, err)
	require.Len(t, versions, 3)

	require.NoError(t, s.Deactivate(ctx, "order", 3))
	_, err = s.GetActive(ctx, "order")
	require.ErrorIs(t, err, corep.ErrAmbiguousVersion)
}

func TestRedisDefinitionStore_ListActiveReturnsOnePerName(t *testing.T) {
	s := NewRedisDefinitionStore(newTestRedisClient(t), "flowforge:test:")
	ctx := context.Background()

	_, err := s.Save(ctx, api.WorkflowDefinition{Name: "order", StartActivityID: "a1", Activities: []api.ActivityDefinition{{ID: "a1"}}})
	require.NoError(t, err)
	_, err = s.Save(ctx, api.WorkflowDefinition{Name: "refund", StartActivityID: "a1", Activities: []api.ActivityDefinition{{ID: "a1"}}})
	require.NoError(t, err)
	_, err = s.Save(ctx, api.WorkflowDefinition{Name: "order", StartActivityID: "a1", Activities: []api.ActivityDefinition{{ID: "a1"}}})
	require.NoError(t, err)

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, "order", active[0].Name)
	require.Equal(t, 2, active[0].Version)
	require.Equal(t, "refund", active[1].Name)
}

func TestRedisInstanceStore_SaveGetUpdate(t *testing.T) {
	s := NewRedisInstanceStore(newTestRedisClient(t), "flowforge:test:")
	ctx := context.Background()

	inst := &api.WorkflowInstance{
		ID: "i1", WorkflowName: "order", WorkflowVersion: 1, Status: api.StatusPending,
		Input: map[string]any{"amount": 42.0}, UpdatedAt: time.Now(),
	}
	require.NoError(t, s.Save(ctx, inst))

	got, err := s.Get(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, "order", got.WorkflowName)
	require.Equal(t, 42.0, got.Input["amount"])

	got.Status = api.StatusRunning
	got.UpdatedAt = time.Now()
	require.NoError(t, s.Update(ctx, got))

	got, err = s.Get(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, api.StatusRunning, got.Status)
}

func TestRedisInstanceStore_ListFiltersByWorkflowAndStatus(t *testing.T) {
	s := NewRedisInstanceStore(newTestRedisClient(t), "flowforge:test:")
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &api.WorkflowInstance{ID: "a", WorkflowName: "order", Status: api.StatusRunning, UpdatedAt: time.Now()}))
	require.NoError(t, s.Save(ctx, &api.WorkflowInstance{ID: "b", WorkflowName: "order", Status: api.StatusCompleted, UpdatedAt: time.Now()}))
	require.NoError(t, s.Save(ctx, &api.WorkflowInstance{ID: "c", WorkflowName: "refund", Status: api.StatusRunning, UpdatedAt: time.Now()}))

	running, err := s.List(ctx, corep.InstanceFilter{Status: api.StatusRunning, HasStatus: true})
	require.NoError(t, err)
	require.Len(t, running, 2)

	orders, err := s.List(ctx, corep.InstanceFilter{WorkflowName: "order"})
	require.NoError(t, err)
	require.Len(t, orders, 2)

	both, err := s.List(ctx, corep.InstanceFilter{WorkflowName: "order", Status: api.StatusRunning, HasStatus: true})
	require.NoError(t, err)
	require.Len(t, both, 1)
	require.Equal(t, "a", both[0].ID)
}

func TestRedisInstanceStore_ListStaleFindsOldRunningInstances(t *testing.T) {
	s := NewRedisInstanceStore(newTestRedisClient(t), "flowforge:test:")
	ctx := context.Background()

	stale := &api.WorkflowInstance{ID: "stale", WorkflowName: "order", Status: api.StatusRunning, UpdatedAt: time.Now().Add(-time.Hour)}
	fresh := &api.WorkflowInstance{ID: "fresh", WorkflowName: "order", Status: api.StatusRunning, UpdatedAt: time.Now()}
	require.NoError(t, s.Save(ctx, stale))
	require.NoError(t, s.Save(ctx, fresh))

	staleList, err := s.ListStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, staleList, 1)
	require.Equal(t, "stale", staleList[0].ID)
}

func TestRedisExecutionStore_AppendAndListByInstance(t *testing.T) {
	s := NewRedisExecutionStore(newTestRedisClient(t), "flowforge:test:")
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, api.ActivityExecution{WorkflowInstanceID: "i1", ActivityID: "a1", Attempt: 1}))
	require.NoError(t, s.Append(ctx, api.ActivityExecution{WorkflowInstanceID: "i1", ActivityID: "a2", Attempt: 1}))

	execs, err := s.ListByInstance(ctx, "i1")
	require.NoError(t, err)
	require.Len(t, execs, 2)
	require.Equal(t, "a1", execs[0].ActivityID)
	require.Equal(t, "a2", execs[1].ActivityID)
}
