package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/flowforge/pkg/api"
)

func TestMemoryDefinitionStore_SaveAssignsIncrementingVersionAndDeactivatesPriors(t *testing.T) {
	s := NewMemoryDefinitionStore()
	ctx := context.Background()

	v1, err := s.Save(ctx, api.WorkflowDefinition{Name: "order"})
	require.NoError(t, err)
	require.Equal(t, 1, v1.Version)
	require.True(t, v1.IsActive)

	v2, err := s.Save(ctx, api.WorkflowDefinition{Name: "order"})
	require.NoError(t, err)
	require.Equal(t, 2, v2.Version)
	require.True(t, v2.IsActive)

	stored1, err := s.Get(ctx, "order", 1)
	require.NoError(t, err)
	require.False(t, stored1.IsActive)

	active, err := s.GetActive(ctx, "order")
	require.NoError(t, err)
	require.Equal(t, 2, active.Version)
}

func TestMemoryDefinitionStore_GetMissing(t *testing.T) {
	s := NewMemoryDefinitionStore()
	_, err := s.Get(context.Background(), "missing", 1)
	require.ErrorIs(t, err, ErrDefinitionNotFound)
}

func TestMemoryDefinitionStore_ListVersionsSorted(t *testing.T) {
	s := NewMemoryDefinitionStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Save(ctx, api.WorkflowDefinition{Name: "order"})
		require.NoError(t, err)
	}

	versions, err := s.ListVersions(ctx, "order")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	require.Equal(t, []int{1, 2, 3}, []int{versions[0].Version, versions[1].Version, versions[2].Version})
}

func TestMemoryDefinitionStore_Deactivate(t *testing.T) {
	s := NewMemoryDefinitionStore()
	ctx := context.Background()

	_, err := s.Save(ctx, api.WorkflowDefinition{Name: "order"})
	require.NoError(t, err)

	require.NoError(t, s.Deactivate(ctx, "order", 1))
	_, err = s.GetActive(ctx, "order")
	require.ErrorIs(t, err, ErrAmbiguousVersion)
}

func TestMemoryInstanceStore_SaveGetUpdate(t *testing.T) {
	s := NewMemoryInstanceStore()
	ctx := context.Background()

	inst := &api.WorkflowInstance{ID: "i1", WorkflowName: "order", Status: api.StatusPending}
	require.NoError(t, s.Save(ctx, inst))

	got, err := s.Get(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, "order", got.WorkflowName)

	got.Status = api.StatusRunning
	require.NoError(t, s.Update(ctx, got))

	got2, err := s.Get(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, api.StatusRunning, got2.Status)
}

func TestMemoryInstanceStore_UpdateMissing(t *testing.T) {
	s := NewMemoryInstanceStore()
	err := s.Update(context.Background(), &api.WorkflowInstance{ID: "missing"})
	require.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestMemoryInstanceStore_ListFiltersByNameAndStatus(t *testing.T) {
	s := NewMemoryInstanceStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &api.WorkflowInstance{ID: "i1", WorkflowName: "order", Status: api.StatusRunning}))
	require.NoError(t, s.Save(ctx, &api.WorkflowInstance{ID: "i2", WorkflowName: "order", Status: api.StatusCompleted}))
	require.NoError(t, s.Save(ctx, &api.WorkflowInstance{ID: "i3", WorkflowName: "shipment", Status: api.StatusRunning}))

	byName, err := s.List(ctx, InstanceFilter{WorkflowName: "order"})
	require.NoError(t, err)
	require.Len(t, byName, 2)

	byStatus, err := s.List(ctx, InstanceFilter{WorkflowName: "order", Status: api.StatusRunning, HasStatus: true})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	require.Equal(t, "i1", byStatus[0].ID)
}

func TestMemoryInstanceStore_ListStale(t *testing.T) {
	s := NewMemoryInstanceStore()
	ctx := context.Background()

	stale := &api.WorkflowInstance{ID: "i1", Status: api.StatusRunning, UpdatedAt: time.Now().Add(-time.Hour)}
	fresh := &api.WorkflowInstance{ID: "i2", Status: api.StatusRunning, UpdatedAt: time.Now()}
	require.NoError(t, s.Save(ctx, stale))
	require.NoError(t, s.Save(ctx, fresh))

	out, err := s.ListStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "i1", out[0].ID)
}

func TestMemoryExecutionStore_AppendAndListByInstance(t *testing.T) {
	s := NewMemoryExecutionStore()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, api.ActivityExecution{ID: "e1", WorkflowInstanceID: "i1", ActivityID: "a1"}))
	require.NoError(t, s.Append(ctx, api.ActivityExecution{ID: "e2", WorkflowInstanceID: "i1", ActivityID: "a2"}))
	require.NoError(t, s.Append(ctx, api.ActivityExecution{ID: "e3", WorkflowInstanceID: "i2", ActivityID: "a1"}))

	execs, err := s.ListByInstance(ctx, "i1")
	require.NoError(t, err)
	require.Len(t, execs, 2)
}
