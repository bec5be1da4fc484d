package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	corep "github.com/flowforge/flowforge/internal/persistence"
	"github.com/flowforge/flowforge/internal/testutil"
	"github.com/flowforge/flowforge/pkg/api"
)

func newTestMongoClient(t *testing.T) *mongo.Client {
	t.Helper()
	uri := testutil.GetMongoURI(t)
	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	require.NoError(t, client.Ping(ctx, nil))
	require.NoError(t, client.Database("flowforge_test").Drop(ctx))
	return client
}

func TestMongoDefinitionStore_SaveAssignsIncrementingVersionAndDeactivatesPriors(t *testing.T) {
	s := NewMongoDefinitionStore(newTestMongoClient(t), "flowforge_test", "")
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
	require.Equal(t, "a1", stored1.StartActivityID)

	active, err := s.GetActive(ctx, "order")
	require.NoError(t, err)
	require.Equal(t, 2, active.Version)
}

func TestMongoDefinitionStore_GetMissing(t *testing.T) {
	s := NewMongoDefinitionStore(newTestMongoClient(t), "flowforge_test", "")
	_, err := s.Get(context.Background(), "missing", 1)
	require.ErrorIs(t, err, corep.ErrDefinitionNotFound)
}

func TestMongoDefinitionStore_ListVersionsAndDeactivate(t *testing.T) {
	s := NewMongoDefinitionStore(newTestMongoClient(t), "flowforge_test", "")
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

func TestMongoDefinitionStore_ListActiveReturnsOnePerName(t *testing.T) {
	s := NewMongoDefinitionStore(newTestMongoClient(t), "flowforge_test", "")
	ctx := context.Background()

	_, err := s.Save(ctx, api.WorkflowDefinition{Name: "order", StartActivityID: "a1", Activities: []api.ActivityDefinition{{ID: "a1"}}})
	require.NoError(t, err)
	_, err = s.Save(ctx, api.WorkflowDefinition{Name: "shipment", StartActivityID: "a1", Activities: []api.ActivityDefinition{{ID: "a1"}}})
	require.NoError(t, err)

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
}

func TestMongoInstanceStore_SaveGetUpdate(t *testing.T) {
	s := NewMongoInstanceStore(newTestMongoClient(t), "flowforge_test", "")
	ctx := context.Background()

	inst := &api.WorkflowInstance{
		ID: "i1", WorkflowName: "order", WorkflowVersion: 1, Status: api.StatusPending,
		Input: map[string]any{"amount": 42.0},
	}
	require.NoError(t, s.Save(ctx, inst))

	got, err := s.Get(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, "order", got.WorkflowName)
	require.Equal(t, 42.0, got.Input["amount"])

	got.Status = api.StatusRunning
	require.NoError(t, s.Update(ctx, got))

	got2, err := s.Get(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, api.StatusRunning, got2.Status)
}

func TestMongoInstanceStore_UpdateMissing(t *testing.T) {
	s := NewMongoInstanceStore(newTestMongoClient(t), "flowforge_test", "")
	err := s.Update(context.Background(), &api.WorkflowInstance{ID: "missing"})
	require.ErrorIs(t, err, corep.ErrInstanceNotFound)
}

func TestMongoInstanceStore_ListFiltersByNameAndStatus(t *testing.T) {
	s := NewMongoInstanceStore(newTestMongoClient(t), "flowforge_test", "")
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &api.WorkflowInstance{ID: "i1", WorkflowName: "order", Status: api.StatusRunning}))
	require.NoError(t, s.Save(ctx, &api.WorkflowInstance{ID: "i2", WorkflowName: "order", Status: api.StatusCompleted}))
	require.NoError(t, s.Save(ctx, &api.WorkflowInstance{ID: "i3", WorkflowName: "shipment", Status: api.StatusRunning}))

	byName, err := s.List(ctx, corep.InstanceFilter{WorkflowName: "order"})
	require.NoError(t, err)
	require.Len(t, byName, 2)

	byStatus, err := s.List(ctx, corep.InstanceFilter{WorkflowName: "order", Status: api.StatusRunning, HasStatus: true})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	require.Equal(t, "i1", byStatus[0].ID)
}

func TestMongoInstanceStore_ListStale(t *testing.T) {
	s := NewMongoInstanceStore(newTestMongoClient(t), "flowforge_test", "")
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

func TestMongoExecutionStore_AppendAndListByInstance(t *testing.T) {
	s := NewMongoExecutionStore(newTestMongoClient(t), "flowforge_test", "")
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, s.Append(ctx, api.ActivityExecution{ID: "e1", WorkflowInstanceID: "i1", ActivityID: "a1", StartedAt: now}))
	require.NoError(t, s.Append(ctx, api.ActivityExecution{ID: "e2", WorkflowInstanceID: "i1", ActivityID: "a2", StartedAt: now.Add(time.Second)}))
	require.NoError(t, s.Append(ctx, api.ActivityExecution{ID: "e3", WorkflowInstanceID: "i2", ActivityID: "a1", StartedAt: now}))

	execs, err := s.ListByInstance(ctx, "i1")
	require.NoError(t, err)
	require.Len(t, execs, 2)
	require.Equal(t, "a1", execs[0].ActivityID)
}
