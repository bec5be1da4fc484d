package flowforge

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/flowforge/flowforge/pkg/api"
	"github.com/stretchr/testify/require"
)

// TestSQLiteBundle_DurableAcrossRestart demonstrates that a workflow started
// via the durable queue remains durable across a simulated process restart:
// the definition, the pending instance, and the queued job all survive
// closing and reopening the SQLite database.
func TestSQLiteBundle_DurableAcrossRestart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbPath := filepath.Join(t.TempDir(), "flowforge_bundle.db")
	dsn := "file:" + dbPath + "?_journal=WAL"

	reg := NewRegistry()
	reg.Register("addOne", func(ctx context.Context, ac *ActivityContext) ActivityResult {
		n, _ := ac.Input["value"].(float64)
		return Ok(map[string]any{"value": n + 1})
	})

	// --- Phase 1: publish a start job, do not process it.

	db1, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)

	bundle1, err := NewSQLiteBundle(db1, reg, NoopObserver{}, DefaultConfig())
	require.NoError(t, err)

	flow := New("async-add-one").
		Activity("add-one", "addOne").
		WithInputMapping(map[string]string{"value": "input.value"}).
		WithOutputMapping(map[string]string{"value": "value"})

	_, err = RegisterWorkflow(ctx, bundle1.Stores.Definitions, flow)
	require.NoError(t, err, "RegisterWorkflow should succeed on first engine")

	before, err := ListInstances(ctx, bundle1.Stores.Instances, InstanceFilter{WorkflowName: flow.Name()})
	require.NoError(t, err)
	require.Len(t, before, 0)

	inst1, err := bundle1.Engine.Start(ctx, flow.Name(), map[string]any{"value": 41.0}, "", "")
	require.NoError(t, err)

	_, err = bundle1.Queue.Publish(ctx, api.Job{InstanceID: inst1.ID, Type: api.JobStart})
	require.NoError(t, err)

	mid, err := ListInstances(ctx, bundle1.Stores.Instances, InstanceFilter{WorkflowName: flow.Name()})
	require.NoError(t, err)
	require.Len(t, mid, 1, "the instance should exist but not yet be advanced")
	require.Equal(t, StatusPending, mid[0].Status)

	// Simulate a process crash by closing the DB and discarding bundle1.
	require.NoError(t, db1.Close())

	// --- Phase 2: "restart" with a new DB handle and bundle.

	db2, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db2.Close()

	bundle2, err := NewSQLiteBundle(db2, reg, NoopObserver{}, DefaultConfig())
	require.NoError(t, err)

	// Definitions, instances, and the queued job all live in the database,
	// so nothing needs to be re-registered on restart.

	_, err = RecoverStuckInstances(ctx, bundle2.Engine, time.Hour)
	require.NoError(t, err)

	job, err := bundle2.Queue.Pop(ctx)
	require.NoError(t, err)
	require.NotNil(t, job, "expected the job published before the crash to survive")
	require.Equal(t, inst1.ID, job.InstanceID)

	inst2, err := bundle2.Engine.Execute(ctx, job.InstanceID)
	require.NoError(t, err)
	require.NoError(t, bundle2.Queue.Ack(ctx, job.MessageID))

	require.Equal(t, StatusCompleted, inst2.Status)
	out, _ := inst2.Output["value"].(float64)
	require.Equal(t, float64(42), out, "expected async-add-one(41) == 42")
}
