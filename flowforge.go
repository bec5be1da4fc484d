package flowforge

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	coreengine "github.com/flowforge/flowforge/internal/engine"
	"github.com/flowforge/flowforge/internal/lock"
	"github.com/flowforge/flowforge/internal/persistence"
	"github.com/flowforge/flowforge/internal/registry"
	"github.com/flowforge/flowforge/pkg/api"
)

// Re-export the core types so callers don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	WorkflowDefinition   = api.WorkflowDefinition
	ActivityDefinition   = api.ActivityDefinition
	TransitionDefinition = api.TransitionDefinition
	WorkflowInstance      = api.WorkflowInstance
	Trigger               = api.Trigger
	Status                = api.Status
	ActivityContext       = api.ActivityContext
	ActivityResult        = api.ActivityResult
	Handler               = api.Handler
	RetryPolicy           = api.RetryPolicy
	Config                = api.Config
	Observer              = api.Observer
	LoggingObserver       = api.LoggingObserver
	BasicMetrics          = api.BasicMetrics
	BasicMetricsSnapshot  = api.BasicMetricsSnapshot
	CompositeObserver     = api.CompositeObserver
	NoopObserver          = api.NoopObserver
	EngineError           = api.EngineError

	DefinitionStore = persistence.DefinitionStore
	InstanceStore   = persistence.InstanceStore
	ExecutionStore  = persistence.ExecutionStore
	InstanceFilter  = persistence.InstanceFilter

	Registry = registry.Registry
	Locker   = lock.Locker

	Job     = api.Job
	JobType = api.JobType
)

// Re-export status values for convenience.

const (
	StatusPending   = api.StatusPending
	StatusScheduled = api.StatusScheduled
	StatusRunning   = api.StatusRunning
	StatusSuspended = api.StatusSuspended
	StatusCompleted = api.StatusCompleted
	StatusFailed    = api.StatusFailed
	StatusCancelled = api.StatusCancelled
	StatusTimedOut  = api.StatusTimedOut

	// JobStart, JobContinue, JobResume, JobRetry, and JobCancel are the job
	// types a Queue transports between an Engine.Start/ResumeWithSignal/
	// Cancel call and the Worker that drives Engine.Execute/Cancel for it.
	JobStart    = api.JobStart
	JobContinue = api.JobContinue
	JobResume   = api.JobResume
	JobRetry    = api.JobRetry
	JobCancel   = api.JobCancel
)

// Re-export construction helpers that don't depend on a specific backend.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	DefaultConfig        = api.DefaultConfig
	DefaultRetryPolicy    = api.DefaultRetryPolicy
	Ok                    = api.Ok
	OkNext                = api.OkNext
	Suspend               = api.Suspend
	Fail                  = api.Fail
)

// NewRegistry returns an empty activity type registry.
func NewRegistry() *Registry {
	return registry.New()
}

// NewBuiltinRegistry returns a registry pre-populated with the "log",
// "delay", "waitForSignal", and "http" activity types every engine gets for
// free. logger may be nil, in which case the "log" handler falls back to
// slog.Default().
func NewBuiltinRegistry(logger *slog.Logger) *Registry {
	return registry.Builtins(logger)
}

// Stores bundles the three persistence repositories an Engine needs,
// mirroring internal/persistence.MemoryStore's shape for whichever backend
// constructed it.
type Stores struct {
	Definitions DefinitionStore
	Instances   InstanceStore
	Executions  ExecutionStore
}

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores
// and an in-process mutex-based lock manager. Useful for tests and local
// development; nothing it writes survives process restart.
func NewInMemoryEngine(reg *Registry, obs Observer) (Engine, *Stores) {
	mem := persistence.NewMemoryStore()
	stores := &Stores{Definitions: mem.Definitions, Instances: mem.Instances, Executions: mem.Executions}
	eng := coreengine.New(coreengine.Deps{
		Definitions: stores.Definitions,
		Instances:   stores.Instances,
		Executions:  stores.Executions,
		Locker:      lock.NewMemoryLocker(),
		Registry:    reg,
		Observer:    obs,
		Config:      api.DefaultConfig(),
	})
	return eng, stores
}

// NewSQLiteEngine returns an Engine whose definitions, instances, and
// execution history are persisted in the given *sql.DB. Additional
// persistent backends (PostgreSQL, Redis, MongoDB) live in their own Go
// modules under postgres/, redis/, and mongo/ — each wires
// internal/engine.New against its own Stores and Locker rather than being
// re-exported here, since importing them from the root module would create
// a module import cycle through their "replace .. => .." directives.
func NewSQLiteEngine(db *sql.DB, reg *Registry, obs Observer) (Engine, *Stores, error) {
	defs, err := persistence.NewSQLiteDefinitionStore(db)
	if err != nil {
		return nil, nil, err
	}
	insts, err := persistence.NewSQLiteInstanceStore(db)
	if err != nil {
		return nil, nil, err
	}
	execs, err := persistence.NewSQLiteExecutionStore(db)
	if err != nil {
		return nil, nil, err
	}
	locker, err := lock.NewSQLiteLocker(db)
	if err != nil {
		return nil, nil, err
	}

	stores := &Stores{Definitions: defs, Instances: insts, Executions: execs}
	eng := coreengine.New(coreengine.Deps{
		Definitions: stores.Definitions,
		Instances:   stores.Instances,
		Executions:  stores.Executions,
		Locker:      locker,
		Registry:    reg,
		Observer:    obs,
		Config:      api.DefaultConfig(),
	})
	return eng, stores, nil
}

// Convenience helpers that just forward to the underlying Engine, matching
// the shape of the Engine interface itself so callers rarely need to import
// pkg/api directly.

// Run starts name with input and immediately drives it to completion,
// suspension, or failure. It is Start followed by Execute; callers that want
// to enqueue the start for a worker to pick up asynchronously should call
// Start and publish a Job themselves instead.
func Run(ctx context.Context, eng Engine, name string, input map[string]any) (*WorkflowInstance, error) {
	inst, err := eng.Start(ctx, name, input, "", "")
	if err != nil {
		return nil, err
	}
	return eng.Execute(ctx, inst.ID)
}

// GetInstance fetches an instance by ID.
func GetInstance(ctx context.Context, eng Engine, id string) (*WorkflowInstance, error) {
	return eng.GetInstance(ctx, id)
}

// Signal delivers a signal to a suspended instance and resumes it.
func Signal(ctx context.Context, eng Engine, id, name string, data map[string]any) (*WorkflowInstance, error) {
	return eng.ResumeWithSignal(ctx, id, name, data)
}

// Cancel marks a non-terminal instance Cancelled.
func Cancel(ctx context.Context, eng Engine, id string) (*WorkflowInstance, error) {
	return eng.Cancel(ctx, id)
}

// RecoverStuckInstances delegates to eng.RecoverStuckInstances. It is
// typically called once on process startup, before starting any workers:
//
//	count, err := flowforge.RecoverStuckInstances(ctx, engine, 5*time.Minute)
func RecoverStuckInstances(ctx context.Context, eng Engine, olderThan time.Duration) (int, error) {
	return eng.RecoverStuckInstances(ctx, olderThan)
}

// ListInstances lists workflow instances matching filter against store.
func ListInstances(ctx context.Context, store InstanceStore, filter InstanceFilter) ([]*WorkflowInstance, error) {
	return store.List(ctx, filter)
}
