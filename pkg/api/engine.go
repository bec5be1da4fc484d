package api

import (
	"context"
	"time"
)

// Engine is the workflow execution engine's public surface: the state
// machine that advances a single instance under a held per-instance lock.
// Every entry point returns a tagged *EngineError rather than an ad-hoc
// error.
//
// Start only creates the instance, Execute drives the advancement loop, and
// ResumeWithSignal/Cancel act on an already-running instance instead of
// replaying one from the beginning.
type Engine interface {
	// Start resolves the active definition for name (or returns
	// WORKFLOW_NOT_FOUND / WORKFLOW_INACTIVE), validates input against the
	// definition's input schema (or returns INVALID_INPUT), and creates a
	// new Pending instance with CurrentActivityID set to the definition's
	// start activity. It does not execute the instance.
	Start(ctx context.Context, name string, input map[string]any, correlationID, parentInstanceID string) (*WorkflowInstance, error)

	// StartVersion is like Start but pins an explicit definition version
	// instead of resolving the active one.
	StartVersion(ctx context.Context, name string, version int, input map[string]any, correlationID, parentInstanceID string) (*WorkflowInstance, error)

	// Execute acquires the instance lock, loads the instance, and runs the
	// advancement loop until the instance completes, fails, suspends, or the
	// context is cancelled. Calling Execute on a terminal instance is a
	// no-op that returns it unchanged.
	Execute(ctx context.Context, instanceID string) (*WorkflowInstance, error)

	// ResumeWithSignal delivers signalName/data to a Suspended instance and
	// continues execution. Fails with NOT_SUSPENDED if the instance is not
	// Suspended, or SIGNAL_MISMATCH if state._suspend_key != signalName.
	ResumeWithSignal(ctx context.Context, instanceID, signalName string, data map[string]any) (*WorkflowInstance, error)

	// Cancel marks a non-terminal instance Cancelled. A terminal instance is
	// returned unchanged.
	Cancel(ctx context.Context, instanceID string) (*WorkflowInstance, error)

	// GetInstance looks up an instance by id.
	GetInstance(ctx context.Context, instanceID string) (*WorkflowInstance, error)

	// RecoverStuckInstances fails every Running instance whose last update
	// is older than olderThan, as if its owning worker had crashed. It is
	// meant to run once on process startup, before any worker begins
	// consuming the queue.
	RecoverStuckInstances(ctx context.Context, olderThan time.Duration) (int, error)
}
