// Package api contains the core building blocks of the FlowForge workflow
// engine: the data model (WorkflowDefinition, WorkflowInstance,
// ActivityExecution, Job), the stable error taxonomy, the Engine interface
// the execution kernel implements, the Handler interface activity plugins
// implement, and the Observer interface used for logging and metrics.
//
// Most applications assemble an Engine, a Queue, a Locker, and a Worker pool
// from the internal/ packages and drive them through this package's types;
// api itself has no knowledge of any particular backend (in-memory, SQLite,
// Redis, Postgres, Mongo).
//
// # Data model
//
// A WorkflowDefinition is an immutable, versioned description of a workflow:
// its activities, the transitions between them, its input/output schemas,
// and its trigger. A WorkflowInstance is one run of a definition; it carries
// mutable State alongside the immutable Input it was started with. An
// ActivityExecution is one append-only history row recording a single
// attempt at a single activity.
//
// # Activities
//
// An activity's behavior is supplied by a Handler registered under the
// activity's Type. A Handler receives an ActivityContext (the current
// instance, the activity definition, resolved input, attempt number, and a
// ServiceLocator for handler-scoped dependencies) and returns an
// ActivityResult: exactly one of Ok, Suspend, or Fail.
//
// # Errors
//
// Every Engine entry point returns a tagged *EngineError carrying one of the
// stable ErrorCode values instead of an ad-hoc error, so callers can branch
// on outcome without string matching.
//
// # Observability
//
// The Observer interface receives callbacks from the engine, job queue, and
// scheduler. NoopObserver, LoggingObserver (log/slog-backed), BasicMetrics
// (atomic counters), and CompositeObserver (fan-out) are provided; hosts may
// supply their own.
package api
