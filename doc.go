// Package flowforge provides a lightweight, embeddable workflow engine for
// Go.
//
// FlowForge is designed for backend services that need reliable
// asynchronous operations, background tasks, or long-lived workflows
// without introducing heavy external infrastructure. It runs fully in Go,
// supports multiple persistence backends, and integrates cleanly into
// existing codebases.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Engine
//  2. Registry
//  3. WorkflowBuilder
//  4. Worker
//  5. Bundle / LocalRunner
//
// # Engine
//
// The Engine advances a single workflow instance through its declared
// activities and transitions under a held per-instance lock. It exposes
// Start (create an instance), Execute (run the advancement loop),
// ResumeWithSignal (deliver a signal to a suspended instance), Cancel, and
// GetInstance.
//
// Engines can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests) — NewInMemoryEngine
//   - SQLite (embedded durability) — NewSQLiteEngine
//   - PostgreSQL, Redis, and MongoDB each live in their own Go module
//     (postgres/, redis/, mongo/) since wiring them from this module would
//     create an import cycle through their replace directives; import
//     whichever one your deployment needs directly.
//
// # Registry
//
// A Registry maps an activity's declared Type string to the Handler that
// executes it. NewBuiltinRegistry returns one pre-populated with "log",
// "delay", "waitForSignal", and "http"; register your own handlers with
// Registry.Register before starting an Engine that uses them.
//
// # WorkflowBuilder
//
// WorkflowBuilder provides the ergonomic, declarative API used to define a
// WorkflowDefinition: a start activity, a set of typed activities, and the
// transitions connecting them.
//
// Example:
//
//	def := flowforge.New("Onboarding").
//	    Activity("createAccount", "createAccount").
//	    Activity("sendWelcomeEmail", "log").
//	    Transition("createAccount", "sendWelcomeEmail", "", 0).
//	    MustBuild()
//
// Definitions are saved into an Engine's DefinitionStore via
// RegisterWorkflow before any instance of them is started.
//
// # Worker
//
// A Worker pulls jobs from a configured Queue and drives the Engine
// forward. Workers run asynchronously and can be scaled horizontally; each
// holds a renewing heartbeat lock while running.
//
// # Bundle / LocalRunner
//
// Bundle wires an Engine, a durable Queue, a Worker, and a cron Scheduler
// together against one SQLite database — the quickest path to a durable,
// single-process deployment. LocalRunner is the equivalent for fully
// in-memory development and tests.
//
// For runnable examples, see example_test.go.
package flowforge
