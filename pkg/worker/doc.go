// Package worker provides the worker pool that drives workflow instances
// forward.
//
// A Worker pops jobs from a job queue and dispatches each to an engine,
// bounded to a configurable concurrency limit. It is designed to be
// lightweight and easy to embed in a host process, and scales horizontally:
// multiple workers can safely pop from the same queue, since the engine
// itself holds a per-instance lock during advancement.
//
// # Worker Responsibilities
//
// A worker is responsible for:
//
//   - Popping jobs from a queue, bounded to a concurrency limit
//   - Dispatching each job to the engine by its JobType
//   - Acking a job on success, Nacking (and requeueing) on failure
//   - Renewing a heartbeat lock for as long as it is running
//
// # Configuration
//
// Workers are configured through api.Config.Worker, which controls:
//
//   - MaxConcurrency, the number of jobs processed in parallel
//   - PollInterval, how long a worker sleeps between empty queue pops
//   - HeartbeatInterval, how often its liveness key is renewed
//
// # Integration with Engine and Queue
//
// A Worker is decoupled from any particular persistence backend. It relies
// on two ports: internal/queue.Queue for job delivery, and api.Engine for
// instance advancement. Different Queue and persistence implementations
// (in-memory, SQLite, and the backend submodules) can be plugged in without
// changing worker.go.
//
// # Observability
//
// Worker activity is reported through api.Observer: OnJobPopped when a job
// is dequeued, OnJobNacked when a job is requeued or dropped.
package worker
