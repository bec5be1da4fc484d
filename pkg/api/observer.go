package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the engine, job queue, and scheduler for
// logging and metrics. Implementations should be fast and non-blocking;
// heavy work should be done asynchronously so as not to delay workflow
// execution.
type Observer interface {
	OnInstanceStarted(ctx context.Context, inst *WorkflowInstance)
	OnInstanceSuspended(ctx context.Context, inst *WorkflowInstance)
	OnInstanceResumed(ctx context.Context, inst *WorkflowInstance)
	OnInstanceCompleted(ctx context.Context, inst *WorkflowInstance)
	OnInstanceFailed(ctx context.Context, inst *WorkflowInstance, err error)
	OnInstanceCancelled(ctx context.Context, inst *WorkflowInstance)

	OnActivityStart(ctx context.Context, inst *WorkflowInstance, activityID string, attempt int)
	OnActivityCompleted(ctx context.Context, inst *WorkflowInstance, activityID string, attempt int, err error, duration time.Duration)

	OnJobPopped(ctx context.Context, job *Job)
	OnJobNacked(ctx context.Context, job *Job, requeued bool)

	OnScheduleFired(ctx context.Context, workflowName string, version int, instanceID string)
}

// NoopObserver is an Observer that does nothing. It is the default when no
// observer is configured, and can be embedded to implement only a subset of
// the callbacks.
type NoopObserver struct{}

func (NoopObserver) OnInstanceStarted(context.Context, *WorkflowInstance)       {}
func (NoopObserver) OnInstanceSuspended(context.Context, *WorkflowInstance)     {}
func (NoopObserver) OnInstanceResumed(context.Context, *WorkflowInstance)       {}
func (NoopObserver) OnInstanceCompleted(context.Context, *WorkflowInstance)     {}
func (NoopObserver) OnInstanceFailed(context.Context, *WorkflowInstance, error) {}
func (NoopObserver) OnInstanceCancelled(context.Context, *WorkflowInstance)     {}
func (NoopObserver) OnActivityStart(context.Context, *WorkflowInstance, string, int) {
}
func (NoopObserver) OnActivityCompleted(context.Context, *WorkflowInstance, string, int, error, time.Duration) {
}
func (NoopObserver) OnJobPopped(context.Context, *Job)                   {}
func (NoopObserver) OnJobNacked(context.Context, *Job, bool)             {}
func (NoopObserver) OnScheduleFired(context.Context, string, int, string) {}

// CompositeObserver fans out events to multiple observers in order.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver builds an Observer that forwards every event to each
// non-nil observer in obs. Collapses to NoopObserver / the single observer
// when there are fewer than two.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnInstanceStarted(ctx context.Context, inst *WorkflowInstance) {
	for _, o := range c.observers {
		o.OnInstanceStarted(ctx, inst)
	}
}

func (c *CompositeObserver) OnInstanceSuspended(ctx context.Context, inst *WorkflowInstance) {
	for _, o := range c.observers {
		o.OnInstanceSuspended(ctx, inst)
	}
}

func (c *CompositeObserver) OnInstanceResumed(ctx context.Context, inst *WorkflowInstance) {
	for _, o := range c.observers {
		o.OnInstanceResumed(ctx, inst)
	}
}

func (c *CompositeObserver) OnInstanceCompleted(ctx context.Context, inst *WorkflowInstance) {
	for _, o := range c.observers {
		o.OnInstanceCompleted(ctx, inst)
	}
}

func (c *CompositeObserver) OnInstanceFailed(ctx context.Context, inst *WorkflowInstance, err error) {
	for _, o := range c.observers {
		o.OnInstanceFailed(ctx, inst, err)
	}
}

func (c *CompositeObserver) OnInstanceCancelled(ctx context.Context, inst *WorkflowInstance) {
	for _, o := range c.observers {
		o.OnInstanceCancelled(ctx, inst)
	}
}

func (c *CompositeObserver) OnActivityStart(ctx context.Context, inst *WorkflowInstance, activityID string, attempt int) {
	for _, o := range c.observers {
		o.OnActivityStart(ctx, inst, activityID, attempt)
	}
}

func (c *CompositeObserver) OnActivityCompleted(ctx context.Context, inst *WorkflowInstance, activityID string, attempt int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnActivityCompleted(ctx, inst, activityID, attempt, err, d)
	}
}

func (c *CompositeObserver) OnJobPopped(ctx context.Context, job *Job) {
	for _, o := range c.observers {
		o.OnJobPopped(ctx, job)
	}
}

func (c *CompositeObserver) OnJobNacked(ctx context.Context, job *Job, requeued bool) {
	for _, o := range c.observers {
		o.OnJobNacked(ctx, job, requeued)
	}
}

func (c *CompositeObserver) OnScheduleFired(ctx context.Context, workflowName string, version int, instanceID string) {
	for _, o := range c.observers {
		o.OnScheduleFired(ctx, workflowName, version, instanceID)
	}
}

// LoggingObserver writes structured logs for lifecycle events using
// log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver builds an Observer that logs via logger, or
// slog.Default() if logger is nil.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnInstanceStarted(ctx context.Context, inst *WorkflowInstance) {
	o.Logger.InfoContext(ctx, "instance_started",
		slog.String("workflow", inst.WorkflowName),
		slog.String("instance_id", inst.ID),
	)
}

func (o *LoggingObserver) OnInstanceSuspended(ctx context.Context, inst *WorkflowInstance) {
	o.Logger.InfoContext(ctx, "instance_suspended",
		slog.String("workflow", inst.WorkflowName),
		slog.String("instance_id", inst.ID),
	)
}

func (o *LoggingObserver) OnInstanceResumed(ctx context.Context, inst *WorkflowInstance) {
	o.Logger.InfoContext(ctx, "instance_resumed",
		slog.String("workflow", inst.WorkflowName),
		slog.String("instance_id", inst.ID),
	)
}

func (o *LoggingObserver) OnInstanceCompleted(ctx context.Context, inst *WorkflowInstance) {
	o.Logger.InfoContext(ctx, "instance_completed",
		slog.String("workflow", inst.WorkflowName),
		slog.String("instance_id", inst.ID),
	)
}

func (o *LoggingObserver) OnInstanceFailed(ctx context.Context, inst *WorkflowInstance, err error) {
	o.Logger.ErrorContext(ctx, "instance_failed",
		slog.String("workflow", inst.WorkflowName),
		slog.String("instance_id", inst.ID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnInstanceCancelled(ctx context.Context, inst *WorkflowInstance) {
	o.Logger.InfoContext(ctx, "instance_cancelled",
		slog.String("workflow", inst.WorkflowName),
		slog.String("instance_id", inst.ID),
	)
}

func (o *LoggingObserver) OnActivityStart(ctx context.Context, inst *WorkflowInstance, activityID string, attempt int) {
	o.Logger.DebugContext(ctx, "activity_start",
		slog.String("instance_id", inst.ID),
		slog.String("activity", activityID),
		slog.Int("attempt", attempt),
	)
}

func (o *LoggingObserver) OnActivityCompleted(ctx context.Context, inst *WorkflowInstance, activityID string, attempt int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
	}
	o.Logger.Log(ctx, level, "activity_completed",
		slog.String("instance_id", inst.ID),
		slog.String("activity", activityID),
		slog.Int("attempt", attempt),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnJobPopped(ctx context.Context, job *Job) {
	o.Logger.DebugContext(ctx, "job_popped",
		slog.String("instance_id", job.InstanceID),
		slog.String("type", job.Type.String()),
	)
}

func (o *LoggingObserver) OnJobNacked(ctx context.Context, job *Job, requeued bool) {
	o.Logger.WarnContext(ctx, "job_nacked",
		slog.String("instance_id", job.InstanceID),
		slog.Bool("requeued", requeued),
		slog.Int("attempt", job.Attempt),
	)
}

func (o *LoggingObserver) OnScheduleFired(ctx context.Context, workflowName string, version int, instanceID string) {
	o.Logger.InfoContext(ctx, "schedule_fired",
		slog.String("workflow", workflowName),
		slog.Int("version", version),
		slog.String("instance_id", instanceID),
	)
}

// BasicMetrics collects simple atomic counters over instance, activity, and
// queue events. Safe for concurrent use.
type BasicMetrics struct {
	NoopObserver

	instancesStarted   atomic.Int64
	instancesCompleted atomic.Int64
	instancesFailed    atomic.Int64
	instancesCancelled atomic.Int64
	activitiesRun      atomic.Int64
	totalActivityTime  atomic.Int64 // nanoseconds, successful activities only
	jobsPopped         atomic.Int64
	jobsNacked         atomic.Int64
}

// BasicMetricsSnapshot is an immutable point-in-time read of BasicMetrics.
type BasicMetricsSnapshot struct {
	InstancesStarted   int64
	InstancesCompleted int64
	InstancesFailed    int64
	InstancesCancelled int64
	InstancesPending   int64

	ActivitiesRun       int64
	AvgActivityDuration time.Duration

	JobsPopped int64
	JobsNacked int64
}

func (m *BasicMetrics) OnInstanceStarted(ctx context.Context, inst *WorkflowInstance) {
	m.instancesStarted.Add(1)
}

func (m *BasicMetrics) OnInstanceCompleted(ctx context.Context, inst *WorkflowInstance) {
	m.instancesCompleted.Add(1)
}

func (m *BasicMetrics) OnInstanceFailed(ctx context.Context, inst *WorkflowInstance, err error) {
	m.instancesFailed.Add(1)
}

func (m *BasicMetrics) OnInstanceCancelled(ctx context.Context, inst *WorkflowInstance) {
	m.instancesCancelled.Add(1)
}

func (m *BasicMetrics) OnActivityCompleted(_ context.Context, _ *WorkflowInstance, _ string, _ int, err error, d time.Duration) {
	// Only count successful activities for average duration.
	if err == nil {
		m.activitiesRun.Add(1)
		m.totalActivityTime.Add(d.Nanoseconds())
	}
}

func (m *BasicMetrics) OnJobPopped(ctx context.Context, job *Job) { m.jobsPopped.Add(1) }

func (m *BasicMetrics) OnJobNacked(ctx context.Context, job *Job, requeued bool) { m.jobsNacked.Add(1) }

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.instancesStarted.Load()
	completed := m.instancesCompleted.Load()
	failed := m.instancesFailed.Load()
	cancelled := m.instancesCancelled.Load()
	runs := m.activitiesRun.Load()
	totalNs := m.totalActivityTime.Load()

	var avg time.Duration
	if runs > 0 {
		avg = time.Duration(totalNs / runs)
	}

	return BasicMetricsSnapshot{
		InstancesStarted:    started,
		InstancesCompleted:  completed,
		InstancesFailed:     failed,
		InstancesCancelled:  cancelled,
		InstancesPending:    started - completed - failed - cancelled,
		ActivitiesRun:       runs,
		AvgActivityDuration: avg,
		JobsPopped:          m.jobsPopped.Load(),
		JobsNacked:          m.jobsNacked.Load(),
	}
}
