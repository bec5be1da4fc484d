package api

import "time"

// Config collects every tunable knob the engine, worker pool, scheduler,
// queue, and lock manager expose. It has no sourcing behavior of its own
// (no env/flag/YAML parsing) — loading a Config from the environment is the
// host application's concern; api only defines the shape and the defaults a
// fresh engine should run with if left unset.
type Config struct {
	// Prefix is prepended to every key this process writes into a shared
	// lock or coordination keyspace: instance locks, worker heartbeats, and
	// the scheduler's singleton lock. Multiple independent deployments can
	// share one backing store by using distinct prefixes.
	Prefix string

	Worker    WorkerConfig
	Scheduler SchedulerConfig
	Engine    EngineConfig
	Queue     QueueConfig
	Lock      LockConfig
}

// WorkerConfig controls the worker pool (pkg/worker).
type WorkerConfig struct {
	// MaxConcurrency bounds how many jobs a single worker pool processes at
	// once.
	MaxConcurrency int

	// PollInterval is how long a worker sleeps between empty queue pops.
	PollInterval time.Duration

	// HeartbeatInterval is how often a worker renews its lock-backed
	// liveness key, whose lease is three times this interval.
	HeartbeatInterval time.Duration
}

// SchedulerConfig controls the cron scheduler (internal/cron).
type SchedulerConfig struct {
	// Enabled gates the scheduler loop entirely; a disabled scheduler never
	// scans for due triggers, regardless of CheckInterval.
	Enabled bool

	// CheckInterval is how often the scheduler scans its schedule table for
	// due cron triggers.
	CheckInterval time.Duration

	// MaxStartsPerCheck caps how many due triggers a single scan will start.
	// The rest remain due and are picked up on the next scan. Zero or
	// negative means unbounded.
	MaxStartsPerCheck int

	// Timezone is the IANA timezone name (e.g. "America/New_York") that
	// cron expressions without an explicit zone are evaluated in. Empty
	// means UTC.
	Timezone string
}

// EngineConfig controls the execution engine (internal/engine).
type EngineConfig struct {
	// DefaultRetryPolicy is used for activities that don't declare their
	// own retry policy and whose workflow definition doesn't declare a
	// default_retry_policy either.
	DefaultRetryPolicy RetryPolicy

	// DefaultActivityTimeout bounds an activity attempt when neither the
	// activity nor its workflow definition declares a timeout.
	DefaultActivityTimeout time.Duration

	// StuckInstanceThreshold is a default olderThan duration for
	// RecoverStuckInstances. Nothing in this module reads it:
	// RecoverStuckInstances takes olderThan as an argument and is never
	// called automatically.
	StuckInstanceThreshold time.Duration
}

// QueueConfig controls the job queue (internal/queue).
type QueueConfig struct {
	// MaxAttempts is the attempt count at which a requeueing Nack routes a
	// job to the dead-letter queue instead: with 5, a job is requeued on its
	// first four nacks and dead-lettered on the fifth.
	MaxAttempts int

	// VisibilityTimeout is how long a popped job is hidden from other
	// consumers before it is considered abandoned and becomes visible again.
	VisibilityTimeout time.Duration
}

// LockConfig controls the distributed lock manager (internal/lock).
type LockConfig struct {
	// LeaseDuration is how long a lock handle is held before it must be
	// renewed or it expires and becomes acquirable by another owner.
	LeaseDuration time.Duration

	// AcquireTimeout bounds how long Acquire blocks waiting for a
	// contended lock before returning LOCK_FAILED.
	AcquireTimeout time.Duration
}

// WithDefaults fills any zero-valued field in c from DefaultConfig(),
// leaving every field the caller did set untouched. Engine/Scheduler/Worker
// constructors call this instead of substituting a DefaultConfig() wholesale
// whenever one particular field they care about happens to be unset — a
// wholesale substitution would silently discard unrelated fields (a custom
// Prefix, a tuned Lock.LeaseDuration) the caller set elsewhere in the same
// Config.
//
// SchedulerConfig is the one exception: if every one of its fields is still
// zero (the caller never touched it at all), it is replaced wholesale
// rather than merged field-by-field, since Enabled's zero value (false)
// would otherwise leave an untouched scheduler permanently disabled instead
// of defaulting to enabled.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()

	if c.Prefix == "" {
		c.Prefix = d.Prefix
	}

	if c.Worker.MaxConcurrency == 0 {
		c.Worker.MaxConcurrency = d.Worker.MaxConcurrency
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = d.Worker.PollInterval
	}
	if c.Worker.HeartbeatInterval == 0 {
		c.Worker.HeartbeatInterval = d.Worker.HeartbeatInterval
	}

	if c.Scheduler == (SchedulerConfig{}) {
		c.Scheduler = d.Scheduler
	} else {
		if c.Scheduler.CheckInterval == 0 {
			c.Scheduler.CheckInterval = d.Scheduler.CheckInterval
		}
		if c.Scheduler.MaxStartsPerCheck == 0 {
			c.Scheduler.MaxStartsPerCheck = d.Scheduler.MaxStartsPerCheck
		}
		if c.Scheduler.Timezone == "" {
			c.Scheduler.Timezone = d.Scheduler.Timezone
		}
	}

	if c.Engine.DefaultRetryPolicy.MaxAttempts == 0 {
		c.Engine.DefaultRetryPolicy = d.Engine.DefaultRetryPolicy
	}
	if c.Engine.DefaultActivityTimeout == 0 {
		c.Engine.DefaultActivityTimeout = d.Engine.DefaultActivityTimeout
	}
	if c.Engine.StuckInstanceThreshold == 0 {
		c.Engine.StuckInstanceThreshold = d.Engine.StuckInstanceThreshold
	}

	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = d.Queue.MaxAttempts
	}
	if c.Queue.VisibilityTimeout == 0 {
		c.Queue.VisibilityTimeout = d.Queue.VisibilityTimeout
	}

	if c.Lock.LeaseDuration == 0 {
		c.Lock.LeaseDuration = d.Lock.LeaseDuration
	}
	if c.Lock.AcquireTimeout == 0 {
		c.Lock.AcquireTimeout = d.Lock.AcquireTimeout
	}

	return c
}

// DefaultConfig returns the configuration a fresh engine runs with if the
// host application supplies no overrides.
func DefaultConfig() Config {
	return Config{
		Prefix: "flowforge:",
		Worker: WorkerConfig{
			MaxConcurrency:    10,
			PollInterval:      500 * time.Millisecond,
			HeartbeatInterval: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:           true,
			CheckInterval:     10 * time.Second,
			MaxStartsPerCheck: 10,
		},
		Engine: EngineConfig{
			DefaultRetryPolicy:     DefaultRetryPolicy(),
			DefaultActivityTimeout: 1 * time.Hour,
			StuckInstanceThreshold: 5 * time.Minute,
		},
		Queue: QueueConfig{
			MaxAttempts:       5,
			VisibilityTimeout: 30 * time.Second,
		},
		Lock: LockConfig{
			LeaseDuration:  30 * time.Second,
			AcquireTimeout: 10 * time.Second,
		},
	}
}
