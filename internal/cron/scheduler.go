package cron

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/flowforge/flowforge/internal/lock"
	"github.com/flowforge/flowforge/internal/persistence"
	"github.com/flowforge/flowforge/internal/queue"
	"github.com/flowforge/flowforge/pkg/api"
)

const schedulerLockKey = "lock:scheduler"

// scheduledFirePriority and triggerNowPriority are the Job.Priority values
// a fire publishes at; lower fires first, so an operator-triggered run
// jumps the queue ahead of a routine cron fire.
const (
	scheduledFirePriority = 50
	triggerNowPriority    = 10
)

type entry struct {
	name    string
	version int
	cron    string
	sched   *Schedule
	lastRun time.Time
	nextRun time.Time
}

// Scheduler owns an in-memory schedule table built from every active
// Scheduled definition and publishes a Start job each time an entry's
// next_run elapses. If Locker is set, Run only does work while it holds
// schedulerLockKey, so multiple replicas can run Scheduler concurrently and
// only one of them actually ticks.
type Scheduler struct {
	definitions persistence.DefinitionStore
	queue       queue.Queue
	engine      api.Engine
	locker      lock.Locker
	observer    api.Observer
	config      api.Config
	logger      *slog.Logger
	parser      *Parser

	location *time.Location

	mu      sync.Mutex
	entries map[string]*entry // keyed by workflow name
}

// Deps bundles the dependencies a Scheduler needs.
type Deps struct {
	Definitions persistence.DefinitionStore
	Queue       queue.Queue
	Engine      api.Engine
	Locker      lock.Locker
	Observer    api.Observer
	Config      api.Config
	Logger      *slog.Logger
}

// New constructs a Scheduler, filling in defaults for any unset optional
// field.
func New(d Deps) *Scheduler {
	if d.Observer == nil {
		d.Observer = api.NoopObserver{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	d.Config = d.Config.WithDefaults()
	loc := time.UTC
	if tz := d.Config.Scheduler.Timezone; tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			d.Logger.Error("scheduler: invalid timezone, falling back to UTC",
				slog.String("timezone", tz), slog.Any("error", err))
		} else {
			loc = l
		}
	}
	return &Scheduler{
		definitions: d.Definitions,
		queue:       d.Queue,
		engine:      d.Engine,
		locker:      d.Locker,
		observer:    d.Observer,
		config:      d.Config,
		logger:      d.Logger,
		parser:      NewParser(),
		location:    loc,
		entries:     make(map[string]*entry),
	}
}

func (s *Scheduler) lockKey() string {
	return s.config.Prefix + schedulerLockKey
}

// Run loops on config.Scheduler.CheckInterval: refresh the schedule table
// from active definitions, then fire any entry whose next_run has elapsed.
// If s.locker is set, Run first tries to acquire the singleton scheduler
// lock (wait=0) and skips the tick entirely if another replica holds it.
// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Scheduler.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.config.Scheduler.Enabled {
		return
	}
	if s.locker != nil {
		handle, err := s.locker.Acquire(ctx, s.lockKey(), 0, 2*s.config.Scheduler.CheckInterval)
		if err != nil {
			return // another replica holds the lock this tick; skip
		}
		defer handle.Release(ctx)
	}

	s.refresh(ctx)
	s.fireDue(ctx, time.Now().In(s.location))
}

// refresh rebuilds the schedule table from every active Scheduled
// definition. Invalid cron expressions are logged and skipped rather than
// failing the whole refresh.
func (s *Scheduler) refresh(ctx context.Context) {
	defs, err := s.definitions.ListActive(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduler: failed to list active definitions", slog.Any("error", err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		if def.Trigger == nil || def.Trigger.Type != api.TriggerScheduled {
			continue
		}
		seen[def.Name] = struct{}{}

		sched, err := s.parser.Parse(def.Trigger.CronExpression)
		if err != nil {
			s.logger.ErrorContext(ctx, "scheduler: invalid cron expression, skipping",
				slog.String("workflow", def.Name), slog.String("cron", def.Trigger.CronExpression), slog.Any("error", err))
			continue
		}

		e, ok := s.entries[def.Name]
		if !ok || e.cron != def.Trigger.CronExpression || e.version != def.Version {
			e = &entry{name: def.Name, version: def.Version, cron: def.Trigger.CronExpression, sched: sched}
			e.nextRun = sched.Next(time.Now().In(s.location))
			s.entries[def.Name] = e
		}
	}

	for name := range s.entries {
		if _, ok := seen[name]; !ok {
			delete(s.entries, name)
		}
	}
}

// fireDue fires every entry whose next_run has elapsed, up to
// config.Scheduler.MaxStartsPerCheck (zero or negative means unbounded).
// Entries that don't fit in the cap keep their next_run unchanged and are
// picked up on a later scan; earliest-due entries are prioritized.
func (s *Scheduler) fireDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if !e.nextRun.IsZero() && !e.nextRun.After(now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].nextRun.Before(due[j].nextRun) })

	if max := s.config.Scheduler.MaxStartsPerCheck; max > 0 && len(due) > max {
		due = due[:max]
	}

	for _, e := range due {
		s.fire(ctx, e, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, e *entry, now time.Time) {
	inst, err := s.engine.Start(ctx, e.name, nil, "", "")
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduler: failed to start scheduled workflow",
			slog.String("workflow", e.name), slog.Any("error", err))
	} else {
		if _, pubErr := s.queue.Publish(ctx, api.Job{InstanceID: inst.ID, Type: api.JobStart, Priority: scheduledFirePriority}); pubErr != nil {
			s.logger.ErrorContext(ctx, "scheduler: failed to publish start job",
				slog.String("workflow", e.name), slog.String("instance_id", inst.ID), slog.Any("error", pubErr))
		}
		s.observer.OnScheduleFired(ctx, e.name, e.version, inst.ID)
	}

	s.mu.Lock()
	e.lastRun = now
	e.nextRun = e.sched.Next(now)
	s.mu.Unlock()
}

// TriggerNow starts name immediately and publishes its Start job at
// triggerNowPriority, without touching the entry's next_run.
func (s *Scheduler) TriggerNow(ctx context.Context, name string) (*api.WorkflowInstance, error) {
	inst, err := s.engine.Start(ctx, name, nil, "", "")
	if err != nil {
		return nil, err
	}
	if _, err := s.queue.Publish(ctx, api.Job{InstanceID: inst.ID, Type: api.JobStart, Priority: triggerNowPriority}); err != nil {
		return nil, err
	}
	return inst, nil
}
