// Package engine implements the workflow execution engine: the state
// machine advancing a single instance under a held per-instance lock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/flowforge/internal/expr"
	"github.com/flowforge/flowforge/internal/lock"
	"github.com/flowforge/flowforge/internal/persistence"
	"github.com/flowforge/flowforge/internal/registry"
	"github.com/flowforge/flowforge/pkg/api"
)

// engineImpl is a synchronous, in-process implementation of api.Engine.
type engineImpl struct {
	definitions persistence.DefinitionStore
	instances   persistence.InstanceStore
	executions  persistence.ExecutionStore
	locker      lock.Locker
	registry    *registry.Registry
	observer    api.Observer
	config      api.Config
	services    api.ServiceLocator
}

// Deps bundles the dependencies an engineImpl needs: the three-store
// persistence port, the lock manager, and the activity registry.
type Deps struct {
	Definitions persistence.DefinitionStore
	Instances   persistence.InstanceStore
	Executions  persistence.ExecutionStore
	Locker      lock.Locker
	Registry    *registry.Registry
	Observer    api.Observer
	Config      api.Config
	Services    api.ServiceLocator
}

// New constructs an api.Engine from Deps, filling in defaults for any
// unset optional field.
func New(d Deps) api.Engine {
	if d.Observer == nil {
		d.Observer = api.NoopObserver{}
	}
	if d.Registry == nil {
		d.Registry = registry.Builtins(nil)
	}
	if d.Services == nil {
		d.Services = api.NewServiceLocator(nil)
	}
	d.Config = d.Config.WithDefaults()
	return &engineImpl{
		definitions: d.Definitions,
		instances:   d.Instances,
		executions:  d.Executions,
		locker:      d.Locker,
		registry:    d.Registry,
		observer:    d.Observer,
		config:      d.Config,
		services:    d.Services,
	}
}

const lockKeyPrefix = "lock:instance:"

// lockKey returns the fully-prefixed lock key for an instance, combining the
// engine's own namespace with the process-wide Config.Prefix so that worker
// heartbeats, the scheduler's singleton lock, and instance locks all share
// one keyspace without colliding.
func (e *engineImpl) lockKey(instanceID string) string {
	return e.config.Prefix + lockKeyPrefix + instanceID
}

func (e *engineImpl) Start(ctx context.Context, name string, input map[string]any, correlationID, parentInstanceID string) (*api.WorkflowInstance, error) {
	def, err := e.definitions.GetActive(ctx, name)
	if err != nil {
		if errors.Is(err, persistence.ErrAmbiguousVersion) || errors.Is(err, persistence.ErrDefinitionNotFound) {
			return nil, api.NewEngineError(api.CodeWorkflowNotFound, "workflow %q not found", name)
		}
		return nil, err
	}
	return e.startVersion(ctx, def, input, correlationID, parentInstanceID)
}

func (e *engineImpl) StartVersion(ctx context.Context, name string, version int, input map[string]any, correlationID, parentInstanceID string) (*api.WorkflowInstance, error) {
	def, err := e.definitions.Get(ctx, name, version)
	if err != nil {
		if errors.Is(err, persistence.ErrDefinitionNotFound) {
			return nil, api.NewEngineError(api.CodeWorkflowNotFound, "workflow %q version %d not found", name, version)
		}
		return nil, err
	}
	return e.startVersion(ctx, def, input, correlationID, parentInstanceID)
}

func (e *engineImpl) startVersion(ctx context.Context, def api.WorkflowDefinition, input map[string]any, correlationID, parentInstanceID string) (*api.WorkflowInstance, error) {
	if !def.IsActive {
		return nil, api.NewEngineError(api.CodeWorkflowInactive, "workflow %q version %d is not active", def.Name, def.Version)
	}
	if err := api.ValidateInput(def.InputSchema, input); err != nil {
		return nil, err
	}

	now := time.Now()
	inst := &api.WorkflowInstance{
		ID:                uuid.NewString(),
		WorkflowName:      def.Name,
		WorkflowVersion:   def.Version,
		Status:            api.StatusPending,
		Input:             input,
		State:             map[string]any{},
		CurrentActivityID: def.StartActivityID,
		ParentInstanceID:  parentInstanceID,
		CorrelationID:     correlationID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := e.instances.Save(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (e *engineImpl) GetInstance(ctx context.Context, instanceID string) (*api.WorkflowInstance, error) {
	inst, err := e.instances.Get(ctx, instanceID)
	if err != nil {
		if errors.Is(err, persistence.ErrInstanceNotFound) {
			return nil, api.NewEngineError(api.CodeInstanceNotFound, "instance %q not found", instanceID)
		}
		return nil, err
	}
	return inst, nil
}

func (e *engineImpl) Execute(ctx context.Context, instanceID string) (*api.WorkflowInstance, error) {
	handle, err := e.locker.Acquire(ctx, e.lockKey(instanceID), e.config.Lock.AcquireTimeout, e.config.Lock.LeaseDuration)
	if err != nil {
		return nil, api.NewEngineError(api.CodeLockFailed, "could not acquire lock for instance %q: %v", instanceID, err)
	}
	defer handle.Release(ctx)

	inst, err := e.instances.Get(ctx, instanceID)
	if err != nil {
		if errors.Is(err, persistence.ErrInstanceNotFound) {
			return nil, api.NewEngineError(api.CodeInstanceNotFound, "instance %q not found", instanceID)
		}
		return nil, err
	}
	if inst.Status.IsTerminal() {
		return inst, nil
	}

	def, err := e.definitions.Get(ctx, inst.WorkflowName, inst.WorkflowVersion)
	if err != nil {
		return nil, api.NewEngineError(api.CodeDefinitionNotFound, "definition %q v%d not found", inst.WorkflowName, inst.WorkflowVersion)
	}

	if inst.Status == api.StatusPending {
		inst.Status = api.StatusRunning
		started := time.Now()
		inst.StartedAt = &started
		e.observer.OnInstanceStarted(ctx, inst)
	}

	inst, err = e.advance(ctx, def, inst)
	if uerr := e.instances.Update(ctx, inst); uerr != nil && err == nil {
		err = uerr
	}
	return inst, err
}

func (e *engineImpl) advance(ctx context.Context, def api.WorkflowDefinition, inst *api.WorkflowInstance) (*api.WorkflowInstance, error) {
	for inst.Status == api.StatusRunning && inst.CurrentActivityID != "" {
		select {
		case <-ctx.Done():
			return e.cancelInstance(inst), ctx.Err()
		default:
		}

		activity, ok := def.ActivityByID(inst.CurrentActivityID)
		if !ok {
			return e.failInstance(inst, &api.InstanceError{
				Code: string(api.CodeActivityNotFound), Message: fmt.Sprintf("activity %q not found", inst.CurrentActivityID),
				ActivityID: inst.CurrentActivityID, OccurredAt: time.Now(),
			}), nil
		}

		if activity.Condition != "" && !expr.EvaluatePredicate(inst, activity.Condition) {
			next := chooseTransition(def, activity.ID, inst)
			if next == "" {
				return e.completeInstance(def, inst), nil
			}
			inst.CurrentActivityID = next
			continue
		}

		handler, ok := e.registry.Lookup(activity.Type)
		if !ok {
			return e.failInstance(inst, &api.InstanceError{
				Code: string(api.CodeUnknownActivityType), Message: fmt.Sprintf("unknown activity type %q", activity.Type),
				ActivityID: activity.ID, OccurredAt: time.Now(),
			}), nil
		}

		resolvedInput := resolveInput(inst, activity)

		timeout := activity.Timeout
		if timeout == 0 {
			timeout = def.Timeout
		}
		if timeout == 0 {
			timeout = e.config.Engine.DefaultActivityTimeout
		}
		activityCtx, cancel := context.WithTimeout(ctx, timeout)

		exec := api.ActivityExecution{
			ID:                 uuid.NewString(),
			WorkflowInstanceID: inst.ID,
			ActivityID:         activity.ID,
			ActivityType:       activity.Type,
			Status:             api.ActivityRunning,
			Input:              resolvedInput,
			Attempt:            inst.RetryCount + 1,
			StartedAt:          time.Now(),
		}
		e.observer.OnActivityStart(ctx, inst, activity.ID, exec.Attempt)

		result := handler(activityCtx, &api.ActivityContext{
			Instance: inst,
			Activity: activity,
			Input:    resolvedInput,
			Attempt:  exec.Attempt,
			Services: e.services,
		})
		cancel()

		completed := time.Now()
		exec.CompletedAt = &completed
		exec.DurationMS = completed.Sub(exec.StartedAt).Milliseconds()
		duration := completed.Sub(exec.StartedAt)

		if ctx.Err() == nil && errors.Is(activityCtx.Err(), context.DeadlineExceeded) && result.Kind != api.ResultFail {
			result = api.Fail(string(api.CodeTimeout), activityCtx.Err().Error(), true)
		}

		switch result.Kind {
		case api.ResultFail:
			exec.Status = api.ActivityFailed
			exec.Error = &api.InstanceError{Code: result.Error.Code, Message: result.Error.Message, ActivityID: activity.ID, OccurredAt: completed}
			_ = e.executions.Append(ctx, exec)
			e.observer.OnActivityCompleted(ctx, inst, activity.ID, exec.Attempt, result.Error, duration)

			if outer := ctx.Err(); outer != nil {
				return e.cancelInstance(inst), outer
			}

			if retried, waitErr := e.retryOrFail(ctx, def, activity, inst, result.Error); waitErr != nil {
				return e.cancelInstance(inst), waitErr
			} else if retried {
				continue
			}
			return inst, nil

		case api.ResultSuspend:
			exec.Status = api.ActivitySuspended
			_ = e.executions.Append(ctx, exec)
			e.observer.OnActivityCompleted(ctx, inst, activity.ID, exec.Attempt, nil, duration)

			inst.Status = api.StatusSuspended
			if inst.State == nil {
				inst.State = map[string]any{}
			}
			inst.State[api.SuspendKey] = result.SuspendKey
			inst.UpdatedAt = time.Now()
			e.observer.OnInstanceSuspended(ctx, inst)
			return inst, nil

		default: // api.ResultOk
			exec.Status = api.ActivityCompleted
			exec.Output = result.Output
			_ = e.executions.Append(ctx, exec)
			e.observer.OnActivityCompleted(ctx, inst, activity.ID, exec.Attempt, nil, duration)

			inst.RetryCount = 0
			applyOutputMappings(inst, activity, result.Output)

			next := result.NextActivityID
			if next == "" {
				next = chooseTransition(def, activity.ID, inst)
			}
			if next == "" {
				return e.completeInstance(def, inst), nil
			}
			inst.CurrentActivityID = next
			inst.UpdatedAt = time.Now()
		}
	}
	return inst, nil
}

// retryOrFail decides whether a failed activity attempt should be retried.
// It returns (true, nil) if the
// caller should re-enter the loop at the same activity, (false, nil) if the
// instance was failed terminally, or (false, err) if the retry sleep was
// cancelled.
func (e *engineImpl) retryOrFail(ctx context.Context, def api.WorkflowDefinition, activity api.ActivityDefinition, inst *api.WorkflowInstance, actErr *api.ActivityError) (bool, error) {
	policy := activity.RetryPolicy
	if policy == nil {
		policy = def.DefaultRetryPolicy
	}
	if policy == nil {
		p := e.config.Engine.DefaultRetryPolicy
		policy = &p
	}

	retriable := actErr.Retriable
	if containsCode(policy.DoNotRetryOn, actErr.Code) {
		retriable = false
	} else if len(policy.RetryOn) > 0 && !containsCode(policy.RetryOn, actErr.Code) {
		retriable = false
	}

	if retriable && inst.RetryCount+1 < policy.MaxAttempts {
		inst.RetryCount++
		delay := policy.InitialDelay
		if inst.RetryCount > 1 {
			d := float64(policy.InitialDelay) * pow(policy.BackoffMultiplier, float64(inst.RetryCount-1))
			delay = time.Duration(d)
		}
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
		return true, nil
	}

	inst.Status = api.StatusFailed
	inst.Error = &api.InstanceError{Code: actErr.Code, Message: actErr.Message, ActivityID: activity.ID, OccurredAt: time.Now()}
	now := time.Now()
	inst.CompletedAt = &now
	inst.CurrentActivityID = ""
	inst.UpdatedAt = now
	e.observer.OnInstanceFailed(ctx, inst, actErr)
	return false, nil
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func (e *engineImpl) completeInstance(def api.WorkflowDefinition, inst *api.WorkflowInstance) *api.WorkflowInstance {
	inst.Status = api.StatusCompleted
	inst.CurrentActivityID = ""
	inst.Output = projectOutput(def, inst)
	now := time.Now()
	inst.CompletedAt = &now
	inst.UpdatedAt = now
	e.observer.OnInstanceCompleted(context.Background(), inst)
	return inst
}

func (e *engineImpl) failInstance(inst *api.WorkflowInstance, instErr *api.InstanceError) *api.WorkflowInstance {
	inst.Status = api.StatusFailed
	inst.Error = instErr
	inst.CurrentActivityID = ""
	now := time.Now()
	inst.CompletedAt = &now
	inst.UpdatedAt = now
	e.observer.OnInstanceFailed(context.Background(), inst, errors.New(instErr.Message))
	return inst
}

func (e *engineImpl) cancelInstance(inst *api.WorkflowInstance) *api.WorkflowInstance {
	inst.Status = api.StatusCancelled
	inst.CurrentActivityID = ""
	now := time.Now()
	inst.CompletedAt = &now
	inst.UpdatedAt = now
	e.observer.OnInstanceCancelled(context.Background(), inst)
	return inst
}

// projectOutput computes an instance's output from its final state.
func projectOutput(def api.WorkflowDefinition, inst *api.WorkflowInstance) map[string]any {
	if def.OutputSchema == nil {
		return inst.State
	}
	out := make(map[string]any, len(def.OutputSchema.Properties))
	for k := range def.OutputSchema.Properties {
		if v, ok := inst.State[k]; ok {
			out[k] = v
		}
	}
	return out
}

// resolveInput builds an activity's resolved input by evaluating every
// input_mappings expression against the instance; properties flow through
// unchanged.
func resolveInput(inst *api.WorkflowInstance, activity api.ActivityDefinition) map[string]any {
	resolved := make(map[string]any, len(activity.InputMappings))
	for key, path := range activity.InputMappings {
		resolved[key] = expr.ResolvePath(inst, path)
	}
	return resolved
}

// applyOutputMappings writes state[state_key] = output[output_name] for
// each mapping, skipping absent output keys.
func applyOutputMappings(inst *api.WorkflowInstance, activity api.ActivityDefinition, output map[string]any) {
	if len(activity.OutputMappings) == 0 {
		return
	}
	if inst.State == nil {
		inst.State = map[string]any{}
	}
	for stateKey, outputName := range activity.OutputMappings {
		if v, ok := output[outputName]; ok {
			inst.State[stateKey] = v
		}
	}
}

// chooseTransition picks the next activity id from the transitions
// originating at from, in ascending priority order.
func chooseTransition(def api.WorkflowDefinition, from string, inst *api.WorkflowInstance) string {
	var candidates []api.TransitionDefinition
	for _, t := range def.Transitions {
		if t.From == from {
			candidates = append(candidates, t)
		}
	}
	sortTransitionsByPriority(candidates)

	var defaultTo string
	for _, t := range candidates {
		if t.IsDefault {
			if defaultTo == "" {
				defaultTo = t.To
			}
			continue
		}
		if t.Condition == "" {
			return t.To
		}
		if expr.EvaluatePredicate(inst, t.Condition) {
			return t.To
		}
	}
	return defaultTo
}

func sortTransitionsByPriority(ts []api.TransitionDefinition) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j].Priority < ts[j-1].Priority; j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}

func (e *engineImpl) ResumeWithSignal(ctx context.Context, instanceID, signalName string, data map[string]any) (*api.WorkflowInstance, error) {
	handle, err := e.locker.Acquire(ctx, e.lockKey(instanceID), e.config.Lock.AcquireTimeout, e.config.Lock.LeaseDuration)
	if err != nil {
		return nil, api.NewEngineError(api.CodeLockFailed, "could not acquire lock for instance %q: %v", instanceID, err)
	}
	defer handle.Release(ctx)

	inst, err := e.instances.Get(ctx, instanceID)
	if err != nil {
		if errors.Is(err, persistence.ErrInstanceNotFound) {
			return nil, api.NewEngineError(api.CodeInstanceNotFound, "instance %q not found", instanceID)
		}
		return nil, err
	}
	if inst.Status != api.StatusSuspended {
		return nil, api.NewEngineError(api.CodeNotSuspended, "instance %q is not suspended", instanceID)
	}
	suspendKey, _ := inst.State[api.SuspendKey].(string)
	if suspendKey != signalName {
		return nil, api.NewEngineError(api.CodeSignalMismatch, "instance %q is waiting on %q, not %q", instanceID, suspendKey, signalName)
	}

	def, err := e.definitions.Get(ctx, inst.WorkflowName, inst.WorkflowVersion)
	if err != nil {
		return nil, api.NewEngineError(api.CodeDefinitionNotFound, "definition %q v%d not found", inst.WorkflowName, inst.WorkflowVersion)
	}

	for k, v := range data {
		inst.State[api.SignalStatePrefix+k] = v
	}
	delete(inst.State, api.SuspendKey)

	next := chooseTransition(def, inst.CurrentActivityID, inst)
	inst.Status = api.StatusRunning
	if next == "" {
		inst = e.completeInstance(def, inst)
	} else {
		inst.CurrentActivityID = next
		inst.UpdatedAt = time.Now()
	}
	if err := e.instances.Update(ctx, inst); err != nil {
		return inst, err
	}

	if inst.Status != api.StatusRunning {
		return inst, nil
	}
	inst, err = e.advance(ctx, def, inst)
	if uerr := e.instances.Update(ctx, inst); uerr != nil && err == nil {
		err = uerr
	}
	return inst, err
}

func (e *engineImpl) Cancel(ctx context.Context, instanceID string) (*api.WorkflowInstance, error) {
	handle, err := e.locker.Acquire(ctx, e.lockKey(instanceID), e.config.Lock.AcquireTimeout, e.config.Lock.LeaseDuration)
	if err != nil {
		return nil, api.NewEngineError(api.CodeLockFailed, "could not acquire lock for instance %q: %v", instanceID, err)
	}
	defer handle.Release(ctx)

	inst, err := e.instances.Get(ctx, instanceID)
	if err != nil {
		if errors.Is(err, persistence.ErrInstanceNotFound) {
			return nil, api.NewEngineError(api.CodeInstanceNotFound, "instance %q not found", instanceID)
		}
		return nil, err
	}
	if inst.Status.IsTerminal() {
		return inst, nil
	}
	inst = e.cancelInstance(inst)
	if err := e.instances.Update(ctx, inst); err != nil {
		return inst, err
	}
	return inst, nil
}

func (e *engineImpl) RecoverStuckInstances(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := e.instances.ListStale(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, inst := range stale {
		inst.Status = api.StatusFailed
		inst.Error = &api.InstanceError{Code: string(api.CodeUnexpectedError), Message: "instance recovered as stuck on startup", OccurredAt: time.Now()}
		now := time.Now()
		inst.CompletedAt = &now
		inst.UpdatedAt = now
		inst.CurrentActivityID = ""
		if err := e.instances.Update(ctx, inst); err != nil {
			return count, err
		}
		e.observer.OnInstanceFailed(ctx, inst, errors.New(inst.Error.Message))
		count++
	}
	return count, nil
}
