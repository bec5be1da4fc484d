// Package api contains the core types shared by every FlowForge component:
// workflow definitions, instances, activity executions, and the small set of
// enums that persist as ordinals across every backend.
package api

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a WorkflowInstance. It persists as its
// ordinal integer (Pending=0 ... TimedOut=7).
type Status int

const (
	StatusPending Status = iota
	StatusScheduled
	StatusRunning
	StatusSuspended
	StatusCompleted
	StatusFailed
	StatusCancelled
	StatusTimedOut
)

var statusNames = [...]string{
	"Pending", "Scheduled", "Running", "Suspended",
	"Completed", "Failed", "Cancelled", "TimedOut",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// IsTerminal reports whether s is one of the absorbing statuses.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	default:
		return false
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(s))
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = Status(n)
	return nil
}

// ActivityStatus is the lifecycle state of a single ActivityExecution
// attempt. It persists as its ordinal integer (Pending=0 ... Cancelled=6).
type ActivityStatus int

const (
	ActivityPending ActivityStatus = iota
	ActivityRunning
	ActivityCompleted
	ActivityFailed
	ActivitySkipped
	ActivitySuspended
	ActivityCancelled
)

var activityStatusNames = [...]string{
	"Pending", "Running", "Completed", "Failed", "Skipped", "Suspended", "Cancelled",
}

func (s ActivityStatus) String() string {
	if s < 0 || int(s) >= len(activityStatusNames) {
		return fmt.Sprintf("ActivityStatus(%d)", int(s))
	}
	return activityStatusNames[s]
}

func (s ActivityStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(s))
}

func (s *ActivityStatus) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = ActivityStatus(n)
	return nil
}

// TriggerType describes how a WorkflowDefinition's instances are started.
// It persists as its ordinal integer (Manual=0 ... Workflow=4).
type TriggerType int

const (
	TriggerManual TriggerType = iota
	TriggerScheduled
	TriggerWebhook
	TriggerEvent
	TriggerWorkflow
)

var triggerTypeNames = [...]string{"Manual", "Scheduled", "Webhook", "Event", "Workflow"}

func (t TriggerType) String() string {
	if t < 0 || int(t) >= len(triggerTypeNames) {
		return fmt.Sprintf("TriggerType(%d)", int(t))
	}
	return triggerTypeNames[t]
}

func (t TriggerType) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(t))
}

func (t *TriggerType) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = TriggerType(n)
	return nil
}

// Trigger describes when/how a definition's instances are started.
// Only TriggerScheduled requires CronExpression to be set.
type Trigger struct {
	Type           TriggerType `json:"type"`
	CronExpression string      `json:"cronExpression,omitempty"`
}

// RetryPolicy controls how a failed activity attempt is retried.
//
//	MaxAttempts: total attempts including the first (1 = no retries).
//	InitialDelay · BackoffMultiplier^(attempt-1), capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts       int           `json:"maxAttempts"`
	InitialDelay      time.Duration `json:"initialDelay"`
	MaxDelay          time.Duration `json:"maxDelay"`
	BackoffMultiplier float64       `json:"backoffMultiplier"`
	RetryOn           []string      `json:"retryOn,omitempty"`
	DoNotRetryOn      []string      `json:"doNotRetryOn,omitempty"`
}

// DefaultRetryPolicy is the fallback policy used when neither an activity
// nor its workflow definition declares one.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          5 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// JSONSchema is a minimal structural schema used for input/output
// validation (see pkg/api/validate.go): just enough to check required
// fields and primitive/array/object types.
type JSONSchema struct {
	Type       string                `json:"type,omitempty"`
	Required   []string              `json:"required,omitempty"`
	Properties map[string]JSONSchema `json:"properties,omitempty"`
}

// TransitionDefinition is a directed, optionally guarded edge between two
// activities in a WorkflowDefinition.
type TransitionDefinition struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Condition string `json:"condition,omitempty"`
	Priority  int    `json:"priority"`
	IsDefault bool   `json:"isDefault"`
}

// ActivityDefinition is a single named, typed step inside a
// WorkflowDefinition.
type ActivityDefinition struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	Properties     map[string]any    `json:"properties,omitempty"`
	InputMappings  map[string]string `json:"inputMappings,omitempty"`
	OutputMappings map[string]string `json:"outputMappings,omitempty"`
	Condition      string            `json:"condition,omitempty"`
	Timeout        time.Duration     `json:"timeout,omitempty"`
	RetryPolicy    *RetryPolicy      `json:"retryPolicy,omitempty"`
}

// WorkflowDefinition is an immutable, versioned blueprint for a workflow.
// Its primary key is (Name, Version).
type WorkflowDefinition struct {
	Name              string                 `json:"name"`
	Version           int                    `json:"version"`
	StartActivityID   string                 `json:"startActivityId"`
	Activities        []ActivityDefinition   `json:"activities"`
	Transitions       []TransitionDefinition `json:"transitions,omitempty"`
	InputSchema       *JSONSchema            `json:"inputSchema,omitempty"`
	OutputSchema      *JSONSchema            `json:"outputSchema,omitempty"`
	Trigger           *Trigger               `json:"trigger,omitempty"`
	DefaultRetryPolicy *RetryPolicy          `json:"defaultRetryPolicy,omitempty"`
	Timeout           time.Duration          `json:"timeout,omitempty"`
	Tags              []string               `json:"tags,omitempty"`
	IsActive          bool                   `json:"isActive"`
	CreatedAt         time.Time              `json:"createdAt"`
}

// ActivityByID returns the activity with the given id, if any.
func (d WorkflowDefinition) ActivityByID(id string) (ActivityDefinition, bool) {
	for _, a := range d.Activities {
		if a.ID == id {
			return a, true
		}
	}
	return ActivityDefinition{}, false
}

// ActivityIDs returns the set of activity ids declared by the definition.
func (d WorkflowDefinition) ActivityIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(d.Activities))
	for _, a := range d.Activities {
		ids[a.ID] = struct{}{}
	}
	return ids
}

// Validate checks the structural invariants a WorkflowDefinition must
// satisfy: start_activity_id and every transition endpoint must reference a
// declared activity, activity ids must be unique, and a Scheduled trigger
// must carry a cron expression.
func (d WorkflowDefinition) Validate() error {
	ids := make(map[string]struct{}, len(d.Activities))
	for _, a := range d.Activities {
		if a.ID == "" {
			return fmt.Errorf("activity with empty id")
		}
		if _, dup := ids[a.ID]; dup {
			return fmt.Errorf("duplicate activity id %q", a.ID)
		}
		ids[a.ID] = struct{}{}
	}
	if d.StartActivityID == "" {
		return fmt.Errorf("start_activity_id is required")
	}
	if _, ok := ids[d.StartActivityID]; !ok {
		return fmt.Errorf("start_activity_id %q is not a declared activity", d.StartActivityID)
	}
	for _, t := range d.Transitions {
		if _, ok := ids[t.From]; !ok {
			return fmt.Errorf("transition from %q is not a declared activity", t.From)
		}
		if _, ok := ids[t.To]; !ok {
			return fmt.Errorf("transition to %q is not a declared activity", t.To)
		}
	}
	if d.Trigger != nil && d.Trigger.Type == TriggerScheduled && d.Trigger.CronExpression == "" {
		return fmt.Errorf("scheduled trigger requires a cron_expression")
	}
	return nil
}

// InstanceError carries the failure reason copied onto a Failed instance.
type InstanceError struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	ActivityID string    `json:"activityId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// WorkflowInstance is a mutable execution record for one run of a
// WorkflowDefinition.
type WorkflowInstance struct {
	ID                string         `json:"id"`
	WorkflowName      string         `json:"workflowName"`
	WorkflowVersion   int            `json:"workflowVersion"`
	Status            Status         `json:"status"`
	Input             map[string]any `json:"input,omitempty"`
	Output            map[string]any `json:"output,omitempty"`
	State             map[string]any `json:"state,omitempty"`
	CurrentActivityID string         `json:"currentActivityId,omitempty"`
	Error             *InstanceError `json:"error,omitempty"`
	RetryCount        int            `json:"retryCount"`
	ParentInstanceID  string         `json:"parentInstanceId,omitempty"`
	CorrelationID     string         `json:"correlationId,omitempty"`
	WorkerID          string         `json:"workerId,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	StartedAt         *time.Time     `json:"startedAt,omitempty"`
	CompletedAt       *time.Time     `json:"completedAt,omitempty"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// SuspendKey is the reserved state key the engine writes while suspended.
const SuspendKey = "_suspend_key"

// SignalStatePrefix prefixes state keys written from a delivered signal's
// payload fields (state["signal_"+k] = v).
const SignalStatePrefix = "signal_"

// ActivityExecution is an append-only history row for one attempt of one
// activity within one instance.
type ActivityExecution struct {
	ID                 string         `json:"id"`
	WorkflowInstanceID string         `json:"workflowInstanceId"`
	ActivityID         string         `json:"activityId"`
	ActivityType       string         `json:"activityType"`
	Status             ActivityStatus `json:"status"`
	Input              map[string]any `json:"input,omitempty"`
	Output             map[string]any `json:"output,omitempty"`
	Error              *InstanceError `json:"error,omitempty"`
	Attempt            int            `json:"attempt"`
	StartedAt          time.Time      `json:"startedAt"`
	CompletedAt        *time.Time     `json:"completedAt,omitempty"`
	DurationMS         int64          `json:"durationMs,omitempty"`
}
