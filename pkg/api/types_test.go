package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatus_JSONRoundTripsAsOrdinal(t *testing.T) {
	data, err := json.Marshal(StatusCompleted)
	require.NoError(t, err)
	require.Equal(t, "4", string(data))

	var s Status
	require.NoError(t, json.Unmarshal(data, &s))
	require.Equal(t, StatusCompleted, s)
}

func TestStatus_IsTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut}
	for _, s := range terminal {
		require.True(t, s.IsTerminal(), s.String())
	}

	nonTerminal := []Status{StatusPending, StatusScheduled, StatusRunning, StatusSuspended}
	for _, s := range nonTerminal {
		require.False(t, s.IsTerminal(), s.String())
	}
}

func TestActivityStatus_JSONRoundTripsAsOrdinal(t *testing.T) {
	data, err := json.Marshal(ActivitySuspended)
	require.NoError(t, err)
	require.Equal(t, "5", string(data))

	var s ActivityStatus
	require.NoError(t, json.Unmarshal(data, &s))
	require.Equal(t, ActivitySuspended, s)
}

func TestTriggerType_JSONRoundTripsAsOrdinal(t *testing.T) {
	data, err := json.Marshal(TriggerWorkflow)
	require.NoError(t, err)
	require.Equal(t, "4", string(data))

	var tt TriggerType
	require.NoError(t, json.Unmarshal(data, &tt))
	require.Equal(t, TriggerWorkflow, tt)
}

func validDefinition() WorkflowDefinition {
	return WorkflowDefinition{
		Name:            "order-fulfillment",
		Version:         1,
		StartActivityID: "reserve",
		Activities: []ActivityDefinition{
			{ID: "reserve", Type: "log"},
			{ID: "ship", Type: "log"},
		},
		Transitions: []TransitionDefinition{
			{From: "reserve", To: "ship", IsDefault: true},
		},
	}
}

func TestWorkflowDefinition_ValidateAcceptsWellFormed(t *testing.T) {
	require.NoError(t, validDefinition().Validate())
}

func TestWorkflowDefinition_ValidateRejectsDuplicateActivityID(t *testing.T) {
	def := validDefinition()
	def.Activities = append(def.Activities, ActivityDefinition{ID: "reserve", Type: "log"})
	require.Error(t, def.Validate())
}

func TestWorkflowDefinition_ValidateRejectsUnknownStartActivity(t *testing.T) {
	def := validDefinition()
	def.StartActivityID = "does-not-exist"
	require.Error(t, def.Validate())
}

func TestWorkflowDefinition_ValidateRejectsDanglingTransition(t *testing.T) {
	def := validDefinition()
	def.Transitions = append(def.Transitions, TransitionDefinition{From: "ship", To: "ghost"})
	require.Error(t, def.Validate())
}

func TestWorkflowDefinition_ValidateRejectsScheduledTriggerWithoutCron(t *testing.T) {
	def := validDefinition()
	def.Trigger = &Trigger{Type: TriggerScheduled}
	require.Error(t, def.Validate())

	def.Trigger.CronExpression = "0 */5 * * * *"
	require.NoError(t, def.Validate())
}

func TestWorkflowDefinition_ActivityByID(t *testing.T) {
	def := validDefinition()

	a, ok := def.ActivityByID("ship")
	require.True(t, ok)
	require.Equal(t, "log", a.Type)

	_, ok = def.ActivityByID("missing")
	require.False(t, ok)
}
