package flowforge

import (
	"context"
	"fmt"

	"github.com/flowforge/flowforge/pkg/api"
)

// WorkflowBuilder provides a fluent API for defining workflows:
//
//	flow := flowforge.New("OnboardUser").
//	    Activity("createAccount", "createAccount").
//	    Activity("sendWelcomeEmail", "sendWelcomeEmail").
//	    Transition("createAccount", "sendWelcomeEmail", "", 0).
//	    StartAt("createAccount")
//
//	def, err := flowforge.RegisterWorkflow(ctx, stores.Definitions, flow)
type WorkflowBuilder struct {
	def api.WorkflowDefinition
}

// New creates a new workflow builder with the given name. Activities
// execute in the order transitions connect them; StartAt must be called
// (or the first Activity added is used as the start) before the definition
// is registered.
func New(name string) *WorkflowBuilder {
	return &WorkflowBuilder{
		def: api.WorkflowDefinition{
			Name:       name,
			Activities: make([]api.ActivityDefinition, 0),
		},
	}
}

// Name returns the workflow name.
func (b *WorkflowBuilder) Name() string {
	return b.def.Name
}

// Definition returns the underlying WorkflowDefinition built so far.
func (b *WorkflowBuilder) Definition() WorkflowDefinition {
	return b.def
}

// Activity appends an activity of the given registered type. The first
// activity added becomes the start activity unless StartAt overrides it.
func (b *WorkflowBuilder) Activity(id, activityType string) *WorkflowBuilder {
	return b.ActivityWithProperties(id, activityType, nil)
}

// ActivityWithProperties is like Activity but also sets the activity's
// Properties map, read by its Handler at execution time.
func (b *WorkflowBuilder) ActivityWithProperties(id, activityType string, properties map[string]any) *WorkflowBuilder {
	if id == "" {
		panic("flowforge: activity id must not be empty")
	}
	if activityType == "" {
		panic(fmt.Sprintf("flowforge: activity %q has empty type", id))
	}

	b.def.Activities = append(b.def.Activities, api.ActivityDefinition{
		ID:         id,
		Type:       activityType,
		Properties: properties,
	})
	if b.def.StartActivityID == "" {
		b.def.StartActivityID = id
	}
	return b
}

// ActivityWithRetry is like Activity but attaches a per-activity retry
// policy, overriding the workflow's DefaultRetryPolicy for just this step.
func (b *WorkflowBuilder) ActivityWithRetry(id, activityType string, retry RetryPolicy) *WorkflowBuilder {
	b.Activity(id, activityType)
	r := retry
	b.def.Activities[len(b.def.Activities)-1].RetryPolicy = &r
	return b
}

// WithInputMapping sets the input_mappings of the most recently added
// activity: for each entry, resolved[key] = value at the dotted path
// (e.g. "input.amount" or "state.total") read from the instance.
func (b *WorkflowBuilder) WithInputMapping(mappings map[string]string) *WorkflowBuilder {
	b.lastActivity().InputMappings = mappings
	return b
}

// WithOutputMapping sets the output_mappings of the most recently added
// activity: for each entry, state[stateKey] = output[outputName] once the
// activity succeeds.
func (b *WorkflowBuilder) WithOutputMapping(mappings map[string]string) *WorkflowBuilder {
	b.lastActivity().OutputMappings = mappings
	return b
}

func (b *WorkflowBuilder) lastActivity() *api.ActivityDefinition {
	if len(b.def.Activities) == 0 {
		panic("flowforge: no activity to configure; call Activity first")
	}
	return &b.def.Activities[len(b.def.Activities)-1]
}

// StartAt overrides the start activity (by default the first Activity
// added).
func (b *WorkflowBuilder) StartAt(id string) *WorkflowBuilder {
	b.def.StartActivityID = id
	return b
}

// Transition adds a directed edge between two declared activities.
// condition, if non-empty, is evaluated against the instance state; an
// empty condition makes the transition unconditional. priority breaks ties
// among several transitions leaving the same activity, lowest first.
func (b *WorkflowBuilder) Transition(from, to, condition string, priority int) *WorkflowBuilder {
	b.def.Transitions = append(b.def.Transitions, api.TransitionDefinition{
		From:      from,
		To:        to,
		Condition: condition,
		Priority:  priority,
	})
	return b
}

// DefaultTransition adds an unconditional fallback edge, chosen only if no
// conditional transition out of from matches.
func (b *WorkflowBuilder) DefaultTransition(from, to string) *WorkflowBuilder {
	b.def.Transitions = append(b.def.Transitions, api.TransitionDefinition{
		From:      from,
		To:        to,
		IsDefault: true,
	})
	return b
}

// WithTrigger sets how instances of this workflow are started.
func (b *WorkflowBuilder) WithTrigger(trigger Trigger) *WorkflowBuilder {
	t := trigger
	b.def.Trigger = &t
	return b
}

// WithDefaultRetryPolicy sets the fallback retry policy for activities that
// don't declare their own.
func (b *WorkflowBuilder) WithDefaultRetryPolicy(retry RetryPolicy) *WorkflowBuilder {
	r := retry
	b.def.DefaultRetryPolicy = &r
	return b
}

// WithTags attaches free-form labels to the definition.
func (b *WorkflowBuilder) WithTags(tags ...string) *WorkflowBuilder {
	b.def.Tags = tags
	return b
}

// Build validates the definition's structural invariants and returns it.
func (b *WorkflowBuilder) Build() (WorkflowDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return WorkflowDefinition{}, err
	}
	return b.def, nil
}

// MustBuild is like Build but panics on error. Useful during package
// initialization.
func (b *WorkflowBuilder) MustBuild() WorkflowDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// RegisterWorkflow validates b's definition and saves it as a new version
// via store, returning the stored (versioned, activated) definition.
func RegisterWorkflow(ctx context.Context, store DefinitionStore, b *WorkflowBuilder) (WorkflowDefinition, error) {
	def, err := b.Build()
	if err != nil {
		return WorkflowDefinition{}, err
	}
	return store.Save(ctx, def)
}
