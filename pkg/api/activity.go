package api

import "context"

// ServiceLocator is the narrow, explicit set of dependencies passed into an
// activity handler's context. Handlers declare what they need at
// registration time rather than resolving it from an ambient/global
// registry.
type ServiceLocator interface {
	// Lookup returns a named dependency (an HTTP client, a DB handle, a
	// secrets provider, ...) registered by the host application, or
	// (nil, false) if nothing is registered under that name.
	Lookup(name string) (any, bool)
}

// mapServiceLocator is the default ServiceLocator implementation: a
// read-only map populated once at registry construction time.
type mapServiceLocator map[string]any

func (m mapServiceLocator) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// NewServiceLocator builds a ServiceLocator from a fixed set of named
// dependencies.
func NewServiceLocator(services map[string]any) ServiceLocator {
	return mapServiceLocator(services)
}

// ActivityContext is passed to a Handler's Execute call. It exposes a
// read-only snapshot of the current instance, the activity definition being
// run, the already-resolved input, the 1-based attempt number, and a
// service locator for handler-internal dependencies.
type ActivityContext struct {
	Instance   *WorkflowInstance
	Activity   ActivityDefinition
	Input      map[string]any
	Attempt    int
	Services   ServiceLocator
	Extended   ExpressionEvaluator // optional scripted evaluator, nil if not configured
}

// ExpressionEvaluator is the narrow surface internal/expr/script exposes to
// activity handlers (kept as an interface here to avoid pkg/api depending on
// internal/expr).
type ExpressionEvaluator interface {
	Eval(ctx context.Context, expr string, scope map[string]any) (any, error)
}

// ResultKind discriminates the ActivityResult sum type.
type ResultKind int

const (
	ResultOk ResultKind = iota
	ResultSuspend
	ResultFail
)

// ActivityResult is the tagged variant a Handler returns: exactly one of Ok,
// Suspend, or Fail is populated, selected by Kind.
type ActivityResult struct {
	Kind ResultKind

	// Ok fields.
	Output         map[string]any
	NextActivityID string // optional override of the transition chooser

	// Suspend fields.
	SuspendKey string

	// Fail fields.
	Error *ActivityError
}

// ActivityError is the Fail variant's payload.
type ActivityError struct {
	Code      string
	Message   string
	Retriable bool
}

func (e *ActivityError) Error() string { return e.Code + ": " + e.Message }

// Ok builds an ActivityResult for a successful attempt.
func Ok(output map[string]any) ActivityResult {
	return ActivityResult{Kind: ResultOk, Output: output}
}

// OkNext builds a successful ActivityResult that overrides the transition
// chooser with an explicit next activity id.
func OkNext(output map[string]any, nextActivityID string) ActivityResult {
	return ActivityResult{Kind: ResultOk, Output: output, NextActivityID: nextActivityID}
}

// Suspend builds an ActivityResult that parks the instance until a signal
// named suspendKey is delivered.
func Suspend(suspendKey string) ActivityResult {
	return ActivityResult{Kind: ResultSuspend, SuspendKey: suspendKey}
}

// Fail builds a failed ActivityResult.
func Fail(code, message string, retriable bool) ActivityResult {
	return ActivityResult{Kind: ResultFail, Error: &ActivityError{Code: code, Message: message, Retriable: retriable}}
}

// Handler is the single operation every registered activity type exposes.
// Execute must not block past ctx's deadline; the engine derives ctx from
// the activity's effective timeout linked to the outer cancellation signal.
type Handler func(ctx context.Context, ac *ActivityContext) ActivityResult
