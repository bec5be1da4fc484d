package api

import "fmt"

// ErrorCode is one of the stable, wire-visible codes the engine returns.
// Activity handlers may also return arbitrary codes of their own, forwarded
// verbatim.
type ErrorCode string

const (
	CodeWorkflowNotFound    ErrorCode = "WORKFLOW_NOT_FOUND"
	CodeWorkflowInactive    ErrorCode = "WORKFLOW_INACTIVE"
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodeInstanceNotFound    ErrorCode = "INSTANCE_NOT_FOUND"
	CodeDefinitionNotFound  ErrorCode = "DEFINITION_NOT_FOUND"
	CodeLockFailed          ErrorCode = "LOCK_FAILED"
	CodeNotSuspended        ErrorCode = "NOT_SUSPENDED"
	CodeSignalMismatch      ErrorCode = "SIGNAL_MISMATCH"
	CodeActivityNotFound    ErrorCode = "ACTIVITY_NOT_FOUND"
	CodeUnknownActivityType ErrorCode = "UNKNOWN_ACTIVITY_TYPE"
	CodeTimeout             ErrorCode = "TIMEOUT"
	CodeUnexpectedError     ErrorCode = "UNEXPECTED_ERROR"
)

// EngineError is returned by every engine entry point instead of an ad-hoc
// error; it always carries a stable Code alongside a human-readable Message
// so callers (including the Control Plane) can branch on outcome without
// string matching.
type EngineError struct {
	Code    ErrorCode
	Message string
}

func (e *EngineError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewEngineError builds an *EngineError with a formatted message.
func NewEngineError(code ErrorCode, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsEngineError reports whether err is an *EngineError, returning it. It is
// a plain type assertion: an *EngineError wrapped inside another error is
// not unwrapped, and the result is then (nil, false).
func AsEngineError(err error) (*EngineError, bool) {
	ee, ok := err.(*EngineError)
	return ee, ok
}
