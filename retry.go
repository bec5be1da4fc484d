package flowforge

import "time"

// RetryBuilder provides a fluent way to construct RetryPolicy values for
// use with WorkflowBuilder.ActivityWithRetry or
// WorkflowBuilder.WithDefaultRetryPolicy.
type RetryBuilder struct {
	policy RetryPolicy
}

// Retry creates a RetryBuilder with the given maxAttempts.
//
// maxAttempts <= 0 is treated as 1 (no retries).
func Retry(maxAttempts int) RetryBuilder {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return RetryBuilder{
		policy: RetryPolicy{
			MaxAttempts:       maxAttempts,
			BackoffMultiplier: 2.0,
		},
	}
}

// WithExponentialBackoff configures exponential backoff:
//
//   - initial is the delay before the first retry.
//   - multiplier > 1 grows the delay each attempt (default 2.0 if <= 0).
//   - max caps the delay; if <= 0, there is no cap.
//
// Example:
//
//	Retry(3).WithExponentialBackoff(100*time.Millisecond, 2.0, 2*time.Second)
func (r RetryBuilder) WithExponentialBackoff(initial time.Duration, multiplier float64, max time.Duration) RetryBuilder {
	p := r.policy
	p.InitialDelay = initial
	p.MaxDelay = max
	if multiplier <= 0 {
		multiplier = 2.0
	}
	p.BackoffMultiplier = multiplier
	return RetryBuilder{policy: p}
}

// WithConstantBackoff configures a constant backoff between retries.
//
// This is equivalent to an exponential backoff with multiplier 1.0 and no
// max cap.
func (r RetryBuilder) WithConstantBackoff(delay time.Duration) RetryBuilder {
	p := r.policy
	p.InitialDelay = delay
	p.MaxDelay = 0
	p.BackoffMultiplier = 1.0
	return RetryBuilder{policy: p}
}

// Immediate disables any sleep between retries. Retries still respect
// MaxAttempts.
func (r RetryBuilder) Immediate() RetryBuilder {
	p := r.policy
	p.InitialDelay = 0
	p.MaxDelay = 0
	p.BackoffMultiplier = 0
	return RetryBuilder{policy: p}
}

// RetryOn restricts retries to activity failures whose ActivityError.Code
// matches one of the given codes. If unset, every retriable failure is
// retried.
func (r RetryBuilder) RetryOn(codes ...string) RetryBuilder {
	p := r.policy
	p.RetryOn = codes
	return RetryBuilder{policy: p}
}

// DoNotRetryOn excludes the given ActivityError.Code values from retry,
// regardless of RetryOn.
func (r RetryBuilder) DoNotRetryOn(codes ...string) RetryBuilder {
	p := r.policy
	p.DoNotRetryOn = codes
	return RetryBuilder{policy: p}
}

// Policy returns the underlying RetryPolicy.
func (r RetryBuilder) Policy() RetryPolicy {
	return r.policy
}
