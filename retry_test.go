package flowforge

import (
	"testing"
	"time"
)

// Ensure non-positive maxAttempts is normalized to 1.
func TestRetry_NonPositiveMaxAttemptsDefaultsToOne(t *testing.T) {
	p := Retry(0).Policy()
	if p.MaxAttempts != 1 {
		t.Fatalf("expected MaxAttempts=1 for Retry(0), got %d", p.MaxAttempts)
	}

	p = Retry(-5).Policy()
	if p.MaxAttempts != 1 {
		t.Fatalf("expected MaxAttempts=1 for Retry(-5), got %d", p.MaxAttempts)
	}
}

// Ensure WithExponentialBackoff wires fields correctly and default multiplier is applied.
func TestRetry_WithExponentialBackoff_UsesDefaults(t *testing.T) {
	initial := 100 * time.Millisecond
	max := 2 * time.Second

	// multiplier <= 0 should default to 2.0
	p := Retry(3).
		WithExponentialBackoff(initial, 0, max).
		Policy()

	if p.MaxAttempts != 3 {
		t.Fatalf("expected MaxAttempts=3, got %d", p.MaxAttempts)
	}
	if p.InitialDelay != initial {
		t.Fatalf("expected InitialDelay=%v, got %v", initial, p.InitialDelay)
	}
	if p.MaxDelay != max {
		t.Fatalf("expected MaxDelay=%v, got %v", max, p.MaxDelay)
	}
	if p.BackoffMultiplier != 2.0 {
		t.Fatalf("expected BackoffMultiplier=2.0 (default), got %v", p.BackoffMultiplier)
	}
}

// Ensure WithExponentialBackoff respects an explicit multiplier.
func TestRetry_WithExponentialBackoff_ExplicitMultiplier(t *testing.T) {
	initial := 50 * time.Millisecond
	max := 500 * time.Millisecond
	mult := 3.0

	p := Retry(4).
		WithExponentialBackoff(initial, mult, max).
		Policy()

	if p.InitialDelay != initial {
		t.Fatalf("expected InitialDelay=%v, got %v", initial, p.InitialDelay)
	}
	if p.MaxDelay != max {
		t.Fatalf("expected MaxDelay=%v, got %v", max, p.MaxDelay)
	}
	if p.BackoffMultiplier != mult {
		t.Fatalf("expected BackoffMultiplier=%v, got %v", mult, p.BackoffMultiplier)
	}
}

// Ensure WithConstantBackoff sets a fixed delay and uses multiplier 1.0.
func TestRetry_WithConstantBackoff(t *testing.T) {
	delay := 250 * time.Millisecond

	p := Retry(5).
		WithConstantBackoff(delay).
		Policy()

	if p.MaxAttempts != 5 {
		t.Fatalf("expected MaxAttempts=5, got %d", p.MaxAttempts)
	}
	if p.InitialDelay != delay {
		t.Fatalf("expected InitialDelay=%v, got %v", delay, p.InitialDelay)
	}
	if p.MaxDelay != 0 {
		t.Fatalf("expected MaxDelay=0 for constant backoff, got %v", p.MaxDelay)
	}
	if p.BackoffMultiplier != 1.0 {
		t.Fatalf("expected BackoffMultiplier=1.0, got %v", p.BackoffMultiplier)
	}
}

// Ensure Immediate clears all backoff-related timing without changing MaxAttempts.
func TestRetry_ImmediateClearsBackoff(t *testing.T) {
	p := Retry(7).
		WithExponentialBackoff(100*time.Millisecond, 2.0, 5*time.Second).
		Immediate().
		Policy()

	if p.MaxAttempts != 7 {
		t.Fatalf("expected MaxAttempts=7, got %d", p.MaxAttempts)
	}
	if p.InitialDelay != 0 {
		t.Fatalf("expected InitialDelay=0 after Immediate, got %v", p.InitialDelay)
	}
	if p.MaxDelay != 0 {
		t.Fatalf("expected MaxDelay=0 after Immediate, got %v", p.MaxDelay)
	}
	if p.BackoffMultiplier != 0 {
		t.Fatalf("expected BackoffMultiplier=0 after Immediate, got %v", p.BackoffMultiplier)
	}
}

// Ensure RetryOn/DoNotRetryOn wire the error-code filter lists through.
func TestRetry_OnAndDoNotRetryOn(t *testing.T) {
	p := Retry(3).RetryOn("TIMEOUT", "RATE_LIMITED").Policy()
	if len(p.RetryOn) != 2 || p.RetryOn[0] != "TIMEOUT" || p.RetryOn[1] != "RATE_LIMITED" {
		t.Fatalf("expected RetryOn to carry both codes, got %v", p.RetryOn)
	}

	p = Retry(3).DoNotRetryOn("INVALID_INPUT").Policy()
	if len(p.DoNotRetryOn) != 1 || p.DoNotRetryOn[0] != "INVALID_INPUT" {
		t.Fatalf("expected DoNotRetryOn to carry the code, got %v", p.DoNotRetryOn)
	}
}
