package flowforge

import (
	"context"
	"testing"
	"time"
)

func newAddOneRegistry() *Registry {
	reg := NewBuiltinRegistry(nil)
	reg.Register("addOne", func(ctx context.Context, ac *ActivityContext) ActivityResult {
		n, _ := ac.Input["value"].(float64)
		return Ok(map[string]any{"value": n + 1})
	})
	reg.Register("double", func(ctx context.Context, ac *ActivityContext) ActivityResult {
		n, _ := ac.Input["value"].(float64)
		return Ok(map[string]any{"value": n * 2})
	})
	return reg
}

// TestLocalRunner_SyncAndAsync verifies that LocalRunner can run workflows
// both synchronously (direct Run) and asynchronously via StartWorkflowAsync
// + the worker loop.
func TestLocalRunner_SyncAndAsync(t *testing.T) {
	runner := NewLocalRunner(newAddOneRegistry())
	ctx := context.Background()

	// (n + 1) * 2
	flow := New("localrunner-sync-async").
		Activity("inc", "addOne").
		WithInputMapping(map[string]string{"value": "input.value"}).
		WithOutputMapping(map[string]string{"value": "value"}).
		Activity("dbl", "double").
		WithInputMapping(map[string]string{"value": "state.value"}).
		WithOutputMapping(map[string]string{"value": "value"}).
		Transition("inc", "dbl", "", 0)

	if _, err := RegisterWorkflow(ctx, runner.Stores.Definitions, flow); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}

	// --- Synchronous run ---

	syncInst, err := Run(ctx, runner.Engine, flow.Name(), map[string]any{"value": 1.0})
	if err != nil {
		t.Fatalf("sync Run failed: %v", err)
	}
	if syncInst.Status != StatusCompleted {
		t.Fatalf("expected sync instance status %v, got %v", StatusCompleted, syncInst.Status)
	}
	if out, _ := syncInst.Output["value"].(float64); out != 4 {
		t.Fatalf("expected sync output value 4, got %v", syncInst.Output)
	}

	// --- Asynchronous run via worker/queue ---

	runner.Start(ctx)
	defer runner.Stop()

	asyncInst, err := runner.StartWorkflowAsync(ctx, flow.Name(), map[string]any{"value": 3.0})
	if err != nil {
		t.Fatalf("StartWorkflowAsync failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		inst, err := GetInstance(ctx, runner.Engine, asyncInst.ID)
		if err == nil && inst.Status.IsTerminal() {
			if inst.Status != StatusCompleted {
				t.Fatalf("expected async instance to complete, got status %v", inst.Status)
			}
			if out, _ := inst.Output["value"].(float64); out != 8 {
				t.Fatalf("expected async output value 8, got %v", inst.Output)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("did not observe completed async instance before timeout")
}

// TestLocalRunner_StartTwice ensures that Start cannot launch a second
// worker goroutine without an intervening Stop.
func TestLocalRunner_StartTwice(t *testing.T) {
	runner := NewLocalRunner(NewBuiltinRegistry(nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer runner.Stop()

	runner.Start(ctx)
	runner.Start(ctx) // no-op, must not panic or deadlock
}

// TestLocalRunner_StopWithoutStart ensures Stop is safe when the worker was
// never started.
func TestLocalRunner_StopWithoutStart(t *testing.T) {
	runner := NewLocalRunner(NewBuiltinRegistry(nil))
	runner.Stop()
}

// TestLocalRunner_SignalAsync verifies that SignalAsync resumes a workflow
// suspended on the builtin waitForSignal activity.
func TestLocalRunner_SignalAsync(t *testing.T) {
	runner := NewLocalRunner(NewBuiltinRegistry(nil))
	ctx := context.Background()

	flow := New("localrunner-signal").
		ActivityWithProperties("wait-for-go", "waitForSignal", map[string]any{"signal": "go"}).
		Activity("after-signal", "log").
		Transition("wait-for-go", "after-signal", "", 0)

	if _, err := RegisterWorkflow(ctx, runner.Stores.Definitions, flow); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}

	runner.Start(ctx)
	defer runner.Stop()

	inst, err := runner.StartWorkflowAsync(ctx, flow.Name(), map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("StartWorkflowAsync failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var waiting bool
	for time.Now().Before(deadline) {
		got, err := GetInstance(ctx, runner.Engine, inst.ID)
		if err != nil {
			t.Fatalf("GetInstance failed: %v", err)
		}
		if got.Status == StatusSuspended {
			waiting = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !waiting {
		t.Fatalf("expected instance %s to suspend before timeout", inst.ID)
	}

	if err := runner.SignalAsync(ctx, inst.ID, "go", map[string]any{"message": "hi"}); err != nil {
		t.Fatalf("SignalAsync failed: %v", err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := GetInstance(ctx, runner.Engine, inst.ID)
		if err != nil {
			t.Fatalf("GetInstance failed: %v", err)
		}
		if got.Status == StatusCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected instance %s to complete after signal, but it did not", inst.ID)
}
