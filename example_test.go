package flowforge_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/flowforge/flowforge"
)

// Example_workflowBuilder demonstrates defining and running a simple
// workflow using the high-level WorkflowBuilder API and an in-memory engine.
func Example_workflowBuilder() {
	ctx := context.Background()

	reg := flowforge.NewRegistry()
	reg.Register("sayHello", sayHello)
	reg.Register("decorateMessage", decorateMessage)

	eng, stores := flowforge.NewInMemoryEngine(reg, flowforge.NoopObserver{})

	flow := flowforge.New("Greeting").
		Activity("sayHello", "sayHello").
		WithInputMapping(map[string]string{"name": "input.name"}).
		WithOutputMapping(map[string]string{"message": "message"}).
		Activity("decorateMessage", "decorateMessage").
		WithInputMapping(map[string]string{"message": "state.message"}).
		WithOutputMapping(map[string]string{"message": "message"}).
		Transition("sayHello", "decorateMessage", "", 0)

	if _, err := flowforge.RegisterWorkflow(ctx, stores.Definitions, flow); err != nil {
		log.Fatal(err)
	}

	inst, err := flowforge.Run(ctx, eng, flow.Name(), map[string]any{"name": "Gopher"})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("workflow %q finished with status %s and output %v\n",
		inst.ID, inst.Status, inst.Output)
}

// Example_localRunner demonstrates using LocalRunner to execute workflows
// with an in-process engine, queue, and worker.
func Example_localRunner() {
	ctx := context.Background()

	reg := flowforge.NewRegistry()
	reg.Register("sayHello", sayHello)
	reg.Register("decorateMessage", decorateMessage)

	runner := flowforge.NewLocalRunner(reg)

	flow := flowforge.New("Greeting").
		Activity("sayHello", "sayHello").
		WithInputMapping(map[string]string{"name": "input.name"}).
		WithOutputMapping(map[string]string{"message": "message"}).
		Activity("decorateMessage", "decorateMessage").
		WithInputMapping(map[string]string{"message": "state.message"}).
		WithOutputMapping(map[string]string{"message": "message"}).
		Transition("sayHello", "decorateMessage", "", 0)

	if _, err := flowforge.RegisterWorkflow(ctx, runner.Stores.Definitions, flow); err != nil {
		log.Fatal(err)
	}

	// Start one worker loop.
	runner.Start(ctx)
	defer runner.Stop()

	// Enqueue an asynchronous workflow start.
	if _, err := runner.StartWorkflowAsync(ctx, flow.Name(), map[string]any{"name": "Gopher"}); err != nil {
		log.Fatal(err)
	}

	// In a real application you'd wait on instance completion or poll;
	// for example purposes, just give the worker a moment to run.
	time.Sleep(500 * time.Millisecond)
}

func sayHello(ctx context.Context, ac *flowforge.ActivityContext) flowforge.ActivityResult {
	name, ok := ac.Input["name"].(string)
	if !ok {
		return flowforge.Fail("BAD_INPUT", fmt.Sprintf("sayHello: expected string name, got %T", ac.Input["name"]), false)
	}
	msg := fmt.Sprintf("hello, %s", name)
	log.Printf("[sayHello] %s", msg)
	return flowforge.Ok(map[string]any{"message": msg})
}

func decorateMessage(ctx context.Context, ac *flowforge.ActivityContext) flowforge.ActivityResult {
	msg, ok := ac.Input["message"].(string)
	if !ok {
		return flowforge.Fail("BAD_INPUT", fmt.Sprintf("decorateMessage: expected string message, got %T", ac.Input["message"]), false)
	}
	out := fmt.Sprintf("*** %s ***", msg)
	log.Printf("[decorateMessage] %s", out)
	return flowforge.Ok(map[string]any{"message": out})
}
