// Package harness provides a conformance testing framework for the
// presentation pipeline.
//
// A scenario is a YAML file naming a CUE rule table, a flow of host events
// (attribute updates, element removals, transition completions, frame-clock
// advances), and assertions over the resulting trace and final presentation
// state. The harness runs each scenario against a fresh pipeline with
// deterministic helpers (manual frame clock, sequential transition IDs, an
// in-memory trace recorder), so the same scenario always produces the same
// trace. Golden files pin that trace byte for byte.
package harness

import (
	"fmt"

	"github.com/veneer-dev/veneer/internal/bridge"
	"github.com/veneer-dev/veneer/internal/compiler"
	"github.com/veneer-dev/veneer/internal/state"
	"github.com/veneer-dev/veneer/internal/table"
	"github.com/veneer-dev/veneer/internal/testutil"
	"github.com/veneer-dev/veneer/internal/trace"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if all assertions hold.
	Pass bool

	// Trace contains every recorded event in order.
	// Used by trace assertions and golden comparison.
	Trace []trace.Event

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string

	applier *RecordingApplier
	bridge  *bridge.Bridge
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh pipeline for isolation. Deterministic
// helpers (manual frame clock, sequential token generator) ensure
// reproducible traces.
//
// Execution flow:
//  1. Compile the scenario's CUE rule table
//  2. Build a fresh pipeline with a recording applier and memory recorder
//  3. Feed the steps in order
//  4. Evaluate assertions against the trace and final state
func Run(scenario *Scenario) (*Result, error) {
	src, err := compiler.Load(scenario.Table)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule table: %w", err)
	}
	tbl, err := table.Compile(src.Flags, src.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to compile rule table: %w", err)
	}

	app := NewRecordingApplier()
	mem := trace.NewMemory()
	clock := testutil.NewManualFrameClock()

	b := bridge.New(tbl, app,
		bridge.WithRecorder(mem),
		bridge.WithFrameClock(clock),
		bridge.WithTokenGenerator(testutil.NewSeqTokenGenerator("t")),
		bridge.WithReducedMotion(scenario.ReducedMotion),
	)

	for i, step := range scenario.Steps {
		if err := executeStep(b, clock, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	result := &Result{
		Pass:    true,
		Trace:   mem.Events(),
		applier: app,
		bridge:  b,
	}
	for _, msg := range EvaluateAssertions(scenario.Assertions, result) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep feeds one host event into the pipeline synchronously.
func executeStep(b *bridge.Bridge, clock *testutil.ManualFrameClock, step Step) error {
	switch {
	case step.Set != nil:
		return b.Dispatch(bridge.Event{
			Type:    bridge.EventAttribute,
			Element: step.Set.Element,
			Flag:    step.Set.Flag,
			Raw:     step.Set.Value,
		})
	case step.Remove != nil:
		return b.Dispatch(bridge.Event{
			Type:    bridge.EventRemoval,
			Element: step.Remove.Element,
		})
	case step.Complete != nil:
		return b.Dispatch(bridge.Event{
			Type:    bridge.EventChannelCompletion,
			Element: step.Complete.Element,
			Channel: step.Complete.Channel,
		})
	default:
		// Validation guarantees the only remaining kind is advance.
		clock.Advance(step.advance)
		return nil
	}
}

// running reports the number of in-flight transitions on an element.
func (r *Result) running(elementID string) int {
	return r.bridge.Scheduler().ActiveTransitions(state.Handle(elementID))
}
