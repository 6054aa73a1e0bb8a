package harness

import (
	"fmt"
	"strings"

	"github.com/veneer-dev/veneer/internal/trace"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Trace    []trace.Event // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s", i+1, event.Kind, event.Element)
			switch event.Kind {
			case trace.KindSet, trace.KindReject:
				fmt.Fprintf(&buf, " %s=%s", event.Flag, event.Value)
			case trace.KindApply, trace.KindRemove:
				fmt.Fprintf(&buf, " %s=%s", event.Property, event.Value)
			case trace.KindStart, trace.KindCancel, trace.KindComplete:
				fmt.Fprintf(&buf, " %s", event.Transition)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// assertEffectActive checks that a static effect is currently applied on
// an element, optionally with a specific value.
func assertEffectActive(result *Result, assertion Assertion) error {
	value, ok := result.applier.Active(assertion.Element, assertion.Property)
	if !ok {
		return &AssertionError{
			Type:     AssertEffectActive,
			Expected: fmt.Sprintf("%s active on %s", assertion.Property, assertion.Element),
			Actual:   "property not applied",
			Trace:    result.Trace,
		}
	}
	if assertion.Value != "" && value != assertion.Value {
		return &AssertionError{
			Type:     AssertEffectActive,
			Expected: fmt.Sprintf("%s=%s on %s", assertion.Property, assertion.Value, assertion.Element),
			Actual:   fmt.Sprintf("%s=%s", assertion.Property, value),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertNoRunning checks that an element has no in-flight transitions.
func assertNoRunning(result *Result, assertion Assertion) error {
	if n := result.running(assertion.Element); n != 0 {
		return &AssertionError{
			Type:     AssertNoRunning,
			Expected: fmt.Sprintf("no running transitions on %s", assertion.Element),
			Actual:   fmt.Sprintf("%d running", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertTransitionCount checks that a transition started exactly the
// specified number of times, optionally scoped to one element.
func assertTransitionCount(result *Result, assertion Assertion) error {
	count := 0
	for _, event := range result.Trace {
		if event.Kind != trace.KindStart || event.Transition != assertion.Transition {
			continue
		}
		if assertion.Element != "" && event.Element != assertion.Element {
			continue
		}
		count++
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTransitionCount,
			Expected: fmt.Sprintf("%d starts of %s", assertion.Count, assertion.Transition),
			Actual:   fmt.Sprintf("%d starts", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertTraceOrder checks that event kinds appear in the specified order.
// Kinds don't need to be consecutive (intervening events are allowed).
func assertTraceOrder(result *Result, assertion Assertion) error {
	next := 0
	for _, event := range result.Trace {
		if next < len(assertion.Kinds) && string(event.Kind) == assertion.Kinds[next] {
			next++
		}
	}

	if next < len(assertion.Kinds) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("kinds in order: %v", assertion.Kinds),
			Actual:   fmt.Sprintf("no match for %q after position %d", assertion.Kinds[next], next),
			Trace:    result.Trace,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(assertions []Assertion, result *Result) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertEffectActive:
			err = assertEffectActive(result, assertion)
		case AssertNoRunning:
			err = assertNoRunning(result, assertion)
		case AssertTransitionCount:
			err = assertTransitionCount(result, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
