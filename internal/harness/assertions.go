package harness

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/snapstate/internal/value"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Remote calls, for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nRemote calls:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", i+1, event.Action, formatArgs(event.Args))
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	calls := result.Dispatches()

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(calls, a)
		case AssertTraceOrder:
			err = assertTraceOrder(calls, a)
		case AssertTraceCount:
			err = assertTraceCount(calls, a)
		case AssertFinalState:
			err = assertFinalState(result.State, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

// assertTraceContains checks for a call of the action whose payload contains
// the specified args (subset match).
func assertTraceContains(calls []TraceEvent, a Assertion) error {
	for _, event := range calls {
		if event.Action == a.Action && matchArgs(event.Args, a.Args) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %s", a.Action, formatArgs(a.Args)),
		Actual:   "not found in trace",
		Trace:    calls,
	}
}

// assertTraceOrder checks that the first call of each listed action appears
// in the listed order. Calls don't need to be consecutive.
func assertTraceOrder(calls []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range calls {
		if _, seen := positions[event.Action]; !seen {
			positions[event.Action] = i + 1 // 1-indexed for readability
		}
	}

	for _, action := range a.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", a.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    calls,
			}
		}
	}

	for i := 1; i < len(a.Actions); i++ {
		prev, curr := a.Actions[i-1], a.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", a.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: calls,
			}
		}
	}

	return nil
}

// assertTraceCount checks that the action was called exactly Count times.
func assertTraceCount(calls []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range calls {
		if event.Action == a.Action {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s called %d times", a.Action, a.Count),
			Actual:   fmt.Sprintf("called %d times", count),
			Trace:    calls,
		}
	}
	return nil
}

// assertFinalState compares a field of the final snapshot exactly.
func assertFinalState(st map[string]any, a Assertion) error {
	got, ok := st[a.Field]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("field %s", a.Field),
			Actual:   "field not captured",
		}
	}

	if !equalLoose(a.Expect, got) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %s", a.Field, canonical(a.Expect)),
			Actual:   canonical(got),
		}
	}
	return nil
}

// matchArgs reports whether every expected arg equals the actual one.
// Extra actual args are ignored.
func matchArgs(actual, expected map[string]any) bool {
	for k, want := range expected {
		got, ok := actual[k]
		if !ok || !equalLoose(want, got) {
			return false
		}
	}
	return true
}

func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(args))
	for _, k := range slices.Sorted(maps.Keys(args)) {
		parts = append(parts, fmt.Sprintf("%s=%s", k, canonical(args[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func canonical(v any) string {
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
