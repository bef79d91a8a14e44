package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/actionbus/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string          // Assertion type for categorization
	Expected string          // Human-readable expected outcome
	Actual   string          // Human-readable actual outcome
	Trace    []ir.TraceEntry // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	// Header with assertion type
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	// Full trace for context
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, entry := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", entry.Seq, describeEntry(entry))
		}
	}

	return buf.String()
}

func describeEntry(e ir.TraceEntry) string {
	switch {
	case e.Kind == ir.TraceEvent:
		return fmt.Sprintf("%s %s", e.Kind, e.EventID)
	case e.Status != "":
		return fmt.Sprintf("%s %s %s", e.Kind, e.ActionID, e.Status)
	default:
		return fmt.Sprintf("%s %s", e.Kind, e.ActionID)
	}
}

// assertTraceContains checks if the trace contains a completion of the
// action, with the given status when one is set.
func assertTraceContains(trace []ir.TraceEntry, assertion Assertion) error {
	for _, e := range trace {
		if e.Kind != ir.TraceComplete || e.ActionID != assertion.Action {
			continue
		}
		if assertion.Status == "" || string(e.Status) == assertion.Status {
			return nil // Found matching completion
		}
	}

	expected := "completion of " + assertion.Action
	if assertion.Status != "" {
		expected += " with status " + assertion.Status
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions complete in the specified order.
// Actions don't need to be consecutive (intervening actions are allowed).
func assertTraceOrder(trace []ir.TraceEntry, assertion Assertion) error {
	// Step 1: Find first position of each expected action
	positions := make(map[string]int)

	for i, e := range trace {
		if e.Kind == ir.TraceComplete {
			for _, expectedAction := range assertion.Actions {
				if e.ActionID == expectedAction && positions[expectedAction] == 0 {
					positions[expectedAction] = i + 1 // 1-indexed for readability
				}
			}
		}
	}

	// Step 2: Verify all actions found
	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	// Step 3: Verify order
	for i := 1; i < len(assertion.Actions); i++ {
		prev := assertion.Actions[i-1]
		curr := assertion.Actions[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks if the action completes exactly the specified
// number of times.
func assertTraceCount(trace []ir.TraceEntry, assertion Assertion) error {
	count := 0
	for _, e := range trace {
		if e.Kind == ir.TraceComplete && e.ActionID == assertion.Action {
			count++
		}
	}

	// Check exact count match
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d completions of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d completions", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertLogContains checks that the named execution log holds the entry.
func assertLogContains(log ir.LogSnapshot, assertion Assertion) error {
	entries := logByName(log, assertion.Log)
	if slices.Contains(entries, assertion.Entry) {
		return nil
	}
	return &AssertionError{
		Type:     AssertLogContains,
		Expected: fmt.Sprintf("%s log to contain %s", assertion.Log, assertion.Entry),
		Actual:   fmt.Sprintf("%s log: %v", assertion.Log, entries),
	}
}

// assertRolledBack checks that the trace records a rollback of the action.
func assertRolledBack(trace []ir.TraceEntry, assertion Assertion) error {
	for _, e := range trace {
		if e.Kind == ir.TraceRollback && e.ActionID == assertion.Action {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertRolledBack,
		Expected: fmt.Sprintf("rollback of %s", assertion.Action),
		Actual:   "no rollback in trace",
		Trace:    trace,
	}
}

// assertSubsequence checks that want appears in got in order, with any
// entries in between.
func assertSubsequence(got, want []string, trace []ir.TraceEntry) error {
	i := 0
	for _, id := range got {
		if i < len(want) && id == want[i] {
			i++
		}
	}
	if i == len(want) {
		return nil
	}
	return &AssertionError{
		Type:     "order",
		Expected: fmt.Sprintf("action log to contain %v in order", want),
		Actual:   fmt.Sprintf("action log %v (missing %s)", got, want[i]),
		Trace:    trace,
	}
}

func logByName(log ir.LogSnapshot, name string) []string {
	switch name {
	case "action":
		return log.ActionLog
	case "main":
		return log.MainLog
	case "repeated":
		return log.RepeatedLog
	case "event":
		return log.EventLog
	case "retries":
		return log.RetriesLog
	default:
		return nil
	}
}

// EvaluateAssertions runs all assertions against the result.
// Returns a list of error messages (empty if all pass).
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertLogContains:
			err = assertLogContains(result.Log, assertion)
		case AssertRolledBack:
			err = assertRolledBack(result.Trace, assertion)
		default:
			err = fmt.Errorf("unknown assertion type: %s", assertion.Type)
		}

		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, assertion.Type, err))
		}
	}

	return errs
}
