package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/ignis/internal/ir"
)

// JournalReader is the journal access assertions need.
type JournalReader interface {
	Get(ctx context.Context, dep ir.DeploymentID, key string) (ir.JournalEntry, bool, error)
}

// AssertionContext provides the journal for journal assertions.
type AssertionContext struct {
	Ctx        context.Context
	Journal    JournalReader
	Deployment ir.DeploymentID
}

// AssertionError is returned when an assertion fails. Calls carries the
// executor call log for context.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Calls    []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Calls) > 0 {
		fmt.Fprintf(&buf, "\nExecutor calls:\n")
		for i, id := range e.Calls {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, id)
		}
	}
	return buf.String()
}

// assertExecutedCount checks how often an action reached the executor
// across all runs.
func assertExecutedCount(calls []string, a Assertion) error {
	count := 0
	for _, id := range calls {
		if id == a.Action {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertExecutedCount,
			Expected: fmt.Sprintf("%d executions of %s", a.Count, a.Action),
			Actual:   fmt.Sprintf("%d executions", count),
			Calls:    calls,
		}
	}
	return nil
}

// assertExecutedOrder checks that the first execution of each listed
// action happened in the listed order. Other calls may interleave.
func assertExecutedOrder(calls []string, a Assertion) error {
	positions := make(map[string]int, len(a.Actions))
	for _, id := range a.Actions {
		pos := slices.Index(calls, id)
		if pos < 0 {
			return &AssertionError{
				Type:     AssertExecutedOrder,
				Expected: fmt.Sprintf("all actions executed: %v", a.Actions),
				Actual:   fmt.Sprintf("%s never executed", id),
				Calls:    calls,
			}
		}
		positions[id] = pos + 1
	}
	for i := 1; i < len(a.Actions); i++ {
		prev, curr := a.Actions[i-1], a.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertExecutedOrder,
				Expected: fmt.Sprintf("actions in order: %v", a.Actions),
				Actual: fmt.Sprintf("%s (call %d) should be before %s (call %d)",
					prev, positions[prev], curr, positions[curr]),
				Calls: calls,
			}
		}
	}
	return nil
}

// assertJournal checks the final journal entry of an action. Recognized
// keys: status, attempt, error_kind, result (subset match).
func assertJournal(actx *AssertionContext, a Assertion) error {
	key, err := ir.IdempotencyKey(a.Action, actx.Deployment)
	if err != nil {
		return err
	}
	e, found, err := actx.Journal.Get(actx.Ctx, actx.Deployment, key)
	if err != nil {
		return fmt.Errorf("journal assertion for %s: %w", a.Action, err)
	}
	if !found {
		return &AssertionError{
			Type:     AssertJournal,
			Expected: fmt.Sprintf("journal entry for %s", a.Action),
			Actual:   "no entry",
		}
	}

	actual := map[string]ir.Value{
		"status":  ir.String(e.Status),
		"attempt": ir.Int(e.Attempt),
		"run_id":  ir.String(e.RunID),
	}
	if e.Error != nil {
		actual["error_kind"] = ir.String(e.Error.Kind)
	}
	if e.Result != nil {
		actual["result"] = e.Result
	}

	for _, field := range sortedKeys(a.Expect) {
		want, err := ir.FromAny(a.Expect[field])
		if err != nil {
			return fmt.Errorf("journal assertion for %s: field %q: %w", a.Action, field, err)
		}
		got, ok := actual[field]
		if !ok {
			return &AssertionError{
				Type:     AssertJournal,
				Expected: fmt.Sprintf("%s.%s = %s", a.Action, field, render(want)),
				Actual:   fmt.Sprintf("%s.%s not set", a.Action, field),
			}
		}
		if !matchValue(got, want) {
			return &AssertionError{
				Type:     AssertJournal,
				Expected: fmt.Sprintf("%s.%s = %s", a.Action, field, render(want)),
				Actual:   fmt.Sprintf("%s.%s = %s", a.Action, field, render(got)),
			}
		}
	}
	return nil
}

// assertExport checks an export of the last report. An empty expect only
// requires the export to be present.
func assertExport(result *Result, a Assertion) error {
	report := result.LastReport()
	var got ir.Value
	var ok bool
	if report != nil {
		got, ok = report.Exports[a.Export]
	}
	if !ok {
		return &AssertionError{
			Type:     AssertExport,
			Expected: fmt.Sprintf("export %s", a.Export),
			Actual:   "not exported",
		}
	}
	if len(a.Expect) == 0 {
		return nil
	}
	want, err := ir.FromAny(a.Expect)
	if err != nil {
		return fmt.Errorf("export assertion for %s: %w", a.Export, err)
	}
	if !matchValue(got, want) {
		return &AssertionError{
			Type:     AssertExport,
			Expected: fmt.Sprintf("%s contains %s", a.Export, render(want)),
			Actual:   render(got),
		}
	}
	return nil
}

// matchValue reports whether actual contains expected. Objects match by
// subset; everything else must be equal.
func matchValue(actual, expected ir.Value) bool {
	exp, ok := expected.(ir.Object)
	if !ok {
		return ir.Equal(actual, expected)
	}
	act, ok := actual.(ir.Object)
	if !ok {
		return false
	}
	for k, v := range exp {
		av, exists := act[k]
		if !exists || !matchValue(av, v) {
			return false
		}
	}
	return true
}

func render(v ir.Value) string {
	data, err := ir.MarshalValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// EvaluateAssertions evaluates all assertions against the result and
// returns one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertExecutedCount:
			err = assertExecutedCount(result.Calls, a)
		case AssertExecutedOrder:
			err = assertExecutedOrder(result.Calls, a)
		case AssertJournal:
			if actx == nil || actx.Journal == nil {
				err = fmt.Errorf("assertion[%d]: journal requires a journal context", i)
			} else {
				err = assertJournal(actx, a)
			}
		case AssertExport:
			err = assertExport(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
