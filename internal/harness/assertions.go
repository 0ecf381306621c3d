package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/engine"
	"github.com/roach88/n1qlorm/internal/value"
)

// AssertionError is a failed assertion with enough context to debug it.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %v\n", ev.Seq, ev.Op, ev.Statement, ev.Bindings)
		}
	}
	return buf.String()
}

// AssertionContext gives assertions access to the stored documents.
type AssertionContext struct {
	Ctx  context.Context
	Conn *engine.Connection
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertDocument:
			err = assertDocument(actx, a)
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertStatementCount:
			err = assertStatementCount(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

// assertDocument reads the document by key and matches it as a subset.
func assertDocument(actx *AssertionContext, a Assertion) error {
	if actx == nil || actx.Conn == nil {
		return fmt.Errorf("document assertion requires a connection")
	}
	item, err := actx.Conn.Get(actx.Ctx, a.Key)
	if dberr.IsNotFound(err) {
		if a.Absent {
			return nil
		}
		return &AssertionError{Type: AssertDocument, Expected: fmt.Sprintf("document %s", a.Key), Actual: "not found"}
	}
	if err != nil {
		return err
	}
	if a.Absent {
		return &AssertionError{Type: AssertDocument, Expected: fmt.Sprintf("no document %s", a.Key), Actual: fmt.Sprintf("%v", item.Doc)}
	}
	if !matchSubset(item.Doc, a.Doc) {
		return &AssertionError{
			Type:     AssertDocument,
			Expected: fmt.Sprintf("%s contains %v", a.Key, a.Doc),
			Actual:   fmt.Sprintf("%v", item.Doc),
		}
	}
	return nil
}

// assertTraceContains looks for an event with the op whose statement
// contains the text.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if (a.Op == "" || ev.Op == a.Op) && strings.Contains(ev.Statement, a.Contains) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("op %q with statement containing %q", a.Op, a.Contains),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the ops occur in order. Other events may
// come between them.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next < len(a.Ops) && ev.Op == a.Ops[next] {
			next++
		}
	}
	if next == len(a.Ops) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("ops in order: %v", a.Ops),
		Actual:   fmt.Sprintf("missing %s after position %d", a.Ops[next], next),
		Trace:    trace,
	}
}

func assertStatementCount(result *Result, a Assertion) error {
	n := len(result.Statements())
	if n != a.Count {
		return &AssertionError{
			Type:     AssertStatementCount,
			Expected: fmt.Sprintf("%d statements", a.Count),
			Actual:   fmt.Sprintf("%d statements", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

// checkExpect compares a step's outcome with its expect clause.
func checkExpect(step Step, sr StepResult, events []TraceEvent) []string {
	e := step.Expect
	var errs []string

	switch {
	case e.Error != "" && sr.Error != e.Error:
		errs = append(errs, fmt.Sprintf("expected error %s, got %q", e.Error, sr.Error))
	case e.Error == "" && sr.Error != "":
		errs = append(errs, fmt.Sprintf("unexpected error %s", sr.Error))
	}

	var stmts []TraceEvent
	for _, ev := range events {
		if isStatement(ev.Op) {
			stmts = append(stmts, ev)
		}
	}

	sql, bindings := sr.SQL, sr.Bindings
	if step.Op != "sql" && step.Op != "inline" {
		sql, bindings = "", nil
		if len(stmts) > 0 {
			last := stmts[len(stmts)-1]
			sql, bindings = last.Statement, last.Bindings
		}
	}
	if e.SQL != "" && sql != e.SQL {
		errs = append(errs, fmt.Sprintf("sql:\n  want %s\n  got  %s", e.SQL, sql))
	}
	if e.Bindings != nil && !value.Equal(normalize(e.Bindings), normalize(bindings)) {
		errs = append(errs, fmt.Sprintf("bindings: want %v, got %v", e.Bindings, bindings))
	}
	if e.Statements != nil && len(stmts) != *e.Statements {
		errs = append(errs, fmt.Sprintf("statements: want %d, got %d", *e.Statements, len(stmts)))
	}
	if e.Rows != nil && len(sr.Rows) != *e.Rows {
		errs = append(errs, fmt.Sprintf("rows: want %d, got %d", *e.Rows, len(sr.Rows)))
	}
	if e.Value != nil && !matchValue(sr.Value, e.Value) {
		errs = append(errs, fmt.Sprintf("value: want %v, got %v", e.Value, sr.Value))
	}
	return errs
}

// normalize makes an empty binding list equal to a nil one.
func normalize(v []any) []any {
	if len(v) == 0 {
		return []any{}
	}
	return v
}

// matchValue compares by JSON encoding; expected maps match as subsets.
func matchValue(actual, expected any) bool {
	if em, ok := expected.(map[string]any); ok {
		am, ok := actual.(map[string]any)
		return ok && matchSubset(am, em)
	}
	return value.Equal(actual, expected)
}

// matchSubset reports whether every field of expected equals the same
// field of actual.
func matchSubset(actual, expected map[string]any) bool {
	for k, want := range expected {
		got, ok := actual[k]
		if !ok || !value.Equal(got, want) {
			return false
		}
	}
	return true
}
