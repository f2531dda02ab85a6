package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/framestate/internal/geom"
	"github.com/roach88/framestate/internal/store"
)

// AssertionError is returned when an assertion fails. It carries the rows
// of the query under test to help debug the failure.
type AssertionError struct {
	Type     string            // Assertion type
	Expected string            // Human-readable expected outcome
	Actual   string            // Human-readable actual outcome
	Rows     []store.StoredRow // Rows of the query under test
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Rows) > 0 {
		fmt.Fprintf(&buf, "\nRows:\n")
		for _, r := range e.Rows {
			fmt.Fprintf(&buf, "  [step %d] %s %s %v\n", r.Step, r.Query, r.Entity, r.Values)
		}
	}
	return buf.String()
}

// selectRows returns the rows of a.Query, narrowed by a.Entity and a.Step
// when those are set.
func selectRows(rows []store.StoredRow, a Assertion) []store.StoredRow {
	var out []store.StoredRow
	for _, r := range rows {
		if r.Query != a.Query {
			continue
		}
		if a.Entity != "" && r.Entity != a.Entity {
			continue
		}
		if a.Step != 0 && r.Step != a.Step {
			continue
		}
		out = append(out, r)
	}
	return out
}

func queryRows(rows []store.StoredRow, name string) []store.StoredRow {
	return selectRows(rows, Assertion{Query: name})
}

func describe(a Assertion) string {
	parts := []string{"query " + a.Query}
	if a.Entity != "" {
		parts = append(parts, "entity "+a.Entity)
	}
	if a.Step != 0 {
		parts = append(parts, fmt.Sprintf("step %d", a.Step))
	}
	return strings.Join(parts, ", ")
}

// assertRowCount checks the exact number of matching rows.
func assertRowCount(rows []store.StoredRow, a Assertion) error {
	got := selectRows(rows, a)
	if len(got) != a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows for %s", a.Count, describe(a)),
			Actual:   fmt.Sprintf("%d rows", len(got)),
			Rows:     queryRows(rows, a.Query),
		}
	}
	return nil
}

// assertNoRows checks that nothing matched.
func assertNoRows(rows []store.StoredRow, a Assertion) error {
	got := selectRows(rows, a)
	if len(got) > 0 {
		return &AssertionError{
			Type:     AssertNoRows,
			Expected: "no rows for " + describe(a),
			Actual:   fmt.Sprintf("%d rows, first at step %d", len(got), got[0].Step),
			Rows:     got,
		}
	}
	return nil
}

// assertRowsContain checks that some matching row carries the expected
// values (subset match).
func assertRowsContain(rows []store.StoredRow, a Assertion) error {
	got := selectRows(rows, a)
	for _, r := range got {
		if matchValues(r.Values, a.Values) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertRowsContain,
		Expected: fmt.Sprintf("row for %s with values %v", describe(a), a.Values),
		Actual:   fmt.Sprintf("no match among %d rows", len(got)),
		Rows:     queryRows(rows, a.Query),
	}
}

// assertFirstRow checks the step at which an entity first matched.
func assertFirstRow(rows []store.StoredRow, a Assertion) error {
	got := selectRows(rows, Assertion{Query: a.Query, Entity: a.Entity})
	if len(got) == 0 {
		return &AssertionError{
			Type:     AssertFirstRow,
			Expected: fmt.Sprintf("first row for %s", describe(a)),
			Actual:   "entity never matched",
			Rows:     queryRows(rows, a.Query),
		}
	}
	if got[0].Step != a.Step {
		return &AssertionError{
			Type:     AssertFirstRow,
			Expected: fmt.Sprintf("first row for %s", describe(a)),
			Actual:   fmt.Sprintf("first row at step %d", got[0].Step),
			Rows:     got,
		}
	}
	return nil
}

// assertLiveCount checks the number of live entities after a step.
func assertLiveCount(result *Result, a Assertion) error {
	live, ok := result.Live[a.Step]
	if !ok {
		return &AssertionError{
			Type:     AssertLiveCount,
			Expected: fmt.Sprintf("%d live entities after step %d", a.Count, a.Step),
			Actual:   "step was not committed",
		}
	}
	if live != a.Count {
		return &AssertionError{
			Type:     AssertLiveCount,
			Expected: fmt.Sprintf("%d live entities after step %d", a.Count, a.Step),
			Actual:   fmt.Sprintf("%d live entities", live),
		}
	}
	return nil
}

// assertRejected checks that a step was rejected with a given code.
func assertRejected(result *Result, a Assertion) error {
	code, ok := result.Rejected[a.Step]
	if !ok {
		return &AssertionError{
			Type:     AssertRejected,
			Expected: fmt.Sprintf("step %d rejected with %s", a.Step, a.Code),
			Actual:   "step was not rejected",
		}
	}
	if code != a.Code {
		return &AssertionError{
			Type:     AssertRejected,
			Expected: fmt.Sprintf("step %d rejected with %s", a.Step, a.Code),
			Actual:   "rejected with " + code,
		}
	}
	return nil
}

// matchValues checks that actual contains every expected key with an equal
// value. Extra keys in actual are ignored.
func matchValues(actual, expected map[string]any) bool {
	for key, want := range expected {
		got, exists := actual[key]
		if !exists || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares a stored value with a YAML-parsed one. Numbers
// compare by value since YAML integers decode as int and stored numbers as
// float64.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	if a, ok := geom.ToFloat(actual); ok {
		e, ok := geom.ToFloat(expected)
		return ok && a == e
	}

	switch exp := expected.(type) {
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !valuesEqual(act[i], exp[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		return matchValues(act, exp)
	}
	return reflect.DeepEqual(actual, expected)
}

// EvaluateAssertions evaluates all assertions against the result. Returns
// one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertRowCount:
			err = assertRowCount(result.Rows, a)
		case AssertNoRows:
			err = assertNoRows(result.Rows, a)
		case AssertRowsContain:
			err = assertRowsContain(result.Rows, a)
		case AssertFirstRow:
			err = assertFirstRow(result.Rows, a)
		case AssertLiveCount:
			err = assertLiveCount(result, a)
		case AssertRejected:
			err = assertRejected(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
