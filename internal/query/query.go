// Package query evaluates per-step queries over tracked entities.
//
// A query selects entities of one class whose attributes satisfy every
// filter clause, and reports a row of selected attribute values for each
// match. All clauses are evaluated on every step for every entity of the
// class so that temporal clauses keep their counts current regardless of
// the outcome of other clauses.
package query

import (
	"errors"
	"fmt"

	"github.com/roach88/framestate/internal/filter"
	"github.com/roach88/framestate/internal/vobj"
)

// Predicate tests one attribute of an entity on its current step.
// *filter.Accumulator implements Predicate.
type Predicate interface {
	Match(e *vobj.Entity, attr string) (bool, error)
}

// Test adapts an instantaneous condition. Missing values fail it.
func Test(cond filter.Condition) Predicate {
	return condition(cond)
}

type condition filter.Condition

func (c condition) Match(e *vobj.Entity, attr string) (bool, error) {
	v, err := e.GetV(attr, -1)
	if err != nil || v == nil {
		return false, err
	}
	return c(v), nil
}

// Clause binds a predicate to the attribute it tests.
type Clause struct {
	Attr string
	Pred Predicate
}

// Query is a named filter and projection over one entity class.
type Query struct {
	Name   string
	Class  string
	Filter []Clause
	Select []string
}

// Row is one query match.
type Row struct {
	Query  string         `json:"query"`
	Entity string         `json:"entity"`
	Step   int64          `json:"step"`
	Values map[string]any `json:"values"`
}

// Validate reports structural problems in q.
func (q *Query) Validate() error {
	var errs []error
	if q.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	for i, c := range q.Filter {
		if c.Attr == "" {
			errs = append(errs, fmt.Errorf("filter %d: attribute is required", i))
		}
		if c.Pred == nil {
			errs = append(errs, fmt.Errorf("filter %d (%s): predicate is required", i, c.Attr))
		}
	}
	if len(q.Select) == 0 {
		errs = append(errs, errors.New("select list is empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("query %q: %w", q.Name, err)
	}
	return nil
}

// Applies reports whether q considers entities of class.
func (q *Query) Applies(class string) bool {
	return q.Class == "" || q.Class == class
}

// Evaluate runs q against e's current step. It returns ok=false for
// entities of another class, entities absent on this step, and entities
// failing any clause.
func (q *Query) Evaluate(e *vobj.Entity) (Row, bool, error) {
	if !q.Applies(e.Type().Name()) || !e.Present(-1) {
		return Row{}, false, nil
	}

	matched := true
	for _, c := range q.Filter {
		ok, err := c.Pred.Match(e, c.Attr)
		if err != nil {
			return Row{}, false, fmt.Errorf("query %s: filter %s: %w", q.Name, c.Attr, err)
		}
		matched = matched && ok
	}
	if !matched {
		return Row{}, false, nil
	}

	row := Row{
		Query:  q.Name,
		Entity: e.ID(),
		Step:   e.Step().ID,
		Values: make(map[string]any, len(q.Select)),
	}
	for _, attr := range q.Select {
		v, err := e.GetV(attr, -1)
		if err != nil {
			return Row{}, false, fmt.Errorf("query %s: select %s: %w", q.Name, attr, err)
		}
		row.Values[attr] = v
	}
	return row, true, nil
}
