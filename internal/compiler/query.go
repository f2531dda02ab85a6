package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/framestate/internal/filter"
	"github.com/roach88/framestate/internal/geom"
	"github.com/roach88/framestate/internal/query"
)

// Condition and accumulator keys accepted in a filter clause.
const (
	keyEquals     = "equals"
	keyNotEquals  = "not_equals"
	keyGreater    = "gt"
	keyLess       = "lt"
	keyWithin     = "within"
	keyContinuing = "continuing"
	keyLasting    = "lasting"
)

var conditionKeys = []string{keyEquals, keyNotEquals, keyGreater, keyLess, keyWithin}

// CompileQuery compiles a query struct. Filter clauses keep their
// declaration order:
//
//	query: loitering: {
//		class: "person"
//		filter: bottom_center: {
//			lasting: within: ["roi"]
//			seconds: 10
//			name:    "in_roi"
//		}
//		select: ["track_id", "coordinate", "in_roi_time_periods"]
//	}
//
// within names regions from the region struct.
func CompileQuery(v cue.Value, regions map[string]geom.Polygon) (*query.Query, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError("query", err)
	}
	q := &query.Query{Name: label(v)}
	field := "query." + q.Name

	if c, ok := lookup(v, "class"); ok {
		class, err := c.String()
		if err != nil {
			return nil, formatCUEError(field+".class", err)
		}
		q.Class = class
	}

	if f, ok := lookup(v, "filter"); ok {
		iter, err := f.Fields()
		if err != nil {
			return nil, formatCUEError(field+".filter", err)
		}
		for iter.Next() {
			attr := iter.Label()
			pred, err := compilePredicate(field+".filter."+attr, attr, iter.Value(), regions)
			if err != nil {
				return nil, err
			}
			q.Filter = append(q.Filter, query.Clause{Attr: attr, Pred: pred})
		}
	}

	s, ok := lookup(v, "select")
	if !ok {
		return nil, compileErr(field+".select", v.Pos(), "select is required")
	}
	sel, err := stringList(field+".select", s)
	if err != nil {
		return nil, err
	}
	q.Select = sel

	if err := q.Validate(); err != nil {
		return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos(), Err: err}
	}
	return q, nil
}

func compilePredicate(field, attr string, v cue.Value, regions map[string]geom.Polygon) (query.Predicate, error) {
	for _, key := range []string{keyContinuing, keyLasting} {
		inner, ok := lookup(v, key)
		if !ok {
			continue
		}
		cond, err := compileCondition(field+"."+key, inner, regions)
		if err != nil {
			return nil, err
		}
		return compileAccumulator(field, key, attr, v, cond)
	}

	cond, err := compileCondition(field, v, regions)
	if err != nil {
		return nil, err
	}
	return query.Test(cond), nil
}

func compileAccumulator(field, kind, attr string, v cue.Value, cond filter.Condition) (query.Predicate, error) {
	s, ok := lookup(v, "seconds")
	if !ok {
		return nil, compileErr(field+".seconds", v.Pos(), "%s needs seconds", kind)
	}
	seconds, err := s.Float64()
	if err != nil {
		return nil, formatCUEError(field+".seconds", err)
	}

	name := attr
	if n, ok := lookup(v, "name"); ok {
		if name, err = n.String(); err != nil {
			return nil, formatCUEError(field+".name", err)
		}
	}

	var acc *filter.Accumulator
	if kind == keyContinuing {
		acc, err = filter.Continuing(cond, seconds, name)
	} else {
		acc, err = filter.Lasting(cond, seconds, name)
	}
	if err != nil {
		return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos(), Err: err}
	}

	if c, ok := lookup(v, "cumulative"); ok {
		cumulative, err := c.Bool()
		if err != nil {
			return nil, formatCUEError(field+".cumulative", err)
		}
		if cumulative {
			acc.Cumulative()
		}
	}
	return acc, nil
}

// compileCondition compiles a struct holding exactly one condition key.
func compileCondition(field string, v cue.Value, regions map[string]geom.Polygon) (filter.Condition, error) {
	var (
		found string
		arg   cue.Value
	)
	for _, key := range conditionKeys {
		if a, ok := lookup(v, key); ok {
			if found != "" {
				return nil, compileErr(field, v.Pos(), "conditions %s and %s are exclusive", found, key)
			}
			found, arg = key, a
		}
	}

	switch found {
	case keyEquals, keyNotEquals:
		want, err := toGo(field+"."+found, arg)
		if err != nil {
			return nil, err
		}
		if found == keyEquals {
			return filter.Equals(want), nil
		}
		return filter.NotEquals(want), nil
	case keyGreater, keyLess:
		bound, err := arg.Float64()
		if err != nil {
			return nil, formatCUEError(field+"."+found, err)
		}
		if found == keyGreater {
			return filter.Greater(bound), nil
		}
		return filter.Less(bound), nil
	case keyWithin:
		names, err := stringList(field+".within", arg)
		if err != nil {
			return nil, err
		}
		polys := make([]geom.Polygon, 0, len(names))
		for _, n := range names {
			p, ok := regions[n]
			if !ok {
				return nil, compileErr(field+".within", arg.Pos(), "unknown region %q", n)
			}
			polys = append(polys, p)
		}
		cond, err := filter.WithinRegions(polys...)
		if err != nil {
			return nil, &CompileError{Field: field + ".within", Message: err.Error(), Pos: arg.Pos(), Err: err}
		}
		return cond, nil
	default:
		return nil, compileErr(field, v.Pos(), "expected one of equals, not_equals, gt, lt, within")
	}
}
