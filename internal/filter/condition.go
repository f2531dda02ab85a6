package filter

import (
	"reflect"

	"github.com/roach88/framestate/internal/geom"
)

// Equals holds when the value equals want. Numbers compare by value
// regardless of their Go type.
func Equals(want any) Condition {
	return func(v any) bool { return equal(v, want) }
}

// NotEquals holds when the value differs from want.
func NotEquals(want any) Condition {
	return func(v any) bool { return !equal(v, want) }
}

// Greater holds for numeric values strictly above bound.
func Greater(bound float64) Condition {
	return func(v any) bool {
		f, ok := geom.ToFloat(v)
		return ok && f > bound
	}
}

// Less holds for numeric values strictly below bound.
func Less(bound float64) Condition {
	return func(v any) bool {
		f, ok := geom.ToFloat(v)
		return ok && f < bound
	}
}

func equal(a, b any) bool {
	fa, okA := geom.ToFloat(a)
	fb, okB := geom.ToFloat(b)
	if okA && okB {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}
