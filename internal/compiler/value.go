package compiler

import (
	"cuelang.org/go/cue"
)

// label returns the last path selector of v, the name a struct field was
// declared under.
func label(v cue.Value) string {
	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return ""
	}
	return sels[len(sels)-1].String()
}

// lookup returns the field at path and whether it is present.
func lookup(v cue.Value, path string) (cue.Value, bool) {
	f := v.LookupPath(cue.ParsePath(path))
	return f, f.Exists()
}

// toGo converts a concrete CUE value into the plain Go values entities
// carry: string, int64, float64, bool, []any, map[string]any or nil.
func toGo(field string, v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.NullKind:
		return nil, nil
	case cue.StringKind:
		s, err := v.String()
		return s, formatCUEError(field, err)
	case cue.IntKind:
		n, err := v.Int64()
		return n, formatCUEError(field, err)
	case cue.FloatKind:
		f, err := v.Float64()
		return f, formatCUEError(field, err)
	case cue.BoolKind:
		b, err := v.Bool()
		return b, formatCUEError(field, err)
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		var out []any
		for iter.Next() {
			elem, err := toGo(field, iter.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		out := make(map[string]any)
		for iter.Next() {
			elem, err := toGo(field+"."+iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			out[iter.Label()] = elem
		}
		return out, nil
	default:
		return nil, compileErr(field, v.Pos(), "value must be concrete, got %v", v.IncompleteKind())
	}
}

// stringList decodes a list of strings.
func stringList(field string, v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(field, err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		out = append(out, s)
	}
	return out, nil
}
