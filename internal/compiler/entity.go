package compiler

import (
	"maps"
	"slices"

	"cuelang.org/go/cue"

	"github.com/roach88/framestate/internal/vobj"
)

// EntitySpec is the compiled form of one entity type:
//
//	entity: person: {
//		declare: ["bbox_velocity", "keypoints"]
//		window: keypoints: 30
//		static: site: "north-gate"
//		retain: ["in_roi"]
//		hint: coordinate: "coordinate_center"
//	}
//
// Declared attributes are resolved through the registry on every step.
type EntitySpec struct {
	Name    string
	Declare []string
	Windows map[string]int
	Static  map[string]any
	Retain  []string
	Hints   map[string]string
}

// CompileEntity compiles an entity struct. The type name is the field
// label.
func CompileEntity(v cue.Value) (*EntitySpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError("entity", err)
	}
	spec := &EntitySpec{
		Name:    label(v),
		Windows: make(map[string]int),
		Static:  make(map[string]any),
		Hints:   make(map[string]string),
	}
	field := "entity." + spec.Name

	var err error
	if d, ok := lookup(v, "declare"); ok {
		if spec.Declare, err = stringList(field+".declare", d); err != nil {
			return nil, err
		}
	}
	if r, ok := lookup(v, "retain"); ok {
		if spec.Retain, err = stringList(field+".retain", r); err != nil {
			return nil, err
		}
	}

	if w, ok := lookup(v, "window"); ok {
		iter, err := w.Fields()
		if err != nil {
			return nil, formatCUEError(field+".window", err)
		}
		for iter.Next() {
			n, err := iter.Value().Int64()
			if err != nil {
				return nil, formatCUEError(field+".window."+iter.Label(), err)
			}
			if n <= 0 {
				return nil, compileErr(field+".window."+iter.Label(), iter.Value().Pos(),
					"capacity must be positive, got %d", n)
			}
			spec.Windows[iter.Label()] = int(n)
		}
	}

	if s, ok := lookup(v, "static"); ok {
		iter, err := s.Fields()
		if err != nil {
			return nil, formatCUEError(field+".static", err)
		}
		for iter.Next() {
			val, err := toGo(field+".static."+iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			spec.Static[iter.Label()] = val
		}
	}

	if h, ok := lookup(v, "hint"); ok {
		iter, err := h.Fields()
		if err != nil {
			return nil, formatCUEError(field+".hint", err)
		}
		for iter.Next() {
			desc, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(field+".hint."+iter.Label(), err)
			}
			spec.Hints[iter.Label()] = desc
		}
	}

	if _, err := spec.Type(); err != nil {
		return nil, compileErr(field, v.Pos(), "%v", err)
	}
	return spec, nil
}

// Type builds the entity type. Static values are constants.
func (s *EntitySpec) Type() (*vobj.Type, error) {
	t := vobj.NewType(s.Name)
	for _, name := range s.Declare {
		t.DeclareInferred(name)
	}
	for _, name := range slices.Sorted(maps.Keys(s.Windows)) {
		t.Window(name, s.Windows[name])
	}
	for _, name := range slices.Sorted(maps.Keys(s.Static)) {
		val := s.Static[name]
		t.Static(name, func(*vobj.Entity) (any, error) { return val, nil })
	}
	t.Retain(s.Retain...)
	for _, attr := range slices.Sorted(maps.Keys(s.Hints)) {
		t.Hint(attr, s.Hints[attr])
	}
	if err := t.Err(); err != nil {
		return nil, err
	}
	return t, nil
}
