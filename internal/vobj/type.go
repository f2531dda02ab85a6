package vobj

import (
	"fmt"

	"github.com/roach88/framestate/internal/registry"
)

// Compute produces an attribute value for e on its current step. A nil
// value means "not available".
type Compute func(e *Entity) (any, error)

// Attribute is a declared attribute of an entity type.
type Attribute struct {
	Name    string
	Compute Compute
}

// Type describes a class of entities: which attributes are computed after
// every update, which keep a bounded history, and which are static.
//
// A Type is built once at definition time with the chained builder methods
// and is shared, read-only, by every entity of that class. Builder mistakes
// are collected and reported by Err.
type Type struct {
	name     string
	declared []Attribute
	index    map[string]int
	windows  map[string]int
	statics  map[string]Compute
	retained registry.Set
	hints    map[string]string
	err      error
}

// NewType starts the definition of an entity class.
func NewType(name string) *Type {
	return &Type{
		name:     name,
		index:    make(map[string]int),
		windows:  make(map[string]int),
		statics:  make(map[string]Compute),
		retained: registry.NewSet(),
		hints:    make(map[string]string),
	}
}

// Declare adds an attribute computed after every update, in declaration
// order.
func (t *Type) Declare(name string, fn Compute) *Type {
	name = registry.CanonicalName(name)
	switch {
	case fn == nil:
		t.fail(fmt.Errorf("type %s: declared attribute %q has no compute function", t.name, name))
	case t.has(name):
		t.fail(fmt.Errorf("type %s: attribute %q declared twice", t.name, name))
	default:
		t.index[name] = len(t.declared)
		t.declared = append(t.declared, Attribute{Name: name, Compute: fn})
	}
	return t
}

// DeclareInferred adds a declared attribute whose value comes from the
// derived-function registry. Declaring it forces the derivation every
// step, so its history exists even when nothing queries it.
func (t *Type) DeclareInferred(name string) *Type {
	name = registry.CanonicalName(name)
	return t.Declare(name, func(e *Entity) (any, error) {
		return e.derive(name, nil)
	})
}

// Window keeps the last capacity values of name in a ring buffer that
// serves historical lookups. Windowed values are not stored in snapshots.
func (t *Type) Window(name string, capacity int) *Type {
	name = registry.CanonicalName(name)
	if capacity <= 0 {
		t.fail(fmt.Errorf("type %s: window for %q must have positive capacity, got %d", t.name, name, capacity))
		return t
	}
	if _, ok := t.windows[name]; ok {
		t.fail(fmt.Errorf("type %s: window for %q declared twice", t.name, name))
		return t
	}
	t.windows[name] = capacity
	return t
}

// Static adds an attribute computed at most once per entity. It is
// computed on first request; a nil result is not stored and is retried.
func (t *Type) Static(name string, fn Compute) *Type {
	name = registry.CanonicalName(name)
	switch {
	case fn == nil:
		t.fail(fmt.Errorf("type %s: static attribute %q has no compute function", t.name, name))
	case t.has(name):
		t.fail(fmt.Errorf("type %s: attribute %q declared twice", t.name, name))
	default:
		t.statics[name] = fn
	}
	return t
}

// Retain marks snapshot attributes whose history may be queried before
// the entity has ever stored them.
func (t *Type) Retain(names ...string) *Type {
	for _, n := range names {
		t.retained.Add(registry.CanonicalName(n))
	}
	return t
}

// Hint pins the derived function used for attr on entities of this type.
func (t *Type) Hint(attr, descriptor string) *Type {
	t.hints[registry.CanonicalName(attr)] = registry.CanonicalName(descriptor)
	return t
}

// Name returns the class name.
func (t *Type) Name() string {
	return t.name
}

// Declared returns the declared attribute names in declaration order.
func (t *Type) Declared() []string {
	out := make([]string, len(t.declared))
	for i, a := range t.declared {
		out[i] = a.Name
	}
	return out
}

// WindowCapacity returns the window capacity of name, or 0.
func (t *Type) WindowCapacity(name string) int {
	return t.windows[name]
}

// Err returns the first builder error.
func (t *Type) Err() error {
	return t.err
}

func (t *Type) has(name string) bool {
	_, declared := t.index[name]
	_, static := t.statics[name]
	return declared || static
}

func (t *Type) fail(err error) {
	if t.err == nil {
		t.err = err
	}
}
