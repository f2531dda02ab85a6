package registry

import (
	"fmt"
	"log/slog"
	"slices"
)

// Entity is the view of a tracked entity that derived functions and the
// resolver need.
//
// GetV follows the entity's resolution order; a nil value with a nil error
// means "not available". Record stores a produced value for the current
// step, in the snapshot or in the attribute's windowed buffer.
type Entity interface {
	ID() string
	GetV(attr string, offset int) (any, error)
	Record(attr string, value any)
	TrackLength() int
	Rate() float64
}

// Transform computes a descriptor's outputs, in Outputs order, from the
// current-step values of its Inputs. Temporal inputs are read through
// obj.GetV with negative offsets.
type Transform func(obj Entity, in map[string]any) ([]any, error)

// Descriptor declares one derived function.
type Descriptor struct {
	Name           string
	Inputs         []string
	TemporalInputs []string
	Outputs        []string
	MinHistory     int
	Fn             Transform
}

// Registry is an ordered table of descriptors.
type Registry struct {
	descriptors []Descriptor
	byOutput    map[string][]int // output attr -> descriptor indexes, registration order
	byName      map[string]int
	sealed      bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byOutput: make(map[string][]int),
		byName:   make(map[string]int),
	}
}

// Register appends d to the table.
//
// Names are canonicalized. Returns a RegistryConflictError if the name is
// taken or if an existing descriptor produces one of d's outputs with the
// same inputs, temporal inputs and minimum history.
func (r *Registry) Register(d Descriptor) error {
	if r.sealed {
		return fmt.Errorf("register %q: registry is sealed", d.Name)
	}
	d.Name = CanonicalName(d.Name)
	if d.Name == "" {
		return fmt.Errorf("register: descriptor name is required")
	}
	if d.Fn == nil {
		return fmt.Errorf("register %q: transform is nil", d.Name)
	}
	if len(d.Outputs) == 0 {
		return fmt.Errorf("register %q: at least one output is required", d.Name)
	}
	if d.MinHistory < 0 {
		return fmt.Errorf("register %q: negative min history %d", d.Name, d.MinHistory)
	}
	d.Inputs = canonicalNames(d.Inputs)
	d.TemporalInputs = canonicalNames(d.TemporalInputs)
	d.Outputs = canonicalNames(d.Outputs)

	if _, ok := r.byName[d.Name]; ok {
		return &RegistryConflictError{Name: d.Name, Existing: d.Name}
	}
	if len(NewSet(d.Outputs...)) != len(d.Outputs) {
		return fmt.Errorf("register %q: duplicate output names %v", d.Name, d.Outputs)
	}

	for _, out := range d.Outputs {
		for _, idx := range r.byOutput[out] {
			existing := r.descriptors[idx]
			if sameSet(existing.Inputs, d.Inputs) &&
				sameSet(existing.TemporalInputs, d.TemporalInputs) &&
				existing.MinHistory == d.MinHistory {
				return &RegistryConflictError{Name: d.Name, Existing: existing.Name, Output: out}
			}
		}
	}

	idx := len(r.descriptors)
	r.descriptors = append(r.descriptors, d)
	r.byName[d.Name] = idx
	for _, out := range d.Outputs {
		r.byOutput[out] = append(r.byOutput[out], idx)
	}
	return nil
}

// MustRegister is Register for static tables; it panics on error.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Seal makes the registry read-only. Further Register calls fail.
func (r *Registry) Seal() {
	r.sealed = true
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.sealed
}

// Descriptors returns a copy of the table in registration order.
func (r *Registry) Descriptors() []Descriptor {
	return slices.Clone(r.descriptors)
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	idx, ok := r.byName[CanonicalName(name)]
	if !ok {
		return Descriptor{}, false
	}
	return r.descriptors[idx], true
}

// Outputs returns every attribute some descriptor can produce.
func (r *Registry) Outputs() Set {
	s := make(Set, len(r.byOutput))
	for out := range r.byOutput {
		s[out] = struct{}{}
	}
	return s
}

// Produces reports whether any descriptor lists attr as an output.
func (r *Registry) Produces(attr string) bool {
	return len(r.byOutput[attr]) > 0
}

// Infer resolves attr for obj.
//
// A descriptor qualifies when it lists attr as an output, its Inputs are all
// in available, its TemporalInputs are all in historyBacked, and its
// MinHistory does not exceed obj.TrackLength(). hints may pin attr to one
// descriptor by name. Qualifying descriptors are tried in registration
// order; a descriptor whose inputs resolve to nil is skipped.
//
// On a match every output is recorded on obj before the requested one is
// returned, so sibling outputs hit the entity's cache for the rest of the
// step. No qualifying descriptor yields (nil, nil).
func (r *Registry) Infer(obj Entity, attr string, available, historyBacked Set, hints map[string]string) (any, error) {
	candidates := r.byOutput[attr]
	pinned, hasHint := hints[attr]

	for _, idx := range candidates {
		d := r.descriptors[idx]
		if hasHint && d.Name != CanonicalName(pinned) {
			continue
		}
		if d.MinHistory > obj.TrackLength() {
			continue
		}
		if !available.HasAll(d.Inputs) || !historyBacked.HasAll(d.TemporalInputs) {
			continue
		}

		in, ok, err := gatherInputs(obj, d)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		outs, err := invoke(obj, d, in)
		if err != nil {
			return nil, &TransformExecutionError{Entity: obj.ID(), Attr: attr, Transform: d.Name, Err: err}
		}
		if len(outs) != len(d.Outputs) {
			return nil, &TransformExecutionError{
				Entity:    obj.ID(),
				Attr:      attr,
				Transform: d.Name,
				Err:       fmt.Errorf("returned %d values for %d outputs", len(outs), len(d.Outputs)),
			}
		}

		var result any
		for i, name := range d.Outputs {
			obj.Record(name, outs[i])
			if name == attr {
				result = outs[i]
			}
		}

		slog.Debug("derived attribute",
			"entity", obj.ID(),
			"attr", attr,
			"transform", d.Name,
			"outputs", len(d.Outputs),
		)
		return result, nil
	}

	return nil, nil
}

// gatherInputs reads d's current-step inputs. ok is false when any input
// is not available.
func gatherInputs(obj Entity, d Descriptor) (map[string]any, bool, error) {
	in := make(map[string]any, len(d.Inputs))
	for _, name := range d.Inputs {
		v, err := obj.GetV(name, -1)
		if err != nil {
			return nil, false, err
		}
		if v == nil {
			return nil, false, nil
		}
		in[name] = v
	}
	return in, true, nil
}

// invoke runs the transform, converting a panic into an error so a broken
// transform cannot take down other entities.
func invoke(obj Entity, d Descriptor, in map[string]any) (outs []any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return d.Fn(obj, in)
}
