package vobj

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/framestate/internal/registry"
)

// Built-in identity attributes, the last resort of current-step resolution.
const (
	AttrClass       = "class"
	AttrTrackID     = "track_id"
	AttrStartStep   = "start_step"
	AttrTrackLength = "track_length"
)

// slot is one step of history. An absent slot records that the tracker did
// not observe the entity; derived values computed during that step are
// still cached in it.
type slot struct {
	present bool
	values  map[string]any
}

// Entity is the attribute store of one tracked identity.
type Entity struct {
	id          string
	typ         *Type
	reg         *registry.Registry
	step        Step
	startStep   int64
	trackLength int
	history     []slot
	statics     map[string]any
	windows     map[string]*window
	known       registry.Set // attributes ever stored in a snapshot
	inProgress  []string
}

// New registers an entity of type typ first seen on step.
//
// reg may be nil for entity types that only use declared attributes.
func New(typ *Type, reg *registry.Registry, step Step, id string) (*Entity, error) {
	if typ == nil {
		return nil, fmt.Errorf("new entity %s: type is required", id)
	}
	if err := typ.Err(); err != nil {
		return nil, fmt.Errorf("new entity %s: %w", id, err)
	}
	if reg == nil {
		reg = registry.New()
	}
	e := &Entity{
		id:        id,
		typ:       typ,
		reg:       reg,
		step:      step,
		startStep: step.ID,
		statics:   make(map[string]any),
		windows:   make(map[string]*window, len(typ.windows)),
		known:     registry.NewSet(),
	}
	for name, capacity := range typ.windows {
		e.windows[name] = newWindow(capacity)
	}
	return e, nil
}

// ID returns the entity identity (the tracker's track id).
func (e *Entity) ID() string { return e.id }

// Type returns the entity's type.
func (e *Entity) Type() *Type { return e.typ }

// StartStep returns the step on which the entity was registered.
func (e *Entity) StartStep() int64 { return e.startStep }

// TrackLength returns the number of consecutive present observations since
// the last absence.
func (e *Entity) TrackLength() int { return e.trackLength }

// Rate returns the current step's rate in steps per second.
func (e *Entity) Rate() float64 { return e.step.Rate }

// Step returns the current step context.
func (e *Entity) Step() Step { return e.step }

// HistoryLen returns the number of history slots.
func (e *Entity) HistoryLen() int { return len(e.history) }

// Update appends the slot for step.
//
// A non-nil obs is copied into the slot and extends the track; a nil obs
// appends an absence marker and resets the track length to 0. Steps skipped
// since the previous update are filled with absence markers. Every declared
// attribute is then resolved, in declaration order, into the new slot.
func (e *Entity) Update(step Step, obs map[string]any) error {
	next := e.startStep
	if len(e.history) > 0 {
		next = e.step.ID + 1
	}
	if step.ID < next {
		return fmt.Errorf("entity %s: step %d is not after step %d", e.id, step.ID, next-1)
	}
	if gap := step.ID - next; gap > 0 {
		slog.Debug("entity missed steps, recording absence",
			"entity", e.id,
			"from", next,
			"steps", gap,
		)
		for i := int64(0); i < gap; i++ {
			e.history = append(e.history, slot{})
		}
		e.trackLength = 0
	}

	e.step = step
	if obs != nil {
		values := maps.Clone(obs)
		e.history = append(e.history, slot{present: true, values: values})
		e.trackLength++
		for k := range values {
			e.known.Add(k)
		}
	} else {
		e.history = append(e.history, slot{})
		e.trackLength = 0
	}

	for _, a := range e.typ.declared {
		if _, err := e.GetV(a.Name, -1); err != nil {
			return fmt.Errorf("entity %s step %d: %w", e.id, step.ID, err)
		}
	}
	return nil
}

// GetV resolves attr at offset steps relative to the current step; -1 is
// the current step, -2 the one before. A nil value with a nil error means
// "not available". See the package documentation for the resolution order.
func (e *Entity) GetV(attr string, offset int) (any, error) {
	if offset > -1 {
		return nil, fmt.Errorf("entity %s: offset %d for %q must be negative", e.id, offset, attr)
	}
	if v, ok := e.statics[attr]; ok {
		return v, nil
	}

	idx := e.slotIndex(offset)
	if idx < 0 || idx >= len(e.history) {
		return nil, nil
	}
	if v, ok := e.history[idx].values[attr]; ok {
		return v, nil
	}

	if offset == -1 {
		return e.resolveCurrent(attr)
	}

	if w, ok := e.windows[attr]; ok {
		return w.at(offset, e.step.ID), nil
	}
	if e.retains(attr) {
		return nil, nil
	}
	return nil, &NonTemporalHistoryError{Entity: e.id, Attr: attr, Offset: offset}
}

// Infer resolves attr through the derived-function registry directly.
// hints override the type's provider hints.
func (e *Entity) Infer(attr string, hints map[string]string) (any, error) {
	return e.infer(attr, hints)
}

// Recall reads attr from the slot at offset without resolving anything.
// ok is false when the slot does not hold attr.
func (e *Entity) Recall(attr string, offset int) (any, bool) {
	idx := e.slotIndex(offset)
	if idx < 0 || idx >= len(e.history) {
		return nil, false
	}
	v, ok := e.history[idx].values[attr]
	return v, ok
}

// Present reports whether the entity was observed on the step at offset.
func (e *Entity) Present(offset int) bool {
	idx := e.slotIndex(offset)
	return idx >= 0 && idx < len(e.history) && e.history[idx].present
}

// Record stores value for attr on the current step: in attr's window when
// it has one, otherwise in the current slot.
func (e *Entity) Record(attr string, value any) {
	if w, ok := e.windows[attr]; ok {
		w.put(e.step.ID, value)
		return
	}
	if len(e.history) == 0 {
		return
	}
	cur := &e.history[len(e.history)-1]
	if cur.values == nil {
		cur.values = make(map[string]any)
	}
	cur.values[attr] = value
	e.known.Add(attr)
}

// SetStatic sets a static attribute. Static attributes are immutable once
// set.
func (e *Entity) SetStatic(attr string, value any) error {
	if _, ok := e.statics[attr]; ok {
		return fmt.Errorf("entity %s: static attribute %q already set", e.id, attr)
	}
	e.statics[attr] = value
	return nil
}

// Window returns the retained values of a windowed attribute, oldest first.
func (e *Entity) Window(attr string) ([]any, bool) {
	w, ok := e.windows[attr]
	if !ok {
		return nil, false
	}
	return w.values(), true
}

// Snapshot returns a copy of the slot at offset, or nil.
func (e *Entity) Snapshot(offset int) map[string]any {
	idx := e.slotIndex(offset)
	if idx < 0 || idx >= len(e.history) {
		return nil
	}
	return maps.Clone(e.history[idx].values)
}

// InProgress returns the attributes currently being resolved.
func (e *Entity) InProgress() []string {
	return slices.Clone(e.inProgress)
}

func (e *Entity) slotIndex(offset int) int {
	return int(e.step.ID-e.startStep) + offset + 1
}

// resolveCurrent runs the dynamic part of current-step resolution for an
// attribute the current slot does not hold.
func (e *Entity) resolveCurrent(attr string) (any, error) {
	if v, ok := e.step.Fields[attr]; ok {
		return v, nil
	}
	if w, ok := e.windows[attr]; ok && w.writtenAt(e.step.ID) {
		return w.latest(), nil
	}
	if fn, ok := e.typ.statics[attr]; ok {
		return e.computeStatic(attr, fn)
	}
	if i, ok := e.typ.index[attr]; ok {
		return e.invoke(e.typ.declared[i])
	}

	v, err := e.infer(attr, nil)
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = e.builtin(attr)
	}
	return v, nil
}

// invoke computes a declared attribute and records it.
func (e *Entity) invoke(a Attribute) (any, error) {
	if !e.enter(a.Name) {
		return nil, nil
	}
	defer e.leave()

	v, err := a.Compute(e)
	if err != nil {
		return nil, e.transformError(a.Name, "declared:"+a.Name, err)
	}
	e.Record(a.Name, v)
	return v, nil
}

func (e *Entity) computeStatic(name string, fn Compute) (any, error) {
	if !e.enter(name) {
		return nil, nil
	}
	defer e.leave()

	v, err := fn(e)
	if err != nil {
		return nil, e.transformError(name, "static:"+name, err)
	}
	if v != nil {
		e.statics[name] = v
	}
	return v, nil
}

// infer resolves attr through the registry under the in-progress guard.
func (e *Entity) infer(attr string, hints map[string]string) (any, error) {
	if !e.enter(attr) {
		return nil, nil
	}
	defer e.leave()
	return e.derive(attr, hints)
}

// derive asks the registry for attr with everything resolvable on this
// step, minus the attributes currently in progress, as available inputs.
func (e *Entity) derive(attr string, hints map[string]string) (any, error) {
	merged := e.typ.hints
	if len(hints) > 0 {
		merged = maps.Clone(e.typ.hints)
		maps.Copy(merged, hints)
	}
	return e.reg.Infer(e, attr, e.available(), e.historyBacked(), merged)
}

// enter pushes attr onto the in-progress set. It reports false when attr
// is already being resolved, which cuts the cycle.
func (e *Entity) enter(attr string) bool {
	if slices.Contains(e.inProgress, attr) {
		slog.Debug("cyclic resolution avoided", "entity", e.id, "attr", attr, "chain", e.inProgress)
		return false
	}
	e.inProgress = append(e.inProgress, attr)
	return true
}

func (e *Entity) leave() {
	e.inProgress = e.inProgress[:len(e.inProgress)-1]
}

// available is the set of attributes that can be resolved on the current
// step, excluding those in progress.
func (e *Entity) available() registry.Set {
	s := registry.NewSet()
	if len(e.history) > 0 {
		for k := range e.history[len(e.history)-1].values {
			s.Add(k)
		}
	}
	for k := range e.step.Fields {
		s.Add(k)
	}
	for k := range e.statics {
		s.Add(k)
	}
	for k := range e.typ.statics {
		s.Add(k)
	}
	for k := range e.typ.index {
		s.Add(k)
	}
	for k := range e.windows {
		s.Add(k)
	}
	for k := range e.reg.Outputs() {
		s.Add(k)
	}
	for _, k := range e.inProgress {
		delete(s, k)
	}
	return s
}

// historyBacked is the set of attributes whose past values can be looked up.
func (e *Entity) historyBacked() registry.Set {
	s := registry.NewSet()
	for k := range e.known {
		s.Add(k)
	}
	for k := range e.windows {
		s.Add(k)
	}
	for k := range e.typ.retained {
		s.Add(k)
	}
	return s
}

// retains reports whether attr lives in snapshots, so a missing historical
// value is simply "not available".
func (e *Entity) retains(attr string) bool {
	if e.known.Has(attr) || e.typ.retained.Has(attr) {
		return true
	}
	if _, ok := e.typ.index[attr]; ok {
		return true
	}
	_, ok := e.typ.statics[attr]
	return ok
}

func (e *Entity) builtin(attr string) any {
	switch attr {
	case AttrClass:
		return e.typ.name
	case AttrTrackID:
		return e.id
	case AttrStartStep:
		return e.startStep
	case AttrTrackLength:
		return e.trackLength
	default:
		return nil
	}
}

func (e *Entity) transformError(attr, transform string, err error) error {
	return &registry.TransformExecutionError{Entity: e.id, Attr: attr, Transform: transform, Err: err}
}
