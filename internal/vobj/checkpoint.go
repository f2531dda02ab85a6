package vobj

import (
	"maps"

	"github.com/roach88/framestate/internal/registry"
)

// Checkpoint captures an entity's state between steps so that a step can
// be discarded as a whole.
type Checkpoint struct {
	step        Step
	trackLength int
	historyLen  int
	statics     map[string]any
	windows     map[string]*window
	known       registry.Set
}

// Checkpoint captures the current state. Take it before Update.
func (e *Entity) Checkpoint() Checkpoint {
	windows := make(map[string]*window, len(e.windows))
	for name, w := range e.windows {
		windows[name] = w.clone()
	}
	return Checkpoint{
		step:        e.step,
		trackLength: e.trackLength,
		historyLen:  len(e.history),
		statics:     maps.Clone(e.statics),
		windows:     windows,
		known:       maps.Clone(e.known),
	}
}

// Restore discards everything written since cp was taken, including the
// slots appended by Update. A checkpoint can be restored once.
func (e *Entity) Restore(cp Checkpoint) {
	clear(e.history[cp.historyLen:])
	e.history = e.history[:cp.historyLen]
	e.step = cp.step
	e.trackLength = cp.trackLength
	e.statics = cp.statics
	e.windows = cp.windows
	e.known = cp.known
	e.inProgress = e.inProgress[:0]
}
