// Package vobj implements the per-entity temporal attribute store.
//
// An Entity owns one tracked identity's history: one slot per step since the
// entity was registered, each holding the raw observation for that step plus
// every attribute derived during that step, or an absence marker when the
// tracker did not see the entity. Attributes declared with a window keep
// their last K values in a ring buffer instead of the snapshot; static
// attributes are computed once and never expire.
//
// # Resolution order
//
// GetV(attr, -1) asks for the current step. In order, the first match wins:
//
//  1. static attribute table
//  2. value already in the current slot
//  3. step context field
//  4. windowed buffer written on this step
//  5. declared attribute (forces its computation)
//  6. derived-function registry, with in-progress attributes removed from
//     the available set, then the built-in identity attributes
//
// GetV(attr, offset) with offset < -1 never computes anything. It returns the
// value stored in that step's slot, else the windowed buffer entry, else nil
// for attributes the entity keeps in its snapshots. Asking for history of an
// attribute that is neither windowed nor ever stored is a programming error
// reported as NonTemporalHistoryError.
//
// Cyclic resolution is cut by the in-progress set: an attribute requested
// again while it is being resolved resolves to nil for that call chain.
//
// An Entity is not safe for concurrent use. Within a step each entity is
// owned by exactly one goroutine.
package vobj
