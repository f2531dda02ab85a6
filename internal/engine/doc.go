// Package engine drives tracked entities through a run, one step at a time.
//
// Each call to Step admits one frame of observations:
//
//  1. New track ids get a fresh entity of their class.
//  2. Every live entity is updated, observed entities with their
//     attributes and unobserved ones with an absence marker. Updates run
//     in parallel over a bounded worker pool; entities share nothing but
//     the sealed registry.
//  3. Queries are evaluated in declaration order over entities in track id
//     order, producing result rows.
//  4. The step is handed to the Recorder, if any.
//
// A step is atomic. If any entity update, query, or the recorder fails, or
// the context is cancelled before the step commits, every entity is
// restored to its state before the step and entities created by it are
// dropped. The engine is then ready to accept the same step again.
//
// Committed steps are stamped with a monotonic sequence number from the
// engine clock. Step must not be called concurrently; Run serializes
// frames submitted through Enqueue from any goroutine.
package engine
