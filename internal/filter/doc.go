// Package filter turns instantaneous conditions into temporal predicates.
//
// An Accumulator counts, per entity, how many consecutive steps a condition
// has held. The count is an ordinary snapshot attribute of the entity
// (<name>_duration for Continuing, <name>_time_periods for Lasting), so it
// has history like any other attribute and needs no storage of its own.
//
// The accumulator fires once the count reaches seconds × rate steps. A step
// on which the condition is false stores no count, which restarts the count
// at 1 the next time the condition holds. The backward scan never crosses an
// absence: a lost and re-acquired entity starts from 1.
//
// Cumulative accumulators skip steps with no count instead of restarting,
// so they measure total time within the current track.
package filter
