// Package geom provides the pure geometric predicates used to turn a
// point-valued attribute into a boolean condition.
//
// Regions are simple polygons given as an ordered ring of 2-D points. A
// region with zero or negative enclosed area is a configuration error and
// is rejected when the predicate is built, before any step is processed.
//
// Points on a region boundary count as inside.
package geom
