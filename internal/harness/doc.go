// Package harness runs conformance scenarios against the frame engine.
//
// A scenario pairs a config with a sequence of frames and asserts on the
// rows the engine wrote to its run log.
//
// # Scenario Format
//
//	name: loitering_at_door
//	description: "A person standing in the door region is reported"
//	config: |
//	  settings: rate: 10
//	  region: door: [[0, 0], [100, 0], [100, 100], [0, 100]]
//	  entity: person: {}
//	  query: loitering: {
//	    class: "person"
//	    filter: bottom_center: { lasting: within: ["door"], seconds: 0.3 }
//	    select: ["track_id"]
//	  }
//	frames:
//	  - step: 1
//	    repeat: 5
//	    objects:
//	      - {track_id: p1, class: person, attrs: {tlbr: [10, 10, 20, 40]}}
//	  - step: 6
//	    objects: [{track_id: p1, class: person}, {track_id: p1, class: person}]
//	    reject: DUPLICATE_TRACK
//	assertions:
//	  - {type: first_row, query: loitering, entity: p1, step: 3}
//	  - {type: row_count, query: loitering, count: 3}
//
// Instead of inline config a scenario may name a CUE package directory
// with specs, resolved relative to the scenario file.
//
// # Assertion Types
//
//   - row_count: exact number of rows for a query, entity or step
//   - rows_contain: some row carries the given values (subset match)
//   - first_row: the step at which an entity first matched
//   - no_rows: nothing matched
//   - live_count: live entities after a committed step
//   - rejected: a frame failed with the given code
//
// # Deterministic Testing
//
// Every run uses a fixed run id, a deterministic clock and a fresh
// in-memory SQLite run log, so traces are stable for golden comparison
// with RunWithGolden.
package harness
