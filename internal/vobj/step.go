package vobj

// Step is the read-only context of one discrete update (one video frame).
type Step struct {
	// ID is the monotonic step counter.
	ID int64

	// Rate is the number of steps per second, used to turn durations into
	// step counts.
	Rate float64

	// Fields are the step's declared output fields, visible to every entity
	// (e.g. the raw frame buffer).
	Fields map[string]any
}

// Steps converts a duration in seconds into a step count at s.Rate.
func (s Step) Steps(seconds float64) float64 {
	return seconds * s.Rate
}
