package testutil

// FixedRunID names every run the same. Scenarios set it so stored rows and
// golden traces do not depend on the UUIDv7 clock.
type FixedRunID struct {
	id string
}

// NewFixedRunID returns a generator for id, or "test-run" if id is empty.
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "test-run"
	}
	return &FixedRunID{id: id}
}

// Generate implements engine.RunIDGenerator.
func (g *FixedRunID) Generate() string {
	return g.id
}
