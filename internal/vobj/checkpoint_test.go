package vobj

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpoint_RestoreDiscardsStep(t *testing.T) {
	typ := NewType("person").
		Declare("echo", func(e *Entity) (any, error) { return e.GetV("x", -1) }).
		Window("echo", 3).
		Static("color", func(*Entity) (any, error) { return "red", nil })
	e := newEntity(t, typ, nil)
	update(t, e, 0, map[string]any{"x": 1})
	update(t, e, 1, map[string]any{"x": 2})
	update(t, e, 2, map[string]any{"x": 3})

	cp := e.Checkpoint()

	update(t, e, 3, map[string]any{"x": 4, "fresh": true})
	_, err := e.GetV("color", -1)
	require.NoError(t, err)
	e.Record("derived", 42)

	e.Restore(cp)

	assert.Equal(t, 3, e.HistoryLen())
	assert.Equal(t, 3, e.TrackLength())
	assert.Equal(t, int64(2), e.Step().ID)
	assert.Equal(t, map[string]any{"x": 3}, e.Snapshot(-1))

	values, _ := e.Window("echo")
	assert.Equal(t, []any{1, 2, 3}, values, "evicted entry is back")

	_, err = e.GetV("fresh", -2)
	assert.True(t, IsNonTemporalHistory(err), "keys of the discarded step are forgotten")

	// The step can be replayed
	update(t, e, 3, map[string]any{"x": 5})
	v, err := e.GetV("echo", -1)
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}
