package store

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/framestate/internal/engine"
	"github.com/roach88/framestate/internal/filter"
	"github.com/roach88/framestate/internal/query"
	"github.com/roach88/framestate/internal/registry"
	"github.com/roach88/framestate/internal/testutil"
	"github.com/roach88/framestate/internal/vobj"
)

func beginTestRun(t *testing.T, s *Store, id string) {
	t.Helper()
	require.NoError(t, s.BeginRun(context.Background(), Run{ID: id, ConfigHash: "cfg", Rate: 10}))
}

func frameAt(step int64) engine.Frame {
	return engine.Frame{
		Step: step,
		Rate: 10,
		Objects: []engine.Observation{
			{TrackID: "c1", Class: "car", Attrs: map[string]any{"speed": 60.0, "tlbr": []any{0.0, 0.0, 2.0, 1.5}}},
		},
	}
}

func TestBeginRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.BeginRun(ctx, Run{ID: "r1", ConfigHash: "a", Rate: 30, Label: "lobby"}))
	require.NoError(t, s.BeginRun(ctx, Run{ID: "r1", ConfigHash: "a", Rate: 30}), "same config is idempotent")
	assert.Error(t, s.BeginRun(ctx, Run{ID: "r1", ConfigHash: "b", Rate: 30}), "config changed")
	assert.Error(t, s.BeginRun(ctx, Run{ConfigHash: "a"}), "id required")

	runs, err := s.ReadRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Run{{ID: "r1", ConfigHash: "a", Rate: 30, Label: "lobby"}}, runs)
}

func TestWriteStep_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	beginTestRun(t, s, "r1")

	rows := []query.Row{
		{Query: "speeding", Entity: "c1", Step: 7, Values: map[string]any{"track_id": "c1", "coordinate": [2]float64{19, 20.5}}},
	}
	require.NoError(t, s.WriteStep(ctx, "r1", 1, frameAt(7), rows))
	require.NoError(t, s.WriteStep(ctx, "r1", 2, frameAt(8), nil))

	got, err := s.ReadResults(ctx, "r1", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].Seq)
	assert.Equal(t, int64(7), got[0].Step)
	assert.Equal(t, "speeding", got[0].Query)
	assert.Equal(t, map[string]any{"track_id": "c1", "coordinate": []any{19.0, 20.5}}, got[0].Values)
	assert.Len(t, got[0].Hash, 64)

	frames, err := s.ReadFrames(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, int64(7), frames[0].Step)
	assert.Equal(t, "c1", frames[0].Objects[0].TrackID)
	assert.Equal(t, 60.0, frames[0].Objects[0].Attrs["speed"])

	last, err := s.LastSeq(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)
}

func TestWriteStep_FrameIsCanonical(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	beginTestRun(t, s, "r1")
	require.NoError(t, s.WriteStep(ctx, "r1", 1, frameAt(3), nil))

	var stored string
	require.NoError(t, s.db.QueryRow("SELECT frame FROM steps WHERE run_id = 'r1'").Scan(&stored))
	assert.Equal(t,
		`{"objects":[{"attrs":{"speed":60,"tlbr":[0,0,2,1.5]},"class":"car","track_id":"c1"}],"rate":10,"step":3}`,
		stored)

	// Re-encoding what was read gives the same bytes
	frames, err := s.ReadFrames(ctx, "r1")
	require.NoError(t, err)
	again, err := canonicalFrame(frames[0])
	require.NoError(t, err)
	assert.Equal(t, stored, string(again))
}

func TestWriteStep_Atomic(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	beginTestRun(t, s, "r1")

	dup := []query.Row{
		{Query: "q", Entity: "c1", Step: 1, Values: map[string]any{}},
		{Query: "q", Entity: "c1", Step: 1, Values: map[string]any{}},
	}
	require.Error(t, s.WriteStep(ctx, "r1", 1, frameAt(1), dup))

	last, err := s.LastSeq(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), last, "failed row insert rolls back the step")

	require.NoError(t, s.WriteStep(ctx, "r1", 1, frameAt(1), dup[:1]))
}

func TestWriteStep_UnknownRun(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.WriteStep(context.Background(), "missing", 1, frameAt(1), nil))
}

func TestWriteStep_RejectsNonFiniteValues(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	beginTestRun(t, s, "r1")

	f := frameAt(1)
	f.Objects[0].Attrs["speed"] = math.NaN()
	assert.Error(t, s.WriteStep(ctx, "r1", 1, f, nil))
}

func TestReadResults_OrderAndFilter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	beginTestRun(t, s, "r1")

	require.NoError(t, s.WriteStep(ctx, "r1", 1, frameAt(1), []query.Row{
		{Query: "b", Entity: "z", Step: 1},
		{Query: "b", Entity: "a", Step: 1},
		{Query: "a", Entity: "z", Step: 1},
	}))
	require.NoError(t, s.WriteStep(ctx, "r1", 2, frameAt(2), []query.Row{
		{Query: "a", Entity: "a", Step: 2},
	}))

	all, err := s.ReadResults(ctx, "r1", "")
	require.NoError(t, err)
	var order []string
	for _, r := range all {
		order = append(order, r.Query+"/"+r.Entity)
	}
	assert.Equal(t, []string{"a/z", "b/a", "b/z", "a/a"}, order)

	onlyA, err := s.ReadResults(ctx, "r1", "a")
	require.NoError(t, err)
	assert.Len(t, onlyA, 2)

	none, err := s.ReadResults(ctx, "other", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRowHash_DependsOnIdentityAndValues(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	beginTestRun(t, s, "r1")

	require.NoError(t, s.WriteStep(ctx, "r1", 1, frameAt(1), []query.Row{
		{Query: "q", Entity: "a", Step: 1, Values: map[string]any{"v": 1}},
		{Query: "q", Entity: "b", Step: 1, Values: map[string]any{"v": 1}},
	}))
	require.NoError(t, s.WriteStep(ctx, "r1", 2, frameAt(2), []query.Row{
		{Query: "q", Entity: "a", Step: 2, Values: map[string]any{"v": 1.0}},
	}))

	rows, err := s.ReadResults(ctx, "r1", "q")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.NotEqual(t, rows[0].Hash, rows[1].Hash, "entity is part of the hash")
	assert.NotEqual(t, rows[0].Hash, rows[2].Hash, "step is part of the hash")

	want, err := RowHash(query.Row{Query: "q", Entity: "a", Step: 2, Values: map[string]any{"v": 1}})
	require.NoError(t, err)
	assert.Equal(t, want, rows[2].Hash, "ints and floats of equal value hash alike")

	empty, err := RowHash(query.Row{Query: "q", Entity: "a", Step: 2})
	require.NoError(t, err)
	withEmpty, err := RowHash(query.Row{Query: "q", Entity: "a", Step: 2, Values: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, empty, withEmpty)
}

func TestStore_RecordsEngineRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	speeding := &query.Query{
		Name:   "speeding",
		Class:  "car",
		Filter: []query.Clause{{Attr: "speed", Pred: query.Test(filter.Greater(50))}},
		Select: []string{vobj.AttrTrackID, "speed"},
	}
	e, err := engine.New(registry.New(), nil, []*query.Query{speeding},
		engine.WithRecorder(s),
		engine.WithRunIDGenerator(testutil.NewFixedRunID("run-store")),
		engine.WithClock(testutil.NewDeterministicClock()),
	)
	require.NoError(t, err)
	require.NoError(t, s.BeginRun(ctx, Run{ID: e.RunID(), ConfigHash: ConfigHash([]byte("cfg")), Rate: 10}))

	speeds := []float64{40, 60, 70}
	for i, v := range speeds {
		_, err := e.Step(ctx, engine.Frame{
			Step:    int64(i + 1),
			Rate:    10,
			Objects: []engine.Observation{{TrackID: "c1", Class: "car", Attrs: map[string]any{"speed": v}}},
		})
		require.NoError(t, err)
	}

	rows, err := s.ReadResults(ctx, "run-store", "speeding")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0].Seq)
	assert.Equal(t, map[string]any{"track_id": "c1", "speed": 60.0}, rows[0].Values)
	assert.Equal(t, int64(3), rows[1].Step)

	last, err := s.LastSeq(ctx, "run-store")
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}
