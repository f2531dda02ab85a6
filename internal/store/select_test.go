package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/framestate/internal/query"
)

func TestResultFilter_Compile(t *testing.T) {
	sql, params, err := ResultFilter{RunID: "r1", Entity: "p1", FromStep: 3, ToStep: 5}.compile()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT seq, step, query, entity, row_values, row_hash FROM results"+
			" WHERE run_id = ? AND entity = ? AND step >= ? AND step <= ?"+
			" ORDER BY seq ASC, query COLLATE BINARY ASC, entity COLLATE BINARY ASC",
		sql)
	assert.Equal(t, []any{"r1", "p1", int64(3), int64(5)}, params)
}

func TestResultFilter_CompileParameterizesValues(t *testing.T) {
	sql, params, err := ResultFilter{RunID: "r1", Query: "x' OR '1'='1"}.compile()
	require.NoError(t, err)
	assert.NotContains(t, sql, "OR '1'")
	assert.Equal(t, []any{"r1", "x' OR '1'='1"}, params)
}

func TestResultFilter_Invalid(t *testing.T) {
	_, _, err := ResultFilter{}.compile()
	assert.Error(t, err, "run id required")

	_, _, err = ResultFilter{RunID: "r1", FromStep: 5, ToStep: 3}.compile()
	assert.Error(t, err)
}

func TestSelectResults(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	beginTestRun(t, s, "r1")

	for seq := int64(1); seq <= 4; seq++ {
		step := seq + 6
		rows := []query.Row{
			{Query: "speeding", Entity: "c1", Step: step, Values: map[string]any{"track_id": "c1"}},
			{Query: "speeding", Entity: "c2", Step: step, Values: map[string]any{"track_id": "c2"}},
		}
		require.NoError(t, s.WriteStep(ctx, "r1", seq, frameAt(step), rows))
	}

	got, err := s.SelectResults(ctx, ResultFilter{RunID: "r1", Entity: "c2", FromStep: 8, ToStep: 9})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(8), got[0].Step)
	assert.Equal(t, int64(9), got[1].Step)
	for _, r := range got {
		assert.Equal(t, "c2", r.Entity)
	}

	got, err = s.SelectResults(ctx, ResultFilter{RunID: "r1", FromStep: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].Entity)
	assert.Equal(t, "c2", got[1].Entity)

	got, err = s.SelectResults(ctx, ResultFilter{RunID: "other"})
	require.NoError(t, err)
	assert.Empty(t, got)
}
