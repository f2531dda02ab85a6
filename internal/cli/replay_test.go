package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/framestate/internal/store"
)

func TestReplay_Deterministic(t *testing.T) {
	db, summary := recordRun(t)

	out, err := executeCommand(t, nil, "--format", "json", "replay", "testdata/config", "--db", db)
	require.NoError(t, err)

	var result ReplayResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.AllDeterministic)
	require.Len(t, result.Runs, 1)

	rr := result.Runs[0]
	assert.Equal(t, summary.RunID, rr.RunID)
	assert.Equal(t, 5, rr.Steps)
	assert.Equal(t, 3, rr.Rows)
	assert.False(t, rr.ConfigChanged)
	assert.True(t, rr.Deterministic)
	assert.Empty(t, rr.Mismatch)
}

func TestReplay_Text(t *testing.T) {
	db, summary := recordRun(t)

	out, err := executeCommand(t, nil, "replay", "testdata/config", "--db", db, "--run", summary.RunID)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+summary.RunID+": 5 step(s), 3 row(s)")
	assert.Contains(t, out, "All 1 run(s) replayed deterministically.")
}

func TestReplay_TamperedRow(t *testing.T) {
	db, _ := recordRun(t)

	st, err := store.Open(db)
	require.NoError(t, err)
	_, err = st.DB().Exec("UPDATE results SET row_hash = 'tampered' WHERE step = 4")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := executeCommand(t, nil, "--format", "json", "replay", "testdata/config", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result ReplayResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	assert.False(t, result.AllDeterministic)
	require.Len(t, result.Runs, 1)
	assert.Contains(t, result.Runs[0].Mismatch, "seq 4")
}

func TestReplay_ConfigChanged(t *testing.T) {
	db, _ := recordRun(t)

	// A shorter window reports rows one step earlier
	src, err := os.ReadFile("testdata/config/door.cue")
	require.NoError(t, err)
	dir := t.TempDir()
	changed := strings.Replace(string(src), "seconds: 0.3", "seconds: 0.2", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "door.cue"), []byte(changed), 0o644))

	out, err := executeCommand(t, nil, "--format", "json", "replay", dir, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result ReplayResult
	decodeResponse(t, out, &result)
	require.Len(t, result.Runs, 1)
	assert.True(t, result.Runs[0].ConfigChanged)
	assert.False(t, result.Runs[0].Deterministic)
}

func TestReplay_UnknownRun(t *testing.T) {
	db, _ := recordRun(t)

	_, err := executeCommand(t, nil, "replay", "testdata/config", "--db", db, "--run", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompareRows(t *testing.T) {
	a := store.StoredRow{Seq: 1, Hash: "h1"}
	b := store.StoredRow{Seq: 2, Hash: "h2"}

	assert.Empty(t, compareRows([]store.StoredRow{a, b}, []store.StoredRow{a, b}))
	assert.Equal(t, "recorded 2 row(s), replayed 1", compareRows([]store.StoredRow{a, b}, []store.StoredRow{a}))
	assert.Contains(t, compareRows([]store.StoredRow{a}, []store.StoredRow{b}), "seq 1")
}
