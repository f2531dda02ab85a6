package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarios(t *testing.T) {
	paths, err := FindScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "scenarios", "lobby.yaml"),
		filepath.Join("testdata", "scenarios", "loitering.yaml"),
	}, paths)
}

func TestFindScenarios_SkipsGolden(t *testing.T) {
	paths, err := FindScenarios("testdata")
	require.NoError(t, err)
	for _, p := range paths {
		assert.NotContains(t, p, "golden")
	}
	assert.Len(t, paths, 2)
}

func TestRunSuite(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("name: [unclosed"), 0o644))
	failing := filepath.Join(dir, "failing.yaml")
	require.NoError(t, os.WriteFile(failing, []byte(`
name: failing
description: "expects a person that never appears"
config: "entity: person: {}"
frames: [{step: 1}]
assertions: [{type: live_count, step: 1, count: 1}]
`), 0o644))

	paths := []string{
		filepath.Join("testdata", "scenarios", "loitering.yaml"),
		broken,
		failing,
	}
	result, err := RunSuite(context.Background(), paths)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalScenarios)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Failures, 2)
	assert.Contains(t, result.Failures[0].Error, "failed to load scenario")
	assert.Equal(t, "failing", result.Failures[1].Scenario)
	assert.NotEmpty(t, result.Failures[1].Details)
}

func TestRunSuite_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := RunSuite(ctx, []string{filepath.Join("testdata", "scenarios", "loitering.yaml")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, result.TotalScenarios)
}
