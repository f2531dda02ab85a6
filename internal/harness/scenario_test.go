package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "one frame"
config: |
  entity: person: {}
frames:
  - step: 1
    objects: [{track_id: p1, class: person}]
assertions:
  - {type: live_count, step: 1, count: 1}
`

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Frames, 1)
	assert.Equal(t, int64(1), s.Frames[0].Step)
	require.Len(t, s.Frames[0].Objects, 1)
	assert.Equal(t, "p1", s.Frames[0].Objects[0].TrackID)
	assert.Equal(t, "person", s.Frames[0].Objects[0].Class)
	assert.Equal(t, AssertLiveCount, s.Assertions[0].Type)
}

func TestParseScenario_FrameAttrs(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: attrs
description: "attrs and fields"
config: "entity: car: {}"
frames:
  - step: 4
    rate: 12.5
    fields: {camera: north}
    objects:
      - {track_id: c1, class: car, attrs: {tlbr: [0, 1, 2.5, 3]}}
assertions:
  - {type: live_count, step: 4, count: 1}
`))
	require.NoError(t, err)

	f := s.Frames[0]
	assert.Equal(t, 12.5, f.Rate)
	assert.Equal(t, map[string]any{"camera": "north"}, f.Fields)
	assert.Equal(t, []any{0, 1, 2.5, 3}, f.Objects[0].Attrs["tlbr"])
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "assertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: `{description: d, config: "x: 1", frames: [{step: 1}], assertions: [{type: live_count, step: 1}]}`,
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: `{name: n, config: "x: 1", frames: [{step: 1}], assertions: [{type: live_count, step: 1}]}`,
			want: "description is required",
		},
		{
			name: "no config",
			yaml: `{name: n, description: d, frames: [{step: 1}], assertions: [{type: live_count, step: 1}]}`,
			want: "exactly one of config and specs",
		},
		{
			name: "config and specs",
			yaml: `{name: n, description: d, config: "x: 1", specs: dir, frames: [{step: 1}], assertions: [{type: live_count, step: 1}]}`,
			want: "exactly one of config and specs",
		},
		{
			name: "no frames",
			yaml: `{name: n, description: d, config: "x: 1", assertions: [{type: live_count, step: 1}]}`,
			want: "frames list is required",
		},
		{
			name: "no assertions",
			yaml: `{name: n, description: d, config: "x: 1", frames: [{step: 1}]}`,
			want: "assertions list is required",
		},
		{
			name: "repeated rejection",
			yaml: `{name: n, description: d, config: "x: 1", frames: [{step: 1, repeat: 2, reject: STEP_ORDER}], assertions: [{type: live_count, step: 1}]}`,
			want: "cannot repeat",
		},
		{
			name: "unknown assertion",
			yaml: `{name: n, description: d, config: "x: 1", frames: [{step: 1}], assertions: [{type: trace_contains}]}`,
			want: "unknown assertion type",
		},
		{
			name: "first_row without step",
			yaml: `{name: n, description: d, config: "x: 1", frames: [{step: 1}], assertions: [{type: first_row, query: q, entity: e}]}`,
			want: "first_row",
		},
		{
			name: "rejected without code",
			yaml: `{name: n, description: d, config: "x: 1", frames: [{step: 1}], assertions: [{type: rejected, step: 1}]}`,
			want: "step and code",
		},
		{
			name: "empty rows_contain",
			yaml: `{name: n, description: d, config: "x: 1", frames: [{step: 1}], assertions: [{type: rows_contain, query: q}]}`,
			want: "needs values",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_ResolvesSpecs(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "lobby.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "specs", "lobby"), s.Specs)
}

func TestLoadScenario_MissingSpecs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: n
description: d
specs: nowhere
frames: [{step: 1}]
assertions: [{type: live_count, step: 1}]
`), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "specs directory not found")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestScenario_Expand(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: n
description: d
config: "x: 1"
frames:
  - {step: 3, repeat: 3}
  - {step: 10}
assertions: [{type: live_count, step: 1}]
`))
	require.NoError(t, err)

	var steps []int64
	for _, f := range s.expand() {
		steps = append(steps, f.Step)
	}
	assert.Equal(t, []int64{3, 4, 5, 10}, steps)
}
