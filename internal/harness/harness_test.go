package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name))
	require.NoError(t, err)
	return s
}

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return s
}

func TestRun_Loitering(t *testing.T) {
	result, err := Run(loadTestScenario(t, "loitering.yaml"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Rows, 3)
	for i, r := range result.Rows {
		assert.Equal(t, int64(i+3), r.Step)
		assert.Equal(t, "p1", r.Entity)
		assert.Equal(t, map[string]any{"track_id": "p1"}, r.Values)
	}
	assert.Equal(t, map[int64]string{6: "DUPLICATE_TRACK"}, result.Rejected)
}

func TestRun_SpecsDirectory(t *testing.T) {
	result, err := Run(loadTestScenario(t, "lobby.yaml"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	var retired []string
	for _, ev := range result.Trace {
		if ev.Type == EventStep && ev.Step == 4 {
			retired = ev.Retired
		}
	}
	assert.Equal(t, []string{"p2"}, retired)
}

func TestRun_IsDeterministic(t *testing.T) {
	s := loadTestScenario(t, "loitering.yaml")

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)
	assert.Equal(t, first.Trace, second.Trace)
}

func TestRun_UnexpectedRejection(t *testing.T) {
	result, err := Run(mustParse(t, `
name: out_of_order
description: "step 1 after step 2"
config: "entity: person: {}"
frames:
  - {step: 2, objects: [{track_id: p1, class: person}]}
  - {step: 1, objects: [{track_id: p1, class: person}]}
assertions:
  - {type: live_count, step: 2, count: 1}
`))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "step 1: unexpected error")
	assert.Equal(t, "STEP_ORDER", result.Rejected[1])
}

func TestRun_WrongRejectionCode(t *testing.T) {
	result, err := Run(mustParse(t, `
name: wrong_code
description: "class change reported as duplicate"
config: "entity: person: {}"
frames:
  - {step: 1, objects: [{track_id: p1, class: person}]}
  - {step: 2, objects: [{track_id: p1, class: car}], reject: DUPLICATE_TRACK}
assertions:
  - {type: rejected, step: 2, code: CLASS_CHANGED}
`))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "rejected with CLASS_CHANGED, expected DUPLICATE_TRACK")
}

func TestRun_ExpectedRejectionCommitted(t *testing.T) {
	result, err := Run(mustParse(t, `
name: no_rejection
description: "a valid frame marked as rejected"
config: "entity: person: {}"
frames:
  - {step: 1, objects: [{track_id: p1, class: person}], reject: STEP_ORDER}
assertions:
  - {type: live_count, step: 1, count: 1}
`))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected rejection STEP_ORDER")
}

func TestRun_EntityQuota(t *testing.T) {
	result, err := Run(mustParse(t, `
name: quota
description: "a second person exceeds the quota"
config: |
  settings: max_entities: 1
  entity: person: {}
frames:
  - {step: 1, objects: [{track_id: p1, class: person}]}
  - {step: 2, objects: [{track_id: p1, class: person}, {track_id: p2, class: person}], reject: ENTITY_QUOTA}
  - {step: 3, objects: [{track_id: p1, class: person}]}
assertions:
  - {type: rejected, step: 2, code: ENTITY_QUOTA}
  - {type: live_count, step: 3, count: 1}
`))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_FailedAssertion(t *testing.T) {
	s := loadTestScenario(t, "loitering.yaml")
	s.Assertions = []Assertion{{Type: AssertFirstRow, Query: "loitering", Entity: "p1", Step: 2}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "first row at step 3")
}

func TestRun_ConfigErrors(t *testing.T) {
	_, err := Run(mustParse(t, `
name: bad_config
description: "query on a missing region"
config: |
  query: q: { filter: a: within: ["nowhere"], select: ["a"] }
frames: [{step: 1}]
assertions: [{type: live_count, step: 1}]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile config")
}

func TestRun_ValidationErrors(t *testing.T) {
	_, err := Run(mustParse(t, `
name: unknown_class
description: "query on a class no entity declares"
config: |
  query: q: { class: "ghost", select: ["track_id"] }
frames: [{step: 1}]
assertions: [{type: live_count, step: 1}]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E110")
}
