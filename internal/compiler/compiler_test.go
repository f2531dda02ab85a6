package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/framestate/internal/functions"
	"github.com/roach88/framestate/internal/geom"
	"github.com/roach88/framestate/internal/registry"
	"github.com/roach88/framestate/internal/vobj"
)

const loiteringConfig = `
settings: {
	rate:         10
	workers:      4
	retire_after: 50
}

region: roi: [[0, 0], [100, 0], [100, 100], [0, 100]]

entity: person: {
	declare: ["bbox_velocity"]
	static: site: "north"
	retain: ["in_roi_time_periods"]
	hint: coordinate: "coordinate_center"
}

query: loitering: {
	class: "person"
	filter: {
		bottom_center: {
			lasting: within: ["roi"]
			seconds: 0.3
			name:    "in_roi"
		}
		class: not_equals: "car"
	}
	select: ["track_id", "site", "in_roi_time_periods"]
}
`

func compileValue(t *testing.T, src string) cue.Value {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return v
}

// =============================================================================
// Settings
// =============================================================================

func TestCompileSettings(t *testing.T) {
	v := compileValue(t, `settings: { rate: 12.5, workers: 3, max_entities: 100 }`)
	s, err := CompileSettings(v.LookupPath(cue.ParsePath("settings")))
	require.NoError(t, err)
	assert.Equal(t, Settings{Rate: 12.5, Workers: 3, MaxEntities: 100}, s)

	s, err = CompileSettings(v.LookupPath(cue.ParsePath("missing")))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestCompileSettings_Invalid(t *testing.T) {
	for name, src := range map[string]string{
		"zero rate":        `settings: rate: 0`,
		"negative workers": `settings: workers: -1`,
		"fractional":       `settings: retire_after: 1.5`,
	} {
		t.Run(name, func(t *testing.T) {
			v := compileValue(t, src)
			_, err := CompileSettings(v.LookupPath(cue.ParsePath("settings")))
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
		})
	}
}

func TestSettings_EngineOptions(t *testing.T) {
	assert.Empty(t, DefaultSettings().EngineOptions())
	assert.Len(t, Settings{Rate: 10, Workers: 2}.EngineOptions(), 2)
	assert.Len(t, Settings{Rate: 10, Workers: 2, MaxEntities: 5, RetireAfter: 3}.EngineOptions(), 4)
}

// =============================================================================
// Regions
// =============================================================================

func TestCompileRegions(t *testing.T) {
	v := compileValue(t, `region: {
		door: [[0, 0], [2, 0], [2, 2], [0, 2]]
		lane: [[10, 10], [20.5, 10], [15, 30]]
	}`)
	regions, err := CompileRegions(v.LookupPath(cue.ParsePath("region")))
	require.NoError(t, err)
	require.Len(t, regions, 2)
	assert.Equal(t, geom.Polygon{{X: 10, Y: 10}, {X: 20.5, Y: 10}, {X: 15, Y: 30}}, regions["lane"])
	assert.True(t, regions["door"].Contains(geom.Point{X: 1, Y: 1}))
}

func TestCompileRegions_Degenerate(t *testing.T) {
	v := compileValue(t, `region: line: [[0, 0], [1, 1], [2, 2]]`)
	_, err := CompileRegions(v.LookupPath(cue.ParsePath("region")))
	require.Error(t, err)
	assert.True(t, geom.IsRegionConfigurationError(err))

	v = compileValue(t, `region: bad: [[0, 0, 1], [1, 1], [2, 0]]`)
	_, err = CompileRegions(v.LookupPath(cue.ParsePath("region")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vertex must be [x, y]")
}

// =============================================================================
// Entities
// =============================================================================

func TestCompileEntity(t *testing.T) {
	v := compileValue(t, `entity: person: {
		declare: ["keypoints", "bbox_velocity"]
		window: keypoints: 30
		static: { site: "north", floor: 2 }
		retain: ["in_roi_duration"]
		hint: coordinate: "coordinate_center"
	}`)
	spec, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.person")))
	require.NoError(t, err)

	assert.Equal(t, "person", spec.Name)
	assert.Equal(t, []string{"keypoints", "bbox_velocity"}, spec.Declare)
	assert.Equal(t, map[string]int{"keypoints": 30}, spec.Windows)
	assert.Equal(t, map[string]any{"site": "north", "floor": int64(2)}, spec.Static)
	assert.Equal(t, []string{"in_roi_duration"}, spec.Retain)
	assert.Equal(t, map[string]string{"coordinate": "coordinate_center"}, spec.Hints)

	typ, err := spec.Type()
	require.NoError(t, err)
	assert.Equal(t, []string{"keypoints", "bbox_velocity"}, typ.Declared())
	assert.Equal(t, 30, typ.WindowCapacity("keypoints"))
}

func TestCompileEntity_Invalid(t *testing.T) {
	for name, src := range map[string]string{
		"zero window":     `entity: e: window: w: 0`,
		"declare not str": `entity: e: declare: [1]`,
		"static conflict": `entity: e: { declare: ["a"], static: a: 1 }`,
		"hint not string": `entity: e: hint: a: 3`,
	} {
		t.Run(name, func(t *testing.T) {
			v := compileValue(t, src)
			_, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.e")))
			assert.Error(t, err)
		})
	}
}

// =============================================================================
// Queries
// =============================================================================

func TestCompileQuery_Loitering(t *testing.T) {
	cfg, errs := CompileSource("loitering.cue", loiteringConfig, LoadModeCollectAll)
	require.Empty(t, errs)
	require.Len(t, cfg.Queries, 1)

	q := cfg.Queries[0]
	assert.Equal(t, "loitering", q.Name)
	assert.Equal(t, "person", q.Class)
	require.Len(t, q.Filter, 2)
	assert.Equal(t, "bottom_center", q.Filter[0].Attr)
	assert.Equal(t, "class", q.Filter[1].Attr)

	reg := registry.New()
	require.NoError(t, functions.Register(reg))
	types, err := cfg.Types()
	require.NoError(t, err)
	e, err := vobj.New(types[0], reg, vobj.Step{ID: 0, Rate: cfg.Settings.Rate}, "p-1")
	require.NoError(t, err)

	var fired []int64
	for i := int64(0); i < 4; i++ {
		require.NoError(t, e.Update(vobj.Step{ID: i, Rate: cfg.Settings.Rate},
			map[string]any{functions.AttrTLBR: []float64{10, 10, 20, 30}}))
		row, ok, err := q.Evaluate(e)
		require.NoError(t, err)
		if ok {
			fired = append(fired, i)
			assert.Equal(t, "north", row.Values["site"])
		}
	}
	assert.Equal(t, []int64{2, 3}, fired)
}

func TestCompileQuery_Conditions(t *testing.T) {
	v := compileValue(t, `query: q: {
		filter: {
			speed: gt: 1
			depth: lt: 2.5
			label: equals: "x"
			held: {
				continuing: equals: true
				seconds:    1
				cumulative: true
			}
		}
		select: ["speed"]
	}`)
	q, err := CompileQuery(v.LookupPath(cue.ParsePath("query.q")), nil)
	require.NoError(t, err)

	require.Len(t, q.Filter, 4)
	assert.Equal(t, []string{"speed", "depth", "label", "held"},
		[]string{q.Filter[0].Attr, q.Filter[1].Attr, q.Filter[2].Attr, q.Filter[3].Attr})
	assert.Equal(t, "", q.Class, "no class applies to every entity")
}

func TestCompileQuery_Invalid(t *testing.T) {
	regions := map[string]geom.Polygon{"roi": {{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}}
	for name, src := range map[string]string{
		"no select":           `query: q: filter: a: equals: 1`,
		"unknown region":      `query: q: { filter: a: within: ["nowhere"], select: ["a"] }`,
		"two conditions":      `query: q: { filter: a: { gt: 1, lt: 2 }, select: ["a"] }`,
		"no condition":        `query: q: { filter: a: { seconds: 2 }, select: ["a"] }`,
		"missing seconds":     `query: q: { filter: a: lasting: gt: 1, select: ["a"] }`,
		"negative seconds":    `query: q: { filter: a: { lasting: gt: 1, seconds: -1 }, select: ["a"] }`,
		"empty select":        `query: q: { select: [] }`,
		"non-numeric bound":   `query: q: { filter: a: gt: "x", select: ["a"] }`,
		"cumulative non-bool": `query: q: { filter: a: { continuing: gt: 1, seconds: 1, cumulative: "yes" }, select: ["a"] }`,
	} {
		t.Run(name, func(t *testing.T) {
			v := compileValue(t, src)
			_, err := CompileQuery(v.LookupPath(cue.ParsePath("query.q")), regions)
			assert.Error(t, err)
		})
	}
}

// =============================================================================
// Loading and validation
// =============================================================================

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.cue"),
		[]byte("package framestate\n"+loiteringConfig), 0o644))

	cfg, errs := LoadDir(dir, LoadModeFailFast)
	require.Empty(t, errs)
	assert.Equal(t, 1, cfg.FileCount)
	assert.Equal(t, 10.0, cfg.Settings.Rate)
	assert.Len(t, cfg.Regions, 1)
	assert.Len(t, cfg.Entities, 1)
	assert.Len(t, cfg.Queries, 1)
}

func TestReadSources(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.cue"), []byte("b: 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cue"), []byte("a: 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	src, err := ReadSources(dir)
	require.NoError(t, err)
	assert.Equal(t, "-- a.cue --\na: 1\n-- b.cue --\nb: 1\n", string(src))
}

func TestLoadDir_Errors(t *testing.T) {
	_, errs := LoadDir(filepath.Join(t.TempDir(), "missing"), LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), ErrCodeNotFound)

	_, errs = LoadDir(t.TempDir(), LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), ErrCodeNoFiles)
}

func TestCompile_CollectAll(t *testing.T) {
	src := `
region: flat: [[0, 0], [1, 0], [2, 0]]
entity: bad: window: w: -1
query: q1: { filter: a: within: ["flat"], select: ["a"] }
query: q2: { select: ["b"] }
`
	cfg, errs := CompileSource("bad.cue", src, LoadModeCollectAll)
	require.Len(t, errs, 3)

	var codes []string
	for _, err := range errs {
		var le *LoadError
		require.ErrorAs(t, err, &le)
		codes = append(codes, le.Code)
	}
	assert.Equal(t, []string{ErrCodeRegion, ErrCodeEntity, ErrCodeQuery}, codes)
	require.Len(t, cfg.Queries, 1, "valid queries still compile")
	assert.Equal(t, "q2", cfg.Queries[0].Name)

	_, errs = CompileSource("bad.cue", src, LoadModeFailFast)
	assert.Len(t, errs, 1)
}

func TestCompile_Empty(t *testing.T) {
	_, errs := CompileSource("empty.cue", `settings: rate: 5`, LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "no entities or queries")
}

func TestValidate(t *testing.T) {
	src := `
entity: person: {
	declare: ["bbox_velocity", "mystery"]
	window: keypoints: 10
	hint: {
		coordinate:    "nope"
		bottom_center: "coordinate_center"
	}
}
query: cars: { class: "car", select: ["track_id"] }
`
	cfg, errs := CompileSource("validate.cue", src, LoadModeCollectAll)
	require.Empty(t, errs)

	reg := registry.New()
	require.NoError(t, functions.Register(reg))

	var codes []string
	for _, ve := range Validate(cfg, reg) {
		codes = append(codes, ve.Code)
	}
	assert.ElementsMatch(t, []string{
		ErrUnknownDerived, ErrWindowUndeclared, ErrUnknownHint, ErrHintWrongOutput, ErrUnknownClass,
	}, codes)

	cfg, errs = CompileSource("ok.cue", loiteringConfig, LoadModeCollectAll)
	require.Empty(t, errs)
	assert.Empty(t, Validate(cfg, reg))
}
