package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/framestate/internal/engine"
)

// Settings are run-wide engine parameters.
//
//	settings: {
//		rate:         30
//		workers:      8
//		max_entities: 500
//		retire_after: 90
//	}
type Settings struct {
	Rate        float64
	Workers     int
	MaxEntities int
	RetireAfter int
}

// DefaultSettings leaves every limit off and the rate to the engine.
func DefaultSettings() Settings {
	return Settings{}
}

// CompileSettings compiles the settings struct. Missing fields keep their
// defaults.
func CompileSettings(v cue.Value) (Settings, error) {
	s := DefaultSettings()
	if !v.Exists() {
		return s, nil
	}
	if err := v.Err(); err != nil {
		return s, formatCUEError("settings", err)
	}

	if r, ok := lookup(v, "rate"); ok {
		rate, err := r.Float64()
		if err != nil {
			return s, formatCUEError("settings.rate", err)
		}
		if rate <= 0 {
			return s, compileErr("settings.rate", r.Pos(), "rate must be positive, got %g", rate)
		}
		s.Rate = rate
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"workers", &s.Workers},
		{"max_entities", &s.MaxEntities},
		{"retire_after", &s.RetireAfter},
	}
	for _, f := range ints {
		fv, ok := lookup(v, f.name)
		if !ok {
			continue
		}
		n, err := fv.Int64()
		if err != nil {
			return s, formatCUEError("settings."+f.name, err)
		}
		if n < 0 {
			return s, compileErr("settings."+f.name, fv.Pos(), "must not be negative, got %d", n)
		}
		*f.dst = int(n)
	}
	return s, nil
}

// EngineOptions converts the settings into engine options. Zero values are
// left to the engine defaults.
func (s Settings) EngineOptions() []engine.Option {
	var opts []engine.Option
	if s.Rate > 0 {
		opts = append(opts, engine.WithRate(s.Rate))
	}
	if s.Workers > 0 {
		opts = append(opts, engine.WithWorkers(s.Workers))
	}
	if s.MaxEntities > 0 {
		opts = append(opts, engine.WithMaxEntities(s.MaxEntities))
	}
	if s.RetireAfter > 0 {
		opts = append(opts, engine.WithRetireAfter(s.RetireAfter))
	}
	return opts
}
