package cli

import (
	"errors"
	"fmt"

	"github.com/roach88/framestate/internal/compiler"
	"github.com/roach88/framestate/internal/engine"
	"github.com/roach88/framestate/internal/functions"
	"github.com/roach88/framestate/internal/registry"
	"github.com/roach88/framestate/internal/store"
	"github.com/roach88/framestate/internal/vobj"
)

// loadedConfig is a compiled and validated config directory.
type loadedConfig struct {
	cfg   *compiler.Config
	reg   *registry.Registry
	types []*vobj.Type
	hash  string
}

// newRegistry returns a registry holding the built-in transforms.
func newRegistry() (*registry.Registry, error) {
	reg := registry.New()
	if err := functions.Register(reg); err != nil {
		return nil, fmt.Errorf("register functions: %w", err)
	}
	return reg, nil
}

// loadConfig compiles dir and checks it against the built-in transforms.
func loadConfig(dir string) (*loadedConfig, error) {
	cfg, errs := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
	if len(errs) > 0 {
		return nil, fmt.Errorf("compile %s: %w", dir, errors.Join(errs...))
	}

	reg, err := newRegistry()
	if err != nil {
		return nil, err
	}
	if verrs := compiler.Validate(cfg, reg); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, v := range verrs {
			errs[i] = v
		}
		return nil, fmt.Errorf("validate %s: %w", dir, errors.Join(errs...))
	}

	types, err := cfg.Types()
	if err != nil {
		return nil, err
	}
	src, err := compiler.ReadSources(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	return &loadedConfig{cfg: cfg, reg: reg, types: types, hash: store.ConfigHash(src)}, nil
}

// rate is the configured step rate, or the engine default.
func (l *loadedConfig) rate() float64 {
	if l.cfg.Settings.Rate > 0 {
		return l.cfg.Settings.Rate
	}
	return engine.DefaultRate
}

// newEngine builds an engine from the config settings plus opts.
func (l *loadedConfig) newEngine(opts ...engine.Option) (*engine.Engine, error) {
	all := append(l.cfg.Settings.EngineOptions(), opts...)
	return engine.New(l.reg, l.types, l.cfg.Queries, all...)
}
