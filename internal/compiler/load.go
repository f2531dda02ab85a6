package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/framestate/internal/geom"
	"github.com/roach88/framestate/internal/query"
	"github.com/roach88/framestate/internal/vobj"
)

// LoadMode controls how errors are handled while compiling a config.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Load error codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeSettings = "E101" // Invalid settings
	ErrCodeRegion   = "E102" // Invalid region
	ErrCodeEntity   = "E103" // Invalid entity type
	ErrCodeQuery    = "E104" // Invalid query
)

// LoadError is an error found while loading or compiling a config.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Config is a fully compiled configuration.
type Config struct {
	Settings  Settings
	Regions   map[string]geom.Polygon
	Entities  []*EntitySpec
	Queries   []*query.Query
	FileCount int
}

// Types builds the entity types in declaration order.
func (c *Config) Types() ([]*vobj.Type, error) {
	types := make([]*vobj.Type, 0, len(c.Entities))
	for _, e := range c.Entities {
		t, err := e.Type()
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

// LoadDir loads and compiles the CUE package in dir.
func LoadDir(dir string, mode LoadMode) (*Config, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing config directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	cfg, errs := Compile(value, mode)
	if cfg != nil {
		cfg.FileCount = len(files)
	}
	return cfg, errs
}

// CompileSource compiles CUE source held in memory, such as a config
// embedded in a scenario file.
func CompileSource(filename, src string, mode LoadMode) (*Config, []error) {
	ctx := cuecontext.New()
	value := ctx.CompileString(src, cue.Filename(filename))
	return Compile(value, mode)
}

// Compile compiles a built CUE value. Regions compile first so queries can
// refer to them.
func Compile(value cue.Value, mode LoadMode) (*Config, []error) {
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	var errs []error
	fail := func(err error, code, context string) bool {
		errs = append(errs, convertCompileError(err, code, context))
		return mode == LoadModeFailFast
	}

	cfg := &Config{Regions: map[string]geom.Polygon{}}

	settings, err := CompileSettings(value.LookupPath(cue.ParsePath("settings")))
	if err != nil && fail(err, ErrCodeSettings, "settings") {
		return cfg, errs
	}
	cfg.Settings = settings

	regions, err := CompileRegions(value.LookupPath(cue.ParsePath("region")))
	if err != nil {
		if fail(err, ErrCodeRegion, "region") {
			return cfg, errs
		}
	} else {
		cfg.Regions = regions
	}

	if ents, ok := lookup(value, "entity"); ok {
		iter, err := ents.Fields()
		if err != nil {
			if fail(err, ErrCodeEntity, "entity") {
				return cfg, errs
			}
		} else {
			for iter.Next() {
				spec, err := CompileEntity(iter.Value())
				if err != nil {
					if fail(err, ErrCodeEntity, "entity."+iter.Label()) {
						return cfg, errs
					}
					continue
				}
				cfg.Entities = append(cfg.Entities, spec)
			}
		}
	}

	if qs, ok := lookup(value, "query"); ok {
		iter, err := qs.Fields()
		if err != nil {
			if fail(err, ErrCodeQuery, "query") {
				return cfg, errs
			}
		} else {
			for iter.Next() {
				q, err := CompileQuery(iter.Value(), cfg.Regions)
				if err != nil {
					if fail(err, ErrCodeQuery, "query."+iter.Label()) {
						return cfg, errs
					}
					continue
				}
				cfg.Queries = append(cfg.Queries, q)
			}
		}
	}

	if len(cfg.Entities) == 0 && len(cfg.Queries) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no entities or queries found in config"})
	}
	return cfg, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// ReadSources concatenates the CUE files under dir in path order, each
// preceded by its path relative to dir. The result identifies a config for
// hashing.
func ReadSources(dir string) ([]byte, error) {
	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(dir, f)
		if err != nil {
			rel = f
		}
		fmt.Fprintf(&buf, "-- %s --\n", filepath.ToSlash(rel))
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

// convertCompileError converts a compiler error to a LoadError with
// position info.
func convertCompileError(err error, code, context string) *LoadError {
	var ce *CompileError
	if errors.As(err, &ce) {
		return &LoadError{
			Code:    code,
			Message: fmt.Sprintf("%s: %s", ce.Field, ce.Message),
			Pos:     ce.Pos,
		}
	}
	return &LoadError{
		Code:    code,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}
