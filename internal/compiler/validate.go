package compiler

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/framestate/internal/registry"
)

// Validation error codes (E110-E119). These catch references that compile
// but cannot work at run time.
const (
	ErrUnknownClass      = "E110" // query class has no entity type
	ErrUnknownDerived    = "E111" // declared attribute no transform produces
	ErrUnknownHint       = "E112" // hint names an unregistered transform
	ErrHintWrongOutput   = "E113" // hinted transform does not produce the attribute
	ErrWindowUndeclared  = "E114" // window on an attribute never written
	ErrDuplicateDeclared = "E115" // attribute declared twice
)

// ValidationError is a cross-reference problem in a compiled config.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks cfg against the transforms in reg. Returns all errors
// found.
func Validate(cfg *Config, reg *registry.Registry) []ValidationError {
	var errs []ValidationError

	classes := make(map[string]bool, len(cfg.Entities))
	for _, ent := range cfg.Entities {
		classes[ent.Name] = true
		errs = append(errs, validateEntity(ent, reg)...)
	}

	for _, q := range cfg.Queries {
		if q.Class != "" && !classes[q.Class] {
			errs = append(errs, ValidationError{
				Field:   "query." + q.Name + ".class",
				Message: fmt.Sprintf("no entity type named %q", q.Class),
				Code:    ErrUnknownClass,
			})
		}
	}
	return errs
}

func validateEntity(ent *EntitySpec, reg *registry.Registry) []ValidationError {
	var errs []ValidationError
	field := "entity." + ent.Name

	seen := make(map[string]bool, len(ent.Declare))
	for _, attr := range ent.Declare {
		if seen[attr] {
			errs = append(errs, ValidationError{
				Field:   field + ".declare",
				Message: fmt.Sprintf("%q declared twice", attr),
				Code:    ErrDuplicateDeclared,
			})
		}
		seen[attr] = true
		if !reg.Produces(registry.CanonicalName(attr)) {
			errs = append(errs, ValidationError{
				Field:   field + ".declare",
				Message: fmt.Sprintf("no transform produces %q", attr),
				Code:    ErrUnknownDerived,
			})
		}
	}

	for name := range ent.Windows {
		if !seen[name] && !reg.Produces(registry.CanonicalName(name)) {
			errs = append(errs, ValidationError{
				Field:   field + ".window." + name,
				Message: "windowed attribute is neither declared nor produced by a transform",
				Code:    ErrWindowUndeclared,
			})
		}
	}

	for attr, desc := range ent.Hints {
		d, ok := reg.Lookup(desc)
		if !ok {
			errs = append(errs, ValidationError{
				Field:   field + ".hint." + attr,
				Message: fmt.Sprintf("no transform named %q", desc),
				Code:    ErrUnknownHint,
			})
			continue
		}
		if !slices.Contains(d.Outputs, registry.CanonicalName(attr)) {
			errs = append(errs, ValidationError{
				Field:   field + ".hint." + attr,
				Message: fmt.Sprintf("transform %q does not produce %q", desc, attr),
				Code:    ErrHintWrongOutput,
			})
		}
	}

	// Map iteration above is unordered
	slices.SortStableFunc(errs, func(a, b ValidationError) int {
		return cmp.Compare(a.Field, b.Field)
	})
	return errs
}
