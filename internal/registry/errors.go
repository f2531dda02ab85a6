package registry

import (
	"errors"
	"fmt"
)

// RegistryConflictError is returned when a descriptor cannot be registered
// because another descriptor already owns the same output under the same
// requirements, or the descriptor name is taken.
type RegistryConflictError struct {
	// Name is the descriptor being registered.
	Name string

	// Existing is the descriptor it collides with.
	Existing string

	// Output is the contested attribute; empty for name collisions.
	Output string
}

// Error implements the error interface.
func (e *RegistryConflictError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("derived function %q already registered", e.Name)
	}
	return fmt.Sprintf("derived function %q conflicts with %q on output %q", e.Name, e.Existing, e.Output)
}

// TransformExecutionError is returned when a derived function fails while
// producing attributes for an entity.
type TransformExecutionError struct {
	Entity    string // Entity identity (track id)
	Attr      string // Attribute being resolved
	Transform string // Descriptor name
	Err       error
}

// Error implements the error interface.
func (e *TransformExecutionError) Error() string {
	return fmt.Sprintf("transform %s failed resolving %q for entity %s: %v", e.Transform, e.Attr, e.Entity, e.Err)
}

// Unwrap returns the underlying failure.
func (e *TransformExecutionError) Unwrap() error {
	return e.Err
}

// IsRegistryConflict returns true if err wraps a RegistryConflictError.
func IsRegistryConflict(err error) bool {
	var ce *RegistryConflictError
	return errors.As(err, &ce)
}

// IsTransformError returns true if err wraps a TransformExecutionError.
func IsTransformError(err error) bool {
	var te *TransformExecutionError
	return errors.As(err, &te)
}
