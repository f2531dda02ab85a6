package vobj

import (
	"errors"
	"fmt"
)

// NonTemporalHistoryError is returned when history is requested for an
// attribute that does not retain history.
type NonTemporalHistoryError struct {
	Entity string
	Attr   string
	Offset int
}

// Error implements the error interface.
func (e *NonTemporalHistoryError) Error() string {
	return fmt.Sprintf("entity %s: attribute %q does not retain history (offset %d); declare it windowed or retained",
		e.Entity, e.Attr, e.Offset)
}

// IsNonTemporalHistory returns true if err wraps a NonTemporalHistoryError.
func IsNonTemporalHistory(err error) bool {
	var he *NonTemporalHistoryError
	return errors.As(err, &he)
}
