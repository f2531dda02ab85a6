package engine

import (
	"errors"
	"fmt"
)

// entityQuota caps the number of live entities so a tracker that never
// reuses ids cannot grow the engine without bound.
type entityQuota struct {
	max int // 0 means unlimited
}

// check returns EntityQuotaError if live entities would exceed the limit.
func (q entityQuota) check(step int64, live int) error {
	if q.max > 0 && live > q.max {
		return &EntityQuotaError{Step: step, Live: live, Limit: q.max}
	}
	return nil
}

// EntityQuotaError is returned when a frame would create more live
// entities than WithMaxEntities allows. The step is rolled back.
type EntityQuotaError struct {
	Step  int64
	Live  int
	Limit int
}

// Error implements the error interface.
func (e *EntityQuotaError) Error() string {
	return fmt.Sprintf("step %d exceeds entity quota: %d live > %d limit",
		e.Step, e.Live, e.Limit)
}

// IsEntityQuotaError reports whether err is an EntityQuotaError.
func IsEntityQuotaError(err error) bool {
	var qe *EntityQuotaError
	return errors.As(err, &qe)
}
