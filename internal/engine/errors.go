package engine

import (
	"errors"
	"fmt"
)

// StepError reports a frame the engine refused or could not apply. The
// engine state is unchanged when a StepError is returned.
type StepError struct {
	// Code identifies the error category.
	Code StepErrorCode

	// Message is a human-readable description.
	Message string

	// Step is the id of the rejected frame.
	Step int64

	// TrackID identifies the offending observation, when there is one.
	TrackID string
}

// StepErrorCode categorizes step errors.
type StepErrorCode string

const (
	// ErrCodeStepOrder indicates a frame at or before the last committed step.
	ErrCodeStepOrder StepErrorCode = "STEP_ORDER"

	// ErrCodeDuplicateTrack indicates a track id observed twice in one frame.
	ErrCodeDuplicateTrack StepErrorCode = "DUPLICATE_TRACK"

	// ErrCodeClassChanged indicates a known track id reported with a new class.
	ErrCodeClassChanged StepErrorCode = "CLASS_CHANGED"

	// ErrCodeInvalidObservation indicates an observation without a track id
	// or class.
	ErrCodeInvalidObservation StepErrorCode = "INVALID_OBSERVATION"
)

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.TrackID != "" {
		return fmt.Sprintf("%s: %s (step=%d, track=%s)", e.Code, e.Message, e.Step, e.TrackID)
	}
	return fmt.Sprintf("%s: %s (step=%d)", e.Code, e.Message, e.Step)
}

// IsStepOrderError reports whether err is an out-of-order frame.
func IsStepOrderError(err error) bool {
	return hasCode(err, ErrCodeStepOrder)
}

// IsInvalidFrame reports whether err rejects the frame's contents.
func IsInvalidFrame(err error) bool {
	return hasCode(err, ErrCodeDuplicateTrack) ||
		hasCode(err, ErrCodeClassChanged) ||
		hasCode(err, ErrCodeInvalidObservation)
}

func hasCode(err error, code StepErrorCode) bool {
	var se *StepError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

func newStepError(code StepErrorCode, step int64, track, format string, args ...any) *StepError {
	return &StepError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Step:    step,
		TrackID: track,
	}
}
