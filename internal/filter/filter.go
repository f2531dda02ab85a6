package filter

import (
	"fmt"

	"github.com/roach88/framestate/internal/geom"
	"github.com/roach88/framestate/internal/vobj"
)

// Condition is an instantaneous test over an attribute value. It is never
// called with nil.
type Condition func(v any) bool

// Counter attribute suffixes.
const (
	DurationSuffix    = "_duration"
	TimePeriodsSuffix = "_time_periods"
)

// Accumulator is a temporal predicate over one attribute of an entity.
type Accumulator struct {
	cond       Condition
	seconds    float64
	counter    string
	cumulative bool
}

// Continuing fires when cond has held for seconds. The count is stored as
// <name>_duration.
func Continuing(cond Condition, seconds float64, name string) (*Accumulator, error) {
	return newAccumulator(cond, seconds, name+DurationSuffix)
}

// Lasting fires when trigger has held for seconds. The count is stored as
// <name>_time_periods.
func Lasting(trigger Condition, seconds float64, name string) (*Accumulator, error) {
	return newAccumulator(trigger, seconds, name+TimePeriodsSuffix)
}

func newAccumulator(cond Condition, seconds float64, counter string) (*Accumulator, error) {
	if cond == nil {
		return nil, fmt.Errorf("accumulator %s: condition is required", counter)
	}
	if seconds < 0 {
		return nil, fmt.Errorf("accumulator %s: negative duration %g", counter, seconds)
	}
	return &Accumulator{cond: cond, seconds: seconds, counter: counter}, nil
}

// Cumulative makes the count survive steps where the condition is false,
// for as long as the track lasts.
func (a *Accumulator) Cumulative() *Accumulator {
	a.cumulative = true
	return a
}

// Counter returns the name of the attribute holding the count.
func (a *Accumulator) Counter() string {
	return a.counter
}

// Seconds returns the trigger threshold in seconds.
func (a *Accumulator) Seconds() float64 {
	return a.seconds
}

// Match evaluates the accumulator for attr on e's current step, storing
// the updated count on e. A nil attribute value counts as false.
func (a *Accumulator) Match(e *vobj.Entity, attr string) (bool, error) {
	v, err := e.GetV(attr, -1)
	if err != nil {
		return false, err
	}
	if v == nil || !a.cond(v) {
		return false, nil
	}

	count := a.previous(e) + 1
	e.Record(a.counter, count)
	return float64(count) >= a.seconds*e.Rate(), nil
}

// previous returns the most recent count within the current track segment,
// or 0 when there is none.
func (a *Accumulator) previous(e *vobj.Entity) int {
	for off := -2; off >= -e.TrackLength(); off-- {
		v, ok := e.Recall(a.counter, off)
		if ok {
			n, _ := toInt(v)
			return n
		}
		if !a.cumulative {
			return 0
		}
	}
	return 0
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// WithinRegions is a Condition over point-valued attributes that holds
// when the point lies in at least one region. Values that are not points
// fail the condition.
func WithinRegions(regions ...geom.Polygon) (Condition, error) {
	within, err := geom.WithinRegions(regions...)
	if err != nil {
		return nil, err
	}
	return func(v any) bool {
		pt, ok := geom.PointOf(v)
		return ok && within(pt)
	}, nil
}
