package geom

import (
	"errors"
	"fmt"
	"math"
)

// Point is a 2-D coordinate in image space.
type Point struct {
	X float64
	Y float64
}

// Polygon is an ordered ring of vertices. The ring is implicitly closed.
type Polygon []Point

// RegionConfigurationError is returned when a region cannot enclose area.
type RegionConfigurationError struct {
	Region Polygon
	Area   float64
}

// Error implements the error interface.
func (e *RegionConfigurationError) Error() string {
	return fmt.Sprintf("region %v has non-positive area %g", []Point(e.Region), e.Area)
}

// IsRegionConfigurationError returns true if err wraps a RegionConfigurationError.
func IsRegionConfigurationError(err error) bool {
	var re *RegionConfigurationError
	return errors.As(err, &re)
}

// NewPolygon validates points and returns them as a Polygon.
//
// The enclosed area must be positive. Clockwise and counter-clockwise
// orderings are both accepted; orientation is normalized away.
func NewPolygon(points ...Point) (Polygon, error) {
	p := Polygon(points)
	if a := p.Area(); !(a > 0) {
		return nil, &RegionConfigurationError{Region: p, Area: a}
	}
	return p, nil
}

// Area returns the absolute enclosed area (shoelace formula).
// Fewer than three vertices enclose nothing.
func (p Polygon) Area() float64 {
	if len(p) < 3 {
		return 0
	}
	var sum float64
	for i := range p {
		j := (i + 1) % len(p)
		sum += p[i].X*p[j].Y - p[j].X*p[i].Y
	}
	return math.Abs(sum) / 2
}

// Contains reports whether pt lies inside p or on its boundary.
func (p Polygon) Contains(pt Point) bool {
	if len(p) < 3 {
		return false
	}
	inside := false
	for i, j := 0, len(p)-1; i < len(p); j, i = i, i+1 {
		a, b := p[j], p[i]
		if onSegment(a, b, pt) {
			return true
		}
		// Ray cast toward +X.
		if (b.Y > pt.Y) != (a.Y > pt.Y) {
			x := (a.X-b.X)*(pt.Y-b.Y)/(a.Y-b.Y) + b.X
			if pt.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

const boundaryEpsilon = 1e-9

func onSegment(a, b, pt Point) bool {
	cross := (b.X-a.X)*(pt.Y-a.Y) - (b.Y-a.Y)*(pt.X-a.X)
	if math.Abs(cross) > boundaryEpsilon {
		return false
	}
	return pt.X >= math.Min(a.X, b.X)-boundaryEpsilon &&
		pt.X <= math.Max(a.X, b.X)+boundaryEpsilon &&
		pt.Y >= math.Min(a.Y, b.Y)-boundaryEpsilon &&
		pt.Y <= math.Max(a.Y, b.Y)+boundaryEpsilon
}

// Predicate is an instantaneous boolean test over a point.
type Predicate func(Point) bool

// WithinRegions returns a predicate that is true when a point lies within
// at least one of regions.
//
// Every region is validated eagerly; the first region with non-positive
// area yields a RegionConfigurationError.
func WithinRegions(regions ...Polygon) (Predicate, error) {
	if len(regions) == 0 {
		return nil, fmt.Errorf("within regions: at least one region is required")
	}
	validated := make([]Polygon, len(regions))
	for i, r := range regions {
		p, err := NewPolygon(r...)
		if err != nil {
			return nil, fmt.Errorf("region %d: %w", i, err)
		}
		validated[i] = p
	}
	return func(pt Point) bool {
		for _, r := range validated {
			if r.Contains(pt) {
				return true
			}
		}
		return false
	}, nil
}

// PointOf converts an attribute value into a Point.
//
// Accepted shapes: Point, *Point, [2]float64, and any []float64 or []any
// whose first two elements are numeric. Anything else reports false.
func PointOf(v any) (Point, bool) {
	switch val := v.(type) {
	case Point:
		return val, true
	case *Point:
		if val == nil {
			return Point{}, false
		}
		return *val, true
	case [2]float64:
		return Point{X: val[0], Y: val[1]}, true
	case []float64:
		if len(val) < 2 {
			return Point{}, false
		}
		return Point{X: val[0], Y: val[1]}, true
	case []any:
		if len(val) < 2 {
			return Point{}, false
		}
		x, okX := ToFloat(val[0])
		y, okY := ToFloat(val[1])
		if !okX || !okY {
			return Point{}, false
		}
		return Point{X: x, Y: y}, true
	default:
		return Point{}, false
	}
}

// ToFloat converts the numeric kinds produced by YAML, JSON and CUE
// decoding into a float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
