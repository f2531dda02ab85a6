// Package functions provides the built-in derived attributes computed from
// bounding boxes.
//
// Boxes are tlbr values: four numbers, top-left x and y then bottom-right x
// and y, in image coordinates (y grows downward).
package functions

import (
	"fmt"
	"math"

	"github.com/roach88/framestate/internal/geom"
	"github.com/roach88/framestate/internal/registry"
)

// AttrTLBR is the observed bounding box attribute every built-in reads.
const AttrTLBR = "tlbr"

// Built-in output attributes.
const (
	AttrVelocity     = "bbox_velocity"
	AttrCoordinate   = "coordinate"
	AttrBottomCenter = "bottom_center"
	AttrDirection    = "direction"
)

// DirectionHistory is the number of steps direction looks back over.
const DirectionHistory = 5

// Descriptors returns the built-in transforms in registration order.
func Descriptors() []registry.Descriptor {
	return []registry.Descriptor{
		{
			Name:           "bbox_velocity",
			Inputs:         []string{AttrTLBR},
			TemporalInputs: []string{AttrTLBR},
			Outputs:        []string{AttrVelocity},
			MinHistory:     2,
			Fn:             bboxVelocity,
		},
		{
			Name:       "coordinate_center",
			Inputs:     []string{AttrTLBR},
			Outputs:    []string{AttrCoordinate},
			MinHistory: 1,
			Fn:         coordinateCenter,
		},
		{
			Name:       "bottom_center",
			Inputs:     []string{AttrTLBR},
			Outputs:    []string{AttrBottomCenter},
			MinHistory: 1,
			Fn:         bottomCenter,
		},
		{
			Name:           "direction",
			Inputs:         []string{AttrTLBR},
			TemporalInputs: []string{AttrTLBR},
			Outputs:        []string{AttrDirection},
			MinHistory:     DirectionHistory,
			Fn:             direction,
		},
	}
}

// Register adds the built-in transforms to reg.
func Register(reg *registry.Registry) error {
	for _, d := range Descriptors() {
		if err := reg.Register(d); err != nil {
			return fmt.Errorf("register built-in %s: %w", d.Name, err)
		}
	}
	return nil
}

// Box is a decoded tlbr value.
type Box [4]float64

// BoxOf decodes a tlbr value from a slice or array of four numbers.
func BoxOf(v any) (Box, bool) {
	var b Box
	switch val := v.(type) {
	case Box:
		return val, true
	case [4]float64:
		return Box(val), true
	case []float64:
		if len(val) != 4 {
			return b, false
		}
		copy(b[:], val)
		return b, true
	case []any:
		if len(val) != 4 {
			return b, false
		}
		for i, n := range val {
			f, ok := geom.ToFloat(n)
			if !ok {
				return b, false
			}
			b[i] = f
		}
		return b, true
	default:
		return b, false
	}
}

// Center returns the midpoint of the box.
func (b Box) Center() geom.Point {
	return geom.Point{X: (b[0] + b[2]) / 2, Y: (b[1] + b[3]) / 2}
}

// Height returns the vertical extent of the box.
func (b Box) Height() float64 {
	return b[3] - b[1]
}

func box(in any) (Box, error) {
	b, ok := BoxOf(in)
	if !ok {
		return b, fmt.Errorf("%s: expected four numbers, got %T", AttrTLBR, in)
	}
	return b, nil
}

func boxAt(obj registry.Entity, offset int) (Box, bool, error) {
	v, err := obj.GetV(AttrTLBR, offset)
	if err != nil || v == nil {
		return Box{}, false, err
	}
	b, err := box(v)
	return b, err == nil, err
}

// bboxVelocity is the center displacement between the last two steps,
// scaled by the mean box height over 1.5 and converted to per-second.
func bboxVelocity(obj registry.Entity, in map[string]any) ([]any, error) {
	cur, err := box(in[AttrTLBR])
	if err != nil {
		return nil, err
	}
	prev, ok, err := boxAt(obj, -2)
	if err != nil || !ok {
		return []any{nil}, err
	}

	scale := (cur.Height() + prev.Height()) / 2 / 1.5
	if scale <= 0 {
		return []any{nil}, nil
	}
	c, p := cur.Center(), prev.Center()
	dx := (c.X - p.X) / scale * obj.Rate()
	dy := (c.Y - p.Y) / scale * obj.Rate()
	return []any{math.Hypot(dx, dy)}, nil
}

func coordinateCenter(_ registry.Entity, in map[string]any) ([]any, error) {
	b, err := box(in[AttrTLBR])
	if err != nil {
		return nil, err
	}
	c := b.Center()
	return []any{[2]float64{c.X, c.Y}}, nil
}

func bottomCenter(_ registry.Entity, in map[string]any) ([]any, error) {
	b, err := box(in[AttrTLBR])
	if err != nil {
		return nil, err
	}
	return []any{[2]float64{(b[0] + b[2]) / 2, b[3]}}, nil
}
