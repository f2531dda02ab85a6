package functions

import (
	"math"

	"github.com/roach88/framestate/internal/registry"
)

// jitterRatio drops a movement component that is at least this many times
// smaller than the other one.
const jitterRatio = 10

// direction names the dominant movement over the last DirectionHistory
// steps: a vertical part (top, bottom) followed by a horizontal part (left,
// right), e.g. "bottomright". An entity that has not moved has no direction.
func direction(obj registry.Entity, in map[string]any) ([]any, error) {
	centers := make([][2]float64, 0, DirectionHistory)
	for i := DirectionHistory; i >= 1; i-- {
		var b Box
		if i == 1 {
			var err error
			if b, err = box(in[AttrTLBR]); err != nil {
				return nil, err
			}
		} else {
			var ok bool
			var err error
			if b, ok, err = boxAt(obj, -i); err != nil || !ok {
				return []any{nil}, err
			}
		}
		c := b.Center()
		centers = append(centers, [2]float64{c.X, c.Y})
	}

	horizontal := make([]string, 0, DirectionHistory-1)
	vertical := make([]string, 0, DirectionHistory-1)
	for i := 1; i < len(centers); i++ {
		dx := centers[i][0] - centers[i-1][0]
		dy := centers[i][1] - centers[i-1][1]
		horizontal = append(horizontal, sign(denoise(dx, dy), "right", "left"))
		vertical = append(vertical, sign(denoise(dy, dx), "bottom", "top"))
	}

	d := mostFrequent(vertical) + mostFrequent(horizontal)
	if d == "" {
		return []any{nil}, nil
	}
	return []any{d}, nil
}

func denoise(v, other float64) float64 {
	if v != 0 && math.Abs(other)/math.Abs(v) >= jitterRatio {
		return 0
	}
	return v
}

func sign(v float64, pos, neg string) string {
	switch {
	case v > 0:
		return pos
	case v < 0:
		return neg
	default:
		return ""
	}
}

// mostFrequent breaks ties by first occurrence.
func mostFrequent(names []string) string {
	counts := make(map[string]int, len(names))
	best, bestN := "", 0
	for _, n := range names {
		counts[n]++
	}
	for _, n := range names {
		if counts[n] > bestN {
			best, bestN = n, counts[n]
		}
	}
	return best
}
