package testutil

// Box returns a tlbr bounding box with top-left corner (x, y).
func Box(x, y, w, h float64) []float64 {
	return []float64{x, y, x + w, y + h}
}

// Walk returns n boxes of size w×h whose top-left corner starts at (x, y)
// and moves by (dx, dy) each step.
func Walk(x, y, dx, dy, w, h float64, n int) [][]float64 {
	boxes := make([][]float64, n)
	for i := range boxes {
		boxes[i] = Box(x+float64(i)*dx, y+float64(i)*dy, w, h)
	}
	return boxes
}
