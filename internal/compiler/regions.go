package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/framestate/internal/geom"
)

// CompileRegions compiles the region struct, mapping each name to a
// polygon given as a list of [x, y] vertices:
//
//	region: roi: [[550, 550], [1162, 400], [1720, 720], [600, 1073]]
func CompileRegions(v cue.Value) (map[string]geom.Polygon, error) {
	regions := make(map[string]geom.Polygon)
	if !v.Exists() {
		return regions, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError("region", err)
	}
	for iter.Next() {
		name := iter.Label()
		poly, err := compilePolygon("region."+name, iter.Value())
		if err != nil {
			return nil, err
		}
		regions[name] = poly
	}
	return regions, nil
}

func compilePolygon(field string, v cue.Value) (geom.Polygon, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(field, err)
	}
	var pts []geom.Point
	for iter.Next() {
		coords, err := iter.Value().List()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		var xy []float64
		for coords.Next() {
			f, err := coords.Value().Float64()
			if err != nil {
				return nil, formatCUEError(field, err)
			}
			xy = append(xy, f)
		}
		if len(xy) != 2 {
			return nil, compileErr(field, iter.Value().Pos(), "vertex must be [x, y], got %d numbers", len(xy))
		}
		pts = append(pts, geom.Point{X: xy[0], Y: xy[1]})
	}
	poly, err := geom.NewPolygon(pts...)
	if err != nil {
		return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos(), Err: err}
	}
	return poly, nil
}
