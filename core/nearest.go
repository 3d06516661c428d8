package core

import "github.com/histoforge/boundary-measure/model"

// closer folds two candidates, keeping best unless next is strictly closer.
// The strict comparison makes the scan stable: on an exact tie the
// first-encountered candidate wins, and NaN distances (from non-finite
// input coordinates) never displace a finite best.
func closer(best, next NearestResult) NearestResult {
	if next.Distance < best.Distance {
		return next
	}
	return best
}

// NearestOnPolyline returns the closest point to p on the open vertex chain
// poly. Segments are formed between consecutive vertices only; the implicit
// closing edge between the last and first vertex is NOT considered (see
// model.Polygon). Degenerate segments are skipped. A polygon with fewer than
// two vertices, or with only degenerate segments, yields NoNearest.
func NearestOnPolyline(p model.Point, poly model.Polygon) NearestResult {
	best := NoNearest()
	for i := 0; i+1 < len(poly); i++ {
		best = closer(best, NearestOnSegment(p, poly[i], poly[i+1]))
	}
	return best
}

// NearestOnGroup reduces NearestOnPolyline over every polygon of one
// boundary class and returns the globally closest candidate. The same
// strict less-than, first-wins reduction applies across polygons, so on an
// exact tie the earlier polygon in iteration order wins. An empty group
// yields NoNearest.
func NearestOnGroup(p model.Point, polys []model.Polygon) NearestResult {
	best := NoNearest()
	for _, poly := range polys {
		best = closer(best, NearestOnPolyline(p, poly))
	}
	return best
}
