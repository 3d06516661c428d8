package core

import (
	"math"

	"github.com/histoforge/boundary-measure/model"
)

// CoincidentTolerance is the threshold under which two vertices are treated
// as the same point. A segment whose endpoints coincide within this tolerance
// on both axes is degenerate and contributes no candidate.
const CoincidentTolerance = 1e-10

// NearestResult is the closest point found on some boundary geometry and the
// Euclidean distance to it. A zero distance is meaningful (the query point
// lies on the boundary), so "no result" is represented by a +Inf distance
// rather than a zero value; see NoNearest and Valid.
type NearestResult struct {
	Point    model.Point
	Distance float64
}

// NoNearest returns the sentinel result used when no valid candidate exists
// (empty group, fewer than two vertices, all segments degenerate). It always
// loses a strict less-than comparison against any real candidate.
func NoNearest() NearestResult {
	return NearestResult{Distance: math.Inf(1)}
}

// Valid reports whether the result carries an actual candidate point.
func (r NearestResult) Valid() bool {
	return !math.IsInf(r.Distance, 1)
}

// NearestOnSegment projects the query point p onto the segment a–b and
// returns the closest point on the segment together with its distance.
//
// The projection parameter t = (p-a)·(b-a) / |b-a|² is clamped to [0,1], so
// a perpendicular foot falling outside the segment snaps to the nearer
// endpoint. Degenerate segments (endpoints coincident within
// CoincidentTolerance on both axes) return NoNearest so they can never win
// an aggregation over valid segments.
//
// Non-finite coordinates are not rejected; they propagate as non-finite
// distances and the caller's strict less-than reduction ignores them.
func NearestOnSegment(p, a, b model.Point) NearestResult {
	cx := b.X - a.X
	cy := b.Y - a.Y
	if math.Abs(cx) < CoincidentTolerance && math.Abs(cy) < CoincidentTolerance {
		return NoNearest()
	}

	ax := p.X - a.X
	ay := p.Y - a.Y

	dot := ax*cx + ay*cy
	lenSq := cx*cx + cy*cy

	t := 0.0
	if lenSq > CoincidentTolerance {
		t = dot / lenSq
	}

	var closest model.Point
	switch {
	case t < 0:
		closest = a
	case t > 1:
		closest = b
	default:
		closest = model.Point{X: a.X + t*cx, Y: a.Y + t*cy}
	}

	dx := p.X - closest.X
	dy := p.Y - closest.Y
	return NearestResult{
		Point:    closest,
		Distance: math.Sqrt(dx*dx + dy*dy),
	}
}
