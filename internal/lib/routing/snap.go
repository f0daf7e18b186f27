package routing

import (
	"math"

	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
)

const (
	// DefaultSnapThreshold is the farthest a fix may be from the route and still snap, in meters
	DefaultSnapThreshold = 20.0
	// DefaultSnapWindow is the number of segments searched either side of the anchor
	DefaultSnapWindow = 50
)

// SnapToRoute projects fix onto the segments within windowSize of anchor and
// returns the nearest projection. Ties keep the lowest segment index. The
// second result is false when the nearest projection is farther than
// maxSnapDistance; Snap.Distance is still set so callers can report how far
// off route the fix is.
func SnapToRoute(fix geo.Point, points []geo.Point, anchor int, maxSnapDistance float64, windowSize int) (Snap, bool) {
	switch len(points) {
	case 0:
		return Snap{Distance: math.Inf(1)}, false
	case 1:
		d := geo.DistanceBetween(fix, points[0])
		return Snap{Point: points[0], Distance: d}, d <= maxSnapDistance
	}

	lo := anchor - windowSize
	if lo < 0 {
		lo = 0
	}
	hi := anchor + windowSize
	if hi > len(points)-1 {
		hi = len(points) - 1
	}
	if lo >= hi {
		// Anchor beyond the end; search the final segment
		lo = len(points) - 2
		hi = len(points) - 1
	}

	best := Snap{Distance: math.Inf(1)}
	for i := lo; i < hi; i++ {
		candidate := geo.ProjectPointOnSegment(fix, points[i], points[i+1])
		d := geo.DistanceBetween(fix, candidate)
		if d < best.Distance {
			best = Snap{Point: candidate, SegmentIndex: i, Distance: d}
		}
	}

	return best, best.Distance <= maxSnapDistance
}
