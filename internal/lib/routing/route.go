package routing

import (
	"errors"
	"fmt"

	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
	"github.com/dpup/ride.ersn.net/server/internal/lib/maneuver"
)

// ErrInvalidRoute is returned when route geometry cannot be navigated
var ErrInvalidRoute = errors.New("invalid route")

// Route is the polyline being navigated plus provider metadata. Index 0 is
// the start and the last point the destination. A Route must not be
// modified once navigation starts; use the With* copies instead.
type Route struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name,omitempty"`
	Points          []geo.Point            `json:"points"`
	DistanceMeters  float64                `json:"distance_meters"`
	DurationSeconds float64                `json:"duration_seconds"`
	Maneuvers       []maneuver.Instruction `json:"maneuvers,omitempty"`
	Hazards         []ClassifiedHazard     `json:"hazards,omitempty"`

	cumulative []float64
}

// RouteOption sets optional route metadata
type RouteOption func(*Route)

// WithName labels the route
func WithName(name string) RouteOption {
	return func(r *Route) { r.Name = name }
}

// WithDistance sets the provider's reported distance in meters
func WithDistance(meters float64) RouteOption {
	return func(r *Route) { r.DistanceMeters = meters }
}

// WithDuration sets the provider's reported duration in seconds
func WithDuration(seconds float64) RouteOption {
	return func(r *Route) { r.DurationSeconds = seconds }
}

// WithManeuvers attaches provider maneuvers
func WithManeuvers(m []maneuver.Instruction) RouteOption {
	return func(r *Route) { r.Maneuvers = m }
}

// WithHazards attaches already classified hazards
func WithHazards(h []ClassifiedHazard) RouteOption {
	return func(r *Route) { r.Hazards = h }
}

// NewRoute validates points and precomputes cumulative distances. When no
// distance is supplied the polyline length is used.
func NewRoute(id string, points []geo.Point, opts ...RouteOption) (*Route, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 points, got %d", ErrInvalidRoute, len(points))
	}
	for i, p := range points {
		if !geo.IsValidCoordinate(p) {
			return nil, fmt.Errorf("%w: point %d out of range (%f, %f)", ErrInvalidRoute, i, p.Latitude, p.Longitude)
		}
	}

	pts := make([]geo.Point, len(points))
	copy(pts, points)

	r := &Route{ID: id, Points: pts}
	for _, opt := range opts {
		opt(r)
	}

	r.cumulative = geo.CumulativeDistances(pts)
	if r.DistanceMeters <= 0 {
		r.DistanceMeters = r.Length()
	}

	for i, m := range r.Maneuvers {
		if !m.Type.Valid() {
			return nil, fmt.Errorf("%w: maneuver %d has unknown type %q", ErrInvalidRoute, i, m.Type)
		}
		if m.RoutePointIndex < 0 || m.RoutePointIndex >= len(pts) {
			return nil, fmt.Errorf("%w: maneuver %d references point %d of %d", ErrInvalidRoute, i, m.RoutePointIndex, len(pts))
		}
	}

	return r, nil
}

// NewRouteFromPolyline decodes a Google encoded polyline and builds a route
func NewRouteFromPolyline(id, encoded string, opts ...RouteOption) (*Route, error) {
	points, err := geo.DecodePolyline(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoute, err)
	}
	return NewRoute(id, points, opts...)
}

// WithManeuvers returns a copy of the route carrying m
func (r *Route) WithManeuvers(m []maneuver.Instruction) *Route {
	cp := *r
	cp.Maneuvers = m
	return &cp
}

// WithHazards returns a copy of the route carrying h
func (r *Route) WithHazards(h []ClassifiedHazard) *Route {
	cp := *r
	cp.Hazards = h
	return &cp
}

func (r *Route) distances() []float64 {
	if len(r.cumulative) == len(r.Points) {
		return r.cumulative
	}
	// Routes decoded from JSON skip NewRoute
	return geo.CumulativeDistances(r.Points)
}

// Length returns the polyline length in meters
func (r *Route) Length() float64 {
	cum := r.distances()
	if len(cum) == 0 {
		return 0
	}
	return cum[len(cum)-1]
}

// Destination returns the last point
func (r *Route) Destination() geo.Point {
	return r.Points[len(r.Points)-1]
}

// LastIndex returns the index of the destination point
func (r *Route) LastIndex() int {
	return len(r.Points) - 1
}

// CumulativeAt returns the along-route distance of point i
func (r *Route) CumulativeAt(i int) float64 {
	cum := r.distances()
	return cum[clampIndex(i, len(cum))]
}

// DistanceAlong returns the along-route distance of p lying on segment
func (r *Route) DistanceAlong(segment int, p geo.Point) float64 {
	segment = clampIndex(segment, len(r.Points))
	return r.CumulativeAt(segment) + geo.DistanceBetween(r.Points[segment], p)
}

// RemainingFrom returns the along-route distance from p on segment to the
// destination
func (r *Route) RemainingFrom(segment int, p geo.Point) float64 {
	segment = clampIndex(segment, len(r.Points))
	last := r.LastIndex()
	if segment >= last {
		return geo.DistanceBetween(p, r.Points[last])
	}
	return geo.DistanceBetween(p, r.Points[segment+1]) + r.Length() - r.CumulativeAt(segment+1)
}

// Polyline returns the route geometry in the geo package's polyline form
func (r *Route) Polyline() geo.Polyline {
	return geo.Polyline{Points: r.Points}
}

// Snap matches p against the route with the given anchor and limits
func (r *Route) Snap(p geo.Point, anchor int, maxSnapDistance float64, windowSize int) (Snap, bool) {
	return SnapToRoute(p, r.Points, anchor, maxSnapDistance, windowSize)
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
