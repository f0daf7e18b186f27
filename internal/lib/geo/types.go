package geo

import "time"

// Point represents a geographic coordinate
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// LocationFix is a single GPS reading. Optional readings are nil when the
// device did not report them.
type LocationFix struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lng"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`   // m/s
	Heading   *float64  `json:"heading,omitempty"` // degrees
	Timestamp time.Time `json:"timestamp"`
}

// Point returns the fix position
func (f LocationFix) Point() Point {
	return Point{Latitude: f.Latitude, Longitude: f.Longitude}
}

// Polyline represents an encoded polyline with optional decoded points
type Polyline struct {
	EncodedPolyline string  `json:"encoded_polyline,omitempty"`
	Points          []Point `json:"points"`
}

// Bounds is an axis-aligned lat/lng box
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether p lies inside the box (edges inclusive)
func (b Bounds) Contains(p Point) bool {
	return p.Latitude >= b.MinLat && p.Latitude <= b.MaxLat &&
		p.Longitude >= b.MinLon && p.Longitude <= b.MaxLon
}

// GeoUtils interface defines validated geographic calculation utilities.
// The package-level functions in calc.go are the unvalidated fast path used
// during live navigation.
type GeoUtils interface {
	// Find closest point on polyline to given point, along with the index of
	// the segment it lies on
	ClosestPointOnPolyline(point Point, polyline Polyline) (Point, int, error)
}

