package routing

import (
	"context"

	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
)

// Classification represents the relationship between a hazard and the active route
type Classification string

const (
	OnRoute Classification = "on_route" // within the on-route threshold of the polyline
	Nearby  Classification = "nearby"   // within the nearby threshold
	Distant Classification = "distant"  // beyond it (dropped from annotations)
)

// HazardKind is the category of a route hazard
type HazardKind string

const (
	HazardConstruction HazardKind = "construction"
	HazardClosure      HazardKind = "closure"
	HazardSurface      HazardKind = "surface"
	HazardTraffic      HazardKind = "traffic"
	HazardWeather      HazardKind = "weather"
	HazardOther        HazardKind = "other"
)

// Hazard is something along or near a route the rider should know about,
// before classification
type Hazard struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	Description      string        `json:"description,omitempty"`
	Kind             HazardKind    `json:"kind"`
	Location         geo.Point     `json:"location"`
	AffectedPolyline *geo.Polyline `json:"affected_polyline,omitempty"` // for closures spanning a stretch of road
}

// ClassifiedHazard is a hazard after classification against a route
type ClassifiedHazard struct {
	Hazard
	Classification     Classification `json:"classification"`
	DistanceToRoute    float64        `json:"distance_to_route"`
	RoutePointIndex    int            `json:"route_point_index"`    // nearest segment start on the route
	DistanceAlongRoute float64        `json:"distance_along_route"` // from route start to the nearest point
}

// Snap is the result of matching a fix to the route polyline
type Snap struct {
	Point        geo.Point `json:"point"`
	SegmentIndex int       `json:"segment_index"`
	Distance     float64   `json:"distance"`
}

// HazardMatcher classifies hazards against route geometry
type HazardMatcher interface {
	// Classify single hazard against a route
	ClassifyHazard(ctx context.Context, hazard Hazard, route *Route) (ClassifiedHazard, error)

	// Classify many hazards, in input order
	ClassifyHazards(ctx context.Context, hazards []Hazard, route *Route) ([]ClassifiedHazard, error)

	// Return a copy of route with non-distant hazards attached in route order
	AnnotateRoute(ctx context.Context, route *Route, hazards []Hazard) (*Route, error)
}
