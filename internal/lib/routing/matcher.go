package routing

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
)

const (
	// DefaultOnRouteThreshold is the hazard distance in meters counted as on the route
	DefaultOnRouteThreshold = 30.0
	// DefaultNearbyThreshold is the hazard distance in meters still worth reporting
	DefaultNearbyThreshold = 500.0
)

// hazardMatcher implements the HazardMatcher interface
type hazardMatcher struct {
	geoUtils         geo.GeoUtils
	onRouteThreshold float64 // Distance in meters for on_route classification
	nearbyThreshold  float64 // Distance in meters for nearby classification
}

// NewHazardMatcher creates a HazardMatcher with the given thresholds. Zero
// values fall back to the defaults.
func NewHazardMatcher(onRouteMeters, nearbyMeters float64) HazardMatcher {
	m := &hazardMatcher{
		geoUtils:         geo.NewGeoUtils(),
		onRouteThreshold: DefaultOnRouteThreshold,
		nearbyThreshold:  DefaultNearbyThreshold,
	}
	if onRouteMeters > 0 {
		m.onRouteThreshold = onRouteMeters
	}
	if nearbyMeters > 0 {
		m.nearbyThreshold = nearbyMeters
	}
	return m
}

// ClassifyHazard classifies a single hazard against the route
func (m *hazardMatcher) ClassifyHazard(ctx context.Context, hazard Hazard, route *Route) (ClassifiedHazard, error) {
	if route == nil || len(route.Points) < 2 {
		return ClassifiedHazard{}, errors.New("route must have at least 2 points")
	}

	closest, segment, distance, err := m.nearestOnRoute(hazard, route)
	if err != nil {
		return ClassifiedHazard{}, err
	}

	classification := Distant
	if distance <= m.onRouteThreshold {
		classification = OnRoute
	} else if distance <= m.nearbyThreshold {
		classification = Nearby
	}

	return ClassifiedHazard{
		Hazard:             hazard,
		Classification:     classification,
		DistanceToRoute:    distance,
		RoutePointIndex:    segment,
		DistanceAlongRoute: route.DistanceAlong(segment, closest),
	}, nil
}

// nearestOnRoute finds where on the route a hazard comes closest. Closures
// with a polyline are measured point by point, and the closest wins.
func (m *hazardMatcher) nearestOnRoute(hazard Hazard, route *Route) (geo.Point, int, float64, error) {
	probes := []geo.Point{hazard.Location}
	if hazard.AffectedPolyline != nil && len(hazard.AffectedPolyline.Points) > 1 {
		probes = hazard.AffectedPolyline.Points
	}

	line := route.Polyline()
	var bestPoint geo.Point
	bestSegment := 0
	bestDistance := math.Inf(1)

	for _, probe := range probes {
		closest, segment, err := m.geoUtils.ClosestPointOnPolyline(probe, line)
		if err != nil {
			continue // Skip invalid points
		}
		d := geo.DistanceBetween(probe, closest)
		if d < bestDistance {
			bestPoint, bestSegment, bestDistance = closest, segment, d
		}
	}

	if math.IsInf(bestDistance, 1) {
		return geo.Point{}, 0, 0, errors.New("no valid points found in hazard geometry")
	}
	return bestPoint, bestSegment, bestDistance, nil
}

// ClassifyHazards processes multiple hazards at once
func (m *hazardMatcher) ClassifyHazards(ctx context.Context, hazards []Hazard, route *Route) ([]ClassifiedHazard, error) {
	classified := make([]ClassifiedHazard, 0, len(hazards))
	for _, h := range hazards {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := m.ClassifyHazard(ctx, h, route)
		if err != nil {
			return nil, err
		}
		classified = append(classified, c)
	}
	return classified, nil
}

// AnnotateRoute attaches on-route and nearby hazards to a copy of the route,
// ordered by distance along it
func (m *hazardMatcher) AnnotateRoute(ctx context.Context, route *Route, hazards []Hazard) (*Route, error) {
	classified, err := m.ClassifyHazards(ctx, hazards, route)
	if err != nil {
		return nil, err
	}

	kept := classified[:0]
	for _, c := range classified {
		if c.Classification != Distant {
			kept = append(kept, c)
		}
	}

	// Along-route first, then on_route before nearby at the same spot
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].DistanceAlongRoute != kept[j].DistanceAlongRoute {
			return kept[i].DistanceAlongRoute < kept[j].DistanceAlongRoute
		}
		return kept[i].Classification == OnRoute && kept[j].Classification != OnRoute
	})

	return route.WithHazards(kept), nil
}

// NextHazard returns the first on-route hazard at or beyond alongMeters and
// the distance to it
func NextHazard(hazards []ClassifiedHazard, alongMeters float64) (ClassifiedHazard, float64, bool) {
	var next ClassifiedHazard
	found := false
	for _, h := range hazards {
		if h.Classification != OnRoute || h.DistanceAlongRoute < alongMeters {
			continue
		}
		if !found || h.DistanceAlongRoute < next.DistanceAlongRoute {
			next, found = h, true
		}
	}
	if !found {
		return ClassifiedHazard{}, 0, false
	}
	return next, next.DistanceAlongRoute - alongMeters, true
}
