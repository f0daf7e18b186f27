package export

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
)

// GeoJSON renders the ride as a FeatureCollection: the route line, one point
// per maneuver and hazard, then the ridden track line
func GeoJSON(ride Ride) ([]byte, error) {
	if err := ride.validate(); err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	bound := orb.Bound{}
	first := true
	extend := func(g orb.Geometry) {
		if first {
			bound = g.Bound()
			first = false
			return
		}
		bound = bound.Union(g.Bound())
	}

	if ride.Route != nil && len(ride.Route.Points) > 0 {
		line := toLineString(ride.Route.Points)
		f := geojson.NewFeature(line)
		f.Properties["kind"] = "route"
		f.Properties["name"] = ride.name()
		f.Properties["distance_m"] = ride.Route.DistanceMeters
		if ride.Route.DurationSeconds > 0 {
			f.Properties["duration_s"] = ride.Route.DurationSeconds
		}
		fc.Append(f)
		extend(line)

		for _, m := range ride.Route.Maneuvers {
			f := geojson.NewFeature(orb.Point{m.Location.Longitude, m.Location.Latitude})
			f.Properties["kind"] = "maneuver"
			f.Properties["type"] = string(m.Type)
			f.Properties["text"] = m.Text
			f.Properties["route_point_index"] = m.RoutePointIndex
			fc.Append(f)
		}

		for _, h := range ride.Route.Hazards {
			f := geojson.NewFeature(orb.Point{h.Location.Longitude, h.Location.Latitude})
			f.Properties["kind"] = "hazard"
			f.Properties["id"] = h.ID
			f.Properties["title"] = h.Title
			f.Properties["hazard_kind"] = string(h.Kind)
			f.Properties["classification"] = string(h.Classification)
			f.Properties["distance_to_route_m"] = h.DistanceToRoute
			f.Properties["distance_along_route_m"] = h.DistanceAlongRoute
			fc.Append(f)
		}
	}

	if len(ride.Track) > 0 {
		line := make(orb.LineString, len(ride.Track))
		times := make([]string, len(ride.Track))
		for i, p := range ride.Track {
			line[i] = orb.Point{p.Position.Longitude, p.Position.Latitude}
			times[i] = p.Timestamp.UTC().Format("2006-01-02T15:04:05Z")
		}
		f := geojson.NewFeature(line)
		f.Properties["kind"] = "track"
		f.Properties["distance_m"] = ride.Stats.TotalDistance
		f.Properties["elapsed_s"] = ride.Stats.TotalElapsed.Seconds()
		f.Properties["moving_s"] = ride.Stats.TotalMoving.Seconds()
		f.Properties["arrived"] = ride.Stats.Arrived
		f.Properties["coordTimes"] = times
		fc.Append(f)
		extend(line)
	}

	if !first {
		fc.BBox = geojson.NewBBox(bound)
	}

	data, err := json.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	return data, nil
}

func toLineString(points []geo.Point) orb.LineString {
	line := make(orb.LineString, len(points))
	for i, p := range points {
		line[i] = orb.Point{p.Longitude, p.Latitude}
	}
	return line
}
