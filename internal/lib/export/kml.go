package export

import (
	"fmt"
	"io"

	"github.com/twpayne/go-kml"

	"github.com/dpup/ride.ersn.net/server/internal/lib/format"
	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
)

// KML writes the planned route, maneuvers, hazards and ridden track as a
// KML document
func KML(w io.Writer, ride Ride) error {
	if err := ride.validate(); err != nil {
		return err
	}

	var children []kml.Element
	children = append(children,
		kml.Name(ride.name()),
		kml.Description(summary(ride.Stats)),
	)

	if ride.Route != nil && len(ride.Route.Points) > 0 {
		children = append(children, kml.Placemark(
			kml.Name("Planned route"),
			kml.LineString(
				kml.Tessellate(true),
				kml.Coordinates(toKMLCoordinates(ride.Route.Points)...),
			),
		))

		if len(ride.Route.Maneuvers) > 0 {
			var placemarks []kml.Element
			placemarks = append(placemarks, kml.Name("Maneuvers"))
			for _, m := range ride.Route.Maneuvers {
				placemarks = append(placemarks, kml.Placemark(
					kml.Name(m.Text),
					kml.Description(fmt.Sprintf("%s at %s", m.Type, format.Distance(m.DistanceMeters))),
					kml.Point(kml.Coordinates(kml.Coordinate{Lon: m.Location.Longitude, Lat: m.Location.Latitude})),
				))
			}
			children = append(children, kml.Folder(placemarks...))
		}

		if len(ride.Route.Hazards) > 0 {
			var placemarks []kml.Element
			placemarks = append(placemarks, kml.Name("Hazards"))
			for _, h := range ride.Route.Hazards {
				placemarks = append(placemarks, kml.Placemark(
					kml.Name(h.Title),
					kml.Description(fmt.Sprintf("%s, %s (%s from route)", h.Kind, h.Classification, format.Distance(h.DistanceToRoute))),
					kml.Point(kml.Coordinates(kml.Coordinate{Lon: h.Location.Longitude, Lat: h.Location.Latitude})),
				))
			}
			children = append(children, kml.Folder(placemarks...))
		}
	}

	if len(ride.Track) > 0 {
		coords := make([]kml.Coordinate, len(ride.Track))
		for i, p := range ride.Track {
			coords[i] = kml.Coordinate{Lon: p.Position.Longitude, Lat: p.Position.Latitude}
			if p.Altitude != nil {
				coords[i].Alt = *p.Altitude
			}
		}
		children = append(children, kml.Placemark(
			kml.Name("Ridden track"),
			kml.LineString(kml.Coordinates(coords...)),
		))
	}

	doc := kml.KML(kml.Document(children...))
	if err := doc.WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("failed to write KML: %w", err)
	}
	return nil
}

func toKMLCoordinates(points []geo.Point) []kml.Coordinate {
	coords := make([]kml.Coordinate, len(points))
	for i, p := range points {
		coords[i] = kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
	}
	return coords
}

func summary(s Stats) string {
	if s.TotalDistance == 0 && s.TotalElapsed == 0 {
		return "Not started"
	}
	text := fmt.Sprintf("%s in %s, moving average %s",
		format.Distance(s.TotalDistance),
		format.Duration(s.TotalElapsed.Seconds()),
		format.Speed(s.AverageSpeed))
	if s.Arrived {
		text += ", arrived"
	}
	return text
}
