package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/twpayne/go-polyline"
)

var errInvalidCoordinates = errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")

// geoUtils implements the GeoUtils interface
type geoUtils struct{}

// NewGeoUtils creates a new GeoUtils implementation
func NewGeoUtils() GeoUtils {
	return &geoUtils{}
}

// ClosestPointOnPolyline finds closest point on polyline to given point
func (g *geoUtils) ClosestPointOnPolyline(point Point, polyline Polyline) (Point, int, error) {
	if !isValidCoordinate(point) {
		return Point{}, 0, errInvalidCoordinates
	}

	if len(polyline.Points) == 0 {
		return Point{}, 0, errors.New("polyline has no points")
	}

	if len(polyline.Points) == 1 {
		return polyline.Points[0], 0, nil
	}

	var closestPoint Point
	closestSegment := 0
	minDistance := math.Inf(1)

	// Check closest point on each segment
	for i := 0; i < len(polyline.Points)-1; i++ {
		candidate := ProjectPointOnSegment(point, polyline.Points[i], polyline.Points[i+1])
		distance := DistanceBetween(point, candidate)

		if distance < minDistance {
			minDistance = distance
			closestPoint = candidate
			closestSegment = i
		}
	}

	return closestPoint, closestSegment, nil
}

// DecodePolyline decodes a Google polyline string (precision 5) to a point sequence
func DecodePolyline(encoded string) ([]Point, error) {
	return decodeWithCodec(encoded, polyline.Codec{Dim: 2, Scale: 1e5})
}

// DecodePolyline6 decodes a polyline encoded at precision 6 (Valhalla, OSRM polyline6)
func DecodePolyline6(encoded string) ([]Point, error) {
	return decodeWithCodec(encoded, polyline.Codec{Dim: 2, Scale: 1e6})
}

func decodeWithCodec(encoded string, codec polyline.Codec) ([]Point, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	coords, rest, err := codec.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode polyline: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("failed to decode polyline: %d trailing bytes", len(rest))
	}

	points := make([]Point, len(coords))
	for i, coord := range coords {
		points[i] = Point{
			Latitude:  coord[0],
			Longitude: coord[1],
		}

		if !isValidCoordinate(points[i]) {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
	}

	return points, nil
}

// EncodePolyline encodes points as a precision 5 Google polyline
func EncodePolyline(points []Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}

// IsValidCoordinate validates latitude and longitude values
func IsValidCoordinate(point Point) bool {
	return isValidCoordinate(point)
}

func isValidCoordinate(point Point) bool {
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180 &&
		!math.IsNaN(point.Latitude) && !math.IsNaN(point.Longitude)
}
