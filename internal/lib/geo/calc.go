package geo

import (
	"math"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula
const EarthRadiusMeters = 6371000.0

// metersPerDegreeLat is the flat-earth approximation used for bounding boxes
const metersPerDegreeLat = 111320.0

var compassPoints = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// Distance returns the haversine great-circle distance in meters
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}

	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// DistanceBetween is Distance for two Points
func DistanceBetween(a, b Point) float64 {
	return Distance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// Bearing returns the initial forward azimuth from -> to in [0, 360).
// Identical points yield 0.
func Bearing(from, to Point) float64 {
	if from == to {
		return 0
	}

	phi1 := toRadians(from.Latitude)
	phi2 := toRadians(to.Latitude)
	dLambda := toRadians(to.Longitude - from.Longitude)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)

	b := math.Mod(toDegrees(math.Atan2(y, x))+360, 360)
	if b >= 360 {
		// Mod can return 360 for inputs a hair below 0
		b = 0
	}
	return b
}

// Midpoint returns the great-circle midpoint between a and b
func Midpoint(a, b Point) Point {
	phi1 := toRadians(a.Latitude)
	phi2 := toRadians(b.Latitude)
	lambda1 := toRadians(a.Longitude)
	dLambda := toRadians(b.Longitude - a.Longitude)

	bx := math.Cos(phi2) * math.Cos(dLambda)
	by := math.Cos(phi2) * math.Sin(dLambda)

	phi := math.Atan2(math.Sin(phi1)+math.Sin(phi2), math.Sqrt((math.Cos(phi1)+bx)*(math.Cos(phi1)+bx)+by*by))
	lambda := lambda1 + math.Atan2(by, math.Cos(phi1)+bx)

	return Point{
		Latitude:  toDegrees(phi),
		Longitude: math.Mod(toDegrees(lambda)+540, 360) - 180,
	}
}

// ProjectPointOnSegment returns the point on segment a-b closest to p.
//
// The projection is done in a flat local frame with longitude scaled by
// cos(latitude), which is accurate at route-segment scale. The segment
// parameter is clamped to [0, 1] so the result never leaves the segment.
func ProjectPointOnSegment(p, a, b Point) Point {
	t := SegmentParameter(p, a, b)
	return Point{
		Latitude:  a.Latitude + t*(b.Latitude-a.Latitude),
		Longitude: a.Longitude + t*(b.Longitude-a.Longitude),
	}
}

// SegmentParameter returns the clamped projection parameter t of p onto a-b.
// A zero-length segment yields 0.
func SegmentParameter(p, a, b Point) float64 {
	scale := math.Cos(toRadians(a.Latitude))

	dx := (b.Longitude - a.Longitude) * scale
	dy := b.Latitude - a.Latitude
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return 0
	}

	px := (p.Longitude - a.Longitude) * scale
	py := p.Latitude - a.Latitude

	t := (px*dx + py*dy) / lenSq
	return math.Max(0, math.Min(1, t))
}

// BoundingBox expands center by radiusMeters in every direction
func BoundingBox(center Point, radiusMeters float64) Bounds {
	latDelta := radiusMeters / metersPerDegreeLat

	cosLat := math.Cos(toRadians(center.Latitude))
	lonDelta := 180.0
	if cosLat > 1e-9 {
		lonDelta = math.Min(180, radiusMeters/(metersPerDegreeLat*cosLat))
	}

	return Bounds{
		MinLat: math.Max(-90, center.Latitude-latDelta),
		MaxLat: math.Min(90, center.Latitude+latDelta),
		MinLon: center.Longitude - lonDelta,
		MaxLon: center.Longitude + lonDelta,
	}
}

// InBounds is the point-in-box test
func InBounds(p Point, b Bounds) bool {
	return b.Contains(p)
}

// FormatBearing buckets a bearing into one of eight compass points
func FormatBearing(degrees float64) string {
	normalized := math.Mod(math.Mod(degrees, 360)+360, 360)
	idx := int(math.Floor((normalized+22.5)/45)) % 8
	return compassPoints[idx]
}

// AngleDifference returns the absolute raw difference |a-b| without
// wraparound correction
func AngleDifference(a, b float64) float64 {
	return math.Abs(a - b)
}

// TurnAngle returns the signed change of heading in (-180, 180] going from
// bearing in to bearing out. Positive is a right turn.
func TurnAngle(in, out float64) float64 {
	d := math.Mod(out-in+540, 360) - 180
	if d == -180 {
		return 180
	}
	return d
}

// PolylineLength sums the haversine length of consecutive points
func PolylineLength(points []Point) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += DistanceBetween(points[i-1], points[i])
	}
	return total
}

// CumulativeDistances returns the distance from points[0] to every point
func CumulativeDistances(points []Point) []float64 {
	out := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		out[i] = out[i-1] + DistanceBetween(points[i-1], points[i])
	}
	return out
}
