package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Murphys to Arnold along Hwy 4
var (
	murphys = Point{Latitude: 38.1391, Longitude: -120.4561}
	arnold  = Point{Latitude: 38.2458, Longitude: -120.3486}
	angels  = Point{Latitude: 38.0675, Longitude: -120.5436}
)

func TestDistance_KnownPair(t *testing.T) {
	// Angels Camp to Murphys is ~11.0 km great-circle
	d := DistanceBetween(angels, murphys)
	assert.InDelta(t, 11046, d, 100)
}

func TestDistance_SymmetricAndZero(t *testing.T) {
	pairs := [][2]Point{
		{angels, murphys},
		{murphys, arnold},
		{{Latitude: 0, Longitude: 179.9}, {Latitude: 0, Longitude: -179.9}},
		{{Latitude: -33.9, Longitude: 151.2}, {Latitude: 51.5, Longitude: -0.12}},
	}

	for _, p := range pairs {
		assert.InDelta(t, DistanceBetween(p[0], p[1]), DistanceBetween(p[1], p[0]), 1e-6)
		assert.Equal(t, 0.0, DistanceBetween(p[0], p[0]))
	}

	// Across the antimeridian the short way round
	assert.InDelta(t, 22239, DistanceBetween(pairs[2][0], pairs[2][1]), 50)
}

func TestBearing_Range(t *testing.T) {
	origin := Point{Latitude: 45, Longitude: 7}
	tests := []struct {
		name     string
		to       Point
		expected float64
	}{
		{"north", Point{Latitude: 45.01, Longitude: 7}, 0},
		{"east", Point{Latitude: 45, Longitude: 7.01}, 90},
		{"south", Point{Latitude: 44.99, Longitude: 7}, 180},
		{"west", Point{Latitude: 45, Longitude: 6.99}, 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Bearing(origin, tt.to)
			assert.GreaterOrEqual(t, b, 0.0)
			assert.Less(t, b, 360.0)
			assert.InDelta(t, tt.expected, b, 0.1)
		})
	}

	assert.Equal(t, 0.0, Bearing(origin, origin), "degenerate bearing is defined as 0")

	// Slightly west of north must not come back as 360
	b := Bearing(origin, Point{Latitude: 45.01, Longitude: 6.9999999})
	assert.Less(t, b, 360.0)
	assert.Greater(t, b, 359.0)
}

func TestMidpoint(t *testing.T) {
	a := Point{Latitude: 0, Longitude: 0}
	b := Point{Latitude: 0, Longitude: 10}
	m := Midpoint(a, b)
	assert.InDelta(t, 0, m.Latitude, 1e-9)
	assert.InDelta(t, 5, m.Longitude, 1e-9)

	m = Midpoint(murphys, arnold)
	assert.InDelta(t, DistanceBetween(murphys, m), DistanceBetween(m, arnold), 0.5)
}

func TestProjectPointOnSegment_StaysWithinSegment(t *testing.T) {
	a := Point{Latitude: 45.0, Longitude: 7.0}
	b := Point{Latitude: 45.0, Longitude: 7.01}

	probes := []Point{
		{Latitude: 45.001, Longitude: 7.005}, // above the middle
		{Latitude: 45.0, Longitude: 6.9},     // before the start
		{Latitude: 45.0, Longitude: 7.2},     // beyond the end
		{Latitude: 44.9, Longitude: 7.02},
	}

	for _, p := range probes {
		tt := SegmentParameter(p, a, b)
		assert.GreaterOrEqual(t, tt, 0.0)
		assert.LessOrEqual(t, tt, 1.0)

		proj := ProjectPointOnSegment(p, a, b)
		assert.GreaterOrEqual(t, proj.Longitude, a.Longitude)
		assert.LessOrEqual(t, proj.Longitude, b.Longitude)
		assert.InDelta(t, 45.0, proj.Latitude, 1e-12)
	}

	assert.Equal(t, a, ProjectPointOnSegment(Point{Latitude: 45, Longitude: 6}, a, b))
	assert.Equal(t, b, ProjectPointOnSegment(Point{Latitude: 45, Longitude: 8}, a, b))
}

func TestProjectPointOnSegment_Perpendicular(t *testing.T) {
	// Diagonal segment: the foot of the perpendicular must be closer than
	// either endpoint
	a := Point{Latitude: 45.0, Longitude: 7.0}
	b := Point{Latitude: 45.01, Longitude: 7.01}
	p := Point{Latitude: 45.006, Longitude: 7.004}

	proj := ProjectPointOnSegment(p, a, b)
	d := DistanceBetween(p, proj)
	assert.Less(t, d, DistanceBetween(p, a))
	assert.Less(t, d, DistanceBetween(p, b))

	// Moving along the segment away from the foot only increases distance
	for _, tt := range []float64{0.1, 0.3, 0.7, 0.9} {
		other := Point{
			Latitude:  a.Latitude + tt*(b.Latitude-a.Latitude),
			Longitude: a.Longitude + tt*(b.Longitude-a.Longitude),
		}
		assert.LessOrEqual(t, d, DistanceBetween(p, other)+1e-6)
	}
}

func TestProjectPointOnSegment_ZeroLength(t *testing.T) {
	a := Point{Latitude: 45.0, Longitude: 7.0}
	p := Point{Latitude: 45.1, Longitude: 7.1}
	assert.Equal(t, a, ProjectPointOnSegment(p, a, a))
}

func TestBoundingBox(t *testing.T) {
	center := Point{Latitude: 60.0, Longitude: 10.0}
	box := BoundingBox(center, 1000)

	assert.InDelta(t, 1000.0/111320, box.MaxLat-center.Latitude, 1e-12)
	// Longitude delta doubles at 60 degrees because cos(60) = 0.5
	assert.InDelta(t, 2*1000.0/111320, box.MaxLon-center.Longitude, 1e-9)

	assert.True(t, box.Contains(center))
	assert.True(t, InBounds(Point{Latitude: 60.005, Longitude: 10.01}, box))
	assert.False(t, InBounds(Point{Latitude: 60.02, Longitude: 10.0}, box))
	assert.False(t, InBounds(Point{Latitude: 60.0, Longitude: 10.02}, box))
}

func TestFormatBearing(t *testing.T) {
	tests := map[float64]string{
		0:     "N",
		22.4:  "N",
		22.5:  "NE",
		45:    "NE",
		90:    "E",
		135:   "SE",
		180:   "S",
		225:   "SW",
		270:   "W",
		315:   "NW",
		337.4: "NW",
		337.5: "N",
		359.9: "N",
		-90:   "W",
		720:   "N",
	}

	for deg, want := range tests {
		assert.Equal(t, want, FormatBearing(deg), "bearing %v", deg)
	}
}

func TestTurnAngle(t *testing.T) {
	assert.InDelta(t, 90, TurnAngle(0, 90), 1e-9)
	assert.InDelta(t, -90, TurnAngle(0, 270), 1e-9)
	assert.InDelta(t, 20, TurnAngle(350, 10), 1e-9)
	assert.InDelta(t, -20, TurnAngle(10, 350), 1e-9)
	assert.InDelta(t, 180, TurnAngle(0, 180), 1e-9)
}

func TestPolylineLengthAndCumulative(t *testing.T) {
	points := []Point{angels, murphys, arnold}
	cum := CumulativeDistances(points)
	require.Len(t, cum, 3)
	assert.Equal(t, 0.0, cum[0])
	assert.InDelta(t, PolylineLength(points), cum[2], 1e-6)
	assert.InDelta(t, DistanceBetween(angels, murphys), cum[1], 1e-6)
}

func TestGeoUtils_ClosestPointOnPolyline(t *testing.T) {
	geoUtils := NewGeoUtils()

	line := Polyline{Points: []Point{
		{Latitude: 45.0, Longitude: 7.0},
		{Latitude: 45.0, Longitude: 7.01},
		{Latitude: 45.01, Longitude: 7.01},
	}}

	// Just east of the second (north-going) segment
	probe := Point{Latitude: 45.005, Longitude: 7.0105}
	closest, segment, err := geoUtils.ClosestPointOnPolyline(probe, line)
	require.NoError(t, err)
	assert.Equal(t, 1, segment)
	assert.InDelta(t, 7.01, closest.Longitude, 1e-9)
	assert.InDelta(t, 45.005, closest.Latitude, 1e-9)

	assert.InDelta(t, 39.3, DistanceBetween(probe, closest), 1.0)

	_, _, err = geoUtils.ClosestPointOnPolyline(probe, Polyline{})
	assert.Error(t, err, "Should return error for empty polyline")

	_, _, err = geoUtils.ClosestPointOnPolyline(Point{Latitude: math.NaN()}, line)
	assert.Error(t, err)
}

func TestDecodePolyline(t *testing.T) {
	// Canonical example from the polyline algorithm documentation
	points, err := DecodePolyline("_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.InDelta(t, 38.5, points[0].Latitude, 1e-9)
	assert.InDelta(t, -120.2, points[0].Longitude, 1e-9)
	assert.InDelta(t, 43.252, points[2].Latitude, 1e-9)
	assert.InDelta(t, -126.453, points[2].Longitude, 1e-9)

	_, err = DecodePolyline("")
	assert.Error(t, err)
}

func TestEncodePolyline_RoundTrip(t *testing.T) {
	in := []Point{angels, murphys, arnold}
	out, err := DecodePolyline(EncodePolyline(in))
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for i := range in {
		assert.InDelta(t, in[i].Latitude, out[i].Latitude, 1e-5)
		assert.InDelta(t, in[i].Longitude, out[i].Longitude, 1e-5)
	}
}
