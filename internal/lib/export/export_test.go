package export

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
	"github.com/dpup/ride.ersn.net/server/internal/lib/maneuver"
	"github.com/dpup/ride.ersn.net/server/internal/lib/navigation"
	"github.com/dpup/ride.ersn.net/server/internal/lib/routing"
)

var start = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func lShapeRoute(t *testing.T) *routing.Route {
	t.Helper()
	points := []geo.Point{
		{Latitude: 45, Longitude: 7},
		{Latitude: 45, Longitude: 7.00254},
		{Latitude: 45.0018, Longitude: 7.00254},
	}
	hazard := routing.ClassifiedHazard{
		Hazard: routing.Hazard{
			ID:       "h1",
			Title:    "Gravel patch",
			Kind:     routing.HazardSurface,
			Location: geo.Point{Latitude: 45.0001, Longitude: 7.001},
		},
		Classification:     routing.OnRoute,
		DistanceToRoute:    11,
		DistanceAlongRoute: 79,
	}
	r, err := routing.NewRoute("r1", points,
		routing.WithName("Col loop"),
		routing.WithManeuvers(maneuver.Derive(points)),
		routing.WithHazards([]routing.ClassifiedHazard{hazard}))
	require.NoError(t, err)
	return r
}

func track(n int) []navigation.TrackPoint {
	alt := 250.0
	pts := make([]navigation.TrackPoint, n)
	for i := range pts {
		pts[i] = navigation.TrackPoint{
			Position:         geo.Point{Latitude: 45, Longitude: 7 + float64(i)*0.0001},
			Timestamp:        start.Add(time.Duration(i) * 2 * time.Second),
			Speed:            4,
			Altitude:         &alt,
			DistanceTraveled: float64(i) * 7.86,
		}
	}
	return pts
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"kml":     FormatKML,
		".KML":    FormatKML,
		"geojson": FormatGeoJSON,
		"json":    FormatGeoJSON,
		"fit":     FormatFIT,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("gpx")
	assert.Error(t, err)

	assert.Equal(t, "application/vnd.ant.fit", FormatFIT.ContentType())
	assert.Equal(t, "application/geo+json", FormatGeoJSON.ContentType())
}

func TestEmptyRide(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, KML(&buf, Ride{}))

	_, err := GeoJSON(Ride{})
	assert.Error(t, err)

	_, err = FIT(Ride{Route: lShapeRoute(t)})
	assert.Error(t, err, "FIT needs a track")
}

func TestKML(t *testing.T) {
	ride := Ride{
		Route: lShapeRoute(t),
		Track: track(10),
		Stats: StatsFromTrack(track(10)),
	}

	var buf bytes.Buffer
	require.NoError(t, KML(&buf, ride))
	out := buf.String()

	assert.Contains(t, out, "<kml")
	assert.Contains(t, out, "<name>Col loop</name>")
	assert.Contains(t, out, "<name>Planned route</name>")
	assert.Contains(t, out, "<name>Ridden track</name>")
	assert.Contains(t, out, "<name>Gravel patch</name>")
	assert.Contains(t, out, "Turn left")
	assert.Contains(t, out, "7,45")
	assert.Equal(t, 2, strings.Count(out, "<LineString>"))
	assert.Equal(t, 4, strings.Count(out, "<Point>"), "three maneuvers and one hazard")
}

func TestKML_RouteOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, KML(&buf, Ride{Route: lShapeRoute(t)}))
	assert.Contains(t, buf.String(), "Not started")
	assert.NotContains(t, buf.String(), "Ridden track")
}

func TestGeoJSON(t *testing.T) {
	ride := Ride{
		Route: lShapeRoute(t),
		Track: track(5),
		Stats: StatsFromTrack(track(5)),
	}

	data, err := GeoJSON(ride)
	require.NoError(t, err)

	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)

	// route, depart, left, arrive, hazard, track
	require.Len(t, fc.Features, 6)
	assert.Equal(t, "route", fc.Features[0].Properties["kind"])
	assert.Equal(t, "LineString", fc.Features[0].Geometry.GeoJSONType())
	assert.Equal(t, "hazard", fc.Features[4].Properties["kind"])
	assert.Equal(t, "on_route", fc.Features[4].Properties["classification"])
	assert.Equal(t, "track", fc.Features[5].Properties["kind"])

	require.Len(t, fc.BBox, 4)
	assert.InDelta(t, 7, fc.BBox[0], 1e-9)
	assert.InDelta(t, 45, fc.BBox[1], 1e-9)
	assert.InDelta(t, 7.00254, fc.BBox[2], 1e-9)
	assert.InDelta(t, 45.0018, fc.BBox[3], 1e-9)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "FeatureCollection", raw["type"])
}

func TestFIT_RoundTrip(t *testing.T) {
	points := track(20)
	ride := Ride{Track: points, Stats: Stats{
		StartTime:     start,
		TotalDistance: points[19].DistanceTraveled,
		TotalElapsed:  38 * time.Second,
		TotalMoving:   30 * time.Second,
		AverageSpeed:  4,
	}}

	data, err := FIT(ride)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	var records []*mesgdef.Record
	var sessions []*mesgdef.Session
	var fileType typedef.File

	dec := decoder.New(bytes.NewReader(data))
	for dec.Next() {
		fitData, err := dec.Decode()
		require.NoError(t, err)
		for i := range fitData.Messages {
			msg := fitData.Messages[i]
			switch msg.Num {
			case typedef.MesgNumFileId:
				fileType = mesgdef.NewFileId(&msg).Type
			case typedef.MesgNumRecord:
				records = append(records, mesgdef.NewRecord(&msg))
			case typedef.MesgNumSession:
				sessions = append(sessions, mesgdef.NewSession(&msg))
			}
		}
	}

	assert.Equal(t, typedef.FileActivity, fileType)
	require.Len(t, records, 20)
	require.Len(t, sessions, 1)

	first := records[0]
	assert.InDelta(t, 45, float64(first.PositionLat)/semicirclesPerDegree, 1e-6)
	assert.InDelta(t, 7, float64(first.PositionLong)/semicirclesPerDegree, 1e-6)
	assert.Equal(t, uint16(4000), first.Speed)
	assert.InDelta(t, 250, float64(first.Altitude)/5-500, 0.2)
	assert.True(t, first.Timestamp.Equal(start))

	last := records[19]
	assert.InDelta(t, points[19].DistanceTraveled, float64(last.Distance)/100, 0.01)

	session := sessions[0]
	assert.Equal(t, typedef.SportCycling, session.Sport)
	assert.Equal(t, uint32(38000), session.TotalElapsedTime)
	assert.Equal(t, uint32(30000), session.TotalTimerTime)
	assert.InDelta(t, points[19].DistanceTraveled, float64(session.TotalDistance)/100, 0.01)
}

func TestFIT_Clamping(t *testing.T) {
	assert.Equal(t, uint16(0), toMillimetersPerSecond(-1))
	assert.Equal(t, uint16(math.MaxUint16-1), toMillimetersPerSecond(1000))
	assert.Equal(t, uint16(2500), toScaledAltitude(0))
	assert.Equal(t, uint32(0), toMillis(-time.Second))
	assert.Equal(t, int32(0), toSemicircles(0))
	assert.Equal(t, int32(math.MaxInt32-1), toSemicircles(180))
	assert.Equal(t, int32(math.MinInt32), toSemicircles(-180))
	assert.InDelta(t, 7.0, float64(toSemicircles(7))/semicirclesPerDegree, 1e-7)
}

func TestStatsFromTrack(t *testing.T) {
	assert.Equal(t, Stats{}, StatsFromTrack(nil))

	s := StatsFromTrack(track(11))
	assert.Equal(t, 20*time.Second, s.TotalElapsed)
	assert.InDelta(t, 78.6, s.TotalDistance, 1e-9)
	assert.InDelta(t, 3.93, s.AverageSpeed, 1e-9)
}

func TestWrite(t *testing.T) {
	ride := Ride{Route: lShapeRoute(t), Track: track(3)}
	for _, f := range []Format{FormatKML, FormatGeoJSON, FormatFIT} {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, f, ride), f)
		assert.NotZero(t, buf.Len(), f)
	}
	assert.Error(t, Write(&bytes.Buffer{}, Format("gpx"), ride))
}
