package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/dpup/ride.ersn.net/server/internal/config"
	"github.com/dpup/ride.ersn.net/server/internal/lib/breadcrumb"
	"github.com/dpup/ride.ersn.net/server/internal/lib/clock"
	"github.com/dpup/ride.ersn.net/server/internal/lib/format"
	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
	"github.com/dpup/ride.ersn.net/server/internal/lib/navigation"
	"github.com/dpup/ride.ersn.net/server/internal/lib/routing"
	"github.com/dpup/ride.ersn.net/server/internal/lib/speed"
)

// duration decodes TOML strings such as "90s" or "2m30s"
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Scenario is a scripted ride. Fixes are either listed explicitly or
// generated by riding the route leg by leg.
type Scenario struct {
	Name     string       `toml:"name"`
	Start    time.Time    `toml:"start"`
	Interval duration     `toml:"interval"`
	Route    RouteSpec    `toml:"route"`
	Hazards  []HazardSpec `toml:"hazards"`
	Legs     []LegSpec    `toml:"legs"`
	Fixes    []FixSpec    `toml:"fixes"`
}

// RouteSpec is the route geometry, as an encoded polyline or [lat, lon] pairs
type RouteSpec struct {
	EncodedPolyline string `toml:"encoded_polyline"`
	// Precision is 5 (Google, the default) or 6 (Valhalla and OSRM polyline6)
	Precision int         `toml:"precision"`
	Points    [][]float64 `toml:"points"`
}

type HazardSpec struct {
	ID    string  `toml:"id"`
	Title string  `toml:"title"`
	Kind  string  `toml:"kind"`
	Lat   float64 `toml:"lat"`
	Lon   float64 `toml:"lon"`
}

// LegSpec rides along the route at a constant speed. OffsetMeters shifts
// the generated fixes east of the route, to simulate leaving it.
type LegSpec struct {
	SpeedKmh     float64  `toml:"speed_kmh"`
	Duration     duration `toml:"duration"`
	OffsetMeters float64  `toml:"offset_meters"`
}

type FixSpec struct {
	Lat      float64  `toml:"lat"`
	Lon      float64  `toml:"lon"`
	SpeedKmh *float64 `toml:"speed_kmh"`
	Altitude *float64 `toml:"altitude"`
	Heading  *float64 `toml:"heading"`
}

// LoadScenario decodes and checks a scenario file
func LoadScenario(path string) (*Scenario, error) {
	var s Scenario
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return nil, fmt.Errorf("error decoding scenario file: %w", err)
	}
	if err := s.normalize(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &s, nil
}

func (s *Scenario) normalize() error {
	if s.Interval.Duration <= 0 {
		s.Interval.Duration = time.Second
	}
	if s.Start.IsZero() {
		s.Start = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	}
	if s.Route.EncodedPolyline == "" && len(s.Route.Points) == 0 {
		return errors.New("route needs encoded_polyline or points")
	}
	if s.Route.Precision == 0 {
		s.Route.Precision = 5
	}
	if s.Route.Precision != 5 && s.Route.Precision != 6 {
		return fmt.Errorf("unsupported polyline precision %d", s.Route.Precision)
	}
	if len(s.Legs) == 0 && len(s.Fixes) == 0 {
		return errors.New("scenario needs legs or fixes")
	}
	for i, leg := range s.Legs {
		if leg.SpeedKmh < 0 || leg.Duration.Duration <= 0 {
			return fmt.Errorf("leg %d: speed must not be negative and duration must be positive", i)
		}
	}
	return nil
}

func (s *Scenario) buildRoute(ctx context.Context, matcher routing.HazardMatcher) (*routing.Route, error) {
	id := "replay"
	var route *routing.Route
	var err error
	switch {
	case s.Route.EncodedPolyline != "" && s.Route.Precision == 6:
		var points []geo.Point
		if points, err = geo.DecodePolyline6(s.Route.EncodedPolyline); err != nil {
			return nil, err
		}
		route, err = routing.NewRoute(id, points, routing.WithName(s.Name))
	case s.Route.EncodedPolyline != "":
		route, err = routing.NewRouteFromPolyline(id, s.Route.EncodedPolyline, routing.WithName(s.Name))
	default:
		points := make([]geo.Point, 0, len(s.Route.Points))
		for i, pair := range s.Route.Points {
			if len(pair) != 2 {
				return nil, fmt.Errorf("route point %d: want [lat, lon], got %v", i, pair)
			}
			points = append(points, geo.Point{Latitude: pair[0], Longitude: pair[1]})
		}
		route, err = routing.NewRoute(id, points, routing.WithName(s.Name))
	}
	if err != nil {
		return nil, err
	}

	if len(s.Hazards) == 0 {
		return route, nil
	}
	hazards := make([]routing.Hazard, len(s.Hazards))
	for i, h := range s.Hazards {
		kind := routing.HazardKind(h.Kind)
		if kind == "" {
			kind = routing.HazardOther
		}
		hazards[i] = routing.Hazard{
			ID:       h.ID,
			Title:    h.Title,
			Kind:     kind,
			Location: geo.Point{Latitude: h.Lat, Longitude: h.Lon},
		}
	}
	return matcher.AnnotateRoute(ctx, route, hazards)
}

// fixes expands the scenario into timestamped fixes, one per interval
func (s *Scenario) fixes(route *routing.Route) []geo.LocationFix {
	at := s.Start
	var out []geo.LocationFix

	if len(s.Fixes) > 0 {
		for _, f := range s.Fixes {
			at = at.Add(s.Interval.Duration)
			fix := geo.LocationFix{
				Latitude:  f.Lat,
				Longitude: f.Lon,
				Altitude:  f.Altitude,
				Heading:   f.Heading,
				Timestamp: at,
			}
			if f.SpeedKmh != nil {
				mps := speed.KmhToMps(*f.SpeedKmh)
				fix.Speed = &mps
			}
			out = append(out, fix)
		}
		return out
	}

	along := 0.0
	length := route.Length()
	for _, leg := range s.Legs {
		mps := speed.KmhToMps(leg.SpeedKmh)
		steps := int(leg.Duration.Duration / s.Interval.Duration)
		for i := 0; i < steps; i++ {
			at = at.Add(s.Interval.Duration)
			along = math.Min(along+mps*s.Interval.Seconds(), length)
			p := offsetEast(pointAlong(route, along), leg.OffsetMeters)
			v := mps
			out = append(out, geo.LocationFix{
				Latitude:  p.Latitude,
				Longitude: p.Longitude,
				Speed:     &v,
				Timestamp: at,
			})
		}
	}
	return out
}

// pointAlong interpolates the route position meters from its start
func pointAlong(route *routing.Route, meters float64) geo.Point {
	last := route.LastIndex()
	for i := 0; i < last; i++ {
		start, end := route.CumulativeAt(i), route.CumulativeAt(i+1)
		if meters > end {
			continue
		}
		a, b := route.Points[i], route.Points[i+1]
		if end == start {
			return a
		}
		f := (meters - start) / (end - start)
		return geo.Point{
			Latitude:  a.Latitude + f*(b.Latitude-a.Latitude),
			Longitude: a.Longitude + f*(b.Longitude-a.Longitude),
		}
	}
	return route.Destination()
}

func offsetEast(p geo.Point, meters float64) geo.Point {
	if meters == 0 {
		return p
	}
	metersPerDegLon := geo.EarthRadiusMeters * math.Pi / 180 * math.Cos(p.Latitude*math.Pi/180)
	return geo.Point{Latitude: p.Latitude, Longitude: p.Longitude + meters/metersPerDegLon}
}

// Result is the outcome of a replayed ride
type Result struct {
	Route  *routing.Route
	State  navigation.State
	Events []navigation.Event
	Track  []navigation.TrackPoint
}

// Replay runs the scenario through a navigation engine on a fake clock
func Replay(ctx context.Context, s *Scenario, cfg *config.Config, logger *zap.Logger) (*Result, error) {
	matcher := routing.NewHazardMatcher(cfg.Routing.HazardOnRouteMeters, cfg.Routing.HazardNearbyMeters)
	route, err := s.buildRoute(ctx, matcher)
	if err != nil {
		return nil, err
	}

	fake := clock.NewFake(s.Start)
	engine := navigation.NewEngine(cfg.Navigation.ToParams(),
		navigation.WithClock(fake),
		navigation.WithLogger(logger),
		navigation.WithFormatter(format.NewFromString(cfg.Navigation.Locale)),
		navigation.WithTracker(breadcrumb.NewTracker(breadcrumb.WithClock(fake), breadcrumb.WithLogger(logger))),
	)
	state, err := engine.StartNavigation(route)
	if err != nil {
		return nil, err
	}

	result := &Result{Route: state.ActiveRoute}
	for _, fix := range s.fixes(route) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fake.Set(fix.Timestamp)
		update := engine.ProcessFix(fix)
		result.Events = append(result.Events, update.Events...)
		state = update.State
		if state.HasArrived {
			break
		}
	}

	result.State = state
	result.Track = engine.Track()
	return result, nil
}
