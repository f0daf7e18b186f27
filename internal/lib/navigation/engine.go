package navigation

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dpup/ride.ersn.net/server/internal/lib/breadcrumb"
	"github.com/dpup/ride.ersn.net/server/internal/lib/clock"
	"github.com/dpup/ride.ersn.net/server/internal/lib/format"
	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
	"github.com/dpup/ride.ersn.net/server/internal/lib/maneuver"
	"github.com/dpup/ride.ersn.net/server/internal/lib/routing"
	"github.com/dpup/ride.ersn.net/server/internal/lib/speed"
)

// TrackPoint is one recorded position of the ride, kept for export
type TrackPoint struct {
	Position         geo.Point `json:"position"`
	Timestamp        time.Time `json:"timestamp"`
	Speed            float64   `json:"speed"`
	Altitude         *float64  `json:"altitude,omitempty"`
	DistanceTraveled float64   `json:"distance_traveled"`
	OffRoute         bool      `json:"off_route"`
}

// Engine tracks one rider along one route. Fixes must be processed in
// arrival order; all methods are safe for concurrent use.
type Engine struct {
	mu sync.RWMutex

	params    Params
	clock     clock.Clock
	logger    *zap.Logger
	tracker   *breadcrumb.Tracker
	formatter *format.Formatter

	state     State
	sequencer *maneuver.Sequencer
	track     []TrackPoint

	// Last plausible fix, used for derived speed and distance accumulation
	lastPos    geo.Point
	lastFixAt  time.Time
	hasLastFix bool

	offRouteSince   time.Time
	dialogDismissed bool
	departed        bool
}

// Option configures an Engine
type Option func(*Engine)

// WithClock sets the time source for elapsed time and dwell timers
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the engine logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracker injects the breadcrumb tracker. By default one is created
// sharing the engine's clock and logger.
func WithTracker(t *breadcrumb.Tracker) Option {
	return func(e *Engine) { e.tracker = t }
}

// WithFormatter sets the formatter used for the text fields of State
func WithFormatter(f *format.Formatter) Option {
	return func(e *Engine) { e.formatter = f }
}

// NewEngine creates an idle engine
func NewEngine(params Params, opts ...Option) *Engine {
	e := &Engine{
		params: params,
		clock:  clock.Real(),
		logger: zap.NewNop(),
		state:  idleState(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracker == nil {
		e.tracker = breadcrumb.NewTracker(breadcrumb.WithClock(e.clock), breadcrumb.WithLogger(e.logger))
	}
	if e.formatter == nil {
		e.formatter = format.NewFromString("en")
	}
	return e
}

// Params returns the thresholds in use
func (e *Engine) Params() Params {
	return e.params
}

// State returns the current snapshot
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Track returns a copy of the recorded ride
func (e *Engine) Track() []TrackPoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]TrackPoint, len(e.track))
	copy(out, e.track)
	return out
}

// Breadcrumbs returns the current breadcrumb trail
func (e *Engine) Breadcrumbs() []breadcrumb.Breadcrumb {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tracker.Breadcrumbs()
}

// StartNavigation begins navigating route from its first point. Any session
// in progress is replaced. Routes without maneuvers get derived ones.
func (e *Engine) StartNavigation(route *routing.Route) (State, error) {
	if route == nil || len(route.Points) < 2 {
		return State{}, fmt.Errorf("%w: route must have at least 2 points", routing.ErrInvalidRoute)
	}

	maneuvers := route.Maneuvers
	if len(maneuvers) == 0 {
		maneuvers = maneuver.Derive(route.Points)
		route = route.WithManeuvers(maneuvers)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	e.reset()
	e.sequencer = maneuver.NewSequencer(maneuvers)
	e.sequencer.Advance(0)

	start := route.Points[0]
	remaining := route.Length()

	s := State{
		Phase:                  PhaseNavigating,
		IsNavigating:           true,
		ActiveRoute:            route,
		SnappedPosition:        &start,
		AllManeuvers:           e.sequencer.All(),
		TotalDistanceRemaining: remaining,
		EstimatedTimeRemaining: estimateTimeRemaining(remaining, 0, false, e.params),
		RecommendedZoom:        speed.ZoomForSpeed(0),
		StartTime:              now,
		LastUpdateTime:         now,
	}
	s = e.withManeuverProgress(s, start)
	s = e.withHazardProgress(s, start)
	s = e.withText(s)
	e.state = s

	e.logger.Info("navigation started",
		zap.String("route_id", route.ID),
		zap.Int("points", len(route.Points)),
		zap.Int("maneuvers", len(maneuvers)),
		zap.Float64("distance_meters", remaining))

	return s, nil
}

// StopNavigation resets to idle. The recorded track is kept until the next
// StartNavigation.
func (e *Engine) StopNavigation() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocked()
}

// AcknowledgeArrival resets to idle once the rider has arrived. It reports
// false and changes nothing otherwise.
func (e *Engine) AcknowledgeArrival() (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.HasArrived {
		return e.state, false
	}
	return e.stopLocked(), true
}

func (e *Engine) stopLocked() State {
	if e.state.IsNavigating {
		e.logger.Info("navigation stopped",
			zap.String("route_id", e.state.ActiveRoute.ID),
			zap.Bool("arrived", e.state.HasArrived),
			zap.Float64("distance_traveled", e.state.TotalDistanceTraveled))
	}
	e.state = idleState()
	e.tracker.Clear()
	e.sequencer = nil
	e.hasLastFix = false
	return e.state
}

// DismissOffRouteDialog hides the off-route dialog for the current
// off-route episode
func (e *Engine) DismissOffRouteDialog() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.IsOffRoute {
		e.dialogDismissed = true
	}
	e.state = e.state.with(func(s *State) { s.ShowingOffRouteDialog = false })
	return e.state
}

// reset clears per-session bookkeeping. Callers hold the lock.
func (e *Engine) reset() {
	e.tracker.Clear()
	e.track = e.track[:0]
	e.hasLastFix = false
	e.offRouteSince = time.Time{}
	e.dialogDismissed = false
	e.departed = false
}

// ProcessFix advances the session by one GPS fix. When not navigating the
// idle state is returned unchanged.
func (e *Engine) ProcessFix(fix geo.LocationFix) Update {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.IsNavigating {
		return Update{State: e.state}
	}

	pos := fix.Point()
	if !geo.IsValidCoordinate(pos) {
		e.logger.Warn("ignoring fix with invalid coordinates",
			zap.Float64("lat", fix.Latitude), zap.Float64("lng", fix.Longitude))
		return Update{State: e.state}
	}

	now := e.clock.Now()
	prev := e.state
	route := prev.ActiveRoute
	var events []Event
	emit := func(t EventType, m *maneuver.Instruction, d float64) {
		events = append(events, Event{Type: t, At: now, Maneuver: m, Distance: d})
	}

	elapsed := now.Sub(prev.LastUpdateTime)
	if elapsed < 0 {
		elapsed = 0
	}

	fixSpeed, plausible := e.resolveSpeed(fix, pos, now)

	s := prev
	s.CurrentPosition = &pos
	s.LastUpdateTime = now

	// 1. Breadcrumbs and heading
	if plausible {
		s.CurrentSpeed = fixSpeed
		e.tracker.AddBreadcrumb(fix)
	}
	if h, ok := e.resolveHeading(fix, fixSpeed, plausible); ok {
		s.CurrentHeading = &h
	}

	// 2. Snap
	snap, onRoute := route.Snap(pos, prev.CurrentSegmentIndex, e.params.SnapThreshold, e.params.SnapWindow)
	if onRoute {
		segment, snapped := snap.SegmentIndex, snap.Point
		if segment < prev.CurrentSegmentIndex {
			// Never move backwards; pin to the current segment instead
			segment = prev.CurrentSegmentIndex
			snapped = geo.ProjectPointOnSegment(pos, route.Points[segment], route.Points[segment+1])
		}

		if prev.IsOffRoute {
			emit(EventBackOnRoute, nil, snap.Distance)
			e.logger.Info("back on route",
				zap.String("route_id", route.ID),
				zap.Duration("off_route_for", now.Sub(e.offRouteSince)))
		}

		s.CurrentSegmentIndex = segment
		s.SnappedPosition = &snapped
		s.IsOffRoute = false
		s.OffRouteDistanceMeters = 0
		s.ShowingOffRouteDialog = false
		s.TotalDistanceRemaining = math.Max(0, route.RemainingFrom(segment, snapped))
		e.offRouteSince = time.Time{}
		e.dialogDismissed = false

		// 3. Maneuvers and hazards ahead
		for _, m := range e.sequencer.Advance(segment) {
			if m.Type == maneuver.Depart {
				continue
			}
			emit(EventManeuverPassed, ptr(m), 0)
		}
		s = e.withManeuverProgress(s, snapped)
		s = e.withHazardProgress(s, snapped)
	} else {
		if !prev.IsOffRoute {
			e.offRouteSince = now
			emit(EventOffRoute, nil, snap.Distance)
			e.logger.Info("off route",
				zap.String("route_id", route.ID),
				zap.Float64("distance_meters", snap.Distance),
				zap.Int("segment", prev.CurrentSegmentIndex))
		}
		s.IsOffRoute = true
		s.OffRouteDistanceMeters = snap.Distance
		if !e.dialogDismissed && now.Sub(e.offRouteSince) >= e.params.OffRouteDialogDelay {
			s.ShowingOffRouteDialog = true
		}
	}

	// 4. Accumulators
	s.TotalTimeElapsed += elapsed
	moving := plausible && fixSpeed >= e.params.MinMovingSpeed
	if plausible {
		step := 0.0
		if e.hasLastFix {
			step = geo.DistanceBetween(e.lastPos, pos)
		}
		s.TotalDistanceTraveled += step
		if moving {
			s.TotalTimeMoving += elapsed
			s.MovingDistance += step
		}
		e.lastPos, e.lastFixAt, e.hasLastFix = pos, e.fixTime(fix, now), true
	}
	s.AverageSpeedWithStops, s.AverageSpeedWithoutStops = averageSpeeds(
		s.TotalDistanceTraveled, s.MovingDistance, s.TotalTimeElapsed, s.TotalTimeMoving)

	if moving && !e.departed {
		e.departed = true
		emit(EventDeparted, nil, 0)
	}

	s.EstimatedTimeRemaining = estimateTimeRemaining(s.TotalDistanceRemaining, s.CurrentSpeed, plausible, e.params)
	s.ETARange = etaRange(s.TotalDistanceRemaining, s.TotalTimeElapsed,
		s.AverageSpeedWithStops, s.AverageSpeedWithoutStops, e.params)

	// 5. Arrival
	if !s.HasArrived {
		s = e.withArrivalProgress(s, now, emit)
	}

	s.RecommendedZoom = speed.ZoomForSpeed(s.CurrentSpeed)
	s.Phase = s.phase()
	s = e.withText(s)

	if plausible {
		e.record(TrackPoint{
			Position:         pos,
			Timestamp:        e.fixTime(fix, now),
			Speed:            fixSpeed,
			Altitude:         fix.Altitude,
			DistanceTraveled: s.TotalDistanceTraveled,
			OffRoute:         s.IsOffRoute,
		})
	} else {
		e.logger.Debug("implausible fix excluded from averages",
			zap.Float64("speed", fixSpeed),
			zap.Float64("max", e.params.MaxPlausibleSpeed))
	}

	e.state = s
	return Update{State: s, Events: events}
}

// resolveSpeed returns the reported speed, or one derived from the previous
// plausible fix, and whether it is believable
func (e *Engine) resolveSpeed(fix geo.LocationFix, pos geo.Point, now time.Time) (float64, bool) {
	if fix.Speed != nil {
		return *fix.Speed, speed.IsPlausible(*fix.Speed, e.params.MaxPlausibleSpeed)
	}
	if !e.hasLastFix {
		return 0, true
	}
	dt := e.fixTime(fix, now).Sub(e.lastFixAt).Seconds()
	if dt <= 0 {
		return 0, true
	}
	derived := geo.DistanceBetween(e.lastPos, pos) / dt
	return derived, speed.IsPlausible(derived, e.params.MaxPlausibleSpeed)
}

func (e *Engine) fixTime(fix geo.LocationFix, now time.Time) time.Time {
	if fix.Timestamp.IsZero() {
		return now
	}
	return fix.Timestamp
}

// resolveHeading prefers the GPS heading at speed, then the smoothed travel
// direction. False keeps the previous heading.
func (e *Engine) resolveHeading(fix geo.LocationFix, fixSpeed float64, plausible bool) (float64, bool) {
	if !plausible {
		return 0, false
	}
	if fix.Heading != nil && fixSpeed >= e.params.HeadingReliableSpeed {
		return math.Mod(math.Mod(*fix.Heading, 360)+360, 360), true
	}
	return e.tracker.CalculateTravelDirection(e.params.BearingSmoothingRatio, e.params.DirectionLogging)
}

func (e *Engine) withManeuverProgress(s State, snapped geo.Point) State {
	next, ok := e.sequencer.Next()
	if !ok {
		s.NextManeuver = nil
		s.DistanceToNextManeuver = nil
		return s
	}
	s.NextManeuver = &next
	if d, ok := e.sequencer.DistanceToNext(s.ActiveRoute, s.CurrentSegmentIndex, snapped); ok {
		s.DistanceToNextManeuver = &d
	}
	return s
}

func (e *Engine) withHazardProgress(s State, snapped geo.Point) State {
	along := s.ActiveRoute.DistanceAlong(s.CurrentSegmentIndex, snapped)
	if h, d, ok := routing.NextHazard(s.ActiveRoute.Hazards, along); ok {
		s.NextHazard = &h
		s.DistanceToNextHazard = &d
	} else {
		s.NextHazard = nil
		s.DistanceToNextHazard = nil
	}
	return s
}

// withArrivalProgress works on distance remaining along the route, never the
// straight-line distance, so a loop route does not arrive at its start
func (e *Engine) withArrivalProgress(s State, now time.Time, emit func(EventType, *maneuver.Instruction, float64)) State {
	within := func(threshold float64) bool {
		return s.TotalDistanceRemaining < threshold
	}

	approaching := within(e.params.ApproachThreshold)
	if approaching && !s.IsApproachingDestination {
		emit(EventApproaching, nil, s.TotalDistanceRemaining)
	}
	s.IsApproachingDestination = approaching

	if !within(e.params.ArrivalThreshold) {
		s.ArrivalZoneEntryTime = nil
		return s
	}

	if s.ArrivalZoneEntryTime == nil {
		s.ArrivalZoneEntryTime = ptr(now)
	}
	if now.Sub(*s.ArrivalZoneEntryTime) >= e.params.ArrivalDwell {
		s.HasArrived = true
		emit(EventArrived, nil, s.TotalDistanceRemaining)
		e.logger.Info("arrived",
			zap.String("route_id", s.ActiveRoute.ID),
			zap.Float64("distance_traveled", s.TotalDistanceTraveled),
			zap.Duration("elapsed", s.TotalTimeElapsed),
			zap.Int("maneuvers_passed", e.sequencer.PassedCount()))
	}
	return s
}

func (e *Engine) withText(s State) State {
	f := e.formatter
	s.DistanceRemainingText = f.Distance(s.TotalDistanceRemaining)
	s.TimeRemainingText = f.Duration(s.EstimatedTimeRemaining)
	s.SpeedText = f.Speed(s.CurrentSpeed)
	s.DistanceToNextManeuverText = ""
	if s.DistanceToNextManeuver != nil {
		s.DistanceToNextManeuverText = f.Distance(*s.DistanceToNextManeuver)
	}
	return s
}

func (e *Engine) record(p TrackPoint) {
	if e.params.MaxTrackPoints > 0 && len(e.track) >= e.params.MaxTrackPoints {
		// Drop the oldest half rather than shifting on every fix
		half := len(e.track) / 2
		e.track = append(e.track[:0], e.track[half:]...)
	}
	e.track = append(e.track, p)
}
