package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dpup/ride.ersn.net/server/internal/cache"
	"github.com/dpup/ride.ersn.net/server/internal/config"
	"github.com/dpup/ride.ersn.net/server/internal/lib/breadcrumb"
	"github.com/dpup/ride.ersn.net/server/internal/lib/clock"
	"github.com/dpup/ride.ersn.net/server/internal/lib/export"
	"github.com/dpup/ride.ersn.net/server/internal/lib/format"
	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
	"github.com/dpup/ride.ersn.net/server/internal/lib/maneuver"
	"github.com/dpup/ride.ersn.net/server/internal/lib/navigation"
	"github.com/dpup/ride.ersn.net/server/internal/lib/routing"
)

var (
	// ErrSessionNotFound is returned for unknown or reaped session ids
	ErrSessionNotFound = errors.New("session not found")
	// ErrTooManySessions is returned when the session limit is reached
	ErrTooManySessions = errors.New("too many active sessions")
	// ErrNoRouteProvider is returned when origin/destination routing is
	// requested without a configured provider
	ErrNoRouteProvider = errors.New("route provider not configured")
)

// Session is one rider navigating one route
type Session struct {
	ID        string
	CreatedAt time.Time
	Engine    *navigation.Engine

	mu         sync.Mutex
	lastActive time.Time
}

func (s *Session) touch(t time.Time) {
	s.mu.Lock()
	s.lastActive = t
	s.mu.Unlock()
}

// LastActive returns when the session last received a request
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// RouteRequest describes the route to navigate. Either Origin and
// Destination, EncodedPolyline or Points must be set.
type RouteRequest struct {
	Name            string
	Origin          *geo.Point
	Destination     *geo.Point
	EncodedPolyline string
	Points          []geo.Point
	DistanceMeters  float64
	DurationSeconds float64
	Maneuvers       []maneuver.Instruction
	Hazards         []routing.Hazard
}

// HazardSource supplies published hazards near a route
type HazardSource interface {
	HazardsNear(ctx context.Context, route *routing.Route, radiusMeters float64) ([]routing.Hazard, error)
}

// SessionManager owns the navigation sessions of the server
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	params    navigation.Params
	cfg       config.SessionsConfig
	router    cache.RouteProvider
	matcher   routing.HazardMatcher
	hazards   HazardSource
	radius    float64
	formatter *format.Formatter
	clock     clock.Clock
	logger    *zap.Logger
}

// SessionOption configures a SessionManager
type SessionOption func(*SessionManager)

// WithRouteProvider enables origin/destination route requests
func WithRouteProvider(p cache.RouteProvider) SessionOption {
	return func(m *SessionManager) { m.router = p }
}

// WithHazardMatcher replaces the default hazard matcher
func WithHazardMatcher(h routing.HazardMatcher) SessionOption {
	return func(m *SessionManager) { m.matcher = h }
}

// WithHazardSource adds published hazards within radiusMeters of each new
// route to those supplied in the request
func WithHazardSource(src HazardSource, radiusMeters float64) SessionOption {
	return func(m *SessionManager) {
		m.hazards = src
		m.radius = radiusMeters
	}
}

// WithSessionClock sets the clock shared by the manager and its engines
func WithSessionClock(c clock.Clock) SessionOption {
	return func(m *SessionManager) { m.clock = c }
}

// WithSessionLogger sets the logger shared by the manager and its engines
func WithSessionLogger(l *zap.Logger) SessionOption {
	return func(m *SessionManager) { m.logger = l }
}

// WithLocale sets the locale of display strings
func WithLocale(tag string) SessionOption {
	return func(m *SessionManager) { m.formatter = format.NewFromString(tag) }
}

// NewSessionManager creates a session registry
func NewSessionManager(params navigation.Params, cfg config.SessionsConfig, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		sessions:  make(map[string]*Session),
		params:    params,
		cfg:       cfg,
		matcher:   routing.NewHazardMatcher(0, 0),
		formatter: format.NewFromString("en"),
		clock:     clock.Real(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create builds the route, starts navigation on a new engine and registers
// the session
func (m *SessionManager) Create(ctx context.Context, req RouteRequest) (*Session, navigation.State, error) {
	m.mu.RLock()
	full := m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions
	m.mu.RUnlock()
	if full {
		return nil, navigation.State{}, ErrTooManySessions
	}

	id := uuid.New().String()
	route, err := m.buildRoute(ctx, id, req)
	if err != nil {
		return nil, navigation.State{}, err
	}

	engine := navigation.NewEngine(m.params,
		navigation.WithClock(m.clock),
		navigation.WithLogger(m.logger.With(zap.String("session", id))),
		navigation.WithFormatter(m.formatter),
		navigation.WithTracker(breadcrumb.NewTracker(
			breadcrumb.WithClock(m.clock),
			breadcrumb.WithLogger(m.logger))),
	)
	state, err := engine.StartNavigation(route)
	if err != nil {
		return nil, navigation.State{}, err
	}

	now := m.clock.Now()
	session := &Session{ID: id, CreatedAt: now, Engine: engine, lastActive: now}

	m.mu.Lock()
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, navigation.State{}, ErrTooManySessions
	}
	m.sessions[id] = session
	m.mu.Unlock()

	m.logger.Info("session created",
		zap.String("session", id),
		zap.String("route", route.ID),
		zap.Int("points", len(route.Points)),
		zap.Int("hazards", len(route.Hazards)))
	return session, state, nil
}

func (m *SessionManager) buildRoute(ctx context.Context, id string, req RouteRequest) (*routing.Route, error) {
	var route *routing.Route
	var err error

	opts := []routing.RouteOption{
		routing.WithName(req.Name),
		routing.WithDistance(req.DistanceMeters),
		routing.WithDuration(req.DurationSeconds),
	}
	if len(req.Maneuvers) > 0 {
		opts = append(opts, routing.WithManeuvers(req.Maneuvers))
	}

	switch {
	case req.EncodedPolyline != "":
		route, err = routing.NewRouteFromPolyline(id, req.EncodedPolyline, opts...)
	case len(req.Points) > 0:
		route, err = routing.NewRoute(id, req.Points, opts...)
	case req.Origin != nil && req.Destination != nil:
		if m.router == nil {
			return nil, ErrNoRouteProvider
		}
		route, err = m.router.ComputeBicycleRoute(ctx, *req.Origin, *req.Destination)
		if err == nil && req.Name != "" {
			named := *route
			named.Name = req.Name
			route = &named
		}
	default:
		return nil, fmt.Errorf("%w: route needs encoded_polyline, points or origin and destination", routing.ErrInvalidRoute)
	}
	if err != nil {
		return nil, err
	}

	hazards := req.Hazards
	if m.hazards != nil {
		published, err := m.hazards.HazardsNear(ctx, route, m.radius)
		if err != nil {
			m.logger.Warn("published hazards unavailable", zap.String("route", route.ID), zap.Error(err))
		}
		hazards = append(append([]routing.Hazard(nil), hazards...), published...)
	}

	if len(hazards) > 0 {
		route, err = m.matcher.AnnotateRoute(ctx, route, hazards)
		if err != nil {
			return nil, fmt.Errorf("failed to classify hazards: %w", err)
		}
	}
	return route, nil
}

// Get returns a registered session
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(m.clock.Now())
	return s, nil
}

// ProcessFix feeds one fix to the session's engine
func (m *SessionManager) ProcessFix(id string, fix geo.LocationFix) (navigation.Update, error) {
	s, err := m.Get(id)
	if err != nil {
		return navigation.Update{}, err
	}
	return s.Engine.ProcessFix(fix), nil
}

// DismissOffRoute hides the off-route dialog for the current episode
func (m *SessionManager) DismissOffRoute(id string) (navigation.State, error) {
	s, err := m.Get(id)
	if err != nil {
		return navigation.State{}, err
	}
	return s.Engine.DismissOffRouteDialog(), nil
}

// AcknowledgeArrival ends navigation once arrived. The bool is false when
// the rider has not arrived.
func (m *SessionManager) AcknowledgeArrival(id string) (navigation.State, bool, error) {
	s, err := m.Get(id)
	if err != nil {
		return navigation.State{}, false, err
	}
	state, ok := s.Engine.AcknowledgeArrival()
	return state, ok, nil
}

// Stop ends navigation. The session stays registered, with its track, so it
// can still be exported until it is reaped.
func (m *SessionManager) Stop(id string) (navigation.State, error) {
	s, err := m.Get(id)
	if err != nil {
		return navigation.State{}, err
	}
	state := s.Engine.StopNavigation()
	m.logger.Info("session stopped", zap.String("session", id))
	return state, nil
}

// Export writes the session's route and track in format f
func (m *SessionManager) Export(id string, f export.Format, w io.Writer) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}

	state := s.Engine.State()
	track := s.Engine.Track()
	ride := export.Ride{Route: state.ActiveRoute, Track: track}
	if state.IsNavigating {
		ride.Stats = export.StatsFromState(state)
	} else {
		ride.Stats = export.StatsFromTrack(track)
	}
	return export.Write(w, f, ride)
}

// Remove unregisters a session
func (m *SessionManager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Len returns the number of registered sessions
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ReapIdle removes sessions with no activity for the configured idle timeout
func (m *SessionManager) ReapIdle() []string {
	cutoff := m.clock.Now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()

	var reaped []string
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			s.Engine.StopNavigation()
			delete(m.sessions, id)
			reaped = append(reaped, id)
		}
	}
	return reaped
}
