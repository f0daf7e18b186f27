package navigation

import (
	"time"

	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
	"github.com/dpup/ride.ersn.net/server/internal/lib/maneuver"
	"github.com/dpup/ride.ersn.net/server/internal/lib/routing"
)

// Phase is the coarse navigation state
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseNavigating  Phase = "navigating"
	PhaseOffRoute    Phase = "offRoute"
	PhaseApproaching Phase = "approaching"
	PhaseArrived     Phase = "arrived"
)

// ETARange brackets the time remaining in seconds. Optimistic assumes no
// further stops, pessimistic assumes stops continue at the ride's rate so far.
type ETARange struct {
	Optimistic  float64 `json:"optimistic_seconds"`
	Pessimistic float64 `json:"pessimistic_seconds"`
}

// State is an immutable snapshot of a navigation session. Every fix
// produces a new value; nothing reachable from a State is mutated after it
// is published.
type State struct {
	Phase        Phase
	IsNavigating bool
	ActiveRoute  *routing.Route

	CurrentPosition     *geo.Point
	SnappedPosition     *geo.Point
	CurrentSpeed        float64 // m/s
	CurrentHeading      *float64
	CurrentSegmentIndex int

	AllManeuvers           []maneuver.Instruction
	NextManeuver           *maneuver.Instruction
	DistanceToNextManeuver *float64

	NextHazard           *routing.ClassifiedHazard
	DistanceToNextHazard *float64

	TotalDistanceRemaining float64
	EstimatedTimeRemaining float64 // seconds
	ETARange               *ETARange

	IsOffRoute             bool
	OffRouteDistanceMeters float64
	ShowingOffRouteDialog  bool

	IsApproachingDestination bool
	HasArrived               bool
	ArrivalZoneEntryTime     *time.Time

	AverageSpeedWithStops    *float64
	AverageSpeedWithoutStops *float64
	TotalDistanceTraveled    float64
	MovingDistance           float64
	TotalTimeElapsed         time.Duration
	TotalTimeMoving          time.Duration

	RecommendedZoom float64
	StartTime       time.Time
	LastUpdateTime  time.Time

	DistanceRemainingText      string
	TimeRemainingText          string
	SpeedText                  string
	DistanceToNextManeuverText string
}

// idleState is the empty state before StartNavigation and after a reset
func idleState() State {
	return State{Phase: PhaseIdle}
}

// with returns a modified copy
func (s State) with(fn func(*State)) State {
	fn(&s)
	return s
}

func (s State) phase() Phase {
	switch {
	case !s.IsNavigating:
		return PhaseIdle
	case s.HasArrived:
		return PhaseArrived
	case s.IsOffRoute:
		return PhaseOffRoute
	case s.IsApproachingDestination:
		return PhaseApproaching
	default:
		return PhaseNavigating
	}
}

// RemainingManeuvers returns the maneuvers not yet passed, next first
func (s State) RemainingManeuvers() []maneuver.Instruction {
	if s.NextManeuver == nil {
		return nil
	}
	for i, m := range s.AllManeuvers {
		if m.RoutePointIndex == s.NextManeuver.RoutePointIndex && m.Type == s.NextManeuver.Type {
			return s.AllManeuvers[i:]
		}
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
