package services

import (
	"time"

	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
	"github.com/dpup/ride.ersn.net/server/internal/lib/maneuver"
	"github.com/dpup/ride.ersn.net/server/internal/lib/navigation"
	"github.com/dpup/ride.ersn.net/server/internal/lib/routing"
)

// createSessionRequest is the body of POST /nav/sessions
type createSessionRequest struct {
	Name            string                 `json:"name,omitempty"`
	Origin          *geo.Point             `json:"origin,omitempty"`
	Destination     *geo.Point             `json:"destination,omitempty"`
	EncodedPolyline string                 `json:"encoded_polyline,omitempty"`
	Points          []geo.Point            `json:"points,omitempty"`
	DistanceMeters  float64                `json:"distance_meters,omitempty"`
	DurationSeconds float64                `json:"duration_seconds,omitempty"`
	Maneuvers       []maneuver.Instruction `json:"maneuvers,omitempty"`
	Hazards         []routing.Hazard       `json:"hazards,omitempty"`
}

func (r createSessionRequest) toRouteRequest() RouteRequest {
	return RouteRequest{
		Name:            r.Name,
		Origin:          r.Origin,
		Destination:     r.Destination,
		EncodedPolyline: r.EncodedPolyline,
		Points:          r.Points,
		DistanceMeters:  r.DistanceMeters,
		DurationSeconds: r.DurationSeconds,
		Maneuvers:       r.Maneuvers,
		Hazards:         r.Hazards,
	}
}

type sessionResponse struct {
	SessionID string         `json:"session_id"`
	Route     *routing.Route `json:"route,omitempty"`
	State     stateResponse  `json:"state"`
}

type fixResponse struct {
	State  stateResponse      `json:"state"`
	Events []navigation.Event `json:"events"`
}

type arrivalResponse struct {
	Acknowledged bool          `json:"acknowledged"`
	State        stateResponse `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// stateResponse is the wire form of navigation.State. Durations are seconds
// and the route is referenced by id only.
type stateResponse struct {
	Phase        navigation.Phase `json:"phase"`
	IsNavigating bool             `json:"is_navigating"`
	RouteID      string           `json:"route_id,omitempty"`

	CurrentPosition     *geo.Point `json:"current_position,omitempty"`
	SnappedPosition     *geo.Point `json:"snapped_position,omitempty"`
	CurrentSpeed        float64    `json:"current_speed"`
	CurrentHeading      *float64   `json:"current_heading,omitempty"`
	CurrentSegmentIndex int        `json:"current_segment_index"`

	NextManeuver           *maneuver.Instruction  `json:"next_maneuver,omitempty"`
	DistanceToNextManeuver *float64               `json:"distance_to_next_maneuver,omitempty"`
	RemainingManeuvers     []maneuver.Instruction `json:"remaining_maneuvers,omitempty"`

	NextHazard           *routing.ClassifiedHazard `json:"next_hazard,omitempty"`
	DistanceToNextHazard *float64                  `json:"distance_to_next_hazard,omitempty"`

	TotalDistanceRemaining float64              `json:"total_distance_remaining"`
	EstimatedTimeRemaining float64              `json:"estimated_time_remaining"`
	ETARange               *navigation.ETARange `json:"eta_range,omitempty"`

	IsOffRoute             bool    `json:"is_off_route"`
	OffRouteDistanceMeters float64 `json:"off_route_distance_meters"`
	ShowingOffRouteDialog  bool    `json:"showing_off_route_dialog"`

	IsApproachingDestination bool       `json:"is_approaching_destination"`
	HasArrived               bool       `json:"has_arrived"`
	ArrivalZoneEntryTime     *time.Time `json:"arrival_zone_entry_time,omitempty"`

	AverageSpeedWithStops    *float64 `json:"average_speed_with_stops,omitempty"`
	AverageSpeedWithoutStops *float64 `json:"average_speed_without_stops,omitempty"`
	TotalDistanceTraveled    float64  `json:"total_distance_traveled"`
	MovingDistance           float64  `json:"moving_distance"`
	TotalTimeElapsed         float64  `json:"total_time_elapsed"`
	TotalTimeMoving          float64  `json:"total_time_moving"`

	RecommendedZoom float64    `json:"recommended_zoom"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	LastUpdateTime  *time.Time `json:"last_update_time,omitempty"`

	DistanceRemainingText      string `json:"distance_remaining_text,omitempty"`
	TimeRemainingText          string `json:"time_remaining_text,omitempty"`
	SpeedText                  string `json:"speed_text,omitempty"`
	DistanceToNextManeuverText string `json:"distance_to_next_maneuver_text,omitempty"`
}

func toStateResponse(s navigation.State) stateResponse {
	resp := stateResponse{
		Phase:                      s.Phase,
		IsNavigating:               s.IsNavigating,
		CurrentPosition:            s.CurrentPosition,
		SnappedPosition:            s.SnappedPosition,
		CurrentSpeed:               s.CurrentSpeed,
		CurrentHeading:             s.CurrentHeading,
		CurrentSegmentIndex:        s.CurrentSegmentIndex,
		NextManeuver:               s.NextManeuver,
		DistanceToNextManeuver:     s.DistanceToNextManeuver,
		RemainingManeuvers:         s.RemainingManeuvers(),
		NextHazard:                 s.NextHazard,
		DistanceToNextHazard:       s.DistanceToNextHazard,
		TotalDistanceRemaining:     s.TotalDistanceRemaining,
		EstimatedTimeRemaining:     s.EstimatedTimeRemaining,
		ETARange:                   s.ETARange,
		IsOffRoute:                 s.IsOffRoute,
		OffRouteDistanceMeters:     s.OffRouteDistanceMeters,
		ShowingOffRouteDialog:      s.ShowingOffRouteDialog,
		IsApproachingDestination:   s.IsApproachingDestination,
		HasArrived:                 s.HasArrived,
		ArrivalZoneEntryTime:       s.ArrivalZoneEntryTime,
		AverageSpeedWithStops:      s.AverageSpeedWithStops,
		AverageSpeedWithoutStops:   s.AverageSpeedWithoutStops,
		TotalDistanceTraveled:      s.TotalDistanceTraveled,
		MovingDistance:             s.MovingDistance,
		TotalTimeElapsed:           s.TotalTimeElapsed.Seconds(),
		TotalTimeMoving:            s.TotalTimeMoving.Seconds(),
		RecommendedZoom:            s.RecommendedZoom,
		DistanceRemainingText:      s.DistanceRemainingText,
		TimeRemainingText:          s.TimeRemainingText,
		SpeedText:                  s.SpeedText,
		DistanceToNextManeuverText: s.DistanceToNextManeuverText,
	}
	if s.ActiveRoute != nil {
		resp.RouteID = s.ActiveRoute.ID
	}
	if !s.StartTime.IsZero() {
		t := s.StartTime
		resp.StartTime = &t
	}
	if !s.LastUpdateTime.IsZero() {
		t := s.LastUpdateTime
		resp.LastUpdateTime = &t
	}
	return resp
}
