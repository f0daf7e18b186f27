package navigation

import (
	"time"

	"github.com/dpup/ride.ersn.net/server/internal/lib/maneuver"
)

// EventType names a transition a voice or UI collaborator reacts to
type EventType string

const (
	EventDeparted       EventType = "departed"
	EventOffRoute       EventType = "off_route"
	EventBackOnRoute    EventType = "back_on_route"
	EventManeuverPassed EventType = "maneuver_passed"
	EventApproaching    EventType = "approaching"
	EventArrived        EventType = "arrived"
)

// Event is emitted by ProcessFix when a transition happens on that fix
type Event struct {
	Type     EventType             `json:"type"`
	At       time.Time             `json:"at"`
	Maneuver *maneuver.Instruction `json:"maneuver,omitempty"`
	Distance float64               `json:"distance_meters,omitempty"`
}

// Update is the result of processing one fix
type Update struct {
	State  State
	Events []Event
}

// Has reports whether the update carries an event of type t
func (u Update) Has(t EventType) bool {
	for _, e := range u.Events {
		if e.Type == t {
			return true
		}
	}
	return false
}
