package maneuver

import (
	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
)

// Type is the kind of maneuver at a route point
type Type string

const (
	Straight    Type = "straight"
	TurnLeft    Type = "turnLeft"
	TurnRight   Type = "turnRight"
	SharpLeft   Type = "sharpLeft"
	SharpRight  Type = "sharpRight"
	SlightLeft  Type = "slightLeft"
	SlightRight Type = "slightRight"
	UTurn       Type = "uTurn"
	Arrive      Type = "arrive"
	Depart      Type = "depart"
)

var allTypes = map[Type]bool{
	Straight: true, TurnLeft: true, TurnRight: true, SharpLeft: true, SharpRight: true,
	SlightLeft: true, SlightRight: true, UTurn: true, Arrive: true, Depart: true,
}

// Valid reports whether t is a known maneuver type
func (t Type) Valid() bool {
	return allTypes[t]
}

// Instruction is a single turn-by-turn step. RoutePointIndex is the index of
// the route point the maneuver happens at, DistanceMeters the distance of
// that point from the route start.
type Instruction struct {
	Type            Type      `json:"type"`
	Text            string    `json:"text"`
	DistanceMeters  float64   `json:"distance_meters"`
	Location        geo.Point `json:"location"`
	RoutePointIndex int       `json:"route_point_index"`
}

// Path is the route geometry the sequencer measures against
type Path interface {
	// CumulativeAt returns the along-route distance of point i
	CumulativeAt(i int) float64
	// DistanceAlong returns the along-route distance of p lying on segment
	DistanceAlong(segment int, p geo.Point) float64
}
