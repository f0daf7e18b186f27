package maneuver

import (
	"fmt"
	"math"

	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
)

// Turn angle bands in degrees
const (
	straightBelow = 20.0
	slightBelow   = 45.0
	turnBelow     = 135.0
	sharpBelow    = 170.0

	// Segments shorter than this carry no usable bearing
	minSegmentMeters = 1.0
)

// Classify maps a signed turn angle (positive is right) to a maneuver type
func Classify(turnAngle float64) Type {
	abs := math.Abs(turnAngle)
	right := turnAngle > 0

	switch {
	case abs < straightBelow:
		return Straight
	case abs < slightBelow:
		if right {
			return SlightRight
		}
		return SlightLeft
	case abs < turnBelow:
		if right {
			return TurnRight
		}
		return TurnLeft
	case abs < sharpBelow:
		if right {
			return SharpRight
		}
		return SharpLeft
	default:
		return UTurn
	}
}

// Text returns the default spoken text for a maneuver type
func Text(t Type) string {
	switch t {
	case TurnLeft:
		return "Turn left"
	case TurnRight:
		return "Turn right"
	case SharpLeft:
		return "Turn sharp left"
	case SharpRight:
		return "Turn sharp right"
	case SlightLeft:
		return "Bear left"
	case SlightRight:
		return "Bear right"
	case UTurn:
		return "Make a U-turn"
	case Arrive:
		return "Arrive at destination"
	case Depart:
		return "Depart"
	default:
		return "Continue straight"
	}
}

// Derive builds maneuvers from the turn angles of a polyline. Used when the
// routing provider supplies none. Straight sections are skipped.
func Derive(points []geo.Point) []Instruction {
	if len(points) < 2 {
		return nil
	}

	cumulative := geo.CumulativeDistances(points)
	last := len(points) - 1

	out := []Instruction{{
		Type:            Depart,
		Text:            fmt.Sprintf("Head %s", geo.FormatBearing(geo.Bearing(points[0], points[1]))),
		Location:        points[0],
		RoutePointIndex: 0,
	}}

	// Remember the last usable incoming bearing so runs of duplicate points
	// don't hide a turn
	inBearing, haveIn := 0.0, false
	if cumulative[1] >= minSegmentMeters {
		inBearing, haveIn = geo.Bearing(points[0], points[1]), true
	}

	for i := 1; i < last; i++ {
		if cumulative[i+1]-cumulative[i] < minSegmentMeters {
			continue
		}
		outBearing := geo.Bearing(points[i], points[i+1])

		if haveIn {
			t := Classify(geo.TurnAngle(inBearing, outBearing))
			if t != Straight {
				out = append(out, Instruction{
					Type:            t,
					Text:            Text(t),
					DistanceMeters:  cumulative[i],
					Location:        points[i],
					RoutePointIndex: i,
				})
			}
		}
		inBearing, haveIn = outBearing, true
	}

	out = append(out, Instruction{
		Type:            Arrive,
		Text:            Text(Arrive),
		DistanceMeters:  cumulative[last],
		Location:        points[last],
		RoutePointIndex: last,
	})
	return out
}
