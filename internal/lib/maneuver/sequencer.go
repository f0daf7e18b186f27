package maneuver

import (
	"math"
	"sort"

	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
)

// Sequencer walks a route's maneuvers in order as the rider's segment index
// advances. The position never moves backwards.
type Sequencer struct {
	maneuvers []Instruction
	next      int
}

// NewSequencer sorts maneuvers by route point index and starts before the first
func NewSequencer(maneuvers []Instruction) *Sequencer {
	sorted := make([]Instruction, len(maneuvers))
	copy(sorted, maneuvers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RoutePointIndex < sorted[j].RoutePointIndex
	})
	return &Sequencer{maneuvers: sorted}
}

// Advance marks every maneuver at or before segmentIndex as passed and
// returns the ones passed by this call
func (s *Sequencer) Advance(segmentIndex int) []Instruction {
	startIdx := s.next
	for s.next < len(s.maneuvers) && s.maneuvers[s.next].RoutePointIndex <= segmentIndex {
		s.next++
	}
	if s.next == startIdx {
		return nil
	}
	passed := make([]Instruction, s.next-startIdx)
	copy(passed, s.maneuvers[startIdx:s.next])
	return passed
}

// Next returns the first unpassed maneuver
func (s *Sequencer) Next() (Instruction, bool) {
	if s.next >= len(s.maneuvers) {
		return Instruction{}, false
	}
	return s.maneuvers[s.next], true
}

// All returns a copy of every maneuver in route order
func (s *Sequencer) All() []Instruction {
	out := make([]Instruction, len(s.maneuvers))
	copy(out, s.maneuvers)
	return out
}

// PassedCount returns how many maneuvers are behind the rider
func (s *Sequencer) PassedCount() int {
	return s.next
}

// DistanceToNext returns the along-route distance from the snapped position
// on segment to the next maneuver
func (s *Sequencer) DistanceToNext(path Path, segment int, snapped geo.Point) (float64, bool) {
	next, ok := s.Next()
	if !ok {
		return 0, false
	}
	d := path.CumulativeAt(next.RoutePointIndex) - path.DistanceAlong(segment, snapped)
	return math.Max(0, d), true
}
