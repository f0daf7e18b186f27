// Package breadcrumb keeps a short rolling trail of recent positions and
// derives a smoothed direction of travel from it.
package breadcrumb

import (
	"time"

	"go.uber.org/zap"

	"github.com/dpup/ride.ersn.net/server/internal/lib/clock"
	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
)

const (
	// MaxBreadcrumbs is the trail capacity
	MaxBreadcrumbs = 5
	// MinBreadcrumbDistance is the minimum spacing in meters between stored entries
	MinBreadcrumbDistance = 5.0
	// BreadcrumbMaxAge is how long an entry stays in the trail
	BreadcrumbMaxAge = 20 * time.Second
	// MinTravelDistance is the oldest-to-newest span needed before a direction is reported
	MinTravelDistance = 8.0
)

// Breadcrumb is a stored trail entry. Timestamp is when the tracker received
// the fix and drives eviction; FixTime is the device's own stamp, if any.
type Breadcrumb struct {
	Position  geo.Point `json:"position"`
	Timestamp time.Time `json:"timestamp"`
	FixTime   time.Time `json:"fix_time,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
}

// Limits tunes the trail. Zero fields fall back to the package defaults.
type Limits struct {
	MaxBreadcrumbs    int
	MinDistance       float64
	MaxAge            time.Duration
	MinTravelDistance float64
}

func (l Limits) withDefaults() Limits {
	if l.MaxBreadcrumbs <= 0 {
		l.MaxBreadcrumbs = MaxBreadcrumbs
	}
	if l.MinDistance <= 0 {
		l.MinDistance = MinBreadcrumbDistance
	}
	if l.MaxAge <= 0 {
		l.MaxAge = BreadcrumbMaxAge
	}
	if l.MinTravelDistance <= 0 {
		l.MinTravelDistance = MinTravelDistance
	}
	return l
}

// Tracker is not safe for concurrent use; the navigation engine serializes
// access under its own lock.
type Tracker struct {
	clock  clock.Clock
	logger *zap.Logger
	limits Limits

	trail       []Breadcrumb
	lastBearing float64
	hasBearing  bool
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock sets the time source used for eviction
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithLogger sets the logger used when direction logging is requested
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithLimits overrides the trail limits
func WithLimits(l Limits) Option {
	return func(t *Tracker) { t.limits = l.withDefaults() }
}

// NewTracker creates an empty tracker
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		clock:  clock.Real(),
		logger: zap.NewNop(),
		limits: Limits{}.withDefaults(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.trail = make([]Breadcrumb, 0, t.limits.MaxBreadcrumbs+1)
	return t
}

// AddBreadcrumb records fix if it is far enough from the last stored entry.
// Stale entries are evicted first, whether or not the fix is kept. Ages are
// measured on the tracker's clock, not the fix timestamp.
func (t *Tracker) AddBreadcrumb(fix geo.LocationFix) bool {
	now := t.clock.Now()
	t.evictOlderThan(now.Add(-t.limits.MaxAge))

	pos := fix.Point()
	if n := len(t.trail); n > 0 {
		if geo.DistanceBetween(t.trail[n-1].Position, pos) < t.limits.MinDistance {
			return false
		}
	}

	t.trail = append(t.trail, Breadcrumb{Position: pos, Timestamp: now, FixTime: fix.Timestamp, Speed: fix.Speed})
	if len(t.trail) > t.limits.MaxBreadcrumbs {
		t.trail = append(t.trail[:0], t.trail[len(t.trail)-t.limits.MaxBreadcrumbs:]...)
	}
	return true
}

func (t *Tracker) evictOlderThan(cutoff time.Time) {
	kept := t.trail[:0]
	for _, b := range t.trail {
		if !b.Timestamp.Before(cutoff) {
			kept = append(kept, b)
		}
	}
	t.trail = kept
}

// CalculateTravelDirection returns the smoothed bearing from the oldest to
// the newest breadcrumb. It reports false when there are fewer than two
// entries or they span less than the minimum travel distance.
//
// A new bearing is blended with the previous one as new*ratio + old*(1-ratio)
// only when the raw difference is below 180; across north the new bearing is
// taken as is.
func (t *Tracker) CalculateTravelDirection(smoothingRatio float64, loggingEnabled bool) (float64, bool) {
	if len(t.trail) < 2 {
		if loggingEnabled {
			t.logger.Debug("travel direction unavailable", zap.Int("breadcrumbs", len(t.trail)))
		}
		return 0, false
	}

	oldest := t.trail[0].Position
	newest := t.trail[len(t.trail)-1].Position

	span := geo.DistanceBetween(oldest, newest)
	if span < t.limits.MinTravelDistance {
		if loggingEnabled {
			t.logger.Debug("travel direction unavailable",
				zap.Int("breadcrumbs", len(t.trail)),
				zap.Float64("span_meters", span))
		}
		return 0, false
	}

	raw := geo.Bearing(oldest, newest)
	result := raw
	blended := false
	if t.hasBearing && geo.AngleDifference(raw, t.lastBearing) < 180 {
		result = raw*smoothingRatio + t.lastBearing*(1-smoothingRatio)
		blended = true
	}

	if loggingEnabled {
		t.logger.Debug("travel direction",
			zap.Float64("raw_bearing", raw),
			zap.Float64("previous_bearing", t.lastBearing),
			zap.Bool("had_previous", t.hasBearing),
			zap.Bool("blended", blended),
			zap.Float64("bearing", result),
			zap.Float64("span_meters", span))
	}

	t.lastBearing = result
	t.hasBearing = true
	return result, true
}

// LastBearing returns the last stored smoothed bearing
func (t *Tracker) LastBearing() (float64, bool) {
	return t.lastBearing, t.hasBearing
}

// Breadcrumbs returns a copy of the trail, oldest first
func (t *Tracker) Breadcrumbs() []Breadcrumb {
	out := make([]Breadcrumb, len(t.trail))
	copy(out, t.trail)
	return out
}

// Len returns the number of stored entries
func (t *Tracker) Len() int {
	return len(t.trail)
}

// Clear empties the trail and forgets the smoothed bearing
func (t *Tracker) Clear() {
	t.trail = t.trail[:0]
	t.lastBearing = 0
	t.hasBearing = false
}
