package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
	"github.com/dpup/ride.ersn.net/server/internal/lib/maneuver"
	"github.com/dpup/ride.ersn.net/server/internal/lib/routing"
)

// RouteProvider computes a cycling route between two points
type RouteProvider interface {
	ComputeBicycleRoute(ctx context.Context, origin, destination geo.Point) (*routing.Route, error)
}

// routeEntry is the cached form of a route. Route's derived distances are
// unexported so routes are rebuilt through NewRoute on the way out.
type routeEntry struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name,omitempty"`
	Points          []geo.Point            `json:"points"`
	DistanceMeters  float64                `json:"distance_meters"`
	DurationSeconds float64                `json:"duration_seconds"`
	Maneuvers       []maneuver.Instruction `json:"maneuvers,omitempty"`
}

// RouteStore caches computed routes keyed by rounded origin and destination
type RouteStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewRouteStore creates a route store backed by the cache
func NewRouteStore(cache *Cache, ttl time.Duration) *RouteStore {
	return &RouteStore{cache: cache, ttl: ttl}
}

// RouteKey rounds both ends to four decimal places, roughly 11 m, so
// requests from the same spot share an entry
func RouteKey(origin, destination geo.Point) string {
	return fmt.Sprintf("route:%.4f,%.4f:%.4f,%.4f",
		origin.Latitude, origin.Longitude, destination.Latitude, destination.Longitude)
}

// SetRoute stores route for the origin/destination pair
func (s *RouteStore) SetRoute(origin, destination geo.Point, route *routing.Route) error {
	entry := routeEntry{
		ID:              route.ID,
		Name:            route.Name,
		Points:          route.Points,
		DistanceMeters:  route.DistanceMeters,
		DurationSeconds: route.DurationSeconds,
		Maneuvers:       route.Maneuvers,
	}
	return s.cache.Set(RouteKey(origin, destination), entry, s.ttl, "google_routes")
}

// GetRoute returns a fresh cached route for the pair, if any
func (s *RouteStore) GetRoute(origin, destination geo.Point) (*routing.Route, bool, error) {
	var entry routeEntry
	found, err := s.cache.Get(RouteKey(origin, destination), &entry)
	if err != nil || !found {
		return nil, false, err
	}

	route, err := routing.NewRoute(entry.ID, entry.Points,
		routing.WithName(entry.Name),
		routing.WithDistance(entry.DistanceMeters),
		routing.WithDuration(entry.DurationSeconds),
		routing.WithManeuvers(entry.Maneuvers))
	if err != nil {
		return nil, false, fmt.Errorf("failed to rebuild cached route: %w", err)
	}
	return route, true, nil
}

// CachingRouter wraps a RouteProvider with a RouteStore
type CachingRouter struct {
	next   RouteProvider
	store  *RouteStore
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachingRouter creates a cache-first RouteProvider
func NewCachingRouter(next RouteProvider, store *RouteStore, logger *zap.Logger) *CachingRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingRouter{next: next, store: store, logger: logger}
}

// ComputeBicycleRoute serves from cache when possible. Cache read and write
// failures are logged and otherwise ignored.
func (r *CachingRouter) ComputeBicycleRoute(ctx context.Context, origin, destination geo.Point) (*routing.Route, error) {
	route, found, err := r.store.GetRoute(origin, destination)
	if err != nil {
		r.logger.Warn("route cache read failed", zap.Error(err))
	}
	if found {
		r.hits.Add(1)
		return route, nil
	}
	r.misses.Add(1)

	route, err = r.next.ComputeBicycleRoute(ctx, origin, destination)
	if err != nil {
		return nil, err
	}

	if err := r.store.SetRoute(origin, destination, route); err != nil {
		r.logger.Warn("route cache write failed", zap.Error(err))
	}
	return route, nil
}

// RouterStats reports cache effectiveness
type RouterStats struct {
	Hits    int64
	Misses  int64
	HitRate float64
}

// Stats returns hit and miss counts since creation
func (r *CachingRouter) Stats() RouterStats {
	stats := RouterStats{Hits: r.hits.Load(), Misses: r.misses.Load()}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}
