package caltrans

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/dpup/ride.ersn.net/server/internal/cache"
	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
	"github.com/dpup/ride.ersn.net/server/internal/lib/routing"
)

// HazardSource serves hazards from a set of feeds, caching each feed for
// the refresh interval
type HazardSource struct {
	parser  *FeedParser
	feeds   []Feed
	cache   *cache.Cache
	refresh time.Duration
	logger  *zap.Logger
}

// NewHazardSource creates a cached multi-feed source
func NewHazardSource(parser *FeedParser, feeds []Feed, c *cache.Cache, refresh time.Duration, logger *zap.Logger) *HazardSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HazardSource{parser: parser, feeds: feeds, cache: c, refresh: refresh, logger: logger}
}

func feedKey(feed Feed) string {
	return "hazards:" + feed.Name
}

// Feed returns the hazards of one feed, from cache when fresh
func (s *HazardSource) Feed(ctx context.Context, feed Feed) ([]routing.Hazard, error) {
	var hazards []routing.Hazard
	found, err := s.cache.Get(feedKey(feed), &hazards)
	if err != nil {
		s.logger.Warn("hazard cache read failed", zap.String("feed", feed.Name), zap.Error(err))
	}
	if found {
		return hazards, nil
	}

	hazards, err = s.parser.FetchFeed(ctx, feed)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(feedKey(feed), hazards, s.refresh, "caltrans"); err != nil {
		s.logger.Warn("hazard cache write failed", zap.String("feed", feed.Name), zap.Error(err))
	}
	return hazards, nil
}

// HazardsNear returns feed hazards inside the route's bounding box grown by
// radiusMeters. A failing feed is logged and skipped; an error is returned
// only when every feed fails.
func (s *HazardSource) HazardsNear(ctx context.Context, route *routing.Route, radiusMeters float64) ([]routing.Hazard, error) {
	if route == nil || len(route.Points) == 0 || len(s.feeds) == 0 {
		return nil, nil
	}
	bounds := routeBounds(route.Points, radiusMeters)

	var errs []error
	var near []routing.Hazard
	for _, feed := range s.feeds {
		hazards, err := s.Feed(ctx, feed)
		if err != nil {
			s.logger.Warn("hazard feed unavailable", zap.String("feed", feed.Name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		for _, h := range hazards {
			if touches(h, bounds) {
				near = append(near, h)
			}
		}
	}

	if len(errs) == len(s.feeds) {
		return nil, fmt.Errorf("all hazard feeds failed: %w", errors.Join(errs...))
	}
	return near, nil
}

func routeBounds(points []geo.Point, radiusMeters float64) geo.Bounds {
	b := geo.Bounds{MinLat: 90, MaxLat: -90, MinLon: 180, MaxLon: -180}
	for _, p := range points {
		b.MinLat = math.Min(b.MinLat, p.Latitude)
		b.MaxLat = math.Max(b.MaxLat, p.Latitude)
		b.MinLon = math.Min(b.MinLon, p.Longitude)
		b.MaxLon = math.Max(b.MaxLon, p.Longitude)
	}
	low := geo.BoundingBox(geo.Point{Latitude: b.MinLat, Longitude: b.MinLon}, radiusMeters)
	high := geo.BoundingBox(geo.Point{Latitude: b.MaxLat, Longitude: b.MaxLon}, radiusMeters)
	return geo.Bounds{MinLat: low.MinLat, MinLon: low.MinLon, MaxLat: high.MaxLat, MaxLon: high.MaxLon}
}

func touches(h routing.Hazard, b geo.Bounds) bool {
	if b.Contains(h.Location) {
		return true
	}
	if h.AffectedPolyline != nil {
		for _, p := range h.AffectedPolyline.Points {
			if b.Contains(p) {
				return true
			}
		}
	}
	return false
}
