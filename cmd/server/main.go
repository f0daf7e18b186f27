package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dpup/prefab"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/dpup/ride.ersn.net/server/internal/cache"
	"github.com/dpup/ride.ersn.net/server/internal/clients/caltrans"
	"github.com/dpup/ride.ersn.net/server/internal/clients/google"
	"github.com/dpup/ride.ersn.net/server/internal/config"
	"github.com/dpup/ride.ersn.net/server/internal/lib/routing"
	"github.com/dpup/ride.ersn.net/server/internal/services"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration using Prefab's config system
	appConfig := loadConfig(prefab.Config)

	logger, err := appConfig.Logging.Build()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := services.InitSentry(appConfig.Sentry, version, logger); err != nil {
		logger.Warn("Continuing without error tracking", zap.Error(err))
	}
	defer services.FlushSentry(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Route cache, swept in the background
	cacheInstance := cache.NewCache(cache.WithLogger(logger))
	cacheInstance.StartPeriodicCleanup(ctx, appConfig.Routing.CacheCleanupInterval)

	opts := []services.SessionOption{
		services.WithSessionLogger(logger),
		services.WithLocale(appConfig.Navigation.Locale),
		services.WithHazardMatcher(routing.NewHazardMatcher(
			appConfig.Routing.HazardOnRouteMeters,
			appConfig.Routing.HazardNearbyMeters)),
	}

	if appConfig.Routing.GoogleAPIKey != "" {
		googleClient := google.NewClientWithHTTPDoer(
			appConfig.Routing.GoogleAPIKey,
			appConfig.Routing.GoogleBaseURL,
			&http.Client{Timeout: 30 * time.Second},
		).WithLogger(logger)
		store := cache.NewRouteStore(cacheInstance, appConfig.Routing.CacheTTL)
		router := cache.NewCachingRouter(googleClient, store, logger)
		defer func() {
			stats := router.Stats()
			logger.Info("Route cache usage", zap.Int64("hits", stats.Hits), zap.Int64("misses", stats.Misses))
		}()
		opts = append(opts, services.WithRouteProvider(router))
	} else {
		logger.Warn("Google Routes API key not configured - origin/destination sessions disabled")
	}

	if appConfig.Routing.CaltransFeeds {
		source := caltrans.NewHazardSource(
			caltrans.NewFeedParser(logger),
			caltrans.DefaultFeeds(),
			cacheInstance,
			appConfig.Routing.HazardFeedRefresh,
			logger)
		opts = append(opts, services.WithHazardSource(source, appConfig.Routing.HazardNearbyMeters))
		logger.Info("Caltrans hazard feeds enabled", zap.Int("feeds", len(caltrans.DefaultFeeds())))
	}

	sessions := services.NewSessionManager(appConfig.Navigation.ToParams(), appConfig.Sessions, opts...)

	reaper := services.NewSessionReaper(sessions, appConfig.Sessions.ReapInterval, logger)
	reaper.Start(ctx)
	defer reaper.Stop()

	navigationService := services.NewNavigationService(sessions, logger)

	logger.Info("Ride navigation server starting",
		zap.String("version", version),
		zap.Int("max_sessions", appConfig.Sessions.MaxSessions),
		zap.Duration("idle_timeout", appConfig.Sessions.IdleTimeout),
		zap.String("locale", appConfig.Navigation.Locale))

	// Server configuration (port, etc.) will be loaded from prefab.yaml/env vars
	server := prefab.New(
		prefab.WithHTTPHandlerFunc("/nav/", navigationService.Handler().ServeHTTP),
		prefab.WithHTTPHandlerFunc("/", homepageHandler),
	)

	// Start the server (blocks until shutdown)
	if err := server.Start(); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

// loadConfig decodes the application sections from prefab's configuration
// (prefab.yaml, then PF__ environment variables) over the defaults
func loadConfig(k *koanf.Koanf) *config.Config {
	appConfig, err := config.FromKoanf(k)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return appConfig
}

// homepageHandler serves a plain text index of the API at the server root
func homepageHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	const index = `ride.ersn.net %s

Turn-by-turn cycling navigation sessions.

  POST   /nav/sessions                              start a session from a route or origin/destination
  GET    /nav/sessions/{id}                         current navigation state
  POST   /nav/sessions/{id}/fixes                   submit a location fix
  POST   /nav/sessions/{id}/dismiss-off-route       hide the off-route prompt
  POST   /nav/sessions/{id}/acknowledge-arrival     finish after arrival
  DELETE /nav/sessions/{id}                         stop navigating
  GET    /nav/sessions/{id}/export.{kml|geojson|fit} download the ride
`
	if _, err := fmt.Fprintf(w, index, version); err != nil {
		log.Printf("Failed to write homepage: %v", err)
	}
}
