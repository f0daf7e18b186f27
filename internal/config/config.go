package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/dpup/ride.ersn.net/server/internal/lib/navigation"
	"github.com/dpup/ride.ersn.net/server/internal/lib/speed"
)

// EnvPrefix is stripped from environment variables; "__" separates levels,
// so RIDE__ROUTING__CACHE_TTL sets routing.cache_ttl
const EnvPrefix = "RIDE__"

// Config represents the complete server configuration
type Config struct {
	Navigation NavigationConfig `yaml:"navigation"`
	Routing    RoutingConfig    `yaml:"routing"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	Logging    LoggingConfig    `yaml:"logging"`
	Sentry     SentryConfig     `yaml:"sentry"`
}

// NavigationConfig holds the engine thresholds. Speeds are km/h here and m/s
// in navigation.Params.
type NavigationConfig struct {
	SnapThresholdMeters     float64       `yaml:"snap_threshold_meters"`
	SnapWindow              int           `yaml:"snap_window"`
	ApproachThresholdMeters float64       `yaml:"approach_threshold_meters"`
	ArrivalThresholdMeters  float64       `yaml:"arrival_threshold_meters"`
	ArrivalDwell            time.Duration `yaml:"arrival_dwell"`
	OffRouteDialogDelay     time.Duration `yaml:"off_route_dialog_delay"`
	MinMovingSpeedKmh       float64       `yaml:"min_moving_speed_kmh"`
	HeadingReliableSpeedKmh float64       `yaml:"heading_reliable_speed_kmh"`
	BearingSmoothingRatio   float64       `yaml:"bearing_smoothing_ratio"`
	MaxPlausibleSpeedKmh    float64       `yaml:"max_plausible_speed_kmh"`
	DefaultCruiseSpeedKmh   float64       `yaml:"default_cruise_speed_kmh"`
	ETARangeMinElapsed      time.Duration `yaml:"eta_range_min_elapsed"`
	MaxTrackPoints          int           `yaml:"max_track_points"`
	DirectionLogging        bool          `yaml:"direction_logging"`
	Locale                  string        `yaml:"locale"`
}

// RoutingConfig holds Google Routes API and hazard classification settings
type RoutingConfig struct {
	GoogleAPIKey         string        `yaml:"google_api_key"`
	GoogleBaseURL        string        `yaml:"google_base_url"`
	CacheTTL             time.Duration `yaml:"cache_ttl"`
	CacheCleanupInterval time.Duration `yaml:"cache_cleanup_interval"`
	HazardOnRouteMeters  float64       `yaml:"hazard_on_route_meters"`
	HazardNearbyMeters   float64       `yaml:"hazard_nearby_meters"`
	CaltransFeeds        bool          `yaml:"caltrans_feeds"`
	HazardFeedRefresh    time.Duration `yaml:"hazard_feed_refresh"`
}

// SessionsConfig bounds the in-memory navigation sessions
type SessionsConfig struct {
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	ReapInterval time.Duration `yaml:"reap_interval"`
	MaxSessions  int           `yaml:"max_sessions"`
}

// LoggingConfig selects the zap logger
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// SentryConfig enables error reporting when DSN is set
type SentryConfig struct {
	DSN              string  `yaml:"dsn"`
	Environment      string  `yaml:"environment"`
	TracesSampleRate float64 `yaml:"traces_sample_rate"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	p := navigation.DefaultParams()
	return &Config{
		Navigation: NavigationConfig{
			SnapThresholdMeters:     p.SnapThreshold,
			SnapWindow:              p.SnapWindow,
			ApproachThresholdMeters: p.ApproachThreshold,
			ArrivalThresholdMeters:  p.ArrivalThreshold,
			ArrivalDwell:            p.ArrivalDwell,
			OffRouteDialogDelay:     p.OffRouteDialogDelay,
			MinMovingSpeedKmh:       speed.MpsToKmh(p.MinMovingSpeed),
			HeadingReliableSpeedKmh: speed.MpsToKmh(p.HeadingReliableSpeed),
			BearingSmoothingRatio:   p.BearingSmoothingRatio,
			MaxPlausibleSpeedKmh:    speed.MaxPlausibleKmh,
			DefaultCruiseSpeedKmh:   15,
			ETARangeMinElapsed:      p.ETARangeMinElapsed,
			MaxTrackPoints:          p.MaxTrackPoints,
			Locale:                  "en",
		},
		Routing: RoutingConfig{
			GoogleBaseURL:        "https://routes.googleapis.com",
			CacheTTL:             6 * time.Hour,
			CacheCleanupInterval: 10 * time.Minute,
			HazardOnRouteMeters:  30,
			HazardNearbyMeters:   500,
			HazardFeedRefresh:    5 * time.Minute,
		},
		Sessions: SessionsConfig{
			IdleTimeout:  2 * time.Hour,
			ReapInterval: 5 * time.Minute,
			MaxSessions:  1000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Sentry: SentryConfig{
			Environment:      "development",
			TracesSampleRate: 0,
		},
	}
}

// Build creates the zap logger described by the section
func (l LoggingConfig) Build() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if l.Level != "" {
		level, err := zap.ParseAtomicLevel(l.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", l.Level, err)
		}
		zc.Level = level
	}
	return zc.Build()
}

// ToParams converts the navigation section into engine parameters
func (n NavigationConfig) ToParams() navigation.Params {
	return navigation.Params{
		SnapThreshold:         n.SnapThresholdMeters,
		SnapWindow:            n.SnapWindow,
		ApproachThreshold:     n.ApproachThresholdMeters,
		ArrivalThreshold:      n.ArrivalThresholdMeters,
		ArrivalDwell:          n.ArrivalDwell,
		OffRouteDialogDelay:   n.OffRouteDialogDelay,
		MinMovingSpeed:        speed.KmhToMps(n.MinMovingSpeedKmh),
		HeadingReliableSpeed:  speed.KmhToMps(n.HeadingReliableSpeedKmh),
		BearingSmoothingRatio: n.BearingSmoothingRatio,
		MaxPlausibleSpeed:     speed.KmhToMps(n.MaxPlausibleSpeedKmh),
		DefaultCruiseSpeed:    speed.KmhToMps(n.DefaultCruiseSpeedKmh),
		ETARangeMinElapsed:    n.ETARangeMinElapsed,
		MaxTrackPoints:        n.MaxTrackPoints,
		DirectionLogging:      n.DirectionLogging,
	}
}

// Validate checks every section
func (c *Config) Validate() error {
	var errs []error
	if err := c.Navigation.ToParams().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("navigation: %w", err))
	}
	if c.Navigation.MaxTrackPoints <= 0 {
		errs = append(errs, fmt.Errorf("navigation: max_track_points must be positive, got %d", c.Navigation.MaxTrackPoints))
	}
	if c.Routing.HazardOnRouteMeters <= 0 || c.Routing.HazardNearbyMeters < c.Routing.HazardOnRouteMeters {
		errs = append(errs, fmt.Errorf("routing: hazard thresholds must satisfy 0 < on_route (%v) <= nearby (%v)",
			c.Routing.HazardOnRouteMeters, c.Routing.HazardNearbyMeters))
	}
	if c.Routing.CacheTTL < 0 {
		errs = append(errs, errors.New("routing: cache_ttl must not be negative"))
	}
	if c.Routing.CaltransFeeds && c.Routing.HazardFeedRefresh <= 0 {
		errs = append(errs, errors.New("routing: hazard_feed_refresh must be positive when caltrans_feeds is enabled"))
	}
	if c.Sessions.IdleTimeout <= 0 || c.Sessions.ReapInterval <= 0 {
		errs = append(errs, errors.New("sessions: idle_timeout and reap_interval must be positive"))
	}
	if c.Sessions.MaxSessions <= 0 {
		errs = append(errs, fmt.Errorf("sessions: max_sessions must be positive, got %d", c.Sessions.MaxSessions))
	}
	if _, err := zap.ParseAtomicLevel(c.Logging.Level); c.Logging.Level != "" && err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if c.Sentry.TracesSampleRate < 0 || c.Sentry.TracesSampleRate > 1 {
		errs = append(errs, fmt.Errorf("sentry: traces_sample_rate must be in [0, 1], got %v", c.Sentry.TracesSampleRate))
	}
	return errors.Join(errs...)
}

// Load layers defaults, an optional YAML file, RIDE__ environment variables
// and overrides (keyed by dotted path), in that order, then validates
func Load(path string, overrides map[string]interface{}) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load overrides: %w", err)
		}
	}

	return FromKoanf(k)
}

// FromKoanf decodes the application sections of an already loaded koanf
// instance over the defaults. Keys use the yaml tag names, so the server can
// share prefab's instance and its prefab.yaml. Unrelated sections are ignored.
func FromKoanf(k *koanf.Koanf) (*Config, error) {
	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}
