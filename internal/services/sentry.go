package services

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/dpup/ride.ersn.net/server/internal/config"
)

// InitSentry enables error reporting. A blank DSN disables it.
func InitSentry(cfg config.SentryConfig, release string, logger *zap.Logger) error {
	if cfg.DSN == "" {
		logger.Warn("Sentry DSN not configured - error tracking disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          release,
		TracesSampleRate: cfg.TracesSampleRate,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if event.Request != nil && event.Request.Headers != nil {
				delete(event.Request.Headers, "Authorization")
				delete(event.Request.Headers, "Cookie")
			}
			return event
		},
	})
	if err != nil {
		logger.Error("Failed to initialize Sentry", zap.Error(err))
		return fmt.Errorf("sentry init: %w", err)
	}

	logger.Info("Sentry initialized", zap.String("environment", cfg.Environment), zap.String("release", release))
	return nil
}

// FlushSentry waits for queued events to be sent
func FlushSentry(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// captureException reports err with request context. It is a no-op until
// InitSentry succeeds.
func captureException(r *http.Request, err error, extra map[string]interface{}) {
	if err == nil {
		return
	}
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetRequest(r)
		for key, value := range extra {
			scope.SetContext(key, sentry.Context(map[string]interface{}{
				"value": value,
			}))
		}
	})
	hub.CaptureException(err)
}
