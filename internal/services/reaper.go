package services

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	"go.uber.org/zap"
)

// SessionReaper periodically removes sessions that stopped sending requests,
// such as riders whose app was killed mid-ride
type SessionReaper struct {
	sessions *SessionManager
	interval time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	stopChan chan struct{}
	running  bool
}

// NewSessionReaper creates a reaper checking every interval
func NewSessionReaper(sessions *SessionManager, interval time.Duration, logger *zap.Logger) *SessionReaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionReaper{
		sessions: sessions,
		interval: interval,
		logger:   logger,
	}
}

// Start begins reaping in the background until ctx is cancelled or Stop is
// called
func (p *SessionReaper) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopChan = make(chan struct{})

	p.logger.Info("Starting idle session reaper", zap.Duration("interval", p.interval))
	go p.reapLoop(ctx, p.stopChan)
}

// Stop gracefully stops the reaper
func (p *SessionReaper) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	close(p.stopChan)
	p.logger.Info("Stopped idle session reaper")
}

// IsRunning returns whether the reaper is active
func (p *SessionReaper) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SessionReaper) reapLoop(ctx context.Context, stop <-chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			err, _ := errors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "Session reaper: recovered from panic",
				"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
		}
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Session reaper stopping due to context cancellation")
			return
		case <-stop:
			return
		case <-ticker.C:
			p.ReapOnce()
		}
	}
}

// ReapOnce removes idle sessions now and returns how many were removed
func (p *SessionReaper) ReapOnce() int {
	reaped := p.sessions.ReapIdle()
	if len(reaped) > 0 {
		p.logger.Info("Reaped idle sessions",
			zap.Int("count", len(reaped)),
			zap.Strings("sessions", reaped),
			zap.Int("remaining", p.sessions.Len()))
	}
	return len(reaped)
}
