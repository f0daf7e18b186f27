package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionReaper_ReapOnce(t *testing.T) {
	srv := newTestServer(t)
	idle := srv.create(northPoints(3))
	active := srv.create(northPoints(3))

	srv.clock.Advance(90 * time.Minute)
	srv.fix(active, base, 4)
	srv.clock.Advance(31 * time.Minute)

	reaper := NewSessionReaper(srv.sessions, time.Minute, nil)
	assert.Equal(t, 1, reaper.ReapOnce())
	assert.Equal(t, 1, srv.sessions.Len())

	_, err := srv.sessions.Get(idle)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = srv.sessions.Get(active)
	assert.NoError(t, err)

	rec := srv.do(http.MethodGet, "/nav/sessions/"+idle+"/export.geojson", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, 0, reaper.ReapOnce())
}

func TestSessionReaper_StartStop(t *testing.T) {
	srv := newTestServer(t)
	srv.create(northPoints(3))
	srv.clock.Advance(3 * time.Hour)

	reaper := NewSessionReaper(srv.sessions, 10*time.Millisecond, nil)
	assert.False(t, reaper.IsRunning())

	reaper.Start(context.Background())
	reaper.Start(context.Background())
	assert.True(t, reaper.IsRunning())

	require.Eventually(t, func() bool {
		return srv.sessions.Len() == 0
	}, time.Second, 10*time.Millisecond)

	reaper.Stop()
	reaper.Stop()
	assert.False(t, reaper.IsRunning())
}

func TestSessionReaper_ContextCancel(t *testing.T) {
	srv := newTestServer(t)
	reaper := NewSessionReaper(srv.sessions, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	reaper.Start(ctx)
	cancel()

	// Stop is still safe after the loop exited on its own
	reaper.Stop()
	assert.False(t, reaper.IsRunning())
}
