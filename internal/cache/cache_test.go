package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dpup/ride.ersn.net/server/internal/lib/clock"
	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
	"github.com/dpup/ride.ersn.net/server/internal/lib/maneuver"
	"github.com/dpup/ride.ersn.net/server/internal/lib/routing"
)

var t0 = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestCache_SetGet(t *testing.T) {
	fake := clock.NewFake(t0)
	c := NewCache(WithClock(fake))

	require.NoError(t, c.Set("k", payload{Name: "a", Count: 2}, time.Minute, "test"))

	var got payload
	found, err := c.Get("k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{Name: "a", Count: 2}, got)

	found, err = c.Get("missing", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_Expiry(t *testing.T) {
	fake := clock.NewFake(t0)
	c := NewCache(WithClock(fake))
	require.NoError(t, c.Set("k", payload{}, time.Minute, "test"))

	fake.Advance(59 * time.Second)
	assert.False(t, c.IsStale("k"))

	fake.Advance(2 * time.Second)
	assert.True(t, c.IsStale("k"))

	var got payload
	found, err := c.Get("k", &got)
	require.NoError(t, err)
	assert.False(t, found)

	stats := c.Stats()
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, 1, stats.StaleEntries)

	assert.Equal(t, 1, c.CleanupStale())
	assert.Equal(t, 0, c.Stats().TotalEntries)
}

func TestCache_DeleteClear(t *testing.T) {
	c := NewCache()
	require.NoError(t, c.Set("a", 1, time.Minute, "test"))
	require.NoError(t, c.Set("b", 2, time.Minute, "test"))

	c.Delete("a")
	assert.True(t, c.IsStale("a"))
	assert.False(t, c.IsStale("b"))

	c.Clear()
	assert.Equal(t, 0, c.Stats().TotalEntries)
}

func TestCache_UnmarshalError(t *testing.T) {
	c := NewCache()
	require.NoError(t, c.Set("k", "text", time.Minute, "test"))

	var got payload
	_, err := c.Get("k", &got)
	assert.Error(t, err)
}

func TestCache_PeriodicCleanupStopsWithContext(t *testing.T) {
	c := NewCache()
	require.NoError(t, c.Set("k", 1, time.Nanosecond, "test"))

	ctx, cancel := context.WithCancel(context.Background())
	c.StartPeriodicCleanup(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return c.Stats().TotalEntries == 0 },
		time.Second, 5*time.Millisecond)
	cancel()
}

func testRoute(t *testing.T) *routing.Route {
	t.Helper()
	points := []geo.Point{
		{Latitude: 45, Longitude: 7},
		{Latitude: 45, Longitude: 7.00254},
		{Latitude: 45.0018, Longitude: 7.00254},
	}
	r, err := routing.NewRoute("google:test", points,
		routing.WithDistance(420),
		routing.WithDuration(90),
		routing.WithManeuvers(maneuver.Derive(points)))
	require.NoError(t, err)
	return r
}

func TestRouteStore_RoundTrip(t *testing.T) {
	store := NewRouteStore(NewCache(), time.Hour)
	origin := geo.Point{Latitude: 45.00001, Longitude: 7.00002}
	dest := geo.Point{Latitude: 45.0018, Longitude: 7.00254}

	route := testRoute(t)
	require.NoError(t, store.SetRoute(origin, dest, route))

	// within rounding of the stored origin
	got, found, err := store.GetRoute(geo.Point{Latitude: 45.00003, Longitude: 7.00001}, dest)
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, route.ID, got.ID)
	assert.Equal(t, route.Points, got.Points)
	assert.Equal(t, 420.0, got.DistanceMeters)
	assert.Equal(t, 90.0, got.DurationSeconds)
	assert.Equal(t, route.Maneuvers, got.Maneuvers)
	assert.InDelta(t, route.Length(), got.Length(), 1e-9)

	_, found, err = store.GetRoute(geo.Point{Latitude: 45.01, Longitude: 7}, dest)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRouteKey(t *testing.T) {
	assert.Equal(t, "route:45.0000,7.0000:45.0018,7.0025",
		RouteKey(geo.Point{Latitude: 45, Longitude: 7}, geo.Point{Latitude: 45.0018, Longitude: 7.00254}))
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) ComputeBicycleRoute(ctx context.Context, origin, destination geo.Point) (*routing.Route, error) {
	args := m.Called(ctx, origin, destination)
	route, _ := args.Get(0).(*routing.Route)
	return route, args.Error(1)
}

func TestCachingRouter(t *testing.T) {
	origin := geo.Point{Latitude: 45, Longitude: 7}
	dest := geo.Point{Latitude: 45.0018, Longitude: 7.00254}

	provider := &mockProvider{}
	provider.On("ComputeBicycleRoute", mock.Anything, origin, dest).Return(testRoute(t), nil).Once()

	router := NewCachingRouter(provider, NewRouteStore(NewCache(), time.Hour), nil)

	first, err := router.ComputeBicycleRoute(context.Background(), origin, dest)
	require.NoError(t, err)
	second, err := router.ComputeBicycleRoute(context.Background(), origin, dest)
	require.NoError(t, err)

	assert.Equal(t, first.Points, second.Points)
	provider.AssertNumberOfCalls(t, "ComputeBicycleRoute", 1)

	stats := router.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestCachingRouter_ProviderError(t *testing.T) {
	origin := geo.Point{Latitude: 45, Longitude: 7}
	dest := geo.Point{Latitude: 46, Longitude: 7}

	provider := &mockProvider{}
	provider.On("ComputeBicycleRoute", mock.Anything, origin, dest).Return(nil, errors.New("API error 500"))

	router := NewCachingRouter(provider, NewRouteStore(NewCache(), time.Hour), nil)

	_, err := router.ComputeBicycleRoute(context.Background(), origin, dest)
	assert.ErrorContains(t, err, "API error 500")

	_, err = router.ComputeBicycleRoute(context.Background(), origin, dest)
	assert.Error(t, err, "errors are not cached")
	provider.AssertNumberOfCalls(t, "ComputeBicycleRoute", 2)
}
