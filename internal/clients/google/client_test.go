package google

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
	"github.com/dpup/ride.ersn.net/server/internal/lib/maneuver"
	"github.com/dpup/ride.ersn.net/server/internal/lib/routing"
)

// MockHTTPDoer is a mock implementation of HTTPDoer
type MockHTTPDoer struct {
	mock.Mock
}

func (m *MockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	resp, _ := args.Get(0).(*http.Response)
	return resp, args.Error(1)
}

func loadTestFixture(t *testing.T, filename string) string {
	data, err := os.ReadFile("testdata/" + filename)
	require.NoError(t, err, "Failed to load test fixture %s", filename)
	return string(data)
}

func createMockResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

var (
	origin      = geo.Point{Latitude: 45, Longitude: 7}
	destination = geo.Point{Latitude: 45.0018, Longitude: 7.005}
)

func newMockedClient(t *testing.T, status int, body string) (*Client, *MockHTTPDoer) {
	t.Helper()
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(createMockResponse(status, body), nil)
	return NewClientWithHTTPDoer("test-api-key", "https://routes.googleapis.com", mockHTTP), mockHTTP
}

func TestComputeBicycleRoute_Success(t *testing.T) {
	client, mockHTTP := newMockedClient(t, 200, loadTestFixture(t, "bicycle_route.json"))

	route, err := client.ComputeBicycleRoute(context.Background(), origin, destination)
	require.NoError(t, err)
	require.NotNil(t, route)

	assert.Len(t, route.Points, 6)
	assert.Equal(t, 600.0, route.DistanceMeters, "provider distance wins over polyline length")
	assert.Equal(t, 120.0, route.DurationSeconds)
	assert.Equal(t, "google:45.00000,7.00000:45.00180,7.00500", route.ID)

	// depart, left, right, arrive; the straight step is dropped
	require.Len(t, route.Maneuvers, 4)

	assert.Equal(t, maneuver.Depart, route.Maneuvers[0].Type)
	assert.Equal(t, "Head east on Via Roma", route.Maneuvers[0].Text)
	assert.Equal(t, 0, route.Maneuvers[0].RoutePointIndex)

	assert.Equal(t, maneuver.TurnLeft, route.Maneuvers[1].Type)
	assert.Equal(t, 2, route.Maneuvers[1].RoutePointIndex)
	assert.Equal(t, "Turn left onto Via Po", route.Maneuvers[1].Text)
	assert.InDelta(t, 200, route.Maneuvers[1].DistanceMeters, 1)

	assert.Equal(t, maneuver.TurnRight, route.Maneuvers[2].Type)
	assert.Equal(t, 4, route.Maneuvers[2].RoutePointIndex)
	assert.Equal(t, "Turn right", route.Maneuvers[2].Text, "falls back to generated text")

	assert.Equal(t, maneuver.Arrive, route.Maneuvers[3].Type)
	assert.Equal(t, 5, route.Maneuvers[3].RoutePointIndex)

	mockHTTP.AssertExpectations(t)
}

func TestComputeBicycleRoute_RequestFormat(t *testing.T) {
	var capturedRequest *http.Request
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Run(func(args mock.Arguments) {
		capturedRequest = args.Get(0).(*http.Request)
	}).Return(createMockResponse(200, loadTestFixture(t, "bicycle_route.json")), nil)

	client := NewClientWithHTTPDoer("test-api-key", "https://routes.googleapis.com", mockHTTP)

	_, err := client.ComputeBicycleRoute(context.Background(),
		geo.Point{Latitude: 45.071234, Longitude: 7.684560},
		geo.Point{Latitude: 45.0018, Longitude: 7.005})
	require.NoError(t, err)

	require.NotNil(t, capturedRequest)
	assert.Equal(t, "POST", capturedRequest.Method)
	assert.Equal(t, "/directions/v2:computeRoutes", capturedRequest.URL.Path)
	assert.Equal(t, "test-api-key", capturedRequest.Header.Get("X-Goog-Api-Key"))
	assert.Equal(t, "application/json", capturedRequest.Header.Get("Content-Type"))

	mask := capturedRequest.Header.Get("X-Goog-FieldMask")
	assert.Contains(t, mask, "routes.polyline.encodedPolyline")
	assert.Contains(t, mask, "routes.legs.steps.navigationInstruction")

	body, err := io.ReadAll(capturedRequest.Body)
	require.NoError(t, err)
	bodyStr := string(body)
	assert.Contains(t, bodyStr, "45.071234")
	assert.Contains(t, bodyStr, "7.68456") // JSON truncates trailing zeros
	assert.Contains(t, bodyStr, `"travelMode":"BICYCLE"`)
	assert.NotContains(t, bodyStr, "routingPreference", "not allowed for bicycle routes")

	mockHTTP.AssertExpectations(t)
}

func TestComputeBicycleRoute_NoSteps(t *testing.T) {
	body := `{"routes": [{"duration": "60s", "distanceMeters": 0,
		"polyline": {"encodedPolyline": "_atqG_evi@?}F?}FsD?sD??kN"}}]}`
	client, _ := newMockedClient(t, 200, body)

	route, err := client.ComputeBicycleRoute(context.Background(), origin, destination)
	require.NoError(t, err)

	require.Len(t, route.Maneuvers, 2)
	assert.Equal(t, maneuver.Depart, route.Maneuvers[0].Type)
	assert.Equal(t, "Head E", route.Maneuvers[0].Text)
	assert.Equal(t, maneuver.Arrive, route.Maneuvers[1].Type)
	assert.InDelta(t, route.Length(), route.DistanceMeters, 1e-9, "zero distance falls back to polyline length")
}

func TestComputeBicycleRoute_NoRoutes(t *testing.T) {
	client, mockHTTP := newMockedClient(t, 200, `{"routes": []}`)

	route, err := client.ComputeBicycleRoute(context.Background(), origin, destination)
	assert.Error(t, err)
	assert.Nil(t, route)
	assert.Contains(t, err.Error(), "no routes found in response")

	mockHTTP.AssertExpectations(t)
}

func TestComputeBicycleRoute_RateLimitError(t *testing.T) {
	client, _ := newMockedClient(t, 429, `{"error": {"message": "Quota exceeded"}}`)

	route, err := client.ComputeBicycleRoute(context.Background(), origin, destination)
	assert.Error(t, err)
	assert.Nil(t, route)
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestComputeBicycleRoute_APIError(t *testing.T) {
	client, _ := newMockedClient(t, 400, `{"error": {"message": "Invalid coordinates"}}`)

	route, err := client.ComputeBicycleRoute(context.Background(), origin, destination)
	assert.Error(t, err)
	assert.Nil(t, route)
	assert.Contains(t, err.Error(), "API error 400")
}

func TestComputeBicycleRoute_InvalidJSON(t *testing.T) {
	client, _ := newMockedClient(t, 200, `{"invalid": json}`)

	route, err := client.ComputeBicycleRoute(context.Background(), origin, destination)
	assert.Error(t, err)
	assert.Nil(t, route)
	assert.Contains(t, err.Error(), "failed to decode response")
}

func TestComputeBicycleRoute_BadPolyline(t *testing.T) {
	body := `{"routes": [{"duration": "60s", "distanceMeters": 10, "polyline": {"encodedPolyline": "_p~iF"}}]}`
	client, _ := newMockedClient(t, 200, body)

	_, err := client.ComputeBicycleRoute(context.Background(), origin, destination)
	assert.True(t, errors.Is(err, routing.ErrInvalidRoute))
}

func TestComputeBicycleRoute_InvalidCoordinates(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	client := NewClientWithHTTPDoer("k", "https://routes.googleapis.com", mockHTTP)

	_, err := client.ComputeBicycleRoute(context.Background(), geo.Point{Latitude: 95}, destination)
	assert.True(t, errors.Is(err, routing.ErrInvalidRoute))
	mockHTTP.AssertNotCalled(t, "Do", mock.Anything)
}

func TestComputeBicycleRoute_TransportError(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.Anything).Return(nil, errors.New("connection refused"))
	client := NewClientWithHTTPDoer("k", "https://routes.googleapis.com", mockHTTP)

	_, err := client.ComputeBicycleRoute(context.Background(), origin, destination)
	assert.ErrorContains(t, err, "connection refused")
}

func TestMapManeuver(t *testing.T) {
	cases := map[string]maneuver.Type{
		"TURN_LEFT":         maneuver.TurnLeft,
		"ROUNDABOUT_RIGHT":  maneuver.TurnRight,
		"TURN_SLIGHT_LEFT":  maneuver.SlightLeft,
		"FORK_RIGHT":        maneuver.SlightRight,
		"TURN_SHARP_RIGHT":  maneuver.SharpRight,
		"UTURN_LEFT":        maneuver.UTurn,
		"DEPART":            maneuver.Depart,
		"TURN_SHARP_LEFT":   maneuver.SharpLeft,
		"TURN_SLIGHT_RIGHT": maneuver.SlightRight,
	}
	for name, want := range cases {
		got, ok := mapManeuver(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}

	for _, name := range []string{"STRAIGHT", "NAME_CHANGE", "MERGE", "FERRY", ""} {
		_, ok := mapManeuver(name)
		assert.False(t, ok, name)
	}
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("450s")
	require.NoError(t, err)
	assert.Equal(t, int32(450), d)

	_, err = parseDuration("")
	assert.Error(t, err)
}
