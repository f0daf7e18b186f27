package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
	"github.com/dpup/ride.ersn.net/server/internal/lib/maneuver"
	"github.com/dpup/ride.ersn.net/server/internal/lib/routing"
)

// routesFieldMask selects only what navigation needs. The API rejects
// requests without a field mask.
const routesFieldMask = "routes.duration,routes.distanceMeters,routes.polyline.encodedPolyline," +
	"routes.legs.steps.distanceMeters,routes.legs.steps.startLocation,routes.legs.steps.navigationInstruction"

// HTTPDoer is the subset of *http.Client the client needs
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client provides access to Google Routes API v2 for bicycle routing
type Client struct {
	apiKey     string
	httpClient HTTPDoer
	baseURL    string
	logger     *zap.Logger
}

// NewClient creates a new Google Routes API client
func NewClient(apiKey string) *Client {
	return NewClientWithHTTPDoer(apiKey, "https://routes.googleapis.com", &http.Client{
		Timeout: 30 * time.Second,
	})
}

// NewClientWithHTTPDoer creates a client against baseURL using doer for
// transport
func NewClientWithHTTPDoer(apiKey, baseURL string, doer HTTPDoer) *Client {
	return &Client{
		apiKey:     apiKey,
		httpClient: doer,
		baseURL:    baseURL,
		logger:     zap.NewNop(),
	}
}

// WithLogger sets the client's logger
func (c *Client) WithLogger(l *zap.Logger) *Client {
	c.logger = l
	return c
}

// ComputeBicycleRoute asks for a cycling route between two points and
// converts it, with its step maneuvers, into a navigable route
func (c *Client) ComputeBicycleRoute(ctx context.Context, origin, destination geo.Point) (*routing.Route, error) {
	if !geo.IsValidCoordinate(origin) || !geo.IsValidCoordinate(destination) {
		return nil, fmt.Errorf("%w: invalid origin or destination", routing.ErrInvalidRoute)
	}

	requestBody := map[string]interface{}{
		"origin":      waypoint(origin),
		"destination": waypoint(destination),
		"travelMode":  "BICYCLE",
		"units":       "METRIC",
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/directions/v2:computeRoutes", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", routesFieldMask)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("google routes response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limit exceeded (3K QPM)")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var response GoogleRoutesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(response.Routes) == 0 {
		return nil, fmt.Errorf("no routes found in response")
	}

	return c.processRouteResponse(routeID(origin, destination), response.Routes[0])
}

func waypoint(p geo.Point) map[string]interface{} {
	return map[string]interface{}{
		"location": map[string]interface{}{
			"latLng": map[string]interface{}{
				"latitude":  p.Latitude,
				"longitude": p.Longitude,
			},
		},
	}
}

func routeID(origin, destination geo.Point) string {
	return fmt.Sprintf("google:%.5f,%.5f:%.5f,%.5f",
		origin.Latitude, origin.Longitude, destination.Latitude, destination.Longitude)
}

// processRouteResponse converts a Google route into a routing.Route
func (c *Client) processRouteResponse(id string, route GoogleRoute) (*routing.Route, error) {
	durationSeconds, err := parseDuration(route.Duration)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration: %w", err)
	}

	points, err := geo.DecodePolyline(route.Polyline.EncodedPolyline)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", routing.ErrInvalidRoute, err)
	}

	base, err := routing.NewRoute(id, points,
		routing.WithDistance(float64(route.DistanceMeters)),
		routing.WithDuration(float64(durationSeconds)))
	if err != nil {
		return nil, err
	}

	maneuvers := stepManeuvers(base, route.Legs)
	c.logger.Debug("google route processed",
		zap.String("route", id),
		zap.Int("points", len(points)),
		zap.Int("maneuvers", len(maneuvers)))

	return base.WithManeuvers(maneuvers), nil
}

// stepManeuvers maps step instructions to route point indexes. Indexes never
// move backwards so loops and out-and-back routes resolve to the right pass.
func stepManeuvers(route *routing.Route, legs []GoogleLeg) []maneuver.Instruction {
	out := []maneuver.Instruction{}
	cursor := 0
	for _, leg := range legs {
		for _, step := range leg.Steps {
			t, ok := mapManeuver(step.NavigationInstruction.Maneuver)
			if !ok {
				continue
			}
			loc := geo.Point{
				Latitude:  step.StartLocation.LatLng.Latitude,
				Longitude: step.StartLocation.LatLng.Longitude,
			}
			idx := nearestIndexFrom(route.Points, loc, cursor)
			if t == maneuver.Depart {
				// later legs depart from a waypoint, not a turn
				if len(out) > 0 {
					continue
				}
				idx = 0
			}
			cursor = idx

			text := step.NavigationInstruction.Instructions
			if text == "" {
				text = maneuver.Text(t)
			}
			out = append(out, maneuver.Instruction{
				Type:            t,
				Text:            text,
				DistanceMeters:  route.CumulativeAt(idx),
				Location:        route.Points[idx],
				RoutePointIndex: idx,
			})
		}
	}

	if len(out) == 0 || out[0].Type != maneuver.Depart {
		first := maneuver.Instruction{
			Type:     maneuver.Depart,
			Text:     fmt.Sprintf("Head %s", geo.FormatBearing(geo.Bearing(route.Points[0], route.Points[1]))),
			Location: route.Points[0],
		}
		out = append([]maneuver.Instruction{first}, out...)
	}

	last := route.LastIndex()
	return append(out, maneuver.Instruction{
		Type:            maneuver.Arrive,
		Text:            maneuver.Text(maneuver.Arrive),
		DistanceMeters:  route.Length(),
		Location:        route.Points[last],
		RoutePointIndex: last,
	})
}

func nearestIndexFrom(points []geo.Point, p geo.Point, from int) int {
	best, bestDist := from, -1.0
	for i := from; i < len(points); i++ {
		d := geo.DistanceBetween(p, points[i])
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// mapManeuver converts a Routes API maneuver name. Straight-on steps and
// unknown values are dropped.
func mapManeuver(name string) (maneuver.Type, bool) {
	switch name {
	case "DEPART":
		return maneuver.Depart, true
	case "TURN_LEFT", "ROUNDABOUT_LEFT":
		return maneuver.TurnLeft, true
	case "TURN_RIGHT", "ROUNDABOUT_RIGHT":
		return maneuver.TurnRight, true
	case "TURN_SLIGHT_LEFT", "FORK_LEFT", "RAMP_LEFT":
		return maneuver.SlightLeft, true
	case "TURN_SLIGHT_RIGHT", "FORK_RIGHT", "RAMP_RIGHT":
		return maneuver.SlightRight, true
	case "TURN_SHARP_LEFT":
		return maneuver.SharpLeft, true
	case "TURN_SHARP_RIGHT":
		return maneuver.SharpRight, true
	case "UTURN_LEFT", "UTURN_RIGHT":
		return maneuver.UTurn, true
	default:
		return "", false
	}
}

// parseDuration parses Google's duration format like "450s" to seconds
func parseDuration(durationStr string) (int32, error) {
	if durationStr == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	if len(durationStr) > 1 && durationStr[len(durationStr)-1] == 's' {
		durationStr = durationStr[:len(durationStr)-1]
	}

	var seconds int32
	_, err := fmt.Sscanf(durationStr, "%d", &seconds)
	return seconds, err
}

// GoogleRoutesResponse represents the API response structure
type GoogleRoutesResponse struct {
	Routes []GoogleRoute `json:"routes"`
}

// GoogleRoute represents a single route in the response
type GoogleRoute struct {
	Duration       string         `json:"duration"`
	DistanceMeters int32          `json:"distanceMeters"`
	Polyline       GooglePolyline `json:"polyline"`
	Legs           []GoogleLeg    `json:"legs,omitempty"`
}

// GooglePolyline represents the route polyline
type GooglePolyline struct {
	EncodedPolyline string `json:"encodedPolyline"`
}

// GoogleLeg is the route between two waypoints
type GoogleLeg struct {
	Steps []GoogleStep `json:"steps"`
}

// GoogleStep is one instruction along a leg
type GoogleStep struct {
	DistanceMeters        int32                       `json:"distanceMeters"`
	StartLocation         GoogleLocation              `json:"startLocation"`
	NavigationInstruction GoogleNavigationInstruction `json:"navigationInstruction"`
}

// GoogleLocation wraps a lat/lng pair
type GoogleLocation struct {
	LatLng GoogleLatLng `json:"latLng"`
}

// GoogleLatLng is a WGS84 coordinate
type GoogleLatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// GoogleNavigationInstruction carries the maneuver and its display text
type GoogleNavigationInstruction struct {
	Maneuver     string `json:"maneuver"`
	Instructions string `json:"instructions"`
}
