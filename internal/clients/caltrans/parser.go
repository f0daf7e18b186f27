package caltrans

import (
	"context"
	"crypto/sha256"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
	"github.com/dpup/ride.ersn.net/server/internal/lib/routing"
)

// Feed is one KML feed of road conditions
type Feed struct {
	Name string
	URL  string
	// Kind is used when the description does not name a more specific one
	Kind routing.HazardKind
}

// DefaultFeeds returns the Caltrans QuickMap feeds relevant to riders
func DefaultFeeds() []Feed {
	return []Feed{
		{Name: "chain_controls", URL: "https://quickmap.dot.ca.gov/data/cc.kml", Kind: routing.HazardWeather},
		{Name: "lane_closures", URL: "https://quickmap.dot.ca.gov/data/lcs2way.kml", Kind: routing.HazardConstruction},
		{Name: "chp_incidents", URL: "https://quickmap.dot.ca.gov/data/chp-only.kml", Kind: routing.HazardTraffic},
	}
}

// HTTPDoer is the subset of http.Client used by the parser
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// FeedParser downloads KML feeds and turns their placemarks into hazards
type FeedParser struct {
	HTTPClient HTTPDoer
	logger     *zap.Logger
}

// NewFeedParser creates a new Caltrans KML feed parser
func NewFeedParser(logger *zap.Logger) *FeedParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedParser{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// FetchFeed downloads and parses one feed
func (p *FeedParser) FetchFeed(ctx context.Context, feed Feed) ([]routing.Hazard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download KML: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error %d downloading KML from %s", resp.StatusCode, feed.URL)
	}

	hazards, err := ParseKML(resp.Body, feed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", feed.Name, err)
	}
	p.logger.Debug("parsed hazard feed", zap.String("feed", feed.Name), zap.Int("hazards", len(hazards)))
	return hazards, nil
}

// kmlDocument holds the parts of a KML file the feeds use. Placemarks may
// sit directly in the document or in nested folders.
type kmlDocument struct {
	Document kmlContainer `xml:"Document"`
}

type kmlContainer struct {
	Folders    []kmlContainer `xml:"Folder"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name        string `xml:"name"`
	Description string `xml:"description"`
	StyleURL    string `xml:"styleUrl"`
	Point       *struct {
		Coordinates string `xml:"coordinates"`
	} `xml:"Point"`
	LineString *struct {
		Coordinates string `xml:"coordinates"`
	} `xml:"LineString"`
}

func (c kmlContainer) walk(fn func(kmlPlacemark)) {
	for _, pm := range c.Placemarks {
		fn(pm)
	}
	for _, f := range c.Folders {
		f.walk(fn)
	}
}

// ParseKML reads placemarks from r. Placemarks without usable coordinates
// are skipped.
func ParseKML(r io.Reader, feed Feed) ([]routing.Hazard, error) {
	var doc kmlDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse KML: %w", err)
	}

	var hazards []routing.Hazard
	doc.Document.walk(func(pm kmlPlacemark) {
		if h, ok := processPlacemark(pm, feed); ok {
			hazards = append(hazards, h)
		}
	})
	return hazards, nil
}

// processPlacemark converts a KML Placemark to a hazard. Line placemarks,
// such as lane closures, keep their geometry as the affected polyline.
func processPlacemark(pm kmlPlacemark, feed Feed) (routing.Hazard, bool) {
	var location geo.Point
	var affected *geo.Polyline

	switch {
	case pm.Point != nil:
		points := parseCoordinates(pm.Point.Coordinates)
		if len(points) == 0 {
			return routing.Hazard{}, false
		}
		location = points[0]
	case pm.LineString != nil:
		points := parseCoordinates(pm.LineString.Coordinates)
		if len(points) == 0 {
			return routing.Hazard{}, false
		}
		location = points[len(points)/2]
		if len(points) > 1 {
			affected = &geo.Polyline{Points: points}
		}
	default:
		return routing.Hazard{}, false
	}

	text := extractTextFromHTML(pm.Description)
	title := strings.TrimSpace(pm.Name)
	if title == "" {
		title = feed.Name
	}

	return routing.Hazard{
		ID:               hazardID(feed, title, location),
		Title:            title,
		Description:      text,
		Kind:             kindFor(extractStatus(text), feed.Kind),
		Location:         location,
		AffectedPolyline: affected,
	}, true
}

// parseCoordinates reads KML "lon,lat[,alt]" tuples separated by whitespace
func parseCoordinates(s string) []geo.Point {
	var points []geo.Point
	for _, tuple := range strings.Fields(s) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			continue
		}
		lon, err1 := strconv.ParseFloat(parts[0], 64)
		lat, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		p := geo.Point{Latitude: lat, Longitude: lon}
		if geo.IsValidCoordinate(p) {
			points = append(points, p)
		}
	}
	return points
}

// hazardID is stable across fetches so the same closure keeps its id
func hazardID(feed Feed, title string, p geo.Point) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%.5f,%.5f", feed.Name, strings.ToLower(title), p.Latitude, p.Longitude)))
	return fmt.Sprintf("%s:%x", feed.Name, sum[:8])
}

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	statusPatterns    = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(closed?)`),
		regexp.MustCompile(`(?i)(chain control in effect)`),
		regexp.MustCompile(`(?i)(restrictions?)`),
		regexp.MustCompile(`(?i)(incident)`),
		regexp.MustCompile(`(?i)(construction)`),
	}
)

// extractTextFromHTML removes HTML tags and decodes HTML entities
func extractTextFromHTML(htmlContent string) string {
	text := htmlTagPattern.ReplaceAllString(htmlContent, " ")
	text = html.UnescapeString(text)
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// extractStatus returns the first status phrase found in the description
func extractStatus(text string) string {
	for _, re := range statusPatterns {
		if match := re.FindString(text); match != "" {
			return strings.ToLower(match)
		}
	}
	return ""
}

func kindFor(status string, fallback routing.HazardKind) routing.HazardKind {
	switch status {
	case "close", "closed":
		return routing.HazardClosure
	case "chain control in effect":
		return routing.HazardWeather
	case "construction":
		return routing.HazardConstruction
	case "incident":
		return routing.HazardTraffic
	}
	if fallback == "" {
		return routing.HazardOther
	}
	return fallback
}
