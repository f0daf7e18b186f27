// Package export writes a navigated ride as KML, GeoJSON or a FIT activity.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dpup/ride.ersn.net/server/internal/lib/navigation"
	"github.com/dpup/ride.ersn.net/server/internal/lib/routing"
)

// Format is an export file type
type Format string

const (
	FormatKML     Format = "kml"
	FormatGeoJSON Format = "geojson"
	FormatFIT     Format = "fit"
)

// ParseFormat accepts a file extension with or without the leading dot
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(s, "."))); f {
	case FormatKML, FormatGeoJSON, FormatFIT:
		return f, nil
	case "json":
		return FormatGeoJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type for the format
func (f Format) ContentType() string {
	switch f {
	case FormatKML:
		return "application/vnd.google-earth.kml+xml"
	case FormatGeoJSON:
		return "application/geo+json"
	case FormatFIT:
		return "application/vnd.ant.fit"
	default:
		return "application/octet-stream"
	}
}

// Ride is everything an export can include. Route and Track may each be
// empty but not both.
type Ride struct {
	Name  string
	Route *routing.Route
	Track []navigation.TrackPoint
	Stats Stats
}

// Stats summarises the ride for export metadata
type Stats struct {
	StartTime     time.Time
	TotalDistance float64
	TotalElapsed  time.Duration
	TotalMoving   time.Duration
	AverageSpeed  float64 // moving average, m/s
	Arrived       bool
}

// StatsFromState pulls the ride summary out of a navigation snapshot
func StatsFromState(s navigation.State) Stats {
	stats := Stats{
		StartTime:     s.StartTime,
		TotalDistance: s.TotalDistanceTraveled,
		TotalElapsed:  s.TotalTimeElapsed,
		TotalMoving:   s.TotalTimeMoving,
		Arrived:       s.HasArrived,
	}
	if s.AverageSpeedWithoutStops != nil {
		stats.AverageSpeed = *s.AverageSpeedWithoutStops
	}
	return stats
}

// StatsFromTrack derives a summary when no navigation snapshot is available,
// such as after the session was stopped
func StatsFromTrack(track []navigation.TrackPoint) Stats {
	if len(track) == 0 {
		return Stats{}
	}
	first, last := track[0], track[len(track)-1]
	stats := Stats{
		StartTime:     first.Timestamp,
		TotalDistance: last.DistanceTraveled,
		TotalElapsed:  last.Timestamp.Sub(first.Timestamp),
	}
	if stats.TotalElapsed > 0 {
		stats.AverageSpeed = stats.TotalDistance / stats.TotalElapsed.Seconds()
		stats.TotalMoving = stats.TotalElapsed
	}
	return stats
}

func (r Ride) validate() error {
	if (r.Route == nil || len(r.Route.Points) == 0) && len(r.Track) == 0 {
		return fmt.Errorf("nothing to export: ride has neither route nor track")
	}
	return nil
}

func (r Ride) name() string {
	if r.Name != "" {
		return r.Name
	}
	if r.Route != nil && r.Route.Name != "" {
		return r.Route.Name
	}
	return "Ride"
}

// Write renders ride in format f to w
func Write(w io.Writer, f Format, ride Ride) error {
	switch f {
	case FormatKML:
		return KML(w, ride)
	case FormatGeoJSON:
		data, err := GeoJSON(ride)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case FormatFIT:
		data, err := FIT(ride)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported export format %q", f)
	}
}
