// Package speed holds unit conversions and the speed-driven map zoom policy.
package speed

import "math"

const (
	kmhPerMps = 3.6

	// MaxPlausibleKmh is the fastest speed a cycling fix is believed at
	MaxPlausibleKmh = 60.0
)

// MaxPlausibleMps is MaxPlausibleKmh in m/s
var MaxPlausibleMps = KmhToMps(MaxPlausibleKmh)

// MpsToKmh converts meters per second to kilometers per hour
func MpsToKmh(mps float64) float64 {
	return mps * kmhPerMps
}

// KmhToMps converts kilometers per hour to meters per second
func KmhToMps(kmh float64) float64 {
	return kmh / kmhPerMps
}

// zoomBand maps speeds below upToKmh to a map zoom level
type zoomBand struct {
	upToKmh float64
	zoom    float64
}

var zoomBands = []zoomBand{
	{5, 18.0},
	{12, 17.0},
	{20, 16.5},
	{30, 16.0},
	{45, 15.0},
}

const fastestZoom = 14.0

// ZoomForSpeed returns the recommended map zoom for a speed in m/s. Slower
// riders see more detail.
func ZoomForSpeed(mps float64) float64 {
	if math.IsNaN(mps) || mps < 0 {
		mps = 0
	}
	kmh := MpsToKmh(mps)
	for _, b := range zoomBands {
		if kmh < b.upToKmh {
			return b.zoom
		}
	}
	return fastestZoom
}

// IsPlausible reports whether mps is a believable speed no faster than max
func IsPlausible(mps, max float64) bool {
	return !math.IsNaN(mps) && mps >= 0 && mps <= max
}
