// Package format renders distances, durations and speeds for riders.
package format

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dpup/ride.ersn.net/server/internal/lib/speed"
)

// Formatter renders values with locale-aware number grouping
type Formatter struct {
	p *message.Printer
}

// New creates a formatter for the given language
func New(tag language.Tag) *Formatter {
	return &Formatter{p: message.NewPrinter(tag)}
}

// NewFromString parses a BCP 47 tag, falling back to English when invalid
func NewFromString(tag string) *Formatter {
	t, err := language.Parse(tag)
	if err != nil {
		t = language.English
	}
	return New(t)
}

var english = New(language.English)

// Distance formats meters: whole meters below 100, tens of meters below
// 1000, then kilometers with one decimal
func (f *Formatter) Distance(meters float64) string {
	if math.IsNaN(meters) || meters < 0 {
		meters = 0
	}
	// Bands apply to the rounded value, so 996 m reads "1.0 km"
	if whole := math.Round(meters); whole < 100 {
		return f.p.Sprintf("%.0f m", whole)
	}
	if tens := math.Round(meters/10) * 10; tens < 1000 {
		return f.p.Sprintf("%.0f m", tens)
	}
	return f.p.Sprintf("%.1f km", meters/1000)
}

// Duration formats seconds as "<1 min", "12 min" or "1 h 05 min"
func (f *Formatter) Duration(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 60 {
		return "<1 min"
	}
	minutes := int(math.Round(seconds / 60))
	if minutes < 60 {
		return f.p.Sprintf("%d min", minutes)
	}
	return f.p.Sprintf("%d h ", minutes/60) + fmt.Sprintf("%02d min", minutes%60)
}

// Speed formats m/s as km/h with one decimal
func (f *Formatter) Speed(mps float64) string {
	if math.IsNaN(mps) || mps < 0 {
		mps = 0
	}
	return f.p.Sprintf("%.1f km/h", speed.MpsToKmh(mps))
}

// Distance formats with the English formatter
func Distance(meters float64) string { return english.Distance(meters) }

// Duration formats with the English formatter
func Duration(seconds float64) string { return english.Duration(seconds) }

// Speed formats with the English formatter
func Speed(mps float64) string { return english.Speed(mps) }
