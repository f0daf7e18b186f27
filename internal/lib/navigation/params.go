package navigation

import (
	"errors"
	"fmt"
	"time"

	"github.com/dpup/ride.ersn.net/server/internal/lib/routing"
	"github.com/dpup/ride.ersn.net/server/internal/lib/speed"
)

// Params holds every navigation threshold. Distances are meters, speeds m/s.
type Params struct {
	SnapThreshold         float64
	SnapWindow            int
	ApproachThreshold     float64
	ArrivalThreshold      float64
	ArrivalDwell          time.Duration
	OffRouteDialogDelay   time.Duration
	MinMovingSpeed        float64
	HeadingReliableSpeed  float64
	BearingSmoothingRatio float64
	MaxPlausibleSpeed     float64
	DefaultCruiseSpeed    float64
	ETARangeMinElapsed    time.Duration
	MaxTrackPoints        int
	DirectionLogging      bool
}

// DefaultParams returns the production thresholds
func DefaultParams() Params {
	return Params{
		SnapThreshold:         routing.DefaultSnapThreshold,
		SnapWindow:            routing.DefaultSnapWindow,
		ApproachThreshold:     200,
		ArrivalThreshold:      20,
		ArrivalDwell:          3 * time.Second,
		OffRouteDialogDelay:   5 * time.Second,
		MinMovingSpeed:        0.5,
		HeadingReliableSpeed:  1.0,
		BearingSmoothingRatio: 0.7,
		MaxPlausibleSpeed:     speed.MaxPlausibleMps,
		DefaultCruiseSpeed:    speed.KmhToMps(15),
		ETARangeMinElapsed:    30 * time.Second,
		MaxTrackPoints:        36000, // ten hours at 1 Hz
	}
}

// Validate checks that the thresholds are usable together
func (p Params) Validate() error {
	var errs []error
	if p.SnapThreshold <= 0 {
		errs = append(errs, fmt.Errorf("snap threshold must be positive, got %v", p.SnapThreshold))
	}
	if p.SnapWindow <= 0 {
		errs = append(errs, fmt.Errorf("snap window must be positive, got %d", p.SnapWindow))
	}
	if p.ArrivalThreshold <= 0 || p.ApproachThreshold < p.ArrivalThreshold {
		errs = append(errs, fmt.Errorf("approach threshold (%v) must be at least the arrival threshold (%v) and both positive",
			p.ApproachThreshold, p.ArrivalThreshold))
	}
	if p.ArrivalDwell < 0 || p.OffRouteDialogDelay < 0 || p.ETARangeMinElapsed < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if p.BearingSmoothingRatio <= 0 || p.BearingSmoothingRatio > 1 {
		errs = append(errs, fmt.Errorf("bearing smoothing ratio must be in (0, 1], got %v", p.BearingSmoothingRatio))
	}
	if p.DefaultCruiseSpeed <= 0 {
		errs = append(errs, fmt.Errorf("default cruise speed must be positive, got %v", p.DefaultCruiseSpeed))
	}
	if p.MaxPlausibleSpeed <= p.MinMovingSpeed {
		errs = append(errs, fmt.Errorf("max plausible speed (%v) must exceed the moving threshold (%v)",
			p.MaxPlausibleSpeed, p.MinMovingSpeed))
	}
	return errors.Join(errs...)
}
