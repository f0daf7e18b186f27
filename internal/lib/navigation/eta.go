package navigation

import "time"

// estimateTimeRemaining uses the current speed when it is usable, otherwise
// the default cruise speed
func estimateTimeRemaining(remaining, currentSpeed float64, usable bool, p Params) float64 {
	if usable && currentSpeed >= p.MinMovingSpeed {
		return remaining / currentSpeed
	}
	return remaining / p.DefaultCruiseSpeed
}

// averageSpeeds returns distance/elapsed and movingDistance/moving. Either is
// nil while its denominator is zero.
func averageSpeeds(distance, movingDistance float64, elapsed, moving time.Duration) (withStops, withoutStops *float64) {
	if elapsed > 0 {
		withStops = ptr(distance / elapsed.Seconds())
	}
	if moving > 0 {
		withoutStops = ptr(movingDistance / moving.Seconds())
	}
	return withStops, withoutStops
}

// etaRange brackets the remaining time once enough of the ride has been seen
func etaRange(remaining float64, elapsed time.Duration, withStops, withoutStops *float64, p Params) *ETARange {
	if elapsed < p.ETARangeMinElapsed || withStops == nil || withoutStops == nil {
		return nil
	}
	if *withStops <= 0 || *withoutStops <= 0 {
		return nil
	}
	return &ETARange{
		Optimistic:  remaining / *withoutStops,
		Pessimistic: remaining / *withStops,
	}
}
