// Package clock abstracts wall time so navigation timing can be driven
// deterministically in tests and replays.
package clock

import (
	"sync"
	"time"
)

// Clock is the time source used by the navigation engine and session reaper
type Clock interface {
	Now() time.Time
}

// Real returns the system clock
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Fake is a manually advanced clock. The zero value starts at the zero time;
// use NewFake to start somewhere useful.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a fake clock reading t
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

// Now returns the current fake time
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to t, which may be earlier than the current reading
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new reading
func (f *Fake) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	return f.now
}
