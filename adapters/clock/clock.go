// Package clock provides Clock implementations.
package clock

import (
	"sync"
	"time"

	"github.com/artpar/carebill/ports"
)

// Real returns the wall-clock time in the billing time zone.
// A zero Real reports times in UTC.
type Real struct {
	Location *time.Location
}

// NewReal creates a clock for the named IANA zone ("" means UTC).
func NewReal(zone string) (Real, error) {
	if zone == "" {
		return Real{Location: time.UTC}, nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Real{}, err
	}
	return Real{Location: loc}, nil
}

// Now returns the current time in the configured zone.
func (r Real) Now() time.Time {
	if r.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(r.Location)
}

var _ ports.Clock = Real{}

// Fake provides a controllable clock for testing.
type Fake struct {
	mu      sync.RWMutex
	current time.Time
}

// NewFake creates a fake clock set to the given time.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// NewFakeDate creates a fake clock at 09:00 UTC on the given day.
func NewFakeDate(year int, month time.Month, day int) *Fake {
	return NewFake(time.Date(year, month, day, 9, 0, 0, 0, time.UTC))
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Set sets the fake current time.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
}

// Advance moves the fake time forward by duration d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

// AdvanceDays moves the fake time forward by whole calendar days.
func (f *Fake) AdvanceDays(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.AddDate(0, 0, n)
}

var _ ports.Clock = (*Fake)(nil)
