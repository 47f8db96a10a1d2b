package utils

import "time"

// TimeProvider abstracts the wall clock so a caller can inject a fixed time
// in tests instead of racing time.Now(). internal/build.Builder uses this
// to stamp Metadata.Created deterministically.
type TimeProvider interface {
	// Now returns the current time
	Now() time.Time

	// Since returns the time elapsed since t
	Since(t time.Time) time.Duration

	// Until returns the duration until t
	Until(t time.Time) time.Duration
}

// SystemTimeProvider is the default implementation, backed by the real
// system clock.
type SystemTimeProvider struct{}

// NewSystemTimeProvider creates a new SystemTimeProvider.
func NewSystemTimeProvider() *SystemTimeProvider {
	return &SystemTimeProvider{}
}

func (p *SystemTimeProvider) Now() time.Time { return time.Now() }

func (p *SystemTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

func (p *SystemTimeProvider) Until(t time.Time) time.Duration { return time.Until(t) }

// FixedTimeProvider always returns the same time, for pinning a snapshot's
// Created timestamp in tests.
type FixedTimeProvider struct {
	fixedTime time.Time
}

// NewFixedTimeProvider creates a provider that always returns fixedTime.
func NewFixedTimeProvider(fixedTime time.Time) *FixedTimeProvider {
	return &FixedTimeProvider{fixedTime: fixedTime}
}

func (p *FixedTimeProvider) Now() time.Time { return p.fixedTime }

func (p *FixedTimeProvider) Since(t time.Time) time.Duration { return p.fixedTime.Sub(t) }

func (p *FixedTimeProvider) Until(t time.Time) time.Duration { return t.Sub(p.fixedTime) }

// SetTime updates the fixed time (advancing it between build calls in a
// multi-snapshot test, for instance).
func (p *FixedTimeProvider) SetTime(t time.Time) { p.fixedTime = t }

// Add advances the fixed time by d.
func (p *FixedTimeProvider) Add(d time.Duration) { p.fixedTime = p.fixedTime.Add(d) }
