package parkcal

import "time"

// Clock abstracts the time source so jobs and tests can control "now".
type Clock interface {
	Now() time.Time
}

// SystemClock returns the real current time in UTC.
type SystemClock struct{}

// Now implements Clock
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant. Test helper.
type FixedClock struct {
	Instant time.Time
}

// Now implements Clock
func (c FixedClock) Now() time.Time {
	return c.Instant
}
