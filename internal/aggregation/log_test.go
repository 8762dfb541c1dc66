package aggregation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHourlySuccessCovers(t *testing.T) {
	base := time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC)
	hours := func(offsets ...int) []time.Time {
		out := make([]time.Time, 0, len(offsets))
		for _, h := range offsets {
			out = append(out, base.Add(time.Duration(h)*time.Hour))
		}
		return out
	}

	// No successful runs at all: nothing is covered.
	assert.False(t, hourlySuccessCovers(nil, base))

	// An unbroken chain reaching past the cutoff covers it.
	assert.True(t, hourlySuccessCovers(hours(1, 2, 3, 4), base.Add(3*time.Hour)))
	assert.True(t, hourlySuccessCovers(hours(1, 2, 3, 4), base.Add(4*time.Hour)))

	// The latest success is not enough when an earlier hour failed: the
	// gap before the cutoff holds coverage back until that hour is rerun.
	assert.False(t, hourlySuccessCovers(hours(1, 2, 4, 5), base.Add(5*time.Hour)))

	// A gap entirely beyond the cutoff is someone else's problem.
	assert.True(t, hourlySuccessCovers(hours(1, 2, 3, 5), base.Add(2*time.Hour)))

	// A chain that stops short of the cutoff does not cover it.
	assert.False(t, hourlySuccessCovers(hours(1, 2, 3), base.Add(6*time.Hour)))
}
