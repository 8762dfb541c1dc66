package parkcal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalDateStraddlesMidnight(t *testing.T) {
	pacific, err := LocationFor(PacificTZ)
	require.NoError(t, err)

	// 06:59 UTC on July 2 is 23:59 on July 1 in Pacific (PDT, UTC-7).
	beforeMidnight := time.Date(2024, 7, 2, 6, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), LocalDate(beforeMidnight, pacific))

	// 07:01 UTC on July 2 is 00:01 on July 2 in Pacific.
	afterMidnight := time.Date(2024, 7, 2, 7, 1, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC), LocalDate(afterMidnight, pacific))
}

func TestLocalDateEasternPark(t *testing.T) {
	eastern, err := LocationFor("America/New_York")
	require.NoError(t, err)

	// 03:59 UTC on July 2 is 23:59 on July 1 in Eastern (EDT, UTC-4).
	beforeMidnight := time.Date(2024, 7, 2, 3, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), LocalDate(beforeMidnight, eastern))
}

func TestDayBoundsUTC(t *testing.T) {
	pacific, err := LocationFor(PacificTZ)
	require.NoError(t, err)

	date := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	start, end := DayBoundsUTC(date, pacific)

	assert.Equal(t, time.Date(2024, 7, 1, 7, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 7, 2, 7, 0, 0, 0, time.UTC), end)
}

func TestDayBoundsUTCSpringForward(t *testing.T) {
	pacific, err := LocationFor(PacificTZ)
	require.NoError(t, err)

	// March 10 2024 is the US spring-forward date: the local day is 23 hours.
	date := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	start, end := DayBoundsUTC(date, pacific)

	assert.Equal(t, 23*time.Hour, end.Sub(start))
}

func TestLocationForInvalid(t *testing.T) {
	_, err := LocationFor("Not/AZone")
	assert.Error(t, err)
}

func TestISOWeekStart(t *testing.T) {
	// Week 27 of 2024 starts Monday July 1.
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), ISOWeekStart(2024, 27))

	// Week 1 of 2024 starts Monday January 1.
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ISOWeekStart(2024, 1))

	// Week 1 of 2021 starts Monday January 4 (Jan 1-3 belong to week 53 of 2020).
	assert.Equal(t, time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC), ISOWeekStart(2021, 1))
}

func TestPreviousISOWeekWrapsYear(t *testing.T) {
	year, week := PreviousISOWeek(2021, 1)
	assert.Equal(t, 2020, year)
	assert.Equal(t, 53, week)

	year, week = PreviousISOWeek(2024, 1)
	assert.Equal(t, 2023, year)
	assert.Equal(t, 52, week)

	year, week = PreviousISOWeek(2024, 27)
	assert.Equal(t, 2024, year)
	assert.Equal(t, 26, week)
}

func TestMinuteBucketAbsorbsDrift(t *testing.T) {
	parkAt := time.Date(2024, 7, 1, 18, 30, 0, 0, time.UTC)
	rideAt := parkAt.Add(2 * time.Second)

	assert.Equal(t, MinuteBucket(parkAt), MinuteBucket(rideAt))
	assert.NotEqual(t, parkAt, rideAt)
}

func TestFixedClock(t *testing.T) {
	instant := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	clock := FixedClock{Instant: instant}
	assert.Equal(t, instant, clock.Now())
}
