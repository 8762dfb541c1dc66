package parkcal

import (
	"fmt"
	"sync"
	"time"
)

// PacificTZ is the reference timezone for the day-scoped "ride operated"
// boolean and for parks that do not publish their own zone.
const PacificTZ = "America/Los_Angeles"

var (
	locationCache sync.Map // tz name -> *time.Location
)

// LocationFor resolves an IANA timezone name, caching the result.
func LocationFor(tz string) (*time.Location, error) {
	if tz == "" {
		tz = PacificTZ
	}

	if cached, ok := locationCache.Load(tz); ok {
		return cached.(*time.Location), nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	locationCache.Store(tz, loc)
	return loc, nil
}

// LocalDate returns the calendar date of t in the given location, normalized
// to midnight UTC so dates compare and format cleanly.
func LocalDate(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// PacificDate returns the Pacific calendar date containing t.
func PacificDate(t time.Time) time.Time {
	loc, _ := LocationFor(PacificTZ)
	return LocalDate(t, loc)
}

// DayBoundsUTC converts a calendar date (as returned by LocalDate) in the
// given location to its UTC start and end instants. The end bound is
// exclusive. DST transitions are handled by adding a calendar day in local
// time rather than 24 hours.
func DayBoundsUTC(date time.Time, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC()
}

// HourStart truncates t to the start of its UTC hour.
func HourStart(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// MinuteBucket truncates t to its UTC minute. Ride and park snapshots from
// the same collection cycle can drift by up to two seconds, so joins always
// bucket by minute, never by exact timestamp.
func MinuteBucket(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

// ISOWeekOf returns the ISO 8601 year and week containing the date.
func ISOWeekOf(date time.Time) (int, int) {
	return date.ISOWeek()
}

// ISOWeekStart returns the Monday starting the given ISO week, as a
// midnight-UTC date.
func ISOWeekStart(isoYear, isoWeek int) time.Time {
	// Jan 4 is always inside ISO week 1.
	jan4 := time.Date(isoYear, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	week1Monday := jan4.AddDate(0, 0, 1-weekday)
	return week1Monday.AddDate(0, 0, (isoWeek-1)*7)
}

// PreviousISOWeek returns the ISO year and week immediately before the given
// one, wrapping week 1 to week 52/53 of the prior year.
func PreviousISOWeek(isoYear, isoWeek int) (int, int) {
	start := ISOWeekStart(isoYear, isoWeek)
	return start.AddDate(0, 0, -7).ISOWeek()
}

// MonthStart returns the first day of the month containing the date.
func MonthStart(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PreviousMonthStart returns the first day of the month before the one
// containing the date.
func PreviousMonthStart(date time.Time) time.Time {
	return MonthStart(date).AddDate(0, -1, 0)
}

// DaysAgo returns the calendar date n local days before the given date.
func DaysAgo(date time.Time, n int) time.Time {
	return date.AddDate(0, 0, -n)
}
