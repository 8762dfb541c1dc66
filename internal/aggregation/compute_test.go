package aggregation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queuetimes/parkpulse/internal/classification"
	"github.com/queuetimes/parkpulse/internal/shame"
	"github.com/queuetimes/parkpulse/internal/snapshots"
)

const testInterval = 10 // minutes

// buildDay fabricates one ride's snapshots plus matching park snapshots over
// n cycles, with per-ride rows drifting two seconds after per-park rows the
// way the collector actually writes them.
func buildDay(start time.Time, n int, status func(i int) snapshots.Status) ([]*snapshots.RideStatusSnapshot, []*snapshots.ParkActivitySnapshot) {
	var rideSnaps []*snapshots.RideStatusSnapshot
	var parkSnaps []*snapshots.ParkActivitySnapshot
	for i := 0; i < n; i++ {
		at := start.Add(time.Duration(i*testInterval) * time.Minute)
		st := status(i)
		rideSnaps = append(rideSnaps, &snapshots.RideStatusSnapshot{
			RideID:         1,
			ParkID:         1,
			RecordedAt:     at.Add(2 * time.Second),
			Status:         st,
			ComputedIsOpen: st == snapshots.StatusOperating,
		})
		parkSnaps = append(parkSnaps, &snapshots.ParkActivitySnapshot{
			ParkID:          1,
			RecordedAt:      at,
			RidesOpen:       1,
			ParkAppearsOpen: true,
		})
	}
	return rideSnaps, parkSnaps
}

func TestMinuteBucketAbsorbsDrift(t *testing.T) {
	start := time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)
	rideSnaps, parkSnaps := buildDay(start, 6, func(int) snapshots.Status { return snapshots.StatusOperating })

	idx := NewParkOpenIndex(parkSnaps)

	// Every drifted ride snapshot still lands in an open minute.
	for _, snap := range rideSnaps {
		assert.True(t, idx.OpenAt(snap.RecordedAt))
	}

	// An exact-equality join would match nothing; the two-second drift
	// must be absorbed by the bucketing, never by widening tolerances.
	for i, snap := range rideSnaps {
		assert.NotEqual(t, parkSnaps[i].RecordedAt, snap.RecordedAt)
	}
}

func TestComputeRideHourDowntime(t *testing.T) {
	hourStart := time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)
	rideSnaps, parkSnaps := buildDay(hourStart, 6, func(i int) snapshots.Status {
		if i < 3 {
			return snapshots.StatusDown
		}
		return snapshots.StatusOperating
	})

	idx := NewParkOpenIndex(parkSnaps)
	stat := ComputeRideHour(shame.ParkTypeDisney, 1, 1, hourStart, rideSnaps, idx, true, testInterval, "v1")

	assert.Equal(t, 6, stat.SnapshotCount)
	assert.Equal(t, 3, stat.DownSnapshots)
	assert.Equal(t, 3, stat.OperatingSnapshots)
	assert.LessOrEqual(t, stat.DownSnapshots+stat.OperatingSnapshots, stat.SnapshotCount)

	// 3 down snapshots at 10 minutes each.
	assert.InDelta(t, 0.5, stat.DowntimeHours, 0.01)
	assert.InDelta(t, 50.0, stat.UptimePercentage, 0.001)
	assert.True(t, stat.RideOperated)
}

func TestComputeRideHourNotOperatedToday(t *testing.T) {
	// Without the operated gate no downtime accrues, whatever the status.
	hourStart := time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)
	rideSnaps, parkSnaps := buildDay(hourStart, 6, func(int) snapshots.Status { return snapshots.StatusClosed })

	idx := NewParkOpenIndex(parkSnaps)
	stat := ComputeRideHour(shame.ParkTypeOther, 1, 1, hourStart, rideSnaps, idx, false, testInterval, "v1")

	assert.Equal(t, 0, stat.DownSnapshots)
	assert.Equal(t, 0.0, stat.DowntimeHours)
	assert.False(t, stat.RideOperated)
}

func TestComputeRideDayDisneyDownAllDay(t *testing.T) {
	// A Disney ride reporting DOWN for the entire day never reports
	// OPERATING, yet DOWN itself proves the ride is in service: the full
	// day counts as downtime.
	dayStart := time.Date(2025, 6, 15, 13, 0, 0, 0, time.UTC)
	statDate := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	rideSnaps, parkSnaps := buildDay(dayStart, 60, func(int) snapshots.Status { return snapshots.StatusDown })

	idx := NewParkOpenIndex(parkSnaps)
	stat := ComputeRideDay(shame.ParkTypeDisney, 1, 1, statDate, rideSnaps, idx, testInterval, "v1")

	assert.True(t, stat.RideOperated)
	assert.Equal(t, 60*testInterval, stat.DowntimeMinutes)
	assert.Equal(t, 60*testInterval, stat.LongestDowntimeMinutes)
	assert.Equal(t, 0, stat.UptimeMinutes)
	assert.Equal(t, 0.0, stat.UptimePercentage)
}

func TestComputeRideDayNonDisneyClosedAllDay(t *testing.T) {
	// The same pattern at a non-Disney park is indistinguishable from a
	// seasonal closure: no operated signal, no downtime.
	dayStart := time.Date(2025, 6, 15, 13, 0, 0, 0, time.UTC)
	statDate := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	rideSnaps, parkSnaps := buildDay(dayStart, 60, func(int) snapshots.Status { return snapshots.StatusClosed })

	idx := NewParkOpenIndex(parkSnaps)
	stat := ComputeRideDay(shame.ParkTypeOther, 1, 1, statDate, rideSnaps, idx, testInterval, "v1")

	assert.False(t, stat.RideOperated)
	assert.Equal(t, 0, stat.DowntimeMinutes)
	assert.Equal(t, 0, stat.LongestDowntimeMinutes)
}

func TestComputeRideDayUptimeOverOperatingHours(t *testing.T) {
	// Disney CLOSED during open hours is not downtime, but it is not uptime
	// either: a ride running 5 of 10 open cycles sits at 50%, not 100%.
	dayStart := time.Date(2025, 6, 15, 13, 0, 0, 0, time.UTC)
	statDate := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	rideSnaps, parkSnaps := buildDay(dayStart, 10, func(i int) snapshots.Status {
		if i < 5 {
			return snapshots.StatusOperating
		}
		return snapshots.StatusClosed
	})

	idx := NewParkOpenIndex(parkSnaps)
	stat := ComputeRideDay(shame.ParkTypeDisney, 1, 1, statDate, rideSnaps, idx, testInterval, "v1")

	assert.Equal(t, 5*testInterval, stat.UptimeMinutes)
	assert.Equal(t, 10*testInterval, stat.OperatingHoursMinutes)
	assert.Equal(t, 0, stat.DowntimeMinutes)
	assert.InDelta(t, 50.0, stat.UptimePercentage, 0.001)
}

func TestComputeRideDayStatusChangesAndRuns(t *testing.T) {
	dayStart := time.Date(2025, 6, 15, 13, 0, 0, 0, time.UTC)
	statDate := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	// OPERATING x3, DOWN x2, OPERATING x1, DOWN x4: three transitions
	// from the first status, longest down run is 4 snapshots.
	pattern := []snapshots.Status{
		snapshots.StatusOperating, snapshots.StatusOperating, snapshots.StatusOperating,
		snapshots.StatusDown, snapshots.StatusDown,
		snapshots.StatusOperating,
		snapshots.StatusDown, snapshots.StatusDown, snapshots.StatusDown, snapshots.StatusDown,
	}
	rideSnaps, parkSnaps := buildDay(dayStart, len(pattern), func(i int) snapshots.Status { return pattern[i] })

	idx := NewParkOpenIndex(parkSnaps)
	stat := ComputeRideDay(shame.ParkTypeDisney, 1, 1, statDate, rideSnaps, idx, testInterval, "v1")

	assert.Equal(t, 3, stat.StatusChanges)
	assert.Equal(t, 6*testInterval, stat.DowntimeMinutes)
	assert.Equal(t, 4*testInterval, stat.LongestDowntimeMinutes)
	assert.Equal(t, 4*testInterval, stat.UptimeMinutes)
}

func TestComputeRideDayMonotonicUnderAddedDown(t *testing.T) {
	dayStart := time.Date(2025, 6, 15, 13, 0, 0, 0, time.UTC)
	statDate := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	rideSnaps, parkSnaps := buildDay(dayStart, 10, func(i int) snapshots.Status {
		if i == 4 {
			return snapshots.StatusDown
		}
		return snapshots.StatusOperating
	})

	idx := NewParkOpenIndex(parkSnaps)
	before := ComputeRideDay(shame.ParkTypeDisney, 1, 1, statDate, rideSnaps, idx, testInterval, "v1")

	// Append one more DOWN observation with a matching park snapshot.
	extraAt := dayStart.Add(10 * testInterval * time.Minute)
	rideSnaps = append(rideSnaps, &snapshots.RideStatusSnapshot{
		RideID: 1, ParkID: 1, RecordedAt: extraAt.Add(2 * time.Second),
		Status: snapshots.StatusDown,
	})
	parkSnaps = append(parkSnaps, &snapshots.ParkActivitySnapshot{
		ParkID: 1, RecordedAt: extraAt, RidesOpen: 1, ParkAppearsOpen: true,
	})

	idx = NewParkOpenIndex(parkSnaps)
	after := ComputeRideDay(shame.ParkTypeDisney, 1, 1, statDate, rideSnaps, idx, testInterval, "v1")

	assert.Greater(t, after.DowntimeMinutes, before.DowntimeMinutes)
}

func TestComputeParkDayScenario(t *testing.T) {
	// Disney park, rides weight 3 and 2: tier-1 down half the 20-hour day
	// yields shame 3.0 and 10 hours of downtime from one ride.
	statDate := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	dayStart := time.Date(2025, 6, 15, 4, 0, 0, 0, time.UTC)

	const cycles = 120 // 20 hours at 10-minute cadence
	var parkSnaps []*snapshots.ParkActivitySnapshot
	for i := 0; i < cycles; i++ {
		score := 0.0
		if i < cycles/2 {
			score = 6.0 // tier-1 (weight 3) of total 5 down
		}
		parkSnaps = append(parkSnaps, &snapshots.ParkActivitySnapshot{
			ParkID:          1,
			RecordedAt:      dayStart.Add(time.Duration(i*testInterval) * time.Minute),
			RidesOpen:       1,
			ParkAppearsOpen: true,
			ShameScore:      score,
		})
	}

	rideStats := []*RideDailyStat{
		{RideID: 10, ParkID: 1, StatDate: statDate, DowntimeMinutes: 600, RideOperated: true},
		{RideID: 11, ParkID: 1, StatDate: statDate, UptimeMinutes: 1200, RideOperated: true},
	}

	weights := staticWeights{10: 3, 11: 2}
	stat := ComputeParkDay(1, statDate, parkSnaps, rideStats, weights, 5, "v1")

	assert.InDelta(t, 3.0, stat.ShameScore, 0.001)
	assert.InDelta(t, 10.0, stat.TotalDowntimeHours, 0.001)
	assert.Equal(t, 1, stat.RidesWithDowntime)
	assert.Equal(t, 5, stat.EffectiveParkWeight)
	assert.True(t, stat.ParkWasOpen)
}

type staticWeights map[int]int

func (w staticWeights) WeightFor(rideID int) int {
	if weight, ok := w[rideID]; ok {
		return weight
	}
	return 2
}

func (w staticWeights) CategoryFor(int) string {
	return classification.CategoryAttraction
}

func TestComputeOperatingSession(t *testing.T) {
	localDate := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	open := time.Date(2025, 6, 15, 13, 0, 0, 0, time.UTC)

	parkSnaps := []*snapshots.ParkActivitySnapshot{
		{ParkID: 1, RecordedAt: open.Add(-time.Hour)},                                     // closed pre-open
		{ParkID: 1, RecordedAt: open, RidesOpen: 2, ParkAppearsOpen: true},                // first open
		{ParkID: 1, RecordedAt: open.Add(5 * time.Hour), RidesOpen: 1},                    // fallback open
		{ParkID: 1, RecordedAt: open.Add(9 * time.Hour), ParkAppearsOpen: true},           // last open
		{ParkID: 1, RecordedAt: open.Add(10 * time.Hour)},                                 // closed post-close
	}

	session := ComputeOperatingSession(1, localDate, parkSnaps)

	require.NotNil(t, session.FirstOpenUTC)
	require.NotNil(t, session.LastOpenUTC)
	assert.Equal(t, open, *session.FirstOpenUTC)
	assert.Equal(t, open.Add(9*time.Hour), *session.LastOpenUTC)
	assert.Equal(t, 9*60, session.OperatingMinutes)
}

func TestComputeIdempotent(t *testing.T) {
	// Pure recomputation over the same inputs yields identical rows.
	dayStart := time.Date(2025, 6, 15, 13, 0, 0, 0, time.UTC)
	statDate := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	rideSnaps, parkSnaps := buildDay(dayStart, 30, func(i int) snapshots.Status {
		if i%3 == 0 {
			return snapshots.StatusDown
		}
		return snapshots.StatusOperating
	})

	idx := NewParkOpenIndex(parkSnaps)
	first := ComputeRideDay(shame.ParkTypeDisney, 1, 1, statDate, rideSnaps, idx, testInterval, "v1")
	second := ComputeRideDay(shame.ParkTypeDisney, 1, 1, statDate, rideSnaps, idx, testInterval, "v1")

	assert.Equal(t, first, second)
}

func TestTrendPct(t *testing.T) {
	up := trendPct(150, 100)
	require.NotNil(t, up)
	assert.InDelta(t, 50.0, *up, 0.001)

	down := trendPct(50, 100)
	require.NotNil(t, down)
	assert.InDelta(t, -50.0, *down, 0.001)

	// No previous signal: trend undefined, not zero.
	assert.Nil(t, trendPct(50, 0))
}

func TestRollupParkWeek(t *testing.T) {
	weekStart := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	days := []*ParkDailyStat{
		{ParkID: 1, ShameScore: 2.0, TotalDowntimeHours: 4, ParkWasOpen: true},
		{ParkID: 1, ShameScore: 4.0, TotalDowntimeHours: 8, ParkWasOpen: true},
		{ParkID: 1, ShameScore: 0.0, TotalDowntimeHours: 0, ParkWasOpen: false},
	}

	stat := rollupParkWeek(1, 2025, 24, weekStart, days)

	assert.Equal(t, 2, stat.DaysOpen)
	assert.InDelta(t, 3.0, stat.AvgShameScore, 0.001)
	assert.InDelta(t, 12.0, stat.TotalDowntimeHours, 0.001)
}
