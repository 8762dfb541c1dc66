package audit

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/queuetimes/parkpulse/internal/aggregation"
	"github.com/queuetimes/parkpulse/internal/parkcal"
	"github.com/queuetimes/parkpulse/internal/shame"
	"github.com/queuetimes/parkpulse/internal/snapshots"
	"github.com/queuetimes/parkpulse/pkg/logger"
)

// checkDownCoverage verifies that every hour in which a Disney-style ride was
// observed DOWN while the park was open made it into the hourly aggregate as
// an operated ride with non-zero downtime. A dropped (ride, hour) here means
// the pipeline lost the signal the whole scoring model depends on.
func (v *Verifier) checkDownCoverage(
	ctx context.Context,
	report *Report,
	park *snapshots.Park,
	parkType shame.ParkType,
	dayStart, dayEnd time.Time,
	rideSnaps []*snapshots.RideStatusSnapshot,
	parkOpen *aggregation.ParkOpenIndex,
) {
	if parkType != shame.ParkTypeDisney {
		return
	}

	downHours := make(map[int]map[time.Time]int)
	for _, snap := range rideSnaps {
		if snap.Status != snapshots.StatusDown || !parkOpen.OpenAt(snap.RecordedAt) {
			continue
		}
		hour := parkcal.HourStart(snap.RecordedAt)
		if downHours[snap.RideID] == nil {
			downHours[snap.RideID] = make(map[time.Time]int)
		}
		downHours[snap.RideID][hour]++
	}
	if len(downHours) == 0 {
		return
	}

	stored, err := v.store.RideHourlyRange(ctx, park.ID, dayStart, dayEnd)
	if err != nil {
		logger.Warn("down coverage check skipped",
			zap.Int("park_id", park.ID),
			zap.Error(err),
		)
		return
	}
	storedHours := make(map[int]map[time.Time]*aggregation.RideHourlyStat)
	for _, s := range stored {
		if storedHours[s.RideID] == nil {
			storedHours[s.RideID] = make(map[time.Time]*aggregation.RideHourlyStat)
		}
		storedHours[s.RideID][s.HourStartUTC.UTC()] = s
	}

	stats := report.Stats[CheckCoverage]
	for rideID, hours := range downHours {
		for hour, count := range hours {
			stats.Checked++
			row := storedHours[rideID][hour.UTC()]
			if row != nil && row.RideOperated && row.DowntimeHours > 0 {
				continue
			}
			stats.Mismatched++
			window := hour
			report.add(Finding{
				Check:    CheckCoverage,
				Severity: SeverityCritical,
				ParkID:   park.ID,
				RideID:   rideID,
				Window:   &window,
				Expected: float64(count),
				Stored:   0,
				Message:  fmt.Sprintf("%d DOWN snapshots in this open hour but the hourly aggregate carries no downtime", count),
			})
		}
	}
}

// checkInterval verifies the collector is actually running at its configured
// cadence by comparing the median gap between park snapshots to the
// configured interval.
func (v *Verifier) checkInterval(report *Report, park *snapshots.Park, parkSnaps []*snapshots.ParkActivitySnapshot) {
	if len(parkSnaps) < 3 {
		return
	}

	stats := report.Stats[CheckInterval]
	stats.Checked++

	times := make([]time.Time, len(parkSnaps))
	for i, snap := range parkSnaps {
		times[i] = snap.RecordedAt
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	gaps := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		gaps = append(gaps, times[i].Sub(times[i-1]).Minutes())
	}
	sort.Float64s(gaps)
	median := gaps[len(gaps)/2]
	if len(gaps)%2 == 0 {
		median = (gaps[len(gaps)/2-1] + gaps[len(gaps)/2]) / 2
	}

	configured := float64(v.interval)
	if math.Abs(median-configured) <= configured*TolIntervalDriftFrac {
		return
	}

	stats.Mismatched++
	report.add(Finding{
		Check:    CheckInterval,
		Severity: SeverityWarning,
		ParkID:   park.ID,
		Field:    "median_interval_minutes",
		Expected: configured,
		Stored:   median,
		Message:  fmt.Sprintf("median snapshot interval %.1f min drifts from configured %.0f min", median, configured),
	})
}
