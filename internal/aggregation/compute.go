package aggregation

import (
	"time"

	"github.com/queuetimes/parkpulse/internal/classification"
	"github.com/queuetimes/parkpulse/internal/parkcal"
	"github.com/queuetimes/parkpulse/internal/shame"
	"github.com/queuetimes/parkpulse/internal/snapshots"
	"github.com/queuetimes/parkpulse/pkg/config"
)

// ClassificationLookup resolves a ride's tier weight and category. Only
// ATTRACTION rides feed park-level shame and downtime; other categories keep
// their per-ride rows but never contribute to the park's numbers.
type ClassificationLookup interface {
	WeightFor(rideID int) int
	CategoryFor(rideID int) string
}

func isAttraction(class ClassificationLookup, rideID int) bool {
	return class.CategoryFor(rideID) == classification.CategoryAttraction
}

// ParkOpenIndex answers "was the park open at this instant" for a window of
// park activity snapshots, minute-bucketed so the two-second drift between
// per-ride and per-park writes never loses a join.
type ParkOpenIndex struct {
	open map[time.Time]bool
}

// NewParkOpenIndex builds the index from park snapshots using the fallback
// heuristic: scheduled open, or live activity shows open rides.
func NewParkOpenIndex(parkSnaps []*snapshots.ParkActivitySnapshot) *ParkOpenIndex {
	open := make(map[time.Time]bool, len(parkSnaps))
	for _, snap := range parkSnaps {
		if snap.AppearsOpen() {
			open[parkcal.MinuteBucket(snap.RecordedAt)] = true
		}
	}
	return &ParkOpenIndex{open: open}
}

// OpenAt reports whether the park was open during the minute containing t.
func (idx *ParkOpenIndex) OpenAt(t time.Time) bool {
	return idx.open[parkcal.MinuteBucket(t)]
}

// RideOperated reports whether any observation in the window proves the ride
// was in service while the park was open. This is the gate for counting any
// downtime at all: a ride never seen in service is treated as seasonal.
func RideOperated(parkType shame.ParkType, snaps []*snapshots.RideStatusSnapshot, parkOpen *ParkOpenIndex) bool {
	for _, snap := range snaps {
		if !parkOpen.OpenAt(snap.RecordedAt) {
			continue
		}
		if shame.OperatedSignal(parkType, snap.Status, snap.ComputedIsOpen) {
			return true
		}
	}
	return false
}

// ComputeRideHour aggregates one ride's snapshots for one UTC hour. The
// operatedToday gate comes from the full local day, not just this hour, so a
// ride that opens at noon still accrues downtime from a morning breakdown.
func ComputeRideHour(parkType shame.ParkType, rideID, parkID int, hourStart time.Time, snaps []*snapshots.RideStatusSnapshot, parkOpen *ParkOpenIndex, operatedToday bool, intervalMinutes int, metricsVersion string) *RideHourlyStat {
	stat := &RideHourlyStat{
		RideID:         rideID,
		ParkID:         parkID,
		HourStartUTC:   hourStart,
		SnapshotCount:  len(snaps),
		RideOperated:   operatedToday,
		MetricsVersion: metricsVersion,
	}

	var waitSum, waitCount int
	for _, snap := range snaps {
		if snap.ComputedIsOpen {
			stat.OperatingSnapshots++
			if snap.WaitTime != nil {
				waitSum += *snap.WaitTime
				waitCount++
			}
			continue
		}
		if operatedToday && parkOpen.OpenAt(snap.RecordedAt) && shame.IsDown(parkType, snap.Status) {
			stat.DownSnapshots++
		}
	}

	stat.DowntimeHours = shame.Round2(float64(stat.DownSnapshots) * float64(intervalMinutes) / 60)
	if denom := stat.OperatingSnapshots + stat.DownSnapshots; denom > 0 {
		stat.UptimePercentage = shame.Round1(float64(stat.OperatingSnapshots) / float64(denom) * 100)
	}
	if waitCount > 0 {
		avg := shame.Round2(float64(waitSum) / float64(waitCount))
		stat.AvgWaitTime = &avg
	}

	return stat
}

// ComputeRideDay aggregates one ride's snapshots for one park-local calendar
// day. Snapshots must be ordered by recorded_at.
func ComputeRideDay(parkType shame.ParkType, rideID, parkID int, statDate time.Time, snaps []*snapshots.RideStatusSnapshot, parkOpen *ParkOpenIndex, intervalMinutes int, metricsVersion string) *RideDailyStat {
	stat := &RideDailyStat{
		RideID:         rideID,
		ParkID:         parkID,
		StatDate:       statDate,
		SnapshotCount:  len(snaps),
		MetricsVersion: metricsVersion,
	}

	operated := RideOperated(parkType, snaps, parkOpen)
	stat.RideOperated = operated

	var (
		waitSum, waitCount int
		downRun            int
		prevStatus         snapshots.Status
		prevSeen           bool
	)
	for _, snap := range snaps {
		open := parkOpen.OpenAt(snap.RecordedAt)
		if open {
			stat.OperatingHoursMinutes += intervalMinutes
		}

		if prevSeen && snap.Status != prevStatus {
			stat.StatusChanges++
		}
		prevStatus = snap.Status
		prevSeen = true

		if snap.ComputedIsOpen {
			if open {
				stat.UptimeMinutes += intervalMinutes
			}
			downRun = 0
			if snap.WaitTime != nil {
				w := *snap.WaitTime
				waitSum += w
				waitCount++
				if stat.MinWaitTime == nil || w < *stat.MinWaitTime {
					stat.MinWaitTime = intCopy(w)
				}
				if stat.MaxWaitTime == nil || w > *stat.MaxWaitTime {
					stat.MaxWaitTime = intCopy(w)
				}
			}
			continue
		}

		if operated && open && shame.IsDown(parkType, snap.Status) {
			stat.DowntimeMinutes += intervalMinutes
			downRun += intervalMinutes
			if downRun > stat.LongestDowntimeMinutes {
				stat.LongestDowntimeMinutes = downRun
			}
		} else {
			downRun = 0
		}
	}

	// Uptime is measured against the park's open time, so a Disney ride
	// sitting CLOSED through open hours drags the percentage down instead
	// of vanishing from the denominator.
	if operated && stat.OperatingHoursMinutes > 0 {
		stat.UptimePercentage = shame.Round1(float64(stat.UptimeMinutes) / float64(stat.OperatingHoursMinutes) * 100)
	}
	if waitCount > 0 {
		avg := shame.Round2(float64(waitSum) / float64(waitCount))
		stat.AvgWaitTime = &avg
		stat.PeakWaitTime = stat.MaxWaitTime
	}

	return stat
}

// ComputeParkHour aggregates one park's hour from its activity snapshots and
// the per-ride hourly rows of the same hour. The hourly shame score is the
// mean of the scores stamped at collection time over open snapshots.
func ComputeParkHour(parkID int, hourStart time.Time, parkSnaps []*snapshots.ParkActivitySnapshot, rideStats []*RideHourlyStat, class ClassificationLookup, effectiveWeight int, metricsVersion string) *ParkHourlyStat {
	stat := &ParkHourlyStat{
		ParkID:              parkID,
		HourStartUTC:        hourStart,
		EffectiveParkWeight: effectiveWeight,
		SnapshotCount:       len(parkSnaps),
		MetricsVersion:      metricsVersion,
	}

	var shameSum float64
	openCount := 0
	for _, snap := range parkSnaps {
		if snap.AppearsOpen() {
			openCount++
			shameSum += snap.ShameScore
		}
	}
	if openCount > 0 {
		stat.ParkWasOpen = true
		stat.ShameScore = shame.Round1(shameSum / float64(openCount))
	}

	var total, weighted float64
	for _, rs := range rideStats {
		if !isAttraction(class, rs.RideID) {
			continue
		}
		total += rs.DowntimeHours
		weighted += rs.DowntimeHours * float64(class.WeightFor(rs.RideID))
		if rs.DownSnapshots > 0 {
			stat.RidesDown++
		}
		if rs.OperatingSnapshots > 0 {
			stat.RidesOperating++
		}
	}
	stat.TotalDowntimeHours = shame.Round2(total)
	stat.WeightedDowntimeHours = shame.Round2(weighted)

	return stat
}

// ComputeParkDay aggregates one park's local day from its activity snapshots
// and the per-ride daily rows of the same day. The daily shame score is the
// mean of stamped scores over open snapshots, which matches averaging the
// hourly means when every hour has equal snapshot coverage.
func ComputeParkDay(parkID int, statDate time.Time, parkSnaps []*snapshots.ParkActivitySnapshot, rideStats []*RideDailyStat, class ClassificationLookup, effectiveWeight int, metricsVersion string) *ParkDailyStat {
	stat := &ParkDailyStat{
		ParkID:              parkID,
		StatDate:            statDate,
		EffectiveParkWeight: effectiveWeight,
		RidesTracked:        len(rideStats),
		SnapshotCount:       len(parkSnaps),
		MetricsVersion:      metricsVersion,
	}

	var shameSum float64
	openCount := 0
	var waitSum float64
	waitCount := 0
	for _, snap := range parkSnaps {
		if snap.AppearsOpen() {
			openCount++
			shameSum += snap.ShameScore
			if snap.AvgWaitTime != nil {
				waitSum += *snap.AvgWaitTime
				waitCount++
			}
		}
	}
	if openCount > 0 {
		stat.ParkWasOpen = true
		stat.ShameScore = shame.Round1(shameSum / float64(openCount))
	}
	if waitCount > 0 {
		avg := shame.Round2(waitSum / float64(waitCount))
		stat.AvgWaitTime = &avg
	}

	var totalMinutes, weightedMinutes float64
	for _, rs := range rideStats {
		if !isAttraction(class, rs.RideID) {
			continue
		}
		totalMinutes += float64(rs.DowntimeMinutes)
		weightedMinutes += float64(rs.DowntimeMinutes) * float64(class.WeightFor(rs.RideID))
		stat.StatusChanges += rs.StatusChanges
		if rs.DowntimeMinutes > 0 {
			stat.RidesWithDowntime++
		}
		if rs.LongestDowntimeMinutes > stat.LongestDowntimeMinutes {
			stat.LongestDowntimeMinutes = rs.LongestDowntimeMinutes
		}
	}
	stat.TotalDowntimeHours = shame.Round2(totalMinutes / 60)
	stat.WeightedDowntimeHours = shame.Round2(weightedMinutes / 60)

	return stat
}

// ComputeOperatingSession derives the first-open to last-open interval for
// one park and local day from its activity snapshots.
func ComputeOperatingSession(parkID int, localDate time.Time, parkSnaps []*snapshots.ParkActivitySnapshot) *OperatingSession {
	session := &OperatingSession{ParkID: parkID, LocalDate: localDate}

	for _, snap := range parkSnaps {
		if !snap.AppearsOpen() {
			continue
		}
		at := snap.RecordedAt
		if session.FirstOpenUTC == nil || at.Before(*session.FirstOpenUTC) {
			t := at
			session.FirstOpenUTC = &t
		}
		if session.LastOpenUTC == nil || at.After(*session.LastOpenUTC) {
			t := at
			session.LastOpenUTC = &t
		}
	}

	if session.FirstOpenUTC != nil && session.LastOpenUTC != nil {
		session.OperatingMinutes = int(session.LastOpenUTC.Sub(*session.FirstOpenUTC).Minutes())
	}

	return session
}

// EffectiveParkWeight sums tier weights over rides in the effective set at
// the given instant.
func EffectiveParkWeight(parkType shame.ParkType, rides []*snapshots.Ride, class ClassificationLookup, now time.Time, cfg config.ShameConfig) int {
	total := 0
	for _, ride := range rides {
		if !isAttraction(class, ride.ID) {
			continue
		}
		if shame.InEffectiveSet(parkType, ride.LastOperatedAt, now, cfg) {
			total += class.WeightFor(ride.ID)
		}
	}
	return total
}

func intCopy(v int) *int { return &v }
