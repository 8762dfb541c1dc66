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
	"github.com/queuetimes/parkpulse/pkg/config"
	"github.com/queuetimes/parkpulse/pkg/logger"
)

// SnapshotSource defines the raw-data reads the verifier needs.
type SnapshotSource interface {
	ListActiveParks(ctx context.Context) ([]*snapshots.Park, error)
	ListActiveRides(ctx context.Context, parkID int) ([]*snapshots.Ride, error)
	RideSnapshotsInRange(ctx context.Context, parkID int, start, end time.Time) ([]*snapshots.RideStatusSnapshot, error)
	ParkSnapshotsInRange(ctx context.Context, parkID int, start, end time.Time) ([]*snapshots.ParkActivitySnapshot, error)
}

// StatsStore defines the stored-aggregate reads the verifier needs.
type StatsStore interface {
	RideDailyRange(ctx context.Context, parkID int, start, end time.Time) ([]*aggregation.RideDailyStat, error)
	ParkDailyRange(ctx context.Context, parkID int, start, end time.Time) ([]*aggregation.ParkDailyStat, error)
	RideHourlyRange(ctx context.Context, parkID int, start, end time.Time) ([]*aggregation.RideHourlyStat, error)
	ParkHourlyRange(ctx context.Context, parkID int, start, end time.Time) ([]*aggregation.ParkHourlyStat, error)
}

// Verifier recomputes one day's aggregates from raw snapshots and compares
// the results against the stored rows. It only reports; repairs go through
// the recompute job.
type Verifier struct {
	snaps    SnapshotSource
	store    StatsStore
	class    aggregation.ClassificationLookup
	shameCfg config.ShameConfig
	clock    parkcal.Clock

	interval int // snapshot cadence, minutes
}

// NewVerifier creates a verifier.
func NewVerifier(snaps SnapshotSource, store StatsStore, class aggregation.ClassificationLookup, cfg *config.Config, clock parkcal.Clock) *Verifier {
	return &Verifier{
		snaps:    snaps,
		store:    store,
		class:    class,
		shameCfg: cfg.Shame,
		clock:    clock,
		interval: cfg.Collector.SnapshotIntervalMinutes,
	}
}

// VerifyDay audits one local calendar date across all active parks.
func (v *Verifier) VerifyDay(ctx context.Context, date time.Time) (*Report, error) {
	parks, err := v.snaps.ListActiveParks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list parks: %w", err)
	}

	report := newReport(date, v.clock.Now())
	for _, park := range parks {
		if err := v.verifyPark(ctx, report, park, date); err != nil {
			return nil, fmt.Errorf("park %d: %w", park.ID, err)
		}
		report.Parks++
	}

	report.finalize()
	logger.Info("verification complete",
		zap.String("date", date.Format("2006-01-02")),
		zap.Int("parks", report.Parks),
		zap.String("severity", string(report.Severity)),
		zap.Int("findings", len(report.Findings)),
	)
	return report, nil
}

func (v *Verifier) verifyPark(ctx context.Context, report *Report, park *snapshots.Park, date time.Time) error {
	loc, err := parkcal.LocationFor(park.Timezone)
	if err != nil {
		logger.Warn("skipping park with bad timezone",
			zap.Int("park_id", park.ID),
			zap.String("timezone", park.Timezone),
		)
		return nil
	}
	parkType := shame.TypeFromConfig(park, v.shameCfg)
	dayStart, dayEnd := parkcal.DayBoundsUTC(date, loc)

	rideSnaps, err := v.snaps.RideSnapshotsInRange(ctx, park.ID, dayStart, dayEnd)
	if err != nil {
		return err
	}
	parkSnaps, err := v.snaps.ParkSnapshotsInRange(ctx, park.ID, dayStart, dayEnd)
	if err != nil {
		return err
	}
	rides, err := v.snaps.ListActiveRides(ctx, park.ID)
	if err != nil {
		return err
	}
	if len(parkSnaps) == 0 && len(rideSnaps) == 0 {
		return nil
	}

	parkOpen := aggregation.NewParkOpenIndex(parkSnaps)
	byRide := groupByRide(rideSnaps)

	if err := v.verifyDaily(ctx, report, park, parkType, date, dayEnd, rides, byRide, parkSnaps, parkOpen); err != nil {
		return err
	}
	if err := v.verifyHourly(ctx, report, park, parkType, dayStart, dayEnd, rides, byRide, parkSnaps, parkOpen); err != nil {
		return err
	}

	v.checkDownCoverage(ctx, report, park, parkType, dayStart, dayEnd, rideSnaps, parkOpen)
	v.checkInterval(report, park, parkSnaps)
	return nil
}

func (v *Verifier) verifyDaily(
	ctx context.Context,
	report *Report,
	park *snapshots.Park,
	parkType shame.ParkType,
	date, dayEnd time.Time,
	rides []*snapshots.Ride,
	byRide map[int][]*snapshots.RideStatusSnapshot,
	parkSnaps []*snapshots.ParkActivitySnapshot,
	parkOpen *aggregation.ParkOpenIndex,
) error {
	storedRides, err := v.store.RideDailyRange(ctx, park.ID, date, date)
	if err != nil {
		return err
	}
	storedByRide := make(map[int]*aggregation.RideDailyStat, len(storedRides))
	for _, s := range storedRides {
		storedByRide[s.RideID] = s
	}

	var expectedStats []*aggregation.RideDailyStat
	for _, ride := range rides {
		expected := aggregation.ComputeRideDay(parkType, ride.ID, park.ID, date, byRide[ride.ID], parkOpen, v.interval, "")
		expectedStats = append(expectedStats, expected)

		stats := report.Stats[CheckRideDaily]
		stats.Checked++
		stored, ok := storedByRide[ride.ID]
		if !ok {
			stats.Missing++
			report.add(Finding{
				Check:    CheckRideDaily,
				Severity: SeverityWarning,
				ParkID:   park.ID,
				RideID:   ride.ID,
				Window:   &date,
				Message:  "daily row missing",
			})
			continue
		}
		fields := []struct {
			name             string
			expected, stored int
		}{
			{"uptime_minutes", expected.UptimeMinutes, stored.UptimeMinutes},
			{"downtime_minutes", expected.DowntimeMinutes, stored.DowntimeMinutes},
			{"operating_hours_minutes", expected.OperatingHoursMinutes, stored.OperatingHoursMinutes},
		}
		mismatched := false
		for _, f := range fields {
			diff := math.Abs(float64(f.expected - f.stored))
			if diff <= TolRideDailyMinutes {
				continue
			}
			mismatched = true
			report.add(Finding{
				Check:    CheckRideDaily,
				Severity: SeverityWarning,
				ParkID:   park.ID,
				RideID:   ride.ID,
				Window:   &date,
				Field:    f.name,
				Expected: float64(f.expected),
				Stored:   float64(f.stored),
				Message:  fmt.Sprintf("%s differs by %.0f minutes", f.name, diff),
			})
		}
		if mismatched {
			stats.Mismatched++
		}
	}

	storedParks, err := v.store.ParkDailyRange(ctx, park.ID, date, date)
	if err != nil {
		return err
	}
	stats := report.Stats[CheckParkDaily]
	stats.Checked++
	if len(storedParks) == 0 {
		stats.Missing++
		report.add(Finding{
			Check:    CheckParkDaily,
			Severity: SeverityWarning,
			ParkID:   park.ID,
			Window:   &date,
			Message:  "park daily row missing",
		})
		return nil
	}
	stored := storedParks[0]

	effWeight := aggregation.EffectiveParkWeight(parkType, rides, v.class, dayEnd, v.shameCfg)
	expected := aggregation.ComputeParkDay(park.ID, date, parkSnaps, expectedStats, v.class, effWeight, "")

	mismatched := false
	if d := math.Abs(expected.TotalDowntimeHours - stored.TotalDowntimeHours); d > TolParkDailyHours {
		mismatched = true
		report.add(Finding{
			Check:    CheckParkDaily,
			Severity: SeverityWarning,
			ParkID:   park.ID,
			Window:   &date,
			Field:    "total_downtime_hours",
			Expected: expected.TotalDowntimeHours,
			Stored:   stored.TotalDowntimeHours,
			Message:  fmt.Sprintf("total downtime differs by %.2f hours", d),
		})
	}
	if d := math.Abs(float64(expected.RidesWithDowntime - stored.RidesWithDowntime)); d > TolParkDailyRides {
		mismatched = true
		report.add(Finding{
			Check:    CheckParkDaily,
			Severity: SeverityWarning,
			ParkID:   park.ID,
			Window:   &date,
			Field:    "rides_with_downtime",
			Expected: float64(expected.RidesWithDowntime),
			Stored:   float64(stored.RidesWithDowntime),
			Message:  fmt.Sprintf("rides with downtime differs by %.0f", d),
		})
	}
	if mismatched {
		stats.Mismatched++
	}
	return nil
}

func (v *Verifier) verifyHourly(
	ctx context.Context,
	report *Report,
	park *snapshots.Park,
	parkType shame.ParkType,
	dayStart, dayEnd time.Time,
	rides []*snapshots.Ride,
	byRide map[int][]*snapshots.RideStatusSnapshot,
	parkSnaps []*snapshots.ParkActivitySnapshot,
	parkOpen *aggregation.ParkOpenIndex,
) error {
	storedRides, err := v.store.RideHourlyRange(ctx, park.ID, dayStart, dayEnd)
	if err != nil {
		return err
	}
	storedRideHours := make(map[int]map[time.Time]*aggregation.RideHourlyStat)
	for _, s := range storedRides {
		if storedRideHours[s.RideID] == nil {
			storedRideHours[s.RideID] = make(map[time.Time]*aggregation.RideHourlyStat)
		}
		storedRideHours[s.RideID][s.HourStartUTC.UTC()] = s
	}

	storedParks, err := v.store.ParkHourlyRange(ctx, park.ID, dayStart, dayEnd)
	if err != nil {
		return err
	}
	storedParkHours := make(map[time.Time]*aggregation.ParkHourlyStat, len(storedParks))
	for _, s := range storedParks {
		storedParkHours[s.HourStartUTC.UTC()] = s
	}

	operated := make(map[int]bool, len(rides))
	for _, ride := range rides {
		operated[ride.ID] = aggregation.RideOperated(parkType, byRide[ride.ID], parkOpen)
	}

	for hour := parkcal.HourStart(dayStart); hour.Before(dayEnd); hour = hour.Add(time.Hour) {
		hourEnd := hour.Add(time.Hour)

		var expectedRideStats []*aggregation.RideHourlyStat
		for _, ride := range rides {
			hourSnaps := snapsInWindow(byRide[ride.ID], hour, hourEnd)
			if len(hourSnaps) == 0 {
				continue
			}
			expected := aggregation.ComputeRideHour(parkType, ride.ID, park.ID, hour, hourSnaps, parkOpen, operated[ride.ID], v.interval, "")
			expectedRideStats = append(expectedRideStats, expected)
			v.compareRideHour(report, park.ID, expected, storedRideHours[ride.ID][hour])
		}

		hourParkSnaps := parkSnapsInWindow(parkSnaps, hour, hourEnd)
		if len(hourParkSnaps) == 0 {
			continue
		}
		effWeight := aggregation.EffectiveParkWeight(parkType, rides, v.class, hourEnd, v.shameCfg)
		expected := aggregation.ComputeParkHour(park.ID, hour, hourParkSnaps, expectedRideStats, v.class, effWeight, "")
		v.compareParkHour(report, park.ID, expected, storedParkHours[hour])
	}
	return nil
}

func (v *Verifier) compareRideHour(report *Report, parkID int, expected, stored *aggregation.RideHourlyStat) {
	stats := report.Stats[CheckRideHourly]
	stats.Checked++
	hour := expected.HourStartUTC
	if stored == nil {
		stats.Missing++
		report.add(Finding{
			Check:    CheckRideHourly,
			Severity: SeverityWarning,
			ParkID:   parkID,
			RideID:   expected.RideID,
			Window:   &hour,
			Message:  "hourly row missing",
		})
		return
	}

	mismatched := false
	if d := math.Abs(expected.DowntimeHours - stored.DowntimeHours); d > TolRideHourlyHours {
		mismatched = true
		report.add(Finding{
			Check:    CheckRideHourly,
			Severity: SeverityWarning,
			ParkID:   parkID,
			RideID:   expected.RideID,
			Window:   &hour,
			Field:    "downtime_hours",
			Expected: expected.DowntimeHours,
			Stored:   stored.DowntimeHours,
			Message:  fmt.Sprintf("downtime differs by %.2f hours", d),
		})
	}
	if d := math.Abs(expected.UptimePercentage - stored.UptimePercentage); d > TolRideHourlyPct {
		mismatched = true
		report.add(Finding{
			Check:    CheckRideHourly,
			Severity: SeverityWarning,
			ParkID:   parkID,
			RideID:   expected.RideID,
			Window:   &hour,
			Field:    "uptime_percentage",
			Expected: expected.UptimePercentage,
			Stored:   stored.UptimePercentage,
			Message:  fmt.Sprintf("uptime differs by %.1f points", d),
		})
	}
	if mismatched {
		stats.Mismatched++
	}
}

func (v *Verifier) compareParkHour(report *Report, parkID int, expected, stored *aggregation.ParkHourlyStat) {
	stats := report.Stats[CheckParkHourly]
	stats.Checked++
	hour := expected.HourStartUTC
	if stored == nil {
		stats.Missing++
		report.add(Finding{
			Check:    CheckParkHourly,
			Severity: SeverityWarning,
			ParkID:   parkID,
			Window:   &hour,
			Message:  "park hourly row missing",
		})
		return
	}

	mismatched := false
	if d := math.Abs(expected.ShameScore - stored.ShameScore); d > TolParkHourlyShame {
		mismatched = true
		report.add(Finding{
			Check:    CheckParkHourly,
			Severity: SeverityWarning,
			ParkID:   parkID,
			Window:   &hour,
			Field:    "shame_score",
			Expected: expected.ShameScore,
			Stored:   stored.ShameScore,
			Message:  fmt.Sprintf("shame score differs by %.2f", d),
		})
	}
	if d := math.Abs(expected.TotalDowntimeHours - stored.TotalDowntimeHours); d > TolParkHourlyHours {
		mismatched = true
		report.add(Finding{
			Check:    CheckParkHourly,
			Severity: SeverityWarning,
			ParkID:   parkID,
			Window:   &hour,
			Field:    "total_downtime_hours",
			Expected: expected.TotalDowntimeHours,
			Stored:   stored.TotalDowntimeHours,
			Message:  fmt.Sprintf("total downtime differs by %.2f hours", d),
		})
	}
	if mismatched {
		stats.Mismatched++
	}
}

func groupByRide(snaps []*snapshots.RideStatusSnapshot) map[int][]*snapshots.RideStatusSnapshot {
	byRide := make(map[int][]*snapshots.RideStatusSnapshot)
	for _, snap := range snaps {
		byRide[snap.RideID] = append(byRide[snap.RideID], snap)
	}
	for _, group := range byRide {
		sort.Slice(group, func(i, j int) bool {
			return group[i].RecordedAt.Before(group[j].RecordedAt)
		})
	}
	return byRide
}

func snapsInWindow(snaps []*snapshots.RideStatusSnapshot, start, end time.Time) []*snapshots.RideStatusSnapshot {
	var out []*snapshots.RideStatusSnapshot
	for _, snap := range snaps {
		if !snap.RecordedAt.Before(start) && snap.RecordedAt.Before(end) {
			out = append(out, snap)
		}
	}
	return out
}

func parkSnapsInWindow(snaps []*snapshots.ParkActivitySnapshot, start, end time.Time) []*snapshots.ParkActivitySnapshot {
	var out []*snapshots.ParkActivitySnapshot
	for _, snap := range snaps {
		if !snap.RecordedAt.Before(start) && snap.RecordedAt.Before(end) {
			out = append(out, snap)
		}
	}
	return out
}
