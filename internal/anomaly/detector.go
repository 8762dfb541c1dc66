package anomaly

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/queuetimes/parkpulse/internal/aggregation"
	"github.com/queuetimes/parkpulse/internal/parkcal"
	"github.com/queuetimes/parkpulse/internal/snapshots"
	"github.com/queuetimes/parkpulse/pkg/logger"
)

// SnapshotSource defines the catalog reads the detector needs.
type SnapshotSource interface {
	ListActiveParks(ctx context.Context) ([]*snapshots.Park, error)
}

// StatsStore defines the aggregate reads the detector needs.
type StatsStore interface {
	ParkDailyRange(ctx context.Context, parkID int, start, end time.Time) ([]*aggregation.ParkDailyStat, error)
	RideDailyRange(ctx context.Context, parkID int, start, end time.Time) ([]*aggregation.RideDailyStat, error)
}

// FindingSink persists findings.
type FindingSink interface {
	Insert(ctx context.Context, f *Finding) error
}

// Detector scans completed daily aggregates for statistical outliers and
// data-quality gaps. Findings are advisory; nothing downstream acts on them
// automatically.
type Detector struct {
	snaps SnapshotSource
	store StatsStore
	sink  FindingSink
}

// NewDetector creates an anomaly detector.
func NewDetector(snaps SnapshotSource, store StatsStore, sink FindingSink) *Detector {
	return &Detector{snaps: snaps, store: store, sink: sink}
}

// Run scans one local calendar date across all active parks and persists
// whatever it finds.
func (d *Detector) Run(ctx context.Context, date time.Time) ([]*Finding, error) {
	parks, err := d.snaps.ListActiveParks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list parks: %w", err)
	}

	var findings []*Finding
	for _, park := range parks {
		parkFindings, err := d.scanPark(ctx, park, date)
		if err != nil {
			return nil, fmt.Errorf("park %d: %w", park.ID, err)
		}
		findings = append(findings, parkFindings...)
	}

	for _, f := range findings {
		if err := d.sink.Insert(ctx, f); err != nil {
			return nil, fmt.Errorf("failed to persist finding: %w", err)
		}
	}

	logger.Info("anomaly scan complete",
		zap.String("date", date.Format("2006-01-02")),
		zap.Int("parks", len(parks)),
		zap.Int("findings", len(findings)),
	)
	return findings, nil
}

func (d *Detector) scanPark(ctx context.Context, park *snapshots.Park, date time.Time) ([]*Finding, error) {
	start := parkcal.DaysAgo(date, baselineDays)
	rows, err := d.store.ParkDailyRange(ctx, park.ID, start, date)
	if err != nil {
		return nil, err
	}

	var today, prev *aggregation.ParkDailyStat
	var baseline []float64
	var recentRideCounts []float64
	yesterday := parkcal.DaysAgo(date, 1)
	rideCountStart := parkcal.DaysAgo(date, rideCountDays)
	for _, row := range rows {
		switch {
		case sameDate(row.StatDate, date):
			today = row
			continue
		case sameDate(row.StatDate, yesterday):
			prev = row
		}
		if row.ParkWasOpen {
			baseline = append(baseline, row.ShameScore)
			if !row.StatDate.Before(rideCountStart) {
				recentRideCounts = append(recentRideCounts, float64(row.RidesTracked))
			}
		}
	}

	var findings []*Finding
	if today == nil {
		findings = append(findings, &Finding{
			StatDate:   date,
			EntityType: EntityPark,
			EntityID:   park.ID,
			Detector:   DetectorMissingDaily,
			Severity:   SeverityWarning,
			Detail:     "no daily aggregate row for this date",
		})
		return findings, nil
	}

	if today.ParkWasOpen {
		findings = append(findings, d.checkShameSpike(park.ID, date, today, baseline)...)
		findings = append(findings, d.checkSuddenChange(park.ID, date, today, prev)...)
		findings = append(findings, d.checkRideCount(park.ID, date, today, recentRideCounts)...)

		rideFindings, err := d.scanRides(ctx, park.ID, date, start)
		if err != nil {
			return nil, err
		}
		findings = append(findings, rideFindings...)
	}
	return findings, nil
}

func (d *Detector) checkShameSpike(parkID int, date time.Time, today *aggregation.ParkDailyStat, baseline []float64) []*Finding {
	if len(baseline) < minBaselineObs {
		return nil
	}
	z := zScore(today.ShameScore, baseline)
	if math.Abs(z) <= warnZScore {
		return nil
	}
	severity := SeverityWarning
	if math.Abs(z) > critZScore {
		severity = SeverityCritical
	}
	expected := mean(baseline)
	return []*Finding{{
		StatDate:   date,
		EntityType: EntityPark,
		EntityID:   parkID,
		Detector:   DetectorShameSpike,
		Severity:   severity,
		Observed:   &today.ShameScore,
		Expected:   &expected,
		ZScore:     &z,
		Detail:     fmt.Sprintf("shame score %.1f vs %d-day mean %.1f", today.ShameScore, baselineDays, expected),
	}}
}

func (d *Detector) checkSuddenChange(parkID int, date time.Time, today, prev *aggregation.ParkDailyStat) []*Finding {
	if prev == nil || !prev.ParkWasOpen || prev.ShameScore <= suddenChangeMin {
		return nil
	}
	pct := pctChange(today.ShameScore, prev.ShameScore)
	if math.Abs(pct) <= suddenChangePct {
		return nil
	}
	return []*Finding{{
		StatDate:   date,
		EntityType: EntityPark,
		EntityID:   parkID,
		Detector:   DetectorSuddenChange,
		Severity:   SeverityWarning,
		Observed:   &today.ShameScore,
		Expected:   &prev.ShameScore,
		Detail:     fmt.Sprintf("shame score moved %.0f%% day over day", pct),
	}}
}

func (d *Detector) checkRideCount(parkID int, date time.Time, today *aggregation.ParkDailyStat, recent []float64) []*Finding {
	if len(recent) == 0 {
		return nil
	}
	avg := mean(recent)
	if avg == 0 {
		return nil
	}
	ratio := float64(today.RidesTracked) / avg
	if ratio >= rideCountWarn {
		return nil
	}
	severity := SeverityWarning
	if ratio < rideCountCrit {
		severity = SeverityCritical
	}
	observed := float64(today.RidesTracked)
	return []*Finding{{
		StatDate:   date,
		EntityType: EntityPark,
		EntityID:   parkID,
		Detector:   DetectorRideCountDrop,
		Severity:   severity,
		Observed:   &observed,
		Expected:   &avg,
		Detail:     fmt.Sprintf("%d rides tracked vs %.0f average over %d days", today.RidesTracked, avg, rideCountDays),
	}}
}

// scanRides flags rides whose downtime is both a strong outlier and large in
// absolute terms. The two-hour floor keeps short-cycle rides with tiny
// variance from alerting on a single bad hour.
func (d *Detector) scanRides(ctx context.Context, parkID int, date, start time.Time) ([]*Finding, error) {
	rows, err := d.store.RideDailyRange(ctx, parkID, start, date)
	if err != nil {
		return nil, err
	}

	todayByRide := make(map[int]*aggregation.RideDailyStat)
	baselineByRide := make(map[int][]float64)
	for _, row := range rows {
		if sameDate(row.StatDate, date) {
			todayByRide[row.RideID] = row
			continue
		}
		if row.RideOperated {
			baselineByRide[row.RideID] = append(baselineByRide[row.RideID], float64(row.DowntimeMinutes)/60)
		}
	}

	var findings []*Finding
	for rideID, today := range todayByRide {
		if !today.RideOperated {
			continue
		}
		baseline := baselineByRide[rideID]
		if len(baseline) < minBaselineObs {
			continue
		}
		hours := float64(today.DowntimeMinutes) / 60
		z := zScore(hours, baseline)
		if math.Abs(z) <= critZScore || hours <= critRideHours {
			continue
		}
		expected := mean(baseline)
		findings = append(findings, &Finding{
			StatDate:   date,
			EntityType: EntityRide,
			EntityID:   rideID,
			Detector:   DetectorRideDowntime,
			Severity:   SeverityCritical,
			Observed:   &hours,
			Expected:   &expected,
			ZScore:     &z,
			Detail:     fmt.Sprintf("%.1f downtime hours vs %.1f baseline mean", hours, expected),
		})
	}
	return findings, nil
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
