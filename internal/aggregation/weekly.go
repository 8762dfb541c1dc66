package aggregation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/queuetimes/parkpulse/internal/parkcal"
	"github.com/queuetimes/parkpulse/internal/shame"
	"github.com/queuetimes/parkpulse/internal/snapshots"
	"github.com/queuetimes/parkpulse/pkg/logger"
)

// RunWeekly rolls the most recently completed ISO week up from daily rows.
func (s *Service) RunWeekly(ctx context.Context) error {
	now := s.clock.Now()
	isoYear, isoWeek := parkcal.PreviousISOWeek(now.ISOWeek())

	jobID, err := s.jobs.Begin(ctx, JobWeekly, now)
	if err != nil {
		return err
	}

	parks, err := s.snaps.ListActiveParks(ctx)
	if err != nil {
		err = fmt.Errorf("failed to list parks: %w", err)
		_ = s.jobs.MarkFailed(ctx, jobID, err)
		return err
	}

	parksDone, ridesDone := 0, 0
	for _, park := range parks {
		n, err := s.rollupParkWeek(ctx, park, isoYear, isoWeek)
		if err != nil {
			wrapped := fmt.Errorf("park %d week %d-W%02d: %w", park.ID, isoYear, isoWeek, err)
			_ = s.jobs.MarkFailed(ctx, jobID, wrapped)
			return wrapped
		}
		parksDone++
		ridesDone += n
	}

	if err := s.jobs.MarkSuccess(ctx, jobID, parksDone, ridesDone); err != nil {
		return err
	}

	logger.Info("weekly rollup complete",
		zap.Int("iso_year", isoYear),
		zap.Int("iso_week", isoWeek),
		zap.Int("parks", parksDone),
	)
	return nil
}

func (s *Service) rollupParkWeek(ctx context.Context, park *snapshots.Park, isoYear, isoWeek int) (int, error) {
	weekStart := parkcal.ISOWeekStart(isoYear, isoWeek)
	weekEnd := weekStart.AddDate(0, 0, 6)

	rideDays, err := s.store.RideDailyRange(ctx, park.ID, weekStart, weekEnd)
	if err != nil {
		return 0, err
	}
	parkDays, err := s.store.ParkDailyRange(ctx, park.ID, weekStart, weekEnd)
	if err != nil {
		return 0, err
	}

	byRide := make(map[int][]*RideDailyStat)
	for _, day := range rideDays {
		byRide[day.RideID] = append(byRide[day.RideID], day)
	}

	prevYear, prevWeek := parkcal.PreviousISOWeek(isoYear, isoWeek)

	for rideID, days := range byRide {
		stat := rollupRideWeek(rideID, park.ID, isoYear, isoWeek, weekStart, days)

		prev, err := s.store.GetRideWeekly(ctx, rideID, prevYear, prevWeek)
		if err != nil {
			return 0, err
		}
		if prev != nil {
			stat.TrendVsPrevious = trendPct(float64(stat.DowntimeMinutes), float64(prev.DowntimeMinutes))
		}

		if err := s.store.UpsertRideWeekly(ctx, stat); err != nil {
			return 0, err
		}
	}

	parkStat := rollupParkWeek(park.ID, isoYear, isoWeek, weekStart, parkDays)
	prevPark, err := s.store.GetParkWeekly(ctx, park.ID, prevYear, prevWeek)
	if err != nil {
		return 0, err
	}
	if prevPark != nil {
		parkStat.TrendVsPrevious = trendPct(parkStat.TotalDowntimeHours, prevPark.TotalDowntimeHours)
	}
	if err := s.store.UpsertParkWeekly(ctx, parkStat); err != nil {
		return 0, err
	}

	return len(byRide), nil
}

func rollupRideWeek(rideID, parkID, isoYear, isoWeek int, weekStart time.Time, days []*RideDailyStat) *RideWeeklyStat {
	stat := &RideWeeklyStat{
		RideID:    rideID,
		ParkID:    parkID,
		ISOYear:   isoYear,
		ISOWeek:   isoWeek,
		WeekStart: weekStart,
	}

	var waitSum float64
	waitCount := 0
	for _, day := range days {
		stat.UptimeMinutes += day.UptimeMinutes
		stat.DowntimeMinutes += day.DowntimeMinutes
		stat.OperatingHoursMinutes += day.OperatingHoursMinutes
		if day.RideOperated {
			stat.DaysOperated++
		}
		if day.AvgWaitTime != nil {
			waitSum += *day.AvgWaitTime
			waitCount++
		}
	}

	if stat.OperatingHoursMinutes > 0 {
		stat.UptimePercentage = shame.Round1(float64(stat.UptimeMinutes) / float64(stat.OperatingHoursMinutes) * 100)
	}
	if waitCount > 0 {
		avg := shame.Round2(waitSum / float64(waitCount))
		stat.AvgWaitTime = &avg
	}

	return stat
}

func rollupParkWeek(parkID, isoYear, isoWeek int, weekStart time.Time, days []*ParkDailyStat) *ParkWeeklyStat {
	stat := &ParkWeeklyStat{
		ParkID:    parkID,
		ISOYear:   isoYear,
		ISOWeek:   isoWeek,
		WeekStart: weekStart,
	}

	var shameSum float64
	openDays := 0
	for _, day := range days {
		stat.TotalDowntimeHours += day.TotalDowntimeHours
		stat.WeightedDowntimeHours += day.WeightedDowntimeHours
		if day.ParkWasOpen {
			openDays++
			shameSum += day.ShameScore
		}
	}
	stat.DaysOpen = openDays
	if openDays > 0 {
		stat.AvgShameScore = shame.Round1(shameSum / float64(openDays))
	}
	stat.TotalDowntimeHours = shame.Round2(stat.TotalDowntimeHours)
	stat.WeightedDowntimeHours = shame.Round2(stat.WeightedDowntimeHours)

	return stat
}

// RunMonthly rolls the most recently completed calendar month up from daily
// rows.
func (s *Service) RunMonthly(ctx context.Context) error {
	now := s.clock.Now()
	monthStart := parkcal.PreviousMonthStart(now)
	monthEnd := parkcal.MonthStart(now).AddDate(0, 0, -1)

	jobID, err := s.jobs.Begin(ctx, JobMonthly, now)
	if err != nil {
		return err
	}

	parks, err := s.snaps.ListActiveParks(ctx)
	if err != nil {
		err = fmt.Errorf("failed to list parks: %w", err)
		_ = s.jobs.MarkFailed(ctx, jobID, err)
		return err
	}

	parksDone := 0
	for _, park := range parks {
		days, err := s.store.ParkDailyRange(ctx, park.ID, monthStart, monthEnd)
		if err != nil {
			_ = s.jobs.MarkFailed(ctx, jobID, err)
			return err
		}

		stat := rollupParkMonth(park.ID, monthStart, days)

		prev, err := s.store.GetParkMonthly(ctx, park.ID, parkcal.PreviousMonthStart(monthStart))
		if err != nil {
			_ = s.jobs.MarkFailed(ctx, jobID, err)
			return err
		}
		if prev != nil {
			stat.TrendVsPrevious = trendPct(stat.TotalDowntimeHours, prev.TotalDowntimeHours)
		}

		if err := s.store.UpsertParkMonthly(ctx, stat); err != nil {
			_ = s.jobs.MarkFailed(ctx, jobID, err)
			return err
		}
		parksDone++
	}

	if err := s.jobs.MarkSuccess(ctx, jobID, parksDone, 0); err != nil {
		return err
	}

	logger.Info("monthly rollup complete",
		zap.String("month", monthStart.Format("2006-01")),
		zap.Int("parks", parksDone),
	)
	return nil
}

func rollupParkMonth(parkID int, monthStart time.Time, days []*ParkDailyStat) *ParkMonthlyStat {
	stat := &ParkMonthlyStat{ParkID: parkID, MonthStart: monthStart}

	var shameSum float64
	openDays := 0
	for _, day := range days {
		stat.TotalDowntimeHours += day.TotalDowntimeHours
		stat.WeightedDowntimeHours += day.WeightedDowntimeHours
		if day.ParkWasOpen {
			openDays++
			shameSum += day.ShameScore
		}
	}
	stat.DaysOpen = openDays
	if openDays > 0 {
		stat.AvgShameScore = shame.Round1(shameSum / float64(openDays))
	}
	stat.TotalDowntimeHours = shame.Round2(stat.TotalDowntimeHours)
	stat.WeightedDowntimeHours = shame.Round2(stat.WeightedDowntimeHours)

	return stat
}

// trendPct is the percent change against the previous window. Nil when the
// previous window has no signal to compare against.
func trendPct(current, previous float64) *float64 {
	if previous == 0 {
		return nil
	}
	v := shame.Round2((current - previous) / previous * 100)
	return &v
}
