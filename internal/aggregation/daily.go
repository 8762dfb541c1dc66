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

// RunDaily aggregates the most recently completed local day for every active
// park. Parks in different timezones complete their days at different UTC
// instants; each park gets its own "yesterday".
func (s *Service) RunDaily(ctx context.Context) error {
	now := s.clock.Now()

	jobID, err := s.jobs.Begin(ctx, JobDaily, now)
	if err != nil {
		return err
	}

	parks, err := s.snaps.ListActiveParks(ctx)
	if err != nil {
		err = fmt.Errorf("failed to list parks: %w", err)
		if markErr := s.jobs.MarkFailed(ctx, jobID, err); markErr != nil {
			logger.Error("failed to mark daily job failed", zap.Error(markErr))
		}
		return err
	}

	parksDone, ridesDone := 0, 0
	for _, park := range parks {
		loc, err := parkcal.LocationFor(park.Timezone)
		if err != nil {
			logger.Warn("skipping park with bad timezone",
				zap.Int("park_id", park.ID),
				zap.String("timezone", park.Timezone),
			)
			continue
		}
		yesterday := parkcal.DaysAgo(parkcal.LocalDate(now, loc), 1)

		n, err := s.AggregateParkDay(ctx, park, yesterday)
		if err != nil {
			wrapped := fmt.Errorf("park %d day %s: %w", park.ID, yesterday.Format("2006-01-02"), err)
			if markErr := s.jobs.MarkFailed(ctx, jobID, wrapped); markErr != nil {
				logger.Error("failed to mark daily job failed", zap.Error(markErr))
			}
			return wrapped
		}
		parksDone++
		ridesDone += n
	}

	if err := s.jobs.MarkSuccess(ctx, jobID, parksDone, ridesDone); err != nil {
		return err
	}

	logger.Info("daily aggregation complete",
		zap.Int("parks", parksDone),
		zap.Int("rides", ridesDone),
	)
	return nil
}

// AggregateParkDay computes and persists one park's aggregates for one local
// calendar date. Every active ride gets a daily row, observed or not, so the
// query surface never has to distinguish "no row" from "no downtime".
func (s *Service) AggregateParkDay(ctx context.Context, park *snapshots.Park, localDate time.Time) (int, error) {
	return s.aggregateParkDayVersion(ctx, park, localDate, s.aggCfg.MetricsVersion, false)
}

func (s *Service) aggregateParkDayVersion(ctx context.Context, park *snapshots.Park, localDate time.Time, metricsVersion string, dryRun bool) (int, error) {
	loc, err := parkcal.LocationFor(park.Timezone)
	if err != nil {
		return 0, err
	}
	parkType := shame.TypeFromConfig(park, s.shameCfg)
	dayStart, dayEnd := parkcal.DayBoundsUTC(localDate, loc)

	rideSnaps, err := s.snaps.RideSnapshotsInRange(ctx, park.ID, dayStart, dayEnd)
	if err != nil {
		return 0, err
	}
	parkSnaps, err := s.snaps.ParkSnapshotsInRange(ctx, park.ID, dayStart, dayEnd)
	if err != nil {
		return 0, err
	}
	rides, err := s.snaps.ListActiveRides(ctx, park.ID)
	if err != nil {
		return 0, err
	}

	parkOpen := NewParkOpenIndex(parkSnaps)
	byRide := groupByRide(rideSnaps)

	var rideStats []*RideDailyStat
	for _, ride := range rides {
		stat := ComputeRideDay(parkType, ride.ID, park.ID, localDate, byRide[ride.ID], parkOpen, s.interval, metricsVersion)
		rideStats = append(rideStats, stat)
		if dryRun {
			continue
		}
		if err := s.store.UpsertRideDaily(ctx, stat); err != nil {
			return 0, err
		}
	}

	effWeight := EffectiveParkWeight(parkType, rides, s.class, dayEnd, s.shameCfg)
	parkStat := ComputeParkDay(park.ID, localDate, parkSnaps, rideStats, s.class, effWeight, metricsVersion)
	session := ComputeOperatingSession(park.ID, localDate, parkSnaps)

	if dryRun {
		logger.Info("dry run: computed park day",
			zap.Int("park_id", park.ID),
			zap.String("date", localDate.Format("2006-01-02")),
			zap.Float64("shame_score", parkStat.ShameScore),
			zap.Float64("total_downtime_hours", parkStat.TotalDowntimeHours),
			zap.Int("rides", len(rideStats)),
		)
		return len(rideStats), nil
	}

	if err := s.store.UpsertParkDaily(ctx, parkStat); err != nil {
		return 0, err
	}
	if err := s.store.UpsertOperatingSession(ctx, session); err != nil {
		return 0, err
	}

	return len(rideStats), nil
}
