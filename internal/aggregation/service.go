package aggregation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/queuetimes/parkpulse/internal/parkcal"
	"github.com/queuetimes/parkpulse/internal/shame"
	"github.com/queuetimes/parkpulse/internal/snapshots"
	"github.com/queuetimes/parkpulse/pkg/config"
	"github.com/queuetimes/parkpulse/pkg/logger"
)

// SnapshotSource defines the raw-data operations the aggregator needs.
type SnapshotSource interface {
	ListActiveParks(ctx context.Context) ([]*snapshots.Park, error)
	ListActiveRides(ctx context.Context, parkID int) ([]*snapshots.Ride, error)
	RideSnapshotsInRange(ctx context.Context, parkID int, start, end time.Time) ([]*snapshots.RideStatusSnapshot, error)
	ParkSnapshotsInRange(ctx context.Context, parkID int, start, end time.Time) ([]*snapshots.ParkActivitySnapshot, error)
	DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// StatsStore defines the aggregate persistence operations the aggregator needs.
type StatsStore interface {
	UpsertRideHourly(ctx context.Context, s *RideHourlyStat) error
	UpsertParkHourly(ctx context.Context, s *ParkHourlyStat) error
	UpsertRideDaily(ctx context.Context, s *RideDailyStat) error
	UpsertParkDaily(ctx context.Context, s *ParkDailyStat) error
	UpsertOperatingSession(ctx context.Context, s *OperatingSession) error
	UpsertRideWeekly(ctx context.Context, s *RideWeeklyStat) error
	UpsertParkWeekly(ctx context.Context, s *ParkWeeklyStat) error
	UpsertParkMonthly(ctx context.Context, s *ParkMonthlyStat) error
	RideDailyRange(ctx context.Context, parkID int, start, end time.Time) ([]*RideDailyStat, error)
	ParkDailyRange(ctx context.Context, parkID int, start, end time.Time) ([]*ParkDailyStat, error)
	GetRideWeekly(ctx context.Context, rideID, isoYear, isoWeek int) (*RideWeeklyStat, error)
	GetParkWeekly(ctx context.Context, parkID, isoYear, isoWeek int) (*ParkWeeklyStat, error)
	GetParkMonthly(ctx context.Context, parkID int, monthStart time.Time) (*ParkMonthlyStat, error)
}

// JobLog defines the aggregation_log operations the aggregator needs.
type JobLog interface {
	Begin(ctx context.Context, jobType string, windowEnd time.Time) (uuid.UUID, error)
	MarkSuccess(ctx context.Context, id uuid.UUID, parksProcessed, ridesProcessed int) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
	LatestSuccess(ctx context.Context, jobType string) (*LogEntry, error)
	SuccessCovers(ctx context.Context, jobType string, until time.Time) (bool, error)
}

// Service runs the aggregation pipeline: raw snapshots to hourly rows,
// hourly to daily, daily to weekly and monthly, plus recompute and raw
// snapshot retention. Every write is an idempotent upsert keyed by the
// window's natural key, so re-running any job for the same window is safe.
type Service struct {
	snaps    SnapshotSource
	store    StatsStore
	jobs     JobLog
	class    ClassificationLookup
	shameCfg config.ShameConfig
	aggCfg   config.AggregationConfig
	clock    parkcal.Clock

	interval int // snapshot cadence, minutes
}

// NewService creates an aggregation service.
func NewService(snaps SnapshotSource, store StatsStore, jobs JobLog, class ClassificationLookup, cfg *config.Config, clock parkcal.Clock) *Service {
	return &Service{
		snaps:    snaps,
		store:    store,
		jobs:     jobs,
		class:    class,
		shameCfg: cfg.Shame,
		aggCfg:   cfg.Aggregation,
		clock:    clock,
		interval: cfg.Collector.SnapshotIntervalMinutes,
	}
}

// RunHourly aggregates one completed UTC hour for every active park. The
// running marker in aggregation_log prevents concurrent runners; a second
// instance gets ErrJobAlreadyRunning and backs off.
func (s *Service) RunHourly(ctx context.Context, hourStart time.Time) error {
	hourStart = parkcal.HourStart(hourStart)
	hourEnd := hourStart.Add(time.Hour)

	jobID, err := s.jobs.Begin(ctx, JobHourly, hourEnd)
	if err != nil {
		return err
	}

	parksDone, ridesDone, err := s.runHourlyWindow(ctx, hourStart, hourEnd)
	if err != nil {
		if markErr := s.jobs.MarkFailed(ctx, jobID, err); markErr != nil {
			logger.Error("failed to mark hourly job failed", zap.Error(markErr))
		}
		return err
	}

	if err := s.jobs.MarkSuccess(ctx, jobID, parksDone, ridesDone); err != nil {
		return err
	}

	logger.Info("hourly aggregation complete",
		zap.Time("hour", hourStart),
		zap.Int("parks", parksDone),
		zap.Int("rides", ridesDone),
	)
	return nil
}

func (s *Service) runHourlyWindow(ctx context.Context, hourStart, hourEnd time.Time) (int, int, error) {
	parks, err := s.snaps.ListActiveParks(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list parks: %w", err)
	}

	parksDone, ridesDone := 0, 0
	for _, park := range parks {
		n, err := s.aggregateParkHour(ctx, park, hourStart, hourEnd, s.aggCfg.MetricsVersion)
		if err != nil {
			return parksDone, ridesDone, fmt.Errorf("park %d hour %s: %w", park.ID, hourStart.Format(time.RFC3339), err)
		}
		parksDone++
		ridesDone += n
	}
	return parksDone, ridesDone, nil
}

func (s *Service) aggregateParkHour(ctx context.Context, park *snapshots.Park, hourStart, hourEnd time.Time, metricsVersion string) (int, error) {
	loc, err := parkcal.LocationFor(park.Timezone)
	if err != nil {
		return 0, err
	}
	parkType := shame.TypeFromConfig(park, s.shameCfg)

	// The ride-operated gate spans the whole local day containing the hour,
	// so load the day up to the hour's end.
	localDate := parkcal.LocalDate(hourStart, loc)
	dayStart, _ := parkcal.DayBoundsUTC(localDate, loc)

	dayRideSnaps, err := s.snaps.RideSnapshotsInRange(ctx, park.ID, dayStart, hourEnd)
	if err != nil {
		return 0, err
	}
	dayParkSnaps, err := s.snaps.ParkSnapshotsInRange(ctx, park.ID, dayStart, hourEnd)
	if err != nil {
		return 0, err
	}

	parkOpen := NewParkOpenIndex(dayParkSnaps)

	byRideDay := groupByRide(dayRideSnaps)
	byRideHour := make(map[int][]*snapshots.RideStatusSnapshot)
	for rideID, snaps := range byRideDay {
		for _, snap := range snaps {
			if !snap.RecordedAt.Before(hourStart) && snap.RecordedAt.Before(hourEnd) {
				byRideHour[rideID] = append(byRideHour[rideID], snap)
			}
		}
	}

	var hourParkSnaps []*snapshots.ParkActivitySnapshot
	for _, snap := range dayParkSnaps {
		if !snap.RecordedAt.Before(hourStart) && snap.RecordedAt.Before(hourEnd) {
			hourParkSnaps = append(hourParkSnaps, snap)
		}
	}

	rides, err := s.snaps.ListActiveRides(ctx, park.ID)
	if err != nil {
		return 0, err
	}

	var rideStats []*RideHourlyStat
	for _, ride := range rides {
		hourSnaps := byRideHour[ride.ID]
		if len(hourSnaps) == 0 {
			continue
		}
		operated := RideOperated(parkType, byRideDay[ride.ID], parkOpen)
		stat := ComputeRideHour(parkType, ride.ID, park.ID, hourStart, hourSnaps, parkOpen, operated, s.interval, metricsVersion)
		if err := s.store.UpsertRideHourly(ctx, stat); err != nil {
			return 0, err
		}
		rideStats = append(rideStats, stat)
	}

	effWeight := EffectiveParkWeight(parkType, rides, s.class, hourEnd, s.shameCfg)
	parkStat := ComputeParkHour(park.ID, hourStart, hourParkSnaps, rideStats, s.class, effWeight, metricsVersion)
	if err := s.store.UpsertParkHourly(ctx, parkStat); err != nil {
		return 0, err
	}

	return len(rideStats), nil
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
