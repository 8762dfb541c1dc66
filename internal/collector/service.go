package collector

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/queuetimes/parkpulse/internal/classification"
	"github.com/queuetimes/parkpulse/internal/parkcal"
	"github.com/queuetimes/parkpulse/internal/shame"
	"github.com/queuetimes/parkpulse/internal/snapshots"
	"github.com/queuetimes/parkpulse/pkg/config"
	"github.com/queuetimes/parkpulse/pkg/logger"
	"github.com/queuetimes/parkpulse/pkg/resilience"
)

// Repository defines the persistence operations the collector needs.
type Repository interface {
	ListActiveParks(ctx context.Context) ([]*snapshots.Park, error)
	ListActiveRides(ctx context.Context, parkID int) ([]*snapshots.Ride, error)
	InsertCycle(ctx context.Context, parkSnap *snapshots.ParkActivitySnapshot, rideSnaps []*snapshots.RideStatusSnapshot) (int, error)
	ScheduleCovers(ctx context.Context, parkID int, at time.Time) (bool, error)
	UpsertScheduleEntry(ctx context.Context, parkID int, localDate time.Time, opensAt, closesAt time.Time) error
}

// StatusFetcher defines the upstream operations the collector needs.
type StatusFetcher interface {
	FetchLive(ctx context.Context, parkExternalID string) (*LivePark, error)
	FetchSchedule(ctx context.Context, parkExternalID string) (*ScheduleResponse, error)
}

// ClassificationLookup resolves a ride's tier weight and category.
type ClassificationLookup interface {
	WeightFor(rideID int) int
	CategoryFor(rideID int) string
}

// Service runs collection cycles: one live fetch per park, one atomic write
// per park, bounded fan-out across parks. A failed park never fails the
// cycle; it is logged, counted and skipped until the next tick.
type Service struct {
	repo     Repository
	fetcher  StatusFetcher
	class    ClassificationLookup
	shameCfg config.ShameConfig
	clock    parkcal.Clock
	breaker  *resilience.CircuitBreaker

	concurrency int
}

// NewService creates a collector service.
func NewService(repo Repository, fetcher StatusFetcher, class ClassificationLookup, cfg *config.Config, clock parkcal.Clock) *Service {
	return &Service{
		repo:        repo,
		fetcher:     fetcher,
		class:       class,
		shameCfg:    cfg.Shame,
		clock:       clock,
		concurrency: cfg.Collector.Concurrency,
		breaker: resilience.NewCircuitBreaker(resilience.Settings{
			Name: "upstream-live",
		}, nil),
	}
}

// RunCycle executes one collection pass over every active park.
func (s *Service) RunCycle(ctx context.Context) error {
	started := time.Now()
	recordedAt := s.clock.Now().Truncate(time.Second)

	parks, err := s.repo.ListActiveParks(ctx)
	if err != nil {
		cyclesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to list parks for cycle: %w", err)
	}

	var failures atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, park := range parks {
		park := park
		g.Go(func() error {
			if err := s.collectPark(ctx, park, recordedAt); err != nil {
				failures.Add(1)
				logger.Error("park collection failed",
					zap.Int("park_id", park.ID),
					zap.String("park", park.Name),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	cycleDuration.Observe(time.Since(started).Seconds())
	cyclesTotal.WithLabelValues("success").Inc()

	logger.Info("collection cycle complete",
		zap.Time("recorded_at", recordedAt),
		zap.Int("parks", len(parks)),
		zap.Int64("failed_parks", failures.Load()),
		zap.Duration("elapsed", time.Since(started)),
	)

	return nil
}

func (s *Service) collectPark(ctx context.Context, park *snapshots.Park, recordedAt time.Time) error {
	result, err := s.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return s.fetcher.FetchLive(ctx, park.ExternalID)
	})
	if err != nil {
		parkFailuresTotal.WithLabelValues("fetch").Inc()
		return fmt.Errorf("live fetch: %w", err)
	}
	live := result.(*LivePark)

	rides, err := s.repo.ListActiveRides(ctx, park.ID)
	if err != nil {
		parkFailuresTotal.WithLabelValues("rides").Inc()
		return fmt.Errorf("list rides: %w", err)
	}

	byExternal := make(map[string]*snapshots.Ride, len(rides))
	for _, ride := range rides {
		byExternal[ride.ExternalID] = ride
	}

	if err := s.refreshSchedule(ctx, park); err != nil {
		// Schedules are advisory; the live-activity fallback covers gaps.
		logger.Warn("schedule refresh failed",
			zap.Int("park_id", park.ID),
			zap.Error(err),
		)
	}

	scheduleCovered, err := s.repo.ScheduleCovers(ctx, park.ID, recordedAt)
	if err != nil {
		parkFailuresTotal.WithLabelValues("schedule").Inc()
		return fmt.Errorf("schedule check: %w", err)
	}

	rideSnaps := make([]*snapshots.RideStatusSnapshot, 0, len(live.Rides))
	matched := make(map[int]*snapshots.RideStatusSnapshot, len(live.Rides))
	for _, lr := range live.Rides {
		ride, ok := byExternal[lr.ExternalID]
		if !ok {
			continue
		}

		status := snapshots.ParseStatus(lr.Status)
		snap := &snapshots.RideStatusSnapshot{
			RideID:          ride.ID,
			ParkID:          park.ID,
			RecordedAt:      recordedAt,
			Status:          status,
			WaitTime:        lr.WaitTime,
			IsOpen:          lr.IsOpen,
			ComputedIsOpen:  snapshots.ComputeIsOpen(status, lr.WaitTime),
			LastUpdatedAPI:  lr.LastUpdated,
			ParkAppearsOpen: scheduleCovered,
		}
		rideSnaps = append(rideSnaps, snap)
		matched[ride.ID] = snap
	}

	parkSnap := s.buildParkSnapshot(park, rides, rideSnaps, recordedAt, scheduleCovered)

	written, err := s.repo.InsertCycle(ctx, parkSnap, rideSnaps)
	if err != nil {
		parkFailuresTotal.WithLabelValues("persist").Inc()
		return fmt.Errorf("persist cycle: %w", err)
	}
	snapshotsWritten.Add(float64(written))

	return nil
}

// buildParkSnapshot derives the per-park row for this cycle, including the
// live shame score stamped at collection time.
func (s *Service) buildParkSnapshot(park *snapshots.Park, rides []*snapshots.Ride, rideSnaps []*snapshots.RideStatusSnapshot, recordedAt time.Time, scheduleCovered bool) *snapshots.ParkActivitySnapshot {
	ridesOpen := 0
	var waitSum, waitCount int
	var maxWait *int
	for _, snap := range rideSnaps {
		if snap.ComputedIsOpen {
			ridesOpen++
			if snap.WaitTime != nil {
				waitSum += *snap.WaitTime
				waitCount++
				if maxWait == nil || *snap.WaitTime > *maxWait {
					maxWait = snap.WaitTime
				}
			}
		}
	}

	var avgWait *float64
	if waitCount > 0 {
		v := float64(waitSum) / float64(waitCount)
		avgWait = &v
	}

	parkSnap := &snapshots.ParkActivitySnapshot{
		ParkID:            park.ID,
		RecordedAt:        recordedAt,
		TotalRidesTracked: len(rideSnaps),
		RidesOpen:         ridesOpen,
		RidesClosed:       len(rideSnaps) - ridesOpen,
		AvgWaitTime:       avgWait,
		MaxWaitTime:       maxWait,
		ParkAppearsOpen:   scheduleCovered,
	}

	if parkSnap.AppearsOpen() {
		parkSnap.ShameScore = s.liveShame(park, rides, rideSnaps, recordedAt)
	}

	return parkSnap
}

// liveShame computes the instantaneous shame score for one cycle. The
// denominator is the effective set: rides that operated within the park-type
// window, where an observation from this very cycle counts too.
func (s *Service) liveShame(park *snapshots.Park, rides []*snapshots.Ride, rideSnaps []*snapshots.RideStatusSnapshot, now time.Time) float64 {
	parkType := shame.TypeFromConfig(park, s.shameCfg)

	byRide := make(map[int]*snapshots.RideStatusSnapshot, len(rideSnaps))
	for _, snap := range rideSnaps {
		byRide[snap.RideID] = snap
	}

	effectiveWeight := 0
	downWeight := 0
	for _, ride := range rides {
		// Shows and experiences stay in the catalog but never feed the
		// score.
		if s.class.CategoryFor(ride.ID) != classification.CategoryAttraction {
			continue
		}
		snap := byRide[ride.ID]

		lastOperated := ride.LastOperatedAt
		if snap != nil && shame.OperatedSignal(parkType, snap.Status, snap.ComputedIsOpen) {
			lastOperated = &now
		}

		if !shame.InEffectiveSet(parkType, lastOperated, now, s.shameCfg) {
			continue
		}

		weight := s.class.WeightFor(ride.ID)
		effectiveWeight += weight
		// An open ride is never down, whatever its raw status says: a NULL
		// status with a posted wait time means running, not broken.
		if snap != nil && !snap.ComputedIsOpen && shame.IsDown(parkType, snap.Status) {
			downWeight += weight
		}
	}

	return shame.Score(downWeight, effectiveWeight)
}

// refreshSchedule upserts today's published operating hours for a park.
func (s *Service) refreshSchedule(ctx context.Context, park *snapshots.Park) error {
	sched, err := s.fetcher.FetchSchedule(ctx, park.ExternalID)
	if err != nil {
		return err
	}

	loc, err := parkcal.LocationFor(park.Timezone)
	if err != nil {
		return fmt.Errorf("bad park timezone %q: %w", park.Timezone, err)
	}

	for _, entry := range sched.Schedule {
		if entry.Type != "OPERATING" {
			continue
		}
		localDate, err := time.ParseInLocation("2006-01-02", entry.Date, loc)
		if err != nil {
			logger.Warn("skipping malformed schedule date",
				zap.Int("park_id", park.ID),
				zap.String("date", entry.Date),
			)
			continue
		}
		if err := s.repo.UpsertScheduleEntry(ctx, park.ID, parkcal.LocalDate(localDate, loc), entry.OpensAt, entry.ClosesAt); err != nil {
			return err
		}
	}

	return nil
}
