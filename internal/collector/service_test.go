package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/queuetimes/parkpulse/internal/classification"
	"github.com/queuetimes/parkpulse/internal/parkcal"
	"github.com/queuetimes/parkpulse/internal/snapshots"
	"github.com/queuetimes/parkpulse/pkg/config"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) ListActiveParks(ctx context.Context) ([]*snapshots.Park, error) {
	args := m.Called(ctx)
	parks, _ := args.Get(0).([]*snapshots.Park)
	return parks, args.Error(1)
}

func (m *mockRepository) ListActiveRides(ctx context.Context, parkID int) ([]*snapshots.Ride, error) {
	args := m.Called(ctx, parkID)
	rides, _ := args.Get(0).([]*snapshots.Ride)
	return rides, args.Error(1)
}

func (m *mockRepository) InsertCycle(ctx context.Context, parkSnap *snapshots.ParkActivitySnapshot, rideSnaps []*snapshots.RideStatusSnapshot) (int, error) {
	args := m.Called(ctx, parkSnap, rideSnaps)
	return args.Int(0), args.Error(1)
}

func (m *mockRepository) ScheduleCovers(ctx context.Context, parkID int, at time.Time) (bool, error) {
	args := m.Called(ctx, parkID, at)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepository) UpsertScheduleEntry(ctx context.Context, parkID int, localDate time.Time, opensAt, closesAt time.Time) error {
	args := m.Called(ctx, parkID, localDate, opensAt, closesAt)
	return args.Error(0)
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchLive(ctx context.Context, parkExternalID string) (*LivePark, error) {
	args := m.Called(ctx, parkExternalID)
	live, _ := args.Get(0).(*LivePark)
	return live, args.Error(1)
}

func (m *mockFetcher) FetchSchedule(ctx context.Context, parkExternalID string) (*ScheduleResponse, error) {
	args := m.Called(ctx, parkExternalID)
	sched, _ := args.Get(0).(*ScheduleResponse)
	return sched, args.Error(1)
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

func testConfig() *config.Config {
	return &config.Config{
		Collector: config.CollectorConfig{Concurrency: 2},
		Shame: config.ShameConfig{
			DisneyWindowDays: 7,
			OtherWindowDays:  3,
		},
	}
}

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func TestRunCyclePersistsSnapshots(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 18, 0, 0, 0, time.UTC)
	clock := parkcal.FixedClock{Instant: now}

	park := &snapshots.Park{ID: 1, ExternalID: "mk", Name: "Magic Kingdom", Timezone: "America/New_York", IsDisney: true}
	rides := []*snapshots.Ride{
		{ID: 10, ExternalID: "r1", ParkID: 1, Tier: intPtr(1), LastOperatedAt: timePtr(now.Add(-time.Hour))},
		{ID: 11, ExternalID: "r2", ParkID: 1, Tier: intPtr(2), LastOperatedAt: timePtr(now.Add(-time.Hour))},
	}

	repo := new(mockRepository)
	fetcher := new(mockFetcher)

	repo.On("ListActiveParks", ctx).Return([]*snapshots.Park{park}, nil)
	repo.On("ListActiveRides", ctx, 1).Return(rides, nil)
	repo.On("ScheduleCovers", ctx, 1, now).Return(true, nil)
	fetcher.On("FetchSchedule", ctx, "mk").Return(&ScheduleResponse{}, nil)
	fetcher.On("FetchLive", ctx, "mk").Return(&LivePark{
		ExternalID: "mk",
		Rides: []LiveRide{
			{ExternalID: "r1", Status: "DOWN"},
			{ExternalID: "r2", Status: "OPERATING", WaitTime: intPtr(30)},
			{ExternalID: "unknown-ride", Status: "OPERATING"},
		},
	}, nil)

	var gotPark *snapshots.ParkActivitySnapshot
	var gotRides []*snapshots.RideStatusSnapshot
	repo.On("InsertCycle", ctx, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotPark = args.Get(1).(*snapshots.ParkActivitySnapshot)
			gotRides = args.Get(2).([]*snapshots.RideStatusSnapshot)
		}).
		Return(2, nil)

	svc := NewService(repo, fetcher, staticWeights{10: 3, 11: 2}, testConfig(), clock)
	require.NoError(t, svc.RunCycle(ctx))

	// The unmatched upstream ride is dropped.
	require.Len(t, gotRides, 2)

	assert.Equal(t, 1, gotPark.RidesOpen)
	assert.Equal(t, 1, gotPark.RidesClosed)
	assert.Equal(t, 2, gotPark.TotalRidesTracked)
	assert.True(t, gotPark.ParkAppearsOpen)

	// Tier-1 (weight 3) down out of total weight 5: 3/5*10 = 6.0.
	assert.InDelta(t, 6.0, gotPark.ShameScore, 0.001)

	repo.AssertExpectations(t)
	fetcher.AssertExpectations(t)
}

func TestRunCycleFallbackParkOpen(t *testing.T) {
	// Schedule missing, but a ride is running: the stored flag stays FALSE
	// while the shame score still gets computed via the fallback.
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 18, 0, 0, 0, time.UTC)
	clock := parkcal.FixedClock{Instant: now}

	park := &snapshots.Park{ID: 2, ExternalID: "sf", Name: "Six Flags Anywhere", Timezone: "America/Chicago", Operator: "Six Flags"}
	rides := []*snapshots.Ride{
		{ID: 20, ExternalID: "c1", ParkID: 2, Tier: intPtr(1), LastOperatedAt: timePtr(now.Add(-2 * time.Hour))},
		{ID: 21, ExternalID: "c2", ParkID: 2, Tier: intPtr(2), LastOperatedAt: timePtr(now.Add(-2 * time.Hour))},
	}

	repo := new(mockRepository)
	fetcher := new(mockFetcher)

	repo.On("ListActiveParks", ctx).Return([]*snapshots.Park{park}, nil)
	repo.On("ListActiveRides", ctx, 2).Return(rides, nil)
	repo.On("ScheduleCovers", ctx, 2, now).Return(false, nil)
	fetcher.On("FetchSchedule", ctx, "sf").Return(&ScheduleResponse{}, nil)
	fetcher.On("FetchLive", ctx, "sf").Return(&LivePark{
		ExternalID: "sf",
		Rides: []LiveRide{
			{ExternalID: "c1", Status: "OPERATING", WaitTime: intPtr(20)},
			{ExternalID: "c2", Status: "CLOSED"},
		},
	}, nil)

	var gotPark *snapshots.ParkActivitySnapshot
	repo.On("InsertCycle", ctx, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotPark = args.Get(1).(*snapshots.ParkActivitySnapshot)
		}).
		Return(2, nil)

	svc := NewService(repo, fetcher, staticWeights{20: 3, 21: 2}, testConfig(), clock)
	require.NoError(t, svc.RunCycle(ctx))

	assert.False(t, gotPark.ParkAppearsOpen)
	assert.Equal(t, 1, gotPark.RidesOpen)

	// Non-Disney CLOSED counts as down: tier-2 weight 2 of total 5 = 4.0.
	assert.InDelta(t, 4.0, gotPark.ShameScore, 0.001)
}

func TestRunCycleOpenRideWithMissingStatusNotDown(t *testing.T) {
	// A NULL status with a posted wait time is an open ride even at a
	// non-Disney park; it must not land in the shame numerator.
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 18, 0, 0, 0, time.UTC)
	clock := parkcal.FixedClock{Instant: now}

	park := &snapshots.Park{ID: 4, ExternalID: "cp", Name: "Cedar Pointish", Timezone: "America/Detroit", Operator: "Cedar Fair"}
	rides := []*snapshots.Ride{
		{ID: 40, ExternalID: "m1", ParkID: 4, Tier: intPtr(1), LastOperatedAt: timePtr(now.Add(-time.Hour))},
	}

	repo := new(mockRepository)
	fetcher := new(mockFetcher)

	repo.On("ListActiveParks", ctx).Return([]*snapshots.Park{park}, nil)
	repo.On("ListActiveRides", ctx, 4).Return(rides, nil)
	repo.On("ScheduleCovers", ctx, 4, now).Return(true, nil)
	fetcher.On("FetchSchedule", ctx, "cp").Return(&ScheduleResponse{}, nil)
	fetcher.On("FetchLive", ctx, "cp").Return(&LivePark{
		ExternalID: "cp",
		Rides:      []LiveRide{{ExternalID: "m1", Status: "", WaitTime: intPtr(30)}},
	}, nil)

	var gotPark *snapshots.ParkActivitySnapshot
	repo.On("InsertCycle", ctx, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotPark = args.Get(1).(*snapshots.ParkActivitySnapshot)
		}).
		Return(1, nil)

	svc := NewService(repo, fetcher, staticWeights{40: 3}, testConfig(), clock)
	require.NoError(t, svc.RunCycle(ctx))

	assert.Equal(t, 1, gotPark.RidesOpen)
	assert.Equal(t, 0.0, gotPark.ShameScore)
}

func TestRunCycleParkFailureIsolated(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 18, 0, 0, 0, time.UTC)
	clock := parkcal.FixedClock{Instant: now}

	broken := &snapshots.Park{ID: 1, ExternalID: "bad", Name: "Broken Park"}
	healthy := &snapshots.Park{ID: 2, ExternalID: "ok", Name: "Healthy Park"}

	repo := new(mockRepository)
	fetcher := new(mockFetcher)

	repo.On("ListActiveParks", ctx).Return([]*snapshots.Park{broken, healthy}, nil)

	fetcher.On("FetchLive", ctx, "bad").Return(nil, errors.New("upstream 503"))

	fetcher.On("FetchLive", ctx, "ok").Return(&LivePark{ExternalID: "ok"}, nil)
	fetcher.On("FetchSchedule", ctx, "ok").Return(&ScheduleResponse{}, nil)
	repo.On("ListActiveRides", ctx, 2).Return([]*snapshots.Ride{}, nil)
	repo.On("ScheduleCovers", ctx, 2, now).Return(false, nil)
	repo.On("InsertCycle", ctx, mock.Anything, mock.Anything).Return(0, nil)

	svc := NewService(repo, fetcher, staticWeights{}, testConfig(), clock)

	// One bad park does not poison the cycle.
	require.NoError(t, svc.RunCycle(ctx))
	repo.AssertCalled(t, "InsertCycle", ctx, mock.Anything, mock.Anything)
}

func TestRunCycleZeroDenominator(t *testing.T) {
	// Every ride out beyond the window: score 0, no errors.
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 18, 0, 0, 0, time.UTC)
	clock := parkcal.FixedClock{Instant: now}

	park := &snapshots.Park{ID: 3, ExternalID: "dl", Name: "Seasonal Land", IsDisney: true}
	stale := now.Add(-10 * 24 * time.Hour)
	rides := []*snapshots.Ride{
		{ID: 30, ExternalID: "s1", ParkID: 3, Tier: intPtr(1), LastOperatedAt: &stale},
	}

	repo := new(mockRepository)
	fetcher := new(mockFetcher)

	repo.On("ListActiveParks", ctx).Return([]*snapshots.Park{park}, nil)
	repo.On("ListActiveRides", ctx, 3).Return(rides, nil)
	repo.On("ScheduleCovers", ctx, 3, now).Return(true, nil)
	fetcher.On("FetchSchedule", ctx, "dl").Return(&ScheduleResponse{}, nil)
	fetcher.On("FetchLive", ctx, "dl").Return(&LivePark{
		ExternalID: "dl",
		Rides:      []LiveRide{{ExternalID: "s1", Status: "CLOSED"}},
	}, nil)

	var gotPark *snapshots.ParkActivitySnapshot
	repo.On("InsertCycle", ctx, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotPark = args.Get(1).(*snapshots.ParkActivitySnapshot)
		}).
		Return(1, nil)

	svc := NewService(repo, fetcher, staticWeights{30: 3}, testConfig(), clock)
	require.NoError(t, svc.RunCycle(ctx))

	assert.Equal(t, 0.0, gotPark.ShameScore)
}
