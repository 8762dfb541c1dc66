package rankings

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/queuetimes/parkpulse/internal/aggregation"
	"github.com/queuetimes/parkpulse/internal/parkcal"
	"github.com/queuetimes/parkpulse/internal/snapshots"
	"github.com/queuetimes/parkpulse/pkg/config"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListParks(ctx context.Context, filter Filter) ([]*snapshots.Park, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*snapshots.Park), args.Error(1)
}

func (m *mockStore) GetPark(ctx context.Context, parkID int) (*snapshots.Park, error) {
	args := m.Called(ctx, parkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*snapshots.Park), args.Error(1)
}

func (m *mockStore) ListRides(ctx context.Context, parkID int) ([]*RideRow, error) {
	args := m.Called(ctx, parkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*RideRow), args.Error(1)
}

func (m *mockStore) LiveRows(ctx context.Context, filter Filter) (map[int]*LiveRow, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]*LiveRow), args.Error(1)
}

func (m *mockStore) LiveRidesDown(ctx context.Context) (map[int]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]int), args.Error(1)
}

func (m *mockStore) TodayHourly(ctx context.Context, filter Filter) (map[int]*PeriodRow, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]*PeriodRow), args.Error(1)
}

func (m *mockStore) TodayPartialHour(ctx context.Context, filter Filter) (map[int]float64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]float64), args.Error(1)
}

func (m *mockStore) TodayRaw(ctx context.Context, filter Filter) (map[int]*PeriodRow, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]*PeriodRow), args.Error(1)
}

func (m *mockStore) YesterdayDaily(ctx context.Context, filter Filter) (map[int]*PeriodRow, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]*PeriodRow), args.Error(1)
}

func (m *mockStore) YesterdayRaw(ctx context.Context, filter Filter) (map[int]*PeriodRow, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]*PeriodRow), args.Error(1)
}

func (m *mockStore) RangeDaily(ctx context.Context, filter Filter, days int) (map[int]*PeriodRow, error) {
	args := m.Called(ctx, filter, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]*PeriodRow), args.Error(1)
}

func (m *mockStore) RideRowsToday(ctx context.Context, filter Filter, limit int) ([]*RideRow, error) {
	args := m.Called(ctx, filter, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*RideRow), args.Error(1)
}

func (m *mockStore) RideRowsRange(ctx context.Context, filter Filter, days, limit int) ([]*RideRow, error) {
	args := m.Called(ctx, filter, days, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*RideRow), args.Error(1)
}

func (m *mockStore) ChartLive(ctx context.Context, parkID int) ([]*ChartPoint, error) {
	args := m.Called(ctx, parkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ChartPoint), args.Error(1)
}

func (m *mockStore) ChartHourly(ctx context.Context, parkID int, start, end time.Time) ([]*ChartPoint, error) {
	args := m.Called(ctx, parkID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ChartPoint), args.Error(1)
}

func (m *mockStore) ChartDaily(ctx context.Context, parkID, days int) ([]*ChartPoint, error) {
	args := m.Called(ctx, parkID, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ChartPoint), args.Error(1)
}

// passCache skips Redis and always executes the builder.
type passCache struct{}

func (passCache) GetOrSet(_ context.Context, _ string, _ time.Duration, result interface{}, fn func() (interface{}, error)) error {
	data, err := fn()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}

type stubJobs struct {
	entry *aggregation.LogEntry
}

func (s *stubJobs) LatestSuccess(_ context.Context, _ string) (*aggregation.LogEntry, error) {
	return s.entry, nil
}

func testPark(id int, name string, disney bool) *snapshots.Park {
	return &snapshots.Park{
		ID:       id,
		Name:     name,
		City:     "Orlando",
		Country:  "US",
		Timezone: "America/New_York",
		IsDisney: disney,
		IsActive: true,
	}
}

func newTestService(store Store, jobs JobLog, now time.Time) *Service {
	cfg := &config.Config{
		Aggregation: config.AggregationConfig{
			UseAggregates:   true,
			StaleSLAMinutes: 120,
		},
	}
	return NewService(store, passCache{}, jobs, cfg, parkcal.FixedClock{Instant: now})
}

func recentJobs(now time.Time) *stubJobs {
	done := now.Add(-10 * time.Minute)
	return &stubJobs{entry: &aggregation.LogEntry{FinishedAt: &done}}
}

func TestParkRankingsTodayFoldsPartialHour(t *testing.T) {
	now := time.Date(2025, 7, 4, 18, 40, 0, 0, time.UTC)
	store := &mockStore{}
	store.On("ListParks", mock.Anything, FilterAllParks).Return([]*snapshots.Park{
		testPark(1, "Magic Kingdom", true),
		testPark(2, "Epcot", true),
	}, nil)
	// Park 1: five open hours averaging 4.0, current hour running at 6.0.
	store.On("TodayHourly", mock.Anything, FilterAllParks).Return(map[int]*PeriodRow{
		1: {ParkID: 1, ShameSum: 20.0, OpenUnits: 5, TotalDowntimeHours: 7.5, RidesDown: 3, RidesOperating: 37},
	}, nil)
	store.On("TodayPartialHour", mock.Anything, FilterAllParks).Return(map[int]float64{1: 6.0}, nil)

	svc := newTestService(store, recentJobs(now), now)
	resp, err := svc.ParkRankings(context.Background(), PeriodToday, FilterAllParks, SortByShame, 0)
	require.NoError(t, err)

	require.True(t, resp.Success)
	assert.False(t, resp.Stale)

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var entries []*ParkRanking
	require.NoError(t, json.Unmarshal(raw, &entries))

	// Park 2 has no rows today and is dropped; park 1's score is the mean
	// of six hour means: (20 + 6) / 6.
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, 1, entries[0].ParkID)
	assert.InDelta(t, 4.3, entries[0].ShameScore, 0.001)
	assert.InDelta(t, 7.5, entries[0].TotalDowntimeHours, 0.001)
	assert.Equal(t, 3, entries[0].RidesDown)
}

func TestParkRankingsTodayExcludesZeroScore(t *testing.T) {
	now := time.Date(2025, 7, 4, 18, 0, 0, 0, time.UTC)
	store := &mockStore{}
	store.On("ListParks", mock.Anything, FilterAllParks).Return([]*snapshots.Park{
		testPark(1, "Magic Kingdom", true),
		testPark(2, "Epcot", true),
	}, nil)
	store.On("TodayHourly", mock.Anything, FilterAllParks).Return(map[int]*PeriodRow{
		1: {ParkID: 1, ShameSum: 12.0, OpenUnits: 4},
		2: {ParkID: 2, ShameSum: 0.0, OpenUnits: 4},
	}, nil)
	store.On("TodayPartialHour", mock.Anything, FilterAllParks).Return(map[int]float64{}, nil)

	svc := newTestService(store, recentJobs(now), now)
	resp, err := svc.ParkRankings(context.Background(), PeriodToday, FilterAllParks, SortByShame, 0)
	require.NoError(t, err)

	var entries []*ParkRanking
	raw, _ := json.Marshal(resp.Data)
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].ParkID)
}

func TestParkRankingsYesterdayKeepsZeroScore(t *testing.T) {
	now := time.Date(2025, 7, 4, 18, 0, 0, 0, time.UTC)
	store := &mockStore{}
	store.On("ListParks", mock.Anything, FilterAllParks).Return([]*snapshots.Park{
		testPark(1, "Magic Kingdom", true),
		testPark(2, "Epcot", true),
	}, nil)
	store.On("YesterdayDaily", mock.Anything, FilterAllParks).Return(map[int]*PeriodRow{
		1: {ParkID: 1, ShameSum: 2.5, OpenUnits: 1, TotalDowntimeHours: 4.0},
		2: {ParkID: 2, ShameSum: 0.0, OpenUnits: 1, TotalDowntimeHours: 0.5},
	}, nil)

	svc := newTestService(store, recentJobs(now), now)
	resp, err := svc.ParkRankings(context.Background(), PeriodYesterday, FilterAllParks, SortByDowntime, 0)
	require.NoError(t, err)

	var entries []*ParkRanking
	raw, _ := json.Marshal(resp.Data)
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].ParkID)
	assert.Equal(t, 2, entries[1].ParkID)
	assert.Equal(t, 2, entries[1].Rank)
}

func TestParkRankingsYesterdayRawWhenAggregatesOff(t *testing.T) {
	// With aggregates disabled every period must come straight from raw
	// snapshots, yesterday included.
	now := time.Date(2025, 7, 4, 18, 0, 0, 0, time.UTC)
	store := &mockStore{}
	store.On("ListParks", mock.Anything, FilterAllParks).Return([]*snapshots.Park{
		testPark(1, "Magic Kingdom", true),
	}, nil)
	store.On("YesterdayRaw", mock.Anything, FilterAllParks).Return(map[int]*PeriodRow{
		1: {ParkID: 1, ShameSum: 360.0, OpenUnits: 120, TotalDowntimeHours: 2.5, RidesDown: 1, RidesOperating: 9},
	}, nil)

	cfg := &config.Config{
		Aggregation: config.AggregationConfig{UseAggregates: false, StaleSLAMinutes: 120},
	}
	svc := NewService(store, passCache{}, recentJobs(now), cfg, parkcal.FixedClock{Instant: now})
	resp, err := svc.ParkRankings(context.Background(), PeriodYesterday, FilterAllParks, SortByShame, 0)
	require.NoError(t, err)

	var entries []*ParkRanking
	raw, _ := json.Marshal(resp.Data)
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 1)
	assert.InDelta(t, 3.0, entries[0].ShameScore, 0.001)
	assert.InDelta(t, 2.5, entries[0].TotalDowntimeHours, 0.001)
	store.AssertNotCalled(t, "YesterdayDaily", mock.Anything, mock.Anything)
}

func TestSortEntriesTieBreak(t *testing.T) {
	entries := []*ParkRanking{
		{ParkID: 3, ShameScore: 2.0, TotalDowntimeHours: 1.0},
		{ParkID: 1, ShameScore: 2.0, TotalDowntimeHours: 5.0},
		{ParkID: 2, ShameScore: 2.0, TotalDowntimeHours: 5.0},
		{ParkID: 4, ShameScore: 6.0, TotalDowntimeHours: 0.1},
	}

	sortEntries(entries, SortByShame)

	assert.Equal(t, 4, entries[0].ParkID)
	assert.Equal(t, 1, entries[1].ParkID)
	assert.Equal(t, 2, entries[2].ParkID)
	assert.Equal(t, 3, entries[3].ParkID)
}

func TestRideRankingsRanksByDowntime(t *testing.T) {
	now := time.Date(2025, 7, 4, 18, 0, 0, 0, time.UTC)
	tier := 3
	status := "DOWN"
	store := &mockStore{}
	store.On("RideRowsToday", mock.Anything, FilterAllParks, 50).Return([]*RideRow{
		{RideID: 9, ParkID: 1, Name: "Space Mountain", ParkName: "Magic Kingdom", Tier: &tier, DowntimeHours: 3.25, UptimePercentage: 67.5, CurrentStatus: &status},
		{RideID: 4, ParkID: 1, Name: "Splash", ParkName: "Magic Kingdom", DowntimeHours: 1.0, UptimePercentage: 90.0},
	}, nil)

	svc := newTestService(store, recentJobs(now), now)
	resp, err := svc.RideRankings(context.Background(), PeriodToday, FilterAllParks, 0)
	require.NoError(t, err)

	var entries []*RideRanking
	raw, _ := json.Marshal(resp.Data)
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, 9, entries[0].RideID)
	assert.Equal(t, "DOWN", entries[0].CurrentStatus)
	assert.Equal(t, "", entries[1].CurrentStatus)
}

func TestStaleFlagWhenAggregatesLag(t *testing.T) {
	now := time.Date(2025, 7, 4, 18, 0, 0, 0, time.UTC)
	stale := now.Add(-3 * time.Hour)
	store := &mockStore{}
	store.On("ListParks", mock.Anything, FilterAllParks).Return([]*snapshots.Park{testPark(1, "Magic Kingdom", true)}, nil)
	store.On("TodayHourly", mock.Anything, FilterAllParks).Return(map[int]*PeriodRow{
		1: {ParkID: 1, ShameSum: 4.0, OpenUnits: 1},
	}, nil)
	store.On("TodayPartialHour", mock.Anything, FilterAllParks).Return(map[int]float64{}, nil)

	jobs := &stubJobs{entry: &aggregation.LogEntry{FinishedAt: &stale}}
	svc := newTestService(store, jobs, now)
	resp, err := svc.ParkRankings(context.Background(), PeriodToday, FilterAllParks, SortByShame, 0)
	require.NoError(t, err)
	assert.True(t, resp.Stale)
}

func TestParkChartNotFound(t *testing.T) {
	now := time.Date(2025, 7, 4, 18, 0, 0, 0, time.UTC)
	store := &mockStore{}
	store.On("GetPark", mock.Anything, 99).Return(nil, nil)

	svc := newTestService(store, recentJobs(now), now)
	_, err := svc.ParkChart(context.Background(), 99, PeriodLive)
	assert.ErrorIs(t, err, ErrParkNotFound)
}

func TestParkChartHourlyWindow(t *testing.T) {
	now := time.Date(2025, 7, 4, 18, 0, 0, 0, time.UTC)
	park := testPark(1, "Magic Kingdom", true)
	loc, err := time.LoadLocation(park.Timezone)
	require.NoError(t, err)

	wantStart := time.Date(2025, 7, 4, 6, 0, 0, 0, loc).UTC()
	wantEnd := time.Date(2025, 7, 4, 23, 0, 0, 0, loc).UTC()

	store := &mockStore{}
	store.On("GetPark", mock.Anything, 1).Return(park, nil)
	store.On("ChartHourly", mock.Anything, 1, wantStart, wantEnd).Return([]*ChartPoint{
		{At: wantStart, ShameScore: 2.0, RidesDown: 1},
		{At: wantStart.Add(time.Hour), ShameScore: 4.0, RidesDown: 2},
	}, nil)

	svc := newTestService(store, recentJobs(now), now)
	resp, err := svc.ParkChart(context.Background(), 1, PeriodToday)
	require.NoError(t, err)

	assert.Equal(t, GranularityHourly, resp.Granularity)
	assert.Equal(t, []string{"06:00", "07:00"}, resp.Labels)
	assert.InDelta(t, 3.0, resp.Average, 0.001)
	store.AssertExpectations(t)
}
