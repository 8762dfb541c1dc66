package rankings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/queuetimes/parkpulse/internal/aggregation"
	"github.com/queuetimes/parkpulse/internal/parkcal"
	"github.com/queuetimes/parkpulse/internal/shame"
	"github.com/queuetimes/parkpulse/internal/snapshots"
	"github.com/queuetimes/parkpulse/pkg/config"
)

// ErrParkNotFound is returned for chart and detail requests against unknown
// or inactive parks.
var ErrParkNotFound = errors.New("park not found")

const defaultLimit = 50

// Store defines the query operations the rankings service needs.
type Store interface {
	ListParks(ctx context.Context, filter Filter) ([]*snapshots.Park, error)
	GetPark(ctx context.Context, parkID int) (*snapshots.Park, error)
	ListRides(ctx context.Context, parkID int) ([]*RideRow, error)
	LiveRows(ctx context.Context, filter Filter) (map[int]*LiveRow, error)
	LiveRidesDown(ctx context.Context) (map[int]int, error)
	TodayHourly(ctx context.Context, filter Filter) (map[int]*PeriodRow, error)
	TodayPartialHour(ctx context.Context, filter Filter) (map[int]float64, error)
	TodayRaw(ctx context.Context, filter Filter) (map[int]*PeriodRow, error)
	YesterdayDaily(ctx context.Context, filter Filter) (map[int]*PeriodRow, error)
	YesterdayRaw(ctx context.Context, filter Filter) (map[int]*PeriodRow, error)
	RangeDaily(ctx context.Context, filter Filter, days int) (map[int]*PeriodRow, error)
	RideRowsToday(ctx context.Context, filter Filter, limit int) ([]*RideRow, error)
	RideRowsRange(ctx context.Context, filter Filter, days, limit int) ([]*RideRow, error)
	ChartLive(ctx context.Context, parkID int) ([]*ChartPoint, error)
	ChartHourly(ctx context.Context, parkID int, start, end time.Time) ([]*ChartPoint, error)
	ChartDaily(ctx context.Context, parkID, days int) ([]*ChartPoint, error)
}

// Cacher is the subset of the cache manager the service uses.
type Cacher interface {
	GetOrSet(ctx context.Context, key string, ttl time.Duration, result interface{}, fn func() (interface{}, error)) error
}

// JobLog reports aggregation freshness for the staleness flag.
type JobLog interface {
	LatestSuccess(ctx context.Context, jobType string) (*aggregation.LogEntry, error)
}

// Service assembles ranking and chart responses. Reads go through Redis with
// period-scoped TTLs; the database is only hit on a miss.
type Service struct {
	store  Store
	cache  Cacher
	jobs   JobLog
	aggCfg config.AggregationConfig
	clock  parkcal.Clock
}

// NewService creates a rankings service.
func NewService(store Store, cache Cacher, jobs JobLog, cfg *config.Config, clock parkcal.Clock) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		jobs:   jobs,
		aggCfg: cfg.Aggregation,
		clock:  clock,
	}
}

func cacheTTL(period Period) time.Duration {
	switch period {
	case PeriodLive:
		return time.Minute
	case PeriodToday:
		return 5 * time.Minute
	default:
		return 30 * time.Minute
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultLimit
	}
	return limit
}

// ParkRankings returns parks ranked for a period.
func (s *Service) ParkRankings(ctx context.Context, period Period, filter Filter, sortBy SortBy, limit int) (*RankingResponse, error) {
	limit = clampLimit(limit)
	key := fmt.Sprintf("rankings:parks:%s:%s:%s:%d", period, filter, sortBy, limit)

	resp := &RankingResponse{}
	err := s.cache.GetOrSet(ctx, key, cacheTTL(period), resp, func() (interface{}, error) {
		return s.buildParkRankings(ctx, period, filter, sortBy, limit)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Service) buildParkRankings(ctx context.Context, period Period, filter Filter, sortBy SortBy, limit int) (*RankingResponse, error) {
	parks, err := s.store.ListParks(ctx, filter)
	if err != nil {
		return nil, err
	}

	var entries []*ParkRanking
	switch period {
	case PeriodLive:
		entries, err = s.liveEntries(ctx, parks, filter)
	case PeriodToday:
		entries, err = s.todayEntries(ctx, parks, filter)
	case PeriodYesterday:
		entries, err = s.aggregateEntries(ctx, parks, filter, period)
	default:
		entries, err = s.aggregateEntries(ctx, parks, filter, period)
	}
	if err != nil {
		return nil, err
	}

	sortEntries(entries, sortBy)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i, e := range entries {
		e.Rank = i + 1
	}
	if entries == nil {
		entries = []*ParkRanking{}
	}

	return &RankingResponse{
		Success:     true,
		Period:      period,
		Filter:      filter,
		SortBy:      sortBy,
		Stale:       s.isStale(ctx, period),
		GeneratedAt: s.clock.Now().UTC(),
		Data:        entries,
		Attribution: DefaultAttribution,
	}, nil
}

func (s *Service) liveEntries(ctx context.Context, parks []*snapshots.Park, filter Filter) ([]*ParkRanking, error) {
	live, err := s.store.LiveRows(ctx, filter)
	if err != nil {
		return nil, err
	}
	down, err := s.store.LiveRidesDown(ctx)
	if err != nil {
		return nil, err
	}
	// Downtime accumulated so far today gives the live view its hour totals.
	hourly, err := s.store.TodayHourly(ctx, filter)
	if err != nil {
		return nil, err
	}

	var entries []*ParkRanking
	for _, park := range parks {
		row, ok := live[park.ID]
		if !ok || !row.AppearsOpen {
			continue
		}
		ridesDown := down[park.ID]
		entry := newParkRanking(park)
		entry.ShameScore = shame.Round1(row.ShameScore)
		entry.RidesDown = ridesDown
		entry.RidesOperating = row.RidesOpen
		entry.UptimePercentage = uptimePct(row.RidesOpen, ridesDown)
		if h, ok := hourly[park.ID]; ok {
			entry.TotalDowntimeHours = shame.Round2(h.TotalDowntimeHours)
			entry.WeightedDowntimeHours = shame.Round2(h.WeightedDowntimeHours)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// todayEntries averages per-hour shame means for the local day so far. The
// fast path reads complete hours from the hourly aggregate and folds in the
// current hour from raw snapshots; the slow path reads raw only.
func (s *Service) todayEntries(ctx context.Context, parks []*snapshots.Park, filter Filter) ([]*ParkRanking, error) {
	if !s.aggCfg.UseAggregates {
		rows, err := s.store.TodayRaw(ctx, filter)
		if err != nil {
			return nil, err
		}
		return s.entriesFromRows(parks, rows, true), nil
	}

	hourly, err := s.store.TodayHourly(ctx, filter)
	if err != nil {
		return nil, err
	}
	partial, err := s.store.TodayPartialHour(ctx, filter)
	if err != nil {
		return nil, err
	}

	var entries []*ParkRanking
	for _, park := range parks {
		row := hourly[park.ID]
		shameSum, units := 0.0, 0
		if row != nil {
			shameSum, units = row.ShameSum, row.OpenUnits
		}
		if p, ok := partial[park.ID]; ok {
			shameSum += p
			units++
		}
		if units == 0 {
			continue
		}
		score := shame.Round1(shameSum / float64(units))
		if score == 0 {
			continue
		}
		entry := newParkRanking(park)
		entry.ShameScore = score
		if row != nil {
			entry.TotalDowntimeHours = shame.Round2(row.TotalDowntimeHours)
			entry.WeightedDowntimeHours = shame.Round2(row.WeightedDowntimeHours)
			entry.RidesDown = row.RidesDown
			entry.RidesOperating = row.RidesOperating
			entry.UptimePercentage = uptimePct(row.RidesOperating, row.RidesDown)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) aggregateEntries(ctx context.Context, parks []*snapshots.Park, filter Filter, period Period) ([]*ParkRanking, error) {
	var rows map[int]*PeriodRow
	var err error
	switch {
	case period == PeriodYesterday && !s.aggCfg.UseAggregates:
		rows, err = s.store.YesterdayRaw(ctx, filter)
	case period == PeriodYesterday:
		rows, err = s.store.YesterdayDaily(ctx, filter)
	default:
		rows, err = s.store.RangeDaily(ctx, filter, period.Days())
	}
	if err != nil {
		return nil, err
	}
	return s.entriesFromRows(parks, rows, false), nil
}

// entriesFromRows turns window sums into ranking entries. excludeZero drops
// parks with a zero score, which TODAY does and completed periods do not.
func (s *Service) entriesFromRows(parks []*snapshots.Park, rows map[int]*PeriodRow, excludeZero bool) []*ParkRanking {
	var entries []*ParkRanking
	for _, park := range parks {
		row, ok := rows[park.ID]
		if !ok {
			continue
		}
		score := 0.0
		if row.OpenUnits > 0 {
			score = shame.Round1(row.ShameSum / float64(row.OpenUnits))
		}
		if excludeZero && score == 0 {
			continue
		}
		entry := newParkRanking(park)
		entry.ShameScore = score
		entry.TotalDowntimeHours = shame.Round2(row.TotalDowntimeHours)
		entry.WeightedDowntimeHours = shame.Round2(row.WeightedDowntimeHours)
		entry.RidesDown = row.RidesDown
		entry.RidesOperating = row.RidesOperating
		entry.UptimePercentage = uptimePct(row.RidesOperating, row.RidesDown)
		entries = append(entries, entry)
	}
	return entries
}

func newParkRanking(park *snapshots.Park) *ParkRanking {
	return &ParkRanking{
		ParkID:      park.ID,
		Name:        park.Name,
		Location:    park.Location(),
		IsDisney:    park.IsDisney,
		IsUniversal: park.IsUniversal,
	}
}

func uptimePct(operating, down int) float64 {
	total := operating + down
	if total == 0 {
		return 0
	}
	return shame.Round1(float64(operating) / float64(total) * 100)
}

// sortEntries orders by the requested key, then shame, then downtime, then
// park id. The id tie-break keeps pagination stable across refreshes.
func sortEntries(entries []*ParkRanking, sortBy SortBy) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if sortBy == SortByDowntime && a.TotalDowntimeHours != b.TotalDowntimeHours {
			return a.TotalDowntimeHours > b.TotalDowntimeHours
		}
		if a.ShameScore != b.ShameScore {
			return a.ShameScore > b.ShameScore
		}
		if a.TotalDowntimeHours != b.TotalDowntimeHours {
			return a.TotalDowntimeHours > b.TotalDowntimeHours
		}
		return a.ParkID < b.ParkID
	})
}

// RideRankings returns rides ranked by downtime for a period.
func (s *Service) RideRankings(ctx context.Context, period Period, filter Filter, limit int) (*RankingResponse, error) {
	limit = clampLimit(limit)
	key := fmt.Sprintf("rankings:rides:%s:%s:%d", period, filter, limit)

	resp := &RankingResponse{}
	err := s.cache.GetOrSet(ctx, key, cacheTTL(period), resp, func() (interface{}, error) {
		return s.buildRideRankings(ctx, period, filter, limit)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Service) buildRideRankings(ctx context.Context, period Period, filter Filter, limit int) (*RankingResponse, error) {
	var rows []*RideRow
	var err error
	switch period {
	case PeriodLive, PeriodToday:
		rows, err = s.store.RideRowsToday(ctx, filter, limit)
	case PeriodYesterday:
		rows, err = s.store.RideRowsRange(ctx, filter, 1, limit)
	default:
		rows, err = s.store.RideRowsRange(ctx, filter, period.Days(), limit)
	}
	if err != nil {
		return nil, err
	}

	entries := make([]*RideRanking, 0, len(rows))
	for i, row := range rows {
		entry := &RideRanking{
			Rank:             i + 1,
			RideID:           row.RideID,
			Name:             row.Name,
			ParkID:           row.ParkID,
			ParkName:         row.ParkName,
			Tier:             row.Tier,
			DowntimeHours:    shame.Round2(row.DowntimeHours),
			UptimePercentage: row.UptimePercentage,
		}
		if row.CurrentStatus != nil {
			entry.CurrentStatus = *row.CurrentStatus
		}
		entries = append(entries, entry)
	}

	return &RankingResponse{
		Success:     true,
		Period:      period,
		Filter:      filter,
		SortBy:      SortByDowntime,
		Stale:       s.isStale(ctx, period),
		GeneratedAt: s.clock.Now().UTC(),
		Data:        entries,
		Attribution: DefaultAttribution,
	}, nil
}

// isStale reports whether the aggregates backing a period have missed their
// freshness SLA. LIVE reads raw snapshots and is never stale.
func (s *Service) isStale(ctx context.Context, period Period) bool {
	var jobType string
	switch period {
	case PeriodLive:
		return false
	case PeriodToday:
		if !s.aggCfg.UseAggregates {
			return false
		}
		jobType = aggregation.JobHourly
	default:
		jobType = aggregation.JobDaily
	}

	entry, err := s.jobs.LatestSuccess(ctx, jobType)
	if err != nil || entry == nil || entry.FinishedAt == nil {
		return true
	}
	return s.clock.Now().Sub(*entry.FinishedAt) > s.aggCfg.StaleSLA()
}

// ParkChart returns one park's shame time series for a period.
func (s *Service) ParkChart(ctx context.Context, parkID int, period Period) (*ChartResponse, error) {
	park, err := s.store.GetPark(ctx, parkID)
	if err != nil {
		return nil, err
	}
	if park == nil {
		return nil, ErrParkNotFound
	}

	key := fmt.Sprintf("rankings:chart:%d:%s", parkID, period)
	resp := &ChartResponse{}
	err = s.cache.GetOrSet(ctx, key, cacheTTL(period), resp, func() (interface{}, error) {
		return s.buildChart(ctx, park, period)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Service) buildChart(ctx context.Context, park *snapshots.Park, period Period) (*ChartResponse, error) {
	loc, err := parkcal.LocationFor(park.Timezone)
	if err != nil {
		return nil, err
	}

	switch period {
	case PeriodLive:
		points, err := s.store.ChartLive(ctx, park.ID)
		if err != nil {
			return nil, err
		}
		return chartFromPoints(points, GranularityMinutes, loc, "15:04"), nil

	case PeriodToday, PeriodYesterday:
		day := parkcal.LocalDate(s.clock.Now(), loc)
		if period == PeriodYesterday {
			day = parkcal.DaysAgo(day, 1)
		}
		// Charted hours run 06:00 to 23:00 local; overnight hours are noise.
		start := time.Date(day.Year(), day.Month(), day.Day(), 6, 0, 0, 0, loc).UTC()
		end := time.Date(day.Year(), day.Month(), day.Day(), 23, 0, 0, 0, loc).UTC()
		points, err := s.store.ChartHourly(ctx, park.ID, start, end)
		if err != nil {
			return nil, err
		}
		return chartFromPoints(points, GranularityHourly, loc, "15:00"), nil

	default:
		points, err := s.store.ChartDaily(ctx, park.ID, period.Days())
		if err != nil {
			return nil, err
		}
		// stat_date scans as UTC midnight; formatting in the park's zone
		// would shift it to the previous day.
		return chartFromPoints(points, GranularityDaily, time.UTC, "Jan 2"), nil
	}
}

func chartFromPoints(points []*ChartPoint, granularity string, loc *time.Location, layout string) *ChartResponse {
	resp := &ChartResponse{
		Labels:      make([]string, 0, len(points)),
		Data:        make([]float64, 0, len(points)),
		RidesDown:   make([]int, 0, len(points)),
		AvgWait:     make([]*float64, 0, len(points)),
		Granularity: granularity,
		Attribution: DefaultAttribution,
	}
	sum := 0.0
	for _, p := range points {
		resp.Labels = append(resp.Labels, p.At.In(loc).Format(layout))
		resp.Data = append(resp.Data, p.ShameScore)
		resp.RidesDown = append(resp.RidesDown, p.RidesDown)
		resp.AvgWait = append(resp.AvgWait, p.AvgWait)
		sum += p.ShameScore
	}
	if len(points) > 0 {
		resp.Average = shame.Round1(sum / float64(len(points)))
	}
	return resp
}

// ParkDetail returns one park with its ride list and latest statuses.
func (s *Service) ParkDetail(ctx context.Context, parkID int) (*snapshots.Park, []*RideRow, error) {
	park, err := s.store.GetPark(ctx, parkID)
	if err != nil {
		return nil, nil, err
	}
	if park == nil {
		return nil, nil, ErrParkNotFound
	}
	rides, err := s.store.ListRides(ctx, parkID)
	if err != nil {
		return nil, nil, err
	}
	return park, rides, nil
}
