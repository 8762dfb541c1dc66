package aggregation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles database access for aggregate tables
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new aggregation repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// UpsertRideHourly writes one ride-hour row, idempotently.
func (r *Repository) UpsertRideHourly(ctx context.Context, s *RideHourlyStat) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO ride_hourly_stats (
			ride_id, park_id, hour_start_utc, snapshot_count, operating_snapshots,
			down_snapshots, downtime_hours, uptime_percentage, avg_wait_time,
			ride_operated, metrics_version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (ride_id, hour_start_utc) DO UPDATE SET
			snapshot_count = EXCLUDED.snapshot_count,
			operating_snapshots = EXCLUDED.operating_snapshots,
			down_snapshots = EXCLUDED.down_snapshots,
			downtime_hours = EXCLUDED.downtime_hours,
			uptime_percentage = EXCLUDED.uptime_percentage,
			avg_wait_time = EXCLUDED.avg_wait_time,
			ride_operated = EXCLUDED.ride_operated,
			metrics_version = EXCLUDED.metrics_version,
			updated_at = NOW()`,
		s.RideID, s.ParkID, s.HourStartUTC, s.SnapshotCount, s.OperatingSnapshots,
		s.DownSnapshots, s.DowntimeHours, s.UptimePercentage, s.AvgWaitTime,
		s.RideOperated, s.MetricsVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert ride hourly stat: %w", err)
	}
	return nil
}

// UpsertParkHourly writes one park-hour row, idempotently.
func (r *Repository) UpsertParkHourly(ctx context.Context, s *ParkHourlyStat) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO park_hourly_stats (
			park_id, hour_start_utc, shame_score, total_downtime_hours,
			weighted_downtime_hours, effective_park_weight, rides_operating,
			rides_down, park_was_open, snapshot_count, metrics_version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (park_id, hour_start_utc) DO UPDATE SET
			shame_score = EXCLUDED.shame_score,
			total_downtime_hours = EXCLUDED.total_downtime_hours,
			weighted_downtime_hours = EXCLUDED.weighted_downtime_hours,
			effective_park_weight = EXCLUDED.effective_park_weight,
			rides_operating = EXCLUDED.rides_operating,
			rides_down = EXCLUDED.rides_down,
			park_was_open = EXCLUDED.park_was_open,
			snapshot_count = EXCLUDED.snapshot_count,
			metrics_version = EXCLUDED.metrics_version,
			updated_at = NOW()`,
		s.ParkID, s.HourStartUTC, s.ShameScore, s.TotalDowntimeHours,
		s.WeightedDowntimeHours, s.EffectiveParkWeight, s.RidesOperating,
		s.RidesDown, s.ParkWasOpen, s.SnapshotCount, s.MetricsVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert park hourly stat: %w", err)
	}
	return nil
}

// UpsertRideDaily writes one ride-day row, idempotently.
func (r *Repository) UpsertRideDaily(ctx context.Context, s *RideDailyStat) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO ride_daily_stats (
			ride_id, park_id, stat_date, snapshot_count, uptime_minutes,
			downtime_minutes, operating_hours_minutes, uptime_percentage,
			min_wait_time, avg_wait_time, max_wait_time, peak_wait_time,
			status_changes, longest_downtime_minutes, ride_operated,
			metrics_version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
		ON CONFLICT (ride_id, stat_date) DO UPDATE SET
			snapshot_count = EXCLUDED.snapshot_count,
			uptime_minutes = EXCLUDED.uptime_minutes,
			downtime_minutes = EXCLUDED.downtime_minutes,
			operating_hours_minutes = EXCLUDED.operating_hours_minutes,
			uptime_percentage = EXCLUDED.uptime_percentage,
			min_wait_time = EXCLUDED.min_wait_time,
			avg_wait_time = EXCLUDED.avg_wait_time,
			max_wait_time = EXCLUDED.max_wait_time,
			peak_wait_time = EXCLUDED.peak_wait_time,
			status_changes = EXCLUDED.status_changes,
			longest_downtime_minutes = EXCLUDED.longest_downtime_minutes,
			ride_operated = EXCLUDED.ride_operated,
			metrics_version = EXCLUDED.metrics_version,
			updated_at = NOW()`,
		s.RideID, s.ParkID, s.StatDate, s.SnapshotCount, s.UptimeMinutes,
		s.DowntimeMinutes, s.OperatingHoursMinutes, s.UptimePercentage,
		s.MinWaitTime, s.AvgWaitTime, s.MaxWaitTime, s.PeakWaitTime,
		s.StatusChanges, s.LongestDowntimeMinutes, s.RideOperated,
		s.MetricsVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert ride daily stat: %w", err)
	}
	return nil
}

// UpsertParkDaily writes one park-day row, idempotently.
func (r *Repository) UpsertParkDaily(ctx context.Context, s *ParkDailyStat) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO park_daily_stats (
			park_id, stat_date, shame_score, total_downtime_hours,
			weighted_downtime_hours, effective_park_weight, rides_tracked,
			rides_with_downtime, avg_wait_time, status_changes,
			longest_downtime_minutes, park_was_open, snapshot_count,
			metrics_version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (park_id, stat_date) DO UPDATE SET
			shame_score = EXCLUDED.shame_score,
			total_downtime_hours = EXCLUDED.total_downtime_hours,
			weighted_downtime_hours = EXCLUDED.weighted_downtime_hours,
			effective_park_weight = EXCLUDED.effective_park_weight,
			rides_tracked = EXCLUDED.rides_tracked,
			rides_with_downtime = EXCLUDED.rides_with_downtime,
			avg_wait_time = EXCLUDED.avg_wait_time,
			status_changes = EXCLUDED.status_changes,
			longest_downtime_minutes = EXCLUDED.longest_downtime_minutes,
			park_was_open = EXCLUDED.park_was_open,
			snapshot_count = EXCLUDED.snapshot_count,
			metrics_version = EXCLUDED.metrics_version,
			updated_at = NOW()`,
		s.ParkID, s.StatDate, s.ShameScore, s.TotalDowntimeHours,
		s.WeightedDowntimeHours, s.EffectiveParkWeight, s.RidesTracked,
		s.RidesWithDowntime, s.AvgWaitTime, s.StatusChanges,
		s.LongestDowntimeMinutes, s.ParkWasOpen, s.SnapshotCount,
		s.MetricsVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert park daily stat: %w", err)
	}
	return nil
}

// UpsertOperatingSession writes one park-day operating session, idempotently.
func (r *Repository) UpsertOperatingSession(ctx context.Context, s *OperatingSession) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO park_operating_sessions (
			park_id, local_date, first_open_utc, last_open_utc, operating_minutes, updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (park_id, local_date) DO UPDATE SET
			first_open_utc = EXCLUDED.first_open_utc,
			last_open_utc = EXCLUDED.last_open_utc,
			operating_minutes = EXCLUDED.operating_minutes,
			updated_at = NOW()`,
		s.ParkID, s.LocalDate, s.FirstOpenUTC, s.LastOpenUTC, s.OperatingMinutes,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert operating session: %w", err)
	}
	return nil
}

// UpsertRideWeekly writes one ride-week rollup, idempotently.
func (r *Repository) UpsertRideWeekly(ctx context.Context, s *RideWeeklyStat) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO ride_weekly_stats (
			ride_id, park_id, iso_year, iso_week, week_start, uptime_minutes,
			downtime_minutes, operating_hours_minutes, uptime_percentage,
			avg_wait_time, days_operated, trend_vs_previous, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (ride_id, iso_year, iso_week) DO UPDATE SET
			week_start = EXCLUDED.week_start,
			uptime_minutes = EXCLUDED.uptime_minutes,
			downtime_minutes = EXCLUDED.downtime_minutes,
			operating_hours_minutes = EXCLUDED.operating_hours_minutes,
			uptime_percentage = EXCLUDED.uptime_percentage,
			avg_wait_time = EXCLUDED.avg_wait_time,
			days_operated = EXCLUDED.days_operated,
			trend_vs_previous = EXCLUDED.trend_vs_previous,
			updated_at = NOW()`,
		s.RideID, s.ParkID, s.ISOYear, s.ISOWeek, s.WeekStart, s.UptimeMinutes,
		s.DowntimeMinutes, s.OperatingHoursMinutes, s.UptimePercentage,
		s.AvgWaitTime, s.DaysOperated, s.TrendVsPrevious,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert ride weekly stat: %w", err)
	}
	return nil
}

// UpsertParkWeekly writes one park-week rollup, idempotently.
func (r *Repository) UpsertParkWeekly(ctx context.Context, s *ParkWeeklyStat) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO park_weekly_stats (
			park_id, iso_year, iso_week, week_start, avg_shame_score,
			total_downtime_hours, weighted_downtime_hours, days_open,
			trend_vs_previous, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (park_id, iso_year, iso_week) DO UPDATE SET
			week_start = EXCLUDED.week_start,
			avg_shame_score = EXCLUDED.avg_shame_score,
			total_downtime_hours = EXCLUDED.total_downtime_hours,
			weighted_downtime_hours = EXCLUDED.weighted_downtime_hours,
			days_open = EXCLUDED.days_open,
			trend_vs_previous = EXCLUDED.trend_vs_previous,
			updated_at = NOW()`,
		s.ParkID, s.ISOYear, s.ISOWeek, s.WeekStart, s.AvgShameScore,
		s.TotalDowntimeHours, s.WeightedDowntimeHours, s.DaysOpen,
		s.TrendVsPrevious,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert park weekly stat: %w", err)
	}
	return nil
}

// UpsertParkMonthly writes one park-month rollup, idempotently.
func (r *Repository) UpsertParkMonthly(ctx context.Context, s *ParkMonthlyStat) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO park_monthly_stats (
			park_id, month_start, avg_shame_score, total_downtime_hours,
			weighted_downtime_hours, days_open, trend_vs_previous, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (park_id, month_start) DO UPDATE SET
			avg_shame_score = EXCLUDED.avg_shame_score,
			total_downtime_hours = EXCLUDED.total_downtime_hours,
			weighted_downtime_hours = EXCLUDED.weighted_downtime_hours,
			days_open = EXCLUDED.days_open,
			trend_vs_previous = EXCLUDED.trend_vs_previous,
			updated_at = NOW()`,
		s.ParkID, s.MonthStart, s.AvgShameScore, s.TotalDowntimeHours,
		s.WeightedDowntimeHours, s.DaysOpen, s.TrendVsPrevious,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert park monthly stat: %w", err)
	}
	return nil
}

// GetRideWeekly reads one ride-week rollup, or nil when absent.
func (r *Repository) GetRideWeekly(ctx context.Context, rideID, isoYear, isoWeek int) (*RideWeeklyStat, error) {
	s := &RideWeeklyStat{}
	err := r.db.QueryRow(ctx, `
		SELECT ride_id, park_id, iso_year, iso_week, week_start, uptime_minutes,
		       downtime_minutes, operating_hours_minutes, uptime_percentage,
		       avg_wait_time, days_operated, trend_vs_previous
		FROM ride_weekly_stats
		WHERE ride_id = $1 AND iso_year = $2 AND iso_week = $3`,
		rideID, isoYear, isoWeek,
	).Scan(
		&s.RideID, &s.ParkID, &s.ISOYear, &s.ISOWeek, &s.WeekStart,
		&s.UptimeMinutes, &s.DowntimeMinutes, &s.OperatingHoursMinutes,
		&s.UptimePercentage, &s.AvgWaitTime, &s.DaysOperated, &s.TrendVsPrevious,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ride weekly stat: %w", err)
	}
	return s, nil
}

// GetParkWeekly reads one park-week rollup, or nil when absent.
func (r *Repository) GetParkWeekly(ctx context.Context, parkID, isoYear, isoWeek int) (*ParkWeeklyStat, error) {
	s := &ParkWeeklyStat{}
	err := r.db.QueryRow(ctx, `
		SELECT park_id, iso_year, iso_week, week_start, avg_shame_score,
		       total_downtime_hours, weighted_downtime_hours, days_open, trend_vs_previous
		FROM park_weekly_stats
		WHERE park_id = $1 AND iso_year = $2 AND iso_week = $3`,
		parkID, isoYear, isoWeek,
	).Scan(
		&s.ParkID, &s.ISOYear, &s.ISOWeek, &s.WeekStart, &s.AvgShameScore,
		&s.TotalDowntimeHours, &s.WeightedDowntimeHours, &s.DaysOpen,
		&s.TrendVsPrevious,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get park weekly stat: %w", err)
	}
	return s, nil
}

// GetParkMonthly reads one park-month rollup, or nil when absent.
func (r *Repository) GetParkMonthly(ctx context.Context, parkID int, monthStart time.Time) (*ParkMonthlyStat, error) {
	s := &ParkMonthlyStat{}
	err := r.db.QueryRow(ctx, `
		SELECT park_id, month_start, avg_shame_score, total_downtime_hours,
		       weighted_downtime_hours, days_open, trend_vs_previous
		FROM park_monthly_stats
		WHERE park_id = $1 AND month_start = $2`,
		parkID, monthStart,
	).Scan(
		&s.ParkID, &s.MonthStart, &s.AvgShameScore, &s.TotalDowntimeHours,
		&s.WeightedDowntimeHours, &s.DaysOpen, &s.TrendVsPrevious,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get park monthly stat: %w", err)
	}
	return s, nil
}

// RideDailyRange reads ride daily rows for one park over [start, end].
func (r *Repository) RideDailyRange(ctx context.Context, parkID int, start, end time.Time) ([]*RideDailyStat, error) {
	rows, err := r.db.Query(ctx, `
		SELECT ride_id, park_id, stat_date, snapshot_count, uptime_minutes,
		       downtime_minutes, operating_hours_minutes, uptime_percentage,
		       min_wait_time, avg_wait_time, max_wait_time, peak_wait_time,
		       status_changes, longest_downtime_minutes, ride_operated, metrics_version
		FROM ride_daily_stats
		WHERE park_id = $1 AND stat_date >= $2 AND stat_date <= $3
		ORDER BY ride_id, stat_date`,
		parkID, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ride daily stats: %w", err)
	}
	defer rows.Close()

	var stats []*RideDailyStat
	for rows.Next() {
		s := &RideDailyStat{}
		err := rows.Scan(
			&s.RideID, &s.ParkID, &s.StatDate, &s.SnapshotCount, &s.UptimeMinutes,
			&s.DowntimeMinutes, &s.OperatingHoursMinutes, &s.UptimePercentage,
			&s.MinWaitTime, &s.AvgWaitTime, &s.MaxWaitTime, &s.PeakWaitTime,
			&s.StatusChanges, &s.LongestDowntimeMinutes, &s.RideOperated,
			&s.MetricsVersion,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ride daily stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, nil
}

// ParkDailyRange reads park daily rows for one park over [start, end].
func (r *Repository) ParkDailyRange(ctx context.Context, parkID int, start, end time.Time) ([]*ParkDailyStat, error) {
	rows, err := r.db.Query(ctx, `
		SELECT park_id, stat_date, shame_score, total_downtime_hours,
		       weighted_downtime_hours, effective_park_weight, rides_tracked,
		       rides_with_downtime, avg_wait_time, status_changes,
		       longest_downtime_minutes, park_was_open, snapshot_count, metrics_version
		FROM park_daily_stats
		WHERE park_id = $1 AND stat_date >= $2 AND stat_date <= $3
		ORDER BY stat_date`,
		parkID, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query park daily stats: %w", err)
	}
	defer rows.Close()

	var stats []*ParkDailyStat
	for rows.Next() {
		s := &ParkDailyStat{}
		err := rows.Scan(
			&s.ParkID, &s.StatDate, &s.ShameScore, &s.TotalDowntimeHours,
			&s.WeightedDowntimeHours, &s.EffectiveParkWeight, &s.RidesTracked,
			&s.RidesWithDowntime, &s.AvgWaitTime, &s.StatusChanges,
			&s.LongestDowntimeMinutes, &s.ParkWasOpen, &s.SnapshotCount,
			&s.MetricsVersion,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan park daily stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, nil
}

// RideHourlyRange reads ride hourly rows for one park over [start, end).
func (r *Repository) RideHourlyRange(ctx context.Context, parkID int, start, end time.Time) ([]*RideHourlyStat, error) {
	rows, err := r.db.Query(ctx, `
		SELECT ride_id, park_id, hour_start_utc, snapshot_count,
		       operating_snapshots, down_snapshots, downtime_hours,
		       uptime_percentage, avg_wait_time, ride_operated, metrics_version
		FROM ride_hourly_stats
		WHERE park_id = $1 AND hour_start_utc >= $2 AND hour_start_utc < $3
		ORDER BY ride_id, hour_start_utc`,
		parkID, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ride hourly stats: %w", err)
	}
	defer rows.Close()

	var stats []*RideHourlyStat
	for rows.Next() {
		s := &RideHourlyStat{}
		err := rows.Scan(
			&s.RideID, &s.ParkID, &s.HourStartUTC, &s.SnapshotCount,
			&s.OperatingSnapshots, &s.DownSnapshots, &s.DowntimeHours,
			&s.UptimePercentage, &s.AvgWaitTime, &s.RideOperated,
			&s.MetricsVersion,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ride hourly stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, nil
}

// ParkHourlyRange reads park hourly rows for one park over [start, end).
func (r *Repository) ParkHourlyRange(ctx context.Context, parkID int, start, end time.Time) ([]*ParkHourlyStat, error) {
	rows, err := r.db.Query(ctx, `
		SELECT park_id, hour_start_utc, shame_score, total_downtime_hours,
		       weighted_downtime_hours, effective_park_weight, rides_operating,
		       rides_down, park_was_open, snapshot_count, metrics_version
		FROM park_hourly_stats
		WHERE park_id = $1 AND hour_start_utc >= $2 AND hour_start_utc < $3
		ORDER BY hour_start_utc`,
		parkID, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query park hourly stats: %w", err)
	}
	defer rows.Close()

	var stats []*ParkHourlyStat
	for rows.Next() {
		s := &ParkHourlyStat{}
		err := rows.Scan(
			&s.ParkID, &s.HourStartUTC, &s.ShameScore, &s.TotalDowntimeHours,
			&s.WeightedDowntimeHours, &s.EffectiveParkWeight, &s.RidesOperating,
			&s.RidesDown, &s.ParkWasOpen, &s.SnapshotCount, &s.MetricsVersion,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan park hourly stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, nil
}
