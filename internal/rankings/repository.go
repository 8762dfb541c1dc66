package rankings

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/queuetimes/parkpulse/internal/shame"
	"github.com/queuetimes/parkpulse/internal/snapshots"
)

// localMidnightSQL is the UTC instant of the park's current local midnight.
// Requires the parks table aliased as p.
const localMidnightSQL = `(date_trunc('day', NOW() AT TIME ZONE p.timezone) AT TIME ZONE p.timezone)`

// localYesterdaySQL is the UTC instant of the park's previous local midnight.
const localYesterdaySQL = `(` + localMidnightSQL + ` - INTERVAL '1 day')`

// Repository answers period queries over raw snapshots and aggregate tables.
// The park-type-aware down predicate and the park-open fallback come from
// the canonical fragments in the shame package; no query writes its own.
type Repository struct {
	db        *pgxpool.Pool
	operators []string
	interval  int // snapshot cadence, minutes
}

// NewRepository creates a rankings repository. operators lists non-Disney
// operators that use Disney-style DOWN semantics; intervalMinutes is the
// collector cadence the raw paths use to turn snapshot counts into minutes.
func NewRepository(db *pgxpool.Pool, similarOperators []string, intervalMinutes int) *Repository {
	return &Repository{db: db, operators: similarOperators, interval: intervalMinutes}
}

func filterSQL(filter Filter) string {
	if filter == FilterDisneyUniversal {
		return " AND (p.is_disney OR p.is_universal)"
	}
	return ""
}

// ListParks returns the active parks matching a filter.
func (r *Repository) ListParks(ctx context.Context, filter Filter) ([]*snapshots.Park, error) {
	query := `
		SELECT p.id, p.external_id, p.name, p.city, p.state, p.country,
		       p.timezone, p.operator, p.is_disney, p.is_universal, p.is_active,
		       p.created_at, p.updated_at
		FROM parks p
		WHERE p.is_active` + filterSQL(filter) + `
		ORDER BY p.name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list parks: %w", err)
	}
	defer rows.Close()

	var parks []*snapshots.Park
	for rows.Next() {
		p := &snapshots.Park{}
		err := rows.Scan(
			&p.ID, &p.ExternalID, &p.Name, &p.City, &p.State, &p.Country,
			&p.Timezone, &p.Operator, &p.IsDisney, &p.IsUniversal, &p.IsActive,
			&p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan park: %w", err)
		}
		parks = append(parks, p)
	}
	return parks, nil
}

// LiveRow is one park's most recent observation.
type LiveRow struct {
	ParkID      int
	RecordedAt  time.Time
	ShameScore  float64
	RidesOpen   int
	RidesClosed int
	AppearsOpen bool
}

// LiveRows returns each park's latest activity snapshot from the last hour.
func (r *Repository) LiveRows(ctx context.Context, filter Filter) (map[int]*LiveRow, error) {
	query := `
		SELECT DISTINCT ON (pas.park_id)
		       pas.park_id, pas.recorded_at, pas.shame_score,
		       pas.rides_open, pas.rides_closed, ` + shame.ParkOpenFallbackSQL + `
		FROM park_activity_snapshots pas
		JOIN parks p ON p.id = pas.park_id
		WHERE p.is_active
		  AND pas.recorded_at > NOW() - INTERVAL '60 minutes'` + filterSQL(filter) + `
		ORDER BY pas.park_id, pas.recorded_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query live rows: %w", err)
	}
	defer rows.Close()

	out := make(map[int]*LiveRow)
	for rows.Next() {
		row := &LiveRow{}
		err := rows.Scan(&row.ParkID, &row.RecordedAt, &row.ShameScore,
			&row.RidesOpen, &row.RidesClosed, &row.AppearsOpen)
		if err != nil {
			return nil, fmt.Errorf("failed to scan live row: %w", err)
		}
		out[row.ParkID] = row
	}
	return out, nil
}

// LiveRidesDown counts currently-down rides per park using each ride's
// latest snapshot and the park-type-aware predicate.
func (r *Repository) LiveRidesDown(ctx context.Context) (map[int]int, error) {
	query := `
		SELECT rss.park_id, COUNT(*)
		FROM (
			SELECT DISTINCT ON (ride_id) ride_id, park_id, status, computed_is_open, recorded_at
			FROM ride_status_snapshots
			WHERE recorded_at > NOW() - INTERVAL '60 minutes'
			ORDER BY ride_id, recorded_at DESC
		) rss
		JOIN parks p ON p.id = rss.park_id
		WHERE ` + shame.WithOperatorsParam(shame.DownConditionSQL, "$1") + `
		GROUP BY rss.park_id`

	rows, err := r.db.Query(ctx, query, r.operators)
	if err != nil {
		return nil, fmt.Errorf("failed to query live rides down: %w", err)
	}
	defer rows.Close()

	out := make(map[int]int)
	for rows.Next() {
		var parkID, count int
		if err := rows.Scan(&parkID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan live rides down: %w", err)
		}
		out[parkID] = count
	}
	return out, nil
}

// PeriodRow is one park's aggregate over a query window, before ranking.
type PeriodRow struct {
	ParkID                int
	ShameSum              float64 // sum of per-window-unit means
	OpenUnits             int     // hours or days with the park open
	TotalDowntimeHours    float64
	WeightedDowntimeHours float64
	RidesDown             int
	RidesOperating        int
	UptimePercentage      float64
}

// TodayHourly returns per-park sums over today's complete local hours from
// the hourly aggregate (fast path).
func (r *Repository) TodayHourly(ctx context.Context, filter Filter) (map[int]*PeriodRow, error) {
	query := `
		SELECT phs.park_id,
		       COALESCE(SUM(phs.shame_score) FILTER (WHERE phs.park_was_open), 0),
		       COUNT(*) FILTER (WHERE phs.park_was_open),
		       COALESCE(SUM(phs.total_downtime_hours), 0),
		       COALESCE(SUM(phs.weighted_downtime_hours), 0),
		       COALESCE(MAX(phs.rides_down), 0),
		       COALESCE(MAX(phs.rides_operating), 0)
		FROM park_hourly_stats phs
		JOIN parks p ON p.id = phs.park_id
		WHERE p.is_active
		  AND phs.hour_start_utc >= ` + localMidnightSQL + `
		  AND phs.hour_start_utc < date_trunc('hour', NOW())` + filterSQL(filter) + `
		GROUP BY phs.park_id`

	return r.scanPeriodRows(ctx, query)
}

// TodayPartialHour returns the mean stamped shame of the current incomplete
// hour from raw snapshots, so TODAY readers never wait for the aggregator.
func (r *Repository) TodayPartialHour(ctx context.Context, filter Filter) (map[int]float64, error) {
	query := `
		SELECT pas.park_id, AVG(pas.shame_score)
		FROM park_activity_snapshots pas
		JOIN parks p ON p.id = pas.park_id
		WHERE p.is_active
		  AND pas.recorded_at >= date_trunc('hour', NOW())
		  AND ` + shame.ParkOpenFallbackSQL + filterSQL(filter) + `
		GROUP BY pas.park_id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query partial hour: %w", err)
	}
	defer rows.Close()

	out := make(map[int]float64)
	for rows.Next() {
		var parkID int
		var avg float64
		if err := rows.Scan(&parkID, &avg); err != nil {
			return nil, fmt.Errorf("failed to scan partial hour: %w", err)
		}
		out[parkID] = avg
	}
	return out, nil
}

// TodayRaw computes TODAY entirely from raw snapshots (slow path). The mean
// is over stamped per-cycle scores with the park open, which the fast path
// approximates with hourly means.
func (r *Repository) TodayRaw(ctx context.Context, filter Filter) (map[int]*PeriodRow, error) {
	return r.rawPeriodRows(ctx, filter, localMidnightSQL, `NOW()`)
}

// YesterdayRaw recomputes the previous full local day from raw snapshots,
// the fallback when the daily aggregate is disabled or missing.
func (r *Repository) YesterdayRaw(ctx context.Context, filter Filter) (map[int]*PeriodRow, error) {
	return r.rawPeriodRows(ctx, filter, localYesterdaySQL, localMidnightSQL)
}

// rawPeriodRows rebuilds one park window straight from snapshots: the score
// is the mean of stamped per-cycle values over open snapshots, downtime comes
// from the canonical down predicate joined cycle-by-cycle, and weights come
// from ride tiers. Down observations only count for rides with an operated
// signal inside the window, matching the aggregator's gate. startSQL and
// endSQL are SQL instants and may reference the parks alias p.
func (r *Repository) rawPeriodRows(ctx context.Context, filter Filter, startSQL, endSQL string) (map[int]*PeriodRow, error) {
	downCond := shame.WithOperatorsParam(shame.DownConditionSQL, "$1")
	query := `
		WITH scores AS (
			SELECT pas.park_id,
			       COALESCE(SUM(pas.shame_score) FILTER (WHERE ` + shame.ParkOpenFallbackSQL + `), 0) AS shame_sum,
			       COUNT(*) FILTER (WHERE ` + shame.ParkOpenFallbackSQL + `) AS open_units
			FROM park_activity_snapshots pas
			JOIN parks p ON p.id = pas.park_id
			WHERE p.is_active
			  AND pas.recorded_at >= ` + startSQL + `
			  AND pas.recorded_at < ` + endSQL + filterSQL(filter) + `
			GROUP BY pas.park_id
		),
		down AS (
			SELECT rss.park_id,
			       COUNT(*) AS down_snapshots,
			       SUM(` + shame.TierWeightSQL + `) AS down_weight,
			       COUNT(DISTINCT rss.ride_id) AS rides_down
			FROM ride_status_snapshots rss
			JOIN park_activity_snapshots pas ON ` + shame.MinuteBucketJoinSQL + `
			JOIN parks p ON p.id = rss.park_id
			JOIN rides ri ON ri.id = rss.ride_id
			WHERE p.is_active AND ri.is_active AND ri.category = 'ATTRACTION'
			  AND rss.recorded_at >= ` + startSQL + `
			  AND rss.recorded_at < ` + endSQL + `
			  AND ` + shame.ParkOpenFallbackSQL + `
			  AND ` + downCond + `
			  AND EXISTS (
			      SELECT 1 FROM ride_status_snapshots op
			      WHERE op.ride_id = rss.ride_id
			        AND op.recorded_at >= ` + startSQL + `
			        AND op.recorded_at < ` + endSQL + `
			        AND (op.computed_is_open
			             OR ((p.is_disney OR p.is_universal OR p.operator = ANY($1))
			                 AND op.status = 'DOWN'))
			  )` + filterSQL(filter) + `
			GROUP BY rss.park_id
		),
		operating AS (
			SELECT rss.park_id, COUNT(DISTINCT rss.ride_id) AS rides_operating
			FROM ride_status_snapshots rss
			JOIN parks p ON p.id = rss.park_id
			JOIN rides ri ON ri.id = rss.ride_id
			WHERE p.is_active AND ri.is_active AND ri.category = 'ATTRACTION'
			  AND rss.computed_is_open
			  AND rss.recorded_at >= ` + startSQL + `
			  AND rss.recorded_at < ` + endSQL + filterSQL(filter) + `
			GROUP BY rss.park_id
		)
		SELECT s.park_id, s.shame_sum, s.open_units,
		       COALESCE(ROUND(d.down_snapshots * $2 / 60.0, 2), 0),
		       COALESCE(ROUND(d.down_weight * $2 / 60.0, 2), 0),
		       COALESCE(d.rides_down, 0),
		       COALESCE(o.rides_operating, 0)
		FROM scores s
		LEFT JOIN down d ON d.park_id = s.park_id
		LEFT JOIN operating o ON o.park_id = s.park_id`

	return r.scanPeriodRows(ctx, query, r.operators, r.interval)
}

// YesterdayDaily returns each park's completed previous local day from the
// daily aggregate.
func (r *Repository) YesterdayDaily(ctx context.Context, filter Filter) (map[int]*PeriodRow, error) {
	query := `
		SELECT pds.park_id,
		       pds.shame_score,
		       CASE WHEN pds.park_was_open THEN 1 ELSE 0 END,
		       pds.total_downtime_hours,
		       pds.weighted_downtime_hours,
		       pds.rides_with_downtime,
		       pds.rides_tracked - pds.rides_with_downtime
		FROM park_daily_stats pds
		JOIN parks p ON p.id = pds.park_id
		WHERE p.is_active
		  AND pds.stat_date = ((NOW() AT TIME ZONE p.timezone)::date - 1)` + filterSQL(filter)

	return r.scanPeriodRows(ctx, query)
}

// RangeDaily returns per-park sums over the trailing n local days from the
// daily aggregate.
func (r *Repository) RangeDaily(ctx context.Context, filter Filter, days int) (map[int]*PeriodRow, error) {
	query := `
		SELECT pds.park_id,
		       COALESCE(SUM(pds.shame_score) FILTER (WHERE pds.park_was_open), 0),
		       COUNT(*) FILTER (WHERE pds.park_was_open),
		       COALESCE(SUM(pds.total_downtime_hours), 0),
		       COALESCE(SUM(pds.weighted_downtime_hours), 0),
		       COALESCE(MAX(pds.rides_with_downtime), 0),
		       COALESCE(MAX(pds.rides_tracked), 0)
		FROM park_daily_stats pds
		JOIN parks p ON p.id = pds.park_id
		WHERE p.is_active
		  AND pds.stat_date >= ((NOW() AT TIME ZONE p.timezone)::date - $1::int)
		  AND pds.stat_date < (NOW() AT TIME ZONE p.timezone)::date` + filterSQL(filter) + `
		GROUP BY pds.park_id`

	rows, err := r.db.Query(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query range daily: %w", err)
	}
	defer rows.Close()
	return scanPeriodRowSet(rows)
}

func (r *Repository) scanPeriodRows(ctx context.Context, query string, args ...interface{}) (map[int]*PeriodRow, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query period rows: %w", err)
	}
	defer rows.Close()
	return scanPeriodRowSet(rows)
}

type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
}

func scanPeriodRowSet(rows pgxRows) (map[int]*PeriodRow, error) {
	out := make(map[int]*PeriodRow)
	for rows.Next() {
		row := &PeriodRow{}
		err := rows.Scan(&row.ParkID, &row.ShameSum, &row.OpenUnits,
			&row.TotalDowntimeHours, &row.WeightedDowntimeHours,
			&row.RidesDown, &row.RidesOperating)
		if err != nil {
			return nil, fmt.Errorf("failed to scan period row: %w", err)
		}
		out[row.ParkID] = row
	}
	return out, nil
}

// RideRow is one ride's aggregate over a query window, before ranking.
type RideRow struct {
	RideID           int     `json:"id"`
	ParkID           int     `json:"park_id"`
	Name             string  `json:"name"`
	ParkName         string  `json:"park_name,omitempty"`
	Tier             *int    `json:"tier"`
	DowntimeHours    float64 `json:"downtime_hours"`
	UptimePercentage float64 `json:"uptime_percentage"`
	CurrentStatus    *string `json:"current_status,omitempty"`
}

// RideRowsToday returns per-ride downtime over today's local hours.
func (r *Repository) RideRowsToday(ctx context.Context, filter Filter, limit int) ([]*RideRow, error) {
	query := `
		SELECT rd.id, rd.park_id, rd.name, rd.park_name, rd.tier,
		       rd.downtime, rd.uptime, rd.status
		FROM (
			SELECT ri.id, ri.park_id, ri.name, p.name AS park_name, ri.tier,
			       COALESCE(SUM(rhs.downtime_hours), 0) AS downtime,
			       CASE WHEN SUM(rhs.operating_snapshots + rhs.down_snapshots) > 0
			            THEN ROUND(SUM(rhs.operating_snapshots)::numeric
			                 / SUM(rhs.operating_snapshots + rhs.down_snapshots) * 100, 1)
			            ELSE 0 END AS uptime,
			       (SELECT status FROM ride_status_snapshots
			        WHERE ride_id = ri.id ORDER BY recorded_at DESC LIMIT 1) AS status
			FROM rides ri
			JOIN parks p ON p.id = ri.park_id
			JOIN ride_hourly_stats rhs ON rhs.ride_id = ri.id
			WHERE ri.is_active AND p.is_active AND ri.category = 'ATTRACTION'
			  AND rhs.hour_start_utc >= ` + localMidnightSQL + filterSQL(filter) + `
			GROUP BY ri.id, ri.park_id, ri.name, p.name, ri.tier
		) rd
		WHERE rd.downtime > 0
		ORDER BY rd.downtime DESC, rd.id ASC
		LIMIT $1`

	return r.queryRideRows(ctx, query, limit)
}

// RideRowsRange returns per-ride downtime over the trailing n local days
// (n=1 is yesterday).
func (r *Repository) RideRowsRange(ctx context.Context, filter Filter, days, limit int) ([]*RideRow, error) {
	query := `
		SELECT ri.id, ri.park_id, ri.name, p.name AS park_name, ri.tier,
		       COALESCE(ROUND(SUM(rds.downtime_minutes)::numeric / 60, 2), 0) AS downtime,
		       CASE WHEN SUM(rds.uptime_minutes + rds.downtime_minutes) > 0
		            THEN ROUND(SUM(rds.uptime_minutes)::numeric
		                 / SUM(rds.uptime_minutes + rds.downtime_minutes) * 100, 1)
		            ELSE 0 END AS uptime,
		       NULL::text
		FROM rides ri
		JOIN parks p ON p.id = ri.park_id
		JOIN ride_daily_stats rds ON rds.ride_id = ri.id
		WHERE ri.is_active AND p.is_active AND ri.category = 'ATTRACTION'
		  AND rds.stat_date >= ((NOW() AT TIME ZONE p.timezone)::date - $1::int)
		  AND rds.stat_date < (NOW() AT TIME ZONE p.timezone)::date` + filterSQL(filter) + `
		GROUP BY ri.id, ri.park_id, ri.name, p.name, ri.tier
		ORDER BY downtime DESC, ri.id ASC
		LIMIT $2`

	return r.queryRideRows(ctx, query, days, limit)
}

func (r *Repository) queryRideRows(ctx context.Context, query string, args ...interface{}) ([]*RideRow, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ride rows: %w", err)
	}
	defer rows.Close()

	var out []*RideRow
	for rows.Next() {
		row := &RideRow{}
		err := rows.Scan(&row.RideID, &row.ParkID, &row.Name, &row.ParkName,
			&row.Tier, &row.DowntimeHours, &row.UptimePercentage, &row.CurrentStatus)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ride row: %w", err)
		}
		out = append(out, row)
	}
	return out, nil
}

// ChartPoint is one time-series sample for a park.
type ChartPoint struct {
	At         time.Time
	ShameScore float64
	RidesDown  int
	AvgWait    *float64
}

// ChartLive returns 5-minute samples over the last hour for one park.
func (r *Repository) ChartLive(ctx context.Context, parkID int) ([]*ChartPoint, error) {
	query := `
		SELECT date_trunc('minute', pas.recorded_at)
		       - make_interval(mins => EXTRACT(minute FROM pas.recorded_at)::int % 5),
		       ROUND(AVG(pas.shame_score), 1),
		       COALESCE(MAX(pas.rides_closed), 0),
		       AVG(pas.avg_wait_time)
		FROM park_activity_snapshots pas
		WHERE pas.park_id = $1 AND pas.recorded_at > NOW() - INTERVAL '60 minutes'
		GROUP BY 1
		ORDER BY 1`

	return r.queryChartPoints(ctx, query, parkID)
}

// ChartHourly returns hourly samples for one park over [start, end) UTC.
func (r *Repository) ChartHourly(ctx context.Context, parkID int, start, end time.Time) ([]*ChartPoint, error) {
	query := `
		SELECT phs.hour_start_utc, phs.shame_score, phs.rides_down, NULL::numeric
		FROM park_hourly_stats phs
		WHERE phs.park_id = $1 AND phs.hour_start_utc >= $2 AND phs.hour_start_utc < $3
		ORDER BY phs.hour_start_utc`

	return r.queryChartPoints(ctx, query, parkID, start, end)
}

// ChartDaily returns daily samples for one park over the trailing n days.
func (r *Repository) ChartDaily(ctx context.Context, parkID, days int) ([]*ChartPoint, error) {
	query := `
		SELECT pds.stat_date, pds.shame_score, pds.rides_with_downtime, pds.avg_wait_time
		FROM park_daily_stats pds
		JOIN parks p ON p.id = pds.park_id
		WHERE pds.park_id = $1
		  AND pds.stat_date >= ((NOW() AT TIME ZONE p.timezone)::date - $2::int)
		ORDER BY pds.stat_date`

	return r.queryChartPoints(ctx, query, parkID, days)
}

func (r *Repository) queryChartPoints(ctx context.Context, query string, args ...interface{}) ([]*ChartPoint, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chart points: %w", err)
	}
	defer rows.Close()

	var out []*ChartPoint
	for rows.Next() {
		point := &ChartPoint{}
		if err := rows.Scan(&point.At, &point.ShameScore, &point.RidesDown, &point.AvgWait); err != nil {
			return nil, fmt.Errorf("failed to scan chart point: %w", err)
		}
		out = append(out, point)
	}
	return out, nil
}

// GetPark returns one active park or nil.
func (r *Repository) GetPark(ctx context.Context, parkID int) (*snapshots.Park, error) {
	parks, err := r.ListParks(ctx, FilterAllParks)
	if err != nil {
		return nil, err
	}
	for _, p := range parks {
		if p.ID == parkID {
			return p, nil
		}
	}
	return nil, nil
}

// ListRides returns the active rides of one park with their latest status.
func (r *Repository) ListRides(ctx context.Context, parkID int) ([]*RideRow, error) {
	query := `
		SELECT ri.id, ri.park_id, ri.name, p.name, ri.tier,
		       0::numeric, 0::numeric,
		       (SELECT status FROM ride_status_snapshots
		        WHERE ride_id = ri.id ORDER BY recorded_at DESC LIMIT 1)
		FROM rides ri
		JOIN parks p ON p.id = ri.park_id
		WHERE ri.park_id = $1 AND ri.is_active
		ORDER BY ri.name`

	return r.queryRideRows(ctx, query, parkID)
}
