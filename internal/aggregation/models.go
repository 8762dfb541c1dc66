package aggregation

import (
	"time"

	"github.com/google/uuid"
)

// RideHourlyStat is one ride's aggregate for one UTC hour.
type RideHourlyStat struct {
	RideID             int       `json:"ride_id"`
	ParkID             int       `json:"park_id"`
	HourStartUTC       time.Time `json:"hour_start_utc"`
	SnapshotCount      int       `json:"snapshot_count"`
	OperatingSnapshots int       `json:"operating_snapshots"`
	DownSnapshots      int       `json:"down_snapshots"`
	DowntimeHours      float64   `json:"downtime_hours"`
	UptimePercentage   float64   `json:"uptime_percentage"`
	AvgWaitTime        *float64  `json:"avg_wait_time"`
	RideOperated       bool      `json:"ride_operated"`
	MetricsVersion     string    `json:"metrics_version"`
}

// ParkHourlyStat is one park's aggregate for one UTC hour.
type ParkHourlyStat struct {
	ParkID                int       `json:"park_id"`
	HourStartUTC          time.Time `json:"hour_start_utc"`
	ShameScore            float64   `json:"shame_score"`
	TotalDowntimeHours    float64   `json:"total_downtime_hours"`
	WeightedDowntimeHours float64   `json:"weighted_downtime_hours"`
	EffectiveParkWeight   int       `json:"effective_park_weight"`
	RidesOperating        int       `json:"rides_operating"`
	RidesDown             int       `json:"rides_down"`
	ParkWasOpen           bool      `json:"park_was_open"`
	SnapshotCount         int       `json:"snapshot_count"`
	MetricsVersion        string    `json:"metrics_version"`
}

// RideDailyStat is one ride's aggregate for one park-local calendar day.
type RideDailyStat struct {
	RideID                 int       `json:"ride_id"`
	ParkID                 int       `json:"park_id"`
	StatDate               time.Time `json:"stat_date"`
	SnapshotCount          int       `json:"snapshot_count"`
	UptimeMinutes          int       `json:"uptime_minutes"`
	DowntimeMinutes        int       `json:"downtime_minutes"`
	OperatingHoursMinutes  int       `json:"operating_hours_minutes"`
	UptimePercentage       float64   `json:"uptime_percentage"`
	MinWaitTime            *int      `json:"min_wait_time"`
	AvgWaitTime            *float64  `json:"avg_wait_time"`
	MaxWaitTime            *int      `json:"max_wait_time"`
	PeakWaitTime           *int      `json:"peak_wait_time"`
	StatusChanges          int       `json:"status_changes"`
	LongestDowntimeMinutes int       `json:"longest_downtime_minutes"`
	RideOperated           bool      `json:"ride_operated"`
	MetricsVersion         string    `json:"metrics_version"`
}

// ParkDailyStat is one park's aggregate for one park-local calendar day.
type ParkDailyStat struct {
	ParkID                 int       `json:"park_id"`
	StatDate               time.Time `json:"stat_date"`
	ShameScore             float64   `json:"shame_score"`
	TotalDowntimeHours     float64   `json:"total_downtime_hours"`
	WeightedDowntimeHours  float64   `json:"weighted_downtime_hours"`
	EffectiveParkWeight    int       `json:"effective_park_weight"`
	RidesTracked           int       `json:"rides_tracked"`
	RidesWithDowntime      int       `json:"rides_with_downtime"`
	AvgWaitTime            *float64  `json:"avg_wait_time"`
	StatusChanges          int       `json:"status_changes"`
	LongestDowntimeMinutes int       `json:"longest_downtime_minutes"`
	ParkWasOpen            bool      `json:"park_was_open"`
	SnapshotCount          int       `json:"snapshot_count"`
	MetricsVersion         string    `json:"metrics_version"`
}

// OperatingSession is the first-open to last-open interval for one park on
// one local calendar day.
type OperatingSession struct {
	ParkID           int        `json:"park_id"`
	LocalDate        time.Time  `json:"local_date"`
	FirstOpenUTC     *time.Time `json:"first_open_utc"`
	LastOpenUTC      *time.Time `json:"last_open_utc"`
	OperatingMinutes int        `json:"operating_minutes"`
}

// RideWeeklyStat rolls daily ride rows up to one ISO week.
type RideWeeklyStat struct {
	RideID                int       `json:"ride_id"`
	ParkID                int       `json:"park_id"`
	ISOYear               int       `json:"iso_year"`
	ISOWeek               int       `json:"iso_week"`
	WeekStart             time.Time `json:"week_start"`
	UptimeMinutes         int       `json:"uptime_minutes"`
	DowntimeMinutes       int       `json:"downtime_minutes"`
	OperatingHoursMinutes int       `json:"operating_hours_minutes"`
	UptimePercentage      float64   `json:"uptime_percentage"`
	AvgWaitTime           *float64  `json:"avg_wait_time"`
	DaysOperated          int       `json:"days_operated"`
	TrendVsPrevious       *float64  `json:"trend_vs_previous"`
}

// ParkWeeklyStat rolls daily park rows up to one ISO week.
type ParkWeeklyStat struct {
	ParkID                int       `json:"park_id"`
	ISOYear               int       `json:"iso_year"`
	ISOWeek               int       `json:"iso_week"`
	WeekStart             time.Time `json:"week_start"`
	AvgShameScore         float64   `json:"avg_shame_score"`
	TotalDowntimeHours    float64   `json:"total_downtime_hours"`
	WeightedDowntimeHours float64   `json:"weighted_downtime_hours"`
	DaysOpen              int       `json:"days_open"`
	TrendVsPrevious       *float64  `json:"trend_vs_previous"`
}

// ParkMonthlyStat rolls daily park rows up to one calendar month.
type ParkMonthlyStat struct {
	ParkID                int       `json:"park_id"`
	MonthStart            time.Time `json:"month_start"`
	AvgShameScore         float64   `json:"avg_shame_score"`
	TotalDowntimeHours    float64   `json:"total_downtime_hours"`
	WeightedDowntimeHours float64   `json:"weighted_downtime_hours"`
	DaysOpen              int       `json:"days_open"`
	TrendVsPrevious       *float64  `json:"trend_vs_previous"`
}

// LogEntry is one aggregation_log row.
type LogEntry struct {
	ID             uuid.UUID  `json:"id"`
	JobType        string     `json:"job_type"`
	WindowEnd      time.Time  `json:"window_end"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
	Status         string     `json:"status"`
	ParksProcessed int        `json:"parks_processed"`
	RidesProcessed int        `json:"rides_processed"`
	Error          *string    `json:"error"`
}

// Job types recorded in aggregation_log.
const (
	JobHourly    = "hourly"
	JobDaily     = "daily"
	JobWeekly    = "weekly"
	JobMonthly   = "monthly"
	JobRecompute = "recompute"
)
