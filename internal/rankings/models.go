package rankings

import (
	"fmt"
	"time"
)

// Period is a named query window.
type Period string

const (
	PeriodLive      Period = "live"
	PeriodToday     Period = "today"
	PeriodYesterday Period = "yesterday"
	Period7Days     Period = "7days"
	Period30Days    Period = "30days"
)

// ParsePeriod validates a period query parameter.
func ParsePeriod(raw string) (Period, error) {
	switch Period(raw) {
	case PeriodLive, PeriodToday, PeriodYesterday, Period7Days, Period30Days:
		return Period(raw), nil
	case "":
		return PeriodToday, nil
	default:
		return "", fmt.Errorf("unknown period %q", raw)
	}
}

// Days returns the trailing-day count for range periods, 0 otherwise.
func (p Period) Days() int {
	switch p {
	case Period7Days:
		return 7
	case Period30Days:
		return 30
	default:
		return 0
	}
}

// Filter restricts which parks participate in a ranking.
type Filter string

const (
	FilterAllParks        Filter = "all-parks"
	FilterDisneyUniversal Filter = "disney-universal"
)

// ParseFilter validates a filter query parameter.
func ParseFilter(raw string) (Filter, error) {
	switch Filter(raw) {
	case FilterAllParks, FilterDisneyUniversal:
		return Filter(raw), nil
	case "":
		return FilterAllParks, nil
	default:
		return "", fmt.Errorf("unknown filter %q", raw)
	}
}

// SortBy selects the primary ranking key.
type SortBy string

const (
	SortByShame    SortBy = "shame"
	SortByDowntime SortBy = "downtime"
)

// ParseSortBy validates a sort_by query parameter.
func ParseSortBy(raw string) (SortBy, error) {
	switch SortBy(raw) {
	case SortByShame, SortByDowntime:
		return SortBy(raw), nil
	case "":
		return SortByShame, nil
	default:
		return "", fmt.Errorf("unknown sort_by %q", raw)
	}
}

// ParkRanking is one park's row in a ranking response.
type ParkRanking struct {
	Rank                  int     `json:"rank"`
	ParkID                int     `json:"id"`
	Name                  string  `json:"name"`
	Location              string  `json:"location"`
	ShameScore            float64 `json:"shame_score"`
	TotalDowntimeHours    float64 `json:"total_downtime_hours"`
	WeightedDowntimeHours float64 `json:"weighted_downtime_hours"`
	RidesDown             int     `json:"rides_down"`
	RidesOperating        int     `json:"rides_operating"`
	UptimePercentage      float64 `json:"uptime_percentage"`
	IsDisney              bool    `json:"is_disney"`
	IsUniversal           bool    `json:"is_universal"`
}

// RideRanking is one ride's row in a ranking response.
type RideRanking struct {
	Rank             int     `json:"rank"`
	RideID           int     `json:"id"`
	Name             string  `json:"name"`
	ParkID           int     `json:"park_id"`
	ParkName         string  `json:"park_name"`
	Tier             *int    `json:"tier"`
	DowntimeHours    float64 `json:"downtime_hours"`
	UptimePercentage float64 `json:"uptime_percentage"`
	CurrentStatus    string  `json:"current_status,omitempty"`
}

// Attribution credits the upstream data source on every ranking response.
type Attribution struct {
	DataSource string `json:"data_source"`
	URL        string `json:"url"`
}

// DefaultAttribution is included in every ranking and chart response.
var DefaultAttribution = Attribution{
	DataSource: "Queue-Times.com",
	URL:        "https://queue-times.com/",
}

// RankingResponse is the envelope for park and ride ranking calls.
// GeneratedAt is when the payload was built, not when it was served; cached
// responses keep the build time so consumers can show real freshness.
type RankingResponse struct {
	Success     bool        `json:"success"`
	Period      Period      `json:"period"`
	Filter      Filter      `json:"filter"`
	SortBy      SortBy      `json:"sort_by"`
	Stale       bool        `json:"stale,omitempty"`
	GeneratedAt time.Time   `json:"generated_at"`
	Data        interface{} `json:"data"`
	Attribution Attribution `json:"attribution"`
}

// ChartResponse is the envelope for time-series calls. Parallel arrays keep
// the payload compact for direct chart-library consumption.
type ChartResponse struct {
	Labels      []string    `json:"labels"`
	Data        []float64   `json:"data"`
	RidesDown   []int       `json:"rides_down"`
	AvgWait     []*float64  `json:"avg_wait"`
	Average     float64     `json:"average"`
	Granularity string      `json:"granularity"`
	Attribution Attribution `json:"attribution"`
}

// Chart granularities.
const (
	GranularityMinutes = "minutes"
	GranularityHourly  = "hourly"
	GranularityDaily   = "daily"
)
