package snapshots

import (
	"time"
)

// Status is the upstream-reported ride state. An empty Status means the
// upstream did not report one; it is stored as NULL.
type Status string

const (
	StatusOperating     Status = "OPERATING"
	StatusDown          Status = "DOWN"
	StatusClosed        Status = "CLOSED"
	StatusRefurbishment Status = "REFURBISHMENT"
	StatusUnknown       Status = ""
)

// ParseStatus normalizes a raw upstream status string.
func ParseStatus(raw string) Status {
	switch Status(raw) {
	case StatusOperating, StatusDown, StatusClosed, StatusRefurbishment:
		return Status(raw)
	default:
		return StatusUnknown
	}
}

// Park is one tracked theme park.
type Park struct {
	ID          int       `json:"id"`
	ExternalID  string    `json:"external_id"`
	Name        string    `json:"name"`
	City        string    `json:"city"`
	State       string    `json:"state"`
	Country     string    `json:"country"`
	Timezone    string    `json:"timezone"`
	Operator    string    `json:"operator"`
	IsDisney    bool      `json:"is_disney"`
	IsUniversal bool      `json:"is_universal"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Location renders the park's human-readable location.
func (p *Park) Location() string {
	switch {
	case p.City != "" && p.State != "":
		return p.City + ", " + p.State
	case p.City != "":
		return p.City
	default:
		return p.Country
	}
}

// Ride is one tracked attraction, bound to a park.
type Ride struct {
	ID             int        `json:"id"`
	ExternalID     string     `json:"external_id"`
	ParkID         int        `json:"park_id"`
	Name           string     `json:"name"`
	Land           string     `json:"land"`
	Tier           *int       `json:"tier"`
	Category       string     `json:"category"`
	IsActive       bool       `json:"is_active"`
	LastOperatedAt *time.Time `json:"last_operated_at"`
}

// RideStatusSnapshot is one point-in-time observation of one ride.
type RideStatusSnapshot struct {
	ID              int64      `json:"id"`
	RideID          int        `json:"ride_id"`
	ParkID          int        `json:"park_id"`
	RecordedAt      time.Time  `json:"recorded_at"`
	Status          Status     `json:"status"`
	WaitTime        *int       `json:"wait_time"`
	IsOpen          *bool      `json:"is_open"`
	ComputedIsOpen  bool       `json:"computed_is_open"`
	LastUpdatedAPI  *time.Time `json:"last_updated_api"`
	ParkAppearsOpen bool       `json:"park_appears_open"`
}

// ParkActivitySnapshot is one point-in-time observation of one park, derived
// from its ride snapshots in the same collection cycle.
type ParkActivitySnapshot struct {
	ID                int64     `json:"id"`
	ParkID            int       `json:"park_id"`
	RecordedAt        time.Time `json:"recorded_at"`
	TotalRidesTracked int       `json:"total_rides_tracked"`
	RidesOpen         int       `json:"rides_open"`
	RidesClosed       int       `json:"rides_closed"`
	AvgWaitTime       *float64  `json:"avg_wait_time"`
	MaxWaitTime       *int      `json:"max_wait_time"`
	ParkAppearsOpen   bool      `json:"park_appears_open"`
	ShameScore        float64   `json:"shame_score"`
}

// ComputeIsOpen derives the canonical "ride is open" boolean: an explicit
// OPERATING status, or a positive wait time when the upstream reported no
// status at all.
func ComputeIsOpen(status Status, waitTime *int) bool {
	if status == StatusOperating {
		return true
	}
	if status == StatusUnknown && waitTime != nil && *waitTime > 0 {
		return true
	}
	return false
}

// AppearsOpen is the fallback park-open heuristic: the schedule says open, or
// live activity shows at least one open ride. Schedules are frequently
// missing or stale, so live activity is the tiebreaker.
func (s *ParkActivitySnapshot) AppearsOpen() bool {
	return s.ParkAppearsOpen || s.RidesOpen > 0
}
