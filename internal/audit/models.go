package audit

import (
	"time"

	"github.com/google/uuid"
)

// Severity grades a verification run.
type Severity string

const (
	SeverityOK       Severity = "OK"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Check categories.
const (
	CheckRideDaily  = "ride_daily"
	CheckParkDaily  = "park_daily"
	CheckRideHourly = "ride_hourly"
	CheckParkHourly = "park_hourly"
	CheckCoverage   = "down_coverage"
	CheckInterval   = "snapshot_interval"
)

// Comparison tolerances. Recomputation from raw snapshots and the stored
// aggregates may disagree slightly when snapshots arrive near window edges;
// differences inside these bounds are noise, not defects.
const (
	TolRideDailyMinutes  = 10
	TolParkDailyHours    = 0.17
	TolParkDailyRides    = 1
	TolRideHourlyHours   = 0.1
	TolRideHourlyPct     = 2.0
	TolParkHourlyShame   = 0.3
	TolParkHourlyHours   = 0.25
	TolIntervalDriftFrac = 0.2
)

// Escalation thresholds. A run turns CRITICAL when any category exceeds its
// mismatch or missing-row count.
var (
	criticalMismatches = map[string]int{
		CheckRideDaily:  10,
		CheckParkDaily:  5,
		CheckRideHourly: 10,
		CheckParkHourly: 5,
	}
	criticalMissing = map[string]int{
		CheckRideDaily:  5,
		CheckParkDaily:  2,
		CheckRideHourly: 5,
		CheckParkHourly: 2,
	}
)

// Finding is one detected discrepancy.
type Finding struct {
	Check    string     `json:"check"`
	Severity Severity   `json:"severity"`
	ParkID   int        `json:"park_id"`
	RideID   int        `json:"ride_id,omitempty"`
	Window   *time.Time `json:"window,omitempty"`
	Field    string     `json:"field,omitempty"`
	Expected float64    `json:"expected,omitempty"`
	Stored   float64    `json:"stored,omitempty"`
	Message  string     `json:"message"`
}

// CheckStats counts the outcomes of one check category.
type CheckStats struct {
	Checked    int `json:"checked"`
	Mismatched int `json:"mismatched"`
	Missing    int `json:"missing"`
}

// Report is the outcome of one verification run. The verifier never writes;
// fixing a discrepancy is a recompute job, not an audit side effect.
type Report struct {
	RunID    uuid.UUID              `json:"run_id"`
	Date     time.Time              `json:"date"`
	RunAt    time.Time              `json:"run_at"`
	Parks    int                    `json:"parks"`
	Stats    map[string]*CheckStats `json:"stats"`
	Findings []Finding              `json:"findings"`
	Severity Severity               `json:"severity"`
}

func newReport(date, runAt time.Time) *Report {
	return &Report{
		RunID: uuid.New(),
		Date:  date,
		RunAt: runAt,
		Stats: map[string]*CheckStats{
			CheckRideDaily:  {},
			CheckParkDaily:  {},
			CheckRideHourly: {},
			CheckParkHourly: {},
			CheckCoverage:   {},
			CheckInterval:   {},
		},
		Severity: SeverityOK,
	}
}

func (r *Report) add(f Finding) {
	r.Findings = append(r.Findings, f)
}

// finalize grades the run from the accumulated counters and findings.
func (r *Report) finalize() {
	severity := SeverityOK
	for check, stats := range r.Stats {
		if stats.Mismatched == 0 && stats.Missing == 0 {
			continue
		}
		if severity == SeverityOK {
			severity = SeverityWarning
		}
		if stats.Mismatched > criticalMismatches[check] || stats.Missing > criticalMissing[check] {
			severity = SeverityCritical
		}
	}
	for _, f := range r.Findings {
		if f.Severity == SeverityCritical {
			severity = SeverityCritical
		}
	}
	r.Severity = severity
}
