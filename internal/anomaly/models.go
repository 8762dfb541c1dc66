package anomaly

import (
	"time"
)

// Severity grades a finding.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Entity types recorded with a finding.
const (
	EntityPark = "park"
	EntityRide = "ride"
)

// Detector names, stored with each finding so readers can filter by source.
const (
	DetectorShameSpike    = "park_shame_zscore"
	DetectorRideDowntime  = "ride_downtime_zscore"
	DetectorSuddenChange  = "park_sudden_change"
	DetectorMissingDaily  = "missing_daily_row"
	DetectorRideCountDrop = "ride_count_drop"
)

// Detection thresholds.
const (
	baselineDays    = 30
	minBaselineObs  = 7
	warnZScore      = 3.0
	critZScore      = 4.0
	critRideHours   = 2.0 // z alone is not enough for a ride alert
	suddenChangePct = 200.0
	suddenChangeMin = 0.1 // prior-day score floor for the percent change to mean anything
	rideCountDays   = 14
	rideCountWarn   = 0.5
	rideCountCrit   = 0.25
)

// Finding is one detected anomaly, persisted to anomaly_findings.
type Finding struct {
	ID         int64     `json:"id"`
	StatDate   time.Time `json:"stat_date"`
	EntityType string    `json:"entity_type"`
	EntityID   int       `json:"entity_id"`
	Detector   string    `json:"detector"`
	Severity   Severity  `json:"severity"`
	Observed   *float64  `json:"observed"`
	Expected   *float64  `json:"expected"`
	ZScore     *float64  `json:"z_score"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}
