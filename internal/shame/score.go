package shame

import (
	"math"
	"strings"
	"time"

	"github.com/queuetimes/parkpulse/internal/snapshots"
	"github.com/queuetimes/parkpulse/pkg/config"
)

// ParkType selects which downtime semantics apply to a park.
type ParkType int

const (
	// ParkTypeDisney covers Disney, Universal and configured similar
	// operators: only an explicit DOWN counts as downtime, because these
	// parks reliably report CLOSED for scheduled closures.
	ParkTypeDisney ParkType = iota
	// ParkTypeOther covers everything else: DOWN, CLOSED and missing
	// status during park hours all count, because smaller operators rarely
	// distinguish breakdowns from closures.
	ParkTypeOther
)

// ScaleFactor converts the weighted-down fraction into the 0-10 score range.
const ScaleFactor = 10.0

// TypeOf classifies a park by its operator flags plus the configured list of
// operators known to use Disney-style status reporting.
func TypeOf(park *snapshots.Park, similarOperators []string) ParkType {
	if park.IsDisney || park.IsUniversal {
		return ParkTypeDisney
	}
	for _, op := range similarOperators {
		if strings.EqualFold(park.Operator, op) {
			return ParkTypeDisney
		}
	}
	return ParkTypeOther
}

// TypeFromConfig is TypeOf with the operator list pulled from ShameConfig.
func TypeFromConfig(park *snapshots.Park, cfg config.ShameConfig) ParkType {
	return TypeOf(park, cfg.SimilarOperators)
}

// IsDown reports whether a single observation counts as downtime under the
// park's semantics. The caller is responsible for gating on park-open and
// ride-operated-today; this is only the per-status predicate.
func IsDown(parkType ParkType, status snapshots.Status) bool {
	if parkType == ParkTypeDisney {
		return status == snapshots.StatusDown
	}
	switch status {
	case snapshots.StatusDown, snapshots.StatusClosed, snapshots.StatusUnknown:
		return true
	default:
		return false
	}
}

// OperatedSignal reports whether an observation proves the ride is in service
// today. A Disney-type ride reporting DOWN is broken, not mothballed, so DOWN
// keeps it in the operated set; for other parks DOWN is indistinguishable
// from a seasonal closure and only an open observation counts.
func OperatedSignal(parkType ParkType, status snapshots.Status, computedIsOpen bool) bool {
	if computedIsOpen {
		return true
	}
	return parkType == ParkTypeDisney && status == snapshots.StatusDown
}

// EffectiveWindow returns how far back last_operated_at may be for a ride to
// still count toward the park's effective weight.
func EffectiveWindow(parkType ParkType, cfg config.ShameConfig) time.Duration {
	days := cfg.OtherWindowDays
	if parkType == ParkTypeDisney {
		days = cfg.DisneyWindowDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// InEffectiveSet reports whether a ride belongs in the shame denominator at
// the given instant: it must have operated within the park-type window. Rides
// that have never been seen operating are excluded until first observed.
// The FullRosterWeight rollback switch restores the legacy behavior where
// every active attraction counts regardless of when it last operated.
func InEffectiveSet(parkType ParkType, lastOperatedAt *time.Time, now time.Time, cfg config.ShameConfig) bool {
	if cfg.FullRosterWeight {
		return true
	}
	if lastOperatedAt == nil {
		return false
	}
	return now.Sub(*lastOperatedAt) <= EffectiveWindow(parkType, cfg)
}

// Score computes the tier-weighted shame score:
//
//	round1(sum(weights of down rides) / effective_park_weight * 10)
//
// A zero denominator (park with no recently-operating rides) yields 0, not an
// error: a mothballed park is not ashamed, it is closed.
func Score(downWeight, effectiveWeight int) float64 {
	if effectiveWeight <= 0 {
		return 0
	}
	return Round1(float64(downWeight) / float64(effectiveWeight) * ScaleFactor)
}

// Round1 rounds half away from zero to one decimal place, matching the
// NUMERIC(3,1) storage type.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Round2 rounds half away from zero to two decimal places, used for hours.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
