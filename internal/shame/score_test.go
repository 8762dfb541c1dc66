package shame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/queuetimes/parkpulse/internal/snapshots"
	"github.com/queuetimes/parkpulse/pkg/config"
)

func testShameConfig() config.ShameConfig {
	return config.ShameConfig{
		DisneyWindowDays: 7,
		OtherWindowDays:  3,
		SimilarOperators: []string{"Dollywood"},
	}
}

func TestTypeOf(t *testing.T) {
	cfg := testShameConfig()

	assert.Equal(t, ParkTypeDisney, TypeFromConfig(&snapshots.Park{IsDisney: true}, cfg))
	assert.Equal(t, ParkTypeDisney, TypeFromConfig(&snapshots.Park{IsUniversal: true}, cfg))
	assert.Equal(t, ParkTypeDisney, TypeFromConfig(&snapshots.Park{Operator: "Dollywood"}, cfg))
	assert.Equal(t, ParkTypeDisney, TypeFromConfig(&snapshots.Park{Operator: "dollywood"}, cfg))
	assert.Equal(t, ParkTypeOther, TypeFromConfig(&snapshots.Park{Operator: "Six Flags"}, cfg))
	assert.Equal(t, ParkTypeOther, TypeFromConfig(&snapshots.Park{}, cfg))
}

func TestIsDown(t *testing.T) {
	// Disney semantics: only DOWN is a breakdown.
	assert.True(t, IsDown(ParkTypeDisney, snapshots.StatusDown))
	assert.False(t, IsDown(ParkTypeDisney, snapshots.StatusClosed))
	assert.False(t, IsDown(ParkTypeDisney, snapshots.StatusUnknown))
	assert.False(t, IsDown(ParkTypeDisney, snapshots.StatusOperating))
	assert.False(t, IsDown(ParkTypeDisney, snapshots.StatusRefurbishment))

	// Other operators: CLOSED and missing status also count.
	assert.True(t, IsDown(ParkTypeOther, snapshots.StatusDown))
	assert.True(t, IsDown(ParkTypeOther, snapshots.StatusClosed))
	assert.True(t, IsDown(ParkTypeOther, snapshots.StatusUnknown))
	assert.False(t, IsDown(ParkTypeOther, snapshots.StatusOperating))
	assert.False(t, IsDown(ParkTypeOther, snapshots.StatusRefurbishment))
}

func TestOperatedSignal(t *testing.T) {
	// An open observation always counts for either park type.
	assert.True(t, OperatedSignal(ParkTypeDisney, snapshots.StatusOperating, true))
	assert.True(t, OperatedSignal(ParkTypeOther, snapshots.StatusOperating, true))

	// Disney DOWN proves the ride is in service today even if it never opens.
	assert.True(t, OperatedSignal(ParkTypeDisney, snapshots.StatusDown, false))

	// For other parks DOWN or CLOSED alone could be a seasonal closure.
	assert.False(t, OperatedSignal(ParkTypeOther, snapshots.StatusDown, false))
	assert.False(t, OperatedSignal(ParkTypeOther, snapshots.StatusClosed, false))
	assert.False(t, OperatedSignal(ParkTypeDisney, snapshots.StatusClosed, false))
}

func TestEffectiveWindow(t *testing.T) {
	cfg := testShameConfig()
	assert.Equal(t, 7*24*time.Hour, EffectiveWindow(ParkTypeDisney, cfg))
	assert.Equal(t, 3*24*time.Hour, EffectiveWindow(ParkTypeOther, cfg))
}

func TestInEffectiveSet(t *testing.T) {
	cfg := testShameConfig()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	// Never observed operating: excluded until first seen.
	assert.False(t, InEffectiveSet(ParkTypeDisney, nil, now, cfg))

	within := now.Add(-6 * 24 * time.Hour)
	beyond := now.Add(-8 * 24 * time.Hour)
	assert.True(t, InEffectiveSet(ParkTypeDisney, &within, now, cfg))
	assert.False(t, InEffectiveSet(ParkTypeDisney, &beyond, now, cfg))

	// Shorter window for everyone else.
	recent := now.Add(-2 * 24 * time.Hour)
	stale := now.Add(-4 * 24 * time.Hour)
	assert.True(t, InEffectiveSet(ParkTypeOther, &recent, now, cfg))
	assert.False(t, InEffectiveSet(ParkTypeOther, &stale, now, cfg))

	// The rollback switch counts everything, window or not.
	cfg.FullRosterWeight = true
	assert.True(t, InEffectiveSet(ParkTypeOther, &stale, now, cfg))
	assert.True(t, InEffectiveSet(ParkTypeDisney, nil, now, cfg))
}

func TestScore(t *testing.T) {
	// Two rides, weights 3 and 2. Tier-1 down: 3/5*10 = 6.0.
	assert.InDelta(t, 6.0, Score(3, 5), 0.001)
	// Tier-2 down: 2/5*10 = 4.0.
	assert.InDelta(t, 4.0, Score(2, 5), 0.001)
	// Everything down caps at 10.
	assert.InDelta(t, 10.0, Score(5, 5), 0.001)
	// Nothing down.
	assert.InDelta(t, 0.0, Score(0, 5), 0.001)

	// Zero or negative denominator yields 0, never a division error.
	assert.Equal(t, 0.0, Score(3, 0))
	assert.Equal(t, 0.0, Score(3, -1))
}

// Daily shame is the mean of per-instant scores. A Disney park whose tier-1
// ride (weight 3) is DOWN for half the observed window and a non-Disney park
// whose tier-2 ride (weight 2) is CLOSED for a tenth of it land on 3.0 and
// 0.4 respectively.
func TestScoreDayAverages(t *testing.T) {
	const snapshotsPerDay = 120

	var disneySum float64
	for i := 0; i < snapshotsPerDay; i++ {
		if i < snapshotsPerDay/2 {
			disneySum += Score(3, 5)
		} else {
			disneySum += Score(0, 5)
		}
	}
	assert.InDelta(t, 3.0, Round1(disneySum/snapshotsPerDay), 0.001)

	var otherSum float64
	for i := 0; i < snapshotsPerDay; i++ {
		if i < snapshotsPerDay/10 {
			otherSum += Score(2, 5)
		} else {
			otherSum += Score(0, 5)
		}
	}
	assert.InDelta(t, 0.4, Round1(otherSum/snapshotsPerDay), 0.001)
}

func TestRounding(t *testing.T) {
	assert.Equal(t, 3.1, Round1(3.05))
	assert.Equal(t, 3.0, Round1(3.04))
	assert.Equal(t, 2.67, Round2(2.666666))
	assert.Equal(t, 10.0, Round1(10.0))
}

func TestWithOperatorsParam(t *testing.T) {
	got := WithOperatorsParam(DownConditionSQL, "$3")
	assert.NotContains(t, got, "$OPERATORS")
	assert.Contains(t, got, "p.operator = ANY($3)")
}

func TestDownConditionNullGatedOnComputedOpen(t *testing.T) {
	// A NULL status only counts as down when the computed flag agrees the
	// ride is not open; this must match IsDown plus the ComputeIsOpen rule.
	assert.Contains(t, DownConditionSQL, "rss.status IS NULL AND NOT rss.computed_is_open")
	assert.NotContains(t, DownConditionSQL, "OR rss.status IS NULL)")
}
