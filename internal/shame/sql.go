package shame

// Canonical SQL fragments for downtime semantics. Every query that counts
// downtime or decides park-open MUST use these fragments so the predicates
// cannot drift between the collector, the aggregator, the rankings queries
// and the auditor. Fragments assume the aliases rss (ride snapshots), pas
// (park activity snapshots) and p (parks).

import "strings"

// DownConditionSQL is the park-type-aware downtime predicate over a ride
// snapshot row joined to its park row. Disney/Universal (and operators
// flagged by the similar_operator column expression) count only DOWN; other
// parks also count CLOSED, and NULL status only when the ride is not open by
// the computed flag. A NULL status with a posted wait time is an open ride.
const DownConditionSQL = `(
	CASE WHEN (p.is_disney OR p.is_universal OR p.operator = ANY($OPERATORS))
		THEN rss.status = 'DOWN'
		ELSE (rss.status IN ('DOWN', 'CLOSED')
			OR (rss.status IS NULL AND NOT rss.computed_is_open))
	END
)`

// ParkOpenFallbackSQL is the fallback park-open heuristic over a park
// activity snapshot row: scheduled open, or live activity shows open rides.
const ParkOpenFallbackSQL = `(pas.park_appears_open OR pas.rides_open > 0)`

// TierWeightSQL maps a ride row's tier to its weight, NULL tier defaulting
// to 2 like everywhere else. Assumes the rides table aliased as ri.
const TierWeightSQL = `(CASE ri.tier WHEN 1 THEN 3 WHEN 2 THEN 2 WHEN 3 THEN 1 ELSE 2 END)`

// MinuteBucketJoinSQL joins ride snapshots to the park snapshot of the same
// collection cycle. Rows are bucketed to the minute because per-ride and
// per-park writes happen a couple of seconds apart; exact-equality joins lose
// every row.
const MinuteBucketJoinSQL = `date_trunc('minute', rss.recorded_at) = date_trunc('minute', pas.recorded_at) AND rss.park_id = pas.park_id`

// WithOperatorsParam rewrites the $OPERATORS placeholder to a concrete
// positional parameter for the similar-operators list.
func WithOperatorsParam(fragment, param string) string {
	return strings.ReplaceAll(fragment, "$OPERATORS", param)
}
