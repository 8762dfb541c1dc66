package snapshots

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles database access for parks, rides and raw snapshots
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new snapshots repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListActiveParks retrieves all active parks
func (r *Repository) ListActiveParks(ctx context.Context) ([]*Park, error) {
	query := `
		SELECT id, external_id, name, city, state, country, timezone, operator,
		       is_disney, is_universal, is_active, created_at, updated_at
		FROM parks
		WHERE is_active = TRUE
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list parks: %w", err)
	}
	defer rows.Close()

	var parks []*Park
	for rows.Next() {
		p := &Park{}
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

// GetPark retrieves one park by internal id
func (r *Repository) GetPark(ctx context.Context, parkID int) (*Park, error) {
	p := &Park{}
	err := r.db.QueryRow(ctx, `
		SELECT id, external_id, name, city, state, country, timezone, operator,
		       is_disney, is_universal, is_active, created_at, updated_at
		FROM parks
		WHERE id = $1`, parkID,
	).Scan(
		&p.ID, &p.ExternalID, &p.Name, &p.City, &p.State, &p.Country,
		&p.Timezone, &p.Operator, &p.IsDisney, &p.IsUniversal, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get park %d: %w", parkID, err)
	}
	return p, nil
}

// ListActiveRides retrieves all active rides for a park
func (r *Repository) ListActiveRides(ctx context.Context, parkID int) ([]*Ride, error) {
	query := `
		SELECT id, external_id, park_id, name, land, tier, category, is_active, last_operated_at
		FROM rides
		WHERE park_id = $1 AND is_active = TRUE
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, parkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rides for park %d: %w", parkID, err)
	}
	defer rows.Close()

	var rides []*Ride
	for rows.Next() {
		ride := &Ride{}
		err := rows.Scan(
			&ride.ID, &ride.ExternalID, &ride.ParkID, &ride.Name, &ride.Land,
			&ride.Tier, &ride.Category, &ride.IsActive, &ride.LastOperatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ride: %w", err)
		}
		rides = append(rides, ride)
	}

	return rides, nil
}

// InsertCycle writes one collection cycle for one park atomically: the park
// activity snapshot plus all ride snapshots. Duplicate (ride, recorded_at)
// rows are rejected by the unique constraint and skipped; last_operated_at is
// stamped for rides observed operating. Returns the number of ride snapshots
// actually written.
func (r *Repository) InsertCycle(ctx context.Context, parkSnap *ParkActivitySnapshot, rideSnaps []*RideStatusSnapshot) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin cycle transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO park_activity_snapshots (
			park_id, recorded_at, total_rides_tracked, rides_open, rides_closed,
			avg_wait_time, max_wait_time, park_appears_open, shame_score
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (park_id, recorded_at) DO NOTHING`,
		parkSnap.ParkID, parkSnap.RecordedAt, parkSnap.TotalRidesTracked,
		parkSnap.RidesOpen, parkSnap.RidesClosed, parkSnap.AvgWaitTime,
		parkSnap.MaxWaitTime, parkSnap.ParkAppearsOpen, parkSnap.ShameScore,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert park snapshot: %w", err)
	}

	inserted := 0
	for _, snap := range rideSnaps {
		var status *string
		if snap.Status != StatusUnknown {
			s := string(snap.Status)
			status = &s
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO ride_status_snapshots (
				ride_id, park_id, recorded_at, status, wait_time, is_open,
				computed_is_open, last_updated_api, park_appears_open
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (ride_id, recorded_at) DO NOTHING`,
			snap.RideID, snap.ParkID, snap.RecordedAt, status, snap.WaitTime,
			snap.IsOpen, snap.ComputedIsOpen, snap.LastUpdatedAPI, snap.ParkAppearsOpen,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert ride snapshot for ride %d: %w", snap.RideID, err)
		}
		inserted += int(tag.RowsAffected())

		if snap.ComputedIsOpen {
			_, err = tx.Exec(ctx, `
				UPDATE rides
				SET last_operated_at = GREATEST(COALESCE(last_operated_at, $2), $2),
				    updated_at = NOW()
				WHERE id = $1`,
				snap.RideID, snap.RecordedAt,
			)
			if err != nil {
				return 0, fmt.Errorf("failed to stamp last_operated_at for ride %d: %w", snap.RideID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit cycle: %w", err)
	}

	return inserted, nil
}

// RideSnapshotsInRange retrieves all ride snapshots in [start, end) for a park
func (r *Repository) RideSnapshotsInRange(ctx context.Context, parkID int, start, end time.Time) ([]*RideStatusSnapshot, error) {
	query := `
		SELECT id, ride_id, park_id, recorded_at, COALESCE(status, ''), wait_time,
		       is_open, computed_is_open, last_updated_api, park_appears_open
		FROM ride_status_snapshots
		WHERE park_id = $1 AND recorded_at >= $2 AND recorded_at < $3
		ORDER BY ride_id, recorded_at
	`

	rows, err := r.db.Query(ctx, query, parkID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query ride snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*RideStatusSnapshot
	for rows.Next() {
		snap := &RideStatusSnapshot{}
		var status string
		err := rows.Scan(
			&snap.ID, &snap.RideID, &snap.ParkID, &snap.RecordedAt, &status,
			&snap.WaitTime, &snap.IsOpen, &snap.ComputedIsOpen,
			&snap.LastUpdatedAPI, &snap.ParkAppearsOpen,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ride snapshot: %w", err)
		}
		snap.Status = Status(status)
		snaps = append(snaps, snap)
	}

	return snaps, nil
}

// ParkSnapshotsInRange retrieves all park snapshots in [start, end) for a park
func (r *Repository) ParkSnapshotsInRange(ctx context.Context, parkID int, start, end time.Time) ([]*ParkActivitySnapshot, error) {
	query := `
		SELECT id, park_id, recorded_at, total_rides_tracked, rides_open,
		       rides_closed, avg_wait_time, max_wait_time, park_appears_open, shame_score
		FROM park_activity_snapshots
		WHERE park_id = $1 AND recorded_at >= $2 AND recorded_at < $3
		ORDER BY recorded_at
	`

	rows, err := r.db.Query(ctx, query, parkID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query park snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*ParkActivitySnapshot
	for rows.Next() {
		snap := &ParkActivitySnapshot{}
		err := rows.Scan(
			&snap.ID, &snap.ParkID, &snap.RecordedAt, &snap.TotalRidesTracked,
			&snap.RidesOpen, &snap.RidesClosed, &snap.AvgWaitTime,
			&snap.MaxWaitTime, &snap.ParkAppearsOpen, &snap.ShameScore,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan park snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}

	return snaps, nil
}

// ScheduleCovers reports whether the park's published schedule covers the
// given instant. Missing schedules return false; the live-activity fallback
// handles that case.
func (r *Repository) ScheduleCovers(ctx context.Context, parkID int, at time.Time) (bool, error) {
	var covered bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM park_schedule_entries
			WHERE park_id = $1 AND opens_at <= $2 AND closes_at > $2
		)`, parkID, at,
	).Scan(&covered)
	if err != nil {
		return false, fmt.Errorf("failed to check schedule for park %d: %w", parkID, err)
	}
	return covered, nil
}

// UpsertScheduleEntry records one published operating-hours entry
func (r *Repository) UpsertScheduleEntry(ctx context.Context, parkID int, localDate time.Time, opensAt, closesAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO park_schedule_entries (park_id, local_date, opens_at, closes_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (park_id, local_date) DO UPDATE SET
			opens_at = EXCLUDED.opens_at,
			closes_at = EXCLUDED.closes_at`,
		parkID, localDate, opensAt, closesAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert schedule entry: %w", err)
	}
	return nil
}

// DeleteSnapshotsBefore removes raw snapshots older than the cutoff. Callers
// must first verify the cutoff is covered by successful hourly aggregation;
// see the retention pruner.
func (r *Repository) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM ride_status_snapshots WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete ride snapshots: %w", err)
	}
	deleted := tag.RowsAffected()

	tag, err = r.db.Exec(ctx, `
		DELETE FROM park_activity_snapshots WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return deleted, fmt.Errorf("failed to delete park snapshots: %w", err)
	}

	return deleted + tag.RowsAffected(), nil
}

// DistinctTimezones returns the set of timezones across active parks
func (r *Repository) DistinctTimezones(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT timezone FROM parks WHERE is_active = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("failed to list timezones: %w", err)
	}
	defer rows.Close()

	var zones []string
	for rows.Next() {
		var tz string
		if err := rows.Scan(&tz); err != nil {
			return nil, fmt.Errorf("failed to scan timezone: %w", err)
		}
		zones = append(zones, tz)
	}

	return zones, nil
}
