package aggregation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrJobAlreadyRunning is returned when another instance holds the running
// marker for the same job type.
var ErrJobAlreadyRunning = errors.New("aggregation job already running")

// LogRepository manages aggregation_log rows. The partial unique index on
// (job_type) WHERE status='running' is what enforces the single-runner
// guarantee; this type just surfaces the conflict as a typed error.
type LogRepository struct {
	db *pgxpool.Pool
}

// NewLogRepository creates an aggregation log repository
func NewLogRepository(db *pgxpool.Pool) *LogRepository {
	return &LogRepository{db: db}
}

// Begin claims the running marker for a job type. Returns
// ErrJobAlreadyRunning when another runner holds it.
func (r *LogRepository) Begin(ctx context.Context, jobType string, windowEnd time.Time) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.db.Exec(ctx, `
		INSERT INTO aggregation_log (id, job_type, window_end, status)
		VALUES ($1, $2, $3, 'running')`,
		id, jobType, windowEnd,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return uuid.Nil, ErrJobAlreadyRunning
		}
		return uuid.Nil, fmt.Errorf("failed to claim %s job: %w", jobType, err)
	}
	return id, nil
}

// MarkSuccess finishes a job run successfully.
func (r *LogRepository) MarkSuccess(ctx context.Context, id uuid.UUID, parksProcessed, ridesProcessed int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE aggregation_log
		SET status = 'success', finished_at = NOW(),
		    parks_processed = $2, rides_processed = $3
		WHERE id = $1`,
		id, parksProcessed, ridesProcessed,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job %s success: %w", id, err)
	}
	return nil
}

// MarkFailed finishes a job run with an error message.
func (r *LogRepository) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	msg := cause.Error()
	_, err := r.db.Exec(ctx, `
		UPDATE aggregation_log
		SET status = 'failed', finished_at = NOW(), error = $2
		WHERE id = $1`,
		id, msg,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", id, err)
	}
	return nil
}

// LatestSuccess returns the most recent successful run for a job type, or
// nil when none exists.
func (r *LogRepository) LatestSuccess(ctx context.Context, jobType string) (*LogEntry, error) {
	entry := &LogEntry{}
	err := r.db.QueryRow(ctx, `
		SELECT id, job_type, window_end, started_at, finished_at, status,
		       parks_processed, rides_processed, error
		FROM aggregation_log
		WHERE job_type = $1 AND status = 'success'
		ORDER BY window_end DESC
		LIMIT 1`, jobType,
	).Scan(
		&entry.ID, &entry.JobType, &entry.WindowEnd, &entry.StartedAt,
		&entry.FinishedAt, &entry.Status, &entry.ParksProcessed,
		&entry.RidesProcessed, &entry.Error,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest %s success: %w", jobType, err)
	}
	return entry, nil
}

// SuccessCovers reports whether successful runs of the job type cover every
// window up to the given instant, the retention pruner's precondition for
// deleting raw rows. The latest success alone is not enough: a failed or
// skipped hour behind it would lose its raw data forever if pruned.
func (r *LogRepository) SuccessCovers(ctx context.Context, jobType string, until time.Time) (bool, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT window_end
		FROM aggregation_log
		WHERE job_type = $1 AND status = 'success'
		ORDER BY window_end`, jobType,
	)
	if err != nil {
		return false, fmt.Errorf("failed to query %s success windows: %w", jobType, err)
	}
	defer rows.Close()

	var windowEnds []time.Time
	for rows.Next() {
		var w time.Time
		if err := rows.Scan(&w); err != nil {
			return false, fmt.Errorf("failed to scan success window: %w", err)
		}
		windowEnds = append(windowEnds, w)
	}
	return hourlySuccessCovers(windowEnds, until), nil
}

// hourlySuccessCovers reports whether an ascending list of successful hourly
// window ends forms an unbroken chain reaching the cutoff. Any gap before the
// cutoff holds coverage back, however many later runs succeeded.
func hourlySuccessCovers(windowEnds []time.Time, until time.Time) bool {
	if len(windowEnds) == 0 {
		return false
	}
	prev := windowEnds[0]
	for _, w := range windowEnds[1:] {
		if w.Sub(prev) > time.Hour && prev.Before(until) {
			return false
		}
		prev = w
	}
	return !windowEnds[len(windowEnds)-1].Before(until)
}

// ReleaseStale flips running markers older than the threshold to failed, so
// a crashed runner cannot wedge the job type forever.
func (r *LogRepository) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE aggregation_log
		SET status = 'failed', finished_at = NOW(), error = 'released: runner presumed dead'
		WHERE status = 'running' AND started_at < NOW() - $1::interval`,
		fmt.Sprintf("%d seconds", int(olderThan.Seconds())),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
