package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists and reads anomaly findings.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates an anomaly repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Insert stores one finding.
func (r *Repository) Insert(ctx context.Context, f *Finding) error {
	query := `
		INSERT INTO anomaly_findings (
			stat_date, entity_type, entity_id, detector, severity,
			observed, expected, z_score, detail
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		f.StatDate, f.EntityType, f.EntityID, f.Detector, f.Severity,
		f.Observed, f.Expected, f.ZScore, f.Detail,
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert anomaly finding: %w", err)
	}
	return nil
}

// ListByDate returns all findings for one date, newest first.
func (r *Repository) ListByDate(ctx context.Context, date time.Time) ([]*Finding, error) {
	query := `
		SELECT id, stat_date, entity_type, entity_id, detector, severity,
		       observed, expected, z_score, detail, created_at
		FROM anomaly_findings
		WHERE stat_date = $1
		ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list anomaly findings: %w", err)
	}
	defer rows.Close()

	var out []*Finding
	for rows.Next() {
		f := &Finding{}
		err := rows.Scan(&f.ID, &f.StatDate, &f.EntityType, &f.EntityID,
			&f.Detector, &f.Severity, &f.Observed, &f.Expected,
			&f.ZScore, &f.Detail, &f.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan anomaly finding: %w", err)
		}
		out = append(out, f)
	}
	return out, nil
}
