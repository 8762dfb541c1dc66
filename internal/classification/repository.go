package classification

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles database access for the classification cache
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new classification repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListAll retrieves every cached classification
func (r *Repository) ListAll(ctx context.Context) ([]*Classification, error) {
	query := `
		SELECT park_id, ride_id, tier, category, confidence, reasoning,
		       COALESCE(research_sources, '[]'::jsonb), schema_version, updated_at
		FROM ride_classifications
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list classifications: %w", err)
	}
	defer rows.Close()

	var results []*Classification
	for rows.Next() {
		c := &Classification{}
		err := rows.Scan(
			&c.ParkID,
			&c.RideID,
			&c.Tier,
			&c.Category,
			&c.Confidence,
			&c.Reasoning,
			&c.ResearchSources,
			&c.SchemaVersion,
			&c.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan classification: %w", err)
		}
		results = append(results, c)
	}

	return results, nil
}

// CurrentSchemaVersion returns the highest schema version present in the cache
func (r *Repository) CurrentSchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(schema_version), 0) FROM ride_classifications
	`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get classification schema version: %w", err)
	}
	return version, nil
}

// Upsert writes a classification row keyed by (park, ride)
func (r *Repository) Upsert(ctx context.Context, c *Classification) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO ride_classifications (
			park_id, ride_id, tier, category, confidence, reasoning,
			research_sources, schema_version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (park_id, ride_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			category = EXCLUDED.category,
			confidence = EXCLUDED.confidence,
			reasoning = EXCLUDED.reasoning,
			research_sources = EXCLUDED.research_sources,
			schema_version = EXCLUDED.schema_version,
			updated_at = NOW()`,
		c.ParkID, c.RideID, c.Tier, c.Category, c.Confidence,
		c.Reasoning, c.ResearchSources, c.SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert classification: %w", err)
	}
	return nil
}
