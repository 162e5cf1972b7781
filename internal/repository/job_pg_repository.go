package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/diagnostic-gateway/internal/model"
)

// PostgresJobRegistry keeps the registry in the diagnostic_jobs table
// (see migrations/).
type PostgresJobRegistry struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPostgresJobRegistry creates a new PostgresJobRegistry.
func NewPostgresJobRegistry(pool *pgxpool.Pool, ttl time.Duration) *PostgresJobRegistry {
	return &PostgresJobRegistry{pool: pool, ttl: ttl}
}

// Register inserts the job, or refreshes it when the diagnostic is resubmitted.
func (r *PostgresJobRegistry) Register(ctx context.Context, job model.DiagnosticJob) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO diagnostic_jobs (diagnostic_id, engagement_id, user_id, submitted_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (diagnostic_id) DO UPDATE
		 SET engagement_id = EXCLUDED.engagement_id,
		     user_id = EXCLUDED.user_id,
		     submitted_at = EXCLUDED.submitted_at`,
		job.ID, job.EngagementID, job.UserID, job.Timestamp,
	)
	return err
}

// List prunes expired rows and returns the rest, oldest first.
func (r *PostgresJobRegistry) List(ctx context.Context) ([]model.DiagnosticJob, error) {
	cutoff := time.Now().Add(-r.ttl)

	if _, err := r.pool.Exec(ctx,
		`DELETE FROM diagnostic_jobs WHERE submitted_at < $1`, cutoff,
	); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT diagnostic_id, engagement_id, user_id, submitted_at
		 FROM diagnostic_jobs
		 ORDER BY submitted_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.DiagnosticJob
	for rows.Next() {
		var j model.DiagnosticJob
		if err := rows.Scan(&j.ID, &j.EngagementID, &j.UserID, &j.Timestamp); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Complete removes the job for diagnosticID and reports whether a row was
// deleted.
func (r *PostgresJobRegistry) Complete(ctx context.Context, diagnosticID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM diagnostic_jobs WHERE diagnostic_id = $1`, diagnosticID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
