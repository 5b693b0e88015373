package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediaforge/internal/domain"
)

// RunRepositoryPG implements domain.RunRepository.
type RunRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewRunRepository creates a run repository backed by PostgreSQL.
func NewRunRepository(pool *pgxpool.Pool) *RunRepositoryPG {
	return &RunRepositoryPG{pool: pool}
}

// Create inserts the run together with its pre-populated step list in one
// transaction so a run is never visible without its steps.
func (r *RunRepositoryPG) Create(ctx context.Context, run *domain.Run, steps []domain.Step) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
INSERT INTO runs (id, user_id, variant, status, image_prompt, video_prompt, source_image_id, image_config, video_config, total_cost, error_message, project_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
`,
		run.ID,
		run.UserID,
		run.Variant,
		run.Status,
		run.ImagePrompt,
		run.VideoPrompt,
		run.SourceImageID,
		run.ImageConfig,
		run.VideoConfig,
		run.TotalCost,
		run.ErrorMessage,
		run.ProjectID,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, step := range steps {
		if _, err := tx.Exec(ctx, `
INSERT INTO run_steps (run_id, step_key, position, name, status, progress, cost)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`, run.ID, step.Key, i, step.Name, step.Status, step.Progress, step.Cost); err != nil {
			return fmt.Errorf("insert step %s: %w", step.Key, err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID fetches a run by its identifier.
func (r *RunRepositoryPG) GetByID(ctx context.Context, runID string) (*domain.Run, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, user_id, variant, status, image_prompt, video_prompt, source_image_id, image_config, video_config, total_cost, error_message, project_id, created_at, started_at, completed_at
FROM runs
WHERE id = $1;
`, runID)

	var run domain.Run
	if err := row.Scan(
		&run.ID,
		&run.UserID,
		&run.Variant,
		&run.Status,
		&run.ImagePrompt,
		&run.VideoPrompt,
		&run.SourceImageID,
		&run.ImageConfig,
		&run.VideoConfig,
		&run.TotalCost,
		&run.ErrorMessage,
		&run.ProjectID,
		&run.CreatedAt,
		&run.StartedAt,
		&run.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// ListSteps returns the run's steps in pipeline order.
func (r *RunRepositoryPG) ListSteps(ctx context.Context, runID string) ([]domain.Step, error) {
	rows, err := r.pool.Query(ctx, `
SELECT step_key, name, status, progress, cost, result_json, error_reason, started_at, completed_at
FROM run_steps
WHERE run_id = $1
ORDER BY position ASC;
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []domain.Step
	for rows.Next() {
		var step domain.Step
		if err := rows.Scan(
			&step.Key,
			&step.Name,
			&step.Status,
			&step.Progress,
			&step.Cost,
			&step.ResultJSON,
			&step.ErrorReason,
			&step.StartedAt,
			&step.CompletedAt,
		); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// UpdateRun persists status, cost and timestamps of the run.
func (r *RunRepositoryPG) UpdateRun(ctx context.Context, run *domain.Run) error {
	_, err := r.pool.Exec(ctx, `
UPDATE runs
SET status = $2, total_cost = $3, error_message = $4, started_at = $5, completed_at = $6
WHERE id = $1;
`, run.ID, run.Status, run.TotalCost, run.ErrorMessage, run.StartedAt, run.CompletedAt)
	return err
}

// UpdateStep persists one step row of the run.
func (r *RunRepositoryPG) UpdateStep(ctx context.Context, runID string, step *domain.Step) error {
	_, err := r.pool.Exec(ctx, `
UPDATE run_steps
SET status = $3, progress = $4, cost = $5, result_json = $6, error_reason = $7, started_at = $8, completed_at = $9
WHERE run_id = $1 AND step_key = $2;
`, runID, step.Key, step.Status, step.Progress, step.Cost, nullableBytes(step.ResultJSON), step.ErrorReason, step.StartedAt, step.CompletedAt)
	return err
}

// CountActive returns how many queued or running runs the user currently has.
func (r *RunRepositoryPG) CountActive(ctx context.Context, userID string) (int, error) {
	row := r.pool.QueryRow(ctx, `
SELECT count(*) FROM runs WHERE user_id = $1 AND status IN ('queued', 'running');
`, userID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
