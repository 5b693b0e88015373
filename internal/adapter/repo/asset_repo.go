package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediaforge/internal/domain"
)

// AssetRepositoryPG implements domain.AssetRepository using PostgreSQL.
type AssetRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewAssetRepository constructs a new asset repository instance.
func NewAssetRepository(pool *pgxpool.Pool) *AssetRepositoryPG {
	return &AssetRepositoryPG{pool: pool}
}

// Save persists one generated asset.
func (r *AssetRepositoryPG) Save(ctx context.Context, asset *domain.Asset) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO assets (id, user_id, run_id, kind, status, storage_key, provider, prompt, width, height, duration_seconds, source_asset_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
`,
		asset.ID,
		asset.UserID,
		asset.RunID,
		asset.Kind,
		asset.Status,
		asset.StorageKey,
		asset.Provider,
		asset.Prompt,
		asset.Width,
		asset.Height,
		asset.DurationSeconds,
		nullableID(asset.SourceAssetID),
	)
	return err
}

// GetByID fetches one asset by its identifier.
func (r *AssetRepositoryPG) GetByID(ctx context.Context, assetID string) (*domain.Asset, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, user_id, run_id, kind, status, storage_key, provider, prompt, width, height, duration_seconds, COALESCE(source_asset_id::text, ''), created_at
FROM assets
WHERE id = $1;
`, assetID)
	var asset domain.Asset
	if err := row.Scan(
		&asset.ID,
		&asset.UserID,
		&asset.RunID,
		&asset.Kind,
		&asset.Status,
		&asset.StorageKey,
		&asset.Provider,
		&asset.Prompt,
		&asset.Width,
		&asset.Height,
		&asset.DurationSeconds,
		&asset.SourceAssetID,
		&asset.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &asset, nil
}

// ListByRunID returns all assets belonging to the run in creation order.
func (r *AssetRepositoryPG) ListByRunID(ctx context.Context, runID string) ([]domain.Asset, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, run_id, kind, status, storage_key, provider, prompt, width, height, duration_seconds, COALESCE(source_asset_id::text, ''), created_at
FROM assets
WHERE run_id = $1
ORDER BY created_at ASC;
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		var asset domain.Asset
		if err := rows.Scan(
			&asset.ID,
			&asset.UserID,
			&asset.RunID,
			&asset.Kind,
			&asset.Status,
			&asset.StorageKey,
			&asset.Provider,
			&asset.Prompt,
			&asset.Width,
			&asset.Height,
			&asset.DurationSeconds,
			&asset.SourceAssetID,
			&asset.CreatedAt,
		); err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}
