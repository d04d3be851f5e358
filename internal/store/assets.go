package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/oder/internal/custody"
	"github.com/erazemk/oder/internal/model"
)

const assetColumns = `id, model, status, created_at, updated_at`

func scanAsset(row interface{ Scan(...any) error }) (model.Asset, error) {
	var a model.Asset
	var created, updated string
	if err := row.Scan(&a.ID, &a.Model, &a.Status, &created, &updated); err != nil {
		return a, err
	}
	var err error
	if a.CreatedAt, err = parseTime(created); err != nil {
		return a, err
	}
	if a.UpdatedAt, err = parseTime(updated); err != nil {
		return a, err
	}
	return a, nil
}

// CreateAssets inserts new catalog entries. An id that already exists fails
// the whole batch.
func CreateAssets(ctx context.Context, db DBTX, assets []model.Asset) error {
	for _, a := range assets {
		_, err := db.ExecContext(ctx,
			`INSERT INTO assets (id, model, model_key, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			a.ID, a.Model, model.NormalizeModel(a.Model), a.Status, formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("creating asset %s: %w", a.ID, err)
		}
	}
	return nil
}

// UpsertAsset writes a catalog entry, replacing any existing one.
func UpsertAsset(ctx context.Context, db DBTX, a model.Asset) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO assets (id, model, model_key, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     model = excluded.model, model_key = excluded.model_key,
		     status = excluded.status, updated_at = excluded.updated_at`,
		a.ID, a.Model, model.NormalizeModel(a.Model), a.Status, formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting asset %s: %w", a.ID, err)
	}
	return nil
}

// GetAsset returns a catalog entry by id.
func GetAsset(ctx context.Context, db DBTX, id string) (*model.Asset, error) {
	a, err := scanAsset(db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting asset: %w", err)
	}
	return &a, nil
}

// GetAssets returns the catalog entries of ids keyed by id. Unknown ids are
// left out.
func GetAssets(ctx context.Context, db DBTX, ids []string) (map[string]model.Asset, error) {
	out := make(map[string]model.Asset, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE id IN (`+placeholders(len(ids))+`)`,
		stringArgs(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("getting assets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

// ListAssets returns catalog entries ordered by model and id.
func ListAssets(ctx context.Context, db DBTX, filter custody.AssetFilter) ([]model.Asset, error) {
	var where []string
	var args []any
	if filter.Model != "" {
		where = append(where, "model_key = ?")
		args = append(args, model.NormalizeModel(filter.Model))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		where = append(where, `id LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(q))
	}

	query := `SELECT ` + assetColumns + ` FROM assets`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY model_key, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	defer rows.Close()

	var assets []model.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// SetAssetStatus sets the status of every listed asset.
func SetAssetStatus(ctx context.Context, db DBTX, ids []string, status string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := append([]any{status, formatTime(now)}, stringArgs(ids)...)
	_, err := db.ExecContext(ctx,
		`UPDATE assets SET status = ?, updated_at = ? WHERE id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("setting asset status: %w", err)
	}
	return nil
}

// SetModelImage stores the photo shown for a model.
func SetModelImage(ctx context.Context, db DBTX, modelName string, data []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO model_images (model_key, model, image, mime) VALUES (?, ?, ?, ?)
		 ON CONFLICT (model_key) DO UPDATE SET model = excluded.model, image = excluded.image, mime = excluded.mime`,
		model.NormalizeModel(modelName), modelName, data, mime,
	)
	if err != nil {
		return fmt.Errorf("setting model image: %w", err)
	}
	return nil
}

// GetModelImage returns the photo of a model, or nil if none is stored.
func GetModelImage(ctx context.Context, db DBTX, modelName string) ([]byte, string, error) {
	var data []byte
	var mime string
	err := db.QueryRowContext(ctx,
		`SELECT image, mime FROM model_images WHERE model_key = ?`, model.NormalizeModel(modelName),
	).Scan(&data, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting model image: %w", err)
	}
	return data, mime, nil
}
