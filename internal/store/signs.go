package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrAssetNotFound = errors.New("sign asset not found")

const signAssetColumns = `id, binding_id, image_url, COALESCE(png_url, ''), COALESCE(webp_url, ''),
	COALESCE(source, ''), is_active, created_at`

func scanSignAsset(row rowScanner) (SignAsset, error) {
	var item SignAsset
	err := row.Scan(&item.ID, &item.BindingID, &item.ImageURL, &item.PNGURL, &item.WebPURL, &item.Source, &item.Active, &item.CreatedAt)
	return item, err
}

// ListSignAssets returns a binding's assets, newest first.
func (s *PostgresStore) ListSignAssets(ctx context.Context, bindingID int64) ([]SignAsset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+signAssetColumns+`
		FROM sign_assets
		WHERE binding_id=$1
		ORDER BY created_at DESC, id DESC
	`, bindingID)
	if err != nil {
		return nil, fmt.Errorf("list sign assets: %w", err)
	}
	defer rows.Close()

	items := make([]SignAsset, 0)
	for rows.Next() {
		item, err := scanSignAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sign asset: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sign assets: %w", err)
	}
	return items, nil
}

// FindSignAssetByURL returns nil when the binding has no asset with that image URL.
func (s *PostgresStore) FindSignAssetByURL(ctx context.Context, bindingID int64, imageURL string) (*SignAsset, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+signAssetColumns+`
		FROM sign_assets
		WHERE binding_id=$1 AND image_url=$2
	`, bindingID, imageURL)
	item, err := scanSignAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find sign asset: %w", err)
	}
	return &item, nil
}

// InsertSignAsset stores a new asset. With activate set, siblings are deactivated and the URL is
// mirrored onto the binding in the same transaction.
func (s *PostgresStore) InsertSignAsset(ctx context.Context, asset SignAsset, activate bool) (SignAsset, error) {
	var created SignAsset
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if activate {
			if err := deactivateSiblings(ctx, tx, asset.BindingID, 0); err != nil {
				return err
			}
		}
		row := tx.QueryRowContext(ctx, `
			INSERT INTO sign_assets (binding_id, image_url, png_url, webp_url, source, is_active)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+signAssetColumns,
			asset.BindingID, asset.ImageURL, asset.PNGURL, asset.WebPURL, asset.Source, activate)
		item, err := scanSignAsset(row)
		if err != nil {
			return fmt.Errorf("insert sign asset: %w", err)
		}
		created = item
		if activate {
			return mirrorImage(ctx, tx, asset.BindingID, asset.ImageURL)
		}
		return nil
	})
	if err != nil {
		return SignAsset{}, err
	}
	return created, nil
}

// ActivateSignAsset makes assetID the binding's only active asset and mirrors its URL onto the
// binding.
func (s *PostgresStore) ActivateSignAsset(ctx context.Context, bindingID, assetID int64) (SignAsset, error) {
	var activated SignAsset
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		target, err := lockSignAsset(ctx, tx, bindingID, assetID)
		if err != nil {
			return err
		}
		if err := deactivateSiblings(ctx, tx, bindingID, assetID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sign_assets SET is_active=TRUE WHERE id=$1`, assetID); err != nil {
			return fmt.Errorf("activate sign asset: %w", err)
		}
		target.Active = true
		activated = target
		return mirrorImage(ctx, tx, bindingID, target.ImageURL)
	})
	if err != nil {
		return SignAsset{}, err
	}
	return activated, nil
}

// DeleteSignAsset removes an asset. When it was the active one, the newest remaining asset is
// promoted and mirrored onto the binding; with none left the binding's image is cleared.
func (s *PostgresStore) DeleteSignAsset(ctx context.Context, bindingID, assetID int64) (SignAsset, error) {
	var deleted SignAsset
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		target, err := lockSignAsset(ctx, tx, bindingID, assetID)
		if err != nil {
			return err
		}
		deleted = target
		if _, err := tx.ExecContext(ctx, `DELETE FROM sign_assets WHERE id=$1`, assetID); err != nil {
			return fmt.Errorf("delete sign asset: %w", err)
		}
		if !target.Active {
			return nil
		}

		var nextID int64
		var nextURL string
		err = tx.QueryRowContext(ctx, `
			SELECT id, image_url
			FROM sign_assets
			WHERE binding_id=$1
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		`, bindingID).Scan(&nextID, &nextURL)
		if errors.Is(err, sql.ErrNoRows) {
			return mirrorImage(ctx, tx, bindingID, "")
		}
		if err != nil {
			return fmt.Errorf("find promotable sign asset: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sign_assets SET is_active=TRUE WHERE id=$1`, nextID); err != nil {
			return fmt.Errorf("promote sign asset: %w", err)
		}
		return mirrorImage(ctx, tx, bindingID, nextURL)
	})
	if err != nil {
		return SignAsset{}, err
	}
	return deleted, nil
}

func lockSignAsset(ctx context.Context, tx *sql.Tx, bindingID, assetID int64) (SignAsset, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+signAssetColumns+`
		FROM sign_assets
		WHERE id=$1 AND binding_id=$2
		FOR UPDATE
	`, assetID, bindingID)
	item, err := scanSignAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SignAsset{}, ErrAssetNotFound
	}
	if err != nil {
		return SignAsset{}, fmt.Errorf("lock sign asset: %w", err)
	}
	return item, nil
}

// deactivateSiblings clears the active flag on every asset of the binding except keepID.
func deactivateSiblings(ctx context.Context, tx *sql.Tx, bindingID, keepID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE sign_assets SET is_active=FALSE
		WHERE binding_id=$1 AND id<>$2 AND is_active
	`, bindingID, keepID)
	if err != nil {
		return fmt.Errorf("deactivate sibling sign assets: %w", err)
	}
	return nil
}

func mirrorImage(ctx context.Context, tx *sql.Tx, bindingID int64, imageURL string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE bindings SET content_image=$2, updated_at=NOW()
		WHERE id=$1
	`, bindingID, imageURL)
	if err != nil {
		return fmt.Errorf("mirror sign image onto binding: %w", err)
	}
	return nil
}

// swapSignAssets hands each binding's assets to the other. The rows are deleted and re-inserted
// with their ids because the unique indexes on binding_id are checked row by row.
func swapSignAssets(ctx context.Context, tx *sql.Tx, idA, idB int64) error {
	rows, err := tx.QueryContext(ctx, `
		DELETE FROM sign_assets
		WHERE binding_id IN ($1, $2)
		RETURNING `+signAssetColumns, idA, idB)
	if err != nil {
		return fmt.Errorf("detach sign assets: %w", err)
	}
	moved := make([]SignAsset, 0)
	for rows.Next() {
		item, err := scanSignAsset(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("scan detached sign asset: %w", err)
		}
		moved = append(moved, item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate detached sign assets: %w", err)
	}
	rows.Close()

	for _, item := range moved {
		owner := idA
		if item.BindingID == idA {
			owner = idB
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sign_assets (id, binding_id, image_url, png_url, webp_url, source, is_active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, item.ID, owner, item.ImageURL, item.PNGURL, item.WebPURL, item.Source, item.Active, item.CreatedAt)
		if err != nil {
			return fmt.Errorf("reattach sign asset %d: %w", item.ID, err)
		}
	}
	return nil
}
