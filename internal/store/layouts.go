package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const layoutColumns = `id, room_key, COALESCE(coordinates::text, ''), COALESCE(reference_width, 0),
	COALESCE(reference_height, 0), is_active, updated_at`

func scanLayout(row rowScanner) (RegionLayout, error) {
	var (
		item   RegionLayout
		coords string
	)
	if err := row.Scan(&item.ID, &item.RoomKey, &coords, &item.ReferenceWidth, &item.ReferenceHeight, &item.Active, &item.UpdatedAt); err != nil {
		return RegionLayout{}, err
	}
	item.Coordinates = []byte(coords)
	return item, nil
}

// GetRegionLayout loads a layout by id regardless of its active flag. It returns nil when the id
// is unknown.
func (s *PostgresStore) GetRegionLayout(ctx context.Context, id int64) (*RegionLayout, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+layoutColumns+` FROM region_layouts WHERE id=$1`, id)
	item, err := scanLayout(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get region layout: %w", err)
	}
	return &item, nil
}

// LatestRegionLayout returns the most recently updated active layout recorded under any of keys.
func (s *PostgresStore) LatestRegionLayout(ctx context.Context, keys []string) (*RegionLayout, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+layoutColumns+`
		FROM region_layouts
		WHERE is_active AND LOWER(room_key) IN (`+lowerPlaceholders(1, len(keys))+`)
		ORDER BY updated_at DESC, id DESC
		LIMIT 1
	`, stringArgs(keys)...)
	item, err := scanLayout(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest region layout: %w", err)
	}
	return &item, nil
}
