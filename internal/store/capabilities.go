package store

import (
	"context"
	"database/sql"
	"fmt"
)

// DetectCapabilities probes the schema for optional legacy and catalog features. Schema facts do
// not change while the process runs, so callers compute this once and pass it around.
func DetectCapabilities(ctx context.Context, db *sql.DB) (Capabilities, error) {
	var caps Capabilities
	var err error

	if caps.LegacyRoomType, err = columnExists(ctx, db, "bindings", "room_type"); err != nil {
		return Capabilities{}, err
	}
	if caps.ItemSortOrder, err = columnExists(ctx, db, "items", "sort_order"); err != nil {
		return Capabilities{}, err
	}
	if caps.ItemSizes, err = tableExists(ctx, db, "item_sizes"); err != nil {
		return Capabilities{}, err
	}
	if caps.ItemImages, err = tableExists(ctx, db, "item_images"); err != nil {
		return Capabilities{}, err
	}
	return caps, nil
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2
		)
	`, table, column).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check column %s.%s: %w", table, column, err)
	}
	return exists, nil
}

func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)
	`, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return exists, nil
}
