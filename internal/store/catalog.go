package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetItems loads catalog items by id. Unknown ids are absent from the result.
func (s *PostgresStore) GetItems(ctx context.Context, ids []string) (map[string]Item, error) {
	out := make(map[string]Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(name, ''), COALESCE(image_url, ''), COALESCE(stock, 0)
		FROM items
		WHERE id IN (`+placeholders(1, len(ids))+`)
	`, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("get items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.Name, &item.ImageURL, &item.Stock); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return out, nil
}

// ItemPrimaryImages returns the primary image path per item, when the item_images table exists.
func (s *PostgresStore) ItemPrimaryImages(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if !s.caps.ItemImages || len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (item_id) item_id, image_path
		FROM item_images
		WHERE item_id IN (`+placeholders(1, len(ids))+`) AND image_path <> ''
		ORDER BY item_id, is_primary DESC, sort_order, id
	`, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("item images: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var itemID, path string
		if err := rows.Scan(&itemID, &path); err != nil {
			return nil, fmt.Errorf("scan item image: %w", err)
		}
		out[itemID] = path
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item images: %w", err)
	}
	return out, nil
}

// ItemSizeStock sums per-size stock. Items without size rows are absent from the result, so the
// caller can fall back to the item's own stock field.
func (s *PostgresStore) ItemSizeStock(ctx context.Context, ids []string) (map[string]int, error) {
	out := make(map[string]int, len(ids))
	if !s.caps.ItemSizes || len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, COALESCE(SUM(stock), 0)
		FROM item_sizes
		WHERE item_id IN (`+placeholders(1, len(ids))+`) AND is_active
		GROUP BY item_id
	`, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("item size stock: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var itemID string
		var stock int
		if err := rows.Scan(&itemID, &stock); err != nil {
			return nil, fmt.Errorf("scan item size stock: %w", err)
		}
		out[itemID] = stock
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item size stock: %w", err)
	}
	return out, nil
}

// PrimaryCategory returns the room's primary category, preferring an assignment recorded under the
// first key. It returns nil when the room has none.
func (s *PostgresStore) PrimaryCategory(ctx context.Context, keys []string) (*Category, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var category Category
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, COALESCE(c.name, '')
		FROM room_category_assignments a
		JOIN categories c ON c.id = a.category_id
		WHERE a.is_primary AND LOWER(a.room_key) IN (`+lowerPlaceholders(1, len(keys))+`)
		ORDER BY (LOWER(a.room_key) = LOWER($1)) DESC, a.id
		LIMIT 1
	`, stringArgs(keys)...).Scan(&category.ID, &category.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("primary category: %w", err)
	}
	return &category, nil
}

// CategoryItems lists live, active, non-archived items of a category in display order.
func (s *PostgresStore) CategoryItems(ctx context.Context, categoryID string) ([]Item, error) {
	order := `id`
	if s.caps.ItemSortOrder {
		order = `sort_order NULLS LAST, id`
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(name, ''), COALESCE(image_url, ''), COALESCE(stock, 0)
		FROM items
		WHERE category_id = $1 AND is_live AND is_active AND NOT is_archived
		ORDER BY `+order, categoryID)
	if err != nil {
		return nil, fmt.Errorf("category items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.Name, &item.ImageURL, &item.Stock); err != nil {
			return nil, fmt.Errorf("scan category item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category items: %w", err)
	}
	return items, nil
}
