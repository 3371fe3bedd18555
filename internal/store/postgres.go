package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"hotspot/api/internal/binding"
	"hotspot/api/internal/layout"
)

var (
	// ErrNotActive is returned when an operation requires active bindings and at least one is
	// missing or inactive.
	ErrNotActive = errors.New("binding is not active")
)

// IsUniqueViolation reports whether err came from a unique index, such as the one-active-binding
// per region index.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const bindingColumns = `
	id, room_key, region_selector, kind,
	COALESCE(item_id, ''), COALESCE(category_id, ''), COALESCE(link_url, ''), COALESCE(link_label, ''),
	COALESCE(content_target, ''), COALESCE(content_image, ''), COALESCE(name, ''),
	display_order, is_active, created_at, updated_at`

type PostgresStore struct {
	db   *sql.DB
	caps Capabilities
}

func NewPostgresStore(db *sql.DB, caps Capabilities) *PostgresStore {
	return &PostgresStore{db: db, caps: caps}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Capabilities() Capabilities {
	return s.caps
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBinding(row rowScanner) (Binding, error) {
	var (
		item Binding
		kind string
	)
	err := row.Scan(
		&item.ID,
		&item.RoomKey,
		&item.RegionSelector,
		&kind,
		&item.ItemID,
		&item.CategoryID,
		&item.LinkURL,
		&item.LinkLabel,
		&item.ContentTarget,
		&item.ContentImage,
		&item.Name,
		&item.DisplayOrder,
		&item.Active,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Binding{}, err
	}
	item.Kind = binding.Kind(kind)
	return item, nil
}

func (s *PostgresStore) queryBindings(ctx context.Context, query string, args ...any) ([]Binding, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	defer rows.Close()

	items := make([]Binding, 0)
	for rows.Next() {
		item, err := scanBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bindings: %w", err)
	}
	return items, nil
}

// ListActiveBindings returns active bindings whose room key matches any of keys,
// case-insensitively, ordered by display order then id.
func (s *PostgresStore) ListActiveBindings(ctx context.Context, keys []string) ([]Binding, error) {
	if len(keys) == 0 {
		return []Binding{}, nil
	}
	query := `SELECT ` + bindingColumns + `
		FROM bindings
		WHERE is_active AND LOWER(room_key) IN (` + lowerPlaceholders(1, len(keys)) + `)
		ORDER BY display_order, id`
	return s.queryBindings(ctx, query, stringArgs(keys)...)
}

// ListActiveBindingsByRoomType repeats the alias lookup against the legacy room_type column.
// Without that column it returns nothing.
func (s *PostgresStore) ListActiveBindingsByRoomType(ctx context.Context, keys []string) ([]Binding, error) {
	if !s.caps.LegacyRoomType || len(keys) == 0 {
		return []Binding{}, nil
	}
	query := `SELECT ` + bindingColumns + `
		FROM bindings
		WHERE is_active AND LOWER(room_type) IN (` + lowerPlaceholders(1, len(keys)) + `)
		ORDER BY display_order, id`
	return s.queryBindings(ctx, query, stringArgs(keys)...)
}

func (s *PostgresStore) ListBindings(ctx context.Context, roomKey string, includeInactive bool) ([]Binding, error) {
	query := `SELECT ` + bindingColumns + `
		FROM bindings
		WHERE LOWER(room_key) = LOWER($1)`
	if !includeInactive {
		query += ` AND is_active`
	}
	query += ` ORDER BY display_order, id`
	return s.queryBindings(ctx, query, roomKey)
}

func (s *PostgresStore) GetBinding(ctx context.Context, id int64) (Binding, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bindingColumns+` FROM bindings WHERE id=$1`, id)
	item, err := scanBinding(row)
	if err != nil {
		return Binding{}, err
	}
	return item, nil
}

// FindActiveBindingByRegion returns the room's active binding whose selector names the same region
// as selector, so legacy spellings like "area1" match ".area-1". It returns nil when the region is
// unclaimed.
func (s *PostgresStore) FindActiveBindingByRegion(ctx context.Context, roomKey, selector string) (*Binding, error) {
	rows, err := s.ListBindings(ctx, roomKey, false)
	if err != nil {
		return nil, fmt.Errorf("find binding by region: %w", err)
	}
	return OccupantOf(rows, selector), nil
}

// OccupantOf picks the lowest-id active row in rows that sits on selector's region.
func OccupantOf(rows []Binding, selector string) *Binding {
	want := layout.CanonicalSelector(selector)
	var found *Binding
	for i := range rows {
		row := rows[i]
		if !row.Active || layout.CanonicalSelector(row.RegionSelector) != want {
			continue
		}
		if found == nil || row.ID < found.ID {
			found = &row
		}
	}
	return found
}

func (s *PostgresStore) MaxDisplayOrder(ctx context.Context, roomKey string) (int, error) {
	var max int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(display_order), 0)
		FROM bindings
		WHERE is_active AND LOWER(room_key) = LOWER($1)
	`, roomKey).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max display order: %w", err)
	}
	return max, nil
}

func (s *PostgresStore) InsertBinding(ctx context.Context, item Binding) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO bindings (
			room_key, region_selector, kind, item_id, category_id, link_url, link_label,
			content_target, content_image, name, display_order, is_active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, TRUE)
		RETURNING id
	`,
		item.RoomKey,
		item.RegionSelector,
		string(item.Kind),
		item.ItemID,
		item.CategoryID,
		item.LinkURL,
		item.LinkLabel,
		item.ContentTarget,
		item.ContentImage,
		item.Name,
		item.DisplayOrder,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert binding: %w", err)
	}
	return id, nil
}

// UpdateBinding writes only the fields set in patch and reports the number of rows changed.
// An empty patch issues no statement.
func (s *PostgresStore) UpdateBinding(ctx context.Context, id int64, patch BindingPatch) (int64, error) {
	if patch.Empty() {
		return 0, nil
	}
	sets := make([]string, 0, 12)
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if patch.RegionSelector != nil {
		add("region_selector", *patch.RegionSelector)
	}
	if patch.Kind != nil {
		add("kind", string(*patch.Kind))
	}
	if patch.ItemID != nil {
		add("item_id", *patch.ItemID)
	}
	if patch.CategoryID != nil {
		add("category_id", *patch.CategoryID)
	}
	if patch.LinkURL != nil {
		add("link_url", *patch.LinkURL)
	}
	if patch.LinkLabel != nil {
		add("link_label", *patch.LinkLabel)
	}
	if patch.ContentTarget != nil {
		add("content_target", *patch.ContentTarget)
	}
	if patch.ContentImage != nil {
		add("content_image", *patch.ContentImage)
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.DisplayOrder != nil {
		add("display_order", *patch.DisplayOrder)
	}
	if patch.Active != nil {
		add("is_active", *patch.Active)
	}
	sets = append(sets, "updated_at=NOW()")

	result, err := s.db.ExecContext(ctx, `UPDATE bindings SET `+strings.Join(sets, ", ")+` WHERE id=$1`, args...)
	if err != nil {
		return 0, fmt.Errorf("update binding: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update binding rows: %w", err)
	}
	return affected, nil
}

// DeactivateBinding soft-deletes an active row; it reports false when nothing was active.
func (s *PostgresStore) DeactivateBinding(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bindings SET is_active=FALSE, updated_at=NOW()
		WHERE id=$1 AND is_active
	`, id)
	if err != nil {
		return false, fmt.Errorf("deactivate binding: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate binding rows: %w", err)
	}
	return affected > 0, nil
}

// DeleteBinding hard-deletes a row only once it is inactive. Its sign assets go with it.
func (s *PostgresStore) DeleteBinding(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM bindings WHERE id=$1 AND NOT is_active`, id)
	if err != nil {
		return false, fmt.Errorf("delete binding: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete binding rows: %w", err)
	}
	return affected > 0, nil
}

type bindingContent struct {
	id            int64
	kind          string
	itemID        string
	categoryID    string
	linkURL       string
	linkLabel     string
	contentTarget string
	contentImage  string
	name          string
}

// SwapBindings exchanges what two active bindings point at while each keeps its room, region and
// display order. Sign assets follow the image they produced. Both rows are locked for the
// duration; if either is not active nothing changes and ErrNotActive is returned.
func (s *PostgresStore) SwapBindings(ctx context.Context, idA, idB int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, kind, COALESCE(item_id, ''), COALESCE(category_id, ''), COALESCE(link_url, ''),
				COALESCE(link_label, ''), COALESCE(content_target, ''), COALESCE(content_image, ''), COALESCE(name, '')
			FROM bindings
			WHERE id IN ($1, $2) AND is_active
			ORDER BY id
			FOR UPDATE
		`, idA, idB)
		if err != nil {
			return fmt.Errorf("lock bindings for swap: %w", err)
		}
		found := map[int64]bindingContent{}
		for rows.Next() {
			var c bindingContent
			if err := rows.Scan(&c.id, &c.kind, &c.itemID, &c.categoryID, &c.linkURL, &c.linkLabel, &c.contentTarget, &c.contentImage, &c.name); err != nil {
				rows.Close()
				return fmt.Errorf("scan swap binding: %w", err)
			}
			found[c.id] = c
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterate swap bindings: %w", err)
		}
		rows.Close()

		a, okA := found[idA]
		b, okB := found[idB]
		if !okA || !okB {
			return ErrNotActive
		}
		if err := writeContent(ctx, tx, idA, b); err != nil {
			return err
		}
		if err := writeContent(ctx, tx, idB, a); err != nil {
			return err
		}
		return swapSignAssets(ctx, tx, idA, idB)
	})
}

func writeContent(ctx context.Context, tx *sql.Tx, id int64, c bindingContent) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE bindings
		SET kind=$2, item_id=$3, category_id=$4, link_url=$5, link_label=$6,
			content_target=$7, content_image=$8, name=$9, updated_at=NOW()
		WHERE id=$1
	`, id, c.kind, c.itemID, c.categoryID, c.linkURL, c.linkLabel, c.contentTarget, c.contentImage, c.name)
	if err != nil {
		return fmt.Errorf("swap binding %d: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// lowerPlaceholders renders "LOWER($start), LOWER($start+1), ..." for n arguments.
func lowerPlaceholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("LOWER($%d)", start+i)
	}
	return strings.Join(parts, ", ")
}

func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
