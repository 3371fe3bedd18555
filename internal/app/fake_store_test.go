package app

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"hotspot/api/internal/store"
)

// memStore is an in-memory dataStore. Multi-row operations work on a copy and only publish it
// when every step succeeded, mirroring a committed transaction.
type memStore struct {
	mu         sync.Mutex
	nextID     int64
	nextAsset  int64
	clock      time.Time
	bindings   map[int64]store.Binding
	roomTypes  map[int64]string
	assets     map[int64]store.SignAsset
	items      map[string]store.Item
	itemImages map[string]string
	sizeStock  map[string]int
	categories map[string]store.Category
	primary    map[string]string
	catItems   map[string][]string
	layouts    []store.RegionLayout

	// fail maps an operation name to the error it returns.
	fail map[string]error
	// failSwapWrite fails the second write of a swap, after the first has been applied to the copy.
	failSwapWrite error
	calls         map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		clock:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		bindings:   map[int64]store.Binding{},
		roomTypes:  map[int64]string{},
		assets:     map[int64]store.SignAsset{},
		items:      map[string]store.Item{},
		itemImages: map[string]string{},
		sizeStock:  map[string]int{},
		categories: map[string]store.Category{},
		primary:    map[string]string{},
		catItems:   map[string][]string{},
		fail:       map[string]error{},
		calls:      map[string]int{},
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memStore) enter(op string) error {
	m.calls[op]++
	return m.fail[op]
}

// seedBinding stores b as-is and returns its id.
func (m *memStore) seedBinding(b store.Binding) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	b.ID = m.nextID
	b.CreatedAt = m.tick()
	b.UpdatedAt = b.CreatedAt
	m.bindings[b.ID] = b
	return b.ID
}

func (m *memStore) seedItems(categoryID, categoryName string, rooms []string, items ...store.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[categoryID] = store.Category{ID: categoryID, Name: categoryName}
	for _, room := range rooms {
		m.primary[strings.ToLower(room)] = categoryID
	}
	for _, item := range items {
		m.items[item.ID] = item
		m.catItems[categoryID] = append(m.catItems[categoryID], item.ID)
	}
}

func (m *memStore) seedLayout(roomKey, coordinates string, width, height int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := int64(len(m.layouts) + 1)
	m.layouts = append(m.layouts, store.RegionLayout{
		ID:              id,
		RoomKey:         roomKey,
		Coordinates:     []byte(coordinates),
		ReferenceWidth:  width,
		ReferenceHeight: height,
		Active:          true,
		UpdatedAt:       m.tick(),
	})
	return id
}

func (m *memStore) binding(id int64) store.Binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bindings[id]
}

func (m *memStore) activeAssets(bindingID int64) []store.SignAsset {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.SignAsset, 0)
	for _, a := range m.assets {
		if a.BindingID == bindingID && a.Active {
			out = append(out, a)
		}
	}
	return out
}

func containsFold(keys []string, value string) bool {
	for _, k := range keys {
		if strings.EqualFold(k, value) {
			return true
		}
	}
	return false
}

func sortBindings(items []store.Binding) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].DisplayOrder != items[j].DisplayOrder {
			return items[i].DisplayOrder < items[j].DisplayOrder
		}
		return items[i].ID < items[j].ID
	})
}

func (m *memStore) ListActiveBindings(ctx context.Context, keys []string) ([]store.Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListActiveBindings"); err != nil {
		return nil, err
	}
	out := make([]store.Binding, 0)
	for _, b := range m.bindings {
		if b.Active && containsFold(keys, b.RoomKey) {
			out = append(out, b)
		}
	}
	sortBindings(out)
	return out, nil
}

func (m *memStore) ListActiveBindingsByRoomType(ctx context.Context, keys []string) ([]store.Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListActiveBindingsByRoomType"); err != nil {
		return nil, err
	}
	out := make([]store.Binding, 0)
	for id, roomType := range m.roomTypes {
		b := m.bindings[id]
		if b.Active && containsFold(keys, roomType) {
			out = append(out, b)
		}
	}
	sortBindings(out)
	return out, nil
}

func (m *memStore) ListBindings(ctx context.Context, roomKey string, includeInactive bool) ([]store.Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListBindings"); err != nil {
		return nil, err
	}
	out := make([]store.Binding, 0)
	for _, b := range m.bindings {
		if strings.EqualFold(b.RoomKey, roomKey) && (includeInactive || b.Active) {
			out = append(out, b)
		}
	}
	sortBindings(out)
	return out, nil
}

func (m *memStore) GetBinding(ctx context.Context, id int64) (store.Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetBinding"); err != nil {
		return store.Binding{}, err
	}
	b, ok := m.bindings[id]
	if !ok {
		return store.Binding{}, sql.ErrNoRows
	}
	return b, nil
}

func (m *memStore) activeAt(roomKey, selector string) *store.Binding {
	var found *store.Binding
	for _, b := range m.bindings {
		if b.Active && strings.EqualFold(b.RoomKey, roomKey) && b.RegionSelector == selector {
			if found == nil || b.ID < found.ID {
				copied := b
				found = &copied
			}
		}
	}
	return found
}

func (m *memStore) FindActiveBindingByRegion(ctx context.Context, roomKey, selector string) (*store.Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindActiveBindingByRegion"); err != nil {
		return nil, err
	}
	rows := make([]store.Binding, 0)
	for _, b := range m.bindings {
		if b.Active && strings.EqualFold(b.RoomKey, roomKey) {
			rows = append(rows, b)
		}
	}
	return store.OccupantOf(rows, selector), nil
}

func (m *memStore) MaxDisplayOrder(ctx context.Context, roomKey string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("MaxDisplayOrder"); err != nil {
		return 0, err
	}
	max := 0
	for _, b := range m.bindings {
		if b.Active && strings.EqualFold(b.RoomKey, roomKey) && b.DisplayOrder > max {
			max = b.DisplayOrder
		}
	}
	return max, nil
}

var errUniqueRegion = &pgconn.PgError{Code: "23505", ConstraintName: "uq_bindings_active_region"}

func (m *memStore) InsertBinding(ctx context.Context, item store.Binding) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertBinding"); err != nil {
		return 0, err
	}
	if m.activeAt(item.RoomKey, item.RegionSelector) != nil {
		return 0, errUniqueRegion
	}
	m.nextID++
	item.ID = m.nextID
	item.Active = true
	item.CreatedAt = m.tick()
	item.UpdatedAt = item.CreatedAt
	m.bindings[item.ID] = item
	return item.ID, nil
}

func (m *memStore) UpdateBinding(ctx context.Context, id int64, patch store.BindingPatch) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateBinding"); err != nil {
		return 0, err
	}
	if patch.Empty() {
		return 0, nil
	}
	b, ok := m.bindings[id]
	if !ok {
		return 0, nil
	}
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&b.RegionSelector, patch.RegionSelector)
	if patch.Kind != nil {
		b.Kind = *patch.Kind
	}
	apply(&b.ItemID, patch.ItemID)
	apply(&b.CategoryID, patch.CategoryID)
	apply(&b.LinkURL, patch.LinkURL)
	apply(&b.LinkLabel, patch.LinkLabel)
	apply(&b.ContentTarget, patch.ContentTarget)
	apply(&b.ContentImage, patch.ContentImage)
	apply(&b.Name, patch.Name)
	if patch.DisplayOrder != nil {
		b.DisplayOrder = *patch.DisplayOrder
	}
	if patch.Active != nil {
		b.Active = *patch.Active
	}
	if b.Active {
		if other := m.activeAt(b.RoomKey, b.RegionSelector); other != nil && other.ID != id {
			return 0, errUniqueRegion
		}
	}
	b.UpdatedAt = m.tick()
	m.bindings[id] = b
	return 1, nil
}

func (m *memStore) DeactivateBinding(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeactivateBinding"); err != nil {
		return false, err
	}
	b, ok := m.bindings[id]
	if !ok || !b.Active {
		return false, nil
	}
	b.Active = false
	m.bindings[id] = b
	return true, nil
}

func (m *memStore) DeleteBinding(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteBinding"); err != nil {
		return false, err
	}
	b, ok := m.bindings[id]
	if !ok || b.Active {
		return false, nil
	}
	delete(m.bindings, id)
	for assetID, a := range m.assets {
		if a.BindingID == id {
			delete(m.assets, assetID)
		}
	}
	return true, nil
}

func (m *memStore) SwapBindings(ctx context.Context, idA, idB int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SwapBindings"); err != nil {
		return err
	}
	a, okA := m.bindings[idA]
	b, okB := m.bindings[idB]
	if !okA || !okB || !a.Active || !b.Active {
		return store.ErrNotActive
	}
	staged := map[int64]store.Binding{}
	staged[idA] = withContentOf(a, b)
	if m.failSwapWrite != nil {
		return m.failSwapWrite
	}
	staged[idB] = withContentOf(b, a)
	for id, row := range staged {
		m.bindings[id] = row
	}
	for assetID, asset := range m.assets {
		switch asset.BindingID {
		case idA:
			asset.BindingID = idB
		case idB:
			asset.BindingID = idA
		default:
			continue
		}
		m.assets[assetID] = asset
	}
	return nil
}

func withContentOf(dst, src store.Binding) store.Binding {
	dst.Kind = src.Kind
	dst.ItemID = src.ItemID
	dst.CategoryID = src.CategoryID
	dst.LinkURL = src.LinkURL
	dst.LinkLabel = src.LinkLabel
	dst.ContentTarget = src.ContentTarget
	dst.ContentImage = src.ContentImage
	dst.Name = src.Name
	return dst
}

func (m *memStore) GetItems(ctx context.Context, ids []string) (map[string]store.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetItems"); err != nil {
		return nil, err
	}
	out := map[string]store.Item{}
	for _, id := range ids {
		if item, ok := m.items[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

func (m *memStore) ItemPrimaryImages(ctx context.Context, ids []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ItemPrimaryImages"); err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, id := range ids {
		if image, ok := m.itemImages[id]; ok {
			out[id] = image
		}
	}
	return out, nil
}

func (m *memStore) ItemSizeStock(ctx context.Context, ids []string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ItemSizeStock"); err != nil {
		return nil, err
	}
	out := map[string]int{}
	for _, id := range ids {
		if stock, ok := m.sizeStock[id]; ok {
			out[id] = stock
		}
	}
	return out, nil
}

func (m *memStore) PrimaryCategory(ctx context.Context, keys []string) (*store.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("PrimaryCategory"); err != nil {
		return nil, err
	}
	for _, key := range keys {
		if id, ok := m.primary[strings.ToLower(key)]; ok {
			category := m.categories[id]
			return &category, nil
		}
	}
	return nil, nil
}

func (m *memStore) CategoryItems(ctx context.Context, categoryID string) ([]store.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CategoryItems"); err != nil {
		return nil, err
	}
	out := make([]store.Item, 0)
	for _, id := range m.catItems[categoryID] {
		out = append(out, m.items[id])
	}
	return out, nil
}

func (m *memStore) GetRegionLayout(ctx context.Context, id int64) (*store.RegionLayout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetRegionLayout"); err != nil {
		return nil, err
	}
	for _, l := range m.layouts {
		if l.ID == id {
			copied := l
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) LatestRegionLayout(ctx context.Context, keys []string) (*store.RegionLayout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("LatestRegionLayout"); err != nil {
		return nil, err
	}
	var latest *store.RegionLayout
	for _, l := range m.layouts {
		if !l.Active || !containsFold(keys, l.RoomKey) {
			continue
		}
		if latest == nil || l.UpdatedAt.After(latest.UpdatedAt) {
			copied := l
			latest = &copied
		}
	}
	return latest, nil
}

func (m *memStore) sortedAssets(bindingID int64, assets map[int64]store.SignAsset) []store.SignAsset {
	out := make([]store.SignAsset, 0)
	for _, a := range assets {
		if a.BindingID == bindingID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *memStore) ListSignAssets(ctx context.Context, bindingID int64) ([]store.SignAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListSignAssets"); err != nil {
		return nil, err
	}
	return m.sortedAssets(bindingID, m.assets), nil
}

func (m *memStore) FindSignAssetByURL(ctx context.Context, bindingID int64, imageURL string) (*store.SignAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindSignAssetByURL"); err != nil {
		return nil, err
	}
	for _, a := range m.assets {
		if a.BindingID == bindingID && a.ImageURL == imageURL {
			copied := a
			return &copied, nil
		}
	}
	return nil, nil
}

// assetTx stages asset rows and the mirrored binding image; nothing is visible until commitAssets.
type assetTx struct {
	assets map[int64]store.SignAsset
	image  *string
}

func (m *memStore) beginAssets() *assetTx {
	copied := make(map[int64]store.SignAsset, len(m.assets))
	for id, a := range m.assets {
		copied[id] = a
	}
	return &assetTx{assets: copied}
}

func (m *memStore) commitAssets(bindingID int64, tx *assetTx) {
	m.assets = tx.assets
	if tx.image != nil {
		b := m.bindings[bindingID]
		b.ContentImage = *tx.image
		m.bindings[bindingID] = b
	}
}

func (tx *assetTx) activateOnly(bindingID, assetID int64) {
	for id, a := range tx.assets {
		if a.BindingID == bindingID {
			a.Active = id == assetID
			tx.assets[id] = a
		}
	}
}

func (m *memStore) InsertSignAsset(ctx context.Context, asset store.SignAsset, activate bool) (store.SignAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertSignAsset"); err != nil {
		return store.SignAsset{}, err
	}
	tx := m.beginAssets()
	m.nextAsset++
	asset.ID = m.nextAsset
	asset.CreatedAt = m.tick()
	asset.Active = false
	tx.assets[asset.ID] = asset
	if activate {
		tx.activateOnly(asset.BindingID, asset.ID)
		asset.Active = true
		image := asset.ImageURL
		tx.image = &image
		if err := m.fail["mirrorImage"]; err != nil {
			return store.SignAsset{}, err
		}
	}
	m.commitAssets(asset.BindingID, tx)
	return asset, nil
}

func (m *memStore) ActivateSignAsset(ctx context.Context, bindingID, assetID int64) (store.SignAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ActivateSignAsset"); err != nil {
		return store.SignAsset{}, err
	}
	target, ok := m.assets[assetID]
	if !ok || target.BindingID != bindingID {
		return store.SignAsset{}, store.ErrAssetNotFound
	}
	tx := m.beginAssets()
	tx.activateOnly(bindingID, assetID)
	image := target.ImageURL
	tx.image = &image
	if err := m.fail["mirrorImage"]; err != nil {
		return store.SignAsset{}, err
	}
	m.commitAssets(bindingID, tx)
	target.Active = true
	return target, nil
}

func (m *memStore) DeleteSignAsset(ctx context.Context, bindingID, assetID int64) (store.SignAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteSignAsset"); err != nil {
		return store.SignAsset{}, err
	}
	target, ok := m.assets[assetID]
	if !ok || target.BindingID != bindingID {
		return store.SignAsset{}, store.ErrAssetNotFound
	}
	tx := m.beginAssets()
	delete(tx.assets, assetID)
	if target.Active {
		remaining := m.sortedAssets(bindingID, tx.assets)
		image := ""
		if len(remaining) > 0 {
			tx.activateOnly(bindingID, remaining[0].ID)
			image = remaining[0].ImageURL
		}
		tx.image = &image
		if err := m.fail["mirrorImage"]; err != nil {
			return store.SignAsset{}, err
		}
	}
	m.commitAssets(bindingID, tx)
	return target, nil
}

func (m *memStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enter("Ping")
}
