package app

import (
	"context"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"hotspot/api/internal/binding"
	"hotspot/api/internal/layout"
	"hotspot/api/internal/store"
)

// Entry is a binding as returned to readers. Derived entries come from the room's primary category
// and have no id.
type Entry struct {
	ID             *int64       `json:"id"`
	RoomKey        string       `json:"roomKey"`
	RegionSelector string       `json:"regionSelector"`
	Kind           binding.Kind `json:"kind"`
	binding.Target
	Name         string         `json:"name,omitempty"`
	DisplayOrder int            `json:"displayOrder"`
	Active       bool           `json:"active"`
	Derived      bool           `json:"derived"`
	ImageURL     string         `json:"imageUrl,omitempty"`
	Stock        *int           `json:"stock,omitempty"`
	Region       *layout.Region `json:"region,omitempty"`
}

type LiveView struct {
	Bindings    []Entry        `json:"bindings"`
	Category    string         `json:"category"`
	RegionCount int            `json:"regionCount"`
	Debug       map[string]any `json:"debug,omitempty"`
}

type LiveViewOptions struct {
	Debug    bool
	LayoutID int64
}

func entryFromBinding(b store.Binding) Entry {
	id := b.ID
	return Entry{
		ID:             &id,
		RoomKey:        b.RoomKey,
		RegionSelector: b.RegionSelector,
		Kind:           b.Kind,
		Target:         b.Target(),
		Name:           b.Name,
		DisplayOrder:   b.DisplayOrder,
		Active:         b.Active,
		ImageURL:       b.ContentImage,
	}
}

// FetchBindings returns the room's active explicit bindings, enriched with catalog data.
// Identifiers that normalize to the same key always resolve to the same list.
func (s *Service) FetchBindings(ctx context.Context, room string) ([]Entry, error) {
	rows, _, err := s.resolveBindings(ctx, room)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, entryFromBinding(row))
	}
	s.enrich(ctx, entries)
	return entries, nil
}

// resolveBindings tries the canonical key, then every alias, then the legacy room_type column.
// The second return names the lookup that matched.
func (s *Service) resolveBindings(ctx context.Context, room string) ([]store.Binding, string, error) {
	key, aliases, ok := s.roomKeys(room)
	if !ok {
		return []store.Binding{}, "none", nil
	}
	return s.resolveKeys(ctx, key, aliases)
}

func (s *Service) resolveKeys(ctx context.Context, key string, aliases []string) ([]store.Binding, string, error) {
	rows, err := s.store.ListActiveBindings(ctx, []string{key})
	if err != nil {
		return nil, "", storeError("fetch bindings", err)
	}
	if len(rows) > 0 {
		return rows, "canonical", nil
	}
	rows, err = s.store.ListActiveBindings(ctx, aliases)
	if err != nil {
		return nil, "", storeError("fetch bindings by alias", err)
	}
	if len(rows) > 0 {
		return rows, "alias", nil
	}
	if !s.caps.LegacyRoomType {
		return rows, "none", nil
	}
	rows, err = s.store.ListActiveBindingsByRoomType(ctx, aliases)
	if err != nil {
		return nil, "", storeError("fetch bindings by room type", err)
	}
	if len(rows) > 0 {
		return rows, "room_type", nil
	}
	return rows, "none", nil
}

// enrich fills image, stock and missing names for item entries. Every lookup is best effort.
func (s *Service) enrich(ctx context.Context, entries []Entry) {
	ids := mapset.NewThreadUnsafeSet[string]()
	for _, e := range entries {
		if e.Kind.Capability() == binding.ReferencesItem && strings.TrimSpace(e.ItemID) != "" {
			ids.Add(e.ItemID)
		}
	}
	if ids.Cardinality() == 0 {
		return
	}
	itemIDs := ids.ToSlice()

	items, err := s.store.GetItems(ctx, itemIDs)
	if err != nil {
		s.log.Warn("enrich bindings: item lookup failed", "items", len(itemIDs), "error", err)
		items = map[string]store.Item{}
	}
	images, err := s.store.ItemPrimaryImages(ctx, itemIDs)
	if err != nil {
		s.log.Warn("enrich bindings: image lookup failed", "items", len(itemIDs), "error", err)
		images = map[string]string{}
	}
	sizeStock, err := s.store.ItemSizeStock(ctx, itemIDs)
	if err != nil {
		s.log.Warn("enrich bindings: stock lookup failed", "items", len(itemIDs), "error", err)
		sizeStock = map[string]int{}
	}

	for i := range entries {
		e := &entries[i]
		if e.Kind.Capability() != binding.ReferencesItem {
			continue
		}
		item, known := items[e.ItemID]
		if image := images[e.ItemID]; image != "" {
			e.ImageURL = image
		} else if known && item.ImageURL != "" {
			e.ImageURL = item.ImageURL
		}
		if stock, ok := sizeStock[e.ItemID]; ok {
			e.Stock = intPtr(stock)
		} else if known {
			e.Stock = intPtr(item.Stock)
		}
		if e.Name == "" && known {
			e.Name = item.Name
		}
	}
}

// GetLiveView merges the room's explicit bindings with entries derived from its primary category.
// Derived entries only fill regions no explicit binding claims; items beyond the free regions are
// dropped.
func (s *Service) GetLiveView(ctx context.Context, room string, opts LiveViewOptions) (LiveView, error) {
	view := LiveView{Bindings: []Entry{}}
	key, aliases, ok := s.roomKeys(room)
	if !ok {
		return view, nil
	}

	record, err := s.loadLayout(ctx, aliases, opts.LayoutID)
	if err != nil {
		return LiveView{}, err
	}
	regions, parseErr := s.regionsOf(record)
	geometry := layout.BySelector(regions)
	view.RegionCount = len(regions)

	category, err := s.store.PrimaryCategory(ctx, aliases)
	if err != nil {
		return LiveView{}, storeError("load primary category", err)
	}
	var items []store.Item
	if category != nil {
		view.Category = category.Name
		items, err = s.store.CategoryItems(ctx, category.ID)
		if err != nil {
			return LiveView{}, storeError("load category items", err)
		}
	}

	explicit, resolvedVia, err := s.resolveBindings(ctx, room)
	if err != nil {
		return LiveView{}, err
	}

	claimed := mapset.NewThreadUnsafeSet[string]()
	for _, row := range explicit {
		entry := entryFromBinding(row)
		if region, ok := lookupRegion(geometry, row.RegionSelector); ok {
			entry.Region = &region
		}
		claimed.Add(row.RegionSelector)
		claimed.Add(layout.CanonicalSelector(row.RegionSelector))
		view.Bindings = append(view.Bindings, entry)
	}

	free := make([]layout.Region, 0, len(regions))
	for _, region := range regions {
		if claimed.Contains(region.Selector) || claimed.Contains(layout.CanonicalSelector(region.Selector)) {
			continue
		}
		free = append(free, region)
	}

	skipped := make([]string, 0)
	for i, item := range items {
		if i >= len(free) {
			skipped = append(skipped, item.ID)
			continue
		}
		region := free[i]
		image := item.ImageURL
		if image == "" {
			image = s.defaultItemImage
		}
		view.Bindings = append(view.Bindings, Entry{
			RoomKey:        key,
			RegionSelector: region.Selector,
			Kind:           binding.KindItem,
			Target:         binding.Target{ItemID: item.ID},
			Name:           item.Name,
			DisplayOrder:   i + 1,
			Active:         true,
			Derived:        true,
			ImageURL:       image,
			Region:         &region,
		})
	}

	s.enrich(ctx, view.Bindings)

	if opts.Debug {
		debug := map[string]any{
			"canonicalKey":     key,
			"aliases":          aliases,
			"resolvedVia":      resolvedVia,
			"claimedSelectors": sortedStrings(claimed),
			"skippedItems":     skipped,
			"explicitCount":    len(explicit),
			"derivedCount":     len(view.Bindings) - len(explicit),
		}
		if record != nil {
			debug["layoutId"] = record.ID
			debug["referenceWidth"] = record.ReferenceWidth
			debug["referenceHeight"] = record.ReferenceHeight
		}
		if category != nil {
			debug["categoryId"] = category.ID
		}
		if parseErr != nil {
			debug["layoutError"] = parseErr.Error()
		}
		view.Debug = debug
	}
	return view, nil
}

func lookupRegion(geometry map[string]layout.Region, selector string) (layout.Region, bool) {
	if region, ok := geometry[selector]; ok {
		return region, true
	}
	region, ok := geometry[layout.CanonicalSelector(selector)]
	return region, ok
}

func sortedStrings(set mapset.Set[string]) []string {
	out := set.ToSlice()
	sort.Strings(out)
	return out
}

func intPtr(v int) *int {
	return &v
}
