package app

import (
	"context"
	"fmt"

	"hotspot/api/internal/layout"
	"hotspot/api/internal/store"
)

type LayoutView struct {
	ID              int64           `json:"id"`
	RoomKey         string          `json:"roomKey"`
	Regions         []layout.Region `json:"regions"`
	ReferenceWidth  int             `json:"referenceWidth"`
	ReferenceHeight int             `json:"referenceHeight"`
}

type ScaledLayout struct {
	Layout    LayoutView       `json:"layout"`
	Transform layout.Transform `json:"transform"`
	Rects     []layout.Rect    `json:"rects"`
}

// loadLayout picks the override layout when id is set, otherwise the newest active layout
// recorded under any of keys. A missing override is NotFound; a room without layout is nil.
func (s *Service) loadLayout(ctx context.Context, keys []string, id int64) (*store.RegionLayout, error) {
	if id > 0 {
		record, err := s.layouts.GetRegionLayout(ctx, id)
		if err != nil {
			return nil, storeError("load region layout", err)
		}
		if record == nil {
			return nil, notFoundError(fmt.Sprintf("region layout %d not found", id))
		}
		return record, nil
	}
	record, err := s.layouts.LatestRegionLayout(ctx, keys)
	if err != nil {
		return nil, storeError("load region layout", err)
	}
	return record, nil
}

// regionsOf decodes a layout's regions. An unreadable payload counts as zero regions; the parse
// error is returned for diagnostics only.
func (s *Service) regionsOf(record *store.RegionLayout) ([]layout.Region, error) {
	if record == nil {
		return nil, nil
	}
	regions, err := layout.ParseRegions(record.Coordinates)
	if err != nil {
		s.log.Warn("region layout unreadable", "room", record.RoomKey, "layout_id", record.ID, "error", err)
		return nil, err
	}
	return regions, nil
}

func (s *Service) regionCount(ctx context.Context, keys []string) (int, error) {
	record, err := s.loadLayout(ctx, keys, 0)
	if err != nil {
		return 0, err
	}
	regions, _ := s.regionsOf(record)
	return len(regions), nil
}

// GetRegionLayout returns the room's decoded layout.
func (s *Service) GetRegionLayout(ctx context.Context, room string, layoutID int64) (LayoutView, error) {
	key, aliases, ok := s.roomKeys(room)
	if !ok {
		return LayoutView{}, validationError("room is required", map[string]any{"field": "room"})
	}
	record, err := s.loadLayout(ctx, aliases, layoutID)
	if err != nil {
		return LayoutView{}, err
	}
	if record == nil {
		return LayoutView{}, notFoundError(fmt.Sprintf("room %s has no region layout", key))
	}
	regions, _ := s.regionsOf(record)
	if regions == nil {
		regions = []layout.Region{}
	}
	return LayoutView{
		ID:              record.ID,
		RoomKey:         key,
		Regions:         regions,
		ReferenceWidth:  record.ReferenceWidth,
		ReferenceHeight: record.ReferenceHeight,
	}, nil
}

// ScaleLayout maps the room's regions onto an image rendered inside a width x height wrapper.
func (s *Service) ScaleLayout(ctx context.Context, room string, layoutID int64, width, height float64) (ScaledLayout, error) {
	if width <= 0 || height <= 0 {
		return ScaledLayout{}, validationError("width and height must be positive", map[string]any{"width": width, "height": height})
	}
	view, err := s.GetRegionLayout(ctx, room, layoutID)
	if err != nil {
		return ScaledLayout{}, err
	}
	transform, rects := layout.Scale(width, height, float64(view.ReferenceWidth), float64(view.ReferenceHeight), view.Regions)
	if rects == nil {
		rects = []layout.Rect{}
	}
	return ScaledLayout{Layout: view, Transform: transform, Rects: rects}, nil
}

// InvalidateLayout drops cached layout lookups for the room. Without a cache it does nothing.
func (s *Service) InvalidateLayout(ctx context.Context, room string, layoutID int64) error {
	_, aliases, ok := s.roomKeys(room)
	if !ok {
		return validationError("room is required", map[string]any{"field": "room"})
	}
	invalidator, ok := s.layouts.(layoutInvalidator)
	if !ok {
		return nil
	}
	if err := invalidator.Invalidate(ctx, aliases, layoutID); err != nil {
		return storeError("invalidate layout cache", err)
	}
	return nil
}
