package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"hotspot/api/internal/binding"
	"hotspot/api/internal/layout"
	"hotspot/api/internal/store"
)

type UpsertInput struct {
	Room   string `json:"room"`
	Region string `json:"region"`
	Kind   string `json:"kind"`
	binding.Target
	Name         string `json:"name"`
	DisplayOrder int    `json:"displayOrder"`
}

type UpsertResult struct {
	ID             int64  `json:"id"`
	Created        bool   `json:"created"`
	Message        string `json:"message"`
	RegionSelector string `json:"regionSelector"`
}

// UpdateInput is a sparse update. Nil fields keep their stored value.
type UpdateInput struct {
	Region        *string `json:"region"`
	Kind          *string `json:"kind"`
	ItemID        *string `json:"itemId"`
	CategoryID    *string `json:"categoryId"`
	LinkURL       *string `json:"linkUrl"`
	LinkLabel     *string `json:"linkLabel"`
	ContentTarget *string `json:"contentTarget"`
	ContentImage  *string `json:"contentImage"`
	Name          *string `json:"name"`
	DisplayOrder  *int    `json:"displayOrder"`
	Active        *bool   `json:"active"`
}

type UpdateResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

const (
	ActionNoop        = "noop"
	ActionDeactivated = "deactivated"
	ActionDeleted     = "deleted"
)

type DeleteResult struct {
	Success bool   `json:"success"`
	Action  string `json:"action"`
	// Purged is set when an already inactive row was cleaned up.
	Purged bool `json:"purged,omitempty"`
}

type SwapResult struct {
	Message string `json:"message"`
}

func fieldErrorDetails(err error) any {
	var fieldErr *binding.FieldError
	if errors.As(err, &fieldErr) {
		return map[string]any{"field": fieldErr.Field, "kind": string(fieldErr.Kind)}
	}
	return nil
}

// UpsertByRegion creates or updates the active binding at a room region. The region may be an
// auto-placement token, resolved against the room's layout and its active bindings.
func (s *Service) UpsertByRegion(ctx context.Context, input UpsertInput) (UpsertResult, error) {
	key, aliases, ok := s.roomKeys(input.Room)
	if !ok {
		return UpsertResult{}, validationError("room is required", map[string]any{"field": "room"})
	}
	kind, err := binding.ParseKind(input.Kind)
	if err != nil {
		return UpsertResult{}, validationError(err.Error(), map[string]any{"field": "kind"})
	}
	if err := binding.Validate(kind, input.Target); err != nil {
		return UpsertResult{}, validationError(err.Error(), fieldErrorDetails(err))
	}
	rows, _, err := s.resolveKeys(ctx, key, aliases)
	if err != nil {
		return UpsertResult{}, err
	}
	selector, err := s.resolveRegion(ctx, key, aliases, rows, input.Region, 0)
	if err != nil {
		return UpsertResult{}, err
	}
	existing := store.OccupantOf(rows, selector)

	order := input.DisplayOrder
	if order <= 0 && existing != nil && existing.DisplayOrder > 0 {
		order = existing.DisplayOrder
	}
	if order <= 0 {
		max, err := s.store.MaxDisplayOrder(ctx, key)
		if err != nil {
			return UpsertResult{}, storeError("max display order", err)
		}
		order = max + 1
	}

	saved := store.Binding{
		RoomKey:        key,
		RegionSelector: selector,
		Kind:           kind,
		ItemID:         strings.TrimSpace(input.ItemID),
		CategoryID:     strings.TrimSpace(input.CategoryID),
		LinkURL:        strings.TrimSpace(input.LinkURL),
		LinkLabel:      strings.TrimSpace(input.LinkLabel),
		ContentTarget:  strings.TrimSpace(input.ContentTarget),
		ContentImage:   strings.TrimSpace(input.ContentImage),
		Name:           strings.TrimSpace(input.Name),
		DisplayOrder:   order,
		Active:         true,
	}

	if existing != nil {
		saved.ID = existing.ID
		saved.RoomKey = existing.RoomKey
		patch := contentPatch(saved)
		patch.DisplayOrder = &saved.DisplayOrder
		if existing.RegionSelector != selector {
			patch.RegionSelector = &selector
		}
		if _, err := s.store.UpdateBinding(ctx, existing.ID, patch); err != nil {
			if store.IsUniqueViolation(err) {
				return UpsertResult{}, conflictError("region was claimed concurrently", map[string]any{"region": selector})
			}
			return UpsertResult{}, storeError("update binding", err)
		}
		s.emitSaved(ctx, BindingSaved{Binding: saved})
		return UpsertResult{ID: saved.ID, Created: false, Message: "updated", RegionSelector: selector}, nil
	}

	id, err := s.store.InsertBinding(ctx, saved)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return UpsertResult{}, conflictError("region was claimed concurrently", map[string]any{"region": selector})
		}
		return UpsertResult{}, storeError("insert binding", err)
	}
	saved.ID = id
	s.emitSaved(ctx, BindingSaved{Binding: saved, Created: true})
	return UpsertResult{ID: id, Created: true, Message: "created", RegionSelector: selector}, nil
}

// contentPatch writes every content field of b, leaving room, region and order alone.
func contentPatch(b store.Binding) store.BindingPatch {
	return store.BindingPatch{
		Kind:          &b.Kind,
		ItemID:        &b.ItemID,
		CategoryID:    &b.CategoryID,
		LinkURL:       &b.LinkURL,
		LinkLabel:     &b.LinkLabel,
		ContentTarget: &b.ContentTarget,
		ContentImage:  &b.ContentImage,
		Name:          &b.Name,
	}
}

// resolveRegion turns a region or placement token into a concrete selector. Tokens pick from the
// regions not held by rows; excludeID lets a binding that is moving ignore its own claim.
func (s *Service) resolveRegion(ctx context.Context, key string, aliases []string, rows []store.Binding, region string, excludeID int64) (string, error) {
	placement := layout.ParsePlacement(region)
	if placement == layout.PlaceExact {
		selector := layout.CanonicalSelector(region)
		if selector == "" {
			return "", validationError("region is required", map[string]any{"field": "region"})
		}
		return selector, nil
	}

	count, err := s.regionCount(ctx, aliases)
	if err != nil {
		return "", err
	}
	selectors := make([]string, 0, len(rows))
	for _, b := range rows {
		if b.ID == excludeID {
			continue
		}
		selectors = append(selectors, b.RegionSelector)
	}
	index := layout.FreeIndex(count, layout.ClaimedIndexes(selectors), placement)
	if index == 0 {
		return "", conflictError(fmt.Sprintf("room %s has no free region", key), map[string]any{"regions": count})
	}
	return layout.SelectorForIndex(index), nil
}

// UpdateByID applies a sparse update. A request that changes nothing succeeds with "no changes".
func (s *Service) UpdateByID(ctx context.Context, id int64, input UpdateInput) (UpdateResult, error) {
	existing, err := s.store.GetBinding(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return UpdateResult{}, notFoundError(fmt.Sprintf("binding %d not found", id))
	}
	if err != nil {
		return UpdateResult{}, storeError("load binding", err)
	}

	merged := existing
	patch := store.BindingPatch{}
	if input.Kind != nil {
		kind, err := binding.ParseKind(*input.Kind)
		if err != nil {
			return UpdateResult{}, validationError(err.Error(), map[string]any{"field": "kind"})
		}
		merged.Kind = kind
		patch.Kind = &kind
	}
	setString := func(src *string, dst *string, field **string) {
		if src == nil {
			return
		}
		value := strings.TrimSpace(*src)
		*dst = value
		*field = &value
	}
	setString(input.ItemID, &merged.ItemID, &patch.ItemID)
	setString(input.CategoryID, &merged.CategoryID, &patch.CategoryID)
	setString(input.LinkURL, &merged.LinkURL, &patch.LinkURL)
	setString(input.LinkLabel, &merged.LinkLabel, &patch.LinkLabel)
	setString(input.ContentTarget, &merged.ContentTarget, &patch.ContentTarget)
	setString(input.ContentImage, &merged.ContentImage, &patch.ContentImage)
	setString(input.Name, &merged.Name, &patch.Name)
	if input.DisplayOrder != nil {
		merged.DisplayOrder = *input.DisplayOrder
		patch.DisplayOrder = input.DisplayOrder
	}
	if input.Active != nil {
		merged.Active = *input.Active
		patch.Active = input.Active
	}

	contentChanged := patch.Kind != nil || patch.ItemID != nil || patch.CategoryID != nil || patch.LinkURL != nil ||
		patch.ContentTarget != nil || patch.ContentImage != nil
	if contentChanged {
		if err := binding.Validate(merged.Kind, merged.Target()); err != nil {
			return UpdateResult{}, validationError(err.Error(), fieldErrorDetails(err))
		}
	}

	if input.Region != nil {
		key, aliases, ok := s.roomKeys(existing.RoomKey)
		if !ok {
			return UpdateResult{}, validationError("binding has no room", nil)
		}
		rows, _, err := s.resolveKeys(ctx, key, aliases)
		if err != nil {
			return UpdateResult{}, err
		}
		selector, err := s.resolveRegion(ctx, key, aliases, rows, *input.Region, id)
		if err != nil {
			return UpdateResult{}, err
		}
		if selector != existing.RegionSelector {
			merged.RegionSelector = selector
			patch.RegionSelector = &selector
		}
	}

	if patch.RegionSelector != nil && merged.Active {
		occupant, err := s.store.FindActiveBindingByRegion(ctx, existing.RoomKey, merged.RegionSelector)
		if err != nil {
			return UpdateResult{}, storeError("find binding by region", err)
		}
		if occupant != nil && occupant.ID != id {
			return UpdateResult{}, conflictError(fmt.Sprintf("region %s is already bound", merged.RegionSelector),
				map[string]any{"region": merged.RegionSelector, "bindingId": occupant.ID})
		}
	}

	if patch.Empty() {
		return UpdateResult{Success: true, Message: "no changes"}, nil
	}
	affected, err := s.store.UpdateBinding(ctx, id, patch)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return UpdateResult{}, conflictError("region is already bound", map[string]any{"region": merged.RegionSelector})
		}
		return UpdateResult{}, storeError("update binding", err)
	}
	if affected == 0 {
		if _, err := s.store.GetBinding(ctx, id); errors.Is(err, sql.ErrNoRows) {
			return UpdateResult{}, notFoundError(fmt.Sprintf("binding %d not found", id))
		}
		return UpdateResult{Success: true, Message: "no changes"}, nil
	}
	if contentChanged && merged.Active {
		s.emitSaved(ctx, BindingSaved{Binding: merged})
	}
	return UpdateResult{Success: true, Message: "updated"}, nil
}

// DeleteByID soft-deletes an active binding. Deleting an inactive binding removes the row and
// reports noop, as does deleting a missing one. With hard set, any existing row is removed.
func (s *Service) DeleteByID(ctx context.Context, id int64, hard bool) (DeleteResult, error) {
	deactivated, err := s.store.DeactivateBinding(ctx, id)
	if err != nil {
		return DeleteResult{}, storeError("deactivate binding", err)
	}
	if deactivated && !hard {
		return DeleteResult{Success: true, Action: ActionDeactivated}, nil
	}
	deleted, err := s.store.DeleteBinding(ctx, id)
	if err != nil {
		return DeleteResult{}, storeError("delete binding", err)
	}
	switch {
	case hard && deleted:
		return DeleteResult{Success: true, Action: ActionDeleted}, nil
	case deleted:
		return DeleteResult{Success: true, Action: ActionNoop, Purged: true}, nil
	default:
		return DeleteResult{Success: true, Action: ActionNoop}, nil
	}
}

// Swap exchanges the content of two active bindings. Room, region and display order stay put.
func (s *Service) Swap(ctx context.Context, idA, idB int64) (SwapResult, error) {
	if idA <= 0 || idB <= 0 {
		return SwapResult{}, validationError("two binding ids are required", nil)
	}
	if idA == idB {
		return SwapResult{}, validationError("cannot swap a binding with itself", map[string]any{"id": idA})
	}
	err := s.store.SwapBindings(ctx, idA, idB)
	if errors.Is(err, store.ErrNotActive) {
		return SwapResult{}, notFoundError(fmt.Sprintf("bindings %d and %d must both exist and be active", idA, idB))
	}
	if err != nil {
		return SwapResult{}, storeError("swap bindings", err)
	}
	return SwapResult{Message: fmt.Sprintf("swapped bindings %d and %d", idA, idB)}, nil
}

// ListBindings returns the room's stored rows without alias fallback or enrichment.
func (s *Service) ListBindings(ctx context.Context, room string, includeInactive bool) ([]Entry, error) {
	key, ok := s.rooms.Normalize(room)
	if !ok {
		return []Entry{}, nil
	}
	rows, err := s.store.ListBindings(ctx, key, includeInactive)
	if err != nil {
		return nil, storeError("list bindings", err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, entryFromBinding(row))
	}
	return entries, nil
}
