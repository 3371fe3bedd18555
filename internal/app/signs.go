package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"hotspot/api/internal/store"
)

type SignAssetInput struct {
	BindingID int64  `json:"bindingId"`
	Room      string `json:"room"`
	ImageURL  string `json:"imageUrl"`
	PNGURL    string `json:"pngUrl"`
	WebPURL   string `json:"webpUrl"`
	Source    string `json:"source"`
	Activate  bool   `json:"activate"`
}

type SignAssetView struct {
	ID        int64     `json:"id"`
	BindingID int64     `json:"bindingId"`
	ImageURL  string    `json:"imageUrl"`
	PNGURL    string    `json:"pngUrl,omitempty"`
	WebPURL   string    `json:"webpUrl,omitempty"`
	Source    string    `json:"source,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

func signAssetView(a store.SignAsset) SignAssetView {
	return SignAssetView{
		ID:        a.ID,
		BindingID: a.BindingID,
		ImageURL:  a.ImageURL,
		PNGURL:    a.PNGURL,
		WebPURL:   a.WebPURL,
		Source:    a.Source,
		Active:    a.Active,
		CreatedAt: a.CreatedAt,
	}
}

func signAssetViews(items []store.SignAsset) []SignAssetView {
	out := make([]SignAssetView, 0, len(items))
	for _, item := range items {
		out = append(out, signAssetView(item))
	}
	return out
}

// ownedBinding loads a binding and checks it belongs to room. A binding in another room is
// reported as not found.
func (s *Service) ownedBinding(ctx context.Context, bindingID int64, room string) (store.Binding, error) {
	if strings.TrimSpace(room) == "" {
		return store.Binding{}, validationError("room is required", map[string]any{"field": "room"})
	}
	b, err := s.store.GetBinding(ctx, bindingID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Binding{}, notFoundError(fmt.Sprintf("binding %d not found", bindingID))
	}
	if err != nil {
		return store.Binding{}, storeError("load binding", err)
	}
	if !s.sameRoom(b.RoomKey, room) {
		return store.Binding{}, notFoundError(fmt.Sprintf("binding %d not found in room %s", bindingID, room))
	}
	return b, nil
}

// RecordSignAsset stores an image version for a binding. Recording a URL the binding already has
// is not an error; with Activate set the existing row is activated instead.
func (s *Service) RecordSignAsset(ctx context.Context, input SignAssetInput) (SignAssetView, error) {
	imageURL := strings.TrimSpace(input.ImageURL)
	if imageURL == "" {
		return SignAssetView{}, validationError("imageUrl is required", map[string]any{"field": "imageUrl"})
	}
	if _, err := s.ownedBinding(ctx, input.BindingID, input.Room); err != nil {
		return SignAssetView{}, err
	}
	asset := store.SignAsset{
		BindingID: input.BindingID,
		ImageURL:  imageURL,
		PNGURL:    strings.TrimSpace(input.PNGURL),
		WebPURL:   strings.TrimSpace(input.WebPURL),
		Source:    strings.TrimSpace(input.Source),
	}
	return s.recordAsset(ctx, asset, input.Activate)
}

func (s *Service) recordAsset(ctx context.Context, asset store.SignAsset, activate bool) (SignAssetView, error) {
	existing, err := s.store.FindSignAssetByURL(ctx, asset.BindingID, asset.ImageURL)
	if err != nil {
		return SignAssetView{}, storeError("find sign asset", err)
	}
	if existing == nil {
		created, err := s.store.InsertSignAsset(ctx, asset, activate)
		if err == nil {
			return signAssetView(created), nil
		}
		if !store.IsUniqueViolation(err) {
			return SignAssetView{}, storeError("record sign asset", err)
		}
		// Lost a race with an identical insert; fall through to the existing row.
		existing, err = s.store.FindSignAssetByURL(ctx, asset.BindingID, asset.ImageURL)
		if err != nil {
			return SignAssetView{}, storeError("find sign asset", err)
		}
		if existing == nil {
			return SignAssetView{}, conflictError("sign asset changed concurrently, retry", map[string]any{"imageUrl": asset.ImageURL})
		}
	}
	if !activate || existing.Active {
		return signAssetView(*existing), nil
	}
	activated, err := s.store.ActivateSignAsset(ctx, asset.BindingID, existing.ID)
	if err != nil {
		return SignAssetView{}, storeError("activate sign asset", err)
	}
	return signAssetView(activated), nil
}

// SetActiveSignAsset makes assetID the binding's only active asset.
func (s *Service) SetActiveSignAsset(ctx context.Context, bindingID, assetID int64, room string) (SignAssetView, error) {
	if _, err := s.ownedBinding(ctx, bindingID, room); err != nil {
		return SignAssetView{}, err
	}
	activated, err := s.store.ActivateSignAsset(ctx, bindingID, assetID)
	if errors.Is(err, store.ErrAssetNotFound) {
		return SignAssetView{}, notFoundError(fmt.Sprintf("sign asset %d not found for binding %d", assetID, bindingID))
	}
	if err != nil {
		return SignAssetView{}, storeError("activate sign asset", err)
	}
	return signAssetView(activated), nil
}

// DeleteSignAsset removes an asset and returns what remains. Deleting the active asset promotes the
// newest remaining one or clears the binding's image.
func (s *Service) DeleteSignAsset(ctx context.Context, bindingID, assetID int64, room string) ([]SignAssetView, error) {
	if _, err := s.ownedBinding(ctx, bindingID, room); err != nil {
		return nil, err
	}
	deleted, err := s.store.DeleteSignAsset(ctx, bindingID, assetID)
	if errors.Is(err, store.ErrAssetNotFound) {
		return nil, notFoundError(fmt.Sprintf("sign asset %d not found for binding %d", assetID, bindingID))
	}
	if err != nil {
		return nil, storeError("delete sign asset", err)
	}
	s.removeObjects(ctx, deleted)

	remaining, err := s.store.ListSignAssets(ctx, bindingID)
	if err != nil {
		return nil, storeError("list sign assets", err)
	}
	return signAssetViews(remaining), nil
}

func (s *Service) ListSignAssets(ctx context.Context, bindingID int64, room string) ([]SignAssetView, error) {
	if _, err := s.ownedBinding(ctx, bindingID, room); err != nil {
		return nil, err
	}
	items, err := s.store.ListSignAssets(ctx, bindingID)
	if err != nil {
		return nil, storeError("list sign assets", err)
	}
	return signAssetViews(items), nil
}

// removeObjects deletes the stored files of a deleted asset. The row is already gone, so failures
// are only logged.
func (s *Service) removeObjects(ctx context.Context, asset store.SignAsset) {
	if s.assets == nil {
		return
	}
	for _, url := range []string{asset.ImageURL, asset.PNGURL, asset.WebPURL} {
		if url == "" {
			continue
		}
		if err := s.assets.RemoveURL(ctx, url); err != nil {
			s.log.Warn("remove sign asset object failed", "binding_id", asset.BindingID, "asset_id", asset.ID, "url", url, "error", err)
		}
	}
}

// recordSignImage is the default BindingSaved hook: a binding image that looks like a sign asset
// is recorded as the binding's active asset.
func (s *Service) recordSignImage(ctx context.Context, event BindingSaved) error {
	image := strings.TrimSpace(event.Binding.ContentImage)
	if image == "" || s.signPattern == nil || !s.signPattern.MatchString(image) {
		return nil
	}
	_, err := s.recordAsset(ctx, store.SignAsset{
		BindingID: event.Binding.ID,
		ImageURL:  image,
		Source:    "binding",
	}, true)
	return err
}
