package app

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"hotspot/api/internal/config"
	"hotspot/api/internal/layoutcache"
	"hotspot/api/internal/logger"
	"hotspot/api/internal/rooms"
	"hotspot/api/internal/store"
)

type dataStore interface {
	ListActiveBindings(context.Context, []string) ([]store.Binding, error)
	ListActiveBindingsByRoomType(context.Context, []string) ([]store.Binding, error)
	ListBindings(context.Context, string, bool) ([]store.Binding, error)
	GetBinding(context.Context, int64) (store.Binding, error)
	FindActiveBindingByRegion(context.Context, string, string) (*store.Binding, error)
	MaxDisplayOrder(context.Context, string) (int, error)
	InsertBinding(context.Context, store.Binding) (int64, error)
	UpdateBinding(context.Context, int64, store.BindingPatch) (int64, error)
	DeactivateBinding(context.Context, int64) (bool, error)
	DeleteBinding(context.Context, int64) (bool, error)
	SwapBindings(context.Context, int64, int64) error

	GetItems(context.Context, []string) (map[string]store.Item, error)
	ItemPrimaryImages(context.Context, []string) (map[string]string, error)
	ItemSizeStock(context.Context, []string) (map[string]int, error)
	PrimaryCategory(context.Context, []string) (*store.Category, error)
	CategoryItems(context.Context, string) ([]store.Item, error)

	GetRegionLayout(context.Context, int64) (*store.RegionLayout, error)
	LatestRegionLayout(context.Context, []string) (*store.RegionLayout, error)

	ListSignAssets(context.Context, int64) ([]store.SignAsset, error)
	FindSignAssetByURL(context.Context, int64, string) (*store.SignAsset, error)
	InsertSignAsset(context.Context, store.SignAsset, bool) (store.SignAsset, error)
	ActivateSignAsset(context.Context, int64, int64) (store.SignAsset, error)
	DeleteSignAsset(context.Context, int64, int64) (store.SignAsset, error)

	Ping(context.Context) error
}

// assetRemover deletes the stored object behind a public asset URL.
type assetRemover interface {
	RemoveURL(context.Context, string) error
}

type layoutInvalidator interface {
	Invalidate(context.Context, []string, int64) error
}

// BindingSaved is emitted after an upsert or update has been committed.
type BindingSaved struct {
	Binding store.Binding
	Created bool
}

// BindingSavedHook reacts to a committed binding write. Hook errors are logged, never returned
// to the caller of the mutation.
type BindingSavedHook func(context.Context, BindingSaved) error

type Service struct {
	store            dataStore
	layouts          layoutcache.Source
	assets           assetRemover
	caps             store.Capabilities
	rooms            *rooms.Normalizer
	log              *logger.Logger
	hooks            []BindingSavedHook
	defaultItemImage string
	signPattern      *regexp.Regexp
}

// New builds the service. Layout reads go straight to dataStore until SetLayoutSource installs a
// cache. When cfg carries a sign asset pattern, a hook that records matching binding images as
// sign assets is registered.
func New(cfg config.Config, dataStore dataStore, caps store.Capabilities, log *logger.Logger) (*Service, error) {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		store:            dataStore,
		layouts:          dataStore,
		caps:             caps,
		rooms:            rooms.NewNormalizer(),
		log:              log,
		defaultItemImage: strings.TrimSpace(cfg.DefaultItemImage),
	}
	if pattern := strings.TrimSpace(cfg.SignAssetPattern); pattern != "" {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile sign asset pattern: %w", err)
		}
		s.signPattern = compiled
		s.OnBindingSaved(s.recordSignImage)
	}
	return s, nil
}

func (s *Service) SetLayoutSource(source layoutcache.Source) {
	if source != nil {
		s.layouts = source
	}
}

func (s *Service) SetAssetRemover(remover assetRemover) {
	s.assets = remover
}

func (s *Service) OnBindingSaved(hook BindingSavedHook) {
	s.hooks = append(s.hooks, hook)
}

func (s *Service) Capabilities() store.Capabilities {
	return s.caps
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) emitSaved(ctx context.Context, event BindingSaved) {
	for _, hook := range s.hooks {
		if err := hook(ctx, event); err != nil {
			s.log.Warn("binding saved hook failed",
				"room", event.Binding.RoomKey,
				"binding_id", event.Binding.ID,
				"error", err,
			)
		}
	}
}

// roomKeys returns the canonical key followed by its aliases. ok is false when the identifier is
// blank.
func (s *Service) roomKeys(room string) (key string, keys []string, ok bool) {
	key, ok = s.rooms.Normalize(room)
	if !ok {
		return "", nil, false
	}
	return key, s.rooms.Aliases(key), true
}

func (s *Service) sameRoom(a, b string) bool {
	ka, okA := s.rooms.Normalize(a)
	kb, okB := s.rooms.Normalize(b)
	return okA && okB && strings.EqualFold(ka, kb)
}
