package store

import (
	"time"

	"hotspot/api/internal/binding"
)

// Binding maps one region of a room to one piece of content.
type Binding struct {
	ID             int64
	RoomKey        string
	RegionSelector string
	Kind           binding.Kind
	ItemID         string
	CategoryID     string
	LinkURL        string
	LinkLabel      string
	ContentTarget  string
	ContentImage   string
	Name           string
	DisplayOrder   int
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (b Binding) Target() binding.Target {
	return binding.Target{
		ItemID:        b.ItemID,
		CategoryID:    b.CategoryID,
		LinkURL:       b.LinkURL,
		LinkLabel:     b.LinkLabel,
		ContentTarget: b.ContentTarget,
		ContentImage:  b.ContentImage,
	}
}

// BindingPatch is a sparse update; nil fields are left untouched.
type BindingPatch struct {
	RegionSelector *string
	Kind           *binding.Kind
	ItemID         *string
	CategoryID     *string
	LinkURL        *string
	LinkLabel      *string
	ContentTarget  *string
	ContentImage   *string
	Name           *string
	DisplayOrder   *int
	Active         *bool
}

func (p BindingPatch) Empty() bool {
	return p.RegionSelector == nil && p.Kind == nil && p.ItemID == nil && p.CategoryID == nil &&
		p.LinkURL == nil && p.LinkLabel == nil && p.ContentTarget == nil && p.ContentImage == nil &&
		p.Name == nil && p.DisplayOrder == nil && p.Active == nil
}

// SignAsset is one image version attached to a binding. At most one per binding is active.
type SignAsset struct {
	ID        int64
	BindingID int64
	ImageURL  string
	PNGURL    string
	WebPURL   string
	Source    string
	Active    bool
	CreatedAt time.Time
}

// RegionLayout is the room map record. It is owned outside this service and only read here.
type RegionLayout struct {
	ID              int64
	RoomKey         string
	Coordinates     []byte
	ReferenceWidth  int
	ReferenceHeight int
	Active          bool
	UpdatedAt       time.Time
}

type Item struct {
	ID       string
	Name     string
	ImageURL string
	Stock    int
}

type Category struct {
	ID   string
	Name string
}

// Capabilities records optional schema features, detected once at startup.
type Capabilities struct {
	LegacyRoomType bool
	ItemSizes      bool
	ItemImages     bool
	ItemSortOrder  bool
}
