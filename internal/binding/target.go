package binding

import (
	"fmt"
	"strings"
)

// Target carries the kind-dependent reference fields of a binding.
type Target struct {
	ItemID        string `json:"itemId,omitempty"`
	CategoryID    string `json:"categoryId,omitempty"`
	LinkURL       string `json:"linkUrl,omitempty"`
	LinkLabel     string `json:"linkLabel,omitempty"`
	ContentTarget string `json:"contentTarget,omitempty"`
	ContentImage  string `json:"contentImage,omitempty"`
}

// FieldError names the missing field so transports can point at it.
type FieldError struct {
	Kind    Kind
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s binding: %s", e.Kind, e.Message)
}

// Validate checks that target carries the reference its kind needs.
func Validate(kind Kind, target Target) error {
	has := func(v string) bool { return strings.TrimSpace(v) != "" }

	switch kind.Capability() {
	case ReferencesItem:
		if !has(target.ItemID) {
			return &FieldError{Kind: kind, Field: "itemId", Message: "itemId is required"}
		}
	case ReferencesCategory:
		if !has(target.CategoryID) {
			return &FieldError{Kind: kind, Field: "categoryId", Message: "categoryId is required"}
		}
	case ReferencesURL:
		if !has(target.LinkURL) {
			return &FieldError{Kind: kind, Field: "linkUrl", Message: "linkUrl is required"}
		}
	case ReferencesContent:
		if !has(target.ContentTarget) {
			return &FieldError{Kind: kind, Field: "contentTarget", Message: "contentTarget is required"}
		}
	case TriggersAction:
		if !has(target.LinkURL) && !has(target.ContentTarget) {
			return &FieldError{Kind: kind, Field: "linkUrl", Message: "linkUrl or contentTarget is required"}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
	return nil
}
