// Package binding defines the closed set of binding kinds and the target fields each one
// requires.
package binding

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindItem     Kind = "item"
	KindCategory Kind = "category"
	KindLink     Kind = "link"
	KindContent  Kind = "content"
	KindButton   Kind = "button"
	KindPage     Kind = "page"
	KindModal    Kind = "modal"
	KindAction   Kind = "action"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{KindItem, KindCategory, KindLink, KindContent, KindButton, KindPage, KindModal, KindAction}

// Capability is what a kind's target points at.
type Capability int

const (
	ReferencesItem Capability = iota + 1
	ReferencesCategory
	ReferencesURL
	ReferencesContent
	TriggersAction
)

func (c Capability) String() string {
	switch c {
	case ReferencesItem:
		return "references-item"
	case ReferencesCategory:
		return "references-category"
	case ReferencesURL:
		return "references-url"
	case ReferencesContent:
		return "references-content"
	case TriggersAction:
		return "triggers-action"
	}
	return "unknown"
}

var ErrUnknownKind = errors.New("unknown binding kind")

// ParseKind accepts a kind name in any case. An empty string defaults to item.
func ParseKind(raw string) (Kind, error) {
	value := Kind(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return KindItem, nil
	}
	for _, k := range Kinds {
		if k == value {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
}

func (k Kind) Capability() Capability {
	switch k {
	case KindItem:
		return ReferencesItem
	case KindCategory:
		return ReferencesCategory
	case KindLink:
		return ReferencesURL
	case KindContent, KindPage, KindModal:
		return ReferencesContent
	case KindButton, KindAction:
		return TriggersAction
	}
	return 0
}

func (k Kind) Valid() bool {
	return k.Capability() != 0
}
