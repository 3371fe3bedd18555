// Package rooms canonicalizes room identifiers and expands a canonical key into the legacy
// spellings older rows may still carry.
package rooms

import (
	"regexp"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	MainKey    = "0"
	LandingKey = "A"
)

var (
	mainWords    = []string{"main", "main-room", "main_room", "mainroom", "main room", "home"}
	landingWords = []string{"landing", "landing-page", "landing_page", "landingpage", "landing page"}

	numericRoomPattern = regexp.MustCompile(`(?i)^room[\s_-]?(\d+)$`)
	letterRoomPattern  = regexp.MustCompile(`(?i)^room[\s_-]?([a-z])$`)
	numericPattern     = regexp.MustCompile(`^\d+$`)
	embeddedRoomNumber = regexp.MustCompile(`(?i)room[\s_-]?(\d+)`)
)

// Normalize maps any room identifier onto its canonical key. It reports false only when the
// input is blank.
func Normalize(id string) (string, bool) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", false
	}
	lower := strings.ToLower(trimmed)
	for _, word := range mainWords {
		if lower == word {
			return MainKey, true
		}
	}
	for _, word := range landingWords {
		if lower == word {
			return LandingKey, true
		}
	}
	if match := numericRoomPattern.FindStringSubmatch(trimmed); match != nil {
		return normalizeDigits(match[1]), true
	}
	if match := letterRoomPattern.FindStringSubmatch(trimmed); match != nil {
		return strings.ToUpper(match[1]), true
	}
	if numericPattern.MatchString(trimmed) {
		return normalizeDigits(trimmed), true
	}
	return trimmed, true
}

// Aliases returns the lookup fallbacks for a canonical key, the key itself first. The result is
// de-duplicated and stable for a given input.
func Aliases(key string) []string {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	out := make([]string, 0, 12)
	add := func(values ...string) {
		for _, v := range values {
			if v == "" || seen.Contains(v) {
				continue
			}
			seen.Add(v)
			out = append(out, v)
		}
	}

	add(key, strings.ToLower(key), strings.ToUpper(key))

	switch {
	case numericPattern.MatchString(key):
		add(roomFamily(key)...)
	case len(key) == 1 && isLetter(key[0]):
		add(roomFamily(strings.ToUpper(key))...)
		add(roomFamily(strings.ToLower(key))...)
	default:
		if match := embeddedRoomNumber.FindStringSubmatch(key); match != nil {
			n := normalizeDigits(match[1])
			add(n)
			add(roomFamily(n)...)
		}
	}

	switch key {
	case MainKey:
		add("main", "Main", "MAIN")
	case LandingKey:
		add("landing", "Landing", "LANDING")
	}
	return out
}

// DefaultMemoSize bounds each of a Normalizer's memos.
const DefaultMemoSize = 1024

// Normalizer memoizes Normalize and Aliases in bounded LRU caches keyed by caller input. Both
// functions are pure, so a single instance can be shared by concurrent requests.
type Normalizer struct {
	keys    *lru.Cache[string, normalized]
	aliases *lru.Cache[string, []string]
}

type normalized struct {
	key string
	ok  bool
}

func NewNormalizer() *Normalizer {
	return NewNormalizerSize(DefaultMemoSize)
}

// NewNormalizerSize keeps at most size entries per memo; a non-positive size uses DefaultMemoSize.
func NewNormalizerSize(size int) *Normalizer {
	if size <= 0 {
		size = DefaultMemoSize
	}
	keys, _ := lru.New[string, normalized](size)
	aliases, _ := lru.New[string, []string](size)
	return &Normalizer{keys: keys, aliases: aliases}
}

func (n *Normalizer) Normalize(id string) (string, bool) {
	if entry, ok := n.keys.Get(id); ok {
		return entry.key, entry.ok
	}
	key, ok := Normalize(id)
	n.keys.Add(id, normalized{key: key, ok: ok})
	return key, ok
}

func (n *Normalizer) Aliases(key string) []string {
	if cached, ok := n.aliases.Get(key); ok {
		return append([]string(nil), cached...)
	}
	aliases := Aliases(key)
	n.aliases.Add(key, aliases)
	return append([]string(nil), aliases...)
}

// memoLen reports how many inputs each memo currently holds.
func (n *Normalizer) memoLen() (keys, aliases int) {
	return n.keys.Len(), n.aliases.Len()
}

func roomFamily(suffix string) []string {
	return []string{"room" + suffix, "Room" + suffix, "ROOM" + suffix}
}

func normalizeDigits(digits string) string {
	trimmed := strings.TrimLeft(digits, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
