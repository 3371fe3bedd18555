package layout

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

type Placement int

const (
	PlaceExact Placement = iota
	PlaceFirstFree
	PlaceLastFree
)

// DefaultIndex is used when a layout has no regions to place into.
const DefaultIndex = 1

var (
	firstTokens = []string{"first-free", "-beginning-", "first", "beginning"}
	lastTokens  = []string{"last-free", "-end-", "last", "end"}

	selectorIndexPattern = regexp.MustCompile(`(?i)^\.?(?:area|region)[-_]?(\d+)$`)
	bareIndexPattern     = regexp.MustCompile(`^\d+$`)
)

func SelectorForIndex(i int) string {
	return fmt.Sprintf(".area-%d", i)
}

// IndexFromSelector returns the one-based ordinal encoded in a selector such as ".area-3",
// "area3" or "3".
func IndexFromSelector(selector string) (int, bool) {
	s := strings.TrimSpace(selector)
	if match := selectorIndexPattern.FindStringSubmatch(s); match != nil {
		s = match[1]
	} else if !bareIndexPattern.MatchString(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// CanonicalSelector rewrites ordinal selectors into the ".area-N" form and leaves anything else
// untouched apart from trimming.
func CanonicalSelector(selector string) string {
	if n, ok := IndexFromSelector(selector); ok {
		return SelectorForIndex(n)
	}
	return strings.TrimSpace(selector)
}

func ParsePlacement(selector string) Placement {
	s := strings.ToLower(strings.TrimSpace(selector))
	for _, token := range firstTokens {
		if s == token {
			return PlaceFirstFree
		}
	}
	for _, token := range lastTokens {
		if s == token {
			return PlaceLastFree
		}
	}
	return PlaceExact
}

// ClaimedIndexes collects the ordinals of the given selectors, ignoring non-ordinal ones.
func ClaimedIndexes(selectors []string) mapset.Set[int] {
	claimed := mapset.NewThreadUnsafeSet[int]()
	for _, sel := range selectors {
		if n, ok := IndexFromSelector(sel); ok {
			claimed.Add(n)
		}
	}
	return claimed
}

// FreeIndex scans 1..regionCount from the front or the back and returns the first ordinal not in
// claimed. A layout without regions yields DefaultIndex; a full layout yields 0.
func FreeIndex(regionCount int, claimed mapset.Set[int], placement Placement) int {
	if regionCount <= 0 {
		return DefaultIndex
	}
	if placement == PlaceLastFree {
		for i := regionCount; i >= 1; i-- {
			if !claimed.Contains(i) {
				return i
			}
		}
		return 0
	}
	for i := 1; i <= regionCount; i++ {
		if !claimed.Contains(i) {
			return i
		}
	}
	return 0
}
