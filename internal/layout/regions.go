// Package layout owns region descriptors: decoding the stored coordinate payload, resolving
// auto-placement tokens, and scaling reference-space rectangles onto a rendered image.
package layout

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Region is one addressable slot in reference-image pixel space. Polygon regions keep their
// points and expose their bounding box through Top/Left/Width/Height.
type Region struct {
	Selector string       `json:"selector"`
	Top      float64      `json:"top"`
	Left     float64      `json:"left"`
	Width    float64      `json:"width"`
	Height   float64      `json:"height"`
	Points   [][2]float64 `json:"points,omitempty"`
}

var ErrUnknownShape = errors.New("unrecognized region payload")

const maxEncodingDepth = 3

type rawRegion struct {
	Selector string       `json:"selector"`
	ID       string       `json:"id"`
	Top      float64      `json:"top"`
	Left     float64      `json:"left"`
	Width    float64      `json:"width"`
	Height   float64      `json:"height"`
	Points   [][2]float64 `json:"points"`
}

type rawEnvelope struct {
	Rectangles json.RawMessage `json:"rectangles"`
	Polygons   json.RawMessage `json:"polygons"`
}

// ParseRegions decodes a stored coordinate payload. The payload may be a bare array, an object
// keyed by "rectangles" or "polygons", and any of those may itself be JSON-encoded as a string.
// A blank or null payload yields no regions.
func ParseRegions(raw []byte) ([]Region, error) {
	return parseRegions(raw, 0)
}

func parseRegions(raw []byte, depth int) ([]Region, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if depth > maxEncodingDepth {
		return nil, fmt.Errorf("%w: nested encoding too deep", ErrUnknownShape)
	}

	switch trimmed[0] {
	case '"':
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, fmt.Errorf("decode encoded regions: %w", err)
		}
		return parseRegions([]byte(inner), depth+1)
	case '[':
		var items []rawRegion
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode regions: %w", err)
		}
		return toRegions(items), nil
	case '{':
		var envelope rawEnvelope
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("decode region envelope: %w", err)
		}
		if len(envelope.Rectangles) > 0 {
			return parseRegions(envelope.Rectangles, depth+1)
		}
		if len(envelope.Polygons) > 0 {
			return parseRegions(envelope.Polygons, depth+1)
		}
		return nil, fmt.Errorf("%w: object without rectangles or polygons", ErrUnknownShape)
	}
	return nil, ErrUnknownShape
}

func toRegions(items []rawRegion) []Region {
	regions := make([]Region, 0, len(items))
	for i, item := range items {
		selector := item.Selector
		if selector == "" {
			selector = item.ID
		}
		if selector == "" {
			selector = SelectorForIndex(i + 1)
		}
		region := Region{
			Selector: selector,
			Top:      item.Top,
			Left:     item.Left,
			Width:    item.Width,
			Height:   item.Height,
		}
		if len(item.Points) > 0 {
			region.Points = item.Points
			if region.Width == 0 && region.Height == 0 {
				region.Left, region.Top, region.Width, region.Height = boundingBox(item.Points)
			}
		}
		regions = append(regions, region)
	}
	return regions
}

func boundingBox(points [][2]float64) (left, top, width, height float64) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p[0])
		maxX = math.Max(maxX, p[0])
		minY = math.Min(minY, p[1])
		maxY = math.Max(maxY, p[1])
	}
	return minX, minY, maxX - minX, maxY - minY
}

// BySelector indexes regions by selector; the first descriptor wins on duplicates.
func BySelector(regions []Region) map[string]Region {
	out := make(map[string]Region, len(regions))
	for _, r := range regions {
		if _, exists := out[r.Selector]; !exists {
			out[r.Selector] = r
		}
	}
	return out
}
