package layout

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoRects = `[{"selector":".area-1","top":10,"left":20,"width":100,"height":50},{"selector":".area-2","top":200,"left":300,"width":40,"height":60}]`

func TestParseRegionsAcceptsAllShapes(t *testing.T) {
	encoded, err := json.Marshal(`{"rectangles":` + twoRects + `}`)
	require.NoError(t, err)

	payloads := map[string]string{
		"bare":           twoRects,
		"rectangles":     `{"rectangles":` + twoRects + `}`,
		"polygons":       `{"polygons":` + twoRects + `}`,
		"double-encoded": string(encoded),
	}
	for name, payload := range payloads {
		regions, err := ParseRegions([]byte(payload))
		require.NoError(t, err, name)
		require.Len(t, regions, 2, name)
		assert.Equal(t, Region{Selector: ".area-1", Top: 10, Left: 20, Width: 100, Height: 50}, regions[0], name)
		assert.Equal(t, ".area-2", regions[1].Selector, name)
	}
}

func TestParseRegionsPolygonBoundingBox(t *testing.T) {
	regions, err := ParseRegions([]byte(`{"polygons":[{"id":"door","points":[[10,20],[60,20],[60,90],[10,90]]}]}`))
	require.NoError(t, err)
	require.Len(t, regions, 1)
	r := regions[0]
	assert.Equal(t, "door", r.Selector)
	assert.Equal(t, 10.0, r.Left)
	assert.Equal(t, 20.0, r.Top)
	assert.Equal(t, 50.0, r.Width)
	assert.Equal(t, 70.0, r.Height)
	assert.Len(t, r.Points, 4)
}

func TestParseRegionsDefaultsSelectorByPosition(t *testing.T) {
	regions, err := ParseRegions([]byte(`[{"top":1,"left":1,"width":1,"height":1},{"top":2,"left":2,"width":2,"height":2}]`))
	require.NoError(t, err)
	assert.Equal(t, ".area-1", regions[0].Selector)
	assert.Equal(t, ".area-2", regions[1].Selector)
}

func TestParseRegionsEmptyAndInvalid(t *testing.T) {
	for _, payload := range []string{"", "  ", "null", `"null"`} {
		regions, err := ParseRegions([]byte(payload))
		require.NoError(t, err, payload)
		assert.Empty(t, regions, payload)
	}

	_, err := ParseRegions([]byte(`{"circles":[]}`))
	assert.True(t, errors.Is(err, ErrUnknownShape))

	_, err = ParseRegions([]byte(`42`))
	assert.True(t, errors.Is(err, ErrUnknownShape))

	_, err = ParseRegions([]byte(`[{"top":"x"}]`))
	assert.Error(t, err)
}

func TestBySelectorKeepsFirst(t *testing.T) {
	m := BySelector([]Region{{Selector: "a", Top: 1}, {Selector: "a", Top: 2}, {Selector: "b"}})
	assert.Len(t, m, 2)
	assert.Equal(t, 1.0, m["a"].Top)
}

func TestSelectorIndexes(t *testing.T) {
	for sel, want := range map[string]int{".area-3": 3, "area-12": 12, "AREA4": 4, "region_2": 2, "7": 7} {
		got, ok := IndexFromSelector(sel)
		require.True(t, ok, sel)
		assert.Equal(t, want, got, sel)
	}
	for _, sel := range []string{"", ".area-0", "door", "first-free", "-1"} {
		_, ok := IndexFromSelector(sel)
		assert.False(t, ok, sel)
	}
	assert.Equal(t, ".area-5", CanonicalSelector("area5"))
	assert.Equal(t, "door", CanonicalSelector(" door "))
}

func TestParsePlacement(t *testing.T) {
	assert.Equal(t, PlaceFirstFree, ParsePlacement("first-free"))
	assert.Equal(t, PlaceFirstFree, ParsePlacement("-beginning-"))
	assert.Equal(t, PlaceLastFree, ParsePlacement("LAST-FREE"))
	assert.Equal(t, PlaceLastFree, ParsePlacement("-end-"))
	assert.Equal(t, PlaceExact, ParsePlacement(".area-2"))
}

func TestFreeIndex(t *testing.T) {
	claimed := ClaimedIndexes([]string{".area-1", ".area-3", "door"})
	assert.Equal(t, 2, FreeIndex(4, claimed, PlaceFirstFree))
	assert.Equal(t, 4, FreeIndex(4, claimed, PlaceLastFree))
	assert.Equal(t, 2, FreeIndex(3, claimed, PlaceLastFree))

	full := mapset.NewThreadUnsafeSet(1, 2)
	assert.Equal(t, 0, FreeIndex(2, full, PlaceFirstFree))
	assert.Equal(t, 0, FreeIndex(2, full, PlaceLastFree))

	assert.Equal(t, DefaultIndex, FreeIndex(0, full, PlaceFirstFree))
	assert.Equal(t, DefaultIndex, FreeIndex(0, full, PlaceLastFree))
}

func TestFitMatchingReferenceIsIdentity(t *testing.T) {
	tr := Fit(1000, 500, 1000, 500)
	assert.Equal(t, Transform{ScaleX: 1, ScaleY: 1, RenderWidth: 1000, RenderHeight: 500}, tr)

	rects := tr.Apply([]Region{{Selector: ".area-1", Top: 10, Left: 20, Width: 30, Height: 40}})
	assert.Equal(t, []Rect{{Selector: ".area-1", Top: 10, Left: 20, Width: 30, Height: 40}}, rects)
}

func TestFitPillarbox(t *testing.T) {
	// wrapper wider than a 2:1 image: height-constrained with horizontal margins
	tr := Fit(1600, 400, 1000, 500)
	assert.Equal(t, 400.0, tr.RenderHeight)
	assert.Equal(t, 800.0, tr.RenderWidth)
	assert.Equal(t, 400.0, tr.OffsetX)
	assert.Equal(t, 0.0, tr.OffsetY)
	assert.Equal(t, 0.8, tr.ScaleX)
	assert.Equal(t, 0.8, tr.ScaleY)

	rects := tr.Apply([]Region{{Selector: "a", Top: 100, Left: 500, Width: 250, Height: 125}})
	assert.Equal(t, Rect{Selector: "a", Top: 80, Left: 800, Width: 200, Height: 100}, rects[0])
}

func TestFitLetterbox(t *testing.T) {
	// wrapper taller than a 2:1 image: width-constrained with vertical margins
	tr := Fit(500, 500, 1000, 500)
	assert.Equal(t, 500.0, tr.RenderWidth)
	assert.Equal(t, 250.0, tr.RenderHeight)
	assert.Equal(t, 0.0, tr.OffsetX)
	assert.Equal(t, 125.0, tr.OffsetY)
	assert.Equal(t, 0.5, tr.ScaleX)
	assert.Equal(t, 0.5, tr.ScaleY)

	rects := tr.Apply([]Region{{Selector: "a", Top: 100, Left: 200, Width: 50, Height: 20}})
	assert.Equal(t, Rect{Selector: "a", Top: 175, Left: 100, Width: 25, Height: 10}, rects[0])
}

func TestScaleIsIdempotent(t *testing.T) {
	regions := []Region{{Selector: "a", Top: 13, Left: 17, Width: 91, Height: 37}, {Selector: "b", Top: 211, Left: 7, Width: 3, Height: 301}}
	t1, r1 := Scale(1337, 733, 1920, 1080, regions)
	t2, r2 := Scale(1337, 733, 1920, 1080, regions)
	assert.Equal(t, t1, t2)

	b1, err := json.Marshal(r1)
	require.NoError(t, err)
	b2, err := json.Marshal(r2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestFitDegenerateInputs(t *testing.T) {
	assert.Equal(t, Transform{}, Fit(0, 100, 100, 100))
	assert.Equal(t, Transform{}, Fit(100, 100, 100, -1))
	assert.Empty(t, Transform{}.Apply([]Region{{Selector: "a", Width: 1, Height: 1}}))
}

func TestRescalerDebouncesBursts(t *testing.T) {
	results := make(chan Transform, 4)
	r := NewRescaler(1000, 500, []Region{{Selector: "a", Width: 100, Height: 100}}, 50*time.Millisecond, func(tr Transform, _ []Rect) {
		results <- tr
	})
	defer r.Stop()

	r.Resize(100, 100)
	r.Resize(300, 300)
	r.Resize(500, 500)

	select {
	case tr := <-results:
		assert.Equal(t, 500.0, tr.RenderWidth)
	case <-time.After(2 * time.Second):
		t.Fatal("rescaler did not fire")
	}

	select {
	case tr := <-results:
		t.Fatalf("unexpected second recomputation: %+v", tr)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRescalerStopCancelsPending(t *testing.T) {
	fired := make(chan struct{}, 1)
	r := NewRescaler(100, 100, nil, 30*time.Millisecond, func(Transform, []Rect) {
		fired <- struct{}{}
	})
	r.Resize(200, 200)
	r.Stop()
	r.Resize(300, 300)

	select {
	case <-fired:
		t.Fatal("stopped rescaler fired")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestRescalerNowMatchesScale(t *testing.T) {
	regions := []Region{{Selector: "a", Top: 5, Left: 5, Width: 10, Height: 10}}
	r := NewRescaler(200, 100, regions, time.Second, nil)
	defer r.Stop()
	tr, rects := r.Now(400, 400)
	wantT, wantRects := Scale(400, 400, 200, 100, regions)
	assert.Equal(t, wantT, tr)
	assert.Equal(t, wantRects, rects)
}
