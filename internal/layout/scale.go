package layout

// Transform maps reference-image pixels onto the rendered image inside a wrapper.
type Transform struct {
	ScaleX       float64 `json:"scaleX"`
	ScaleY       float64 `json:"scaleY"`
	OffsetX      float64 `json:"offsetX"`
	OffsetY      float64 `json:"offsetY"`
	RenderWidth  float64 `json:"renderWidth"`
	RenderHeight float64 `json:"renderHeight"`
}

// Rect is a region's on-screen rectangle in wrapper coordinates.
type Rect struct {
	Selector string  `json:"selector"`
	Top      float64 `json:"top"`
	Left     float64 `json:"left"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

// Fit computes how an image of refW x refH is rendered aspect-preserving inside a wrapper of
// wrapperW x wrapperH. A wrapper wider than the image is pillarboxed (horizontal offset), otherwise
// it is letterboxed (vertical offset). Non-positive inputs give the zero Transform.
func Fit(wrapperW, wrapperH, refW, refH float64) Transform {
	if wrapperW <= 0 || wrapperH <= 0 || refW <= 0 || refH <= 0 {
		return Transform{}
	}
	wrapperRatio := wrapperW / wrapperH
	imageRatio := refW / refH

	var t Transform
	if wrapperRatio > imageRatio {
		t.RenderHeight = wrapperH
		t.RenderWidth = wrapperH * imageRatio
		t.OffsetX = (wrapperW - t.RenderWidth) / 2
	} else {
		t.RenderWidth = wrapperW
		t.RenderHeight = wrapperW / imageRatio
		t.OffsetY = (wrapperH - t.RenderHeight) / 2
	}
	// Scaled per axis so a reference size that is slightly off the image's true ratio still
	// lines up on both edges.
	t.ScaleX = t.RenderWidth / refW
	t.ScaleY = t.RenderHeight / refH
	return t
}

func (t Transform) Valid() bool {
	return t.RenderWidth > 0 && t.RenderHeight > 0
}

func (t Transform) Apply(regions []Region) []Rect {
	if !t.Valid() {
		return []Rect{}
	}
	out := make([]Rect, 0, len(regions))
	for _, r := range regions {
		out = append(out, Rect{
			Selector: r.Selector,
			Top:      r.Top*t.ScaleY + t.OffsetY,
			Left:     r.Left*t.ScaleX + t.OffsetX,
			Width:    r.Width * t.ScaleX,
			Height:   r.Height * t.ScaleY,
		})
	}
	return out
}

// Scale is Fit followed by Apply.
func Scale(wrapperW, wrapperH, refW, refH float64, regions []Region) (Transform, []Rect) {
	t := Fit(wrapperW, wrapperH, refW, refH)
	return t, t.Apply(regions)
}
