package layout

import (
	"sync"
	"time"
)

const DefaultResizeDelay = 150 * time.Millisecond

// Rescaler recomputes region rectangles after the wrapper is resized. Bursts of Resize calls are
// debounced: each call cancels the pending recomputation and schedules a new one.
type Rescaler struct {
	mu       sync.Mutex
	delay    time.Duration
	refW     float64
	refH     float64
	regions  []Region
	timer    *time.Timer
	gen      uint64
	stopped  bool
	onResult func(Transform, []Rect)
}

func NewRescaler(refW, refH float64, regions []Region, delay time.Duration, onResult func(Transform, []Rect)) *Rescaler {
	if delay <= 0 {
		delay = DefaultResizeDelay
	}
	return &Rescaler{
		delay:    delay,
		refW:     refW,
		refH:     refH,
		regions:  append([]Region(nil), regions...),
		onResult: onResult,
	}
}

func (r *Rescaler) Resize(wrapperW, wrapperH float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.gen++
	gen := r.gen
	r.timer = time.AfterFunc(r.delay, func() {
		r.recompute(gen, wrapperW, wrapperH)
	})
}

// Now recomputes immediately, dropping any pending debounced run.
func (r *Rescaler) Now(wrapperW, wrapperH float64) (Transform, []Rect) {
	r.mu.Lock()
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	refW, refH, regions := r.refW, r.refH, r.regions
	r.mu.Unlock()
	return Scale(wrapperW, wrapperH, refW, refH, regions)
}

func (r *Rescaler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Rescaler) recompute(gen uint64, wrapperW, wrapperH float64) {
	r.mu.Lock()
	// a timer that fired while a newer Resize held the lock is stale
	if r.stopped || gen != r.gen {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	refW, refH, regions, onResult := r.refW, r.refH, r.regions, r.onResult
	r.mu.Unlock()

	t, rects := Scale(wrapperW, wrapperH, refW, refH, regions)
	if onResult != nil {
		onResult(t, rects)
	}
}
