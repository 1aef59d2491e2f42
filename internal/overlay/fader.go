package overlay

import (
	"time"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// Fader eases the displayed opacity toward the presenter's target, the way
// a CSS background-color transition would.
type Fader struct {
	duration float32
	current  float32
	target   float32
	tween    *gween.Tween
}

// NewFader returns a fader that takes d to reach each new target.
func NewFader(d time.Duration) *Fader {
	return &Fader{duration: float32(d.Seconds())}
}

// Update advances by dt seconds and returns the opacity to draw.
func (f *Fader) Update(target float64, dt float32) float32 {
	t := float32(target)
	if t != f.target {
		f.target = t
		if f.duration <= 0 {
			f.current = t
			f.tween = nil
			return f.current
		}
		f.tween = gween.New(f.current, t, f.duration, ease.InOutQuad)
	}
	if f.tween == nil {
		return f.current
	}
	val, done := f.tween.Update(dt)
	f.current = val
	if done {
		f.current = f.target
		f.tween = nil
	}
	return f.current
}
