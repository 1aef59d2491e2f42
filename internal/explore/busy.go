package explore

import "sync/atomic"

// BusyFlag is raised by the navigator for the length of a transition and
// read by whatever draws the dimming overlay.
type BusyFlag struct {
	active atomic.Bool
}

// Active reports whether a navigation is underway.
func (b *BusyFlag) Active() bool {
	return b.active.Load()
}

// raise sets the flag and reports whether it was previously clear.
func (b *BusyFlag) raise() bool {
	return b.active.CompareAndSwap(false, true)
}

func (b *BusyFlag) lower() {
	b.active.Store(false)
}
