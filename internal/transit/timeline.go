package transit

import "time"

// Timeline holds the duration of each flight stage.
type Timeline struct {
	ZoomOut       time.Duration
	Pan           time.Duration
	ZoomIn        time.Duration
	EaseLinearity float64
}

// DefaultTimeline is 1.5s out, 2s across, 1.5s in.
var DefaultTimeline = Timeline{
	ZoomOut:       1500 * time.Millisecond,
	Pan:           2 * time.Second,
	ZoomIn:        1500 * time.Millisecond,
	EaseLinearity: 0.5,
}

// Total is the time from the first movement to the sequencer going idle.
// Anything that mirrors a transition (the busy flag) should hold this long.
func (t Timeline) Total() time.Duration {
	return t.ZoomOut + t.Pan + t.ZoomIn
}

func (t Timeline) stage(p Phase) time.Duration {
	switch p {
	case PhaseZoomOut:
		return t.ZoomOut
	case PhasePan:
		return t.Pan
	case PhaseZoomIn:
		return t.ZoomIn
	}
	return 0
}
