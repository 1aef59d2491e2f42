package overlay

import (
	"time"

	"github.com/facebookgo/clock"
)

// Phase is the visual state of the dimming overlay.
type Phase int

const (
	PhaseHidden Phase = iota
	PhaseFadingIn
	PhaseVisible
	// PhaseCleared follows a busy period; opacity is back at zero.
	PhaseCleared
)

func (p Phase) String() string {
	switch p {
	case PhaseHidden:
		return "hidden"
	case PhaseFadingIn:
		return "fading-in"
	case PhaseVisible:
		return "visible"
	case PhaseCleared:
		return "cleared"
	}
	return "unknown"
}

// State is what the renderer should show. Opacity is the target alpha; the
// fade between targets belongs to the renderer (see Fader).
type State struct {
	Phase   Phase
	Opacity float64
}

// Shown reports whether the overlay needs drawing at all.
func (s State) Shown() bool {
	return s.Phase == PhaseFadingIn || s.Phase == PhaseVisible
}

// Presenter turns the busy flag into overlay opacity. It never starts or
// stops the busy period itself.
type Presenter struct {
	clock clock.Clock
	delay time.Duration
	alpha float64

	busy  bool
	ended bool
	since time.Time
}

// NewPresenter returns a presenter that rises to alpha delay after busy goes up.
func NewPresenter(clk clock.Clock, delay time.Duration, alpha float64) *Presenter {
	return &Presenter{clock: clk, delay: delay, alpha: alpha}
}

// Render is safe to call every frame.
func (p *Presenter) Render(busy bool) State {
	now := p.clock.Now()
	switch {
	case busy && !p.busy:
		p.since = now
	case !busy && p.busy:
		p.ended = true
	}
	p.busy = busy

	if !busy {
		if p.ended {
			return State{Phase: PhaseCleared}
		}
		return State{Phase: PhaseHidden}
	}
	if now.Sub(p.since) < p.delay {
		return State{Phase: PhaseFadingIn}
	}
	return State{Phase: PhaseVisible, Opacity: p.alpha}
}
