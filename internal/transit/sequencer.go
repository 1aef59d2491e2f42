package transit

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"mapviewer/internal/geo"
)

// Host is the map surface the sequencer drives.
type Host interface {
	FlyTo(p geo.Point, zoom int, duration time.Duration, easeLinearity float64)
	SetView(p geo.Point, zoom int)
	Zoom() int
	// SetDecoration toggles the in-transition styling of the map container.
	SetDecoration(on bool)
	// Live reports whether the surface still exists.
	Live() bool
}

// Phase is a state of the transition machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseZoomOut
	PhasePan
	PhaseZoomIn
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseZoomOut:
		return "zoom-out"
	case PhasePan:
		return "pan"
	case PhaseZoomIn:
		return "zoom-in"
	}
	return "unknown"
}

// next is the transition table. Each phase issues one flight on entry and
// advances when its stage duration has elapsed.
var next = map[Phase]Phase{
	PhaseZoomOut: PhasePan,
	PhasePan:     PhaseZoomIn,
	PhaseZoomIn:  PhaseIdle,
}

// Outcome describes what Begin did with a target.
type Outcome int

const (
	// OutcomeStarted means a three-stage flight began.
	OutcomeStarted Outcome = iota
	// OutcomeSnapped means there was no baseline; the view was set directly.
	OutcomeSnapped
	// OutcomeUnchanged means the target equals the previous center.
	OutcomeUnchanged
	// OutcomeDropped means a flight was already running. The target became
	// the baseline for the next call but is never flown to on its own.
	OutcomeDropped
	// OutcomeStale means the host surface is gone.
	OutcomeStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeSnapped:
		return "snapped"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeDropped:
		return "dropped"
	case OutcomeStale:
		return "stale"
	}
	return "unknown"
}

// Flight is the plan of one transition.
type Flight struct {
	From        geo.Point
	To          geo.Point
	Distance    float64
	TransitZoom int
	ReturnZoom  int
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithTimeline overrides DefaultTimeline.
func WithTimeline(t Timeline) Option {
	return func(s *Sequencer) { s.timeline = t }
}

// WithLogger sets the logger; zap.L() is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(s *Sequencer) { s.log = l }
}

// OnSettled registers a callback invoked, with the lock released, after a
// flight reaches idle.
func OnSettled(fn func(Flight)) Option {
	return func(s *Sequencer) { s.settled = fn }
}

// OnOutcome registers a callback invoked for every Begin.
func OnOutcome(fn func(Outcome)) Option {
	return func(s *Sequencer) { s.outcome = fn }
}

// Sequencer flies the camera between consecutive focus points: out to a
// transit zoom at the old point, across at that zoom, then back in at the
// new point.
type Sequencer struct {
	host     Host
	sched    Scheduler
	timeline Timeline
	log      *zap.Logger
	settled  func(Flight)
	outcome  func(Outcome)

	mu          sync.Mutex
	previous    geo.Point
	hasPrevious bool
	phase       Phase
	flight      Flight
	gen         uint64
	cancel      func()
}

// NewSequencer creates an idle sequencer with no baseline.
func NewSequencer(host Host, sched Scheduler, opts ...Option) *Sequencer {
	s := &Sequencer{
		host:     host,
		sched:    sched,
		timeline: DefaultTimeline,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = zap.L()
	}
	s.log = s.log.With(zap.String("component", "transit"))
	return s
}

// Timeline returns the stage durations in use.
func (s *Sequencer) Timeline() Timeline {
	return s.timeline
}

// Begin moves the focus to target. The previous center is updated on every
// call, whether or not a flight plays.
func (s *Sequencer) Begin(target geo.Point) Outcome {
	s.mu.Lock()
	out := s.begin(target)
	s.mu.Unlock()

	s.log.Debug("begin transition",
		zap.Stringer("target", target),
		zap.Stringer("outcome", out),
	)
	if s.outcome != nil {
		s.outcome(out)
	}
	return out
}

func (s *Sequencer) begin(target geo.Point) Outcome {
	prev, hadPrev := s.previous, s.hasPrevious
	s.previous, s.hasPrevious = target, true

	if !s.host.Live() {
		return OutcomeStale
	}

	switch {
	case !hadPrev:
		s.host.SetView(target, s.host.Zoom())
		return OutcomeSnapped
	case s.phase != PhaseIdle:
		return OutcomeDropped
	case prev.Equal(target):
		return OutcomeUnchanged
	}

	zoom := s.host.Zoom()
	distance := geo.Distance(prev, target)
	s.flight = Flight{
		From:        prev,
		To:          target,
		Distance:    distance,
		TransitZoom: Classify(distance, zoom),
		ReturnZoom:  zoom,
	}
	s.gen++
	s.host.SetDecoration(true)
	s.enter(PhaseZoomOut)

	s.log.Info("transition started",
		zap.Stringer("from", prev),
		zap.Stringer("to", target),
		zap.Float64("distance_m", distance),
		zap.Int("transit_zoom", s.flight.TransitZoom),
		zap.Int("return_zoom", zoom),
	)
	return OutcomeStarted
}

// enter must be called with mu held.
func (s *Sequencer) enter(p Phase) {
	s.phase = p
	if p == PhaseIdle {
		s.cancel = nil
		s.host.SetDecoration(false)
		return
	}

	point, zoom := s.command(p)
	d := s.timeline.stage(p)
	s.host.FlyTo(point, zoom, d, s.timeline.EaseLinearity)

	gen := s.gen
	s.cancel = s.sched.AfterFunc(d, func() { s.advance(gen) })
}

func (s *Sequencer) command(p Phase) (geo.Point, int) {
	switch p {
	case PhaseZoomOut:
		return s.flight.From, s.flight.TransitZoom
	case PhasePan:
		return s.flight.To, s.flight.TransitZoom
	default:
		return s.flight.To, s.flight.ReturnZoom
	}
}

func (s *Sequencer) advance(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.phase == PhaseIdle {
		s.mu.Unlock()
		return
	}
	if !s.host.Live() {
		s.phase = PhaseIdle
		s.cancel = nil
		s.mu.Unlock()
		s.log.Debug("surface gone, skipping remaining steps", zap.Uint64("gen", gen))
		return
	}
	s.enter(next[s.phase])
	settled := s.phase == PhaseIdle
	flight := s.flight
	s.mu.Unlock()

	if settled {
		s.log.Info("transition settled", zap.Stringer("at", flight.To))
		if s.settled != nil {
			s.settled(flight)
		}
	}
}

// Cancel abandons a running flight and returns to idle. The baseline is kept.
func (s *Sequencer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseIdle {
		return
	}
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.phase = PhaseIdle
	if s.host.Live() {
		s.host.SetDecoration(false)
	}
}

// Phase returns the current state.
func (s *Sequencer) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// InProgress reports whether a flight is running.
func (s *Sequencer) InProgress() bool {
	return s.Phase() != PhaseIdle
}

// Previous returns the baseline for the next call, if any.
func (s *Sequencer) Previous() (geo.Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previous, s.hasPrevious
}
