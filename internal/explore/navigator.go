package explore

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"mapviewer/internal/geo"
	"mapviewer/internal/transit"
)

// ErrBusy is returned when an action arrives while a navigation is underway.
var ErrBusy = eris.New("explore: navigation in progress")

// ErrUnknownPOI is returned by Visit for an index outside PointsOfInterest.
var ErrUnknownPOI = eris.New("explore: unknown point of interest")

// Beginner accepts a new focus point. *transit.Sequencer satisfies it.
type Beginner interface {
	Begin(target geo.Point) transit.Outcome
}

// Config tunes the navigator's timing.
type Config struct {
	// LeadIn is the pause between raising the busy flag and handing the
	// target to the sequencer.
	LeadIn time.Duration
	// Hold is how long the flag stays up once the target is handed over.
	// It should be the sequencer's Timeline.Total().
	Hold    time.Duration
	Home    geo.Point
	Regions []geo.Region
}

// Navigator turns user actions into focus changes and owns the busy flag.
type Navigator struct {
	seq   Beginner
	sched transit.Scheduler
	cfg   Config
	busy  BusyFlag
	log   *zap.Logger

	mu      sync.Mutex
	rng     *rand.Rand
	current geo.Point
	onMove  func(geo.Point)
}

// NewNavigator creates a navigator focused on cfg.Home.
func NewNavigator(seq Beginner, sched transit.Scheduler, cfg Config, rng *rand.Rand) *Navigator {
	if len(cfg.Regions) == 0 {
		cfg.Regions = geo.Regions
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return &Navigator{
		seq:     seq,
		sched:   sched,
		cfg:     cfg,
		rng:     rng,
		current: cfg.Home,
		log:     zap.L().With(zap.String("component", "explore")),
	}
}

// Busy exposes the flag for the overlay.
func (n *Navigator) Busy() *BusyFlag {
	return &n.busy
}

// Current is the last target handed to the sequencer.
func (n *Navigator) Current() geo.Point {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// OnMove registers a callback run when a target is handed over.
func (n *Navigator) OnMove(fn func(geo.Point)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onMove = fn
}

// GoTo validates p and starts a navigation to it.
func (n *Navigator) GoTo(p geo.Point) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if !n.busy.raise() {
		return ErrBusy
	}

	n.log.Debug("navigation requested", zap.Stringer("target", p))
	n.sched.AfterFunc(n.cfg.LeadIn, func() {
		n.mu.Lock()
		n.current = p
		onMove := n.onMove
		n.mu.Unlock()

		out := n.seq.Begin(p)
		if onMove != nil {
			onMove(p)
		}
		n.log.Debug("target handed over", zap.Stringer("target", p), zap.Stringer("outcome", out))

		n.sched.AfterFunc(n.cfg.Hold, n.busy.lower)
	})
	return nil
}

// Randomize navigates to a random point inside one of the configured regions.
func (n *Navigator) Randomize() (geo.Point, error) {
	n.mu.Lock()
	p, region := geo.RandomPoint(n.rng, n.cfg.Regions)
	n.mu.Unlock()

	if err := n.GoTo(p); err != nil {
		return geo.Point{}, err
	}
	n.log.Info("exploring", zap.String("region", region.Name), zap.Stringer("target", p))
	return p, nil
}

// ReturnHome navigates back to the configured home point.
func (n *Navigator) ReturnHome() error {
	return n.GoTo(n.cfg.Home)
}

// Visit navigates to PointsOfInterest[i].
func (n *Navigator) Visit(i int) error {
	if i < 0 || i >= len(PointsOfInterest) {
		return eris.Wrapf(ErrUnknownPOI, "index %d", i)
	}
	return n.GoTo(PointsOfInterest[i].Position)
}
