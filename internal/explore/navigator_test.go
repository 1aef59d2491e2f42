package explore

import (
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapviewer/internal/geo"
	"mapviewer/internal/transit"
)

type stepClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []stepTimer
}

type stepTimer struct {
	at time.Duration
	f  func()
}

func (c *stepClock) AfterFunc(d time.Duration, f func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers = append(c.timers, stepTimer{at: c.now + d, f: f})
	return func() {}
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	until := c.now + d
	c.mu.Unlock()
	for {
		c.mu.Lock()
		sort.SliceStable(c.timers, func(i, j int) bool { return c.timers[i].at < c.timers[j].at })
		if len(c.timers) == 0 || c.timers[0].at > until {
			c.now = until
			c.mu.Unlock()
			return
		}
		t := c.timers[0]
		c.timers = c.timers[1:]
		c.now = t.at
		c.mu.Unlock()
		t.f()
	}
}

type recorder struct {
	mu      sync.Mutex
	targets []geo.Point
}

func (r *recorder) Begin(p geo.Point) transit.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, p)
	return transit.OutcomeStarted
}

func (r *recorder) Targets() []geo.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]geo.Point(nil), r.targets...)
}

func newTestNavigator() (*Navigator, *recorder, *stepClock) {
	clock := &stepClock{}
	rec := &recorder{}
	nav := NewNavigator(rec, clock, Config{
		LeadIn: 200 * time.Millisecond,
		Hold:   transit.DefaultTimeline.Total(),
		Home:   Home,
	}, rand.New(rand.NewPCG(1, 1)))
	return nav, rec, clock
}

func TestGoToLeadInAndHold(t *testing.T) {
	nav, rec, clock := newTestNavigator()
	target := geo.Point{Lat: 40.7128, Lon: -74.0060}

	require.NoError(t, nav.GoTo(target))
	assert.True(t, nav.Busy().Active())
	assert.Empty(t, rec.Targets())

	clock.Advance(199 * time.Millisecond)
	assert.Empty(t, rec.Targets())

	clock.Advance(time.Millisecond)
	assert.Equal(t, []geo.Point{target}, rec.Targets())
	assert.Equal(t, target, nav.Current())
	assert.True(t, nav.Busy().Active())

	clock.Advance(5*time.Second - time.Millisecond)
	assert.True(t, nav.Busy().Active())

	clock.Advance(time.Millisecond)
	assert.False(t, nav.Busy().Active())
}

func TestGoToWhileBusy(t *testing.T) {
	nav, rec, clock := newTestNavigator()

	require.NoError(t, nav.GoTo(geo.Point{Lat: 1, Lon: 1}))
	err := nav.GoTo(geo.Point{Lat: 2, Lon: 2})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrBusy))

	clock.Advance(10 * time.Second)
	assert.Len(t, rec.Targets(), 1)
	require.NoError(t, nav.GoTo(geo.Point{Lat: 2, Lon: 2}))
}

func TestGoToRejectsInvalidCoordinate(t *testing.T) {
	nav, rec, clock := newTestNavigator()

	err := nav.GoTo(geo.Point{Lat: 91, Lon: 0})
	require.Error(t, err)
	assert.True(t, eris.Is(err, geo.ErrInvalidCoordinate))
	assert.False(t, nav.Busy().Active())

	clock.Advance(time.Second)
	assert.Empty(t, rec.Targets())
}

func TestRandomizeStaysInRegions(t *testing.T) {
	nav, rec, clock := newTestNavigator()

	p, err := nav.Randomize()
	require.NoError(t, err)
	clock.Advance(6 * time.Second)

	assert.Equal(t, []geo.Point{p}, rec.Targets())
	inside := false
	for _, r := range geo.Regions {
		inside = inside || r.Contains(p)
	}
	assert.True(t, inside)
}

func TestReturnHome(t *testing.T) {
	nav, rec, clock := newTestNavigator()
	require.NoError(t, nav.ReturnHome())
	clock.Advance(time.Second)
	assert.Equal(t, []geo.Point{Home}, rec.Targets())
}

func TestVisit(t *testing.T) {
	nav, rec, clock := newTestNavigator()

	require.NoError(t, nav.Visit(2))
	clock.Advance(time.Second)
	assert.Equal(t, []geo.Point{PointsOfInterest[2].Position}, rec.Targets())

	err := nav.Visit(len(PointsOfInterest))
	assert.True(t, eris.Is(err, ErrUnknownPOI))
}

func TestOnMove(t *testing.T) {
	nav, _, clock := newTestNavigator()
	var moved []geo.Point
	nav.OnMove(func(p geo.Point) { moved = append(moved, p) })

	require.NoError(t, nav.ReturnHome())
	clock.Advance(time.Second)
	assert.Equal(t, []geo.Point{Home}, moved)
}

func TestPointsOfInterestAreValid(t *testing.T) {
	require.Len(t, PointsOfInterest, 4)
	for _, p := range PointsOfInterest {
		assert.NoError(t, p.Position.Validate(), p.Name)
	}
}
