package transit

import (
	"sort"
	"sync"
	"time"

	"mapviewer/internal/geo"
)

// manualScheduler is a simulated clock. Timers fire only from Advance, in
// deadline order, including timers scheduled by callbacks that fall inside
// the advanced window.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	at      time.Duration
	seq     int
	f       func()
	stopped bool
}

func (m *manualScheduler) AfterFunc(d time.Duration, f func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{at: m.now + d, seq: m.seq, f: f}
	m.timers = append(m.timers, t)
	return func() {
		m.mu.Lock()
		t.stopped = true
		m.mu.Unlock()
	}
}

func (m *manualScheduler) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (m *manualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	until := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		sort.SliceStable(m.timers, func(i, j int) bool {
			if m.timers[i].at == m.timers[j].at {
				return m.timers[i].seq < m.timers[j].seq
			}
			return m.timers[i].at < m.timers[j].at
		})
		var due *manualTimer
		for i, t := range m.timers {
			if t.stopped {
				continue
			}
			if t.at <= until {
				due = t
				m.timers = append(m.timers[:i], m.timers[i+1:]...)
			}
			break
		}
		if due == nil {
			m.now = until
			m.mu.Unlock()
			return
		}
		m.now = due.at
		m.mu.Unlock()
		due.f()
	}
}

type call struct {
	Kind     string
	Point    geo.Point
	Zoom     int
	Duration time.Duration
	At       time.Duration
}

// fakeHost records every command issued against it.
type fakeHost struct {
	mu        sync.Mutex
	clock     *manualScheduler
	zoom      int
	live      bool
	decorated bool
	calls     []call
}

func newFakeHost(clock *manualScheduler, zoom int) *fakeHost {
	return &fakeHost{clock: clock, zoom: zoom, live: true}
}

func (h *fakeHost) FlyTo(p geo.Point, zoom int, d time.Duration, _ float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call{Kind: "flyTo", Point: p, Zoom: zoom, Duration: d, At: h.clock.Now()})
}

func (h *fakeHost) SetView(p geo.Point, zoom int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call{Kind: "setView", Point: p, Zoom: zoom, At: h.clock.Now()})
}

func (h *fakeHost) Zoom() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.zoom
}

func (h *fakeHost) SetDecoration(on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.decorated = on
}

func (h *fakeHost) Live() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live
}

func (h *fakeHost) kill() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live = false
}

func (h *fakeHost) Calls() []call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]call(nil), h.calls...)
}

func (h *fakeHost) count(kind string) int {
	n := 0
	for _, c := range h.Calls() {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

func (h *fakeHost) Decorated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.decorated
}
