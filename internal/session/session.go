package session

import (
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"mapviewer/internal/metrics"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = eris.New("session: closed")
	// ErrNoWindow is returned when an operation needs a live window.
	ErrNoWindow = eris.New("session: no live window")
)

// Window is the native window the session owns.
type Window interface {
	Destroy()
}

// Event is a window lifecycle notification.
type Event int

const (
	EventMinimized Event = iota
	EventRestored
	EventClosed
)

func (e Event) String() string {
	switch e {
	case EventMinimized:
		return "minimized"
	case EventRestored:
		return "restored"
	case EventClosed:
		return "closed"
	}
	return "unknown"
}

// WindowState is what the sidebar shows.
type WindowState int

const (
	StateNone WindowState = iota
	StateNormal
	StateMinimized
)

func (s WindowState) String() string {
	switch s {
	case StateNormal:
		return "Normal"
	case StateMinimized:
		return "Minimized"
	}
	return "None"
}

// Session owns the application window for the life of the process. Nothing
// else holds the window; lifecycle callbacks receive the session instead.
type Session struct {
	log *zap.Logger

	mu        sync.Mutex
	window    Window
	state     WindowState
	closed    bool
	nextID    int
	listeners map[int]func(*Session, Event)
	teardown  []func(*Session)
}

// New returns a session with no window attached.
func New() *Session {
	return &Session{
		log:       zap.L().With(zap.String("component", "session")),
		listeners: make(map[int]func(*Session, Event)),
	}
}

// Attach makes w the session's window, destroying any previous one.
func (s *Session) Attach(w Window) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	prev := s.window
	s.window = w
	s.state = StateNormal
	s.mu.Unlock()

	if prev != nil {
		prev.Destroy()
	}
	s.log.Info("window attached")
	return nil
}

// Window returns the live window.
func (s *Session) Window() (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.window == nil {
		return nil, ErrNoWindow
	}
	return s.window, nil
}

// Live reports whether a window is attached and the session is open.
func (s *Session) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.window != nil
}

// State returns the window state.
func (s *Session) State() WindowState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Notify records a lifecycle event and fans it out to subscribers.
// EventClosed destroys the window.
func (s *Session) Notify(e Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var destroy Window
	switch e {
	case EventMinimized:
		s.state = StateMinimized
	case EventRestored:
		s.state = StateNormal
	case EventClosed:
		destroy = s.window
		s.window = nil
		s.state = StateNone
	}
	listeners := make([]func(*Session, Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	metrics.WindowEvents.WithLabelValues(e.String()).Inc()
	s.log.Info("window event", zap.Stringer("event", e))

	if destroy != nil {
		destroy.Destroy()
	}
	for _, fn := range listeners {
		fn(s, e)
	}
}

// Subscribe registers fn for lifecycle events and returns its cancel func.
func (s *Session) Subscribe(fn func(*Session, Event)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// OnTeardown registers fn to run during Close, in registration order.
func (s *Session) OnTeardown(fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardown = append(s.teardown, fn)
}

// Close runs teardown hooks while the window is still attached, drops all
// listeners and destroys the window. Later calls return ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	hooks := s.teardown
	s.teardown = nil
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(s)
	}

	s.mu.Lock()
	s.closed = true
	w := s.window
	s.window = nil
	s.state = StateNone
	s.listeners = make(map[int]func(*Session, Event))
	s.mu.Unlock()

	if w != nil {
		w.Destroy()
		metrics.WindowEvents.WithLabelValues(EventClosed.String()).Inc()
	}
	s.log.Info("session closed")
	return nil
}
