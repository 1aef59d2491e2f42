package app

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"mapviewer/internal/camera"
	"mapviewer/internal/geo"
	"mapviewer/internal/session"
	"mapviewer/internal/status"
	"mapviewer/internal/transit"
)

// eventLoop queues work for the render thread. Timer callbacks and
// background goroutines post here; the main loop drains once per frame, so
// the camera and the sequencer's host calls never leave that thread.
type eventLoop struct {
	queue chan func()
	done  <-chan struct{}
}

func newEventLoop(ctx context.Context, size int) *eventLoop {
	return &eventLoop{queue: make(chan func(), size), done: ctx.Done()}
}

// Post blocks until f is queued or the loop has shut down. It must not be
// called from the draining goroutine.
func (l *eventLoop) Post(f func()) {
	select {
	case l.queue <- f:
	case <-l.done:
	}
}

// Drain runs everything queued so far and returns how many ran.
func (l *eventLoop) Drain() int {
	n := 0
	for {
		select {
		case f := <-l.queue:
			f()
			n++
		default:
			return n
		}
	}
}

// mapHost is the movement sink the sequencer drives: the camera, guarded by
// the session's liveness.
type mapHost struct {
	cam       *camera.Camera
	live      func() bool
	moved     func()
	decorated bool
}

var _ transit.Host = (*mapHost)(nil)

func (h *mapHost) FlyTo(p geo.Point, zoom int, d time.Duration, easeLinearity float64) {
	h.cam.FlyTo(p.Lat, p.Lon, zoom, d, easeLinearity)
	if h.moved != nil {
		h.moved()
	}
}

func (h *mapHost) SetView(p geo.Point, zoom int) {
	h.cam.SetView(p.Lat, p.Lon, zoom)
	if h.moved != nil {
		h.moved()
	}
}

func (h *mapHost) Zoom() int {
	return h.cam.Zoom
}

func (h *mapHost) SetDecoration(on bool) {
	h.decorated = on
}

func (h *mapHost) Live() bool {
	return h.live == nil || h.live()
}

// TryPost queues f unless the queue is full.
func (l *eventLoop) TryPost(f func()) bool {
	select {
	case l.queue <- f:
		return true
	default:
		return false
	}
}

// watchWindow mirrors window state into the sidebar and reports the sidebar
// on every lifecycle event. It returns the unsubscribe func.
func watchWindow(sess *session.Session, panel *status.Panel, log *zap.Logger) func() {
	return sess.Subscribe(func(s *session.Session, e session.Event) {
		panel.SetWindow(s.State())
		panel.Report(log, "window "+e.String())
	})
}

// endSession runs the teardown hooks while the window is still attached, then
// destroys it.
func endSession(sess *session.Session, log *zap.Logger) {
	if err := sess.Close(); err != nil && !eris.Is(err, session.ErrClosed) {
		log.Warn("session close failed", zap.Error(err))
	}
}

// depVersion finds the module providing path, which may be a package inside
// it, or the module path itself.
func depVersion(deps []*debug.Module, path string) string {
	for _, m := range deps {
		if strings.HasPrefix(m.Path, path) || strings.HasPrefix(path, m.Path+"/") {
			return m.Version
		}
	}
	return "unknown"
}
