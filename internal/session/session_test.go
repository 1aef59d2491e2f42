package session

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWindow struct {
	destroyed int
}

func (w *fakeWindow) Destroy() { w.destroyed++ }

func TestAttachAndLive(t *testing.T) {
	s := New()
	assert.False(t, s.Live())
	_, err := s.Window()
	assert.True(t, eris.Is(err, ErrNoWindow))

	w := &fakeWindow{}
	require.NoError(t, s.Attach(w))
	assert.True(t, s.Live())
	assert.Equal(t, StateNormal, s.State())

	got, err := s.Window()
	require.NoError(t, err)
	assert.Same(t, w, got)
}

func TestAttachReplacesPreviousWindow(t *testing.T) {
	s := New()
	first, second := &fakeWindow{}, &fakeWindow{}
	require.NoError(t, s.Attach(first))
	require.NoError(t, s.Attach(second))

	assert.Equal(t, 1, first.destroyed)
	assert.Zero(t, second.destroyed)
}

func TestNotifyUpdatesStateAndFansOut(t *testing.T) {
	s := New()
	require.NoError(t, s.Attach(&fakeWindow{}))

	var events []Event
	cancel := s.Subscribe(func(got *Session, e Event) {
		assert.Same(t, s, got)
		events = append(events, e)
	})

	s.Notify(EventMinimized)
	assert.Equal(t, StateMinimized, s.State())
	s.Notify(EventRestored)
	assert.Equal(t, StateNormal, s.State())

	cancel()
	s.Notify(EventMinimized)

	assert.Equal(t, []Event{EventMinimized, EventRestored}, events)
}

func TestCloseEventDestroysWindow(t *testing.T) {
	s := New()
	w := &fakeWindow{}
	require.NoError(t, s.Attach(w))

	s.Notify(EventClosed)

	assert.Equal(t, 1, w.destroyed)
	assert.False(t, s.Live())
	assert.Equal(t, StateNone, s.State())
}

func TestCloseRunsTeardownWhileLive(t *testing.T) {
	s := New()
	w := &fakeWindow{}
	require.NoError(t, s.Attach(w))

	var order []string
	s.OnTeardown(func(got *Session) {
		assert.True(t, got.Live())
		order = append(order, "first")
	})
	s.OnTeardown(func(*Session) { order = append(order, "second") })

	var events int
	s.Subscribe(func(*Session, Event) { events++ })

	require.NoError(t, s.Close())
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, 1, w.destroyed)
	assert.False(t, s.Live())

	s.Notify(EventMinimized)
	assert.Zero(t, events)

	err := s.Close()
	assert.True(t, eris.Is(err, ErrClosed))
	assert.True(t, eris.Is(s.Attach(&fakeWindow{}), ErrClosed))
	_, err = s.Window()
	assert.True(t, eris.Is(err, ErrClosed))
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "Minimized", StateMinimized.String())
	assert.Equal(t, "Normal", StateNormal.String())
	assert.Equal(t, "restored", EventRestored.String())
}
