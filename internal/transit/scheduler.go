package transit

import (
	"time"

	"github.com/facebookgo/clock"
)

// Scheduler runs f once after d. The returned func cancels it if it has not
// fired yet.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (cancel func())
}

// ClockScheduler schedules on a clock. When Post is set, fired callbacks are
// handed to it instead of running on the timer goroutine, so an event loop
// can execute them in order on its own thread.
type ClockScheduler struct {
	Clock clock.Clock
	Post  func(func())
}

// NewClockScheduler returns a scheduler on the wall clock.
func NewClockScheduler(post func(func())) *ClockScheduler {
	return &ClockScheduler{Clock: clock.New(), Post: post}
}

func (s *ClockScheduler) AfterFunc(d time.Duration, f func()) func() {
	run := f
	if s.Post != nil {
		run = func() { s.Post(f) }
	}
	t := s.Clock.AfterFunc(d, run)
	return func() { t.Stop() }
}
