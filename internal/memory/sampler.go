package memory

import (
	"context"
	"iter"
	"runtime"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"go.uber.org/zap"

	"mapviewer/internal/metrics"
)

const mb = 1024 * 1024

// Usage is one heap sample.
type Usage struct {
	Used  uint64    `json:"used"`
	Total uint64    `json:"total"`
	At    time.Time `json:"at"`
}

// UsedMB rounds Used to whole megabytes.
func (u Usage) UsedMB() uint64 { return (u.Used + mb/2) / mb }

// TotalMB rounds Total to whole megabytes.
func (u Usage) TotalMB() uint64 { return (u.Total + mb/2) / mb }

// Percent is Used as a share of Total, 0 when Total is unknown.
func (u Usage) Percent() float64 {
	if u.Total == 0 {
		return 0
	}
	return float64(u.Used) / float64(u.Total) * 100
}

// ReadHeap reads the Go heap statistics.
func ReadHeap() Usage {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Usage{Used: ms.HeapAlloc, Total: ms.HeapSys}
}

// Config controls sampling.
type Config struct {
	Interval time.Duration
	// Threshold forces a collection when Used exceeds it. Zero disables.
	Threshold uint64
	Clock     clock.Clock
	Read      func() Usage
	Collect   func()
	// Live gates sampling: ticks where it reports false are skipped. Nil
	// means always live.
	Live func() bool
}

// Sampler produces heap samples at a fixed interval.
type Sampler struct {
	cfg Config
	log *zap.Logger
}

// NewSampler fills unset fields with the runtime defaults.
func NewSampler(cfg Config) *Sampler {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Read == nil {
		cfg.Read = ReadHeap
	}
	if cfg.Collect == nil {
		cfg.Collect = runtime.GC
	}
	return &Sampler{cfg: cfg, log: zap.L().With(zap.String("component", "memory"))}
}

// Samples is a lazy, infinite sequence: nothing is read until ranged over,
// the first sample is taken immediately, then one per interval until ctx is
// done or the loop breaks. Every range starts afresh. Nothing is sampled
// while Live reports false.
func (s *Sampler) Samples(ctx context.Context) iter.Seq[Usage] {
	return func(yield func(Usage) bool) {
		ticker := s.cfg.Clock.Ticker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			if ctx.Err() != nil {
				return
			}
			if s.live() && !yield(s.sample()) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}

func (s *Sampler) live() bool {
	return s.cfg.Live == nil || s.cfg.Live()
}

func (s *Sampler) sample() Usage {
	u := s.cfg.Read()
	if s.cfg.Threshold > 0 && u.Used > s.cfg.Threshold {
		s.cfg.Collect()
		metrics.ForcedGC.Inc()
		s.log.Info("forced garbage collection",
			zap.Uint64("used_mb", u.UsedMB()),
			zap.Uint64("threshold_mb", s.cfg.Threshold/mb),
		)
	}
	if u.At.IsZero() {
		u.At = s.cfg.Clock.Now()
	}

	metrics.HeapUsedBytes.Set(float64(u.Used))
	metrics.HeapTotalBytes.Set(float64(u.Total))
	s.log.Debug("heap sample",
		zap.Uint64("used_mb", u.UsedMB()),
		zap.Uint64("total_mb", u.TotalMB()),
	)
	return u
}

// Subscription is a running consumer of Samples.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Subscribe delivers samples to fn on its own goroutine until ctx is done or
// the subscription is cancelled.
func (s *Sampler) Subscribe(ctx context.Context, fn func(Usage)) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for u := range s.Samples(ctx) {
			fn(u)
		}
	}()
	return sub
}

// Cancel stops delivery and waits for the goroutine to exit. Safe to call
// more than once.
func (sub *Subscription) Cancel() {
	sub.once.Do(sub.cancel)
	<-sub.done
}

// Done is closed once no more samples will be delivered.
func (sub *Subscription) Done() <-chan struct{} {
	return sub.done
}
