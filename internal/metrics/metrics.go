package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Memory metrics
	HeapUsedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapviewer",
		Subsystem: "memory",
		Name:      "heap_used_bytes",
		Help:      "Heap bytes in use at the last sample",
	})

	HeapTotalBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapviewer",
		Subsystem: "memory",
		Name:      "heap_total_bytes",
		Help:      "Heap bytes obtained from the OS at the last sample",
	})

	ForcedGC = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mapviewer",
		Subsystem: "memory",
		Name:      "forced_gc_total",
		Help:      "Garbage collections forced because heap use crossed the threshold",
	})

	// Transition metrics
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapviewer",
		Subsystem: "transit",
		Name:      "begins_total",
		Help:      "Focus changes by outcome",
	}, []string{"outcome"})

	TransitionDistance = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mapviewer",
		Subsystem: "transit",
		Name:      "distance_meters",
		Help:      "Great-circle distance of completed flights",
		Buckets:   []float64{1e4, 1e5, 5e5, 1e6, 5e6, 1e7, 2e7},
	})

	// Tile metrics
	TileRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapviewer",
		Subsystem: "tiles",
		Name:      "requests_total",
		Help:      "Raster tile lookups by result",
	}, []string{"result"})

	CacheClears = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mapviewer",
		Subsystem: "tiles",
		Name:      "cache_clears_total",
		Help:      "Times the tile disk cache was emptied",
	})

	// Window metrics
	WindowEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapviewer",
		Subsystem: "window",
		Name:      "events_total",
		Help:      "Window lifecycle events",
	}, []string{"event"})
)
