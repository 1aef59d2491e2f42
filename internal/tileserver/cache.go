package tileserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mapviewer/internal/metrics"
	"mapviewer/pkg/tiles"
)

// Options configures a TileCache.
type Options struct {
	Dir         string
	URLTemplate string
	UserAgent   string
	Workers     int
	// RequestsPerSecond limits origin fetches. Zero means unlimited.
	RequestsPerSecond float64
	Client            *http.Client
	// OnClear runs after every Clear, for caches layered on top of this one.
	OnClear func()
}

// TileCache manages tile fetching and caching
type TileCache struct {
	opts       Options
	client     *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
	inFlight   map[string]chan struct{}
	inFlightMu sync.Mutex
	fetchQueue chan tiles.TileCoord
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// NewTileCache creates a new tile cache
func NewTileCache(opts Options) (*TileCache, error) {
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, eris.Wrapf(err, "tileserver: create cache directory %s", opts.Dir)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	tc := &TileCache{
		opts:       opts,
		client:     client,
		limiter:    rate.NewLimiter(limit, max(opts.Workers, 1)),
		log:        zap.L().With(zap.String("component", "tilecache")),
		inFlight:   make(map[string]chan struct{}),
		fetchQueue: make(chan tiles.TileCoord, 1000),
		ctx:        ctx,
		cancel:     cancel,
	}

	// Start background workers for prefetching
	for i := 0; i < opts.Workers; i++ {
		tc.wg.Add(1)
		go tc.worker()
	}

	return tc, nil
}

func (tc *TileCache) worker() {
	defer tc.wg.Done()
	for {
		select {
		case <-tc.ctx.Done():
			return
		case coord := <-tc.fetchQueue:
			if _, err := tc.fetchTile(tc.ctx, coord); err != nil && tc.ctx.Err() == nil {
				tc.log.Debug("prefetch failed", zap.Stringer("tile", coord), zap.Error(err))
			}
		}
	}
}

// Close stops the prefetch workers. The queue stays open; enqueue drops
// tiles once the cache is closed.
func (tc *TileCache) Close() {
	tc.closeOnce.Do(func() {
		tc.cancel()
		tc.wg.Wait()
	})
}

// tilePath returns the file path for a cached tile
func (tc *TileCache) tilePath(coord tiles.TileCoord) string {
	return filepath.Join(tc.opts.Dir, fmt.Sprintf("%d_%d_%d.png", coord.Zoom, coord.X, coord.Y))
}

// GetTile returns tile data, fetching and caching if necessary
func (tc *TileCache) GetTile(ctx context.Context, coord tiles.TileCoord) ([]byte, error) {
	if !coord.Valid() {
		return nil, eris.Errorf("tileserver: invalid tile %s", coord)
	}

	// Check cache first
	if data, err := os.ReadFile(tc.tilePath(coord)); err == nil {
		metrics.TileRequests.WithLabelValues("hit").Inc()
		return data, nil
	}

	data, err := tc.fetchTile(ctx, coord)
	if err != nil {
		metrics.TileRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.TileRequests.WithLabelValues("miss").Inc()

	// Queue adjacent tiles for prefetching
	tc.queuePrefetch(coord)

	return data, nil
}

// fetchTile downloads a tile from the origin and caches it
func (tc *TileCache) fetchTile(ctx context.Context, coord tiles.TileCoord) ([]byte, error) {
	key := coord.String()
	path := tc.tilePath(coord)

	// Check if already cached
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	}

	// Check if fetch is already in progress
	tc.inFlightMu.Lock()
	if ch, exists := tc.inFlight[key]; exists {
		tc.inFlightMu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "tileserver: tile %s after shared fetch", key)
		}
		return data, nil
	}

	// Mark as in-flight
	ch := make(chan struct{})
	tc.inFlight[key] = ch
	tc.inFlightMu.Unlock()

	defer func() {
		tc.inFlightMu.Lock()
		delete(tc.inFlight, key)
		close(ch)
		tc.inFlightMu.Unlock()
	}()

	if err := tc.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "tileserver: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coord.URL(tc.opts.URLTemplate), nil)
	if err != nil {
		return nil, eris.Wrap(err, "tileserver: create request")
	}
	req.Header.Set("User-Agent", tc.opts.UserAgent)

	resp, err := tc.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "tileserver: fetch tile %s", key)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("tileserver: tile %s: origin returned status %d", key, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "tileserver: read tile %s", key)
	}

	// Cache to disk
	if err := os.WriteFile(path, data, 0644); err != nil {
		// Log but don't fail - we still have the data
		tc.log.Warn("failed to cache tile", zap.String("tile", key), zap.Error(err))
	}

	return data, nil
}

// queuePrefetch adds adjacent tiles to the prefetch queue
func (tc *TileCache) queuePrefetch(coord tiles.TileCoord) {
	for _, adj := range tiles.GetAdjacentTiles(coord) {
		tc.enqueue(adj)
	}
}

func (tc *TileCache) enqueue(coord tiles.TileCoord) {
	if tc.ctx.Err() != nil {
		return
	}
	select {
	case <-tc.ctx.Done():
	case tc.fetchQueue <- coord:
	default:
		// Queue full, skip this tile
	}
}

// PrefetchArea prefetches tiles for a given viewport area (5x area for smooth panning)
func (tc *TileCache) PrefetchArea(centerLat, centerLon float64, zoom int, viewportWidth, viewportHeight int) {
	for _, coord := range tiles.GetPrefetchTiles(centerLat, centerLon, zoom, viewportWidth, viewportHeight) {
		tc.enqueue(coord)
	}
}

// IsCached checks if a tile is already cached
func (tc *TileCache) IsCached(coord tiles.TileCoord) bool {
	_, err := os.Stat(tc.tilePath(coord))
	return err == nil
}

// Clear removes every cached tile from disk and returns how many were removed.
func (tc *TileCache) Clear() (int, error) {
	entries, err := os.ReadDir(tc.opts.Dir)
	if err != nil {
		return 0, eris.Wrap(err, "tileserver: read cache directory")
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".png" {
			continue
		}
		if err := os.Remove(filepath.Join(tc.opts.Dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return removed, eris.Wrapf(err, "tileserver: remove %s", e.Name())
		}
		removed++
	}
	metrics.CacheClears.Inc()
	tc.log.Info("tile cache cleared", zap.Int("removed", removed))
	if tc.opts.OnClear != nil {
		tc.opts.OnClear()
	}
	return removed, nil
}

// ClearEvery clears the cache each interval while live reports true, until
// ctx is done.
func (tc *TileCache) ClearEvery(ctx context.Context, clk clock.Clock, interval time.Duration, live func() bool) error {
	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if live != nil && !live() {
				continue
			}
			if _, err := tc.Clear(); err != nil {
				tc.log.Warn("periodic cache clear failed", zap.Error(err))
			}
		}
	}
}
