package tileserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"mapviewer/internal/explore"
	"mapviewer/internal/geo"
	"mapviewer/internal/status"
	"mapviewer/pkg/tiles"
)

// StatusSource supplies the sidebar served on /status.
type StatusSource interface {
	Snapshot() status.Snapshot
	Lines() []string
}

// Navigator accepts focus changes posted to /goto.
type Navigator interface {
	GoTo(p geo.Point) error
}

// Server provides the local debug endpoints: tiles, prefetch, status,
// metrics and remote navigation.
type Server struct {
	cache  *TileCache
	status StatusSource
	nav    Navigator
	addr   string
	log    *zap.Logger
	server *http.Server
}

// NewServer creates a new debug server. status and nav may be nil, which
// disables the corresponding endpoints.
func NewServer(addr string, cache *TileCache, status StatusSource, nav Navigator) *Server {
	return &Server{
		cache:  cache,
		status: status,
		nav:    nav,
		addr:   addr,
		log:    zap.L().With(zap.String("component", "debug-server")),
	}
}

// Handler returns the routed endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /tile/{z}/{x}/{y}", s.handleTile)
	mux.HandleFunc("POST /prefetch", s.handlePrefetch)
	mux.HandleFunc("POST /goto", s.handleGoTo)
	return mux
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("debug server starting", zap.String("addr", s.addr))
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if eris.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "tileserver: listen")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "tileserver: shutdown")
		}
		return nil
	}
}

// handleTile serves tile requests: /tile/{zoom}/{x}/{y}
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	zoom, err := strconv.Atoi(r.PathValue("z"))
	if err != nil {
		http.Error(w, "Invalid zoom", http.StatusBadRequest)
		return
	}
	x, err := strconv.Atoi(r.PathValue("x"))
	if err != nil {
		http.Error(w, "Invalid x", http.StatusBadRequest)
		return
	}
	// Remove .png extension if present
	y, err := strconv.Atoi(strings.TrimSuffix(r.PathValue("y"), ".png"))
	if err != nil {
		http.Error(w, "Invalid y", http.StatusBadRequest)
		return
	}

	coord := tiles.TileCoord{X: x, Y: y, Zoom: zoom}
	if !coord.Valid() {
		http.Error(w, "Tile out of range", http.StatusBadRequest)
		return
	}

	data, err := s.cache.GetTile(r.Context(), coord)
	if err != nil {
		s.log.Warn("tile request failed", zap.Stringer("tile", coord), zap.Error(err))
		http.Error(w, "Failed to get tile", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "max-age=86400") // Cache for 24 hours
	_, _ = w.Write(data)
}

// PrefetchRequest represents a prefetch request
type PrefetchRequest struct {
	CenterLat      float64 `json:"centerLat"`
	CenterLon      float64 `json:"centerLon"`
	Zoom           int     `json:"zoom"`
	ViewportWidth  int     `json:"viewportWidth"`
	ViewportHeight int     `json:"viewportHeight"`
}

func (req PrefetchRequest) validateView() error {
	if req.Zoom < tiles.MinZoom || req.Zoom > tiles.MaxZoom {
		return eris.Errorf("zoom %d outside [%d, %d]", req.Zoom, tiles.MinZoom, tiles.MaxZoom)
	}
	for _, v := range []int{req.ViewportWidth, req.ViewportHeight} {
		if v <= 0 || v > tiles.MaxViewport {
			return eris.Errorf("viewport %dx%d outside (0, %d]", req.ViewportWidth, req.ViewportHeight, tiles.MaxViewport)
		}
	}
	return nil
}

func (s *Server) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	var req PrefetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := (geo.Point{Lat: req.CenterLat, Lon: req.CenterLon}).Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.validateView(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Start prefetching in background
	go s.cache.PrefetchArea(req.CenterLat, req.CenterLon, req.Zoom, req.ViewportWidth, req.ViewportHeight)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "prefetching"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		http.Error(w, "Status unavailable", http.StatusServiceUnavailable)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(strings.Join(s.status.Lines(), "\n") + "\n"))
		return
	}
	writeJSON(w, http.StatusOK, s.status.Snapshot())
}

func (s *Server) handleGoTo(w http.ResponseWriter, r *http.Request) {
	if s.nav == nil {
		http.Error(w, "Navigation unavailable", http.StatusServiceUnavailable)
		return
	}

	var p geo.Point
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	switch err := s.nav.GoTo(p); {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "navigating", "target": p})
	case eris.Is(err, geo.ErrInvalidCoordinate):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case eris.Is(err, explore.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.log.Error("goto failed", zap.Error(err))
		http.Error(w, "Navigation failed", http.StatusInternalServerError)
	}
}

// handleHealth provides a health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
