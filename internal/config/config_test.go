package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mapviewer/internal/geo"
)

func chdirTemp(t *testing.T) string {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 1200, cfg.Window.Width)
	assert.Equal(t, 800, cfg.Window.Height)
	assert.Equal(t, geo.Point{Lat: -23.5505, Lon: -46.6333}, cfg.Start())
	assert.Equal(t, 3, cfg.Map.Zoom)
	assert.Equal(t, 8, cfg.Map.Workers)
	assert.Equal(t, "https://tile.openstreetmap.org/{z}/{x}/{y}.png", cfg.Map.TileURL)
	assert.Equal(t, 1500*time.Millisecond, cfg.Transition.ZoomOut)
	assert.Equal(t, 2*time.Second, cfg.Transition.Pan)
	assert.Equal(t, 1500*time.Millisecond, cfg.Transition.ZoomIn)
	assert.Equal(t, 200*time.Millisecond, cfg.Transition.LeadIn)
	assert.Equal(t, 5*time.Second, cfg.Transition.Timeline().Total())
	assert.Equal(t, 100*time.Millisecond, cfg.Overlay.Delay)
	assert.InDelta(t, 0.3, cfg.Overlay.Alpha, 0.001)
	assert.Equal(t, 30*time.Second, cfg.Memory.Interval)
	assert.Equal(t, uint64(1024), cfg.Memory.GCThresholdMB)
	assert.Equal(t, 30*time.Minute, cfg.Cache.ClearInterval)
	assert.True(t, cfg.Cache.ClearOnStart)
	assert.True(t, cfg.Features.EnableMarkers)
	assert.Empty(t, cfg.Debug.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
map:
  start_lat: 52.3676
  start_lon: 4.9041
  zoom: 12
transition:
  pan: 3s
memory:
  interval: 1m
debug:
  addr: 127.0.0.1:9300
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mapviewer.yaml"), []byte(yaml), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, geo.Point{Lat: 52.3676, Lon: 4.9041}, cfg.Start())
	assert.Equal(t, 12, cfg.Map.Zoom)
	assert.Equal(t, 3*time.Second, cfg.Transition.Pan)
	assert.Equal(t, 6*time.Second, cfg.Transition.Timeline().Total())
	assert.Equal(t, time.Minute, cfg.Memory.Interval)
	assert.Equal(t, "127.0.0.1:9300", cfg.Debug.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, 1500*time.Millisecond, cfg.Transition.ZoomOut)
}

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window:\n  width: 640\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Window.Width)
}

func TestLoadMissingExplicitPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mapviewer.yaml"), []byte("log:\n  level: debug\n"), 0644))
	t.Setenv("MAPVIEWER_LOG_LEVEL", "warn")
	t.Setenv("MAPVIEWER_MAP_ZOOM", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 7, cfg.Map.Zoom)
}

func TestLoadRejectsInvalidStart(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mapviewer.yaml"), []byte("map:\n  start_lat: 120\n"), 0644))

	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	chdirTemp(t)
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero pan", func(c *Config) { c.Transition.Pan = 0 }},
		{"negative interval", func(c *Config) { c.Memory.Interval = -time.Second }},
		{"zero clear interval", func(c *Config) { c.Cache.ClearInterval = 0 }},
		{"no workers", func(c *Config) { c.Map.Workers = 0 }},
		{"no width", func(c *Config) { c.Window.Width = 0 }},
		{"alpha too high", func(c *Config) { c.Overlay.Alpha = 1.5 }},
		{"bad longitude", func(c *Config) { c.Map.StartLon = 200 }},
		{"negative lead in", func(c *Config) { c.Transition.LeadIn = -time.Millisecond }},
		{"negative overlay delay", func(c *Config) { c.Overlay.Delay = -time.Millisecond }},
		{"negative overlay fade", func(c *Config) { c.Overlay.Fade = -time.Millisecond }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, base.Validate())

	zeroed := *base
	zeroed.Transition.LeadIn, zeroed.Overlay.Delay, zeroed.Overlay.Fade = 0, 0, 0
	assert.NoError(t, zeroed.Validate(), "zero waits are allowed")
}

func TestValidateReportsFirstBadKeyInOrder(t *testing.T) {
	chdirTemp(t)
	base, err := Load("")
	require.NoError(t, err)

	cfg := *base
	cfg.Transition.ZoomOut = 0
	cfg.Cache.ClearInterval = 0
	cfg.Overlay.Fade = -time.Second
	for range 20 {
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "transition.zoom_out")
	}
}

func TestInitLogger(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "json"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "console"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))

	assert.Error(t, InitLogger(LogConfig{Level: "loud"}))
}
