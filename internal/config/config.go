package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mapviewer/internal/geo"
	"mapviewer/internal/transit"
)

// Config holds application configuration and feature flags
type Config struct {
	Window     WindowConfig     `yaml:"window" mapstructure:"window"`
	Map        MapConfig        `yaml:"map" mapstructure:"map"`
	Transition TransitionConfig `yaml:"transition" mapstructure:"transition"`
	Overlay    OverlayConfig    `yaml:"overlay" mapstructure:"overlay"`
	Memory     MemoryConfig     `yaml:"memory" mapstructure:"memory"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Features   Features         `yaml:"features" mapstructure:"features"`
	Rendering  Rendering        `yaml:"rendering" mapstructure:"rendering"`
	Debug      DebugConfig      `yaml:"debug" mapstructure:"debug"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// WindowConfig sizes the native window.
type WindowConfig struct {
	Width  int    `yaml:"width" mapstructure:"width"`
	Height int    `yaml:"height" mapstructure:"height"`
	Title  string `yaml:"title" mapstructure:"title"`
}

// MapConfig sets the initial view and tile sources.
type MapConfig struct {
	StartLat      float64 `yaml:"start_lat" mapstructure:"start_lat"`
	StartLon      float64 `yaml:"start_lon" mapstructure:"start_lon"`
	Zoom          int     `yaml:"zoom" mapstructure:"zoom"`
	TileURL       string  `yaml:"tile_url" mapstructure:"tile_url"`
	VectorTileURL string  `yaml:"vector_tile_url" mapstructure:"vector_tile_url"`
	CacheDir      string  `yaml:"cache_dir" mapstructure:"cache_dir"`
	Workers       int     `yaml:"workers" mapstructure:"workers"`
	// RequestsPerSecond caps tile downloads; tile servers ban clients that hammer them.
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// TransitionConfig sets the camera flight stages.
type TransitionConfig struct {
	ZoomOut       time.Duration `yaml:"zoom_out" mapstructure:"zoom_out"`
	Pan           time.Duration `yaml:"pan" mapstructure:"pan"`
	ZoomIn        time.Duration `yaml:"zoom_in" mapstructure:"zoom_in"`
	EaseLinearity float64       `yaml:"ease_linearity" mapstructure:"ease_linearity"`
	// LeadIn is the pause between the overlay going up and the flight starting.
	LeadIn time.Duration `yaml:"lead_in" mapstructure:"lead_in"`
}

// Timeline converts to the sequencer's stage table. The busy hold is its Total.
func (t TransitionConfig) Timeline() transit.Timeline {
	return transit.Timeline{
		ZoomOut:       t.ZoomOut,
		Pan:           t.Pan,
		ZoomIn:        t.ZoomIn,
		EaseLinearity: t.EaseLinearity,
	}
}

// OverlayConfig tunes the dimming overlay.
type OverlayConfig struct {
	Delay time.Duration `yaml:"delay" mapstructure:"delay"`
	Alpha float64       `yaml:"alpha" mapstructure:"alpha"`
	Fade  time.Duration `yaml:"fade" mapstructure:"fade"`
}

// MemoryConfig controls heap sampling.
type MemoryConfig struct {
	Interval      time.Duration `yaml:"interval" mapstructure:"interval"`
	GCThresholdMB uint64        `yaml:"gc_threshold_mb" mapstructure:"gc_threshold_mb"`
}

// CacheConfig controls tile cache hygiene.
type CacheConfig struct {
	ClearInterval time.Duration `yaml:"clear_interval" mapstructure:"clear_interval"`
	ClearOnStart  bool          `yaml:"clear_on_start" mapstructure:"clear_on_start"`
}

// Features contains feature flags
type Features struct {
	// EnableMarkers draws the points of interest and the current position.
	EnableMarkers bool `yaml:"enable_markers" mapstructure:"enable_markers"`
	// EnableDecoration tints the map while a transition runs.
	EnableDecoration bool `yaml:"enable_decoration" mapstructure:"enable_decoration"`
	// EnablePlaceLookup names the nearest place once a flight settles.
	EnablePlaceLookup bool `yaml:"enable_place_lookup" mapstructure:"enable_place_lookup"`
}

// Rendering contains rendering parameters
type Rendering struct {
	// MarkerRadius is the marker dot radius in pixels.
	MarkerRadius float64 `yaml:"marker_radius" mapstructure:"marker_radius"`
	// DecorationStrength is how far the map is tinted during a flight (0-1).
	DecorationStrength float64 `yaml:"decoration_strength" mapstructure:"decoration_strength"`
}

// DebugConfig enables the local HTTP server. Empty Addr disables it.
type DebugConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Start returns the configured initial focus.
func (c *Config) Start() geo.Point {
	return geo.Point{Lat: c.Map.StartLat, Lon: c.Map.StartLon}
}

// Load reads configuration from file and environment. An empty path searches
// the working directory for mapviewer.yaml; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mapviewer")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("MAPVIEWER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("window.width", 1200)
	v.SetDefault("window.height", 800)
	v.SetDefault("window.title", "Map Viewer")
	v.SetDefault("map.start_lat", -23.5505)
	v.SetDefault("map.start_lon", -46.6333)
	v.SetDefault("map.zoom", 3)
	v.SetDefault("map.tile_url", "https://tile.openstreetmap.org/{z}/{x}/{y}.png")
	v.SetDefault("map.vector_tile_url", "https://tiles.openfreemap.org/planet/20251203_001001_pt/{z}/{x}/{y}.pbf")
	v.SetDefault("map.cache_dir", ".tile_cache")
	v.SetDefault("map.workers", 8)
	v.SetDefault("map.requests_per_second", 20.0)
	v.SetDefault("map.user_agent", "MapViewer/1.0 (educational project)")
	v.SetDefault("transition.zoom_out", transit.DefaultTimeline.ZoomOut)
	v.SetDefault("transition.pan", transit.DefaultTimeline.Pan)
	v.SetDefault("transition.zoom_in", transit.DefaultTimeline.ZoomIn)
	v.SetDefault("transition.ease_linearity", transit.DefaultTimeline.EaseLinearity)
	v.SetDefault("transition.lead_in", 200*time.Millisecond)
	v.SetDefault("overlay.delay", 100*time.Millisecond)
	v.SetDefault("overlay.alpha", 0.3)
	v.SetDefault("overlay.fade", 500*time.Millisecond)
	v.SetDefault("memory.interval", 30*time.Second)
	v.SetDefault("memory.gc_threshold_mb", 1024)
	v.SetDefault("cache.clear_interval", 30*time.Minute)
	v.SetDefault("cache.clear_on_start", true)
	v.SetDefault("features.enable_markers", true)
	v.SetDefault("features.enable_decoration", true)
	v.SetDefault("features.enable_place_lookup", true)
	v.SetDefault("rendering.marker_radius", 8.0)
	v.SetDefault("rendering.decoration_strength", 0.15)
	v.SetDefault("debug.addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the application cannot run with.
func (c *Config) Validate() error {
	if err := c.Start().Validate(); err != nil {
		return eris.Wrap(err, "config: map start")
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return eris.Errorf("config: window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Map.Workers <= 0 {
		return eris.Errorf("config: map.workers must be positive, got %d", c.Map.Workers)
	}
	positive := []struct {
		key string
		d   time.Duration
	}{
		{"transition.zoom_out", c.Transition.ZoomOut},
		{"transition.pan", c.Transition.Pan},
		{"transition.zoom_in", c.Transition.ZoomIn},
		{"memory.interval", c.Memory.Interval},
		{"cache.clear_interval", c.Cache.ClearInterval},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return eris.Errorf("config: %s must be positive, got %s", p.key, p.d)
		}
	}
	nonNegative := []struct {
		key string
		d   time.Duration
	}{
		{"transition.lead_in", c.Transition.LeadIn},
		{"overlay.delay", c.Overlay.Delay},
		{"overlay.fade", c.Overlay.Fade},
	}
	for _, n := range nonNegative {
		if n.d < 0 {
			return eris.Errorf("config: %s must not be negative, got %s", n.key, n.d)
		}
	}
	if c.Overlay.Alpha < 0 || c.Overlay.Alpha > 1 {
		return eris.Errorf("config: overlay.alpha must be within [0,1], got %v", c.Overlay.Alpha)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
