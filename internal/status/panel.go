package status

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"mapviewer/internal/explore"
	"mapviewer/internal/geo"
	"mapviewer/internal/memory"
	"mapviewer/internal/session"
)

// Versions lists the runtime components shown in the sidebar.
type Versions struct {
	Go     string `json:"go"`
	GLFW   string `json:"glfw"`
	WebGPU string `json:"webgpu"`
}

// Snapshot is a copy of everything the sidebar shows.
type Snapshot struct {
	Versions     Versions      `json:"versions"`
	Memory       memory.Usage  `json:"memory"`
	Window       string        `json:"window"`
	Position     geo.Point     `json:"position"`
	NearestPlace string        `json:"nearest_place,omitempty"`
	Busy         bool          `json:"busy"`
	Zoom         int           `json:"zoom"`
	FPS          int           `json:"fps"`
	Points       []explore.POI `json:"points"`
}

// Panel collects sidebar state from the components that own it.
type Panel struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewPanel returns a panel with the built-in points of interest.
func NewPanel(v Versions) *Panel {
	return &Panel{snap: Snapshot{
		Versions: v,
		Memory:   memory.Usage{Total: 1},
		Window:   session.StateNone.String(),
		Points:   explore.PointsOfInterest,
	}}
}

func (p *Panel) SetMemory(u memory.Usage) {
	p.mu.Lock()
	p.snap.Memory = u
	p.mu.Unlock()
}

func (p *Panel) SetWindow(s session.WindowState) {
	p.mu.Lock()
	p.snap.Window = s.String()
	p.mu.Unlock()
}

// SetPosition records a new focus and forgets the place name of the old one.
func (p *Panel) SetPosition(pt geo.Point) {
	p.mu.Lock()
	p.snap.Position = pt
	p.snap.NearestPlace = ""
	p.mu.Unlock()
}

// SetNearestPlace is ignored unless at still matches the current position.
func (p *Panel) SetNearestPlace(at geo.Point, name string) {
	p.mu.Lock()
	if p.snap.Position.Equal(at) {
		p.snap.NearestPlace = name
	}
	p.mu.Unlock()
}

func (p *Panel) SetFrame(zoom, fps int, busy bool) {
	p.mu.Lock()
	p.snap.Zoom = zoom
	p.snap.FPS = fps
	p.snap.Busy = busy
	p.mu.Unlock()
}

// Snapshot returns a copy safe to serialize.
func (p *Panel) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.snap
	s.Points = append([]explore.POI(nil), p.snap.Points...)
	return s
}

// Title is the one-line summary shown in the window title bar.
func (p *Panel) Title(base string) string {
	s := p.Snapshot()
	var b strings.Builder
	b.WriteString(base)
	fmt.Fprintf(&b, " | %.4f, %.4f", s.Position.Lat, s.Position.Lon)
	if s.NearestPlace != "" {
		fmt.Fprintf(&b, " (%s)", s.NearestPlace)
	}
	fmt.Fprintf(&b, " | Zoom: %d | Mem: %d/%d MB (%.0f%%) | FPS: %d",
		s.Zoom, s.Memory.UsedMB(), s.Memory.TotalMB(), s.Memory.Percent(), s.FPS)
	if s.Busy {
		b.WriteString(" | Exploring the world...")
	}
	return b.String()
}

// Lines renders the full sidebar as text.
func (p *Panel) Lines() []string {
	s := p.Snapshot()
	lines := []string{
		"Versions:",
		"  Go: " + s.Versions.Go,
		"  GLFW: " + s.Versions.GLFW,
		"  WebGPU: " + s.Versions.WebGPU,
		"Memory:",
		fmt.Sprintf("  %d MB / %d MB (%.0f%%)", s.Memory.UsedMB(), s.Memory.TotalMB(), s.Memory.Percent()),
		"Window: " + s.Window,
		"Position:",
		fmt.Sprintf("  Latitude: %.4f", s.Position.Lat),
		fmt.Sprintf("  Longitude: %.4f", s.Position.Lon),
	}
	if s.NearestPlace != "" {
		lines = append(lines, "  Near: "+s.NearestPlace)
	}
	lines = append(lines, "Points of interest:")
	for i, poi := range s.Points {
		lines = append(lines, fmt.Sprintf("  [%d] %s - %s", i+1, poi.Name, poi.Description))
	}
	return lines
}

// Report logs the full sidebar, tagged with what prompted it.
func (p *Panel) Report(log *zap.Logger, reason string) {
	s := p.Snapshot()
	log.Info("sidebar",
		zap.String("reason", reason),
		zap.String("window", s.Window),
		zap.Strings("lines", p.Lines()),
	)
}
