package renderer

import (
	"mapviewer/internal/camera"
	"mapviewer/internal/geo"
)

// MaxMarkers bounds the marker storage buffer.
const MaxMarkers = 64

// MarkerKind selects a marker's color.
type MarkerKind float32

const (
	MarkerPOI     MarkerKind = 0
	MarkerCurrent MarkerKind = 1
)

// Marker is a dot in framebuffer pixels. Layout matches the shader.
type Marker struct {
	X    float32
	Y    float32
	Kind MarkerKind
	_    float32
}

// Frame carries per-frame state the shader needs besides the tiles.
type Frame struct {
	Markers []Marker
	// OverlayAlpha dims the whole map (0 clear, 1 black).
	OverlayAlpha float32
	// Decoration is the tint strength while a flight runs.
	Decoration   float32
	MarkerRadius float32
}

// ProjectMarkers places the points of interest and the current position on
// screen, dropping any that fall outside the viewport by more than margin
// pixels. The camera viewport is in framebuffer pixels.
func ProjectMarkers(cam *camera.Camera, pois []geo.Point, current geo.Point, margin float64) []Marker {
	markers := make([]Marker, 0, len(pois)+1)
	add := func(p geo.Point, kind MarkerKind) {
		if len(markers) >= MaxMarkers {
			return
		}
		x, y := cam.GeoToScreen(p.Lon, p.Lat)
		if x < -margin || y < -margin ||
			x > float64(cam.ViewportWidth)+margin || y > float64(cam.ViewportHeight)+margin {
			return
		}
		markers = append(markers, Marker{X: float32(x), Y: float32(y), Kind: kind})
	}
	for _, p := range pois {
		add(p, MarkerPOI)
	}
	add(current, MarkerCurrent)
	return markers
}
