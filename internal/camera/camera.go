package camera

import (
	"math"
	"time"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"

	"mapviewer/pkg/tiles"
)

const tileSize = 256.0

// Camera represents the map camera/viewport
type Camera struct {
	// Geographic position (center of view)
	Lat float64
	Lon float64

	// Zoom level (tiles.MinZoom-tiles.MaxZoom)
	Zoom int

	// Viewport dimensions
	ViewportWidth  int
	ViewportHeight int

	flight *flight

	// State tracking
	isDragging bool
	lastDragX  float64
	lastDragY  float64
}

// flight animates center and zoom together toward a destination.
type flight struct {
	lat, lon, zoom *gween.Tween
	toLat, toLon   float64
	toZoom         int
}

// NewCamera creates a new camera centered on given coordinates
func NewCamera(lat, lon float64, zoom int, width, height int) *Camera {
	c := &Camera{
		Lat:            lat,
		Lon:            lon,
		ViewportWidth:  width,
		ViewportHeight: height,
	}
	c.Zoom = clampZoom(zoom)
	c.clampPosition()
	return c
}

// Easing picks the curve used for a flight. Linearity 1 is a straight
// interpolation; lower values ease harder at both ends.
func Easing(linearity float64) ease.TweenFunc {
	switch {
	case linearity >= 1:
		return ease.Linear
	case linearity >= 0.5:
		return ease.InOutQuad
	default:
		return ease.InOutCubic
	}
}

// FlyTo starts an animated move to (lat, lon) at zoom that completes after d.
// A running flight is replaced from the current position.
func (c *Camera) FlyTo(lat, lon float64, zoom int, d time.Duration, linearity float64) {
	zoom = clampZoom(zoom)
	if d <= 0 {
		c.SetView(lat, lon, zoom)
		return
	}
	secs := float32(d.Seconds())
	fn := Easing(linearity)
	c.flight = &flight{
		lat:    gween.New(float32(c.Lat), float32(lat), secs, fn),
		lon:    gween.New(float32(c.Lon), float32(lon), secs, fn),
		zoom:   gween.New(float32(c.Zoom), float32(zoom), secs, fn),
		toLat:  lat,
		toLon:  lon,
		toZoom: zoom,
	}
}

// SetView jumps to (lat, lon) at zoom without animation.
func (c *Camera) SetView(lat, lon float64, zoom int) {
	c.flight = nil
	c.Lat, c.Lon = lat, lon
	c.Zoom = clampZoom(zoom)
	c.clampPosition()
}

// Update advances a running flight by dt seconds.
func (c *Camera) Update(dt float32) {
	f := c.flight
	if f == nil {
		return
	}
	lat, done := f.lat.Update(dt)
	lon, _ := f.lon.Update(dt)
	zoom, _ := f.zoom.Update(dt)
	if done {
		c.SetView(f.toLat, f.toLon, f.toZoom)
		return
	}
	c.Lat, c.Lon = float64(lat), float64(lon)
	c.Zoom = clampZoom(int(math.Round(float64(zoom))))
	c.clampPosition()
}

// Animating reports whether a flight is running.
func (c *Camera) Animating() bool {
	return c.flight != nil
}

// Stop abandons a running flight where it is.
func (c *Camera) Stop() {
	c.flight = nil
}

// SetViewport updates the viewport dimensions
func (c *Camera) SetViewport(width, height int) {
	c.ViewportWidth = width
	c.ViewportHeight = height
}

// Pan moves the camera by the given pixel delta
func (c *Camera) Pan(deltaX, deltaY float64) {
	c.flight = nil

	// At zoom level z, there are 2^z tiles, each 256 pixels
	scale := math.Pow(2, float64(c.Zoom))

	// Degrees per pixel
	lonPerPixel := 360.0 / (scale * tileSize)

	// Latitude is more complex due to Mercator projection
	latRad := c.Lat * math.Pi / 180.0
	metersPerPixel := 156543.03392 * math.Cos(latRad) / scale
	latPerPixel := metersPerPixel / 111319.9 // meters per degree at equator

	c.Lon -= deltaX * lonPerPixel
	c.Lat += deltaY * latPerPixel

	c.clampPosition()
}

// ZoomIn increases zoom level
func (c *Camera) ZoomIn() {
	c.ZoomTo(c.Zoom + 1)
}

// ZoomOut decreases zoom level
func (c *Camera) ZoomOut() {
	c.ZoomTo(c.Zoom - 1)
}

// ZoomTo sets a specific zoom level
func (c *Camera) ZoomTo(zoom int) {
	c.flight = nil
	c.Zoom = clampZoom(zoom)
}

// ZoomAtPoint zooms in/out centered on a specific screen point
func (c *Camera) ZoomAtPoint(delta int, screenX, screenY float64) {
	// Get the geographic position under the cursor before zoom
	geoX, geoY := c.ScreenToGeo(screenX, screenY)

	newZoom := clampZoom(c.Zoom + delta)
	if newZoom == c.Zoom {
		return
	}
	c.flight = nil
	c.Zoom = newZoom

	// Keep the same geographic point under the cursor
	newScreenX, newScreenY := c.GeoToScreen(geoX, geoY)
	c.Pan(-(screenX - newScreenX), screenY-newScreenY)
}

func worldPixel(lat, lon, scale float64) (x, y float64) {
	x = (lon + 180.0) / 360.0 * scale * tileSize
	latRad := lat * math.Pi / 180.0
	y = (1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * scale * tileSize
	return x, y
}

// ScreenToGeo converts screen coordinates to geographic coordinates
func (c *Camera) ScreenToGeo(screenX, screenY float64) (lon, lat float64) {
	scale := math.Pow(2, float64(c.Zoom))
	centerX, centerY := worldPixel(c.Lat, c.Lon, scale)

	worldX := centerX + screenX - float64(c.ViewportWidth)/2
	worldY := centerY + screenY - float64(c.ViewportHeight)/2

	lon = worldX/(scale*tileSize)*360.0 - 180.0
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*worldY/(scale*tileSize))))
	lat = latRad * 180.0 / math.Pi

	return lon, lat
}

// GeoToScreen converts geographic coordinates to screen coordinates
func (c *Camera) GeoToScreen(lon, lat float64) (screenX, screenY float64) {
	scale := math.Pow(2, float64(c.Zoom))
	centerX, centerY := worldPixel(c.Lat, c.Lon, scale)
	targetX, targetY := worldPixel(lat, lon, scale)

	screenX = targetX - centerX + float64(c.ViewportWidth)/2
	screenY = targetY - centerY + float64(c.ViewportHeight)/2

	return screenX, screenY
}

// StartDrag begins a drag operation
func (c *Camera) StartDrag(x, y float64) {
	c.isDragging = true
	c.lastDragX = x
	c.lastDragY = y
}

// Drag continues a drag operation
func (c *Camera) Drag(x, y float64) {
	if !c.isDragging {
		return
	}

	c.Pan(x-c.lastDragX, y-c.lastDragY)

	c.lastDragX = x
	c.lastDragY = y
}

// EndDrag ends a drag operation
func (c *Camera) EndDrag() {
	c.isDragging = false
}

// IsDragging returns whether a drag is in progress
func (c *Camera) IsDragging() bool {
	return c.isDragging
}

func clampZoom(z int) int {
	return min(max(z, tiles.MinZoom), tiles.MaxZoom)
}

// clampPosition ensures the camera stays within valid bounds
func (c *Camera) clampPosition() {
	for c.Lon > 180 {
		c.Lon -= 360
	}
	for c.Lon < -180 {
		c.Lon += 360
	}

	// Valid Mercator range
	c.Lat = min(max(c.Lat, -85.0511), 85.0511)
}

// GetTileBounds returns the tile coordinates for the current viewport
func (c *Camera) GetTileBounds() (minX, minY, maxX, maxY int) {
	scale := math.Pow(2, float64(c.Zoom))
	maxTile := int(scale) - 1

	centerX, centerY := worldPixel(c.Lat, c.Lon, scale)
	centerTileX, centerTileY := centerX/tileSize, centerY/tileSize

	// How many tiles fit in viewport
	tilesX := float64(c.ViewportWidth) / tileSize / 2
	tilesY := float64(c.ViewportHeight) / tileSize / 2

	minX = max(int(math.Floor(centerTileX-tilesX-1)), 0)
	maxX = min(int(math.Ceil(centerTileX+tilesX+1)), maxTile)
	minY = max(int(math.Floor(centerTileY-tilesY-1)), 0)
	maxY = min(int(math.Ceil(centerTileY+tilesY+1)), maxTile)

	return minX, minY, maxX, maxY
}

// GetTileScreenPosition returns the screen position for a tile's top-left corner
func (c *Camera) GetTileScreenPosition(tileX, tileY int) (screenX, screenY float64) {
	scale := math.Pow(2, float64(c.Zoom))
	centerX, centerY := worldPixel(c.Lat, c.Lon, scale)

	screenX = float64(c.ViewportWidth)/2 + float64(tileX)*tileSize - centerX
	screenY = float64(c.ViewportHeight)/2 + float64(tileY)*tileSize - centerY

	return screenX, screenY
}
