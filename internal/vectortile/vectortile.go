package vectortile

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"mapviewer/pkg/tiles"
)

// LookupZoom is the zoom at which place names are looked up. The place layer
// at this level carries cities, towns and villages.
const LookupZoom = 10

// Options configures a VectorTileCache.
type Options struct {
	// URLTemplate uses {z}/{x}/{y} placeholders.
	URLTemplate string
	UserAgent   string
	Client      *http.Client
}

// Place represents a city/town/village from the place layer
type Place struct {
	Name     string
	Class    string // city, town, village, hamlet, etc.
	Rank     int
	Location orb.Point
}

// TransportLine represents a road/rail from the transportation layer
type TransportLine struct {
	Class    string // motorway, rail, primary, secondary, etc.
	Geometry orb.Geometry
}

// WaterFeature represents water from the water layer
type WaterFeature struct {
	Class    string
	Geometry orb.Geometry
}

// TileData holds extracted features from a vector tile
type TileData struct {
	Places     []Place
	Transport  []TransportLine
	Water      []WaterFeature
	Boundaries []orb.Geometry
}

// Layer names as they appear in OpenMapTiles tiles.
const (
	LayerPlace     = "place"
	LayerTransport = "transportation"
	LayerWater     = "water"
	LayerBoundary  = "boundary"
)

// FeatureCollection renders the named layers as GeoJSON, tagging each feature
// with its layer. With no layers named it renders the places.
func (d *TileData) FeatureCollection(layers ...string) *geojson.FeatureCollection {
	if len(layers) == 0 {
		layers = []string{LayerPlace}
	}
	fc := geojson.NewFeatureCollection()
	for _, layer := range layers {
		switch layer {
		case LayerPlace:
			for _, p := range d.Places {
				f := newFeature(p.Location, layer, p.Class)
				f.Properties["name"] = p.Name
				f.Properties["rank"] = p.Rank
				fc.Append(f)
			}
		case LayerTransport:
			for _, t := range d.Transport {
				fc.Append(newFeature(t.Geometry, layer, t.Class))
			}
		case LayerWater:
			for _, w := range d.Water {
				fc.Append(newFeature(w.Geometry, layer, w.Class))
			}
		case LayerBoundary:
			for _, g := range d.Boundaries {
				fc.Append(newFeature(g, layer, ""))
			}
		}
	}
	return fc
}

func newFeature(g orb.Geometry, layer, class string) *geojson.Feature {
	f := geojson.NewFeature(g)
	f.Properties["layer"] = layer
	if class != "" {
		f.Properties["class"] = class
	}
	return f
}

// ClassCounts tallies one layer's features by class.
func (d *TileData) ClassCounts(layer string) map[string]int {
	counts := make(map[string]int)
	switch layer {
	case LayerPlace:
		for _, p := range d.Places {
			counts[p.Class]++
		}
	case LayerTransport:
		for _, t := range d.Transport {
			counts[t.Class]++
		}
	case LayerWater:
		for _, w := range d.Water {
			counts[w.Class]++
		}
	case LayerBoundary:
		counts[""] = len(d.Boundaries)
	}
	return counts
}

// VectorTileCache manages fetching and caching vector tiles
type VectorTileCache struct {
	opts       Options
	client     *http.Client
	log        *zap.Logger
	tiles      map[string]*TileData
	tilesMu    sync.RWMutex
	inFlight   map[string]chan struct{}
	inFlightMu sync.Mutex
}

// NewVectorTileCache creates a new vector tile cache
func NewVectorTileCache(opts Options) *VectorTileCache {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &VectorTileCache{
		opts:     opts,
		client:   client,
		log:      zap.L().With(zap.String("component", "vectortile")),
		tiles:    make(map[string]*TileData),
		inFlight: make(map[string]chan struct{}),
	}
}

// GetTile returns tile data, fetching if necessary
func (vtc *VectorTileCache) GetTile(ctx context.Context, coord tiles.TileCoord) (*TileData, error) {
	if !coord.Valid() {
		return nil, eris.Errorf("vectortile: invalid tile %s", coord)
	}
	key := coord.String()

	// Check cache
	vtc.tilesMu.RLock()
	if data, ok := vtc.tiles[key]; ok {
		vtc.tilesMu.RUnlock()
		return data, nil
	}
	vtc.tilesMu.RUnlock()

	// Check if fetch is in progress
	vtc.inFlightMu.Lock()
	if ch, exists := vtc.inFlight[key]; exists {
		vtc.inFlightMu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		vtc.tilesMu.RLock()
		data, ok := vtc.tiles[key]
		vtc.tilesMu.RUnlock()
		if !ok {
			return nil, eris.Errorf("vectortile: shared fetch of %s failed", key)
		}
		return data, nil
	}

	// Mark as in-flight
	ch := make(chan struct{})
	vtc.inFlight[key] = ch
	vtc.inFlightMu.Unlock()

	// Fetch and parse
	data, err := vtc.fetchAndParse(ctx, coord)
	if err == nil {
		vtc.tilesMu.Lock()
		vtc.tiles[key] = data
		vtc.tilesMu.Unlock()
	}

	vtc.inFlightMu.Lock()
	delete(vtc.inFlight, key)
	close(ch)
	vtc.inFlightMu.Unlock()

	if err != nil {
		return nil, err
	}
	return data, nil
}

// HasTile checks if a tile is cached
func (vtc *VectorTileCache) HasTile(coord tiles.TileCoord) bool {
	vtc.tilesMu.RLock()
	defer vtc.tilesMu.RUnlock()
	_, ok := vtc.tiles[coord.String()]
	return ok
}

// Clear drops every parsed tile.
func (vtc *VectorTileCache) Clear() {
	vtc.tilesMu.Lock()
	n := len(vtc.tiles)
	vtc.tiles = make(map[string]*TileData)
	vtc.tilesMu.Unlock()
	vtc.log.Debug("vector tiles cleared", zap.Int("count", n))
}

// NearestPlace fetches the lookup tile under pt and returns the closest
// settlement in it.
func (vtc *VectorTileCache) NearestPlace(ctx context.Context, pt orb.Point) (Place, bool, error) {
	coord := tiles.LatLonToTile(pt.Lat(), pt.Lon(), LookupZoom)
	data, err := vtc.GetTile(ctx, coord)
	if err != nil {
		return Place{}, false, err
	}
	place, ok := NearestPlace(FilterPlacesByClass(data.Places, "city", "town", "village"), pt)
	return place, ok, nil
}

// fetchAndParse downloads and parses a vector tile
func (vtc *VectorTileCache) fetchAndParse(ctx context.Context, coord tiles.TileCoord) (*TileData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coord.URL(vtc.opts.URLTemplate), nil)
	if err != nil {
		return nil, eris.Wrap(err, "vectortile: create request")
	}
	req.Header.Set("User-Agent", vtc.opts.UserAgent)
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := vtc.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "vectortile: fetch %s", coord)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("vectortile: fetch %s: status %d", coord, resp.StatusCode)
	}

	rawData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "vectortile: read %s", coord)
	}

	// Some servers gzip without saying so.
	if resp.Header.Get("Content-Encoding") == "gzip" || isGzip(rawData) {
		gzReader, err := gzip.NewReader(bytes.NewReader(rawData))
		if err != nil {
			return nil, eris.Wrapf(err, "vectortile: gunzip %s", coord)
		}
		defer gzReader.Close()
		if rawData, err = io.ReadAll(gzReader); err != nil {
			return nil, eris.Wrapf(err, "vectortile: gunzip %s", coord)
		}
	}

	// Parse MVT
	layers, err := mvt.Unmarshal(rawData)
	if err != nil {
		return nil, eris.Wrapf(err, "vectortile: parse %s", coord)
	}

	// Project to WGS84 coordinates
	layers.ProjectToWGS84(maptile.New(uint32(coord.X), uint32(coord.Y), maptile.Zoom(coord.Zoom)))

	data := extractFeatures(layers)
	vtc.log.Debug("vector tile parsed",
		zap.Stringer("tile", coord),
		zap.Int("places", len(data.Places)),
		zap.Int("transport", len(data.Transport)),
		zap.Int("water", len(data.Water)),
		zap.Int("boundaries", len(data.Boundaries)),
	)
	return data, nil
}

func isGzip(b []byte) bool {
	return len(b) > 2 && b[0] == 0x1f && b[1] == 0x8b
}

// extractFeatures extracts typed features from MVT layers
func extractFeatures(layers mvt.Layers) *TileData {
	data := &TileData{}

	for _, layer := range layers {
		switch layer.Name {
		case LayerPlace:
			data.Places = extractPlaces(layer)
		case LayerTransport:
			data.Transport = extractTransport(layer)
		case LayerWater:
			data.Water = extractWater(layer)
		case LayerBoundary:
			data.Boundaries = extractBoundaries(layer)
		}
	}

	return data
}

func extractPlaces(layer *mvt.Layer) []Place {
	places := make([]Place, 0, len(layer.Features))

	for _, f := range layer.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		places = append(places, Place{
			Name:     propString(f.Properties, "name"),
			Class:    propString(f.Properties, "class"),
			Rank:     propInt(f.Properties, "rank"),
			Location: pt,
		})
	}

	return places
}

func propString(props geojson.Properties, key string) string {
	s, _ := props[key].(string)
	return s
}

// propInt accepts any numeric encoding the tile used.
func propInt(props geojson.Properties, key string) int {
	switch v := props[key].(type) {
	case float64:
		return int(v)
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func extractTransport(layer *mvt.Layer) []TransportLine {
	lines := make([]TransportLine, 0, len(layer.Features))
	for _, f := range layer.Features {
		lines = append(lines, TransportLine{
			Class:    propString(f.Properties, "class"),
			Geometry: f.Geometry,
		})
	}
	return lines
}

func extractWater(layer *mvt.Layer) []WaterFeature {
	features := make([]WaterFeature, 0, len(layer.Features))
	for _, f := range layer.Features {
		features = append(features, WaterFeature{
			Class:    propString(f.Properties, "class"),
			Geometry: f.Geometry,
		})
	}
	return features
}

func extractBoundaries(layer *mvt.Layer) []orb.Geometry {
	boundaries := make([]orb.Geometry, 0, len(layer.Features))
	for _, f := range layer.Features {
		boundaries = append(boundaries, f.Geometry)
	}
	return boundaries
}

// NearestPlace returns the place closest to pt by great-circle distance.
func NearestPlace(places []Place, pt orb.Point) (Place, bool) {
	best, bestDist := -1, math.Inf(1)
	for i, p := range places {
		if d := orbgeo.DistanceHaversine(p.Location, pt); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Place{}, false
	}
	return places[best], true
}

// FilterPlacesByClass returns places matching the given classes
func FilterPlacesByClass(places []Place, classes ...string) []Place {
	return filterByClass(places, func(p Place) string { return p.Class }, classes)
}

// FilterTransportByClass returns transport lines matching the given classes
func FilterTransportByClass(transport []TransportLine, classes ...string) []TransportLine {
	return filterByClass(transport, func(t TransportLine) string { return t.Class }, classes)
}

// FilterWaterByClass returns water features matching the given classes
func FilterWaterByClass(water []WaterFeature, classes ...string) []WaterFeature {
	return filterByClass(water, func(w WaterFeature) string { return w.Class }, classes)
}

func filterByClass[T any](items []T, class func(T) string, classes []string) []T {
	classSet := make(map[string]bool, len(classes))
	for _, c := range classes {
		classSet[c] = true
	}

	filtered := make([]T, 0)
	for _, it := range items {
		if classSet[class(it)] {
			filtered = append(filtered, it)
		}
	}
	return filtered
}
