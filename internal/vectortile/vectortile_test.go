package vectortile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapviewer/pkg/tiles"
)

// syntheticTile encodes place, transportation, water and boundary layers for
// coord.
func syntheticTile(t *testing.T, coord tiles.TileCoord, gzipped bool) ([]byte, orb.Point, orb.Point) {
	t.Helper()
	mt := maptile.New(uint32(coord.X), uint32(coord.Y), maptile.Zoom(coord.Zoom))
	b := mt.Bound()
	center := b.Center()
	east := orb.Point{center.Lon() + (b.Right()-b.Left())/4, center.Lat()}

	places := geojson.NewFeatureCollection()
	city := geojson.NewFeature(center)
	city.Properties["name"] = "Centerville"
	city.Properties["class"] = "city"
	city.Properties["rank"] = 3
	places.Append(city)
	hamlet := geojson.NewFeature(east)
	hamlet.Properties["name"] = "Eastham"
	hamlet.Properties["class"] = "hamlet"
	places.Append(hamlet)

	roads := geojson.NewFeatureCollection()
	rail := geojson.NewFeature(orb.LineString{center, east})
	rail.Properties["class"] = "rail"
	roads.Append(rail)

	water := geojson.NewFeatureCollection()
	lake := geojson.NewFeature(orb.Polygon{{
		center, east, {east.Lon(), center.Lat() + 0.01}, center,
	}})
	lake.Properties["class"] = "lake"
	water.Append(lake)

	borders := geojson.NewFeatureCollection()
	borders.Append(geojson.NewFeature(orb.LineString{{b.Left(), center.Lat()}, {b.Right(), center.Lat()}}))

	layers := mvt.NewLayers(map[string]*geojson.FeatureCollection{
		LayerPlace:     places,
		LayerTransport: roads,
		LayerWater:     water,
		LayerBoundary:  borders,
	})
	layers.ProjectToTile(mt)

	var (
		data []byte
		err  error
	)
	if gzipped {
		data, err = mvt.MarshalGzipped(layers)
	} else {
		data, err = mvt.Marshal(layers)
	}
	require.NoError(t, err)
	return data, center, east
}

func TestGetTileParsesLayers(t *testing.T) {
	for _, gzipped := range []bool{false, true} {
		coord := tiles.LatLonToTile(52.37, 4.90, LookupZoom)
		body, center, _ := syntheticTile(t, coord, gzipped)

		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			assert.Equal(t, "/"+coord.String()+".pbf", r.URL.Path)
			_, _ = w.Write(body)
		}))
		defer srv.Close()

		vtc := NewVectorTileCache(Options{URLTemplate: srv.URL + "/{z}/{x}/{y}.pbf", UserAgent: "test"})
		data, err := vtc.GetTile(context.Background(), coord)
		require.NoError(t, err)

		require.Len(t, data.Places, 2)
		cities := FilterPlacesByClass(data.Places, "city")
		require.Len(t, cities, 1)
		assert.Equal(t, "Centerville", cities[0].Name)
		assert.Equal(t, 3, cities[0].Rank)
		assert.InDelta(t, center.Lon(), cities[0].Location.Lon(), 0.01)
		assert.InDelta(t, center.Lat(), cities[0].Location.Lat(), 0.01)

		assert.Len(t, FilterTransportByClass(data.Transport, "rail"), 1)
		assert.Empty(t, FilterTransportByClass(data.Transport, "motorway"))
		assert.Len(t, FilterWaterByClass(data.Water, "lake"), 1)
		assert.Len(t, data.Boundaries, 1)

		_, err = vtc.GetTile(context.Background(), coord)
		require.NoError(t, err)
		assert.Equal(t, int32(1), hits.Load())
		assert.True(t, vtc.HasTile(coord))

		vtc.Clear()
		assert.False(t, vtc.HasTile(coord))
	}
}

func TestGetTileErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	vtc := NewVectorTileCache(Options{URLTemplate: srv.URL + "/{z}/{x}/{y}.pbf"})

	_, err := vtc.GetTile(context.Background(), tiles.TileCoord{Zoom: 3, X: 1, Y: 1})
	require.Error(t, err)
	assert.False(t, vtc.HasTile(tiles.TileCoord{Zoom: 3, X: 1, Y: 1}))

	_, err = vtc.GetTile(context.Background(), tiles.TileCoord{Zoom: 3, X: 8, Y: 1})
	require.Error(t, err)
}

func TestCacheNearestPlaceSkipsHamlets(t *testing.T) {
	coord := tiles.LatLonToTile(52.37, 4.90, LookupZoom)
	body, _, east := syntheticTile(t, coord, false)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	vtc := NewVectorTileCache(Options{URLTemplate: srv.URL + "/{z}/{x}/{y}.pbf"})

	// The hamlet sits exactly on the query point but only settlements count.
	place, ok, err := vtc.NearestPlace(context.Background(), east)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Centerville", place.Name)
}

func TestNearestPlace(t *testing.T) {
	places := []Place{
		{Name: "Lisbon", Location: orb.Point{-9.14, 38.72}},
		{Name: "Madrid", Location: orb.Point{-3.70, 40.42}},
		{Name: "Paris", Location: orb.Point{2.35, 48.86}},
	}

	p, ok := NearestPlace(places, orb.Point{-4.0, 40.0})
	require.True(t, ok)
	assert.Equal(t, "Madrid", p.Name)

	p, ok = NearestPlace(places, orb.Point{2.0, 49.0})
	require.True(t, ok)
	assert.Equal(t, "Paris", p.Name)

	_, ok = NearestPlace(nil, orb.Point{0, 0})
	assert.False(t, ok)
}

func TestFeatureCollection(t *testing.T) {
	d := &TileData{Places: []Place{{Name: "A", Class: "town", Rank: 2, Location: orb.Point{1, 2}}}}

	fc := d.FeatureCollection()
	require.Len(t, fc.Features, 1)
	assert.Equal(t, orb.Point{1, 2}, fc.Features[0].Geometry)
	assert.Equal(t, "A", fc.Features[0].Properties["name"])
	assert.Equal(t, "town", fc.Features[0].Properties["class"])
	assert.Equal(t, LayerPlace, fc.Features[0].Properties["layer"])
}

func TestFeatureCollectionLayers(t *testing.T) {
	d := &TileData{
		Places:     []Place{{Name: "A", Class: "town", Location: orb.Point{1, 2}}},
		Transport:  []TransportLine{{Class: "rail", Geometry: orb.LineString{{0, 0}, {1, 1}}}, {Class: "rail", Geometry: orb.LineString{{1, 1}, {2, 2}}}},
		Water:      []WaterFeature{{Class: "river", Geometry: orb.LineString{{0, 1}, {1, 0}}}},
		Boundaries: []orb.Geometry{orb.LineString{{0, 0}, {0, 1}}},
	}

	fc := d.FeatureCollection(LayerTransport, LayerWater, LayerBoundary)
	require.Len(t, fc.Features, 4)
	assert.Equal(t, LayerTransport, fc.Features[0].Properties["layer"])
	assert.Equal(t, "river", fc.Features[2].Properties["class"])
	assert.Equal(t, LayerBoundary, fc.Features[3].Properties["layer"])
	assert.NotContains(t, fc.Features[3].Properties, "class")

	assert.Empty(t, d.FeatureCollection("roads").Features)

	assert.Equal(t, map[string]int{"rail": 2}, d.ClassCounts(LayerTransport))
	assert.Equal(t, map[string]int{"river": 1}, d.ClassCounts(LayerWater))
	assert.Equal(t, map[string]int{"": 1}, d.ClassCounts(LayerBoundary))
}
