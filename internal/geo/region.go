package geo

import "math/rand/v2"

// Region is a latitude/longitude box used to pick exploration targets.
type Region struct {
	Name   string
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// Contains reports whether p falls inside the box, edges included.
func (r Region) Contains(p Point) bool {
	return p.Lat >= r.MinLat && p.Lat <= r.MaxLat && p.Lon >= r.MinLon && p.Lon <= r.MaxLon
}

// Regions covers the land masses most likely to produce an interesting view.
var Regions = []Region{
	{Name: "South America", MinLat: -55, MaxLat: 15, MinLon: -80, MaxLon: -35},
	{Name: "North America", MinLat: 15, MaxLat: 70, MinLon: -170, MaxLon: -50},
	{Name: "Europe", MinLat: 35, MaxLat: 70, MinLon: -10, MaxLon: 40},
	{Name: "Asia", MinLat: 0, MaxLat: 70, MinLon: 40, MaxLon: 150},
	{Name: "Africa", MinLat: -35, MaxLat: 35, MinLon: -20, MaxLon: 50},
	{Name: "Oceania", MinLat: -50, MaxLat: 0, MinLon: 110, MaxLon: 180},
}

// RandomPoint picks a region uniformly, then a point uniformly inside it.
func RandomPoint(rng *rand.Rand, regions []Region) (Point, Region) {
	r := regions[rng.IntN(len(regions))]
	return Point{
		Lat: rng.Float64()*(r.MaxLat-r.MinLat) + r.MinLat,
		Lon: rng.Float64()*(r.MaxLon-r.MinLon) + r.MinLon,
	}, r
}
