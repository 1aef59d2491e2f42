package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/rotisserie/eris"
)

// ErrInvalidCoordinate is returned for a latitude outside [-90,90] or a
// longitude outside [-180,180].
var ErrInvalidCoordinate = eris.New("geo: invalid coordinate")

// Point is a geographic position in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewPoint returns a validated point.
func NewPoint(lat, lon float64) (Point, error) {
	p := Point{Lat: lat, Lon: lon}
	if err := p.Validate(); err != nil {
		return Point{}, err
	}
	return p, nil
}

// Validate reports whether the point lies within the valid coordinate ranges.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return eris.Wrapf(ErrInvalidCoordinate, "latitude %v", p.Lat)
	}
	if math.IsNaN(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		return eris.Wrapf(ErrInvalidCoordinate, "longitude %v", p.Lon)
	}
	return nil
}

// Equal compares coordinates exactly.
func (p Point) Equal(o Point) bool {
	return p.Lat == o.Lat && p.Lon == o.Lon
}

// Orb converts to an orb point (lon, lat order).
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// FromOrb converts an orb point back.
func FromOrb(pt orb.Point) Point {
	return Point{Lat: pt.Lat(), Lon: pt.Lon()}
}

func (p Point) String() string {
	return fmt.Sprintf("%.4f, %.4f", p.Lat, p.Lon)
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	return orbgeo.DistanceHaversine(a.Orb(), b.Orb())
}
