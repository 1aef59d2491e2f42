package geo

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	saoPaulo = Point{Lat: -23.5505, Lon: -46.6333}
	newYork  = Point{Lat: 40.7128, Lon: -74.0060}
)

func TestNewPointValidation(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lon     float64
		wantErr bool
	}{
		{"origin", 0, 0, false},
		{"corners", -90, 180, false},
		{"other corner", 90, -180, false},
		{"lat too high", 90.0001, 0, true},
		{"lat too low", -91, 0, true},
		{"lon too high", 0, 180.5, true},
		{"lon too low", 0, -181, true},
		{"nan lat", math.NaN(), 0, true},
		{"nan lon", 0, math.NaN(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPoint(tt.lat, tt.lon)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, eris.Is(err, ErrInvalidCoordinate))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.lat, p.Lat)
			assert.Equal(t, tt.lon, p.Lon)
		})
	}
}

func TestDistanceSaoPauloNewYork(t *testing.T) {
	d := Distance(saoPaulo, newYork)
	assert.InDelta(t, 7_690_000, d, 60_000)
	assert.InDelta(t, d, Distance(newYork, saoPaulo), 1e-6)
}

func TestDistanceSamePoint(t *testing.T) {
	assert.Zero(t, Distance(saoPaulo, saoPaulo))
}

func TestEqual(t *testing.T) {
	assert.True(t, saoPaulo.Equal(Point{Lat: -23.5505, Lon: -46.6333}))
	assert.False(t, saoPaulo.Equal(Point{Lat: -23.5505, Lon: -46.6334}))
}

func TestOrbRoundTrip(t *testing.T) {
	pt := newYork.Orb()
	assert.Equal(t, newYork.Lon, pt[0])
	assert.Equal(t, newYork.Lat, pt[1])
	assert.Equal(t, newYork, FromOrb(pt))
}

func TestString(t *testing.T) {
	assert.Equal(t, "-23.5505, -46.6333", saoPaulo.String())
}

func TestRandomPointStaysInRegion(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 500; i++ {
		p, r := RandomPoint(rng, Regions)
		require.True(t, r.Contains(p), "%s outside %s", p, r.Name)
		require.NoError(t, p.Validate())
	}
}

func TestRandomPointCoversEveryRegion(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		_, r := RandomPoint(rng, Regions)
		seen[r.Name] = true
	}
	assert.Len(t, seen, len(Regions))
}
