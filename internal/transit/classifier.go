package transit

// Bracket maps every distance strictly above Above (meters) to Zoom.
type Bracket struct {
	Above float64
	Zoom  int
}

// TransitBudget is ordered by descending threshold; first match wins.
// Distances at or below the last threshold fall through to the nearby rule.
var TransitBudget = []Bracket{
	{Above: 10_000_000, Zoom: 2},
	{Above: 5_000_000, Zoom: 3},
	{Above: 1_000_000, Zoom: 4},
	{Above: 500_000, Zoom: 5},
	{Above: 100_000, Zoom: 6},
}

const (
	nearbyZoomOut = 3
	// nearbyFloor keeps short hops from zooming out past this level.
	// max() makes it a floor, not a cap; see DESIGN.md.
	nearbyFloor = 7
)

// Classify picks the transit zoom for a flight of distance meters starting
// from currentZoom.
func Classify(distance float64, currentZoom int) int {
	for _, b := range TransitBudget {
		if distance > b.Above {
			return b.Zoom
		}
	}
	return max(currentZoom-nearbyZoomOut, nearbyFloor)
}
