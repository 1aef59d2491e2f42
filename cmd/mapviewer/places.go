package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"mapviewer/internal/geo"
	"mapviewer/internal/vectortile"
	"mapviewer/pkg/tiles"
)

var placesFlags struct {
	lat, lon float64
	zoom     int
	class    []string
	layers   []string
	geojson  bool
}

var placesCmd = &cobra.Command{
	Use:   "places",
	Short: "List named places near a coordinate",
	Long: `Fetches the vector tile under a coordinate and prints its places, nearest first.
--layer adds road, water or boundary features from the same tile.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		at, err := geo.NewPoint(placesFlags.lat, placesFlags.lon)
		if err != nil {
			return err
		}
		for _, l := range placesFlags.layers {
			if !slices.Contains(knownLayers, l) {
				return eris.Errorf("places: unknown layer %q (want one of %v)", l, knownLayers)
			}
		}

		vtc := vectortile.NewVectorTileCache(vectortile.Options{
			URLTemplate: cfg.Map.VectorTileURL,
			UserAgent:   cfg.Map.UserAgent,
		})
		coord := tiles.LatLonToTile(at.Lat, at.Lon, placesFlags.zoom)
		data, err := vtc.GetTile(cmd.Context(), coord)
		if err != nil {
			return err
		}

		view := filterTile(data, placesFlags.class)
		sortByDistance(view.Places, at.Orb())

		out := cmd.OutOrStdout()
		if placesFlags.geojson {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			layers := append([]string{vectortile.LayerPlace}, placesFlags.layers...)
			return enc.Encode(view.FeatureCollection(layers...))
		}
		places := view.Places

		fmt.Fprintf(out, "Tile %s: %d places\n", coord, len(places))
		for _, p := range places {
			fmt.Fprintf(out, "  %-30s %-8s rank=%-2d %8.1f km\n",
				p.Name, p.Class, p.Rank, orbgeo.DistanceHaversine(p.Location, at.Orb())/1000)
		}
		for _, l := range placesFlags.layers {
			fmt.Fprintf(out, "Layer %s:\n", l)
			counts := view.ClassCounts(l)
			for _, class := range slices.Sorted(maps.Keys(counts)) {
				name := class
				if name == "" {
					name = "(unclassified)"
				}
				fmt.Fprintf(out, "  %-30s %d\n", name, counts[class])
			}
		}
		return nil
	},
}

var knownLayers = []string{vectortile.LayerTransport, vectortile.LayerWater, vectortile.LayerBoundary}

// filterTile keeps the features whose class is listed. Boundaries carry no
// class and pass through.
func filterTile(data *vectortile.TileData, classes []string) *vectortile.TileData {
	view := *data
	view.Places = slices.Clone(data.Places)
	if len(classes) == 0 {
		return &view
	}
	view.Places = vectortile.FilterPlacesByClass(view.Places, classes...)
	view.Transport = vectortile.FilterTransportByClass(data.Transport, classes...)
	view.Water = vectortile.FilterWaterByClass(data.Water, classes...)
	return &view
}

func sortByDistance(places []vectortile.Place, from orb.Point) {
	slices.SortStableFunc(places, func(a, b vectortile.Place) int {
		da := orbgeo.DistanceHaversine(a.Location, from)
		db := orbgeo.DistanceHaversine(b.Location, from)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return 0
	})
}

func init() {
	placesCmd.Flags().Float64Var(&placesFlags.lat, "lat", 0, "latitude")
	placesCmd.Flags().Float64Var(&placesFlags.lon, "lon", 0, "longitude")
	placesCmd.Flags().IntVar(&placesFlags.zoom, "zoom", vectortile.LookupZoom, "vector tile zoom level")
	placesCmd.Flags().StringSliceVar(&placesFlags.class, "class", nil, "only these classes (city, town, rail, motorway, lake, ...)")
	placesCmd.Flags().StringSliceVar(&placesFlags.layers, "layer", nil, "also show these layers (transportation, water, boundary)")
	placesCmd.Flags().BoolVar(&placesFlags.geojson, "geojson", false, "print a GeoJSON FeatureCollection")
	_ = placesCmd.MarkFlagRequired("lat")
	_ = placesCmd.MarkFlagRequired("lon")

	rootCmd.AddCommand(placesCmd)
}
