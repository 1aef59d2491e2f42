package explore

import "mapviewer/internal/geo"

// Home is where the map opens and where Home returns to.
var Home = geo.Point{Lat: -23.5505, Lon: -46.6333}

// POI is a labelled point shown on the map and in the sidebar.
type POI struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Position    geo.Point `json:"position"`
}

// PointsOfInterest are the built-in markers around São Paulo.
var PointsOfInterest = []POI{
	{ID: 1, Name: "São Paulo", Description: "Capital of the state of São Paulo", Position: geo.Point{Lat: -23.5505, Lon: -46.6333}},
	{ID: 2, Name: "Parque Ibirapuera", Description: "One of the largest urban parks in the city", Position: geo.Point{Lat: -23.5950, Lon: -46.6400}},
	{ID: 3, Name: "Avenida Paulista", Description: "Financial and cultural center of the city", Position: geo.Point{Lat: -23.5613, Lon: -46.6562}},
	{ID: 4, Name: "Praça da Sé", Description: "Ground zero of the city of São Paulo", Position: geo.Point{Lat: -23.5448, Lon: -46.6425}},
}
