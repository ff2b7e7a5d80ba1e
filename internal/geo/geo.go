// Package geo holds the geofencing primitives: points, great-circle distance,
// location providers and reverse geocoders.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Distance returns the haversine great-circle distance between a and b in kilometres.
func Distance(a, b Point) float64 {
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Latitude*math.Pi/180)*math.Cos(b.Latitude*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// Fence is a circular region around Center.
type Fence struct {
	Center   Point
	RadiusKm float64
}

// Contains reports whether p lies within the fence, along with its distance from the centre.
// A point exactly on the boundary is inside.
func (f Fence) Contains(p Point) (bool, float64) {
	d := Distance(p, f.Center)
	return d <= f.RadiusKm, d
}

// FormatCoords renders p as "lat, lon" with four decimals.
func FormatCoords(p Point) string {
	return fmt.Sprintf("%.4f, %.4f", p.Latitude, p.Longitude)
}

// Valid reports whether p is a plausible coordinate.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Latitude) && !math.IsNaN(p.Longitude) &&
		p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}
