// Package geo holds the great-circle math used to decide whether two pending
// events are close enough to be grouped.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusMiles is the mean Earth radius used by Distance.
const EarthRadiusMiles = 3959.0

// Distance returns the Haversine distance in miles between two coordinates
// given in degrees. Inputs are not validated; callers check that both
// coordinates are present first.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMiles * c
}

// CityLabel is a stand-in for reverse geocoding: it labels an area by its
// coordinates rounded to one decimal.
func CityLabel(lat, lng float64) string {
	return fmt.Sprintf("Area %.1f, %.1f", lat, lng)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
