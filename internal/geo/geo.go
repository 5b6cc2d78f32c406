// Package geo provides great-circle distance and circular containment helpers.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for Haversine distances.
const EarthRadiusMeters = 6371000.0

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// DistanceMeters returns the Haversine distance between two points given in degrees.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lng2 - lng1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// Rounding can push a slightly above 1 for antipodal points.
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// IsInside reports whether the point lies within radiusMeters of the center.
// A point exactly on the boundary is inside.
func IsInside(pointLat, pointLng, centerLat, centerLng, radiusMeters float64) bool {
	return DistanceMeters(pointLat, pointLng, centerLat, centerLng) <= radiusMeters
}

// ValidLatitude reports whether lat is a finite value in [-90, 90].
func ValidLatitude(lat float64) bool {
	return !math.IsNaN(lat) && lat >= -90 && lat <= 90
}

// ValidLongitude reports whether lng is a finite value in [-180, 180].
func ValidLongitude(lng float64) bool {
	return !math.IsNaN(lng) && lng >= -180 && lng <= 180
}

// ValidRadius reports whether r is a finite positive radius.
func ValidRadius(r float64) bool {
	return !math.IsNaN(r) && !math.IsInf(r, 0) && r > 0
}
