// Package geo computes great-circle distances and ranks pharmacies by
// proximity under open-hours, on-duty and radius filters.
package geo

import "math"

// earthRadiusKm is the sphere radius used for haversine distances.
const earthRadiusKm = 6371.0

// Distance returns the great-circle distance in kilometers between two
// WGS84 coordinate pairs.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)

	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
