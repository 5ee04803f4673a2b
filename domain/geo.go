package domain

import "math"

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// Coordinates is a WGS84 latitude/longitude pair in degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate rejects out-of-range or non-finite coordinates.
func (c Coordinates) Validate() error {
	if math.IsNaN(c.Latitude) || c.Latitude < -90 || c.Latitude > 90 {
		return Invalidf("latitude must be between -90 and 90")
	}
	if math.IsNaN(c.Longitude) || c.Longitude < -180 || c.Longitude > 180 {
		return Invalidf("longitude must be between -180 and 180")
	}
	return nil
}

// DistanceKm returns the haversine distance between two points in kilometers.
func DistanceKm(from, to Coordinates) float64 {
	lat1 := toRadians(from.Latitude)
	lat2 := toRadians(to.Latitude)
	dLat := lat2 - lat1
	dLon := toRadians(to.Longitude - from.Longitude)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// BoundingBox returns the min/max latitude and longitude enclosing a circle of radiusKm around c.
// Used as a cheap index-friendly prefilter before the exact distance predicate.
func (c Coordinates) BoundingBox(radiusKm float64) (minLat, maxLat, minLon, maxLon float64) {
	angular := radiusKm / EarthRadiusKm
	latDelta := angular * 180 / math.Pi
	minLat = math.Max(c.Latitude-latDelta, -90)
	maxLat = math.Min(c.Latitude+latDelta, 90)

	cosLat := math.Cos(toRadians(c.Latitude))
	if cosLat < 1e-9 || maxLat >= 90 || minLat <= -90 {
		return minLat, maxLat, -180, 180
	}
	// widest longitude of the spherical cap, reached off the center's parallel
	ratio := math.Sin(angular) / cosLat
	if ratio >= 1 {
		return minLat, maxLat, -180, 180
	}
	lonDelta := math.Asin(ratio) * 180 / math.Pi
	minLon = c.Longitude - lonDelta
	maxLon = c.Longitude + lonDelta
	if minLon < -180 || maxLon > 180 {
		// wraps the antimeridian
		return minLat, maxLat, -180, 180
	}
	return minLat, maxLat, minLon, maxLon
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
