package geo

import "math"

// EarthRadiusM is the mean Earth radius used by every distance in the app.
const EarthRadiusM = 6371000.0

type Coordinate struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}

// Valid reports whether c lies inside WGS84 ranges.
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// DistanceM returns the great-circle distance between a and b in meters.
func DistanceM(a, b Coordinate) float64 {
	return haversine(a.Latitude, a.Longitude, b.Latitude, b.Longitude) * EarthRadiusM
}

func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	return haversine(lat1, lng1, lat2, lng2) * EarthRadiusM / 1000
}

// Destination returns the point reached from c after distanceM along bearingDeg.
func Destination(c Coordinate, bearingDeg, distanceM float64) Coordinate {
	delta := distanceM / EarthRadiusM
	theta := toRad(bearingDeg)
	phi1 := toRad(c.Latitude)
	lambda1 := toRad(c.Longitude)

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)
	return Coordinate{Latitude: toDeg(phi2), Longitude: toDeg(lambda2)}
}

// haversine returns the central angle in radians.
func haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }
