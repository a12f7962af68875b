// Package geo computes distance between coordinates using the Haversine
// formula, the sole geometry the coordinator needs.
package geo

import (
	"math"

	cerrors "github.com/waitline/queuecoord/internal/errors"
)

const earthRadiusMeters = 6371000.0

// Point is a location with an optional GPS accuracy radius in meters.
type Point struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
}

// Validate enforces the coordinate and accuracy bounds of §4.A.
func (p Point) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return cerrors.New(cerrors.KindInvalidCoordinates, "latitude must be between -90 and 90")
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return cerrors.New(cerrors.KindInvalidCoordinates, "longitude must be between -180 and 180")
	}
	if p.Accuracy != nil && (*p.Accuracy < 0 || *p.Accuracy > 1000) {
		return cerrors.New(cerrors.KindInvalidCoordinates, "accuracy must be between 0 and 1000 meters")
	}
	return nil
}

// DistanceMeters returns the great-circle distance between a and b rounded
// to the nearest meter.
func DistanceMeters(a, b Point) (int, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}

	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return int(math.Round(earthRadiusMeters * c)), nil
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
