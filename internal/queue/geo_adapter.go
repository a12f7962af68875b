package queue

import "github.com/waitline/queuecoord/internal/geo"

// geoPoint mirrors Location with the conversions needed to call into the
// geo and verification packages without making Location itself depend on
// geo.Point.
type geoPoint struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
}

func (p *geoPoint) toGeo() *geo.Point {
	if p == nil {
		return nil
	}
	return &geo.Point{Latitude: p.Latitude, Longitude: p.Longitude, Accuracy: p.Accuracy}
}

func (p geoPoint) toGeoValue() geo.Point {
	return geo.Point{Latitude: p.Latitude, Longitude: p.Longitude, Accuracy: p.Accuracy}
}
