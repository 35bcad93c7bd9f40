package imputer

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/samirrijal/orchardgap/internal/core/domain"
)

// MaxLatitude is the latitude limit of the spherical (web) Mercator frame.
// Beyond it the projection clamps and the round trip no longer holds.
const MaxLatitude = 85.05112878

// maxMercator is the planar extent of the web Mercator frame in metres.
var maxMercator = orb.EarthRadius * math.Pi

// Projector converts between EPSG:4326 degrees and EPSG:3857 metres.
type Projector struct{}

// ToPlanar projects a geographic point into planar metres.
func (Projector) ToPlanar(p domain.GeoPoint) (orb.Point, error) {
	if !p.InRange() || math.Abs(p.Lat) > MaxLatitude {
		return orb.Point{}, fmt.Errorf("%w: lat=%v lon=%v", domain.ErrInvalidCoordinate, p.Lat, p.Lon)
	}
	return project.WGS84.ToMercator(orb.Point{p.Lon, p.Lat}), nil
}

// ToGeo projects a planar point back to geographic degrees.
func (Projector) ToGeo(p orb.Point) (domain.GeoPoint, error) {
	x, y := p.X(), p.Y()
	if math.IsNaN(x) || math.IsNaN(y) || math.Abs(x) > maxMercator || math.Abs(y) > maxMercator {
		return domain.GeoPoint{}, fmt.Errorf("%w: x=%v y=%v", domain.ErrInvalidCoordinate, x, y)
	}
	g := project.Mercator.ToWGS84(p)
	return domain.GeoPoint{Lat: g.Lat(), Lon: g.Lon()}, nil
}

// ToPlanarAll projects every point, failing on the first invalid one.
func (pr Projector) ToPlanarAll(points []domain.GeoPoint) ([]orb.Point, error) {
	out := make([]orb.Point, len(points))
	for i, p := range points {
		q, err := pr.ToPlanar(p)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		out[i] = q
	}
	return out, nil
}

// ToGeoAll projects planar points back to geographic degrees.
func (pr Projector) ToGeoAll(points []orb.Point) ([]domain.GeoPoint, error) {
	out := make([]domain.GeoPoint, len(points))
	for i, p := range points {
		g, err := pr.ToGeo(p)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		out[i] = g
	}
	return out, nil
}
