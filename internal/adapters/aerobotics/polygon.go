package aerobotics

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samirrijal/orchardgap/internal/core/domain"
)

// ParsePolygon decodes a survey polygon: whitespace separated "lon,lat"
// pairs.
func ParsePolygon(s string) (domain.OrchardPolygon, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return domain.OrchardPolygon{}, fmt.Errorf("%w: empty polygon", domain.ErrMalformedSurvey)
	}

	vertices := make([]domain.GeoPoint, 0, len(fields))
	for i, pair := range fields {
		lonStr, latStr, ok := strings.Cut(pair, ",")
		if !ok || strings.Contains(latStr, ",") {
			return domain.OrchardPolygon{}, fmt.Errorf("%w: vertex %d %q is not a lon,lat pair", domain.ErrMalformedSurvey, i, pair)
		}
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			return domain.OrchardPolygon{}, fmt.Errorf("%w: vertex %d longitude: %v", domain.ErrMalformedSurvey, i, err)
		}
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return domain.OrchardPolygon{}, fmt.Errorf("%w: vertex %d latitude: %v", domain.ErrMalformedSurvey, i, err)
		}
		vertices = append(vertices, domain.GeoPoint{Lat: lat, Lon: lon})
	}
	return domain.OrchardPolygon{Vertices: vertices}, nil
}
