package imputer_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/orchardgap/internal/core/domain"
	"github.com/samirrijal/orchardgap/internal/core/imputer"
)

// origin is a point in the Western Cape, where the surveyed orchards are.
var origin = domain.GeoPoint{Lat: -33.9249, Lon: 18.8602}

// offsetFrame places planar offsets (metres) around origin and converts
// them to geographic points, so fixtures can be laid out in metres.
type offsetFrame struct {
	t      *testing.T
	proj   imputer.Projector
	anchor orb.Point
}

func newFrame(t *testing.T) offsetFrame {
	t.Helper()
	var pr imputer.Projector
	a, err := pr.ToPlanar(origin)
	require.NoError(t, err)
	return offsetFrame{t: t, proj: pr, anchor: a}
}

func (f offsetFrame) geo(x, y float64) domain.GeoPoint {
	f.t.Helper()
	g, err := f.proj.ToGeo(orb.Point{f.anchor[0] + x, f.anchor[1] + y})
	require.NoError(f.t, err)
	return g
}

// local converts a planar result point back to offsets.
func (f offsetFrame) local(p orb.Point) orb.Point {
	return orb.Point{p[0] - f.anchor[0], p[1] - f.anchor[1]}
}

func (f offsetFrame) square(min, max float64) domain.OrchardPolygon {
	return domain.OrchardPolygon{Vertices: []domain.GeoPoint{
		f.geo(min, min), f.geo(max, min), f.geo(max, max), f.geo(min, max),
	}}
}

func (f offsetFrame) tree(x, y, area float64) domain.TreeObservation {
	return domain.TreeObservation{Location: f.geo(x, y), CanopyArea: area}
}

func newImputer(t *testing.T) *imputer.Imputer {
	t.Helper()
	imp, err := imputer.New(imputer.DefaultParams())
	require.NoError(t, err)
	return imp
}
