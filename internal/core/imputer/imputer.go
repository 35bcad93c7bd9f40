package imputer

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/samirrijal/orchardgap/internal/core/domain"
)

// Result is the outcome of one imputation, with the intermediate planar
// geometry kept for diagnostics and rendering.
type Result struct {
	// Candidates are the missing tree positions in acceptance order.
	Candidates []domain.GeoPoint
	// PlanarCandidates are Candidates in planar metres.
	PlanarCandidates []orb.Point

	Boundary orb.Polygon
	Zone     SafeZone
	Trees    []orb.Point
	Radii    []float64

	TreeRadius    float64
	MinTreeRadius float64
	MeanRadius    float64

	Stats Stats
}

// SafeZoneEmpty reports whether erosion left no room at all. A result
// without trees has no safe zone and is not considered empty.
func (r *Result) SafeZoneEmpty() bool {
	return len(r.Trees) > 0 && r.Zone.Empty()
}

// Imputer runs the missing tree pipeline. It holds no state between calls
// and is safe for concurrent use.
type Imputer struct {
	params    Params
	projector Projector
}

// New returns an Imputer using params.
func New(params Params) (*Imputer, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("imputer params: %w", err)
	}
	return &Imputer{params: params}, nil
}

// Params returns the multipliers in use.
func (imp *Imputer) Params() Params { return imp.params }

// Impute infers missing tree positions inside boundary.
//
// Invalid input fails before any geometry is built: a boundary with fewer
// than 3 distinct vertices yields ErrInsufficientData, bad coordinates
// ErrInvalidCoordinate and non-positive canopy areas ErrInvalidCanopyArea.
// A boundary too small for the inset is not an error; the result is empty.
func (imp *Imputer) Impute(boundary domain.OrchardPolygon, trees []domain.TreeObservation) (*Result, error) {
	if n := boundary.DistinctVertices(); n < 3 {
		return nil, fmt.Errorf("%w: boundary has %d distinct vertices", domain.ErrInsufficientData, n)
	}
	ring, err := imp.projector.ToPlanarAll(boundary.Vertices)
	if err != nil {
		return nil, fmt.Errorf("boundary: %w", err)
	}

	planar := make([]orb.Point, len(trees))
	radii := make([]float64, len(trees))
	for i, t := range trees {
		if math.IsNaN(t.CanopyArea) || math.IsInf(t.CanopyArea, 0) || t.CanopyArea <= 0 {
			return nil, fmt.Errorf("tree %d: %w: %v", i, domain.ErrInvalidCanopyArea, t.CanopyArea)
		}
		p, err := imp.projector.ToPlanar(t.Location)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		planar[i] = p
		radii[i] = t.Radius()
	}

	res := &Result{
		Boundary: orb.Polygon{closeRing(orb.Ring(ring))},
		Trees:    planar,
		Radii:    radii,
	}
	if len(trees) == 0 {
		return res, nil
	}

	res.TreeRadius = floats.Max(radii)
	res.MinTreeRadius = floats.Min(radii)
	res.MeanRadius = stat.Mean(radii, nil)
	res.Zone = BuildSafeZone(res.Boundary, imp.params.InsetFactor*res.MinTreeRadius)

	res.PlanarCandidates, res.Stats = GenerateCandidates(GenerationInput{
		Trees:      planar,
		Existing:   NewKDTree(planar),
		Zone:       res.Zone,
		TreeRadius: res.TreeRadius,
		Params:     imp.params,
	})

	res.Candidates, err = imp.projector.ToGeoAll(res.PlanarCandidates)
	if err != nil {
		return nil, fmt.Errorf("candidates: %w", err)
	}
	return res, nil
}
