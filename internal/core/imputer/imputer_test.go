package imputer_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/orchardgap/internal/core/domain"
	"github.com/samirrijal/orchardgap/internal/core/imputer"
)

func TestImpute_ValidatesBoundary(t *testing.T) {
	f := newFrame(t)
	imp := newImputer(t)
	trees := []domain.TreeObservation{f.tree(1, 1, 1)}

	cases := map[string]domain.OrchardPolygon{
		"empty":      {},
		"two":        {Vertices: []domain.GeoPoint{f.geo(0, 0), f.geo(10, 0)}},
		"repeated":   {Vertices: []domain.GeoPoint{f.geo(0, 0), f.geo(10, 0), f.geo(0, 0), f.geo(10, 0)}},
		"closed two": {Vertices: []domain.GeoPoint{f.geo(0, 0), f.geo(10, 0), f.geo(0, 0)}},
	}
	for name, poly := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := imp.Impute(poly, trees)
			assert.ErrorIs(t, err, domain.ErrInsufficientData)
		})
	}
}

func TestImpute_InvalidInput(t *testing.T) {
	f := newFrame(t)
	imp := newImputer(t)
	boundary := f.square(0, 20)

	badBoundary := domain.OrchardPolygon{Vertices: append([]domain.GeoPoint{{Lat: 95, Lon: 0}}, boundary.Vertices...)}
	_, err := imp.Impute(badBoundary, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidCoordinate)

	_, err = imp.Impute(boundary, []domain.TreeObservation{
		f.tree(5, 5, 1),
		{Location: domain.GeoPoint{Lat: math.NaN(), Lon: 0}, CanopyArea: 1},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCoordinate)

	for _, area := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err = imp.Impute(boundary, []domain.TreeObservation{f.tree(5, 5, 1), f.tree(6, 6, area)})
		if !errors.Is(err, domain.ErrInvalidCanopyArea) {
			t.Errorf("area %v: expected ErrInvalidCanopyArea, got %v", area, err)
		}
	}
}

func TestImpute_TooFewTrees(t *testing.T) {
	f := newFrame(t)
	imp := newImputer(t)
	boundary := f.square(-50, 50)

	res, err := imp.Impute(boundary, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.False(t, res.SafeZoneEmpty())

	res, err = imp.Impute(boundary, []domain.TreeObservation{f.tree(0, 0, 1)})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.InDelta(t, math.Sqrt(1/math.Pi), res.TreeRadius, 1e-12)
}

// Corner trees 100m apart have no neighbour within 15 radii.
func TestImpute_FarApartCorners(t *testing.T) {
	f := newFrame(t)
	imp := newImputer(t)

	trees := []domain.TreeObservation{
		f.tree(0, 0, 1), f.tree(100, 0, 1), f.tree(100, 100, 1), f.tree(0, 100, 1),
	}
	res, err := imp.Impute(f.square(-10, 110), trees)
	require.NoError(t, err)

	assert.Empty(t, res.Candidates)
	assert.Zero(t, res.Stats.Pairs)
	assert.InDelta(t, 0.5642, res.TreeRadius, 1e-4)
}

// Corner trees 5m apart: every side and both diagonals are within the
// 8.46m neighbour radius. The four side midpoints are accepted, and so is
// the centre of the square, claimed by the first diagonal pair.
func TestImpute_CloseCorners(t *testing.T) {
	f := newFrame(t)
	imp := newImputer(t)

	trees := []domain.TreeObservation{
		f.tree(0, 0, 1), f.tree(5, 0, 1), f.tree(5, 5, 1), f.tree(0, 5, 1),
	}
	res, err := imp.Impute(f.square(-10, 15), trees)
	require.NoError(t, err)

	want := []orb.Point{{2.5, 0}, {2.5, 2.5}, {0, 2.5}, {5, 2.5}, {2.5, 5}}
	require.Len(t, res.PlanarCandidates, len(want))
	for i, w := range want {
		got := f.local(res.PlanarCandidates[i])
		assert.InDelta(t, w[0], got[0], 1e-6, "candidate %d x", i)
		assert.InDelta(t, w[1], got[1], 1e-6, "candidate %d y", i)
	}
	assert.Len(t, res.Candidates, len(want))
	assert.Equal(t, 6, res.Stats.Pairs)
	assert.Equal(t, 1, res.Stats.NearCandidate, "second diagonal hits the centre again")
}

func TestImpute_CloseCornersTightBoundary(t *testing.T) {
	f := newFrame(t)
	imp := newImputer(t)

	// The boundary runs through the trees, so side midpoints sit on the
	// edge and only the centre keeps 2.5m of clearance.
	trees := []domain.TreeObservation{
		f.tree(0, 0, 1), f.tree(5, 0, 1), f.tree(5, 5, 1), f.tree(0, 5, 1),
	}
	res, err := imp.Impute(f.square(0, 5), trees)
	require.NoError(t, err)

	require.Len(t, res.PlanarCandidates, 1)
	got := f.local(res.PlanarCandidates[0])
	assert.InDelta(t, 2.5, got[0], 1e-6)
	assert.InDelta(t, 2.5, got[1], 1e-6)
	assert.Equal(t, 4, res.Stats.OutsideZone)
}

func TestImpute_DegenerateSafeZone(t *testing.T) {
	f := newFrame(t)
	imp := newImputer(t)

	// Radius 3.09m, so the inset of 6.18m exceeds the 2.5m inradius.
	trees := []domain.TreeObservation{
		f.tree(1, 1, 30), f.tree(4, 1, 30), f.tree(4, 4, 30), f.tree(1, 4, 30),
	}
	res, err := imp.Impute(f.square(0, 5), trees)
	require.NoError(t, err)

	assert.True(t, res.SafeZoneEmpty())
	assert.Empty(t, res.Candidates)
	assert.True(t, res.Stats.SkippedNoRoom)
}

// plantedGrid lays out an n×n grid with the given spacing, skipping holes.
func plantedGrid(f offsetFrame, n int, spacing, area float64, holes map[[2]int]bool) []domain.TreeObservation {
	var trees []domain.TreeObservation
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			if holes[[2]int{row, col}] {
				continue
			}
			trees = append(trees, f.tree(float64(col)*spacing, float64(row)*spacing, area))
		}
	}
	return trees
}

func TestImpute_FindsGridGaps(t *testing.T) {
	f := newFrame(t)
	imp := newImputer(t)

	// Radius 1.49m: side midpoints (2m) and cell centres (2.83m) of a 4m
	// grid are too close to planted trees, only the holes are free.
	holes := map[[2]int]bool{{2, 2}: true, {4, 1}: true}
	trees := plantedGrid(f, 6, 4, 7, holes)

	res, err := imp.Impute(f.square(-4, 24), trees)
	require.NoError(t, err)

	require.Len(t, res.PlanarCandidates, 2)
	found := map[[2]int]bool{}
	for _, p := range res.PlanarCandidates {
		l := f.local(p)
		col, row := math.Round(l[0]/4), math.Round(l[1]/4)
		assert.InDelta(t, col*4, l[0], 1e-6)
		assert.InDelta(t, row*4, l[1], 1e-6)
		found[[2]int{int(row), int(col)}] = true
	}
	assert.Equal(t, holes, found)
}

func TestImpute_Idempotent(t *testing.T) {
	f := newFrame(t)
	imp := newImputer(t)
	trees := jitteredGrid(f, rand.New(rand.NewSource(42)))
	boundary := f.square(-5, 45)

	first, err := imp.Impute(boundary, trees)
	require.NoError(t, err)
	second, err := imp.Impute(boundary, trees)
	require.NoError(t, err)

	assert.NotEmpty(t, first.Candidates)
	assert.Equal(t, first.Candidates, second.Candidates)
	assert.Equal(t, first.Stats, second.Stats)
}

func jitteredGrid(f offsetFrame, rng *rand.Rand) []domain.TreeObservation {
	var trees []domain.TreeObservation
	for row := 0; row < 10; row++ {
		for col := 0; col < 10; col++ {
			if rng.Float64() < 0.15 {
				continue
			}
			x := float64(col)*4 + rng.Float64()*0.6 - 0.3
			y := float64(row)*4 + rng.Float64()*0.6 - 0.3
			trees = append(trees, f.tree(x, y, 4+rng.Float64()*4))
		}
	}
	return trees
}

func TestImpute_Invariants(t *testing.T) {
	f := newFrame(t)
	imp := newImputer(t)

	for seed := int64(1); seed <= 5; seed++ {
		trees := jitteredGrid(f, rand.New(rand.NewSource(seed)))
		res, err := imp.Impute(f.square(-3, 40), trees)
		require.NoError(t, err)

		sep := 2 * res.TreeRadius
		for i, c := range res.PlanarCandidates {
			assert.True(t, res.Zone.ContainsDisk(c, res.TreeRadius), "seed %d: candidate %d leaves the safe zone", seed, i)
			for j, p := range res.Trees {
				assert.Greater(t, planar.Distance(c, p), sep, "seed %d: candidate %d near tree %d", seed, i, j)
			}
			for j := 0; j < i; j++ {
				assert.Greater(t, planar.Distance(c, res.PlanarCandidates[j]), sep, "seed %d: candidates %d and %d overlap", seed, j, i)
			}
		}
		assert.Equal(t, len(res.PlanarCandidates), res.Stats.Accepted)
		assert.Equal(t, res.Stats.Pairs,
			res.Stats.OutsideZone+res.Stats.NearExisting+res.Stats.NearCandidate+res.Stats.Accepted)
	}
}

func TestImpute_CandidatesRoundTrip(t *testing.T) {
	f := newFrame(t)
	imp := newImputer(t)
	trees := plantedGrid(f, 6, 4, 7, map[[2]int]bool{{3, 3}: true})

	res, err := imp.Impute(f.square(-4, 24), trees)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)

	want := f.geo(12, 12)
	assert.InDelta(t, want.Lat, res.Candidates[0].Lat, 1e-9)
	assert.InDelta(t, want.Lon, res.Candidates[0].Lon, 1e-9)
}

func TestNew_RejectsBadParams(t *testing.T) {
	_, err := imputer.New(imputer.Params{NeighborFactor: 0, SeparationFactor: -1, InsetFactor: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neighbor factor")
	assert.Contains(t, err.Error(), "separation factor")
}
