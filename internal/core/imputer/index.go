package imputer

import (
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Index answers radius queries over a set of planar points.
//
// Within returns the positions (insertion order) of every point whose
// distance to center is at most r, in ascending order.
type Index interface {
	Within(center orb.Point, r float64) []int
	Len() int
}

// within reports whether p lies in the closed disk (c, r).
func within(p, c orb.Point, r float64) bool {
	return planar.DistanceSquared(p, c) <= r*r
}

// KDTree is a static 2-d tree over a fixed point set.
type KDTree struct {
	tree *kdtree.Tree
}

// kdPoint is an indexed point as seen by gonum's kd-tree. Distance is
// squared, so a radius query keeps everything up to r*r.
type kdPoint struct {
	p   orb.Point
	idx int
}

func (k kdPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return k.p[d] - c.(kdPoint).p[d]
}

func (k kdPoint) Dims() int { return 2 }

func (k kdPoint) Distance(c kdtree.Comparable) float64 {
	return planar.DistanceSquared(k.p, c.(kdPoint).p)
}

type kdPoints []kdPoint

func (s kdPoints) Index(i int) kdtree.Comparable         { return s[i] }
func (s kdPoints) Len() int                              { return len(s) }
func (s kdPoints) Slice(start, end int) kdtree.Interface { return s[start:end] }

func (s kdPoints) Pivot(d kdtree.Dim) int {
	plane := kdPlane{points: s, dim: d}
	return kdtree.Partition(plane, kdtree.MedianOfRandoms(plane, kdPivotSample))
}

// kdPivotSample bounds how many points are sampled to pick a median.
const kdPivotSample = 100

type kdPlane struct {
	points kdPoints
	dim    kdtree.Dim
}

func (p kdPlane) Len() int           { return len(p.points) }
func (p kdPlane) Less(i, j int) bool { return p.points[i].p[p.dim] < p.points[j].p[p.dim] }
func (p kdPlane) Swap(i, j int)      { p.points[i], p.points[j] = p.points[j], p.points[i] }

func (p kdPlane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}

// NewKDTree builds a tree over points. The slice is not retained.
func NewKDTree(points []orb.Point) *KDTree {
	pts := make(kdPoints, len(points))
	for i, p := range points {
		pts[i] = kdPoint{p: p, idx: i}
	}
	return &KDTree{tree: kdtree.New(pts, false)}
}

// Len returns the number of indexed points.
func (t *KDTree) Len() int { return t.tree.Len() }

// Within implements Index.
func (t *KDTree) Within(center orb.Point, r float64) []int {
	if r < 0 || t.tree.Len() == 0 {
		return nil
	}
	keep := kdtree.NewDistKeeper(r * r)
	t.tree.NearestSet(keep, kdPoint{p: center, idx: -1})

	var out []int
	for _, c := range keep.Heap {
		// The keeper's distance sentinel carries no point.
		if c.Comparable == nil {
			continue
		}
		k := c.Comparable.(kdPoint)
		if within(k.p, center, r) {
			out = append(out, k.idx)
		}
	}
	sort.Ints(out)
	return out
}

// rtreeTolerance is the half-size of the box stored for each point.
// rtreego rejects zero-sized rectangles and treats touching boxes as
// disjoint, so queries are padded and filtered by exact distance.
const rtreeTolerance = 1e-6

// RTree is a dynamic index backed by an R-tree. Points can only be added.
type RTree struct {
	tree *rtreego.Rtree
	n    int
}

type rtreeEntry struct {
	p   orb.Point
	idx int
}

func (e *rtreeEntry) Bounds() rtreego.Rect {
	return rtreego.Point{e.p[0], e.p[1]}.ToRect(rtreeTolerance)
}

// NewRTree returns an empty R-tree index.
func NewRTree() *RTree {
	return &RTree{tree: rtreego.NewTree(2, 4, 16)}
}

// Insert adds p and returns its position.
func (t *RTree) Insert(p orb.Point) int {
	idx := t.n
	t.tree.Insert(&rtreeEntry{p: p, idx: idx})
	t.n++
	return idx
}

// Len returns the number of inserted points.
func (t *RTree) Len() int { return t.n }

// Within implements Index.
func (t *RTree) Within(center orb.Point, r float64) []int {
	if r < 0 || t.n == 0 {
		return nil
	}
	box := rtreego.Point{center[0], center[1]}.ToRect(r + 2*rtreeTolerance)
	var out []int
	for _, s := range t.tree.SearchIntersect(box) {
		e := s.(*rtreeEntry)
		if within(e.p, center, r) {
			out = append(out, e.idx)
		}
	}
	sort.Ints(out)
	return out
}
