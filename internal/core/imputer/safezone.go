package imputer

import (
	"container/heap"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// clearancePrecision is the tolerance, in metres, of the inscribed circle
// search used to decide whether a safe zone is empty.
const clearancePrecision = 1e-3

// SafeZone is an orchard boundary eroded inward by a fixed inset.
//
// The eroded polygon is kept implicit: a point belongs to the zone when it
// lies inside the boundary and farther than inset from every edge. This is
// exactly the Minkowski erosion of the boundary by a disk of radius inset.
type SafeZone struct {
	boundary orb.Polygon
	inset    float64

	// clearance is the distance from pole to the boundary; bound is an
	// upper limit of that distance over the whole interior.
	pole      orb.Point
	clearance float64
	bound     float64
}

// BuildSafeZone erodes boundary inward by inset metres.
// The boundary must be a planar polygon; only its outer ring is used.
func BuildSafeZone(boundary orb.Polygon, inset float64) SafeZone {
	z := SafeZone{inset: inset}
	if len(boundary) == 0 || len(boundary[0]) < 3 {
		return z
	}
	ring := closeRing(boundary[0])
	z.boundary = orb.Polygon{ring}
	z.pole, z.clearance, z.bound = poleOfInaccessibility(ring, inset, clearancePrecision)
	return z
}

// Empty reports whether erosion removed the whole polygon. A zone whose
// inscribed circle exceeds the inset by no more than the search precision
// has collapsed to a point or a line and counts as empty.
func (z SafeZone) Empty() bool {
	return len(z.boundary) == 0 || z.bound <= z.inset+clearancePrecision
}

// Inset returns the erosion distance.
func (z SafeZone) Inset() float64 { return z.inset }

// Boundary returns the un-eroded planar boundary.
func (z SafeZone) Boundary() orb.Polygon { return z.boundary }

// Pole returns the deepest interior point found while building the zone
// and its distance to the boundary. The search stops once emptiness is
// decided, so this is not necessarily the centre of the largest inscribed
// circle.
func (z SafeZone) Pole() (orb.Point, float64) { return z.pole, z.clearance }

// CanHost reports whether a disk of radius r could fit somewhere in the
// zone. A false result is definite; true means it may.
func (z SafeZone) CanHost(r float64) bool {
	return !z.Empty() && z.bound > z.inset+r
}

// ContainsPoint reports whether p lies strictly inside the zone.
func (z SafeZone) ContainsPoint(p orb.Point) bool {
	return z.ContainsDisk(p, 0)
}

// ContainsDisk reports whether the disk centred on c with radius r lies
// strictly inside the zone.
func (z SafeZone) ContainsDisk(c orb.Point, r float64) bool {
	if z.Empty() {
		return false
	}
	if !planar.PolygonContains(z.boundary, c) {
		return false
	}
	return planar.DistanceFrom(z.boundary, c) > z.inset+r
}

// Clearance returns the signed distance from p to the boundary, positive
// inside the polygon.
func (z SafeZone) Clearance(p orb.Point) float64 {
	if len(z.boundary) == 0 {
		return math.Inf(-1)
	}
	return signedDistance(z.boundary[0], p)
}

func closeRing(r orb.Ring) orb.Ring {
	out := make(orb.Ring, len(r), len(r)+1)
	copy(out, r)
	if !out.Closed() {
		out = append(out, out[0])
	}
	return out
}

func signedDistance(ring orb.Ring, p orb.Point) float64 {
	d := planar.DistanceFrom(ring, p)
	if planar.RingContains(ring, p) {
		return d
	}
	return -d
}

// clearanceCell is a square search cell of the inscribed circle search.
type clearanceCell struct {
	center orb.Point
	half   float64
	dist   float64 // signed distance of center to the ring
	max    float64 // upper bound of the distance anywhere in the cell
}

func newClearanceCell(ring orb.Ring, c orb.Point, half float64) clearanceCell {
	d := signedDistance(ring, c)
	return clearanceCell{center: c, half: half, dist: d, max: d + half*math.Sqrt2}
}

type cellQueue []clearanceCell

func (q cellQueue) Len() int            { return len(q) }
func (q cellQueue) Less(i, j int) bool  { return q[i].max > q[j].max }
func (q cellQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *cellQueue) Push(x interface{}) { *q = append(*q, x.(clearanceCell)) }
func (q *cellQueue) Pop() interface{} {
	old := *q
	c := old[len(old)-1]
	*q = old[:len(old)-1]
	return c
}

// poleOfInaccessibility searches for the interior point farthest from
// the ring edges by best-first subdivision of square cells. The signed
// distance is 1-Lipschitz, so no point of a cell can beat dist+half*sqrt2.
//
// Only the comparison with target matters to the caller, so the search
// stops as soon as a point deeper than target is found or no cell can
// reach it, or once the bound is within precision of the best point. It
// returns the best point, its distance and an upper bound of the maximum.
func poleOfInaccessibility(ring orb.Ring, target, precision float64) (orb.Point, float64, float64) {
	b := ring.Bound()
	w, h := b.Max.X()-b.Min.X(), b.Max.Y()-b.Min.Y()
	size := math.Min(w, h)
	if size <= 0 {
		return b.Center(), 0, 0
	}
	half := size / 2

	q := &cellQueue{}
	for x := b.Min.X(); x < b.Max.X(); x += size {
		for y := b.Min.Y(); y < b.Max.Y(); y += size {
			heap.Push(q, newClearanceCell(ring, orb.Point{x + half, y + half}, half))
		}
	}

	best := newClearanceCell(ring, centroid(ring), 0)
	if c := newClearanceCell(ring, b.Center(), 0); c.dist > best.dist {
		best = c
	}

	bound := best.dist
	for q.Len() > 0 {
		// Cells come out by descending bound, so c.max bounds everything left.
		c := heap.Pop(q).(clearanceCell)
		if c.dist > best.dist {
			best = c
		}
		bound = math.Max(best.dist, c.max)
		if best.dist > target || c.max <= target || c.max-best.dist <= precision {
			break
		}
		h := c.half / 2
		for _, off := range [4][2]float64{{-h, -h}, {h, -h}, {-h, h}, {h, h}} {
			heap.Push(q, newClearanceCell(ring, orb.Point{c.center.X() + off[0], c.center.Y() + off[1]}, h))
		}
	}
	return best.center, math.Max(best.dist, 0), math.Max(bound, 0)
}

func centroid(ring orb.Ring) orb.Point {
	c, area := planar.CentroidArea(orb.Polygon{ring})
	if area == 0 {
		return ring.Bound().Center()
	}
	return c
}
