package imputer

import "github.com/paulmach/orb"

// GenerationInput is everything the candidate generator works on.
type GenerationInput struct {
	// Trees are the planar positions of existing trees in caller order.
	Trees []orb.Point
	// Existing indexes Trees.
	Existing Index
	Zone     SafeZone
	// TreeRadius is the largest canopy radius of the orchard.
	TreeRadius float64
	Params     Params
}

// Stats counts how candidate midpoints were decided.
type Stats struct {
	Pairs         int  `json:"pairs"`
	OutsideZone   int  `json:"outside_zone"`
	NearExisting  int  `json:"near_existing"`
	NearCandidate int  `json:"near_candidate"`
	Accepted      int  `json:"accepted"`
	SkippedNoRoom bool `json:"skipped_no_room"`
}

// GenerateCandidates proposes missing tree positions at the midpoints of
// nearby tree pairs.
//
// Trees are visited in order and, for each tree i, its neighbours j > i in
// ascending order. A midpoint is accepted when a canopy of TreeRadius fits
// in the safe zone and no existing tree or earlier candidate lies within
// the separation distance. The first midpoint to claim a gap wins.
func GenerateCandidates(in GenerationInput) ([]orb.Point, Stats) {
	var st Stats
	if len(in.Trees) < 2 || !in.Zone.CanHost(in.TreeRadius) {
		st.SkippedNoRoom = len(in.Trees) >= 2
		return nil, st
	}

	neighbor := in.Params.NeighborFactor * in.TreeRadius
	separation := in.Params.SeparationFactor * in.TreeRadius

	var accepted []orb.Point
	placed := NewRTree()

	for i, p := range in.Trees {
		for _, j := range in.Existing.Within(p, neighbor) {
			if j <= i {
				continue
			}
			st.Pairs++
			q := in.Trees[j]
			mid := orb.Point{(p[0] + q[0]) / 2, (p[1] + q[1]) / 2}

			if !in.Zone.ContainsDisk(mid, in.TreeRadius) {
				st.OutsideZone++
				continue
			}
			if len(in.Existing.Within(mid, separation)) > 0 {
				st.NearExisting++
				continue
			}
			if placed.Len() > 0 && len(placed.Within(mid, separation)) > 0 {
				st.NearCandidate++
				continue
			}
			accepted = append(accepted, mid)
			placed.Insert(mid)
		}
	}
	st.Accepted = len(accepted)
	return accepted, st
}
