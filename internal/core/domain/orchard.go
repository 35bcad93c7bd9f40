package domain

import (
	"math"
	"time"
)

// OrchardPolygon is the orchard boundary as an implicitly closed ring.
type OrchardPolygon struct {
	Vertices []GeoPoint `json:"vertices"`
}

// DistinctVertices counts the distinct vertex positions of the ring.
func (p OrchardPolygon) DistinctVertices() int {
	seen := make(map[GeoPoint]struct{}, len(p.Vertices))
	for _, v := range p.Vertices {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// TreeObservation is a detected tree and the area of its canopy in m².
type TreeObservation struct {
	Location   GeoPoint `json:"location"`
	CanopyArea float64  `json:"canopy_area"`
}

// Radius returns the radius of the circle with the same area as the canopy.
func (t TreeObservation) Radius() float64 {
	return math.Sqrt(t.CanopyArea / math.Pi)
}

// OrchardSurvey is the latest survey of an orchard as supplied by the
// survey provider.
type OrchardSurvey struct {
	OrchardID int64             `json:"orchard_id"`
	SurveyID  int64             `json:"survey_id"`
	Date      string            `json:"date,omitempty"`
	Hectares  float64           `json:"hectares,omitempty"`
	Boundary  OrchardPolygon    `json:"boundary"`
	Trees     []TreeObservation `json:"trees"`
}

// ImputationRun is the outcome of one missing-tree computation.
type ImputationRun struct {
	ID            string        `json:"id"`
	OrchardID     int64         `json:"orchard_id"`
	SurveyID      int64         `json:"survey_id"`
	TreeCount     int           `json:"tree_count"`
	TreeRadius    float64       `json:"tree_radius"`
	MinTreeRadius float64       `json:"min_tree_radius"`
	SafeZoneEmpty bool          `json:"safe_zone_empty"`
	MissingTrees  []GeoPoint    `json:"missing_trees"`
	Duration      time.Duration `json:"duration_ns"`
	CreatedAt     time.Time     `json:"created_at"`
}

// ImputationEvent is published when a run completes.
type ImputationEvent struct {
	RunID        string    `json:"run_id"`
	OrchardID    int64     `json:"orchard_id"`
	SurveyID     int64     `json:"survey_id"`
	MissingCount int       `json:"missing_count"`
	CreatedAt    time.Time `json:"created_at"`
}
