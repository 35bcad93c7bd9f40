package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/samirrijal/orchardgap/internal/core/domain"
)

// RunRepo implements ports.ImputationRunRepository. Missing trees are
// stored twice: as a PostGIS MULTIPOINT for spatial queries and as JSONB.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new RunRepo.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// Save inserts a run. Saving the same run ID twice is a no-op.
func (r *RunRepo) Save(ctx context.Context, run *domain.ImputationRun) error {
	points, err := json.Marshal(run.MissingTrees)
	if err != nil {
		return fmt.Errorf("encode missing trees: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO imputation_runs
			(id, orchard_id, survey_id, tree_count, tree_radius, min_tree_radius,
			 safe_zone_empty, missing_count, missing_trees, missing_geom, duration_ns, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, ST_GeomFromText($10, 4326), $11, $12)
		ON CONFLICT (id) DO NOTHING
	`, run.ID, run.OrchardID, run.SurveyID, run.TreeCount, run.TreeRadius, run.MinTreeRadius,
		run.SafeZoneEmpty, len(run.MissingTrees), points, MultiPointWKT(run.MissingTrees),
		run.Duration.Nanoseconds(), run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Latest returns the most recent run of an orchard, or nil if none exists.
func (r *RunRepo) Latest(ctx context.Context, orchardID int64) (*domain.ImputationRun, error) {
	runs, err := r.ListByOrchard(ctx, orchardID, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

// ListByOrchard returns up to limit runs of an orchard, newest first.
func (r *RunRepo) ListByOrchard(ctx context.Context, orchardID int64, limit int) ([]domain.ImputationRun, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id::text, orchard_id, survey_id, tree_count, tree_radius, min_tree_radius,
		       safe_zone_empty, missing_count, missing_trees, ST_AsText(missing_geom),
		       duration_ns, created_at
		FROM imputation_runs
		WHERE orchard_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, orchardID, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.ImputationRun{}
	for rows.Next() {
		var (
			run      domain.ImputationRun
			count    int
			points   []byte
			geom     string
			duration int64
		)
		if err := rows.Scan(
			&run.ID, &run.OrchardID, &run.SurveyID, &run.TreeCount, &run.TreeRadius, &run.MinTreeRadius,
			&run.SafeZoneEmpty, &count, &points, &geom, &duration, &run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Duration = time.Duration(duration)
		if run.MissingTrees, err = decodeMissingTrees(count, points, geom); err != nil {
			return nil, fmt.Errorf("run %s: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// decodeMissingTrees reads the JSONB copy of a run's points. Rows that only
// carry the geometry, where the column kept its '[]' default, are read from
// the WKT instead.
func decodeMissingTrees(count int, points []byte, geom string) ([]domain.GeoPoint, error) {
	out := []domain.GeoPoint{}
	if len(points) > 0 {
		if err := json.Unmarshal(points, &out); err != nil {
			return nil, fmt.Errorf("decode missing trees: %w", err)
		}
	}
	if len(out) == count {
		return out, nil
	}
	return ParseMultiPoint(geom)
}

// MultiPointWKT encodes points as a WKT MULTIPOINT in lon/lat order.
func MultiPointWKT(points []domain.GeoPoint) string {
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = orb.Point{p.Lon, p.Lat}
	}
	return wkt.MarshalString(mp)
}

// ParseMultiPoint decodes a WKT MULTIPOINT, keeping point order. Both the
// bracketed form MULTIPOINT((x y),(x y)) and the flat form PostGIS emits,
// MULTIPOINT(x y,x y), are accepted.
func ParseMultiPoint(s string) ([]domain.GeoPoint, error) {
	mp, err := wkt.UnmarshalMultiPoint(bracketMultiPoint(s))
	if err != nil {
		return nil, fmt.Errorf("parse multipoint: %w", err)
	}
	out := make([]domain.GeoPoint, len(mp))
	for i, p := range mp {
		out[i] = domain.GeoPoint{Lat: p.Lat(), Lon: p.Lon()}
	}
	return out, nil
}

// bracketMultiPoint rewrites a flat MULTIPOINT(x y,x y) into the bracketed
// form orb decodes. Anything else is returned unchanged.
func bracketMultiPoint(s string) string {
	body := strings.TrimSpace(s)
	const tag = "MULTIPOINT"
	if len(body) < len(tag) || !strings.EqualFold(body[:len(tag)], tag) {
		return s
	}
	rest := strings.TrimSpace(body[len(tag):])
	if len(rest) < 2 || rest[0] != '(' || rest[len(rest)-1] != ')' {
		return s
	}
	inner := rest[1 : len(rest)-1]
	if strings.Contains(inner, "(") {
		return s
	}
	parts := strings.Split(inner, ",")
	for i, p := range parts {
		parts[i] = "(" + strings.TrimSpace(p) + ")"
	}
	return tag + "(" + strings.Join(parts, ",") + ")"
}
