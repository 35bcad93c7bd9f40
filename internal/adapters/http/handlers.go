package http

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/orchardgap/internal/core/domain"
)

const (
	defaultTreePage = 1000
	maxTreePage     = 5000
)

// LatLng is a missing tree location as returned by the API.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MissingTreesResponse is the body of GET /v1/orchards/:id/missing-trees.
type MissingTreesResponse struct {
	OrchardID     int64      `json:"orchard_id"`
	SurveyID      int64      `json:"survey_id"`
	RunID         string     `json:"run_id"`
	TreeCount     int        `json:"tree_count"`
	SafeZoneEmpty bool       `json:"safe_zone_empty"`
	MissingTrees  []LatLng   `json:"missing_trees"`
	ComputedAt    time.Time  `json:"computed_at"`
	Pagination    Pagination `json:"pagination"`
}

func orchardParam(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("orchard id must be a positive integer, got %q", c.Params("id"))
	}
	return int64(id), nil
}

// MissingTreesHandler returns the imputed missing trees of an orchard.
// ?refresh=true recomputes from the latest survey, ?format=geojson returns
// a FeatureCollection of points.
func MissingTreesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := orchardParam(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		format := c.Query("format", "json")
		if format != "json" && format != "geojson" {
			return errBadRequest(c, "format must be json or geojson")
		}
		pg, err := parsePagination(c, defaultTreePage, maxTreePage)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		ctx := c.UserContext()
		var run *domain.ImputationRun
		if c.QueryBool("refresh", false) {
			run, err = deps.Imputation.Recompute(ctx, id)
			c.Set("Cache-Control", "no-store")
		} else {
			run, err = deps.Imputation.MissingTrees(ctx, id)
		}
		if err != nil {
			return errFromDomain(c, err)
		}

		if format == "geojson" {
			return c.JSON(missingTreesGeoJSON(run), "application/geo+json")
		}

		pg.Total = len(run.MissingTrees)
		page := paginate(run.MissingTrees, pg)

		trees := make([]LatLng, len(page))
		for i, p := range page {
			trees[i] = LatLng{Lat: p.Lat, Lng: p.Lon}
		}

		SetLinkHeaders(c, pg)
		return c.JSON(MissingTreesResponse{
			OrchardID:     run.OrchardID,
			SurveyID:      run.SurveyID,
			RunID:         run.ID,
			TreeCount:     run.TreeCount,
			SafeZoneEmpty: run.SafeZoneEmpty,
			MissingTrees:  trees,
			ComputedAt:    run.CreatedAt,
			Pagination:    pg,
		})
	}
}

func missingTreesGeoJSON(run *domain.ImputationRun) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, p := range run.MissingTrees {
		f := geojson.NewFeature(orb.Point{p.Lon, p.Lat})
		f.Properties["order"] = i
		fc.Append(f)
	}
	fc.ExtraMembers = geojson.Properties{
		"orchard_id": run.OrchardID,
		"survey_id":  run.SurveyID,
		"run_id":     run.ID,
	}
	return fc
}

// PlotDownloadHandler serves the last rendered plot of an orchard as PNG.
func PlotDownloadHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := orchardParam(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		if deps.Plots == nil {
			return errNotFound(c, "plots are not enabled")
		}

		data, err := deps.Plots.Load(c.UserContext(), id)
		if err != nil {
			return errFromDomain(c, err)
		}

		c.Set(fiber.HeaderContentType, "image/png")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="plot_%d.png"`, id))
		return c.Send(data)
	}
}

// RunsHandler lists past imputation runs of an orchard, newest first.
func RunsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := orchardParam(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		limit := c.QueryInt("limit", 20)
		if limit <= 0 || limit > 100 {
			return errBadRequest(c, "limit must be between 1 and 100")
		}

		runs, err := deps.Imputation.History(c.UserContext(), id, limit)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"orchard_id": id, "runs": runs})
	}
}
