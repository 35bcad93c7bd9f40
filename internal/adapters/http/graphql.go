package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/orchardgap/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	latLngType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LatLng",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	runType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ImputationRun",
		Fields: graphql.Fields{
			"id":              &graphql.Field{Type: graphql.String},
			"orchard_id":      &graphql.Field{Type: graphql.Int},
			"survey_id":       &graphql.Field{Type: graphql.Int},
			"tree_count":      &graphql.Field{Type: graphql.Int},
			"tree_radius":     &graphql.Field{Type: graphql.Float},
			"min_tree_radius": &graphql.Field{Type: graphql.Float},
			"safe_zone_empty": &graphql.Field{Type: graphql.Boolean},
			"missing_count":   &graphql.Field{Type: graphql.Int},
			"missing_trees":   &graphql.Field{Type: graphql.NewList(latLngType)},
			"duration_ms":     &graphql.Field{Type: graphql.Float},
			"created_at":      &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"missingTrees": &graphql.Field{
				Type:        runType,
				Description: "Missing trees of an orchard, computed from its latest survey",
				Args: graphql.FieldConfigArgument{
					"orchardId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"refresh":   &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := int64(p.Args["orchardId"].(int))
					var (
						run *domain.ImputationRun
						err error
					)
					if p.Args["refresh"].(bool) {
						run, err = deps.Imputation.Recompute(p.Context, id)
					} else {
						run, err = deps.Imputation.MissingTrees(p.Context, id)
					}
					if err != nil {
						return nil, err
					}
					return runToGraphQL(*run), nil
				},
			},
			"imputationRuns": &graphql.Field{
				Type:        graphql.NewList(runType),
				Description: "Past imputation runs of an orchard, newest first",
				Args: graphql.FieldConfigArgument{
					"orchardId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"limit":     &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := int64(p.Args["orchardId"].(int))
					runs, err := deps.Imputation.History(p.Context, id, p.Args["limit"].(int))
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, len(runs))
					for i, r := range runs {
						out[i] = runToGraphQL(r)
					}
					return out, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// runToGraphQL flattens a run into the field names of the schema.
func runToGraphQL(r domain.ImputationRun) map[string]interface{} {
	trees := make([]map[string]interface{}, len(r.MissingTrees))
	for i, p := range r.MissingTrees {
		trees[i] = map[string]interface{}{"lat": p.Lat, "lng": p.Lon}
	}
	return map[string]interface{}{
		"id":              r.ID,
		"orchard_id":      r.OrchardID,
		"survey_id":       r.SurveyID,
		"tree_count":      r.TreeCount,
		"tree_radius":     r.TreeRadius,
		"min_tree_radius": r.MinTreeRadius,
		"safe_zone_empty": r.SafeZoneEmpty,
		"missing_count":   len(r.MissingTrees),
		"missing_trees":   trees,
		"duration_ms":     float64(r.Duration) / float64(time.Millisecond),
		"created_at":      r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil || req.Query == "" {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
