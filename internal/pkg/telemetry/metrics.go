package telemetry

// Span attribute keys shared by the service layer and adapters.
const (
	AttrOrchardID    = "orchard.id"
	AttrSurveyID     = "survey.id"
	AttrTreeCount    = "orchard.tree_count"
	AttrMissingTrees = "imputation.missing_trees"
	AttrCacheHit     = "cache.hit"
)
