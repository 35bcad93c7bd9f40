package ports

import (
	"context"

	"github.com/samirrijal/orchardgap/internal/core/domain"
	"github.com/samirrijal/orchardgap/internal/core/imputer"
)

// SurveyProvider supplies the latest survey of an orchard.
type SurveyProvider interface {
	FetchOrchardSurvey(ctx context.Context, orchardID int64) (*domain.OrchardSurvey, error)
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishImputation(ctx context.Context, event *domain.ImputationEvent) error
	PublishSurveyUpdated(ctx context.Context, orchardID int64) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeSurveyUpdates(ctx context.Context, handler func(ctx context.Context, orchardID int64) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// PlotRenderer draws an imputation result and stores the image under the
// orchard identifier.
type PlotRenderer interface {
	Render(ctx context.Context, orchardID int64, res *imputer.Result) error
}

// PlotStore reads previously rendered plots.
type PlotStore interface {
	// Load returns the PNG bytes, or domain.ErrPlotNotFound.
	Load(ctx context.Context, orchardID int64) ([]byte, error)
}
