package ports

import (
	"context"

	"github.com/samirrijal/orchardgap/internal/core/domain"
)

// ImputationRunRepository persists completed imputation runs.
type ImputationRunRepository interface {
	Save(ctx context.Context, run *domain.ImputationRun) error
	// Latest returns the most recent run of an orchard, or nil if none exists.
	Latest(ctx context.Context, orchardID int64) (*domain.ImputationRun, error)
	ListByOrchard(ctx context.Context, orchardID int64, limit int) ([]domain.ImputationRun, error)
}
