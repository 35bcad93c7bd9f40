package workflows

import (
	"context"
	"errors"
	"log/slog"

	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/orchardgap/internal/core/domain"
)

// Recomputer recomputes the missing trees of one orchard.
// *usecases.ImputationService satisfies it.
type Recomputer interface {
	Recompute(ctx context.Context, orchardID int64) (*domain.ImputationRun, error)
}

// Activities holds the activity implementations of the recompute workflow.
type Activities struct {
	Imputation Recomputer
}

// OrchardOutcome is the result of recomputing one orchard.
type OrchardOutcome struct {
	OrchardID    int64  `json:"orchard_id"`
	RunID        string `json:"run_id,omitempty"`
	MissingCount int    `json:"missing_count"`
	Error        string `json:"error,omitempty"`
}

// RecomputeOrchard runs a fresh imputation for an orchard. Errors caused
// by the survey itself are not retried; upstream and transport errors are.
func (a *Activities) RecomputeOrchard(ctx context.Context, orchardID int64) (*OrchardOutcome, error) {
	run, err := a.Imputation.Recompute(ctx, orchardID)
	if err != nil {
		if permanent(err) {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidSurvey", err)
		}
		return nil, err
	}
	slog.InfoContext(ctx, "orchard recomputed", "orchard_id", orchardID, "missing_trees", len(run.MissingTrees))
	return &OrchardOutcome{
		OrchardID:    orchardID,
		RunID:        run.ID,
		MissingCount: len(run.MissingTrees),
	}, nil
}

func permanent(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidOrchardID,
		domain.ErrOrchardNotFound,
		domain.ErrMalformedSurvey,
		domain.ErrInsufficientData,
		domain.ErrInvalidCoordinate,
		domain.ErrInvalidCanopyArea,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
