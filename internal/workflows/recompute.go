package workflows

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const defaultParallelism = 4

// RecomputeInput is the input of RecomputeOrchardsWorkflow.
type RecomputeInput struct {
	OrchardIDs []int64
	// Parallelism bounds the activities in flight; zero means 4.
	Parallelism int
}

// RecomputeSummary is the result of RecomputeOrchardsWorkflow, with one
// outcome per distinct orchard in input order.
type RecomputeSummary struct {
	Succeeded int
	Failed    int
	Outcomes  []OrchardOutcome
}

// RecomputeOrchardsWorkflow recomputes the missing trees of every orchard in
// the input. A failing orchard is recorded in the summary and does not stop
// the others.
func RecomputeOrchardsWorkflow(ctx workflow.Context, input RecomputeInput) (*RecomputeSummary, error) {
	logger := workflow.GetLogger(ctx)

	ids := dedupe(input.OrchardIDs)
	logger.Info("Starting recompute workflow", "orchards", len(ids))

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})

	parallelism := input.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}

	summary := &RecomputeSummary{Outcomes: make([]OrchardOutcome, 0, len(ids))}
	for start := 0; start < len(ids); start += parallelism {
		end := min(start+parallelism, len(ids))

		futures := make([]workflow.Future, 0, end-start)
		for _, id := range ids[start:end] {
			futures = append(futures, workflow.ExecuteActivity(ctx, "RecomputeOrchard", id))
		}
		for i, f := range futures {
			id := ids[start+i]
			var out OrchardOutcome
			if err := f.Get(ctx, &out); err != nil {
				logger.Warn("orchard recompute failed", "orchard_id", id, "error", err)
				summary.Failed++
				summary.Outcomes = append(summary.Outcomes, OrchardOutcome{OrchardID: id, Error: err.Error()})
				continue
			}
			summary.Succeeded++
			summary.Outcomes = append(summary.Outcomes, out)
		}
	}

	logger.Info("Recompute workflow finished", "succeeded", summary.Succeeded, "failed", summary.Failed)
	return summary, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// StartRecompute starts RecomputeOrchardsWorkflow for a single orchard. The
// workflow ID is derived from the orchard, so a recompute already running
// for it is reused rather than duplicated.
func StartRecompute(ctx context.Context, c client.Client, taskQueue string, orchardID int64) (client.WorkflowRun, error) {
	opts := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("recompute-orchard-%d", orchardID),
		TaskQueue: taskQueue,
	}
	return c.ExecuteWorkflow(ctx, opts, RecomputeOrchardsWorkflow, RecomputeInput{OrchardIDs: []int64{orchardID}})
}
