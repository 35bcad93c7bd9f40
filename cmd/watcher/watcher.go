package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samirrijal/orchardgap/internal/core/domain"
)

type surveySource interface {
	LatestSurveyID(ctx context.Context, orchardID int64) (int64, error)
}

type runLookup interface {
	Latest(ctx context.Context, orchardID int64) (*domain.ImputationRun, error)
}

type announcer interface {
	PublishSurveyUpdated(ctx context.Context, orchardID int64) error
}

// watcher announces orchards whose latest survey differs from the one the
// last imputation used.
type watcher struct {
	source surveySource
	runs   runLookup // optional
	events announcer

	mu   sync.Mutex
	seen map[int64]int64 // orchard -> survey
}

func newWatcher(source surveySource, runs runLookup, events announcer) *watcher {
	return &watcher{source: source, runs: runs, events: events, seen: map[int64]int64{}}
}

// baseline returns the survey last known for the orchard. Without a run
// history the first observation only records the survey.
func (w *watcher) baseline(ctx context.Context, orchardID int64) (survey int64, known bool, err error) {
	w.mu.Lock()
	survey, known = w.seen[orchardID]
	w.mu.Unlock()
	if known || w.runs == nil {
		return survey, known, nil
	}

	run, err := w.runs.Latest(ctx, orchardID)
	if err != nil {
		return 0, false, fmt.Errorf("latest run: %w", err)
	}
	if run == nil {
		// Never imputed: any survey is new.
		return 0, true, nil
	}
	return run.SurveyID, true, nil
}

// poll checks one orchard and reports whether an update was announced.
func (w *watcher) poll(ctx context.Context, orchardID int64) (bool, error) {
	current, err := w.source.LatestSurveyID(ctx, orchardID)
	if err != nil {
		return false, err
	}

	last, known, err := w.baseline(ctx, orchardID)
	if err != nil {
		return false, err
	}

	if known && last != current {
		if err := w.events.PublishSurveyUpdated(ctx, orchardID); err != nil {
			return false, fmt.Errorf("publish: %w", err)
		}
		slog.Info("survey updated", "orchard_id", orchardID, "survey_id", current, "previous_survey_id", last)
	}

	w.mu.Lock()
	w.seen[orchardID] = current
	w.mu.Unlock()
	return known && last != current, nil
}

// pollAll polls every orchard with at most limit requests in flight and
// returns the number of announced updates.
func (w *watcher) pollAll(ctx context.Context, orchards []int64, limit int) int {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		updates int
	)
	sem := make(chan struct{}, limit)

	for _, id := range orchards {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			updated, err := w.poll(ctx, id)
			if err != nil {
				slog.Warn("survey poll failed", "orchard_id", id, "error", err)
				return
			}
			if updated {
				mu.Lock()
				updates++
				mu.Unlock()
			}
		}(id)
	}

	wg.Wait()
	return updates
}
