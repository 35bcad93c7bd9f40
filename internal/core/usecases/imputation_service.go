package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/orchardgap/internal/core/domain"
	"github.com/samirrijal/orchardgap/internal/core/imputer"
	"github.com/samirrijal/orchardgap/internal/core/ports"
	"github.com/samirrijal/orchardgap/internal/pkg/metrics"
	"github.com/samirrijal/orchardgap/internal/pkg/telemetry"
)

const (
	defaultResultTTL = 900
	defaultHistory   = 20
	maxHistory       = 100
)

// ImputationService finds missing trees for an orchard from its latest
// survey. Only the survey provider is required; the run repository,
// cache, publisher and plot renderer are skipped when not configured.
type ImputationService struct {
	provider ports.SurveyProvider
	imputer  *imputer.Imputer

	runs      ports.ImputationRunRepository
	cache     ports.CacheService
	resultTTL int
	events    ports.EventPublisher
	plots     ports.PlotRenderer

	now    func() time.Time
	logger *slog.Logger
}

// Option configures an ImputationService.
type Option func(*ImputationService)

// WithRunRepository persists every computed run.
func WithRunRepository(runs ports.ImputationRunRepository) Option {
	return func(s *ImputationService) { s.runs = runs }
}

// WithCache caches computed runs for ttlSeconds.
func WithCache(cache ports.CacheService, ttlSeconds int) Option {
	return func(s *ImputationService) {
		s.cache = cache
		if ttlSeconds > 0 {
			s.resultTTL = ttlSeconds
		}
	}
}

// WithPublisher publishes an event for every computed run.
func WithPublisher(events ports.EventPublisher) Option {
	return func(s *ImputationService) { s.events = events }
}

// WithPlotRenderer renders a plot for every computed run.
func WithPlotRenderer(plots ports.PlotRenderer) Option {
	return func(s *ImputationService) { s.plots = plots }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *ImputationService) { s.now = now }
}

// WithLogger overrides slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *ImputationService) { s.logger = logger }
}

// NewImputationService creates a new ImputationService.
func NewImputationService(provider ports.SurveyProvider, imp *imputer.Imputer, opts ...Option) *ImputationService {
	s := &ImputationService{
		provider:  provider,
		imputer:   imp,
		resultTTL: defaultResultTTL,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func resultCacheKey(orchardID int64) string {
	return fmt.Sprintf("imputation:orchard:%d", orchardID)
}

// MissingTrees returns the missing trees of an orchard, from cache when a
// recent run is available.
func (s *ImputationService) MissingTrees(ctx context.Context, orchardID int64) (*domain.ImputationRun, error) {
	if orchardID <= 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidOrchardID, orchardID)
	}

	ctx, span := telemetry.Tracer().Start(ctx, "ImputationService.MissingTrees",
		trace.WithAttributes(attribute.Int64(telemetry.AttrOrchardID, orchardID)))
	defer span.End()

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, resultCacheKey(orchardID)); err == nil {
			var run domain.ImputationRun
			if err := json.Unmarshal(data, &run); err == nil {
				metrics.ObserveCache("missing_trees", true)
				span.SetAttributes(attribute.Bool(telemetry.AttrCacheHit, true))
				return &run, nil
			}
		}
		metrics.ObserveCache("missing_trees", false)
	}
	span.SetAttributes(attribute.Bool(telemetry.AttrCacheHit, false))

	run, err := s.compute(ctx, orchardID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return run, nil
}

// Recompute fetches the latest survey and runs the imputation, bypassing
// the cache.
func (s *ImputationService) Recompute(ctx context.Context, orchardID int64) (*domain.ImputationRun, error) {
	if orchardID <= 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidOrchardID, orchardID)
	}

	ctx, span := telemetry.Tracer().Start(ctx, "ImputationService.Recompute",
		trace.WithAttributes(attribute.Int64(telemetry.AttrOrchardID, orchardID)))
	defer span.End()

	run, err := s.compute(ctx, orchardID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return run, nil
}

// History returns the latest persisted runs of an orchard, newest first.
func (s *ImputationService) History(ctx context.Context, orchardID int64, limit int) ([]domain.ImputationRun, error) {
	if orchardID <= 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidOrchardID, orchardID)
	}
	if limit <= 0 {
		limit = defaultHistory
	}
	if limit > maxHistory {
		limit = maxHistory
	}
	if s.runs == nil {
		return []domain.ImputationRun{}, nil
	}
	return s.runs.ListByOrchard(ctx, orchardID, limit)
}

func (s *ImputationService) compute(ctx context.Context, orchardID int64) (*domain.ImputationRun, error) {
	log := s.logger.With("orchard_id", orchardID)

	survey, err := s.fetchSurvey(ctx, orchardID)
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int64(telemetry.AttrSurveyID, survey.SurveyID),
		attribute.Int(telemetry.AttrTreeCount, len(survey.Trees)),
	)
	metrics.TreesPerSurvey.Observe(float64(len(survey.Trees)))

	start := time.Now()
	res, err := s.imputer.Impute(survey.Boundary, survey.Trees)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ImputationsTotal.WithLabelValues("invalid_input").Inc()
		return nil, fmt.Errorf("impute orchard %d: %w", orchardID, err)
	}
	metrics.ImputationDuration.Observe(elapsed.Seconds())
	metrics.CandidatesPerRun.Observe(float64(len(res.Candidates)))

	outcome := "ok"
	if res.SafeZoneEmpty() {
		outcome = "empty_safe_zone"
	}
	metrics.ImputationsTotal.WithLabelValues(outcome).Inc()

	missing := res.Candidates
	if missing == nil {
		missing = []domain.GeoPoint{}
	}
	run := &domain.ImputationRun{
		ID:            uuid.NewString(),
		OrchardID:     orchardID,
		SurveyID:      survey.SurveyID,
		TreeCount:     len(survey.Trees),
		TreeRadius:    res.TreeRadius,
		MinTreeRadius: res.MinTreeRadius,
		SafeZoneEmpty: res.SafeZoneEmpty(),
		MissingTrees:  missing,
		Duration:      elapsed,
		CreatedAt:     s.now().UTC(),
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int(telemetry.AttrMissingTrees, len(missing)))

	log.Info("imputation complete",
		"survey_id", survey.SurveyID,
		"trees", run.TreeCount,
		"candidates", len(missing),
		"pairs", res.Stats.Pairs,
		"safe_zone_empty", run.SafeZoneEmpty,
		"duration", elapsed,
	)

	s.afterCompute(ctx, log, run, res)
	return run, nil
}

// afterCompute runs the side effects of a run. None of them changes the
// result: failures are logged and counted.
func (s *ImputationService) afterCompute(ctx context.Context, log *slog.Logger, run *domain.ImputationRun, res *imputer.Result) {
	if s.plots != nil {
		if err := s.plots.Render(ctx, run.OrchardID, res); err != nil {
			metrics.PlotRenderErrors.Inc()
			log.Warn("plot render failed", "error", err)
		}
	}

	if s.runs != nil {
		if err := s.runs.Save(ctx, run); err != nil {
			log.Warn("persist run failed", "run_id", run.ID, "error", err)
		}
	}

	if s.events != nil {
		event := &domain.ImputationEvent{
			RunID:        run.ID,
			OrchardID:    run.OrchardID,
			SurveyID:     run.SurveyID,
			MissingCount: len(run.MissingTrees),
			CreatedAt:    run.CreatedAt,
		}
		if err := s.events.PublishImputation(ctx, event); err != nil {
			log.Warn("publish imputation event failed", "run_id", run.ID, "error", err)
		}
	}

	if s.cache != nil {
		if data, err := json.Marshal(run); err == nil {
			if err := s.cache.Set(ctx, resultCacheKey(run.OrchardID), data, s.resultTTL); err != nil {
				log.Debug("cache set failed", "error", err)
			}
		}
	}
}

func (s *ImputationService) fetchSurvey(ctx context.Context, orchardID int64) (*domain.OrchardSurvey, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "SurveyProvider.FetchOrchardSurvey")
	defer span.End()

	start := time.Now()
	survey, err := s.provider.FetchOrchardSurvey(ctx, orchardID)
	metrics.SurveyFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SurveyFetchErrors.WithLabelValues(fetchErrorReason(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetch survey for orchard %d: %w", orchardID, err)
	}
	return survey, nil
}

func fetchErrorReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrOrchardNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrMalformedSurvey):
		return "malformed"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "upstream"
	}
}
