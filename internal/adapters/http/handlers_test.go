package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"

	handler "github.com/samirrijal/orchardgap/internal/adapters/http"
	"github.com/samirrijal/orchardgap/internal/core/domain"
	"github.com/samirrijal/orchardgap/internal/core/imputer"
	"github.com/samirrijal/orchardgap/internal/core/usecases"
)

// ---- Mocks ----

type mockProvider struct {
	fetchFn func(ctx context.Context, orchardID int64) (*domain.OrchardSurvey, error)
	calls   int
}

func (m *mockProvider) FetchOrchardSurvey(ctx context.Context, orchardID int64) (*domain.OrchardSurvey, error) {
	m.calls++
	if m.fetchFn != nil {
		return m.fetchFn(ctx, orchardID)
	}
	return nil, domain.ErrOrchardNotFound
}

type mockRunRepo struct {
	listFn func(ctx context.Context, orchardID int64, limit int) ([]domain.ImputationRun, error)
}

func (m *mockRunRepo) Save(ctx context.Context, run *domain.ImputationRun) error { return nil }
func (m *mockRunRepo) Latest(ctx context.Context, orchardID int64) (*domain.ImputationRun, error) {
	return nil, nil
}
func (m *mockRunRepo) ListByOrchard(ctx context.Context, orchardID int64, limit int) ([]domain.ImputationRun, error) {
	if m.listFn != nil {
		return m.listFn(ctx, orchardID, limit)
	}
	return nil, nil
}

type mockPlotStore struct {
	loadFn func(ctx context.Context, orchardID int64) ([]byte, error)
}

func (m *mockPlotStore) Load(ctx context.Context, orchardID int64) ([]byte, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx, orchardID)
	}
	return nil, domain.ErrPlotNotFound
}

type mockCache struct {
	data map[string][]byte
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, errors.New("miss")
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

// ---- Fixtures ----

var anchor = domain.GeoPoint{Lat: -33.9249, Lon: 18.8602}

// geoAt converts a planar offset in metres from anchor to a geographic point.
func geoAt(t *testing.T, x, y float64) domain.GeoPoint {
	t.Helper()
	var pr imputer.Projector
	a, err := pr.ToPlanar(anchor)
	if err != nil {
		t.Fatal(err)
	}
	g, err := pr.ToGeo(orb.Point{a[0] + x, a[1] + y})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

// gridSurvey is a 5×5 grid with 4m spacing and the centre tree missing.
func gridSurvey(t *testing.T, orchardID int64) *domain.OrchardSurvey {
	t.Helper()
	s := &domain.OrchardSurvey{
		OrchardID: orchardID,
		SurveyID:  9001,
		Boundary: domain.OrchardPolygon{Vertices: []domain.GeoPoint{
			geoAt(t, -4, -4), geoAt(t, 20, -4), geoAt(t, 20, 20), geoAt(t, -4, 20),
		}},
	}
	for row := 0; row < 5; row++ {
		for col := 0; col < 5; col++ {
			if row == 2 && col == 2 {
				continue
			}
			s.Trees = append(s.Trees, domain.TreeObservation{
				Location:   geoAt(t, float64(col)*4, float64(row)*4),
				CanopyArea: 7,
			})
		}
	}
	return s
}

func gridProvider(t *testing.T) *mockProvider {
	return &mockProvider{fetchFn: func(ctx context.Context, id int64) (*domain.OrchardSurvey, error) {
		return gridSurvey(t, id), nil
	}}
}

// ---- Test helpers ----

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func newImputation(t *testing.T, provider *mockProvider, opts ...usecases.Option) *usecases.ImputationService {
	t.Helper()
	imp, err := imputer.New(imputer.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	return usecases.NewImputationService(provider, imp, opts...)
}

func makeDeps(t *testing.T, opts ...func(*handler.Dependencies)) *handler.Dependencies {
	d := &handler.Dependencies{
		Imputation: newImputation(t, gridProvider(t)),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

func decodeError(t *testing.T, body io.Reader) handler.APIError {
	t.Helper()
	var e handler.APIError
	if err := json.NewDecoder(body).Decode(&e); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return e
}

// ---- Missing trees ----

func TestMissingTrees_Success(t *testing.T) {
	app := setupApp(makeDeps(t))

	req := httptest.NewRequest("GET", "/v1/orchards/216269/missing-trees", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result handler.MissingTreesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.OrchardID != 216269 || result.SurveyID != 9001 {
		t.Errorf("unexpected ids: %+v", result)
	}
	if result.TreeCount != 24 {
		t.Errorf("expected 24 trees, got %d", result.TreeCount)
	}
	if len(result.MissingTrees) != 1 {
		t.Fatalf("expected 1 missing tree, got %d", len(result.MissingTrees))
	}

	want := geoAt(t, 8, 8)
	got := result.MissingTrees[0]
	if math.Abs(got.Lat-want.Lat) > 1e-9 || math.Abs(got.Lng-want.Lon) > 1e-9 {
		t.Errorf("expected missing tree at %+v, got %+v", want, got)
	}
	if result.Pagination.Total != 1 {
		t.Errorf("expected total 1, got %d", result.Pagination.Total)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=300" {
		t.Errorf("unexpected Cache-Control %q", cc)
	}
}

func TestMissingTrees_RawKeys(t *testing.T) {
	app := setupApp(makeDeps(t))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/orchards/5/missing-trees", nil), -1)
	body := string(readBody(t, resp.Body))
	if !strings.Contains(body, `"lng":`) || strings.Contains(body, `"lon":`) {
		t.Errorf("expected lat/lng keys, got %s", body)
	}
}

func TestMissingTrees_GeoJSON(t *testing.T) {
	app := setupApp(makeDeps(t))

	req := httptest.NewRequest("GET", "/v1/orchards/5/missing-trees?format=geojson", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/geo+json") {
		t.Errorf("unexpected Content-Type %q", ct)
	}

	var fc struct {
		Type      string `json:"type"`
		OrchardID int64  `json:"orchard_id"`
		Features  []struct {
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		t.Fatal(err)
	}
	if fc.Type != "FeatureCollection" || fc.OrchardID != 5 {
		t.Errorf("unexpected collection: %+v", fc)
	}
	if len(fc.Features) != 1 || fc.Features[0].Geometry.Type != "Point" {
		t.Fatalf("expected one point feature, got %+v", fc.Features)
	}
	want := geoAt(t, 8, 8)
	if c := fc.Features[0].Geometry.Coordinates; math.Abs(c[0]-want.Lon) > 1e-9 || math.Abs(c[1]-want.Lat) > 1e-9 {
		t.Errorf("GeoJSON coordinates must be lon,lat; got %v", c)
	}
}

func TestMissingTrees_BadFormat(t *testing.T) {
	app := setupApp(makeDeps(t))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/orchards/5/missing-trees?format=kml", nil), -1)
	if resp.StatusCode != 400 {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestMissingTrees_BadFormatSkipsRecompute(t *testing.T) {
	provider := gridProvider(t)
	app := setupApp(makeDeps(t, func(d *handler.Dependencies) {
		d.Imputation = newImputation(t, provider)
	}))

	for _, target := range []string{
		"/v1/orchards/5/missing-trees?refresh=true&format=kml",
		"/v1/orchards/5/missing-trees?refresh=true&limit=-1",
	} {
		resp, _ := app.Test(httptest.NewRequest("GET", target, nil), -1)
		if resp.StatusCode != 400 {
			t.Errorf("%s: expected 400, got %d", target, resp.StatusCode)
		}
	}
	if provider.calls != 0 {
		t.Errorf("expected no survey fetch for rejected requests, got %d", provider.calls)
	}
}

func TestMissingTrees_InvalidID(t *testing.T) {
	app := setupApp(makeDeps(t))

	for _, id := range []string{"abc", "0", "-4"} {
		resp, _ := app.Test(httptest.NewRequest("GET", "/v1/orchards/"+id+"/missing-trees", nil), -1)
		if resp.StatusCode != 400 {
			t.Errorf("id %q: expected 400, got %d", id, resp.StatusCode)
			continue
		}
		if e := decodeError(t, resp.Body); e.Code != "bad_request" {
			t.Errorf("id %q: expected bad_request, got %q", id, e.Code)
		}
	}
}

func TestMissingTrees_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", fmt.Errorf("orchard 5: %w", domain.ErrOrchardNotFound), 404, "not_found"},
		{"upstream", fmt.Errorf("survey api: %w", domain.ErrUpstream), 502, "upstream_error"},
		{"malformed", fmt.Errorf("polygon: %w", domain.ErrMalformedSurvey), 422, "unprocessable"},
		{"other", errors.New("boom"), 500, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mockProvider{fetchFn: func(ctx context.Context, id int64) (*domain.OrchardSurvey, error) {
				return nil, tt.err
			}}
			app := setupApp(makeDeps(t, func(d *handler.Dependencies) {
				d.Imputation = newImputation(t, provider)
			}))

			resp, _ := app.Test(httptest.NewRequest("GET", "/v1/orchards/5/missing-trees", nil), -1)
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			e := decodeError(t, resp.Body)
			if e.Code != tt.code || e.Status != tt.status {
				t.Errorf("unexpected error body %+v", e)
			}
			if e.RequestID == "" {
				t.Error("expected request_id in error body")
			}
		})
	}
}

func TestMissingTrees_Refresh(t *testing.T) {
	provider := gridProvider(t)
	app := setupApp(makeDeps(t, func(d *handler.Dependencies) {
		d.Imputation = newImputation(t, provider)
	}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/orchards/5/missing-trees?refresh=true", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("expected no-store, got %q", cc)
	}
	if provider.calls != 1 {
		t.Errorf("expected one survey fetch, got %d", provider.calls)
	}
}

func TestMissingTrees_Pagination(t *testing.T) {
	app := setupApp(makeDeps(t))

	req := httptest.NewRequest("GET", "/v1/orchards/5/missing-trees?offset=1&limit=1", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result handler.MissingTreesResponse
	json.NewDecoder(resp.Body).Decode(&result)
	if len(result.MissingTrees) != 0 {
		t.Errorf("expected empty page, got %d", len(result.MissingTrees))
	}
	if result.MissingTrees == nil {
		t.Error("expected [] rather than null")
	}
	if result.Pagination.Offset != 1 || result.Pagination.Total != 1 {
		t.Errorf("unexpected pagination %+v", result.Pagination)
	}

	link := resp.Header.Get("Link")
	if !strings.Contains(link, `rel="first"`) || !strings.Contains(link, `rel="prev"`) {
		t.Errorf("unexpected Link header %q", link)
	}
	if strings.Contains(link, `rel="next"`) {
		t.Errorf("unexpected next link in %q", link)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/v1/orchards/5/missing-trees?limit=0", nil), -1)
	if resp.StatusCode != 400 {
		t.Errorf("expected 400 for limit=0, got %d", resp.StatusCode)
	}
}

func TestMissingTrees_LegacyRoute(t *testing.T) {
	app := setupApp(makeDeps(t))

	resp, _ := app.Test(httptest.NewRequest("GET", "/orchards/216269/missing-trees", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Deprecation") != "true" {
		t.Error("expected Deprecation header")
	}
	if resp.Header.Get("Sunset") == "" {
		t.Error("expected Sunset header")
	}
	if link := resp.Header.Get("Link"); !strings.Contains(link, "</v1/orchards/216269/missing-trees>") {
		t.Errorf("expected successor link, got %q", link)
	}
}

func TestMissingTrees_ETag(t *testing.T) {
	cache := &mockCache{data: map[string][]byte{}}
	app := setupApp(makeDeps(t, func(d *handler.Dependencies) {
		d.Imputation = newImputation(t, gridProvider(t), usecases.WithCache(cache, 60))
	}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/orchards/5/missing-trees", nil), -1)
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag")
	}

	req := httptest.NewRequest("GET", "/v1/orchards/5/missing-trees", nil)
	req.Header.Set("If-None-Match", etag)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 304 {
		t.Errorf("expected 304, got %d", resp.StatusCode)
	}
}

// ---- Plot download ----

func TestPlotDownload_Success(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	app := setupApp(makeDeps(t, func(d *handler.Dependencies) {
		d.Plots = &mockPlotStore{loadFn: func(ctx context.Context, id int64) ([]byte, error) {
			if id != 42 {
				t.Errorf("unexpected orchard %d", id)
			}
			return png, nil
		}}
	}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/orchards/42/plot/download", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, `filename="plot_42.png"`) {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	if string(readBody(t, resp.Body)) != string(png) {
		t.Error("body mismatch")
	}
}

func TestPlotDownload_NotFound(t *testing.T) {
	app := setupApp(makeDeps(t, func(d *handler.Dependencies) {
		d.Plots = &mockPlotStore{}
	}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/orchards/42/plot/download", nil), -1)
	if resp.StatusCode != 404 {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestPlotDownload_Disabled(t *testing.T) {
	app := setupApp(makeDeps(t))

	resp, _ := app.Test(httptest.NewRequest("GET", "/orchards/42/plot/download", nil), -1)
	if resp.StatusCode != 404 {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

// ---- Runs ----

func TestRuns_Success(t *testing.T) {
	repo := &mockRunRepo{listFn: func(ctx context.Context, id int64, limit int) ([]domain.ImputationRun, error) {
		if limit != 5 {
			t.Errorf("expected limit 5, got %d", limit)
		}
		return []domain.ImputationRun{
			{ID: "r2", OrchardID: id, CreatedAt: time.Now()},
			{ID: "r1", OrchardID: id, CreatedAt: time.Now().Add(-time.Hour)},
		}, nil
	}}
	app := setupApp(makeDeps(t, func(d *handler.Dependencies) {
		d.Imputation = newImputation(t, gridProvider(t), usecases.WithRunRepository(repo))
	}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/orchards/7/runs?limit=5", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result struct {
		OrchardID int64                  `json:"orchard_id"`
		Runs      []domain.ImputationRun `json:"runs"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if result.OrchardID != 7 || len(result.Runs) != 2 || result.Runs[0].ID != "r2" {
		t.Errorf("unexpected runs %+v", result)
	}
}

func TestRuns_BadLimit(t *testing.T) {
	app := setupApp(makeDeps(t))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/orchards/7/runs?limit=500", nil), -1)
	if resp.StatusCode != 400 {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

// ---- GraphQL ----

func TestGraphQL_MissingTrees(t *testing.T) {
	app := setupApp(makeDeps(t))

	body := `{"query":"{ missingTrees(orchardId: 216269) { orchard_id tree_count missing_count missing_trees { lat lng } } }"}`
	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			MissingTrees struct {
				OrchardID    int64 `json:"orchard_id"`
				TreeCount    int   `json:"tree_count"`
				MissingCount int   `json:"missing_count"`
				MissingTrees []struct {
					Lat float64 `json:"lat"`
					Lng float64 `json:"lng"`
				} `json:"missing_trees"`
			} `json:"missingTrees"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("graphql errors: %v", result.Errors)
	}
	mt := result.Data.MissingTrees
	if mt.OrchardID != 216269 || mt.TreeCount != 24 || mt.MissingCount != 1 || len(mt.MissingTrees) != 1 {
		t.Errorf("unexpected result %+v", mt)
	}
}

func TestGraphQL_EmptyQuery(t *testing.T) {
	app := setupApp(makeDeps(t))

	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

// ---- Health ----

func TestHealth_Returns200(t *testing.T) {
	app := setupApp(makeDeps(t, func(d *handler.Dependencies) { d.Version = "1.2.3" }))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(readBody(t, resp.Body)), `"version":"1.2.3"`) {
		t.Error("expected version in body")
	}
	if v := resp.Header.Get("X-API-Version"); v != "1.0.0" {
		t.Errorf("expected X-API-Version 1.0.0, got %q", v)
	}
}

func TestReady(t *testing.T) {
	app := setupApp(makeDeps(t))
	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
	if resp.StatusCode != 200 {
		t.Errorf("expected 200 with optional dependencies missing, got %d", resp.StatusCode)
	}

	app = setupApp(&handler.Dependencies{})
	resp, _ = app.Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
	if resp.StatusCode != 503 {
		t.Errorf("expected 503 without imputation service, got %d", resp.StatusCode)
	}
}

func TestRateLimit(t *testing.T) {
	app := setupApp(makeDeps(t, func(d *handler.Dependencies) { d.RateLimit = 2 }))

	var last int
	for i := 0; i < 3; i++ {
		resp, _ := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
		last = resp.StatusCode
	}
	if last != 429 {
		t.Errorf("expected 429 after limit, got %d", last)
	}
}

// TestAccessLogMiddleware verifies structured access logging is emitted.
func TestAccessLogMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(handler.AccessLogMiddleware())
	app.Get("/test/:id", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	})

	req := httptest.NewRequest("GET", "/test/9", nil)
	req.Header.Set("X-Request-ID", "test-req-123")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if body := readBody(t, resp.Body); !strings.Contains(string(body), "ok") {
		t.Errorf("expected response body to contain 'ok', got %s", string(body))
	}
}
