package aerobotics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"github.com/samirrijal/orchardgap/internal/core/domain"
)

// maxPages bounds pagination against a misbehaving next link.
const maxPages = 1000

// Config configures the client.
type Config struct {
	BaseURL        string
	AuthToken      string
	Timeout        time.Duration
	RequestsPerSec float64
	PageSize       int
}

// Client implements ports.SurveyProvider against the Aerobotics farming API.
type Client struct {
	base    *url.URL
	token   string
	timeout time.Duration
	page    int
	http    *fasthttp.Client
	limiter *rate.Limiter
}

// New creates a new Client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("aerobotics base url %q is not absolute", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 5
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}

	return &Client{
		base:    base,
		token:   cfg.AuthToken,
		timeout: cfg.Timeout,
		page:    cfg.PageSize,
		http: &fasthttp.Client{
			Name:                "orchardgap",
			MaxConnsPerHost:     16,
			MaxIdleConnDuration: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
	}, nil
}

// FetchOrchardSurvey returns the first survey listed for the orchard with
// all of its trees.
func (c *Client) FetchOrchardSurvey(ctx context.Context, orchardID int64) (*domain.OrchardSurvey, error) {
	sv, err := c.latestSurvey(ctx, orchardID)
	if err != nil {
		return nil, err
	}

	boundary, err := ParsePolygon(sv.Polygon)
	if err != nil {
		return nil, fmt.Errorf("survey %d: %w", sv.ID, err)
	}

	trees, err := c.treeSurveys(ctx, sv.ID)
	if err != nil {
		return nil, err
	}

	slog.Debug("survey fetched", "orchard_id", orchardID, "survey_id", sv.ID, "trees", len(trees))
	return &domain.OrchardSurvey{
		OrchardID: orchardID,
		SurveyID:  sv.ID,
		Date:      sv.Date,
		Hectares:  sv.Hectares,
		Boundary:  boundary,
		Trees:     trees,
	}, nil
}

// LatestSurveyID returns the identifier of the survey FetchOrchardSurvey
// would use, without downloading its trees.
func (c *Client) LatestSurveyID(ctx context.Context, orchardID int64) (int64, error) {
	sv, err := c.latestSurvey(ctx, orchardID)
	if err != nil {
		return 0, err
	}
	return sv.ID, nil
}

func (c *Client) latestSurvey(ctx context.Context, orchardID int64) (survey, error) {
	q := url.Values{"orchard_id": {strconv.FormatInt(orchardID, 10)}}
	var surveys page[survey]
	if err := c.getJSON(ctx, c.resolve("farming/surveys/", q), &surveys); err != nil {
		return survey{}, fmt.Errorf("list surveys: %w", err)
	}
	if len(surveys.Results) == 0 {
		return survey{}, fmt.Errorf("%w: no surveys for orchard %d", domain.ErrOrchardNotFound, orchardID)
	}
	return surveys.Results[0], nil
}

func (c *Client) treeSurveys(ctx context.Context, surveyID int64) ([]domain.TreeObservation, error) {
	next := c.resolve(fmt.Sprintf("farming/surveys/%d/tree_surveys/", surveyID),
		url.Values{"limit": {strconv.Itoa(c.page)}})

	var trees []domain.TreeObservation
	for pages := 0; next != ""; pages++ {
		if pages == maxPages {
			return nil, fmt.Errorf("%w: tree surveys of survey %d exceed %d pages", domain.ErrUpstream, surveyID, maxPages)
		}
		var p page[treeSurvey]
		if err := c.getJSON(ctx, next, &p); err != nil {
			return nil, fmt.Errorf("tree surveys of survey %d: %w", surveyID, err)
		}
		if trees == nil && p.Count > 0 {
			trees = make([]domain.TreeObservation, 0, min(p.Count, maxPages*c.page))
		}
		for _, t := range p.Results {
			trees = append(trees, domain.TreeObservation{
				Location:   domain.GeoPoint{Lat: t.Lat, Lon: t.Lng},
				CanopyArea: t.Area,
			})
		}
		next = ""
		if p.Next != nil && *p.Next != "" {
			var err error
			if next, err = c.sameOrigin(*p.Next); err != nil {
				return nil, fmt.Errorf("tree surveys of survey %d: %w", surveyID, err)
			}
		}
	}
	return trees, nil
}

// sameOrigin resolves a pagination link against the base URL. Links to any
// other scheme or host are refused since every request carries the token.
func (c *Client) sameOrigin(link string) (string, error) {
	u, err := c.base.Parse(link)
	if err != nil {
		return "", fmt.Errorf("%w: next link %q: %v", domain.ErrUpstream, redact(link), err)
	}
	if !strings.EqualFold(u.Scheme, c.base.Scheme) || !strings.EqualFold(u.Host, c.base.Host) {
		return "", fmt.Errorf("%w: next link %s leaves %s://%s",
			domain.ErrUpstream, redact(u.String()), c.base.Scheme, c.base.Host)
	}
	return u.String(), nil
}

func (c *Client) resolve(path string, q url.Values) string {
	u := c.base.ResolveReference(&url.URL{Path: path})
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, uri string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%w: GET %s: %v", domain.ErrUpstream, redact(uri), err)
	}

	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusNotFound:
		return fmt.Errorf("%w: GET %s returned 404", domain.ErrOrchardNotFound, redact(uri))
	case status < 200 || status > 299:
		return fmt.Errorf("%w: GET %s returned %d", domain.ErrUpstream, redact(uri), status)
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrMalformedSurvey, redact(uri), err)
	}
	return nil
}

// redact drops the query string from a URI for logs and errors.
func redact(uri string) string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i]
	}
	return uri
}
