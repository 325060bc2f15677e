package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const DefaultGrowthBookURL = "https://api.growthbook.io/api/v1"

// GrowthBook reads experiments from the GrowthBook REST API.
type GrowthBook struct {
	baseURL string
	apiKey  string
	client  *http.Client
	retry   RetryPolicy
	log     *zap.Logger
}

type GrowthBookOption func(*GrowthBook)

func WithHTTPClient(c *http.Client) GrowthBookOption {
	return func(g *GrowthBook) { g.client = c }
}

func WithRetryPolicy(p RetryPolicy) GrowthBookOption {
	return func(g *GrowthBook) { g.retry = p }
}

func WithLogger(log *zap.Logger) GrowthBookOption {
	return func(g *GrowthBook) { g.log = log }
}

func NewGrowthBook(baseURL, apiKey string, opts ...GrowthBookOption) *GrowthBook {
	if baseURL == "" {
		baseURL = DefaultGrowthBookURL
	}
	g := &GrowthBook{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		retry:   DefaultRetryPolicy(),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GrowthBookFactory returns a Factory bound to baseURL.
func GrowthBookFactory(baseURL string, opts ...GrowthBookOption) Factory {
	return func(apiKey string) (Provider, error) {
		if apiKey == "" {
			return nil, newError("growthbook", ErrAuth, "missing API key")
		}
		return NewGrowthBook(baseURL, apiKey, opts...), nil
	}
}

func (g *GrowthBook) Name() string { return "growthbook" }

type gbExperiment struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Status      string           `json:"status"`
	DateUpdated string           `json:"dateUpdated"`
	Variations  []gbVariation    `json:"variations"`
	Results     []map[string]any `json:"results"`
}

type gbVariation struct {
	Name string `json:"name"`
}

func (g *GrowthBook) ListExperiments(ctx context.Context) ([]Experiment, error) {
	var body struct {
		Experiments []gbExperiment `json:"experiments"`
	}
	if err := g.get(ctx, "/experiments", &body); err != nil {
		return nil, err
	}

	out := make([]Experiment, 0, len(body.Experiments))
	for _, e := range body.Experiments {
		exp := Experiment{ID: e.ID, Name: e.Name, Status: e.Status, Provider: "growthbook"}
		if exp.Name == "" {
			exp.Name = "Unknown Experiment"
		}
		if exp.Status == "" {
			exp.Status = "unknown"
		}
		if ts, err := time.Parse(time.RFC3339, e.DateUpdated); err == nil {
			exp.LastUpdated = &ts
		}
		out = append(out, exp)
	}
	return out, nil
}

func (g *GrowthBook) FetchExperiment(ctx context.Context, id string) (Result, error) {
	var body struct {
		Experiment *gbExperiment `json:"experiment"`
	}
	if err := g.get(ctx, "/experiments/"+url.PathEscape(id), &body); err != nil {
		return Result{}, err
	}
	if body.Experiment == nil {
		return Result{}, newError("growthbook", ErrUpstream, "no experiment data in response")
	}

	exp := body.Experiment
	results := exp.Results
	if len(results) == 0 {
		if len(exp.Variations) == 0 {
			return Result{}, newError("growthbook", ErrUpstream, "no results or variations for experiment %s", id)
		}
		for i := range exp.Variations {
			results = append(results, map[string]any{"variationId": float64(i)})
		}
	}

	res := Result{ExperimentID: id, Variants: make([]Variant, 0, len(results))}
	for i, r := range results {
		idx := i
		if v, ok := r["variationId"].(float64); ok {
			idx = int(v)
		}
		name := strconv.Itoa(idx)
		if idx >= 0 && idx < len(exp.Variations) && exp.Variations[idx].Name != "" {
			name = exp.Variations[idx].Name
		}

		v := Variant{Name: name, Metrics: map[string]float64{}}
		for k, raw := range r {
			n, ok := raw.(float64)
			if !ok {
				continue
			}
			switch k {
			case "variationId":
			case "users":
				v.Users = int64(n)
			case "conversions":
				v.Conversions = int64(n)
			case "count":
				if _, has := r["conversions"]; !has {
					v.Conversions = int64(n)
				}
			default:
				v.Metrics[k] = n
			}
		}
		res.Variants = append(res.Variants, v)
	}
	return res, nil
}

func (g *GrowthBook) get(ctx context.Context, path string, out any) error {
	_, err := retry(ctx, g.retry, g.log, func() (struct{}, error) {
		return struct{}{}, g.doGet(ctx, path, out)
	})
	return err
}

func (g *GrowthBook) doGet(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return backoff.Permanent(newError("growthbook", ErrUpstream, "failed to build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(newError("growthbook", ErrUpstream, "request cancelled: %w", err))
		}
		return newError("growthbook", ErrUpstream, "connection error: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return backoff.Permanent(newError("growthbook", ErrAuth, "invalid GrowthBook API key"))
	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent(newError("growthbook", ErrNotFound, "resource not found: %s", path))
	case resp.StatusCode == http.StatusTooManyRequests:
		return newError("growthbook", ErrRateLimited, "HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return newError("growthbook", ErrUpstream, "HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return backoff.Permanent(newError("growthbook", ErrUpstream, "HTTP %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(newError("growthbook", ErrUpstream, "failed to decode response: %w", err))
	}
	return nil
}
