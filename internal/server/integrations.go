package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/headline-goat/launch-goat/internal/provider"
	"github.com/headline-goat/launch-goat/internal/report"
)

func (s *Server) providerFromRequest(r *http.Request) (provider.Provider, error) {
	name := chi.URLParam(r, "provider")
	return s.providers.Get(name, r.Header.Get(integrationKeyHeader))
}

// outcome labels a provider error for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, provider.ErrNotFound):
		return "not_found"
	case errors.Is(err, provider.ErrAuth):
		return "auth"
	case errors.Is(err, provider.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, provider.ErrInvalid):
		return "invalid"
	}
	return "error"
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	p, err := s.providerFromRequest(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	exps, err := p.ListExperiments(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if exps == nil {
		exps = []provider.Experiment{}
	}
	writeJSON(w, http.StatusOK, exps)
}

type integrationAnalysisResponse struct {
	Status       string         `json:"status"`
	ExperimentID string         `json:"experiment_id"`
	Provider     string         `json:"provider"`
	Report       *report.Report `json:"report"`
}

func (s *Server) handleAnalyzeExperiment(w http.ResponseWriter, r *http.Request) {
	p, err := s.providerFromRequest(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")

	ctx := r.Context()
	res, err := s.fetch(ctx, p, r.Header.Get(integrationKeyHeader), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	opts, err := runOptions(r, "")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if opts.Name == "" {
		opts.Name = id
	}
	if sp, ok := p.(provider.Splitter); ok && opts.Split == nil {
		split, err := sp.ExpectedSplit(ctx, id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		opts.Split = split
	}

	rep, err := s.run(ctx, res.ToTable(), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, integrationAnalysisResponse{
		Status:       "success",
		ExperimentID: id,
		Provider:     p.Name(),
		Report:       rep,
	})
}

// fetch reads and validates an experiment through the result cache.
func (s *Server) fetch(ctx context.Context, p provider.Provider, apiKey, id string) (provider.Result, error) {
	res, err := provider.NewCached(p, apiKey, s.cache, s.opts.CacheTTL, s.log).FetchExperiment(ctx, id)
	if err == nil {
		err = res.Validate()
	}
	s.metrics.providerFetches.WithLabelValues(p.Name(), outcome(err)).Inc()
	if err != nil {
		s.log.Info("provider fetch failed",
			zap.String("provider", p.Name()),
			zap.String("experiment", id),
			zap.Error(err))
		return provider.Result{}, err
	}
	return res, nil
}
