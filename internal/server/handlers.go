package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/headline-goat/launch-goat/internal/analysis"
	"github.com/headline-goat/launch-goat/internal/bayes"
	"github.com/headline-goat/launch-goat/internal/config"
	"github.com/headline-goat/launch-goat/internal/dataset"
	"github.com/headline-goat/launch-goat/internal/health"
	"github.com/headline-goat/launch-goat/internal/provider"
	"github.com/headline-goat/launch-goat/internal/report"
	"github.com/headline-goat/launch-goat/internal/sequential"
	"github.com/headline-goat/launch-goat/internal/store"
)

// errBadRequest marks request-shape failures detected by the handlers.
var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(report.Sanitize(v))
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Status: "error", Detail: detail})
}

// statusFor maps an error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, analysis.ErrInvalidArgument),
		errors.Is(err, sequential.ErrInvalidArgument),
		errors.Is(err, config.ErrInvalid),
		errors.Is(err, health.ErrInvalidSplit),
		errors.Is(err, dataset.ErrMalformed),
		errors.Is(err, dataset.ErrUnsupportedFormat),
		errors.Is(err, provider.ErrInvalid),
		errors.Is(err, bayes.ErrInvalidArm):
		return http.StatusBadRequest
	case errors.Is(err, provider.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, provider.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, provider.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, provider.ErrUpstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, status, "Internal Server Error")
		return
	}
	writeError(w, status, err.Error())
}

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	DBSizeBytes      int64  `json:"db_size_bytes"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	exps, err := s.store.ListExperiments(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp.ExperimentsCount = len(exps)

	if dbs, ok := s.store.(interface{ DB() *sql.DB }); ok {
		row := dbs.DB().QueryRowContext(r.Context(), "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
		if err := row.Scan(&resp.DBSizeBytes); err != nil {
			s.log.Debug("failed to read database size", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// BeaconRequest is one tracking event from a client.
type BeaconRequest struct {
	Experiment string  `json:"x"`
	Variant    int     `json:"v"`
	Kind       string  `json:"k"`
	VisitorID  string  `json:"vid"`
	Value      float64 `json:"val"`
	// Variants auto-creates the experiment on first sight.
	Variants []string `json:"variants"`
}

func (s *Server) handleBeacon(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}

	var req BeaconRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Experiment == "" || req.VisitorID == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if err := store.ValidateKind(req.Kind); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid event kind")
		return
	}

	ctx := r.Context()
	exp, err := s.store.GetExperiment(ctx, req.Experiment)
	if errors.Is(err, store.ErrNotFound) && len(req.Variants) >= 2 {
		exp, err = s.store.CreateExperiment(ctx, req.Experiment, req.Variants, nil, "")
		if err == nil {
			s.log.Info("experiment auto-created", zap.String("experiment", req.Experiment))
		}
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "Experiment not found")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if req.Variant < 0 || req.Variant >= len(exp.Variants) {
		writeError(w, http.StatusBadRequest, "Invalid variant")
		return
	}
	if exp.State != store.StateRunning {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := s.store.RecordEvent(ctx, req.Experiment, req.Variant, req.Kind, req.VisitorID, req.Value); err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.beaconEvents.WithLabelValues(kindLabel(req.Kind)).Inc()

	w.WriteHeader(http.StatusNoContent)
}

// kindLabel keeps metric label cardinality bounded.
func kindLabel(kind string) string {
	switch kind {
	case store.KindExposure, store.KindConversion:
		return kind
	}
	prefix, _, _ := strings.Cut(kind, ":")
	return prefix
}
