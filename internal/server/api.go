package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/headline-goat/launch-goat/internal/analysis"
	"github.com/headline-goat/launch-goat/internal/bayes"
	"github.com/headline-goat/launch-goat/internal/dataset"
	"github.com/headline-goat/launch-goat/internal/decision"
	"github.com/headline-goat/launch-goat/internal/health"
	"github.com/headline-goat/launch-goat/internal/memo"
	"github.com/headline-goat/launch-goat/internal/report"
	"github.com/headline-goat/launch-goat/internal/sequential"
)

const maxUploadBytes = 32 << 20

// readUpload reads a dataset from a multipart "file" field or, failing
// that, from the raw body. The file name picks CSV or XLSX.
func readUpload(w http.ResponseWriter, r *http.Request) (*dataset.Table, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, "", fmt.Errorf("%w: %w", errBadRequest, err)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			return nil, "", fmt.Errorf("%w: file field is required", errBadRequest)
		}
		defer f.Close()

		t, err := dataset.Parse(hdr.Filename, f)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", errBadRequest, err)
		}
		return t, hdr.Filename, nil
	}

	name := "upload.csv"
	if strings.Contains(ct, "spreadsheetml") {
		name = "upload.xlsx"
	}
	t, err := dataset.Parse(name, r.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return t, "", nil
}

// runOptions reads name, guardrails, split and bayesian from the query.
func runOptions(r *http.Request, filename string) (report.Options, error) {
	q := r.URL.Query()
	opts := report.Options{
		Name:         q.Get("name"),
		Guardrails:   splitList(q.Get("guardrails")),
		SkipBayesian: q.Get("bayesian") == "false",
	}
	if opts.Name == "" && filename != "" {
		opts.Name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	for _, raw := range splitList(q.Get("split")) {
		w, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return report.Options{}, fmt.Errorf("%w: invalid split weight %q", errBadRequest, raw)
		}
		opts.Split = append(opts.Split, w)
	}
	return opts, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// run executes an analysis and records it.
func (s *Server) run(ctx context.Context, t *dataset.Table, opts report.Options) (*report.Report, error) {
	start := time.Now()
	rep, err := s.analyzer.Run(ctx, t, opts)
	if err != nil {
		return nil, err
	}
	s.metrics.analysisLatency.WithLabelValues(rep.Mode).Observe(time.Since(start).Seconds())
	s.metrics.analyses.WithLabelValues(rep.Mode, string(rep.Decision.Decision)).Inc()
	return rep, nil
}

type healthCheckResponse struct {
	Status   string              `json:"status"`
	Result   health.Result       `json:"result"`
	Preview  []map[string]string `json:"preview"`
	Columns  []string            `json:"columns"`
	Filename string              `json:"filename,omitempty"`
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	t, filename, err := readUpload(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	opts, err := runOptions(r, filename)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := health.RunHealthCheck(t, opts.Split, s.analyzer.Thresholds())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	preview := make([]map[string]string, 0, 5)
	for i := 0; i < len(t.Rows) && i < 5; i++ {
		row := make(map[string]string, len(t.Columns))
		for _, c := range t.Columns {
			row[c], _ = t.Value(i, c)
		}
		preview = append(preview, row)
	}

	writeJSON(w, http.StatusOK, healthCheckResponse{
		Status:   "success",
		Result:   res,
		Preview:  preview,
		Columns:  t.Columns,
		Filename: filename,
	})
}

type analyzeResponse struct {
	Status string `json:"status"`
	*report.Report
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	t, filename, err := readUpload(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	opts, err := runOptions(r, filename)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rep, err := s.run(r.Context(), t, opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{Status: "success", Report: rep})
}

type blockedResponse struct {
	Status string        `json:"status"`
	Detail string        `json:"detail"`
	Health health.Result `json:"health"`
}

// uploadDataset reads an upload into a typed dataset once it passes the
// health check. A Blocked dataset is answered with 400 and ok is false.
func (s *Server) uploadDataset(w http.ResponseWriter, r *http.Request) (ds *dataset.Dataset, ok bool) {
	t, filename, err := readUpload(w, r)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	opts, err := runOptions(r, filename)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}

	hc, err := health.RunHealthCheck(t, opts.Split, s.analyzer.Thresholds())
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	if hc.OverallStatus == health.Blocked {
		writeJSON(w, http.StatusBadRequest, blockedResponse{
			Status: "blocked",
			Detail: "dataset failed the health check",
			Health: hc,
		})
		return nil, false
	}

	ds, err = dataset.New(t, opts.Guardrails)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return ds, true
}

func (s *Server) handleContinuous(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.uploadDataset(w, r)
	if !ok {
		return
	}
	results, err := analysis.AnalyzeContinuous(ds, s.analyzer.Thresholds())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if results == nil {
		results = []analysis.ContinuousResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "success",
		"continuous_results": results,
	})
}

func (s *Server) handleBayesian(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.uploadDataset(w, r)
	if !ok {
		return
	}
	if _, ok := ds.Control(); !ok {
		s.fail(w, r, fmt.Errorf("%w: dataset has no control variant", analysis.ErrInvalidArgument))
		return
	}
	insights, err := bayes.Analyze(ds, s.analyzer.Thresholds())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "success",
		"bayesian_insights": insights,
	})
}

type sequentialResponse struct {
	Status string `json:"status"`
	sequential.Analysis
}

func (s *Server) handleSequential(w http.ResponseWriter, r *http.Request) {
	var in sequential.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if in.Alpha == 0 {
		in.Alpha = s.analyzer.Thresholds().Alpha
	}
	if in.BoundaryType == "" {
		in.BoundaryType = sequential.OBrienFleming
	}
	if err := in.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := sequential.AnalyzeSequential(in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sequentialResponse{Status: "success", Analysis: res})
}

// Power metric types.
const (
	powerConversion = "conversion"
	powerContinuous = "continuous"
)

type powerRequest struct {
	MetricType string `json:"metric_type"`
	analysis.PowerRequest
}

type powerResponse struct {
	Status              string `json:"status"`
	MetricType          string `json:"metric_type"`
	ControlSampleSize   int64  `json:"control_sample_size"`
	TreatmentSampleSize int64  `json:"treatment_sample_size"`
	TotalSampleSize     int64  `json:"total_sample_size"`
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	req := powerRequest{MetricType: powerConversion, PowerRequest: analysis.DefaultPowerRequest()}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	var n int64
	var err error
	switch req.MetricType {
	case powerConversion:
		n, err = analysis.SampleSizeConversion(req.PowerRequest)
	case powerContinuous:
		n, err = analysis.SampleSizeContinuous(req.PowerRequest)
	default:
		err = fmt.Errorf("%w: metric_type must be conversion or continuous", errBadRequest)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	treatment := int64(math.Ceil(float64(n) * req.Ratio))
	writeJSON(w, http.StatusOK, powerResponse{
		Status:              "success",
		MetricType:          req.MetricType,
		ControlSampleSize:   n,
		TreatmentSampleSize: treatment,
		TotalSampleSize:     n + treatment,
	})
}

type memoResponse struct {
	Status       string          `json:"status"`
	Decision     decision.Result `json:"decision"`
	MemoMarkdown string          `json:"memo_markdown"`
	MemoHTML     string          `json:"memo_html"`
}

func (s *Server) handleDecisionMemo(w http.ResponseWriter, r *http.Request) {
	t, filename, err := readUpload(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	opts, err := runOptions(r, filename)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if name := r.FormValue("experiment_name"); name != "" {
		opts.Name = name
	}

	rep, err := s.run(r.Context(), t, opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	md := memo.Markdown(rep, time.Now())
	html, err := memo.HTML(md)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, memoResponse{
		Status:       "success",
		Decision:     rep.Decision,
		MemoMarkdown: md,
		MemoHTML:     html,
	})
}
