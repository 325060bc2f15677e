package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/headline-goat/launch-goat/internal/provider"
	"github.com/headline-goat/launch-goat/internal/report"
	"github.com/headline-goat/launch-goat/internal/store"
)

// Options configure a Server.
type Options struct {
	Port int
	// TokenFile receives the dashboard token on start.
	TokenFile string
	// Token overrides the generated dashboard token.
	Token    string
	CacheTTL time.Duration
}

type Server struct {
	store     store.Store
	analyzer  *report.Analyzer
	providers *provider.Registry
	cache     provider.Cache
	opts      Options
	token     string
	log       *zap.Logger
	metrics   *metrics
	router    chi.Router
	startTime time.Time
}

func New(s store.Store, an *report.Analyzer, reg *provider.Registry, cache provider.Cache, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if reg == nil {
		reg = provider.NewRegistry()
	}
	if cache == nil {
		cache = provider.NewMemoryCache()
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	token := opts.Token
	if token == "" {
		token = generateToken()
	}

	srv := &Server{
		store:     s,
		analyzer:  an,
		providers: reg,
		cache:     cache,
		opts:      opts,
		token:     token,
		log:       log,
		metrics:   newMetrics(),
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	// Public endpoints
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.metrics.handler().ServeHTTP)
	r.Get("/lg.js", s.handleGlobalJS)
	r.Options("/b", s.handleBeacon)
	r.Post("/b", s.handleBeacon)

	r.Route("/api", func(r chi.Router) {
		r.Post("/health-check", s.handleHealthCheck)
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/continuous-metrics", s.handleContinuous)
		r.Post("/bayesian-analysis", s.handleBayesian)
		r.Post("/sequential", s.handleSequential)
		r.Post("/power", s.handlePower)
		r.Post("/decision-memo", s.handleDecisionMemo)

		r.Route("/integrations/{provider}", func(r chi.Router) {
			r.Use(requireIntegrationKey)
			r.Get("/experiments", s.handleListExperiments)
			r.Get("/experiments/{id}/analyze", s.handleAnalyzeExperiment)
		})
	})

	// Dashboard endpoints (protected)
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/dashboard/experiments/{name}", s.handleDashboardExperiment)
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if s.opts.TokenFile != "" {
		if err := os.WriteFile(s.opts.TokenFile, []byte(s.token), 0600); err != nil {
			s.log.Warn("failed to write token file", zap.String("path", s.opts.TokenFile), zap.Error(err))
		}
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", zap.Int("port", s.opts.Port))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("shutting down")
	return httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Port() int {
	return s.opts.Port
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func generateToken() string {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a simple token if crypto/rand fails
		return "a1b2c3d4"
	}
	return hex.EncodeToString(bytes)
}
