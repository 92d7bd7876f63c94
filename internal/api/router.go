// Package api is the thin HTTP surface over the analysis pipeline: start a
// run, poll its state, stream its progress events over SSE.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sitegrader/sitegrader/internal/domain"
	"github.com/sitegrader/sitegrader/pkg/httputil"
)

// Analyzer is the pipeline entry point the API fronts.
type Analyzer interface {
	Analyze(ctx context.Context, targetURL string, company domain.Company, opts domain.RunOptions, onProgress domain.ProgressFunc) (*domain.AnalysisResult, error)
}

// RouterConfig wires the router.
type RouterConfig struct {
	Analyzer   Analyzer
	Logger     *zap.Logger
	EnableCORS bool

	// RunTimeout bounds background runs started over HTTP.
	RunTimeout time.Duration
}

// Server holds the HTTP surface state.
type Server struct {
	analyzer   Analyzer
	runs       *runRegistry
	logger     *zap.Logger
	runTimeout time.Duration
}

// NewRouter builds the chi router.
func NewRouter(cfg RouterConfig) http.Handler {
	s := &Server{
		analyzer:   cfg.Analyzer,
		runs:       newRunRegistry(),
		logger:     cfg.Logger,
		runTimeout: cfg.RunTimeout,
	}
	if s.runTimeout == 0 {
		s.runTimeout = 20 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(cfg.Logger))

	if cfg.EnableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/audits", s.startAudit)
		r.Get("/audits/{id}", s.getAudit)
		r.Get("/audits/{id}/events", s.streamEvents)
		r.Post("/audits/{id}/cancel", s.cancelAudit)
	})

	return r
}

type startAuditRequest struct {
	TargetURL string          `json:"target_url"`
	Company   domain.Company  `json:"company"`
	Options   *auditOptions   `json:"options,omitempty"`
}

type auditOptions struct {
	MaxPagesPerModule      int  `json:"max_pages_per_module,omitempty"`
	PageTimeoutMS          int  `json:"page_timeout_ms,omitempty"`
	EnableCrossPageContext bool `json:"enable_cross_page_context"`
	EnableBenchmarkContext bool `json:"enable_benchmark_context"`
	EnableDebug            bool `json:"enable_debug"`
}

func (s *Server) startAudit(w http.ResponseWriter, r *http.Request) {
	var req startAuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	if req.TargetURL == "" || req.Company.Name == "" {
		httputil.BadRequest(w, "target_url and company.name are required")
		return
	}

	opts := domain.DefaultRunOptions()
	if req.Options != nil {
		if req.Options.MaxPagesPerModule > 0 {
			opts.MaxPagesPerModule = req.Options.MaxPagesPerModule
		}
		if req.Options.PageTimeoutMS > 0 {
			opts.PageTimeout = time.Duration(req.Options.PageTimeoutMS) * time.Millisecond
		}
		opts.EnableCrossPageContext = req.Options.EnableCrossPageContext
		opts.EnableBenchmarkContext = req.Options.EnableBenchmarkContext
		opts.DebugEnabled = req.Options.EnableDebug
	}

	runCtx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	state := s.runs.create(cancel)

	go func() {
		defer cancel()
		result, err := s.analyzer.Analyze(runCtx, req.TargetURL, req.Company, opts, state.publish)
		if err != nil {
			s.logger.Warn("audit run rejected", zap.String("run", state.ID), zap.Error(err))
			state.finish(domain.StatusFailed, &domain.AnalysisResult{Status: domain.StatusFailed, Reason: err.Error()})
			return
		}
		state.finish(result.Status, result)
	}()

	httputil.JSON(w, http.StatusAccepted, map[string]string{"id": state.ID})
}

func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	state, ok := s.runs.get(chi.URLParam(r, "id"))
	if !ok {
		httputil.NotFound(w, "audit not found")
		return
	}
	httputil.JSON(w, http.StatusOK, state)
}

func (s *Server) cancelAudit(w http.ResponseWriter, r *http.Request) {
	state, ok := s.runs.get(chi.URLParam(r, "id"))
	if !ok {
		httputil.NotFound(w, "audit not found")
		return
	}
	state.cancel()
	httputil.JSON(w, http.StatusOK, map[string]string{"id": state.ID, "status": "cancelling"})
}

// streamEvents serves the run's progress as server-sent events: the backlog
// first, then live events until the run finishes or the client disconnects.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	state, ok := s.runs.get(chi.URLParam(r, "id"))
	if !ok {
		httputil.NotFound(w, "audit not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.BadRequest(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	backlog, live, unsubscribe := state.subscribe()
	defer unsubscribe()

	writeEvent := func(e domain.ProgressEvent) bool {
		data, err := json.Marshal(e)
		if err != nil {
			return true
		}
		if _, err := fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	for _, e := range backlog {
		if !writeEvent(e) {
			return
		}
	}
	if live == nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-live:
			if !ok {
				return
			}
			if !writeEvent(e) {
				return
			}
		}
	}
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
