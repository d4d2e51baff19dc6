package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/casegest/internal/analysis"
	"github.com/dgallion1/casegest/internal/blobstore"
	"github.com/dgallion1/casegest/internal/config"
	"github.com/dgallion1/casegest/internal/crossref"
	"github.com/dgallion1/casegest/internal/metrics"
	"github.com/dgallion1/casegest/internal/pathstore"
	"github.com/dgallion1/casegest/internal/pipeline"
	"github.com/dgallion1/casegest/internal/store"
)

// Deps are the services the HTTP API fronts. Exporter and Metrics may be nil.
type Deps struct {
	Store        store.Store
	Notifier     store.Notifier
	Blobs        blobstore.Blobs
	Orchestrator *pipeline.Orchestrator
	Processor    *analysis.Processor
	Finder       *crossref.Finder
	Exporter     *pathstore.Exporter
	Metrics      *metrics.Metrics
}

// Server is the HTTP API server for casegest.
type Server struct {
	router chi.Router
	deps   Deps
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		deps: deps,
		log:  log,
		cfg:  cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))
	r.Use(Instrument(s.deps.Metrics))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Route("/api/documents", func(r chi.Router) {
			r.Post("/", s.handleUpload)
			r.Get("/", s.handleListDocuments)
			r.Route("/{docID}", func(r chi.Router) {
				r.Get("/", s.handleGetDocument)
				r.Delete("/", s.handleDeleteDocument)
				r.Post("/process", s.handleProcess)
				r.Get("/analysis", s.handleGetAnalysis)
				r.Get("/timeline", s.handleGetTimeline)
			})
		})
		r.Get("/api/jobs/{jobID}/status", s.handleJobStatus)

		r.Post("/api/analyze", s.handleAnalyze)
		r.Post("/api/crossrefs", s.handleCrossRefs)

		r.Get("/api/events", s.handleEvents)
		r.Get("/api/stats/processing", s.handleProcessingStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
