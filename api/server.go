package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docutag/enhancer/apperr"
	"github.com/docutag/enhancer/metrics"
	"github.com/docutag/enhancer/models"
)

const apiPrefix = "/api/v1"

// ArticleStore is the article persistence used by the REST handlers
type ArticleStore interface {
	CreateArticle(ctx context.Context, article *models.Article) error
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	ListArticles(ctx context.Context, filter models.ArticleFilter) ([]*models.Article, error)
	CountArticles(ctx context.Context, status models.ArticleStatus) (int, error)
	UpdateArticle(ctx context.Context, id string, upd models.ArticleUpdate) (*models.Article, error)
	DeleteArticle(ctx context.Context, id string) (*models.Article, error)
}

// Automation queues enhancement jobs and reports on them
type Automation interface {
	EnhanceAll(ctx context.Context) (*models.EnhanceAllResponse, error)
	EnhanceOne(ctx context.Context, articleID string) (*models.EnhanceOneResponse, error)
	JobStatus(ctx context.Context, jobID string) (*models.JobStatus, error)
}

// Ingester runs article ingestion on demand
type Ingester interface {
	ScrapeSource(ctx context.Context) (*models.ScrapeSourceResponse, error)
	ScrapeURL(ctx context.Context, rawURL string) (*models.ScrapeURLResponse, error)
}

// ArticleArchive removes the archived documents of a deleted article
type ArticleArchive interface {
	Delete(ctx context.Context, article *models.Article) error
}

// Server represents the API server
type Server struct {
	store      ArticleStore
	automation Automation
	ingest     Ingester
	archive    ArticleArchive
	metrics    *metrics.Metrics
	logger     *slog.Logger

	corsOrigin string
	mux        *http.ServeMux
	server     *http.Server
}

// Config contains server configuration
type Config struct {
	Addr       string
	CORSOrigin string // empty disables CORS headers
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:       ":3001",
		CORSOrigin: "http://localhost:5173",
	}
}

// Deps are the services behind the handlers. Archive, Metrics and UI may be nil.
type Deps struct {
	Store      ArticleStore
	Automation Automation
	Ingest     Ingester
	Archive    ArticleArchive
	Metrics    *metrics.Metrics
	UI         http.Handler // mounted at "/"
	Logger     *slog.Logger
}

// NewServer creates a new API server
func NewServer(config Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:      deps.Store,
		automation: deps.Automation,
		ingest:     deps.Ingest,
		archive:    deps.Archive,
		metrics:    deps.Metrics,
		logger:     logger,
		corsOrigin: config.CORSOrigin,
		mux:        http.NewServeMux(),
	}

	s.registerRoutes(deps.UI)

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // ingestion endpoints crawl synchronously
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes(ui http.Handler) {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", s.metrics.Handler())

	s.mux.HandleFunc(apiPrefix+"/articles", s.handleArticles)
	s.mux.HandleFunc(apiPrefix+"/articles/count", s.handleCount)
	s.mux.HandleFunc(apiPrefix+"/articles/{id}", s.handleArticle)

	s.mux.HandleFunc(apiPrefix+"/automation/enhance-all", s.handleEnhanceAll)
	s.mux.HandleFunc(apiPrefix+"/automation/enhance/{id}", s.handleEnhanceOne)
	s.mux.HandleFunc(apiPrefix+"/automation/jobs/{jobId}", s.handleJobStatus)
	s.mux.HandleFunc(apiPrefix+"/automation/scrape-source", s.handleScrapeSource)
	s.mux.HandleFunc(apiPrefix+"/automation/scrape-beyondchats", s.handleScrapeSource)
	s.mux.HandleFunc(apiPrefix+"/automation/scrape-url", s.handleScrapeURL)

	if ui != nil {
		s.mux.Handle("/", ui)
	}
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.middleware(s.mux), "enhancer-api")
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// statusRecorder captures the response code for logging and metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// middleware applies common middleware to all routes
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.corsOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		// Skip health and metrics endpoints to reduce noise
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			return
		}

		_, route := s.mux.Handler(r)
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveHTTP(r.Method, route, rec.status, elapsed)
		s.logger.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	count, err := s.store.CountArticles(r.Context(), "")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get count")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"count":  count,
		"time":   time.Now(),
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondServiceError maps error kinds to status codes. Internal failures
// are logged and reported without their cause.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case apperr.IsNotFound(err):
		respondError(w, http.StatusNotFound, err.Error())
	case apperr.IsValidation(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case apperr.IsExternal(err):
		s.logger.Error("upstream request failed", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, externalMessage(err))
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// externalMessage keeps the summary of an external failure and drops the
// wrapped cause
func externalMessage(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return "external service error"
}
