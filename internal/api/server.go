// Package api provides the HTTP API server and handlers for the transcript server.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/listenupapp/transcript-server/internal/ratelimit"
	"github.com/listenupapp/transcript-server/internal/service"
	"github.com/listenupapp/transcript-server/internal/validation"
)

// Options configures the HTTP surface.
type Options struct {
	CORSOrigins []string
	// RateLimiter throttles requests per client IP. Nil disables it.
	RateLimiter *ratelimit.Limiter
	// Version is reported in the OpenAPI document.
	Version string
	// Events serves the build event stream at GET /api/v1/events. Nil leaves it unmounted.
	Events http.Handler
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	transcripts *service.TranscriptService
	health      HealthDeps
	validator   *validation.Validator
	router      *chi.Mux
	api         huma.API
	logger      *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(transcripts *service.TranscriptService, health HealthDeps, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}

	router := chi.NewRouter()
	s := &Server{
		transcripts: transcripts,
		health:      health,
		validator:   validation.New(),
		router:      router,
		logger:      logger,
	}

	s.setupMiddleware(opts)

	humaConfig := huma.DefaultConfig("Transcript Server API", opts.Version)
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)
	s.api = humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s.registerRoutes()

	// SSE bypasses huma: the stream is not an enveloped JSON body.
	if opts.Events != nil {
		router.Method(http.MethodGet, "/api/v1/events", opts.Events)
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware(opts Options) {
	s.router.Use(requestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	if opts.RateLimiter != nil {
		s.router.Use(RateLimitMiddleware(opts.RateLimiter, s.logger))
	}
}

// registerRoutes registers every huma operation.
func (s *Server) registerRoutes() {
	s.registerHealthRoutes()
	s.registerTranscriptRoutes()
}
