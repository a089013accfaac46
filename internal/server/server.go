package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/pulse-trading/pulse/internal/enrich"
	"github.com/pulse-trading/pulse/internal/observability"
	"github.com/pulse-trading/pulse/internal/pulse"
	"github.com/pulse-trading/pulse/internal/sentiment"
	"github.com/pulse-trading/pulse/internal/store"
	"github.com/pulse-trading/pulse/internal/token"
)

// ---------------------------------------------------------------------------
// HTTP server — the pulse API plus health, metrics, and the live websocket
// delta feed.
// ---------------------------------------------------------------------------

// Engine triggers a full pulse run.
type Engine interface {
	Run(ctx context.Context) pulse.RunResult
}

// ContextBuilder builds the model context for one token.
type ContextBuilder interface {
	Build(ctx context.Context, tok token.Token, watchlist []token.Token) *enrich.TokenContext
}

// SentimentClient fetches a sentiment snapshot from the remote model.
type SentimentClient interface {
	FetchSentiment(ctx context.Context, tok token.Token, contextText string) *sentiment.Snapshot
}

// WatchlistProvider resolves the effective watchlist.
type WatchlistProvider interface {
	Watchlist(ctx context.Context) []token.Token
}

// Config holds server configuration.
type Config struct {
	Port       int
	CronSecret string
}

// Deps are the collaborators the handlers need.
type Deps struct {
	Repo     *store.Repo
	Engine   Engine
	Enricher ContextBuilder
	Model    SentimentClient
	Universe WatchlistProvider
	Health   *observability.HealthMonitor
	Metrics  *observability.Registry
	Hub      *Hub
}

// Server is the HTTP front of the pulse service.
type Server struct {
	router *chi.Mux
	server *http.Server
	config Config
	deps   Deps
}

// New creates the server with all routes and middleware wired.
func New(config Config, deps Deps) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: config,
		deps:   deps,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/metrics", s.handleMetrics)

	s.router.Route("/api/pulse", func(r chi.Router) {
		// The websocket feed stays outside the timeout middleware: it holds
		// its connection open indefinitely. The cron trigger stays outside
		// too: a full run can outlast any sane per-request budget, and a
		// mid-run cancellation would turn the tail of the run into bogus
		// failure counts.
		r.Get("/live", s.handleLive)
		r.Post("/cron", s.handleCron)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/state", s.handleState)
			r.Get("/context", s.handleContext)
			r.Post("/sentiment", s.handleSentiment)
		})
	})
}

// Start runs the listener. Blocks until shutdown or listener failure.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("server: listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("server: shutting down")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if s.deps.Metrics != nil {
			if c := s.deps.Metrics.GetCounter("pulse_http_requests_total"); c != nil {
				c.Inc()
			}
		}
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("server: request")
	})
}
