// Package web provides the HTTP API and progress pages for lab data ingestion.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/JonMunkholm/labingest/internal/config"
	"github.com/JonMunkholm/labingest/internal/core"
	"github.com/JonMunkholm/labingest/internal/web/middleware"
)

// JobStore is the part of the persistence backend the server reads from.
type JobStore interface {
	History(ctx context.Context, limit int) ([]core.Snapshot, error)
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the ingestion service.
type Server struct {
	service  *core.Service
	store    JobStore
	cfg      *config.Config
	router   *chi.Mux
	server   *http.Server
	upgrader websocket.Upgrader
	limiters []*rateLimiter
}

// NewServer creates a Server. store may be nil, in which case history is
// empty and the health check skips the database.
func NewServer(service *core.Service, store JobStore, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		store:   store,
		cfg:     cfg,
		router:  chi.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(s.securityHeaders)

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newLimiter(s.cfg.Rate.RequestsPerMinute).middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	// Pages
	s.router.Group(func(r chi.Router) {
		r.Use(s.requestTimeout)
		r.Get("/", s.handleDashboard)
		r.Get("/jobs/{jobID}", s.handleJobPage)
		r.Get("/jobs/{jobID}/progress", s.handleJobPartial)
		r.Post("/jobs/{jobID}/cancel", s.handleCancelFromPage)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(&s.cfg.Security))

		r.Group(func(r chi.Router) {
			r.Use(s.requestTimeout)

			startLimit := func(next http.Handler) http.Handler { return next }
			if s.cfg.Rate.Enabled && s.cfg.Rate.StartLimit > 0 {
				startLimit = s.newLimiter(s.cfg.Rate.StartLimit).middleware
			}
			r.With(startLimit).Post("/jobs", s.handleStartJob)

			r.Get("/jobs", s.handleListJobs)
			r.Get("/jobs/{jobID}", s.handlePollJob)
			r.Post("/jobs/{jobID}/cancel", s.handleCancelJob)
			r.Get("/adapters", s.handleListAdapters)
			r.Post("/preview", s.handlePreview)
			r.Get("/history", s.handleHistory)
		})

		// Streams stay open for the life of the job.
		r.Get("/jobs/{jobID}/events", s.handleJobEvents)
		r.Get("/jobs/{jobID}/ws", s.handleJobSocket)
	})
}

// requestTimeout bounds non-streaming requests.
func (s *Server) requestTimeout(next http.Handler) http.Handler {
	if s.cfg.Server.RequestTimeout <= 0 {
		return next
	}
	return chimw.Timeout(s.cfg.Server.RequestTimeout)(next)
}

func (s *Server) newLimiter(perMinute int) *rateLimiter {
	rl := newRateLimiter(perMinute, time.Minute)
	s.limiters = append(s.limiters, rl)
	return rl
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and its rate limiter sweepers.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, rl := range s.limiters {
		rl.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// Pages use inline styles only; scripts are never needed.
		if s.cfg.Security.EnableCSP {
			w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'none'; img-src 'self' data:")
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
