// Package server implements the omnigerrit JSON API: paged timelines with
// server-held sessions, change details, builds and branches.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/omnirom/omnigerrit/internal/core"
	"github.com/omnirom/omnigerrit/internal/metrics"
	"github.com/omnirom/omnigerrit/internal/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Backend is everything the API reads from the remote services.
type Backend interface {
	core.ChangeSource
	ListBranches(ctx context.Context, project string) ([]*models.Branch, error)
	Ping(ctx context.Context) error
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Device            models.Device
	PageSize          int
	DenyPrefixes      []string
	MaxPages          int           // upper bound of ?pages=
	SessionTTL        time.Duration // idle time before a session is dropped
	MaxSessions       int
	RequestsPerMinute int      // 0 disables rate limiting
	CORSOrigins       []string // empty disables CORS headers
	TrustedProxies    []string // CIDRs whose X-Forwarded-For / X-Real-IP are used by the rate limiter
	Clock             clockwork.Clock
}

func (cfg *ServerConfig) validate() error {
	if cfg.Device.Name == "" {
		return errors.New("device is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = core.DefaultPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 15 * time.Minute
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1000
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Server serves the JSON API.
type Server struct {
	backend  Backend
	cfg      ServerConfig
	log      *slog.Logger
	sessions *sessionStore
	limiter  *rateLimiter
	router   chi.Router
}

// New creates the API server.
func New(backend Backend, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	trusted, err := parseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	s := &Server{
		backend:  backend,
		cfg:      cfg,
		log:      logger,
		sessions: newSessionStore(cfg.Clock, cfg.SessionTTL, cfg.MaxSessions),
		limiter:  newRateLimiter(cfg.RequestsPerMinute, cfg.Clock, trusted),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.log))
	r.Use(recoveryMiddleware(s.log))
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			ExposedHeaders: []string{"X-Request-ID", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.limiter.middleware)

		r.Get("/timeline", s.handleTimeline)
		r.Get("/timeline/{session}", s.handleTimelineNext)
		r.Delete("/timeline/{session}", s.handleTimelineDelete)
		r.Get("/changes/{id}", s.handleChange)
		r.Get("/builds", s.handleBuilds)
		r.Get("/projects/{project}/branches", s.handleBranches)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
	})
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close drops every held session.
func (s *Server) Close() {
	s.sessions.clear()
}

// InvalidateSessions drops every held session. Clients continuing one get
// 404 and start over.
func (s *Server) InvalidateSessions(reason string) int {
	n := s.sessions.clear()
	if n > 0 {
		s.log.Info("sessions invalidated", "reason", reason, "count", n)
	}
	return n
}

// WatchConnectivity drops held sessions whenever connectivity is regained
// after a loss, until ctx is done or statuses is closed.
func (s *Server) WatchConnectivity(ctx context.Context, statuses <-chan core.ConnectivityStatus) {
	core.OnReconnect(ctx, statuses, func() {
		s.InvalidateSessions("connectivity-regained")
	})
}

func (s *Server) newSession(f models.FilterState) (*core.Session, context.Context, error) {
	sess, err := core.NewSession(core.SessionConfig{
		Logger:       s.log,
		Source:       s.backend,
		Device:       s.cfg.Device,
		Filter:       f,
		PageSize:     s.cfg.PageSize,
		DenyPrefixes: s.cfg.DenyPrefixes,
	})
	if err != nil {
		return nil, nil, err
	}
	metrics.SessionsStartedTotal.WithLabelValues("api").Inc()
	return sess, s.sessions.put(sess), nil
}
