// Package api exposes the orchestrator over HTTP and a WebSocket session
// stream for the browser front-end.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/clawinfra/stakeclaw/internal/health"
	"github.com/clawinfra/stakeclaw/internal/orchestrator"
	"github.com/clawinfra/stakeclaw/internal/security"
)

// HealthSource supplies the most recent health reports.
type HealthSource interface {
	Latest() ([]health.ChainReport, time.Time)
}

// Server is the HTTP API server
type Server struct {
	port       int
	orch       *orchestrator.Orchestrator
	health     HealthSource
	jwtSecret  []byte
	origins    []string
	version    string
	logger     *slog.Logger
	httpServer *http.Server
	startedAt  time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithHealth attaches a health report source. Without one /api/health
// answers 503.
func WithHealth(src HealthSource) Option {
	return func(s *Server) { s.health = src }
}

// WithJWTSecret enables bearer authentication. A nil secret is dev mode.
func WithJWTSecret(secret []byte) Option {
	return func(s *Server) { s.jwtSecret = secret }
}

// WithOriginPatterns sets the cross-origin host patterns allowed to open
// the session stream. Same-origin and non-browser clients are always
// accepted.
func WithOriginPatterns(patterns []string) Option {
	return func(s *Server) { s.origins = patterns }
}

// WithVersion sets the version reported by /api/status.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a new API server
func NewServer(port int, orch *orchestrator.Orchestrator, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		port:      port,
		orch:      orch,
		version:   "dev",
		logger:    logger.With("component", "api"),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the full route tree with middleware applied.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/status", s.handleStatus)
	api.HandleFunc("GET /api/chains", s.handleChains)
	api.HandleFunc("GET /api/chains/{id}", s.handleChain)
	api.HandleFunc("GET /api/session", s.handleSession)
	api.HandleFunc("POST /api/session", s.handleSelectChain)
	api.HandleFunc("DELETE /api/session", s.handleDisconnect)
	api.HandleFunc("GET /api/accounts/{address}", s.handleAccount)
	api.HandleFunc("POST /api/calc/power", s.handleCalcPower)
	api.HandleFunc("POST /api/calc/reward", s.handleCalcReward)
	api.HandleFunc("POST /api/calc/format", s.handleCalcFormat)
	api.HandleFunc("GET /api/preferences", s.handlePreferences)
	api.HandleFunc("PUT /api/preferences/{key}", s.handleSetPreference)
	api.HandleFunc("GET /api/health", s.handleHealth)
	api.HandleFunc("GET /api/session/stream", s.handleStream)

	authed := security.AuthMiddleware(s.jwtSecret, s.logger)(api)
	return s.corsMiddleware(s.loggingMiddleware(authed))
}

// Start starts the HTTP server and blocks until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "port", s.port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
