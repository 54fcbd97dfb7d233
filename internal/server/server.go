// Package server exposes the decision and automation engines over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/decisionbot/internal/domain"
	"github.com/alanyoungcy/decisionbot/internal/server/handler"
	"github.com/alanyoungcy/decisionbot/internal/server/middleware"
	"github.com/alanyoungcy/decisionbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // empty disables authentication
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates the route handlers.
type Handlers struct {
	Health      *handler.HealthHandler
	Decisions   *handler.DecisionHandler
	Automations *handler.AutomationHandler
	Executions  *handler.ExecutionHandler
	State       *handler.StateHandler
}

// Server is the HTTP + WebSocket API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware
// chain. limiter may be nil to disable rate limiting; hub may be nil to
// disable /ws.
func NewServer(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      newHandler(cfg, h, hub, limiter, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

func newHandler(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	mux.HandleFunc("POST /api/decisions/evaluate", h.Decisions.Evaluate)
	mux.HandleFunc("POST /api/decisions/test", h.Decisions.Test)
	mux.HandleFunc("GET /api/decisions/stats", h.Decisions.Stats)
	mux.HandleFunc("DELETE /api/decisions/stats", h.Decisions.ClearStats)
	mux.HandleFunc("DELETE /api/decisions/cache", h.Decisions.ClearCache)
	mux.HandleFunc("GET /api/decisions/kinds", h.Decisions.RecipeKinds)
	mux.HandleFunc("GET /api/decisions/records", h.Decisions.Records)

	mux.HandleFunc("GET /api/automations", h.Automations.List)
	mux.HandleFunc("GET /api/automations/{name}", h.Automations.Get)
	mux.HandleFunc("PUT /api/automations/{name}", h.Automations.Put)
	mux.HandleFunc("DELETE /api/automations/{name}", h.Automations.Delete)
	mux.HandleFunc("POST /api/automations/{name}/execute", h.Automations.Execute)
	mux.HandleFunc("POST /api/webhooks/{id}", h.Automations.Webhook)

	mux.HandleFunc("GET /api/executions", h.Executions.List)
	mux.HandleFunc("GET /api/executions/active", h.Executions.Active)
	mux.HandleFunc("GET /api/executions/stats", h.Executions.Stats)
	mux.HandleFunc("GET /api/executions/feed", h.Executions.Feed)
	mux.HandleFunc("GET /api/executions/{id}", h.Executions.Get)
	mux.HandleFunc("DELETE /api/executions/{id}", h.Executions.Cancel)
	mux.HandleFunc("GET /api/exports", h.Executions.Exports)

	mux.HandleFunc("GET /api/positions", h.State.Positions)
	mux.HandleFunc("GET /api/bots/{bot}", h.State.Bot)
	mux.HandleFunc("GET /api/market/{symbol}", h.State.GetMarket)
	mux.HandleFunc("PUT /api/market/{symbol}", h.State.PutMarket)

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var out http.Handler = mux
	out = middleware.Auth(cfg.APIKey, "/api/health")(out)
	if limiter != nil && cfg.RateLimit > 0 {
		out = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow, logger)(out)
	}
	out = middleware.Logging(logger)(out)
	out = middleware.CORS(cfg.CORSOrigins)(out)
	return out
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
