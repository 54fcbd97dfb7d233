package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// Pinger checks one dependency.
type Pinger func(ctx context.Context) error

// HealthHandler serves the health check.
type HealthHandler struct {
	checks map[string]Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. Each check is reported by name.
func NewHealthHandler(checks map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logHandler(logger, "health")}
}

// HealthCheck reports "ok", or "degraded" with 503 when a check fails.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.WarnContext(ctx, "dependency unhealthy", slog.String("dependency", name), slog.String("error", err.Error()))
			deps[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":       status,
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
