package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// HealthChecker is a dependency whose reachability is reported by /health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a plain function to HealthChecker
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// HealthHandler serves GET /health
type HealthHandler struct {
	checks  map[string]HealthChecker
	timeout time.Duration
	logger  *slog.Logger
}

func NewHealthHandler(checks map[string]HealthChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second, logger: logger}
}

// HealthResponse lists each dependency as "up" or "down"
type HealthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Dependencies: make(map[string]string, len(h.checks))}
	for name, check := range h.checks {
		if err := check.HealthCheck(ctx); err != nil {
			h.logger.Warn("health check failed", slog.String("dependency", name), slog.Any("error", err))
			resp.Dependencies[name] = "down"
			resp.Status = "unhealthy"
			continue
		}
		resp.Dependencies[name] = "up"
	}

	if resp.Status != "healthy" {
		pkghttp.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}
