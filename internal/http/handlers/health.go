package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/webklar/booking-platform/pkg/logging"
)

// HealthCheck probes a dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler reports liveness and dependency health.
type HealthHandler struct {
	checks map[string]HealthCheck
	logger *logging.Logger
}

// NewHealthHandler creates a health handler. Nil checks are ignored.
func NewHealthHandler(checks map[string]HealthCheck, logger *logging.Logger) *HealthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	filtered := make(map[string]HealthCheck, len(checks))
	for name, check := range checks {
		if check != nil {
			filtered[name] = check
		}
	}
	return &HealthHandler{checks: filtered, logger: logger}
}

// ServeHTTP handles GET /health.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("health check failed", "dependency", name, "error", err)
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	body := map[string]any{"status": "ok"}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}
	writeJSON(w, status, body)
}
