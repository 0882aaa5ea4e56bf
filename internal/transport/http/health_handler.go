package http

import (
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/render"

	"shockstudy/internal/config"
)

// HealthHandler handles health and version requests
type HealthHandler struct {
	version string
	paths   *config.Paths
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, paths *config.Paths, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		version: version,
		paths:   paths,
		started: time.Now(),
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// ReadinessCheck handles GET /api/health/ready. The server is ready once
// the results tree exists.
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	checks := map[string]bool{
		"tables_dir":  config.DirExists(h.paths.TablesDir),
		"reports_dir": config.DirExists(h.paths.ReportsDir),
	}
	status := "ready"
	for name, ok := range checks {
		if !ok {
			status = "not_ready"
			h.logger.WarnContext(r.Context(), "readiness check failed", slog.String("check", name))
		}
	}
	if status != "ready" {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, map[string]interface{}{"status": status, "checks": checks})
}

// Version handles GET /api/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"version":    h.version,
		"go_version": runtime.Version(),
	})
}
