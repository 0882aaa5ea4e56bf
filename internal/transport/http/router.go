package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"shockstudy/internal/config"
	apierrors "shockstudy/internal/errors"
	"shockstudy/internal/infrastructure"
	"shockstudy/internal/middleware"
)

// RouterConfig holds the dependencies of the results browser
type RouterConfig struct {
	Paths     *config.Paths
	Providers *infrastructure.OTelProviders
	Logger    *slog.Logger
	Version   string
	Timeout   time.Duration

	// RequestsPerSec limits the API; zero disables the limiter
	RequestsPerSec float64
	Burst          int
}

// NewRouter builds the chi router serving the results tree
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errorHandler := apierrors.NewErrorHandler(logger, false)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(errorHandler.Recoverer)
	r.Use(middleware.SecurityHeaders)
	if cfg.RequestsPerSec > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		r.Use(middleware.NewRateLimiter(cfg.RequestsPerSec, burst, logger).Handler)
	}

	r.NotFound(errorHandler.NotFound)

	if cfg.Providers != nil && cfg.Providers.Registry != nil {
		r.Handle("/metrics", cfg.Providers.MetricsHandler())
	}

	health := NewHealthHandler(cfg.Version, cfg.Paths, logger)
	results := NewResultsHandler(cfg.Paths, logger, errorHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		if cfg.Timeout > 0 {
			r.Use(middleware.Timeout(cfg.Timeout))
		}

		r.Get("/health", health.HealthCheck)
		r.Get("/health/ready", health.ReadinessCheck)
		r.Get("/version", health.Version)
		r.Mount("/runs", results.Routes())
	})

	return r
}
