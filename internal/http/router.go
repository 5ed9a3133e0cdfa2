// Package httpapi assembles the public HTTP surface: middleware chain,
// the calibration API, and the operational endpoints. Business logic
// stays in the handler and service packages; this file only wires.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"calibra/internal/platform/middleware"
	"calibra/pkg/platform/httputil"
)

// Registrar is implemented by handler packages that mount themselves on
// the router.
type Registrar interface {
	Register(r chi.Router)
}

// HealthFunc probes one dependency. A nil error means healthy.
type HealthFunc func(ctx context.Context) error

// Option configures the router.
type Option func(*builder)

type builder struct {
	checks map[string]HealthFunc
}

// WithHealthCheck adds a named dependency probe to /healthz.
func WithHealthCheck(name string, fn HealthFunc) Option {
	return func(b *builder) {
		if fn != nil {
			b.checks[name] = fn
		}
	}
}

// NewRouter wires middleware and endpoints. The chain order matters:
// recovery outermost, then request ID and request time so the access
// log and every handler see both.
func NewRouter(api Registrar, logger *slog.Logger, opts ...Option) *chi.Mux {
	b := &builder{checks: make(map[string]HealthFunc)}
	for _, opt := range opts {
		opt(b)
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.AccessLog(logger))

	api.Register(r)

	r.Get("/healthz", b.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func (b *builder) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{"status": "ok"}

	if len(b.checks) > 0 {
		checks := make(map[string]string, len(b.checks))
		for name, fn := range b.checks {
			if err := fn(r.Context()); err != nil {
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			} else {
				checks[name] = "ok"
			}
		}
		body["checks"] = checks
	}

	httputil.WriteJSON(w, status, body)
}
