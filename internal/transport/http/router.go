// Package httptransport composes the HTTP surface: the verification routes,
// health and metrics. Business logic lives in the domain services; this layer
// only wires them to the router.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"trustlessid/internal/verification/handler"
	"trustlessid/pkg/platform/httputil"
)

// HealthChecker reports whether one backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps carries everything the router mounts. HealthChecks may be empty in
// demo mode; the endpoint then only reports process liveness.
type Deps struct {
	Verification *handler.Handler
	Logger       *slog.Logger
	HealthChecks map[string]HealthChecker
}

// NewRouter wires all public endpoints.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	deps.Verification.Register(r)

	r.Get("/healthz", handleHealth(deps))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// handleHealth probes all backing dependencies in parallel and reports the
// first failure.
func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		g, ctx := errgroup.WithContext(ctx)
		for name, check := range deps.HealthChecks {
			g.Go(func() error {
				if err := check.Health(ctx); err != nil {
					deps.Logger.WarnContext(ctx, "health check failed",
						"dependency", name,
						"error", err,
					)
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
