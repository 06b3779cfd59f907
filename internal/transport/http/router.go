// Package httptransport wires the HTTP surface: platform middleware, the
// audit dispatch boundary, the read API and operational endpoints.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"audittrail/internal/audit"
	audithandler "audittrail/internal/audit/handler"
	"audittrail/internal/platform/health"
	"audittrail/internal/platform/middleware"
	"audittrail/pkg/platform/middleware/metadata"
)

// Deps collects everything the router mounts.
type Deps struct {
	Logger   *slog.Logger
	Metadata *metadata.Middleware
	Identity func(http.Handler) http.Handler
	Audit    *audit.Middleware
	Reader   *audithandler.Handler
	Health   *health.Handler

	// PackRoutes registers the host application's pack routes. Everything
	// registered here runs inside the audit dispatch boundary: each request
	// gets a RequestContext and, absent an explicit write, a derived event.
	PackRoutes func(chi.Router)
}

// NewRouter wires all endpoints with middleware.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(deps.Metadata.Handler)
	r.Use(deps.Identity)

	deps.Health.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	// Read API. Scoped per caller; unauthenticated requests are rejected by
	// the handler itself.
	deps.Reader.Register(r)

	// Dispatch boundary for audited pack routes.
	r.Route("/api", func(api chi.Router) {
		api.Use(deps.Audit.Establish)
		if deps.PackRoutes != nil {
			deps.PackRoutes(api)
		}
	})

	return r
}
