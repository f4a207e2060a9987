package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nupkan/permhub/internal/access"
	"github.com/nupkan/permhub/internal/catalog"
	"github.com/nupkan/permhub/internal/identity"
	"github.com/nupkan/permhub/internal/observability"
)

// RegistryRouterParams groups dependencies for the registry's HTTP router.
type RegistryRouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	IdentityHandler *identity.Handler
	CatalogHandler  *catalog.Handler
	AccessHandler   *access.Handler
	Metrics         *observability.Metrics
}

// NewRegistryRouter constructs the registry's chi.Router.
func NewRegistryRouter(params RegistryRouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", healthz)

	r.Route("/auth", params.IdentityHandler.MountAuthRoutes)
	r.Route("/validate", params.IdentityHandler.MountValidateRoutes)
	r.Route("/systems", params.CatalogHandler.MountRoutes)
	r.Route("/users", params.AccessHandler.MountUserRoutes)
	r.Route("/profiles", params.AccessHandler.MountProfileRoutes)

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
