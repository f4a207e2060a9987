package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nupkan/permhub/internal/board"
	"github.com/nupkan/permhub/internal/observability"
	"github.com/nupkan/permhub/internal/sync"
)

// BoardRouterParams groups dependencies for the board's HTTP router.
// SyncTrigger is optional; without it the on-demand sync endpoint is not
// mounted.
type BoardRouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	BoardHandler *board.Handler
	SyncTrigger  *sync.TriggerHandler
	Metrics      *observability.Metrics
}

// NewBoardRouter constructs the board's chi.Router. Everything except
// health and metrics sits behind the gateway middleware mounted by the
// board handler itself.
func NewBoardRouter(params BoardRouterParams) http.Handler {
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

	r.Group(params.BoardHandler.MountRoutes)

	if params.SyncTrigger != nil {
		r.Route("/internal", params.SyncTrigger.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
