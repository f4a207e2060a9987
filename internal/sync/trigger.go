package sync

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/nupkan/permhub/internal/platform/httpx"
)

// Enqueuer submits tasks to the job queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TriggerHandler queues an immediate manifest reconciliation on request,
// complementing the boot-time run and the worker's schedule. Guarded by the
// same bearer token the reconciler presents to the registry.
type TriggerHandler struct {
	queue  Enqueuer
	token  string
	logger *slog.Logger
}

// NewTriggerHandler builds a TriggerHandler. An empty token rejects every
// request.
func NewTriggerHandler(queue Enqueuer, token string, logger *slog.Logger) *TriggerHandler {
	return &TriggerHandler{queue: queue, token: token, logger: logger}
}

// MountRoutes registers the trigger endpoint.
func (h *TriggerHandler) MountRoutes(r chi.Router) {
	r.Post("/sync-now", h.syncNow)
}

func (h *TriggerHandler) syncNow(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if h.token == "" || subtle.ConstantTimeCompare([]byte(raw), []byte(h.token)) != 1 {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	info, err := h.queue.Enqueue(r.Context(), NewManifestSyncTask(), asynq.MaxRetry(3))
	if err != nil {
		if h.logger != nil {
			h.logger.Error("enqueue manifest sync", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "could not queue reconciliation")
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"queued": true, "taskId": info.ID})
}
