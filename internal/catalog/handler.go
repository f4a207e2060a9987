package catalog

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nupkan/permhub/internal/platform/httpx"
)

// Handler exposes system and capability endpoints on the registry.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	syncToken string
}

// NewHandler builds a Handler instance. syncToken guards the sync endpoint;
// when empty every sync request is rejected.
func NewHandler(logger *slog.Logger, service *Service, syncToken string) *Handler {
	return &Handler{logger: logger, service: service, syncToken: syncToken}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listSystems)
	r.Get("/{systemID}/functions", h.listFunctions)
	r.With(h.requireSyncToken).Post("/{systemID}/sync-functions", h.syncFunctions)
}

func (h *Handler) requireSyncToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if h.syncToken == "" || subtle.ConstantTimeCompare([]byte(raw), []byte(h.syncToken)) != 1 {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) listSystems(w http.ResponseWriter, r *http.Request) {
	systems, err := h.service.ListSystems(r.Context())
	if err != nil {
		h.logger.Error("list systems", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"systems": systems, "total": len(systems)})
}

func (h *Handler) listFunctions(w http.ResponseWriter, r *http.Request) {
	systemID := chi.URLParam(r, "systemID")
	caps, err := h.service.ListCapabilities(r.Context(), systemID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown system "+systemID)
			return
		}
		h.logger.Error("list functions", slog.String("system", systemID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(caps))
	for _, cap := range caps {
		out = append(out, map[string]any{
			"key":         cap.Key,
			"name":        cap.Name,
			"category":    cap.Category,
			"description": cap.Description,
			"endpoint":    cap.Endpoint,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"systemId": systemID, "functions": out, "total": len(out)})
}

func (h *Handler) syncFunctions(w http.ResponseWriter, r *http.Request) {
	systemID := chi.URLParam(r, "systemID")
	var req SyncRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed sync payload")
		return
	}
	result, err := h.service.SyncFunctions(r.Context(), systemID, req)
	if err != nil {
		if errors.Is(err, ErrInvalidKey) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("sync functions", slog.String("system", systemID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	removed := result.RemovedFunctions
	if removed == nil {
		removed = []Capability{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"summary":          result.Summary,
		"removedFunctions": removed,
	})
}
