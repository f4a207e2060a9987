package board

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nupkan/permhub/internal/gateway"
	"github.com/nupkan/permhub/internal/platform/httpx"
	"github.com/nupkan/permhub/internal/shared"
)

// Permission display names as declared in the board's function manifest. The
// gateway checks these, not the raw capability keys.
const (
	PermViewTasks   = "View Tasks"
	PermCreateTasks = "Create Tasks"
	PermMoveTasks   = "Move Tasks"
)

// Handler exposes the board's HTTP surface behind the auth gateway.
type Handler struct {
	logger  *slog.Logger
	service *Service
	gateway *gateway.Gateway
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gw *gateway.Gateway) *Handler {
	return &Handler{logger: logger, service: service, gateway: gw}
}

// MountRoutes registers the board routes. Every route runs behind
// RequireAuth; per-route permission middleware narrows further.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.gateway.RequireAuth)

	r.Get("/me", h.me)
	r.Post("/auth/session", h.createSession)
	r.Post("/auth/logout", h.logout)

	r.With(gateway.RequirePermissions(PermViewTasks)).Get("/tasks", h.listTasks)
	r.With(gateway.RequirePermissions(PermCreateTasks)).Post("/tasks", h.createTask)
	r.With(gateway.RequirePermissions(PermMoveTasks)).Put("/tasks/{taskID}/status", h.moveTask)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	authCtx := gateway.AuthFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, authCtx)
}

// createSession exchanges a valid bearer token for a session cookie, the
// board's legacy login. Browser clients keep working after the token expires.
func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	authCtx := gateway.AuthFromContext(r.Context())
	if err := h.gateway.EstablishSession(r.Context(), w, authCtx); err != nil {
		if errors.Is(err, gateway.ErrSessionsDisabled) {
			httpx.Problem(w, http.StatusServiceUnavailable, "Sessions Unavailable", "session store is not configured")
			return
		}
		h.logger.Error("establish session", slog.Int64("user", authCtx.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	authCtx := gateway.AuthFromContext(r.Context())
	h.gateway.Logout(r.Context(), authCtx.UserID)
	h.gateway.ClearSession(r.Context(), w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	authCtx := gateway.AuthFromContext(r.Context())
	tasks, err := h.service.ListTasks(r.Context(), authCtx.UserID, r.URL.Query().Get("status"))
	if err != nil {
		if errors.Is(err, ErrValidation) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("list tasks", slog.Int64("user", authCtx.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if tasks == nil {
		tasks = []Task{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tasks": tasks, "total": len(tasks)})
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	authCtx := gateway.AuthFromContext(r.Context())
	var body struct {
		TeamID      int64      `json:"teamId"`
		Title       string     `json:"title"`
		Description string     `json:"description"`
		AssigneeID  *int64     `json:"assigneeId"`
		DueAt       *time.Time `json:"dueAt"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed task payload")
		return
	}
	if !authCtx.HasTeamAccess(body.TeamID, "") {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "not a member of this team")
		return
	}
	task, err := h.service.CreateTask(r.Context(), Task{
		TeamID:      body.TeamID,
		Title:       body.Title,
		Description: body.Description,
		AssigneeID:  body.AssigneeID,
		CreatedBy:   authCtx.UserID,
		DueAt:       body.DueAt,
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("create task", slog.Int64("user", authCtx.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, task)
}

func (h *Handler) moveTask(w http.ResponseWriter, r *http.Request) {
	authCtx := gateway.AuthFromContext(r.Context())
	taskID, err := strconv.ParseInt(chi.URLParam(r, "taskID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid taskID")
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed status payload")
		return
	}
	current, err := h.service.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	if !authCtx.HasTeamAccess(current.TeamID, "") {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "not a member of this team")
		return
	}
	task, err := h.service.MoveTask(r.Context(), taskID, body.Status)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("move task", slog.Int64("task", taskID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}
