package access

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nupkan/permhub/internal/platform/cache"
	"github.com/nupkan/permhub/internal/platform/httpx"
)

// Handler exposes the permission resolution and profile administration
// endpoints on the registry.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	cache      cache.Store
	adminToken string
}

// NewHandler builds a Handler instance. store may be nil to disable
// resolution memoization.
func NewHandler(logger *slog.Logger, service *Service, store cache.Store, adminToken string) *Handler {
	return &Handler{logger: logger, service: service, cache: store, adminToken: adminToken}
}

// MountUserRoutes registers the per-user resolution endpoints.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.Get("/{userID}/permissions", h.userPermissions)
	r.Get("/{userID}/systems/{systemID}/permissions", h.userSystemPermissions)
	r.Post("/{userID}/systems/{systemID}/check", h.checkFunction)
	r.Get("/{userID}/profiles", h.listAssignedProfiles)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAdminToken)
		r.Post("/{userID}/profiles/{profileID}", h.assignProfile)
		r.Delete("/{userID}/profiles/{profileID}", h.removeProfile)
		r.Put("/{userID}/overrides/{capabilityID}", h.setOverride)
		r.Delete("/{userID}/overrides/{capabilityID}", h.clearOverride)
	})
}

// MountProfileRoutes registers profile administration endpoints.
func (h *Handler) MountProfileRoutes(r chi.Router) {
	r.Get("/", h.listProfiles)
	r.Group(func(r chi.Router) {
		r.Use(h.requireAdminToken)
		r.Post("/", h.createProfile)
		r.Put("/{profileID}", h.updateProfile)
		r.Delete("/{profileID}", h.deleteProfile)
		r.Put("/{profileID}/grants", h.setProfileGrants)
	})
}

func (h *Handler) requireAdminToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if h.adminToken == "" || subtle.ConstantTimeCompare([]byte(raw), []byte(h.adminToken)) != 1 {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathInt64(w, r, "userID")
	if !ok {
		return
	}
	resolution, err := h.resolveCached(r, userID, "")
	if err != nil {
		h.logger.Error("resolve permissions", slog.Int64("user", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"userId":      userID,
		"permissions": resolution.Permissions,
		"total":       len(resolution.Permissions),
	})
}

func (h *Handler) userSystemPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathInt64(w, r, "userID")
	if !ok {
		return
	}
	systemID := chi.URLParam(r, "systemID")
	resolution, err := h.resolveCached(r, userID, systemID)
	if err != nil {
		if errors.Is(err, ErrSystemNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown system "+systemID)
			return
		}
		h.logger.Error("resolve system permissions", slog.Int64("user", userID), slog.String("system", systemID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"userId":       userID,
		"systemId":     systemID,
		"systemName":   resolution.SystemName,
		"permissions":  resolution.Permissions,
		"functionKeys": resolution.GrantedKeys(),
		"total":        len(resolution.Permissions),
	})
}

func (h *Handler) checkFunction(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathInt64(w, r, "userID")
	if !ok {
		return
	}
	systemID := chi.URLParam(r, "systemID")
	var body struct {
		FunctionKey string `json:"functionKey"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil || body.FunctionKey == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "functionKey required")
		return
	}
	granted, reason, err := h.service.CheckFunction(r.Context(), userID, systemID, body.FunctionKey)
	if err != nil {
		if errors.Is(err, ErrSystemNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown system "+systemID)
			return
		}
		h.logger.Error("check function", slog.Int64("user", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := map[string]any{"granted": granted}
	if !granted {
		resp["reason"] = reason
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) listProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.service.ListProfiles(r.Context())
	if err != nil {
		h.logger.Error("list profiles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"profiles": toProfilePayloads(profiles), "total": len(profiles)})
}

func (h *Handler) createProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		SystemID    *string `json:"systemId"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed profile payload")
		return
	}
	profile, err := h.service.CreateProfile(r.Context(), body.Name, body.Description, body.SystemID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusCreated, toProfilePayload(profile))
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.pathInt64(w, r, "profileID")
	if !ok {
		return
	}
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed profile payload")
		return
	}
	profile, err := h.service.UpdateProfile(r.Context(), profileID, body.Name, body.Description)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, toProfilePayload(profile))
}

func (h *Handler) deleteProfile(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.pathInt64(w, r, "profileID")
	if !ok {
		return
	}
	if err := h.service.DeleteProfile(r.Context(), profileID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("delete profile", slog.Int64("profile", profileID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setProfileGrants(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.pathInt64(w, r, "profileID")
	if !ok {
		return
	}
	var body struct {
		CapabilityIDs []string `json:"capabilityIds"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed grants payload")
		return
	}
	if err := h.service.SetProfileGrants(r.Context(), profileID, body.CapabilityIDs); err != nil {
		h.logger.Error("set profile grants", slog.Int64("profile", profileID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"profileId": profileID, "granted": len(body.CapabilityIDs)})
}

func (h *Handler) assignProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathInt64(w, r, "userID")
	if !ok {
		return
	}
	profileID, ok := h.pathInt64(w, r, "profileID")
	if !ok {
		return
	}
	if err := h.service.AssignProfile(r.Context(), userID, profileID); err != nil {
		h.logger.Error("assign profile", slog.Int64("user", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathInt64(w, r, "userID")
	if !ok {
		return
	}
	profileID, ok := h.pathInt64(w, r, "profileID")
	if !ok {
		return
	}
	if err := h.service.RemoveProfile(r.Context(), userID, profileID); err != nil {
		h.logger.Error("remove profile", slog.Int64("user", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listAssignedProfiles(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathInt64(w, r, "userID")
	if !ok {
		return
	}
	profiles, err := h.service.ListAssignedProfiles(r.Context(), userID)
	if err != nil {
		h.logger.Error("list assigned profiles", slog.Int64("user", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"userId": userID, "profiles": toProfilePayloads(profiles), "total": len(profiles)})
}

func (h *Handler) setOverride(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathInt64(w, r, "userID")
	if !ok {
		return
	}
	capabilityID := chi.URLParam(r, "capabilityID")
	var body struct {
		Granted bool   `json:"granted"`
		Reason  string `json:"reason"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed override payload")
		return
	}
	ov := Override{UserID: userID, CapabilityID: capabilityID, Granted: body.Granted, Reason: body.Reason}
	if err := h.service.SetOverride(r.Context(), ov); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearOverride(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathInt64(w, r, "userID")
	if !ok {
		return
	}
	capabilityID := chi.URLParam(r, "capabilityID")
	if err := h.service.ClearOverride(r.Context(), userID, capabilityID); err != nil {
		h.logger.Error("clear override", slog.Int64("user", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolveCached memoizes resolution payloads for a short window. Entries are
// dropped by the service's invalidation hook whenever assignments or
// overrides change, so a stale read is bounded by one TTL at worst.
func (h *Handler) resolveCached(r *http.Request, userID int64, systemID string) (Resolution, error) {
	if h.cache == nil {
		return h.service.Resolve(r.Context(), userID, systemID)
	}
	key := ResolutionCacheKey(userID, systemID)
	if payload, ok := h.cache.Get(r.Context(), key); ok {
		var cached Resolution
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
	}
	resolution, err := h.service.Resolve(r.Context(), userID, systemID)
	if err != nil {
		return Resolution{}, err
	}
	if payload, err := json.Marshal(resolution); err == nil {
		h.cache.Set(r.Context(), key, payload, cache.TTLShort)
	}
	return resolution, nil
}

func (h *Handler) pathInt64(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+name)
		return 0, false
	}
	return id, true
}

type profilePayload struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	SystemID    *string `json:"systemId,omitempty"`
}

func toProfilePayload(p Profile) profilePayload {
	return profilePayload{ID: p.ID, Name: p.Name, Description: p.Description, SystemID: p.SystemID}
}

func toProfilePayloads(profiles []Profile) []profilePayload {
	out := make([]profilePayload, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, toProfilePayload(p))
	}
	return out
}
