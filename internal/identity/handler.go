package identity

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nupkan/permhub/internal/platform/httpx"
)

// Handler exposes token issue and validation endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountAuthRoutes registers token issuance routes.
func (h *Handler) MountAuthRoutes(r chi.Router) {
	r.Post("/token", h.issueToken)
}

// MountValidateRoutes registers token validation routes.
func (h *Handler) MountValidateRoutes(r chi.Router) {
	r.Post("/token", h.validateToken)
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil || body.Email == "" || body.Password == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "email and password required")
		return
	}
	user, token, err := h.service.Authenticate(r.Context(), body.Email, body.Password)
	if err != nil {
		// Generic denial: no detail about which check failed.
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresIn": int(h.service.issuer.TTL().Seconds()),
		"user":      userPayload(user),
	})
}

func (h *Handler) validateToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil || body.Token == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "token required")
		return
	}
	user, err := h.service.ValidateToken(r.Context(), body.Token)
	if err != nil {
		httpx.JSON(w, http.StatusUnauthorized, map[string]any{"valid": false})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"user":  userPayload(user),
	})
}

func userPayload(user *User) map[string]any {
	return map[string]any{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	}
}
