package gateway

import (
	"net/http"
	"strings"

	"github.com/nupkan/permhub/internal/platform/httpx"
)

// RequireAuth authenticates the request via the gateway and stashes the
// resulting context. Unauthenticated requests get a bare 401 regardless of
// which step failed.
func (g *Gateway) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, err := g.Authenticate(r)
		if err != nil {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		w.Header().Set("X-Correlation-ID", authCtx.CorrelationID)
		next.ServeHTTP(w, r.WithContext(ContextWithAuth(r.Context(), authCtx)))
	})
}

// RequirePermissions gates a route behind every named permission. It assumes
// RequireAuth already ran; a missing auth context is treated as 401. The 403
// names the first missing permission so legitimate callers can tell what to
// request.
func RequirePermissions(names ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := AuthFromContext(r.Context())
			if authCtx == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			for _, name := range names {
				if !authCtx.HasPermission(name) {
					httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing permission: "+name)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireTeamRole gates a route behind membership in the team identified by
// the urlParam path variable, optionally with an exact role.
func RequireTeamRole(teamIDFromRequest func(*http.Request) (int64, error), requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := AuthFromContext(r.Context())
			if authCtx == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			teamID, err := teamIDFromRequest(r)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid team id")
				return
			}
			if !authCtx.HasTeamAccess(teamID, requiredRole) {
				detail := "not a member of this team"
				if requiredRole != "" {
					detail = "requires team role " + strings.ToLower(requiredRole)
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", detail)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
