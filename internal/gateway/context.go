package gateway

import (
	"context"
	"strings"
	"time"
)

// TeamMembership is one team the user belongs to, with their role in it.
type TeamMembership struct {
	TeamID int64  `json:"teamId"`
	Role   string `json:"role"`
}

// AuthContext is the authenticated caller's identity plus resolved
// permissions, attached to the request context by the gateway.
type AuthContext struct {
	UserID        int64            `json:"userId"`
	Name          string           `json:"name"`
	Email         string           `json:"email"`
	Permissions   []string         `json:"permissions"`
	Categories    []string         `json:"categories"`
	ProfileID     int64            `json:"profileId,omitempty"`
	ProfileName   string           `json:"profileName,omitempty"`
	Teams         []TeamMembership `json:"teams"`
	CorrelationID string           `json:"-"`
	AuthTime      time.Time        `json:"authTime"`
}

// HasPermission reports whether the context grants every required
// permission name. Conjunction: one missing name fails the whole check.
func (a *AuthContext) HasPermission(required ...string) bool {
	if a == nil {
		return false
	}
	granted := make(map[string]struct{}, len(a.Permissions))
	for _, p := range a.Permissions {
		granted[strings.ToLower(p)] = struct{}{}
	}
	for _, name := range required {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		if _, ok := granted[name]; !ok {
			return false
		}
	}
	return true
}

// HasTeamAccess reports whether the user belongs to teamID and, when
// requiredRole is non-empty, holds exactly that role in it.
func (a *AuthContext) HasTeamAccess(teamID int64, requiredRole string) bool {
	if a == nil {
		return false
	}
	for _, m := range a.Teams {
		if m.TeamID != teamID {
			continue
		}
		if requiredRole == "" {
			return true
		}
		return m.Role == requiredRole
	}
	return false
}

type authContextKey struct{}

// ContextWithAuth stores the auth context in ctx.
func ContextWithAuth(ctx context.Context, a *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, a)
}

// AuthFromContext extracts the auth context, nil when unauthenticated.
func AuthFromContext(ctx context.Context) *AuthContext {
	a, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return a
}
