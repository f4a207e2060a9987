package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nupkan/permhub/internal/platform/cache"
	"github.com/nupkan/permhub/internal/shared"
)

// tokenPrefixLen bounds how much of the raw token lands in cache keys.
const tokenPrefixLen = 24

// ErrSessionsDisabled is returned when the session store is not configured,
// which happens when the board runs without redis.
var ErrSessionsDisabled = errors.New("gateway: session store disabled")

// LocalUser is the board's read-only mirror of a registry user.
type LocalUser struct {
	ID       int64
	Email    string
	Name     string
	IsActive bool
}

// LocalGrant is one permission name from the board's mirrored grant data,
// used by the legacy session path only.
type LocalGrant struct {
	Name     string
	Category string
}

// LocalDirectory is the board-side mirrored data the legacy session path
// resolves identity and permissions from. It is never authoritative.
type LocalDirectory interface {
	FindUserByID(ctx context.Context, id int64) (LocalUser, error)
	ListTeamMemberships(ctx context.Context, userID int64) ([]TeamMembership, error)
	ListLocalGrants(ctx context.Context, userID int64) ([]LocalGrant, error)
}

// MirrorWriter is optionally implemented by a LocalDirectory whose mirror can
// be refreshed. After every successful remote validation the gateway writes
// the latest identity and grant snapshot back, so the session fallback path
// serves data at most one bearer login old.
type MirrorWriter interface {
	UpsertMirroredUser(ctx context.Context, user LocalUser) error
	ReplaceMirroredGrants(ctx context.Context, userID int64, grants []LocalGrant) error
}

// Gateway authenticates inbound board requests. Bearer tokens validate
// against the registry; session cookies fall back to mirrored local data.
type Gateway struct {
	registry RegistryAPI
	local    LocalDirectory
	sessions *shared.SessionManager
	cache    cache.Store
	systemID string
	logger   *slog.Logger
}

// New constructs a Gateway. sessions may be nil to disable the legacy path.
func New(registry RegistryAPI, local LocalDirectory, sessions *shared.SessionManager, store cache.Store, systemID string, logger *slog.Logger) *Gateway {
	return &Gateway{
		registry: registry,
		local:    local,
		sessions: sessions,
		cache:    store,
		systemID: systemID,
		logger:   logger,
	}
}

// Authenticate resolves the caller's identity and permissions. It returns
// shared.ErrNotAuthenticated when neither a bearer token nor a session
// yields an identity; callers render that as a generic 401 with no detail.
func (g *Gateway) Authenticate(r *http.Request) (*AuthContext, error) {
	ctx := r.Context()

	if token := bearerToken(r); token != "" {
		authCtx, err := g.authenticateBearer(ctx, token)
		if err != nil {
			return nil, err
		}
		return authCtx, nil
	}

	if g.sessions != nil {
		if authCtx, err := g.authenticateSession(ctx, r); err == nil && authCtx != nil {
			return authCtx, nil
		}
	}

	return nil, shared.ErrNotAuthenticated
}

// Logout drops every cached context for the user so the next request
// re-resolves from the source of truth.
func (g *Gateway) Logout(ctx context.Context, userID int64) {
	if g.cache == nil {
		return
	}
	g.cache.InvalidatePattern(ctx, "authctx:user:"+strconv.FormatInt(userID, 10)+":*")
}

// EstablishSession issues a session cookie for an already authenticated
// caller, enabling the legacy cookie path for subsequent requests.
func (g *Gateway) EstablishSession(ctx context.Context, w http.ResponseWriter, authCtx *AuthContext) error {
	if g.sessions == nil {
		return ErrSessionsDisabled
	}
	sess := g.sessions.New()
	sess.SetUser(strconv.FormatInt(authCtx.UserID, 10))
	return g.sessions.Commit(ctx, w, sess)
}

// ClearSession destroys the request's session, if any, and expires the
// cookie. Safe to call when sessions are disabled.
func (g *Gateway) ClearSession(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if g.sessions == nil {
		return
	}
	sess, err := g.sessions.Load(ctx, r)
	if err != nil || sess == nil {
		return
	}
	g.sessions.Destroy(sess)
	if err := g.sessions.Commit(ctx, w, sess); err != nil && g.logger != nil {
		g.logger.Warn("clear session", slog.Any("error", err))
	}
}

func (g *Gateway) authenticateBearer(ctx context.Context, token string) (*AuthContext, error) {
	key := tokenCacheKey(token)
	if cached := g.cachedContext(ctx, key); cached != nil {
		cached.CorrelationID = uuid.NewString()
		return cached, nil
	}

	user, err := g.registry.ValidateToken(ctx, token)
	if err != nil {
		if err != ErrTokenRejected && g.logger != nil {
			g.logger.Warn("token validation", slog.Any("error", err))
		}
		return nil, shared.ErrNotAuthenticated
	}

	perms, err := g.registry.UserSystemPermissions(ctx, user.ID, g.systemID)
	if err != nil {
		if g.logger != nil {
			g.logger.Warn("fetch permissions", slog.Int64("user", user.ID), slog.Any("error", err))
		}
		return nil, shared.ErrNotAuthenticated
	}

	authCtx := &AuthContext{
		UserID:   user.ID,
		Name:     user.Name,
		Email:    user.Email,
		AuthTime: time.Now(),
	}
	for _, p := range perms {
		// This deployment checks against display names, not raw keys.
		authCtx.Permissions = append(authCtx.Permissions, p.Name)
	}
	authCtx.Categories = distinctCategories(perms)

	if profiles, err := g.registry.UserProfiles(ctx, user.ID); err == nil && len(profiles) > 0 {
		authCtx.ProfileID = profiles[0].ID
		authCtx.ProfileName = profiles[0].Name
	}
	if g.local != nil {
		if teams, err := g.local.ListTeamMemberships(ctx, user.ID); err == nil {
			authCtx.Teams = teams
		}
	}

	g.refreshMirror(ctx, user, perms)

	// Remote-validated contexts keep for the medium tier, cached both by
	// token prefix and by user id so logout can sweep them.
	g.storeContext(ctx, key, authCtx, cache.TTLMedium)
	g.storeContext(ctx, userCacheKey(authCtx.UserID, "bearer"), authCtx, cache.TTLMedium)

	authCtx.CorrelationID = uuid.NewString()
	return authCtx, nil
}

func (g *Gateway) authenticateSession(ctx context.Context, r *http.Request) (*AuthContext, error) {
	sess, err := g.sessions.Load(ctx, r)
	if err != nil || sess == nil || sess.User() == "" {
		return nil, shared.ErrNotAuthenticated
	}
	userID, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		return nil, shared.ErrNotAuthenticated
	}

	key := userCacheKey(userID, "local")
	if cached := g.cachedContext(ctx, key); cached != nil {
		cached.CorrelationID = sess.ID
		return cached, nil
	}

	user, err := g.local.FindUserByID(ctx, userID)
	if err != nil || !user.IsActive {
		return nil, shared.ErrNotAuthenticated
	}
	grants, err := g.local.ListLocalGrants(ctx, userID)
	if err != nil {
		return nil, shared.ErrNotAuthenticated
	}
	teams, err := g.local.ListTeamMemberships(ctx, userID)
	if err != nil {
		teams = nil
	}

	authCtx := &AuthContext{
		UserID:   user.ID,
		Name:     user.Name,
		Email:    user.Email,
		Teams:    teams,
		AuthTime: time.Now(),
	}
	categories := make(map[string]struct{})
	for _, grant := range grants {
		authCtx.Permissions = append(authCtx.Permissions, grant.Name)
		if grant.Category != "" {
			categories[grant.Category] = struct{}{}
		}
	}
	authCtx.Categories = sortedKeys(categories)

	// Local-session contexts churn faster; short tier.
	g.storeContext(ctx, key, authCtx, cache.TTLShort)

	authCtx.CorrelationID = sess.ID
	return authCtx, nil
}

func (g *Gateway) refreshMirror(ctx context.Context, user *RemoteUser, perms []RemotePermission) {
	mirror, ok := g.local.(MirrorWriter)
	if !ok {
		return
	}
	local := LocalUser{ID: user.ID, Email: user.Email, Name: user.Name, IsActive: true}
	if err := mirror.UpsertMirroredUser(ctx, local); err != nil {
		if g.logger != nil {
			g.logger.Warn("refresh mirrored user", slog.Int64("user", user.ID), slog.Any("error", err))
		}
		return
	}
	grants := make([]LocalGrant, 0, len(perms))
	for _, p := range perms {
		grants = append(grants, LocalGrant{Name: p.Name, Category: p.Category})
	}
	if err := mirror.ReplaceMirroredGrants(ctx, user.ID, grants); err != nil && g.logger != nil {
		g.logger.Warn("refresh mirrored grants", slog.Int64("user", user.ID), slog.Any("error", err))
	}
}

func (g *Gateway) cachedContext(ctx context.Context, key string) *AuthContext {
	if g.cache == nil {
		return nil
	}
	payload, ok := g.cache.Get(ctx, key)
	if !ok {
		return nil
	}
	var authCtx AuthContext
	if err := json.Unmarshal(payload, &authCtx); err != nil {
		return nil
	}
	return &authCtx
}

func (g *Gateway) storeContext(ctx context.Context, key string, authCtx *AuthContext, ttl time.Duration) {
	if g.cache == nil {
		return
	}
	if payload, err := json.Marshal(authCtx); err == nil {
		g.cache.Set(ctx, key, payload, ttl)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func tokenCacheKey(token string) string {
	prefix := token
	if len(prefix) > tokenPrefixLen {
		prefix = prefix[:tokenPrefixLen]
	}
	return "authctx:token:" + prefix
}

func userCacheKey(userID int64, path string) string {
	return "authctx:user:" + strconv.FormatInt(userID, 10) + ":" + path
}

func distinctCategories(perms []RemotePermission) []string {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		if p.Category != "" {
			set[p.Category] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
