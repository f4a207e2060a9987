package gateway_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/nupkan/permhub/internal/gateway"
	"github.com/nupkan/permhub/internal/platform/cache"
	"github.com/nupkan/permhub/internal/shared"
)

type fakeRegistry struct {
	validateCalls int
	permCalls     int
	user          *gateway.RemoteUser
	perms         []gateway.RemotePermission
	profiles      []gateway.RemoteProfile
	rejectToken   bool
}

func (f *fakeRegistry) ValidateToken(_ context.Context, token string) (*gateway.RemoteUser, error) {
	f.validateCalls++
	if f.rejectToken || token == "" {
		return nil, gateway.ErrTokenRejected
	}
	return f.user, nil
}

func (f *fakeRegistry) UserSystemPermissions(_ context.Context, _ int64, _ string) ([]gateway.RemotePermission, error) {
	f.permCalls++
	return f.perms, nil
}

func (f *fakeRegistry) UserProfiles(_ context.Context, _ int64) ([]gateway.RemoteProfile, error) {
	return f.profiles, nil
}

type fakeDirectory struct {
	users  map[int64]gateway.LocalUser
	grants map[int64][]gateway.LocalGrant
	teams  map[int64][]gateway.TeamMembership
}

func (f *fakeDirectory) FindUserByID(_ context.Context, id int64) (gateway.LocalUser, error) {
	u, ok := f.users[id]
	if !ok {
		return gateway.LocalUser{}, shared.ErrNotFound
	}
	return u, nil
}

func (f *fakeDirectory) ListTeamMemberships(_ context.Context, userID int64) ([]gateway.TeamMembership, error) {
	return f.teams[userID], nil
}

func (f *fakeDirectory) ListLocalGrants(_ context.Context, userID int64) ([]gateway.LocalGrant, error) {
	return f.grants[userID], nil
}

func newTestGateway(registry gateway.RegistryAPI, local gateway.LocalDirectory) (*gateway.Gateway, *cache.MemoryStore) {
	store := cache.NewMemoryStore()
	return gateway.New(registry, local, nil, store, "nup-kan", nil), store
}

func bearerRequest(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestAuthenticateBearer(t *testing.T) {
	registry := &fakeRegistry{
		user: &gateway.RemoteUser{ID: 42, Email: "dian@example.com", Name: "Dian"},
		perms: []gateway.RemotePermission{
			{Key: "tasks-list", Name: "View Tasks", Category: "tasks"},
			{Key: "tasks-create", Name: "Create Tasks", Category: "tasks"},
		},
		profiles: []gateway.RemoteProfile{{ID: 3, Name: "Contributor"}},
	}
	local := &fakeDirectory{teams: map[int64][]gateway.TeamMembership{
		42: {{TeamID: 7, Role: "member"}},
	}}
	g, _ := newTestGateway(registry, local)

	authCtx, err := g.Authenticate(bearerRequest("token-abc"))
	require.NoError(t, err)
	require.Equal(t, int64(42), authCtx.UserID)
	require.Equal(t, []string{"View Tasks", "Create Tasks"}, authCtx.Permissions)
	require.Equal(t, []string{"tasks"}, authCtx.Categories)
	require.Equal(t, int64(3), authCtx.ProfileID)
	require.Equal(t, "Contributor", authCtx.ProfileName)
	require.True(t, authCtx.HasTeamAccess(7, "member"))
	require.NotEmpty(t, authCtx.CorrelationID)
}

func TestAuthenticateBearerCachesRemoteResult(t *testing.T) {
	registry := &fakeRegistry{
		user:  &gateway.RemoteUser{ID: 42, Email: "dian@example.com", Name: "Dian"},
		perms: []gateway.RemotePermission{{Key: "tasks-list", Name: "View Tasks", Category: "tasks"}},
	}
	g, _ := newTestGateway(registry, nil)

	first, err := g.Authenticate(bearerRequest("token-abc"))
	require.NoError(t, err)
	second, err := g.Authenticate(bearerRequest("token-abc"))
	require.NoError(t, err)

	require.Equal(t, 1, registry.validateCalls)
	require.Equal(t, 1, registry.permCalls)
	require.Equal(t, first.Permissions, second.Permissions)
	// Correlation IDs are per request, never served from cache.
	require.NotEqual(t, first.CorrelationID, second.CorrelationID)
}

func TestAuthenticateRejectedToken(t *testing.T) {
	registry := &fakeRegistry{rejectToken: true}
	g, _ := newTestGateway(registry, nil)

	_, err := g.Authenticate(bearerRequest("bad-token"))
	require.ErrorIs(t, err, shared.ErrNotAuthenticated)
}

func TestAuthenticateNoCredentials(t *testing.T) {
	g, _ := newTestGateway(&fakeRegistry{rejectToken: true}, nil)

	_, err := g.Authenticate(httptest.NewRequest(http.MethodGet, "/tasks", nil))
	require.ErrorIs(t, err, shared.ErrNotAuthenticated)
}

func TestLogoutInvalidatesUserCache(t *testing.T) {
	registry := &fakeRegistry{
		user:  &gateway.RemoteUser{ID: 42, Email: "dian@example.com", Name: "Dian"},
		perms: []gateway.RemotePermission{{Key: "tasks-list", Name: "View Tasks", Category: "tasks"}},
	}
	g, store := newTestGateway(registry, nil)

	_, err := g.Authenticate(bearerRequest("token-abc"))
	require.NoError(t, err)
	require.Positive(t, store.Len())

	g.Logout(context.Background(), 42)
	_, ok := store.Get(context.Background(), "authctx:user:42:bearer")
	require.False(t, ok)
}

func newSessionManager(t *testing.T) *shared.SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return shared.NewSessionManager(client, "permhub_session", time.Hour, false)
}

func mirroredDirectory() *fakeDirectory {
	return &fakeDirectory{
		users: map[int64]gateway.LocalUser{
			42: {ID: 42, Email: "dian@example.com", Name: "Dian", IsActive: true},
		},
		grants: map[int64][]gateway.LocalGrant{
			42: {{Name: "View Tasks", Category: "tasks"}},
		},
		teams: map[int64][]gateway.TeamMembership{
			42: {{TeamID: 7, Role: "member"}},
		},
	}
}

func establishSession(t *testing.T, g *gateway.Gateway, userID int64) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, g.EstablishSession(context.Background(), rec, &gateway.AuthContext{UserID: userID}))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func sessionRequest(cookie *http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	r.AddCookie(cookie)
	return r
}

func TestAuthenticateSessionFallback(t *testing.T) {
	// No bearer token anywhere; identity and grants come from the mirror.
	g := gateway.New(&fakeRegistry{rejectToken: true}, mirroredDirectory(), newSessionManager(t),
		cache.NewMemoryStore(), "nup-kan", nil)

	cookie := establishSession(t, g, 42)
	authCtx, err := g.Authenticate(sessionRequest(cookie))
	require.NoError(t, err)
	require.Equal(t, int64(42), authCtx.UserID)
	require.Equal(t, "dian@example.com", authCtx.Email)
	require.Equal(t, []string{"View Tasks"}, authCtx.Permissions)
	require.Equal(t, []string{"tasks"}, authCtx.Categories)
	require.True(t, authCtx.HasTeamAccess(7, "member"))
	// Session requests correlate on the session id.
	require.Equal(t, cookie.Value, authCtx.CorrelationID)
}

func TestAuthenticateSessionInactiveUser(t *testing.T) {
	local := mirroredDirectory()
	local.users[42] = gateway.LocalUser{ID: 42, Email: "dian@example.com", Name: "Dian", IsActive: false}
	g := gateway.New(&fakeRegistry{rejectToken: true}, local, newSessionManager(t),
		cache.NewMemoryStore(), "nup-kan", nil)

	cookie := establishSession(t, g, 42)
	_, err := g.Authenticate(sessionRequest(cookie))
	require.ErrorIs(t, err, shared.ErrNotAuthenticated)
}

func TestEstablishSessionRequiresStore(t *testing.T) {
	g, _ := newTestGateway(&fakeRegistry{rejectToken: true}, nil)

	err := g.EstablishSession(context.Background(), httptest.NewRecorder(), &gateway.AuthContext{UserID: 42})
	require.ErrorIs(t, err, gateway.ErrSessionsDisabled)
}

func TestClearSessionEndsFallback(t *testing.T) {
	g := gateway.New(&fakeRegistry{rejectToken: true}, mirroredDirectory(), newSessionManager(t),
		cache.NewMemoryStore(), "nup-kan", nil)

	cookie := establishSession(t, g, 42)
	_, err := g.Authenticate(sessionRequest(cookie))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	g.ClearSession(context.Background(), rec, sessionRequest(cookie))
	expired := rec.Result().Cookies()
	require.Len(t, expired, 1)
	require.Negative(t, expired[0].MaxAge)

	// The board's logout handler sweeps cached contexts alongside the
	// session; mirror that here.
	g.Logout(context.Background(), 42)
	_, err = g.Authenticate(sessionRequest(cookie))
	require.ErrorIs(t, err, shared.ErrNotAuthenticated)
}

func TestRequireAuthMiddleware(t *testing.T) {
	registry := &fakeRegistry{
		user:  &gateway.RemoteUser{ID: 42, Email: "dian@example.com", Name: "Dian"},
		perms: []gateway.RemotePermission{{Key: "tasks-list", Name: "View Tasks", Category: "tasks"}},
	}
	g, _ := newTestGateway(registry, nil)

	var seen *gateway.AuthContext
	handler := g.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = gateway.AuthFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, bearerRequest("token-abc"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	require.Equal(t, int64(42), seen.UserID)
	require.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	// Generic body, no detail about which step failed.
	require.NotContains(t, rec.Body.String(), "token")
}

func TestRequirePermissionsMiddleware(t *testing.T) {
	authCtx := &gateway.AuthContext{
		UserID:      42,
		Permissions: []string{"View Tasks"},
	}

	var called bool
	handler := gateway.RequirePermissions("View Tasks", "Create Tasks")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tasks", nil)
	handler.ServeHTTP(rec, req.WithContext(gateway.ContextWithAuth(req.Context(), authCtx)))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "Create Tasks")
	require.False(t, called)

	authCtx.Permissions = append(authCtx.Permissions, "create tasks")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(gateway.ContextWithAuth(req.Context(), authCtx)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, called)
}

func TestRequirePermissionsWithoutAuthContext(t *testing.T) {
	handler := gateway.RequirePermissions("View Tasks")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireTeamRoleMiddleware(t *testing.T) {
	authCtx := &gateway.AuthContext{
		UserID: 42,
		Teams:  []gateway.TeamMembership{{TeamID: 7, Role: "member"}},
	}
	fromRequest := func(*http.Request) (int64, error) { return 7, nil }

	allow := gateway.RequireTeamRole(fromRequest, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/teams/7/tasks", nil)
	allow.ServeHTTP(rec, req.WithContext(gateway.ContextWithAuth(req.Context(), authCtx)))
	require.Equal(t, http.StatusOK, rec.Code)

	deny := gateway.RequireTeamRole(fromRequest, "lead")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec = httptest.NewRecorder()
	deny.ServeHTTP(rec, req.WithContext(gateway.ContextWithAuth(req.Context(), authCtx)))
	require.Equal(t, http.StatusForbidden, rec.Code)

	badID := gateway.RequireTeamRole(func(*http.Request) (int64, error) {
		return 0, errors.New("not a number")
	}, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec = httptest.NewRecorder()
	badID.ServeHTTP(rec, req.WithContext(gateway.ContextWithAuth(req.Context(), authCtx)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
