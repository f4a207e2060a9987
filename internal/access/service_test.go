package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCap struct {
	id       string
	key      string
	name     string
	category string
	systemID string
}

type fakeGrant struct {
	profileID    int64
	capabilityID string
	granted      bool
}

type fakeRepo struct {
	profiles     map[int64]Profile
	nextID       int64
	capabilities map[string]fakeCap
	grants       []fakeGrant
	assignments  map[int64][]int64
	overrides    map[int64]map[string]Override
	systems      map[string]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		profiles:     make(map[int64]Profile),
		capabilities: make(map[string]fakeCap),
		assignments:  make(map[int64][]int64),
		overrides:    make(map[int64]map[string]Override),
		systems:      map[string]string{"nup-kan": "NupKan Board"},
	}
}

func (r *fakeRepo) addCapability(systemID, key string) string {
	id := systemID + "_" + key
	r.capabilities[id] = fakeCap{id: id, key: key, name: key, category: "tasks", systemID: systemID}
	return id
}

func (r *fakeRepo) addProfile(name string) int64 {
	r.nextID++
	r.profiles[r.nextID] = Profile{ID: r.nextID, Name: name}
	return r.nextID
}

func (r *fakeRepo) grant(profileID int64, capabilityID string, granted bool) {
	r.grants = append(r.grants, fakeGrant{profileID: profileID, capabilityID: capabilityID, granted: granted})
}

func (r *fakeRepo) ListProfiles(ctx context.Context) ([]Profile, error) {
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (r *fakeRepo) GetProfile(ctx context.Context, id int64) (Profile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (r *fakeRepo) CreateProfile(ctx context.Context, name, description string, systemID *string) (Profile, error) {
	r.nextID++
	p := Profile{ID: r.nextID, Name: name, Description: description, SystemID: systemID}
	r.profiles[p.ID] = p
	return p, nil
}

func (r *fakeRepo) UpdateProfile(ctx context.Context, id int64, name, description string) (Profile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	p.Name, p.Description = name, description
	r.profiles[id] = p
	return p, nil
}

func (r *fakeRepo) DeleteProfile(ctx context.Context, id int64) (int64, error) {
	if _, ok := r.profiles[id]; !ok {
		return 0, nil
	}
	delete(r.profiles, id)
	return 1, nil
}

func (r *fakeRepo) ListProfileCapabilityIDs(ctx context.Context, profileID int64) ([]string, error) {
	var ids []string
	for _, g := range r.grants {
		if g.profileID == profileID && g.granted {
			ids = append(ids, g.capabilityID)
		}
	}
	return ids, nil
}

func (r *fakeRepo) AttachGrant(ctx context.Context, profileID int64, capabilityID string) error {
	r.grant(profileID, capabilityID, true)
	return nil
}

func (r *fakeRepo) DetachGrant(ctx context.Context, profileID int64, capabilityID string) error {
	kept := r.grants[:0]
	for _, g := range r.grants {
		if !(g.profileID == profileID && g.capabilityID == capabilityID) {
			kept = append(kept, g)
		}
	}
	r.grants = kept
	return nil
}

func (r *fakeRepo) AssignProfile(ctx context.Context, userID, profileID int64) error {
	r.assignments[userID] = append(r.assignments[userID], profileID)
	return nil
}

func (r *fakeRepo) RemoveProfile(ctx context.Context, userID, profileID int64) error {
	kept := r.assignments[userID][:0]
	for _, id := range r.assignments[userID] {
		if id != profileID {
			kept = append(kept, id)
		}
	}
	r.assignments[userID] = kept
	return nil
}

func (r *fakeRepo) ListAssignedProfileIDs(ctx context.Context, userID int64) ([]int64, error) {
	return r.assignments[userID], nil
}

func (r *fakeRepo) ListAssignedProfiles(ctx context.Context, userID int64) ([]Profile, error) {
	var out []Profile
	for _, id := range r.assignments[userID] {
		if p, ok := r.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeRepo) SetOverride(ctx context.Context, ov Override) error {
	if r.overrides[ov.UserID] == nil {
		r.overrides[ov.UserID] = make(map[string]Override)
	}
	r.overrides[ov.UserID][ov.CapabilityID] = ov
	return nil
}

func (r *fakeRepo) ClearOverride(ctx context.Context, userID int64, capabilityID string) error {
	delete(r.overrides[userID], capabilityID)
	return nil
}

func (r *fakeRepo) ListOverrides(ctx context.Context, userID int64, systemID string) ([]overrideDetail, error) {
	var out []overrideDetail
	for _, ov := range r.overrides[userID] {
		cap, ok := r.capabilities[ov.CapabilityID]
		if !ok {
			continue
		}
		if systemID != "" && cap.systemID != systemID {
			continue
		}
		out = append(out, overrideDetail{
			Override: ov,
			Key:      cap.key,
			Name:     cap.name,
			Category: cap.category,
			SystemID: cap.systemID,
		})
	}
	return out, nil
}

func (r *fakeRepo) ListGrantedCapabilities(ctx context.Context, profileIDs []int64, systemID string) ([]ResolvedPermission, error) {
	wanted := make(map[int64]struct{}, len(profileIDs))
	for _, id := range profileIDs {
		wanted[id] = struct{}{}
	}
	seen := make(map[string]struct{})
	var out []ResolvedPermission
	for _, g := range r.grants {
		if !g.granted {
			continue
		}
		if _, ok := wanted[g.profileID]; !ok {
			continue
		}
		cap, ok := r.capabilities[g.capabilityID]
		if !ok {
			continue
		}
		if systemID != "" && cap.systemID != systemID {
			continue
		}
		if _, dup := seen[cap.id]; dup {
			continue
		}
		seen[cap.id] = struct{}{}
		out = append(out, ResolvedPermission{
			CapabilityID: cap.id,
			Key:          cap.key,
			Name:         cap.name,
			Category:     cap.category,
			SystemID:     cap.systemID,
			Source:       SourceProfile,
		})
	}
	return out, nil
}

func (r *fakeRepo) SystemName(ctx context.Context, systemID string) (string, error) {
	name, ok := r.systems[systemID]
	if !ok {
		return "", ErrSystemNotFound
	}
	return name, nil
}

type recordingInvalidator struct {
	users []int64
}

func (ri *recordingInvalidator) InvalidateUser(ctx context.Context, userID int64) {
	ri.users = append(ri.users, userID)
}

func TestResolveUnionOverProfiles(t *testing.T) {
	repo := newFakeRepo()
	listID := repo.addCapability("nup-kan", "tasks-list")
	createID := repo.addCapability("nup-kan", "tasks-create")

	admin := repo.addProfile("Global Administrator")
	repo.grant(admin, listID, true)
	repo.grant(admin, createID, true)
	viewer := repo.addProfile("Viewer")
	repo.grant(viewer, listID, true)

	svc := NewService(repo, nil)
	ctx := context.Background()
	require.NoError(t, repo.AssignProfile(ctx, 1, admin))
	require.NoError(t, repo.AssignProfile(ctx, 1, viewer))

	resolution, err := svc.Resolve(ctx, 1, "")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"tasks-list", "tasks-create"}, resolution.GrantedKeys())
}

func TestResolveOverrideDominatesGrant(t *testing.T) {
	repo := newFakeRepo()
	listID := repo.addCapability("nup-kan", "tasks-list")
	createID := repo.addCapability("nup-kan", "tasks-create")

	admin := repo.addProfile("Global Administrator")
	repo.grant(admin, listID, true)
	repo.grant(admin, createID, true)

	svc := NewService(repo, nil)
	ctx := context.Background()
	require.NoError(t, repo.AssignProfile(ctx, 1, admin))
	require.NoError(t, repo.SetOverride(ctx, Override{UserID: 1, CapabilityID: createID, Granted: false}))

	resolution, err := svc.Resolve(ctx, 1, "")
	require.NoError(t, err)
	require.Equal(t, []string{"tasks-list"}, resolution.GrantedKeys())
}

func TestResolveOverrideAddsUngranted(t *testing.T) {
	repo := newFakeRepo()
	archiveID := repo.addCapability("nup-kan", "tasks-archive")

	svc := NewService(repo, nil)
	ctx := context.Background()
	require.NoError(t, repo.SetOverride(ctx, Override{UserID: 2, CapabilityID: archiveID, Granted: true, Reason: "temporary elevation"}))

	resolution, err := svc.Resolve(ctx, 2, "nup-kan")
	require.NoError(t, err)
	require.Equal(t, []string{"tasks-archive"}, resolution.GrantedKeys())
	require.Equal(t, SourceOverride, resolution.Permissions[0].Source)
}

func TestResolveDefaultDeny(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	resolution, err := svc.Resolve(context.Background(), 99, "")
	require.NoError(t, err)
	require.Empty(t, resolution.Permissions)
}

func TestResolveUnknownSystem(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	_, err := svc.Resolve(context.Background(), 1, "no-such-system")
	require.ErrorIs(t, err, ErrSystemNotFound)
}

func TestResolveScopedToSystem(t *testing.T) {
	repo := newFakeRepo()
	repo.systems["crm"] = "CRM"
	kanbanID := repo.addCapability("nup-kan", "tasks-list")
	crmID := repo.addCapability("crm", "leads-list")

	p := repo.addProfile("Mixed")
	repo.grant(p, kanbanID, true)
	repo.grant(p, crmID, true)

	svc := NewService(repo, nil)
	ctx := context.Background()
	require.NoError(t, repo.AssignProfile(ctx, 1, p))

	resolution, err := svc.Resolve(ctx, 1, "nup-kan")
	require.NoError(t, err)
	require.Equal(t, []string{"tasks-list"}, resolution.GrantedKeys())
	require.Equal(t, "NupKan Board", resolution.SystemName)
}

func TestProfileLevelDenyRowsAreInert(t *testing.T) {
	repo := newFakeRepo()
	listID := repo.addCapability("nup-kan", "tasks-list")

	grantor := repo.addProfile("Grantor")
	repo.grant(grantor, listID, true)
	denier := repo.addProfile("Denier")
	repo.grant(denier, listID, false)

	svc := NewService(repo, nil)
	ctx := context.Background()
	require.NoError(t, repo.AssignProfile(ctx, 1, grantor))
	require.NoError(t, repo.AssignProfile(ctx, 1, denier))

	// granted=false rows at the profile layer carry no meaning; only an
	// override can revoke.
	resolution, err := svc.Resolve(ctx, 1, "")
	require.NoError(t, err)
	require.Equal(t, []string{"tasks-list"}, resolution.GrantedKeys())
}

func TestCheckFunctionReasons(t *testing.T) {
	repo := newFakeRepo()
	listID := repo.addCapability("nup-kan", "tasks-list")
	p := repo.addProfile("Viewer")
	repo.grant(p, listID, true)

	svc := NewService(repo, nil)
	ctx := context.Background()
	require.NoError(t, repo.AssignProfile(ctx, 1, p))

	granted, reason, err := svc.CheckFunction(ctx, 1, "nup-kan", "tasks-list")
	require.NoError(t, err)
	require.True(t, granted)
	require.Equal(t, "granted by profile", reason)

	granted, reason, err = svc.CheckFunction(ctx, 1, "nup-kan", "tasks-delete")
	require.NoError(t, err)
	require.False(t, granted)
	require.Equal(t, "function not granted", reason)
}

func TestWritesInvalidateCachedResolutions(t *testing.T) {
	repo := newFakeRepo()
	capID := repo.addCapability("nup-kan", "tasks-list")
	p := repo.addProfile("Viewer")

	inv := &recordingInvalidator{}
	svc := NewService(repo, inv)
	ctx := context.Background()

	require.NoError(t, svc.AssignProfile(ctx, 7, p))
	require.NoError(t, svc.SetOverride(ctx, Override{UserID: 7, CapabilityID: capID, Granted: true}))
	require.NoError(t, svc.ClearOverride(ctx, 7, capID))
	require.NoError(t, svc.RemoveProfile(ctx, 7, p))

	require.Equal(t, []int64{7, 7, 7, 7}, inv.users)
}

func TestSetProfileGrantsDiffs(t *testing.T) {
	repo := newFakeRepo()
	a := repo.addCapability("nup-kan", "tasks-list")
	b := repo.addCapability("nup-kan", "tasks-create")
	c := repo.addCapability("nup-kan", "tasks-delete")
	p := repo.addProfile("Editor")
	repo.grant(p, a, true)
	repo.grant(p, b, true)

	svc := NewService(repo, nil)
	ctx := context.Background()
	require.NoError(t, svc.SetProfileGrants(ctx, p, []string{b, c}))

	ids, err := repo.ListProfileCapabilityIDs(ctx, p)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{b, c}, ids)
}
