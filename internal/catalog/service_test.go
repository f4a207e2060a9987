package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	systems      map[string]System
	capabilities map[string]Capability
	inserts      int
	updates      int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		systems:      make(map[string]System),
		capabilities: make(map[string]Capability),
	}
}

func (r *memoryRepo) GetSystem(ctx context.Context, id string) (System, error) {
	sys, ok := r.systems[id]
	if !ok {
		return System{}, ErrNotFound
	}
	return sys, nil
}

func (r *memoryRepo) UpsertSystem(ctx context.Context, sys System) (System, error) {
	sys.IsActive = true
	r.systems[sys.ID] = sys
	return sys, nil
}

func (r *memoryRepo) ListSystems(ctx context.Context) ([]System, error) {
	out := make([]System, 0, len(r.systems))
	for _, sys := range r.systems {
		out = append(out, sys)
	}
	return out, nil
}

func (r *memoryRepo) ListCapabilities(ctx context.Context, systemID string) ([]Capability, error) {
	var out []Capability
	for _, cap := range r.capabilities {
		if cap.SystemID == systemID {
			out = append(out, cap)
		}
	}
	return out, nil
}

func (r *memoryRepo) InsertCapability(ctx context.Context, cap Capability) error {
	r.inserts++
	r.capabilities[cap.ID] = cap
	return nil
}

func (r *memoryRepo) UpdateCapability(ctx context.Context, cap Capability) error {
	prev, ok := r.capabilities[cap.ID]
	if !ok {
		return ErrNotFound
	}
	cap.CreatedAt = prev.CreatedAt
	r.capabilities[cap.ID] = cap
	r.updates++
	return nil
}

func manifestOf(n int) SyncRequest {
	req := SyncRequest{
		System: SyncSystem{ID: "nup-kan", Name: "NupKan Board", APIURL: "http://localhost:3000/api"},
	}
	for i := 0; i < n; i++ {
		req.Functions = append(req.Functions, SyncFunction{
			Key:      fmt.Sprintf("cap-%03d", i),
			Name:     fmt.Sprintf("Capability %03d", i),
			Category: "tasks",
			Endpoint: fmt.Sprintf("/api/cap/%03d", i),
		})
	}
	return req
}

func TestSyncAgainstEmptyRegistry(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)

	result, err := svc.SyncFunctions(context.Background(), "nup-kan", manifestOf(64))
	require.NoError(t, err)
	require.Equal(t, SyncSummary{Total: 64, Created: 64}, result.Summary)
	require.Empty(t, result.RemovedFunctions)

	sys, err := repo.GetSystem(context.Background(), "nup-kan")
	require.NoError(t, err)
	require.True(t, sys.IsActive)
	require.Equal(t, "NupKan Board", sys.Name)
}

func TestSyncRerunIsUnchanged(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.SyncFunctions(ctx, "nup-kan", manifestOf(64))
	require.NoError(t, err)

	result, err := svc.SyncFunctions(ctx, "nup-kan", manifestOf(64))
	require.NoError(t, err)
	require.Equal(t, SyncSummary{Total: 64, Unchanged: 64}, result.Summary)
	require.Zero(t, repo.updates)
}

func TestSyncUpdatesInPlace(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.SyncFunctions(ctx, "nup-kan", manifestOf(3))
	require.NoError(t, err)

	req := manifestOf(3)
	req.Functions[1].Name = "Renamed Capability"
	result, err := svc.SyncFunctions(ctx, "nup-kan", req)
	require.NoError(t, err)
	require.Equal(t, SyncSummary{Total: 3, Updated: 1, Unchanged: 2}, result.Summary)

	caps, err := repo.ListCapabilities(ctx, "nup-kan")
	require.NoError(t, err)
	require.Len(t, caps, 3)
	// No duplicate rows: the same (system, key) updates the existing record.
	require.Equal(t, 3, repo.inserts)
}

func TestSyncReportsStaleWithoutDeleting(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.SyncFunctions(ctx, "nup-kan", manifestOf(5))
	require.NoError(t, err)

	result, err := svc.SyncFunctions(ctx, "nup-kan", manifestOf(3))
	require.NoError(t, err)
	require.Equal(t, SyncSummary{Total: 3, Unchanged: 3, Removed: 2}, result.Summary)
	require.Len(t, result.RemovedFunctions, 2)

	caps, err := repo.ListCapabilities(ctx, "nup-kan")
	require.NoError(t, err)
	require.Len(t, caps, 5)
}

func TestSyncRejectsInvalidKey(t *testing.T) {
	svc := NewService(newMemoryRepo())
	req := manifestOf(1)
	req.Functions[0].Key = "Not A Slug"

	_, err := svc.SyncFunctions(context.Background(), "nup-kan", req)
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestSyncRejectsSystemMismatch(t *testing.T) {
	svc := NewService(newMemoryRepo())
	req := manifestOf(1)
	req.System.ID = "other-system"

	_, err := svc.SyncFunctions(context.Background(), "nup-kan", req)
	require.Error(t, err)
}

func TestParseCapabilityKey(t *testing.T) {
	for _, valid := range []string{"tasks-list", "tasks_create", "a1", "boards-columns-move"} {
		key, err := ParseCapabilityKey(valid)
		require.NoError(t, err)
		require.Equal(t, valid, key.String())
	}
	for _, invalid := range []string{"", "Tasks-List", "tasks list", "-tasks", "tasks-"} {
		_, err := ParseCapabilityKey(invalid)
		require.ErrorIs(t, err, ErrInvalidKey, invalid)
	}
}

func TestCapabilityID(t *testing.T) {
	require.Equal(t, "nup-kan_tasks-list", CapabilityID("nup-kan", "tasks-list"))
}
