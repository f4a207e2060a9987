package access

import (
	"context"
	"errors"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Invalidator drops cached resolutions after writes that change a user's
// effective permissions.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID int64)
}

// Service orchestrates profile administration and permission resolution.
type Service struct {
	repo        RepositoryPort
	invalidator Invalidator
}

// NewService constructs a Service. invalidator may be nil.
func NewService(repo RepositoryPort, invalidator Invalidator) *Service {
	return &Service{repo: repo, invalidator: invalidator}
}

// Resolve computes the effective permission set for a user, optionally
// scoped to one system. Profile grants union first, overrides apply last and
// win unconditionally. An unknown user simply has zero grants; an unknown
// system is ErrSystemNotFound.
func (s *Service) Resolve(ctx context.Context, userID int64, systemID string) (Resolution, error) {
	resolution := Resolution{UserID: userID, SystemID: systemID}

	if systemID != "" {
		name, err := s.repo.SystemName(ctx, systemID)
		if err != nil {
			return Resolution{}, err
		}
		resolution.SystemName = name
	}

	profileIDs, err := s.repo.ListAssignedProfileIDs(ctx, userID)
	if err != nil {
		return Resolution{}, err
	}

	var (
		granted   []ResolvedPermission
		overrides []overrideDetail
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		granted, err = s.repo.ListGrantedCapabilities(gctx, profileIDs, systemID)
		return err
	})
	g.Go(func() error {
		var err error
		overrides, err = s.repo.ListOverrides(gctx, userID, systemID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Resolution{}, err
	}

	effective := make(map[string]ResolvedPermission, len(granted))
	for _, p := range granted {
		effective[p.CapabilityID] = p
	}
	// Overrides are applied after profile aggregation; the ordering is a
	// correctness requirement, not an optimization.
	for _, ov := range overrides {
		if ov.Granted {
			effective[ov.CapabilityID] = ResolvedPermission{
				CapabilityID: ov.CapabilityID,
				Key:          ov.Key,
				Name:         ov.Name,
				Category:     ov.Category,
				SystemID:     ov.SystemID,
				Source:       SourceOverride,
			}
		} else {
			delete(effective, ov.CapabilityID)
		}
	}

	resolution.Permissions = make([]ResolvedPermission, 0, len(effective))
	for _, p := range effective {
		resolution.Permissions = append(resolution.Permissions, p)
	}
	sort.Slice(resolution.Permissions, func(i, j int) bool {
		return resolution.Permissions[i].Key < resolution.Permissions[j].Key
	})
	return resolution, nil
}

// CheckFunction reports whether a user holds one capability in a system.
func (s *Service) CheckFunction(ctx context.Context, userID int64, systemID, functionKey string) (bool, string, error) {
	resolution, err := s.Resolve(ctx, userID, systemID)
	if err != nil {
		return false, "", err
	}
	for _, p := range resolution.Permissions {
		if p.Key == functionKey {
			if p.Source == SourceOverride {
				return true, "granted by override", nil
			}
			return true, "granted by profile", nil
		}
	}
	return false, "function not granted", nil
}

// ListProfiles returns all profiles.
func (s *Service) ListProfiles(ctx context.Context) ([]Profile, error) {
	return s.repo.ListProfiles(ctx)
}

// GetProfile fetches a profile by ID.
func (s *Service) GetProfile(ctx context.Context, id int64) (Profile, error) {
	return s.repo.GetProfile(ctx, id)
}

// CreateProfile inserts a new profile.
func (s *Service) CreateProfile(ctx context.Context, name, description string, systemID *string) (Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Profile{}, errors.New("access: profile name required")
	}
	return s.repo.CreateProfile(ctx, name, strings.TrimSpace(description), systemID)
}

// UpdateProfile updates an existing profile.
func (s *Service) UpdateProfile(ctx context.Context, id int64, name, description string) (Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Profile{}, errors.New("access: profile name required")
	}
	return s.repo.UpdateProfile(ctx, id, name, strings.TrimSpace(description))
}

// DeleteProfile removes a profile by ID. Returns ErrNotFound if nothing was
// deleted.
func (s *Service) DeleteProfile(ctx context.Context, id int64) error {
	rows, err := s.repo.DeleteProfile(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProfileGrants replaces the granted capability set for a profile by
// diffing against current rows and attaching/detaching the difference.
func (s *Service) SetProfileGrants(ctx context.Context, profileID int64, capabilityIDs []string) error {
	current, err := s.repo.ListProfileCapabilityIDs(ctx, profileID)
	if err != nil {
		return err
	}
	existing := make(map[string]struct{}, len(current))
	for _, id := range current {
		existing[id] = struct{}{}
	}
	keep := make(map[string]struct{}, len(capabilityIDs))
	for _, id := range capabilityIDs {
		keep[id] = struct{}{}
		if _, ok := existing[id]; !ok {
			if err := s.repo.AttachGrant(ctx, profileID, id); err != nil {
				return err
			}
		}
	}
	for id := range existing {
		if _, ok := keep[id]; !ok {
			if err := s.repo.DetachGrant(ctx, profileID, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// AssignProfile assigns a profile to the given user and drops the user's
// cached resolutions.
func (s *Service) AssignProfile(ctx context.Context, userID, profileID int64) error {
	if err := s.repo.AssignProfile(ctx, userID, profileID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// RemoveProfile removes a profile from a user.
func (s *Service) RemoveProfile(ctx context.Context, userID, profileID int64) error {
	if err := s.repo.RemoveProfile(ctx, userID, profileID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// ListAssignedProfiles returns the profiles assigned to a user.
func (s *Service) ListAssignedProfiles(ctx context.Context, userID int64) ([]Profile, error) {
	return s.repo.ListAssignedProfiles(ctx, userID)
}

// SetOverride upserts a per-user capability override.
func (s *Service) SetOverride(ctx context.Context, ov Override) error {
	if ov.CapabilityID == "" {
		return errors.New("access: capability id required")
	}
	if err := s.repo.SetOverride(ctx, ov); err != nil {
		return err
	}
	s.invalidate(ctx, ov.UserID)
	return nil
}

// ClearOverride removes an override, restoring profile-derived behavior.
func (s *Service) ClearOverride(ctx context.Context, userID int64, capabilityID string) error {
	if err := s.repo.ClearOverride(ctx, userID, capabilityID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if s.invalidator != nil {
		s.invalidator.InvalidateUser(ctx, userID)
	}
}
