package access

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort defines data access methods for profiles, grants,
// assignments and overrides.
type RepositoryPort interface {
	ListProfiles(ctx context.Context) ([]Profile, error)
	GetProfile(ctx context.Context, id int64) (Profile, error)
	CreateProfile(ctx context.Context, name, description string, systemID *string) (Profile, error)
	UpdateProfile(ctx context.Context, id int64, name, description string) (Profile, error)
	DeleteProfile(ctx context.Context, id int64) (int64, error)

	ListProfileCapabilityIDs(ctx context.Context, profileID int64) ([]string, error)
	AttachGrant(ctx context.Context, profileID int64, capabilityID string) error
	DetachGrant(ctx context.Context, profileID int64, capabilityID string) error

	AssignProfile(ctx context.Context, userID, profileID int64) error
	RemoveProfile(ctx context.Context, userID, profileID int64) error
	ListAssignedProfileIDs(ctx context.Context, userID int64) ([]int64, error)
	ListAssignedProfiles(ctx context.Context, userID int64) ([]Profile, error)

	SetOverride(ctx context.Context, ov Override) error
	ClearOverride(ctx context.Context, userID int64, capabilityID string) error
	ListOverrides(ctx context.Context, userID int64, systemID string) ([]overrideDetail, error)

	ListGrantedCapabilities(ctx context.Context, profileIDs []int64, systemID string) ([]ResolvedPermission, error)
	SystemName(ctx context.Context, systemID string) (string, error)
}

// overrideDetail is an override joined with its capability's display fields.
type overrideDetail struct {
	Override
	Key      string
	Name     string
	Category string
	SystemID string
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListProfiles returns all profiles ordered by name.
func (r *Repository) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, description, system_id, created_at, updated_at FROM profiles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProfiles(rows)
}

// GetProfile fetches a profile by ID.
func (r *Repository) GetProfile(ctx context.Context, id int64) (Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description, system_id, created_at, updated_at FROM profiles WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.SystemID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	return p, nil
}

// CreateProfile inserts a new profile.
func (r *Repository) CreateProfile(ctx context.Context, name, description string, systemID *string) (Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx,
		`INSERT INTO profiles (name, description, system_id, created_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())
		 RETURNING id, name, description, system_id, created_at, updated_at`,
		name, description, systemID,
	).Scan(&p.ID, &p.Name, &p.Description, &p.SystemID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}

// UpdateProfile updates an existing profile.
func (r *Repository) UpdateProfile(ctx context.Context, id int64, name, description string) (Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx,
		`UPDATE profiles SET name = $2, description = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING id, name, description, system_id, created_at, updated_at`,
		id, name, description,
	).Scan(&p.ID, &p.Name, &p.Description, &p.SystemID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	return p, nil
}

// DeleteProfile removes a profile, returning the affected row count.
func (r *Repository) DeleteProfile(ctx context.Context, id int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListProfileCapabilityIDs returns capability ids granted by a profile.
func (r *Repository) ListProfileCapabilityIDs(ctx context.Context, profileID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT capability_id FROM profile_grants WHERE profile_id = $1 AND granted`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AttachGrant adds a granted row for (profile, capability).
func (r *Repository) AttachGrant(ctx context.Context, profileID int64, capabilityID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO profile_grants (profile_id, capability_id, granted, created_at)
		 VALUES ($1, $2, TRUE, now())
		 ON CONFLICT (profile_id, capability_id) DO UPDATE SET granted = TRUE`,
		profileID, capabilityID)
	return err
}

// DetachGrant removes the grant row for (profile, capability).
func (r *Repository) DetachGrant(ctx context.Context, profileID int64, capabilityID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM profile_grants WHERE profile_id = $1 AND capability_id = $2`,
		profileID, capabilityID)
	return err
}

// AssignProfile links a user to a profile.
func (r *Repository) AssignProfile(ctx context.Context, userID, profileID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_profile_assignments (user_id, profile_id, created_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id, profile_id) DO NOTHING`,
		userID, profileID)
	return err
}

// RemoveProfile unlinks a user from a profile.
func (r *Repository) RemoveProfile(ctx context.Context, userID, profileID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM user_profile_assignments WHERE user_id = $1 AND profile_id = $2`,
		userID, profileID)
	return err
}

// ListAssignedProfileIDs returns profile ids assigned to a user.
func (r *Repository) ListAssignedProfileIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT profile_id FROM user_profile_assignments WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListAssignedProfiles returns the profiles assigned to a user.
func (r *Repository) ListAssignedProfiles(ctx context.Context, userID int64) ([]Profile, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.name, p.description, p.system_id, p.created_at, p.updated_at
		 FROM profiles p
		 JOIN user_profile_assignments upa ON upa.profile_id = p.id
		 WHERE upa.user_id = $1
		 ORDER BY p.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProfiles(rows)
}

// SetOverride upserts a per-user capability override.
func (r *Repository) SetOverride(ctx context.Context, ov Override) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_capability_overrides (user_id, capability_id, granted, reason, created_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (user_id, capability_id) DO UPDATE SET granted = EXCLUDED.granted, reason = EXCLUDED.reason`,
		ov.UserID, ov.CapabilityID, ov.Granted, ov.Reason)
	return err
}

// ClearOverride removes an override row.
func (r *Repository) ClearOverride(ctx context.Context, userID int64, capabilityID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM user_capability_overrides WHERE user_id = $1 AND capability_id = $2`,
		userID, capabilityID)
	return err
}

// ListOverrides returns a user's overrides joined with capability display
// fields, optionally restricted to one system.
func (r *Repository) ListOverrides(ctx context.Context, userID int64, systemID string) ([]overrideDetail, error) {
	query := `SELECT o.user_id, o.capability_id, o.granted, o.reason, c.key, c.name, c.category, c.system_id
		 FROM user_capability_overrides o
		 JOIN capabilities c ON c.id = o.capability_id
		 WHERE o.user_id = $1`
	args := []any{userID}
	if systemID != "" {
		query += ` AND c.system_id = $2`
		args = append(args, systemID)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []overrideDetail
	for rows.Next() {
		var d overrideDetail
		if err := rows.Scan(&d.UserID, &d.CapabilityID, &d.Granted, &d.Reason, &d.Key, &d.Name, &d.Category, &d.SystemID); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListGrantedCapabilities returns the union of capabilities granted by the
// given profiles. Only granted=true rows participate: the profile layer is
// add-only, revocation happens exclusively through overrides.
func (r *Repository) ListGrantedCapabilities(ctx context.Context, profileIDs []int64, systemID string) ([]ResolvedPermission, error) {
	if len(profileIDs) == 0 {
		return nil, nil
	}
	query := `SELECT DISTINCT c.id, c.key, c.name, c.category, c.system_id
		 FROM profile_grants pg
		 JOIN capabilities c ON c.id = pg.capability_id
		 WHERE pg.granted AND pg.profile_id = ANY($1)`
	args := []any{profileIDs}
	if systemID != "" {
		query += ` AND c.system_id = $2`
		args = append(args, systemID)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ResolvedPermission
	for rows.Next() {
		var p ResolvedPermission
		if err := rows.Scan(&p.CapabilityID, &p.Key, &p.Name, &p.Category, &p.SystemID); err != nil {
			return nil, err
		}
		p.Source = SourceProfile
		out = append(out, p)
	}
	return out, rows.Err()
}

// SystemName returns the display name for a system id.
func (r *Repository) SystemName(ctx context.Context, systemID string) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM systems WHERE id = $1`, systemID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrSystemNotFound
		}
		return "", err
	}
	return name, nil
}

func scanProfiles(rows pgx.Rows) ([]Profile, error) {
	var profiles []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.SystemID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}
