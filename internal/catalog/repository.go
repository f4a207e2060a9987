package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort defines data access methods for systems and capabilities.
type RepositoryPort interface {
	GetSystem(ctx context.Context, id string) (System, error)
	UpsertSystem(ctx context.Context, sys System) (System, error)
	ListSystems(ctx context.Context) ([]System, error)
	ListCapabilities(ctx context.Context, systemID string) ([]Capability, error)
	InsertCapability(ctx context.Context, cap Capability) error
	UpdateCapability(ctx context.Context, cap Capability) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetSystem fetches one system by its slug.
func (r *Repository) GetSystem(ctx context.Context, id string) (System, error) {
	var sys System
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description, api_url, is_active, created_at, updated_at FROM systems WHERE id = $1`,
		id,
	).Scan(&sys.ID, &sys.Name, &sys.Description, &sys.APIURL, &sys.IsActive, &sys.CreatedAt, &sys.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return System{}, ErrNotFound
		}
		return System{}, err
	}
	return sys, nil
}

// UpsertSystem inserts or refreshes a system record by slug.
func (r *Repository) UpsertSystem(ctx context.Context, sys System) (System, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO systems (id, name, description, api_url, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, TRUE, now(), now())
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name, description = EXCLUDED.description, api_url = EXCLUDED.api_url, updated_at = now()
		 RETURNING id, name, description, api_url, is_active, created_at, updated_at`,
		sys.ID, sys.Name, sys.Description, sys.APIURL,
	).Scan(&sys.ID, &sys.Name, &sys.Description, &sys.APIURL, &sys.IsActive, &sys.CreatedAt, &sys.UpdatedAt)
	if err != nil {
		return System{}, err
	}
	return sys, nil
}

// ListSystems returns all systems ordered by id.
func (r *Repository) ListSystems(ctx context.Context) ([]System, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, description, api_url, is_active, created_at, updated_at FROM systems ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var systems []System
	for rows.Next() {
		var sys System
		if err := rows.Scan(&sys.ID, &sys.Name, &sys.Description, &sys.APIURL, &sys.IsActive, &sys.CreatedAt, &sys.UpdatedAt); err != nil {
			return nil, err
		}
		systems = append(systems, sys)
	}
	return systems, rows.Err()
}

// ListCapabilities returns all capabilities owned by a system.
func (r *Repository) ListCapabilities(ctx context.Context, systemID string) ([]Capability, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, system_id, key, name, category, description, endpoint, created_at, updated_at
		 FROM capabilities WHERE system_id = $1`,
		systemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var caps []Capability
	for rows.Next() {
		var cap Capability
		if err := rows.Scan(&cap.ID, &cap.SystemID, &cap.Key, &cap.Name, &cap.Category, &cap.Description, &cap.Endpoint, &cap.CreatedAt, &cap.UpdatedAt); err != nil {
			return nil, err
		}
		caps = append(caps, cap)
	}
	return caps, rows.Err()
}

// InsertCapability adds a new capability definition.
func (r *Repository) InsertCapability(ctx context.Context, cap Capability) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO capabilities (id, system_id, key, name, category, description, endpoint, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())`,
		cap.ID, cap.SystemID, string(cap.Key), cap.Name, cap.Category, cap.Description, cap.Endpoint)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Concurrent sync already inserted the same (system, key);
			// converge by updating in place.
			return r.UpdateCapability(ctx, cap)
		}
		return err
	}
	return nil
}

// UpdateCapability refreshes display fields for an existing capability.
func (r *Repository) UpdateCapability(ctx context.Context, cap Capability) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE capabilities
		 SET name = $3, category = $4, description = $5, endpoint = $6, updated_at = now()
		 WHERE system_id = $1 AND key = $2`,
		cap.SystemID, string(cap.Key), cap.Name, cap.Category, cap.Description, cap.Endpoint)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
