package board

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nupkan/permhub/internal/gateway"
	"github.com/nupkan/permhub/internal/platform/db"
	"github.com/nupkan/permhub/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the board, including
// the mirrored identity tables the gateway's local fallback path reads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindUserByID reads the mirrored user row. The mirror is refreshed out of
// band; a missing row means the user has never signed in here.
func (r *Repository) FindUserByID(ctx context.Context, id int64) (gateway.LocalUser, error) {
	var user gateway.LocalUser
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, is_active FROM mirrored_users WHERE id = $1`, id,
	).Scan(&user.ID, &user.Email, &user.Name, &user.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return gateway.LocalUser{}, shared.ErrNotFound
	}
	if err != nil {
		return gateway.LocalUser{}, err
	}
	return user, nil
}

// ListTeamMemberships returns every team the user belongs to with their role.
func (r *Repository) ListTeamMemberships(ctx context.Context, userID int64) ([]gateway.TeamMembership, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT team_id, role FROM team_members WHERE user_id = $1 ORDER BY team_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var memberships []gateway.TeamMembership
	for rows.Next() {
		var m gateway.TeamMembership
		if err := rows.Scan(&m.TeamID, &m.Role); err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// ListLocalGrants returns the mirrored permission names for the legacy
// session path. These rows are a cache of the registry's last resolution,
// never an independent source of grants.
func (r *Repository) ListLocalGrants(ctx context.Context, userID int64) ([]gateway.LocalGrant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT permission_name, category FROM mirrored_grants WHERE user_id = $1 ORDER BY permission_name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []gateway.LocalGrant
	for rows.Next() {
		var g gateway.LocalGrant
		if err := rows.Scan(&g.Name, &g.Category); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// UpsertMirroredUser refreshes the local mirror after a successful remote
// validation.
func (r *Repository) UpsertMirroredUser(ctx context.Context, user gateway.LocalUser) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO mirrored_users (id, email, name, is_active, synced_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (id) DO UPDATE SET email = $2, name = $3, is_active = $4, synced_at = NOW()`,
		user.ID, user.Email, user.Name, user.IsActive)
	return err
}

// ReplaceMirroredGrants swaps the user's mirrored grant rows for a fresh
// resolution snapshot.
func (r *Repository) ReplaceMirroredGrants(ctx context.Context, userID int64, grants []gateway.LocalGrant) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM mirrored_grants WHERE user_id = $1`, userID); err != nil {
			return err
		}
		for _, g := range grants {
			if _, err := tx.Exec(ctx,
				`INSERT INTO mirrored_grants (user_id, permission_name, category) VALUES ($1, $2, $3)`,
				userID, g.Name, g.Category); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListTasks returns tasks visible to the user, limited to teams they belong
// to, optionally filtered by status.
func (r *Repository) ListTasks(ctx context.Context, userID int64, status string) ([]Task, error) {
	query := `SELECT t.id, t.team_id, t.title, t.description, t.status, t.assignee_id, t.created_by, t.due_at, t.created_at, t.updated_at
		 FROM tasks t
		 JOIN team_members tm ON tm.team_id = t.team_id AND tm.user_id = $1`
	args := []any{userID}
	if status != "" {
		query += ` WHERE t.status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY t.created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []Task
	for rows.Next() {
		var task Task
		if err := rows.Scan(&task.ID, &task.TeamID, &task.Title, &task.Description, &task.Status,
			&task.AssigneeID, &task.CreatedBy, &task.DueAt, &task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// GetTask returns a single task.
func (r *Repository) GetTask(ctx context.Context, id int64) (Task, error) {
	var task Task
	err := r.pool.QueryRow(ctx,
		`SELECT id, team_id, title, description, status, assignee_id, created_by, due_at, created_at, updated_at
		 FROM tasks WHERE id = $1`, id,
	).Scan(&task.ID, &task.TeamID, &task.Title, &task.Description, &task.Status,
		&task.AssigneeID, &task.CreatedBy, &task.DueAt, &task.CreatedAt, &task.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, shared.ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	return task, nil
}

// CreateTask inserts a new card and returns it with generated fields.
func (r *Repository) CreateTask(ctx context.Context, task Task) (Task, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO tasks (team_id, title, description, status, assignee_id, created_by, due_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		task.TeamID, task.Title, task.Description, task.Status, task.AssigneeID, task.CreatedBy, task.DueAt,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return Task{}, err
	}
	return task, nil
}

// UpdateTaskStatus moves a card between columns.
func (r *Repository) UpdateTaskStatus(ctx context.Context, id int64, status string) (Task, error) {
	var task Task
	err := r.pool.QueryRow(ctx,
		`UPDATE tasks SET status = $2, updated_at = NOW() WHERE id = $1
		 RETURNING id, team_id, title, description, status, assignee_id, created_by, due_at, created_at, updated_at`,
		id, status,
	).Scan(&task.ID, &task.TeamID, &task.Title, &task.Description, &task.Status,
		&task.AssigneeID, &task.CreatedBy, &task.DueAt, &task.CreatedAt, &task.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, shared.ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	return task, nil
}
