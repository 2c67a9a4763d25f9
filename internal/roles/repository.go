package roles

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-collab/backend/config"
	"github.com/atlas-collab/backend/internal/models"
)

// WorkspaceType is the pivot discriminator stored with object-scoped role
// assignments.
const WorkspaceType = "workspace"

// Repository handles role catalog and role-assignment persistence.
type Repository struct {
	pool *pgxpool.Pool
	cfg  config.WorkspacesConfig
}

// NewRepository creates a roles repository.
func NewRepository(pool *pgxpool.Pool, cfg config.WorkspacesConfig) *Repository {
	return &Repository{pool: pool, cfg: cfg}
}

// FindBySlug returns the role for (slug, scope), or (nil, nil) when absent.
func (r *Repository) FindBySlug(ctx context.Context, slug string, scope *string) (*models.WorkspaceRole, error) {
	const q = `SELECT id, slug, name, COALESCE(description,''), scope, created_at, updated_at
		FROM roles WHERE slug = $1 AND scope IS NOT DISTINCT FROM $2`
	var role models.WorkspaceRole
	err := r.pool.QueryRow(ctx, q, slug, scope).
		Scan(&role.ID, &role.Slug, &role.Name, &role.Description, &role.Scope, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

// GetByID returns a role by surrogate ID, or (nil, nil) when absent.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.WorkspaceRole, error) {
	const q = `SELECT id, slug, name, COALESCE(description,''), scope, created_at, updated_at
		FROM roles WHERE id = $1`
	var role models.WorkspaceRole
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&role.ID, &role.Slug, &role.Name, &role.Description, &role.Scope, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

// Create inserts a role, arbitrated by the unique (slug, scope) index. A
// concurrent duplicate insert resolves to the surviving row, never an error.
func (r *Repository) Create(ctx context.Context, role *models.WorkspaceRole) error {
	const q = `INSERT INTO roles (slug, name, description, scope)
		VALUES ($1, $2, NULLIF($3,''), $4)
		ON CONFLICT (slug, scope) DO UPDATE SET slug = EXCLUDED.slug
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, role.Slug, role.Name, role.Description, role.Scope).
		Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
}

// Provisioned reports whether the roles table exists. Used by the bootstrap
// guard so EnsureDefaultRoles can no-op before migrations have run.
func (r *Repository) Provisioned(ctx context.Context) (bool, error) {
	var ready bool
	err := r.pool.QueryRow(ctx, `SELECT to_regclass('roles') IS NOT NULL`).Scan(&ready)
	if err != nil {
		return false, err
	}
	return ready, nil
}

// Assign adds a role assignment for (user, workspace). Idempotent under the
// unique index; re-assigning an already-held role is a no-op.
func (r *Repository) Assign(ctx context.Context, userID uuid.UUID, roleID int64, workspace *models.Workspace) error {
	const q = `INSERT INTO role_assignments (role_id, user_id, workspace_type, workspace_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (role_id, user_id, workspace_type, workspace_id) DO NOTHING`
	wsType, wsID := r.pivot(workspace)
	_, err := r.pool.Exec(ctx, q, roleID, userID, wsType, wsID)
	return err
}

// Sync replaces every workspace-scoped role of (user, workspace) with the
// given role, atomically.
func (r *Repository) Sync(ctx context.Context, userID uuid.UUID, roleID int64, workspace *models.Workspace) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.detach(ctx, tx, userID, workspace); err != nil {
		return err
	}
	const q = `INSERT INTO role_assignments (role_id, user_id, workspace_type, workspace_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (role_id, user_id, workspace_type, workspace_id) DO NOTHING`
	wsType, wsID := r.pivot(workspace)
	if _, err := tx.Exec(ctx, q, roleID, userID, wsType, wsID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DetachAll removes every workspace-scoped role of (user, workspace).
func (r *Repository) DetachAll(ctx context.Context, userID uuid.UUID, workspace *models.Workspace) error {
	return r.detach(ctx, r.pool, userID, workspace)
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// MemberRoles lists the roles held by the user in the workspace, in storage
// order. Without object permissions, assignments are catalog-global and the
// result is limited to the managed slug set.
func (r *Repository) MemberRoles(ctx context.Context, userID uuid.UUID, workspace *models.Workspace) ([]models.WorkspaceRole, error) {
	var rows pgx.Rows
	var err error
	if r.cfg.ObjectPermissions {
		const q = `SELECT r.id, r.slug, r.name, COALESCE(r.description,''), r.scope, r.created_at, r.updated_at
			FROM roles r
			JOIN role_assignments ra ON ra.role_id = r.id
			WHERE ra.user_id = $1 AND ra.workspace_type = $2 AND ra.workspace_id = $3
			ORDER BY ra.id`
		rows, err = r.pool.Query(ctx, q, userID, WorkspaceType, workspace.ID)
	} else {
		const q = `SELECT r.id, r.slug, r.name, COALESCE(r.description,''), r.scope, r.created_at, r.updated_at
			FROM roles r
			JOIN role_assignments ra ON ra.role_id = r.id
			WHERE ra.user_id = $1 AND ra.workspace_type IS NULL AND ra.workspace_id IS NULL
				AND r.slug = ANY($2) AND r.scope IS NOT DISTINCT FROM $3
			ORDER BY ra.id`
		rows, err = r.pool.Query(ctx, q, userID, r.cfg.ManagedRoleSlugs(), r.scope())
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.WorkspaceRole
	for rows.Next() {
		var role models.WorkspaceRole
		if err := rows.Scan(&role.ID, &role.Slug, &role.Name, &role.Description, &role.Scope, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, role)
	}
	return list, rows.Err()
}

// HasRole reports whether the user holds the role in the workspace.
func (r *Repository) HasRole(ctx context.Context, userID uuid.UUID, roleID int64, workspace *models.Workspace) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM role_assignments
		WHERE user_id = $1 AND role_id = $2
			AND workspace_type IS NOT DISTINCT FROM $3 AND workspace_id IS NOT DISTINCT FROM $4
	)`
	wsType, wsID := r.pivot(workspace)
	var exists bool
	err := r.pool.QueryRow(ctx, q, userID, roleID, wsType, wsID).Scan(&exists)
	return exists, err
}

// HasPermission reports whether any role the user holds in the workspace
// grants the permission.
func (r *Repository) HasPermission(ctx context.Context, userID uuid.UUID, permission string, workspace *models.Workspace) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM role_assignments ra
		JOIN role_permissions rp ON rp.role_id = ra.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ra.user_id = $1 AND p.slug = $2
			AND ra.workspace_type IS NOT DISTINCT FROM $3 AND ra.workspace_id IS NOT DISTINCT FROM $4
	)`
	wsType, wsID := r.pivot(workspace)
	var exists bool
	err := r.pool.QueryRow(ctx, q, userID, permission, wsType, wsID).Scan(&exists)
	return exists, err
}

func (r *Repository) detach(ctx context.Context, runner execer, userID uuid.UUID, workspace *models.Workspace) error {
	if r.cfg.ObjectPermissions {
		const q = `DELETE FROM role_assignments
			WHERE user_id = $1 AND workspace_type = $2 AND workspace_id = $3`
		_, err := runner.Exec(ctx, q, userID, WorkspaceType, workspace.ID)
		return err
	}
	const q = `DELETE FROM role_assignments ra
		USING roles r
		WHERE ra.role_id = r.id AND ra.user_id = $1
			AND ra.workspace_type IS NULL AND ra.workspace_id IS NULL
			AND r.slug = ANY($2) AND r.scope IS NOT DISTINCT FROM $3`
	_, err := runner.Exec(ctx, q, userID, r.cfg.ManagedRoleSlugs(), r.scope())
	return err
}

func (r *Repository) scope() *string {
	if r.cfg.RoleScope == "" {
		return nil
	}
	scope := r.cfg.RoleScope
	return &scope
}

func (r *Repository) pivot(workspace *models.Workspace) (wsType *string, wsID *int64) {
	if !r.cfg.ObjectPermissions {
		return nil, nil
	}
	t := WorkspaceType
	id := workspace.ID
	return &t, &id
}
