package workspaces

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-collab/backend/internal/models"
)

// Repository handles workspace, membership and assignment persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a workspaces repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a workspace.
func (r *Repository) Create(ctx context.Context, ws *models.Workspace) error {
	const q = `INSERT INTO workspaces (uuid, name, slug, owner_id, meta)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, ws.UUID, ws.Name, ws.Slug, ws.OwnerID, ws.Meta).
		Scan(&ws.ID, &ws.CreatedAt, &ws.UpdatedAt)
}

// GetByUUID returns a workspace by external identifier, or (nil, nil).
func (r *Repository) GetByUUID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	const q = `SELECT id, uuid, name, slug, owner_id, meta, created_at, updated_at
		FROM workspaces WHERE uuid = $1`
	var ws models.Workspace
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&ws.ID, &ws.UUID, &ws.Name, &ws.Slug, &ws.OwnerID, &ws.Meta, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &ws, nil
}

// GetByID returns a workspace by surrogate ID, or (nil, nil).
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Workspace, error) {
	const q = `SELECT id, uuid, name, slug, owner_id, meta, created_at, updated_at
		FROM workspaces WHERE id = $1`
	var ws models.Workspace
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&ws.ID, &ws.UUID, &ws.Name, &ws.Slug, &ws.OwnerID, &ws.Meta, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &ws, nil
}

// ListForUser returns workspaces where the user has an active membership.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Workspace, error) {
	const q = `SELECT w.id, w.uuid, w.name, w.slug, w.owner_id, w.meta, w.created_at, w.updated_at
		FROM workspaces w
		INNER JOIN workspace_members m ON m.workspace_id = w.id
		WHERE m.user_id = $1 AND m.removed_at IS NULL
		ORDER BY w.name`
	return r.queryWorkspaces(ctx, q, userID)
}

// ListOwnedBy returns workspaces owned by the user.
func (r *Repository) ListOwnedBy(ctx context.Context, userID uuid.UUID) ([]models.Workspace, error) {
	const q = `SELECT id, uuid, name, slug, owner_id, meta, created_at, updated_at
		FROM workspaces WHERE owner_id = $1 ORDER BY name`
	return r.queryWorkspaces(ctx, q, userID)
}

// UpdateOwner persists the owner reference.
func (r *Repository) UpdateOwner(ctx context.Context, workspaceID int64, ownerID *uuid.UUID) error {
	const q = `UPDATE workspaces SET owner_id = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, workspaceID, ownerID)
	return err
}

// Membership returns the (workspace, user) record including removed ones, or
// (nil, nil) when none exists.
func (r *Repository) Membership(ctx context.Context, workspaceID int64, userID uuid.UUID) (*models.Membership, error) {
	const q = `SELECT id, uuid, workspace_id, user_id, last_joined_at, removed_at, created_at, updated_at
		FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`
	var m models.Membership
	err := r.pool.QueryRow(ctx, q, workspaceID, userID).
		Scan(&m.ID, &m.UUID, &m.WorkspaceID, &m.UserID, &m.LastJoinedAt, &m.RemovedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// UpsertMembership creates or reactivates the membership row. Concurrent
// first joins race on the unique (workspace_id, user_id) index and resolve to
// the surviving row. removed_at is cleared and last_joined_at refreshed on
// every call.
func (r *Repository) UpsertMembership(ctx context.Context, workspaceID int64, userID uuid.UUID) (*models.Membership, error) {
	const q = `INSERT INTO workspace_members (uuid, workspace_id, user_id, last_joined_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (workspace_id, user_id)
		DO UPDATE SET removed_at = NULL, last_joined_at = NOW(), updated_at = NOW()
		RETURNING id, uuid, workspace_id, user_id, last_joined_at, removed_at, created_at, updated_at`
	var m models.Membership
	err := r.pool.QueryRow(ctx, q, uuid.New(), workspaceID, userID).
		Scan(&m.ID, &m.UUID, &m.WorkspaceID, &m.UserID, &m.LastJoinedAt, &m.RemovedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MarkMembershipRemoved stamps removed_at; the row persists as audit trail.
func (r *Repository) MarkMembershipRemoved(ctx context.Context, workspaceID int64, userID uuid.UUID) error {
	const q = `UPDATE workspace_members SET removed_at = NOW(), updated_at = NOW()
		WHERE workspace_id = $1 AND user_id = $2 AND removed_at IS NULL`
	_, err := r.pool.Exec(ctx, q, workspaceID, userID)
	return err
}

// ListMembers returns active members joined with user details.
func (r *Repository) ListMembers(ctx context.Context, workspaceID int64) ([]models.Member, error) {
	const q = `SELECT m.uuid, m.user_id, u.email, COALESCE(u.full_name, ''), m.last_joined_at
		FROM workspace_members m
		INNER JOIN users u ON u.id = m.user_id
		WHERE m.workspace_id = $1 AND m.removed_at IS NULL
		ORDER BY m.created_at ASC`
	rows, err := r.pool.Query(ctx, q, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.MembershipUUID, &m.UserID, &m.Email, &m.FullName, &m.LastJoinedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// UpsertAssignment attaches a resource, create-if-absent on the unique
// (workspace, resource_type, resource_id) triple. The surviving row's
// identity is returned in place.
func (r *Repository) UpsertAssignment(ctx context.Context, a *models.Assignment) error {
	const q = `INSERT INTO workspace_assignments (uuid, workspace_id, resource_type, resource_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workspace_id, resource_type, resource_id)
		DO UPDATE SET resource_type = EXCLUDED.resource_type
		RETURNING id, uuid, created_at`
	return r.pool.QueryRow(ctx, q, a.UUID, a.WorkspaceID, a.ResourceType, a.ResourceID).
		Scan(&a.ID, &a.UUID, &a.CreatedAt)
}

// DeleteAssignment removes the matching attachment triple.
func (r *Repository) DeleteAssignment(ctx context.Context, workspaceID int64, resourceType, resourceID string) error {
	const q = `DELETE FROM workspace_assignments
		WHERE workspace_id = $1 AND resource_type = $2 AND resource_id = $3`
	_, err := r.pool.Exec(ctx, q, workspaceID, resourceType, resourceID)
	return err
}

// ListAssignments returns the resources attached to a workspace.
func (r *Repository) ListAssignments(ctx context.Context, workspaceID int64) ([]models.Assignment, error) {
	const q = `SELECT id, uuid, workspace_id, resource_type, resource_id, created_at
		FROM workspace_assignments WHERE workspace_id = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, q, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Assignment
	for rows.Next() {
		var a models.Assignment
		if err := rows.Scan(&a.ID, &a.UUID, &a.WorkspaceID, &a.ResourceType, &a.ResourceID, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func (r *Repository) queryWorkspaces(ctx context.Context, q string, args ...any) ([]models.Workspace, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Workspace
	for rows.Next() {
		var ws models.Workspace
		if err := rows.Scan(&ws.ID, &ws.UUID, &ws.Name, &ws.Slug, &ws.OwnerID, &ws.Meta, &ws.CreatedAt, &ws.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, ws)
	}
	return list, rows.Err()
}
