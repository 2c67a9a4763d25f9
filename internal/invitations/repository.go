package invitations

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-collab/backend/internal/models"
)

// Repository handles invitation persistence. Soft-deleted rows are excluded
// from every read; DeleteForEmail removes rows outright so at most one live
// invitation exists per (workspace, email).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an invitations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const invitationColumns = `i.id, i.uuid, i.workspace_id, i.email, i.role_id, COALESCE(r.slug,''), i.token,
	i.expires_at, i.accepted_at, i.declined_at, i.deleted_at, i.created_at, i.updated_at`

// Create inserts an invitation.
func (repo *Repository) Create(ctx context.Context, inv *models.Invitation) error {
	const q = `INSERT INTO workspace_invitations (uuid, workspace_id, email, role_id, token, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	return repo.pool.QueryRow(ctx, q, inv.UUID, inv.WorkspaceID, inv.Email, inv.RoleID, inv.Token, inv.ExpiresAt).
		Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
}

// DeleteForEmail hard-removes every invitation for (workspace, email),
// handled ones included. Issuing a new invitation erases prior history for
// the pair.
func (repo *Repository) DeleteForEmail(ctx context.Context, workspaceID int64, email string) error {
	const q = `DELETE FROM workspace_invitations WHERE workspace_id = $1 AND email = $2`
	_, err := repo.pool.Exec(ctx, q, workspaceID, email)
	return err
}

// GetByToken returns the live invitation carrying the token, or (nil, nil).
func (repo *Repository) GetByToken(ctx context.Context, token string) (*models.Invitation, error) {
	q := `SELECT ` + invitationColumns + `
		FROM workspace_invitations i
		LEFT JOIN roles r ON r.id = i.role_id
		WHERE i.token = $1 AND i.deleted_at IS NULL`
	return repo.queryOne(ctx, q, token)
}

// LatestForEmail returns the most recent invitation for (workspace, email),
// or (nil, nil).
func (repo *Repository) LatestForEmail(ctx context.Context, workspaceID int64, email string) (*models.Invitation, error) {
	q := `SELECT ` + invitationColumns + `
		FROM workspace_invitations i
		LEFT JOIN roles r ON r.id = i.role_id
		WHERE i.workspace_id = $1 AND i.email = $2 AND i.deleted_at IS NULL
		ORDER BY i.created_at DESC
		LIMIT 1`
	return repo.queryOne(ctx, q, workspaceID, email)
}

// ListByWorkspace returns live invitations for a workspace, newest first.
func (repo *Repository) ListByWorkspace(ctx context.Context, workspaceID int64) ([]models.Invitation, error) {
	q := `SELECT ` + invitationColumns + `
		FROM workspace_invitations i
		LEFT JOIN roles r ON r.id = i.role_id
		WHERE i.workspace_id = $1 AND i.deleted_at IS NULL
		ORDER BY i.created_at DESC`
	rows, err := repo.pool.Query(ctx, q, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Invitation
	for rows.Next() {
		var inv models.Invitation
		if err := scanInvitation(rows, &inv); err != nil {
			return nil, err
		}
		list = append(list, inv)
	}
	return list, rows.Err()
}

// MarkAccepted stamps accepted_at.
func (repo *Repository) MarkAccepted(ctx context.Context, id int64) (time.Time, error) {
	const q = `UPDATE workspace_invitations SET accepted_at = NOW(), updated_at = NOW()
		WHERE id = $1 RETURNING accepted_at`
	var at time.Time
	err := repo.pool.QueryRow(ctx, q, id).Scan(&at)
	return at, err
}

// MarkDeclined stamps declined_at.
func (repo *Repository) MarkDeclined(ctx context.Context, id int64) (time.Time, error) {
	const q = `UPDATE workspace_invitations SET declined_at = NOW(), updated_at = NOW()
		WHERE id = $1 RETURNING declined_at`
	var at time.Time
	err := repo.pool.QueryRow(ctx, q, id).Scan(&at)
	return at, err
}

func (repo *Repository) queryOne(ctx context.Context, q string, args ...any) (*models.Invitation, error) {
	var inv models.Invitation
	row := repo.pool.QueryRow(ctx, q, args...)
	if err := scanInvitation(row, &inv); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &inv, nil
}

func scanInvitation(row pgx.Row, inv *models.Invitation) error {
	return row.Scan(&inv.ID, &inv.UUID, &inv.WorkspaceID, &inv.Email, &inv.RoleID, &inv.RoleSlug, &inv.Token,
		&inv.ExpiresAt, &inv.AcceptedAt, &inv.DeclinedAt, &inv.DeletedAt, &inv.CreatedAt, &inv.UpdatedAt)
}
