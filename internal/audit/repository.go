// Package audit persists the append-only workspace activity trail built from
// the event queue.
package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-collab/backend/internal/models"
)

// Repository handles audit trail persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an audit repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one entry. Re-inserting an event ID already recorded is a
// no-op so redelivered envelopes stay idempotent.
func (r *Repository) Insert(ctx context.Context, eventID uuid.UUID, entry *models.AuditEntry) error {
	const q = `INSERT INTO audit_log (event_id, workspace_uuid, event_type, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING`
	payload := entry.Payload
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	_, err := r.pool.Exec(ctx, q, eventID, entry.WorkspaceUUID, entry.EventType, payload, entry.OccurredAt)
	return err
}

// ListByWorkspace returns the newest entries for a workspace, up to limit.
func (r *Repository) ListByWorkspace(ctx context.Context, workspaceUUID uuid.UUID, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT id, workspace_uuid, event_type, payload, occurred_at, recorded_at
		FROM audit_log
		WHERE workspace_uuid = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, q, workspaceUUID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.WorkspaceUUID, &e.EventType, &e.Payload, &e.OccurredAt, &e.RecordedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}
