package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEntry is one recorded workspace fact. Entries are append-only; the
// worker writes them from the event queue.
type AuditEntry struct {
	ID            int64           `json:"-"`
	WorkspaceUUID uuid.UUID       `json:"workspace_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
	RecordedAt    time.Time       `json:"recorded_at"`
}
