package models

import (
	"time"

	"github.com/google/uuid"
)

// Assignment attaches an arbitrary resource to a workspace, unique per
// (workspace, resource_type, resource_id).
type Assignment struct {
	ID           int64     `json:"-"`
	UUID         uuid.UUID `json:"id"`
	WorkspaceID  int64     `json:"-"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	CreatedAt    time.Time `json:"created_at"`
}
