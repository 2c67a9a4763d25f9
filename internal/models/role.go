package models

import "time"

// WorkspaceRole is a role from the shared catalog. Within a scoped catalog the
// slug is unique per scope; a nil scope means the role is unscoped.
type WorkspaceRole struct {
	ID          int64     `json:"-"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Scope       *string   `json:"scope,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
