package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Workspace is a tenant grouping users, resources and roles. The surrogate ID
// is internal; UUID is the stable external identifier used in URLs.
type Workspace struct {
	ID        int64           `json:"-"`
	UUID      uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Slug      string          `json:"slug"`
	OwnerID   *uuid.UUID      `json:"owner_id,omitempty"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IsOwnedBy reports whether the given user is the workspace owner by
// reference, independent of role assignment.
func (w *Workspace) IsOwnedBy(userID uuid.UUID) bool {
	return w.OwnerID != nil && *w.OwnerID == userID
}

// Membership links a user to one workspace. At most one record exists per
// (workspace, user) pair; removal is soft (removed_at) and re-adding
// reactivates the same record, preserving its UUID.
type Membership struct {
	ID           int64      `json:"-"`
	UUID         uuid.UUID  `json:"id"`
	WorkspaceID  int64      `json:"-"`
	UserID       uuid.UUID  `json:"user_id"`
	LastJoinedAt *time.Time `json:"last_joined_at,omitempty"`
	RemovedAt    *time.Time `json:"removed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Active reports whether the membership has not been soft-removed.
func (m *Membership) Active() bool {
	return m.RemovedAt == nil
}

// Member is a membership joined with user details for listings.
type Member struct {
	MembershipUUID uuid.UUID  `json:"membership_id"`
	UserID         uuid.UUID  `json:"user_id"`
	Email          string     `json:"email"`
	FullName       string     `json:"full_name"`
	LastJoinedAt   *time.Time `json:"last_joined_at,omitempty"`
}
