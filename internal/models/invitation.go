package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Invitation is a token-bearing, time-bounded offer to join a workspace with
// a pre-assigned role. accepted_at and declined_at are terminal and mutually
// exclusive; expiration is derived from expires_at, never stored.
type Invitation struct {
	ID          int64      `json:"-"`
	UUID        uuid.UUID  `json:"id"`
	WorkspaceID int64      `json:"-"`
	Email       string     `json:"email"`
	RoleID      *int64     `json:"-"`
	RoleSlug    string     `json:"role,omitempty"`
	Token       string     `json:"token"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	DeclinedAt  *time.Time `json:"declined_at,omitempty"`
	DeletedAt   *time.Time `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsExpired reports whether expires_at is set and strictly in the past.
func (i *Invitation) IsExpired(now time.Time) bool {
	return i.ExpiresAt != nil && i.ExpiresAt.Before(now)
}

// IsHandled reports whether the invitation reached a terminal state.
func (i *Invitation) IsHandled() bool {
	return i.AcceptedAt != nil || i.DeclinedAt != nil
}

// NormalizeEmail lowercases and trims an invitation email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
