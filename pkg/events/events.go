// Package events defines the immutable facts emitted after each successful
// workspace mutation and the sink they are delivered through. Facts are pure
// data; delivery and ordering beyond "published once, after commit-intent"
// belong to the consumer.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of workspace fact.
type Type string

const (
	TypeMemberAdded          Type = "workspace.member_added"
	TypeMemberRemoved        Type = "workspace.member_removed"
	TypeMemberRoleUpdated    Type = "workspace.member_role_updated"
	TypeOwnershipTransferred Type = "workspace.ownership_transferred"
	TypeInvitationCreated    Type = "workspace.invitation_created"
	TypeInvitationAccepted   Type = "workspace.invitation_accepted"
	TypeInvitationDeclined   Type = "workspace.invitation_declined"
)

// Event is a single workspace fact. Fields not relevant to the fact type are
// left zero and omitted from the JSON encoding.
type Event struct {
	ID            uuid.UUID  `json:"id"`
	Type          Type       `json:"type"`
	OccurredAt    time.Time  `json:"occurred_at"`
	WorkspaceUUID uuid.UUID  `json:"workspace_id"`
	UserID        *uuid.UUID `json:"user_id,omitempty"`
	RoleSlug      string     `json:"role,omitempty"`
	Email         string     `json:"email,omitempty"`
	PreviousOwner *uuid.UUID `json:"previous_owner_id,omitempty"`
	NewOwner      *uuid.UUID `json:"new_owner_id,omitempty"`
	InvitationID  *uuid.UUID `json:"invitation_id,omitempty"`
}

// New creates an event of the given type with identity and timestamp filled in.
func New(t Type, workspaceUUID uuid.UUID) Event {
	return Event{
		ID:            uuid.New(),
		Type:          t,
		OccurredAt:    time.Now().UTC(),
		WorkspaceUUID: workspaceUUID,
	}
}

// Publisher delivers events to an external sink.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
