// Package invitations implements the invitation lifecycle: a pending offer
// transitions to accepted or declined exactly once, acceptance materializes
// membership through the workspace aggregate.
package invitations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlas-collab/backend/internal/models"
	"github.com/atlas-collab/backend/internal/roles"
	"github.com/atlas-collab/backend/internal/workspaces"
	"github.com/atlas-collab/backend/pkg/events"
)

// Store is the invitation persistence the lifecycle operates on.
type Store interface {
	GetByToken(ctx context.Context, token string) (*models.Invitation, error)
	LatestForEmail(ctx context.Context, workspaceID int64, email string) (*models.Invitation, error)
	ListByWorkspace(ctx context.Context, workspaceID int64) ([]models.Invitation, error)
	MarkAccepted(ctx context.Context, id int64) (time.Time, error)
	MarkDeclined(ctx context.Context, id int64) (time.Time, error)
}

// WorkspaceStore loads the parent workspace of an invitation.
type WorkspaceStore interface {
	GetByID(ctx context.Context, id int64) (*models.Workspace, error)
}

// Service validates and applies invitation transitions.
type Service struct {
	store      Store
	workspaces *workspaces.Service
	wsStore    WorkspaceStore
	roleStore  roles.Store
	events     events.Publisher
	logger     *zap.Logger
}

// NewService creates an invitations service.
func NewService(store Store, wsService *workspaces.Service, wsStore WorkspaceStore, roleStore roles.Store, publisher events.Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		workspaces: wsService,
		wsStore:    wsStore,
		roleStore:  roleStore,
		events:     publisher,
		logger:     logger,
	}
}

// GetByToken returns the live invitation carrying the token.
func (s *Service) GetByToken(ctx context.Context, token string) (*models.Invitation, error) {
	inv, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrNotFound
	}
	return inv, nil
}

// ListByWorkspace returns live invitations for a workspace.
func (s *Service) ListByWorkspace(ctx context.Context, ws *models.Workspace) ([]models.Invitation, error) {
	return s.store.ListByWorkspace(ctx, ws.ID)
}

// LatestForEmail returns the most recent live invitation for the normalized
// email in this workspace, or ErrNotFound.
func (s *Service) LatestForEmail(ctx context.Context, ws *models.Workspace, email string) (*models.Invitation, error) {
	inv, err := s.store.LatestForEmail(ctx, ws.ID, models.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrNotFound
	}
	return inv, nil
}

// Accept validates the invitation against the accepting user and, on success,
// adds them to the workspace with the invitation's role (or the default when
// none was attached) and stamps accepted_at. Every precondition runs before
// any mutation.
func (s *Service) Accept(ctx context.Context, inv *models.Invitation, user *models.User) error {
	if user == nil || user.ID == uuid.Nil {
		return workspaces.ErrInvalidUser
	}
	if inv.IsExpired(time.Now()) {
		return ErrExpired
	}
	if inv.IsHandled() {
		return ErrAlreadyHandled
	}
	email := models.NormalizeEmail(user.Email)
	if email == "" || email != inv.Email {
		return ErrEmailMismatch
	}

	ref := roles.DefaultRole()
	if inv.RoleID != nil {
		role, err := s.roleStore.GetByID(ctx, *inv.RoleID)
		if err != nil {
			return fmt.Errorf("load invitation role: %w", err)
		}
		if role != nil {
			ref = roles.ByRole(role)
		}
	}

	ws, err := s.wsStore.GetByID(ctx, inv.WorkspaceID)
	if err != nil {
		return fmt.Errorf("load workspace: %w", err)
	}
	if ws == nil {
		return workspaces.ErrNotFound
	}

	if _, err := s.workspaces.AddMember(ctx, ws, user, ref); err != nil {
		return err
	}

	acceptedAt, err := s.store.MarkAccepted(ctx, inv.ID)
	if err != nil {
		return fmt.Errorf("mark accepted: %w", err)
	}
	inv.AcceptedAt = &acceptedAt

	ev := events.New(events.TypeInvitationAccepted, ws.UUID)
	ev.UserID = &user.ID
	ev.Email = inv.Email
	ev.InvitationID = &inv.UUID
	s.publish(ctx, ev)

	return nil
}

// Decline stamps declined_at unconditionally, without checking prior state.
// Declining an already-accepted invitation overwrites declined_at while
// accepted_at stays set; kept as-is pending clarification of the intended
// terminal-state rule.
func (s *Service) Decline(ctx context.Context, inv *models.Invitation) error {
	declinedAt, err := s.store.MarkDeclined(ctx, inv.ID)
	if err != nil {
		return fmt.Errorf("mark declined: %w", err)
	}
	inv.DeclinedAt = &declinedAt

	ws, err := s.wsStore.GetByID(ctx, inv.WorkspaceID)
	if err != nil || ws == nil {
		s.logger.Warn("declined invitation for unknown workspace", zap.Int64("workspace_id", inv.WorkspaceID))
		return nil
	}

	ev := events.New(events.TypeInvitationDeclined, ws.UUID)
	ev.Email = inv.Email
	ev.InvitationID = &inv.UUID
	s.publish(ctx, ev)

	return nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish event failed",
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}
