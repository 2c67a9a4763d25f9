// Package workspaces owns the workspace aggregate: membership mutation,
// ownership transfer, invitation issuance and resource attachment. Role
// resolution and the assignment relation are delegated to the roles package;
// every successful mutation publishes an immutable fact.
package workspaces

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlas-collab/backend/config"
	"github.com/atlas-collab/backend/internal/models"
	"github.com/atlas-collab/backend/internal/roles"
	"github.com/atlas-collab/backend/pkg/events"
	"github.com/atlas-collab/backend/pkg/utils"
)

// Store is the workspace, membership and assignment persistence the service
// operates on. Membership rows are unique per (workspace, user); removal is
// soft and re-adding reactivates the same row.
type Store interface {
	Create(ctx context.Context, ws *models.Workspace) error
	GetByUUID(ctx context.Context, id uuid.UUID) (*models.Workspace, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Workspace, error)
	ListOwnedBy(ctx context.Context, userID uuid.UUID) ([]models.Workspace, error)
	UpdateOwner(ctx context.Context, workspaceID int64, ownerID *uuid.UUID) error

	// Membership returns the (workspace, user) record including soft-removed
	// ones, or (nil, nil) when none exists.
	Membership(ctx context.Context, workspaceID int64, userID uuid.UUID) (*models.Membership, error)
	// UpsertMembership creates or reactivates the membership row, clearing
	// removed_at and refreshing last_joined_at. The row UUID is preserved
	// across remove/re-add cycles.
	UpsertMembership(ctx context.Context, workspaceID int64, userID uuid.UUID) (*models.Membership, error)
	MarkMembershipRemoved(ctx context.Context, workspaceID int64, userID uuid.UUID) error
	ListMembers(ctx context.Context, workspaceID int64) ([]models.Member, error)

	UpsertAssignment(ctx context.Context, a *models.Assignment) error
	DeleteAssignment(ctx context.Context, workspaceID int64, resourceType, resourceID string) error
	ListAssignments(ctx context.Context, workspaceID int64) ([]models.Assignment, error)
}

// UserStore loads platform users, used to rehydrate the previous owner during
// ownership transfer.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// InvitationStore is the slice of invitation persistence the aggregate needs
// to issue invitations. Acceptance and decline live in the invitations
// package.
type InvitationStore interface {
	// DeleteForEmail hard-removes every invitation for (workspace, email),
	// pending or handled.
	DeleteForEmail(ctx context.Context, workspaceID int64, email string) error
	Create(ctx context.Context, inv *models.Invitation) error
}

// Service implements workspace aggregate operations.
type Service struct {
	store       Store
	users       UserStore
	roles       *roles.Resolver
	assignments roles.AssignmentStore
	invitations InvitationStore
	events      events.Publisher
	cfg         config.WorkspacesConfig
	logger      *zap.Logger
}

// NewService creates a workspace service.
func NewService(
	store Store,
	users UserStore,
	resolver *roles.Resolver,
	assignments roles.AssignmentStore,
	invitations InvitationStore,
	publisher events.Publisher,
	cfg config.WorkspacesConfig,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:       store,
		users:       users,
		roles:       resolver,
		assignments: assignments,
		invitations: invitations,
		events:      publisher,
		cfg:         cfg,
		logger:      logger,
	}
}

// Roles exposes the resolver for collaborators wired around the aggregate.
func (s *Service) Roles() *roles.Resolver {
	return s.roles
}

// Create persists a new workspace with a generated UUID and a slug derived
// from the name. The owner is recorded by reference; call AddMember to also
// make them an active member.
func (s *Service) Create(ctx context.Context, name string, owner *models.User) (*models.Workspace, error) {
	if err := ensureUser(owner); err != nil {
		return nil, err
	}
	ws := &models.Workspace{
		UUID:    uuid.New(),
		Name:    name,
		Slug:    utils.Slugify(name),
		OwnerID: &owner.ID,
	}
	if err := s.store.Create(ctx, ws); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return ws, nil
}

// GetByUUID loads a workspace by external identifier.
func (s *Service) GetByUUID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	ws, err := s.store.GetByUUID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, ErrNotFound
	}
	return ws, nil
}

// ListForUser returns the workspaces the user is an active member of.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Workspace, error) {
	return s.store.ListForUser(ctx, userID)
}

// ListOwnedBy returns the workspaces the user owns.
func (s *Service) ListOwnedBy(ctx context.Context, userID uuid.UUID) ([]models.Workspace, error) {
	return s.store.ListOwnedBy(ctx, userID)
}

// ListMembers returns the active members of a workspace.
func (s *Service) ListMembers(ctx context.Context, ws *models.Workspace) ([]models.Member, error) {
	return s.store.ListMembers(ctx, ws.ID)
}

// AddMember upserts the membership record and grants a role. With no explicit
// role, the owner role is selected implicitly when the user is (or is about to
// become) the owner; otherwise the configured default applies. Role grants are
// cumulative; use UpdateMemberRole for replace semantics. last_joined_at is
// refreshed on every call, not only the first join.
func (s *Service) AddMember(ctx context.Context, ws *models.Workspace, user *models.User, ref roles.Ref) (*models.WorkspaceRole, error) {
	if err := ensureUser(user); err != nil {
		return nil, err
	}

	if ref.IsDefault() && s.roles.OwnerRoleSlug() != "" && (ws.IsOwnedBy(user.ID) || ws.OwnerID == nil) {
		ref = roles.BySlug(s.roles.OwnerRoleSlug())
	}

	role, err := s.roles.Resolve(ctx, ref, true)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.UpsertMembership(ctx, ws.ID, user.ID); err != nil {
		return nil, fmt.Errorf("upsert membership: %w", err)
	}
	if err := s.assignments.Assign(ctx, user.ID, role.ID, ws); err != nil {
		return nil, fmt.Errorf("assign role: %w", err)
	}

	ev := events.New(events.TypeMemberAdded, ws.UUID)
	ev.UserID = &user.ID
	ev.RoleSlug = role.Slug
	s.publish(ctx, ev)

	return role, nil
}

// RemoveMember soft-removes the membership and detaches all workspace-scoped
// roles. Silent no-op when the user has no active membership.
func (s *Service) RemoveMember(ctx context.Context, ws *models.Workspace, user *models.User) error {
	if err := ensureUser(user); err != nil {
		return err
	}

	m, err := s.store.Membership(ctx, ws.ID, user.ID)
	if err != nil {
		return fmt.Errorf("load membership: %w", err)
	}
	if m == nil || !m.Active() {
		return nil
	}

	if err := s.store.MarkMembershipRemoved(ctx, ws.ID, user.ID); err != nil {
		return fmt.Errorf("remove membership: %w", err)
	}
	if err := s.assignments.DetachAll(ctx, user.ID, ws); err != nil {
		return fmt.Errorf("detach roles: %w", err)
	}

	ev := events.New(events.TypeMemberRemoved, ws.UUID)
	ev.UserID = &user.ID
	s.publish(ctx, ev)

	return nil
}

// UpdateMemberRole replaces the user's workspace-scoped roles with the given
// one. A role update for a user without active membership is an implicit join
// via AddMember.
func (s *Service) UpdateMemberRole(ctx context.Context, ws *models.Workspace, user *models.User, ref roles.Ref) (*models.WorkspaceRole, error) {
	if err := ensureUser(user); err != nil {
		return nil, err
	}

	m, err := s.store.Membership(ctx, ws.ID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	if m == nil || !m.Active() {
		return s.AddMember(ctx, ws, user, ref)
	}

	role, err := s.roles.Resolve(ctx, ref, true)
	if err != nil {
		return nil, err
	}
	if err := s.assignments.Sync(ctx, user.ID, role.ID, ws); err != nil {
		return nil, fmt.Errorf("sync role: %w", err)
	}

	ev := events.New(events.TypeMemberRoleUpdated, ws.UUID)
	ev.UserID = &user.ID
	ev.RoleSlug = role.Slug
	s.publish(ctx, ev)

	return role, nil
}

// IsMember reports whether the user has an active membership.
func (s *Service) IsMember(ctx context.Context, ws *models.Workspace, userID uuid.UUID) (bool, error) {
	m, err := s.store.Membership(ctx, ws.ID, userID)
	if err != nil {
		return false, err
	}
	return m != nil && m.Active(), nil
}

// IsOwner reports whether the user is the workspace owner by reference,
// independent of role assignment.
func (s *Service) IsOwner(ws *models.Workspace, userID uuid.UUID) bool {
	return ws.IsOwnedBy(userID)
}

// MemberRoles lists the user's resolved roles in this workspace.
func (s *Service) MemberRoles(ctx context.Context, ws *models.Workspace, userID uuid.UUID) ([]models.WorkspaceRole, error) {
	return s.assignments.MemberRoles(ctx, userID, ws)
}

// MemberRole returns the user's primary role for display: the owner role when
// held, otherwise the first role in storage order. Nil when the user holds no
// workspace role.
func (s *Service) MemberRole(ctx context.Context, ws *models.Workspace, userID uuid.UUID) (*models.WorkspaceRole, error) {
	list, err := s.assignments.MemberRoles(ctx, userID, ws)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	if ownerSlug := s.roles.OwnerRoleSlug(); ownerSlug != "" {
		normalized := s.roles.NormalizeSlug(ownerSlug)
		for i := range list {
			if list[i].Slug == normalized {
				return &list[i], nil
			}
		}
	}
	return &list[0], nil
}

// TransferOwnership reassigns the owner reference, grants the owner role to
// the new owner and demotes a distinct previous owner to the fallback role.
// No-op when the new owner already owns the workspace.
func (s *Service) TransferOwnership(ctx context.Context, ws *models.Workspace, newOwner *models.User) error {
	if err := ensureUser(newOwner); err != nil {
		return err
	}
	if ws.IsOwnedBy(newOwner.ID) {
		return nil
	}

	previousOwnerID := ws.OwnerID
	ws.OwnerID = &newOwner.ID
	if err := s.store.UpdateOwner(ctx, ws.ID, ws.OwnerID); err != nil {
		return fmt.Errorf("update owner: %w", err)
	}

	// New owner is the owner reference now, so the implicit owner role kicks
	// in; with no owner role configured this resolves the default.
	if _, err := s.AddMember(ctx, ws, newOwner, roles.DefaultRole()); err != nil {
		return err
	}

	if previousOwnerID != nil && *previousOwnerID != newOwner.ID {
		if err := s.demotePreviousOwner(ctx, ws, *previousOwnerID); err != nil {
			return err
		}
	}

	ev := events.New(events.TypeOwnershipTransferred, ws.UUID)
	ev.PreviousOwner = previousOwnerID
	ev.NewOwner = &newOwner.ID
	s.publish(ctx, ev)

	return nil
}

func (s *Service) demotePreviousOwner(ctx context.Context, ws *models.Workspace, previousOwnerID uuid.UUID) error {
	fallback := s.roles.OwnerFallbackRoleSlug()
	if fallback == "" {
		return nil
	}
	previous, err := s.users.GetByID(ctx, previousOwnerID)
	if err != nil || previous == nil {
		// The previous owner reference may be stale; ownership has already
		// moved, so there is nothing to demote.
		s.logger.Warn("previous owner not found, skipping demotion",
			zap.String("user_id", previousOwnerID.String()))
		return nil
	}

	active, err := s.IsMember(ctx, ws, previous.ID)
	if err != nil {
		return fmt.Errorf("check previous owner membership: %w", err)
	}
	if active {
		_, err = s.UpdateMemberRole(ctx, ws, previous, roles.BySlug(fallback))
	} else {
		_, err = s.AddMember(ctx, ws, previous, roles.BySlug(fallback))
	}
	return err
}

// Invite issues an invitation for the normalized email, superseding any
// existing invitation for that (workspace, email) pair, handled ones
// included. A nil expiresAt uses the configured window; expiration may be
// disabled entirely.
func (s *Service) Invite(ctx context.Context, ws *models.Workspace, email string, ref roles.Ref, expiresAt *time.Time) (*models.Invitation, error) {
	normalized := models.NormalizeEmail(email)

	if err := s.invitations.DeleteForEmail(ctx, ws.ID, normalized); err != nil {
		return nil, fmt.Errorf("supersede invitations: %w", err)
	}

	role, err := s.roles.Resolve(ctx, ref, true)
	if err != nil {
		return nil, err
	}

	inv := &models.Invitation{
		UUID:        uuid.New(),
		WorkspaceID: ws.ID,
		Email:       normalized,
		RoleID:      &role.ID,
		RoleSlug:    role.Slug,
		Token:       uuid.NewString(),
		ExpiresAt:   expiresAt,
	}
	if inv.ExpiresAt == nil {
		inv.ExpiresAt = s.defaultExpiration()
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	ev := events.New(events.TypeInvitationCreated, ws.UUID)
	ev.Email = normalized
	ev.RoleSlug = role.Slug
	ev.InvitationID = &inv.UUID
	s.publish(ctx, ev)

	return inv, nil
}

// AssignTo attaches a resource to the workspace, create-if-absent.
func (s *Service) AssignTo(ctx context.Context, ws *models.Workspace, resourceType, resourceID string) (*models.Assignment, error) {
	a := &models.Assignment{
		UUID:         uuid.New(),
		WorkspaceID:  ws.ID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
	if err := s.store.UpsertAssignment(ctx, a); err != nil {
		return nil, fmt.Errorf("assign resource: %w", err)
	}
	return a, nil
}

// DetachFrom deletes the matching resource attachment, if any.
func (s *Service) DetachFrom(ctx context.Context, ws *models.Workspace, resourceType, resourceID string) error {
	return s.store.DeleteAssignment(ctx, ws.ID, resourceType, resourceID)
}

// ListAssignments returns the resources attached to the workspace.
func (s *Service) ListAssignments(ctx context.Context, ws *models.Workspace) ([]models.Assignment, error) {
	return s.store.ListAssignments(ctx, ws.ID)
}

// publish delivers a fact to the event sink. Delivery failures are logged,
// never propagated: the mutation has already committed.
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

func (s *Service) defaultExpiration() *time.Time {
	if s.cfg.InvitationExpiresAfter <= 0 {
		return nil
	}
	t := time.Now().Add(time.Duration(s.cfg.InvitationExpiresAfter) * time.Minute)
	return &t
}

func ensureUser(user *models.User) error {
	if user == nil || user.ID == uuid.Nil {
		return ErrInvalidUser
	}
	return nil
}
