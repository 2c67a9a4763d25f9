package invitations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-collab/backend/config"
	"github.com/atlas-collab/backend/internal/models"
	"github.com/atlas-collab/backend/internal/roles"
	"github.com/atlas-collab/backend/internal/workspaces"
	"github.com/atlas-collab/backend/pkg/events"
)

// --- in-memory fakes ---

type fakeRoleStore struct {
	roles  []*models.WorkspaceRole
	nextID int64
}

func (f *fakeRoleStore) FindBySlug(_ context.Context, slug string, scope *string) (*models.WorkspaceRole, error) {
	for _, r := range f.roles {
		if r.Slug == slug && scopeEqual(r.Scope, scope) {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeRoleStore) GetByID(_ context.Context, id int64) (*models.WorkspaceRole, error) {
	for _, r := range f.roles {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeRoleStore) Create(_ context.Context, role *models.WorkspaceRole) error {
	for _, r := range f.roles {
		if r.Slug == role.Slug && scopeEqual(r.Scope, role.Scope) {
			*role = *r
			return nil
		}
	}
	f.nextID++
	role.ID = f.nextID
	stored := *role
	f.roles = append(f.roles, &stored)
	return nil
}

func (f *fakeRoleStore) Provisioned(context.Context) (bool, error) { return true, nil }

func scopeEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type fakeAssignments struct {
	catalog *fakeRoleStore
	grants  map[uuid.UUID][]int64
}

func (f *fakeAssignments) Assign(_ context.Context, userID uuid.UUID, roleID int64, _ *models.Workspace) error {
	for _, id := range f.grants[userID] {
		if id == roleID {
			return nil
		}
	}
	f.grants[userID] = append(f.grants[userID], roleID)
	return nil
}

func (f *fakeAssignments) Sync(_ context.Context, userID uuid.UUID, roleID int64, _ *models.Workspace) error {
	f.grants[userID] = []int64{roleID}
	return nil
}

func (f *fakeAssignments) DetachAll(_ context.Context, userID uuid.UUID, _ *models.Workspace) error {
	delete(f.grants, userID)
	return nil
}

func (f *fakeAssignments) MemberRoles(ctx context.Context, userID uuid.UUID, _ *models.Workspace) ([]models.WorkspaceRole, error) {
	var list []models.WorkspaceRole
	for _, id := range f.grants[userID] {
		role, _ := f.catalog.GetByID(ctx, id)
		if role != nil {
			list = append(list, *role)
		}
	}
	return list, nil
}

func (f *fakeAssignments) HasRole(_ context.Context, userID uuid.UUID, roleID int64, _ *models.Workspace) (bool, error) {
	for _, id := range f.grants[userID] {
		if id == roleID {
			return true, nil
		}
	}
	return false, nil
}

type fakeWorkspaceStore struct {
	workspaces  map[int64]*models.Workspace
	memberships map[uuid.UUID]*models.Membership
	nextID      int64
}

func newFakeWorkspaceStore() *fakeWorkspaceStore {
	return &fakeWorkspaceStore{
		workspaces:  make(map[int64]*models.Workspace),
		memberships: make(map[uuid.UUID]*models.Membership),
	}
}

func (s *fakeWorkspaceStore) Create(_ context.Context, ws *models.Workspace) error {
	s.nextID++
	ws.ID = s.nextID
	s.workspaces[ws.ID] = ws
	return nil
}

func (s *fakeWorkspaceStore) GetByUUID(_ context.Context, id uuid.UUID) (*models.Workspace, error) {
	for _, ws := range s.workspaces {
		if ws.UUID == id {
			return ws, nil
		}
	}
	return nil, nil
}

func (s *fakeWorkspaceStore) GetByID(_ context.Context, id int64) (*models.Workspace, error) {
	return s.workspaces[id], nil
}

func (s *fakeWorkspaceStore) ListForUser(context.Context, uuid.UUID) ([]models.Workspace, error) {
	return nil, nil
}

func (s *fakeWorkspaceStore) ListOwnedBy(context.Context, uuid.UUID) ([]models.Workspace, error) {
	return nil, nil
}

func (s *fakeWorkspaceStore) UpdateOwner(_ context.Context, workspaceID int64, ownerID *uuid.UUID) error {
	if ws, ok := s.workspaces[workspaceID]; ok {
		ws.OwnerID = ownerID
	}
	return nil
}

func (s *fakeWorkspaceStore) Membership(_ context.Context, _ int64, userID uuid.UUID) (*models.Membership, error) {
	return s.memberships[userID], nil
}

func (s *fakeWorkspaceStore) UpsertMembership(_ context.Context, workspaceID int64, userID uuid.UUID) (*models.Membership, error) {
	if m, ok := s.memberships[userID]; ok {
		m.RemovedAt = nil
		return m, nil
	}
	m := &models.Membership{UUID: uuid.New(), WorkspaceID: workspaceID, UserID: userID}
	s.memberships[userID] = m
	return m, nil
}

func (s *fakeWorkspaceStore) MarkMembershipRemoved(_ context.Context, _ int64, userID uuid.UUID) error {
	if m, ok := s.memberships[userID]; ok {
		now := time.Now()
		m.RemovedAt = &now
	}
	return nil
}

func (s *fakeWorkspaceStore) ListMembers(context.Context, int64) ([]models.Member, error) {
	return nil, nil
}

func (s *fakeWorkspaceStore) UpsertAssignment(context.Context, *models.Assignment) error { return nil }

func (s *fakeWorkspaceStore) DeleteAssignment(context.Context, int64, string, string) error {
	return nil
}

func (s *fakeWorkspaceStore) ListAssignments(context.Context, int64) ([]models.Assignment, error) {
	return nil, nil
}

type fakeInvStore struct {
	invs []*models.Invitation
}

func (f *fakeInvStore) Create(_ context.Context, inv *models.Invitation) error {
	inv.ID = int64(len(f.invs) + 1)
	f.invs = append(f.invs, inv)
	return nil
}

func (f *fakeInvStore) DeleteForEmail(_ context.Context, workspaceID int64, email string) error {
	kept := f.invs[:0]
	for _, inv := range f.invs {
		if inv.WorkspaceID == workspaceID && inv.Email == email {
			continue
		}
		kept = append(kept, inv)
	}
	f.invs = kept
	return nil
}

func (f *fakeInvStore) GetByToken(_ context.Context, token string) (*models.Invitation, error) {
	for _, inv := range f.invs {
		if inv.Token == token && inv.DeletedAt == nil {
			return inv, nil
		}
	}
	return nil, nil
}

func (f *fakeInvStore) LatestForEmail(_ context.Context, workspaceID int64, email string) (*models.Invitation, error) {
	for i := len(f.invs) - 1; i >= 0; i-- {
		inv := f.invs[i]
		if inv.WorkspaceID == workspaceID && inv.Email == email && inv.DeletedAt == nil {
			return inv, nil
		}
	}
	return nil, nil
}

func (f *fakeInvStore) ListByWorkspace(_ context.Context, workspaceID int64) ([]models.Invitation, error) {
	var list []models.Invitation
	for _, inv := range f.invs {
		if inv.WorkspaceID == workspaceID && inv.DeletedAt == nil {
			list = append(list, *inv)
		}
	}
	return list, nil
}

func (f *fakeInvStore) MarkAccepted(_ context.Context, id int64) (time.Time, error) {
	now := time.Now()
	for _, inv := range f.invs {
		if inv.ID == id {
			inv.AcceptedAt = &now
		}
	}
	return now, nil
}

func (f *fakeInvStore) MarkDeclined(_ context.Context, id int64) (time.Time, error) {
	now := time.Now()
	for _, inv := range f.invs {
		if inv.ID == id {
			inv.DeclinedAt = &now
		}
	}
	return now, nil
}

type fakeUsers struct {
	users map[uuid.UUID]*models.User
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return f.users[id], nil
}

type memPublisher struct {
	published []events.Event
}

func (p *memPublisher) Publish(_ context.Context, ev events.Event) error {
	p.published = append(p.published, ev)
	return nil
}

// --- fixture ---

type fixture struct {
	svc     *Service
	wsSvc   *workspaces.Service
	store   *fakeInvStore
	wsStore *fakeWorkspaceStore
	users   *fakeUsers
	sink    *memPublisher
	ws      *models.Workspace
	owner   *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.WorkspacesConfig{
		RoleScope:             "workspace",
		DefaultRoleSlug:       "workspace-member",
		OwnerRoleSlug:         "workspace-owner",
		OwnerFallbackRoleSlug: "workspace-member",
		AutoCreateRoles: map[string]config.RoleDefinition{
			"workspace-owner":  {Name: "Workspace Owner"},
			"workspace-member": {Name: "Workspace Member"},
		},
		InvitationExpiresAfter: 60,
		ObjectPermissions:      true,
	}

	catalog := &fakeRoleStore{}
	resolver := roles.NewResolver(catalog, cfg, nil)
	wsStore := newFakeWorkspaceStore()
	grants := &fakeAssignments{catalog: catalog, grants: make(map[uuid.UUID][]int64)}
	invStore := &fakeInvStore{}
	users := &fakeUsers{users: make(map[uuid.UUID]*models.User)}
	sink := &memPublisher{}

	wsSvc := workspaces.NewService(wsStore, users, resolver, grants, invStore, sink, cfg, nil)
	svc := NewService(invStore, wsSvc, wsStore, catalog, sink, nil)

	owner := &models.User{ID: uuid.New(), Email: "owner@example.com"}
	users.users[owner.ID] = owner
	ws, err := wsSvc.Create(context.Background(), "Acme", owner)
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}

	return &fixture{svc: svc, wsSvc: wsSvc, store: invStore, wsStore: wsStore, users: users, sink: sink, ws: ws, owner: owner}
}

func (f *fixture) invite(t *testing.T, email string) *models.Invitation {
	t.Helper()
	inv, err := f.wsSvc.Invite(context.Background(), f.ws, email, roles.DefaultRole(), nil)
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	return inv
}

func (f *fixture) user(email string) *models.User {
	u := &models.User{ID: uuid.New(), Email: email}
	f.users.users[u.ID] = u
	return u
}

// --- tests ---

func TestAccept(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path creates membership", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invite(t, "guest@example.com")
		guest := f.user("guest@example.com")

		if err := f.svc.Accept(ctx, inv, guest); err != nil {
			t.Fatalf("accept: %v", err)
		}
		if inv.AcceptedAt == nil {
			t.Error("accepted_at not stamped")
		}

		active, err := f.wsSvc.IsMember(ctx, f.ws, guest.ID)
		if err != nil || !active {
			t.Errorf("IsMember = %v, %v; want active", active, err)
		}
		roleList, err := f.wsSvc.MemberRoles(ctx, f.ws, guest.ID)
		if err != nil || len(roleList) != 1 || roleList[0].Slug != "workspace-member" {
			t.Errorf("roles = %v, %v; want the invitation role", roleList, err)
		}
	})

	t.Run("case-insensitive email match", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invite(t, "guest@example.com")
		guest := f.user("Guest@Example.COM")

		if err := f.svc.Accept(ctx, inv, guest); err != nil {
			t.Fatalf("accept: %v", err)
		}
	})

	t.Run("invalid user checked first", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invite(t, "guest@example.com")
		past := time.Now().Add(-time.Hour)
		inv.ExpiresAt = &past

		if err := f.svc.Accept(ctx, inv, nil); !errors.Is(err, workspaces.ErrInvalidUser) {
			t.Errorf("err = %v, want ErrInvalidUser before expiry check", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invite(t, "guest@example.com")
		past := time.Now().Add(-time.Hour)
		inv.ExpiresAt = &past
		guest := f.user("guest@example.com")

		if err := f.svc.Accept(ctx, inv, guest); !errors.Is(err, ErrExpired) {
			t.Errorf("err = %v, want ErrExpired", err)
		}
		if active, _ := f.wsSvc.IsMember(ctx, f.ws, guest.ID); active {
			t.Error("expired acceptance must not create membership")
		}
	})

	t.Run("no expiration never expires", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invite(t, "guest@example.com")
		inv.ExpiresAt = nil
		guest := f.user("guest@example.com")

		if err := f.svc.Accept(ctx, inv, guest); err != nil {
			t.Fatalf("accept: %v", err)
		}
	})

	t.Run("double accept rejected", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invite(t, "guest@example.com")
		guest := f.user("guest@example.com")

		if err := f.svc.Accept(ctx, inv, guest); err != nil {
			t.Fatalf("first accept: %v", err)
		}
		if err := f.svc.Accept(ctx, inv, guest); !errors.Is(err, ErrAlreadyHandled) {
			t.Errorf("second accept err = %v, want ErrAlreadyHandled", err)
		}
	})

	t.Run("declined invitation cannot be accepted", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invite(t, "guest@example.com")
		guest := f.user("guest@example.com")

		if err := f.svc.Decline(ctx, inv); err != nil {
			t.Fatalf("decline: %v", err)
		}
		if err := f.svc.Accept(ctx, inv, guest); !errors.Is(err, ErrAlreadyHandled) {
			t.Errorf("err = %v, want ErrAlreadyHandled", err)
		}
	})

	t.Run("email mismatch", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invite(t, "guest@example.com")
		other := f.user("other@example.com")

		if err := f.svc.Accept(ctx, inv, other); !errors.Is(err, ErrEmailMismatch) {
			t.Errorf("err = %v, want ErrEmailMismatch", err)
		}
	})

	t.Run("user without email", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invite(t, "guest@example.com")
		anon := f.user("")

		if err := f.svc.Accept(ctx, inv, anon); !errors.Is(err, ErrEmailMismatch) {
			t.Errorf("err = %v, want ErrEmailMismatch", err)
		}
	})

	t.Run("invitation role carries over", func(t *testing.T) {
		f := newFixture(t)
		inv, err := f.wsSvc.Invite(ctx, f.ws, "guest@example.com", roles.BySlug("workspace-owner"), nil)
		if err != nil {
			t.Fatalf("invite: %v", err)
		}
		guest := f.user("guest@example.com")

		if err := f.svc.Accept(ctx, inv, guest); err != nil {
			t.Fatalf("accept: %v", err)
		}
		roleList, err := f.wsSvc.MemberRoles(ctx, f.ws, guest.ID)
		if err != nil || len(roleList) != 1 || roleList[0].Slug != "workspace-owner" {
			t.Errorf("roles = %v, %v; want workspace-owner", roleList, err)
		}
	})

	t.Run("publishes acceptance fact", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invite(t, "guest@example.com")
		guest := f.user("guest@example.com")

		if err := f.svc.Accept(ctx, inv, guest); err != nil {
			t.Fatalf("accept: %v", err)
		}
		var found bool
		for _, ev := range f.sink.published {
			if ev.Type == events.TypeInvitationAccepted {
				found = true
				if ev.UserID == nil || *ev.UserID != guest.ID {
					t.Errorf("event user = %v, want %s", ev.UserID, guest.ID)
				}
			}
		}
		if !found {
			t.Error("invitation_accepted fact not published")
		}
	})
}

func TestDecline(t *testing.T) {
	ctx := context.Background()

	t.Run("stamps declined_at", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invite(t, "guest@example.com")

		if err := f.svc.Decline(ctx, inv); err != nil {
			t.Fatalf("decline: %v", err)
		}
		if inv.DeclinedAt == nil {
			t.Error("declined_at not stamped")
		}
	})

	t.Run("decline after accept still stamps", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invite(t, "guest@example.com")
		guest := f.user("guest@example.com")

		if err := f.svc.Accept(ctx, inv, guest); err != nil {
			t.Fatalf("accept: %v", err)
		}
		if err := f.svc.Decline(ctx, inv); err != nil {
			t.Fatalf("decline: %v", err)
		}
		if inv.AcceptedAt == nil || inv.DeclinedAt == nil {
			t.Error("both timestamps expected after accept-then-decline")
		}
	})
}

func TestGetByToken(t *testing.T) {
	f := newFixture(t)
	inv := f.invite(t, "guest@example.com")

	got, err := f.svc.GetByToken(context.Background(), inv.Token)
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if got.UUID != inv.UUID {
		t.Errorf("got %s, want %s", got.UUID, inv.UUID)
	}

	if _, err := f.svc.GetByToken(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLatestForEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.invite(t, "guest@example.com")
	latest := f.invite(t, "guest@example.com")

	got, err := f.svc.LatestForEmail(ctx, f.ws, "Guest@Example.COM")
	if err != nil {
		t.Fatalf("LatestForEmail: %v", err)
	}
	if got.UUID != latest.UUID {
		t.Errorf("got %s, want the newest invitation %s", got.UUID, latest.UUID)
	}

	if _, err := f.svc.LatestForEmail(ctx, f.ws, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
