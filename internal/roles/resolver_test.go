package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/atlas-collab/backend/config"
	"github.com/atlas-collab/backend/internal/models"
)

type fakeStore struct {
	roles        []*models.WorkspaceRole
	nextID       int64
	provisioned  bool
	provisionErr error
	creates      int
}

func (f *fakeStore) FindBySlug(_ context.Context, slug string, scope *string) (*models.WorkspaceRole, error) {
	for _, r := range f.roles {
		if r.Slug == slug && scopeEqual(r.Scope, scope) {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetByID(_ context.Context, id int64) (*models.WorkspaceRole, error) {
	for _, r := range f.roles {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Create(_ context.Context, role *models.WorkspaceRole) error {
	f.creates++
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

func (f *fakeStore) Provisioned(context.Context) (bool, error) {
	return f.provisioned, f.provisionErr
}

func scopeEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func testConfig() config.WorkspacesConfig {
	return config.WorkspacesConfig{
		RoleScope:             "workspace",
		DefaultRoleSlug:       "workspace-member",
		OwnerRoleSlug:         "workspace-owner",
		OwnerFallbackRoleSlug: "workspace-member",
		RoleAliases: map[string]string{
			"Owner":  "workspace-owner",
			"member": "workspace-member",
		},
		AutoCreateRoles: map[string]config.RoleDefinition{
			"workspace-owner":  {Name: "Workspace Owner"},
			"workspace-member": {Name: "Workspace Member"},
		},
		ObjectPermissions: true,
	}
}

func TestNormalizeSlug(t *testing.T) {
	resolver := NewResolver(&fakeStore{}, testConfig(), nil)

	tests := []struct {
		in   string
		want string
	}{
		{"workspace-member", "workspace-member"},
		{"  Workspace-Member ", "workspace-member"},
		{"owner", "workspace-owner"},
		{"OWNER", "workspace-owner"},
		{"Member", "workspace-member"},
		{"custom-role", "custom-role"},
	}
	for _, tt := range tests {
		if got := resolver.NormalizeSlug(tt.in); got != tt.want {
			t.Errorf("NormalizeSlug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFindOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("creates from catalog on miss", func(t *testing.T) {
		store := &fakeStore{}
		resolver := NewResolver(store, testConfig(), nil)

		role, err := resolver.FindOrCreate(ctx, "owner", true)
		if err != nil {
			t.Fatalf("FindOrCreate: %v", err)
		}
		if role.Slug != "workspace-owner" {
			t.Errorf("slug = %q, want workspace-owner", role.Slug)
		}
		if role.Name != "Workspace Owner" {
			t.Errorf("name = %q, want catalog name", role.Name)
		}
		if role.Scope == nil || *role.Scope != "workspace" {
			t.Errorf("scope = %v, want workspace", role.Scope)
		}
	})

	t.Run("humanizes uncataloged slugs", func(t *testing.T) {
		resolver := NewResolver(&fakeStore{}, testConfig(), nil)

		role, err := resolver.FindOrCreate(ctx, "guest-reviewer", true)
		if err != nil {
			t.Fatalf("FindOrCreate: %v", err)
		}
		if role.Name != "Guest Reviewer" {
			t.Errorf("name = %q, want Guest Reviewer", role.Name)
		}
	})

	t.Run("second resolve reuses the row", func(t *testing.T) {
		store := &fakeStore{}
		resolver := NewResolver(store, testConfig(), nil)

		first, err := resolver.FindOrCreate(ctx, "workspace-member", true)
		if err != nil {
			t.Fatalf("first: %v", err)
		}
		second, err := resolver.FindOrCreate(ctx, "member", true)
		if err != nil {
			t.Fatalf("second: %v", err)
		}
		if first.ID != second.ID {
			t.Errorf("IDs differ: %d vs %d", first.ID, second.ID)
		}
		if store.creates != 1 {
			t.Errorf("creates = %d, want 1", store.creates)
		}
	})

	t.Run("missing role without create", func(t *testing.T) {
		resolver := NewResolver(&fakeStore{}, testConfig(), nil)

		_, err := resolver.FindOrCreate(ctx, "ghost", false)
		if !errors.Is(err, ErrRoleNotFound) {
			t.Errorf("err = %v, want ErrRoleNotFound", err)
		}
	})

	t.Run("empty slug", func(t *testing.T) {
		resolver := NewResolver(&fakeStore{}, testConfig(), nil)

		if _, err := resolver.FindOrCreate(ctx, "   ", true); !errors.Is(err, ErrEmptySlug) {
			t.Errorf("err = %v, want ErrEmptySlug", err)
		}
	})
}

func TestResolveHandleScope(t *testing.T) {
	ctx := context.Background()
	resolver := NewResolver(&fakeStore{}, testConfig(), nil)

	scope := "workspace"
	other := "billing"

	tests := []struct {
		name    string
		role    *models.WorkspaceRole
		wantErr error
	}{
		{"matching scope", &models.WorkspaceRole{ID: 1, Slug: "workspace-member", Scope: &scope}, nil},
		{"wrong scope", &models.WorkspaceRole{ID: 2, Slug: "workspace-member", Scope: &other}, ErrScopeMismatch},
		{"unscoped role in scoped catalog", &models.WorkspaceRole{ID: 3, Slug: "workspace-member"}, ErrScopeMismatch},
		{"nil handle", nil, ErrRoleNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolver.Resolve(ctx, ByRole(tt.role), true)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveDefault(t *testing.T) {
	resolver := NewResolver(&fakeStore{}, testConfig(), nil)

	role, err := resolver.Resolve(context.Background(), DefaultRole(), true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if role.Slug != "workspace-member" {
		t.Errorf("slug = %q, want workspace-member", role.Slug)
	}
}

func TestEnsureDefaultRoles(t *testing.T) {
	ctx := context.Background()

	t.Run("skips when not provisioned", func(t *testing.T) {
		store := &fakeStore{provisioned: false}
		resolver := NewResolver(store, testConfig(), nil)

		if err := resolver.EnsureDefaultRoles(ctx); err != nil {
			t.Fatalf("EnsureDefaultRoles: %v", err)
		}
		if store.creates != 0 {
			t.Errorf("creates = %d, want 0", store.creates)
		}
	})

	t.Run("surfaces provisioning check errors", func(t *testing.T) {
		storeErr := errors.New("connection refused")
		store := &fakeStore{provisionErr: storeErr}
		resolver := NewResolver(store, testConfig(), nil)

		if err := resolver.EnsureDefaultRoles(ctx); !errors.Is(err, storeErr) {
			t.Errorf("err = %v, want wrapped store error", err)
		}
		if store.creates != 0 {
			t.Errorf("creates = %d, want 0", store.creates)
		}
	})

	t.Run("materializes the managed set", func(t *testing.T) {
		store := &fakeStore{provisioned: true}
		resolver := NewResolver(store, testConfig(), nil)

		if err := resolver.EnsureDefaultRoles(ctx); err != nil {
			t.Fatalf("EnsureDefaultRoles: %v", err)
		}
		if len(store.roles) != 2 {
			t.Errorf("roles = %d, want 2 (owner + member)", len(store.roles))
		}
	})
}

func TestManagedRoleSlugs(t *testing.T) {
	cfg := testConfig()
	cfg.OwnerFallbackRoleSlug = "Member" // alias, normalizes to an existing slug
	resolver := NewResolver(&fakeStore{}, cfg, nil)

	slugs := resolver.ManagedRoleSlugs()
	seen := make(map[string]int)
	for _, s := range slugs {
		seen[s]++
	}
	if seen["workspace-member"] != 1 || seen["workspace-owner"] != 1 {
		t.Errorf("ManagedRoleSlugs = %v, want deduplicated owner+member", slugs)
	}
}
