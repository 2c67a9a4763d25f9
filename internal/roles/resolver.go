// Package roles resolves workspace role references against the shared role
// catalog and manages the role-assignment relation between users and
// workspaces. Role identity is the (slug, scope) tuple; resolution with
// auto-creation is a single find-or-create keyed by that tuple.
package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlas-collab/backend/config"
	"github.com/atlas-collab/backend/internal/models"
)

// Store is the role catalog the resolver reads and materializes roles in.
type Store interface {
	// FindBySlug returns the role for (slug, scope), or (nil, nil) on miss.
	FindBySlug(ctx context.Context, slug string, scope *string) (*models.WorkspaceRole, error)
	// GetByID returns a role by surrogate ID, or (nil, nil) on miss.
	GetByID(ctx context.Context, id int64) (*models.WorkspaceRole, error)
	// Create materializes a role, treating "already exists" as success and
	// returning the surviving row's identity in place.
	Create(ctx context.Context, role *models.WorkspaceRole) error
	// Provisioned reports whether the role storage schema exists yet.
	Provisioned(ctx context.Context) (bool, error)
}

// AssignmentStore is the scoped many-to-many relation between users and roles.
type AssignmentStore interface {
	// Assign adds a role to (user, workspace). Cumulative and idempotent.
	Assign(ctx context.Context, userID uuid.UUID, roleID int64, workspace *models.Workspace) error
	// Sync replaces all workspace-scoped roles of (user, workspace) with one.
	Sync(ctx context.Context, userID uuid.UUID, roleID int64, workspace *models.Workspace) error
	// DetachAll removes every workspace-scoped role of (user, workspace).
	DetachAll(ctx context.Context, userID uuid.UUID, workspace *models.Workspace) error
	// MemberRoles lists roles held by the user in the workspace, in storage order.
	MemberRoles(ctx context.Context, userID uuid.UUID, workspace *models.Workspace) ([]models.WorkspaceRole, error)
	// HasRole reports whether the user holds the role in the workspace.
	HasRole(ctx context.Context, userID uuid.UUID, roleID int64, workspace *models.Workspace) (bool, error)
}

// PermissionChecker is the optional permission capability of an assignment
// store. The authorization gate treats its absence as "permission rules never
// satisfied" rather than an error.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID uuid.UUID, permission string, workspace *models.Workspace) (bool, error)
}

// Resolver turns role references into concrete catalog roles, auto-creating
// them from the declarative catalog when absent.
type Resolver struct {
	store  Store
	cfg    config.WorkspacesConfig
	logger *zap.Logger
}

// NewResolver creates a role resolver over the given catalog store.
func NewResolver(store Store, cfg config.WorkspacesConfig, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, cfg: cfg, logger: logger}
}

// Scope returns the active catalog scope, or nil when scoping is disabled.
func (r *Resolver) Scope() *string {
	if r.cfg.RoleScope == "" {
		return nil
	}
	scope := r.cfg.RoleScope
	return &scope
}

// DefaultRoleSlug returns the configured default member role slug.
func (r *Resolver) DefaultRoleSlug() string {
	return r.cfg.DefaultRoleSlug
}

// OwnerRoleSlug returns the configured owner role slug, empty when disabled.
func (r *Resolver) OwnerRoleSlug() string {
	return r.cfg.OwnerRoleSlug
}

// OwnerFallbackRoleSlug returns the role slug a demoted owner receives,
// normalized through the alias table. Empty disables demotion.
func (r *Resolver) OwnerFallbackRoleSlug() string {
	if r.cfg.OwnerFallbackRoleSlug == "" {
		return ""
	}
	return r.NormalizeSlug(r.cfg.OwnerFallbackRoleSlug)
}

// Resolve turns a role reference into a concrete role. Handles are validated
// against the active scope; slugs pass through alias normalization and a
// scoped find-or-create.
func (r *Resolver) Resolve(ctx context.Context, ref Ref, createIfMissing bool) (*models.WorkspaceRole, error) {
	switch ref.kind {
	case refHandle:
		return r.ensureScope(ref.role)
	case refSlug:
		if strings.TrimSpace(ref.slug) == "" {
			return nil, ErrEmptySlug
		}
		return r.FindOrCreate(ctx, ref.slug, createIfMissing)
	default:
		return r.FindOrCreate(ctx, r.cfg.DefaultRoleSlug, createIfMissing)
	}
}

// FindOrCreate looks up (slug, scope) after alias normalization, materializing
// the role from the auto-create catalog on miss when createIfMissing is set.
func (r *Resolver) FindOrCreate(ctx context.Context, slug string, createIfMissing bool) (*models.WorkspaceRole, error) {
	slug = r.NormalizeSlug(slug)
	if slug == "" {
		return nil, ErrEmptySlug
	}

	existing, err := r.store.FindBySlug(ctx, slug, r.Scope())
	if err != nil {
		return nil, fmt.Errorf("find role %q: %w", slug, err)
	}
	if existing != nil {
		return existing, nil
	}
	if !createIfMissing {
		return nil, fmt.Errorf("role %q: %w", slug, ErrRoleNotFound)
	}

	role := &models.WorkspaceRole{
		Slug:  slug,
		Name:  humanizeSlug(slug),
		Scope: r.Scope(),
	}
	if def, ok := r.cfg.AutoCreateRoles[slug]; ok {
		if def.Name != "" {
			role.Name = def.Name
		}
		role.Description = def.Description
	}
	if err := r.store.Create(ctx, role); err != nil {
		return nil, fmt.Errorf("create role %q: %w", slug, err)
	}
	return role, nil
}

// EnsureDefaultRoles materializes the default, owner and fallback roles plus
// the whole auto-create catalog. Skipped entirely when the role storage is not
// provisioned yet, so it is safe to call before migrations on first boot.
func (r *Resolver) EnsureDefaultRoles(ctx context.Context) error {
	ready, err := r.store.Provisioned(ctx)
	if err != nil {
		return fmt.Errorf("check role storage: %w", err)
	}
	if !ready {
		r.logger.Info("role storage not provisioned, skipping default roles")
		return nil
	}

	slugs := r.cfg.ManagedRoleSlugs()
	for _, slug := range slugs {
		if _, err := r.FindOrCreate(ctx, slug, true); err != nil {
			return fmt.Errorf("ensure role %q: %w", slug, err)
		}
	}
	r.logger.Info("default workspace roles ensured", zap.Int("count", len(slugs)))
	return nil
}

// NormalizeSlug lowercases the slug and maps it through the alias table.
// Alias keys match case-insensitively.
func (r *Resolver) NormalizeSlug(slug string) string {
	normalized := strings.ToLower(strings.TrimSpace(slug))
	for key, value := range r.cfg.RoleAliases {
		if strings.ToLower(key) == normalized && value != "" {
			return value
		}
	}
	return normalized
}

// ManagedRoleSlugs returns the normalized slugs managed by the workspace
// layer, for filtering catalog-global assignments.
func (r *Resolver) ManagedRoleSlugs() []string {
	raw := r.cfg.ManagedRoleSlugs()
	seen := make(map[string]struct{}, len(raw))
	normalized := make([]string, 0, len(raw))
	for _, slug := range raw {
		s := r.NormalizeSlug(slug)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		normalized = append(normalized, s)
	}
	return normalized
}

func (r *Resolver) ensureScope(role *models.WorkspaceRole) (*models.WorkspaceRole, error) {
	if role == nil {
		return nil, ErrRoleNotFound
	}
	scope := r.Scope()
	if scope == nil {
		if role.Scope != nil {
			return nil, fmt.Errorf("role %q is scoped: %w", role.Slug, ErrScopeMismatch)
		}
		return role, nil
	}
	if role.Scope == nil || *role.Scope != *scope {
		return nil, fmt.Errorf("role %q: %w", role.Slug, ErrScopeMismatch)
	}
	return role, nil
}

// humanizeSlug turns "workspace-owner" into "Workspace Owner" for roles with
// no catalog entry.
func humanizeSlug(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
