// Package authz evaluates named abilities against a (user, workspace) pair
// using the declarative rule table. Evaluation fails closed: unknown
// abilities, missing capabilities and internal errors all deny.
package authz

import (
	"context"

	"go.uber.org/zap"

	"github.com/atlas-collab/backend/config"
	"github.com/atlas-collab/backend/internal/models"
	"github.com/atlas-collab/backend/internal/roles"
	"github.com/atlas-collab/backend/internal/workspaces"
)

// Wildcard grants a rule clause to any role or permission.
const Wildcard = "*"

// Gate answers allow/deny for workspace abilities.
type Gate struct {
	workspaces  *workspaces.Service
	resolver    *roles.Resolver
	assignments roles.AssignmentStore
	abilities   map[string]config.AbilityRule
	logger      *zap.Logger
}

// NewGate creates an authorization gate over the given rule table.
func NewGate(ws *workspaces.Service, resolver *roles.Resolver, assignments roles.AssignmentStore, abilities map[string]config.AbilityRule, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		workspaces:  ws,
		resolver:    resolver,
		assignments: assignments,
		abilities:   abilities,
		logger:      logger,
	}
}

// Allows evaluates the ability for (user, workspace). Order: owner bypass
// (on unless the rule skips it), membership requirement (on unless the rule
// admits non-members), role allow-list, permission allow-list; first satisfied
// clause allows, anything else denies.
func (g *Gate) Allows(ctx context.Context, user *models.User, ws *models.Workspace, ability string) bool {
	if user == nil || ws == nil {
		return false
	}
	rule, ok := g.abilities[ability]
	if !ok {
		return false
	}

	if !rule.SkipOwnerBypass && ws.IsOwnedBy(user.ID) {
		return true
	}

	if !rule.AllowNonMembers {
		member, err := g.workspaces.IsMember(ctx, ws, user.ID)
		if err != nil {
			g.logger.Warn("membership check failed", zap.String("ability", ability), zap.Error(err))
			return false
		}
		if !member {
			return false
		}
	}

	if g.rolesSatisfied(ctx, user, ws, rule.Roles) {
		return true
	}
	if g.permissionsSatisfied(ctx, user, ws, rule.Permissions) {
		return true
	}
	return false
}

func (g *Gate) rolesSatisfied(ctx context.Context, user *models.User, ws *models.Workspace, ruleRoles []string) bool {
	if len(ruleRoles) == 0 {
		return false
	}
	if contains(ruleRoles, Wildcard) {
		return true
	}

	for _, slug := range ruleRoles {
		role, err := g.resolver.Resolve(ctx, roles.BySlug(slug), true)
		if err != nil {
			g.logger.Warn("rule role resolution failed", zap.String("slug", slug), zap.Error(err))
			continue
		}
		held, err := g.assignments.HasRole(ctx, user.ID, role.ID, ws)
		if err != nil {
			g.logger.Warn("role check failed", zap.String("slug", slug), zap.Error(err))
			continue
		}
		if held {
			return true
		}
	}
	return false
}

func (g *Gate) permissionsSatisfied(ctx context.Context, user *models.User, ws *models.Workspace, permissions []string) bool {
	if len(permissions) == 0 {
		return false
	}
	checker, ok := g.assignments.(roles.PermissionChecker)
	if !ok {
		// No permission capability; permission clauses are never satisfied.
		return false
	}
	if contains(permissions, Wildcard) {
		return true
	}
	for _, permission := range permissions {
		if permission == "" {
			continue
		}
		granted, err := checker.HasPermission(ctx, user.ID, permission, ws)
		if err != nil {
			g.logger.Warn("permission check failed", zap.String("permission", permission), zap.Error(err))
			continue
		}
		if granted {
			return true
		}
	}
	return false
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
