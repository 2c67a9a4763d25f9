package roles

import "github.com/atlas-collab/backend/internal/models"

type refKind int

const (
	refDefault refKind = iota
	refSlug
	refHandle
)

// Ref is a tagged role reference: a slug, an already-resolved role handle, or
// the configured default. Callers resolve it exactly once at operation entry.
type Ref struct {
	kind refKind
	slug string
	role *models.WorkspaceRole
}

// DefaultRole references the configured default role.
func DefaultRole() Ref {
	return Ref{kind: refDefault}
}

// BySlug references a role by slug or alias.
func BySlug(slug string) Ref {
	return Ref{kind: refSlug, slug: slug}
}

// ByRole references an already-resolved role handle.
func ByRole(role *models.WorkspaceRole) Ref {
	return Ref{kind: refHandle, role: role}
}

// IsDefault reports whether the reference carries no explicit role.
func (r Ref) IsDefault() bool {
	return r.kind == refDefault
}
