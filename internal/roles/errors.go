package roles

import "errors"

var (
	// ErrRoleNotFound indicates a slug lookup with creation disabled found no role.
	ErrRoleNotFound = errors.New("workspace role does not exist")
	// ErrScopeMismatch indicates a pre-resolved role's scope disagrees with the
	// active scoping configuration.
	ErrScopeMismatch = errors.New("role scope does not match workspace role scope")
	// ErrEmptySlug indicates a role was referenced by an empty slug.
	ErrEmptySlug = errors.New("workspace roles must be referenced by a non-empty slug")
)
