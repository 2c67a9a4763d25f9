package workspaces

import "errors"

var (
	// ErrInvalidUser indicates an operation received a principal that is not a
	// valid platform user.
	ErrInvalidUser = errors.New("workspace member must be a valid user")
	// ErrNotFound indicates the requested workspace does not exist.
	ErrNotFound = errors.New("workspace not found")
)
