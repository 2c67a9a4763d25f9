package invitations

import "errors"

var (
	// ErrNotFound indicates no live invitation matches the token.
	ErrNotFound = errors.New("invitation not found")
	// ErrExpired indicates the invitation's expires_at is in the past.
	ErrExpired = errors.New("invitation has expired")
	// ErrAlreadyHandled indicates the invitation was already accepted or declined.
	ErrAlreadyHandled = errors.New("invitation has already been accepted or declined")
	// ErrEmailMismatch indicates the accepting user's email does not match the
	// invitation email.
	ErrEmailMismatch = errors.New("invitation email does not match the user email")
)
