package settings

import "errors"

var (
	// ErrNotConfigured means token, organization, or project is missing.
	ErrNotConfigured = errors.New("azure devops settings are not configured")
	// ErrNoTargetSelected means project configurations exist but none was chosen.
	ErrNoTargetSelected = errors.New("no project configuration selected")
	// ErrNotFound means an id did not resolve to a stored entry.
	ErrNotFound = errors.New("not found")
	// ErrInvalid means a stored entry failed validation.
	ErrInvalid = errors.New("invalid settings")
)
