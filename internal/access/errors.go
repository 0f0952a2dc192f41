package access

import "errors"

var (
	ErrInvalidInput     = errors.New("access: invalid input")
	ErrNotFound         = errors.New("access: not found")
	ErrConflict         = errors.New("access: conflict")
	ErrPermissionDenied = errors.New("access: permission denied")

	// ErrDefaultRoleMissing indicates broken provisioning: exactly one
	// default role must exist at all times.
	ErrDefaultRoleMissing = errors.New("access: default role missing")
)
