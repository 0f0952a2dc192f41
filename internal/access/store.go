package access

import "context"

// Store describes persistence operations required by the role registry and
// permission resolver.
type Store interface {
	CreateRole(ctx context.Context, name, color string) (Role, error)
	GetRole(ctx context.Context, roleID int64) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, roleID int64, upd RoleUpdate) (Role, error)
	// DeleteRole detaches the role from every user and permission before
	// removal, and fails with ErrConflict for the default role.
	DeleteRole(ctx context.Context, roleID int64) error
	// DefaultRole returns the single default role; its absence is
	// ErrDefaultRoleMissing.
	DefaultRole(ctx context.Context) (Role, error)

	Permissions(ctx context.Context) ([]Permission, error)
	// SetRolePermissions has replace-all semantics; unknown permission
	// names fail with ErrNotFound.
	SetRolePermissions(ctx context.Context, roleID int64, names []string) error
	RolePermissions(ctx context.Context, roleID int64) ([]string, error)

	// AssignRole and RemoveRole are idempotent; RemoveRole fails with
	// ErrConflict for the default role.
	AssignRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
	UserRoles(ctx context.Context, userID int64) ([]Role, error)
	// UserPermissions returns the distinct permission names granted via
	// every role the user holds.
	UserPermissions(ctx context.Context, userID int64) ([]string, error)
}
