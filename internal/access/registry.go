package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voxhall.org/internal/obs"
	"voxhall.org/internal/stream"
)

const maxRoleNameLength = 50

// Registry owns roles, the permission catalog, and both association
// tables. All privileged mutations are expected to be authorized by the
// caller via Resolver before reaching the registry.
type Registry struct {
	store  Store
	events *stream.Stream
}

// NewRegistry constructs a Registry. The event stream may be nil in tests.
func NewRegistry(store Store, events *stream.Stream) (*Registry, error) {
	if store == nil {
		return nil, errors.New("access store is required")
	}
	return &Registry{store: store, events: events}, nil
}

// CreateRole creates a non-default role and grants it the given
// permissions in one logical step.
func (r *Registry) CreateRole(ctx context.Context, name, color string, permissionNames []string) (_ Role, err error) {
	defer func(start time.Time) { obs.ObserveOp("access.create_role", start, err) }(time.Now())
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if len(name) > maxRoleNameLength {
		return Role{}, fmt.Errorf("%w: role name exceeds %d characters", ErrInvalidInput, maxRoleNameLength)
	}
	role, err := r.store.CreateRole(ctx, name, strings.TrimSpace(color))
	if err != nil {
		return Role{}, err
	}
	if keys := dedupeNames(permissionNames); len(keys) > 0 {
		if err := r.store.SetRolePermissions(ctx, role.ID, keys); err != nil {
			return Role{}, err
		}
	}
	r.events.Emit(stream.RoleChanged, 0, role.ID, 0)
	return role, nil
}

// GetRole returns a role by id.
func (r *Registry) GetRole(ctx context.Context, roleID int64) (Role, error) {
	return r.store.GetRole(ctx, roleID)
}

// ListRoles returns every role ordered by position.
func (r *Registry) ListRoles(ctx context.Context) ([]Role, error) {
	return r.store.ListRoles(ctx)
}

// UpdateRole applies partial changes to a role.
func (r *Registry) UpdateRole(ctx context.Context, roleID int64, upd RoleUpdate) (_ Role, err error) {
	defer func(start time.Time) { obs.ObserveOp("access.update_role", start, err) }(time.Now())
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		if len(name) > maxRoleNameLength {
			return Role{}, fmt.Errorf("%w: role name exceeds %d characters", ErrInvalidInput, maxRoleNameLength)
		}
		upd.Name = &name
	}
	if upd.Color != nil {
		color := strings.TrimSpace(*upd.Color)
		upd.Color = &color
	}
	role, err := r.store.UpdateRole(ctx, roleID, upd)
	if err != nil {
		return Role{}, err
	}
	r.events.Emit(stream.RoleChanged, 0, role.ID, 0)
	return role, nil
}

// DeleteRole removes a role after detaching it from every user and
// permission. The default role cannot be deleted.
func (r *Registry) DeleteRole(ctx context.Context, roleID int64) (err error) {
	defer func(start time.Time) { obs.ObserveOp("access.delete_role", start, err) }(time.Now())
	if err := r.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	r.events.Emit(stream.RoleChanged, 0, roleID, 0)
	return nil
}

// SetRolePermissions replaces the role's grants with exactly the given
// names. Unknown names are rejected rather than silently dropped.
func (r *Registry) SetRolePermissions(ctx context.Context, roleID int64, permissionNames []string) (err error) {
	defer func(start time.Time) { obs.ObserveOp("access.set_role_permissions", start, err) }(time.Now())
	if err := r.store.SetRolePermissions(ctx, roleID, dedupeNames(permissionNames)); err != nil {
		return err
	}
	r.events.Emit(stream.RoleChanged, 0, roleID, 0)
	return nil
}

// RolePermissions lists the permission names granted to a role.
func (r *Registry) RolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	return r.store.RolePermissions(ctx, roleID)
}

// Permissions lists the seeded catalog.
func (r *Registry) Permissions(ctx context.Context) ([]Permission, error) {
	return r.store.Permissions(ctx)
}

// AssignRole grants the role to the user; assigning an already-held role
// is a no-op.
func (r *Registry) AssignRole(ctx context.Context, userID, roleID int64) (err error) {
	defer func(start time.Time) { obs.ObserveOp("access.assign_role", start, err) }(time.Now())
	if userID <= 0 || roleID <= 0 {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	if err := r.store.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	r.events.Emit(stream.RoleChanged, userID, roleID, 0)
	return nil
}

// RemoveRole revokes the role from the user; removing a role the user does
// not hold is a no-op. The default role cannot be removed.
func (r *Registry) RemoveRole(ctx context.Context, userID, roleID int64) (err error) {
	defer func(start time.Time) { obs.ObserveOp("access.remove_role", start, err) }(time.Now())
	if userID <= 0 || roleID <= 0 {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	if err := r.store.RemoveRole(ctx, userID, roleID); err != nil {
		return err
	}
	r.events.Emit(stream.RoleChanged, userID, roleID, 0)
	return nil
}

// DefaultRole returns the single default role.
func (r *Registry) DefaultRole(ctx context.Context) (Role, error) {
	return r.store.DefaultRole(ctx)
}

// EnsureMembership grants the default role to a user, typically right
// after account provisioning or invite redemption.
func (r *Registry) EnsureMembership(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	def, err := r.store.DefaultRole(ctx)
	if err != nil {
		return err
	}
	return r.store.AssignRole(ctx, userID, def.ID)
}

// UserRoles lists the roles a user holds.
func (r *Registry) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	return r.store.UserRoles(ctx, userID)
}

func dedupeNames(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
