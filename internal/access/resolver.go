package access

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// PermissionReader is the read-only slice of Store the resolver needs.
type PermissionReader interface {
	UserPermissions(ctx context.Context, userID int64) ([]string, error)
}

// Set is a user's effective permission set: the union of permission names
// across every role the user holds.
type Set map[string]struct{}

// NewSet builds a Set from permission names.
func NewSet(names []string) Set {
	set := make(Set, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}
	return set
}

// Has reports whether the set satisfies a check for the given permission.
// The administrator permission short-circuits every other check.
func (s Set) Has(name string) bool {
	if _, ok := s[PermAdministrator]; ok {
		return true
	}
	_, ok := s[name]
	return ok
}

// Names returns the set's contents in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolver derives effective capability sets from registry data. It is
// pure and read-only: safe to call from any authorization check.
type Resolver struct {
	store PermissionReader
}

// NewResolver constructs a Resolver.
func NewResolver(store PermissionReader) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("permission reader is required")
	}
	return &Resolver{store: store}, nil
}

// EffectivePermissions returns the user's capability set.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID int64) (Set, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	names, err := r.store.UserPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return NewSet(names), nil
}

// Has reports whether the user holds the permission, honoring the
// administrator override.
func (r *Resolver) Has(ctx context.Context, userID int64, permission string) (bool, error) {
	set, err := r.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.Has(permission), nil
}

// Require returns ErrPermissionDenied unless the user holds the
// permission; used as the guard in privileged operations.
func (r *Resolver) Require(ctx context.Context, userID int64, permission string) error {
	ok, err := r.Has(ctx, userID, permission)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: requires %s", ErrPermissionDenied, permission)
	}
	return nil
}
