package access

import (
	"context"
	"time"
)

// Role groups permissions. Exactly one role carries IsDefault; it is held
// by every user and can never be deleted or unassigned.
type Role struct {
	ID        int64
	Name      string
	Color     string
	Position  int
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Permission is a fine-grained capability from the immutable catalog.
type Permission struct {
	ID       int64
	Name     string
	Category string
}

// RoleUpdate carries optional field changes for a role.
type RoleUpdate struct {
	Name     *string
	Color    *string
	Position *int
}

type actorContextKey struct{}

// ContextWithActor attaches the authenticated user id to the context.
func ContextWithActor(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, userID)
}

// ActorFromContext extracts the authenticated user id from the context.
func ActorFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	v, ok := ctx.Value(actorContextKey{}).(int64)
	if !ok || v == 0 {
		return 0, false
	}
	return v, true
}
