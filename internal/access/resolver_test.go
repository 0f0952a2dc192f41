package access

import (
	"context"
	"errors"
	"testing"
)

type stubPermissionReader struct {
	permsFn func(context.Context, int64) ([]string, error)
}

func (s *stubPermissionReader) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	if s.permsFn != nil {
		return s.permsFn(ctx, userID)
	}
	return nil, nil
}

func TestAdministratorOverride(t *testing.T) {
	store := &stubPermissionReader{
		permsFn: func(_ context.Context, _ int64) ([]string, error) {
			return []string{PermAdministrator}, nil
		},
	}
	resolver, err := NewResolver(store)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	ctx := context.Background()

	// Administrator satisfies every check, including names never granted.
	for _, perm := range []string{PermManageRoles, PermMoveMembers, "totally_made_up"} {
		ok, err := resolver.Has(ctx, 1, perm)
		if err != nil {
			t.Fatalf("Has(%s): %v", perm, err)
		}
		if !ok {
			t.Fatalf("administrator should satisfy %s", perm)
		}
	}
}

func TestModeratorScenario(t *testing.T) {
	store := NewInMemory()
	reg, _ := NewRegistry(store, nil)
	resolver, _ := NewResolver(store)
	ctx := context.Background()

	mod, err := reg.CreateRole(ctx, "Moderator", "", []string{PermManageMessages})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := reg.AssignRole(ctx, 42, mod.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	ok, err := resolver.Has(ctx, 42, PermManageMessages)
	if err != nil || !ok {
		t.Fatalf("expected manage_messages, got ok=%v err=%v", ok, err)
	}
	ok, err = resolver.Has(ctx, 42, PermManageRoles)
	if err != nil || ok {
		t.Fatalf("expected no manage_roles, got ok=%v err=%v", ok, err)
	}
}

func TestEffectivePermissionsUnion(t *testing.T) {
	store := NewInMemory()
	reg, _ := NewRegistry(store, nil)
	resolver, _ := NewResolver(store)
	ctx := context.Background()

	mod, _ := reg.CreateRole(ctx, "Moderator", "", []string{PermManageMessages, PermKickMembers})
	dj, _ := reg.CreateRole(ctx, "DJ", "", []string{PermMoveMembers, PermKickMembers})
	_ = reg.AssignRole(ctx, 9, mod.ID)
	_ = reg.AssignRole(ctx, 9, dj.ID)

	set, err := resolver.EffectivePermissions(ctx, 9)
	if err != nil {
		t.Fatalf("EffectivePermissions: %v", err)
	}
	want := []string{PermKickMembers, PermManageMessages, PermMoveMembers}
	got := set.Names()
	if len(got) != len(want) {
		t.Fatalf("expected union %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected union %v, got %v", want, got)
		}
	}
}

func TestRequire(t *testing.T) {
	store := NewInMemory()
	resolver, _ := NewResolver(store)
	ctx := context.Background()

	if err := resolver.Require(ctx, 5, PermMoveMembers); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}
