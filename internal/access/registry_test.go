package access

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func newTestRegistry(t *testing.T) (*Registry, *InMemory) {
	t.Helper()
	store := NewInMemory()
	reg, err := NewRegistry(store, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg, store
}

func TestCreateRoleValidation(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.CreateRole(ctx, "  ", "", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank name, got %v", err)
	}
	long := strings.Repeat("x", 51)
	if _, err := reg.CreateRole(ctx, long, "", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for long name, got %v", err)
	}

	role, err := reg.CreateRole(ctx, "Moderator", "#ff0000", []string{PermManageMessages, PermManageMessages})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if role.IsDefault {
		t.Fatal("created roles must not be default")
	}
	perms, err := reg.RolePermissions(ctx, role.ID)
	if err != nil {
		t.Fatalf("RolePermissions: %v", err)
	}
	if len(perms) != 1 || perms[0] != PermManageMessages {
		t.Fatalf("expected deduplicated single grant, got %v", perms)
	}
}

func TestCreateRoleRejectsUnknownPermission(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.CreateRole(context.Background(), "Helper", "", []string{"no_such_permission"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown permission, got %v", err)
	}
}

func TestSetRolePermissionsReplaceAll(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	role, err := reg.CreateRole(ctx, "Mod", "", []string{PermManageMessages, PermKickMembers})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	if err := reg.SetRolePermissions(ctx, role.ID, []string{PermMoveMembers}); err != nil {
		t.Fatalf("SetRolePermissions: %v", err)
	}
	perms, _ := reg.RolePermissions(ctx, role.ID)
	if len(perms) != 1 || perms[0] != PermMoveMembers {
		t.Fatalf("expected replace-all semantics, got %v", perms)
	}
}

func TestDefaultRoleProtection(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	def, err := reg.DefaultRole(ctx)
	if err != nil {
		t.Fatalf("DefaultRole: %v", err)
	}
	if !def.IsDefault {
		t.Fatal("expected the default role")
	}
	if err := reg.DeleteRole(ctx, def.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict deleting default role, got %v", err)
	}
	if err := reg.EnsureMembership(ctx, 7); err != nil {
		t.Fatalf("EnsureMembership: %v", err)
	}
	if err := reg.RemoveRole(ctx, 7, def.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict removing default role, got %v", err)
	}
}

func TestAssignAndRemoveRoleIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	role, err := reg.CreateRole(ctx, "Mod", "", nil)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := reg.AssignRole(ctx, 7, role.ID); err != nil {
			t.Fatalf("AssignRole attempt %d: %v", i, err)
		}
	}
	roles, _ := reg.UserRoles(ctx, 7)
	if len(roles) != 1 {
		t.Fatalf("expected exactly one assignment, got %d", len(roles))
	}

	for i := 0; i < 2; i++ {
		if err := reg.RemoveRole(ctx, 7, role.ID); err != nil {
			t.Fatalf("RemoveRole attempt %d: %v", i, err)
		}
	}
	roles, _ = reg.UserRoles(ctx, 7)
	if len(roles) != 0 {
		t.Fatalf("expected no assignments, got %d", len(roles))
	}
}

func TestDeleteRoleCascadesAssignments(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	role, err := reg.CreateRole(ctx, "Mod", "", []string{PermManageMessages})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := reg.AssignRole(ctx, 7, role.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	if err := reg.DeleteRole(ctx, role.ID); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	roles, _ := reg.UserRoles(ctx, 7)
	if len(roles) != 0 {
		t.Fatalf("expected assignment cascade, got %v", roles)
	}
	perms, _ := reg.UserRoles(ctx, 7)
	if len(perms) != 0 {
		t.Fatalf("expected no residual grants, got %v", perms)
	}
	if _, err := reg.GetRole(ctx, role.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
