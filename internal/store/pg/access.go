package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"voxhall.org/internal/access"
)

func (s *Store) CreateRole(ctx context.Context, name, color string) (access.Role, error) {
	var role access.Role
	row := s.db.QueryRowContext(ctx, `
		insert into roles (name, color, position)
		values ($1, $2, (select count(*) from roles))
		returning id, name, color, position, is_default, created_at, updated_at
	`, name, color)
	if err := row.Scan(&role.ID, &role.Name, &role.Color, &role.Position, &role.IsDefault, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return access.Role{}, fmt.Errorf("%w: role %s already exists", access.ErrConflict, name)
		}
		return access.Role{}, err
	}
	return role, nil
}

func (s *Store) GetRole(ctx context.Context, roleID int64) (access.Role, error) {
	var role access.Role
	err := s.db.QueryRowContext(ctx, `
		select id, name, color, position, is_default, created_at, updated_at
		from roles
		where id = $1
	`, roleID).Scan(&role.ID, &role.Name, &role.Color, &role.Position, &role.IsDefault, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Role{}, access.ErrNotFound
	}
	if err != nil {
		return access.Role{}, err
	}
	return role, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]access.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, color, position, is_default, created_at, updated_at
		from roles
		order by position, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []access.Role
	for rows.Next() {
		var role access.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Color, &role.Position, &role.IsDefault, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) UpdateRole(ctx context.Context, roleID int64, upd access.RoleUpdate) (access.Role, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Color != nil {
		sets = append(sets, fmt.Sprintf("color = $%d", idx))
		args = append(args, *upd.Color)
		idx++
	}
	if upd.Position != nil {
		sets = append(sets, fmt.Sprintf("position = $%d", idx))
		args = append(args, *upd.Position)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update roles set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, roleID)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return access.Role{}, fmt.Errorf("%w: role name taken", access.ErrConflict)
			}
			return access.Role{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return access.Role{}, err
		}
		if aff == 0 {
			return access.Role{}, access.ErrNotFound
		}
	}
	return s.GetRole(ctx, roleID)
}

func (s *Store) DeleteRole(ctx context.Context, roleID int64) error {
	return withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var isDefault bool
		err = tx.QueryRowContext(ctx, `select is_default from roles where id = $1 for update`, roleID).Scan(&isDefault)
		if errors.Is(err, sql.ErrNoRows) {
			return access.ErrNotFound
		}
		if err != nil {
			return err
		}
		if isDefault {
			return fmt.Errorf("%w: default role cannot be deleted", access.ErrConflict)
		}

		// Explicit cascade: detach from every user and permission first.
		if _, err := tx.ExecContext(ctx, `delete from user_roles where role_id = $1`, roleID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `delete from roles where id = $1`, roleID); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func (s *Store) DefaultRole(ctx context.Context) (access.Role, error) {
	var role access.Role
	err := s.db.QueryRowContext(ctx, `
		select id, name, color, position, is_default, created_at, updated_at
		from roles
		where is_default
		limit 1
	`).Scan(&role.ID, &role.Name, &role.Color, &role.Position, &role.IsDefault, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Role{}, access.ErrDefaultRoleMissing
	}
	if err != nil {
		return access.Role{}, err
	}
	return role, nil
}

func (s *Store) Permissions(ctx context.Context) ([]access.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, category
		from permissions
		order by id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []access.Permission
	for rows.Next() {
		var p access.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Category); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID int64, names []string) error {
	return withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var exists int
		if err := tx.QueryRowContext(ctx, `select 1 from roles where id = $1 for update`, roleID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return access.ErrNotFound
			}
			return err
		}

		if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
			return err
		}
		for _, name := range names {
			var permID int64
			err := tx.QueryRowContext(ctx, `select id from permissions where name = $1`, name).Scan(&permID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("%w: permission %s", access.ErrNotFound, name)
				}
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				insert into role_permissions (role_id, permission_id)
				values ($1, $2)
			`, roleID, permID); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func (s *Store) RolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `select 1 from roles where id = $1`, roleID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, access.ErrNotFound
		}
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select p.name
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.name
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *Store) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		on conflict do nothing
	`, userID, roleID)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return access.ErrNotFound
	}
	return err
}

func (s *Store) RemoveRole(ctx context.Context, userID, roleID int64) error {
	return withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var isDefault bool
		err = tx.QueryRowContext(ctx, `select is_default from roles where id = $1`, roleID).Scan(&isDefault)
		if errors.Is(err, sql.ErrNoRows) {
			return access.ErrNotFound
		}
		if err != nil {
			return err
		}
		if isDefault {
			return fmt.Errorf("%w: default role cannot be removed", access.ErrConflict)
		}

		if _, err := tx.ExecContext(ctx, `
			delete from user_roles where user_id = $1 and role_id = $2
		`, userID, roleID); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func (s *Store) UserRoles(ctx context.Context, userID int64) ([]access.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.color, r.position, r.is_default, r.created_at, r.updated_at
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by r.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []access.Role
	for rows.Next() {
		var role access.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Color, &role.Position, &role.IsDefault, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.name
		from user_roles ur
		join role_permissions rp on rp.role_id = ur.role_id
		join permissions p on p.id = rp.permission_id
		where ur.user_id = $1
		order by p.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}
