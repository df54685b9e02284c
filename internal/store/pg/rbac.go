package pg

import (
	"context"
	"database/sql"
	"errors"

	"philogic.io/internal/auth"
	"philogic.io/internal/ids"
)

var _ auth.Store = (*Store)(nil)

func (s *Store) CreateUser(ctx context.Context, email, name, passwordHash, status string) (auth.User, error) {
	id := ids.New()
	var u auth.User
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, name, password_hash, status)
		values ($1, $2, $3, $4, $5)
		returning id, email, name, password_hash, status, created_at, updated_at
	`, id, email, name, passwordHash, status)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return auth.User{}, auth.ErrConflict
		}
		return auth.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, email, name, password_hash, status, created_at, updated_at
		from users where id = $1
	`, userID))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, email, name, password_hash, status, created_at, updated_at
		from users where email = $1
	`, email))
}

func (s *Store) scanUser(row *sql.Row) (auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]auth.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, email, name, password_hash, status, created_at, updated_at
		from users order by created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		var u auth.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserStatus(ctx context.Context, userID, status string) (auth.User, error) {
	var u auth.User
	row := s.db.QueryRowContext(ctx, `
		update users set status = $2, updated_at = now()
		where id = $1
		returning id, email, name, password_hash, status, created_at, updated_at
	`, userID, status)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	return u, nil
}

func (s *Store) CreateRole(ctx context.Context, name, description string, isSystem bool) (auth.Role, error) {
	id := ids.New()
	var role auth.Role
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description, is_system)
		values ($1, $2, $3, $4)
		returning id, name, description, is_system, created_at, updated_at
	`, id, name, description, isSystem)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return auth.Role{}, auth.ErrConflict
		}
		return auth.Role{}, err
	}
	return role, nil
}

func (s *Store) GetRole(ctx context.Context, roleID string) (auth.Role, error) {
	var role auth.Role
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, is_system, created_at, updated_at
		from roles where id = $1
	`, roleID).Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Role{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Role{}, err
	}
	return role, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, is_system, created_at, updated_at
		from roles order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return auth.ErrSystemRole
	}
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1 and not is_system`, roleID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) EnsurePermissions(ctx context.Context, perms []auth.Permission) error {
	for _, p := range perms {
		id := p.ID
		if id == "" {
			id = ids.New()
		}
		_, err := s.db.ExecContext(ctx, `
			insert into permissions (id, key, description)
			values ($1, $2, $3)
			on conflict (key) do update set description = excluded.description
		`, id, p.Key, p.Description)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, key, description, created_at from permissions order by key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Key, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID string, keys []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, key := range keys {
		res, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			select $1, id from permissions where key = $2
		`, roleID, key)
		if err != nil {
			if isForeignKeyViolation(err) {
				return auth.ErrNotFound
			}
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return auth.ErrNotFound
		}
	}
	return tx.Commit()
}

func (s *Store) RolePermissionKeys(ctx context.Context, roleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.key
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		where rp.role_id = $1
		order by p.key
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

// ReplaceUserRoles swaps the user's assignments in one transaction:
// delete then recreate, never an incremental diff.
func (s *Store) ReplaceUserRoles(ctx context.Context, userID string, roleIDs []string, assignedBy string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id = $1`, userID); err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		_, err := tx.ExecContext(ctx, `
			insert into user_roles (user_id, role_id, assigned_by)
			values ($1, $2, nullif($3, ''))
		`, userID, roleID, assignedBy)
		if err != nil {
			if isForeignKeyViolation(err) {
				return auth.ErrNotFound
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) UserRoleNames(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.name
		from roles r
		join user_roles ur on ur.role_id = r.id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

// UserPermissionKeys resolves the user's permission union in a single
// deduplicated query instead of iterating role by role.
func (s *Store) UserPermissionKeys(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.key
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		join user_roles ur on ur.role_id = rp.role_id
		where ur.user_id = $1
		order by p.key
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
