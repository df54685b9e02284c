package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RBACService provides the administrative operations over users, roles
// and permissions. All inputs are validated here; storage-level
// constraints (uniqueness, foreign keys, system-role protection) are
// surfaced through the package sentinels.
type RBACService struct {
	store Store
}

// NewRBACService constructs the admin service.
func NewRBACService(store Store) (*RBACService, error) {
	if store == nil {
		return nil, errors.New("auth: rbac store is required")
	}
	return &RBACService{store: store}, nil
}

// CreateUser registers a user with a hashed password. New users start
// active unless another known status is requested.
func (s *RBACService) CreateUser(ctx context.Context, email, name, password, status string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	password = strings.TrimSpace(password)
	if password == "" {
		return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	status = strings.TrimSpace(strings.ToLower(status))
	if status == "" {
		status = UserStatusActive
	}
	if !ValidUserStatus(status) {
		return User{}, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}
	return s.store.CreateUser(ctx, email, strings.TrimSpace(name), hash, status)
}

func (s *RBACService) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

func (s *RBACService) GetUser(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.GetUser(ctx, userID)
}

// UpdateUserStatus moves a user between active, inactive and
// suspended. Tokens already issued stay valid until their next
// refresh, which is where the new status is enforced.
func (s *RBACService) UpdateUserStatus(ctx context.Context, userID, status string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	status = strings.TrimSpace(strings.ToLower(status))
	if !ValidUserStatus(status) {
		return User{}, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}
	return s.store.UpdateUserStatus(ctx, userID, status)
}

// ReplaceUserRoles swaps the user's role set wholesale. An empty
// roleIDs list strips all roles.
func (s *RBACService) ReplaceUserRoles(ctx context.Context, userID string, roleIDs []string, assignedBy string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	deduped := dedupeStrings(roleIDs)
	for _, id := range deduped {
		if _, err := s.store.GetRole(ctx, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: role %s does not exist", ErrInvalidInput, id)
			}
			return err
		}
	}
	return s.store.ReplaceUserRoles(ctx, userID, deduped, strings.TrimSpace(assignedBy))
}

func (s *RBACService) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return s.store.CreateRole(ctx, name, strings.TrimSpace(description), false)
}

func (s *RBACService) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

func (s *RBACService) GetRole(ctx context.Context, roleID string) (Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.GetRole(ctx, roleID)
}

// DeleteRole removes a custom role. System roles are refused.
func (s *RBACService) DeleteRole(ctx context.Context, roleID string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.DeleteRole(ctx, roleID)
}

// SetRolePermissions replaces the role's permission set. Every key
// must parse under the resource:action:scope grammar (or be the
// wildcard) before it reaches storage.
func (s *RBACService) SetRolePermissions(ctx context.Context, roleID string, keys []string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	deduped := dedupeStrings(keys)
	for _, key := range deduped {
		if _, err := ParseKey(key); err != nil {
			return err
		}
	}
	return s.store.SetRolePermissions(ctx, roleID, deduped)
}

func (s *RBACService) RolePermissionKeys(ctx context.Context, roleID string) ([]string, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.RolePermissionKeys(ctx, roleID)
}

func (s *RBACService) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
