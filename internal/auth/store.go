package auth

import "context"

// Store is the persistence contract for users, roles and permissions.
// Implementations map storage-level uniqueness violations to
// ErrConflict and missing rows to ErrNotFound.
type Store interface {
	CreateUser(ctx context.Context, email, name, passwordHash, status string) (User, error)
	GetUser(ctx context.Context, userID string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUserStatus(ctx context.Context, userID, status string) (User, error)

	CreateRole(ctx context.Context, name, description string, isSystem bool) (Role, error)
	GetRole(ctx context.Context, roleID string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	// DeleteRole refuses to delete system roles (ErrSystemRole).
	DeleteRole(ctx context.Context, roleID string) error

	EnsurePermissions(ctx context.Context, perms []Permission) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	// SetRolePermissions replaces the role's permission set wholesale.
	SetRolePermissions(ctx context.Context, roleID string, keys []string) error
	RolePermissionKeys(ctx context.Context, roleID string) ([]string, error)

	// ReplaceUserRoles deletes the user's current assignments and
	// recreates them from roleIDs in one transaction.
	ReplaceUserRoles(ctx context.Context, userID string, roleIDs []string, assignedBy string) error
	UserRoleNames(ctx context.Context, userID string) ([]string, error)
	// UserPermissionKeys returns the deduplicated union of permission
	// keys across all of the user's roles in a single lookup.
	UserPermissionKeys(ctx context.Context, userID string) ([]string, error)
}
