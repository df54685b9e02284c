package auth

import (
	"context"
	"errors"
	"fmt"
)

// Permission keys referenced by handlers. The full catalog lives in
// BuiltinPermissions; these constants exist for the call sites.
const (
	PermUserReadAll      = "user:read:all"
	PermUserWriteAll     = "user:write:all"
	PermUserWriteNonAdm  = "user:write:non_admin"
	PermRoleReadAll      = "role:read:all"
	PermRoleWriteAll     = "role:write:all"
	PermRoleAssignAll    = "role:assign:all"
	PermRoleAssignNonAdm = "role:assign:non_admin"
	PermAPIKeyReadSelf   = "apikey:read:self"
	PermAPIKeyReadAll    = "apikey:read:all"
	PermAPIKeyWriteSelf  = "apikey:write:self"
	PermAPIKeyWriteOther = "apikey:write:other"
	PermAPIKeyDeleteSelf = "apikey:delete:self"
	PermAPIKeyDeleteAll  = "apikey:delete:all"
	PermAuditReadSelf    = "audit:read:self"
	PermAuditReadAll     = "audit:read:all"
)

// BuiltinPermissions is the seeded permission catalog.
var BuiltinPermissions = []Permission{
	{Key: Wildcard, Description: "Full system access (superadmin only)"},

	{Key: PermUserReadAll, Description: "Read all users"},
	{Key: "user:read:self", Description: "Read own user data"},
	{Key: PermUserWriteAll, Description: "Create/update all users"},
	{Key: PermUserWriteNonAdm, Description: "Manage non-admin users only"},
	{Key: "user:delete:all", Description: "Delete any user"},

	{Key: PermRoleReadAll, Description: "Read all roles"},
	{Key: PermRoleWriteAll, Description: "Manage roles and permissions"},
	{Key: PermRoleAssignAll, Description: "Assign any role to users"},
	{Key: PermRoleAssignNonAdm, Description: "Assign non-admin roles only"},

	{Key: "academy:content:read:all", Description: "Read published academy content"},
	{Key: "academy:content:create:self_domain", Description: "Create content in own domain"},
	{Key: "academy:content:create:all", Description: "Create content in any domain"},
	{Key: "academy:content:approve:all", Description: "Approve pending content"},
	{Key: "academy:content:delete:all", Description: "Delete academy content"},

	{Key: PermAPIKeyReadSelf, Description: "Read own API keys"},
	{Key: PermAPIKeyReadAll, Description: "Read all API keys"},
	{Key: PermAPIKeyWriteSelf, Description: "Manage own API keys"},
	{Key: PermAPIKeyWriteOther, Description: "Manage other users' API keys"},
	{Key: PermAPIKeyDeleteSelf, Description: "Delete own API keys"},
	{Key: PermAPIKeyDeleteAll, Description: "Delete any API key"},

	{Key: PermAuditReadSelf, Description: "Read own audit records"},
	{Key: PermAuditReadAll, Description: "Read all audit records"},

	{Key: "system:config:read", Description: "Read system configuration"},
	{Key: "system:config:write", Description: "Modify system configuration"},
}

// SystemRole pairs a built-in role with its grants.
type SystemRole struct {
	Name        string
	Description string
	Permissions []string
}

// SystemRoles are created at bootstrap and protected from deletion.
var SystemRoles = []SystemRole{
	{
		Name:        "superadmin",
		Description: "Full system access with no restrictions",
		Permissions: []string{Wildcard},
	},
	{
		Name:        "admin",
		Description: "Operational administration without system policy changes",
		Permissions: []string{
			PermUserReadAll, PermUserWriteNonAdm,
			PermRoleReadAll, PermRoleAssignNonAdm,
			"academy:content:read:all", "academy:content:create:all",
			"academy:content:approve:all", "academy:content:delete:all",
			PermAPIKeyReadAll, PermAPIKeyWriteOther,
			PermAuditReadAll, "system:config:read",
		},
	},
	{
		Name:        "domain_owner",
		Description: "Domain/team leadership with scoped permissions",
		Permissions: []string{
			"user:read:self",
			"academy:content:read:all", "academy:content:create:self_domain",
			PermAPIKeyReadSelf, PermAPIKeyWriteSelf, PermAPIKeyDeleteSelf,
			PermAuditReadSelf,
		},
	},
	{
		Name:        "standard_user",
		Description: "Regular user with basic platform access",
		Permissions: []string{
			"user:read:self",
			"academy:content:read:all",
			PermAPIKeyReadSelf, PermAPIKeyWriteSelf, PermAPIKeyDeleteSelf,
			PermAuditReadSelf,
		},
	},
	{
		Name:        "read_only",
		Description: "View-only access for reporting and auditing",
		Permissions: []string{
			"user:read:self",
			"academy:content:read:all",
			PermAuditReadSelf,
		},
	},
}

// Bootstrap seeds the permission catalog and the system roles, then
// wires their grants. Safe to run repeatedly: permissions are upserted
// and existing roles are reused.
func Bootstrap(ctx context.Context, store Store) error {
	if err := store.EnsurePermissions(ctx, BuiltinPermissions); err != nil {
		return fmt.Errorf("seed permissions: %w", err)
	}
	existing, err := store.ListRoles(ctx)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}
	byName := make(map[string]Role, len(existing))
	for _, r := range existing {
		byName[r.Name] = r
	}
	for _, sys := range SystemRoles {
		role, ok := byName[sys.Name]
		if !ok {
			role, err = store.CreateRole(ctx, sys.Name, sys.Description, true)
			if err != nil {
				return fmt.Errorf("create role %s: %w", sys.Name, err)
			}
		}
		if err := store.SetRolePermissions(ctx, role.ID, sys.Permissions); err != nil {
			return fmt.Errorf("grant role %s: %w", sys.Name, err)
		}
	}
	return nil
}

// BootstrapSuperadmin creates the initial superadmin account and
// assigns it the superadmin role. Used once at install time.
func BootstrapSuperadmin(ctx context.Context, store Store, email, password string) (User, error) {
	if err := Bootstrap(ctx, store); err != nil {
		return User{}, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}
	user, err := store.CreateUser(ctx, email, "Superadmin", hash, UserStatusActive)
	if err != nil {
		return User{}, err
	}
	roles, err := store.ListRoles(ctx)
	if err != nil {
		return User{}, err
	}
	for _, r := range roles {
		if r.Name == "superadmin" {
			if err := store.ReplaceUserRoles(ctx, user.ID, []string{r.ID}, ""); err != nil {
				return User{}, err
			}
			return user, nil
		}
	}
	return User{}, errors.New("auth: superadmin role missing after bootstrap")
}
