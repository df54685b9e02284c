package auth

import "time"

// User statuses. Only active users may hold a usable session; any
// transition away from active invalidates future token refreshes.
const (
	UserStatusActive    = "active"
	UserStatusInactive  = "inactive"
	UserStatusSuspended = "suspended"
)

// ValidUserStatus reports whether s is one of the known statuses.
func ValidUserStatus(s string) bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusSuspended:
		return true
	}
	return false
}

// User is an authenticatable principal.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"-"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role groups permissions. System roles are created at bootstrap and
// cannot be deleted.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is a catalog entry holding one capability key.
type Permission struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserRole links a user to a role. A user's role set is replaced
// wholesale (delete then recreate), never diffed incrementally.
type UserRole struct {
	UserID     string    `json:"user_id"`
	RoleID     string    `json:"role_id"`
	AssignedBy string    `json:"assigned_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Principal is an authenticated actor with its resolved grants. The
// permission set and the superadmin flag are computed at token
// issuance/refresh time, not per call site.
type Principal struct {
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Superadmin  bool     `json:"superadmin"`
}

// Can reports whether the principal satisfies the required permission.
func (p Principal) Can(required string) bool {
	if p.Superadmin {
		return true
	}
	return HasPermission(p.Permissions, required)
}

// CanAny reports whether the principal satisfies any of the required
// alternatives.
func (p Principal) CanAny(required ...string) bool {
	if p.Superadmin && len(required) > 0 {
		return true
	}
	return HasAnyPermission(p.Permissions, required...)
}
