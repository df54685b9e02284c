package auth

import "errors"

var (
	// Authentication failures. All of them map to 401 at the boundary
	// and are reported by IsAuthenticationError.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrAccountInactive    = errors.New("auth: account is inactive")
	ErrAccountSuspended   = errors.New("auth: account is suspended")
	ErrAccountUnavailable = errors.New("auth: account is not available")

	// ErrPermissionDenied is an authorization failure: the session is
	// valid but the resolved permission set does not satisfy the
	// handler's requirement. Never conflated with the 401 class above.
	ErrPermissionDenied = errors.New("auth: permission denied")

	ErrInvalidInput = errors.New("auth: invalid input")
	ErrConflict     = errors.New("auth: already exists")
	ErrNotFound     = errors.New("auth: not found")

	// ErrSystemRole guards system roles against deletion.
	ErrSystemRole = errors.New("auth: system role cannot be deleted")
)

// IsAuthenticationError reports whether err belongs to the 401 class:
// missing/invalid/expired session or a non-active account.
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrAccountInactive) ||
		errors.Is(err, ErrAccountSuspended) ||
		errors.Is(err, ErrAccountUnavailable)
}
