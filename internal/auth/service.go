package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer    = "philogic"
	defaultAccessTTL = 15 * time.Minute
)

// Service authenticates users and issues signed session tokens. The
// signing secret is injected at construction; the service refuses to
// start without one.
type Service struct {
	store     Store
	secret    []byte
	issuer    string
	accessTTL time.Duration
	now       func() time.Time
}

// Claims are the JWT claims carried by a session token: role names,
// the resolved permission set and the derived superadmin flag, all
// computed at issuance time.
type Claims struct {
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Superadmin  bool     `json:"superadmin"`
	jwt.RegisteredClaims
}

// Session is an issued token together with the principal it encodes.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Principal Principal `json:"principal"`
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithAccessTTL configures the session token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the session token issuer. It fails closed when
// the signing secret is missing.
func NewService(store Store, secret []byte, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is not configured")
	}
	svc := &Service{
		store:     store,
		secret:    secret,
		issuer:    defaultIssuer,
		accessTTL: defaultAccessTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Authenticate verifies the supplied credentials and issues a session
// token. The account-status gate runs after the password check so a
// wrong password never reveals account status; a correct password
// against a non-active account fails with a status-specific reason.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	if err := statusGate(user.Status); err != nil {
		return Session{}, err
	}
	principal, err := s.resolvePrincipal(ctx, user)
	if err != nil {
		return Session{}, err
	}
	return s.issue(principal)
}

// Refresh re-resolves the principal from the store and reissues the
// token. Role or permission changes become visible here, never inside
// an already-issued token (bounded staleness). A principal that no
// longer exists or is no longer active fails the refresh.
func (s *Service) Refresh(ctx context.Context, token string) (Session, error) {
	claims, err := s.Validate(token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrInvalidToken
		}
		return Session{}, err
	}
	if err := statusGate(user.Status); err != nil {
		return Session{}, err
	}
	principal, err := s.resolvePrincipal(ctx, user)
	if err != nil {
		return Session{}, err
	}
	return s.issue(principal)
}

// Validate verifies the token signature and registered claims and
// returns the embedded claims. It performs no store lookups: decisions
// made from a token are accurate as of its last issuance.
func (s *Service) Validate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// PrincipalFromClaims rebuilds the request principal from validated
// token claims.
func PrincipalFromClaims(claims *Claims) Principal {
	return Principal{
		UserID:      claims.Subject,
		Email:       claims.Email,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
		Superadmin:  claims.Superadmin,
	}
}

func (s *Service) issue(principal Principal) (Session, error) {
	now := s.now().UTC()
	exp := now.Add(s.accessTTL)
	claims := Claims{
		Email:       principal.Email,
		Roles:       principal.Roles,
		Permissions: principal.Permissions,
		Superadmin:  principal.Superadmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   principal.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: signed, ExpiresAt: exp, Principal: principal}, nil
}

// resolvePrincipal recomputes the role-name set and the union of
// permissions from the store. The superadmin flag is derived once here
// (granted set contains the wildcard), not re-checked per call site.
func (s *Service) resolvePrincipal(ctx context.Context, user User) (Principal, error) {
	roles, err := s.store.UserRoleNames(ctx, user.ID)
	if err != nil {
		return Principal{}, err
	}
	perms, err := s.store.UserPermissionKeys(ctx, user.ID)
	if err != nil {
		return Principal{}, err
	}
	sort.Strings(roles)
	sort.Strings(perms)
	superadmin := false
	for _, p := range perms {
		if p == Wildcard {
			superadmin = true
			break
		}
	}
	return Principal{
		UserID:      user.ID,
		Email:       user.Email,
		Roles:       roles,
		Permissions: perms,
		Superadmin:  superadmin,
	}, nil
}

func statusGate(status string) error {
	switch status {
	case UserStatusActive:
		return nil
	case UserStatusInactive:
		return ErrAccountInactive
	case UserStatusSuspended:
		return ErrAccountSuspended
	default:
		return ErrAccountUnavailable
	}
}
