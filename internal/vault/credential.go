package vault

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidFormat = errors.New("vault: secret does not match the provider format")
	ErrDuplicate     = errors.New("vault: secret is already registered")
	ErrNotFound      = errors.New("vault: credential not found")
	ErrInactive      = errors.New("vault: credential is deactivated")
	ErrInvalidInput  = errors.New("vault: invalid input")
)

// Credential is the externally visible read model. Ciphertext and
// lookup hash never leave the storage layer.
type Credential struct {
	ID                         string     `json:"id"`
	OwnerID                    string     `json:"owner_id"`
	Name                       string     `json:"name"`
	Provider                   string     `json:"provider"`
	Preview                    string     `json:"preview"`
	RateLimitRequestsPerMinute int        `json:"rate_limit_requests_per_minute"`
	RateLimitTokensPerDay      int64      `json:"rate_limit_tokens_per_day"`
	MonthlyCostLimitUSD        float64    `json:"monthly_cost_limit_usd"`
	TotalRequests              int64      `json:"total_requests"`
	TotalTokens                int64      `json:"total_tokens"`
	IsActive                   bool       `json:"is_active"`
	CreatedAt                  time.Time  `json:"created_at"`
	LastUsedAt                 *time.Time `json:"last_used_at,omitempty"`
}

// Record is the persisted form of a credential, including the opaque
// ciphertext blob and the lookup hash. Internal to the vault and its
// storage layer.
type Record struct {
	Credential
	Ciphertext string
	LookupHash string
}

// Store is the persistence contract for credentials. Insert enforces
// lookup-hash uniqueness atomically and reports a collision as
// ErrDuplicate, so concurrent registration of the same secret leaves
// exactly one stored row.
type Store interface {
	Insert(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (Record, error)
	// List returns the redacted read model, restricted to ownerID
	// unless allOwners is set.
	List(ctx context.Context, ownerID string, allOwners bool) ([]Credential, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	// RecordUsage bumps the usage counters and last-used timestamp.
	RecordUsage(ctx context.Context, id string, tokens int64, usedAt time.Time) error
}
