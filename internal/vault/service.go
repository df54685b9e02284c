package vault

import (
	"context"
	"fmt"
	"strings"
	"time"

	"philogic.io/internal/ids"
)

const (
	defaultRequestsPerMinute = 60
	defaultTokensPerDay      = 100_000
	defaultMonthlyCostUSD    = 100
)

// Service is the credential vault: it validates, encrypts and stores
// third-party API secrets and mediates every later use of them. The
// plaintext is returned to the caller exactly once, from Register; no
// read path reconstructs it afterwards.
type Service struct {
	cipher *Cipher
	store  Store
	now    func() time.Time
}

// NewService wires the vault cipher to its store.
func NewService(cipher *Cipher, store Store) (*Service, error) {
	if cipher == nil {
		return nil, fmt.Errorf("%w: cipher is required", ErrInvalidInput)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	return &Service{cipher: cipher, store: store, now: time.Now}, nil
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// RegisterInput describes a credential to store.
type RegisterInput struct {
	OwnerID                    string
	Name                       string
	Provider                   string
	Plaintext                  string
	RateLimitRequestsPerMinute int
	RateLimitTokensPerDay      int64
	MonthlyCostLimitUSD        float64
}

// Register validates, encrypts and persists a secret. Duplicate
// plaintexts are rejected with ErrDuplicate regardless of who owns the
// existing copy; the error never names that owner. The stored record
// holds only ciphertext, lookup hash and preview.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Credential, error) {
	in.OwnerID = strings.TrimSpace(in.OwnerID)
	in.Name = strings.TrimSpace(in.Name)
	in.Provider = strings.TrimSpace(strings.ToLower(in.Provider))
	if in.OwnerID == "" || in.Name == "" || in.Provider == "" {
		return Credential{}, fmt.Errorf("%w: owner, name and provider are required", ErrInvalidInput)
	}
	if in.Plaintext == "" {
		return Credential{}, fmt.Errorf("%w: secret is required", ErrInvalidInput)
	}
	if !ValidateFormat(in.Plaintext, in.Provider) {
		return Credential{}, fmt.Errorf("%w: expected %s", ErrInvalidFormat, ExpectedFormat(in.Provider))
	}

	blob, hash, err := s.cipher.Encrypt(in.Plaintext)
	if err != nil {
		return Credential{}, err
	}
	if in.RateLimitRequestsPerMinute <= 0 {
		in.RateLimitRequestsPerMinute = defaultRequestsPerMinute
	}
	if in.RateLimitTokensPerDay <= 0 {
		in.RateLimitTokensPerDay = defaultTokensPerDay
	}
	if in.MonthlyCostLimitUSD <= 0 {
		in.MonthlyCostLimitUSD = defaultMonthlyCostUSD
	}

	rec := &Record{
		Credential: Credential{
			ID:                         ids.New(),
			OwnerID:                    in.OwnerID,
			Name:                       in.Name,
			Provider:                   in.Provider,
			Preview:                    Preview(in.Plaintext),
			RateLimitRequestsPerMinute: in.RateLimitRequestsPerMinute,
			RateLimitTokensPerDay:      in.RateLimitTokensPerDay,
			MonthlyCostLimitUSD:        in.MonthlyCostLimitUSD,
			IsActive:                   true,
			CreatedAt:                  s.now().UTC(),
		},
		Ciphertext: blob,
		LookupHash: hash,
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return Credential{}, err
	}
	return rec.Credential, nil
}

// Get returns the redacted read model for one credential.
func (s *Service) Get(ctx context.Context, id string) (Credential, error) {
	rec, err := s.store.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return Credential{}, err
	}
	return rec.Credential, nil
}

// List returns the redacted read models.
func (s *Service) List(ctx context.Context, ownerID string, allOwners bool) ([]Credential, error) {
	return s.store.List(ctx, ownerID, allOwners)
}

// Deactivate turns a credential off without destroying its ciphertext.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	return s.store.SetActive(ctx, strings.TrimSpace(id), false)
}

// Delete removes a credential permanently.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, strings.TrimSpace(id))
}

// PlaintextForUse decrypts a credential for the internal provider-call
// path and accounts the use. Not reachable from any user-facing read
// endpoint. Deactivated credentials refuse to decrypt.
func (s *Service) PlaintextForUse(ctx context.Context, id string, tokens int64) (string, error) {
	rec, err := s.store.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return "", err
	}
	if !rec.IsActive {
		return "", ErrInactive
	}
	plaintext, err := s.cipher.Decrypt(rec.Ciphertext)
	if err != nil {
		return "", err
	}
	// Usage accounting is advisory and must not fail the provider call.
	_ = s.store.RecordUsage(ctx, rec.ID, tokens, s.now().UTC())
	return plaintext, nil
}
