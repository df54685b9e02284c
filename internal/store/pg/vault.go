package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"philogic.io/internal/vault"
)

var _ vault.Store = (*Store)(nil)

// Insert relies on the unique index over lookup_hash: two concurrent
// registrations of the same secret race at the constraint and the
// loser surfaces ErrDuplicate.
func (s *Store) Insert(ctx context.Context, rec *vault.Record) error {
	_, err := s.db.ExecContext(ctx, `
		insert into credentials (
			id, owner_id, name, provider, ciphertext, lookup_hash, preview,
			rate_limit_requests_per_minute, rate_limit_tokens_per_day,
			monthly_cost_limit_usd, is_active, created_at
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		rec.ID, rec.OwnerID, rec.Name, rec.Provider, rec.Ciphertext, rec.LookupHash,
		rec.Preview, rec.RateLimitRequestsPerMinute, rec.RateLimitTokensPerDay,
		rec.MonthlyCostLimitUSD, rec.IsActive, rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return vault.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (vault.Record, error) {
	var (
		rec      vault.Record
		lastUsed sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select id, owner_id, name, provider, ciphertext, lookup_hash, preview,
		       rate_limit_requests_per_minute, rate_limit_tokens_per_day,
		       monthly_cost_limit_usd, total_requests, total_tokens,
		       is_active, created_at, last_used_at
		from credentials where id = $1
	`, id).Scan(
		&rec.ID, &rec.OwnerID, &rec.Name, &rec.Provider, &rec.Ciphertext, &rec.LookupHash,
		&rec.Preview, &rec.RateLimitRequestsPerMinute, &rec.RateLimitTokensPerDay,
		&rec.MonthlyCostLimitUSD, &rec.TotalRequests, &rec.TotalTokens,
		&rec.IsActive, &rec.CreatedAt, &lastUsed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return vault.Record{}, vault.ErrNotFound
	}
	if err != nil {
		return vault.Record{}, err
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		rec.LastUsedAt = &t
	}
	return rec, nil
}

// List deliberately omits ciphertext and lookup hash: only the
// redacted read model leaves the storage layer.
func (s *Store) List(ctx context.Context, ownerID string, allOwners bool) ([]vault.Credential, error) {
	query := `
		select id, owner_id, name, provider, preview,
		       rate_limit_requests_per_minute, rate_limit_tokens_per_day,
		       monthly_cost_limit_usd, total_requests, total_tokens,
		       is_active, created_at, last_used_at
		from credentials
	`
	var (
		rows *sql.Rows
		err  error
	)
	if allOwners {
		rows, err = s.db.QueryContext(ctx, query+` order by created_at desc`)
	} else {
		rows, err = s.db.QueryContext(ctx, query+` where owner_id = $1 order by created_at desc`, ownerID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []vault.Credential
	for rows.Next() {
		var (
			c        vault.Credential
			lastUsed sql.NullTime
		)
		if err := rows.Scan(
			&c.ID, &c.OwnerID, &c.Name, &c.Provider, &c.Preview,
			&c.RateLimitRequestsPerMinute, &c.RateLimitTokensPerDay,
			&c.MonthlyCostLimitUSD, &c.TotalRequests, &c.TotalTokens,
			&c.IsActive, &c.CreatedAt, &lastUsed,
		); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			t := lastUsed.Time
			c.LastUsedAt = &t
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `update credentials set is_active = $2 where id = $1`, id, active)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return vault.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from credentials where id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return vault.ErrNotFound
	}
	return nil
}

func (s *Store) RecordUsage(ctx context.Context, id string, tokens int64, usedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		update credentials
		set total_requests = total_requests + 1,
		    total_tokens = total_tokens + $2,
		    last_used_at = $3
		where id = $1
	`, id, tokens, usedAt)
	return err
}
