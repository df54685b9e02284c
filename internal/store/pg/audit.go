package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"philogic.io/internal/audit"
)

var _ audit.Store = (*AuditLog)(nil)

// AuditLog is the audit-trail facet of the store. It shares the
// connection pool but carries its own method set so the credential
// listing and the audit listing stay distinct contracts.
type AuditLog struct {
	db *sql.DB
}

// Audit returns the audit persistence facet.
func (s *Store) Audit() *AuditLog { return &AuditLog{db: s.db} }

// Append is insert-only; nothing in this layer updates or deletes
// audit rows.
func (s *AuditLog) Append(ctx context.Context, e *audit.Entry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_log (
			id, occurred_at, actor_id, action, resource_type, resource_id,
			metadata, ip_address, user_agent
		) values ($1,$2,nullif($3,''),$4,$5,nullif($6,''),$7,$8,$9)
	`,
		e.ID, e.OccurredAt, e.ActorID, e.Action, e.ResourceType, e.ResourceID,
		meta, e.IPAddress, e.UserAgent,
	)
	return err
}

func (s *AuditLog) List(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.ActorID != "" {
		conds = append(conds, "actor_id = "+arg(f.ActorID))
	}
	if f.Action != "" {
		conds = append(conds, "action = "+arg(f.Action))
	}
	if f.ResourceType != "" {
		conds = append(conds, "resource_type = "+arg(f.ResourceType))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "occurred_at >= "+arg(f.Since))
	}
	if !f.Until.IsZero() {
		conds = append(conds, "occurred_at < "+arg(f.Until))
	}

	query := `
		select id, occurred_at, coalesce(actor_id, ''), action, resource_type,
		       coalesce(resource_id, ''), metadata, ip_address, user_agent
		from audit_log
	`
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	query += " order by occurred_at desc limit " + arg(f.Limit) + " offset " + arg(f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e    audit.Entry
			meta []byte
			ip   sql.NullString
			ua   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.ActorID, &e.Action, &e.ResourceType,
			&e.ResourceID, &meta, &ip, &ua); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Metadata)
		}
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
