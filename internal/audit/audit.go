// Package audit appends immutable records of privileged actions and
// serves the filterable, read-only view over them. Writes run after
// the primary mutation has committed and are best-effort: a failed
// append is logged locally and never bubbles up to the caller, unless
// strict mode covers the action.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"philogic.io/internal/ids"
	"philogic.io/internal/obs"
)

// Entry is one audit record. Once appended it is never mutated or
// deleted by this core.
type Entry struct {
	ID           string         `json:"id"`
	OccurredAt   time.Time      `json:"occurred_at"`
	ActorID      string         `json:"actor_id,omitempty"` // empty for system-initiated actions
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
}

// Filter narrows the read surface. Zero values are ignored.
type Filter struct {
	ActorID      string
	Action       string
	ResourceType string
	Since        time.Time
	Until        time.Time
	Limit        int
	Offset       int
}

// Store is the persistence contract. Append is insert-only.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) ([]Entry, error)
}

// StrictActions are the high-sensitivity action classes for which an
// audit failure aborts the primary operation when strict mode is on:
// permission/role changes and credential creation/access.
var StrictActions = []string{
	"role.",
	"user.roles.",
	"apikey.created",
	"apikey.accessed",
}

// Recorder writes audit entries under the best-effort contract.
type Recorder struct {
	store  Store
	strict bool
	now    func() time.Time
}

// Option configures the Recorder.
type Option func(*Recorder)

// WithStrictMode makes audit failures fatal for the actions listed in
// StrictActions.
func WithStrictMode(enabled bool) Option {
	return func(r *Recorder) { r.strict = enabled }
}

// WithClock overrides the time source for tests.
func WithClock(fn func() time.Time) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder constructs a Recorder over the given store.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one entry. The caller invokes it only after the
// primary mutation has durably committed, so a record never describes
// an action that did not happen. On store failure the error is logged
// and swallowed; for strict actions under strict mode it is returned.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = r.now().UTC()
	}
	err := r.store.Append(ctx, &e)
	if err == nil {
		return nil
	}
	if r.strict && isStrictAction(e.Action) {
		return fmt.Errorf("audit append failed for %s: %w", e.Action, err)
	}
	obs.RecordAuditFailure()
	obs.Warn("audit append failed", map[string]any{
		"action":        e.Action,
		"resource_type": e.ResourceType,
		"error":         err.Error(),
	})
	return nil
}

// List serves the read surface. The limit is clamped to [1,1000].
func (r *Recorder) List(ctx context.Context, f Filter) ([]Entry, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return r.store.List(ctx, f)
}

func isStrictAction(action string) bool {
	for _, prefix := range StrictActions {
		if strings.HasPrefix(action, prefix) {
			return true
		}
	}
	return false
}
