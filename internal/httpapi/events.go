package httpapi

import (
	"net/http"

	"philogic.io/internal/audit"
)

// recordEvent writes an audit entry for a completed mutation. The
// recorder decides whether a failed write is fatal; handlers for
// security-sensitive actions must check the returned error.
func (a *API) recordEvent(r *http.Request, actorID, action, resourceType, resourceID string, metadata map[string]any) error {
	return a.auditor.Record(r.Context(), audit.Entry{
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
		IPAddress:    clientIP(r),
		UserAgent:    r.Header.Get("User-Agent"),
	})
}
