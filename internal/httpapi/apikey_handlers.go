package httpapi

import (
	"net/http"
	"strings"

	"philogic.io/internal/auth"
	"philogic.io/internal/vault"
)

func (a *API) handleAPIKeysCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listAPIKeys(w, r)
	case http.MethodPost:
		a.createAPIKey(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAPIKeyResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/apikeys/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, r, http.StatusBadRequest, "credential id is required")
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		a.deleteAPIKey(w, r, id)
	case len(parts) == 2 && parts[1] == "deactivate":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.deactivateAPIKey(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

// listAPIKeys returns the redacted read model. Holders of the read-all
// grant see every owner's credentials; everyone else sees only their
// own.
func (a *API) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.ensurePermissions(w, r, auth.PermAPIKeyReadSelf, auth.PermAPIKeyReadAll)
	if !ok {
		return
	}
	allOwners := principal.Can(auth.PermAPIKeyReadAll)
	keys, err := a.vault.List(r.Context(), principal.UserID, allOwners)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"api_keys": keys})
}

type createAPIKeyRequest struct {
	Name                       string  `json:"name"`
	Provider                   string  `json:"provider"`
	Key                        string  `json:"key"`
	OwnerID                    string  `json:"owner_id,omitempty"`
	RateLimitRequestsPerMinute int     `json:"rate_limit_requests_per_minute,omitempty"`
	RateLimitTokensPerDay      int64   `json:"rate_limit_tokens_per_day,omitempty"`
	MonthlyCostLimitUSD        float64 `json:"monthly_cost_limit_usd,omitempty"`
}

// createAPIKey stores a new credential. The response is the only place
// the plaintext is ever returned; every later read gets the preview.
func (a *API) createAPIKey(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.ensurePermissions(w, r, auth.PermAPIKeyWriteSelf, auth.PermAPIKeyWriteOther)
	if !ok {
		return
	}
	var req createAPIKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ownerID := principal.UserID
	if req.OwnerID != "" && req.OwnerID != principal.UserID {
		if _, ok := a.ensurePermissions(w, r, auth.PermAPIKeyWriteOther); !ok {
			return
		}
		ownerID = req.OwnerID
	}

	cred, err := a.vault.Register(r.Context(), vault.RegisterInput{
		OwnerID:                    ownerID,
		Name:                       req.Name,
		Provider:                   req.Provider,
		Plaintext:                  req.Key,
		RateLimitRequestsPerMinute: req.RateLimitRequestsPerMinute,
		RateLimitTokensPerDay:      req.RateLimitTokensPerDay,
		MonthlyCostLimitUSD:        req.MonthlyCostLimitUSD,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := a.recordEvent(r, principal.UserID, "apikey.created", "credential", cred.ID, map[string]any{
		"provider": cred.Provider,
		"owner_id": cred.OwnerID,
	}); err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit write failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"api_key":  cred,
		"full_key": req.Key,
		"notice":   "store this key now, it will not be shown again",
	})
}

func (a *API) deleteAPIKey(w http.ResponseWriter, r *http.Request, id string) {
	principal, _, ok := a.requireCredentialAccess(w, r, id, auth.PermAPIKeyDeleteAll)
	if !ok {
		return
	}
	if err := a.vault.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	_ = a.recordEvent(r, principal.UserID, "apikey.deleted", "credential", id, nil)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (a *API) deactivateAPIKey(w http.ResponseWriter, r *http.Request, id string) {
	principal, _, ok := a.requireCredentialAccess(w, r, id, auth.PermAPIKeyDeleteAll)
	if !ok {
		return
	}
	if err := a.vault.Deactivate(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	_ = a.recordEvent(r, principal.UserID, "apikey.deactivated", "credential", id, nil)
	writeJSON(w, http.StatusOK, map[string]any{"deactivated": id})
}

// requireCredentialAccess allows the credential's owner through and
// otherwise demands the elevated grant. Callers without either see a
// 404 for credentials they do not own, never a 403, so existence is
// not disclosed across owners.
func (a *API) requireCredentialAccess(w http.ResponseWriter, r *http.Request, id, elevated string) (auth.Principal, bool, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondUnauthorized(w, r, "authentication required")
		return auth.Principal{}, false, false
	}
	cred, err := a.vault.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return auth.Principal{}, false, false
	}
	if cred.OwnerID == principal.UserID {
		return principal, true, true
	}
	if !principal.Can(elevated) {
		writeError(w, r, http.StatusNotFound, "not found")
		return auth.Principal{}, false, false
	}
	return principal, false, true
}
