package httpapi

import (
	"net/http"
	"strings"

	"philogic.io/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	session, err := a.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	_ = a.recordEvent(r, session.Principal.UserID, "auth.login", "session", "", map[string]any{
		"email": session.Principal.Email,
	})
	writeJSON(w, http.StatusOK, session)
}

type refreshRequest struct {
	Token string `json:"token"`
}

// Refresh re-resolves the caller's roles and permissions from the
// store and issues a fresh token. This is the point where revocations
// and status changes become visible.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		// Fall back to the bearer header so clients can refresh the
		// token they are currently presenting.
		var err error
		if token, err = extractBearerToken(r.Header.Get(authHeader)); err != nil {
			writeError(w, r, http.StatusBadRequest, "token is required")
			return
		}
	}

	session, err := a.auth.Refresh(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	_ = a.recordEvent(r, session.Principal.UserID, "auth.refresh", "session", "", nil)
	writeJSON(w, http.StatusOK, session)
}

// Me returns the caller's resolved identity as embedded in the token.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondUnauthorized(w, r, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, principal)
}
