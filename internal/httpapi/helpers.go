package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"philogic.io/internal/auth"
	"philogic.io/internal/vault"
)

const maxRequestBody = 1 << 20

// decodeJSON reads a single JSON object from the request body.
// Unknown fields and trailing content are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"error":      msg,
		"request_id": RequestIDFromContext(r.Context()),
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// writeServiceError maps domain sentinels onto HTTP statuses. Anything
// unrecognized is a 500 with a generic message so internals never leak.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondUnauthorized(w, r, "invalid email or password")
	case errors.Is(err, auth.ErrAccountInactive):
		respondUnauthorized(w, r, "account is inactive")
	case errors.Is(err, auth.ErrAccountSuspended):
		respondUnauthorized(w, r, "account is suspended")
	case errors.Is(err, auth.ErrAccountUnavailable):
		respondUnauthorized(w, r, "account is unavailable")
	case errors.Is(err, auth.ErrInvalidToken):
		respondUnauthorized(w, r, "invalid or expired token")
	case errors.Is(err, auth.ErrPermissionDenied):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrSystemRole):
		writeError(w, r, http.StatusConflict, "system roles cannot be deleted")
	case errors.Is(err, auth.ErrConflict), errors.Is(err, vault.ErrDuplicate):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound), errors.Is(err, vault.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, vault.ErrInvalidInput),
		errors.Is(err, vault.ErrInvalidFormat):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, vault.ErrInactive):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
