package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"philogic.io/internal/auth"
	"philogic.io/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/v1/info",
	"/metrics",
	"/healthz",
	"/readyz",
	"/",
}

// withAuth resolves the principal from the bearer token and attaches
// it to the context. Authorization state is read from the token's
// embedded permission set: it reflects the last issuance/refresh, not
// necessarily the present store state.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			respondUnauthorized(w, r, err.Error())
			return
		}
		claims, err := a.auth.Validate(token)
		if err != nil {
			respondUnauthorized(w, r, "invalid or expired token")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), auth.PrincipalFromClaims(claims))
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ensurePermissions is the authorization step of the request pipeline.
// A missing principal is a 401; a principal without any of the
// required permissions is a 403 naming the acceptable keys. The two
// outcomes are never conflated.
func (a *API) ensurePermissions(w http.ResponseWriter, r *http.Request, required ...string) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondUnauthorized(w, r, "authentication required")
		return auth.Principal{}, false
	}
	if !principal.CanAny(required...) {
		if len(required) > 0 {
			obs.RecordAuthzDenial(required[0])
		}
		writeError(w, r, http.StatusForbidden,
			"required permission: "+strings.Join(required, " or "))
		return auth.Principal{}, false
	}
	return principal, true
}

func respondUnauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="philogic"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
