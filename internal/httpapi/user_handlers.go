package httpapi

import (
	"net/http"
	"strings"

	"philogic.io/internal/auth"
)

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listUsers(w, r)
	case http.MethodPost:
		a.createUser(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleUserResource dispatches /v1/users/{id} and the nested
// /v1/users/{id}/roles and /v1/users/{id}/status subresources.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, r, http.StatusBadRequest, "user id is required")
		return
	}
	userID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getUser(w, r, userID)
	case len(parts) == 2 && parts[1] == "roles":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.replaceUserRoles(w, r, userID)
	case len(parts) == 2 && parts[1] == "status":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.updateUserStatus(w, r, userID)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.ensurePermissions(w, r, auth.PermUserReadAll); !ok {
		return
	}
	users, err := a.rbac.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

type createUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Status   string `json:"status"`
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.ensurePermissions(w, r, auth.PermUserWriteAll)
	if !ok {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.rbac.CreateUser(r.Context(), req.Email, req.Name, req.Password, req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	_ = a.recordEvent(r, principal.UserID, "user.created", "user", user.ID, map[string]any{
		"email": user.Email,
	})
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request, userID string) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondUnauthorized(w, r, "authentication required")
		return
	}
	// Users may always read their own record; anything else needs the
	// read-all grant.
	if principal.UserID != userID {
		if _, ok := a.ensurePermissions(w, r, auth.PermUserReadAll); !ok {
			return
		}
	}
	user, err := a.rbac.GetUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type replaceRolesRequest struct {
	RoleIDs []string `json:"role_ids"`
}

// replaceUserRoles swaps the target's role set atomically. The change
// does not affect tokens already issued; it becomes visible on the
// target's next refresh.
func (a *API) replaceUserRoles(w http.ResponseWriter, r *http.Request, userID string) {
	principal, ok := a.ensurePermissions(w, r, auth.PermRoleAssignAll, auth.PermRoleAssignNonAdm)
	if !ok {
		return
	}
	var req replaceRolesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.rbac.ReplaceUserRoles(r.Context(), userID, req.RoleIDs, principal.UserID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := a.recordEvent(r, principal.UserID, "user.roles.replaced", "user", userID, map[string]any{
		"role_ids": req.RoleIDs,
	}); err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit write failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "role_ids": req.RoleIDs})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (a *API) updateUserStatus(w http.ResponseWriter, r *http.Request, userID string) {
	principal, ok := a.ensurePermissions(w, r, auth.PermUserWriteAll, auth.PermUserWriteNonAdm)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.rbac.UpdateUserStatus(r.Context(), userID, req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	_ = a.recordEvent(r, principal.UserID, "user.status.updated", "user", userID, map[string]any{
		"status": user.Status,
	})
	writeJSON(w, http.StatusOK, user)
}
