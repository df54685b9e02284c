package httpapi

import (
	"net/http"
	"strings"

	"philogic.io/internal/auth"
)

func (a *API) handleRolesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listRoles(w, r)
	case http.MethodPost:
		a.createRole(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, r, http.StatusBadRequest, "role id is required")
		return
	}
	roleID := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			a.getRole(w, r, roleID)
		case http.MethodDelete:
			a.deleteRole(w, r, roleID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "permissions":
		switch r.Method {
		case http.MethodGet:
			a.rolePermissions(w, r, roleID)
		case http.MethodPut:
			a.setRolePermissions(w, r, roleID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
		}
	default:
		http.NotFound(w, r)
	}
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.ensurePermissions(w, r, auth.PermRoleReadAll); !ok {
		return
	}
	roles, err := a.rbac.ListRoles(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.ensurePermissions(w, r, auth.PermRoleWriteAll)
	if !ok {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	role, err := a.rbac.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := a.recordEvent(r, principal.UserID, "role.created", "role", role.ID, map[string]any{
		"name": role.Name,
	}); err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit write failed")
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) getRole(w http.ResponseWriter, r *http.Request, roleID string) {
	if _, ok := a.ensurePermissions(w, r, auth.PermRoleReadAll); !ok {
		return
	}
	role, err := a.rbac.GetRole(r.Context(), roleID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) deleteRole(w http.ResponseWriter, r *http.Request, roleID string) {
	principal, ok := a.ensurePermissions(w, r, auth.PermRoleWriteAll)
	if !ok {
		return
	}
	if err := a.rbac.DeleteRole(r.Context(), roleID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := a.recordEvent(r, principal.UserID, "role.deleted", "role", roleID, nil); err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit write failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": roleID})
}

func (a *API) rolePermissions(w http.ResponseWriter, r *http.Request, roleID string) {
	if _, ok := a.ensurePermissions(w, r, auth.PermRoleReadAll); !ok {
		return
	}
	keys, err := a.rbac.RolePermissionKeys(r.Context(), roleID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"role_id": roleID, "permissions": keys})
}

type setPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// setRolePermissions replaces the role's grant set. Existing tokens
// keep their embedded permissions until refreshed.
func (a *API) setRolePermissions(w http.ResponseWriter, r *http.Request, roleID string) {
	principal, ok := a.ensurePermissions(w, r, auth.PermRoleWriteAll)
	if !ok {
		return
	}
	var req setPermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.rbac.SetRolePermissions(r.Context(), roleID, req.Permissions); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := a.recordEvent(r, principal.UserID, "role.permissions.updated", "role", roleID, map[string]any{
		"permissions": req.Permissions,
	}); err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit write failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"role_id": roleID, "permissions": req.Permissions})
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.ensurePermissions(w, r, auth.PermRoleReadAll); !ok {
		return
	}
	perms, err := a.rbac.ListPermissions(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}
