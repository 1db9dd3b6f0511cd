package httpapi

import (
	"net/http"
	"strings"

	"squire.sh/internal/audit"
	"squire.sh/internal/identity"
	"squire.sh/internal/session"
)

type updateUserRequest struct {
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	PhoneNumber    *string `json:"phone_number"`
	SecondaryEmail *string `json:"secondary_email"`
	CompanyName    *string `json:"company_name"`
	Country        *string `json:"country"`
	RoleID         *string `json:"role_id"`
	Disabled       *bool   `json:"disabled"`
}

type roleRequest struct {
	Title string `json:"title"`
}

type resourceRequest struct {
	Name string `json:"name"`
}

type permissionRequest struct {
	Action     string `json:"action"`
	ResourceID string `json:"resource_id"`
}

type updatePermissionRequest struct {
	Action     *string `json:"action"`
	ResourceID *string `json:"resource_id"`
}

type policyRequest struct {
	Name         string `json:"name"`
	PermissionID string `json:"permission_id"`
	RoleID       string `json:"role_id"`
}

type updatePolicyRequest struct {
	Name         *string `json:"name"`
	PermissionID *string `json:"permission_id"`
	RoleID       *string `json:"role_id"`
}

func (a *API) handleAdminUser(w http.ResponseWriter, r *http.Request) {
	if a.requireAdmin(w, r) == nil {
		return
	}

	switch r.Method {
	case http.MethodGet:
		username := queryParam(r, "username")
		if username == "" {
			users, err := a.admin.ListUsers(r.Context())
			if err != nil {
				handleServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, users)
			return
		}
		user, err := a.admin.GetUser(r.Context(), username)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)

	case http.MethodPost:
		var req session.NewUser
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.admin.CreateUser(r.Context(), req)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.auditAdmin(r, "admin.user.created", map[string]any{"username": user.Username})
		writeJSON(w, http.StatusCreated, user)

	case http.MethodPut:
		username := queryParam(r, "username")
		if username == "" {
			writeError(w, r, http.StatusBadRequest, "username query parameter is required")
			return
		}
		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.admin.UpdateUser(r.Context(), username, identity.UserUpdate{
			FirstName:      req.FirstName,
			LastName:       req.LastName,
			PhoneNumber:    req.PhoneNumber,
			SecondaryEmail: req.SecondaryEmail,
			CompanyName:    req.CompanyName,
			Country:        req.Country,
			RoleID:         req.RoleID,
			Disabled:       req.Disabled,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.auditAdmin(r, "admin.user.updated", map[string]any{"username": username})
		writeJSON(w, http.StatusOK, user)

	case http.MethodDelete:
		id := queryParam(r, "id")
		if id == "" {
			writeError(w, r, http.StatusBadRequest, "id query parameter is required")
			return
		}
		if err := a.admin.DeleteUser(r.Context(), id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.auditAdmin(r, "admin.user.deleted", map[string]any{"id": id})
		writeJSON(w, http.StatusOK, deleted("user", id))

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleAdminRole(w http.ResponseWriter, r *http.Request) {
	if a.requireAdmin(w, r) == nil {
		return
	}

	switch r.Method {
	case http.MethodGet:
		id := queryParam(r, "role_id")
		if id == "" {
			roles, err := a.admin.ListRoles(r.Context())
			if err != nil {
				handleServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, roles)
			return
		}
		role, err := a.admin.GetRole(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)

	case http.MethodPost:
		var req roleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.admin.CreateRole(r.Context(), req.Title)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.auditAdmin(r, "admin.role.created", map[string]any{"title": role.Title})
		writeJSON(w, http.StatusCreated, role)

	case http.MethodPut:
		id := queryParam(r, "role_id")
		if id == "" {
			writeError(w, r, http.StatusBadRequest, "role_id query parameter is required")
			return
		}
		var req roleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.admin.UpdateRole(r.Context(), id, req.Title)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.auditAdmin(r, "admin.role.updated", map[string]any{"role_id": id})
		writeJSON(w, http.StatusOK, role)

	case http.MethodDelete:
		id := queryParam(r, "role_id")
		if id == "" {
			writeError(w, r, http.StatusBadRequest, "role_id query parameter is required")
			return
		}
		if err := a.admin.DeleteRole(r.Context(), id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.auditAdmin(r, "admin.role.deleted", map[string]any{"role_id": id})
		writeJSON(w, http.StatusOK, deleted("role", id))

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleAdminResource(w http.ResponseWriter, r *http.Request) {
	if a.requireAdmin(w, r) == nil {
		return
	}

	switch r.Method {
	case http.MethodGet:
		id := queryParam(r, "resource_id")
		if id == "" {
			resources, err := a.admin.ListResources(r.Context())
			if err != nil {
				handleServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, resources)
			return
		}
		res, err := a.admin.GetResource(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)

	case http.MethodPost:
		var req resourceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		res, err := a.admin.CreateResource(r.Context(), req.Name)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.auditAdmin(r, "admin.resource.created", map[string]any{"name": res.Name})
		writeJSON(w, http.StatusCreated, res)

	case http.MethodDelete:
		id := queryParam(r, "resource_id")
		if id == "" {
			writeError(w, r, http.StatusBadRequest, "resource_id query parameter is required")
			return
		}
		if err := a.admin.DeleteResource(r.Context(), id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.auditAdmin(r, "admin.resource.deleted", map[string]any{"resource_id": id})
		writeJSON(w, http.StatusOK, deleted("resource", id))

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handleAdminPermission(w http.ResponseWriter, r *http.Request) {
	if a.requireAdmin(w, r) == nil {
		return
	}

	switch r.Method {
	case http.MethodGet:
		id := queryParam(r, "permission_id")
		if id == "" {
			perms, err := a.admin.ListPermissions(r.Context())
			if err != nil {
				handleServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, perms)
			return
		}
		perm, err := a.admin.GetPermission(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, perm)

	case http.MethodPost:
		var req permissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		perm, err := a.admin.CreatePermission(r.Context(), req.Action, req.ResourceID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.auditAdmin(r, "admin.permission.created", map[string]any{"action": perm.Action})
		writeJSON(w, http.StatusCreated, perm)

	case http.MethodPut:
		id := queryParam(r, "permission_id")
		if id == "" {
			writeError(w, r, http.StatusBadRequest, "permission_id query parameter is required")
			return
		}
		var req updatePermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		perm, err := a.admin.UpdatePermission(r.Context(), id, identity.PermissionUpdate{
			Action:     req.Action,
			ResourceID: req.ResourceID,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.auditAdmin(r, "admin.permission.updated", map[string]any{"permission_id": id})
		writeJSON(w, http.StatusOK, perm)

	case http.MethodDelete:
		id := queryParam(r, "permission_id")
		if id == "" {
			writeError(w, r, http.StatusBadRequest, "permission_id query parameter is required")
			return
		}
		if err := a.admin.DeletePermission(r.Context(), id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.auditAdmin(r, "admin.permission.deleted", map[string]any{"permission_id": id})
		writeJSON(w, http.StatusOK, deleted("permission", id))

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleAdminPolicy(w http.ResponseWriter, r *http.Request) {
	if a.requireAdmin(w, r) == nil {
		return
	}

	switch r.Method {
	case http.MethodGet:
		name := queryParam(r, "name")
		if name == "" {
			policies, err := a.admin.ListPolicies(r.Context())
			if err != nil {
				handleServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, policies)
			return
		}
		pol, err := a.admin.GetPolicy(r.Context(), name)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, pol)

	case http.MethodPost:
		var req policyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		pol, err := a.admin.CreatePolicy(r.Context(), req.Name, req.PermissionID, req.RoleID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.auditAdmin(r, "admin.policy.created", map[string]any{"name": pol.Name})
		writeJSON(w, http.StatusCreated, pol)

	case http.MethodPut:
		name := queryParam(r, "name")
		if name == "" {
			writeError(w, r, http.StatusBadRequest, "name query parameter is required")
			return
		}
		var req updatePolicyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		pol, err := a.admin.UpdatePolicy(r.Context(), name, identity.PolicyUpdate{
			Name:         req.Name,
			PermissionID: req.PermissionID,
			RoleID:       req.RoleID,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.auditAdmin(r, "admin.policy.updated", map[string]any{"name": name})
		writeJSON(w, http.StatusOK, pol)

	case http.MethodDelete:
		name := queryParam(r, "name")
		if name == "" {
			writeError(w, r, http.StatusBadRequest, "name query parameter is required")
			return
		}
		if err := a.admin.DeletePolicy(r.Context(), name); err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.auditAdmin(r, "admin.policy.deleted", map[string]any{"name": name})
		writeJSON(w, http.StatusOK, deleted("policy", name))

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) auditAdmin(r *http.Request, event string, fields map[string]any) {
	_ = audit.LogEvent(r.Context(), event, fields)
}

func queryParam(r *http.Request, name string) string {
	return strings.TrimSpace(r.URL.Query().Get(name))
}

func deleted(kind, id string) map[string]any {
	return map[string]any{
		"message": kind + " " + id + " deleted",
	}
}
