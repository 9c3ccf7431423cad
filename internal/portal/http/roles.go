package http

import (
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/portalapi"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

// RolesHandler manages custom roles, their permissions, per-user overrides
// and user authority.
type RolesHandler struct {
	Roles       *service.RolesService
	Permissions *service.PermissionService
}

// HandleList handles GET /v1/roles. System roles are included with
// ?include_system=true.
func (h *RolesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	includeSystem, _ := strconv.ParseBool(r.URL.Query().Get("include_system"))
	roles, err := h.Roles.ListRoles(ctx, includeSystem)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := portalapi.ListRolesResponse{Roles: make([]portalapi.RoleInfo, len(roles))}
	for i, role := range roles {
		info := toRoleInfo(role)
		if !role.IsSystemRole {
			if info.UserCount, err = h.Roles.UserCount(ctx, role.ID); err != nil {
				writeServiceError(w, r, err)
				return
			}
		}
		resp.Roles[i] = info
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleGet handles GET /v1/roles/{id}.
func (h *RolesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	role, err := h.Roles.GetRole(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writeRole(w, r, role)
}

// HandleCreate handles POST /v1/roles.
func (h *RolesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req portalapi.CreateRoleRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	role, err := h.Roles.CreateRole(ctx, actorFrom(r), domain.RoleDraft{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	log.Info("role created", "role_id", role.ID, "name", role.Name)
	httpx.WriteJSON(w, http.StatusCreated, toRoleInfo(role))
}

// HandleUpdate handles PATCH /v1/roles/{id}.
func (h *RolesHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req portalapi.UpdateRoleRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	role, err := h.Roles.UpdateRole(r.Context(), actorFrom(r), id, domain.RoleChanges{
		DisplayName: req.DisplayName,
		Description: req.Description,
		IsActive:    req.IsActive,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writeRole(w, r, role)
}

// HandleDelete handles DELETE /v1/roles/{id}. Roles still assigned to users
// are refused with 409.
func (h *RolesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.Roles.DeleteRole(r.Context(), actorFrom(r), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetPermissions handles PUT /v1/roles/{id}/permissions, replacing the
// whole set.
func (h *RolesHandler) HandleSetPermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roleID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req portalapi.SetRolePermissionsRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	if err := h.Roles.AssignPermissions(ctx, actorFrom(r), roleID, req.PermissionIDs); err != nil {
		writeServiceError(w, r, err)
		return
	}

	role, err := h.Roles.GetRole(ctx, roleID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writeRole(w, r, role)
}

// HandleListPermissions handles GET /v1/permissions.
func (h *RolesHandler) HandleListPermissions(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Roles.PermissionsByCategory(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := portalapi.ListPermissionsResponse{Categories: make([]portalapi.PermissionCategory, len(groups))}
	for i, g := range groups {
		cat := portalapi.PermissionCategory{
			Category:    g.Category,
			Permissions: make([]portalapi.PermissionInfo, len(g.Permissions)),
		}
		for j, p := range g.Permissions {
			cat.Permissions[j] = toPermissionInfo(p)
		}
		resp.Categories[i] = cat
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleSetOverride handles PUT /v1/users/{id}/permissions/{name}.
func (h *RolesHandler) HandleSetOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")

	var req portalapi.SetOverrideRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	var err error
	if req.Granted {
		err = h.Permissions.Grant(ctx, actorFrom(r), userID, name)
	} else {
		err = h.Permissions.Revoke(ctx, actorFrom(r), userID, name)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleClearOverride handles DELETE /v1/users/{id}/permissions/{name}.
func (h *RolesHandler) HandleClearOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.Permissions.Clear(r.Context(), actorFrom(r), id, r.PathValue("name")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetUserRole handles PUT /v1/users/{id}/role.
func (h *RolesHandler) HandleSetUserRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req portalapi.SetUserRoleRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	role := domain.SystemRole(req.Role)
	if err := h.Roles.SetUserAuthority(r.Context(), actorFrom(r), id, role, req.RoleID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeRole responds with the role, its permission names and user count.
func (h *RolesHandler) writeRole(w http.ResponseWriter, r *http.Request, role domain.Role) {
	ctx := r.Context()
	info := toRoleInfo(role)

	perms, err := h.Roles.RolePermissions(ctx, role.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	info.Permissions = make([]string, len(perms))
	for i, p := range perms {
		info.Permissions[i] = p.Name
	}

	if !role.IsSystemRole {
		if info.UserCount, err = h.Roles.UserCount(ctx, role.ID); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, info)
}
