package http

import (
	"net/http"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/portalapi"
)

// UsersHandler serves account administration.
type UsersHandler struct {
	Users       *service.UserService
	Roles       *service.RolesService
	Permissions *service.PermissionService
}

// HandleCreate handles POST /v1/users.
func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req portalapi.CreateUserRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	u, err := h.Users.AdminCreate(r.Context(), actorFrom(r), service.AdminCreateInput{
		Fullname: req.Fullname,
		Username: req.Username,
		Alias:    req.Alias,
		Email:    req.Email,
		Password: req.Password,
		Role:     domain.SystemRole(req.Role),
		RoleID:   req.RoleID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toUserInfo(u))
}

// HandleGet handles GET /v1/users/{id}.
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	u, err := h.Users.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserInfo(u))
}

// HandleUpdate handles PATCH /v1/users/{id}. Role fields are applied through
// the role service and need manage_roles on top of manage_users.
func (h *UsersHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req portalapi.UpdateUserRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	actor := actorFrom(r)
	authority := req.Role != nil || req.RoleID != nil
	profile := req.Fullname != nil || req.Username != nil || req.Alias != nil || req.Email != nil || req.IsActive != nil

	var role domain.SystemRole
	if req.Role != nil {
		role = domain.SystemRole(*req.Role)
	}
	if authority {
		allowed, err := h.Permissions.HasPermission(ctx, actor.UserID, PermManageRoles)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if !allowed {
			httpx.WriteError(w, http.StatusForbidden, portalapi.ErrorCodeForbidden, "manage_roles is required to change roles")
			return
		}
		if role == domain.RoleRoot && actor.Role != domain.RoleRoot {
			writeServiceError(w, r, service.ErrRootRequired)
			return
		}
	}

	if profile || !authority {
		_, err := h.Users.Update(ctx, actor, id, service.UserUpdate{
			Fullname: req.Fullname,
			Username: req.Username,
			Alias:    req.Alias,
			Email:    req.Email,
			IsActive: req.IsActive,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	if authority {
		if err := h.Roles.SetUserAuthority(ctx, actor, id, role, req.RoleID); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	u, err := h.Users.Get(ctx, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserInfo(u))
}

// HandleStats handles GET /v1/stats.
func (h *UsersHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Users.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := portalapi.StatsResponse{
		TotalUsers:     st.Total,
		ActiveUsers:    st.Active,
		VerifiedUsers:  st.Verified,
		TwoFactorUsers: st.TwoFactor,
		UsersByRole:    make(map[string]int, len(st.ByRole)),
	}
	for role, n := range st.ByRole {
		resp.UsersByRole[role.String()] = n
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleList handles GET /v1/users.
func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, portalapi.ListUsersResponse{Users: toUserInfos(users)})
}

// HandleListDeleted handles GET /v1/users/deleted.
func (h *UsersHandler) HandleListDeleted(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.ListDeleted(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, portalapi.ListUsersResponse{Users: toUserInfos(users)})
}

// HandleSetActive handles PUT /v1/users/{id}/active.
func (h *UsersHandler) HandleSetActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req portalapi.SetActiveRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	if err := h.Users.SetActive(r.Context(), actorFrom(r), id, req.Active); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete handles DELETE /v1/users/{id}. The account is soft-deleted
// and all of its sessions end.
func (h *UsersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.Users.SoftDelete(r.Context(), actorFrom(r), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRestore handles POST /v1/users/{id}/restore.
func (h *UsersHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.Users.Restore(r.Context(), actorFrom(r), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePurge handles DELETE /v1/users/{id}/permanent. Root only.
func (h *UsersHandler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.Users.Purge(r.Context(), actorFrom(r), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
