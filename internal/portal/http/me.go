package http

import (
	"net/http"

	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/portalapi"
)

// MeHandler serves the caller's own profile.
type MeHandler struct {
	Users       *service.UserService
	Permissions *service.PermissionService
}

// HandleProfile handles GET /v1/me.
func (h *MeHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.Users.Get(r.Context(), actorFrom(r).UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserInfo(u))
}

// HandlePermissions handles GET /v1/me/permissions.
func (h *MeHandler) HandlePermissions(w http.ResponseWriter, r *http.Request) {
	names, err := h.Permissions.EffectivePermissionNames(r.Context(), actorFrom(r).UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	httpx.WriteJSON(w, http.StatusOK, portalapi.MyPermissionsResponse{Permissions: names})
}
