package http

import (
	"net/http"

	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/portalapi"
)

type BootstrapHandler struct {
	Bootstrap *service.BootstrapService
}

// ServeHTTP handles POST /v1/bootstrap.
func (h *BootstrapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req portalapi.BootstrapRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	u, err := h.Bootstrap.Bootstrap(r.Context(), req.Token, service.BootstrapInput{
		Fullname: req.Fullname,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}, clientInfo(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toUserInfo(u))
}
