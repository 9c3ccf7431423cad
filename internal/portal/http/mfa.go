package http

import (
	"net/http"

	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/portalapi"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

// MFAHandler handles the TOTP enrollment endpoints.
type MFAHandler struct {
	MFA   *service.MFAService
	Users *service.UserService
}

// HandleSetup handles POST /v1/mfa/totp/setup. The secret is returned once
// and stays pending until confirmed with a code.
func (h *MFAHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFrom(r)

	u, err := h.Users.Get(ctx, actor.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	enrollment, err := h.MFA.BeginSetup(ctx, u.ID, u.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, portalapi.TOTPSetupResponse{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		Issuer:          enrollment.Issuer,
		Account:         enrollment.Account,
		ExpiresAt:       enrollment.ExpiresAt,
	})
}

// HandleVerify handles POST /v1/mfa/totp/verify.
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req portalapi.TOTPCodeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	if err := h.MFA.ConfirmSetup(ctx, actorFrom(r), req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}

	log.Info("two-factor authentication enabled")
	w.WriteHeader(http.StatusNoContent)
}

// HandleDisable handles DELETE /v1/mfa/totp.
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	if err := h.MFA.Disable(r.Context(), actorFrom(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
