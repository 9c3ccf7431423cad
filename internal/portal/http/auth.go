package http

import (
	"net/http"

	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/portalapi"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

// AuthHandler serves registration, login, logout and password recovery.
type AuthHandler struct {
	Auth     *service.AuthService
	Users    *service.UserService
	Sessions *sessionIssuer
}

// HandleRegister handles POST /v1/auth/register.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req portalapi.RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	u, err := h.Auth.Register(ctx, service.RegisterInput{
		Fullname:        req.Fullname,
		Username:        req.Username,
		Alias:           req.Alias,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		Captcha:         req.Captcha,
	}, clientInfo(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	log.Info("user registered", "user_id", u.ID)
	httpx.WriteJSON(w, http.StatusCreated, toUserInfo(u))
}

// HandleVerifyEmail handles GET /v1/auth/verify-email?token=...
func (h *AuthHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httpx.WriteError(w, http.StatusBadRequest, portalapi.ErrorCodeInvalidRequest, "token is required")
		return
	}

	u, err := h.Auth.VerifyEmail(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserInfo(u))
}

// HandleLogin handles POST /v1/auth/login. The response carries either a
// session or a two-factor challenge.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req portalapi.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	res, err := h.Auth.Login(ctx, service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Captcha:  req.Captcha,
	}, clientInfo(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.writeLogin(w, r, res)
}

// HandleTwoFactor handles POST /v1/auth/login/2fa.
func (h *AuthHandler) HandleTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req portalapi.TwoFactorLoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if req.ChallengeToken == "" || req.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest, portalapi.ErrorCodeInvalidRequest, "challenge_token and code are required")
		return
	}

	res, err := h.Auth.CompleteTwoFactor(r.Context(), req.ChallengeToken, req.Code, clientInfo(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.writeLogin(w, r, res)
}

func (h *AuthHandler) writeLogin(w http.ResponseWriter, r *http.Request, res service.LoginResult) {
	if res.RequiresTwoFactor() {
		expires := res.ChallengeExpiresAt
		httpx.WriteJSON(w, http.StatusOK, portalapi.LoginResponse{
			TwoFactorRequired:  true,
			ChallengeToken:     res.ChallengeToken,
			ChallengeExpiresAt: &expires,
		})
		return
	}

	token, err := h.Sessions.issue(w, res)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	user := toUserInfo(res.User)
	expires := res.Session.ExpiresAt
	httpx.WriteJSON(w, http.StatusOK, portalapi.LoginResponse{
		Token:     token,
		ExpiresAt: &expires,
		User:      &user,
	})
}

// HandleLogout handles POST /v1/auth/logout.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.Logout(r.Context(), actorFrom(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.Sessions.clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleRenew handles POST /v1/auth/session/renew. The registry row and the
// signed credential both get the new expiry.
func (h *AuthHandler) HandleRenew(w http.ResponseWriter, r *http.Request) {
	res, err := h.Auth.RenewSession(r.Context(), actorFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writeLogin(w, r, res)
}

// HandleForgotPassword handles POST /v1/auth/password/forgot.
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req portalapi.ForgotPasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	if err := h.Auth.RequestPasswordReset(r.Context(), req.Email, clientInfo(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, portalapi.MessageResponse{
		Message: "Password reset instructions have been sent to your email.",
	})
}

// HandleResetPassword handles POST /v1/auth/password/reset.
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req portalapi.ResetPasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	if err := h.Auth.ResetPassword(r.Context(), req.Token, req.Password, req.PasswordConfirm); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, portalapi.MessageResponse{
		Message: "Your password has been reset. You can now sign in.",
	})
}

// HandleChangePassword handles POST /v1/auth/password/change. Other
// sessions of the caller are signed out; the current one survives.
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req portalapi.ChangePasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	err := h.Users.ChangePassword(r.Context(), actorFrom(r), req.CurrentPassword, req.Password, req.PasswordConfirm)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAvailability handles POST /v1/auth/availability for the live
// checks on the registration form.
func (h *AuthHandler) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req portalapi.AvailabilityRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if req.Email == "" && req.Username == "" {
		httpx.WriteError(w, http.StatusBadRequest, portalapi.ErrorCodeInvalidRequest, "email or username is required")
		return
	}

	var resp portalapi.AvailabilityResponse
	if req.Email != "" {
		ok, err := h.Users.EmailAvailable(ctx, req.Email)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		resp.Email = &ok
	}
	if req.Username != "" {
		ok, err := h.Users.UsernameAvailable(ctx, req.Username)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		resp.Username = &ok
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
