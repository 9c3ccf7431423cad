package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/idx"
	"github.com/aussiebroadwan/portal/pkg/portalapi"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorMappings lists the service sentinels in the order they are matched.
var errorMappings = []errorMapping{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, portalapi.ErrorCodeInvalidCredentials},
	{service.ErrSessionInvalid, http.StatusUnauthorized, portalapi.ErrorCodeUnauthorized},
	{service.ErrChallengeNotFound, http.StatusUnauthorized, portalapi.ErrorCodeInvalidToken},
	{service.ErrChallengeExhausted, http.StatusUnauthorized, portalapi.ErrorCodeInvalidToken},
	{service.ErrBootstrapUnauthorized, http.StatusUnauthorized, portalapi.ErrorCodeUnauthorized},

	{service.ErrAccountInactive, http.StatusForbidden, portalapi.ErrorCodeAccountInactive},
	{service.ErrEmailNotVerified, http.StatusForbidden, portalapi.ErrorCodeEmailNotVerified},
	{service.ErrSystemRoleProtected, http.StatusForbidden, portalapi.ErrorCodeForbidden},
	{service.ErrSessionForbidden, http.StatusForbidden, portalapi.ErrorCodeForbidden},
	{service.ErrRootRequired, http.StatusForbidden, portalapi.ErrorCodeForbidden},
	{service.ErrSelfAction, http.StatusForbidden, portalapi.ErrorCodeForbidden},

	{service.ErrCaptchaFailed, http.StatusBadRequest, portalapi.ErrorCodeCaptchaFailed},
	{service.ErrInvalidTOTPCode, http.StatusBadRequest, portalapi.ErrorCodeInvalidCode},
	{service.ErrNoPendingSetup, http.StatusBadRequest, portalapi.ErrorCodeInvalidRequest},
	{service.ErrMFANotEnabled, http.StatusBadRequest, portalapi.ErrorCodeInvalidRequest},
	{service.ErrInvalidToken, http.StatusBadRequest, portalapi.ErrorCodeInvalidToken},

	{service.ErrUserNotFound, http.StatusNotFound, portalapi.ErrorCodeNotFound},
	{service.ErrRoleNotFound, http.StatusNotFound, portalapi.ErrorCodeNotFound},
	{service.ErrPermissionNotFound, http.StatusNotFound, portalapi.ErrorCodeNotFound},
	{service.ErrDomainNotFound, http.StatusNotFound, portalapi.ErrorCodeNotFound},
	{service.ErrSessionNotFound, http.StatusNotFound, portalapi.ErrorCodeNotFound},
	{service.ErrEmailNotRegistered, http.StatusNotFound, portalapi.ErrorCodeNotFound},

	{service.ErrRoleNameTaken, http.StatusConflict, portalapi.ErrorCodeConflict},
	{service.ErrRoleInUse, http.StatusConflict, portalapi.ErrorCodeConflict},
	{service.ErrMFAAlreadyEnabled, http.StatusConflict, portalapi.ErrorCodeConflict},
	{service.ErrBootstrapAlready, http.StatusConflict, portalapi.ErrorCodeConflict},
}

// writeServiceError maps a service error onto the JSON error envelopes.
// Unknown errors are logged and hidden behind a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	var verr *service.ValidationError
	if errors.As(err, &verr) {
		httpx.WriteJSON(w, http.StatusBadRequest, portalapi.ValidationErrorResponse{
			Code:    portalapi.ErrorCodeValidation,
			Message: "Validation failed",
			Details: verr.Fields,
		})
		return
	}

	var lerr *service.LockoutError
	if errors.As(err, &lerr) {
		secs := max(int(lerr.Remaining.Seconds()), 1)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		httpx.WriteJSON(w, http.StatusTooManyRequests, portalapi.LockoutResponse{
			Error:             portalapi.ErrorCodeLockedOut,
			ErrorDescription:  lerr.Error(),
			RetryAfterSeconds: secs,
		})
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			if m.status == http.StatusUnauthorized || m.status == http.StatusForbidden {
				log.Info("request refused", "status", m.status, "err", err)
			}
			httpx.WriteError(w, m.status, m.code, m.err.Error())
			return
		}
	}

	log.Error("request failed", "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, portalapi.ErrorCodeServerError, "Internal server error")
}

// writeBadRequest reports a body or parameter that could not be parsed.
func writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	slogx.FromContext(r.Context()).Warn("failed to parse request", "err", err)
	httpx.WriteError(w, http.StatusBadRequest, portalapi.ErrorCodeInvalidRequest, err.Error())
}

// pathID reads the {id} path parameter. Anything that is not a ULID cannot
// name a record and is answered with 404 before it reaches a service.
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := idx.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, http.StatusNotFound, portalapi.ErrorCodeNotFound, "not found")
		return "", false
	}
	return id.String(), true
}
