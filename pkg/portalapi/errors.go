package portalapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Error codes carried in ErrorResponse.Error.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeValidation         = "validation_error"
	ErrorCodeInvalidCredentials = "invalid_credentials"
	ErrorCodeAccountInactive    = "account_inactive"
	ErrorCodeEmailNotVerified   = "email_not_verified"
	ErrorCodeCaptchaFailed      = "captcha_failed"
	ErrorCodeLockedOut          = "locked_out"
	ErrorCodeInvalidToken       = "invalid_token"
	ErrorCodeInvalidCode        = "invalid_code"
	ErrorCodeUnauthorized       = "unauthorized"
	ErrorCodeForbidden          = "forbidden"
	ErrorCodeNotFound           = "not_found"
	ErrorCodeConflict           = "conflict"
	ErrorCodeRateLimited        = "rate_limit_exceeded"
	ErrorCodeServerError        = "server_error"
)

// APIError is a decoded error response.
type APIError struct {
	StatusCode  int
	Code        string
	Description string

	// Fields is set for validation errors.
	Fields map[string]string

	// RetryAfter is set for lockouts.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches another *APIError by code, so callers can write
// errors.Is(err, &portalapi.APIError{Code: portalapi.ErrorCodeLockedOut}).
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// parseErrorResponse turns a non-2xx response body into an *APIError.
func parseErrorResponse(statusCode int, body []byte) error {
	var envelope struct {
		Error             string            `json:"error"`
		ErrorDescription  string            `json:"error_description"`
		RetryAfterSeconds int               `json:"retry_after_seconds"`
		Code              string            `json:"code"`
		Message           string            `json:"message"`
		Details           map[string]string `json:"details"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch {
		case envelope.Error != "":
			return &APIError{
				StatusCode:  statusCode,
				Code:        envelope.Error,
				Description: envelope.ErrorDescription,
				RetryAfter:  time.Duration(envelope.RetryAfterSeconds) * time.Second,
			}
		case envelope.Code != "":
			return &APIError{
				StatusCode:  statusCode,
				Code:        envelope.Code,
				Description: envelope.Message,
				Fields:      envelope.Details,
			}
		}
	}

	return &APIError{
		StatusCode:  statusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", statusCode, http.StatusText(statusCode)),
	}
}
