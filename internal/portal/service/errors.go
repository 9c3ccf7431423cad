package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrEmailNotVerified   = errors.New("email address not verified")
	ErrCaptchaFailed      = errors.New("captcha verification failed")

	ErrUserNotFound       = errors.New("user not found")
	ErrRoleNotFound       = errors.New("role not found")
	ErrPermissionNotFound = errors.New("permission not found")
	ErrDomainNotFound     = errors.New("domain not found")

	ErrRoleNameTaken       = errors.New("role name already exists")
	ErrSystemRoleProtected = errors.New("system roles cannot be modified")
	ErrRoleInUse           = errors.New("role is assigned to users")

	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionForbidden = errors.New("session belongs to another user")
	ErrSessionInvalid   = errors.New("session expired or revoked")

	ErrInvalidTOTPCode    = errors.New("invalid TOTP code")
	ErrMFAAlreadyEnabled  = errors.New("two-factor authentication already enabled")
	ErrMFANotEnabled      = errors.New("two-factor authentication not enabled")
	ErrNoPendingSetup     = errors.New("no two-factor setup in progress")
	ErrChallengeNotFound  = errors.New("two-factor challenge expired or unknown")
	ErrChallengeExhausted = errors.New("too many two-factor attempts")

	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrEmailNotRegistered = errors.New("email not registered")

	ErrSelfAction   = errors.New("operation not allowed on your own account")
	ErrRootRequired = errors.New("operation requires the root role")
)

// ValidationError carries one reason per offending input field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// add records a reason, keeping the first one reported for a field.
func (e *ValidationError) add(field, reason string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = reason
	}
}

// orNil returns e as an error only when a field was rejected.
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// LockoutError is returned while an IP is locked out of an action.
type LockoutError struct {
	Remaining time.Duration
}

func (e *LockoutError) Error() string {
	minutes := int((e.Remaining + time.Minute - 1) / time.Minute)
	return fmt.Sprintf("too many failed attempts, try again in %d minute(s)", minutes)
}
