package service

// Security events reported to an EventRecorder.
const (
	EventLoginSuccess   = "login_success"
	EventLoginFailure   = "login_failure"
	EventLockout        = "lockout"
	EventTwoFactorAsked = "2fa_challenge"
	EventTwoFactorFail  = "2fa_failure"
	EventSessionRevoked = "session_revoked"
	EventRegistration   = "registration"
)

// EventRecorder counts security events, typically into metrics.
type EventRecorder interface {
	Record(event string)
}

type nopRecorder struct{}

func (nopRecorder) Record(string) {}

func recorderOrNop(r EventRecorder) EventRecorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
