package domain

import "time"

const (
	ActivityLogin                = "user_login"
	ActivityFailedLogin          = "failed_login"
	ActivityLogout               = "user_logout"
	ActivityRegistration         = "user_registration"
	ActivityEmailVerified        = "email_verified"
	ActivityPasswordResetRequest = "password_reset_request"
	ActivityPasswordReset        = "password_reset"
	ActivityPasswordChange       = "password_change"
	Activity2FAEnabled           = "2fa_enabled"
	Activity2FADisabled          = "2fa_disabled"
	ActivityRoleCreated          = "role_created"
	ActivityRoleUpdated          = "role_updated"
	ActivityRoleDeleted          = "role_deleted"
	ActivityRolePermissions      = "role_permissions_updated"
	ActivitySessionRevoked       = "session_revoked"
	ActivityOtherSessionsRevoked = "all_other_sessions_revoked"
	ActivityUserCreated          = "user_created"
	ActivityUserUpdated          = "user_updated"
	ActivityUserDeleted          = "user_deleted"
	ActivityUserRestored         = "user_restored"
	ActivityUserPurged           = "user_permanently_deleted"
	ActivityUserStatusChanged    = "user_status_changed"
	ActivityOverrideSet          = "permission_override_set"
	ActivityOverrideCleared      = "permission_override_cleared"
	ActivityUserRoleChanged      = "user_role_changed"
	ActivityIPUnlocked           = "ip_unlocked"
)

// ActivityLog is an audit entry. UserID is nil for anonymous events.
type ActivityLog struct {
	ID          string
	UserID      *string
	Action      string
	Description string
	Metadata    map[string]any
	IPAddress   string
	CreatedAt   time.Time

	// Populated on reads that join users.
	UserFullname string
	UserEmail    string
}
