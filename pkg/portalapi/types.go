package portalapi

import "time"

// ============================================================================
// Error envelopes
// ============================================================================

// ErrorResponse is the body of every non-validation error.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ValidationErrorResponse carries per-field reasons for a rejected request.
type ValidationErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// LockoutResponse is returned with 429 when the login rate limiter holds the
// caller's address.
type LockoutResponse struct {
	Error             string `json:"error"`
	ErrorDescription  string `json:"error_description"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// ============================================================================
// Authentication
// ============================================================================

type RegisterRequest struct {
	Fullname        string `json:"fullname"`
	Username        string `json:"username"`
	Alias           string `json:"alias,omitempty"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	Captcha         string `json:"captcha,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Captcha  string `json:"captcha,omitempty"`
}

// LoginResponse either carries a session or a pending two-factor challenge.
// When TwoFactorRequired is true, ChallengeToken must be posted back with a
// TOTP code to /v1/auth/login/2fa.
type LoginResponse struct {
	TwoFactorRequired  bool       `json:"two_factor_required"`
	ChallengeToken     string     `json:"challenge_token,omitempty"`
	ChallengeExpiresAt *time.Time `json:"challenge_expires_at,omitempty"`

	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	User      *UserInfo  `json:"user,omitempty"`
}

type TwoFactorLoginRequest struct {
	ChallengeToken string `json:"challenge_token"`
	Code           string `json:"code"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

type AvailabilityRequest struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
}

// AvailabilityResponse only reports the fields that were asked about.
type AvailabilityResponse struct {
	Email    *bool `json:"email_available,omitempty"`
	Username *bool `json:"username_available,omitempty"`
}

// BootstrapRequest creates the first root account. Token must match the
// server's configured bootstrap token.
type BootstrapRequest struct {
	Token    string `json:"token"`
	Fullname string `json:"fullname"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// ============================================================================
// Users
// ============================================================================

type UserInfo struct {
	ID               string     `json:"id"`
	Fullname         string     `json:"fullname"`
	Username         string     `json:"username"`
	Alias            string     `json:"alias"`
	Email            string     `json:"email"`
	Role             string     `json:"role"`
	RoleID           *string    `json:"role_id,omitempty"`
	EmailVerified    bool       `json:"email_verified"`
	IsActive         bool       `json:"is_active"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
}

type ListUsersResponse struct {
	Users []UserInfo `json:"users"`
}

type MyPermissionsResponse struct {
	Permissions []string `json:"permissions"`
}

// CreateUserRequest is an administrator-created account. The email is
// verified on creation. RoleID selects a custom role instead of Role.
type CreateUserRequest struct {
	Fullname string  `json:"fullname"`
	Username string  `json:"username"`
	Alias    string  `json:"alias,omitempty"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Role     string  `json:"role,omitempty"`
	RoleID   *string `json:"role_id,omitempty"`
}

// UpdateUserRequest changes only the fields that are present. Role and
// RoleID additionally require manage_roles.
type UpdateUserRequest struct {
	Fullname *string `json:"fullname,omitempty"`
	Username *string `json:"username,omitempty"`
	Alias    *string `json:"alias,omitempty"`
	Email    *string `json:"email,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
	Role     *string `json:"role,omitempty"`
	RoleID   *string `json:"role_id,omitempty"`
}

type StatsResponse struct {
	TotalUsers     int            `json:"total_users"`
	ActiveUsers    int            `json:"active_users"`
	VerifiedUsers  int            `json:"verified_users"`
	TwoFactorUsers int            `json:"users_with_2fa"`
	UsersByRole    map[string]int `json:"users_by_role"`
}

type SetActiveRequest struct {
	Active bool `json:"active"`
}

// SetOverrideRequest grants (true) or explicitly denies (false) a permission
// to a single user regardless of role.
type SetOverrideRequest struct {
	Granted bool `json:"granted"`
}

type SetUserRoleRequest struct {
	Role   string  `json:"role"`
	RoleID *string `json:"role_id,omitempty"`
}

// ============================================================================
// Roles and permissions
// ============================================================================

type PermissionInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}

type PermissionCategory struct {
	Category    string           `json:"category"`
	Permissions []PermissionInfo `json:"permissions"`
}

type ListPermissionsResponse struct {
	Categories []PermissionCategory `json:"categories"`
}

type RoleInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DisplayName  string    `json:"display_name"`
	Description  string    `json:"description,omitempty"`
	IsSystemRole bool      `json:"is_system_role"`
	IsActive     bool      `json:"is_active"`
	UserCount    int       `json:"user_count"`
	Permissions  []string  `json:"permissions,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type ListRolesResponse struct {
	Roles []RoleInfo `json:"roles"`
}

type CreateRoleRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
}

// UpdateRoleRequest leaves absent fields unchanged. The role name is fixed at
// creation.
type UpdateRoleRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

type SetRolePermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids"`
}

// ============================================================================
// Sessions
// ============================================================================

type SessionInfo struct {
	ID        string    `json:"id"`
	Current   bool      `json:"current"`
	IPAddress string    `json:"ip_address"`
	OS        string    `json:"os"`
	Browser   string    `json:"browser"`
	Device    string    `json:"device_type"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ListSessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

type RevokedResponse struct {
	Revoked int64 `json:"revoked"`
}

// ============================================================================
// Two-factor
// ============================================================================

type TOTPSetupResponse struct {
	Secret          string    `json:"secret"`
	ProvisioningURI string    `json:"provisioning_uri"`
	Issuer          string    `json:"issuer"`
	Account         string    `json:"account"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type TOTPCodeRequest struct {
	Code string `json:"code"`
}

// ============================================================================
// Security and audit
// ============================================================================

type BlockedIP struct {
	IPAddress   string    `json:"ip_address"`
	Action      string    `json:"action"`
	Attempts    int       `json:"attempts"`
	LockedUntil time.Time `json:"locked_until"`
}

type ListBlockedIPsResponse struct {
	Blocked []BlockedIP `json:"blocked"`
}

type ActivityEntry struct {
	ID           string         `json:"id"`
	UserID       *string        `json:"user_id,omitempty"`
	UserFullname string         `json:"user_fullname,omitempty"`
	UserEmail    string         `json:"user_email,omitempty"`
	Action       string         `json:"action"`
	Description  string         `json:"description"`
	IPAddress    string         `json:"ip_address,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

type ListActivityResponse struct {
	Entries []ActivityEntry `json:"entries"`
	Total   int             `json:"total"`
}

// ============================================================================
// Health
// ============================================================================

type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database"`
}
