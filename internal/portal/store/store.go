package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers implement it and
// expose one sub-repository per table group. Repositories obtained from a Tx
// share that transaction; the ones obtained from the Store do not, which keeps
// nested transactions impossible by construction.
type Store interface {
	Users() Users
	Roles() Roles
	Permissions() Permissions
	UserPermissions() UserPermissions
	RateLimits() RateLimits
	Sessions() Sessions
	MFAFactors() MFAFactors
	MFAPending() MFAPending
	ActivityLogs() ActivityLogs
	AllowedDomains() AllowedDomains

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn inside a transaction. An error from fn rolls back,
	// nil commits.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id, including soft-deleted ones.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// The lookups below ignore soft-deleted users.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	GetUserByAlias(ctx context.Context, alias string) (domain.User, error)
	GetUserByVerificationToken(ctx context.Context, tokenHash string) (domain.User, error)

	// GetUserByResetToken returns the user holding an unexpired reset token.
	GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (domain.User, error)

	// CreateUser inserts a user. Unique violations on email, username or alias
	// return ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	// AliasTaken reports whether any user, deleted or not, holds the alias.
	AliasTaken(ctx context.Context, alias string) (bool, error)

	// Conflicts reports which of email, username and alias another user,
	// deleted or not, already holds. Empty values never conflict and the
	// user exceptID is skipped.
	Conflicts(ctx context.Context, email, username, alias, exceptID string) (Conflicts, error)

	// UpdateProfile writes fullname, username, alias and email.
	UpdateProfile(ctx context.Context, u domain.User, now time.Time) error

	// Stats counts live users.
	Stats(ctx context.Context) (domain.UserStats, error)

	ListUsers(ctx context.Context) ([]domain.User, error)
	ListDeletedUsers(ctx context.Context) ([]domain.User, error)

	// CountByRoleID counts users referencing a custom role.
	CountByRoleID(ctx context.Context, roleID string) (int, error)

	// CountBySystemRole counts live users holding a system role.
	CountBySystemRole(ctx context.Context, role domain.SystemRole) (int, error)

	MarkEmailVerified(ctx context.Context, userID string, now time.Time) error
	SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt, now time.Time) error

	// UpdatePasswordHash replaces the hash and clears any pending reset token.
	UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error

	UpdateLastLogin(ctx context.Context, userID string, now time.Time) error
	SetTwoFactorEnabled(ctx context.Context, userID string, enabled bool, now time.Time) error
	SetAuthority(ctx context.Context, userID string, role domain.SystemRole, roleID *string, now time.Time) error
	SetActive(ctx context.Context, userID string, active bool, now time.Time) error

	SoftDelete(ctx context.Context, userID string, now time.Time) error
	Restore(ctx context.Context, userID string, now time.Time) error

	// DeleteUser removes the row; sessions, factors and overrides cascade.
	DeleteUser(ctx context.Context, userID string) error
}

// Conflicts flags the unique user columns already taken.
type Conflicts struct {
	Email    bool
	Username bool
	Alias    bool
}

// Any reports whether at least one column is taken.
func (c Conflicts) Any() bool { return c.Email || c.Username || c.Alias }

type Roles interface {
	GetRoleByID(ctx context.Context, id string) (domain.Role, error)
	GetRoleByName(ctx context.Context, name string) (domain.Role, error)

	// GetSystemRoleByName only matches rows flagged is_system_role.
	GetSystemRoleByName(ctx context.Context, name string) (domain.Role, error)

	// ListRoles orders system roles first, then by display name.
	ListRoles(ctx context.Context, includeSystem bool) ([]domain.Role, error)

	CreateRole(ctx context.Context, r domain.Role) error
	UpdateRole(ctx context.Context, r domain.Role) error
	DeleteRole(ctx context.Context, roleID string) error

	// ListRolePermissions is ordered by category then display name.
	ListRolePermissions(ctx context.Context, roleID string) ([]domain.Permission, error)
	RoleHasPermission(ctx context.Context, roleID, permissionName string) (bool, error)
	ClearRolePermissions(ctx context.Context, roleID string) error
	AddRolePermission(ctx context.Context, rp domain.RolePermission) error
}

type Permissions interface {
	GetPermissionByID(ctx context.Context, id string) (domain.Permission, error)
	GetPermissionByName(ctx context.Context, name string) (domain.Permission, error)

	// ListPermissions is ordered by category then display name.
	ListPermissions(ctx context.Context) ([]domain.Permission, error)

	CreatePermission(ctx context.Context, p domain.Permission) error
	UpdatePermission(ctx context.Context, p domain.Permission) error
}

type UserPermissions interface {
	// GetOverride returns the override for (user, permission name).
	GetOverride(ctx context.Context, userID, permissionName string) (domain.UserPermission, error)
	ListOverrides(ctx context.Context, userID string) ([]domain.UserPermission, error)

	// UpsertOverride writes the single override row for (user, permission).
	UpsertOverride(ctx context.Context, up domain.UserPermission) error
	DeleteOverride(ctx context.Context, userID, permissionID string) error
}

type RateLimits interface {
	GetRateLimit(ctx context.Context, ip, action string) (domain.RateLimit, error)
	CreateRateLimit(ctx context.Context, rl domain.RateLimit) error

	// IncrementAttempts bumps the counter and returns the new record.
	IncrementAttempts(ctx context.Context, ip, action string, now time.Time) (domain.RateLimit, error)

	LockUntil(ctx context.Context, ip, action string, until time.Time) error

	// ResetRateLimit zeroes attempts and clears the lock for one action.
	ResetRateLimit(ctx context.Context, ip, action string) error

	// ClearIP zeroes attempts and clears locks for every action of ip.
	ClearIP(ctx context.Context, ip string) error

	ListLocked(ctx context.Context, now time.Time) ([]domain.RateLimit, error)
}

type Sessions interface {
	CreateSession(ctx context.Context, s domain.UserSession) error
	GetSessionByID(ctx context.Context, id string) (domain.UserSession, error)

	// GetLiveSessionByToken returns an active, unexpired session.
	GetLiveSessionByToken(ctx context.Context, tokenHash string, now time.Time) (domain.UserSession, error)

	// ListLiveSessions returns active, unexpired sessions, newest first.
	ListLiveSessions(ctx context.Context, userID string, now time.Time) ([]domain.UserSession, error)

	DeactivateSession(ctx context.Context, id string) error
	DeactivateOtherSessions(ctx context.Context, userID, exceptTokenHash string) (int64, error)
	DeactivateAllSessions(ctx context.Context, userID string) (int64, error)
	RenewSession(ctx context.Context, id string, expiresAt time.Time) error

	// DeactivateExpiredSessions flips every active row past expiry.
	DeactivateExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type MFAFactors interface {
	CreateFactor(ctx context.Context, f domain.MFAFactor) error

	// GetVerifiedFactor returns the oldest verified factor of the user.
	GetVerifiedFactor(ctx context.Context, userID string) (domain.MFAFactor, error)
	HasVerifiedFactor(ctx context.Context, userID string) (bool, error)
	ListFactors(ctx context.Context, userID string) ([]domain.MFAFactor, error)
	DeleteUserFactors(ctx context.Context, userID string) error
}

// MFAPending holds the short-lived state of the two-factor flows.
type MFAPending interface {
	// ReplaceSetup drops any previous setup of the user and stores p.
	ReplaceSetup(ctx context.Context, p domain.PendingSetup) error
	GetLiveSetup(ctx context.Context, userID string, now time.Time) (domain.PendingSetup, error)
	DeleteSetups(ctx context.Context, userID string) error
	DeleteExpiredSetups(ctx context.Context, now time.Time) (int64, error)

	CreateLogin(ctx context.Context, p domain.PendingLogin) error
	GetLiveLogin(ctx context.Context, tokenHash string, now time.Time) (domain.PendingLogin, error)
	IncrementLoginAttempts(ctx context.Context, tokenHash string) (domain.PendingLogin, error)
	DeleteLogin(ctx context.Context, tokenHash string) error
	DeleteExpiredLogins(ctx context.Context, now time.Time) (int64, error)
}

type ActivityLogs interface {
	CreateLog(ctx context.Context, l domain.ActivityLog) error

	// ListRecent is newest first and joins the user's name and email.
	ListRecent(ctx context.Context, limit, offset int) ([]domain.ActivityLog, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]domain.ActivityLog, error)
	CountLogs(ctx context.Context) (int, error)
}

type AllowedDomains interface {
	IsAllowed(ctx context.Context, domain string) (bool, error)
	ListActive(ctx context.Context) ([]domain.AllowedDomain, error)
	AddDomain(ctx context.Context, d domain.AllowedDomain) error
	SetDomainActive(ctx context.Context, id string, active bool) error
}
