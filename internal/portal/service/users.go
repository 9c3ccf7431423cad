package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/pkg/cryptox"
	"github.com/aussiebroadwan/portal/pkg/idx"
)

const (
	DefaultResetTokenTTL = time.Hour
	MinPasswordLength    = 8

	verificationTokenSize = 32
)

var aliasPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,18}$`)

const aliasReason = "must be 3-18 characters of letters, digits, underscore or hyphen"

// UserService owns the credential store: creation, tokens, passwords and
// administrative lifecycle.
type UserService struct {
	Store         store.Store
	Activity      *ActivityService
	ResetTokenTTL time.Duration
	Now           func() time.Time

	// AliasFormat picks one of the generated alias layouts; nil is random.
	AliasFormat func() int
}

func (s *UserService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *UserService) resetTTL() time.Duration {
	if s.ResetTokenTTL > 0 {
		return s.ResetTokenTTL
	}
	return DefaultResetTokenTTL
}

// Get returns a user by id, including soft-deleted ones.
func (s *UserService) Get(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

// List returns live users, newest first.
func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	return s.Store.Users().ListUsers(ctx)
}

// ListDeleted returns soft-deleted users, most recently deleted first.
func (s *UserService) ListDeleted(ctx context.Context) ([]domain.User, error) {
	return s.Store.Users().ListDeletedUsers(ctx)
}

// Create stores a new unverified user and returns the raw verification token
// to be emailed. Uniqueness of email, username and alias is reported as a
// validation error.
func (s *UserService) Create(ctx context.Context, nu domain.NewUser) (domain.User, string, error) {
	return s.create(ctx, nu, nil, false)
}

// create inserts a user. A verified user gets no verification token.
func (s *UserService) create(ctx context.Context, nu domain.NewUser, roleID *string, verified bool) (domain.User, string, error) {
	nu.Email = NormalizeEmail(nu.Email)
	nu.Username = strings.TrimSpace(nu.Username)
	nu.Alias = strings.TrimSpace(nu.Alias)
	if nu.Role == "" {
		nu.Role = domain.RoleUser
	}

	if err := s.checkConflicts(ctx, nu.Email, nu.Username, nu.Alias, ""); err != nil {
		return domain.User{}, "", err
	}

	if nu.Alias == "" {
		alias, err := s.GenerateAlias(ctx, nu.Username, nu.Email)
		if err != nil {
			return domain.User{}, "", err
		}
		nu.Alias = alias
	}

	hash, err := cryptox.HashPassword(nu.Password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	u := domain.User{
		ID:            idx.New().String(),
		Fullname:      strings.TrimSpace(nu.Fullname),
		Username:      nu.Username,
		Alias:         nu.Alias,
		Email:         nu.Email,
		PasswordHash:  hash,
		Role:          nu.Role,
		RoleID:        roleID,
		EmailVerified: verified,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var token string
	if !verified {
		token, err = cryptox.GenerateHexToken(verificationTokenSize)
		if err != nil {
			return domain.User{}, "", fmt.Errorf("failed to generate verification token: %w", err)
		}
		tokenHash := cryptox.FingerprintToken(token)
		u.VerificationToken = &tokenHash
	}

	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, "", s.conflictError(ctx, u.Email, u.Username, u.Alias, "")
		}
		return domain.User{}, "", fmt.Errorf("failed to create user: %w", err)
	}
	return u, token, nil
}

// GenerateAlias builds a system alias from the username, today's date and
// the first label of the email domain, suffixing a counter until unused.
func (s *UserService) GenerateAlias(ctx context.Context, username, email string) (string, error) {
	name := strings.ToLower(strings.ReplaceAll(username, "@", ""))

	domainLabel := "user"
	if _, host, ok := strings.Cut(email, "@"); ok && host != "" {
		domainLabel, _, _ = strings.Cut(host, ".")
	}

	now := s.now()
	day, month, year := now.Format("02"), now.Format("01"), now.Format("2006")

	format := 0
	if s.AliasFormat != nil {
		format = s.AliasFormat()
	} else {
		format = rand.IntN(4) + 1
	}

	var alias string
	switch format {
	case 1:
		alias = strings.Join([]string{name, day, month, year, domainLabel}, "-")
	case 2:
		alias = strings.Join([]string{strings.ReplaceAll(name, "-", "_"), day, month, year, domainLabel}, "_")
	case 3:
		alias = strings.ReplaceAll(name, "-", "_") + "_" + day + month + year + "_" + domainLabel
	default:
		compact := strings.NewReplacer("-", "", "_", "").Replace(name)
		alias = compact + "_" + day + month + year + "_" + domainLabel
	}

	candidate := alias
	for i := 1; ; i++ {
		taken, err := s.Store.Users().AliasTaken(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check alias: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", alias, i)
	}
}

// EmailAvailable reports whether a registration could use email. Addresses
// of soft-deleted users stay reserved until they are purged.
func (s *UserService) EmailAvailable(ctx context.Context, email string) (bool, error) {
	c, err := s.Store.Users().Conflicts(ctx, NormalizeEmail(email), "", "", "")
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return !c.Email, nil
}

// UsernameAvailable is EmailAvailable for usernames.
func (s *UserService) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	c, err := s.Store.Users().Conflicts(ctx, "", strings.TrimSpace(username), "", "")
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return !c.Username, nil
}

// VerifyEmail consumes a verification token.
func (s *UserService) VerifyEmail(ctx context.Context, token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, ErrInvalidToken
	}
	u, err := s.Store.Users().GetUserByVerificationToken(ctx, cryptox.FingerprintToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrInvalidToken
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to load user: %w", err)
	}

	now := s.now()
	if err := s.Store.Users().MarkEmailVerified(ctx, u.ID, now); err != nil {
		return domain.User{}, fmt.Errorf("failed to verify email: %w", err)
	}
	u.EmailVerified = true
	u.VerificationToken = nil
	u.UpdatedAt = now

	s.Activity.LogUser(ctx, u.ID, domain.ActivityEmailVerified, "Email address verified", "", nil)
	return u, nil
}

// GenerateResetToken stores a reset token for the live user owning email and
// returns the raw token.
func (s *UserService) GenerateResetToken(ctx context.Context, email string) (domain.User, string, error) {
	u, err := s.Store.Users().GetUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, "", ErrEmailNotRegistered
	}
	if err != nil {
		return domain.User{}, "", fmt.Errorf("failed to load user: %w", err)
	}

	token, err := cryptox.GenerateHexToken(verificationTokenSize)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("failed to generate reset token: %w", err)
	}

	now := s.now()
	if err := s.Store.Users().SetResetToken(ctx, u.ID, cryptox.FingerprintToken(token), now.Add(s.resetTTL()), now); err != nil {
		return domain.User{}, "", fmt.Errorf("failed to store reset token: %w", err)
	}
	return u, token, nil
}

// ResetPassword consumes an unexpired reset token, replaces the password and
// ends every session of the user.
func (s *UserService) ResetPassword(ctx context.Context, token, password, confirm string) (domain.User, error) {
	if err := validatePassword(password, confirm); err != nil {
		return domain.User{}, err
	}
	if token == "" {
		return domain.User{}, ErrInvalidToken
	}

	now := s.now()
	u, err := s.Store.Users().GetUserByResetToken(ctx, cryptox.FingerprintToken(token), now)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrInvalidToken
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to load user: %w", err)
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, u.ID, hash, now); err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		if _, err := tx.Sessions().DeactivateAllSessions(ctx, u.ID); err != nil {
			return fmt.Errorf("failed to revoke sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}

	s.Activity.LogUser(ctx, u.ID, domain.ActivityPasswordReset, "Password reset with emailed token", "", nil)
	return u, nil
}

// ChangePassword replaces the caller's password after checking the current
// one. Other sessions of the caller are ended.
func (s *UserService) ChangePassword(ctx context.Context, actor domain.AuthContext, current, password, confirm string) error {
	u, err := s.Get(ctx, actor.UserID)
	if err != nil {
		return err
	}

	if err := cryptox.VerifyPassword(current, u.PasswordHash); err != nil {
		return &ValidationError{Fields: map[string]string{"current_password": "is incorrect"}}
	}
	if err := validatePassword(password, confirm); err != nil {
		return err
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, u.ID, hash, s.now()); err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		if actor.SessionToken == "" {
			return nil
		}
		_, err := tx.Sessions().DeactivateOtherSessions(ctx, u.ID, cryptox.FingerprintToken(actor.SessionToken))
		return err
	})
	if err != nil {
		return err
	}

	s.Activity.LogUser(ctx, u.ID, domain.ActivityPasswordChange, "Password changed", actor.IPAddress, nil)
	return nil
}

// SoftDelete hides a user from lookups and ends their sessions. Only root
// may delete a root account.
func (s *UserService) SoftDelete(ctx context.Context, actor domain.AuthContext, userID string) error {
	if userID == actor.UserID {
		return ErrSelfAction
	}
	if _, err := s.target(ctx, actor, userID); err != nil {
		return err
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SoftDelete(ctx, userID, s.now()); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to delete user: %w", err)
		}
		if _, err := tx.Sessions().DeactivateAllSessions(ctx, userID); err != nil {
			return fmt.Errorf("failed to revoke sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Activity.LogUser(ctx, actor.UserID, domain.ActivityUserDeleted, "Deleted user", actor.IPAddress,
		map[string]any{"target_user_id": userID})
	return nil
}

// Restore brings a soft-deleted user back.
func (s *UserService) Restore(ctx context.Context, actor domain.AuthContext, userID string) error {
	if _, err := s.target(ctx, actor, userID); err != nil {
		return err
	}
	if err := s.Store.Users().Restore(ctx, userID, s.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to restore user: %w", err)
	}

	s.Activity.LogUser(ctx, actor.UserID, domain.ActivityUserRestored, "Restored user", actor.IPAddress,
		map[string]any{"target_user_id": userID})
	return nil
}

// Purge permanently removes a soft-deleted user. Only root may purge.
func (s *UserService) Purge(ctx context.Context, actor domain.AuthContext, userID string) error {
	if actor.Role != domain.RoleRoot {
		return ErrRootRequired
	}
	if userID == actor.UserID {
		return ErrSelfAction
	}

	u, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !u.IsDeleted() {
		return &ValidationError{Fields: map[string]string{"user": "must be deleted before it can be purged"}}
	}

	if err := s.Store.Users().DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to purge user: %w", err)
	}

	s.Activity.LogUser(ctx, actor.UserID, domain.ActivityUserPurged, "Permanently deleted user "+u.Email,
		actor.IPAddress, map[string]any{"target_user_id": userID})
	return nil
}

// SetActive enables or disables login for a user. Disabling also ends
// every session of the user.
func (s *UserService) SetActive(ctx context.Context, actor domain.AuthContext, userID string, active bool) error {
	if userID == actor.UserID {
		return ErrSelfAction
	}
	if _, err := s.target(ctx, actor, userID); err != nil {
		return err
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SetActive(ctx, userID, active, s.now()); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to update user status: %w", err)
		}
		if active {
			return nil
		}
		if _, err := tx.Sessions().DeactivateAllSessions(ctx, userID); err != nil {
			return fmt.Errorf("failed to revoke sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	desc := "Deactivated user"
	if active {
		desc = "Activated user"
	}
	s.Activity.LogUser(ctx, actor.UserID, domain.ActivityUserStatusChanged, desc, actor.IPAddress,
		map[string]any{"target_user_id": userID, "active": active})
	return nil
}

// target loads the user an administrative operation acts on. Root accounts
// are only reachable by root.
func (s *UserService) target(ctx context.Context, actor domain.AuthContext, userID string) (domain.User, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if err := guardRoot(actor, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// guardRoot refuses a non-root actor touching a root account.
func guardRoot(actor domain.AuthContext, target domain.User) error {
	if target.Role == domain.RoleRoot && actor.Role != domain.RoleRoot {
		return ErrRootRequired
	}
	return nil
}

// checkConflicts reports taken email, username or alias values per field.
// Rows of soft-deleted users count, since the columns stay unique.
func (s *UserService) checkConflicts(ctx context.Context, email, username, alias, exceptID string) error {
	c, err := s.Store.Users().Conflicts(ctx, email, username, alias, exceptID)
	if err != nil {
		return fmt.Errorf("failed to check uniqueness: %w", err)
	}
	return conflictFields(c).orNil()
}

// conflictError explains a unique violation that slipped past
// checkConflicts, falling back to the email field.
func (s *UserService) conflictError(ctx context.Context, email, username, alias, exceptID string) error {
	if err := s.checkConflicts(ctx, email, username, alias, exceptID); err != nil {
		return err
	}
	return &ValidationError{Fields: map[string]string{"email": "is already registered"}}
}

func conflictFields(c store.Conflicts) *ValidationError {
	verr := &ValidationError{}
	if c.Email {
		verr.add("email", "is already registered")
	}
	if c.Username {
		verr.add("username", "is already taken")
	}
	if c.Alias {
		verr.add("alias", "is already taken")
	}
	return verr
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// emailDomain returns the host part of a syntactically valid address.
func emailDomain(email string) (string, bool) {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", false
	}
	_, host, ok := strings.Cut(addr.Address, "@")
	if !ok || host == "" {
		return "", false
	}
	return host, true
}

func validatePassword(password, confirm string) error {
	verr := &ValidationError{}
	if len(password) < MinPasswordLength {
		verr.add("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	if password != confirm {
		verr.add("password_confirm", "does not match")
	}
	return verr.orNil()
}
